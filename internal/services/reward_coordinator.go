package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"kakeibo/internal/amqp"
	"kakeibo/internal/core"
	"kakeibo/internal/gacha"
	"kakeibo/internal/log"
	"kakeibo/internal/ports"
)

const (
	msgPrizesFetchFailed = "Failed to fetch gacha prizes"
	msgDeductionFailed   = "Failed to record gacha transaction"
	msgGrantFailed       = "Failed to grant gacha prize"
	msgInternal          = "Internal Server Error"

	// DefaultDrawCost is the number of points one draw consumes.
	DefaultDrawCost = 100
)

// DrawOutcome is the result of a draw, or of replaying a finished one.
type DrawOutcome struct {
	Attempt  core.DrawAttempt
	Prize    core.GachaPrize
	Item     core.InventoryItem
	Fallback bool
	Replayed bool
}

// RewardCoordinator runs the draw as three independent writes: pick a
// prize, deduct the cost from the ledger, grant the inventory item. There
// is no enclosing transaction and nothing is rolled back; every step is
// recorded on a DrawAttempt so a failed grant can be found later. The
// balance is not checked here.
type RewardCoordinator struct {
	catalog   ports.PrizeCatalog
	ledger    ports.ChoreLedger
	inventory ports.Inventory
	attempts  ports.DrawAttempts
	engine    *gacha.Engine
	cost      int
	opts      Options
}

func NewRewardCoordinator(
	catalog ports.PrizeCatalog,
	ledger ports.ChoreLedger,
	inventory ports.Inventory,
	attempts ports.DrawAttempts,
	engine *gacha.Engine,
	cost int,
	opts Options,
) *RewardCoordinator {
	if engine == nil {
		engine = gacha.NewEngine(nil)
	}
	if cost <= 0 {
		cost = DefaultDrawCost
	}
	return &RewardCoordinator{
		catalog:   catalog,
		ledger:    ledger,
		inventory: inventory,
		attempts:  attempts,
		engine:    engine,
		cost:      cost,
		opts:      opts.resolve(log.ComponentGacha),
	}
}

// Cost returns the points deducted per draw.
func (c *RewardCoordinator) Cost() int {
	return c.cost
}

// ExecuteDraw starts a new attempt for assignee. requestID may be empty.
func (c *RewardCoordinator) ExecuteDraw(ctx context.Context, assignee, requestID string) (DrawOutcome, error) {
	now := c.opts.Now()
	attempt := core.DrawAttempt{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Assignee:  assignee,
		State:     core.DrawStarted,
		Cost:      c.cost,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.attempts.CreateAttempt(ctx, attempt); err != nil {
		if errors.Is(err, core.ErrDuplicateRequestID) {
			return DrawOutcome{}, core.ErrDrawInProgress
		}
		c.opts.Logger.ErrorContext(ctx, "Failed to create draw attempt",
			log.NewFields().WithDraw(attempt.ID, assignee, string(attempt.State)).WithError(err).ToSlice()...)
		return DrawOutcome{}, &core.DependencyError{Op: "create draw attempt", Message: msgInternal, Err: err}
	}
	return c.run(ctx, attempt)
}

// Restart runs the saga again on an attempt that failed before any points
// were deducted. Only one caller can restart a given attempt; the others
// get ErrDrawInProgress.
func (c *RewardCoordinator) Restart(ctx context.Context, attempt core.DrawAttempt) (DrawOutcome, error) {
	if attempt.State != core.DrawCatalogFetchFailed && attempt.State != core.DrawDeductionFailed {
		return DrawOutcome{}, fmt.Errorf("restart draw %s: state %s cannot restart", attempt.ID, attempt.State)
	}
	if err := c.claim(ctx, &attempt, core.DrawStarted); err != nil {
		return DrawOutcome{Attempt: attempt}, err
	}
	attempt.PrizeID = 0
	attempt.LastError = ""
	attempt.Retries++
	c.save(ctx, &attempt)
	return c.run(ctx, attempt)
}

func (c *RewardCoordinator) run(ctx context.Context, attempt core.DrawAttempt) (DrawOutcome, error) {
	prizes, err := c.catalog.ListPrizes(ctx)
	if err != nil {
		err = c.fail(ctx, &attempt, core.DrawCatalogFetchFailed, "fetch gacha prizes", msgPrizesFetchFailed, nil, err)
		return DrawOutcome{Attempt: attempt}, err
	}
	result, err := c.engine.Draw(prizes)
	if err != nil {
		err = c.fail(ctx, &attempt, core.DrawCatalogFetchFailed, "fetch gacha prizes", msgPrizesFetchFailed, nil, err)
		return DrawOutcome{Attempt: attempt}, err
	}
	prize := result.Prize
	if result.Fallback {
		c.opts.Logger.WarnContext(ctx, "Could not determine prize by probability, using fallback",
			log.FieldAttemptID, attempt.ID, log.FieldPrizeName, prize.Name)
	}
	attempt.State = core.DrawCatalogFetched
	attempt.PrizeID = prize.ID
	c.save(ctx, &attempt)

	deduction := core.ChoreRecord{
		CreatedAt:  c.opts.Now(),
		Category:   core.GachaCategory,
		Task:       core.GachaTask,
		Score:      -float64(attempt.Cost),
		Multiplier: 1,
		Note:       prize.DrawNote(),
		Assignee:   attempt.Assignee,
	}
	inserted, err := c.ledger.InsertChores(ctx, []core.ChoreRecord{deduction})
	if err != nil {
		err = c.fail(ctx, &attempt, core.DrawDeductionFailed, "record gacha transaction", msgDeductionFailed, &prize, err)
		return DrawOutcome{Attempt: attempt, Prize: prize}, err
	}
	if len(inserted) > 0 {
		attempt.ChoreRecordID = inserted[0].ID
	}
	attempt.State = core.DrawDeducted
	c.save(ctx, &attempt)

	outcome, err := c.grant(ctx, attempt, prize)
	outcome.Fallback = result.Fallback
	return outcome, err
}

// ResumeGrant retries the grant step of an attempt left in GrantFailed.
// The attempt is claimed by moving it to Granting, and a caller that loses
// the claim gets ErrDrawInProgress. A failed retry increments Retries and
// puts the attempt back in GrantFailed.
func (c *RewardCoordinator) ResumeGrant(ctx context.Context, attempt core.DrawAttempt) (DrawOutcome, error) {
	if attempt.State != core.DrawGrantFailed {
		return DrawOutcome{Attempt: attempt}, fmt.Errorf("resume grant %s: state %s is not %s", attempt.ID, attempt.State, core.DrawGrantFailed)
	}
	if err := c.claim(ctx, &attempt, core.DrawGranting); err != nil {
		return DrawOutcome{Attempt: attempt}, err
	}
	attempt.Retries++

	prize, err := c.prizeByID(ctx, attempt.PrizeID)
	if err != nil {
		attempt.State = core.DrawGrantFailed
		attempt.LastError = err.Error()
		c.save(ctx, &attempt)
		return DrawOutcome{Attempt: attempt}, &core.DependencyError{Op: "resume grant", Message: msgGrantFailed, Err: err}
	}
	return c.grant(ctx, attempt, prize)
}

func (c *RewardCoordinator) grant(ctx context.Context, attempt core.DrawAttempt, prize core.GachaPrize) (DrawOutcome, error) {
	item, err := c.inventory.GrantItem(ctx, core.InventoryItem{
		Assignee:  attempt.Assignee,
		PrizeID:   prize.ID,
		CreatedAt: c.opts.Now(),
	})
	if err != nil {
		err = c.fail(ctx, &attempt, core.DrawGrantFailed, "grant gacha prize", msgGrantFailed, &prize, err)
		return DrawOutcome{Attempt: attempt, Prize: prize}, err
	}
	item.Prize = &prize

	attempt.InventoryItemID = item.ID
	attempt.State = core.DrawGranted
	attempt.LastError = ""
	c.save(ctx, &attempt)

	fields := log.NewFields().WithDraw(attempt.ID, attempt.Assignee, string(attempt.State))
	fields[log.FieldPrizeID] = prize.ID
	fields[log.FieldPrizeName] = prize.Name
	fields[log.FieldRarity] = prize.Rarity
	c.opts.Logger.InfoContext(ctx, "Gacha draw granted", fields.ToSlice()...)
	c.opts.Metrics.DrawFinished(string(attempt.State), prize.Rarity)
	c.opts.publish(ctx, amqp.EventDrawCompleted, amqp.DrawPayload{Attempt: attempt, Prize: &prize})

	return DrawOutcome{Attempt: attempt, Prize: prize, Item: item}, nil
}

// Abandon gives up on a failed grant. The deducted points stay spent. It
// reports false when the attempt has left GrantFailed in the meantime.
func (c *RewardCoordinator) Abandon(ctx context.Context, attempt core.DrawAttempt) (core.DrawAttempt, bool) {
	if attempt.State != core.DrawGrantFailed {
		return attempt, false
	}
	if err := c.claim(ctx, &attempt, core.DrawGrantAbandoned); err != nil {
		if !errors.Is(err, core.ErrDrawInProgress) {
			c.opts.Logger.ErrorContext(ctx, "Failed to abandon draw attempt",
				log.NewFields().WithDraw(attempt.ID, attempt.Assignee, string(attempt.State)).WithError(err).ToSlice()...)
		}
		return attempt, false
	}
	fields := log.NewFields().WithDraw(attempt.ID, attempt.Assignee, string(attempt.State))
	fields[log.FieldRetries] = attempt.Retries
	c.opts.Logger.WarnContext(ctx, "Gacha grant abandoned", fields.ToSlice()...)
	c.opts.Metrics.DrawFinished(string(attempt.State), "")
	c.opts.publish(ctx, amqp.EventDrawFailed, amqp.DrawPayload{Attempt: attempt})
	return attempt, true
}

// claim moves the attempt out of the state it was read in. It fails with
// ErrDrawInProgress when the stored state no longer matches.
func (c *RewardCoordinator) claim(ctx context.Context, attempt *core.DrawAttempt, to core.DrawState) error {
	now := c.opts.Now()
	ok, err := c.attempts.TransitionAttempt(ctx, attempt.ID, attempt.State, to, now)
	if err != nil {
		return &core.DependencyError{Op: "claim draw attempt", Message: msgInternal, Err: err}
	}
	if !ok {
		return core.ErrDrawInProgress
	}
	attempt.State, attempt.UpdatedAt = to, now
	return nil
}

// fail records the terminal state and returns the error for the caller.
func (c *RewardCoordinator) fail(ctx context.Context, attempt *core.DrawAttempt, state core.DrawState, op, message string, prize *core.GachaPrize, cause error) error {
	attempt.State = state
	attempt.LastError = cause.Error()
	c.save(ctx, attempt)

	c.opts.Logger.ErrorContext(ctx, "Gacha draw failed",
		log.NewFields().WithDraw(attempt.ID, attempt.Assignee, string(state)).WithError(cause).ToSlice()...)
	rarity := ""
	if prize != nil {
		rarity = prize.Rarity
	}
	c.opts.Metrics.DrawFinished(string(state), rarity)
	c.opts.publish(ctx, amqp.EventDrawFailed, amqp.DrawPayload{Attempt: *attempt, Prize: prize})

	return &core.DependencyError{Op: op, Message: message, Err: cause}
}

// save persists the attempt. A failure here is only logged.
func (c *RewardCoordinator) save(ctx context.Context, attempt *core.DrawAttempt) {
	attempt.UpdatedAt = c.opts.Now()
	if err := c.attempts.UpdateAttempt(ctx, *attempt); err != nil {
		c.opts.Logger.ErrorContext(ctx, "Failed to update draw attempt",
			log.NewFields().WithDraw(attempt.ID, attempt.Assignee, string(attempt.State)).WithError(err).ToSlice()...)
	}
}

func (c *RewardCoordinator) prizeByID(ctx context.Context, id int64) (core.GachaPrize, error) {
	prizes, err := c.catalog.ListPrizes(ctx)
	if err != nil {
		return core.GachaPrize{}, fmt.Errorf("list gacha prizes: %w", err)
	}
	for _, p := range prizes {
		if p.ID == id {
			return p, nil
		}
	}
	return core.GachaPrize{}, &core.NotFoundError{Kind: "gacha prize", ID: fmt.Sprint(id)}
}
