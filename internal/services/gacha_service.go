package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"kakeibo/internal/amqp"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/ports"
)

const (
	msgInventoryFetchFailed = "Failed to fetch inventory"
	msgUseRewardFailed      = "Failed to use reward"
)

// DrawRequest asks for one draw. RequestID, when set, makes the draw
// idempotent.
type DrawRequest struct {
	Assignee  string
	RequestID string
}

// GachaService checks affordability, deduplicates retried draws and
// serves the reward inventory.
type GachaService struct {
	coordinator  *RewardCoordinator
	chores       *ChoreService
	master       *MasterService
	attempts     ports.DrawAttempts
	inventory    ports.Inventory
	resumeGrants bool
	opts         Options
}

// NewGachaService builds the service. resumeGrants lets a repeated
// request id retry a failed grant inline.
func NewGachaService(
	coordinator *RewardCoordinator,
	chores *ChoreService,
	master *MasterService,
	attempts ports.DrawAttempts,
	inventory ports.Inventory,
	resumeGrants bool,
	opts Options,
) *GachaService {
	return &GachaService{
		coordinator:  coordinator,
		chores:       chores,
		master:       master,
		attempts:     attempts,
		inventory:    inventory,
		resumeGrants: resumeGrants,
		opts:         opts.resolve(log.ComponentGacha),
	}
}

// Cost returns the points one draw consumes.
func (s *GachaService) Cost() int {
	return s.coordinator.Cost()
}

// Draw resolves the assignee, replays a known request id, checks the
// balance and runs the coordinator. The check and the deduction are not
// atomic; two concurrent draws can both pass the check.
func (s *GachaService) Draw(ctx context.Context, req DrawRequest) (DrawOutcome, error) {
	name := strings.TrimSpace(req.Assignee)
	if name == "" {
		return DrawOutcome{}, core.Invalid("assignee", core.MsgAssigneeRequired)
	}
	requestID := strings.TrimSpace(req.RequestID)
	if requestID != "" {
		if _, err := uuid.Parse(requestID); err != nil {
			return DrawOutcome{}, core.Invalid("request_id", core.MsgInvalidRequestID)
		}
	}

	dir, err := s.master.Directory(ctx)
	if err != nil {
		return DrawOutcome{}, err
	}
	assignee, err := dir.Resolve(name)
	if err != nil {
		return DrawOutcome{}, core.UnknownAssignee("assignee", name)
	}

	if requestID != "" {
		outcome, handled, err := s.replay(ctx, requestID, assignee)
		if handled || err != nil {
			return outcome, err
		}
	}

	balance, err := s.chores.BalanceOf(ctx, assignee)
	if err != nil {
		return DrawOutcome{}, err
	}
	if !balance.CanAfford(s.coordinator.Cost()) {
		s.opts.Logger.InfoContext(ctx, "Draw rejected for insufficient points",
			log.FieldAssignee, assignee, log.FieldScore, balance.Float())
		return DrawOutcome{}, core.ErrInsufficientPoints
	}

	return s.coordinator.ExecuteDraw(ctx, assignee, requestID)
}

// replay handles a request id that was seen before. handled is false when
// the id is new and a fresh draw should run.
func (s *GachaService) replay(ctx context.Context, requestID, assignee string) (outcome DrawOutcome, handled bool, err error) {
	attempt, err := s.attempts.FindAttemptByRequestID(ctx, requestID)
	if errors.Is(err, core.ErrNotFound) {
		return DrawOutcome{}, false, nil
	}
	if err != nil {
		return DrawOutcome{}, true, &core.DependencyError{Op: "find draw attempt", Message: msgInternal, Err: err}
	}
	if attempt.Assignee != assignee {
		return DrawOutcome{}, true, core.Invalid("request_id", "request_id belongs to another assignee")
	}

	s.opts.Logger.InfoContext(ctx, "Replaying draw request",
		log.FieldAttemptID, attempt.ID, log.FieldDrawState, string(attempt.State))

	switch attempt.State {
	case core.DrawGranted:
		prize, err := s.coordinator.prizeByID(ctx, attempt.PrizeID)
		if err != nil {
			prize = core.GachaPrize{ID: attempt.PrizeID}
		}
		return DrawOutcome{Attempt: attempt, Prize: prize, Replayed: true}, true, nil

	case core.DrawGrantFailed:
		if !s.resumeGrants {
			return DrawOutcome{Attempt: attempt}, true, &core.DependencyError{
				Op: "grant gacha prize", Message: msgGrantFailed, Err: errors.New(attempt.LastError),
			}
		}
		outcome, err := s.coordinator.ResumeGrant(ctx, attempt)
		return outcome, true, err

	case core.DrawGrantAbandoned:
		return DrawOutcome{Attempt: attempt}, true, &core.DependencyError{
			Op: "grant gacha prize", Message: msgGrantFailed, Err: errors.New("grant abandoned"),
		}

	case core.DrawCatalogFetchFailed, core.DrawDeductionFailed:
		// nothing was deducted, so the draw can start over
		balance, err := s.chores.BalanceOf(ctx, assignee)
		if err != nil {
			return DrawOutcome{}, true, err
		}
		if !balance.CanAfford(s.coordinator.Cost()) {
			return DrawOutcome{}, true, core.ErrInsufficientPoints
		}
		outcome, err := s.coordinator.Restart(ctx, attempt)
		return outcome, true, err

	default:
		if attempt.State.Terminal() {
			return DrawOutcome{Attempt: attempt}, true, fmt.Errorf("replay draw %s: unexpected state %s", attempt.ID, attempt.State)
		}
		return DrawOutcome{Attempt: attempt}, true, core.ErrDrawInProgress
	}
}

// Inventory returns unused rewards joined with their prize, newest first.
func (s *GachaService) Inventory(ctx context.Context) ([]core.InventoryItem, error) {
	items, err := s.inventory.ListUnusedItems(ctx)
	if err != nil {
		s.opts.Logger.ErrorContext(ctx, "Error fetching inventory", log.FieldError, err)
		return nil, &core.DependencyError{Op: "list inventory", Message: msgInventoryFetchFailed, Err: err}
	}
	return items, nil
}

// UseReward marks one inventory item used. An item can be used once.
func (s *GachaService) UseReward(ctx context.Context, id int64) error {
	if id <= 0 {
		return core.Invalid("inventory_id", core.MsgInventoryIDRequired)
	}

	usedAt := s.opts.Now()
	if err := s.inventory.MarkItemUsed(ctx, id, usedAt); err != nil {
		if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrAlreadyUsed) {
			return err
		}
		s.opts.Logger.ErrorContext(ctx, "Error using reward", log.FieldInventoryID, id, log.FieldError, err)
		return &core.DependencyError{Op: "use reward", Message: msgUseRewardFailed, Err: err}
	}

	s.opts.Logger.InfoContext(ctx, "Reward used", log.FieldInventoryID, id)
	s.opts.publish(ctx, amqp.EventRewardUsed, amqp.RewardUsedPayload{InventoryID: id, UsedAt: usedAt})
	return nil
}
