package services

import (
	"context"
	"errors"
	"strconv"

	"kakeibo/internal/amqp"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/points"
	"kakeibo/internal/ports"
	"kakeibo/internal/scoring"
)

const (
	msgChoreListFailed   = "家事ログの取得に失敗しました"
	msgChoreRecordFailed = "家事の記録に失敗しました"
	msgChoreDeleteFailed = "削除に失敗しました"

	// DefaultChoreListLimit applies when the caller gives no limit.
	DefaultChoreListLimit = 50
	// MaxChoreListLimit caps a single page of the ledger.
	MaxChoreListLimit = 500
)

// RecordedChore is an inserted ledger row together with the lucky-roll
// message shared by every row of the submission.
type RecordedChore struct {
	core.ChoreRecord
	MultiplierMessage string `json:"multiplier_message"`
}

// ChoreService records chores, lists the ledger and computes balances.
type ChoreService struct {
	ledger       ports.ChoreLedger
	master       *MasterService
	scorer       *scoring.Engine
	defaultLimit int
	opts         Options
}

func NewChoreService(ledger ports.ChoreLedger, master *MasterService, scorer *scoring.Engine, defaultLimit int, opts Options) *ChoreService {
	if scorer == nil {
		scorer = scoring.NewEngine(nil)
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultChoreListLimit
	}
	return &ChoreService{
		ledger:       ledger,
		master:       master,
		scorer:       scorer,
		defaultLimit: defaultLimit,
		opts:         opts.resolve(log.ComponentChore),
	}
}

// Record validates the submission, rolls once for a lucky multiplier and
// writes one record per assignee with the split score.
func (s *ChoreService) Record(ctx context.Context, sub core.ChoreSubmission) ([]RecordedChore, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	dir, err := s.master.Directory(ctx)
	if err != nil {
		return nil, err
	}
	keys, err := dir.ResolveAll(sub.Assignees)
	if err != nil {
		return nil, err
	}

	award, err := s.scorer.ComputeAward(sub.BaseScore, len(keys), sub.Multiplier)
	if err != nil {
		return nil, err
	}

	created := sub.CreatedAt
	if created.IsZero() {
		created = s.opts.Now()
	}

	records := make([]core.ChoreRecord, len(keys))
	for i, key := range keys {
		records[i] = core.ChoreRecord{
			CreatedAt:  created,
			Category:   sub.Category,
			Task:       sub.Task,
			Score:      award.PerAssigneeScore,
			Multiplier: award.Multiplier,
			Note:       sub.Note,
			Assignee:   key,
		}
	}

	inserted, err := s.ledger.InsertChores(ctx, records)
	if err != nil {
		s.opts.Logger.ErrorContext(ctx, "Failed to record chore",
			log.NewFields().WithChore(sub.Category, sub.Task, award.PerAssigneeScore, award.Multiplier, keys).WithError(err).ToSlice()...)
		return nil, &core.DependencyError{Op: "record chore", Message: msgChoreRecordFailed, Err: err}
	}

	s.opts.Logger.InfoContext(ctx, "Chore recorded",
		log.NewFields().WithChore(sub.Category, sub.Task, award.PerAssigneeScore, award.Multiplier, keys).ToSlice()...)
	for _, r := range inserted {
		s.opts.Metrics.ChoreRecorded(r.Category, r.Assignee, r.Points())
	}
	if award.Tier != "none" {
		s.opts.Metrics.LuckyTier(award.Tier)
	}
	s.opts.publish(ctx, amqp.EventChoreRecorded, amqp.ChoreRecordedPayload{Records: inserted, Tier: award.Tier})

	out := make([]RecordedChore, len(inserted))
	for i, r := range inserted {
		out[i] = RecordedChore{ChoreRecord: r, MultiplierMessage: award.MultiplierMessage}
	}
	return out, nil
}

// List returns the newest records. A limit <= 0 uses the configured
// default; larger limits are capped.
func (s *ChoreService) List(ctx context.Context, limit int) ([]core.ChoreRecord, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > MaxChoreListLimit {
		limit = MaxChoreListLimit
	}

	records, err := s.ledger.ListRecentChores(ctx, limit)
	if err != nil {
		s.opts.Logger.ErrorContext(ctx, "Failed to list chores", log.FieldError, err)
		return nil, &core.DependencyError{Op: "list chores", Message: msgChoreListFailed, Err: err}
	}
	return records, nil
}

// Delete removes one ledger row. A missing row is a NotFoundError.
func (s *ChoreService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return core.Invalid("id", core.MsgInvalidID)
	}
	if err := s.ledger.DeleteChore(ctx, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return err
		}
		s.opts.Logger.ErrorContext(ctx, "Failed to delete chore", log.FieldRecordID, id, log.FieldError, err)
		return &core.DependencyError{Op: "delete chore " + strconv.FormatInt(id, 10), Message: msgChoreDeleteFailed, Err: err}
	}

	s.opts.Logger.InfoContext(ctx, "Chore deleted", log.FieldRecordID, id)
	s.opts.publish(ctx, amqp.EventChoreDeleted, amqp.RecordDeletedPayload{ID: id})
	return nil
}

// Balance is one assignee's points and whether they cover a draw.
type Balance struct {
	Assignee    string  `json:"assignee"`
	DisplayName string  `json:"display_name"`
	Points      float64 `json:"points"`
	Records     int     `json:"records"`
	CanDraw     bool    `json:"can_draw"`
}

// Balances scans the full ledger. Every known assignee is listed, even one
// without records, followed by any unknown keys found in the ledger.
func (s *ChoreService) Balances(ctx context.Context, cost int) ([]Balance, error) {
	records, err := s.ledger.ListAllChores(ctx)
	if err != nil {
		s.opts.Logger.ErrorContext(ctx, "Failed to scan chore ledger", log.FieldError, err)
		return nil, &core.DependencyError{Op: "scan chore ledger", Message: msgChoreListFailed, Err: err}
	}
	dir, err := s.master.Directory(ctx)
	if err != nil {
		return nil, err
	}

	totals := points.Totals(records)
	byKey := make(map[string]points.Balance, len(totals))
	for _, b := range totals {
		byKey[b.Assignee] = b
	}

	out := make([]Balance, 0, len(totals))
	seen := make(map[string]bool, len(totals))
	add := func(b points.Balance) {
		seen[b.Assignee] = true
		out = append(out, Balance{
			Assignee:    b.Assignee,
			DisplayName: dir.DisplayName(b.Assignee),
			Points:      b.Float(),
			Records:     b.Records,
			CanDraw:     b.CanAfford(cost),
		})
	}
	for _, m := range dir.Members() {
		b, ok := byKey[m.Key]
		if !ok {
			b = points.Balance{Assignee: m.Key}
		}
		add(b)
	}
	for _, b := range totals {
		if !seen[b.Assignee] {
			add(b)
		}
	}
	return out, nil
}

// BalanceOf returns the balance of one canonical assignee key.
func (s *ChoreService) BalanceOf(ctx context.Context, assignee string) (points.Balance, error) {
	records, err := s.ledger.ListAllChores(ctx)
	if err != nil {
		return points.Balance{}, &core.DependencyError{Op: "scan chore ledger", Message: msgChoreListFailed, Err: err}
	}
	return points.Of(records, assignee), nil
}
