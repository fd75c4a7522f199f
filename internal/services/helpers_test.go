package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"kakeibo/internal/amqp"
	"kakeibo/internal/core"
	"kakeibo/internal/gacha"
	"kakeibo/internal/scoring"
	"kakeibo/internal/seed"
	"kakeibo/internal/storage/memory"
)

// roll is a constant random source for both the score and draw engines.
type roll float64

func (r roll) Float64() float64 { return float64(r) }

type fakePublisher struct {
	mu     sync.Mutex
	events []*amqp.Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, e *amqp.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return f.err
}

func (f *fakePublisher) types() []amqp.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]amqp.EventType, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	store       *memory.Store
	pub         *fakePublisher
	now         time.Time
	opts        Options
	master      *MasterService
	chores      *ChoreService
	expenses    *ExpenseService
	summary     *SummaryService
	coordinator *RewardCoordinator
	gacha       *GachaService
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	scoreRoll    float64
	drawRoll     float64
	resumeGrants bool
}

func withScoreRoll(r float64) fixtureOption {
	return func(c *fixtureConfig) { c.scoreRoll = r }
}

func withDrawRoll(r float64) fixtureOption {
	return func(c *fixtureConfig) { c.drawRoll = r }
}

func withResumeGrants() fixtureOption {
	return func(c *fixtureConfig) { c.resumeGrants = true }
}

func newFixture(t *testing.T, options ...fixtureOption) *fixture {
	t.Helper()
	cfg := fixtureConfig{scoreRoll: 0.5, drawRoll: 0}
	for _, o := range options {
		o(&cfg)
	}

	catalog, err := seed.Default()
	if err != nil {
		t.Fatalf("seed.Default: %v", err)
	}

	f := &fixture{
		store: memory.NewSeeded(catalog),
		pub:   &fakePublisher{},
		now:   time.Date(2025, 10, 16, 12, 0, 0, 0, time.Local),
	}
	f.opts = Options{Publisher: f.pub, Now: func() time.Time { return f.now }}

	f.master = NewMasterService(f.store, "kakeibo", time.Minute, f.opts)
	f.chores = NewChoreService(f.store, f.master, scoring.NewEngine(roll(cfg.scoreRoll)), 0, f.opts)
	f.expenses = NewExpenseService(f.store, f.opts)
	f.summary = NewSummaryService(f.store, f.store, f.opts)
	f.coordinator = NewRewardCoordinator(f.store, f.store, f.store, f.store, gacha.NewEngine(roll(cfg.drawRoll)), 100, f.opts)
	f.gacha = NewGachaService(f.coordinator, f.chores, f.master, f.store, f.store, cfg.resumeGrants, f.opts)
	return f
}

// credit gives assignee pts points directly in the ledger.
func (f *fixture) credit(t *testing.T, assignee string, pts float64) {
	t.Helper()
	_, err := f.store.InsertChores(context.Background(), []core.ChoreRecord{{
		CreatedAt: f.now.Add(-time.Hour), Category: "掃除", Task: "部屋", Score: pts, Multiplier: 1, Assignee: assignee,
	}})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
}

func (f *fixture) balance(t *testing.T, assignee string) float64 {
	t.Helper()
	b, err := f.chores.BalanceOf(context.Background(), assignee)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	return b.Float()
}

func (f *fixture) attempts(t *testing.T) []core.DrawAttempt {
	t.Helper()
	out, err := f.store.ListAttemptsByState(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("ListAttemptsByState: %v", err)
	}
	return out
}
