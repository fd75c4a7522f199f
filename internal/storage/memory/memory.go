// Package memory is an in-process backend used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/seed"
)

type Store struct {
	mu sync.Mutex

	chores    []core.ChoreRecord
	expenses  []core.ExpenseRecord
	items     []core.InventoryItem
	attempts  map[string]core.DrawAttempt
	budgets   []core.Budget
	prizes    []core.GachaPrize
	cats      []core.MasterCategory
	assignees []core.Assignee

	seeded bool

	nextChore   int64
	nextExpense int64
	nextItem    int64

	// fail, when set, makes the named operation return the error. Tests use
	// it to simulate a dependency outage mid-sequence.
	fail map[string]error
}

func New() *Store {
	return &Store{attempts: map[string]core.DrawAttempt{}, fail: map[string]error{}}
}

// NewSeeded returns a store loaded with catalog.
func NewSeeded(c *seed.Catalog) *Store {
	s := New()
	_ = s.Seed(context.Background(), c)
	return s
}

// Seed replaces the static catalog. Ledger rows are untouched.
func (s *Store) Seed(_ context.Context, c *seed.Catalog) error {
	if c == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignees = dedupeAssignees(c.Assignees)
	s.budgets = c.DomainBudgets()
	s.prizes = c.GachaPrizes()
	sort.Slice(s.prizes, func(i, j int) bool { return s.prizes[i].ID < s.prizes[j].ID })
	s.cats = c.MasterCategories()
	s.seeded = true
	return nil
}

func (s *Store) Seeded(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeded, nil
}

// FailOn makes op return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

func (s *Store) failure(op string) error {
	return s.fail[op]
}

func (s *Store) InsertChores(_ context.Context, records []core.ChoreRecord) ([]core.ChoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("InsertChores"); err != nil {
		return nil, err
	}
	out := make([]core.ChoreRecord, len(records))
	for i, r := range records {
		s.nextChore++
		r.ID = s.nextChore
		s.chores = append(s.chores, r)
		out[i] = r
	}
	return out, nil
}

func (s *Store) ListRecentChores(_ context.Context, limit int) ([]core.ChoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListRecentChores"); err != nil {
		return nil, err
	}
	out := append([]core.ChoreRecord(nil), s.chores...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListAllChores(_ context.Context) ([]core.ChoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListAllChores"); err != nil {
		return nil, err
	}
	return append([]core.ChoreRecord(nil), s.chores...), nil
}

func (s *Store) DeleteChore(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("DeleteChore"); err != nil {
		return err
	}
	for i, r := range s.chores {
		if r.ID == id {
			s.chores = append(s.chores[:i], s.chores[i+1:]...)
			return nil
		}
	}
	return &core.NotFoundError{Kind: "chore record", ID: strconv.FormatInt(id, 10)}
}

func (s *Store) InsertExpense(_ context.Context, e core.ExpenseRecord) (core.ExpenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("InsertExpense"); err != nil {
		return core.ExpenseRecord{}, err
	}
	s.nextExpense++
	e.ID = s.nextExpense
	s.expenses = append(s.expenses, e)
	return e, nil
}

func (s *Store) ListExpenses(_ context.Context, from, to time.Time) ([]core.ExpenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListExpenses"); err != nil {
		return nil, err
	}
	var out []core.ExpenseRecord
	for _, e := range s.expenses {
		if e.CreatedAt.Before(from) || e.CreatedAt.After(to) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteExpense(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("DeleteExpense"); err != nil {
		return err
	}
	for i, e := range s.expenses {
		if e.ID == id {
			s.expenses = append(s.expenses[:i], s.expenses[i+1:]...)
			return nil
		}
	}
	return &core.NotFoundError{Kind: "expense record", ID: strconv.FormatInt(id, 10)}
}

func (s *Store) ListBudgets(_ context.Context) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListBudgets"); err != nil {
		return nil, err
	}
	return append([]core.Budget(nil), s.budgets...), nil
}

func (s *Store) UpsertBudgets(_ context.Context, budgets []core.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpsertBudgets"); err != nil {
		return err
	}
next:
	for _, b := range budgets {
		for i := range s.budgets {
			if s.budgets[i].Category == b.Category {
				s.budgets[i].Amount = b.Amount
				continue next
			}
		}
		s.budgets = append(s.budgets, b)
	}
	return nil
}

func (s *Store) ListPrizes(_ context.Context) ([]core.GachaPrize, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListPrizes"); err != nil {
		return nil, err
	}
	return append([]core.GachaPrize(nil), s.prizes...), nil
}

func (s *Store) GrantItem(_ context.Context, item core.InventoryItem) (core.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GrantItem"); err != nil {
		return core.InventoryItem{}, err
	}
	s.nextItem++
	item.ID = s.nextItem
	item.Prize = nil
	s.items = append(s.items, item)
	return item, nil
}

func (s *Store) ListUnusedItems(_ context.Context) ([]core.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListUnusedItems"); err != nil {
		return nil, err
	}
	var out []core.InventoryItem
	for _, it := range s.items {
		if it.IsUsed {
			continue
		}
		for _, p := range s.prizes {
			if p.ID == it.PrizeID {
				p := p
				it.Prize = &p
				break
			}
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) MarkItemUsed(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("MarkItemUsed"); err != nil {
		return err
	}
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if s.items[i].IsUsed {
			return core.ErrAlreadyUsed
		}
		used := at
		s.items[i].IsUsed = true
		s.items[i].UsedAt = &used
		return nil
	}
	return &core.NotFoundError{Kind: "inventory item", ID: strconv.FormatInt(id, 10)}
}

func (s *Store) ListMasterCategories(_ context.Context) ([]core.MasterCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListMasterCategories"); err != nil {
		return nil, err
	}
	out := make([]core.MasterCategory, len(s.cats))
	for i, c := range s.cats {
		c.Tasks = append([]core.MasterTask(nil), c.Tasks...)
		out[i] = c
	}
	return out, nil
}

func (s *Store) ListAssignees(_ context.Context) ([]core.Assignee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListAssignees"); err != nil {
		return nil, err
	}
	return append([]core.Assignee(nil), s.assignees...), nil
}

func (s *Store) CreateAttempt(_ context.Context, a core.DrawAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CreateAttempt"); err != nil {
		return err
	}
	if a.RequestID != "" {
		for _, existing := range s.attempts {
			if existing.RequestID == a.RequestID {
				return fmt.Errorf("insert draw attempt %s: %w", a.ID, core.ErrDuplicateRequestID)
			}
		}
	}
	s.attempts[a.ID] = a
	return nil
}

func (s *Store) TransitionAttempt(_ context.Context, id string, from, to core.DrawState, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("TransitionAttempt"); err != nil {
		return false, err
	}
	a, ok := s.attempts[id]
	if !ok {
		return false, &core.NotFoundError{Kind: "draw attempt", ID: id}
	}
	if a.State != from {
		return false, nil
	}
	a.State, a.UpdatedAt = to, at
	s.attempts[id] = a
	return true, nil
}

func (s *Store) UpdateAttempt(_ context.Context, a core.DrawAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpdateAttempt"); err != nil {
		return err
	}
	if _, ok := s.attempts[a.ID]; !ok {
		return &core.NotFoundError{Kind: "draw attempt", ID: a.ID}
	}
	s.attempts[a.ID] = a
	return nil
}

func (s *Store) GetAttempt(_ context.Context, id string) (core.DrawAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return core.DrawAttempt{}, &core.NotFoundError{Kind: "draw attempt", ID: id}
	}
	return a, nil
}

func (s *Store) FindAttemptByRequestID(_ context.Context, requestID string) (core.DrawAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if requestID != "" && a.RequestID == requestID {
			return a, nil
		}
	}
	return core.DrawAttempt{}, &core.NotFoundError{Kind: "draw attempt", ID: requestID}
}

func (s *Store) ListAttemptsByState(_ context.Context, state core.DrawState, limit int) ([]core.DrawAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListAttemptsByState"); err != nil {
		return nil, err
	}
	var out []core.DrawAttempt
	for _, a := range s.attempts {
		if state == "" || a.State == state {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure("Ping")
}

func (s *Store) Close() error { return nil }

func dedupeAssignees(in []core.Assignee) []core.Assignee {
	seen := map[string]struct{}{}
	out := make([]core.Assignee, 0, len(in))
	for _, a := range in {
		if _, ok := seen[a.Key]; ok || a.Key == "" {
			continue
		}
		seen[a.Key] = struct{}{}
		out = append(out, a)
	}
	return out
}
