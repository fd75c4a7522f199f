package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"kakeibo/internal/cache"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/ports"
	"kakeibo/internal/scoring"
)

const (
	msgMasterFetchFailed = "マスターデータの取得に失敗しました"
	masterKey            = "master"
)

// MasterService serves the static chore taxonomy and assignee list from a
// short-lived cache.
type MasterService struct {
	store      ports.MasterReader
	salt       string
	categories *cache.LRUCache[[]core.MasterCategory]
	assignees  *cache.LRUCache[[]core.Assignee]
	opts       Options
}

func NewMasterService(store ports.MasterReader, salt string, ttl time.Duration, opts Options) *MasterService {
	return &MasterService{
		store:      store,
		salt:       salt,
		categories: cache.NewLRUCache[[]core.MasterCategory](1, ttl),
		assignees:  cache.NewLRUCache[[]core.Assignee](1, ttl),
		opts:       opts.resolve(log.ComponentMaster),
	}
}

// Caches exposes the caches for registration with a cache.Manager.
func (s *MasterService) Caches() []cache.Cleaner {
	return []cache.Cleaner{s.categories, s.assignees}
}

// Categories returns every category with its tasks in display order.
func (s *MasterService) Categories(ctx context.Context) ([]core.MasterCategory, error) {
	cats, err := s.categories.GetOrLoad(masterKey, func() ([]core.MasterCategory, error) {
		return s.store.ListMasterCategories(ctx)
	})
	if err != nil {
		s.opts.Logger.ErrorContext(ctx, "Failed to load master categories", log.FieldError, err)
		return nil, &core.DependencyError{Op: "load master categories", Message: msgMasterFetchFailed, Err: err}
	}
	return cats, nil
}

// Assignees returns the household members in display order.
func (s *MasterService) Assignees(ctx context.Context) ([]core.Assignee, error) {
	members, err := s.assignees.GetOrLoad(masterKey, func() ([]core.Assignee, error) {
		return s.store.ListAssignees(ctx)
	})
	if err != nil {
		s.opts.Logger.ErrorContext(ctx, "Failed to load assignees", log.FieldError, err)
		return nil, &core.DependencyError{Op: "load assignees", Message: msgMasterFetchFailed, Err: err}
	}
	return members, nil
}

// Directory builds an assignee directory from the cached member list.
func (s *MasterService) Directory(ctx context.Context) (*core.AssigneeDirectory, error) {
	members, err := s.Assignees(ctx)
	if err != nil {
		return nil, err
	}
	return core.NewAssigneeDirectory(members), nil
}

// Snapshot is the full master view served at startup of a client.
type Snapshot struct {
	Categories []core.MasterCategory `json:"categories"`
	Assignees  []core.Assignee       `json:"assignees"`
}

// Snapshot loads categories and assignees concurrently.
func (s *MasterService) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cats, err := s.Categories(gctx)
		snap.Categories = cats
		return err
	})
	g.Go(func() error {
		members, err := s.Assignees(gctx)
		snap.Assignees = members
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// BubbleTasks returns the tasks eligible for the daily bonus.
func (s *MasterService) BubbleTasks(ctx context.Context) ([]core.MasterTask, error) {
	cats, err := s.Categories(ctx)
	if err != nil {
		return nil, err
	}
	var out []core.MasterTask
	for _, c := range cats {
		for _, t := range c.Tasks {
			if t.Bubble {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

// DailyBonusView is the bonus task for a day with its display details.
type DailyBonusView struct {
	scoring.DailyBonus
	TaskName   string  `json:"task_name"`
	CategoryID string  `json:"category_id"`
	Score      float64 `json:"score"`
}

// DailyBonus picks the bonus task for date. ok is false when no task is
// bubble-eligible.
func (s *MasterService) DailyBonus(ctx context.Context, date time.Time) (view DailyBonusView, ok bool, err error) {
	tasks, err := s.BubbleTasks(ctx)
	if err != nil {
		return DailyBonusView{}, false, err
	}

	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	bonus, ok := scoring.PickDailyBonus(ids, date, s.salt)
	if !ok {
		return DailyBonusView{}, false, nil
	}

	view = DailyBonusView{DailyBonus: bonus}
	for _, t := range tasks {
		if t.ID == bonus.TaskID {
			view.TaskName = t.Name
			view.CategoryID = t.CategoryID
			view.Score = t.Score
			break
		}
	}
	return view, true, nil
}
