package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"kakeibo/internal/amqp"
	"kakeibo/internal/core"
	"kakeibo/internal/storage/memory"
)

type fakeMirror struct {
	mu        sync.Mutex
	appended  []core.ExpenseRecord
	deleted   []int64
	appendErr error
	deleteErr error
	budgets   []core.Budget
	readErr   error
	reads     int
}

func (f *fakeMirror) AppendExpense(_ context.Context, e core.ExpenseRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return "", f.appendErr
	}
	f.appended = append(f.appended, e)
	return "支出記録!A2:D2", nil
}

func (f *fakeMirror) DeleteExpense(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeMirror) ReadBudgets(context.Context) ([]core.Budget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.budgets, f.readErr
}

func (f *fakeMirror) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func mustEvent(t *testing.T, typ amqp.EventType, payload any) *amqp.Event {
	t.Helper()
	ev, err := amqp.NewEvent(typ, payload)
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestMirrorWorker_HandleEvent(t *testing.T) {
	expense := core.ExpenseRecord{ID: 9, CreatedAt: time.Date(2025, 10, 16, 12, 0, 0, 0, time.UTC), Category: "食費", Amount: 700}

	tests := []struct {
		name          string
		event         *amqp.Event
		mirror        *fakeMirror
		wantErr       bool
		wantPermanent bool
		wantAppended  int
		wantDeleted   []int64
	}{
		{
			name:         "expense recorded",
			event:        mustEvent(t, amqp.EventExpenseRecorded, amqp.ExpenseRecordedPayload{Expense: expense}),
			mirror:       &fakeMirror{},
			wantAppended: 1,
		},
		{
			name:        "expense deleted",
			event:       mustEvent(t, amqp.EventExpenseDeleted, amqp.RecordDeletedPayload{ID: 9}),
			mirror:      &fakeMirror{},
			wantDeleted: []int64{9},
		},
		{
			name:   "chore events are acknowledged",
			event:  mustEvent(t, amqp.EventChoreRecorded, amqp.ChoreRecordedPayload{}),
			mirror: &fakeMirror{},
		},
		{
			name:   "draw events are acknowledged",
			event:  mustEvent(t, amqp.EventDrawCompleted, amqp.DrawPayload{}),
			mirror: &fakeMirror{},
		},
		{
			name:    "mirror failure is retried",
			event:   mustEvent(t, amqp.EventExpenseRecorded, amqp.ExpenseRecordedPayload{Expense: expense}),
			mirror:  &fakeMirror{appendErr: errors.New("quota")},
			wantErr: true,
		},
		{
			name:    "delete failure is retried",
			event:   mustEvent(t, amqp.EventExpenseDeleted, amqp.RecordDeletedPayload{ID: 9}),
			mirror:  &fakeMirror{deleteErr: errors.New("quota")},
			wantErr: true,
		},
		{
			name:          "invalid expense is dropped",
			event:         mustEvent(t, amqp.EventExpenseRecorded, amqp.ExpenseRecordedPayload{Expense: core.ExpenseRecord{ID: 1, Category: "食費"}}),
			mirror:        &fakeMirror{},
			wantErr:       true,
			wantPermanent: true,
		},
		{
			name:          "delete without id is dropped",
			event:         mustEvent(t, amqp.EventExpenseDeleted, amqp.RecordDeletedPayload{}),
			mirror:        &fakeMirror{},
			wantErr:       true,
			wantPermanent: true,
		},
		{
			name:          "malformed payload is dropped",
			event:         &amqp.Event{ID: "x", Type: amqp.EventExpenseRecorded, Payload: []byte(`"nope"`)},
			mirror:        &fakeMirror{},
			wantErr:       true,
			wantPermanent: true,
		},
		{
			name:          "unknown type is dropped",
			event:         &amqp.Event{ID: "x", Type: "pet.fed", Payload: []byte(`{}`)},
			mirror:        &fakeMirror{},
			wantErr:       true,
			wantPermanent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewMirrorWorker(tt.mirror, nil, nil, nil, nil)
			err := w.HandleEvent(context.Background(), tt.event)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if amqp.IsPermanent(err) != tt.wantPermanent {
				t.Errorf("IsPermanent = %v, want %v", amqp.IsPermanent(err), tt.wantPermanent)
			}
			if len(tt.mirror.appended) != tt.wantAppended {
				t.Errorf("appended %d, want %d", len(tt.mirror.appended), tt.wantAppended)
			}
			if diff := cmp.Diff(tt.wantDeleted, tt.mirror.deleted); diff != "" {
				t.Errorf("deleted mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMirrorWorker_AppendedExpenseMatchesEvent(t *testing.T) {
	m := &fakeMirror{}
	w := NewMirrorWorker(m, nil, nil, nil, nil)
	e := core.ExpenseRecord{ID: 3, CreatedAt: time.Date(2025, 10, 4, 9, 0, 0, 0, time.UTC), Category: "日用品", Amount: 450}

	if err := w.HandleEvent(context.Background(), mustEvent(t, amqp.EventExpenseRecorded, amqp.ExpenseRecordedPayload{Expense: e})); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]core.ExpenseRecord{e}, m.appended); diff != "" {
		t.Errorf("appended mismatch (-want +got):\n%s", diff)
	}
}

func TestMirrorWorker_RefreshBudgets(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	src := &fakeMirror{budgets: []core.Budget{{Category: "食費", Amount: 20000}, {Category: "日用品", Amount: 4000}}}
	w := NewMirrorWorker(src, src, store, nil, nil)

	if err := w.RefreshBudgets(ctx); err != nil {
		t.Fatalf("RefreshBudgets: %v", err)
	}
	got, err := store.ListBudgets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(src.budgets, got); diff != "" {
		t.Errorf("budgets mismatch (-want +got):\n%s", diff)
	}

	// an empty sheet keeps what is stored
	src.budgets = nil
	if err := w.RefreshBudgets(ctx); err != nil {
		t.Fatal(err)
	}
	if got, _ := store.ListBudgets(ctx); len(got) != 2 {
		t.Errorf("budgets = %+v", got)
	}

	src.readErr = errors.New("offline")
	if err := w.RefreshBudgets(ctx); err == nil {
		t.Error("expected read error")
	}

	src.readErr = nil
	src.budgets = []core.Budget{{Category: "食費", Amount: 1}}
	store.FailOn("UpsertBudgets", errors.New("locked"))
	if err := w.RefreshBudgets(ctx); err == nil {
		t.Error("expected store error")
	}
}

func TestMirrorWorker_RefreshWithoutSource(t *testing.T) {
	w := NewMirrorWorker(&fakeMirror{}, nil, nil, nil, nil)
	if err := w.RefreshBudgets(context.Background()); err != nil {
		t.Fatalf("RefreshBudgets: %v", err)
	}
}

func TestMirrorWorker_RunBudgetRefresh(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := &fakeMirror{budgets: []core.Budget{{Category: "食費", Amount: 15000}}}
	w := NewMirrorWorker(src, src, memory.New(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.RunBudgetRefresh(ctx, 5*time.Millisecond)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for src.readCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("budget refresh did not tick")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
}
