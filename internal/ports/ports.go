package ports

import (
	"context"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/seed"
)

// Ports for the storage collaborators. Every implementation must be safe
// for concurrent use; none of them offers a cross-call transaction.
type (
	ChoreLedger interface {
		// InsertChores writes every record or none and returns them with ids set.
		InsertChores(ctx context.Context, records []core.ChoreRecord) ([]core.ChoreRecord, error)
		// ListRecentChores returns at most limit records, newest first.
		ListRecentChores(ctx context.Context, limit int) ([]core.ChoreRecord, error)
		// ListAllChores returns the whole ledger for balance scans.
		ListAllChores(ctx context.Context) ([]core.ChoreRecord, error)
		DeleteChore(ctx context.Context, id int64) error
	}

	ExpenseLedger interface {
		InsertExpense(ctx context.Context, e core.ExpenseRecord) (core.ExpenseRecord, error)
		// ListExpenses returns records with from <= created_at <= to, oldest first.
		ListExpenses(ctx context.Context, from, to time.Time) ([]core.ExpenseRecord, error)
		DeleteExpense(ctx context.Context, id int64) error
	}

	BudgetReader interface {
		ListBudgets(ctx context.Context) ([]core.Budget, error)
	}

	// BudgetWriter replaces budget amounts per category.
	BudgetWriter interface {
		UpsertBudgets(ctx context.Context, budgets []core.Budget) error
	}

	PrizeCatalog interface {
		// ListPrizes returns the catalog in draw order.
		ListPrizes(ctx context.Context) ([]core.GachaPrize, error)
	}

	Inventory interface {
		GrantItem(ctx context.Context, item core.InventoryItem) (core.InventoryItem, error)
		// ListUnusedItems returns unused items joined with their prize, newest first.
		ListUnusedItems(ctx context.Context) ([]core.InventoryItem, error)
		MarkItemUsed(ctx context.Context, id int64, at time.Time) error
	}

	MasterReader interface {
		// ListMasterCategories returns categories with nested tasks, both in display order.
		ListMasterCategories(ctx context.Context) ([]core.MasterCategory, error)
		ListAssignees(ctx context.Context) ([]core.Assignee, error)
	}

	DrawAttempts interface {
		CreateAttempt(ctx context.Context, a core.DrawAttempt) error
		UpdateAttempt(ctx context.Context, a core.DrawAttempt) error
		// TransitionAttempt moves the attempt from one state to another only if
		// it is still in from. It reports false when another caller got there
		// first.
		TransitionAttempt(ctx context.Context, id string, from, to core.DrawState, at time.Time) (bool, error)
		GetAttempt(ctx context.Context, id string) (core.DrawAttempt, error)
		// FindAttemptByRequestID returns a NotFoundError when no attempt carries the id.
		FindAttemptByRequestID(ctx context.Context, requestID string) (core.DrawAttempt, error)
		// ListAttemptsByState returns up to limit attempts, oldest first. An empty
		// state lists every attempt.
		ListAttemptsByState(ctx context.Context, state core.DrawState, limit int) ([]core.DrawAttempt, error)
	}

	Seeder interface {
		// Seed loads the static catalog. Ledger rows are untouched.
		Seed(ctx context.Context, c *seed.Catalog) error
		// Seeded reports whether a catalog was ever loaded.
		Seeded(ctx context.Context) (bool, error)
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}

	// Store is everything a backend provides.
	Store interface {
		ChoreLedger
		ExpenseLedger
		BudgetReader
		BudgetWriter
		PrizeCatalog
		Inventory
		MasterReader
		DrawAttempts
		Seeder
		Pinger
		Close() error
	}
)
