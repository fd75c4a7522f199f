package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/seed"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

// DSN adds the pragmas every connection needs to a database path.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

// InsertChores writes all records in one transaction; if any row fails,
// none are kept.
func (r *SQLiteRepository) InsertChores(ctx context.Context, records []core.ChoreRecord) ([]core.ChoreRecord, error) {
	out := make([]core.ChoreRecord, 0, len(records))
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range records {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO chore_records (created_at, category, task, score, multiplier, note, assignee)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				toMillis(rec.CreatedAt), rec.Category, rec.Task, rec.Score, rec.Multiplier, rec.Note, rec.Assignee)
			if err != nil {
				return fmt.Errorf("insert chore record: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("read chore record id: %w", err)
			}
			rec.ID = id
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "Chore records saved to SQLite", "count", len(out))
	return out, nil
}

const choreColumns = `id, created_at, category, task, score, multiplier, note, assignee`

func scanChores(rows *sql.Rows) ([]core.ChoreRecord, error) {
	defer rows.Close()
	var out []core.ChoreRecord
	for rows.Next() {
		var c core.ChoreRecord
		var created int64
		if err := rows.Scan(&c.ID, &created, &c.Category, &c.Task, &c.Score, &c.Multiplier, &c.Note, &c.Assignee); err != nil {
			return nil, err
		}
		c.CreatedAt = fromMillis(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListRecentChores(ctx context.Context, limit int) ([]core.ChoreRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+choreColumns+` FROM chore_records ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent chores: %w", err)
	}
	out, err := scanChores(rows)
	if err != nil {
		return nil, fmt.Errorf("scan chore records: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) ListAllChores(ctx context.Context) ([]core.ChoreRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+choreColumns+` FROM chore_records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list chores: %w", err)
	}
	out, err := scanChores(rows)
	if err != nil {
		return nil, fmt.Errorf("scan chore records: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteChore(ctx context.Context, id int64) error {
	return r.deleteByID(ctx, "chore_records", "chore record", id)
}

func (r *SQLiteRepository) deleteByID(ctx context.Context, table, kind string, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	if n == 0 {
		return &core.NotFoundError{Kind: kind, ID: strconv.FormatInt(id, 10)}
	}
	return nil
}

func (r *SQLiteRepository) InsertExpense(ctx context.Context, e core.ExpenseRecord) (core.ExpenseRecord, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expense_records (created_at, category, amount) VALUES (?, ?, ?)`,
		toMillis(e.CreatedAt), e.Category, e.Amount)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("insert expense record: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("read expense record id: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite", "id", e.ID, "category", e.Category, "amount", e.Amount)
	return e, nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, from, to time.Time) ([]core.ExpenseRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at, category, amount FROM expense_records
		 WHERE created_at >= ? AND created_at <= ?
		 ORDER BY created_at, id`, toMillis(from), toMillis(to))
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.ExpenseRecord
	for rows.Next() {
		var e core.ExpenseRecord
		var created int64
		if err := rows.Scan(&e.ID, &created, &e.Category, &e.Amount); err != nil {
			return nil, fmt.Errorf("scan expense record: %w", err)
		}
		e.CreatedAt = fromMillis(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id int64) error {
	return r.deleteByID(ctx, "expense_records", "expense record", id)
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT category, amount FROM expense_budgets ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var b core.Budget
		if err := rows.Scan(&b.Category, &b.Amount); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpsertBudgets(ctx context.Context, budgets []core.Budget) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		return upsertBudgets(ctx, tx, budgets)
	})
}

func upsertBudgets(ctx context.Context, tx *sql.Tx, budgets []core.Budget) error {
	for _, b := range budgets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO expense_budgets (category, amount) VALUES (?, ?)
			 ON CONFLICT(category) DO UPDATE SET amount = excluded.amount`,
			b.Category, b.Amount); err != nil {
			return fmt.Errorf("upsert budget %s: %w", b.Category, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) ListPrizes(ctx context.Context) ([]core.GachaPrize, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, rarity, description, probability FROM gacha_prizes WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list gacha prizes: %w", err)
	}
	defer rows.Close()

	var out []core.GachaPrize
	for rows.Next() {
		var p core.GachaPrize
		if err := rows.Scan(&p.ID, &p.Name, &p.Rarity, &p.Description, &p.Probability); err != nil {
			return nil, fmt.Errorf("scan gacha prize: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GrantItem(ctx context.Context, item core.InventoryItem) (core.InventoryItem, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO inventory_items (assignee, prize_id, is_used, created_at) VALUES (?, ?, 0, ?)`,
		item.Assignee, item.PrizeID, toMillis(item.CreatedAt))
	if err != nil {
		return core.InventoryItem{}, fmt.Errorf("insert inventory item: %w", err)
	}
	if item.ID, err = res.LastInsertId(); err != nil {
		return core.InventoryItem{}, fmt.Errorf("read inventory item id: %w", err)
	}
	item.IsUsed = false
	item.UsedAt = nil
	item.Prize = nil
	return item, nil
}

func (r *SQLiteRepository) ListUnusedItems(ctx context.Context) ([]core.InventoryItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT i.id, i.assignee, i.prize_id, i.created_at,
		        p.name, p.rarity, p.description, p.probability
		 FROM inventory_items i
		 JOIN gacha_prizes p ON p.id = i.prize_id
		 WHERE i.is_used = 0
		 ORDER BY i.created_at DESC, i.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	var out []core.InventoryItem
	for rows.Next() {
		var it core.InventoryItem
		var p core.GachaPrize
		var created int64
		if err := rows.Scan(&it.ID, &it.Assignee, &it.PrizeID, &created,
			&p.Name, &p.Rarity, &p.Description, &p.Probability); err != nil {
			return nil, fmt.Errorf("scan inventory item: %w", err)
		}
		p.ID = it.PrizeID
		it.CreatedAt = fromMillis(created)
		it.Prize = &p
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MarkItemUsed(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE inventory_items SET is_used = 1, used_at = ? WHERE id = ? AND is_used = 0`,
		toMillis(at), id)
	if err != nil {
		return fmt.Errorf("mark inventory item used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark inventory item used: %w", err)
	}
	if n > 0 {
		return nil
	}

	var used bool
	err = r.db.QueryRowContext(ctx, `SELECT is_used FROM inventory_items WHERE id = ?`, id).Scan(&used)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &core.NotFoundError{Kind: "inventory item", ID: strconv.FormatInt(id, 10)}
	case err != nil:
		return fmt.Errorf("read inventory item: %w", err)
	default:
		return core.ErrAlreadyUsed
	}
}

func (r *SQLiteRepository) ListMasterCategories(ctx context.Context) ([]core.MasterCategory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, display_order FROM master_categories ORDER BY display_order, id`)
	if err != nil {
		return nil, fmt.Errorf("list master categories: %w", err)
	}
	var cats []core.MasterCategory
	index := map[string]int{}
	for rows.Next() {
		var c core.MasterCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.DisplayOrder); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan master category: %w", err)
		}
		index[c.ID] = len(cats)
		c.Tasks = []core.MasterTask{}
		cats = append(cats, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list master categories: %w", err)
	}

	rows, err = r.db.QueryContext(ctx,
		`SELECT id, category_id, name, score, repeatable, bubble, display_order
		 FROM master_tasks ORDER BY display_order, id`)
	if err != nil {
		return nil, fmt.Errorf("list master tasks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t core.MasterTask
		if err := rows.Scan(&t.ID, &t.CategoryID, &t.Name, &t.Score, &t.Repeatable, &t.Bubble, &t.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan master task: %w", err)
		}
		if i, ok := index[t.CategoryID]; ok {
			cats[i].Tasks = append(cats[i].Tasks, t)
		}
	}
	return cats, rows.Err()
}

func (r *SQLiteRepository) ListAssignees(ctx context.Context) ([]core.Assignee, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key, display_name, display_order FROM assignees ORDER BY display_order, key`)
	if err != nil {
		return nil, fmt.Errorf("list assignees: %w", err)
	}
	defer rows.Close()

	var out []core.Assignee
	for rows.Next() {
		var a core.Assignee
		if err := rows.Scan(&a.Key, &a.DisplayName, &a.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan assignee: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *SQLiteRepository) CreateAttempt(ctx context.Context, a core.DrawAttempt) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO draw_attempts (id, request_id, assignee, state, cost, prize_id, chore_record_id,
		                            inventory_item_id, last_error, retries, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, nullString(a.RequestID), a.Assignee, string(a.State), a.Cost, a.PrizeID, a.ChoreRecordID,
		a.InventoryItemID, a.LastError, a.Retries, toMillis(a.CreatedAt), toMillis(a.UpdatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: draw_attempts.request_id") {
			return fmt.Errorf("insert draw attempt: %w", core.ErrDuplicateRequestID)
		}
		return fmt.Errorf("insert draw attempt: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) TransitionAttempt(ctx context.Context, id string, from, to core.DrawState, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE draw_attempts SET state = ?, updated_at = ? WHERE id = ? AND state = ?`,
		string(to), toMillis(at), id, string(from))
	if err != nil {
		return false, fmt.Errorf("transition draw attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition draw attempt: %w", err)
	}
	if n == 0 {
		if _, err := r.GetAttempt(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *SQLiteRepository) UpdateAttempt(ctx context.Context, a core.DrawAttempt) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE draw_attempts
		 SET state = ?, prize_id = ?, chore_record_id = ?, inventory_item_id = ?,
		     last_error = ?, retries = ?, updated_at = ?
		 WHERE id = ?`,
		string(a.State), a.PrizeID, a.ChoreRecordID, a.InventoryItemID,
		a.LastError, a.Retries, toMillis(a.UpdatedAt), a.ID)
	if err != nil {
		return fmt.Errorf("update draw attempt: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &core.NotFoundError{Kind: "draw attempt", ID: a.ID}
	}
	return nil
}

const attemptColumns = `id, request_id, assignee, state, cost, prize_id, chore_record_id,
	inventory_item_id, last_error, retries, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(s rowScanner) (core.DrawAttempt, error) {
	var a core.DrawAttempt
	var reqID sql.NullString
	var state string
	var created, updated int64
	err := s.Scan(&a.ID, &reqID, &a.Assignee, &state, &a.Cost, &a.PrizeID, &a.ChoreRecordID,
		&a.InventoryItemID, &a.LastError, &a.Retries, &created, &updated)
	if err != nil {
		return core.DrawAttempt{}, err
	}
	a.RequestID = reqID.String
	a.State = core.DrawState(state)
	a.CreatedAt = fromMillis(created)
	a.UpdatedAt = fromMillis(updated)
	return a, nil
}

func (r *SQLiteRepository) getAttempt(ctx context.Context, column, value string) (core.DrawAttempt, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM draw_attempts WHERE `+column+` = ?`, value)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DrawAttempt{}, &core.NotFoundError{Kind: "draw attempt", ID: value}
	}
	if err != nil {
		return core.DrawAttempt{}, fmt.Errorf("get draw attempt: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepository) GetAttempt(ctx context.Context, id string) (core.DrawAttempt, error) {
	return r.getAttempt(ctx, "id", id)
}

func (r *SQLiteRepository) FindAttemptByRequestID(ctx context.Context, requestID string) (core.DrawAttempt, error) {
	if strings.TrimSpace(requestID) == "" {
		return core.DrawAttempt{}, &core.NotFoundError{Kind: "draw attempt", ID: requestID}
	}
	return r.getAttempt(ctx, "request_id", requestID)
}

func (r *SQLiteRepository) ListAttemptsByState(ctx context.Context, state core.DrawState, limit int) ([]core.DrawAttempt, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM draw_attempts
		 WHERE (? = '' OR state = ?)
		 ORDER BY created_at, id LIMIT ?`, string(state), string(state), limit)
	if err != nil {
		return nil, fmt.Errorf("list draw attempts: %w", err)
	}
	defer rows.Close()

	var out []core.DrawAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan draw attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Seed loads the catalog in one transaction. The master taxonomy is
// replaced. Prizes are upserted by their catalog id so inventory references
// stay valid; prizes missing from the catalog are deactivated rather than
// removed.
func (r *SQLiteRepository) Seed(ctx context.Context, c *seed.Catalog) error {
	if c == nil {
		return nil
	}
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, a := range c.Assignees {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO assignees (key, display_name, display_order) VALUES (?, ?, ?)
				 ON CONFLICT(key) DO UPDATE SET display_name = excluded.display_name,
				                                display_order = excluded.display_order`,
				a.Key, a.DisplayName, a.DisplayOrder); err != nil {
				return fmt.Errorf("upsert assignee %s: %w", a.Key, err)
			}
		}

		if err := upsertBudgets(ctx, tx, c.DomainBudgets()); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM master_tasks`); err != nil {
			return fmt.Errorf("clear master tasks: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM master_categories`); err != nil {
			return fmt.Errorf("clear master categories: %w", err)
		}
		for _, cat := range c.MasterCategories() {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO master_categories (id, name, display_order) VALUES (?, ?, ?)`,
				cat.ID, cat.Name, cat.DisplayOrder); err != nil {
				return fmt.Errorf("insert master category %s: %w", cat.ID, err)
			}
			for _, t := range cat.Tasks {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO master_tasks (id, category_id, name, score, repeatable, bubble, display_order)
					 VALUES (?, ?, ?, ?, ?, ?, ?)`,
					t.ID, t.CategoryID, t.Name, t.Score, t.Repeatable, t.Bubble, t.DisplayOrder); err != nil {
					return fmt.Errorf("insert master task %s: %w", t.ID, err)
				}
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE gacha_prizes SET active = 0`); err != nil {
			return fmt.Errorf("deactivate gacha prizes: %w", err)
		}
		for _, p := range c.GachaPrizes() {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO gacha_prizes (id, name, rarity, description, probability, active)
				 VALUES (?, ?, ?, ?, ?, 1)
				 ON CONFLICT(id) DO UPDATE SET name = excluded.name, rarity = excluded.rarity,
				     description = excluded.description, probability = excluded.probability, active = 1`,
				p.ID, p.Name, p.Rarity, p.Description, p.Probability); err != nil {
				return fmt.Errorf("upsert gacha prize %s: %w", p.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Seed catalog applied",
		"assignees", len(c.Assignees),
		"categories", len(c.Categories),
		"prizes", len(c.Prizes))
	return nil
}

func (r *SQLiteRepository) Seeded(ctx context.Context) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assignees`).Scan(&n); err != nil {
		return false, fmt.Errorf("count assignees: %w", err)
	}
	return n > 0, nil
}
