// Package google mirrors the expense ledger into the household spreadsheet
// and reads the weekly budgets kept there.
//
// The 支出記録 sheet holds one row per expense: timestamp, category, amount
// and the ledger id. The 設定 sheet holds the food and daily-goods budgets
// in A2:B3.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"kakeibo/internal/core"
	"kakeibo/internal/log"
)

// Default sheet names of the household spreadsheet.
const (
	DefaultExpenseSheet = "支出記録"
	DefaultConfigSheet  = "設定"
)

// Config selects the spreadsheet and how to authenticate against it.
type Config struct {
	SpreadsheetID   string
	ExpenseSheet    string
	ConfigSheet     string
	CredentialsJSON string
	CredentialsFile string

	// Options are appended to the client options; tests point the client
	// at a local server with them.
	Options []goption.ClientOption
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	expenseSheet  string
	configSheet   string
	logger        *log.Logger

	// sheet id of the expense sheet, resolved once per TTL for row deletes
	mu                 sync.Mutex
	cachedSheetID      int64
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	opts := cfg.Options
	if len(opts) == 0 {
		credentialsJSON, err := loadCredentials(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	logger.InfoContext(ctx, "Google Sheets service created successfully",
		"expense_sheet", orDefault(cfg.ExpenseSheet, DefaultExpenseSheet),
		"config_sheet", orDefault(cfg.ConfigSheet, DefaultConfigSheet))

	return &Client{
		svc:                svc,
		spreadsheetID:      strings.TrimSpace(cfg.SpreadsheetID),
		expenseSheet:       orDefault(cfg.ExpenseSheet, DefaultExpenseSheet),
		configSheet:        orDefault(cfg.ConfigSheet, DefaultConfigSheet),
		logger:             logger,
		cacheValidDuration: 10 * time.Minute,
	}, nil
}

// loadCredentials reads the service account key from inline JSON, a key
// file, or GOOGLE_APPLICATION_CREDENTIALS, in that order.
func loadCredentials(ctx context.Context, cfg Config, logger *log.Logger) ([]byte, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		logger.DebugContext(ctx, "Using inline JSON credentials")
		return []byte(inline), nil
	case file != "":
		logger.DebugContext(ctx, "Reading credentials from file", "path", file)
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

// AppendExpense adds the expense as a new row and returns the updated range.
func (c *Client) AppendExpense(ctx context.Context, e core.ExpenseRecord) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:D", c.expenseSheet)
	vr := &gsheet.ValueRange{Values: [][]any{expenseRow(e)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.expenseSheet, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}

// DeleteExpense removes the row carrying the ledger id. A row that is not
// there is treated as already deleted.
func (c *Client) DeleteExpense(ctx context.Context, id int64) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:D", c.expenseSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	row, ok := findExpenseRow(resp.Values, id)
	if !ok {
		c.logger.WarnContext(ctx, "Expense row not found in sheet, nothing to delete", log.FieldRecordID, id)
		return nil
	}

	sheetID, err := c.sheetID(ctx)
	if err != nil {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteDimension: &gsheet.DeleteDimensionRequest{Range: &gsheet.DimensionRange{
			SheetId:    sheetID,
			Dimension:  "ROWS",
			StartIndex: int64(row),
			EndIndex:   int64(row + 1),
		}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		// the sheet may have been recreated under a new id
		c.InvalidateSheetID()
		return fmt.Errorf("delete row %d of %s: %w", row+1, c.expenseSheet, err)
	}
	c.logger.InfoContext(ctx, "Deleted expense row", log.FieldRecordID, id, log.FieldSheetsRowRef, row+1)
	return nil
}

// ReadBudgets reads the weekly budgets from the config sheet.
func (c *Client) ReadBudgets(ctx context.Context) ([]core.Budget, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A2:B3", c.configSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseBudgets(resp.Values)
}

// InvalidateSheetID forgets the cached sheet id, e.g. after a rename.
func (c *Client) InvalidateSheetID() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheExpiresAt = time.Time{}
}

func (c *Client) sheetID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	if time.Now().Before(c.cacheExpiresAt) {
		id := c.cachedSheetID
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == c.expenseSheet {
			c.mu.Lock()
			c.cachedSheetID = s.Properties.SheetId
			c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
			c.mu.Unlock()
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", c.expenseSheet)
}
