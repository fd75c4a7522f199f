//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"kakeibo/internal/core"
)

// Integration tests require a real spreadsheet shared with the service account.
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_MirrorRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	if spreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := New(ctx, Config{
		SpreadsheetID:   spreadsheetID,
		CredentialsJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		CredentialsFile: os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	budgets, err := c.ReadBudgets(ctx)
	if err != nil {
		t.Fatalf("ReadBudgets: %v", err)
	}
	t.Logf("budgets: %+v", budgets)

	id := time.Now().UnixNano()
	ref, err := c.AppendExpense(ctx, core.ExpenseRecord{
		ID:        id,
		CreatedAt: time.Now(),
		Category:  core.CategoryDailyGoods,
		Amount:    1,
	})
	if err != nil {
		t.Fatalf("AppendExpense: %v", err)
	}
	t.Logf("appended at %s", ref)

	if err := c.DeleteExpense(ctx, id); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
}
