package core

import "time"

// DrawState is a step of the gacha draw saga.
type DrawState string

const (
	DrawStarted            DrawState = "started"
	DrawCatalogFetched     DrawState = "catalog_fetched"
	DrawDeducted           DrawState = "deducted"
	DrawGranting           DrawState = "granting"
	DrawGranted            DrawState = "granted"
	DrawCatalogFetchFailed DrawState = "catalog_fetch_failed"
	DrawDeductionFailed    DrawState = "deduction_failed"
	DrawGrantFailed        DrawState = "grant_failed"
	DrawGrantAbandoned     DrawState = "grant_abandoned"
)

// Terminal reports whether no further step will run for the state.
// GrantFailed is terminal unless grant recovery picks it up. Granting
// marks a retried grant that some caller has claimed.
func (s DrawState) Terminal() bool {
	switch s {
	case DrawGranted, DrawCatalogFetchFailed, DrawDeductionFailed, DrawGrantFailed, DrawGrantAbandoned:
		return true
	}
	return false
}

// Failed reports whether the state is a failure state.
func (s DrawState) Failed() bool {
	switch s {
	case DrawCatalogFetchFailed, DrawDeductionFailed, DrawGrantFailed, DrawGrantAbandoned:
		return true
	}
	return false
}

// DrawAttempt is the persisted record of one draw.
type DrawAttempt struct {
	ID              string    `json:"id"`
	RequestID       string    `json:"request_id,omitempty"`
	Assignee        string    `json:"assignee"`
	State           DrawState `json:"state"`
	Cost            int       `json:"cost"`
	PrizeID         int64     `json:"prize_id,omitempty"`
	ChoreRecordID   int64     `json:"chore_record_id,omitempty"`
	InventoryItemID int64     `json:"inventory_item_id,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	Retries         int       `json:"retries"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
