package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kakeibo/internal/core"
)

// EventType names a ledger event. It is also set as the AMQP message type.
type EventType string

const (
	EventChoreRecorded   EventType = "chore.recorded"
	EventChoreDeleted    EventType = "chore.deleted"
	EventExpenseRecorded EventType = "expense.recorded"
	EventExpenseDeleted  EventType = "expense.deleted"
	EventDrawCompleted   EventType = "gacha.draw_completed"
	EventDrawFailed      EventType = "gacha.draw_failed"
	EventRewardUsed      EventType = "gacha.reward_used"
)

// Event is the envelope for everything published on the ledger queue.
type Event struct {
	ID         string          `json:"id"`
	Type       EventType       `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type (
	ChoreRecordedPayload struct {
		Records []core.ChoreRecord `json:"records"`
		Tier    string             `json:"tier,omitempty"`
	}

	RecordDeletedPayload struct {
		ID int64 `json:"id"`
	}

	ExpenseRecordedPayload struct {
		Expense core.ExpenseRecord `json:"expense"`
	}

	DrawPayload struct {
		Attempt core.DrawAttempt `json:"attempt"`
		Prize   *core.GachaPrize `json:"prize,omitempty"`
	}

	RewardUsedPayload struct {
		InventoryID int64     `json:"inventory_id"`
		UsedAt      time.Time `json:"used_at"`
	}
)

// NewEvent wraps payload in an envelope with a fresh id.
func NewEvent(t EventType, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return &Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now(),
		Payload:    raw,
	}, nil
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON parses an envelope. An envelope without a type is rejected.
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.Type == "" {
		return nil, fmt.Errorf("event without type")
	}
	return &e, nil
}
