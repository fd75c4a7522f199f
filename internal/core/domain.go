package core

import (
	"strings"
	"time"
)

// Expense categories that are summed against a budget.
const (
	CategoryFood       = "食費"
	CategoryDailyGoods = "日用品"
)

// Ledger tagging for gacha point deductions.
const (
	GachaCategory = "ガチャ"
	GachaTask     = "ガチャ消費"
)

type (
	// ChoreRecord is one ledger row. Score is already split across assignees.
	ChoreRecord struct {
		ID         int64     `json:"id"`
		CreatedAt  time.Time `json:"created_at"`
		Category   string    `json:"category"`
		Task       string    `json:"task"`
		Score      float64   `json:"score"`
		Multiplier int       `json:"multiplier"`
		Note       string    `json:"note"`
		Assignee   string    `json:"assignee"`
	}

	// ChoreSubmission is a request to log one chore done by one or more people.
	ChoreSubmission struct {
		Category   string
		Task       string
		Note       string
		BaseScore  float64
		Assignees  []string
		CreatedAt  time.Time // zero means "now"
		Multiplier int       // caller-supplied multiplier, 0 means 1
	}

	ExpenseRecord struct {
		ID        int64     `json:"id"`
		CreatedAt time.Time `json:"created_at"`
		Category  string    `json:"category"`
		Amount    int64     `json:"amount"`
	}

	Budget struct {
		Category string `json:"category"`
		Amount   int64  `json:"amount"`
	}

	GachaPrize struct {
		ID          int64   `json:"id"`
		Name        string  `json:"name"`
		Rarity      string  `json:"rarity"`
		Description string  `json:"description"`
		Probability float64 `json:"probability"`
	}

	InventoryItem struct {
		ID        int64       `json:"id"`
		Assignee  string      `json:"assignee"`
		PrizeID   int64       `json:"prize_id"`
		IsUsed    bool        `json:"is_used"`
		CreatedAt time.Time   `json:"created_at"`
		UsedAt    *time.Time  `json:"used_at,omitempty"`
		Prize     *GachaPrize `json:"prize,omitempty"`
	}

	MasterCategory struct {
		ID           string       `json:"id"`
		Name         string       `json:"name"`
		DisplayOrder int          `json:"display_order"`
		Tasks        []MasterTask `json:"tasks"`
	}

	MasterTask struct {
		ID           string  `json:"id"`
		CategoryID   string  `json:"category_id"`
		Name         string  `json:"name"`
		Score        float64 `json:"score"`
		Repeatable   bool    `json:"repeatable"`
		Bubble       bool    `json:"bubble"`
		DisplayOrder int     `json:"display_order"`
	}
)

// Points is the record's contribution to its assignee's balance.
func (c ChoreRecord) Points() float64 {
	return c.Score * float64(c.Multiplier)
}

// Weight returns the prize's draw weight.
func (p GachaPrize) Weight() float64 {
	return p.Probability
}

// DrawNote is the ledger note recorded when the prize is won.
func (p GachaPrize) DrawNote() string {
	return "獲得: " + p.Name + " (" + p.Rarity + ")"
}

func (s ChoreSubmission) Validate() error {
	if strings.TrimSpace(s.Category) == "" || strings.TrimSpace(s.Task) == "" {
		return &ValidationError{Field: "category", Message: MsgCategoryTaskRequired}
	}
	if len(s.Assignees) == 0 {
		return &ValidationError{Field: "assignees", Message: MsgAssigneesRequired}
	}
	for _, a := range s.Assignees {
		if strings.TrimSpace(a) == "" {
			return &ValidationError{Field: "assignees", Message: MsgAssigneesRequired}
		}
	}
	if s.Multiplier < 0 {
		return &ValidationError{Field: "multiplier", Message: "multiplier must be at least 1"}
	}
	return nil
}

func (e ExpenseRecord) Validate() error {
	if strings.TrimSpace(e.Category) == "" || e.Amount <= 0 {
		return &ValidationError{Field: "amount", Message: MsgExpenseInvalid}
	}
	return nil
}
