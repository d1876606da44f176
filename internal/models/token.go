package models

import (
	"time"
)

// TransactionType classifies a ledger entry
type TransactionType string

const (
	TransactionPurchase TransactionType = "purchase"
	TransactionUsage    TransactionType = "usage"
	TransactionRefund   TransactionType = "refund"
	TransactionBonus    TransactionType = "bonus"
)

// IsCredit reports whether entries of this type add tokens to a balance
func (t TransactionType) IsCredit() bool {
	switch t {
	case TransactionPurchase, TransactionRefund, TransactionBonus:
		return true
	}
	return false
}

// TokenBalance is the per-user balance row. Rows are only ever updated, never deleted.
type TokenBalance struct {
	UserID         string    `json:"user_id" db:"user_id"`
	Balance        int64     `json:"balance" db:"balance"`
	TotalPurchased int64     `json:"total_purchased" db:"total_purchased"`
	TotalUsed      int64     `json:"total_used" db:"total_used"`
	LastUpdated    time.Time `json:"last_updated" db:"last_updated"`
}

// TokenTransaction is an append-only ledger entry. Amount is negative for spends.
type TokenTransaction struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	Amount      int64           `json:"amount" db:"amount"`
	Type        TransactionType `json:"type" db:"type"`
	Description string          `json:"description" db:"description"`
	AIAgentID   string          `json:"ai_agent_id,omitempty" db:"ai_agent_id"`
	WorkflowID  string          `json:"workflow_id,omitempty" db:"workflow_id"`
	Category    string          `json:"category,omitempty" db:"category"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// CategoryAmount is one row of the usage-by-category breakdown
type CategoryAmount struct {
	Category string `json:"category"`
	Amount   int64  `json:"amount"`
}

// DateAmount is token usage for a single UTC day (YYYY-MM-DD)
type DateAmount struct {
	Date   string `json:"date"`
	Amount int64  `json:"amount"`
}

// UsageAnalytics summarises a user's ledger activity over a window of days
type UsageAnalytics struct {
	TotalUsed      int64            `json:"totalUsed"`
	TotalPurchased int64            `json:"totalPurchased"`
	DailyUsage     []DateAmount     `json:"dailyUsage"`
	TopCategories  []CategoryAmount `json:"topCategories"`
}

// DailyUsageStat is one zero-filled day of usage
type DailyUsageStat struct {
	Date       string `json:"date"`
	Tokens     int64  `json:"tokens"`
	Executions int    `json:"executions"`
}
