// Package store persists token balances, ledger entries, agents and agent
// executions. Two backends exist: Postgres for deployments and an in-memory
// fixture store for local development and tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/flowsyai/backend/internal/models"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrAlreadyExists     = errors.New("record already exists")
	ErrInsufficientFunds = errors.New("insufficient token balance")
)

// TransactionFilter selects ledger entries for a user in [From, To).
// A zero To leaves the window open-ended and an empty Type matches every type.
type TransactionFilter struct {
	UserID string
	Type   models.TransactionType
	From   time.Time
	To     time.Time
}

// LedgerStore persists balances and their append-only transaction log.
// Every mutating call writes the entry and the balance change atomically.
type LedgerStore interface {
	GetBalance(ctx context.Context, userID string) (*models.TokenBalance, error)
	// CreateBalance opens a balance row seeded with entry. Returns
	// ErrAlreadyExists when the user already has a row.
	CreateBalance(ctx context.Context, entry *models.TokenTransaction) (*models.TokenBalance, error)
	// Debit applies a negative entry only if the balance covers it,
	// otherwise returns ErrInsufficientFunds and writes nothing.
	Debit(ctx context.Context, entry *models.TokenTransaction) (*models.TokenBalance, error)
	Credit(ctx context.Context, entry *models.TokenTransaction) (*models.TokenBalance, error)
	// ListTransactions returns the newest entries first.
	ListTransactions(ctx context.Context, userID string, limit int) ([]models.TokenTransaction, error)
	FindTransactions(ctx context.Context, filter TransactionFilter) ([]models.TokenTransaction, error)
}

// AgentStore persists agents and their executions.
type AgentStore interface {
	CreateAgent(ctx context.Context, agent *models.AIAgent) error
	GetAgent(ctx context.Context, agentID, userID string) (*models.AIAgent, error)
	ListAgents(ctx context.Context, userID string) ([]models.AIAgent, error)
	RecordAgentUsage(ctx context.Context, agentID string, usedAt time.Time) error
	CreateExecution(ctx context.Context, execution *models.AIAgentExecution) error
	ListExecutions(ctx context.Context, agentID, userID string, limit int) ([]models.AIAgentExecution, error)
}

// Store is the full persistence surface used by the services.
type Store interface {
	LedgerStore
	AgentStore
}
