package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/flowsyai/backend/internal/models"
)

// MemoryStore is an in-process Store used for local development and tests.
// All operations are serialised by a single mutex.
type MemoryStore struct {
	mu           sync.Mutex
	balances     map[string]*models.TokenBalance
	transactions []models.TokenTransaction
	agents       map[string]*models.AIAgent
	executions   []models.AIAgentExecution
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]*models.TokenBalance),
		agents:   make(map[string]*models.AIAgent),
	}
}

func (s *MemoryStore) GetBalance(_ context.Context, userID string) (*models.TokenBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.balances[userID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (s *MemoryStore) CreateBalance(_ context.Context, entry *models.TokenTransaction) (*models.TokenBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.balances[entry.UserID]; ok {
		return nil, ErrAlreadyExists
	}

	b := &models.TokenBalance{
		UserID:      entry.UserID,
		Balance:     entry.Amount,
		LastUpdated: entry.CreatedAt,
	}
	if entry.Type == models.TransactionPurchase {
		b.TotalPurchased = entry.Amount
	}
	s.balances[entry.UserID] = b
	if entry.Amount != 0 {
		s.transactions = append(s.transactions, *entry)
	}

	copied := *b
	return &copied, nil
}

func (s *MemoryStore) Debit(_ context.Context, entry *models.TokenTransaction) (*models.TokenBalance, error) {
	if entry.Amount > 0 {
		return nil, fmt.Errorf("debit amount must be negative, got %d", entry.Amount)
	}
	amount := -entry.Amount

	s.mu.Lock()
	defer s.mu.Unlock()

	// A user without a row has a zero balance.
	b, ok := s.balances[entry.UserID]
	if !ok {
		b = &models.TokenBalance{UserID: entry.UserID}
	}
	if b.Balance < amount {
		return nil, ErrInsufficientFunds
	}
	s.balances[entry.UserID] = b

	b.Balance -= amount
	b.TotalUsed += amount
	b.LastUpdated = entry.CreatedAt
	s.transactions = append(s.transactions, *entry)

	copied := *b
	return &copied, nil
}

func (s *MemoryStore) Credit(_ context.Context, entry *models.TokenTransaction) (*models.TokenBalance, error) {
	if entry.Amount < 0 {
		return nil, fmt.Errorf("credit amount must be positive, got %d", entry.Amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.balances[entry.UserID]
	if !ok {
		b = &models.TokenBalance{UserID: entry.UserID}
		s.balances[entry.UserID] = b
	}

	b.Balance += entry.Amount
	switch entry.Type {
	case models.TransactionPurchase:
		b.TotalPurchased += entry.Amount
	case models.TransactionRefund:
		b.TotalUsed = max(b.TotalUsed-entry.Amount, 0)
	}
	b.LastUpdated = entry.CreatedAt
	s.transactions = append(s.transactions, *entry)

	copied := *b
	return &copied, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, userID string, limit int) ([]models.TokenTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := []models.TokenTransaction{}
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].UserID == userID {
			result = append(result, s.transactions[i])
		}
	}
	sortNewestFirst(result)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) FindTransactions(_ context.Context, filter TransactionFilter) ([]models.TokenTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := []models.TokenTransaction{}
	for i := len(s.transactions) - 1; i >= 0; i-- {
		t := s.transactions[i]
		if t.UserID != filter.UserID || t.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !t.CreatedAt.Before(filter.To) {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		result = append(result, t)
	}
	sortNewestFirst(result)
	return result, nil
}

// sortNewestFirst orders by created_at descending; ties keep their order,
// which callers build from the most recently appended entry backwards.
func sortNewestFirst(transactions []models.TokenTransaction) {
	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].CreatedAt.After(transactions[j].CreatedAt)
	})
}

func (s *MemoryStore) CreateAgent(_ context.Context, agent *models.AIAgent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[agent.ID]; ok {
		return ErrAlreadyExists
	}
	s.agents[agent.ID] = cloneAgent(agent)
	return nil
}

func (s *MemoryStore) GetAgent(_ context.Context, agentID, userID string) (*models.AIAgent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[agentID]
	if !ok || a.UserID != userID {
		return nil, ErrNotFound
	}
	return cloneAgent(a), nil
}

func (s *MemoryStore) ListAgents(_ context.Context, userID string) ([]models.AIAgent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agents := []models.AIAgent{}
	for _, a := range s.agents {
		if a.UserID == userID {
			agents = append(agents, *cloneAgent(a))
		}
	}
	sort.Slice(agents, func(i, j int) bool {
		return agents[i].CreatedAt.After(agents[j].CreatedAt)
	})
	return agents, nil
}

func (s *MemoryStore) RecordAgentUsage(_ context.Context, agentID string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	a.UsageCount++
	a.LastUsed = &usedAt
	a.UpdatedAt = usedAt
	return nil
}

func (s *MemoryStore) CreateExecution(_ context.Context, execution *models.AIAgentExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.executions = append(s.executions, *execution)
	return nil
}

func (s *MemoryStore) ListExecutions(_ context.Context, agentID, userID string, limit int) ([]models.AIAgentExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := []models.AIAgentExecution{}
	for i := len(s.executions) - 1; i >= 0 && len(result) < limit; i-- {
		e := s.executions[i]
		if e.AgentID == agentID && e.UserID == userID {
			result = append(result, e)
		}
	}
	return result, nil
}

// cloneAgent copies an agent including its configuration slices and pointers.
func cloneAgent(a *models.AIAgent) *models.AIAgent {
	copied := *a
	cfg := &copied.Configuration
	cfg.APIEndpoints = slices.Clone(cfg.APIEndpoints)
	cfg.DataSources = slices.Clone(cfg.DataSources)
	if cfg.Temperature != nil {
		t := *cfg.Temperature
		cfg.Temperature = &t
	}
	if a.LastUsed != nil {
		lastUsed := *a.LastUsed
		copied.LastUsed = &lastUsed
	}
	return &copied
}
