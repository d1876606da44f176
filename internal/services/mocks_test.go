package services

import (
	"context"
	"time"

	"github.com/flowsyai/backend/internal/models"
	"github.com/flowsyai/backend/internal/store"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

var _ store.Store = (*MockStore)(nil)

func (m *MockStore) GetBalance(ctx context.Context, userID string) (*models.TokenBalance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TokenBalance), args.Error(1)
}

func (m *MockStore) CreateBalance(ctx context.Context, entry *models.TokenTransaction) (*models.TokenBalance, error) {
	args := m.Called(ctx, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TokenBalance), args.Error(1)
}

func (m *MockStore) Debit(ctx context.Context, entry *models.TokenTransaction) (*models.TokenBalance, error) {
	args := m.Called(ctx, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TokenBalance), args.Error(1)
}

func (m *MockStore) Credit(ctx context.Context, entry *models.TokenTransaction) (*models.TokenBalance, error) {
	args := m.Called(ctx, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TokenBalance), args.Error(1)
}

func (m *MockStore) ListTransactions(ctx context.Context, userID string, limit int) ([]models.TokenTransaction, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TokenTransaction), args.Error(1)
}

func (m *MockStore) FindTransactions(ctx context.Context, filter store.TransactionFilter) ([]models.TokenTransaction, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TokenTransaction), args.Error(1)
}

func (m *MockStore) CreateAgent(ctx context.Context, agent *models.AIAgent) error {
	args := m.Called(ctx, agent)
	return args.Error(0)
}

func (m *MockStore) GetAgent(ctx context.Context, agentID, userID string) (*models.AIAgent, error) {
	args := m.Called(ctx, agentID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AIAgent), args.Error(1)
}

func (m *MockStore) ListAgents(ctx context.Context, userID string) ([]models.AIAgent, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AIAgent), args.Error(1)
}

func (m *MockStore) RecordAgentUsage(ctx context.Context, agentID string, usedAt time.Time) error {
	args := m.Called(ctx, agentID, usedAt)
	return args.Error(0)
}

func (m *MockStore) CreateExecution(ctx context.Context, execution *models.AIAgentExecution) error {
	args := m.Called(ctx, execution)
	return args.Error(0)
}

func (m *MockStore) ListExecutions(ctx context.Context, agentID, userID string, limit int) ([]models.AIAgentExecution, error) {
	args := m.Called(ctx, agentID, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AIAgentExecution), args.Error(1)
}

type MockTextGenerator struct {
	mock.Mock
}

func (m *MockTextGenerator) GenerateText(ctx context.Context, opts TextGenerationOptions) (*TextGenerationResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TextGenerationResult), args.Error(1)
}

// stepClock advances one second per reading so ledger entries get distinct,
// ordered timestamps.
type stepClock struct {
	t time.Time
}

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}
