package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flowsyai/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usage(id, userID string, amount int64, at time.Time) *models.TokenTransaction {
	return &models.TokenTransaction{
		ID: id, UserID: userID, Amount: -amount, Type: models.TransactionUsage,
		Description: "usage", CreatedAt: at,
	}
}

func TestMemoryStore_Ledger(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("debit without a balance is rejected", func(t *testing.T) {
		s := NewMemoryStore()
		_, err := s.Debit(ctx, usage("tx1", "nobody", 1, now))
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		txs, err := s.ListTransactions(ctx, "nobody", 10)
		assert.NoError(t, err)
		assert.Empty(t, txs)
	})

	t.Run("zero debit without a balance succeeds", func(t *testing.T) {
		s := NewMemoryStore()
		b, err := s.Debit(ctx, usage("tx1", "nobody", 0, now))
		require.NoError(t, err)
		assert.Equal(t, int64(0), b.Balance)

		stored, err := s.GetBalance(ctx, "nobody")
		require.NoError(t, err)
		assert.Equal(t, int64(0), stored.Balance)

		txs, err := s.ListTransactions(ctx, "nobody", 10)
		require.NoError(t, err)
		assert.Len(t, txs, 1)
	})

	t.Run("debit and credit keep totals", func(t *testing.T) {
		s := NewMemoryStore()
		_, err := s.CreateBalance(ctx, &models.TokenTransaction{
			ID: "open", UserID: "u1", Amount: 100, Type: models.TransactionBonus, CreatedAt: now,
		})
		require.NoError(t, err)

		b, err := s.Debit(ctx, usage("tx1", "u1", 30, now.Add(time.Second)))
		require.NoError(t, err)
		assert.Equal(t, int64(70), b.Balance)
		assert.Equal(t, int64(30), b.TotalUsed)

		b, err = s.Credit(ctx, &models.TokenTransaction{
			ID: "tx2", UserID: "u1", Amount: 30, Type: models.TransactionRefund, CreatedAt: now.Add(2 * time.Second),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(100), b.Balance)
		assert.Equal(t, int64(0), b.TotalUsed)

		b, err = s.Credit(ctx, &models.TokenTransaction{
			ID: "tx3", UserID: "u1", Amount: 50, Type: models.TransactionPurchase, CreatedAt: now.Add(3 * time.Second),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(150), b.Balance)
		assert.Equal(t, int64(50), b.TotalPurchased)

		_, err = s.Debit(ctx, usage("tx4", "u1", 151, now.Add(4*time.Second)))
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		txs, err := s.ListTransactions(ctx, "u1", 2)
		require.NoError(t, err)
		require.Len(t, txs, 2)
		assert.Equal(t, "tx3", txs[0].ID)
		assert.Equal(t, "tx2", txs[1].ID)
	})

	t.Run("create balance twice", func(t *testing.T) {
		s := NewMemoryStore()
		entry := &models.TokenTransaction{ID: "open", UserID: "u1", Amount: 10, Type: models.TransactionBonus, CreatedAt: now}
		_, err := s.CreateBalance(ctx, entry)
		require.NoError(t, err)
		_, err = s.CreateBalance(ctx, entry)
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("concurrent debits never overdraw", func(t *testing.T) {
		s := NewMemoryStore()
		_, err := s.CreateBalance(ctx, &models.TokenTransaction{
			ID: "open", UserID: "u1", Amount: 100, Type: models.TransactionBonus, CreatedAt: now,
		})
		require.NoError(t, err)

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := s.Debit(ctx, usage(fmt.Sprintf("tx%d", i), "u1", 10, now)); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		b, err := s.GetBalance(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 10, succeeded)
		assert.Equal(t, int64(0), b.Balance)
	})
}

func TestMemoryStore_FindTransactions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, err := s.CreateBalance(ctx, &models.TokenTransaction{
		ID: "open", UserID: "u1", Amount: 1000, Type: models.TransactionPurchase, CreatedAt: base.AddDate(0, 0, -40),
	})
	require.NoError(t, err)
	for i, day := range []int{-20, -3, -1, 0} {
		_, err := s.Debit(ctx, usage(fmt.Sprintf("tx%d", i), "u1", 5, base.AddDate(0, 0, day)))
		require.NoError(t, err)
	}

	t.Run("window and type", func(t *testing.T) {
		txs, err := s.FindTransactions(ctx, TransactionFilter{
			UserID: "u1", Type: models.TransactionUsage, From: base.AddDate(0, 0, -7), To: base,
		})
		require.NoError(t, err)
		require.Len(t, txs, 2)
		assert.Equal(t, "tx2", txs[0].ID)
		assert.Equal(t, "tx1", txs[1].ID)
	})

	t.Run("open ended", func(t *testing.T) {
		txs, err := s.FindTransactions(ctx, TransactionFilter{UserID: "u1", From: base.AddDate(0, 0, -50)})
		require.NoError(t, err)
		assert.Len(t, txs, 5)
	})
}

func TestMemoryStore_Agents(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryStore()

	require.NoError(t, SeedDemo(ctx, s, 1000, now))
	require.NoError(t, SeedDemo(ctx, s, 1000, now))

	agents, err := s.ListAgents(ctx, DemoUserID)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "agent-1", agents[0].ID)

	_, err = s.GetAgent(ctx, "agent-1", "someone-else")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.RecordAgentUsage(ctx, "agent-1", now))
	agent, err := s.GetAgent(ctx, "agent-1", DemoUserID)
	require.NoError(t, err)
	assert.Equal(t, int64(26), agent.UsageCount)

	balance, err := s.GetBalance(ctx, DemoUserID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance.Balance)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateExecution(ctx, &models.AIAgentExecution{
			ID: fmt.Sprintf("exec%d", i), AgentID: "agent-1", UserID: DemoUserID,
			Status: models.ExecutionCompleted, CreatedAt: now.Add(time.Duration(i) * time.Second),
		}))
	}
	executions, err := s.ListExecutions(ctx, "agent-1", DemoUserID, 2)
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, "exec2", executions[0].ID)
}

func TestMemoryStore_AgentsAreCopied(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	temperature := 0.2
	agent := &models.AIAgent{
		ID:     "agent1",
		UserID: "u1",
		Name:   "Status",
		Type:   models.AgentAPIConnector,
		Configuration: models.AgentConfiguration{
			Temperature:  &temperature,
			APIEndpoints: []string{"https://status.example.com"},
			DataSources:  []string{"sales"},
		},
	}
	require.NoError(t, s.CreateAgent(ctx, agent))

	agent.Configuration.APIEndpoints[0] = "https://changed.example.com"
	agent.Configuration.DataSources[0] = "changed"
	*agent.Configuration.Temperature = 0.9

	stored, err := s.GetAgent(ctx, "agent1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "https://status.example.com", stored.Configuration.APIEndpoints[0])
	assert.Equal(t, "sales", stored.Configuration.DataSources[0])
	assert.Equal(t, 0.2, *stored.Configuration.Temperature)

	stored.Configuration.APIEndpoints[0] = "https://other.example.com"
	*stored.Configuration.Temperature = 0.5

	listed, err := s.ListAgents(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "https://status.example.com", listed[0].Configuration.APIEndpoints[0])
	assert.Equal(t, 0.2, *listed[0].Configuration.Temperature)
}
