package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/flowsyai/backend/internal/models"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionPublisher_Publish(t *testing.T) {
	ctx := context.Background()
	agent := &models.AIAgent{ID: "agent-1", Type: models.AgentDataAnalyzer}
	execution := &models.AIAgentExecution{
		ID:              "exec-1",
		AgentID:         "agent-1",
		UserID:          "user1",
		Status:          models.ExecutionFailed,
		ExecutionTimeMS: 12,
		ErrorMessage:    "data_analyzer requires a non-empty data array",
		CreatedAt:       time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}

	payload, err := json.Marshal(ExecutionEvent{
		ExecutionID:     "exec-1",
		AgentID:         "agent-1",
		AgentType:       models.AgentDataAnalyzer,
		UserID:          "user1",
		Status:          models.ExecutionFailed,
		ExecutionTimeMS: 12,
		ErrorMessage:    "data_analyzer requires a non-empty data array",
		OccurredAt:      execution.CreatedAt,
	})
	require.NoError(t, err)

	t.Run("pushes onto the events queue", func(t *testing.T) {
		client, redisMock := redismock.NewClientMock()
		redisMock.ExpectRPush(ExecutionEventsQueue, payload).SetVal(1)

		assert.NoError(t, NewExecutionPublisher(client).Publish(ctx, agent, execution))
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("redis failure is returned", func(t *testing.T) {
		client, redisMock := redismock.NewClientMock()
		redisMock.ExpectRPush(ExecutionEventsQueue, payload).SetErr(errors.New("connection refused"))

		assert.Error(t, NewExecutionPublisher(client).Publish(ctx, agent, execution))
	})

	t.Run("no-op without redis", func(t *testing.T) {
		assert.NoError(t, NewExecutionPublisher(nil).Publish(ctx, agent, execution))

		var unset *ExecutionPublisher
		assert.NoError(t, unset.Publish(ctx, agent, execution))
	})
}
