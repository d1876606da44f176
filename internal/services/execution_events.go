package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flowsyai/backend/internal/models"
	"github.com/go-redis/redis/v8"
)

const ExecutionEventsQueue = "agent_execution_events"

type ExecutionEvent struct {
	ExecutionID     string                 `json:"executionId"`
	AgentID         string                 `json:"agentId"`
	AgentType       models.AgentType       `json:"agentType"`
	UserID          string                 `json:"userId"`
	Status          models.ExecutionStatus `json:"status"`
	TokensUsed      int64                  `json:"tokensUsed"`
	ExecutionTimeMS int64                  `json:"executionTimeMs"`
	ErrorMessage    string                 `json:"errorMessage,omitempty"`
	OccurredAt      time.Time              `json:"occurredAt"`
}

// ExecutionPublisher appends finished executions to a Redis list for
// downstream consumers.
type ExecutionPublisher struct {
	redis *redis.Client
	queue string
}

func NewExecutionPublisher(client *redis.Client) *ExecutionPublisher {
	return &ExecutionPublisher{redis: client, queue: ExecutionEventsQueue}
}

func (p *ExecutionPublisher) Publish(ctx context.Context, agent *models.AIAgent, execution *models.AIAgentExecution) error {
	if p == nil || p.redis == nil {
		return nil
	}

	data, err := json.Marshal(ExecutionEvent{
		ExecutionID:     execution.ID,
		AgentID:         execution.AgentID,
		AgentType:       agent.Type,
		UserID:          execution.UserID,
		Status:          execution.Status,
		TokensUsed:      execution.TokensUsed,
		ExecutionTimeMS: execution.ExecutionTimeMS,
		ErrorMessage:    execution.ErrorMessage,
		OccurredAt:      execution.CreatedAt,
	})
	if err != nil {
		return err
	}

	return p.redis.RPush(ctx, p.queue, data).Err()
}
