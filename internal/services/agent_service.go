package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowsyai/backend/internal/audit"
	"github.com/flowsyai/backend/internal/metrics"
	"github.com/flowsyai/backend/internal/models"
	"github.com/flowsyai/backend/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultExecutionLimit = 20
	maxExecutionLimit     = 100
)

type ExecuteRequest struct {
	AgentID    string
	UserID     string
	Input      map[string]any
	Complexity string
}

type CreateAgentRequest struct {
	Name          string                    `json:"name" validate:"required,min=2,max=100"`
	Type          models.AgentType          `json:"type" validate:"required,oneof=text_generator data_analyzer workflow_executor api_connector image_processor"`
	Description   string                    `json:"description" validate:"max=500"`
	Configuration models.AgentConfiguration `json:"configuration"`
}

// AgentService runs user agents against the token ledger: price, reserve,
// dispatch, then commit on success or release on failure.
type AgentService struct {
	store     store.AgentStore
	ledger    *LedgerService
	registry  *HandlerRegistry
	limiter   *RateLimiter
	publisher *ExecutionPublisher
	audit     *audit.Logger
	log       *zap.Logger
	now       func() time.Time
}

type AgentServiceOptions struct {
	RateLimiter *RateLimiter
	Publisher   *ExecutionPublisher
	Audit       *audit.Logger
	Logger      *zap.Logger
}

func NewAgentService(s store.AgentStore, ledger *LedgerService, registry *HandlerRegistry, opts AgentServiceOptions) *AgentService {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	auditLog := opts.Audit
	if auditLog == nil {
		auditLog = audit.NewLogger(log)
	}
	return &AgentService{
		store:     s,
		ledger:    ledger,
		registry:  registry,
		limiter:   opts.RateLimiter,
		publisher: opts.Publisher,
		audit:     auditLog,
		log:       log.Named("agents"),
		now:       time.Now,
	}
}

func (s *AgentService) CreateAgent(ctx context.Context, userID string, req CreateAgentRequest) (*models.AIAgent, error) {
	now := s.now()
	agent := &models.AIAgent{
		ID:            uuid.NewString(),
		UserID:        userID,
		Name:          req.Name,
		Type:          req.Type,
		Description:   req.Description,
		Configuration: req.Configuration,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.CreateAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}

	s.log.Info("AI agent created",
		zap.String("agent_id", agent.ID), zap.String("user_id", userID), zap.String("type", string(agent.Type)))
	return agent, nil
}

func (s *AgentService) GetAgent(ctx context.Context, agentID, userID string) (*models.AIAgent, error) {
	agent, err := s.store.GetAgent(ctx, agentID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return agent, nil
}

func (s *AgentService) ListAgents(ctx context.Context, userID string) ([]models.AIAgent, error) {
	agents, err := s.store.ListAgents(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return agents, nil
}

func (s *AgentService) ListExecutions(ctx context.Context, agentID, userID string, limit int) ([]models.AIAgentExecution, error) {
	if _, err := s.GetAgent(ctx, agentID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultExecutionLimit
	}
	if limit > maxExecutionLimit {
		limit = maxExecutionLimit
	}

	executions, err := s.store.ListExecutions(ctx, agentID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return executions, nil
}

// Execute runs an agent once. Failures before dispatch (unknown agent,
// rate limit, pricing, funds, reservation) return an error and leave no
// execution record. Once dispatched, the returned execution carries the
// outcome and a failed handler has its tokens refunded.
func (s *AgentService) Execute(ctx context.Context, req ExecuteRequest) (*models.AIAgentExecution, error) {
	start := s.now()

	agent, err := s.GetAgent(ctx, req.AgentID, req.UserID)
	if err != nil {
		return nil, err
	}
	if !agent.IsActive {
		return nil, ErrAgentInactive
	}

	if err := s.limiter.Check(ctx, req.UserID); err != nil {
		if errors.Is(err, ErrRateLimited) {
			metrics.AgentRateLimited.Inc()
		}
		return nil, err
	}

	category := agent.Type.InteractionCategory()
	cost, err := s.ledger.CalculateCost(category, req.Complexity)
	if err != nil {
		return nil, err
	}

	enough, err := s.ledger.HasEnoughTokens(ctx, req.UserID, cost)
	if err != nil {
		return nil, err
	}
	if !enough {
		return nil, ErrInsufficientFunds
	}

	reservation, err := s.ledger.Reserve(ctx, DeductRequest{
		UserID:      req.UserID,
		Amount:      cost,
		Description: "AI Agent execution: " + agent.Name,
		AgentID:     agent.ID,
		Category:    category,
	})
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Record(ctx, req.UserID); err != nil {
		s.log.Warn("Failed to record agent rate limit", zap.String("user_id", req.UserID), zap.Error(err))
	}

	input := req.Input
	if input == nil {
		input = map[string]any{}
	}

	output, handlerErr := s.registry.Dispatch(ctx, agent, input)
	finished := s.now()

	execution := &models.AIAgentExecution{
		ID:              uuid.NewString(),
		AgentID:         agent.ID,
		UserID:          req.UserID,
		InputData:       models.Metadata(input),
		ExecutionTimeMS: finished.Sub(start).Milliseconds(),
		CreatedAt:       finished,
	}

	if handlerErr != nil {
		execution.Status = models.ExecutionFailed
		execution.ErrorMessage = handlerErr.Error()

		// The request context may already be done; the refund must still land.
		if err := s.ledger.Release(context.WithoutCancel(ctx), reservation, handlerErr.Error()); err != nil {
			s.log.Error("Failed to refund reservation",
				zap.String("reservation_id", reservation.ID), zap.String("user_id", req.UserID), zap.Error(err))
		}
	} else {
		execution.Status = models.ExecutionCompleted
		execution.OutputData = models.Metadata(output)
		execution.TokensUsed = cost
		if err := s.ledger.Commit(ctx, reservation); err != nil {
			s.log.Error("Failed to commit reservation", zap.String("reservation_id", reservation.ID), zap.Error(err))
		}
	}

	s.finish(context.WithoutCancel(ctx), agent, execution)
	return execution, nil
}

func (s *AgentService) finish(ctx context.Context, agent *models.AIAgent, execution *models.AIAgentExecution) {
	if err := s.store.CreateExecution(ctx, execution); err != nil {
		s.log.Error("Failed to save execution", zap.String("execution_id", execution.ID), zap.Error(err))
	}

	if execution.Status == models.ExecutionCompleted {
		if err := s.store.RecordAgentUsage(ctx, agent.ID, execution.CreatedAt); err != nil {
			s.log.Warn("Failed to update agent usage", zap.String("agent_id", agent.ID), zap.Error(err))
		}
	}

	if err := s.publisher.Publish(ctx, agent, execution); err != nil {
		s.log.Warn("Failed to publish execution event", zap.String("execution_id", execution.ID), zap.Error(err))
	}

	metrics.AgentExecutionsTotal.WithLabelValues(string(agent.Type), string(execution.Status)).Inc()
	metrics.AgentExecutionDuration.WithLabelValues(string(agent.Type)).Observe(float64(execution.ExecutionTimeMS) / 1000)
	s.audit.LogExecution(execution.ID, execution.UserID, agent.ID, execution.TokensUsed, string(execution.Status))

	s.log.Info("AI agent execution finished",
		zap.String("execution_id", execution.ID),
		zap.String("agent_id", agent.ID),
		zap.String("status", string(execution.Status)),
		zap.Int64("tokens_used", execution.TokensUsed),
		zap.Int64("execution_time_ms", execution.ExecutionTimeMS),
	)
}
