package models

import (
	"time"
)

// AgentType selects the execution handler for an agent
type AgentType string

const (
	AgentTextGenerator    AgentType = "text_generator"
	AgentDataAnalyzer     AgentType = "data_analyzer"
	AgentWorkflowExecutor AgentType = "workflow_executor"
	AgentAPIConnector     AgentType = "api_connector"
	AgentImageProcessor   AgentType = "image_processor"
)

// AgentTypes lists every supported agent type
var AgentTypes = []AgentType{
	AgentTextGenerator,
	AgentDataAnalyzer,
	AgentWorkflowExecutor,
	AgentAPIConnector,
	AgentImageProcessor,
}

// agentCategories maps agent types onto the interaction categories used for pricing
var agentCategories = map[AgentType]string{
	AgentTextGenerator:    "text_generation",
	AgentDataAnalyzer:     "data_analysis",
	AgentWorkflowExecutor: "workflow_execution",
	AgentAPIConnector:     "api_call",
	AgentImageProcessor:   "image_processing",
}

// InteractionCategory returns the pricing category for the agent type.
// Unknown types map to their own name, which prices at the default multiplier.
func (t AgentType) InteractionCategory() string {
	if c, ok := agentCategories[t]; ok {
		return c
	}
	return string(t)
}

// AgentConfiguration holds the per-agent invocation profile
type AgentConfiguration struct {
	Model        string   `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	APIEndpoints []string `json:"api_endpoints,omitempty" validate:"omitempty,max=20,dive,http_url"`
	DataSources  []string `json:"data_sources,omitempty"`
}

// AIAgent is a user-configured invocation profile
type AIAgent struct {
	ID            string             `json:"id" db:"id"`
	UserID        string             `json:"user_id" db:"user_id"`
	Name          string             `json:"name" db:"name"`
	Type          AgentType          `json:"type" db:"type"`
	Description   string             `json:"description" db:"description"`
	Configuration AgentConfiguration `json:"configuration" db:"configuration"`
	IsActive      bool               `json:"is_active" db:"is_active"`
	UsageCount    int64              `json:"usage_count" db:"usage_count"`
	LastUsed      *time.Time         `json:"last_used" db:"last_used"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" db:"updated_at"`
}

// ExecutionStatus of an agent execution
type ExecutionStatus string

// pending -> running -> completed | failed
const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// AIAgentExecution records a single agent invocation. Immutable once written.
type AIAgentExecution struct {
	ID              string          `json:"id" db:"id"`
	AgentID         string          `json:"agent_id" db:"agent_id"`
	UserID          string          `json:"user_id" db:"user_id"`
	InputData       Metadata        `json:"input_data" db:"input_data"`
	OutputData      Metadata        `json:"output_data" db:"output_data"`
	TokensUsed      int64           `json:"tokens_used" db:"tokens_used"`
	ExecutionTimeMS int64           `json:"execution_time_ms" db:"execution_time_ms"`
	Status          ExecutionStatus `json:"status" db:"status"`
	ErrorMessage    string          `json:"error_message,omitempty" db:"error_message"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}
