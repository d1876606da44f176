package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowsy_api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowsy_api_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Agents
var (
	AgentExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowsy_agent_executions_total",
			Help: "Agent executions by type and final status",
		},
		[]string{"agent_type", "status"},
	)

	AgentExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowsy_agent_execution_duration_seconds",
			Help:    "Agent execution latency",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent_type"},
	)

	AgentRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flowsy_agent_rate_limited_total",
			Help: "Agent executions rejected by the per-user rate limit",
		},
	)
)

// Tokens
var (
	TokensDebitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowsy_tokens_debited_total",
			Help: "Tokens deducted from user balances",
		},
		[]string{"category"},
	)

	TokensCreditedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowsy_tokens_credited_total",
			Help: "Tokens added to user balances",
		},
		[]string{"type"},
	)

	InsufficientFundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flowsy_tokens_insufficient_funds_total",
			Help: "Deductions rejected for insufficient balance",
		},
	)
)

// Completions
var (
	CompletionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowsy_completion_requests_total",
			Help: "Upstream completion requests by outcome",
		},
		[]string{"outcome"},
	)

	CompletionTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowsy_completion_tokens_total",
			Help: "Upstream completion token usage",
		},
		[]string{"kind"},
	)
)
