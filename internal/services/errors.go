package services

import (
	"errors"
	"fmt"
)

var (
	ErrAgentNotFound     = errors.New("AI agent not found")
	ErrAgentInactive     = errors.New("AI agent is inactive")
	ErrInsufficientFunds = errors.New("insufficient tokens")
	ErrInvalidComplexity = errors.New("invalid complexity")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrRateLimited       = errors.New("too many agent executions, try again later")
	ErrVoucherInvalid    = errors.New("invalid or expired voucher")
	ErrRedisUnavailable  = errors.New("redis is not configured")

	ErrReservationSettled = errors.New("reservation already settled")

	ErrMissingAPIKey     = errors.New("OpenAI API key is required")
	ErrCompletionTimeout = errors.New("OpenAI API request timeout")
	ErrNoChoices         = errors.New("no response choices returned from OpenAI")
)

// LedgerError wraps a failure of the underlying balance store.
type LedgerError struct {
	Op  string
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s failed: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// UpstreamAPIError is a non-2xx response from the completion API.
type UpstreamAPIError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamAPIError) Error() string {
	return fmt.Sprintf("OpenAI API error: %d - %s", e.StatusCode, e.Message)
}
