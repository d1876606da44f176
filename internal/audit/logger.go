package audit

import (
	"time"

	"go.uber.org/zap"
)

const (
	EventDebit     = "TOKEN_DEBIT"
	EventCredit    = "TOKEN_CREDIT"
	EventReserve   = "TOKEN_RESERVE"
	EventCommit    = "TOKEN_COMMIT"
	EventRelease   = "TOKEN_RELEASE"
	EventExecution = "AGENT_EXECUTION"
	EventVoucher   = "VOUCHER"
	EventError     = "ERROR"
)

type Event struct {
	Timestamp time.Time
	EventType string
	// Reference is the ledger entry, reservation, execution or voucher id.
	Reference string
	UserID    string
	Amount    int64
	Status    string
	Details   map[string]string
}

// Logger writes audit events as structured entries on a dedicated
// "audit" logger so they can be routed separately from application logs.
type Logger struct {
	log *zap.Logger
}

func NewLogger(base *zap.Logger) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{log: base.Named("audit")}
}

func (a *Logger) LogLedger(eventType, reference, userID string, amount int64, status string, details map[string]string) {
	a.write(Event{
		EventType: eventType,
		Reference: reference,
		UserID:    userID,
		Amount:    amount,
		Status:    status,
		Details:   details,
	})
}

func (a *Logger) LogExecution(executionID, userID, agentID string, tokens int64, status string) {
	a.write(Event{
		EventType: EventExecution,
		Reference: executionID,
		UserID:    userID,
		Amount:    tokens,
		Status:    status,
		Details:   map[string]string{"agent_id": agentID},
	})
}

func (a *Logger) LogOperation(eventType, reference, userID, details string) {
	a.write(Event{
		EventType: eventType,
		Reference: reference,
		UserID:    userID,
		Status:    "SUCCESS",
		Details:   map[string]string{"details": details},
	})
}

func (a *Logger) LogError(reference, userID string, err error) {
	a.write(Event{
		EventType: EventError,
		Reference: reference,
		UserID:    userID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) write(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	a.log.Info("audit",
		zap.Time("timestamp", event.Timestamp),
		zap.String("event_type", event.EventType),
		zap.String("reference", event.Reference),
		zap.String("user_id", event.UserID),
		zap.Int64("amount", event.Amount),
		zap.String("status", event.Status),
		zap.Any("details", event.Details),
	)
}
