package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/flowsyai/backend/internal/audit"
	"github.com/flowsyai/backend/internal/metrics"
	"github.com/flowsyai/backend/internal/models"
	"github.com/flowsyai/backend/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 500
	defaultAnalyticsDays    = 30
	defaultDailyStatsDays   = 7

	uncategorized = "uncategorized"
	dateLayout    = "2006-01-02"
)

// Multipliers are expressed in tenths so costs are computed in integers.
var complexityMultipliers = map[string]int64{
	"low":    5,
	"medium": 10,
	"high":   20,
}

var interactionMultipliers = map[string]int64{
	"text_generation":    10,
	"data_analysis":      15,
	"image_processing":   20,
	"workflow_execution": 12,
	"api_call":           8,
}

type LedgerConfig struct {
	// BaseCost is the token price of a medium text_generation interaction.
	BaseCost int64
	// DefaultBalance is credited as a welcome bonus when an account opens.
	DefaultBalance int64
}

type LedgerService struct {
	store  store.LedgerStore
	config LedgerConfig
	audit  *audit.Logger
	log    *zap.Logger
	now    func() time.Time
}

func NewLedgerService(s store.LedgerStore, config LedgerConfig, auditLog *audit.Logger, log *zap.Logger) *LedgerService {
	if log == nil {
		log = zap.NewNop()
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(log)
	}
	return &LedgerService{
		store:  s,
		config: config,
		audit:  auditLog,
		log:    log.Named("ledger"),
		now:    time.Now,
	}
}

// DeductRequest describes a usage debit.
type DeductRequest struct {
	UserID      string
	Amount      int64
	Description string
	AgentID     string
	WorkflowID  string
	Category    string
}

// GetBalance returns 0 for users without a balance row. Store failures are
// returned as *LedgerError.
func (s *LedgerService) GetBalance(ctx context.Context, userID string) (int64, error) {
	b, err := s.store.GetBalance(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, &LedgerError{Op: "get balance", Err: err}
	}
	return b.Balance, nil
}

// GetAccount returns the full balance row, or a zero row for unknown users.
func (s *LedgerService) GetAccount(ctx context.Context, userID string) (*models.TokenBalance, error) {
	b, err := s.store.GetBalance(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &models.TokenBalance{UserID: userID}, nil
	}
	if err != nil {
		return nil, &LedgerError{Op: "get balance", Err: err}
	}
	return b, nil
}

// OpenAccount creates the user's balance row with the configured welcome
// bonus. Opening an existing account returns the current row unchanged.
func (s *LedgerService) OpenAccount(ctx context.Context, userID string) (*models.TokenBalance, bool, error) {
	entry := &models.TokenTransaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      s.config.DefaultBalance,
		Type:        models.TransactionBonus,
		Description: "Welcome bonus",
		CreatedAt:   s.now(),
	}

	b, err := s.store.CreateBalance(ctx, entry)
	if errors.Is(err, store.ErrAlreadyExists) {
		existing, err := s.GetAccount(ctx, userID)
		return existing, false, err
	}
	if err != nil {
		return nil, false, &LedgerError{Op: "open account", Err: err}
	}

	metrics.TokensCreditedTotal.WithLabelValues(string(models.TransactionBonus)).Add(float64(entry.Amount))
	s.audit.LogLedger(audit.EventCredit, entry.ID, userID, entry.Amount, "SUCCESS",
		map[string]string{"type": string(entry.Type), "description": entry.Description})
	return b, true, nil
}

// Deduct debits amount from the user's balance and records one usage entry.
// It fails closed: false is returned on any error, and the error tells
// ErrInsufficientFunds apart from store failures.
func (s *LedgerService) Deduct(ctx context.Context, req DeductRequest) (bool, error) {
	if _, err := s.debit(ctx, req); err != nil {
		return false, err
	}
	return true, nil
}

func (s *LedgerService) debit(ctx context.Context, req DeductRequest) (*models.TokenTransaction, error) {
	if req.Amount < 0 {
		return nil, ErrInvalidAmount
	}

	entry := &models.TokenTransaction{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Amount:      -req.Amount,
		Type:        models.TransactionUsage,
		Description: req.Description,
		AIAgentID:   req.AgentID,
		WorkflowID:  req.WorkflowID,
		Category:    req.Category,
		CreatedAt:   s.now(),
	}

	b, err := s.store.Debit(ctx, entry)
	if errors.Is(err, store.ErrInsufficientFunds) {
		metrics.InsufficientFundsTotal.Inc()
		return nil, ErrInsufficientFunds
	}
	if err != nil {
		s.audit.LogError(entry.ID, req.UserID, err)
		return nil, &LedgerError{Op: "deduct", Err: err}
	}

	category := req.Category
	if category == "" {
		category = uncategorized
	}
	metrics.TokensDebitedTotal.WithLabelValues(category).Add(float64(req.Amount))
	s.audit.LogLedger(audit.EventDebit, entry.ID, req.UserID, entry.Amount, "SUCCESS",
		map[string]string{"category": category, "balance": strconv.FormatInt(b.Balance, 10)})
	return entry, nil
}

// Add credits a positive amount. Only purchases grow total_purchased.
func (s *LedgerService) Add(ctx context.Context, userID string, amount int64, txType models.TransactionType, description string) (bool, error) {
	if _, err := s.credit(ctx, &models.TokenTransaction{
		UserID:      userID,
		Amount:      amount,
		Type:        txType,
		Description: description,
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *LedgerService) credit(ctx context.Context, entry *models.TokenTransaction) (*models.TokenBalance, error) {
	if entry.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !entry.Type.IsCredit() {
		return nil, fmt.Errorf("transaction type %q cannot add tokens", entry.Type)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = s.now()

	b, err := s.store.Credit(ctx, entry)
	if err != nil {
		s.audit.LogError(entry.ID, entry.UserID, err)
		return nil, &LedgerError{Op: "add", Err: err}
	}

	metrics.TokensCreditedTotal.WithLabelValues(string(entry.Type)).Add(float64(entry.Amount))
	s.audit.LogLedger(audit.EventCredit, entry.ID, entry.UserID, entry.Amount, "SUCCESS",
		map[string]string{"type": string(entry.Type), "balance": strconv.FormatInt(b.Balance, 10)})
	return b, nil
}

// CalculateCost prices an interaction as
// ceil(baseCost × complexityMultiplier × typeMultiplier).
// An empty complexity counts as medium; unknown interaction types use a
// multiplier of 1.
func (s *LedgerService) CalculateCost(interactionType, complexity string) (int64, error) {
	if complexity == "" {
		complexity = "medium"
	}
	cm, ok := complexityMultipliers[complexity]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidComplexity, complexity)
	}
	tm, ok := interactionMultipliers[interactionType]
	if !ok {
		tm = 10
	}

	scaled := s.config.BaseCost * cm * tm
	return (scaled + 99) / 100, nil
}

func (s *LedgerService) HasEnoughTokens(ctx context.Context, userID string, amount int64) (bool, error) {
	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// GetTransactions returns the newest entries first. limit defaults to 50
// and is capped at 500.
func (s *LedgerService) GetTransactions(ctx context.Context, userID string, limit int) ([]models.TokenTransaction, error) {
	if limit <= 0 {
		limit = defaultTransactionLimit
	}
	if limit > maxTransactionLimit {
		limit = maxTransactionLimit
	}

	txs, err := s.store.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, &LedgerError{Op: "list transactions", Err: err}
	}
	return txs, nil
}

// GetUsageAnalytics aggregates the last days of ledger activity. Refunds
// are netted against the usage they reverse, per day and per category.
func (s *LedgerService) GetUsageAnalytics(ctx context.Context, userID string, days int) (*models.UsageAnalytics, error) {
	if days <= 0 {
		days = defaultAnalyticsDays
	}

	txs, err := s.store.FindTransactions(ctx, store.TransactionFilter{
		UserID: userID,
		From:   s.now().AddDate(0, 0, -days),
	})
	if err != nil {
		return nil, &LedgerError{Op: "usage analytics", Err: err}
	}

	analytics := &models.UsageAnalytics{
		DailyUsage:    []models.DateAmount{},
		TopCategories: []models.CategoryAmount{},
	}
	daily := map[string]int64{}
	categories := map[string]int64{}

	for _, t := range txs {
		var used int64
		switch t.Type {
		case models.TransactionUsage, models.TransactionRefund:
			used = -t.Amount
		case models.TransactionPurchase:
			analytics.TotalPurchased += t.Amount
			continue
		default:
			continue
		}

		analytics.TotalUsed += used
		daily[t.CreatedAt.UTC().Format(dateLayout)] += used
		category := t.Category
		if category == "" {
			category = uncategorized
		}
		categories[category] += used
	}
	analytics.TotalUsed = max(analytics.TotalUsed, 0)

	for date, amount := range daily {
		if amount > 0 {
			analytics.DailyUsage = append(analytics.DailyUsage, models.DateAmount{Date: date, Amount: amount})
		}
	}
	sort.Slice(analytics.DailyUsage, func(i, j int) bool {
		return analytics.DailyUsage[i].Date > analytics.DailyUsage[j].Date
	})

	for category, amount := range categories {
		if amount > 0 {
			analytics.TopCategories = append(analytics.TopCategories, models.CategoryAmount{Category: category, Amount: amount})
		}
	}
	sort.Slice(analytics.TopCategories, func(i, j int) bool {
		a, b := analytics.TopCategories[i], analytics.TopCategories[j]
		if a.Amount != b.Amount {
			return a.Amount > b.Amount
		}
		return a.Category < b.Category
	})

	return analytics, nil
}

// GetUsageToday sums usage since UTC midnight.
func (s *LedgerService) GetUsageToday(ctx context.Context, userID string) (int64, error) {
	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.usageBetween(ctx, userID, start, start.AddDate(0, 0, 1))
}

// GetUsageThisMonth sums usage since the first of the current UTC month.
func (s *LedgerService) GetUsageThisMonth(ctx context.Context, userID string) (int64, error) {
	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.usageBetween(ctx, userID, start, start.AddDate(0, 1, 0))
}

func (s *LedgerService) usageBetween(ctx context.Context, userID string, from, to time.Time) (int64, error) {
	txs, err := s.store.FindTransactions(ctx, store.TransactionFilter{
		UserID: userID,
		Type:   models.TransactionUsage,
		From:   from,
		To:     to,
	})
	if err != nil {
		return 0, &LedgerError{Op: "usage", Err: err}
	}

	var total int64
	for _, t := range txs {
		total += -t.Amount
	}
	return total, nil
}

// GetDailyUsageStats returns one entry per UTC day for the last days days,
// oldest first, with days without usage reported as zero.
func (s *LedgerService) GetDailyUsageStats(ctx context.Context, userID string, days int) ([]models.DailyUsageStat, error) {
	if days <= 0 {
		days = defaultDailyStatsDays
	}

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	first := today.AddDate(0, 0, -(days - 1))

	txs, err := s.store.FindTransactions(ctx, store.TransactionFilter{
		UserID: userID,
		Type:   models.TransactionUsage,
		From:   first,
	})
	if err != nil {
		return nil, &LedgerError{Op: "daily usage", Err: err}
	}

	stats := make([]models.DailyUsageStat, days)
	index := make(map[string]int, days)
	for i := range stats {
		date := first.AddDate(0, 0, i).Format(dateLayout)
		stats[i] = models.DailyUsageStat{Date: date}
		index[date] = i
	}

	for _, t := range txs {
		i, ok := index[t.CreatedAt.UTC().Format(dateLayout)]
		if !ok {
			continue
		}
		stats[i].Tokens += -t.Amount
		stats[i].Executions++
	}
	return stats, nil
}

const (
	reservationHeld int32 = iota
	reservationCommitted
	reservationReleased
)

// Reservation is a debit taken before work starts. It must be settled
// exactly once, by Commit when the work succeeded or Release when it did
// not.
type Reservation struct {
	ID       string
	UserID   string
	Amount   int64
	AgentID  string
	Category string
	state    atomic.Int32
}

// Settled reports whether the reservation was committed or released.
func (r *Reservation) Settled() bool {
	return r.state.Load() != reservationHeld
}

// Reserve debits the tokens up front; a failure leaves the balance untouched.
func (s *LedgerService) Reserve(ctx context.Context, req DeductRequest) (*Reservation, error) {
	entry, err := s.debit(ctx, req)
	if err != nil {
		return nil, err
	}

	s.audit.LogLedger(audit.EventReserve, entry.ID, req.UserID, req.Amount, "HELD", nil)
	return &Reservation{
		ID:       entry.ID,
		UserID:   req.UserID,
		Amount:   req.Amount,
		AgentID:  req.AgentID,
		Category: req.Category,
	}, nil
}

func (s *LedgerService) Commit(_ context.Context, r *Reservation) error {
	if !r.state.CompareAndSwap(reservationHeld, reservationCommitted) {
		if r.state.Load() == reservationCommitted {
			return nil
		}
		return ErrReservationSettled
	}

	s.audit.LogLedger(audit.EventCommit, r.ID, r.UserID, r.Amount, "COMMITTED", nil)
	return nil
}

// Release refunds the reserved tokens with a refund entry. If the refund
// cannot be written the reservation stays held so Release can be retried.
func (s *LedgerService) Release(ctx context.Context, r *Reservation, reason string) error {
	if !r.state.CompareAndSwap(reservationHeld, reservationReleased) {
		if r.state.Load() == reservationReleased {
			return nil
		}
		return ErrReservationSettled
	}

	if r.Amount == 0 {
		s.audit.LogLedger(audit.EventRelease, r.ID, r.UserID, 0, "RELEASED", nil)
		return nil
	}

	_, err := s.credit(ctx, &models.TokenTransaction{
		UserID:      r.UserID,
		Amount:      r.Amount,
		Type:        models.TransactionRefund,
		Description: "Refund: " + reason,
		AIAgentID:   r.AgentID,
		Category:    r.Category,
	})
	if err != nil {
		r.state.Store(reservationHeld)
		s.log.Error("Failed to release reservation",
			zap.String("reservation_id", r.ID), zap.String("user_id", r.UserID), zap.Error(err))
		return err
	}

	s.audit.LogLedger(audit.EventRelease, r.ID, r.UserID, r.Amount, "RELEASED",
		map[string]string{"reason": reason})
	return nil
}
