package handlers

import (
	"net/http"

	"github.com/flowsyai/backend/internal/models"
	"github.com/flowsyai/backend/internal/services"
	"go.uber.org/zap"
)

type TokenHandler struct {
	ledger    *services.LedgerService
	validator *services.ValidationHelper
	log       *zap.Logger
}

func NewTokenHandler(ledger *services.LedgerService, log *zap.Logger) *TokenHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenHandler{
		ledger:    ledger,
		validator: services.NewValidationHelper(),
		log:       log.Named("tokens"),
	}
}

// GetBalance returns the caller's balance row
// @Summary Get token balance
// @Tags Tokens
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.TokenBalance
// @Failure 401 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /tokens/balance [get]
func (h *TokenHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	balance, err := h.ledger.GetAccount(r.Context(), userID)
	if err != nil {
		sendServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// OpenAccount opens the caller's balance with the welcome bonus
// @Summary Open token account
// @Tags Tokens
// @Produce json
// @Security BearerAuth
// @Success 201 {object} models.TokenBalance
// @Success 200 {object} models.TokenBalance
// @Router /tokens/account [post]
func (h *TokenHandler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	balance, created, err := h.ledger.OpenAccount(r.Context(), userID)
	if err != nil {
		sendServiceError(w, h.log, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, balance)
}

// GetTransactions lists ledger entries, newest first
// @Summary List token transactions
// @Tags Tokens
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum entries (default 50, max 500)"
// @Success 200 {array} models.TokenTransaction
// @Failure 400 {object} services.ErrorResponse
// @Router /tokens/transactions [get]
func (h *TokenHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(r, "limit", 0)
	if !ok {
		services.SendErrorResponse(w, "limit must be a positive integer", http.StatusBadRequest, nil)
		return
	}

	txs, err := h.ledger.GetTransactions(r.Context(), userID, limit)
	if err != nil {
		sendServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

type purchaseRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0,lte=1000000"`
	Description string `json:"description" validate:"max=200"`
}

// Purchase credits purchased tokens to the caller. Admin only, issued once
// payment has been confirmed.
// @Summary Purchase tokens
// @Description Requires the admin role
// @Tags Tokens
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body handlers.purchaseRequest true "Purchase request"
// @Success 200 {object} models.TokenBalance
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /tokens/purchase [post]
func (h *TokenHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req purchaseRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}
	if req.Description == "" {
		req.Description = "Token purchase"
	}

	if _, err := h.ledger.Add(r.Context(), userID, req.Amount, models.TransactionPurchase, req.Description); err != nil {
		sendServiceError(w, h.log, err)
		return
	}

	balance, err := h.ledger.GetAccount(r.Context(), userID)
	if err != nil {
		sendServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// GetCost prices an interaction without charging for it
// @Summary Calculate interaction cost
// @Tags Tokens
// @Produce json
// @Security BearerAuth
// @Param interactionType query string true "Interaction type"
// @Param complexity query string false "low, medium or high"
// @Success 200 {object} object{interactionType=string,complexity=string,cost=int64}
// @Failure 400 {object} services.ErrorResponse
// @Router /tokens/cost [get]
func (h *TokenHandler) GetCost(w http.ResponseWriter, r *http.Request) {
	interactionType := r.URL.Query().Get("interactionType")
	if interactionType == "" {
		services.SendErrorResponse(w, "interactionType is required", http.StatusBadRequest, nil)
		return
	}
	complexity := r.URL.Query().Get("complexity")
	if complexity == "" {
		complexity = "medium"
	}

	cost, err := h.ledger.CalculateCost(interactionType, complexity)
	if err != nil {
		sendServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"interactionType": interactionType,
		"complexity":      complexity,
		"cost":            cost,
	})
}

// GetAnalytics summarises usage over the last days
// @Summary Usage analytics
// @Tags Tokens
// @Produce json
// @Security BearerAuth
// @Param days query int false "Window in days (default 30)"
// @Success 200 {object} models.UsageAnalytics
// @Router /tokens/analytics [get]
func (h *TokenHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	days, ok := queryInt(r, "days", 0)
	if !ok {
		services.SendErrorResponse(w, "days must be a positive integer", http.StatusBadRequest, nil)
		return
	}

	analytics, err := h.ledger.GetUsageAnalytics(r.Context(), userID, days)
	if err != nil {
		sendServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

// GetUsage returns usage for today and the current month
// @Summary Usage totals
// @Tags Tokens
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{today=int64,thisMonth=int64}
// @Router /tokens/usage [get]
func (h *TokenHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	today, err := h.ledger.GetUsageToday(r.Context(), userID)
	if err != nil {
		sendServiceError(w, h.log, err)
		return
	}
	month, err := h.ledger.GetUsageThisMonth(r.Context(), userID)
	if err != nil {
		sendServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"today": today, "thisMonth": month})
}

// GetDailyUsage returns zero-filled per-day usage, oldest first
// @Summary Daily usage
// @Tags Tokens
// @Produce json
// @Security BearerAuth
// @Param days query int false "Number of days (default 7)"
// @Success 200 {array} models.DailyUsageStat
// @Router /tokens/usage/daily [get]
func (h *TokenHandler) GetDailyUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	days, ok := queryInt(r, "days", 0)
	if !ok || days > 366 {
		services.SendErrorResponse(w, "days must be between 1 and 366", http.StatusBadRequest, nil)
		return
	}

	stats, err := h.ledger.GetDailyUsageStats(r.Context(), userID, days)
	if err != nil {
		sendServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
