package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/flowsyai/backend/internal/middleware"
	"github.com/flowsyai/backend/internal/services"
	"go.uber.org/zap"
)

const maxBodyBytes = 1_048_576

// decodeBody reads exactly one JSON object into dst and validates it. On
// failure the error response has been written and false is returned.
func decodeBody(w http.ResponseWriter, r *http.Request, v *services.ValidationHelper, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := v.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
	}
	return userID, ok
}

// queryInt returns def when the parameter is absent and false when it is
// present but not a positive integer.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// sendServiceError maps service errors onto HTTP statuses.
func sendServiceError(w http.ResponseWriter, log *zap.Logger, err error) {
	var upstream *services.UpstreamAPIError
	var ledgerErr *services.LedgerError

	switch {
	case errors.Is(err, services.ErrAgentNotFound):
		services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, services.ErrAgentInactive):
		services.SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
	case errors.Is(err, services.ErrInsufficientFunds):
		services.SendErrorResponse(w, err.Error(), http.StatusPaymentRequired, nil)
	case errors.Is(err, services.ErrInvalidComplexity),
		errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrVoucherInvalid):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrRateLimited):
		services.SendErrorResponse(w, err.Error(), http.StatusTooManyRequests, nil)
	case errors.Is(err, services.ErrRedisUnavailable),
		errors.Is(err, services.ErrMissingAPIKey):
		services.SendErrorResponse(w, err.Error(), http.StatusServiceUnavailable, nil)
	case errors.Is(err, services.ErrCompletionTimeout):
		services.SendErrorResponse(w, err.Error(), http.StatusGatewayTimeout, nil)
	case errors.As(err, &upstream), errors.Is(err, services.ErrNoChoices):
		services.SendErrorResponse(w, err.Error(), http.StatusBadGateway, nil)
	case errors.As(err, &ledgerErr):
		log.Error("Ledger operation failed", zap.Error(err))
		services.SendErrorResponse(w, "Token ledger unavailable", http.StatusInternalServerError, nil)
	default:
		log.Error("Request failed", zap.Error(err))
		services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
	}
}
