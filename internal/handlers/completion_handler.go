package handlers

import (
	"context"
	"net/http"

	"github.com/flowsyai/backend/internal/services"
	"go.uber.org/zap"
)

// TextAnalyzer is the completion client surface exposed over HTTP.
type TextAnalyzer interface {
	AnalyzeText(ctx context.Context, text, kind string) (map[string]any, error)
	HealthCheck(ctx context.Context) bool
}

type CompletionHandler struct {
	// analyzer is nil when no OpenAI key is configured.
	analyzer  TextAnalyzer
	validator *services.ValidationHelper
	log       *zap.Logger
}

func NewCompletionHandler(analyzer TextAnalyzer, log *zap.Logger) *CompletionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CompletionHandler{
		analyzer:  analyzer,
		validator: services.NewValidationHelper(),
		log:       log.Named("completions"),
	}
}

type analyzeRequest struct {
	Text string `json:"text" validate:"required,max=20000"`
	Type string `json:"type" validate:"omitempty,oneof=sentiment entities summary"`
}

// Analyze runs a sentiment, entities or summary analysis
// @Summary Analyze text
// @Tags Completions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body handlers.analyzeRequest true "Analysis request"
// @Success 200 {object} object
// @Failure 502 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Failure 504 {object} services.ErrorResponse
// @Router /completions/analyze [post]
func (h *CompletionHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	var req analyzeRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}
	if h.analyzer == nil {
		sendServiceError(w, h.log, services.ErrMissingAPIKey)
		return
	}

	result, err := h.analyzer.AnalyzeText(r.Context(), req.Text, req.Type)
	if err != nil {
		sendServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Health reports whether the completion provider answers
// @Summary Completion provider health
// @Tags Completions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{configured=bool,healthy=bool}
// @Failure 503 {object} object{configured=bool,healthy=bool}
// @Router /completions/health [get]
func (h *CompletionHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"configured": false, "healthy": false})
		return
	}

	healthy := h.analyzer.HealthCheck(r.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]bool{"configured": true, "healthy": healthy})
}
