package handlers

import (
	"net/http"

	"github.com/flowsyai/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type AgentHandler struct {
	agents    *services.AgentService
	validator *services.ValidationHelper
	log       *zap.Logger
}

func NewAgentHandler(agents *services.AgentService, log *zap.Logger) *AgentHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AgentHandler{
		agents:    agents,
		validator: services.NewValidationHelper(),
		log:       log.Named("agents"),
	}
}

// CreateAgent registers a new agent for the caller
// @Summary Create AI agent
// @Tags Agents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateAgentRequest true "Agent definition"
// @Success 201 {object} models.AIAgent
// @Failure 400 {object} services.ErrorResponse
// @Router /agents [post]
func (h *AgentHandler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req services.CreateAgentRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	agent, err := h.agents.CreateAgent(r.Context(), userID, req)
	if err != nil {
		sendServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

// ListAgents
// @Summary List AI agents
// @Tags Agents
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.AIAgent
// @Router /agents [get]
func (h *AgentHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	agents, err := h.agents.ListAgents(r.Context(), userID)
	if err != nil {
		sendServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

// GetAgent
// @Summary Get AI agent
// @Tags Agents
// @Produce json
// @Security BearerAuth
// @Param agentId path string true "Agent ID"
// @Success 200 {object} models.AIAgent
// @Failure 404 {object} services.ErrorResponse
// @Router /agents/{agentId} [get]
func (h *AgentHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	agent, err := h.agents.GetAgent(r.Context(), chi.URLParam(r, "agentId"), userID)
	if err != nil {
		sendServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

type executeRequest struct {
	Input      map[string]any `json:"input"`
	Complexity string         `json:"complexity" validate:"omitempty,oneof=low medium high"`
}

// ExecuteAgent runs the agent once and charges the caller. A failed run is
// refunded and still answers 200 with status "failed".
// @Summary Execute AI agent
// @Tags Agents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param agentId path string true "Agent ID"
// @Param request body handlers.executeRequest true "Execution input"
// @Success 200 {object} models.AIAgentExecution
// @Failure 402 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Router /agents/{agentId}/execute [post]
func (h *AgentHandler) ExecuteAgent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req executeRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	execution, err := h.agents.Execute(r.Context(), services.ExecuteRequest{
		AgentID:    chi.URLParam(r, "agentId"),
		UserID:     userID,
		Input:      req.Input,
		Complexity: req.Complexity,
	})
	if err != nil {
		sendServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, execution)
}

// ListExecutions
// @Summary List agent executions
// @Tags Agents
// @Produce json
// @Security BearerAuth
// @Param agentId path string true "Agent ID"
// @Param limit query int false "Maximum entries (default 20, max 100)"
// @Success 200 {array} models.AIAgentExecution
// @Failure 404 {object} services.ErrorResponse
// @Router /agents/{agentId}/executions [get]
func (h *AgentHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(r, "limit", 0)
	if !ok {
		services.SendErrorResponse(w, "limit must be a positive integer", http.StatusBadRequest, nil)
		return
	}

	executions, err := h.agents.ListExecutions(r.Context(), chi.URLParam(r, "agentId"), userID, limit)
	if err != nil {
		sendServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, executions)
}
