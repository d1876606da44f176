package handlers

import (
	"github.com/flowsyai/backend/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RoleAdmin is the JWT role allowed to mint tokens, by purchase or voucher.
const RoleAdmin = "admin"

// API groups the handlers served under /api/v1.
type API struct {
	Tokens      *TokenHandler
	Agents      *AgentHandler
	Vouchers    *VoucherHandler
	Completions *CompletionHandler
}

// Routes registers every endpoint on r. Authentication must already be
// installed on r; minting endpoints additionally require RoleAdmin.
func (a *API) Routes(r chi.Router) {
	admin := middleware.RequireRole(RoleAdmin)

	r.Get("/tokens/balance", a.Tokens.GetBalance)
	r.Post("/tokens/account", a.Tokens.OpenAccount)
	r.Get("/tokens/transactions", a.Tokens.GetTransactions)
	r.With(admin).Post("/tokens/purchase", a.Tokens.Purchase)
	r.Get("/tokens/cost", a.Tokens.GetCost)
	r.Get("/tokens/analytics", a.Tokens.GetAnalytics)
	r.Get("/tokens/usage", a.Tokens.GetUsage)
	r.Get("/tokens/usage/daily", a.Tokens.GetDailyUsage)

	r.With(admin).Post("/vouchers", a.Vouchers.IssueVoucher)
	r.Post("/vouchers/redeem", a.Vouchers.RedeemVoucher)

	r.Post("/agents", a.Agents.CreateAgent)
	r.Get("/agents", a.Agents.ListAgents)
	r.Get("/agents/{agentId}", a.Agents.GetAgent)
	r.Post("/agents/{agentId}/execute", a.Agents.ExecuteAgent)
	r.Get("/agents/{agentId}/executions", a.Agents.ListExecutions)

	r.Post("/completions/analyze", a.Completions.Analyze)
	r.Get("/completions/health", a.Completions.Health)
}
