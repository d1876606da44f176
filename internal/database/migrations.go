package database

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS token_balances (
		user_id TEXT PRIMARY KEY,
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		total_purchased BIGINT NOT NULL DEFAULT 0,
		total_used BIGINT NOT NULL DEFAULT 0,
		last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS token_transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount BIGINT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('purchase', 'usage', 'refund', 'bonus')),
		description TEXT NOT NULL DEFAULT '',
		ai_agent_id TEXT,
		workflow_id TEXT,
		category TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_token_transactions_user_created
		ON token_transactions (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS ai_agents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		configuration JSONB NOT NULL DEFAULT '{}',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		usage_count BIGINT NOT NULL DEFAULT 0,
		last_used TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ai_agents_user ON ai_agents (user_id)`,
	`CREATE TABLE IF NOT EXISTS ai_agent_executions (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL REFERENCES ai_agents (id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		input_data JSONB,
		output_data JSONB,
		tokens_used BIGINT NOT NULL DEFAULT 0,
		execution_time_ms BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed')),
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ai_agent_executions_agent_created
		ON ai_agent_executions (agent_id, created_at DESC)`,
}

// Migrate creates the tables the store needs. Every statement is
// idempotent, so it runs on each start.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}
