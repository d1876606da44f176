package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flowsyai/backend/internal/models"
)

// PostgresStore implements Store on top of database/sql with the lib/pq driver.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetBalance(ctx context.Context, userID string) (*models.TokenBalance, error) {
	var b models.TokenBalance
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, balance, total_purchased, total_used, last_updated
		FROM token_balances
		WHERE user_id = $1`, userID).
		Scan(&b.UserID, &b.Balance, &b.TotalPurchased, &b.TotalUsed, &b.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch balance: %w", err)
	}
	return &b, nil
}

func (s *PostgresStore) CreateBalance(ctx context.Context, entry *models.TokenTransaction) (*models.TokenBalance, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	purchased := int64(0)
	if entry.Type == models.TransactionPurchase {
		purchased = entry.Amount
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO token_balances (user_id, balance, total_purchased, total_used, last_updated)
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (user_id) DO NOTHING`,
		entry.UserID, entry.Amount, purchased, entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("open balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, ErrAlreadyExists
	}

	if entry.Amount != 0 {
		if err := insertTransaction(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &models.TokenBalance{
		UserID:         entry.UserID,
		Balance:        entry.Amount,
		TotalPurchased: purchased,
		LastUpdated:    entry.CreatedAt,
	}, nil
}

// Debit is a single conditional decrement; the WHERE clause is the balance
// check, so concurrent debits for one user cannot both pass it.
func (s *PostgresStore) Debit(ctx context.Context, entry *models.TokenTransaction) (*models.TokenBalance, error) {
	if entry.Amount > 0 {
		return nil, fmt.Errorf("debit amount must be negative, got %d", entry.Amount)
	}
	amount := -entry.Amount

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// A user without a row has a zero balance; the row is only kept if the debit commits.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO token_balances (user_id, balance, total_purchased, total_used, last_updated)
		VALUES ($1, 0, 0, 0, $2)
		ON CONFLICT (user_id) DO NOTHING`,
		entry.UserID, entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("ensure balance: %w", err)
	}

	b := models.TokenBalance{UserID: entry.UserID}
	err = tx.QueryRowContext(ctx, `
		UPDATE token_balances
		SET balance = balance - $1, total_used = total_used + $1, last_updated = $2
		WHERE user_id = $3 AND balance >= $1
		RETURNING balance, total_purchased, total_used, last_updated`,
		amount, entry.CreatedAt, entry.UserID).
		Scan(&b.Balance, &b.TotalPurchased, &b.TotalUsed, &b.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInsufficientFunds
	}
	if err != nil {
		return nil, fmt.Errorf("debit balance: %w", err)
	}

	if err := insertTransaction(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) Credit(ctx context.Context, entry *models.TokenTransaction) (*models.TokenBalance, error) {
	if entry.Amount < 0 {
		return nil, fmt.Errorf("credit amount must be positive, got %d", entry.Amount)
	}

	var purchased, refunded int64
	switch entry.Type {
	case models.TransactionPurchase:
		purchased = entry.Amount
	case models.TransactionRefund:
		refunded = entry.Amount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	b := models.TokenBalance{UserID: entry.UserID}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO token_balances (user_id, balance, total_purchased, total_used, last_updated)
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = token_balances.balance + EXCLUDED.balance,
			total_purchased = token_balances.total_purchased + EXCLUDED.total_purchased,
			total_used = GREATEST(token_balances.total_used - $5, 0),
			last_updated = EXCLUDED.last_updated
		RETURNING balance, total_purchased, total_used, last_updated`,
		entry.UserID, entry.Amount, purchased, entry.CreatedAt, refunded).
		Scan(&b.Balance, &b.TotalPurchased, &b.TotalUsed, &b.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("credit balance: %w", err)
	}

	if err := insertTransaction(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, userID string, limit int) ([]models.TokenTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, type, description, ai_agent_id, workflow_id, category, created_at
		FROM token_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func (s *PostgresStore) FindTransactions(ctx context.Context, filter TransactionFilter) ([]models.TokenTransaction, error) {
	query := `
		SELECT id, user_id, amount, type, description, ai_agent_id, workflow_id, category, created_at
		FROM token_transactions
		WHERE user_id = $1 AND created_at >= $2`
	args := []any{filter.UserID, filter.From}

	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func (s *PostgresStore) CreateAgent(ctx context.Context, agent *models.AIAgent) error {
	config, err := json.Marshal(agent.Configuration)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ai_agents (id, user_id, name, type, description, configuration, is_active, usage_count, last_used, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		agent.ID, agent.UserID, agent.Name, string(agent.Type), agent.Description, config,
		agent.IsActive, agent.UsageCount, agent.LastUsed, agent.CreatedAt, agent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAgent(ctx context.Context, agentID, userID string) (*models.AIAgent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, type, description, configuration, is_active, usage_count, last_used, created_at, updated_at
		FROM ai_agents
		WHERE id = $1 AND user_id = $2`, agentID, userID)

	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch agent: %w", err)
	}
	return agent, nil
}

func (s *PostgresStore) ListAgents(ctx context.Context, userID string) ([]models.AIAgent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, type, description, configuration, is_active, usage_count, last_used, created_at, updated_at
		FROM ai_agents
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	agents := []models.AIAgent{}
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *agent)
	}
	return agents, rows.Err()
}

func (s *PostgresStore) RecordAgentUsage(ctx context.Context, agentID string, usedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE ai_agents
		SET usage_count = usage_count + 1, last_used = $1, updated_at = $1
		WHERE id = $2`, usedAt, agentID)
	if err != nil {
		return fmt.Errorf("record agent usage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateExecution(ctx context.Context, e *models.AIAgentExecution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_agent_executions (id, agent_id, user_id, input_data, output_data, tokens_used, execution_time_ms, status, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.AgentID, e.UserID, e.InputData, e.OutputData, e.TokensUsed,
		e.ExecutionTimeMS, string(e.Status), nullString(e.ErrorMessage), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListExecutions(ctx context.Context, agentID, userID string, limit int) ([]models.AIAgentExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, user_id, input_data, output_data, tokens_used, execution_time_ms, status, error_message, created_at
		FROM ai_agent_executions
		WHERE agent_id = $1 AND user_id = $2
		ORDER BY created_at DESC
		LIMIT $3`, agentID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	executions := []models.AIAgentExecution{}
	for rows.Next() {
		var e models.AIAgentExecution
		var status string
		var errMsg sql.NullString
		if err := rows.Scan(&e.ID, &e.AgentID, &e.UserID, &e.InputData, &e.OutputData, &e.TokensUsed,
			&e.ExecutionTimeMS, &status, &errMsg, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Status = models.ExecutionStatus(status)
		e.ErrorMessage = errMsg.String
		executions = append(executions, e)
	}
	return executions, rows.Err()
}

func insertTransaction(ctx context.Context, tx *sql.Tx, entry *models.TokenTransaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO token_transactions (id, user_id, amount, type, description, ai_agent_id, workflow_id, category, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.UserID, entry.Amount, string(entry.Type), entry.Description,
		nullString(entry.AIAgentID), nullString(entry.WorkflowID), nullString(entry.Category), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func scanTransactions(rows *sql.Rows) ([]models.TokenTransaction, error) {
	transactions := []models.TokenTransaction{}
	for rows.Next() {
		var t models.TokenTransaction
		var txType string
		var agentID, workflowID, category sql.NullString
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &txType, &t.Description,
			&agentID, &workflowID, &category, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = models.TransactionType(txType)
		t.AIAgentID = agentID.String
		t.WorkflowID = workflowID.String
		t.Category = category.String
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*models.AIAgent, error) {
	var a models.AIAgent
	var agentType string
	var config []byte
	var lastUsed sql.NullTime
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &agentType, &a.Description, &config,
		&a.IsActive, &a.UsageCount, &lastUsed, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Type = models.AgentType(agentType)
	if lastUsed.Valid {
		a.LastUsed = &lastUsed.Time
	}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &a.Configuration); err != nil {
			return nil, fmt.Errorf("decode agent configuration: %w", err)
		}
	}
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
