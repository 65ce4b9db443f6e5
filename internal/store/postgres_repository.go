/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * Currency columns are NUMERIC and travel as text in both directions so that no amount
 * ever passes through a float.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: Parsing NUMERIC text into currency amounts.
 * - internal/domain: Contains the ledger models and mutation plans.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/transfa/admin-service/internal/domain"
)

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListUsers returns every user ordered by join date.
func (r *PostgresRepository) ListUsers(ctx context.Context) ([]domain.User, error) {
	query := `
		SELECT id, name, email, phone, balance::text, status, to_char(joined_date, 'YYYY-MM-DD')
		FROM users
		ORDER BY joined_date, id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var (
			user    domain.User
			balance string
			status  string
		)
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.Phone, &balance, &status, &user.JoinedDate); err != nil {
			return nil, err
		}
		if user.Balance, err = parseNumeric("users.balance", balance); err != nil {
			return nil, err
		}
		user.Status = domain.UserStatus(status)
		users = append(users, user)
	}
	return users, rows.Err()
}

// ListAgents returns every agent ordered by name.
func (r *PostgresRepository) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	query := `
		SELECT id, name, phone, balance::text, commission_rate::text, is_active, total_earned::text
		FROM agents
		ORDER BY name, id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agents := make([]domain.Agent, 0)
	for rows.Next() {
		var (
			agent       domain.Agent
			balance     string
			rate        string
			totalEarned string
		)
		if err := rows.Scan(&agent.ID, &agent.Name, &agent.Phone, &balance, &rate, &agent.IsActive, &totalEarned); err != nil {
			return nil, err
		}
		if agent.Balance, err = parseNumeric("agents.balance", balance); err != nil {
			return nil, err
		}
		if agent.CommissionRate, err = parseNumeric("agents.commission_rate", rate); err != nil {
			return nil, err
		}
		if agent.TotalEarned, err = parseNumeric("agents.total_earned", totalEarned); err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// ListTransactions returns every transaction, newest first.
func (r *PostgresRepository) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	query := `
		SELECT id, user_id, user_email, type, amount::text, to_char(date, 'YYYY-MM-DD'), status,
			COALESCE(method, ''), COALESCE(details, ''), COALESCE(agent_id, ''), COALESCE(funded_by, '')
		FROM transactions
		ORDER BY date DESC, created_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0)
	for rows.Next() {
		var (
			tx       domain.Transaction
			kind     string
			status   string
			amount   string
			fundedBy string
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.UserEmail, &kind, &amount, &tx.Date, &status, &tx.Method, &tx.Details, &tx.AgentID, &fundedBy); err != nil {
			return nil, err
		}
		if tx.Amount, err = parseNumeric("transactions.amount", amount); err != nil {
			return nil, err
		}
		tx.Type = domain.TransactionType(kind)
		tx.Status = domain.TransactionStatus(status)
		tx.FundedBy = domain.FundingSource(fundedBy)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// ListDepositMethods returns every configured deposit method.
func (r *PostgresRepository) ListDepositMethods(ctx context.Context) ([]domain.DepositMethod, error) {
	query := `
		SELECT id, name, type, number, min_amount::text, max_amount::text, instruction,
			requirements, status, added_by, COALESCE(agent_name, ''), COALESCE(agent_id, ''), audience
		FROM deposit_methods
		ORDER BY name, id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	methods := make([]domain.DepositMethod, 0)
	for rows.Next() {
		var (
			m         domain.DepositMethod
			minAmount string
			maxAmount string
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Type, &m.Number, &minAmount, &maxAmount, &m.Instruction,
			&m.Requirements, &m.Status, &m.AddedBy, &m.AgentName, &m.AgentID, &m.Audience); err != nil {
			return nil, err
		}
		if m.MinAmount, err = parseNumeric("deposit_methods.min_amount", minAmount); err != nil {
			return nil, err
		}
		if m.MaxAmount, err = parseNumeric("deposit_methods.max_amount", maxAmount); err != nil {
			return nil, err
		}
		if m.Requirements == nil {
			m.Requirements = []string{}
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

// GetSettings returns the platform settings row. Before any settings are published the
// zero value is returned.
func (r *PostgresRepository) GetSettings(ctx context.Context) (domain.Settings, error) {
	query := `
		SELECT dollar_rate::text, notice_text, telegram_link, whatsapp_link, min_withdraw::text, withdraw_methods
		FROM settings
		WHERE id = 1
	`
	var (
		settings    domain.Settings
		dollarRate  string
		minWithdraw string
	)
	err := r.db.QueryRow(ctx, query).Scan(&dollarRate, &settings.NoticeText, &settings.TelegramLink,
		&settings.WhatsappLink, &minWithdraw, &settings.WithdrawMethods)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Settings{WithdrawMethods: []string{}}, nil
		}
		return domain.Settings{}, err
	}
	if settings.DollarRate, err = parseNumeric("settings.dollar_rate", dollarRate); err != nil {
		return domain.Settings{}, err
	}
	if settings.MinWithdraw, err = parseNumeric("settings.min_withdraw", minWithdraw); err != nil {
		return domain.Settings{}, err
	}
	if settings.WithdrawMethods == nil {
		settings.WithdrawMethods = []string{}
	}
	return settings, nil
}

// SetTransactionStatus sets the status field of one transaction.
func (r *PostgresRepository) SetTransactionStatus(ctx context.Context, id string, status domain.TransactionStatus) error {
	stmt, err := transactionStatusStatement(domain.Mutation{TransactionID: id, Status: status}, false)
	if err != nil {
		return err
	}
	return execExpectingRow(ctx, r.db, stmt, ErrTransactionNotFound)
}

// SetUserBalance overwrites the balance field of one user.
func (r *PostgresRepository) SetUserBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	stmt := userBalanceStatement(domain.Mutation{UserID: id, Balance: balance}, false)
	return execExpectingRow(ctx, r.db, stmt, ErrUserNotFound)
}

// SetAgentFields overwrites the given fields of one agent.
func (r *PostgresRepository) SetAgentFields(ctx context.Context, id string, fields domain.AgentFields) error {
	stmt, err := agentFieldsStatement(domain.Mutation{AgentID: id, Agent: fields}, false)
	if err != nil {
		return err
	}
	return execExpectingRow(ctx, r.db, stmt, ErrAgentNotFound)
}

// InsertTransaction creates a transaction document with the caller-supplied id.
func (r *PostgresRepository) InsertTransaction(ctx context.Context, tx domain.Transaction) error {
	stmt, err := insertTransactionStatement(tx)
	if err != nil {
		return err
	}
	return execExpectingRow(ctx, r.db, stmt, ErrDuplicateID)
}

// ApplyPlan applies all mutations of a plan inside a single database transaction.
// Every write is conditional on the value the plan was computed against; the first
// write that matches no row aborts the plan with ErrConflict and nothing is kept.
func (r *PostgresRepository) ApplyPlan(ctx context.Context, plan domain.Plan) error {
	if plan.Empty() {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := applyMutations(ctx, tx, plan); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

func applyMutations(ctx context.Context, q execer, plan domain.Plan) error {
	for i, m := range plan.Mutations {
		stmt, err := mutationStatement(m, true)
		if err != nil {
			return fmt.Errorf("mutation %d (%s): %w", i, describeMutation(m), err)
		}
		if err := execExpectingRow(ctx, q, stmt, ErrConflict); err != nil {
			return fmt.Errorf("mutation %d (%s): %w", i, describeMutation(m), err)
		}
	}
	return nil
}

// execExpectingRow runs a single-row write and maps zero affected rows to missing.
func execExpectingRow(ctx context.Context, q execer, stmt statement, missing error) error {
	result, err := q.Exec(ctx, stmt.sql, stmt.args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return missing
	}
	return nil
}

func parseNumeric(column, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", column, raw, err)
	}
	return d, nil
}
