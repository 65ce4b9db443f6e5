package store

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL DEFAULT '',
		email       TEXT NOT NULL DEFAULT '',
		phone       TEXT NOT NULL DEFAULT '',
		balance     NUMERIC NOT NULL DEFAULT 0,
		status      TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'blocked')),
		joined_date DATE NOT NULL DEFAULT CURRENT_DATE
	)`,
	`CREATE INDEX IF NOT EXISTS users_email_idx ON users (email)`,
	`CREATE TABLE IF NOT EXISTS agents (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL DEFAULT '',
		phone           TEXT NOT NULL DEFAULT '',
		balance         NUMERIC NOT NULL DEFAULT 0,
		commission_rate NUMERIC NOT NULL DEFAULT 0,
		is_active       BOOLEAN NOT NULL DEFAULT TRUE,
		total_earned    NUMERIC NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL DEFAULT '',
		user_email TEXT NOT NULL DEFAULT '',
		type       TEXT NOT NULL CHECK (type IN ('deposit', 'withdraw', 'commission', 'adjustment', 'bonus')),
		amount     NUMERIC NOT NULL CHECK (amount >= 0),
		date       DATE NOT NULL DEFAULT CURRENT_DATE,
		status     TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
		method     TEXT,
		details    TEXT,
		agent_id   TEXT,
		funded_by  TEXT CHECK (funded_by IN ('agent', 'admin')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE transactions ADD COLUMN IF NOT EXISTS funded_by TEXT CHECK (funded_by IN ('agent', 'admin'))`,
	`CREATE INDEX IF NOT EXISTS transactions_status_type_idx ON transactions (status, type)`,
	`CREATE TABLE IF NOT EXISTS deposit_methods (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL DEFAULT '',
		type         TEXT NOT NULL DEFAULT '',
		number       TEXT NOT NULL DEFAULT '',
		min_amount   NUMERIC NOT NULL DEFAULT 0,
		max_amount   NUMERIC NOT NULL DEFAULT 0,
		instruction  TEXT NOT NULL DEFAULT '',
		requirements TEXT[] NOT NULL DEFAULT '{}',
		status       TEXT NOT NULL DEFAULT 'active',
		added_by     TEXT NOT NULL DEFAULT 'admin',
		agent_name   TEXT,
		agent_id     TEXT,
		audience     TEXT NOT NULL DEFAULT 'all'
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id               INTEGER PRIMARY KEY CHECK (id = 1),
		dollar_rate      NUMERIC NOT NULL DEFAULT 0,
		notice_text      TEXT NOT NULL DEFAULT '',
		telegram_link    TEXT NOT NULL DEFAULT '',
		whatsapp_link    TEXT NOT NULL DEFAULT '',
		min_withdraw     NUMERIC NOT NULL DEFAULT 0,
		withdraw_methods TEXT[] NOT NULL DEFAULT '{}'
	)`,
}

// EnsureSchema creates the ledger tables when they do not exist yet. It is safe to run on
// every start.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	for i, stmt := range schemaStatements {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
