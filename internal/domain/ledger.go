/**
 * @description
 * This file defines the core domain models for the admin-service. These structs mirror
 * the documents held by the ledger store (users, agents, transactions, deposit methods
 * and settings) and are shared by the engine, the store and the API layers.
 *
 * @notes
 * - Currency amounts use `decimal.Decimal` so that commission fractions such as
 *   (amount / 1000) * rate are never subject to floating-point drift.
 * - Dates on transactions are calendar dates (YYYY-MM-DD), matching what the
 *   operator console displays and filters on.
 */

package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format stored on transactions.
const DateLayout = "2006-01-02"

type UserStatus string

const (
	UserStatusActive  UserStatus = "active"
	UserStatusBlocked UserStatus = "blocked"
)

type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdraw   TransactionType = "withdraw"
	TransactionCommission TransactionType = "commission"
	TransactionAdjustment TransactionType = "adjustment"
	TransactionBonus      TransactionType = "bonus"
)

// Valid reports whether t is one of the known transaction kinds.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionDeposit, TransactionWithdraw, TransactionCommission, TransactionAdjustment, TransactionBonus:
		return true
	}
	return false
}

type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusApproved TransactionStatus = "approved"
	StatusRejected TransactionStatus = "rejected"
)

// Valid reports whether s is one of the known transaction statuses.
func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// FundingSource records who paid for an approved deposit.
type FundingSource string

const (
	FundedByAgent FundingSource = "agent"
	FundedByAdmin FundingSource = "admin"
)

// SystemMethod is the method recorded on ledger entries synthesized by the engine.
const SystemMethod = "System"

// User is an end customer holding a balance on the platform.
type User struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Phone      string          `json:"phone"`
	Balance    decimal.Decimal `json:"balance"`
	Status     UserStatus      `json:"status"`
	JoinedDate string          `json:"joined_date"`
}

// Agent is a commission-earning sub-agent that funds user deposits from its own float.
type Agent struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Phone          string          `json:"phone"`
	Balance        decimal.Decimal `json:"balance"`
	CommissionRate decimal.Decimal `json:"commission_rate"` // earned per 1000 units processed
	IsActive       bool            `json:"is_active"`
	TotalEarned    decimal.Decimal `json:"total_earned"`
}

// Transaction is a requested or completed money movement.
type Transaction struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	UserEmail string            `json:"user_email"`
	Type      TransactionType   `json:"type"`
	Amount    decimal.Decimal   `json:"amount"`
	Date      string            `json:"date"`
	Status    TransactionStatus `json:"status"`
	Method    string            `json:"method,omitempty"`
	Details   string            `json:"details,omitempty"`
	AgentID   string            `json:"agent_id,omitempty"`
	FundedBy  FundingSource     `json:"funded_by,omitempty"` // set when a deposit is approved
}

// HasAgent reports whether the transaction references an agent.
func (t Transaction) HasAgent() bool {
	return strings.TrimSpace(t.AgentID) != ""
}

// AgentFunded reports whether an approved deposit was paid out of its agent's float. A
// deposit that names an agent may still have been funded by the platform.
func (t Transaction) AgentFunded() bool {
	return t.Type == TransactionDeposit && t.FundedBy == FundedByAgent && t.HasAgent()
}

// DepositMethod is a payout/deposit channel advertised to users. Read-only here.
type DepositMethod struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"` // Personal, Agent, Merchant
	Number       string          `json:"number"`
	MinAmount    decimal.Decimal `json:"min_amount"`
	MaxAmount    decimal.Decimal `json:"max_amount"`
	Instruction  string          `json:"instruction"`
	Requirements []string        `json:"requirements"`
	Status       string          `json:"status"`
	AddedBy      string          `json:"added_by"`
	AgentName    string          `json:"agent_name,omitempty"`
	AgentID      string          `json:"agent_id,omitempty"`
	Audience     string          `json:"audience"`
}

// Settings holds platform-wide configuration published to the apps. Read-only here.
type Settings struct {
	DollarRate      decimal.Decimal `json:"dollar_rate"`
	NoticeText      string          `json:"notice_text"`
	TelegramLink    string          `json:"telegram_link"`
	WhatsappLink    string          `json:"whatsapp_link"`
	MinWithdraw     decimal.Decimal `json:"min_withdraw"`
	WithdrawMethods []string        `json:"withdraw_methods"`
}
