/**
 * @description
 * Package engine holds the pure decision logic of the admin console. Given a snapshot of
 * users, agents and transactions it decides whether an operator action may proceed,
 * computes balance deltas and commission, and returns the ordered plan of store writes
 * that realizes the decision. It performs no I/O; applying the plan is the caller's job.
 *
 * @dependencies
 * - github.com/shopspring/decimal: currency arithmetic.
 * - github.com/google/uuid: time-ordered identifiers for synthesized ledger entries.
 */

package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/admin-service/internal/domain"
)

var (
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrTransactionNotPending  = errors.New("transaction is no longer pending")
	ErrWrongTransactionKind   = errors.New("transaction kind does not match the action")
	ErrUserNotFound           = errors.New("user not found")
	ErrAgentNotFound          = errors.New("agent not found")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInsufficientAgentFunds = errors.New("insufficient agent funds")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidAction          = errors.New("invalid action")
)

// ShortfallError reports a balance that cannot cover a requested amount.
type ShortfallError struct {
	Party    string // "user" or "agent"
	ID       string
	Name     string
	Balance  decimal.Decimal
	Required decimal.Decimal
	kind     error
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("%v: %s %s only has %s, requires %s", e.kind, e.Party, e.Name, e.Balance.String(), e.Required.String())
}

func (e *ShortfallError) Unwrap() error {
	return e.kind
}

// Action is an operator verdict on a pending request.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ParseAction validates an action name.
func ParseAction(raw string) (Action, error) {
	switch Action(raw) {
	case ActionApprove, ActionReject:
		return Action(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, raw)
}

// Funding tells how an approved deposit was funded.
type Funding string

const (
	FundingAgent Funding = "agent"
	FundingAdmin Funding = "admin"
)

// Decision is the outcome of a successful engine call.
type Decision struct {
	Event         string // e.g. withdraw.approved
	Plan          domain.Plan
	Message       string
	TransactionID string
	UserID        string
	AgentID       string
	Amount        decimal.Decimal
	Commission    decimal.Decimal
	Funding       Funding
}

// Engine makes ledger decisions against snapshots.
type Engine struct {
	now   func() time.Time
	newID func(prefix string) string
}

// New returns an engine using the wall clock and UUIDv7 record identifiers.
func New() *Engine {
	return &Engine{now: time.Now, newID: newRecordID}
}

// NewWithClock returns an engine with injected time and id sources.
func NewWithClock(now func() time.Time, newID func(prefix string) string) *Engine {
	e := New()
	if now != nil {
		e.now = now
	}
	if newID != nil {
		e.newID = newID
	}
	return e
}

func newRecordID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + "-" + id.String()
}

func (e *Engine) today() string {
	return e.now().UTC().Format(domain.DateLayout)
}

// pendingTransaction locates a transaction of the expected kind that is still pending.
func pendingTransaction(snap domain.Snapshot, id string, kind domain.TransactionType) (domain.Transaction, error) {
	tx, ok := snap.FindTransaction(id)
	if !ok {
		return domain.Transaction{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	if tx.Type != kind {
		return domain.Transaction{}, fmt.Errorf("%w: %s is a %s, expected %s", ErrWrongTransactionKind, id, tx.Type, kind)
	}
	if tx.Status != domain.StatusPending {
		return domain.Transaction{}, fmt.Errorf("%w: %s is %s", ErrTransactionNotPending, id, tx.Status)
	}
	if !tx.Amount.IsPositive() {
		return domain.Transaction{}, fmt.Errorf("%w: %s has amount %s", ErrInvalidAmount, id, tx.Amount.String())
	}
	return tx, nil
}
