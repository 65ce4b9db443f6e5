/**
 * @description
 * This file defines the `Repository` interface, the contract between the admin-service and
 * the ledger store. The engine never talks to the database; it produces plans which the
 * application layer hands to `ApplyPlan`. The point operations exist for tooling and for
 * the change feed, which reloads whole collections through the List methods.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/shopspring/decimal: Currency amounts.
 * - internal/domain: For the ledger document models and mutation plans.
 */

package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/transfa/admin-service/internal/domain"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrAgentNotFound       = errors.New("agent not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateID         = errors.New("transaction id already exists")
	// ErrConflict means a guarded write found a value different from the one the
	// plan was computed against. The whole plan was rolled back.
	ErrConflict    = errors.New("ledger changed since snapshot")
	ErrEmptyUpdate = errors.New("update carries no fields")
)

// Repository defines the set of methods for interacting with the ledger store.
type Repository interface {
	// Collection reads
	ListUsers(ctx context.Context) ([]domain.User, error)
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
	ListDepositMethods(ctx context.Context) ([]domain.DepositMethod, error)
	GetSettings(ctx context.Context) (domain.Settings, error)

	// Point writes
	SetTransactionStatus(ctx context.Context, id string, status domain.TransactionStatus) error
	SetUserBalance(ctx context.Context, id string, balance decimal.Decimal) error
	SetAgentFields(ctx context.Context, id string, fields domain.AgentFields) error
	InsertTransaction(ctx context.Context, tx domain.Transaction) error

	// ApplyPlan applies every mutation of the plan, in order, as one unit.
	ApplyPlan(ctx context.Context, plan domain.Plan) error
}
