package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type MutationKind string

const (
	MutationSetTransactionStatus MutationKind = "set_transaction_status"
	MutationSetUserBalance       MutationKind = "set_user_balance"
	MutationSetAgentFields       MutationKind = "set_agent_fields"
	MutationInsertTransaction    MutationKind = "insert_transaction"
)

// AgentFields is a partial agent update. Nil fields are left untouched.
type AgentFields struct {
	Balance     *decimal.Decimal `json:"balance,omitempty"`
	TotalEarned *decimal.Decimal `json:"total_earned,omitempty"`
}

// Mutation is one store write of a plan. The Expected* fields carry what the engine
// saw in its snapshot; the store only applies the write while they still hold.
type Mutation struct {
	Kind MutationKind `json:"kind"`

	TransactionID  string            `json:"transaction_id,omitempty"`
	Status         TransactionStatus `json:"status,omitempty"`
	ExpectedStatus TransactionStatus `json:"expected_status,omitempty"`
	FundedBy       FundingSource     `json:"funded_by,omitempty"`

	UserID          string          `json:"user_id,omitempty"`
	Balance         decimal.Decimal `json:"balance"`
	ExpectedBalance decimal.Decimal `json:"expected_balance"`

	AgentID       string      `json:"agent_id,omitempty"`
	Agent         AgentFields `json:"agent"`
	ExpectedAgent AgentFields `json:"expected_agent"`

	Transaction *Transaction `json:"transaction,omitempty"`
}

// SetTransactionStatus builds a status transition guarded on the current status.
func SetTransactionStatus(id string, from, to TransactionStatus) Mutation {
	return Mutation{
		Kind:           MutationSetTransactionStatus,
		TransactionID:  id,
		Status:         to,
		ExpectedStatus: from,
	}
}

// WithFunding stamps the funding source onto a status transition.
func (m Mutation) WithFunding(source FundingSource) Mutation {
	m.FundedBy = source
	return m
}

// SetUserBalance builds a balance overwrite guarded on the current balance.
func SetUserBalance(id string, from, to decimal.Decimal) Mutation {
	return Mutation{
		Kind:            MutationSetUserBalance,
		UserID:          id,
		Balance:         to,
		ExpectedBalance: from,
	}
}

// SetAgentFields builds a partial agent update guarded on the current values.
func SetAgentFields(id string, from, to AgentFields) Mutation {
	return Mutation{
		Kind:          MutationSetAgentFields,
		AgentID:       id,
		Agent:         to,
		ExpectedAgent: from,
	}
}

// InsertTransaction builds the creation of a new transaction document.
func InsertTransaction(tx Transaction) Mutation {
	return Mutation{
		Kind:        MutationInsertTransaction,
		Transaction: &tx,
	}
}

// Collection returns the collection a mutation writes to.
func (m Mutation) Collection() Collection {
	switch m.Kind {
	case MutationSetUserBalance:
		return CollectionUsers
	case MutationSetAgentFields:
		return CollectionAgents
	default:
		return CollectionTransactions
	}
}

// Plan is the ordered list of store writes realizing one engine decision.
type Plan struct {
	Mutations []Mutation `json:"mutations"`
}

// Empty reports whether the plan performs no writes.
func (p Plan) Empty() bool {
	return len(p.Mutations) == 0
}

// Collections lists the collections touched by the plan, in first-touch order.
func (p Plan) Collections() []Collection {
	seen := make(map[Collection]bool, len(p.Mutations))
	out := make([]Collection, 0, len(p.Mutations))
	for _, m := range p.Mutations {
		c := m.Collection()
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Inserted returns the transactions created by the plan.
func (p Plan) Inserted() []Transaction {
	var out []Transaction
	for _, m := range p.Mutations {
		if m.Kind == MutationInsertTransaction && m.Transaction != nil {
			out = append(out, *m.Transaction)
		}
	}
	return out
}

// DecimalPtr returns a pointer to a copy of d.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// LedgerEvent is the message payload published to RabbitMQ after a decision is committed.
type LedgerEvent struct {
	Action        string          `json:"action"` // e.g. withdraw.approved, deposit.approved
	TransactionID string          `json:"transaction_id,omitempty"`
	UserID        string          `json:"user_id,omitempty"`
	AgentID       string          `json:"agent_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Commission    decimal.Decimal `json:"commission"`
	CreatedIDs    []string        `json:"created_ids,omitempty"`
	Message       string          `json:"message"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// CollectionChangedEvent is published on ledger.<collection>.changed routing keys.
type CollectionChangedEvent struct {
	Collection Collection `json:"collection"`
	OccurredAt time.Time  `json:"occurred_at"`
}
