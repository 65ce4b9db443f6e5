package store

import (
	"fmt"
	"strings"

	"github.com/transfa/admin-service/internal/domain"
)

// statement is one SQL write with its positional arguments.
type statement struct {
	sql  string
	args []any
}

// argList hands out $n placeholders in the order values are appended.
type argList struct {
	values []any
}

func (a *argList) add(v any) string {
	a.values = append(a.values, v)
	return fmt.Sprintf("$%d", len(a.values))
}

// transactionStatusStatement sets a transaction's status. When guarded, the update only
// matches while the row still carries the expected status.
func transactionStatusStatement(m domain.Mutation, guarded bool) (statement, error) {
	if !m.Status.Valid() {
		return statement{}, fmt.Errorf("invalid status %q", m.Status)
	}
	var args argList
	sql := "UPDATE transactions SET status = " + args.add(string(m.Status))
	if m.FundedBy != "" {
		sql += ", funded_by = " + args.add(string(m.FundedBy))
	}
	sql += " WHERE id = " + args.add(m.TransactionID)
	if guarded && m.ExpectedStatus != "" {
		sql += " AND status = " + args.add(string(m.ExpectedStatus))
	}
	return statement{sql: sql, args: args.values}, nil
}

// userBalanceStatement overwrites a user's balance. When guarded, the update only matches
// while the stored balance numerically equals the expected one.
func userBalanceStatement(m domain.Mutation, guarded bool) statement {
	var args argList
	sql := "UPDATE users SET balance = " + args.add(m.Balance.String()) + "::numeric WHERE id = " + args.add(m.UserID)
	if guarded {
		sql += " AND balance = " + args.add(m.ExpectedBalance.String()) + "::numeric"
	}
	return statement{sql: sql, args: args.values}
}

// agentFieldsStatement overwrites the non-nil agent fields. When guarded, every non-nil
// expected field must still hold.
func agentFieldsStatement(m domain.Mutation, guarded bool) (statement, error) {
	var (
		args  argList
		sets  []string
		conds []string
	)
	if m.Agent.Balance != nil {
		sets = append(sets, "balance = "+args.add(m.Agent.Balance.String())+"::numeric")
	}
	if m.Agent.TotalEarned != nil {
		sets = append(sets, "total_earned = "+args.add(m.Agent.TotalEarned.String())+"::numeric")
	}
	if len(sets) == 0 {
		return statement{}, fmt.Errorf("agent %s: %w", m.AgentID, ErrEmptyUpdate)
	}

	conds = append(conds, "id = "+args.add(m.AgentID))
	if guarded {
		if m.ExpectedAgent.Balance != nil {
			conds = append(conds, "balance = "+args.add(m.ExpectedAgent.Balance.String())+"::numeric")
		}
		if m.ExpectedAgent.TotalEarned != nil {
			conds = append(conds, "total_earned = "+args.add(m.ExpectedAgent.TotalEarned.String())+"::numeric")
		}
	}

	sql := "UPDATE agents SET " + strings.Join(sets, ", ") + " WHERE " + strings.Join(conds, " AND ")
	return statement{sql: sql, args: args.values}, nil
}

// insertTransactionStatement creates a transaction document with the caller's id.
// An existing id matches nothing and surfaces as zero affected rows.
func insertTransactionStatement(tx domain.Transaction) (statement, error) {
	if strings.TrimSpace(tx.ID) == "" {
		return statement{}, fmt.Errorf("transaction id is required")
	}
	if !tx.Type.Valid() {
		return statement{}, fmt.Errorf("invalid transaction type %q", tx.Type)
	}
	if !tx.Status.Valid() {
		return statement{}, fmt.Errorf("invalid status %q", tx.Status)
	}
	sql := `
		INSERT INTO transactions (id, user_id, user_email, type, amount, date, status, method, details, agent_id)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::date, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	return statement{sql: sql, args: []any{
		tx.ID,
		tx.UserID,
		tx.UserEmail,
		string(tx.Type),
		tx.Amount.String(),
		tx.Date,
		string(tx.Status),
		tx.Method,
		tx.Details,
		nullableString(tx.AgentID),
	}}, nil
}

// mutationStatement builds the SQL for one plan mutation.
func mutationStatement(m domain.Mutation, guarded bool) (statement, error) {
	switch m.Kind {
	case domain.MutationSetTransactionStatus:
		return transactionStatusStatement(m, guarded)
	case domain.MutationSetUserBalance:
		return userBalanceStatement(m, guarded), nil
	case domain.MutationSetAgentFields:
		return agentFieldsStatement(m, guarded)
	case domain.MutationInsertTransaction:
		if m.Transaction == nil {
			return statement{}, fmt.Errorf("insert mutation without transaction")
		}
		return insertTransactionStatement(*m.Transaction)
	default:
		return statement{}, fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
}

// describeMutation names the entity a mutation targets, for error messages.
func describeMutation(m domain.Mutation) string {
	switch m.Kind {
	case domain.MutationSetTransactionStatus:
		return "transaction " + m.TransactionID + " status"
	case domain.MutationSetUserBalance:
		return "user " + m.UserID + " balance"
	case domain.MutationSetAgentFields:
		return "agent " + m.AgentID
	case domain.MutationInsertTransaction:
		if m.Transaction != nil {
			return "new transaction " + m.Transaction.ID
		}
	}
	return string(m.Kind)
}

func nullableString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
