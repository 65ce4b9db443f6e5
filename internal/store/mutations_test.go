package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/transfa/admin-service/internal/domain"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestTransactionStatusStatement(t *testing.T) {
	m := domain.SetTransactionStatus("tx-1", domain.StatusPending, domain.StatusApproved)

	guarded, err := transactionStatusStatement(m, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if guarded.sql != "UPDATE transactions SET status = $1 WHERE id = $2 AND status = $3" {
		t.Fatalf("unexpected sql %q", guarded.sql)
	}
	if len(guarded.args) != 3 || guarded.args[0] != "approved" || guarded.args[1] != "tx-1" || guarded.args[2] != "pending" {
		t.Fatalf("unexpected args %v", guarded.args)
	}

	plain, err := transactionStatusStatement(m, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(plain.sql, "AND status") || len(plain.args) != 2 {
		t.Fatalf("expected unguarded update, got %q %v", plain.sql, plain.args)
	}

	if _, err := transactionStatusStatement(domain.Mutation{TransactionID: "tx-1", Status: "done"}, false); err == nil {
		t.Fatal("expected invalid status to be refused")
	}
}

func TestTransactionStatusStatementRecordsFunding(t *testing.T) {
	m := domain.SetTransactionStatus("d-1", domain.StatusPending, domain.StatusApproved).WithFunding(domain.FundedByAdmin)

	stmt, err := transactionStatusStatement(m, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stmt.sql != "UPDATE transactions SET status = $1, funded_by = $2 WHERE id = $3 AND status = $4" {
		t.Fatalf("unexpected sql %q", stmt.sql)
	}
	if len(stmt.args) != 4 || stmt.args[1] != "admin" || stmt.args[2] != "d-1" {
		t.Fatalf("unexpected args %v", stmt.args)
	}
}

func TestUserBalanceStatementComparesNumerically(t *testing.T) {
	stmt := userBalanceStatement(domain.SetUserBalance("u1", dec("500.00"), dec("0")), true)
	want := "UPDATE users SET balance = $1::numeric WHERE id = $2 AND balance = $3::numeric"
	if stmt.sql != want {
		t.Fatalf("expected %q, got %q", want, stmt.sql)
	}
	if stmt.args[0] != "0" || stmt.args[2] != "500" {
		t.Fatalf("expected decimal text args, got %v", stmt.args)
	}
}

func TestAgentFieldsStatement(t *testing.T) {
	tests := []struct {
		name     string
		mutation domain.Mutation
		guarded  bool
		wantSQL  string
		wantArgs int
		wantErr  error
	}{
		{
			name: "both fields guarded",
			mutation: domain.SetAgentFields("a1",
				domain.AgentFields{Balance: domain.DecimalPtr(dec("1000")), TotalEarned: domain.DecimalPtr(dec("40"))},
				domain.AgentFields{Balance: domain.DecimalPtr(dec("510")), TotalEarned: domain.DecimalPtr(dec("50"))},
			),
			guarded:  true,
			wantSQL:  "UPDATE agents SET balance = $1::numeric, total_earned = $2::numeric WHERE id = $3 AND balance = $4::numeric AND total_earned = $5::numeric",
			wantArgs: 5,
		},
		{
			name:     "balance only unguarded",
			mutation: domain.Mutation{Kind: domain.MutationSetAgentFields, AgentID: "a1", Agent: domain.AgentFields{Balance: domain.DecimalPtr(dec("12"))}},
			guarded:  false,
			wantSQL:  "UPDATE agents SET balance = $1::numeric WHERE id = $2",
			wantArgs: 2,
		},
		{
			name:     "no fields",
			mutation: domain.Mutation{Kind: domain.MutationSetAgentFields, AgentID: "a1"},
			wantErr:  ErrEmptyUpdate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := agentFieldsStatement(tt.mutation, tt.guarded)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if stmt.sql != tt.wantSQL {
				t.Fatalf("expected %q, got %q", tt.wantSQL, stmt.sql)
			}
			if len(stmt.args) != tt.wantArgs {
				t.Fatalf("expected %d args, got %d", tt.wantArgs, len(stmt.args))
			}
		})
	}
}

func TestInsertTransactionStatementValidates(t *testing.T) {
	valid := domain.Transaction{
		ID: "comm-1", UserID: "a1", UserEmail: "Agent: A", Type: domain.TransactionCommission,
		Amount: dec("10"), Date: "2026-10-19", Status: domain.StatusApproved, Method: domain.SystemMethod,
	}
	stmt, err := insertTransactionStatement(valid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stmt.sql, "ON CONFLICT (id) DO NOTHING") {
		t.Fatalf("expected insert to ignore duplicate ids, got %q", stmt.sql)
	}
	if agentID, ok := stmt.args[9].(*string); !ok || agentID != nil {
		t.Fatalf("expected NULL agent id for empty reference, got %#v", stmt.args[9])
	}

	noID := valid
	noID.ID = " "
	if _, err := insertTransactionStatement(noID); err == nil {
		t.Fatal("expected missing id to be refused")
	}
	badType := valid
	badType.Type = "refund"
	if _, err := insertTransactionStatement(badType); err == nil {
		t.Fatal("expected unknown type to be refused")
	}
}

type recordingExecer struct {
	statements []string
	affected   []int64
}

func (r *recordingExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	idx := len(r.statements)
	r.statements = append(r.statements, sql)
	rows := int64(1)
	if idx < len(r.affected) {
		rows = r.affected[idx]
	}
	if rows == 0 {
		return pgconn.NewCommandTag("UPDATE 0"), nil
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func TestApplyMutationsStopsAtFirstConflict(t *testing.T) {
	plan := domain.Plan{Mutations: []domain.Mutation{
		domain.SetUserBalance("u1", dec("500"), dec("0")),
		domain.SetTransactionStatus("w1", domain.StatusPending, domain.StatusApproved),
		domain.InsertTransaction(domain.Transaction{ID: "x", Type: domain.TransactionBonus, Status: domain.StatusApproved}),
	}}
	q := &recordingExecer{affected: []int64{1, 0, 1}}

	err := applyMutations(context.Background(), q, plan)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "transaction w1 status") {
		t.Fatalf("expected error to name the conflicting write, got %v", err)
	}
	if len(q.statements) != 2 {
		t.Fatalf("expected execution to stop after the conflict, ran %d statements", len(q.statements))
	}
}

func TestApplyMutationsRunsEveryWriteInOrder(t *testing.T) {
	plan := domain.Plan{Mutations: []domain.Mutation{
		domain.SetUserBalance("u1", dec("1"), dec("2")),
		domain.SetTransactionStatus("w1", domain.StatusPending, domain.StatusRejected),
	}}
	q := &recordingExecer{}
	if err := applyMutations(context.Background(), q, plan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.statements) != 2 || !strings.HasPrefix(q.statements[0], "UPDATE users") || !strings.HasPrefix(q.statements[1], "UPDATE transactions") {
		t.Fatalf("unexpected statement order %v", q.statements)
	}
}
