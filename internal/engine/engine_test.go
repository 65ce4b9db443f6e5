package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/transfa/admin-service/internal/domain"
)

var fixedNow = time.Date(2026, 10, 19, 23, 30, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewWithClock(func() time.Time { return fixedNow }, func(prefix string) string { return prefix + "-test" })
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func baseSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Version: 7,
		Users: []domain.User{
			{ID: "u1", Name: "Rahim", Email: "rahim@example.com", Balance: dec("500"), Status: domain.UserStatusActive},
			{ID: "u2", Name: "Karim", Email: "karim@example.com", Balance: dec("100"), Status: domain.UserStatusActive},
		},
		Agents: []domain.Agent{
			{ID: "a1", Name: "Dhaka Agent", Balance: dec("1000"), CommissionRate: dec("20"), IsActive: true, TotalEarned: dec("40")},
			{ID: "a2", Name: "Poor Agent", Balance: dec("300"), CommissionRate: dec("20"), IsActive: true, TotalEarned: dec("0")},
			{ID: "a3", Name: "Retired Agent", Balance: dec("5000"), CommissionRate: dec("15"), IsActive: false, TotalEarned: dec("0")},
		},
		Transactions: []domain.Transaction{
			{ID: "w-ok", UserID: "u1", Type: domain.TransactionWithdraw, Amount: dec("500"), Status: domain.StatusPending},
			{ID: "w-short", UserID: "u2", Type: domain.TransactionWithdraw, Amount: dec("200"), Status: domain.StatusPending},
			{ID: "w-email", UserID: "missing", UserEmail: "karim@example.com", Type: domain.TransactionWithdraw, Amount: dec("50"), Status: domain.StatusPending},
			{ID: "w-ghost", UserID: "nobody", UserEmail: "nobody@example.com", Type: domain.TransactionWithdraw, Amount: dec("10"), Status: domain.StatusPending},
			{ID: "w-done", UserID: "u1", Type: domain.TransactionWithdraw, Amount: dec("10"), Status: domain.StatusApproved},
			{ID: "d-agent", UserID: "u2", Type: domain.TransactionDeposit, Amount: dec("500"), Status: domain.StatusPending, AgentID: "a1"},
			{ID: "d-poor", UserID: "u2", Type: domain.TransactionDeposit, Amount: dec("500"), Status: domain.StatusPending, AgentID: "a2"},
			{ID: "d-inactive", UserID: "u2", Type: domain.TransactionDeposit, Amount: dec("250"), Status: domain.StatusPending, AgentID: "a3"},
			{ID: "d-direct", UserID: "u1", Type: domain.TransactionDeposit, Amount: dec("75"), Status: domain.StatusPending},
			{ID: "d-ghost", UserID: "nobody", Type: domain.TransactionDeposit, Amount: dec("75"), Status: domain.StatusPending, AgentID: "a1"},
		},
	}
}

func findMutation(t *testing.T, plan domain.Plan, kind domain.MutationKind) domain.Mutation {
	t.Helper()
	for _, m := range plan.Mutations {
		if m.Kind == kind {
			return m
		}
	}
	t.Fatalf("expected a %s mutation in plan %+v", kind, plan)
	return domain.Mutation{}
}

func TestCommission(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		rate   string
		want   string
	}{
		{name: "round thousand", amount: "1000", rate: "20", want: "20"},
		{name: "half thousand", amount: "500", rate: "20", want: "10"},
		{name: "fractional result is not rounded", amount: "333", rate: "7", want: "2.331"},
		{name: "zero rate", amount: "800", rate: "0", want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Commission(dec(tt.amount), dec(tt.rate))
			if !got.Equal(dec(tt.want)) {
				t.Fatalf("expected commission %s, got %s", tt.want, got)
			}
		})
	}
}

func TestProcessWithdraw_ApproveExactBalance(t *testing.T) {
	decision, err := newTestEngine().ProcessWithdraw(baseSnapshot(), "w-ok", ActionApprove)
	if err != nil {
		t.Fatalf("expected approval, got %v", err)
	}
	if len(decision.Plan.Mutations) != 2 {
		t.Fatalf("expected 2 mutations, got %d", len(decision.Plan.Mutations))
	}

	first := decision.Plan.Mutations[0]
	if first.Kind != domain.MutationSetUserBalance || first.UserID != "u1" {
		t.Fatalf("expected user balance write first, got %+v", first)
	}
	if !first.Balance.Equal(decimal.Zero) {
		t.Fatalf("expected resulting balance 0, got %s", first.Balance)
	}
	if !first.ExpectedBalance.Equal(dec("500")) {
		t.Fatalf("expected guard on balance 500, got %s", first.ExpectedBalance)
	}

	second := decision.Plan.Mutations[1]
	if second.Kind != domain.MutationSetTransactionStatus || second.Status != domain.StatusApproved || second.ExpectedStatus != domain.StatusPending {
		t.Fatalf("expected pending->approved status write second, got %+v", second)
	}
	if decision.Event != "withdraw.approved" {
		t.Fatalf("unexpected event %q", decision.Event)
	}
}

func TestProcessWithdraw_InsufficientFunds(t *testing.T) {
	decision, err := newTestEngine().ProcessWithdraw(baseSnapshot(), "w-short", ActionApprove)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	var shortfall *ShortfallError
	if !errors.As(err, &shortfall) {
		t.Fatalf("expected ShortfallError, got %T", err)
	}
	if !shortfall.Balance.Equal(dec("100")) || !shortfall.Required.Equal(dec("200")) {
		t.Fatalf("expected shortfall 100 vs 200, got %s vs %s", shortfall.Balance, shortfall.Required)
	}
	if !decision.Plan.Empty() {
		t.Fatalf("expected no mutations on failure, got %+v", decision.Plan)
	}
}

func TestProcessWithdraw_RejectLeavesBalance(t *testing.T) {
	decision, err := newTestEngine().ProcessWithdraw(baseSnapshot(), "w-short", ActionReject)
	if err != nil {
		t.Fatalf("expected rejection to succeed, got %v", err)
	}
	if len(decision.Plan.Mutations) != 1 {
		t.Fatalf("expected a single mutation, got %d", len(decision.Plan.Mutations))
	}
	m := decision.Plan.Mutations[0]
	if m.Kind != domain.MutationSetTransactionStatus || m.Status != domain.StatusRejected {
		t.Fatalf("expected status rejected, got %+v", m)
	}
}

func TestProcessWithdraw_ResolvesUserByEmailFallback(t *testing.T) {
	decision, err := newTestEngine().ProcessWithdraw(baseSnapshot(), "w-email", ActionApprove)
	if err != nil {
		t.Fatalf("expected approval, got %v", err)
	}
	m := findMutation(t, decision.Plan, domain.MutationSetUserBalance)
	if m.UserID != "u2" || !m.Balance.Equal(dec("50")) {
		t.Fatalf("expected u2 debited to 50, got %+v", m)
	}
}

func TestProcessWithdraw_GuardFailures(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		action  Action
		wantErr error
	}{
		{name: "unknown transaction", id: "nope", action: ActionApprove, wantErr: ErrTransactionNotFound},
		{name: "unresolvable user", id: "w-ghost", action: ActionApprove, wantErr: ErrUserNotFound},
		{name: "already approved", id: "w-done", action: ActionApprove, wantErr: ErrTransactionNotPending},
		{name: "already approved reject", id: "w-done", action: ActionReject, wantErr: ErrTransactionNotPending},
		{name: "deposit is not a withdrawal", id: "d-direct", action: ActionApprove, wantErr: ErrWrongTransactionKind},
		{name: "bogus action", id: "w-ok", action: Action("maybe"), wantErr: ErrInvalidAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := newTestEngine().ProcessWithdraw(baseSnapshot(), tt.id, tt.action)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if !decision.Plan.Empty() {
				t.Fatalf("expected empty plan, got %+v", decision.Plan)
			}
		})
	}
}

func TestApproveDeposit_AgentFunded(t *testing.T) {
	decision, err := newTestEngine().ApproveDeposit(baseSnapshot(), "d-agent")
	if err != nil {
		t.Fatalf("expected approval, got %v", err)
	}
	if decision.Funding != FundingAgent {
		t.Fatalf("expected agent funding, got %q", decision.Funding)
	}
	if !decision.Commission.Equal(dec("10")) {
		t.Fatalf("expected commission 10, got %s", decision.Commission)
	}

	kinds := make([]domain.MutationKind, 0, len(decision.Plan.Mutations))
	for _, m := range decision.Plan.Mutations {
		kinds = append(kinds, m.Kind)
	}
	wantKinds := []domain.MutationKind{
		domain.MutationSetAgentFields,
		domain.MutationSetUserBalance,
		domain.MutationInsertTransaction,
		domain.MutationSetTransactionStatus,
	}
	if len(kinds) != len(wantKinds) {
		t.Fatalf("expected mutation order %v, got %v", wantKinds, kinds)
	}
	for i := range wantKinds {
		if kinds[i] != wantKinds[i] {
			t.Fatalf("expected mutation order %v, got %v", wantKinds, kinds)
		}
	}

	agent := decision.Plan.Mutations[0]
	if !agent.Agent.Balance.Equal(dec("510")) {
		t.Fatalf("expected agent balance 510, got %s", agent.Agent.Balance)
	}
	if !agent.Agent.TotalEarned.Equal(dec("50")) {
		t.Fatalf("expected total earned 50, got %s", agent.Agent.TotalEarned)
	}

	user := decision.Plan.Mutations[1]
	if user.UserID != "u2" || !user.Balance.Equal(dec("600")) {
		t.Fatalf("expected u2 credited to 600, got %+v", user)
	}

	inserted := decision.Plan.Inserted()
	if len(inserted) != 1 {
		t.Fatalf("expected exactly one inserted record, got %d", len(inserted))
	}
	record := inserted[0]
	if record.Type != domain.TransactionCommission || !record.Amount.Equal(dec("10")) {
		t.Fatalf("expected commission record of 10, got %+v", record)
	}
	if record.Status != domain.StatusApproved || record.Method != domain.SystemMethod {
		t.Fatalf("expected approved system record, got %+v", record)
	}
	if record.UserID != "a1" || record.AgentID != "a1" || record.UserEmail != "Agent: Dhaka Agent" {
		t.Fatalf("expected record attributed to agent a1, got %+v", record)
	}
	if record.Date != "2026-10-19" {
		t.Fatalf("expected today's date, got %q", record.Date)
	}
	if record.ID != "comm-test" {
		t.Fatalf("expected generated id, got %q", record.ID)
	}
	if record.Details != "Commission for deposit (rate: 20/1k)" {
		t.Fatalf("unexpected commission details %q", record.Details)
	}
	status := findMutation(t, decision.Plan, domain.MutationSetTransactionStatus)
	if status.FundedBy != domain.FundedByAgent {
		t.Fatalf("expected deposit stamped as agent funded, got %q", status.FundedBy)
	}
}

func TestApproveDeposit_InsufficientAgentFunds(t *testing.T) {
	decision, err := newTestEngine().ApproveDeposit(baseSnapshot(), "d-poor")
	if !errors.Is(err, ErrInsufficientAgentFunds) {
		t.Fatalf("expected ErrInsufficientAgentFunds, got %v", err)
	}
	var shortfall *ShortfallError
	if !errors.As(err, &shortfall) || shortfall.Party != "agent" {
		t.Fatalf("expected agent shortfall, got %v", err)
	}
	if !shortfall.Balance.Equal(dec("300")) || !shortfall.Required.Equal(dec("500")) {
		t.Fatalf("expected 300 vs 500, got %s vs %s", shortfall.Balance, shortfall.Required)
	}
	if !decision.Plan.Empty() {
		t.Fatal("expected no mutations")
	}
}

func TestApproveDeposit_InactiveAgentFallsBackToAdmin(t *testing.T) {
	decision, err := newTestEngine().ApproveDeposit(baseSnapshot(), "d-inactive")
	if err != nil {
		t.Fatalf("expected approval, got %v", err)
	}
	if decision.Funding != FundingAdmin {
		t.Fatalf("expected admin funding, got %q", decision.Funding)
	}
	for _, m := range decision.Plan.Mutations {
		if m.Kind == domain.MutationSetAgentFields || m.Kind == domain.MutationInsertTransaction {
			t.Fatalf("admin path must not touch agents or insert records, got %+v", m)
		}
	}
	user := findMutation(t, decision.Plan, domain.MutationSetUserBalance)
	if !user.Balance.Equal(dec("350")) {
		t.Fatalf("expected user credited to 350, got %s", user.Balance)
	}
	status := findMutation(t, decision.Plan, domain.MutationSetTransactionStatus)
	if status.FundedBy != domain.FundedByAdmin {
		t.Fatalf("expected deposit stamped as admin funded, got %q", status.FundedBy)
	}
}

func TestApproveDeposit_DirectAndUnknownAgent(t *testing.T) {
	snap := baseSnapshot()
	snap.Transactions = append(snap.Transactions, domain.Transaction{
		ID: "d-lost-agent", UserID: "u1", Type: domain.TransactionDeposit, Amount: dec("20"), Status: domain.StatusPending, AgentID: "gone",
	})

	for _, id := range []string{"d-direct", "d-lost-agent"} {
		decision, err := newTestEngine().ApproveDeposit(snap, id)
		if err != nil {
			t.Fatalf("%s: expected approval, got %v", id, err)
		}
		if decision.Funding != FundingAdmin || len(decision.Plan.Mutations) != 2 {
			t.Fatalf("%s: expected admin path with 2 writes, got %+v", id, decision)
		}
	}
}

func TestApproveDeposit_GuardFailures(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{name: "unknown transaction", id: "missing", wantErr: ErrTransactionNotFound},
		{name: "withdrawal is not a deposit", id: "w-ok", wantErr: ErrWrongTransactionKind},
		{name: "unresolvable user", id: "d-ghost", wantErr: ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestEngine().ApproveDeposit(baseSnapshot(), tt.id)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRejectDeposit(t *testing.T) {
	decision, err := newTestEngine().RejectDeposit(baseSnapshot(), "d-agent")
	if err != nil {
		t.Fatalf("expected rejection, got %v", err)
	}
	if len(decision.Plan.Mutations) != 1 || decision.Plan.Mutations[0].Status != domain.StatusRejected {
		t.Fatalf("expected single rejected status write, got %+v", decision.Plan)
	}

	snap := baseSnapshot()
	snap.Transactions[5].Status = domain.StatusRejected
	if _, err := newTestEngine().RejectDeposit(snap, "d-agent"); !errors.Is(err, ErrTransactionNotPending) {
		t.Fatalf("expected ErrTransactionNotPending on second rejection, got %v", err)
	}
}

func TestSendAgentBonus(t *testing.T) {
	decision, err := newTestEngine().SendAgentBonus(baseSnapshot(), "a2", dec("25.5"))
	if err != nil {
		t.Fatalf("expected bonus to succeed, got %v", err)
	}
	agent := findMutation(t, decision.Plan, domain.MutationSetAgentFields)
	if !agent.Agent.Balance.Equal(dec("325.5")) || !agent.Agent.TotalEarned.Equal(dec("25.5")) {
		t.Fatalf("expected balance 325.5 and total 25.5, got %s / %s", agent.Agent.Balance, agent.Agent.TotalEarned)
	}
	inserted := decision.Plan.Inserted()
	if len(inserted) != 1 || inserted[0].Type != domain.TransactionBonus || !inserted[0].Amount.Equal(dec("25.5")) {
		t.Fatalf("expected one bonus record of 25.5, got %+v", inserted)
	}
	if inserted[0].Details != bonusDetails || inserted[0].ID != "bonus-test" {
		t.Fatalf("unexpected bonus record %+v", inserted[0])
	}
}

func TestSendAgentBonus_Guards(t *testing.T) {
	if _, err := newTestEngine().SendAgentBonus(baseSnapshot(), "ghost", dec("10")); !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
	if _, err := newTestEngine().SendAgentBonus(baseSnapshot(), "a1", dec("0")); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestAdjustUserBalance(t *testing.T) {
	decision, err := newTestEngine().AdjustUserBalance(baseSnapshot(), "u2", dec("-40"), "  chargeback ")
	if err != nil {
		t.Fatalf("expected adjustment, got %v", err)
	}
	user := findMutation(t, decision.Plan, domain.MutationSetUserBalance)
	if !user.Balance.Equal(dec("60")) {
		t.Fatalf("expected balance 60, got %s", user.Balance)
	}
	record := decision.Plan.Inserted()[0]
	if !record.Amount.Equal(dec("40")) || record.Details != "Manual debit: chargeback" {
		t.Fatalf("unexpected adjustment record %+v", record)
	}

	if _, err := newTestEngine().AdjustUserBalance(baseSnapshot(), "u2", dec("-101"), ""); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds for overdraft, got %v", err)
	}
	if _, err := newTestEngine().AdjustUserBalance(baseSnapshot(), "u2", decimal.Zero, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero delta, got %v", err)
	}
}

func TestResolveUser_PrefersIDOverEmail(t *testing.T) {
	snap := baseSnapshot()
	tx := domain.Transaction{UserID: "u1", UserEmail: "karim@example.com"}
	user, ok := ResolveUser(snap, tx)
	if !ok || user.ID != "u1" {
		t.Fatalf("expected id match u1, got %+v (ok=%t)", user, ok)
	}
}

func TestParseAction(t *testing.T) {
	if a, err := ParseAction("approve"); err != nil || a != ActionApprove {
		t.Fatalf("expected approve, got %q %v", a, err)
	}
	if _, err := ParseAction("delete"); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
}
