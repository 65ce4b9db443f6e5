package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/transfa/admin-service/internal/domain"
)

var thousand = decimal.NewFromInt(1000)

// Commission returns (amount / 1000) * rate, unrounded.
func Commission(amount, rate decimal.Decimal) decimal.Decimal {
	// Multiplying first keeps the quotient exact for any amount the division terminates on.
	return amount.Mul(rate).Div(thousand)
}

// ApproveDeposit approves a pending deposit.
//
// When the deposit references an active agent, the agent funds it: the agent is debited
// the amount and credited its commission, the user is credited the amount, an approved
// commission record is inserted and the deposit is marked approved. Otherwise the
// platform funds it directly and only the user and the deposit change.
func (e *Engine) ApproveDeposit(snap domain.Snapshot, transactionID string) (Decision, error) {
	tx, err := pendingTransaction(snap, transactionID, domain.TransactionDeposit)
	if err != nil {
		return Decision{}, err
	}

	user, err := resolveUserOrFail(snap, tx)
	if err != nil {
		return Decision{}, err
	}

	if tx.HasAgent() {
		if agent, ok := snap.FindAgent(tx.AgentID); ok && agent.IsActive {
			return e.agentFundedDeposit(tx, agent, user)
		}
	}
	return e.adminFundedDeposit(tx, user), nil
}

func (e *Engine) agentFundedDeposit(tx domain.Transaction, agent domain.Agent, user domain.User) (Decision, error) {
	if agent.Balance.LessThan(tx.Amount) {
		return Decision{}, &ShortfallError{
			Party:    "agent",
			ID:       agent.ID,
			Name:     agent.Name,
			Balance:  agent.Balance,
			Required: tx.Amount,
			kind:     ErrInsufficientAgentFunds,
		}
	}

	commission := Commission(tx.Amount, agent.CommissionRate)
	newAgentBalance := agent.Balance.Sub(tx.Amount).Add(commission)
	newTotalEarned := agent.TotalEarned.Add(commission)

	record := domain.Transaction{
		ID:        e.newID("comm"),
		UserID:    agent.ID,
		UserEmail: "Agent: " + agent.Name,
		Type:      domain.TransactionCommission,
		Amount:    commission,
		Date:      e.today(),
		Status:    domain.StatusApproved,
		Method:    domain.SystemMethod,
		Details:   fmt.Sprintf("Commission for deposit (rate: %s/1k)", agent.CommissionRate.String()),
		AgentID:   agent.ID,
	}

	plan := domain.Plan{Mutations: []domain.Mutation{
		domain.SetAgentFields(agent.ID,
			domain.AgentFields{Balance: domain.DecimalPtr(agent.Balance), TotalEarned: domain.DecimalPtr(agent.TotalEarned)},
			domain.AgentFields{Balance: domain.DecimalPtr(newAgentBalance), TotalEarned: domain.DecimalPtr(newTotalEarned)},
		),
		domain.SetUserBalance(user.ID, user.Balance, user.Balance.Add(tx.Amount)),
		domain.InsertTransaction(record),
		domain.SetTransactionStatus(tx.ID, domain.StatusPending, domain.StatusApproved).WithFunding(domain.FundedByAgent),
	}}

	return Decision{
		Event:         "deposit.approved",
		Plan:          plan,
		Message:       fmt.Sprintf("Deposit approved: %s credited to %s, funded by agent %s (commission %s).", tx.Amount.String(), user.Name, agent.Name, commission.String()),
		TransactionID: tx.ID,
		UserID:        user.ID,
		AgentID:       agent.ID,
		Amount:        tx.Amount,
		Commission:    commission,
		Funding:       FundingAgent,
	}, nil
}

func (e *Engine) adminFundedDeposit(tx domain.Transaction, user domain.User) Decision {
	plan := domain.Plan{Mutations: []domain.Mutation{
		domain.SetUserBalance(user.ID, user.Balance, user.Balance.Add(tx.Amount)),
		domain.SetTransactionStatus(tx.ID, domain.StatusPending, domain.StatusApproved).WithFunding(domain.FundedByAdmin),
	}}
	return Decision{
		Event:         "deposit.approved",
		Plan:          plan,
		Message:       fmt.Sprintf("Deposit approved (admin direct): %s credited to %s.", tx.Amount.String(), user.Name),
		TransactionID: tx.ID,
		UserID:        user.ID,
		Amount:        tx.Amount,
		Commission:    decimal.Zero,
		Funding:       FundingAdmin,
	}
}

// RejectDeposit marks a pending deposit rejected. Balances are untouched.
func (e *Engine) RejectDeposit(snap domain.Snapshot, transactionID string) (Decision, error) {
	tx, err := pendingTransaction(snap, transactionID, domain.TransactionDeposit)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Event:         "deposit.rejected",
		Plan:          domain.Plan{Mutations: []domain.Mutation{domain.SetTransactionStatus(tx.ID, domain.StatusPending, domain.StatusRejected)}},
		Message:       "Deposit request rejected.",
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		AgentID:       tx.AgentID,
		Amount:        tx.Amount,
	}, nil
}
