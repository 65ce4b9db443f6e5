package engine

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/transfa/admin-service/internal/domain"
)

const bonusDetails = "Monthly performance bonus"

// SendAgentBonus credits an agent's balance and total earned with a bonus and records it.
func (e *Engine) SendAgentBonus(snap domain.Snapshot, agentID string, amount decimal.Decimal) (Decision, error) {
	if !amount.IsPositive() {
		return Decision{}, fmt.Errorf("%w: bonus must be positive, got %s", ErrInvalidAmount, amount.String())
	}
	agent, ok := snap.FindAgent(agentID)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}

	record := domain.Transaction{
		ID:        e.newID("bonus"),
		UserID:    agent.ID,
		UserEmail: "Agent: " + agent.Name,
		Type:      domain.TransactionBonus,
		Amount:    amount,
		Date:      e.today(),
		Status:    domain.StatusApproved,
		Method:    domain.SystemMethod,
		Details:   bonusDetails,
		AgentID:   agent.ID,
	}

	plan := domain.Plan{Mutations: []domain.Mutation{
		domain.SetAgentFields(agent.ID,
			domain.AgentFields{Balance: domain.DecimalPtr(agent.Balance), TotalEarned: domain.DecimalPtr(agent.TotalEarned)},
			domain.AgentFields{Balance: domain.DecimalPtr(agent.Balance.Add(amount)), TotalEarned: domain.DecimalPtr(agent.TotalEarned.Add(amount))},
		),
		domain.InsertTransaction(record),
	}}

	return Decision{
		Event:         "agent.bonus_sent",
		Plan:          plan,
		Message:       fmt.Sprintf("Bonus of %s sent to %s.", amount.String(), agent.Name),
		TransactionID: record.ID,
		AgentID:       agent.ID,
		Amount:        amount,
	}, nil
}

// AdjustUserBalance applies a signed manual correction to a user's balance and records
// it as an approved adjustment. The recorded amount is the magnitude; the direction is
// kept in the details. A debit may not take the balance below zero.
func (e *Engine) AdjustUserBalance(snap domain.Snapshot, userID string, delta decimal.Decimal, note string) (Decision, error) {
	if delta.IsZero() {
		return Decision{}, fmt.Errorf("%w: adjustment must be non-zero", ErrInvalidAmount)
	}
	user, ok := snap.FindUserByID(userID)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}

	newBalance := user.Balance.Add(delta)
	if newBalance.IsNegative() {
		return Decision{}, &ShortfallError{
			Party:    "user",
			ID:       user.ID,
			Name:     user.Name,
			Balance:  user.Balance,
			Required: delta.Neg(),
			kind:     ErrInsufficientFunds,
		}
	}

	direction := "credit"
	if delta.IsNegative() {
		direction = "debit"
	}
	details := "Manual " + direction
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		details += ": " + trimmed
	}

	record := domain.Transaction{
		ID:        e.newID("adj"),
		UserID:    user.ID,
		UserEmail: user.Email,
		Type:      domain.TransactionAdjustment,
		Amount:    delta.Abs(),
		Date:      e.today(),
		Status:    domain.StatusApproved,
		Method:    domain.SystemMethod,
		Details:   details,
	}

	plan := domain.Plan{Mutations: []domain.Mutation{
		domain.SetUserBalance(user.ID, user.Balance, newBalance),
		domain.InsertTransaction(record),
	}}

	return Decision{
		Event:         "user.balance_adjusted",
		Plan:          plan,
		Message:       fmt.Sprintf("Balance of %s adjusted by %s; new balance %s.", user.Name, delta.String(), newBalance.String()),
		TransactionID: record.ID,
		UserID:        user.ID,
		Amount:        delta,
	}, nil
}
