package engine

import (
	"fmt"

	"github.com/transfa/admin-service/internal/domain"
)

// ProcessWithdraw approves or rejects a pending withdrawal.
//
// Approval debits the owning user and then marks the request approved; it fails
// without writes when the user cannot be resolved or cannot cover the amount.
// Rejection only marks the request rejected.
func (e *Engine) ProcessWithdraw(snap domain.Snapshot, transactionID string, action Action) (Decision, error) {
	if action != ActionApprove && action != ActionReject {
		return Decision{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	tx, err := pendingTransaction(snap, transactionID, domain.TransactionWithdraw)
	if err != nil {
		return Decision{}, err
	}

	if action == ActionReject {
		return Decision{
			Event:         "withdraw.rejected",
			Plan:          domain.Plan{Mutations: []domain.Mutation{domain.SetTransactionStatus(tx.ID, domain.StatusPending, domain.StatusRejected)}},
			Message:       "Withdrawal request rejected.",
			TransactionID: tx.ID,
			UserID:        tx.UserID,
			Amount:        tx.Amount,
		}, nil
	}

	user, err := resolveUserOrFail(snap, tx)
	if err != nil {
		return Decision{}, err
	}
	if user.Balance.LessThan(tx.Amount) {
		return Decision{}, &ShortfallError{
			Party:    "user",
			ID:       user.ID,
			Name:     user.Name,
			Balance:  user.Balance,
			Required: tx.Amount,
			kind:     ErrInsufficientFunds,
		}
	}

	newBalance := user.Balance.Sub(tx.Amount)
	plan := domain.Plan{Mutations: []domain.Mutation{
		domain.SetUserBalance(user.ID, user.Balance, newBalance),
		domain.SetTransactionStatus(tx.ID, domain.StatusPending, domain.StatusApproved),
	}}

	return Decision{
		Event:         "withdraw.approved",
		Plan:          plan,
		Message:       fmt.Sprintf("Withdrawal approved: %s deducted from %s's balance.", tx.Amount.String(), user.Name),
		TransactionID: tx.ID,
		UserID:        user.ID,
		Amount:        tx.Amount,
	}, nil
}
