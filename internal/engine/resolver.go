package engine

import (
	"fmt"

	"github.com/transfa/admin-service/internal/domain"
)

// ResolveUser finds the user a transaction belongs to. The stored user id wins;
// the stored email is only consulted when no user carries that id.
func ResolveUser(snap domain.Snapshot, tx domain.Transaction) (domain.User, bool) {
	if user, ok := snap.FindUserByID(tx.UserID); ok {
		return user, true
	}
	return snap.FindUserByEmail(tx.UserEmail)
}

func resolveUserOrFail(snap domain.Snapshot, tx domain.Transaction) (domain.User, error) {
	user, ok := ResolveUser(snap, tx)
	if !ok {
		return domain.User{}, fmt.Errorf("%w: transaction %s references id %q email %q", ErrUserNotFound, tx.ID, tx.UserID, tx.UserEmail)
	}
	return user, nil
}
