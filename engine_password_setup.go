package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/firdaws-app/authcore/password"
)

// SetPassword hashes and stores a password for the user, completing the
// password-setup sub-state. Federated-only accounts become
// password-capable; the change is visible to the session on its next
// request via the claims sync, with no re-authentication.
func (e *Engine) SetPassword(ctx context.Context, userID, plaintext string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	hash, err := e.passwordHash.Hash(plaintext)
	if err != nil {
		if errors.Is(err, password.ErrPolicy) {
			return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
		return err
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	user, err := e.store.UpdateUser(storeCtx, userID, UserUpdate{PasswordHash: &hash})
	if err != nil {
		return err
	}

	e.emitAudit(ctx, AuditPasswordSet, user.ID, user.Email, true, nil)
	return nil
}
