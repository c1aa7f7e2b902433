package authflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authflow/session"
)

// PendingSecurityVerification is the server-issued session awaiting a
// security code. It lives in the store between a login that required
// secondary verification and the verification that consumes it.
type PendingSecurityVerification struct {
	SessionID string
	UserEmail string
}

// loadPendingSecurity reads both keys. A missing key yields
// ErrSecuritySessionNotFound; a failing store yields an error wrapping both
// ErrSecuritySessionNotFound and session.ErrUnavailable.
func loadPendingSecurity(ctx context.Context, store session.Store) (PendingSecurityVerification, error) {
	if store == nil {
		return PendingSecurityVerification{}, ErrSecuritySessionNotFound
	}
	sessionID, err := store.Get(ctx, session.KeySecuritySessionID)
	if err != nil {
		return PendingSecurityVerification{}, mapPendingError(err)
	}
	email, err := store.Get(ctx, session.KeyUserEmail)
	if err != nil {
		return PendingSecurityVerification{}, mapPendingError(err)
	}
	if sessionID == "" || email == "" {
		return PendingSecurityVerification{}, ErrSecuritySessionNotFound
	}
	return PendingSecurityVerification{SessionID: sessionID, UserEmail: email}, nil
}

func mapPendingError(err error) error {
	if errors.Is(err, session.ErrNotFound) {
		return ErrSecuritySessionNotFound
	}
	return fmt.Errorf("%w: %w", ErrSecuritySessionNotFound, err)
}

// savePendingSecurity writes both keys. A partial write is rolled back so the
// store never holds a session id without its email.
func savePendingSecurity(ctx context.Context, store session.Store, p PendingSecurityVerification) error {
	if p.SessionID == "" || p.UserEmail == "" {
		return ErrSecuritySessionNotFound
	}
	if err := store.Set(ctx, session.KeySecuritySessionID, p.SessionID); err != nil {
		return err
	}
	if err := store.Set(ctx, session.KeyUserEmail, p.UserEmail); err != nil {
		_ = store.Clear(ctx, session.KeySecuritySessionID)
		return err
	}
	return nil
}

// clearPendingSecurity removes both keys, attempting the second even if the first fails.
func clearPendingSecurity(ctx context.Context, store session.Store) error {
	return errors.Join(
		store.Clear(ctx, session.KeySecuritySessionID),
		store.Clear(ctx, session.KeyUserEmail),
	)
}

// consumePendingSecurity clears the pending verification only while the store
// still holds sessionID. A newer pending session written by a later login is
// left in place. It reports whether anything was cleared.
func consumePendingSecurity(ctx context.Context, store session.Store, sessionID string) (bool, error) {
	stored, err := store.Get(ctx, session.KeySecuritySessionID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	case stored != sessionID:
		return false, nil
	}
	return true, clearPendingSecurity(ctx, store)
}
