package session

import (
	"context"
	"errors"
	"fmt"
)

// Key names one of the persisted logical values.
type Key string

const (
	// KeyTheme holds the "dark" / "light" preference.
	KeyTheme Key = "theme"
	// KeySecuritySessionID holds the server-issued security session identifier.
	KeySecuritySessionID Key = "securitySessionId"
	// KeyUserEmail holds the email bound to the pending security session.
	KeyUserEmail Key = "userEmail"
)

var (
	// ErrNotFound is returned by Get when the key has no value.
	ErrNotFound = errors.New("session key not found")
	// ErrUnknownKey is returned for keys outside the persisted set.
	ErrUnknownKey = errors.New("unknown session key")
	// ErrUnavailable wraps backend failures (redis down, unreadable file).
	ErrUnavailable = errors.New("session store unavailable")
)

// Store is the get/set/clear contract every backend implements.
//
// Clear on an absent key is not an error.
type Store interface {
	Get(ctx context.Context, key Key) (string, error)
	Set(ctx context.Context, key Key, value string) error
	Clear(ctx context.Context, key Key) error
}

// Keys returns the persisted key set in a stable order.
func Keys() []Key {
	return []Key{KeyTheme, KeySecuritySessionID, KeyUserEmail}
}

// Valid reports whether k belongs to the persisted key set.
func (k Key) Valid() bool {
	switch k {
	case KeyTheme, KeySecuritySessionID, KeyUserEmail:
		return true
	default:
		return false
	}
}

func checkKey(k Key) error {
	if !k.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKey, string(k))
	}
	return nil
}
