package authflow

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when an Orchestrator method is called before the
	// instance has been fully built.
	ErrNotReady = errors.New("orchestrator not initialized")
	// ErrClosed is returned by every mutating operation invoked after Close.
	ErrClosed = errors.New("orchestrator closed")
	// ErrSessionInvalid indicates the identity provider rejected the session.
	ErrSessionInvalid = errors.New("session rejected by identity provider")
	// ErrInvalidCredentials indicates a sign-in attempt with bad credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrProfileNotFound indicates the profile record does not exist.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrProfileExists indicates a duplicate profile creation attempt.
	ErrProfileExists = errors.New("profile already exists")
	// ErrProfileUnavailable indicates every profile resolution fallback failed.
	ErrProfileUnavailable = errors.New("profile unavailable")
	// ErrAgreementNotFound indicates no agreement record exists for the user and role.
	ErrAgreementNotFound = errors.New("agreement record not found")
	// ErrAgreementUnavailable indicates the agreement backend could not be reached.
	ErrAgreementUnavailable = errors.New("agreement backend unavailable")
	// ErrAgreementRejected indicates the agreement API refused an acceptance.
	ErrAgreementRejected = errors.New("agreement acceptance rejected")
	// ErrAgreementNotRequired indicates an acceptance was attempted while none is outstanding.
	ErrAgreementNotRequired = errors.New("no agreement acceptance outstanding")
	// ErrNotAuthenticated indicates the operation requires an authenticated state.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrStaleOperation indicates a result was discarded because a newer
	// operation (typically a sign-out) superseded it.
	ErrStaleOperation = errors.New("operation superseded")
)

// ProfileLoadError reports a profile resolution failure after the cache,
// primary lookup, legacy lookup, and creation fallbacks have all been
// exhausted. It unwraps to [ErrProfileUnavailable] so callers can match it
// with errors.Is without inspecting the individual step errors.
type ProfileLoadError struct {
	UserID     string
	PrimaryErr error
	LegacyErr  error
	CreateErr  error
}

func (e *ProfileLoadError) Error() string {
	return fmt.Sprintf("profile load failed for user %s: primary: %v, legacy: %v, create: %v",
		e.UserID, e.PrimaryErr, e.LegacyErr, e.CreateErr)
}

func (e *ProfileLoadError) Unwrap() error {
	return ErrProfileUnavailable
}
