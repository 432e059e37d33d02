package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrUserMismatch is returned by Set when the token's user id does not match
// the session user's id.
var ErrUserMismatch = errors.New("session token user mismatch")

// ErrNilSession is returned by Set when given a nil session.
var ErrNilSession = errors.New("nil session")

const sessionKey = "session"

// StoreConfig controls session persistence behavior.
type StoreConfig struct {
	// TTL bounds how long a persisted session blob is retained when the
	// token itself carries no expiry. Zero means retain until cleared.
	TTL time.Duration
	// ClockSkew widens the expiry check to absorb clock drift between the
	// identity provider and this process.
	ClockSkew time.Duration
	// Clock overrides the time source. Nil means time.Now.
	Clock func() time.Time
}

// Store persists and retrieves the single current session through a KV.
// Reads never fail: missing, unreadable, or corrupt data is reported as
// "no session" so a flaky medium can never wedge authentication.
type Store struct {
	kv    KV
	cfg   StoreConfig
	clock func() time.Time
}

// NewStore returns a Store over the given KV.
func NewStore(kv KV, cfg StoreConfig) *Store {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{kv: kv, cfg: cfg, clock: clock}
}

// Get returns the persisted session, or nil if none exists or the stored
// blob cannot be read or decoded.
func (s *Store) Get(ctx context.Context) *Session {
	data, ok, err := s.kv.Get(ctx, sessionKey)
	if err != nil || !ok {
		return nil
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		// Corrupt blob. Treat as absent; the next Set overwrites it.
		return nil
	}
	if sess.User.ID == "" || sess.Token.UserID != sess.User.ID {
		return nil
	}
	return &sess
}

// Set overwrites the persisted session wholesale.
func (s *Store) Set(ctx context.Context, sess *Session) error {
	if sess == nil {
		return ErrNilSession
	}
	if sess.Token.UserID != sess.User.ID {
		return ErrUserMismatch
	}
	if sess.LastActive == 0 {
		sess.LastActive = s.clock().Unix()
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, sessionKey, data, s.retention(sess))
}

// Clear removes the persisted session. Deleting an absent session is not an
// error.
func (s *Store) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, sessionKey)
}

// IsExpired reports whether the persisted session's token validity window
// has passed. An absent session counts as expired.
func (s *Store) IsExpired(ctx context.Context) bool {
	sess := s.Get(ctx)
	if sess == nil {
		return true
	}
	return sess.Expired(s.clock().Add(-s.cfg.ClockSkew))
}

// Touch refreshes the session's LastActive stamp in place. A no-op when no
// session is persisted.
func (s *Store) Touch(ctx context.Context) error {
	sess := s.Get(ctx)
	if sess == nil {
		return nil
	}
	sess.LastActive = s.clock().Unix()
	return s.Set(ctx, sess)
}

// retention derives the blob TTL from the token expiry when present so the
// medium self-cleans, falling back to the configured TTL.
func (s *Store) retention(sess *Session) time.Duration {
	if sess.Token.ExpiresAt > 0 {
		until := time.Unix(sess.Token.ExpiresAt, 0).Sub(s.clock())
		if until <= 0 {
			return time.Second
		}
		return until + s.cfg.ClockSkew
	}
	return s.cfg.TTL
}
