package session

import "time"

// User is the identity half of a session: who the identity provider says the
// holder is. The application-level profile record is a separate concern and
// lives outside this package.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	// FullName and Provider are optional identity-provider metadata, kept
	// for lazy profile creation.
	FullName string `json:"full_name,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// TokenInfo carries the opaque token material issued by the identity
// provider along with its validity window. Timestamps are unix seconds.
type TokenInfo struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IssuedAt     int64  `json:"issued_at"`
	ExpiresAt    int64  `json:"expires_at"`
	UserID       string `json:"user_id"`
}

// Session is the locally held record of an authenticated identity. One
// session exists per device; it is replaced wholesale on sign-in and deleted
// wholesale on sign-out. Token.UserID must always equal User.ID.
type Session struct {
	User       User      `json:"user"`
	Token      TokenInfo `json:"token_info"`
	LastActive int64     `json:"last_active"`
}

// Expired reports whether the session's access token validity window has
// passed at the given instant. A zero ExpiresAt means the provider did not
// communicate an expiry; such sessions never self-expire and rely on
// provider-side validation.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.Token.ExpiresAt == 0 {
		return false
	}
	return now.Unix() >= s.Token.ExpiresAt
}
