package authflow

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/squadkit/authflow/session"
)

// tokenClaims mines bookkeeping claims out of a JWT access token without
// verifying the signature. The identity provider is the sole authority for
// token validity; this is only used to fill in subject and expiry metadata
// the provider did not communicate out of band.
func tokenClaims(accessToken string) (subject string, issuedAt, expiresAt int64) {
	if accessToken == "" {
		return "", 0, 0
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return "", 0, 0
	}

	if sub, err := claims.GetSubject(); err == nil {
		subject = sub
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		issuedAt = iat.Unix()
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Unix()
	}
	return subject, issuedAt, expiresAt
}

// enrichToken fills gaps in a session's token metadata from its JWT claims:
// missing UserID from the subject, missing validity window from iat/exp.
// A non-JWT opaque token leaves the session untouched.
func enrichToken(sess *session.Session) {
	if sess == nil {
		return
	}

	subject, issuedAt, expiresAt := tokenClaims(sess.Token.AccessToken)
	if sess.Token.UserID == "" {
		if subject != "" {
			sess.Token.UserID = subject
		} else {
			sess.Token.UserID = sess.User.ID
		}
	}
	if sess.Token.IssuedAt == 0 {
		sess.Token.IssuedAt = issuedAt
	}
	if sess.Token.ExpiresAt == 0 {
		sess.Token.ExpiresAt = expiresAt
	}
}
