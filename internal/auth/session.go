package auth

import "strings"

// Session exposes the identity of the signed-in user. Session issuance is
// handled by the identity provider; the client only needs the identity.
type Session struct {
	authID string
}

func NewSession(authID string) *Session {
	return &Session{authID: strings.TrimSpace(authID)}
}

// CurrentIdentity returns the authenticated identity, or false when nobody
// is signed in.
func (s *Session) CurrentIdentity() (string, bool) {
	if s == nil || s.authID == "" {
		return "", false
	}
	return s.authID, true
}
