package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiringSoon reports whether the current access token expires
// within window. The token is decoded without signature verification;
// only the server can verify it, this side just reads the expiry claim.
// Tokens without an exp claim never report as expiring.
func (m *Manager) TokenExpiringSoon(window time.Duration) bool {
	token := m.AccessToken()
	if token == "" {
		return false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) <= window
}

// EnsureFreshToken refreshes the access token proactively when it is
// expired or near expiry, and returns the token to use. Callers that are
// about to open a realtime connection use this so the handshake does not
// race token expiry. Blocks for at most the refresh timeout.
func (m *Manager) EnsureFreshToken(window time.Duration) (string, error) {
	token := m.AccessToken()
	if token == "" {
		return "", ErrSessionExpired
	}
	if !m.TokenExpiringSoon(window) {
		return token, nil
	}
	return m.refreshAccessToken(token)
}
