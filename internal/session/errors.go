package session

import "errors"

var (
	// ErrInvalidCredentials is returned by Login when the server rejects
	// the username/password pair. The caller may retry.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionExpired means the refresh token was rejected or absent.
	// The session has been torn down and the user must re-authenticate.
	ErrSessionExpired = errors.New("session expired")

	// ErrNetwork wraps generic request failures that the caller may retry.
	ErrNetwork = errors.New("network error")
)
