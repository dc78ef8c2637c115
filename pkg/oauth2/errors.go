package oauth2

import (
	"errors"
	"fmt"
)

var (
	ErrTransport               = errors.New("transport failure")
	ErrTokenExchangeFailed     = errors.New("token exchange failed")
	ErrCallbackMissingCode     = errors.New("callback missing authorization code")
	ErrUserCancelled           = errors.New("cancelled by user")
	ErrNoRefreshTokenAvailable = errors.New("no refresh token available")
	ErrStoreCorrupt            = errors.New("stored token is corrupt")
	ErrInvalidTransition       = errors.New("invalid state transition")
	ErrStaleCompletion         = errors.New("stale completion discarded")
	ErrNotAuthenticating       = errors.New("no authorization in progress")
	ErrPersistFailed           = errors.New("failed to update stored token")
)

// ExchangeError describes a failed call to the token endpoint. It always
// matches ErrTokenExchangeFailed; transport failures also match ErrTransport.
type ExchangeError struct {
	Grant      string
	StatusCode int
	// Code and Description come from an RFC 6749 §5.2 error body, when present.
	Code        string
	Description string
	Err         error
}

func (e *ExchangeError) Error() string {
	msg := fmt.Sprintf("%s grant", e.Grant)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Code != "" {
		msg += ": " + e.Code
		if e.Description != "" {
			msg += " (" + e.Description + ")"
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return ErrTokenExchangeFailed.Error() + ": " + msg
}

func (e *ExchangeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTokenExchangeFailed}
	}
	return []error{ErrTokenExchangeFailed, e.Err}
}

// AuthorizationError is an error redirect from the authorization endpoint
// (RFC 6749 §4.1.2.1).
type AuthorizationError struct {
	Code        string
	Description string
}

func (e *AuthorizationError) Error() string {
	if e.Description == "" {
		return "authorization denied: " + e.Code
	}
	return "authorization denied: " + e.Code + " (" + e.Description + ")"
}
