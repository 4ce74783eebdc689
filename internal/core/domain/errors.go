package domain

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced by the entry points and facades.
var (
	ErrServiceUnavailable    = errors.New("service unavailable")
	ErrConflict              = errors.New("conflict")
	ErrAuthentication        = errors.New("authentication error")
	ErrAuthenticationFailure = errors.New("authentication failure")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrRevoked               = errors.New("revoked")
	ErrInvalidTransition     = errors.New("invalid state transition")
	ErrInvalidInput          = errors.New("invalid input")
)

// Lookup misses returned by repositories and stores.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAgentNotFound   = errors.New("agent not found")
	ErrTokenNotFound   = errors.New("token not found")
)

var (
	ErrSelfRevocation = fmt.Errorf("%w: agent cannot revoke itself", ErrInvalidTransition)
	ErrSessionEnded   = fmt.Errorf("%w: session ended", ErrUnauthorized)
	ErrSessionRevoked = fmt.Errorf("%w: %w", ErrSessionEnded, ErrRevoked)
)

// known lists every sentinel the core produces on purpose. Anything else
// coming back from a port is an infrastructure failure.
var known = []error{
	ErrServiceUnavailable,
	ErrConflict,
	ErrAuthentication,
	ErrAuthenticationFailure,
	ErrUnauthorized,
	ErrRevoked,
	ErrInvalidTransition,
	ErrInvalidInput,
	ErrAccountNotFound,
	ErrAgentNotFound,
	ErrTokenNotFound,
}

// IsKnown reports whether err carries one of the domain sentinels.
func IsKnown(err error) bool {
	for _, k := range known {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// Unavailable tags an infrastructure error as ErrServiceUnavailable while
// keeping the cause in the chain. Domain errors pass through untouched.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsKnown(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrServiceUnavailable, err)
}
