// ABOUTME: Error values shared by the credential stores and middleware
// ABOUTME: Separates unknown credentials from database failures

package auth

import "errors"

var (
	// ErrUnauthenticated means the credential is missing, malformed or unknown.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrStoreUnavailable means persistence failed while resolving a credential.
	ErrStoreUnavailable = errors.New("credential store unavailable")

	// ErrForbidden means the caller may not grant the requested permission.
	ErrForbidden = errors.New("insufficient permissions")
)
