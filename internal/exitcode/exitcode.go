// Package exitcode defines exit codes for the CLI.
package exitcode

import "todo/internal/apierr"

const (
	// Success indicates successful completion.
	Success = 0

	// UserError indicates a user error (bad args, not found, validation).
	UserError = 1

	// AuthError indicates a missing or rejected session.
	AuthError = 2

	// BackendError indicates a server or network error.
	BackendError = 3
)

// FromError maps an error to an exit code by its kind.
func FromError(err error) int {
	if err == nil {
		return Success
	}
	kind, ok := apierr.KindOf(err)
	if !ok {
		return BackendError
	}
	switch kind {
	case apierr.KindValidation:
		return UserError
	case apierr.KindAuthentication:
		return AuthError
	default:
		return BackendError
	}
}
