package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned when the authentication provider rejects a login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrOrphanedCredential marks a live principal with no record in any directory.
	ErrOrphanedCredential = errors.New("orphaned credential")
	// ErrRecordNotFound is returned by directories when no record matches the key.
	ErrRecordNotFound = errors.New("role record not found")
	// ErrWrongLoginPage is returned when a principal signs in through another role's login page.
	ErrWrongLoginPage = errors.New("account cannot sign in on this login page")
	// ErrStaleResolution is returned when a newer resolution superseded this one.
	ErrStaleResolution = errors.New("resolution superseded")
)

// ResolutionError reports that a directory could not be consulted or returned data we
// refuse to interpret. It is never equivalent to "not found".
type ResolutionError struct {
	Directory DirectoryKind
	Key       string
	Retryable bool
	Err       error
}

func (e *ResolutionError) Error() string {
	if e.Directory == "" {
		return fmt.Sprintf("resolve principal: %v", e.Err)
	}
	return fmt.Sprintf("resolve principal in %s (key %q): %v", e.Directory, e.Key, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a ResolutionError that may succeed on retry.
func IsRetryable(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re) && re.Retryable
}
