// Package errs holds the sentinel errors shared by every layer. Handlers map
// them to HTTP responses with errors.Is, so components must wrap, not replace.
package errs

import "errors"

// Authentication failures. The caller has to run the authorization flow again.
var (
	ErrInvalidOrExpiredState    = errors.New("invalid or expired state")
	ErrIdentityAssertionInvalid = errors.New("identity assertion invalid")
	ErrCredentialRefreshFailed  = errors.New("credential refresh failed")
)

// Lookups that found nothing.
var (
	ErrIdentityNotFound  = errors.New("identity not found")
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrRecordNotFound    = errors.New("record not found")
)

var (
	// ErrDecryption means a stored secret was not sealed with the current key.
	ErrDecryption = errors.New("decryption failed")

	// ErrRemote covers provider outages, throttling and malformed provider responses.
	ErrRemote = errors.New("remote provider error")

	// ErrValidation covers unparseable datasets and malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrUnresolvedDocument means no bibliographic record could be found for a document.
	ErrUnresolvedDocument = errors.New("document could not be resolved")

	// ErrBusy means another request held the topic lease for the whole wait.
	ErrBusy = errors.New("topic is busy")
)

// IsAuth reports whether err requires the user to authenticate again.
func IsAuth(err error) bool {
	return errors.Is(err, ErrInvalidOrExpiredState) ||
		errors.Is(err, ErrIdentityAssertionInvalid) ||
		errors.Is(err, ErrCredentialRefreshFailed)
}

// IsNotFound reports whether err is one of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrIdentityNotFound) ||
		errors.Is(err, ErrWorkspaceNotFound) ||
		errors.Is(err, ErrRecordNotFound)
}
