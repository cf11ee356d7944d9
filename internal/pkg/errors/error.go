// Package xerrors holds the sentinel errors shared by the session core and
// its HTTP surface. Handlers map them to status codes with errors.Is.
package xerrors

import "errors"

var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrRateLimited  = errors.New("too many requests")
)

// Session and access-control errors
var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrNoActiveRole       = errors.New("no active profile selected")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrRoleNotGranted     = errors.New("profile not granted to user")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrInvalidTaxID       = errors.New("invalid tax id")
)
