package app

import "errors"

var (
	// ErrNotSignedIn is returned by operations that need a current identity.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrNotAuthorized is returned by agenda writes attempted before the
	// approval gate opens.
	ErrNotAuthorized = errors.New("account not authorized")
	// ErrNotAdmin guards administrator-only operations.
	ErrNotAdmin = errors.New("administrator privileges required")
	// ErrInvalidInput covers empty titles, unknown colors, types, statuses.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when the targeted row no longer exists.
	ErrNotFound = errors.New("not found")
)
