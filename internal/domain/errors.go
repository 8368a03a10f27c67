package domain

import "errors"

var (
	// ErrNotAuthenticated is returned when a remote operation is attempted without a current user.
	ErrNotAuthenticated = errors.New("user not authenticated")
	// ErrNetworkUnavailable is returned when connectivity is required but absent.
	ErrNetworkUnavailable = errors.New("no network connection")
	// ErrRemoteRejected wraps validation or permission failures reported by the remote store.
	ErrRemoteRejected = errors.New("remote store rejected request")
	// ErrNotFound is returned when a record or document cannot be located.
	ErrNotFound = errors.New("record not found")
	// ErrIDConflict is returned when an id rewrite targets an id already present locally.
	ErrIDConflict = errors.New("record id already exists")
	// ErrLocalStorage wraps failures of the local persistence medium.
	ErrLocalStorage = errors.New("local storage failure")
	// ErrUnknownActivityType is returned for records outside the known activity catalog.
	ErrUnknownActivityType = errors.New("unknown activity type")
)
