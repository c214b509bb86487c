package audionet

import "errors"

// Sentinel errors for hub session and bridge operations.
var (
	// ErrNoData indicates the session has no membership snapshot yet.
	// Callers treat this as "nothing to report", not a failure.
	ErrNoData = errors.New("audionet: no membership data available")

	// ErrNotConnected indicates an operation requires an open session.
	ErrNotConnected = errors.New("audionet: not connected")

	// ErrAlreadyConnected indicates Connect was called outside the
	// Disconnected state.
	ErrAlreadyConnected = errors.New("audionet: already connected")

	// ErrConnectionFailed indicates the connection attempts were exhausted.
	ErrConnectionFailed = errors.New("audionet: connection failed")

	// ErrSignInFailed indicates the hub rejected the account credentials.
	ErrSignInFailed = errors.New("audionet: sign-in failed")

	// ErrRequestTimeout indicates a hub request got no response in time.
	ErrRequestTimeout = errors.New("audionet: request timed out")

	// ErrSessionClosed indicates the session was closed mid-operation.
	ErrSessionClosed = errors.New("audionet: session closed")
)
