package protocol

import "errors"

// Callers match on these with errors.Is; every layer wraps them with context.
var (
	ErrConnection             = errors.New("protocol: connection error")
	ErrMalformedHeader        = errors.New("protocol: malformed header")
	ErrInvalidParameters      = errors.New("protocol: invalid parameters")
	ErrBackend                = errors.New("protocol: backend error")
	ErrUnexpectedNotification = errors.New("protocol: unexpected notification")
	ErrTimeout                = errors.New("protocol: timeout")
)

// Fatal reports whether err leaves the connection in an indeterminate state.
// The connection must be re-established after a fatal error.
func Fatal(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrTimeout)
}
