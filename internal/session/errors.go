package session

import "errors"

var (
	ErrConfig          = errors.New("session: invalid configuration")
	ErrTransport       = errors.New("session: transport failure")
	ErrShortWrite      = errors.New("session: short write")
	ErrLivenessTimeout = errors.New("session: liveness timeout")
	ErrDecode          = errors.New("session: decode failure")
	ErrNotFixedSize    = errors.New("session: value has no fixed size")
	ErrSizeMismatch    = errors.New("session: stored size differs from value size")
)

// IsFatal reports whether err ends the session.
func IsFatal(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrLivenessTimeout)
}
