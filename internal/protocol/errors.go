package protocol

import "errors"

var (
	// ErrMalformedPacket is wrapped by every decode failure.
	ErrMalformedPacket = errors.New("protocol: malformed packet")

	ErrTruncated     = errors.New("protocol: truncated data")
	ErrInvalidLength = errors.New("protocol: invalid length")
	ErrNameTooLong   = errors.New("protocol: name too long")
	ErrEmptyName     = errors.New("protocol: empty name")
)
