// Package transport provides the datagram channel a session drives.
//
// Ownership boundary:
// - address resolution and socket lifecycle
// - non-blocking and bounded-wait receive
// - multicast group membership
//
// Sessions only see the Transport interface.
package transport

import (
	"errors"
	"time"
)

// MaxDatagramBytes is the largest UDP payload over IPv4.
const MaxDatagramBytes = 65507

var (
	ErrClosed           = errors.New("transport: closed")
	ErrDatagramTooLarge = errors.New("transport: datagram too large")
	ErrSendOnly         = errors.New("transport: send-only endpoint")
	ErrReceiveOnly      = errors.New("transport: receive-only endpoint")
	ErrInvalidAddress   = errors.New("transport: invalid address")
)

// Transport sends and receives whole datagrams.
//
// Receive(0) returns without waiting for new datagrams. Receive(wait) with
// wait > 0 may block up to wait. ok is false when nothing arrived.
type Transport interface {
	Send(p []byte) (int, error)
	Receive(wait time.Duration) (p []byte, ok bool, err error)
	Close() error
}
