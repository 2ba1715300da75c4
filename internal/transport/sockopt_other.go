//go:build !unix

package transport

import (
	"errors"
	"os"
	"syscall"
	"time"
)

func socketControl(reuseAddr, broadcast bool) func(network, address string, c syscall.RawConn) error {
	return nil
}

// receiveNow falls back to a one millisecond read deadline. Without a
// non-blocking recvfrom a deadline already in the past fails before reading,
// so an empty socket costs up to a millisecond here.
func (l *Listener) receiveNow() ([]byte, bool, error) {
	if err := l.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return nil, false, err
	}
	defer l.conn.SetReadDeadline(time.Time{})
	n, _, err := l.conn.ReadFromUDP(l.buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, false, nil
		}
		if l.closed.Load() {
			return nil, false, ErrClosed
		}
		return nil, false, err
	}
	return l.copyOut(n), true, nil
}
