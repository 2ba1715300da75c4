//go:build unix

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func socketControl(reuseAddr, broadcast bool) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var serr error
		err := c.Control(func(fd uintptr) {
			if reuseAddr {
				if serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); serr != nil {
					return
				}
			}
			if broadcast {
				serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			}
		})
		if err != nil {
			return err
		}
		return serr
	}
}

// receiveNow reads one pending datagram without waiting. The runtime poller
// refuses to attempt a read once a deadline has passed, so a zero wait goes
// straight to recvfrom with MSG_DONTWAIT.
func (l *Listener) receiveNow() ([]byte, bool, error) {
	var (
		n    int
		rerr error
	)
	err := l.raw.Read(func(fd uintptr) bool {
		n, _, rerr = unix.Recvfrom(int(fd), l.buf, unix.MSG_DONTWAIT)
		return true
	})
	if err != nil {
		if l.closed.Load() {
			return nil, false, ErrClosed
		}
		return nil, false, err
	}
	if rerr != nil {
		if rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK || rerr == unix.EINTR {
			return nil, false, nil
		}
		return nil, false, rerr
	}
	return l.copyOut(n), true, nil
}
