package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/dgr/internal/logging"
	"golang.org/x/net/ipv4"
)

// Options configures UDP endpoints. Zero values select defaults.
type Options struct {
	// MulticastGroup is joined by a Listener when set.
	MulticastGroup string
	// Interface names the NIC used for multicast send/join.
	Interface string
	// MulticastTTL applies to a Sender whose destination is multicast.
	MulticastTTL int
	// MulticastLoopback lets a Sender's own host receive its multicast.
	MulticastLoopback bool
	// ReuseAddr lets several listeners on one host share a port.
	ReuseAddr bool
	// ReadBufferBytes sets SO_RCVBUF on a Listener.
	ReadBufferBytes int
	// MaxPacketBytes sizes the Listener's receive buffer.
	MaxPacketBytes int
}

func DefaultOptions() Options {
	return Options{
		MulticastTTL:      1,
		MulticastLoopback: true,
		ReuseAddr:         true,
		MaxPacketBytes:    1024 * 1024,
	}
}

// Sender is the master side: an unconnected UDP socket writing to one
// destination. Unconnected sends keep ICMP port-unreachable replies from a
// slave that is not up yet from failing later writes.
type Sender struct {
	conn *net.UDPConn
	dest *net.UDPAddr
}

// DialSender resolves host:port and opens a socket able to reach it.
func DialSender(ctx context.Context, host string, port int, opts Options) (*Sender, error) {
	host = strings.TrimSpace(host)
	if host == "" || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: host=%q port=%d", ErrInvalidAddress, host, port)
	}
	dest, err := resolveUDP(ctx, host, port)
	if err != nil {
		return nil, err
	}

	network := "udp4"
	if dest.IP.To4() == nil {
		network = "udp6"
	}
	lc := net.ListenConfig{Control: socketControl(false, true)}
	pc, err := lc.ListenPacket(ctx, network, ":0")
	if err != nil {
		return nil, fmt.Errorf("transport: sender socket: %w", err)
	}
	conn := pc.(*net.UDPConn)

	if dest.IP.IsMulticast() && network == "udp4" {
		if err := configureMulticastSend(conn, opts); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	log := logging.For("transport")
	log.Info().
		Str("dest", dest.String()).
		Str("local", conn.LocalAddr().String()).
		Bool("multicast", dest.IP.IsMulticast()).
		Msg("transport.DialSender ready")
	return &Sender{conn: conn, dest: dest}, nil
}

func (s *Sender) Send(p []byte) (int, error) {
	if len(p) > MaxDatagramBytes {
		return 0, fmt.Errorf("%w: %d bytes", ErrDatagramTooLarge, len(p))
	}
	n, err := s.conn.WriteToUDP(p, s.dest)
	if errors.Is(err, net.ErrClosed) {
		return n, ErrClosed
	}
	return n, err
}

func (s *Sender) Receive(time.Duration) ([]byte, bool, error) {
	return nil, false, ErrSendOnly
}

func (s *Sender) Close() error {
	return s.conn.Close()
}

// Listener is the slave side: a bound UDP socket, optionally in a
// multicast group.
type Listener struct {
	conn   *net.UDPConn
	raw    syscall.RawConn
	buf    []byte
	closed atomic.Bool
}

// Listen binds port on all interfaces.
func Listen(ctx context.Context, port int, opts Options) (*Listener, error) {
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("%w: port=%d", ErrInvalidAddress, port)
	}
	if opts.MaxPacketBytes <= 0 {
		opts.MaxPacketBytes = DefaultOptions().MaxPacketBytes
	}

	var group net.IP
	if g := strings.TrimSpace(opts.MulticastGroup); g != "" {
		group = net.ParseIP(g)
		if group == nil || group.To4() == nil || !group.IsMulticast() {
			return nil, fmt.Errorf("%w: multicast group %q", ErrInvalidAddress, g)
		}
	}

	network, addr := "udp", ":"+strconv.Itoa(port)
	if group != nil {
		network, addr = "udp4", "0.0.0.0:"+strconv.Itoa(port)
	}
	lc := net.ListenConfig{Control: socketControl(opts.ReuseAddr, false)}
	pc, err := lc.ListenPacket(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	conn := pc.(*net.UDPConn)

	if opts.ReadBufferBytes > 0 {
		if err := conn.SetReadBuffer(opts.ReadBufferBytes); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("transport: read buffer: %w", err)
		}
	}
	if group != nil {
		if err := joinGroup(conn, group, opts.Interface); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	raw, err := conn.SyscallConn()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("transport: raw conn: %w", err)
	}

	log := logging.For("transport")
	log.Info().
		Str("local", conn.LocalAddr().String()).
		Str("group", opts.MulticastGroup).
		Msg("transport.Listen ready")
	return &Listener{conn: conn, raw: raw, buf: make([]byte, opts.MaxPacketBytes)}, nil
}

func (l *Listener) Send([]byte) (int, error) {
	return 0, ErrReceiveOnly
}

func (l *Listener) Receive(wait time.Duration) ([]byte, bool, error) {
	if l.closed.Load() {
		return nil, false, ErrClosed
	}
	if wait <= 0 {
		return l.receiveNow()
	}

	if err := l.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return nil, false, err
	}
	defer l.conn.SetReadDeadline(time.Time{})

	n, _, err := l.conn.ReadFromUDP(l.buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, false, nil
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, false, ErrClosed
		}
		return nil, false, err
	}
	return l.copyOut(n), true, nil
}

func (l *Listener) LocalAddr() *net.UDPAddr {
	return l.conn.LocalAddr().(*net.UDPAddr)
}

func (l *Listener) Close() error {
	l.closed.Store(true)
	return l.conn.Close()
}

func (l *Listener) copyOut(n int) []byte {
	out := make([]byte, n)
	copy(out, l.buf[:n])
	return out
}

func resolveUDP(ctx context.Context, host string, port int) (*net.UDPAddr, error) {
	if ip := net.ParseIP(host); ip != nil {
		return &net.UDPAddr{IP: ip, Port: port}, nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %q resolved to no addresses", ErrInvalidAddress, host)
	}
	for _, a := range addrs {
		if a.IP.To4() != nil {
			return &net.UDPAddr{IP: a.IP, Port: port}, nil
		}
	}
	return &net.UDPAddr{IP: addrs[0].IP, Port: port, Zone: addrs[0].Zone}, nil
}

func configureMulticastSend(conn *net.UDPConn, opts Options) error {
	p := ipv4.NewPacketConn(conn)
	ttl := opts.MulticastTTL
	if ttl <= 0 {
		ttl = 1
	}
	if err := p.SetMulticastTTL(ttl); err != nil {
		return fmt.Errorf("transport: multicast ttl: %w", err)
	}
	if err := p.SetMulticastLoopback(opts.MulticastLoopback); err != nil {
		return fmt.Errorf("transport: multicast loopback: %w", err)
	}
	if name := strings.TrimSpace(opts.Interface); name != "" {
		ifi, err := net.InterfaceByName(name)
		if err != nil {
			return fmt.Errorf("transport: interface %q: %w", name, err)
		}
		if err := p.SetMulticastInterface(ifi); err != nil {
			return fmt.Errorf("transport: multicast interface: %w", err)
		}
	}
	return nil
}

func joinGroup(conn *net.UDPConn, group net.IP, iface string) error {
	var ifi *net.Interface
	if name := strings.TrimSpace(iface); name != "" {
		var err error
		ifi, err = net.InterfaceByName(name)
		if err != nil {
			return fmt.Errorf("transport: interface %q: %w", name, err)
		}
	}
	p := ipv4.NewPacketConn(conn)
	if err := p.JoinGroup(ifi, &net.UDPAddr{IP: group}); err != nil {
		return fmt.Errorf("transport: join %s: %w", group, err)
	}
	return nil
}
