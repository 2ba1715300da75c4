// Package relay forwards snapshots from one master to slaves the master
// cannot reach directly. Datagrams are forwarded unchanged; the relay never
// decodes them.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/danmuck/dgr/internal/logging"
	"github.com/danmuck/dgr/internal/observability"
	"github.com/danmuck/dgr/internal/transport"
	"github.com/rs/zerolog"
)

var ErrNoTargets = errors.New("relay: no targets")

const DefaultPollInterval = 100 * time.Millisecond

// Target is one forwarding destination. Name labels logs and metrics.
type Target struct {
	Name string
	Out  transport.Transport
}

type Stats struct {
	Received  uint64
	Forwarded uint64
	Failed    uint64
}

type Relay struct {
	src     transport.Transport
	targets []Target
	poll    time.Duration
	log     zerolog.Logger

	received  atomic.Uint64
	forwarded atomic.Uint64
	failed    atomic.Uint64
}

type Option func(r *Relay)

// WithPollInterval bounds each receive so Run notices cancellation.
func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.poll = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Relay) {
		r.log = l
	}
}

func New(src transport.Transport, targets []Target, opts ...Option) (*Relay, error) {
	if src == nil {
		return nil, fmt.Errorf("relay: nil source")
	}
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	r := &Relay{
		src:     src,
		targets: append([]Target(nil), targets...),
		poll:    DefaultPollInterval,
		log:     logging.For("relay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run forwards datagrams until ctx is done or the source fails. A failed
// send to one target is counted and logged; the remaining targets still
// receive the datagram.
func (r *Relay) Run(ctx context.Context) error {
	r.log.Info().Int("targets", len(r.targets)).Msg("relay.Run started")
	defer r.log.Info().Msg("relay.Run stopped")

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		p, ok, err := r.src.Receive(r.poll)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) && ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("relay: receive: %w", err)
		}
		if !ok {
			continue
		}
		r.received.Add(1)
		r.forward(p)
	}
}

func (r *Relay) forward(p []byte) {
	for _, t := range r.targets {
		n, err := t.Out.Send(p)
		if err == nil && n != len(p) {
			err = fmt.Errorf("sent %d of %d bytes", n, len(p))
		}
		if err != nil {
			r.failed.Add(1)
			observability.RecordRelayForward(t.Name, false)
			r.log.Warn().Str("target", t.Name).Err(err).Msg("relay.forward failed")
			continue
		}
		r.forwarded.Add(1)
		observability.RecordRelayForward(t.Name, true)
	}
}

func (r *Relay) Stats() Stats {
	return Stats{
		Received:  r.received.Load(),
		Forwarded: r.forwarded.Load(),
		Failed:    r.failed.Load(),
	}
}

// Close closes the source and every target, returning the first error.
func (r *Relay) Close() error {
	err := r.src.Close()
	for _, t := range r.targets {
		if cerr := t.Out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
