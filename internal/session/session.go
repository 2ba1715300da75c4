package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/dgr/internal/logging"
	"github.com/danmuck/dgr/internal/observability"
	"github.com/danmuck/dgr/internal/protocol"
	"github.com/danmuck/dgr/internal/registry"
	"github.com/danmuck/dgr/internal/transport"
	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

// Session drives one registry over one transport in a fixed role.
type Session struct {
	role  Role
	cfg   Config
	reg   *registry.Registry
	tr    transport.Transport
	clock clock.PassiveClock
	log   zerolog.Logger

	// lastReceive is zero until the first snapshot arrives.
	lastReceive time.Time
	fatal       error
}

// Option configures a Session.
type Option func(s *Session)

func WithConfig(cfg Config) Option {
	return func(s *Session) {
		s.cfg = cfg
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// WithClock replaces the clock used for liveness accounting.
func WithClock(c clock.PassiveClock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// New creates a session. Master and slave sessions need a transport; a
// disabled session ignores it.
func New(role Role, tr transport.Transport, opts ...Option) (*Session, error) {
	s := &Session{
		role:  role,
		cfg:   DefaultConfig(),
		clock: clock.RealClock{},
		log:   logging.For("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg = s.cfg.WithDefaults()

	switch role {
	case RoleMaster, RoleSlave:
		if tr == nil {
			return nil, fmt.Errorf("%w: %s needs a transport", ErrConfig, role)
		}
		s.tr = tr
	case RoleDisabled:
		s.log.Warn().Msg("session.New disabled; not a valid sync environment")
	default:
		return nil, fmt.Errorf("%w: unknown role %d", ErrConfig, int(role))
	}
	s.reg = registry.New(s.cfg.Limits)
	s.log = s.log.With().Str("role", role.String()).Logger()
	s.log.Info().
		Dur("initial_wait", s.cfg.InitialWait).
		Dur("liveness_window", s.cfg.LivenessWindow).
		Int("max_records", s.reg.Limits().MaxRecords).
		Msg("session.New ready")
	return s, nil
}

func (s *Session) Role() Role {
	return s.role
}

func (s *Session) IsMaster() bool {
	return s.role == RoleMaster
}

func (s *Session) IsEnabled() bool {
	return s.role != RoleDisabled
}

// Err returns the fatal error that terminated the session, if any.
func (s *Session) Err() error {
	return s.fatal
}

// LastReceive returns when the slave last accepted a drain, zero if never.
func (s *Session) LastReceive() time.Time {
	return s.lastReceive
}

// SetOrGet stores buf under name on a master and fills buf from the
// registry on a slave. It returns the number of bytes stored or copied.
// A disabled session does nothing and reports (0, nil).
func (s *Session) SetOrGet(name string, buf []byte) (int, error) {
	switch s.role {
	case RoleMaster:
		if err := s.reg.Set(name, buf); err != nil {
			return 0, err
		}
		return len(buf), nil
	case RoleSlave:
		n, err := s.reg.Get(name, buf)
		if err != nil {
			s.log.Debug().Str("name", name).Err(err).Msg("session.SetOrGet lookup failed")
			return 0, err
		}
		if n != len(buf) {
			s.log.Debug().
				Str("name", name).
				Int("buffer", len(buf)).
				Int("stored", n).
				Msg("session.SetOrGet size differs from buffer")
		}
		return n, nil
	default:
		return 0, nil
	}
}

// Update runs one protocol cycle for the session's role.
func (s *Session) Update() error {
	if s.fatal != nil {
		return s.fatal
	}
	switch s.role {
	case RoleMaster:
		return s.updateMaster()
	case RoleSlave:
		return s.updateSlave()
	default:
		return nil
	}
}

// Serialize returns the snapshot a master Update would send.
func (s *Session) Serialize() ([]byte, error) {
	return protocol.Marshal(s.reg)
}

// DeserializeInto merges a snapshot into the registry. Malformed input is
// rejected without touching the registry.
func (s *Session) DeserializeInto(p []byte) error {
	if err := protocol.DecodeInto(s.reg, p); err != nil {
		if errors.Is(err, protocol.ErrMalformedPacket) {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return err
	}
	return nil
}

// ListKnownVariables returns the registry's names and sizes in order.
func (s *Session) ListKnownVariables() []registry.Info {
	return s.reg.List()
}

// Close releases the transport. The registry is discarded with the session.
func (s *Session) Close() error {
	if s.tr == nil {
		return nil
	}
	return s.tr.Close()
}

func (s *Session) fail(reason string, err error) error {
	s.fatal = err
	observability.RecordFatal(s.role.String(), reason)
	s.log.Error().Str("reason", reason).Err(err).Msg("session.fail terminated")
	return err
}
