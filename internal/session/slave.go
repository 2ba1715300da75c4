package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/dgr/internal/observability"
	"github.com/danmuck/dgr/internal/protocol"
)

// updateSlave drains every pending datagram and merges only the newest.
// Each datagram is a full snapshot, so older ones carry nothing the newest
// does not.
func (s *Session) updateSlave() error {
	var latest []byte
	received := 0

	if s.lastReceive.IsZero() {
		p, ok, err := s.tr.Receive(s.cfg.InitialWait)
		if err != nil {
			return s.fail("receive", fmt.Errorf("%w: receive: %w", ErrTransport, err))
		}
		if !ok {
			return s.fail("liveness", fmt.Errorf(
				"%w: nothing received within %s; master or relay never came up",
				ErrLivenessTimeout,
				s.cfg.InitialWait,
			))
		}
		latest, received = p, 1
	} else if silence := s.clock.Since(s.lastReceive); silence >= s.cfg.LivenessWindow {
		return s.fail("liveness", fmt.Errorf(
			"%w: no snapshot for %s (window %s); master or relay appears to have died",
			ErrLivenessTimeout,
			silence,
			s.cfg.LivenessWindow,
		))
	}

	for {
		p, ok, err := s.tr.Receive(0)
		if err != nil {
			return s.fail("receive", fmt.Errorf("%w: receive: %w", ErrTransport, err))
		}
		if !ok {
			break
		}
		latest = p
		received++
	}
	if received == 0 {
		return nil
	}

	s.lastReceive = s.clock.Now()
	observability.RecordDrain(s.role.String(), received)
	if received > 1 {
		s.log.Trace().Int("superseded", received-1).Msg("session.Slave.update drained")
	}

	if err := protocol.DecodeInto(s.reg, latest); err != nil {
		if errors.Is(err, protocol.ErrMalformedPacket) {
			observability.RecordDecodeError(s.role.String())
			s.log.Warn().Int("bytes", len(latest)).Err(err).Msg("session.Slave.update discarded malformed snapshot")
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		s.log.Warn().Err(err).Msg("session.Slave.update merge rejected")
		return err
	}
	observability.SetRegistryRecords(s.role.String(), s.reg.Len())
	return nil
}
