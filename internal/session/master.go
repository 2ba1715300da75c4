package session

import (
	"fmt"

	"github.com/danmuck/dgr/internal/observability"
	"github.com/danmuck/dgr/internal/protocol"
)

// updateMaster sends the whole registry as one snapshot. Half a snapshot
// would corrupt slave state, so failed or short sends are never retried.
func (s *Session) updateMaster() error {
	if s.reg.Len() == 0 {
		return nil
	}
	packet, err := protocol.Marshal(s.reg)
	if err != nil {
		return err
	}

	n, err := s.tr.Send(packet)
	if err != nil {
		return s.fail("send", fmt.Errorf("%w: send %d bytes: %w", ErrTransport, len(packet), err))
	}
	if n != len(packet) {
		return s.fail("short_write", fmt.Errorf("%w: %w: sent %d of %d bytes", ErrTransport, ErrShortWrite, n, len(packet)))
	}

	observability.RecordSend(s.role.String(), n)
	observability.SetRegistryRecords(s.role.String(), s.reg.Len())
	s.log.Trace().Int("bytes", n).Int("records", s.reg.Len()).Msg("session.Master.update sent")
	return nil
}
