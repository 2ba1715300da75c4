package relay

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/dgr/internal/protocol"
	"github.com/danmuck/dgr/internal/session"
	"github.com/danmuck/dgr/internal/testutil/testlog"
	"github.com/danmuck/dgr/internal/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type brokenTarget struct{}

func (brokenTarget) Send([]byte) (int, error)                    { return 0, errors.New("unreachable") }
func (brokenTarget) Receive(time.Duration) ([]byte, bool, error) { return nil, false, nil }
func (brokenTarget) Close() error                                { return nil }

func startRelay(t *testing.T, r *Relay) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestNewValidates(t *testing.T) {
	testlog.Start(t)
	_, err := New(transport.NewPipe(), nil)
	require.ErrorIs(t, err, ErrNoTargets)
	_, err = New(nil, []Target{{Name: "a", Out: transport.NewPipe()}})
	require.Error(t, err)
}

func TestRelayFansOutEveryDatagram(t *testing.T) {
	testlog.Start(t)
	src := transport.NewPipe()
	a, b := transport.NewPipe(), transport.NewPipe()
	r, err := New(src, []Target{{Name: "a", Out: a}, {Name: "b", Out: b}}, WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)
	cancel, done := startRelay(t, r)

	packets := [][]byte{
		protocol.AppendRecord(nil, "frame", []byte{1}),
		protocol.AppendRecord(nil, "frame", []byte{2}),
	}
	for _, p := range packets {
		_, err := src.Send(p)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return a.Pending() == 2 && b.Pending() == 2
	}, time.Second, 5*time.Millisecond)

	for _, out := range []*transport.Pipe{a, b} {
		for _, want := range packets {
			got, ok, err := out.Receive(0)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, want, got)
		}
	}

	cancel()
	require.NoError(t, <-done)
	require.Equal(t, Stats{Received: 2, Forwarded: 4}, r.Stats())
}

func TestRelayKeepsForwardingPastFailedTarget(t *testing.T) {
	testlog.Start(t)
	src := transport.NewPipe()
	good := transport.NewPipe()
	r, err := New(src, []Target{{Name: "down", Out: brokenTarget{}}, {Name: "up", Out: good}}, WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)
	cancel, done := startRelay(t, r)

	_, err = src.Send(protocol.AppendRecord(nil, "x", []byte("y")))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return good.Pending() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.Equal(t, Stats{Received: 1, Forwarded: 1, Failed: 1}, r.Stats())
}

func TestRelayFeedsSlaveSession(t *testing.T) {
	testlog.Start(t)
	upstream, downstream := transport.NewPipe(), transport.NewPipe()
	r, err := New(upstream, []Target{{Name: "slave", Out: downstream}}, WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)
	startRelay(t, r)

	master, err := session.New(session.RoleMaster, upstream)
	require.NoError(t, err)
	slave, err := session.New(session.RoleSlave, downstream, session.WithConfig(session.Config{InitialWait: time.Second}))
	require.NoError(t, err)

	frame := int64(42)
	require.NoError(t, session.SetOrGetValue(master, "frame", &frame))
	require.NoError(t, master.Update())
	require.NoError(t, slave.Update())

	var got int64
	require.NoError(t, session.SetOrGetValue(slave, "frame", &got))
	require.Equal(t, int64(42), got)
}

func TestRelayStopsOnSourceError(t *testing.T) {
	testlog.Start(t)
	src := transport.NewPipe()
	r, err := New(src, []Target{{Name: "a", Out: transport.NewPipe()}}, WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)
	_, done := startRelay(t, r)

	require.NoError(t, src.Close())
	select {
	case err := <-done:
		require.ErrorIs(t, err, transport.ErrClosed)
	case <-time.After(time.Second):
		t.Fatalf("relay did not stop after source closed")
	}
}

func TestWithLoggerReportsFailedTargets(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	src := transport.NewPipe()
	r, err := New(src, []Target{{Name: "down", Out: brokenTarget{}}},
		WithPollInterval(5*time.Millisecond), WithLogger(zerolog.New(&buf)))
	require.NoError(t, err)

	r.forward(protocol.AppendRecord(nil, "frame", []byte{1}))
	require.Equal(t, uint64(1), r.Stats().Failed)
	require.Contains(t, buf.String(), "relay.forward failed")
	require.Contains(t, buf.String(), `"target":"down"`)
}
