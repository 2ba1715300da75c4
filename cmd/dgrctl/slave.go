package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/dgr/internal/logging"
	"github.com/danmuck/dgr/internal/registry"
	"github.com/danmuck/dgr/internal/session"
	"github.com/spf13/cobra"
)

var cmdSlave = &cobra.Command{
	Use:   "slave",
	Short: "Follow a master and report the variables it publishes",
	Args:  cobra.NoArgs,
	RunE:  runSlave,
}

var flagSlave struct {
	FPS        int
	Frames     int64
	PrintEvery int64
}

func init() {
	cmdSlave.Flags().IntVar(&flagSlave.FPS, "fps", 60, "frames per second")
	cmdSlave.Flags().Int64Var(&flagSlave.Frames, "frames", 0, "stop after this many frames (0 runs until interrupted)")
	cmdSlave.Flags().Int64Var(&flagSlave.PrintEvery, "print-every", 60, "log known variables every N frames")
	bindSyncFlags(cmdSlave.Flags())
	cmdMain.AddCommand(cmdSlave)
}

func runSlave(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd.Flags(), "slave")
	if err != nil {
		return err
	}
	ticker, err := frameTicker(flagSlave.FPS)
	if err != nil {
		return err
	}
	defer ticker.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	return serve(ctx, func(ctx context.Context) error {
		return slaveLoop(ctx, sess, ticker.C, flagSlave.PrintEvery, flagSlave.Frames)
	})
}

// slaveLoop runs one Update per tick. Non-fatal errors are logged and the
// loop keeps going.
func slaveLoop(ctx context.Context, sess *session.Session, tick <-chan time.Time, printEvery, limit int64) error {
	log := logging.For("dgrctl")
	var frames int64
	for limit <= 0 || frames < limit {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		}
		frames++
		if err := sess.Update(); err != nil {
			if session.IsFatal(err) {
				return err
			}
			log.Warn().Int64("frame", frames).Err(err).Msg("dgrctl.slave update failed")
			continue
		}
		if printEvery > 0 && frames%printEvery == 0 {
			reportState(sess)
		}
	}
	return nil
}

func reportState(sess *session.Session) {
	log := logging.For("dgrctl")
	event := log.Info().Int("variables", len(sess.ListKnownVariables()))

	var frame int64
	switch err := session.SetOrGetValue(sess, "frame", &frame); {
	case err == nil:
		event = event.Int64("master_frame", frame)
	case !errors.Is(err, registry.ErrNotFound):
		log.Debug().Err(err).Msg("dgrctl.slave frame unreadable")
	}
	var elapsed float64
	if err := session.SetOrGetValue(sess, "time", &elapsed); err == nil {
		event = event.Float64("master_time", elapsed)
	}
	event.Msg("dgrctl.slave state")

	for _, info := range sess.ListKnownVariables() {
		log.Debug().Int("index", info.Index).Int("size", info.Size).Str("name", info.Name).Msg("dgrctl.slave variable")
	}
}
