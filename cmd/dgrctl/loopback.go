package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/dgr/internal/logging"
	"github.com/danmuck/dgr/internal/session"
	"github.com/danmuck/dgr/internal/transport"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var cmdLoopback = &cobra.Command{
	Use:   "loopback",
	Short: "Run a master and a slave in one process over an in-memory pipe",
	Args:  cobra.NoArgs,
	RunE:  runLoopback,
}

var flagLoopback struct {
	FPS    int
	Frames int64
}

func init() {
	cmdLoopback.Flags().IntVar(&flagLoopback.FPS, "fps", 60, "frames per second")
	cmdLoopback.Flags().Int64Var(&flagLoopback.Frames, "frames", 120, "frames the master publishes")
	cmdMain.AddCommand(cmdLoopback)
}

func runLoopback(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	last, err := loopback(ctx, flagLoopback.FPS, flagLoopback.Frames)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "slave followed master to frame %d of %d\n", last, flagLoopback.Frames)
	return nil
}

// loopback publishes frames from a master and follows them with a slave
// until the slave sees the final frame. It returns the last frame the slave
// observed.
func loopback(ctx context.Context, fps int, frames int64) (int64, error) {
	if frames <= 0 {
		return 0, fmt.Errorf("frames must be positive, got %d", frames)
	}
	pipe := transport.NewPipe()
	defer pipe.Close()

	master, err := session.New(session.RoleMaster, pipe)
	if err != nil {
		return 0, err
	}
	slave, err := session.New(session.RoleSlave, pipe, session.WithConfig(session.Config{InitialWait: time.Second}))
	if err != nil {
		return 0, err
	}

	masterTick, err := frameTicker(fps)
	if err != nil {
		return 0, err
	}
	defer masterTick.Stop()
	slaveTick, err := frameTicker(fps)
	if err != nil {
		return 0, err
	}
	defer slaveTick.Stop()

	log := logging.For("dgrctl")
	var seen int64
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return masterLoop(ctx, master, masterTick.C, nil, frames)
	})
	g.Go(func() error {
		for seen < frames {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-slaveTick.C:
			}
			if err := slave.Update(); err != nil {
				if session.IsFatal(err) {
					return err
				}
				log.Warn().Err(err).Msg("dgrctl.loopback slave update failed")
				continue
			}
			var frame int64
			if err := session.SetOrGetValue(slave, "frame", &frame); err != nil {
				return err
			}
			if frame < seen {
				return fmt.Errorf("frame went backwards: %d after %d", frame, seen)
			}
			seen = frame
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return seen, err
	}
	return seen, nil
}
