package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/dgr/internal/logging"
	"github.com/danmuck/dgr/internal/session"
	"github.com/spf13/cobra"
)

var cmdMaster = &cobra.Command{
	Use:   "master",
	Short: "Publish a frame counter and extra variables every frame",
	Args:  cobra.NoArgs,
	RunE:  runMaster,
}

var flagMaster struct {
	FPS    int
	Frames int64
	Vars   []string
}

func init() {
	cmdMaster.Flags().IntVar(&flagMaster.FPS, "fps", 60, "frames per second")
	cmdMaster.Flags().Int64Var(&flagMaster.Frames, "frames", 0, "stop after this many frames (0 runs until interrupted)")
	cmdMaster.Flags().StringArrayVar(&flagMaster.Vars, "var", nil, "extra string variable as name=value (repeatable)")
	bindSyncFlags(cmdMaster.Flags())
	cmdMain.AddCommand(cmdMaster)
}

type variable struct {
	name  string
	value []byte
}

func parseVars(raw []string) ([]variable, error) {
	vars := make([]variable, 0, len(raw))
	for _, entry := range raw {
		name, value, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q, want name=value", entry)
		}
		vars = append(vars, variable{name: name, value: []byte(value)})
	}
	return vars, nil
}

func runMaster(cmd *cobra.Command, _ []string) error {
	vars, err := parseVars(flagMaster.Vars)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(cmd.Flags(), "master")
	if err != nil {
		return err
	}
	ticker, err := frameTicker(flagMaster.FPS)
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
		return masterLoop(ctx, sess, ticker.C, vars, flagMaster.Frames)
	})
}

// masterLoop publishes frame, time and vars once per tick.
func masterLoop(ctx context.Context, sess *session.Session, tick <-chan time.Time, vars []variable, limit int64) error {
	log := logging.For("dgrctl")
	start := time.Now()
	var frame int64
	for limit <= 0 || frame < limit {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		}
		frame++
		elapsed := time.Since(start).Seconds()
		if err := session.SetOrGetValue(sess, "frame", &frame); err != nil {
			return err
		}
		if err := session.SetOrGetValue(sess, "time", &elapsed); err != nil {
			return err
		}
		for _, v := range vars {
			if _, err := sess.SetOrGet(v.name, v.value); err != nil {
				return fmt.Errorf("set %s: %w", v.name, err)
			}
		}
		if err := sess.Update(); err != nil {
			if session.IsFatal(err) {
				return err
			}
			log.Warn().Int64("frame", frame).Err(err).Msg("dgrctl.master update failed")
		}
	}
	log.Info().Int64("frames", frame).Msg("dgrctl.master done")
	return nil
}
