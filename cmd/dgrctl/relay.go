package main

import (
	"os/signal"
	"syscall"

	"github.com/danmuck/dgr/internal/config"
	"github.com/danmuck/dgr/internal/logging"
	"github.com/danmuck/dgr/internal/relay"
	"github.com/danmuck/dgr/internal/transport"
	"github.com/spf13/cobra"
)

var cmdRelay = &cobra.Command{
	Use:   "relay",
	Short: "Forward snapshots from one port to a list of slaves",
	Args:  cobra.NoArgs,
	RunE:  runRelay,
}

var flagRelay struct {
	ListenPort int
	Targets    []string
}

func init() {
	cmdRelay.Flags().IntVar(&flagRelay.ListenPort, "listen-port", 0, "port the master sends to")
	cmdRelay.Flags().StringArrayVar(&flagRelay.Targets, "target", nil, "slave host:port (repeatable; replaces relay_targets)")
	cmdMain.AddCommand(cmdRelay)
}

func runRelay(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(nil, "")
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("listen-port") {
		cfg.RelayListenPort = flagRelay.ListenPort
	}
	if cmd.Flags().Changed("target") {
		cfg.RelayTargets = flagRelay.Targets
	}
	if err := cfg.ValidateRelay(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := cfg.TransportOptions()
	src, err := transport.Listen(ctx, cfg.RelayListenPort, opts)
	if err != nil {
		return err
	}
	targets := make([]relay.Target, 0, len(cfg.RelayTargets))
	closeAll := func() {
		_ = src.Close()
		for _, t := range targets {
			_ = t.Out.Close()
		}
	}
	for _, raw := range cfg.RelayTargets {
		host, port, err := config.ParseTarget(raw)
		if err != nil {
			closeAll()
			return err
		}
		out, err := transport.DialSender(ctx, host, port, opts)
		if err != nil {
			closeAll()
			return err
		}
		targets = append(targets, relay.Target{Name: raw, Out: out})
	}

	log := logging.For("relay").With().Int("listen_port", cfg.RelayListenPort).Logger()
	r, err := relay.New(src, targets, relay.WithLogger(log))
	if err != nil {
		closeAll()
		return err
	}
	defer r.Close()
	return serve(ctx, r.Run)
}
