package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/dgr/internal/config"
	"github.com/danmuck/dgr/internal/logging"
	"github.com/danmuck/dgr/internal/observability"
	"github.com/danmuck/dgr/internal/session"
	"github.com/danmuck/dgr/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// bindSyncFlags adds the flags that override config file and environment
// settings for master and slave commands.
func bindSyncFlags(fs *pflag.FlagSet) {
	fs.String("host", "", "master destination host ("+config.EnvMasterDestIP+")")
	fs.Int("port", 0, "master destination port ("+config.EnvMasterDestPort+")")
	fs.Int("listen-port", 0, "slave listen port ("+config.EnvSlaveListenPort+")")
	fs.String("group", "", "multicast group ("+config.EnvMulticastGroup+")")
	fs.String("iface", "", "multicast interface ("+config.EnvMulticastInterface+")")
	fs.Duration("initial-wait", 0, "how long a slave waits for its first snapshot ("+config.EnvInitialWait+")")
	fs.Duration("liveness-window", 0, "longest silence a slave tolerates ("+config.EnvLivenessWindow+")")
	fs.Int("max-records", 0, "registry capacity")
}

// applyFlags overlays the flags set on the command line onto cfg.
func applyFlags(cfg config.Config, fs *pflag.FlagSet) (config.Config, error) {
	var err error
	str := func(name string, dst *string) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetInt(name)
		}
	}
	dur := func(name string, dst *time.Duration) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetDuration(name)
		}
	}

	str("host", &cfg.MasterDestHost)
	num("port", &cfg.MasterDestPort)
	num("listen-port", &cfg.SlaveListenPort)
	str("group", &cfg.MulticastGroup)
	str("iface", &cfg.MulticastInterface)
	dur("initial-wait", &cfg.InitialWait)
	dur("liveness-window", &cfg.LivenessWindow)
	num("max-records", &cfg.MaxRecords)
	if err != nil {
		return config.Config{}, fmt.Errorf("%w: %w", config.ErrConfig, err)
	}
	return cfg, nil
}

// resolveConfig loads defaults < file < environment < flags. A non-empty
// mode replaces whatever the file and environment selected.
func resolveConfig(fs *pflag.FlagSet, mode string) (config.Config, error) {
	cfg, err := config.Load(flagMain.Config)
	if err != nil {
		return config.Config{}, err
	}
	if fs != nil {
		if cfg, err = applyFlags(cfg, fs); err != nil {
			return config.Config{}, err
		}
	}
	if mode != "" {
		cfg.Mode = mode
	}
	return cfg, nil
}

// openSession validates cfg and binds the transport its role needs.
func openSession(ctx context.Context, cfg config.Config) (*session.Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logging.For("dgrctl")
	role, reason := cfg.Role()

	var tr transport.Transport
	sessLog := logging.For("session")
	switch role {
	case session.RoleMaster:
		sessLog = sessLog.With().Str("dest", net.JoinHostPort(cfg.MasterDestHost, strconv.Itoa(cfg.MasterDestPort))).Logger()
		s, err := transport.DialSender(ctx, cfg.MasterDestHost, cfg.MasterDestPort, cfg.TransportOptions())
		if err != nil {
			return nil, err
		}
		tr = s
	case session.RoleSlave:
		sessLog = sessLog.With().Int("listen_port", cfg.SlaveListenPort).Logger()
		l, err := transport.Listen(ctx, cfg.SlaveListenPort, cfg.TransportOptions())
		if err != nil {
			return nil, err
		}
		tr = l
	default:
		log.Warn().Str("reason", reason).Msg("dgrctl.openSession disabled")
	}

	sess, err := session.New(role, tr, session.WithConfig(cfg.SessionConfig()), session.WithLogger(sessLog))
	if err != nil {
		if tr != nil {
			_ = tr.Close()
		}
		return nil, err
	}
	return sess, nil
}

// serve runs fn alongside the metrics endpoint, if one is configured, and
// stops both when either fails or fn returns.
func serve(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if addr := flagMain.MetricsAddr; addr != "" {
		log := logging.For("metrics")
		gin.SetMode(gin.ReleaseMode)
		srv := &http.Server{
			Addr:              addr,
			Handler:           observability.Router(log),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", addr).Msg("dgrctl.metrics listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
			defer stop()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer cancel()
		return fn(ctx)
	})
	return g.Wait()
}

// frameTicker paces a loop at fps frames per second.
func frameTicker(fps int) (*time.Ticker, error) {
	if fps <= 0 || fps > 1000 {
		return nil, fmt.Errorf("fps must be in 1..1000, got %d", fps)
	}
	return time.NewTicker(time.Second / time.Duration(fps)), nil
}
