package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/dgr/internal/config"
	"github.com/danmuck/dgr/internal/protocol"
	"github.com/danmuck/dgr/internal/registry"
	"github.com/danmuck/dgr/internal/session"
	"github.com/danmuck/dgr/internal/testutil/testlog"
	"github.com/danmuck/dgr/internal/transport"
	"github.com/fatih/color"
	"github.com/spf13/pflag"
)

func TestParseVars(t *testing.T) {
	testlog.Start(t)
	vars, err := parseVars([]string{"level=3", "motd=a=b", " name =x"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(vars) != 3 || vars[1].name != "motd" || string(vars[1].value) != "a=b" || vars[2].name != "name" {
		t.Fatalf("unexpected vars: %+v", vars)
	}
	for _, bad := range []string{"novalue", "=x"} {
		if _, err := parseVars([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "dgr.toml")
	if err := os.WriteFile(path, []byte("mode = \"slave\"\nslave_listen_port = 5700\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(config.EnvSlaveListenPort, "5701")
	t.Setenv(config.EnvLivenessWindow, "4s")
	flagMain.Config = path
	t.Cleanup(func() { flagMain.Config = "" })

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	bindSyncFlags(fs)
	if err := fs.Parse([]string{"--listen-port", "5702"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := resolveConfig(fs, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Mode != "slave" {
		t.Fatalf("unexpected mode: %q", cfg.Mode)
	}
	if cfg.SlaveListenPort != 5702 {
		t.Fatalf("flag did not win: %d", cfg.SlaveListenPort)
	}
	if cfg.LivenessWindow != 4*time.Second {
		t.Fatalf("env did not override default: %v", cfg.LivenessWindow)
	}

	cfg, err = resolveConfig(fs, "master")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Mode != "master" {
		t.Fatalf("command mode not applied: %q", cfg.Mode)
	}
}

func TestOpenSessionDisabledWithoutDestination(t *testing.T) {
	testlog.Start(t)
	cfg := config.Default()
	cfg.Mode = "master"
	cfg.MasterDestHost = "0.0.0.0"
	cfg.MasterDestPort = 5700

	sess, err := openSession(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if sess.IsEnabled() {
		t.Fatalf("expected disabled session")
	}

	cfg.MasterDestHost = "127.0.0.1"
	cfg.MasterDestPort = 0
	if _, err := openSession(context.Background(), cfg); !errors.Is(err, config.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestInspectListsVariables(t *testing.T) {
	testlog.Start(t)
	packet := protocol.AppendRecord(nil, "score", []byte{10, 0, 0, 0})
	packet = protocol.AppendRecord(packet, "name", []byte("dgr"))
	path := filepath.Join(t.TempDir(), "snapshot.bin")
	if err := os.WriteFile(path, packet, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	noColor := color.NoColor
	color.NoColor = true
	var out bytes.Buffer
	cmdMain.SetOut(&out)
	cmdMain.SetArgs([]string{"inspect", "--values", path})
	t.Cleanup(func() {
		color.NoColor = noColor
		cmdMain.SetOut(nil)
		cmdMain.SetArgs(nil)
		flagInspect.Values = false
	})
	if err := cmdMain.Execute(); err != nil {
		t.Fatalf("inspect: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
	if !strings.HasPrefix(lines[0], "2 variables, 26 B") {
		t.Fatalf("unexpected summary: %q", lines[0])
	}
	if fields := strings.Fields(lines[2]); len(fields) != 4 || fields[0] != "0" || fields[1] != "4" || fields[2] != "score" || fields[3] != "0a000000" {
		t.Fatalf("unexpected row: %q", lines[2])
	}
	if fields := strings.Fields(lines[3]); len(fields) != 4 || fields[2] != "name" {
		t.Fatalf("unexpected row: %q", lines[3])
	}
}

func TestInspectRejectsMalformed(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "bad.bin")
	if err := os.WriteFile(path, []byte("score\x00\x01"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cmdMain.SetArgs([]string{"inspect", path})
	t.Cleanup(func() { cmdMain.SetArgs(nil) })
	if err := cmdMain.Execute(); !errors.Is(err, protocol.ErrMalformedPacket) {
		t.Fatalf("expected ErrMalformedPacket, got %v", err)
	}
}

func TestWriteListEmptyRegistry(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	if err := writeList(&out, registry.New(registry.DefaultLimits()), 0, false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(out.String(), "0 variables") || !strings.Contains(out.String(), "INDEX") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestLoopbackFollowsMaster(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	last, err := loopback(ctx, 200, 20)
	if err != nil {
		t.Fatalf("loopback: %v", err)
	}
	if last != 20 {
		t.Fatalf("slave stopped at frame %d", last)
	}
}

func TestMasterLoopStopsOnFatal(t *testing.T) {
	testlog.Start(t)
	pipe := transport.NewPipe()
	sess, err := session.New(session.RoleMaster, pipe)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_ = pipe.Close()

	tick := make(chan time.Time, 1)
	tick <- time.Now()
	err = masterLoop(context.Background(), sess, tick, nil, 0)
	if !errors.Is(err, session.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}
