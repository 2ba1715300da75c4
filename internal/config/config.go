package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/dgr/internal/registry"
	"github.com/danmuck/dgr/internal/session"
	"github.com/danmuck/dgr/internal/transport"
)

var ErrConfig = errors.New("config: invalid")

const (
	EnvMode               = "DGR_MODE"
	EnvMasterDestIP       = "DGR_MASTER_DEST_IP"
	EnvMasterDestPort     = "DGR_MASTER_DEST_PORT"
	EnvSlaveListenPort    = "DGR_SLAVE_LISTEN_PORT"
	EnvMulticastGroup     = "DGR_MULTICAST_GROUP"
	EnvMulticastInterface = "DGR_MULTICAST_IFACE"
	EnvInitialWait        = "DGR_INITIAL_WAIT"
	EnvLivenessWindow     = "DGR_LIVENESS_WINDOW"
)

// unroutableHost tells a master not to transmit.
const unroutableHost = "0.0.0.0"

// Config is the process-level sync configuration.
type Config struct {
	Mode               string
	MasterDestHost     string
	MasterDestPort     int
	SlaveListenPort    int
	MulticastGroup     string
	MulticastInterface string
	InitialWait        time.Duration
	LivenessWindow     time.Duration
	MaxRecords         int
	MaxNameBytes       int
	ReadBufferBytes    int
	RelayListenPort    int
	RelayTargets       []string
}

type fileConfig struct {
	Mode               string   `toml:"mode,omitempty"`
	MasterDestHost     string   `toml:"master_dest_host,omitempty"`
	MasterDestPort     int      `toml:"master_dest_port,omitempty"`
	SlaveListenPort    int      `toml:"slave_listen_port,omitempty"`
	MulticastGroup     string   `toml:"multicast_group,omitempty"`
	MulticastInterface string   `toml:"multicast_interface,omitempty"`
	InitialWait        string   `toml:"initial_wait,omitempty"`
	LivenessWindow     string   `toml:"liveness_window,omitempty"`
	MaxRecords         int      `toml:"max_records,omitempty"`
	MaxNameBytes       int      `toml:"max_name_bytes,omitempty"`
	ReadBufferBytes    int      `toml:"read_buffer_bytes,omitempty"`
	RelayListenPort    int      `toml:"relay_listen_port,omitempty"`
	RelayTargets       []string `toml:"relay_targets,omitempty"`
}

func Default() Config {
	limits := registry.DefaultLimits()
	return Config{
		InitialWait:    session.DefaultInitialWait,
		LivenessWindow: session.DefaultLivenessWindow,
		MaxRecords:     limits.MaxRecords,
		MaxNameBytes:   limits.MaxNameBytes,
	}
}

// Load resolves defaults, then the TOML file at path (if any), then the
// process environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		var err error
		if cfg, err = LoadFile(path, cfg); err != nil {
			return Config{}, err
		}
	}
	return ApplyEnv(cfg, os.LookupEnv)
}

// LoadFile overlays the keys defined in the TOML file at path onto base.
func LoadFile(path string, base Config) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q in %s", ErrConfig, undecoded[0].String(), path)
	}

	cfg := base
	if meta.IsDefined("mode") {
		cfg.Mode = strings.TrimSpace(raw.Mode)
	}
	if meta.IsDefined("master_dest_host") {
		cfg.MasterDestHost = strings.TrimSpace(raw.MasterDestHost)
	}
	if meta.IsDefined("master_dest_port") {
		cfg.MasterDestPort = raw.MasterDestPort
	}
	if meta.IsDefined("slave_listen_port") {
		cfg.SlaveListenPort = raw.SlaveListenPort
	}
	if meta.IsDefined("multicast_group") {
		cfg.MulticastGroup = strings.TrimSpace(raw.MulticastGroup)
	}
	if meta.IsDefined("multicast_interface") {
		cfg.MulticastInterface = strings.TrimSpace(raw.MulticastInterface)
	}
	if meta.IsDefined("initial_wait") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.InitialWait))
		if err != nil {
			return Config{}, fmt.Errorf("%w: parse initial_wait: %w", ErrConfig, err)
		}
		cfg.InitialWait = d
	}
	if meta.IsDefined("liveness_window") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.LivenessWindow))
		if err != nil {
			return Config{}, fmt.Errorf("%w: parse liveness_window: %w", ErrConfig, err)
		}
		cfg.LivenessWindow = d
	}
	if meta.IsDefined("max_records") {
		cfg.MaxRecords = raw.MaxRecords
	}
	if meta.IsDefined("max_name_bytes") {
		cfg.MaxNameBytes = raw.MaxNameBytes
	}
	if meta.IsDefined("read_buffer_bytes") {
		cfg.ReadBufferBytes = raw.ReadBufferBytes
	}
	if meta.IsDefined("relay_listen_port") {
		cfg.RelayListenPort = raw.RelayListenPort
	}
	if meta.IsDefined("relay_targets") {
		cfg.RelayTargets = normalizeTargets(raw.RelayTargets)
	}
	return cfg, nil
}

// ApplyEnv overlays DGR_* variables found by lookup onto cfg. A variable
// that is set but empty counts as unset.
func ApplyEnv(cfg Config, lookup func(string) (string, bool)) (Config, error) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvMode); ok {
		cfg.Mode = v
	}
	if v, ok := get(EnvMasterDestIP); ok {
		cfg.MasterDestHost = v
	}
	if v, ok := get(EnvMasterDestPort); ok {
		port, err := ParsePort(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvMasterDestPort, err)
		}
		cfg.MasterDestPort = port
	}
	if v, ok := get(EnvSlaveListenPort); ok {
		port, err := ParsePort(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvSlaveListenPort, err)
		}
		cfg.SlaveListenPort = port
	}
	if v, ok := get(EnvMulticastGroup); ok {
		cfg.MulticastGroup = v
	}
	if v, ok := get(EnvMulticastInterface); ok {
		cfg.MulticastInterface = v
	}
	if v, ok := get(EnvInitialWait); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %w", ErrConfig, EnvInitialWait, err)
		}
		cfg.InitialWait = d
	}
	if v, ok := get(EnvLivenessWindow); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %w", ErrConfig, EnvLivenessWindow, err)
		}
		cfg.LivenessWindow = d
	}
	return cfg, nil
}

// ParsePort parses a UDP port in 1..65535.
func ParsePort(raw string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("%w: port %q", ErrConfig, raw)
	}
	return port, nil
}

// Role resolves the session role. When the result is disabled, reason says
// why.
func (c Config) Role() (role session.Role, reason string) {
	role, known := session.ParseRole(c.Mode)
	switch {
	case !known && strings.TrimSpace(c.Mode) == "":
		return session.RoleDisabled, EnvMode + " is not set"
	case !known:
		return session.RoleDisabled, fmt.Sprintf("unknown mode %q", c.Mode)
	case role == session.RoleDisabled:
		return role, "mode is " + c.Mode
	case role == session.RoleMaster && (c.MasterDestHost == "" || c.MasterDestHost == unroutableHost):
		return session.RoleDisabled, "master won't transmit; destination host was not provided or was " + unroutableHost
	}
	return role, ""
}

// Validate checks the settings the resolved role depends on.
func (c Config) Validate() error {
	if c.InitialWait <= 0 {
		return fmt.Errorf("%w: initial_wait must be positive", ErrConfig)
	}
	if c.LivenessWindow <= 0 {
		return fmt.Errorf("%w: liveness_window must be positive", ErrConfig)
	}
	if c.MaxRecords < 0 || c.MaxNameBytes < 0 {
		return fmt.Errorf("%w: registry limits must not be negative", ErrConfig)
	}
	if c.ReadBufferBytes < 0 {
		return fmt.Errorf("%w: read_buffer_bytes must not be negative", ErrConfig)
	}
	if c.MaxNameBytes == 1 {
		return fmt.Errorf("%w: max_name_bytes must leave room for a name", ErrConfig)
	}
	if g := c.MulticastGroup; g != "" {
		ip := net.ParseIP(g)
		if ip == nil || ip.To4() == nil || !ip.IsMulticast() {
			return fmt.Errorf("%w: multicast_group %q is not an IPv4 multicast address", ErrConfig, g)
		}
	}

	role, _ := c.Role()
	switch role {
	case session.RoleMaster:
		if !validPort(c.MasterDestPort) {
			return fmt.Errorf("%w: master needs %s (master_dest_port)", ErrConfig, EnvMasterDestPort)
		}
	case session.RoleSlave:
		if !validPort(c.SlaveListenPort) {
			return fmt.Errorf("%w: slave needs %s (slave_listen_port)", ErrConfig, EnvSlaveListenPort)
		}
	}
	return nil
}

// ValidateRelay checks the relay settings.
func (c Config) ValidateRelay() error {
	if !validPort(c.RelayListenPort) {
		return fmt.Errorf("%w: relay needs relay_listen_port", ErrConfig)
	}
	if len(c.RelayTargets) == 0 {
		return fmt.Errorf("%w: relay needs at least one relay_targets entry", ErrConfig)
	}
	for i, target := range c.RelayTargets {
		if _, _, err := ParseTarget(target); err != nil {
			return fmt.Errorf("relay_targets[%d]: %w", i, err)
		}
	}
	return nil
}

// ParseTarget splits a host:port relay target.
func ParseTarget(raw string) (string, int, error) {
	host, rawPort, err := net.SplitHostPort(strings.TrimSpace(raw))
	if err != nil {
		return "", 0, fmt.Errorf("%w: target %q: %w", ErrConfig, raw, err)
	}
	if host == "" {
		return "", 0, fmt.Errorf("%w: target %q has no host", ErrConfig, raw)
	}
	port, err := ParsePort(rawPort)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func (c Config) Limits() registry.Limits {
	return registry.Limits{MaxNameBytes: c.MaxNameBytes, MaxRecords: c.MaxRecords}.WithDefaults()
}

func (c Config) SessionConfig() session.Config {
	return session.Config{
		InitialWait:    c.InitialWait,
		LivenessWindow: c.LivenessWindow,
		Limits:         c.Limits(),
	}.WithDefaults()
}

func (c Config) TransportOptions() transport.Options {
	opts := transport.DefaultOptions()
	opts.MulticastGroup = c.MulticastGroup
	opts.Interface = c.MulticastInterface
	opts.ReadBufferBytes = c.ReadBufferBytes
	return opts
}

// WriteTOML encodes c in the file format LoadFile reads.
func (c Config) WriteTOML(w io.Writer) error {
	raw := fileConfig{
		Mode:               c.Mode,
		MasterDestHost:     c.MasterDestHost,
		MasterDestPort:     c.MasterDestPort,
		SlaveListenPort:    c.SlaveListenPort,
		MulticastGroup:     c.MulticastGroup,
		MulticastInterface: c.MulticastInterface,
		InitialWait:        c.InitialWait.String(),
		LivenessWindow:     c.LivenessWindow.String(),
		MaxRecords:         c.MaxRecords,
		MaxNameBytes:       c.MaxNameBytes,
		ReadBufferBytes:    c.ReadBufferBytes,
		RelayListenPort:    c.RelayListenPort,
		RelayTargets:       c.RelayTargets,
	}
	return toml.NewEncoder(w).Encode(raw)
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}

func normalizeTargets(in []string) []string {
	out := make([]string, 0, len(in))
	for _, target := range in {
		v := strings.TrimSpace(target)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
