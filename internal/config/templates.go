package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns the commented TOML template for a role.
func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "master":
		return masterTemplate, nil
	case "slave":
		return slaveTemplate, nil
	case "relay":
		return relayTemplate, nil
	default:
		return "", fmt.Errorf("%w: unknown template kind: %s", ErrConfig, kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const masterTemplate = `mode = "master"
# broadcast, multicast or unicast destination; 0.0.0.0 disables sending
master_dest_host = "255.255.255.255"
master_dest_port = 5700
max_records = 1024
max_name_bytes = 1024
`

const slaveTemplate = `mode = "slave"
slave_listen_port = 5700
# multicast_group = "239.0.0.57"
# multicast_interface = "eth0"
initial_wait = "10s"
liveness_window = "15s"
max_records = 1024
max_name_bytes = 1024
# SO_RCVBUF for bursts of queued snapshots; 0 keeps the system default
read_buffer_bytes = 4194304
`

const relayTemplate = `relay_listen_port = 5700
relay_targets = ["10.0.0.11:5701", "10.0.0.12:5701"]
`
