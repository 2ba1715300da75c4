package session

import "strings"

// Role is fixed when a session is created.
type Role int

const (
	RoleDisabled Role = iota
	RoleMaster
	RoleSlave
)

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleSlave:
		return "slave"
	case RoleDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// ParseRole maps a mode string to a role. Anything other than master or
// slave is disabled, and ok reports whether raw named a known mode.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "master":
		return RoleMaster, true
	case "slave":
		return RoleSlave, true
	case "disabled", "off", "none":
		return RoleDisabled, true
	default:
		return RoleDisabled, false
	}
}
