package bridge

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/reflex-coffee/internal/config"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8777

	// DefaultCommandLimit caps POST bodies. The largest command is a
	// {"value": "..."} choice, so 1 KB leaves plenty of room.
	DefaultCommandLimit int64 = 1 << 10

	// DefaultTimeout bounds reading a request and writing its response.
	DefaultTimeout = 5 * time.Second
)

// ErrRemoteHost rejects a non-loopback bind address unless AllowRemote is set.
var ErrRemoteHost = errors.New("bridge: host is not a loopback address")

// Settings configures the control bridge. The command routes drive the live
// session, so the bridge binds loopback only unless AllowRemote is set.
// Port 0 binds an ephemeral port. ReadOnly keeps /health, /state and
// /metrics up and answers the command routes with 403.
type Settings struct {
	Enabled      bool
	Host         string
	Port         int
	AllowRemote  bool
	ReadOnly     bool
	CommandLimit int64
	Timeout      time.Duration
}

// DefaultSettings is a disabled loopback bridge.
func DefaultSettings() Settings {
	return Settings{
		Host:         DefaultHost,
		Port:         DefaultPort,
		CommandLimit: DefaultCommandLimit,
		Timeout:      DefaultTimeout,
	}
}

// SettingsFromConfig layers the bridge section of .reflex/config.yaml and
// then the REFLEX_BRIDGE_* variables over DefaultSettings. A malformed
// variable is an error rather than silently ignored.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	s := DefaultSettings()
	if cfg != nil {
		raw := cfg.Project.Bridge
		if raw.Enabled != nil {
			s.Enabled = *raw.Enabled
		}
		if raw.Host != "" {
			s.Host = raw.Host
		}
		if raw.Port != 0 {
			s.Port = raw.Port
		}
		s.AllowRemote = raw.AllowRemote
		s.ReadOnly = raw.ReadOnly
	}
	if err := s.overrideFromEnv(os.LookupEnv); err != nil {
		return Settings{}, err
	}
	return s, s.Validate()
}

// overrideFromEnv applies REFLEX_BRIDGE_{ENABLED,HOST,PORT,ALLOW_REMOTE,READ_ONLY}.
func (s *Settings) overrideFromEnv(lookup func(string) (string, bool)) error {
	flags := map[string]*bool{
		"REFLEX_BRIDGE_ENABLED":      &s.Enabled,
		"REFLEX_BRIDGE_ALLOW_REMOTE": &s.AllowRemote,
		"REFLEX_BRIDGE_READ_ONLY":    &s.ReadOnly,
	}
	for name, dst := range flags {
		value, ok := lookup(name)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("bridge: %s: %w", name, err)
		}
		*dst = parsed
	}
	if value, ok := lookup("REFLEX_BRIDGE_HOST"); ok && strings.TrimSpace(value) != "" {
		s.Host = strings.TrimSpace(value)
	}
	if value, ok := lookup("REFLEX_BRIDGE_PORT"); ok && strings.TrimSpace(value) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("bridge: REFLEX_BRIDGE_PORT: %w", err)
		}
		s.Port = port
	}
	return nil
}

// Validate checks the bind address and limits. Start refuses invalid settings.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Host) == "" {
		return fmt.Errorf("bridge: host is required")
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("bridge: port %d out of range", s.Port)
	}
	if !s.AllowRemote && !isLoopback(s.Host) {
		return fmt.Errorf("%w: %s (set allow_remote to expose the bridge)", ErrRemoteHost, s.Host)
	}
	if s.CommandLimit <= 0 {
		return fmt.Errorf("bridge: command limit must be positive")
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("bridge: timeout must be positive")
	}
	return nil
}

// Address returns the TCP bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
