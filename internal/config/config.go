// Package config handles configuration and the .reflex directory structure.
// Every project that runs reflex-coffee gets a .reflex/ folder in its root.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ReflexDir is the name of the directory we create in each project
	ReflexDir = ".reflex"

	defaultRootWorkflow = "coffee-order"
	defaultStartMode    = "step"
	defaultAutoDelay    = 300 * time.Millisecond
	defaultEventWindow  = 8
	defaultBridgeHost   = "127.0.0.1"
	defaultBridgePort   = 8777
	defaultLogLevel     = "info"
	journalFile         = "journal.db"
)

const defaultProjectConfigYAML = `# reflex-coffee project configuration
version: 1

workflows:
  root: coffee-order
  # Directory of extra workflow definitions (*.yaml). Files here replace
  # bundled workflows with the same id.
  dir: ""

session:
  start_mode: step   # step | auto
  auto_delay: 300ms
  event_window: 8

journal:
  enabled: true
  path: ""           # defaults to .reflex/journal.db

bridge:
  enabled: false
  host: 127.0.0.1
  port: 8777
  allow_remote: false  # required to bind a non-loopback host
  read_only: false     # serve /state and /metrics but refuse commands

logging:
  level: info
`

// WorkflowConfig selects the root workflow and extra definitions.
type WorkflowConfig struct {
	Root string `yaml:"root"`
	Dir  string `yaml:"dir,omitempty"`
}

// SessionConfig tunes the stepping session.
type SessionConfig struct {
	StartMode   string        `yaml:"start_mode"`
	AutoDelay   time.Duration `yaml:"auto_delay"`
	EventWindow int           `yaml:"event_window"`
}

// JournalConfig controls the SQLite event journal.
type JournalConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// BridgeConfig configures the loopback control server.
type BridgeConfig struct {
	Enabled     *bool  `yaml:"enabled,omitempty"`
	Host        string `yaml:"host,omitempty"`
	Port        int    `yaml:"port,omitempty"`
	AllowRemote bool   `yaml:"allow_remote,omitempty"`
	ReadOnly    bool   `yaml:"read_only,omitempty"`
}

// LoggingConfig sets the log file verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ProjectConfig models .reflex/config.yaml.
type ProjectConfig struct {
	Version   int            `yaml:"version"`
	Workflows WorkflowConfig `yaml:"workflows"`
	Session   SessionConfig  `yaml:"session"`
	Journal   JournalConfig  `yaml:"journal"`
	Bridge    BridgeConfig   `yaml:"bridge"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// Config holds the runtime configuration for a reflex-coffee session.
type Config struct {
	// ProjectDir is the directory the command ran from
	ProjectDir string

	// ReflexProjectDir is ProjectDir/.reflex
	ReflexProjectDir string

	Project ProjectConfig
}

// InitReflexDir creates the .reflex directory structure in the given project
// directory and writes a default config.yaml if none exists.
//
// Structure created:
// .reflex/
// ├── config.yaml
// └── logs/       <- reflex.log
func InitReflexDir(projectDir string) error {
	reflexDir := filepath.Join(projectDir, ReflexDir)
	if err := os.MkdirAll(filepath.Join(reflexDir, "logs"), 0o755); err != nil {
		return err
	}
	return ensureProjectConfig(filepath.Join(reflexDir, "config.yaml"))
}

// NewConfig creates a Config populated with project settings. A missing
// config file yields defaults.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:       projectDir,
		ReflexProjectDir: filepath.Join(projectDir, ReflexDir),
		Project:          defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.ReflexProjectDir, "logs")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.ReflexProjectDir, "config.yaml")
}

// RootWorkflow returns the workflow a session starts in.
func (c *Config) RootWorkflow() string {
	return c.Project.Workflows.Root
}

// WorkflowsDir returns the directory of extra workflow definitions, or "".
func (c *Config) WorkflowsDir() string {
	return c.Project.Workflows.Dir
}

// StartMode returns "step" or "auto".
func (c *Config) StartMode() string {
	return c.Project.Session.StartMode
}

// AutoDelay returns the delay before the first auto step.
func (c *Config) AutoDelay() time.Duration {
	return c.Project.Session.AutoDelay
}

// EventWindow returns how many event log lines the UI shows.
func (c *Config) EventWindow() int {
	return c.Project.Session.EventWindow
}

// JournalEnabled reports whether sessions are journaled.
func (c *Config) JournalEnabled() bool {
	return c.Project.Journal.Enabled == nil || *c.Project.Journal.Enabled
}

// JournalPath returns the SQLite journal location.
func (c *Config) JournalPath() string {
	if c.Project.Journal.Path != "" {
		return c.Project.Journal.Path
	}
	return filepath.Join(c.ReflexProjectDir, journalFile)
}

// LogLevel returns the configured level, honouring REFLEX_LOG_LEVEL.
func (c *Config) LogLevel() string {
	if value := strings.TrimSpace(os.Getenv("REFLEX_LOG_LEVEL")); value != "" {
		return strings.ToLower(value)
	}
	return c.Project.Logging.Level
}

// SetStartMode updates the start mode and persists it to .reflex/config.yaml.
func (c *Config) SetStartMode(mode string) error {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		return fmt.Errorf("config: start mode is required")
	}
	c.Project.Session.StartMode = mode
	return c.saveProjectConfig()
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	pc.normalize("")
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Session.AutoDelay == 0 {
		pc.Session.AutoDelay = defaultAutoDelay
	}
	if pc.Session.EventWindow == 0 {
		pc.Session.EventWindow = defaultEventWindow
	}
	if pc.Bridge.Port == 0 {
		pc.Bridge.Port = defaultBridgePort
	}
	if pc.Bridge.Host == "" {
		pc.Bridge.Host = defaultBridgeHost
	}
	if pc.Logging.Level == "" {
		pc.Logging.Level = defaultLogLevel
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.Workflows.Root = strings.TrimSpace(pc.Workflows.Root)
	if pc.Workflows.Root == "" {
		pc.Workflows.Root = defaultRootWorkflow
	}
	pc.Workflows.Dir = resolvePath(base, pc.Workflows.Dir)
	pc.Session.StartMode = strings.ToLower(strings.TrimSpace(pc.Session.StartMode))
	switch pc.Session.StartMode {
	case "", "manual":
		pc.Session.StartMode = defaultStartMode
	}
	pc.Journal.Path = resolvePath(base, pc.Journal.Path)
	pc.Bridge.Host = strings.TrimSpace(pc.Bridge.Host)
	pc.Logging.Level = strings.ToLower(strings.TrimSpace(pc.Logging.Level))
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	switch pc.Session.StartMode {
	case "step", "auto":
	default:
		return fmt.Errorf("session.start_mode must be 'step' or 'auto'")
	}
	if pc.Session.AutoDelay < 0 {
		return fmt.Errorf("session.auto_delay must not be negative")
	}
	if pc.Session.EventWindow < 1 {
		return fmt.Errorf("session.event_window must be >= 1")
	}
	if pc.Bridge.Port < 1 || pc.Bridge.Port > 65535 {
		return fmt.Errorf("bridge.port must be between 1 and 65535")
	}
	switch pc.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognised", pc.Logging.Level)
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}

func (c *Config) saveProjectConfig() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize(c.ProjectDir)
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.ReflexProjectDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure reflex dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}
