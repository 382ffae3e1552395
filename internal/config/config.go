// internal/config/config.go
//
// This package handles configuration and the .reportflow directory structure.
// Every project that runs reportflow gets a .reportflow/ folder in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Dir is the name of the directory we create in each project
	Dir = ".reportflow"

	DefaultBackendURL     = "http://127.0.0.1:8000"
	DefaultBackendTimeout = 2 * time.Minute
	DefaultNATSURL        = "nats://127.0.0.1:4222"
	DefaultSessionTTL     = 12 * time.Hour
)

// Session store kinds.
const (
	SessionFile   = "file"
	SessionMemory = "memory"
	SessionNATS   = "nats"
)

const defaultProjectConfigYAML = `# reportflow project configuration
version: 1

# Document-intelligence service that parses uploads and plans blueprints.
backend:
  url: http://127.0.0.1:8000
  timeout: 2m

# Where per-session state lives: file, memory or nats.
session:
  backend: file
  # nats_url: nats://127.0.0.1:4222
  # ttl: 12h

# Local HTTP bridge for external canvases.
bridge:
  enabled: false
  port: 8765

logging:
  level: info
  format: text
`

// BackendConfig points at the document-intelligence service.
type BackendConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// SessionConfig selects the session store.
type SessionConfig struct {
	Backend string        `yaml:"backend"`
	NATSURL string        `yaml:"nats_url,omitempty"`
	TTL     time.Duration `yaml:"ttl,omitempty"`
}

// BridgeConfig captures the optional bridge server overrides.
type BridgeConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// LoggingConfig controls the structured log file.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LayoutConfig overrides layout spacing. Zero values keep the defaults.
type LayoutConfig struct {
	NodeSep float64 `yaml:"node_sep,omitempty"`
	RankSep float64 `yaml:"rank_sep,omitempty"`
	EdgeSep float64 `yaml:"edge_sep,omitempty"`
}

// ProjectConfig models .reportflow/config.yaml.
type ProjectConfig struct {
	Version int           `yaml:"version"`
	Backend BackendConfig `yaml:"backend"`
	Session SessionConfig `yaml:"session"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Logging LoggingConfig `yaml:"logging"`
	Layout  LayoutConfig  `yaml:"layout,omitempty"`
}

// Config holds the runtime configuration for reportflow.
type Config struct {
	// ProjectDir is the directory where the user ran `reportflow` from
	ProjectDir string

	// StateDir is ProjectDir/.reportflow
	StateDir string

	Project ProjectConfig
}

// InitDir creates the .reportflow directory structure in the given project
// directory and writes a default config.yaml when none exists.
//
// Structure created:
// .reportflow/
// ├── logs/      <- structured log and activity journal
// └── sessions/  <- file-backed session state, one folder per session
func InitDir(projectDir string) error {
	root := filepath.Join(projectDir, Dir)
	for _, dir := range []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "sessions"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(root, "config.yaml"))
}

// NewConfig loads .reportflow/config.yaml from projectDir, falling back to
// defaults, then applies environment overrides.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir: projectDir,
		StateDir:   filepath.Join(projectDir, Dir),
		Project:    defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	cfg.Project.applyEnvOverrides()
	if err := cfg.Project.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateDir, "logs")
}

// LogPath returns the structured log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.LogsDir(), "reportflow.log")
}

// JournalPath returns the activity journal file.
func (c *Config) JournalPath() string {
	return filepath.Join(c.LogsDir(), "activity.log")
}

// SessionsDir returns the root of file-backed session state.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.StateDir, "sessions")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateDir, "config.yaml")
}

// LogLevel parses the configured level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Project.Logging.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
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

	parsed := defaultProjectConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version: 1,
		Backend: BackendConfig{URL: DefaultBackendURL, Timeout: DefaultBackendTimeout},
		Session: SessionConfig{Backend: SessionFile, NATSURL: DefaultNATSURL, TTL: DefaultSessionTTL},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	def := defaultProjectConfig()
	if pc.Version == 0 {
		pc.Version = def.Version
	}
	if strings.TrimSpace(pc.Backend.URL) == "" {
		pc.Backend.URL = def.Backend.URL
	}
	if pc.Backend.Timeout <= 0 {
		pc.Backend.Timeout = def.Backend.Timeout
	}
	if strings.TrimSpace(pc.Session.Backend) == "" {
		pc.Session.Backend = def.Session.Backend
	}
	if strings.TrimSpace(pc.Session.NATSURL) == "" {
		pc.Session.NATSURL = def.Session.NATSURL
	}
	if pc.Session.TTL <= 0 {
		pc.Session.TTL = def.Session.TTL
	}
	if strings.TrimSpace(pc.Logging.Level) == "" {
		pc.Logging.Level = def.Logging.Level
	}
	if strings.TrimSpace(pc.Logging.Format) == "" {
		pc.Logging.Format = def.Logging.Format
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Backend.URL = strings.TrimRight(strings.TrimSpace(pc.Backend.URL), "/")
	pc.Session.Backend = normalizeKind(pc.Session.Backend)
	pc.Session.NATSURL = strings.TrimSpace(pc.Session.NATSURL)
	pc.Bridge.Host = strings.TrimSpace(pc.Bridge.Host)
	pc.Logging.Level = normalizeKind(pc.Logging.Level)
	pc.Logging.Format = normalizeKind(pc.Logging.Format)
}

func (pc *ProjectConfig) applyEnvOverrides() {
	if value := strings.TrimSpace(os.Getenv("REPORTFLOW_BACKEND_URL")); value != "" {
		pc.Backend.URL = value
	}
	if value := strings.TrimSpace(os.Getenv("REPORTFLOW_SESSION_BACKEND")); value != "" {
		pc.Session.Backend = value
	}
	if value := strings.TrimSpace(os.Getenv("REPORTFLOW_NATS_URL")); value != "" {
		pc.Session.NATSURL = value
	}
	if value := strings.TrimSpace(os.Getenv("REPORTFLOW_BRIDGE_ENABLED")); value != "" {
		if enabled, err := strconv.ParseBool(value); err == nil {
			pc.Bridge.Enabled = &enabled
		}
	}
	if value := strings.TrimSpace(os.Getenv("REPORTFLOW_BRIDGE_PORT")); value != "" {
		if port, err := strconv.Atoi(value); err == nil {
			pc.Bridge.Port = port
		}
	}
	if value := strings.TrimSpace(os.Getenv("REPORTFLOW_LOG_LEVEL")); value != "" {
		pc.Logging.Level = value
	}
	pc.normalize()
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if !strings.HasPrefix(pc.Backend.URL, "http://") && !strings.HasPrefix(pc.Backend.URL, "https://") {
		return fmt.Errorf("backend.url must be an http(s) URL")
	}
	switch pc.Session.Backend {
	case SessionFile, SessionMemory:
	case SessionNATS:
		if pc.Session.NATSURL == "" {
			return fmt.Errorf("session.nats_url is required for nats sessions")
		}
	default:
		return fmt.Errorf("session.backend must be 'file', 'memory' or 'nats'")
	}
	if pc.Bridge.Port < 0 || pc.Bridge.Port > 65535 {
		return fmt.Errorf("bridge.port out of range")
	}
	switch pc.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be 'text' or 'json'")
	}
	return nil
}

func normalizeKind(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}
