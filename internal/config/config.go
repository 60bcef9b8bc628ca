// internal/config/config.go
//
// This package handles configuration and the .jaegis directory structure.
// Every project that runs jaegis gets a .jaegis/ folder in its root.

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
	// JaegisDir is the name of the directory we create in each project
	JaegisDir = ".jaegis"

	defaultPhaseDelay    = 500 * time.Millisecond
	defaultMaxChainDepth = 3
	defaultLogLevel      = "info"
	defaultDiagnostics   = "diagnostics.json"
)

// Preference keys read by the orchestrator.
const (
	PrefAutoActivateAgents    = "autoActivateAgents"
	PrefEnableMonitoring      = "enableMonitoring"
	PrefProgressNotifications = "progressNotifications"
)

const defaultProjectConfigYAML = `# jaegis project configuration
version: 1

# Flags read when a mode starts. Missing keys default to true.
preferences:
  autoActivateAgents: true
  enableMonitoring: false
  progressNotifications: true

execution:
  # Placeholder time spent in each phase. Set to 0s to run phases back to back.
  phase_delay: 500ms
  # How many completion prompts may chain into another mode.
  max_chain_depth: 3
  default_agents: []

diagnostics:
  # Relative to .jaegis/. Written by the editor integration.
  path: diagnostics.json
  # Keep warnings and info diagnostics instead of dropping them.
  include_warnings: false

status_server:
  host: 127.0.0.1
  port: 8765

logging:
  level: info
`

// Duration decodes YAML strings such as "250ms" into a time.Duration.
type Duration time.Duration

// UnmarshalYAML accepts a Go duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back in Go syntax.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// ExecutionConfig tunes how phases are driven.
type ExecutionConfig struct {
	PhaseDelay    *Duration `yaml:"phase_delay,omitempty"`
	MaxChainDepth *int      `yaml:"max_chain_depth,omitempty"`
	DefaultAgents []string  `yaml:"default_agents,omitempty"`
}

// DiagnosticsConfig points at the editor diagnostics snapshot.
type DiagnosticsConfig struct {
	Path            string `yaml:"path,omitempty"`
	IncludeWarnings bool   `yaml:"include_warnings,omitempty"`
}

// StatusServerConfig configures the local HTTP status endpoint.
type StatusServerConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// LoggingConfig configures the structured log file.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}

// ProjectConfig models .jaegis/config.yaml.
type ProjectConfig struct {
	Version      int                `yaml:"version"`
	Preferences  map[string]bool    `yaml:"preferences,omitempty"`
	Execution    ExecutionConfig    `yaml:"execution,omitempty"`
	Diagnostics  DiagnosticsConfig  `yaml:"diagnostics,omitempty"`
	StatusServer StatusServerConfig `yaml:"status_server,omitempty"`
	Logging      LoggingConfig      `yaml:"logging,omitempty"`
}

// Config holds the runtime configuration for jaegis.
type Config struct {
	// ProjectDir is the workspace root the user ran `jaegis` against
	ProjectDir string

	// JaegisProjectDir is ProjectDir/.jaegis
	JaegisProjectDir string

	Project ProjectConfig
}

// InitDir creates the .jaegis directory structure in the given project directory.
//
// Structure created:
// .jaegis/
// ├── config.yaml
// ├── logs/     <- jaegis.log and progress.log
// └── state/    <- last session snapshot
func InitDir(projectDir string) error {
	jaegisDir := filepath.Join(projectDir, JaegisDir)
	dirs := []string{
		filepath.Join(jaegisDir, "logs"),
		filepath.Join(jaegisDir, "state"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(jaegisDir, "config.yaml"))
}

// NewConfig creates a Config populated with project settings and env overrides.
func NewConfig(projectDir string) (*Config, error) {
	if strings.TrimSpace(projectDir) == "" {
		return nil, fmt.Errorf("config: project directory is required")
	}
	cfg := &Config{
		ProjectDir:       projectDir,
		JaegisProjectDir: filepath.Join(projectDir, JaegisDir),
		Project:          defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.JaegisProjectDir, "logs")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.JaegisProjectDir, "state")
}

// ProgressLogPath returns the logbook location.
func (c *Config) ProgressLogPath() string {
	return filepath.Join(c.LogsDir(), "progress.log")
}

// SessionStatePath returns where the last session snapshot is stored.
func (c *Config) SessionStatePath() string {
	return filepath.Join(c.StateDir(), "session.json")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.JaegisProjectDir, "config.yaml")
}

// DiagnosticsPath resolves the diagnostics snapshot path.
func (c *Config) DiagnosticsPath() string {
	return resolvePath(c.JaegisProjectDir, c.Project.Diagnostics.Path)
}

// Bool reads a named preference flag, falling back to def when unset.
func (c *Config) Bool(key string, def bool) bool {
	if c == nil {
		return def
	}
	if v, ok := c.Project.Preferences[key]; ok {
		return v
	}
	return def
}

// PhaseDelay returns the placeholder time spent per phase.
func (c *Config) PhaseDelay() time.Duration {
	if c == nil || c.Project.Execution.PhaseDelay == nil {
		return defaultPhaseDelay
	}
	return time.Duration(*c.Project.Execution.PhaseDelay)
}

// SetPhaseDelay overrides the phase delay for this process only.
func (c *Config) SetPhaseDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	value := Duration(d)
	c.Project.Execution.PhaseDelay = &value
}

// MaxChainDepth bounds how many modes a completion prompt may chain. An
// explicit 0 disables chaining; unset means the default.
func (c *Config) MaxChainDepth() int {
	if c == nil || c.Project.Execution.MaxChainDepth == nil {
		return defaultMaxChainDepth
	}
	return *c.Project.Execution.MaxChainDepth
}

// DefaultAgents returns the agents used when no analysis recommends any.
func (c *Config) DefaultAgents() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.Project.Execution.DefaultAgents...)
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() string {
	if c == nil || c.Project.Logging.Level == "" {
		return defaultLogLevel
	}
	return c.Project.Logging.Level
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

	parsed, err := ParseProjectConfig(data)
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.Project = parsed
	return nil
}

// ParseProjectConfig decodes, defaults and validates config.yaml content.
func ParseProjectConfig(data []byte) (ProjectConfig, error) {
	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return ProjectConfig{}, err
	}
	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return ProjectConfig{}, err
	}
	return parsed, nil
}

func (c *Config) applyEnvOverrides() error {
	if value := strings.TrimSpace(os.Getenv("JAEGIS_PHASE_DELAY")); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("config: JAEGIS_PHASE_DELAY: %w", err)
		}
		c.SetPhaseDelay(d)
	}
	if value := strings.TrimSpace(os.Getenv("JAEGIS_LOG_LEVEL")); value != "" {
		c.Project.Logging.Level = strings.ToLower(value)
	}
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{Version: 1}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Preferences == nil {
		pc.Preferences = map[string]bool{}
	}
	if pc.Diagnostics.Path == "" {
		pc.Diagnostics.Path = defaultDiagnostics
	}
	if pc.Logging.Level == "" {
		pc.Logging.Level = defaultLogLevel
	}
}

func (pc *ProjectConfig) normalize() {
	agents := pc.Execution.DefaultAgents[:0]
	for _, agent := range pc.Execution.DefaultAgents {
		if trimmed := strings.TrimSpace(agent); trimmed != "" {
			agents = append(agents, trimmed)
		}
	}
	pc.Execution.DefaultAgents = agents
	pc.Diagnostics.Path = strings.TrimSpace(pc.Diagnostics.Path)
	pc.StatusServer.Host = strings.TrimSpace(pc.StatusServer.Host)
	pc.Logging.Level = strings.ToLower(strings.TrimSpace(pc.Logging.Level))
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.Execution.PhaseDelay != nil && *pc.Execution.PhaseDelay < 0 {
		return fmt.Errorf("execution.phase_delay must not be negative")
	}
	if pc.Execution.MaxChainDepth != nil && *pc.Execution.MaxChainDepth < 0 {
		return fmt.Errorf("execution.max_chain_depth must not be negative")
	}
	if pc.StatusServer.Port < 0 || pc.StatusServer.Port > 65535 {
		return fmt.Errorf("status_server.port must be between 0 and 65535")
	}
	switch pc.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error")
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

// Save writes the current project config back to .jaegis/config.yaml.
func (c *Config) Save() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize()
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.JaegisProjectDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure jaegis dir: %w", err)
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
