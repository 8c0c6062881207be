package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agent-racer/sessionwatch/internal/session"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort          = 9347
	DefaultIdleThreshold = 5 * time.Minute
	DefaultRecency       = 10 * time.Minute
	DefaultTailRecords   = 10
	DefaultPreviewLength = 150
)

type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Monitor   MonitorConfig   `yaml:"monitor" toml:"monitor"`
	Beads     BeadsConfig     `yaml:"beads" toml:"beads"`
	Privacy   PrivacyConfig   `yaml:"privacy" toml:"privacy"`
	Processes ProcessesConfig `yaml:"processes" toml:"processes"`
	LogLevel  string          `yaml:"log_level" toml:"log_level"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" toml:"port"`
	Host           string   `yaml:"host" toml:"host"`
	AuthToken      string   `yaml:"auth_token" toml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

type MonitorConfig struct {
	ProjectsDir   string   `yaml:"projects_dir" toml:"projects_dir"`
	IdleThreshold Duration `yaml:"idle_threshold" toml:"idle_threshold"`
	RecencyWindow Duration `yaml:"recency_window" toml:"recency_window"`
	PollInterval  Duration `yaml:"poll_interval" toml:"poll_interval"`
	FileTimeout   Duration `yaml:"file_timeout" toml:"file_timeout"`
	Workers       int      `yaml:"workers" toml:"workers"`
	TailRecords   int      `yaml:"tail_records" toml:"tail_records"`
	PreviewLength int      `yaml:"preview_length" toml:"preview_length"`
	CacheSize     int      `yaml:"cache_size" toml:"cache_size"`
	WatchFiles    bool     `yaml:"watch_files" toml:"watch_files"`
}

type BeadsConfig struct {
	Enabled bool     `yaml:"enabled" toml:"enabled"`
	Command string   `yaml:"command" toml:"command"`
	Timeout Duration `yaml:"timeout" toml:"timeout"`
}

// PrivacyConfig controls what session data is exposed through the API and
// WebSocket feed.
type PrivacyConfig struct {
	MaskProjectPaths bool     `yaml:"mask_project_paths" toml:"mask_project_paths"`
	MaskSessionIDs   bool     `yaml:"mask_session_ids" toml:"mask_session_ids"`
	MaskPIDs         bool     `yaml:"mask_pids" toml:"mask_pids"`
	MaskTmuxTargets  bool     `yaml:"mask_tmux_targets" toml:"mask_tmux_targets"`
	AllowedPaths     []string `yaml:"allowed_paths" toml:"allowed_paths"`
	BlockedPaths     []string `yaml:"blocked_paths" toml:"blocked_paths"`
}

type ProcessesConfig struct {
	Enabled bool     `yaml:"enabled" toml:"enabled"`
	Timeout Duration `yaml:"timeout" toml:"timeout"`
}

// Duration decodes from strings like "5m" or "1500ms" in both YAML and TOML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// NewPrivacyFilter builds a session.PrivacyFilter from the config.
func (pc PrivacyConfig) NewPrivacyFilter() *session.PrivacyFilter {
	return &session.PrivacyFilter{
		MaskProjectPaths: pc.MaskProjectPaths,
		MaskSessionIDs:   pc.MaskSessionIDs,
		MaskPIDs:         pc.MaskPIDs,
		MaskTmuxTargets:  pc.MaskTmuxTargets,
		AllowedPaths:     pc.AllowedPaths,
		BlockedPaths:     pc.BlockedPaths,
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: DefaultPort,
			Host: "127.0.0.1",
		},
		Monitor: MonitorConfig{
			ProjectsDir:   "~/.claude/projects",
			IdleThreshold: Duration(DefaultIdleThreshold),
			RecencyWindow: Duration(DefaultRecency),
			PollInterval:  Duration(2 * time.Second),
			FileTimeout:   Duration(2 * time.Second),
			Workers:       8,
			TailRecords:   DefaultTailRecords,
			PreviewLength: DefaultPreviewLength,
			CacheSize:     1024,
			WatchFiles:    true,
		},
		Beads: BeadsConfig{
			Enabled: true,
			Command: "bd",
			Timeout: Duration(1500 * time.Millisecond),
		},
		Processes: ProcessesConfig{
			Enabled: true,
			Timeout: Duration(time.Second),
		},
		LogLevel: "info",
	}
}

// Load reads a YAML or TOML config file, chosen by extension, on top of the
// defaults. Environment overrides are applied and ~ is expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.finish()
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		cfg.finish()
		return cfg, nil
	}
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		cfg.finish()
		return cfg, nil
	}
	return cfg, err
}

// DefaultPath returns ~/.config/sessionwatch/config.yaml.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "sessionwatch", "config.yaml")
	}
	return "config.yaml"
}

func (c *Config) finish() {
	if v := os.Getenv("SESSIONWATCH_PROJECTS_DIR"); v != "" {
		c.Monitor.ProjectsDir = v
	}
	if v := os.Getenv("SESSIONWATCH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	c.Monitor.ProjectsDir = ExpandHome(c.Monitor.ProjectsDir)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	m := c.Monitor
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	case m.ProjectsDir == "":
		return errors.New("monitor.projects_dir is empty")
	case m.IdleThreshold <= 0:
		return fmt.Errorf("monitor.idle_threshold must be positive, got %s", m.IdleThreshold)
	case m.RecencyWindow <= 0:
		return fmt.Errorf("monitor.recency_window must be positive, got %s", m.RecencyWindow)
	case m.RecencyWindow < m.IdleThreshold:
		return fmt.Errorf("monitor.recency_window %s is shorter than idle_threshold %s", m.RecencyWindow, m.IdleThreshold)
	case m.PollInterval <= 0:
		return fmt.Errorf("monitor.poll_interval must be positive, got %s", m.PollInterval)
	case m.FileTimeout <= 0:
		return fmt.Errorf("monitor.file_timeout must be positive, got %s", m.FileTimeout)
	case m.Workers <= 0:
		return fmt.Errorf("monitor.workers must be positive, got %d", m.Workers)
	case m.TailRecords <= 0:
		return fmt.Errorf("monitor.tail_records must be positive, got %d", m.TailRecords)
	case m.PreviewLength <= 0:
		return fmt.Errorf("monitor.preview_length must be positive, got %d", m.PreviewLength)
	case c.Beads.Enabled && c.Beads.Timeout <= 0:
		return fmt.Errorf("beads.timeout must be positive, got %s", c.Beads.Timeout)
	case c.Processes.Enabled && c.Processes.Timeout <= 0:
		return fmt.Errorf("processes.timeout must be positive, got %s", c.Processes.Timeout)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	return nil
}

// GenerateToken returns a random 32-character hex token.
func GenerateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Diff returns human-readable descriptions of settings that differ between
// two configs. Only settings that can change without a restart are
// compared.
func Diff(old, new *Config) []string {
	var changes []string
	add := func(key string, a, b any) {
		if fmt.Sprint(a) != fmt.Sprint(b) {
			changes = append(changes, fmt.Sprintf("%s: %v → %v", key, a, b))
		}
	}

	add("monitor.idle_threshold", old.Monitor.IdleThreshold, new.Monitor.IdleThreshold)
	add("monitor.recency_window", old.Monitor.RecencyWindow, new.Monitor.RecencyWindow)
	add("monitor.poll_interval", old.Monitor.PollInterval, new.Monitor.PollInterval)
	add("monitor.preview_length", old.Monitor.PreviewLength, new.Monitor.PreviewLength)
	add("beads.enabled", old.Beads.Enabled, new.Beads.Enabled)
	add("privacy.mask_project_paths", old.Privacy.MaskProjectPaths, new.Privacy.MaskProjectPaths)
	add("privacy.mask_session_ids", old.Privacy.MaskSessionIDs, new.Privacy.MaskSessionIDs)
	add("privacy.mask_pids", old.Privacy.MaskPIDs, new.Privacy.MaskPIDs)
	add("privacy.mask_tmux_targets", old.Privacy.MaskTmuxTargets, new.Privacy.MaskTmuxTargets)
	add("privacy.allowed_paths", sortedList(old.Privacy.AllowedPaths), sortedList(new.Privacy.AllowedPaths))
	add("privacy.blocked_paths", sortedList(old.Privacy.BlockedPaths), sortedList(new.Privacy.BlockedPaths))
	add("processes.enabled", old.Processes.Enabled, new.Processes.Enabled)
	add("processes.timeout", old.Processes.Timeout, new.Processes.Timeout)
	add("log_level", old.LogLevel, new.LogLevel)

	return changes
}

func sortedList(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	return out
}
