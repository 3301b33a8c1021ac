package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hyperengineering/simtracker/internal/validation"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and safe for concurrent reads.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Chat       ChatConfig       `yaml:"chat"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Generation GenerationConfig `yaml:"generation"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Chat transcript backends.
const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// ChatConfig locates the transcript.
type ChatConfig struct {
	Path     string   `yaml:"path"`
	Backend  string   `yaml:"backend"`
	DBPath   string   `yaml:"db_path"`
	ChatID   string   `yaml:"chat_id"`
	Debounce Duration `yaml:"debounce"`

	// Revision compaction for the sqlite backend; zero interval disables it.
	RevisionKeep    int      `yaml:"revision_keep"`
	CompactInterval Duration `yaml:"compact_interval"`
}

// CustomField is a user-defined stat the generator is told to track.
type CustomField struct {
	Key         string `yaml:"key" json:"key"`
	Description string `yaml:"description" json:"description"`
}

// TrackerConfig holds the tracker display settings.
type TrackerConfig struct {
	Enabled             bool          `yaml:"enabled" json:"enabled"`
	Identifier          string        `yaml:"identifier" json:"identifier"`
	HideBlocks          bool          `yaml:"hide_blocks" json:"hide_blocks"`
	Position            string        `yaml:"position" json:"position"`
	Format              string        `yaml:"format" json:"format"`
	DefaultBgColor      string        `yaml:"default_bg_color" json:"default_bg_color"`
	ShowThoughtBubble   bool          `yaml:"show_thought_bubble" json:"show_thought_bubble"`
	DetectTabbed        bool          `yaml:"detect_tabbed" json:"detect_tabbed"`
	TemplatePath        string        `yaml:"template_path" json:"template_path"`
	TemplatePacks       []string      `yaml:"template_packs" json:"template_packs"`
	MacroToken          string        `yaml:"macro_token" json:"macro_token"`
	CustomFields        []CustomField `yaml:"custom_fields" json:"custom_fields"`
	AnchorRetryDelay    Duration      `yaml:"anchor_retry_delay" json:"anchor_retry_delay"`
	AnchorRetryAttempts int           `yaml:"anchor_retry_attempts" json:"anchor_retry_attempts"`
}

// GenerationConfig configures tracker regeneration through a secondary model.
type GenerationConfig struct {
	Enabled         bool     `yaml:"enabled"`
	APIKey          string   `yaml:"-"` // env-only, never in YAML
	BaseURL         string   `yaml:"base_url"`
	Model           string   `yaml:"model"`
	Temperature     float64  `yaml:"temperature"`
	HistoryMessages int      `yaml:"history_messages"`
	Stream          bool     `yaml:"stream"`
	Timeout         Duration `yaml:"timeout"`
	Prompt          string   `yaml:"prompt"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// MarshalJSON renders the duration as a Go duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Duration(d).String())), nil
}

// UnmarshalJSON accepts a Go duration string.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %s: %w", b, err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("SIMTRACKER_CONFIG_PATH", "config/simtracker.yaml")

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific path that must exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return newDefaults()
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8484,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(90 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Chat: ChatConfig{
			Path:     "data/chat.jsonl",
			Backend:  BackendJSONL,
			DBPath:   "data/simtracker.db",
			Debounce: Duration(150 * time.Millisecond),

			RevisionKeep:    20,
			CompactInterval: Duration(time.Hour),
		},
		Tracker: DefaultTracker(),
		Generation: GenerationConfig{
			Model:           "gpt-4o-mini",
			Temperature:     0.7,
			HistoryMessages: 6,
			Stream:          true,
			Timeout:         Duration(60 * time.Second),
		},
	}
}

// DefaultTracker returns the documented tracker defaults.
func DefaultTracker() TrackerConfig {
	return TrackerConfig{
		Enabled:             true,
		Identifier:          "sim",
		HideBlocks:          true,
		Format:              "json",
		DefaultBgColor:      "#6a5acd",
		ShowThoughtBubble:   true,
		DetectTabbed:        true,
		MacroToken:          "{{sim_tracker}}",
		AnchorRetryDelay:    Duration(100 * time.Millisecond),
		AnchorRetryAttempts: 10,
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("SIMTRACKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SIMTRACKER_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	// Log
	if v := os.Getenv("SIMTRACKER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SIMTRACKER_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	// Chat
	if v := os.Getenv("SIMTRACKER_CHAT_PATH"); v != "" {
		cfg.Chat.Path = v
	}
	if v := os.Getenv("SIMTRACKER_CHAT_BACKEND"); v != "" {
		cfg.Chat.Backend = v
	}
	if v := os.Getenv("SIMTRACKER_DB_PATH"); v != "" {
		cfg.Chat.DBPath = v
	}
	if v := os.Getenv("SIMTRACKER_CHAT_ID"); v != "" {
		cfg.Chat.ChatID = v
	}

	// Tracker
	if v := os.Getenv("SIMTRACKER_ENABLED"); v != "" {
		cfg.Tracker.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SIMTRACKER_IDENTIFIER"); v != "" {
		cfg.Tracker.Identifier = v
	}
	if v := os.Getenv("SIMTRACKER_POSITION"); v != "" {
		cfg.Tracker.Position = v
	}
	if v := os.Getenv("SIMTRACKER_FORMAT"); v != "" {
		cfg.Tracker.Format = v
	}
	if v := os.Getenv("SIMTRACKER_TEMPLATE_PATH"); v != "" {
		cfg.Tracker.TemplatePath = v
	}

	// Generation (OPENAI_API_KEY is industry convention)
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Generation.APIKey = v
	}
	if v := os.Getenv("SIMTRACKER_GENERATION_BASE_URL"); v != "" {
		cfg.Generation.BaseURL = v
	}
	if v := os.Getenv("SIMTRACKER_GENERATION_MODEL"); v != "" {
		cfg.Generation.Model = v
	}
	if v := os.Getenv("SIMTRACKER_GENERATION_ENABLED"); v != "" {
		cfg.Generation.Enabled = v == "true" || v == "1"
	}
}

// validate checks that configuration values are usable.
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	switch c.Chat.Backend {
	case BackendJSONL, BackendSQLite:
	default:
		return fmt.Errorf("unknown chat backend %q", c.Chat.Backend)
	}
	if err := c.Tracker.Validate(); err != nil {
		return err
	}
	if r := validation.ValidateRange("generation.temperature", c.Generation.Temperature, 0, 2); r != nil {
		return r
	}
	if c.Generation.Enabled && c.Generation.APIKey == "" && c.Generation.BaseURL == "" {
		return errors.New("OPENAI_API_KEY is required when generation is enabled")
	}
	return nil
}

// ErrInvalidTracker is wrapped by every tracker settings validation failure.
var ErrInvalidTracker = errors.New("invalid tracker settings")

// Validate checks tracker settings; it is also applied to settings updates.
// Field failures are reported together as validation.Errors.
func (t TrackerConfig) Validate() error {
	if err := t.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTracker, err)
	}
	return nil
}

var (
	trackerFormats   = []string{"json", "yaml", "yml"}
	trackerPositions = []string{"TOP", "BOTTOM", "LEFT", "RIGHT", "MACRO"}
)

func (t TrackerConfig) validate() error {
	var c validation.Collector
	c.Add(validation.ValidateRequired("identifier", t.Identifier))
	c.Add(validation.ValidateUTF8("identifier", t.Identifier))
	c.Add(validation.ValidateNoneOf("identifier", t.Identifier, " \t\n`"))
	c.Add(validation.ValidateMaxLength("identifier", t.Identifier, 64))
	if t.Format != "" {
		c.Add(validation.ValidateEnum("format", strings.ToLower(t.Format), trackerFormats))
	}
	if pos := strings.ToUpper(strings.TrimSpace(t.Position)); pos != "" {
		c.Add(validation.ValidateEnum("position", pos, trackerPositions))
	}
	c.Add(validation.ValidateUTF8("macro_token", t.MacroToken))
	c.Add(validation.ValidateNoNullBytes("macro_token", t.MacroToken))
	c.Add(validation.ValidateRange("anchor_retry_attempts", float64(t.AnchorRetryAttempts), 0, 100))
	for i, f := range t.CustomFields {
		field := fmt.Sprintf("custom_fields[%d].key", i)
		c.Add(validation.ValidateRequired(field, f.Key))
		c.Add(validation.ValidateNoneOf(field, f.Key, " \t\n:"))
	}
	return c.Err()
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
