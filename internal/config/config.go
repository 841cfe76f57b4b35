// Package config loads the application configuration from YAML, applies
// environment overrides and exposes the well-known file locations used by
// the rest of the daemon.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const appName = "gostt-tray"

// Environment variables recognised by ApplyEnv.
const (
	EnvConfigDir     = "GOSTT_CONFIG_DIR"
	EnvLogLevel      = "GOSTT_LOG_LEVEL"
	EnvOllamaHost    = "OLLAMA_HOST"
	EnvWhisperAPIURL = "WHISPER_API_URL"
)

// Config holds all application configuration.
type Config struct {
	DataDir    string           `yaml:"data_dir"`
	ModelsDir  string           `yaml:"models_dir"`
	Hotkey     HotkeyConfig     `yaml:"hotkey"`
	Audio      AudioConfig      `yaml:"audio"`
	Inject     InjectConfig     `yaml:"inject"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Processing ProcessingConfig `yaml:"processing"`
	Server     ServerConfig     `yaml:"server"`
	Notify     bool             `yaml:"notify"`
	Log        LogConfig        `yaml:"log"`

	// configDir is where the file was loaded from (or the default dir).
	configDir string
}

// HotkeyConfig holds hotkey-related settings.
type HotkeyConfig struct {
	Enabled bool     `yaml:"enabled"`
	Keys    []string `yaml:"keys"`
	Mode    string   `yaml:"mode"` // "hold" or "toggle"
}

// AudioConfig holds audio capture settings.
type AudioConfig struct {
	MinDuration time.Duration `yaml:"min_duration"`
	RetainAudio bool          `yaml:"retain_audio"`
}

// InjectConfig holds text delivery settings.
type InjectConfig struct {
	Method     string        `yaml:"method"` // "paste", "type" or "clipboard"
	PasteDelay time.Duration `yaml:"paste_delay"`
}

// ProvidersConfig holds endpoints for the HTTP-backed providers.
type ProvidersConfig struct {
	OllamaURL        string        `yaml:"ollama_url"`
	WhisperServerURL string        `yaml:"whisper_server_url"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	AnthropicBaseURL string        `yaml:"anthropic_base_url"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

// ProcessingConfig bounds the post-capture pipeline.
type ProcessingConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig holds the local control API settings.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
	Dir    string `yaml:"dir"`    // empty disables the rotating log file
}

// DefaultConfigDir returns the default config directory path.
// GOSTT_CONFIG_DIR overrides it.
func DefaultConfigDir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return expandTilde(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName)
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDataDir returns the default directory for history and audio.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", appName)
}

// DefaultModelsDir returns the default directory for whisper models.
func DefaultModelsDir() string {
	return filepath.Join(DefaultDataDir(), "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		DataDir:   DefaultDataDir(),
		ModelsDir: DefaultModelsDir(),
		Hotkey: HotkeyConfig{
			Enabled: true,
			Keys:    []string{"ctrl", "shift", "space"},
			Mode:    "toggle",
		},
		Audio: AudioConfig{
			MinDuration: 300 * time.Millisecond,
			RetainAudio: true,
		},
		Inject: InjectConfig{
			Method:     "paste",
			PasteDelay: 50 * time.Millisecond,
		},
		Providers: ProvidersConfig{
			OllamaURL:        "http://localhost:11434",
			WhisperServerURL: "http://localhost:8000",
			OpenAIBaseURL:    "https://api.openai.com/v1",
			AnthropicBaseURL: "https://api.anthropic.com/v1",
			RetryBackoff:     500 * time.Millisecond,
		},
		Processing: ProcessingConfig{
			Timeout: 3 * time.Minute,
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    "127.0.0.1:7723",
		},
		Notify: true,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		configDir: DefaultConfigDir(),
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in directory fields is expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.configDir = filepath.Dir(path)
	cfg.DataDir = expandTilde(cfg.DataDir)
	cfg.ModelsDir = expandTilde(cfg.ModelsDir)
	cfg.Log.Dir = expandTilde(cfg.Log.Dir)

	return cfg, nil
}

// WriteDefault writes the default config to path, creating parent
// directories. An existing file is left untouched.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}

	header := "# gostt-tray configuration\n# Per-session defaults (providers, models, active mode) live in settings.yaml.\n\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}

// LoadEnv loads .env files from the working directory and the config
// directory. Variables already present in the environment win.
func (c *Config) LoadEnv() {
	for _, p := range []string{".env", filepath.Join(c.ConfigDir(), ".env")} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			slog.Warn("[Config] failed to load env file", "path", p, "error", err)
		}
	}
}

// ApplyEnv overrides config values from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvOllamaHost); v != "" {
		if !strings.Contains(v, "://") {
			v = "http://" + v
		}
		c.Providers.OllamaURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv(EnvWhisperAPIURL); v != "" {
		c.Providers.WhisperServerURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}

	if c.Hotkey.Enabled {
		if len(c.Hotkey.Keys) == 0 {
			return fmt.Errorf("hotkey.keys must not be empty")
		}
		switch c.Hotkey.Mode {
		case "hold", "toggle":
		default:
			return fmt.Errorf("hotkey.mode must be \"hold\" or \"toggle\", got %q", c.Hotkey.Mode)
		}
	}

	if c.Audio.MinDuration < 0 {
		return fmt.Errorf("audio.min_duration must be >= 0")
	}

	switch c.Inject.Method {
	case "paste", "type", "clipboard":
	default:
		return fmt.Errorf("inject.method must be \"paste\", \"type\" or \"clipboard\", got %q", c.Inject.Method)
	}

	if c.Processing.Timeout <= 0 {
		return fmt.Errorf("processing.timeout must be > 0")
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty when the server is enabled")
	}

	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format)
	}

	return nil
}

// ParseLogLevel maps a config level name to a slog level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn, or error, got %q", level)
	}
}

// ConfigDir returns the directory holding config.yaml, settings and modes.
func (c *Config) ConfigDir() string {
	if c.configDir == "" {
		return DefaultConfigDir()
	}
	return c.configDir
}

// ModesDir returns the user mode directory.
func (c *Config) ModesDir() string { return filepath.Join(c.ConfigDir(), "modes") }

// SettingsPath returns the persisted settings file.
func (c *Config) SettingsPath() string { return filepath.Join(c.ConfigDir(), "settings.yaml") }

// SecretsPath returns the encrypted credential file.
func (c *Config) SecretsPath() string { return filepath.Join(c.ConfigDir(), "credentials.enc") }

// HistoryPath returns the history database file.
func (c *Config) HistoryPath() string { return filepath.Join(c.DataDir, "history.db") }

// AudioDir returns the directory for retained recordings.
func (c *Config) AudioDir() string { return filepath.Join(c.DataDir, "audio") }

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
