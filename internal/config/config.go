// Package config loads livecode settings with Viper from a .livecode.yml
// file, LIVECODE_ environment variables and command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/livecode/internal/logging"
	"github.com/conneroisu/livecode/internal/sandbox"
	"github.com/conneroisu/livecode/internal/validation"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Lessons LessonsConfig `mapstructure:"lessons" yaml:"lessons"`
	Sandbox SandboxConfig `mapstructure:"sandbox" yaml:"sandbox"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port" yaml:"port"`
	Host           string   `mapstructure:"host" yaml:"host"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	Environment    string   `mapstructure:"environment" yaml:"environment"`
}

type LessonsConfig struct {
	Dir      string        `mapstructure:"dir" yaml:"dir"`
	Watch    bool          `mapstructure:"watch" yaml:"watch"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type SandboxConfig struct {
	Isolation string          `mapstructure:"isolation" yaml:"isolation"`
	Preflight PreflightConfig `mapstructure:"preflight" yaml:"preflight"`
}

type PreflightConfig struct {
	Markup bool `mapstructure:"markup" yaml:"markup"`
	Style  bool `mapstructure:"style" yaml:"style"`
	Script bool `mapstructure:"script" yaml:"script"`
}

type SessionConfig struct {
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ReapInterval time.Duration `mapstructure:"reap_interval" yaml:"reap_interval"`
	Feedback     time.Duration `mapstructure:"feedback" yaml:"feedback"`

	// New sessions per second across all clients, with burst.
	CreateRate  float64 `mapstructure:"create_rate" yaml:"create_rate"`
	CreateBurst int     `mapstructure:"create_burst" yaml:"create_burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.environment", "development")

	v.SetDefault("lessons.dir", "./lessons")
	v.SetDefault("lessons.watch", true)
	v.SetDefault("lessons.debounce", 200*time.Millisecond)

	v.SetDefault("sandbox.isolation", string(sandbox.IsolationStrict))
	v.SetDefault("sandbox.preflight.markup", true)
	v.SetDefault("sandbox.preflight.style", true)
	v.SetDefault("sandbox.preflight.script", true)

	v.SetDefault("session.idle_timeout", 30*time.Minute)
	v.SetDefault("session.reap_interval", time.Minute)
	v.SetDefault("session.feedback", 2*time.Second)
	v.SetDefault("session.create_rate", 5.0)
	v.SetDefault("session.create_burst", 20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration from the global Viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	// Environment values arrive comma separated and may carry spaces.
	config.Server.AllowedOrigins = splitList(strings.Join(config.Server.AllowedOrigins, ","))

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Address is the listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Isolation returns the sandbox isolation mode.
func (c *Config) Isolation() sandbox.Isolation {
	return sandbox.Isolation(c.Sandbox.Isolation)
}

// Preflight returns the enabled syntax checks.
func (c *Config) Preflight() sandbox.Preflight {
	return sandbox.Preflight{
		Markup: c.Sandbox.Preflight.Markup,
		Style:  c.Sandbox.Preflight.Style,
		Script: c.Sandbox.Preflight.Script,
	}
}

// Logger builds the logger described by the log section.
func (c *Config) Logger() logging.Logger {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Log.Level); err == nil {
		cfg.Level = level
	}
	cfg.Format = c.Log.Format
	return logging.NewLogger(cfg)
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := validateLessonsConfig(&config.Lessons); err != nil {
		return fmt.Errorf("lessons config: %w", err)
	}
	if err := validateSandboxConfig(&config.Sandbox); err != nil {
		return fmt.Errorf("sandbox config: %w", err)
	}
	if err := validateSessionConfig(&config.Session); err != nil {
		return fmt.Errorf("session config: %w", err)
	}
	if err := validateLogConfig(&config.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Port 0 asks the system for a free port.
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}
	if err := validation.ValidateHost(config.Host); err != nil {
		return err
	}
	for _, origin := range config.AllowedOrigins {
		if strings.Contains(origin, "://") {
			if err := validation.ValidateURL(origin); err != nil {
				return fmt.Errorf("allowed origin %q: %w", origin, err)
			}
		} else if err := validation.ValidateHost(origin); err != nil {
			return fmt.Errorf("allowed origin %q: %w", origin, err)
		}
	}
	return nil
}

func validateLessonsConfig(config *LessonsConfig) error {
	if err := validation.ValidatePath(config.Dir); err != nil {
		return fmt.Errorf("invalid lessons dir '%s': %w", config.Dir, err)
	}
	if config.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative")
	}
	return nil
}

func validateSandboxConfig(config *SandboxConfig) error {
	if !sandbox.Isolation(config.Isolation).Valid() {
		return fmt.Errorf("isolation must be %q or %q, got %q",
			sandbox.IsolationStrict, sandbox.IsolationOpen, config.Isolation)
	}
	return nil
}

func validateSessionConfig(config *SessionConfig) error {
	if config.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout must not be negative")
	}
	if config.ReapInterval <= 0 {
		return fmt.Errorf("reap_interval must be positive")
	}
	if config.Feedback <= 0 {
		return fmt.Errorf("feedback must be positive")
	}
	if config.CreateRate <= 0 {
		return fmt.Errorf("create_rate must be positive")
	}
	if config.CreateBurst < 1 {
		return fmt.Errorf("create_burst must be at least 1")
	}
	return nil
}

func validateLogConfig(config *LogConfig) error {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		return err
	}
	switch config.Format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("format must be text or json, got %q", config.Format)
	}
}
