package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/livecode/internal/sandbox"
)

func TestLoadDefaults(t *testing.T) {
	config, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, "development", config.Server.Environment)
	assert.Empty(t, config.Server.AllowedOrigins)
	assert.Equal(t, "./lessons", config.Lessons.Dir)
	assert.True(t, config.Lessons.Watch)
	assert.Equal(t, 200*time.Millisecond, config.Lessons.Debounce)
	assert.Equal(t, sandbox.IsolationStrict, config.Isolation())
	assert.Equal(t, sandbox.DefaultPreflight(), config.Preflight())
	assert.Equal(t, 30*time.Minute, config.Session.IdleTimeout)
	assert.Equal(t, time.Minute, config.Session.ReapInterval)
	assert.Equal(t, 2*time.Second, config.Session.Feedback)
	assert.Equal(t, 5.0, config.Session.CreateRate)
	assert.Equal(t, 20, config.Session.CreateBurst)
	assert.Equal(t, "info", config.Log.Level)
	assert.Equal(t, "text", config.Log.Format)
	assert.Equal(t, "localhost:8080", config.Address())
}

func TestLoadGlobal(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("server.port", 3000)
	viper.Set("sandbox.isolation", "open")

	config, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, config.Server.Port)
	assert.Equal(t, sandbox.IsolationOpen, config.Isolation())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".livecode.yml")
	content := `server:
  port: 9000
  host: 0.0.0.0
  allowed_origins:
    - https://lessons.example.com
lessons:
  dir: ./course
  watch: false
  debounce: 500ms
sandbox:
  isolation: open
  preflight:
    style: false
session:
  idle_timeout: 5m
  feedback: 1s
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	config, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", config.Address())
	assert.Equal(t, []string{"https://lessons.example.com"}, config.Server.AllowedOrigins)
	assert.Equal(t, "./course", config.Lessons.Dir)
	assert.False(t, config.Lessons.Watch)
	assert.Equal(t, 500*time.Millisecond, config.Lessons.Debounce)
	assert.Equal(t, sandbox.IsolationOpen, config.Isolation())
	assert.Equal(t, sandbox.Preflight{Markup: true, Style: false, Script: true}, config.Preflight())
	assert.Equal(t, 5*time.Minute, config.Session.IdleTimeout)
	assert.Equal(t, time.Second, config.Session.Feedback)
	assert.Equal(t, "debug", config.Log.Level)
	assert.Equal(t, "json", config.Log.Format)
	assert.NotNil(t, config.Logger())
}

func TestLoadWithEnvironment(t *testing.T) {
	t.Setenv("LIVECODE_SERVER_PORT", "9999")
	t.Setenv("LIVECODE_SANDBOX_ISOLATION", "open")
	t.Setenv("LIVECODE_SERVER_ALLOWED_ORIGINS", "https://a.example.com, b.example.com")

	v := viper.New()
	v.SetEnvPrefix("LIVECODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	config, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, sandbox.IsolationOpen, config.Isolation())
	assert.Equal(t, []string{"https://a.example.com", "b.example.com"}, config.Server.AllowedOrigins)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    interface{}
		contains string
	}{
		{"unparseable port", "server.port", "invalid_port", "decoding configuration"},
		{"port out of range", "server.port", 70000, "port 70000"},
		{"dangerous host", "server.host", "localhost;rm", "dangerous character"},
		{"bad origin", "server.allowed_origins", []string{"ftp://example.com"}, "allowed origin"},
		{"lessons traversal", "lessons.dir", "../../etc", "traversal"},
		{"restricted lessons dir", "lessons.dir", "/proc/self", "restricted"},
		{"negative debounce", "lessons.debounce", "-1s", "debounce"},
		{"unknown isolation", "sandbox.isolation", "none", "isolation"},
		{"negative idle timeout", "session.idle_timeout", "-1m", "idle_timeout"},
		{"zero reap interval", "session.reap_interval", "0s", "reap_interval"},
		{"zero feedback", "session.feedback", "0s", "feedback"},
		{"zero create rate", "session.create_rate", "0", "create_rate"},
		{"zero create burst", "session.create_burst", "0", "create_burst"},
		{"unknown log level", "log.level", "loud", "log level"},
		{"unknown log format", "log.format", "xml", "format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.value)

			config, err := LoadFrom(v)
			require.Error(t, err)
			assert.Nil(t, config)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a , ,b,"))
	assert.Nil(t, splitList(" , "))
}
