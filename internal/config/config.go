// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/mariechat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete client configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Server  ServerConfig  `toml:"server" json:"server"`
	Chat    ChatConfig    `toml:"chat" json:"chat"`
	Log     LogConfig     `toml:"log" json:"log"`
	Archive ArchiveConfig `toml:"archive" json:"archive"`
	UI      UIConfig      `toml:"ui" json:"ui"`
}

// ServerConfig locates the chat server and carries the credentials.
type ServerConfig struct {
	// URL is the server origin, used for both REST and the socket.
	URL string `toml:"url" json:"url"`
	// Token is an already-issued JWT. The client never logs in itself.
	Token string `toml:"token" json:"token"`
	// SocketPath is the Socket.IO endpoint path.
	SocketPath string `toml:"socket_path" json:"socket_path"`

	ReconnectAttempts    int `toml:"reconnect_attempts" json:"reconnect_attempts"`
	ReconnectDelayMS     int `toml:"reconnect_delay_ms" json:"reconnect_delay_ms"`
	HandshakeTimeoutSecs int `toml:"handshake_timeout_secs" json:"handshake_timeout_secs"`
	RequestTimeoutSecs   int `toml:"request_timeout_secs" json:"request_timeout_secs"`
}

// ChatConfig holds generation and side-channel defaults.
type ChatConfig struct {
	// Model and Provider are sent with every message; empty lets the
	// conversation's own settings apply.
	Model    string `toml:"model" json:"model"`
	Provider string `toml:"provider" json:"provider"`
	// Stream requests chunked responses.
	Stream bool `toml:"stream" json:"stream"`
	// JoinSettleMS is the delay after join_conversation before a room
	// counts as ready (0 = default).
	JoinSettleMS int `toml:"join_settle_ms" json:"join_settle_ms"`
	// TypingIntervalMS rate-limits outbound typing=true indicators
	// (0 disables the limit).
	TypingIntervalMS int    `toml:"typing_interval_ms" json:"typing_interval_ms"`
	Voice            string `toml:"voice" json:"voice"`
	Language         string `toml:"language" json:"language"`
}

// LogConfig configures the client log.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" json:"level"`
	// File receives log output; empty means stderr (or discard in the TUI).
	File string `toml:"file" json:"file"`
}

// ArchiveConfig controls the local transcript archive.
type ArchiveConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	// Path of the SQLite database (empty = ~/.mariechat/archive.db).
	Path string `toml:"path" json:"path"`
}

// UIConfig contains terminal UI preferences.
type UIConfig struct {
	ShowTimestamps bool `toml:"show_timestamps" json:"show_timestamps"`
	ShowFollowUps  bool `toml:"show_follow_ups" json:"show_follow_ups"`
	// ConversationLimit caps the conversation list fetched at startup.
	ConversationLimit int `toml:"conversation_limit" json:"conversation_limit"`
}

// Durations derived from the millisecond/second settings.

func (s ServerConfig) ReconnectDelay() time.Duration {
	return time.Duration(s.ReconnectDelayMS) * time.Millisecond
}

func (s ServerConfig) HandshakeTimeout() time.Duration {
	return time.Duration(s.HandshakeTimeoutSecs) * time.Second
}

func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSecs) * time.Second
}

func (c ChatConfig) JoinSettle() time.Duration {
	return time.Duration(c.JoinSettleMS) * time.Millisecond
}

func (c ChatConfig) TypingInterval() time.Duration {
	return time.Duration(c.TypingIntervalMS) * time.Millisecond
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			URL:                  "http://localhost:5000",
			SocketPath:           "/socket.io/",
			ReconnectAttempts:    5,
			ReconnectDelayMS:     1000,
			HandshakeTimeoutSecs: 10,
			RequestTimeoutSecs:   30,
		},
		Chat: ChatConfig{
			Stream:           true,
			JoinSettleMS:     200,
			TypingIntervalMS: 1000,
			Language:         "es",
		},
		Log: LogConfig{
			Level: "info",
		},
		UI: UIConfig{
			ShowFollowUps:     true,
			ConversationLimit: 50,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the client configuration directory. MARIE_CONFIG_DIR
// overrides the default ~/.mariechat.
func ConfigDir() (string, error) {
	if dir := os.Getenv("MARIE_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".mariechat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ArchivePath resolves the archive database location.
func (c *Config) ArchivePath() (string, error) {
	if c.Archive.Path != "" {
		return c.Archive.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "archive.db"), nil
}

// ensureSecurePermissions narrows a config file to 0600; it holds the token.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the configuration. TOML is tried first, then JSON, then the
// built-in defaults. Environment overrides are applied last. A file that
// fails to parse is reported alongside the defaults.
func Load() (*Config, error) {
	var loadErr error

	for _, candidate := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := candidate()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg, err := LoadFromPath(path)
		if err == nil {
			return cfg, nil
		}
		if loadErr == nil {
			loadErr = err
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, loadErr
}

// LoadFromPath loads configuration from a specific file with full
// validation. Files ending in .json are decoded as JSON, anything else as
// TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	if strings.HasSuffix(path, ".json") {
		err = LoadJSON(cfg, path)
	} else {
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// fillDefaults restores zero values that a partial file blanked out.
func fillDefaults(cfg *Config) {
	d := Default()

	if cfg.Version == "" {
		cfg.Version = d.Version
	}
	if cfg.Server.URL == "" {
		cfg.Server.URL = d.Server.URL
	}
	if cfg.Server.SocketPath == "" {
		cfg.Server.SocketPath = d.Server.SocketPath
	}
	if cfg.Server.ReconnectAttempts == 0 {
		cfg.Server.ReconnectAttempts = d.Server.ReconnectAttempts
	}
	if cfg.Server.ReconnectDelayMS == 0 {
		cfg.Server.ReconnectDelayMS = d.Server.ReconnectDelayMS
	}
	if cfg.Server.HandshakeTimeoutSecs == 0 {
		cfg.Server.HandshakeTimeoutSecs = d.Server.HandshakeTimeoutSecs
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = d.Server.RequestTimeoutSecs
	}
	if cfg.Chat.JoinSettleMS == 0 {
		cfg.Chat.JoinSettleMS = d.Chat.JoinSettleMS
	}
	if cfg.Chat.Language == "" {
		cfg.Chat.Language = d.Chat.Language
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
	if cfg.UI.ConversationLimit == 0 {
		cfg.UI.ConversationLimit = d.UI.ConversationLimit
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# mariechat configuration file\n")
	buf.WriteString("# server.token is a bearer token; keep this file private\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.WriteFileAtomic(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes cfg as indented JSON with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether field failed validation.
func (e ValidateErrors) Has(field string) bool {
	for _, err := range e {
		if err.Field == field {
			return true
		}
	}
	return false
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration. The returned error, when non-nil, is
// a ValidateErrors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Server
	if u, err := url.Parse(c.Server.URL); err != nil {
		add("server.url", "invalid URL: %v", err)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("server.url", "scheme must be http or https, got %q", u.Scheme)
	} else if u.Host == "" {
		add("server.url", "missing host")
	}
	if !strings.HasPrefix(c.Server.SocketPath, "/") {
		add("server.socket_path", "must start with '/', got %q", c.Server.SocketPath)
	}
	if c.Server.ReconnectAttempts < 0 || c.Server.ReconnectAttempts > 100 {
		add("server.reconnect_attempts", "must be 0-100, got %d", c.Server.ReconnectAttempts)
	}
	if c.Server.ReconnectDelayMS < 0 || c.Server.ReconnectDelayMS > 60_000 {
		add("server.reconnect_delay_ms", "must be 0-60000, got %d", c.Server.ReconnectDelayMS)
	}
	if c.Server.HandshakeTimeoutSecs < 1 || c.Server.HandshakeTimeoutSecs > 120 {
		add("server.handshake_timeout_secs", "must be 1-120, got %d", c.Server.HandshakeTimeoutSecs)
	}
	if c.Server.RequestTimeoutSecs < 1 || c.Server.RequestTimeoutSecs > 600 {
		add("server.request_timeout_secs", "must be 1-600, got %d", c.Server.RequestTimeoutSecs)
	}

	// Chat
	if c.Chat.JoinSettleMS < 0 || c.Chat.JoinSettleMS > 10_000 {
		add("chat.join_settle_ms", "must be 0-10000, got %d", c.Chat.JoinSettleMS)
	}
	if c.Chat.TypingIntervalMS < 0 {
		add("chat.typing_interval_ms", "cannot be negative")
	}
	if c.Chat.Model != "" && c.Chat.Provider == "" {
		add("chat.provider", "required when chat.model is set")
	}

	// Log
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}

	// UI
	if c.UI.ConversationLimit < 1 || c.UI.ConversationLimit > 500 {
		add("ui.conversation_limit", "must be 1-500, got %d", c.UI.ConversationLimit)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - MARIE_SERVER_URL: overrides server.url
//   - MARIE_TOKEN: overrides server.token
//   - MARIE_MODEL: overrides chat.model
//   - MARIE_PROVIDER: overrides chat.provider
//   - MARIE_LOG_LEVEL: overrides log.level
//   - MARIE_ARCHIVE: "1" or "true" enables the archive
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("MARIE_SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("MARIE_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("MARIE_MODEL"); v != "" {
		c.Chat.Model = v
	}
	if v := os.Getenv("MARIE_PROVIDER"); v != "" {
		c.Chat.Provider = v
	}
	if v := os.Getenv("MARIE_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("MARIE_ARCHIVE"); v != "" {
		c.Archive.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g. "chat.model").
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		name := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(n string) bool {
			return strings.EqualFold(n, name)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go
// field equivalent. "join_settle_ms" becomes "JoinSettleMs", which matches
// JoinSettleMS case-insensitively.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(strings.ToLower(p[1:]))
	}
	return b.String()
}

func setFieldValue(field reflect.Value, value any) error {
	if s, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(s)
			return nil
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(n)
			return nil
		case reflect.Bool:
			b, err := strconv.ParseBool(strings.ToLower(s))
			if err != nil {
				b = strings.EqualFold(s, "yes")
				if !b && !strings.EqualFold(s, "no") {
					return fmt.Errorf("invalid boolean value: %q", s)
				}
			}
			field.SetBool(b)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// AllKeys returns every settable key in dot notation, in file order.
func AllKeys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := tomlName(f)
		if f.Type.Kind() != reflect.Struct {
			keys = append(keys, name)
			continue
		}
		for j := 0; j < f.Type.NumField(); j++ {
			keys = append(keys, name+"."+tomlName(f.Type.Field(j)))
		}
	}
	return keys
}

func tomlName(f reflect.StructField) string {
	if tag, _, _ := strings.Cut(f.Tag.Get("toml"), ","); tag != "" {
		return tag
	}
	return strings.ToLower(f.Name)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone returns a copy of the config. Config has no reference fields, so a
// value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String renders the config as JSON with the token redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Server.Token != "" {
		safe.Server.Token = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the process-wide configuration, loading it on first
// access. Load failures fall back to defaults with a warning.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal replaces the process-wide configuration.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state between tests.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
