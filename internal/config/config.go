/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	applog "opuseditor/internal/log"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type GeneralConfig struct {
	// CommandsDir holds the component command schemas (*.json) used to describe and validate directives.
	CommandsDir string `yaml:"commands_dir"`
	KeepBackups int    `yaml:"keep_backups"`
}

type PlaybackConfig struct {
	BrokerURL   string `yaml:"broker_url"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	// Password is not stored on disk; it lives in the OS keychain.
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type UndoConfig struct {
	MaxDepth int `yaml:"max_depth"`
	MaxBytes int `yaml:"max_bytes"`
}

type AppConfig struct {
	ConfigVersion int            `yaml:"config_version"`
	General       GeneralConfig  `yaml:"general"`
	Playback      PlaybackConfig `yaml:"playback"`
	Logging       LoggingConfig  `yaml:"logging"`
	Undo          UndoConfig     `yaml:"undo"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{CommandsDir: "", KeepBackups: 20},
		Playback:      PlaybackConfig{BrokerURL: "tcp://localhost:1883", TopicPrefix: "opus", ClientID: "opuseditor", TimeoutMs: 5000},
		Logging:       LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
		Undo:          UndoConfig{MaxDepth: 100, MaxBytes: 16 * 1024 * 1024},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath     = "OPUS_CONFIG"
	EnvCommandsDir    = "OPUS_COMMANDS_DIR"
	EnvKeepBackups    = "OPUS_KEEP_BACKUPS"
	EnvBrokerURL      = "OPUS_BROKER_URL"
	EnvTopicPrefix    = "OPUS_TOPIC_PREFIX"
	EnvClientID       = "OPUS_CLIENT_ID"
	EnvBrokerUser     = "OPUS_BROKER_USER"
	EnvBrokerTimeout  = "OPUS_BROKER_TIMEOUT_MS"
	EnvBrokerPassword = "OPUS_BROKER_PASSWORD"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "OPUS_LOG_LEVEL"
	EnvLogFormat = "OPUS_LOG_FORMAT"
	EnvLogSource = "OPUS_LOG_SOURCE"
	EnvLogFile   = "OPUS_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService  = "OpusEditor"
	keyringPassword = "broker_password"
)

// tokenStore abstracts keyring, so we can stub in tests.
var tokenStore TokenStore = osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements TokenStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// ConfigPath returns the per-user config file path. OPUS_CONFIG takes precedence.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "OpusEditor")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "OpusEditor")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "opuseditor")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads user config file (if present), applies defaults, and merges environment overrides.
// It also loads the broker password from the keyring (not kept inside the struct; returned separately).
// OPUS_BROKER_PASSWORD wins over the keyring.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		} else {
			applog.WithComponent("config").Warn("ignoring malformed config file", "path", path, "err", err)
		}
	}
	applyEnvOverrides(&cfg)
	if pw := os.Getenv(EnvBrokerPassword); pw != "" {
		return cfg, pw, nil
	}
	pw, _ := tokenStore.Get(keyringService, keyringPassword)
	return cfg, pw, nil
}

// Save writes the user config YAML and persists the broker password into the OS keyring (if non-empty).
func Save(cfg AppConfig, password string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if password != "" {
		if err := tokenStore.Set(keyringService, keyringPassword, password); err != nil {
			return err
		}
	}
	return nil
}

// ForgetPassword removes the broker password from the OS keyring.
func ForgetPassword() error {
	err := tokenStore.Delete(keyringService, keyringPassword)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if s := strings.TrimSpace(src.General.CommandsDir); s != "" {
		dst.General.CommandsDir = s
	}
	if src.General.KeepBackups > 0 {
		dst.General.KeepBackups = src.General.KeepBackups
	}
	// playback
	if s := strings.TrimSpace(src.Playback.BrokerURL); s != "" {
		dst.Playback.BrokerURL = s
	}
	if s := strings.TrimSpace(src.Playback.TopicPrefix); s != "" {
		dst.Playback.TopicPrefix = strings.Trim(s, "/")
	}
	if s := strings.TrimSpace(src.Playback.ClientID); s != "" {
		dst.Playback.ClientID = s
	}
	if s := strings.TrimSpace(src.Playback.Username); s != "" {
		dst.Playback.Username = s
	}
	if src.Playback.TimeoutMs != 0 {
		dst.Playback.TimeoutMs = src.Playback.TimeoutMs
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
	// undo
	if src.Undo.MaxDepth > 0 {
		dst.Undo.MaxDepth = src.Undo.MaxDepth
	}
	if src.Undo.MaxBytes > 0 {
		dst.Undo.MaxBytes = src.Undo.MaxBytes
	}
}

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvCommandsDir)); v != "" {
		cfg.General.CommandsDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvKeepBackups)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.General.KeepBackups = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvBrokerURL)); v != "" {
		cfg.Playback.BrokerURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTopicPrefix)); v != "" {
		cfg.Playback.TopicPrefix = strings.Trim(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv(EnvClientID)); v != "" {
		cfg.Playback.ClientID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBrokerUser)); v != "" {
		cfg.Playback.Username = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBrokerTimeout)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Playback.TimeoutMs = n
		}
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	var env string
	switch key {
	case "general.commands_dir":
		env = EnvCommandsDir
	case "general.keep_backups":
		env = EnvKeepBackups
	case "playback.broker_url":
		env = EnvBrokerURL
	case "playback.topic_prefix":
		env = EnvTopicPrefix
	case "playback.client_id":
		env = EnvClientID
	case "playback.username":
		env = EnvBrokerUser
	case "playback.timeout_ms":
		env = EnvBrokerTimeout
	case "logging.level":
		env = EnvLogLevel
	case "logging.format":
		env = EnvLogFormat
	case "logging.source":
		env = EnvLogSource
	case "logging.file":
		env = EnvLogFile
	default:
		return "", false
	}
	if os.Getenv(env) != "" {
		return env, true
	}
	return "", false
}

// Timeout returns the broker timeout, falling back to the default when unset.
func (p PlaybackConfig) Timeout() time.Duration {
	if p.TimeoutMs <= 0 {
		return time.Duration(Defaults().Playback.TimeoutMs) * time.Millisecond
	}
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// LogOptions converts the logging section to logger options.
func (l LoggingConfig) LogOptions() applog.Options {
	return applog.Options{Level: l.Level, Format: l.Format, AddSource: l.Source, File: l.File}
}
