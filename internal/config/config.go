// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/arkiv-tui/internal/util"
)

// CurrentVersion is the config schema version written by SaveTOML.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete arkiv configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	API      APIConfig      `toml:"api" json:"api"`
	Identity IdentityConfig `toml:"identity" json:"identity"`
	Storage  StorageConfig  `toml:"storage" json:"storage"`
	Upload   UploadConfig   `toml:"upload" json:"upload"`
	Logging  LogConfig      `toml:"logging" json:"logging"`
	UI       UIConfig       `toml:"ui" json:"ui"`
}

// APIConfig configures the document-chat backend.
type APIConfig struct {
	BaseURL           string  `toml:"base_url" json:"base_url"`
	TimeoutSecs       int     `toml:"timeout_secs" json:"timeout_secs"`
	UploadTimeoutSecs int     `toml:"upload_timeout_secs" json:"upload_timeout_secs"`
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `toml:"burst" json:"burst"`
}

// IdentityConfig configures the hosted identity provider. URL and AnonKey
// are fetched from the backend's /config endpoint when left empty.
type IdentityConfig struct {
	URL           string `toml:"url" json:"url"`
	AnonKey       string `toml:"anon_key" json:"anon_key"`
	RedirectURL   string `toml:"redirect_url" json:"redirect_url"`
	OAuthProvider string `toml:"oauth_provider" json:"oauth_provider"`
}

// StorageConfig configures local persistence.
type StorageConfig struct {
	DataDir      string `toml:"data_dir" json:"data_dir"`
	DatabaseFile string `toml:"database_file" json:"database_file"`
	EncryptKeys  bool   `toml:"encrypt_keys" json:"encrypt_keys"`
}

// UploadConfig configures the drop folder.
type UploadConfig struct {
	DropDir    string `toml:"drop_dir" json:"drop_dir"`
	DebounceMs int    `toml:"debounce_ms" json:"debounce_ms"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	File   string `toml:"file" json:"file"`
	Pretty bool   `toml:"pretty" json:"pretty"`
}

// UIConfig configures the terminal UI.
type UIConfig struct {
	Theme        string `toml:"theme" json:"theme"`
	Markdown     bool   `toml:"markdown" json:"markdown"`
	Snow         bool   `toml:"snow" json:"snow"`
	SidebarWidth int    `toml:"sidebar_width" json:"sidebar_width"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		API: APIConfig{
			BaseURL:           "http://127.0.0.1:8000",
			TimeoutSecs:       120,
			UploadTimeoutSecs: 600,
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Identity: IdentityConfig{
			OAuthProvider: "google",
		},
		Storage: StorageConfig{
			DatabaseFile: "arkiv.db",
			EncryptKeys:  true,
		},
		Upload: UploadConfig{
			DebounceMs: 500,
		},
		Logging: LogConfig{
			Level: "info",
			File:  "arkiv.log",
		},
		UI: UIConfig{
			Theme:        "auto",
			Markdown:     true,
			SidebarWidth: 32,
		},
	}
}

// SetDefaults fills zero values with defaults. Booleans are left alone.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = d.API.BaseURL
	}
	if c.API.TimeoutSecs == 0 {
		c.API.TimeoutSecs = d.API.TimeoutSecs
	}
	if c.API.UploadTimeoutSecs == 0 {
		c.API.UploadTimeoutSecs = d.API.UploadTimeoutSecs
	}
	if c.API.RequestsPerSecond == 0 {
		c.API.RequestsPerSecond = d.API.RequestsPerSecond
	}
	if c.API.Burst == 0 {
		c.API.Burst = d.API.Burst
	}
	if c.Identity.OAuthProvider == "" {
		c.Identity.OAuthProvider = d.Identity.OAuthProvider
	}
	if c.Storage.DatabaseFile == "" {
		c.Storage.DatabaseFile = d.Storage.DatabaseFile
	}
	if c.Upload.DebounceMs == 0 {
		c.Upload.DebounceMs = d.Upload.DebounceMs
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.File == "" {
		c.Logging.File = d.Logging.File
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.SidebarWidth == 0 {
		c.UI.SidebarWidth = d.UI.SidebarWidth
	}
}

// Migrate upgrades configs written by older releases.
func (c *Config) Migrate() error {
	switch c.Version {
	case "", CurrentVersion:
		c.Version = CurrentVersion
		return nil
	case "0":
		// 0.x stored the backend URL with a trailing /api segment.
		c.API.BaseURL = strings.TrimSuffix(strings.TrimRight(c.API.BaseURL, "/"), "/api")
		c.Version = CurrentVersion
		return nil
	default:
		return fmt.Errorf("unsupported config version %q", c.Version)
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the arkiv configuration directory. ARKIV_HOME overrides
// the default ~/.arkiv.
func ConfigDir() (string, error) {
	if dir := os.Getenv("ARKIV_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".arkiv"), nil
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

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// DataDir resolves storage.data_dir, defaulting to the config directory.
func (c *Config) DataDir() (string, error) {
	if c.Storage.DataDir != "" {
		return expandHome(c.Storage.DataDir)
	}
	return ConfigDir()
}

// DatabasePath resolves the local database file.
func (c *Config) DatabasePath() (string, error) {
	return c.resolve(c.Storage.DatabaseFile)
}

// LogPath resolves the log file.
func (c *Config) LogPath() (string, error) {
	return c.resolve(c.Logging.File)
}

// MasterKeyPath is where the key-sealing master secret lives.
func (c *Config) MasterKeyPath() (string, error) {
	return c.resolve("master.key")
}

// DropDir resolves upload.drop_dir, defaulting to <data_dir>/inbox.
func (c *Config) DropDir() (string, error) {
	if c.Upload.DropDir != "" {
		return expandHome(c.Upload.DropDir)
	}
	return c.resolve("inbox")
}

// Timeout returns the per-request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSecs) * time.Second
}

// UploadTimeout returns the upload request timeout.
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.API.UploadTimeoutSecs) * time.Second
}

// Debounce returns the drop-folder debounce interval.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Upload.DebounceMs) * time.Millisecond
}

func (c *Config) resolve(name string) (string, error) {
	name, err := expandHome(name)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// ensureSecurePermissions tightens config files to 0600; they can hold the
// identity anon key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// .env files and environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	loaded := false
	if path, err := ConfigPathTOML(); err == nil && fileExists(path) {
		if err := LoadTOML(cfg, path); err != nil {
			loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			cfg = Default()
		} else {
			loaded = true
		}
	}
	if !loaded {
		if path, err := ConfigPathJSON(); err == nil && fileExists(path) {
			if err := LoadJSON(cfg, path); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
				cfg = Default()
			}
		}
	}

	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, loadErr
}

// LoadFromPath loads configuration from a specific file path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	if err := finish(cfg); err != nil {
		return nil, err
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
	return nil
}

func finish(cfg *Config) error {
	LoadDotEnv()
	cfg.ApplyEnvOverrides()
	if err := cfg.Migrate(); err != nil {
		return fmt.Errorf("config migration failed: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LoadDotEnv loads .env from the working directory and the config
// directory. Variables already set in the environment win.
func LoadDotEnv() {
	candidates := []string{".env"}
	if dir, err := ConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}
	for _, path := range candidates {
		if fileExists(path) {
			_ = godotenv.Load(path)
		}
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var sb strings.Builder
	sb.WriteString("# arkiv configuration file\n")
	sb.WriteString("# Generated by arkiv - edit with care\n\n")
	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(sb.String()), 0600); err != nil {
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

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "warning": true,
	"error": true, "fatal": true, "panic": true, "disabled": true,
}

var validThemes = map[string]bool{"auto": true, "dark": true, "light": true}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if err := validateHTTPURL(c.API.BaseURL); err != nil {
		errs = append(errs, ValidationError{Field: "api.base_url", Message: err.Error()})
	}
	if c.Identity.URL != "" {
		if err := validateHTTPURL(c.Identity.URL); err != nil {
			errs = append(errs, ValidationError{Field: "identity.url", Message: err.Error()})
		}
	}
	if c.API.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "api.timeout_secs", Message: "must not be negative"})
	}
	if c.API.UploadTimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "api.upload_timeout_secs", Message: "must not be negative"})
	}
	if c.API.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{Field: "api.requests_per_second", Message: "must not be negative"})
	}
	if c.API.Burst < 0 {
		errs = append(errs, ValidationError{Field: "api.burst", Message: "must not be negative"})
	}
	if c.Upload.DebounceMs < 0 {
		errs = append(errs, ValidationError{Field: "upload.debounce_ms", Message: "must not be negative"})
	}
	if c.Logging.Level != "" && !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s'", c.Logging.Level),
		})
	}
	if c.UI.Theme != "" && !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: auto, dark, light", c.UI.Theme),
		})
	}
	if c.UI.SidebarWidth < 0 || c.UI.SidebarWidth > 80 {
		errs = append(errs, ValidationError{Field: "ui.sidebar_width", Message: "must be between 0 and 80"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host: %q", raw)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies ARKIV_* environment variables:
//   - ARKIV_API_URL: overrides api.base_url
//   - ARKIV_IDENTITY_URL / ARKIV_IDENTITY_ANON_KEY: override identity.*
//   - ARKIV_DATA_DIR: overrides storage.data_dir
//   - ARKIV_LOG_LEVEL: overrides logging.level
//   - ARKIV_DROP_DIR: overrides upload.drop_dir
//   - ARKIV_THEME: overrides ui.theme
//   - ARKIV_ENCRYPT_KEYS: overrides storage.encrypt_keys
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("ARKIV_API_URL"); v != "" {
		c.API.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("ARKIV_IDENTITY_URL"); v != "" {
		c.Identity.URL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("ARKIV_IDENTITY_ANON_KEY"); v != "" {
		c.Identity.AnonKey = v
	}
	if v := os.Getenv("ARKIV_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("ARKIV_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ARKIV_DROP_DIR"); v != "" {
		c.Upload.DropDir = v
	}
	if v := os.Getenv("ARKIV_THEME"); v != "" {
		c.UI.Theme = v
	}
	if v := os.Getenv("ARKIV_ENCRYPT_KEYS"); v != "" {
		c.Storage.EncryptKeys = util.IsTruthy(v)
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g. "api.base_url").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks toml tags; "api.base_url" resolves Config.API.BaseURL.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	name = strings.ReplaceAll(strings.ToLower(name), "-", "_")
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("toml"), ",")[0]
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func setFieldValue(field reflect.Value, value interface{}) error {
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
		case reflect.Float64:
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(f)
			return nil
		case reflect.Bool:
			field.SetBool(util.IsTruthy(s))
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
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// AllKeys returns every settable key in dot notation, sorted.
func AllKeys() []string {
	var keys []string
	root := reflect.TypeOf(Config{})
	for i := 0; i < root.NumField(); i++ {
		f := root.Field(i)
		section := f.Tag.Get("toml")
		if f.Type.Kind() != reflect.Struct {
			keys = append(keys, section)
			continue
		}
		for j := 0; j < f.Type.NumField(); j++ {
			keys = append(keys, section+"."+f.Type.Field(j).Tag.Get("toml"))
		}
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone returns a copy of the config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String renders the config as JSON with the anon key redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Identity.AnonKey != "" {
		safe.Identity.AnonKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
