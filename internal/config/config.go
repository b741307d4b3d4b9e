package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. PARLEY_SERVER_BASE_URL.
const EnvPrefix = "PARLEY"

// Config holds all configurable parley settings.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Transport  TransportConfig  `mapstructure:"transport"`
	Approval   ApprovalConfig   `mapstructure:"approval"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type TransportConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type ApprovalConfig struct {
	// ReopenOnFailure keeps the proposal decidable after a failed submission.
	ReopenOnFailure bool `mapstructure:"reopen_on_failure"`
}

type TranscriptConfig struct {
	Dir      string `mapstructure:"dir"`
	Format   string `mapstructure:"format"` // "markdown" | "json"
	Autosave bool   `mapstructure:"autosave"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	File     string `mapstructure:"file"`
	Encoding string `mapstructure:"encoding"` // "json" | "console"
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		Server:     ServerConfig{BaseURL: "http://127.0.0.1:8000"},
		Transport:  TransportConfig{Timeout: 60 * time.Second},
		Transcript: TranscriptConfig{Dir: ".", Format: "markdown"},
		Log: LogConfig{
			Level:    "info",
			File:     defaultLogFile(),
			Encoding: "json",
		},
	}
}

// defaultLogFile returns $XDG_STATE_HOME/parley/parley.log, falling back to
// ~/.local/state. Empty if no home directory can be found.
func defaultLogFile() string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "parley", "parley.log")
}

// Dir returns the parley config directory, ~/.config/parley.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "parley"), nil
}

// LoadGlobal reads ~/.config/parley/config.{json,yaml,yml}.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return loadFile(filepath.Join(dir, "config"), true)
}

// LoadProject reads .parley.{json,yaml,yml} in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(".parley", false)
}

var extensions = []string{".json", ".yaml", ".yml"}

// loadFile reads the first of base+ext that exists.
// If returnDefaults is true, returns defaults when no file is present.
// If returnDefaults is false, returns nil when no file is present.
func loadFile(base string, returnDefaults bool) (*Config, error) {
	var path string
	for _, ext := range extensions {
		if _, err := os.Stat(base + ext); err == nil {
			path = base + ext
			break
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if path == "" {
		if returnDefaults {
			d := Defaults()
			return &d, nil
		}
		return nil, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults. Boolean options are
// enable-only: setting one in either file turns it on.
func Merge(global, project *Config) Config {
	result := Defaults()
	for _, src := range []*Config{global, project} {
		if src == nil {
			continue
		}
		setString(&result.Server.BaseURL, src.Server.BaseURL)
		if src.Transport.Timeout > 0 {
			result.Transport.Timeout = src.Transport.Timeout
		}
		result.Approval.ReopenOnFailure = result.Approval.ReopenOnFailure || src.Approval.ReopenOnFailure
		setString(&result.Transcript.Dir, src.Transcript.Dir)
		setString(&result.Transcript.Format, src.Transcript.Format)
		result.Transcript.Autosave = result.Transcript.Autosave || src.Transcript.Autosave
		setString(&result.Log.Level, src.Log.Level)
		setString(&result.Log.File, src.Log.File)
		setString(&result.Log.Encoding, src.Log.Encoding)
	}
	return result
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// ApplyEnv overrides cfg with any PARLEY_* environment variables that are set.
// Unlike files, the environment may switch boolean options off.
func ApplyEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range []string{
		"server.base_url", "transport.timeout", "approval.reopen_on_failure",
		"transcript.dir", "transcript.format", "transcript.autosave",
		"log.level", "log.file", "log.encoding",
	} {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}

	if v.IsSet("server.base_url") {
		cfg.Server.BaseURL = v.GetString("server.base_url")
	}
	if v.IsSet("transport.timeout") {
		d, err := time.ParseDuration(v.GetString("transport.timeout"))
		if err != nil {
			return fmt.Errorf("%s_TRANSPORT_TIMEOUT: %w", EnvPrefix, err)
		}
		cfg.Transport.Timeout = d
	}
	if v.IsSet("approval.reopen_on_failure") {
		cfg.Approval.ReopenOnFailure = v.GetBool("approval.reopen_on_failure")
	}
	if v.IsSet("transcript.dir") {
		cfg.Transcript.Dir = v.GetString("transcript.dir")
	}
	if v.IsSet("transcript.format") {
		cfg.Transcript.Format = v.GetString("transcript.format")
	}
	if v.IsSet("transcript.autosave") {
		cfg.Transcript.Autosave = v.GetBool("transcript.autosave")
	}
	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}
	if v.IsSet("log.file") {
		cfg.Log.File = v.GetString("log.file")
	}
	if v.IsSet("log.encoding") {
		cfg.Log.Encoding = v.GetString("log.encoding")
	}
	return nil
}

// Load resolves the effective configuration: defaults, then the global file,
// then the project file, then the environment.
func Load() (Config, error) {
	global, err := LoadGlobal()
	if err != nil {
		return Config{}, err
	}
	project, err := LoadProject()
	if err != nil {
		return Config{}, err
	}
	cfg := Merge(global, project)
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.base_url %q is not an absolute URL", c.Server.BaseURL)
	}
	if c.Transport.Timeout <= 0 {
		return fmt.Errorf("transport.timeout must be positive, got %s", c.Transport.Timeout)
	}
	switch c.Transcript.Format {
	case "markdown", "json":
	default:
		return fmt.Errorf("transcript.format must be markdown or json, got %q", c.Transcript.Format)
	}
	switch c.Log.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("log.encoding must be json or console, got %q", c.Log.Encoding)
	}
	return nil
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Entry is one effective setting in key = value form.
type Entry struct {
	Key   string
	Value string
}

// Entries lists every setting in a stable order, keyed as in config files.
func (c Config) Entries() []Entry {
	return []Entry{
		{"server.base_url", c.Server.BaseURL},
		{"transport.timeout", c.Transport.Timeout.String()},
		{"approval.reopen_on_failure", strconv.FormatBool(c.Approval.ReopenOnFailure)},
		{"transcript.dir", c.Transcript.Dir},
		{"transcript.format", c.Transcript.Format},
		{"transcript.autosave", strconv.FormatBool(c.Transcript.Autosave)},
		{"log.level", c.Log.Level},
		{"log.file", c.Log.File},
		{"log.encoding", c.Log.Encoding},
	}
}
