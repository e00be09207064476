package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	appLog "sharecal/internal/log"
)

// Environment variables that override file values.
const (
	EnvConfigPath = "SHARECAL_CONFIG"
	EnvDBPath     = "SHARECAL_DB_PATH"
	EnvLogLevel   = "SHARECAL_LOG_LEVEL"
)

// DefaultPath is used when neither -config nor SHARECAL_CONFIG is given.
const DefaultPath = "./var/config.yaml"

const (
	defaultListen         = "127.0.0.1:8080"
	defaultDBPath         = "./var/sharecal.db"
	defaultLogLevel       = "info"
	defaultTitleMaxLength = 50
)

// ExportConfig controls the scheduled iCalendar export.
type ExportConfig struct {
	// Path is where the .ics file is written. Empty disables export.
	Path string `yaml:"path" json:"path"`
	// Schedule is a cron expression (e.g. "*/15 * * * *"). Empty means the
	// file is only written on demand.
	Schedule string `yaml:"schedule" json:"schedule"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the HTTP API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used to pick "today" and to anchor timed
	// events (e.g. "Europe/Berlin"). Empty means the host's local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DBPath is the SQLite database file backing the calendar store.
	DBPath string `yaml:"db_path" json:"db_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// TitleMaxLength caps titles prepared from shared text.
	TitleMaxLength int `yaml:"title_max_length" json:"title_max_length"`

	Export ExportConfig `yaml:"export" json:"export"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         defaultListen,
		DBPath:         defaultDBPath,
		LogLevel:       defaultLogLevel,
		TitleMaxLength: defaultTitleMaxLength,
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.DBPath == "" {
		c.DBPath = defaultDBPath
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = defaultLogLevel
	}
	if c.TitleMaxLength <= 0 {
		c.TitleMaxLength = defaultTitleMaxLength
	}
	c.Export.Schedule = strings.TrimSpace(c.Export.Schedule)
}

// Location resolves Timezone, falling back to time.Local when it is empty
// or unknown. An unknown zone is logged once per name.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		if _, seen := badTimezones.LoadOrStore(c.Timezone, struct{}{}); !seen {
			appLog.Warn("unknown timezone, using local time", "timezone", c.Timezone, "local", time.Local.String(), "error", err.Error())
		}
		return time.Local
	}
	return loc
}

// badTimezones holds zone names already reported by Location.
var badTimezones sync.Map

// ApplyEnv overrides file values from the process environment. A .env file
// in the working directory is loaded first if present; variables already set
// in the environment win over it.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	c.Normalize()
}

// ResolvePath picks the config file: flagValue if set, then SHARECAL_CONFIG
// (from the environment or .env), then DefaultPath.
func ResolvePath(flagValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	_ = godotenv.Load()
	if v := strings.TrimSpace(os.Getenv(EnvConfigPath)); v != "" {
		return v
	}
	return DefaultPath
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist a default config is written there with 0600
// permissions and returned. Otherwise the file is decoded and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Caller decides whether an unwritable default is fatal.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// WriteFileAtomic writes data next to path and renames it into place so
// readers never observe a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
