package config

import (
	"cuchimail/models"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. CUCHIMAIL_SERVER_PORT
const EnvPrefix = "CUCHIMAIL"

// Collaborator drivers
const (
	DriverLocal    = "local"
	DriverSupabase = "supabase"
)

type ServerConfig struct {
	Port       int           `toml:"port" envconfig:"port"`
	BodyLimit  int           `toml:"body_limit" envconfig:"body_limit"`
	RateLimit  int           `toml:"rate_limit" envconfig:"rate_limit"`
	RateWindow time.Duration `toml:"rate_window" envconfig:"rate_window"`
}

type SessionConfig struct {
	Expiration   time.Duration `toml:"expiration" envconfig:"expiration"`
	CookieSecure bool          `toml:"cookie_secure" envconfig:"cookie_secure"`
	CacheTTL     time.Duration `toml:"cache_ttl" envconfig:"cache_ttl"`
}

type BackendConfig struct {
	Driver  string        `toml:"driver" envconfig:"driver"`
	Timeout time.Duration `toml:"timeout" envconfig:"timeout"`
}

type LocalConfig struct {
	DataDir       string        `toml:"data_dir" envconfig:"data_dir"`
	MessageEngine string        `toml:"message_engine" envconfig:"message_engine"`
	JWTSecret     string        `toml:"jwt_secret" envconfig:"jwt_secret"`
	TokenTTL      time.Duration `toml:"token_ttl" envconfig:"token_ttl"`
}

type SupabaseConfig struct {
	URL     string `toml:"url" envconfig:"url"`
	AnonKey string `toml:"anon_key" envconfig:"anon_key"`
}

type OrganizationConfig struct {
	Name           string   `toml:"name" envconfig:"name"`
	Domain         string   `toml:"domain" envconfig:"domain"`
	BlockedDomains []string `toml:"blocked_domains" envconfig:"blocked_domains"`
}

type PreferencesConfig struct {
	DefaultLanguage string `toml:"default_language" envconfig:"default_language"`
	DefaultTheme    string `toml:"default_theme" envconfig:"default_theme"`
}

type LogConfig struct {
	Level string `toml:"level" envconfig:"level"`
}

type MailboxConfig struct {
	CacheTTL time.Duration `toml:"cache_ttl" envconfig:"cache_ttl"`
}

type Config struct {
	Server       ServerConfig       `toml:"server" envconfig:"server"`
	Session      SessionConfig      `toml:"session" envconfig:"session"`
	Backend      BackendConfig      `toml:"backend" envconfig:"backend"`
	Local        LocalConfig        `toml:"local" envconfig:"local"`
	Supabase     SupabaseConfig     `toml:"supabase" envconfig:"supabase"`
	Organization OrganizationConfig `toml:"organization" envconfig:"organization"`
	Preferences  PreferencesConfig  `toml:"preferences" envconfig:"preferences"`
	Mailbox      MailboxConfig      `toml:"mailbox" envconfig:"mailbox"`
	Log          LogConfig          `toml:"log" envconfig:"log"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	var config Config

	config.Server.Port = 3000
	config.Server.BodyLimit = 1 << 20
	config.Server.RateLimit = 100
	config.Server.RateWindow = time.Minute

	config.Session.Expiration = 24 * time.Hour
	config.Session.CacheTTL = time.Minute

	config.Backend.Driver = DriverLocal
	config.Backend.Timeout = 10 * time.Second

	config.Local.DataDir = "./data"
	config.Local.MessageEngine = "bolt"
	config.Local.TokenTTL = 24 * time.Hour

	config.Organization.Name = "CuchiMail"
	config.Organization.BlockedDomains = []string{"gmail.com", "yahoo.com", "hotmail.com", "outlook.com"}

	config.Preferences.DefaultLanguage = "vi"
	config.Preferences.DefaultTheme = models.ThemeLight

	config.Mailbox.CacheTTL = 5 * time.Minute

	config.Log.Level = "info"

	return &config
}

// LoadConfig reads path onto the defaults (a missing file is fine), then
// .env, then CUCHIMAIL_* environment variables, and validates the result.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, config); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	config.Backend.Driver = strings.ToLower(strings.TrimSpace(config.Backend.Driver))
	config.Organization.Domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(config.Organization.Domain)), "@")

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects settings the server cannot start with
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, errors.New("backend.timeout must be positive"))
	}

	switch c.Backend.Driver {
	case DriverLocal:
		if c.Local.DataDir == "" {
			errs = append(errs, errors.New("local.data_dir is required"))
		}
		if c.Local.JWTSecret == "" {
			errs = append(errs, errors.New("local.jwt_secret is required"))
		}
		if c.Local.MessageEngine != "bolt" && c.Local.MessageEngine != "sqlite" {
			errs = append(errs, fmt.Errorf("local.message_engine %q must be bolt or sqlite", c.Local.MessageEngine))
		}
		if c.Local.TokenTTL <= 0 {
			errs = append(errs, errors.New("local.token_ttl must be positive"))
		}
	case DriverSupabase:
		if c.Supabase.URL == "" || c.Supabase.AnonKey == "" {
			errs = append(errs, errors.New("supabase.url and supabase.anon_key are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("backend.driver %q must be local or supabase", c.Backend.Driver))
	}

	if !models.IsLanguage(c.Preferences.DefaultLanguage) {
		errs = append(errs, fmt.Errorf("preferences.default_language %q is not supported", c.Preferences.DefaultLanguage))
	}
	if !models.IsTheme(c.Preferences.DefaultTheme) {
		errs = append(errs, fmt.Errorf("preferences.default_theme %q is not supported", c.Preferences.DefaultTheme))
	}

	return errors.Join(errs...)
}
