// Package config provides configuration management for DB Sentinel.
// It uses Viper to load settings from files and environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Auth backends accepted by auth_backend.
const (
	AuthBackendStatic = "static"
	AuthBackendSQLite = "sqlite"
)

// Config holds all runtime configuration for DB Sentinel.
type Config struct {
	// ── HTTP ─────────────────────────────────────────────────────────────────
	ListenHost string `mapstructure:"listen_host"`
	ListenPort int    `mapstructure:"listen_port"`

	// ── Telemetry store (PostgreSQL) ─────────────────────────────────────────
	DBHost               string `mapstructure:"db_host"`
	DBPort               int    `mapstructure:"db_port"`
	DBName               string `mapstructure:"db_name"`
	DBUser               string `mapstructure:"db_user"`
	DBPass               string `mapstructure:"db_pass"`
	DBSSLMode            string `mapstructure:"db_sslmode"`
	DBConnectTimeoutSecs int    `mapstructure:"db_connect_timeout_seconds"`
	DBMaxOpenConns       int    `mapstructure:"db_max_open_conns"`
	HistoryLimit         int    `mapstructure:"history_limit"`
	SessionLimit         int    `mapstructure:"session_limit"`

	// ── Diagnostic ───────────────────────────────────────────────────────────
	GeminiKey          string `mapstructure:"gemini_key"`
	GeminiModel        string `mapstructure:"gemini_model"`
	GeminiBaseURL      string `mapstructure:"gemini_base_url"` // empty = SDK default
	ProjectRef         string `mapstructure:"project_ref"`
	DiagnosticLanguage string `mapstructure:"diagnostic_language"`

	// ── Security ─────────────────────────────────────────────────────────────
	// JWTSecret signs the view-state tokens handed to the browser.
	JWTSecret     string `mapstructure:"jwt_secret"`
	TokenTTLHours int    `mapstructure:"token_ttl_hours"`
	// AuthBackend selects the Authenticator: "static" checks AdminUser against
	// AdminPassHash, "sqlite" checks the users table in UsersDBPath.
	AuthBackend   string `mapstructure:"auth_backend"`
	AdminUser     string `mapstructure:"admin_user"`
	AdminPassHash string `mapstructure:"admin_pass_hash"` // bcrypt
	UsersDBPath   string `mapstructure:"users_db_path"`

	// ── Logging ──────────────────────────────────────────────────────────────
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // console | json

	// ── Agent ────────────────────────────────────────────────────────────────
	AgentInterval    int `mapstructure:"agent_interval_seconds"`
	AgentSlowQueryMs int `mapstructure:"agent_slow_query_ms"`
}

// Load reads config from file (./config.yaml or ~/.dbsentinel/config.yaml)
// and falls back to defaults. Environment variables with prefix SENTINEL_
// override file values.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.dbsentinel")
	if err := v.ReadInConfig(); err != nil {
		// config file is optional; ignore "not found" errors
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return fromViper(v)
}

// LoadFile reads config from an explicit path. Environment overrides still apply.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_host", "0.0.0.0")
	v.SetDefault("listen_port", 8501)

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 6543) // Supabase transaction pooler
	v.SetDefault("db_name", "postgres")
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_pass", "")
	v.SetDefault("db_sslmode", "require")
	v.SetDefault("db_connect_timeout_seconds", 10)
	v.SetDefault("db_max_open_conns", 1)
	v.SetDefault("history_limit", 20)
	v.SetDefault("session_limit", 10)

	v.SetDefault("gemini_key", "")
	v.SetDefault("gemini_model", "gemini-2.0-flash")
	v.SetDefault("gemini_base_url", "")
	v.SetDefault("project_ref", "")
	v.SetDefault("diagnostic_language", "English")

	v.SetDefault("jwt_secret", "")
	v.SetDefault("token_ttl_hours", 24)
	v.SetDefault("auth_backend", AuthBackendStatic)
	v.SetDefault("admin_user", "admin")
	v.SetDefault("admin_pass_hash", "")
	v.SetDefault("users_db_path", "dbsentinel.db")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	v.SetDefault("agent_interval_seconds", 60)
	v.SetDefault("agent_slow_query_ms", 1000)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings the dashboard server depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("listen_port %d out of range", c.ListenPort))
	}
	if c.DBPort <= 0 || c.DBPort > 65535 {
		errs = append(errs, fmt.Errorf("db_port %d out of range", c.DBPort))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("history_limit must be positive, got %d", c.HistoryLimit))
	}
	if c.SessionLimit <= 0 {
		errs = append(errs, fmt.Errorf("session_limit must be positive, got %d", c.SessionLimit))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	switch c.AuthBackend {
	case AuthBackendStatic:
		if c.AdminPassHash == "" {
			errs = append(errs, errors.New("admin_pass_hash is required for the static auth backend"))
		}
	case AuthBackendSQLite:
		if c.UsersDBPath == "" {
			errs = append(errs, errors.New("users_db_path is required for the sqlite auth backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported auth_backend %q (use 'static' or 'sqlite')", c.AuthBackend))
	}
	return errors.Join(errs...)
}

// PostgresDSN renders the keyword/value connection string for the telemetry store.
func (c *Config) PostgresDSN() string {
	parts := []string{
		"host=" + quoteDSN(c.DBHost),
		fmt.Sprintf("port=%d", c.DBPort),
		"dbname=" + quoteDSN(c.DBName),
		"user=" + quoteDSN(c.DBUser),
	}
	if c.DBPass != "" {
		parts = append(parts, "password="+quoteDSN(c.DBPass))
	}
	if c.DBSSLMode != "" {
		parts = append(parts, "sslmode="+c.DBSSLMode)
	}
	if c.DBConnectTimeoutSecs > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", c.DBConnectTimeoutSecs))
	}
	return strings.Join(parts, " ")
}

// TokenTTL is the lifetime of a view-state token.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// ListenAddr is the host:port the HTTP server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort)
}

// quoteDSN single-quotes a DSN value when it is empty or holds spaces or quotes.
func quoteDSN(s string) string {
	if s != "" && !strings.ContainsAny(s, ` '\`) {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}
