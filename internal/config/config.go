// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MINILIBRARY_STORE_DRIVER.
const EnvPrefix = "MINILIBRARY"

// DefaultPasswordHash is the argon2id hash of "pass", the stock password.
// Generate a replacement with "catalog hash-password".
const DefaultPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$bWluaWxpYnJhcnlzYWx0IQ$XEgLPxV5bxx3+8fY26xcm22M8HisXtZ4wTX716WrAIo"

type Config struct {
	Listen          string
	ShutdownTimeout time.Duration
	Store           StoreConfig
	Auth            AuthConfig
	Log             LogConfig
	Telemetry       TelemetryConfig
}

type StoreConfig struct {
	Driver string
	DSN    string
}

type AuthConfig struct {
	Issuer       string
	Audience     string
	Secret       string
	User         string
	PasswordHash string
	TTL          time.Duration
	LoginRate    float64
	LoginBurst   int
}

type LogConfig struct {
	Level  string
	Format string
}

type TelemetryConfig struct {
	OTLPEndpoint string
	OTLPInsecure bool
	Metrics      bool
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":9999")
	v.SetDefault("shutdown-timeout", 10*time.Second)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "file:books.sqlite?_pragma=busy_timeout(5000)")

	v.SetDefault("auth.issuer", "minilibrary")
	v.SetDefault("auth.audience", "minilibrary")
	v.SetDefault("auth.secret", "minilibrary_key")
	v.SetDefault("auth.user", "user")
	v.SetDefault("auth.password-hash", DefaultPasswordHash)
	v.SetDefault("auth.ttl", 10*time.Minute)
	v.SetDefault("auth.login-rate", 1.0)
	v.SetDefault("auth.login-burst", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("telemetry.otlp-endpoint", "")
	v.SetDefault("telemetry.otlp-insecure", false)
	v.SetDefault("telemetry.metrics", true)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile merges a YAML config file into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Listen:          v.GetString("listen"),
		ShutdownTimeout: v.GetDuration("shutdown-timeout"),
		Store: StoreConfig{
			Driver: strings.ToLower(strings.TrimSpace(v.GetString("store.driver"))),
			DSN:    v.GetString("store.dsn"),
		},
		Auth: AuthConfig{
			Issuer:       v.GetString("auth.issuer"),
			Audience:     v.GetString("auth.audience"),
			Secret:       v.GetString("auth.secret"),
			User:         v.GetString("auth.user"),
			PasswordHash: v.GetString("auth.password-hash"),
			TTL:          v.GetDuration("auth.ttl"),
			LoginRate:    v.GetFloat64("auth.login-rate"),
			LoginBurst:   v.GetInt("auth.login-burst"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: v.GetString("telemetry.otlp-endpoint"),
			OTLPInsecure: v.GetBool("telemetry.otlp-insecure"),
			Metrics:      v.GetBool("telemetry.metrics"),
		},
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn: required for sql drivers"))
	}
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret: must not be empty"))
	}
	if c.Auth.Issuer == "" || c.Auth.Audience == "" {
		errs = append(errs, errors.New("auth.issuer and auth.audience: must not be empty"))
	}
	if c.Auth.User == "" {
		errs = append(errs, errors.New("auth.user: must not be empty"))
	}
	if !strings.HasPrefix(c.Auth.PasswordHash, "$argon2id$") {
		errs = append(errs, errors.New("auth.password-hash: must be an encoded argon2id hash"))
	}
	if c.Auth.TTL <= 0 {
		errs = append(errs, errors.New("auth.ttl: must be positive"))
	}
	if c.Auth.LoginRate < 0 || c.Auth.LoginBurst < 0 {
		errs = append(errs, errors.New("auth.login-rate and auth.login-burst: must not be negative"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
