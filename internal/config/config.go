// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads authd configuration from a YAML file, command-line
// flags and a small set of environment variables.
package config

import (
	"errors"
	"net"
	"os"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/authd/internal/auth"
	"github.com/holomush/authd/internal/logging"
)

// Environment variables consulted when the corresponding key is unset.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvTokenSecret = "AUTHD_TOKEN_SECRET"
)

// Config is the complete authd configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http" jsonschema:"description=Public HTTP API"`
	Metrics  MetricsConfig  `koanf:"metrics" jsonschema:"description=Metrics and health probe listener"`
	Database DatabaseConfig `koanf:"database"`
	Token    TokenConfig    `koanf:"token" jsonschema:"description=Bearer token signing"`
	OTP      OTPConfig      `koanf:"otp"`
	Refresh  RefreshConfig  `koanf:"refresh"`
	Log      LogConfig      `koanf:"log"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" jsonschema:"description=Listen address,default=:5000"`
	BasePath        string        `koanf:"base_path" jsonschema:"description=Route prefix,default=/auth,pattern=^(/[A-Za-z0-9._~-]+)*$"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes" jsonschema:"minimum=1"`
	AllowedOrigins  []string      `koanf:"allowed_origins" jsonschema:"description=CORS origin glob patterns"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// MetricsConfig configures the observability listener. An empty address
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig configures PostgreSQL access.
type DatabaseConfig struct {
	URL            string        `koanf:"url" jsonschema:"description=PostgreSQL connection URL"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// TokenConfig configures the token codec.
type TokenConfig struct {
	Secret    string        `koanf:"secret" jsonschema:"description=HMAC key of at least 32 bytes"`
	Issuer    string        `koanf:"issuer"`
	AccessTTL time.Duration `koanf:"access_ttl"`
}

// OTPConfig configures one-time code issuance.
type OTPConfig struct {
	ExposeCode bool `koanf:"expose_code" jsonschema:"description=Echo issued codes in the send response; development only"`
}

// RefreshConfig configures refresh token handling.
type RefreshConfig struct {
	Rotate bool `koanf:"rotate" jsonschema:"description=Replace the refresh token on every refresh"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":5000",
			BasePath:        "/auth",
			MaxBodyBytes:    1 << 20,
			AllowedOrigins:  []string{"*"},
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Metrics:  MetricsConfig{Addr: "127.0.0.1:9100"},
		Database: DatabaseConfig{ConnectTimeout: 30 * time.Second},
		Token: TokenConfig{
			Issuer:    "authd",
			AccessTTL: auth.DefaultAccessTokenTTL,
		},
		Log: LogConfig{Format: "json", Level: "info"},
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"http-addr":        "http.addr",
	"base-path":        "http.base_path",
	"max-body-bytes":   "http.max_body_bytes",
	"allowed-origins":  "http.allowed_origins",
	"read-timeout":     "http.read_timeout",
	"write-timeout":    "http.write_timeout",
	"shutdown-timeout": "http.shutdown_timeout",
	"metrics-addr":     "metrics.addr",
	"database-url":     "database.url",
	"connect-timeout":  "database.connect_timeout",
	"token-issuer":     "token.issuer",
	"access-ttl":       "token.access_ttl",
	"expose-otp":       "otp.expose_code",
	"rotate-refresh":   "refresh.rotate",
	"log-format":       "log.format",
	"log-level":        "log.level",
}

// RegisterFlags adds the configuration flags to flags with the built-in
// defaults. The token secret has no flag; it belongs in the file or the
// environment.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Defaults()
	flags.String("http-addr", d.HTTP.Addr, "public API listen address")
	flags.String("base-path", d.HTTP.BasePath, "route prefix for the API")
	flags.Int64("max-body-bytes", d.HTTP.MaxBodyBytes, "maximum request body size")
	flags.StringSlice("allowed-origins", d.HTTP.AllowedOrigins, "CORS origin glob patterns")
	flags.Duration("read-timeout", d.HTTP.ReadTimeout, "HTTP read timeout")
	flags.Duration("write-timeout", d.HTTP.WriteTimeout, "HTTP write timeout")
	flags.Duration("shutdown-timeout", d.HTTP.ShutdownTimeout, "graceful shutdown timeout")
	flags.String("metrics-addr", d.Metrics.Addr, "metrics and health listen address (empty disables)")
	flags.String("database-url", "", "PostgreSQL URL (default $"+EnvDatabaseURL+")")
	flags.Duration("connect-timeout", d.Database.ConnectTimeout, "database connect timeout")
	flags.String("token-issuer", d.Token.Issuer, "token issuer claim")
	flags.Duration("access-ttl", d.Token.AccessTTL, "access token lifetime")
	flags.Bool("expose-otp", false, "return issued OTP codes in responses (development only)")
	flags.Bool("rotate-refresh", false, "rotate refresh tokens on refresh")
	flags.String("log-format", d.Log.Format, "log format (json, text)")
	flags.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
}

// Load builds the configuration. Precedence, lowest first: flag defaults,
// the YAML file at path, flags set on the command line. When required is
// false a missing file is skipped. flags may be nil.
func Load(path string, required bool, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
		switch {
		case errors.Is(err, os.ErrNotExist) && !required:
		case err != nil:
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		default:
			if err := ValidateSchema(data); err != nil {
				return nil, oops.Code("CONFIG_SCHEMA_INVALID").With("path", path).Wrap(err)
			}
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, oops.Code("CONFIG_PARSE_FAILED").With("path", path).Wrap(err)
			}
		}
	}

	// Unchanged flags carry the defaults for keys the file left unset.
	if flags == nil {
		flags = pflag.NewFlagSet("defaults", pflag.ContinueOnError)
		RegisterFlags(flags)
	}
	provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv(EnvDatabaseURL)
	}
	if cfg.Token.Secret == "" {
		cfg.Token.Secret = os.Getenv(EnvTokenSecret)
	}
}

// Validate checks values the schema cannot express. Database and secret
// presence is checked separately by commands that need them.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	if _, _, err := net.SplitHostPort(c.HTTP.Addr); err != nil {
		return invalid("http.addr", "http.addr %q is not host:port", c.HTTP.Addr)
	}
	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			return invalid("metrics.addr", "metrics.addr %q is not host:port", c.Metrics.Addr)
		}
	}
	if c.HTTP.BasePath != "" && (!strings.HasPrefix(c.HTTP.BasePath, "/") || strings.HasSuffix(c.HTTP.BasePath, "/")) {
		return invalid("http.base_path", "http.base_path must start with / and not end with /")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return invalid("http.max_body_bytes", "http.max_body_bytes must be positive")
	}
	for _, origin := range c.HTTP.AllowedOrigins {
		if _, err := glob.Compile(origin); err != nil {
			return invalid("http.allowed_origins", "bad origin pattern %q: %v", origin, err)
		}
	}
	for key, d := range map[string]time.Duration{
		"http.read_timeout":        c.HTTP.ReadTimeout,
		"http.write_timeout":       c.HTTP.WriteTimeout,
		"http.shutdown_timeout":    c.HTTP.ShutdownTimeout,
		"database.connect_timeout": c.Database.ConnectTimeout,
		"token.access_ttl":         c.Token.AccessTTL,
	} {
		if d <= 0 {
			return invalid(key, "%s must be positive", key)
		}
	}
	if c.Token.Issuer == "" {
		return invalid("token.issuer", "token.issuer cannot be empty")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be json or text")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "log.level %q is not a level", c.Log.Level)
	}
	return nil
}

// RequireDatabase checks that a database URL is configured.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			With("key", "database.url").
			Errorf("database.url is required (or set $%s)", EnvDatabaseURL)
	}
	return nil
}

// RequireTokenSecret checks that a usable signing secret is configured.
func (c *Config) RequireTokenSecret() error {
	if len(c.Token.Secret) < auth.MinTokenSecretLength {
		return oops.Code("CONFIG_INVALID").
			With("key", "token.secret").
			Errorf("token.secret must be at least %d bytes (or set $%s)", auth.MinTokenSecretLength, EnvTokenSecret)
	}
	return nil
}
