// Package config provides layered configuration loading for the metric
// service. It merges Defaults -> JSON config file -> Environment Variables,
// with validation on the merged result.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/voxisys/utapi/schema"
)

// ConfigFileEnv names the environment variable holding the path of the
// optional JSON configuration file.
const ConfigFileEnv = "UTAPI_CONFIG"

// envPrefix is stripped from environment variables before they are merged
// onto config keys, e.g. UTAPI_REDIS_HOST -> redis.host.
const envPrefix = "UTAPI_"

// RedisConfig locates the Redis backing store. An empty Host leaves Redis
// disabled.
type RedisConfig struct {
	Host string `koanf:"host" validate:"omitempty,hostname_rfc1123|ip"`
	Port int    `koanf:"port" validate:"min=0,max=65535"`
}

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool { return r.Host != "" }

// Addr returns the host:port to dial.
func (r RedisConfig) Addr() string { return net.JoinHostPort(r.Host, strconv.Itoa(r.Port)) }

// SQLiteConfig locates the SQLite backing store. An empty Path leaves
// SQLite disabled.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// Enabled reports whether a SQLite database was configured.
func (s SQLiteConfig) Enabled() bool { return s.Path != "" }

// DSN returns the sqlite3 connection string for Path. WAL keeps readers and
// the write pipeline out of each other's way; the busy timeout rides out
// short lock contention instead of failing the batch.
func (s SQLiteConfig) DSN() string {
	return "file:" + s.Path + "?_journal_mode=WAL&_busy_timeout=5000"
}

// LogConfig controls the structured log output.
type LogConfig struct {
	// Level is the minimum level emitted.
	Level string `koanf:"level" validate:"required,loglevel"`

	// DumpLevel is the level at which failed store commands are written
	// out in full detail.
	DumpLevel string `koanf:"dumpLevel" validate:"required,loglevel"`
}

// Config holds the merged runtime configuration for the metric service.
// Order of precedence (lowest -> highest): Defaults -> config file ->
// Environment.
type Config struct {
	// Addr is the listen address of the HTTP API, e.g. ":8100".
	Addr string `koanf:"addr" validate:"required,ip_port"`

	// Component names the metered service and is the one resource behind
	// service-level queries. It has no default: naming the deployment is
	// the operator's call.
	Component string `koanf:"component" validate:"required,excludes=:"`

	// Workers caps concurrent metric queries.
	Workers int `koanf:"workers" validate:"min=1"`

	// Metrics restricts recording to the named granularities when this
	// file also configures an embedding writer. Empty means all.
	Metrics []string `koanf:"metrics" validate:"dive,oneof=bucket account service"`

	Redis  RedisConfig  `koanf:"redis"`
	SQLite SQLiteConfig `koanf:"sqlite"`
	Log    LogConfig    `koanf:"log"`

	// Credentials maps access key ids onto secret keys for request
	// signature verification.
	Credentials map[string]string `koanf:"credentials" validate:"required,dive,required"`
}

// Levels converts the metrics list into schema levels. Empty means every
// granularity.
func (c *Config) Levels() []schema.Level {
	out := make([]schema.Level, 0, len(c.Metrics))
	for _, m := range c.Metrics {
		out = append(out, schema.Level(m))
	}
	return out
}

// DefaultAppConfig holds the values used when neither the config file nor
// the environment overrides them. Component and Credentials have no
// defaults and must be supplied.
var DefaultAppConfig = Config{
	Addr:    ":8100",
	Workers: 10,
	Redis:   RedisConfig{Port: 6379},
	Log:     LogConfig{Level: "info", DumpLevel: "error"},
}

// The loaders are package variables so tests can fail each stage in
// isolation.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DefaultAppConfig, "koanf"), nil)
}

var fileLoader = func(k *koanf.Koanf) error {
	path := os.Getenv(ConfigFileEnv)
	if path == "" {
		return nil
	}
	return k.Load(file.Provider(path), kjson.Parser())
}

var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(env.Opt{
		Prefix:        envPrefix,
		Delim:         ".",
		TransformFunc: envTransform,
	}), nil)
}

var registerValidators = func(v *validator.Validate) error {
	if err := v.RegisterValidation("ip_port", validIPPort); err != nil {
		return err
	}
	return v.RegisterValidation("loglevel", validLogLevel)
}

// envTransform maps UTAPI_REDIS_HOST onto redis.host and so on. Credential
// names keep their case because access key ids are case-sensitive, and
// UTAPI_CONFIG names the config file rather than a key.
func envTransform(key, value string) (string, any) {
	key = strings.TrimPrefix(key, envPrefix)
	if key == "CONFIG" {
		return "", nil
	}
	if name, ok := strings.CutPrefix(key, "CREDENTIALS_"); ok {
		return "credentials." + name, value
	}
	key = strings.ReplaceAll(strings.ToLower(key), "_", ".")
	switch key {
	case "log.dumplevel":
		key = "log.dumpLevel"
	case "metrics":
		return key, strings.Split(value, ",")
	}
	return key, value
}

// Load merges the configuration layers and validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := fileLoader(k); err != nil {
		return nil, fmt.Errorf("load config file: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	v := validator.New()
	if err := registerValidators(v); err != nil {
		return nil, err
	}
	if err := v.Struct(cfg); err != nil {
		return nil, describeInvalid(err)
	}
	if cfg.Redis.Enabled() && cfg.SQLite.Enabled() {
		return nil, errors.New("redis and sqlite are mutually exclusive backing stores")
	}
	return cfg, nil
}

// describeInvalid rewrites validator's struct-path errors into a message an
// operator can act on.
func describeInvalid(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
	}
	return errors.New("invalid configuration: " + strings.Join(parts, "; "))
}

// ParseLevel maps a configured level name onto its slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}

func validLogLevel(fl validator.FieldLevel) bool {
	_, err := ParseLevel(fl.Field().String())
	return err == nil
}

// validIPPort accepts host:port listen addresses where the host part is
// empty or an IP literal. Hostnames are rejected so a typo cannot turn into
// a DNS lookup at bind time.
func validIPPort(fl validator.FieldLevel) bool {
	host, portStr, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	if host != "" && net.ParseIP(host) == nil {
		return false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return false
	}
	return port >= 1 && port <= 65535
}
