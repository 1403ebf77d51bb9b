// Package config loads application configuration for delivery tools.
//
// Sources are applied in priority order:
//  1. Environment variables prefixed with DELIVERY_ (highest priority)
//  2. YAML configuration file
//  3. Default values (lowest priority)
//
// Environment variables map onto keys by dropping the prefix and splitting
// the section name at the first underscore: DELIVERY_CLIENT_BASE_URL sets
// client.base_url. Comma separated values become lists.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "DELIVERY_"

// Queue drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config is the complete application configuration.
type Config struct {
	Client  ClientConfig  `koanf:"client" validate:"required"`
	Retry   RetryConfig   `koanf:"retry" validate:"required"`
	Breaker BreakerConfig `koanf:"breaker"`
	Queue   QueueConfig   `koanf:"queue" validate:"required"`
	Log     LogConfig     `koanf:"log" validate:"required"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// ClientConfig configures the HTTP client used to deliver payloads.
type ClientConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Timeout time.Duration `koanf:"timeout" validate:"gte=0"`
}

// RetryConfig configures the client's retry policy.
type RetryConfig struct {
	MaxRetries        int           `koanf:"max_retries" validate:"gte=0"`
	Strategy          string        `koanf:"strategy" validate:"oneof=exponential constant fibonacci"`
	InitialDelay      time.Duration `koanf:"initial_delay" validate:"gt=0"`
	MaxDelay          time.Duration `koanf:"max_delay" validate:"gtefield=InitialDelay"`
	Multiplier        float64       `koanf:"multiplier" validate:"gte=1"`
	RetryableStatuses []int         `koanf:"retryable_statuses"`
}

// BreakerConfig configures the optional circuit breaker in front of the
// transport.
type BreakerConfig struct {
	Enabled     bool          `koanf:"enabled"`
	MaxRequests uint32        `koanf:"max_requests" validate:"gte=1"`
	Interval    time.Duration `koanf:"interval" validate:"gte=0"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
}

// QueueConfig selects and configures the payload queue.
type QueueConfig struct {
	Driver        string `koanf:"driver" validate:"oneof=memory postgres redis"`
	DSN           string `koanf:"dsn" validate:"required_if=Driver postgres"`
	Table         string `koanf:"table"`
	RedisAddr     string `koanf:"redis_addr" validate:"required_if=Driver redis"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db" validate:"gte=0"`
	RedisKey      string `koanf:"redis_key"`
}

// LogConfig configures the application logger.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// MetricsConfig toggles Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr" validate:"required_if=Enabled true"`
}

// Load reads configuration from defaults, the YAML file at path (skipped when
// path is empty) and the environment, then validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := k.Load(envprovider.ProviderWithValue(EnvPrefix, ".", envKeyValue), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"client.base_url": "http://localhost:8080",
		"client.timeout":  "30s",

		"retry.max_retries":   3,
		"retry.strategy":      "exponential",
		"retry.initial_delay": "1s",
		"retry.max_delay":     "30s",
		"retry.multiplier":    2.0,

		"breaker.enabled":      false,
		"breaker.max_requests": 1,
		"breaker.interval":     "60s",
		"breaker.timeout":      "30s",

		"queue.driver":    DriverMemory,
		"queue.table":     "payloads",
		"queue.redis_key": "delivery:payloads",

		"log.level":  "info",
		"log.format": "json",

		"metrics.enabled": false,
		"metrics.addr":    ":9090",
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}

// envKeyValue maps DELIVERY_SECTION_SOME_KEY=value to section.some_key.
func envKeyValue(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, name, ok := strings.Cut(key, "_")
	if !ok {
		return "", nil
	}
	if strings.Contains(value, ",") {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return section + "." + name, parts
	}
	return section + "." + name, value
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg against its field rules.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		messages = append(messages, fieldMessage(fe))
	}
	return errors.New(strings.Join(messages, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "gtefield":
		return fmt.Sprintf("%s must not be less than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param())
	}
}
