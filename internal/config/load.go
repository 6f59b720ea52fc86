package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "PUSHTASKS"

// Load reads configuration from the optional file at path and from environment
// variables. Environment variables take precedence over values from the file.
// Returns a populated Config or an error if loading or validation fails.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.result_ttl", "24h")
	v.SetDefault("tracing.service_name", "pushtasks")
	v.SetDefault("tasks.dispatch_path", "/tasks/dispatch")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper already knows about.
	for _, key := range []string{
		"server.port", "server.log_level", "database.url", "redis.addr",
		"redis.result_ttl", "tracing.otlp_endpoint", "tracing.service_name",
		"tasks.dispatch_path", "tasks.dispatch_backend",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: config validation failed: %v", ErrImproperlyConfigured, err)
	}

	if err := checkBackendAliases(cfg.Tasks); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func checkBackendAliases(cfg TasksConfig) error {
	seen := make(map[string]struct{}, len(cfg.Backends))
	for _, b := range cfg.Backends {
		if _, dup := seen[b.Alias]; dup {
			return fmt.Errorf("%w: config validation failed: duplicate backend alias %q",
				ErrImproperlyConfigured, b.Alias)
		}
		seen[b.Alias] = struct{}{}
	}
	if cfg.DispatchBackend != "" {
		if _, ok := seen[cfg.DispatchBackend]; !ok {
			return fmt.Errorf("%w: config validation failed: dispatch backend %q is not configured",
				ErrImproperlyConfigured, cfg.DispatchBackend)
		}
	}
	return nil
}

// IsImproperlyConfigured reports whether err is a configuration error.
func IsImproperlyConfigured(err error) bool {
	return errors.Is(err, ErrImproperlyConfigured)
}
