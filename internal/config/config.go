package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Tasks    TasksConfig    `mapstructure:"tasks" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains database settings. The database is optional: without
// a URL no results are persisted and enqueue-on-commit runs in autocommit mode.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// RedisConfig configures the optional result cache.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr" validate:"omitempty,hostname_port"`
	ResultTTL time.Duration `mapstructure:"result_ttl" validate:"gte=0"`
}

// TracingConfig configures OpenTelemetry export. An empty endpoint disables export.
type TracingConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" validate:"required"`
}

// TasksConfig lists the configured task backends and the dispatch endpoint.
type TasksConfig struct {
	// DispatchPath is the route the push queue calls back on.
	DispatchPath string `mapstructure:"dispatch_path" validate:"required,startswith=/"`

	// DispatchBackend names the backend governing the dispatch endpoint.
	// When empty the first cloudtasks backend is used.
	DispatchBackend string `mapstructure:"dispatch_backend"`

	Backends []BackendConfig `mapstructure:"backends" validate:"dive"`
}

// BackendConfig describes one task backend. Options are kind-specific and are
// checked by the backend itself at first use.
type BackendConfig struct {
	Alias   string         `mapstructure:"alias" validate:"required"`
	Kind    string         `mapstructure:"kind" validate:"required,oneof=cloudtasks immediate"`
	Queues  []string       `mapstructure:"queues"`
	Options map[string]any `mapstructure:"options"`
}
