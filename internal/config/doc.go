// Package config handles configuration loading, parsing, and validation
// from a YAML file and PUSHTASKS_ environment variables. It provides type-safe
// access to application settings while keeping configuration details separate
// from task execution logic.
package config
