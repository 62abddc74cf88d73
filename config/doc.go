// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the application configuration structure
// including server settings, upstream service routes, circuit breaker tuning
// and the health cache TTL.
package config
