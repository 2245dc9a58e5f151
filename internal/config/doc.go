// Package config loads and validates process configuration from environment
// variables. Configuration is loaded once at startup and handed down
// explicitly; no package reads the environment on its own.
package config
