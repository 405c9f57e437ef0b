// Package config handles configuration loading, parsing, and validation
// from .env files, an optional config.yaml, and LEADGEN_-prefixed environment
// variables. It provides type-safe access to the settings of every component
// while keeping configuration details separate from business logic.
package config
