package ciutil

import (
	"log/slog"
	"os"
	"strconv"
	"testing"

	"github.com/phrazzld/leadgen-api/internal/redact"
)

// Common environment variable names used across the codebase.
const (
	// CI environment detection variables
	EnvCI            = "CI"
	EnvGitHubActions = "GITHUB_ACTIONS"
	EnvGitLabCI      = "GITLAB_CI"
	EnvJenkinsURL    = "JENKINS_URL"
	EnvCircleCI      = "CIRCLECI"

	// Test service connection variables, preferred name first
	EnvTestDBURL    = "LEADGEN_TEST_DB_URL"
	EnvDatabaseURL  = "DATABASE_URL"
	EnvTestRedisURL = "LEADGEN_TEST_REDIS_URL"
	EnvRedisURL     = "REDIS_URL"

	// Flags that turn a missing service into a test failure
	EnvRequireDB    = "TEST_REQUIRE_DB"
	EnvRequireRedis = "TEST_REQUIRE_REDIS"
)

// DefaultTestRedisURL points at database 15 of a local Redis so tests stay
// clear of development data.
const DefaultTestRedisURL = "redis://localhost:6379/15"

// IsCI returns true if the current environment is a CI environment.
func IsCI() bool {
	for _, name := range []string{EnvCI, EnvGitHubActions, EnvGitLabCI, EnvJenkinsURL, EnvCircleCI} {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

// GetEnvWithFallbacks returns the value of the first non-empty environment variable
// from envVars, or defaultValue when none is set. Using anything but the first
// name is logged as a warning with the value redacted.
func GetEnvWithFallbacks(envVars []string, defaultValue string, logger *slog.Logger) string {
	for i, envVar := range envVars {
		if val := os.Getenv(envVar); val != "" {
			if i > 0 && logger != nil {
				logger.Warn("using fallback environment variable",
					"used_var", envVar,
					"preferred_var", envVars[0],
					"value", redact.String(val))
			}
			return val
		}
	}
	return defaultValue
}

// ServiceRequired reports whether a missing external service should fail the
// test. An explicit boolean in flagVar wins; otherwise services are required
// in CI.
func ServiceRequired(flagVar string) bool {
	if raw := os.Getenv(flagVar); raw != "" {
		required, err := strconv.ParseBool(raw)
		return err == nil && required
	}
	return IsCI()
}

// SkipOrFail stops the test because a service is unavailable: it fails when
// ServiceRequired(flagVar) and skips otherwise.
func SkipOrFail(t testing.TB, flagVar, reason string) {
	t.Helper()
	if ServiceRequired(flagVar) {
		t.Fatalf("%s (set %s=false to skip)", reason, flagVar)
	}
	t.Skip(reason)
}

// GetTestDatabaseURL returns the PostgreSQL URL for integration tests, or ""
// when none is configured.
func GetTestDatabaseURL(logger *slog.Logger) string {
	return GetEnvWithFallbacks([]string{EnvTestDBURL, EnvDatabaseURL}, "", logger)
}

// GetTestRedisURL returns the Redis URL for integration tests.
func GetTestRedisURL(logger *slog.Logger) string {
	return GetEnvWithFallbacks([]string{EnvTestRedisURL, EnvRedisURL}, DefaultTestRedisURL, logger)
}
