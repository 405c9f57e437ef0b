// Package ciutil provides helpers for tests that depend on external services
// such as PostgreSQL and Redis. It detects CI environments and decides whether
// a missing service should skip a test or fail it.
package ciutil
