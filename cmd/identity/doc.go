// Package identity implements credo's account directory.
//
// It holds the canonical Account record (normalized email, password hash,
// refresh fingerprint slot) and the Store persistence boundary with two
// implementations: an in-memory store for tests and single-node deployments,
// and a Postgres store behind the same interface.
//
// This package is intentionally dependency-light and security-first.
package identity
