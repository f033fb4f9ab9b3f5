// Package session implements credo's auth orchestrator.
//
// It composes the account directory, the credential hasher, and the token
// codec into register / login / refresh rotation / logout, enforcing the
// single-slot refresh design: each account holds at most one valid refresh
// fingerprint, and every successful rotation or login replaces it, so a
// rotated (replayed) refresh token can never succeed twice.
//
// Transport (HTTP) integration is intentionally out of scope here.
package session
