// Package token provides one-way hashing for refresh-token fingerprints.
//
// The server never stores a refresh token verbatim; only its fingerprint
// (HMAC-SHA256 when CREDO_FINGERPRINT_HMAC_KEY is set, otherwise SHA-256)
// is persisted, so a leaked directory cannot be replayed directly.
package token
