// Package token implements credo's token codec.
//
// It signs and verifies short-lived access tokens and longer-lived refresh
// tokens as HS256 JWTs carrying the subject identity, the account email, and
// a kind ("typ") claim. Access and refresh tokens use distinct secrets so a
// leaked access-signing key cannot forge refresh tokens.
//
// Every verification failure (bad signature, expiry, wrong kind, malformed
// input) collapses into the single ErrInvalidToken to avoid oracle leakage.
package token
