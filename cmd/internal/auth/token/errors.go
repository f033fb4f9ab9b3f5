package token

import "errors"

var (
	// ErrInvalidToken is the single failure surfaced by verification.
	// Signature mismatch, expiry, wrong kind, and malformed input are
	// deliberately indistinguishable.
	ErrInvalidToken = errors.New("invalid token")

	// ErrConfig is returned for invalid codec configuration.
	ErrConfig = errors.New("invalid token config")
)
