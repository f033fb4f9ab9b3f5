package token

import "errors"

// Public, stable errors for callers.
var (
	ErrHMACKeyMissing  = errors.New("fingerprint HMAC key missing")
	ErrHMACKeyTooShort = errors.New("fingerprint HMAC key too short")
)
