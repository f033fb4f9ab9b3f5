package session

import "errors"

var (
	// ErrEmailTaken is returned when register hits an existing email,
	// whether detected on the pre-flight lookup or at insert time.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials is returned for login failures. Unknown email and
	// wrong password are deliberately indistinguishable so the existence of
	// an account cannot be inferred.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRefresh is returned for rotation failures. Missing account,
	// empty refresh slot, and fingerprint mismatch are deliberately
	// indistinguishable.
	ErrInvalidRefresh = errors.New("invalid refresh")
)
