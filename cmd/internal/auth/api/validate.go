package authapi

import (
	"errors"
	"net/mail"
	"strings"
)

const (
	maxEmailLength = 255

	// maxLoginPasswordBytes bounds only what login will feed to the hasher.
	// It is deliberately far above any registration policy so tightening
	// that policy never locks out accounts created under a looser one.
	maxLoginPasswordBytes = 1024
)

var (
	errEmailInvalid = errors.New("email must be a valid address")
)

// validateEmail checks shape only; normalization happens in the service.
func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > maxEmailLength {
		return errEmailInvalid
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return errEmailInvalid
	}
	// Reject display-name forms like "Bob <bob@example.com>".
	if addr.Address != email {
		return errEmailInvalid
	}
	return nil
}

// plausibleLoginPassword is a structural bound, not the registration policy.
// Existing accounts may predate the current policy, so login only rejects
// values no account could ever have been created with.
func plausibleLoginPassword(password string) bool {
	return password != "" && len(password) <= maxLoginPasswordBytes
}
