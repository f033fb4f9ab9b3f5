// Package authapi exposes the credential and session endpoints over HTTP:
// register, login, refresh, logout, and the bearer-protected account view.
//
// The package owns transport concerns only: JSON decoding, input validation,
// the refresh cookie, per-IP rate limiting, and mapping session errors to
// wire codes. All account and token semantics live in the session service.
package authapi
