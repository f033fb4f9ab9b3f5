package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	sectoken "credo/cmd/security/token"
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// Claims is the signed payload carried by every credo token.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Kind  string `json:"typ"`
}

// Codec signs and verifies access/refresh token pairs.
type Codec struct {
	cfg Config
}

// NewCodec builds a Codec, rejecting configurations with missing or shared
// secrets.
func NewCodec(cfg Config) (*Codec, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Codec{cfg: cfg}, nil
}

// SignAccess mints a short-lived access token bound to subject.
func (c *Codec) SignAccess(now time.Time, subject, email string) (string, time.Time, error) {
	return c.sign(now, subject, email, kindAccess, c.cfg.AccessTTL, c.cfg.AccessSecret)
}

// SignRefresh mints a refresh token bound to subject.
//
// Each refresh token carries a random jti, so two tokens minted for the same
// subject within one clock second still fingerprint differently. Rotation
// depends on this.
func (c *Codec) SignRefresh(now time.Time, subject, email string) (string, time.Time, error) {
	return c.sign(now, subject, email, kindRefresh, c.cfg.RefreshTTL, c.cfg.RefreshSecret)
}

// VerifyAccess verifies an access token and returns its claims.
func (c *Codec) VerifyAccess(tok string, now time.Time) (Claims, error) {
	return c.verify(tok, now, kindAccess, c.cfg.AccessSecret)
}

// VerifyRefresh verifies a refresh token and returns its claims.
func (c *Codec) VerifyRefresh(tok string, now time.Time) (Claims, error) {
	return c.verify(tok, now, kindRefresh, c.cfg.RefreshSecret)
}

// Fingerprint returns the deterministic server-stored hash of a refresh
// token (64 hex chars). It uses the fast token hash, never the password
// hasher.
func (c *Codec) Fingerprint(tok string) string {
	return sectoken.Fingerprint(tok, c.cfg.FingerprintHMACKey)
}

func (c *Codec) sign(now time.Time, subject, email, kind string, ttl time.Duration, secret []byte) (string, time.Time, error) {
	exp := now.Add(ttl)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: email,
		Kind:  kind,
	})

	signed, err := tok.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (c *Codec) verify(tok string, now time.Time, kind string, secret []byte) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.cfg.ClockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(tok, claims, func(_ *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Kind != kind || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return *claims, nil
}
