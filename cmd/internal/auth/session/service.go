package session

import (
	"context"
	"time"

	"credo/cmd/identity"
	"credo/cmd/internal/auth/token"
)

// TokenCodec is the token boundary the orchestrator depends on.
// *token.Codec satisfies it.
type TokenCodec interface {
	SignAccess(now time.Time, subject, email string) (string, time.Time, error)
	SignRefresh(now time.Time, subject, email string) (string, time.Time, error)
	VerifyAccess(tok string, now time.Time) (token.Claims, error)
	VerifyRefresh(tok string, now time.Time) (token.Claims, error)
	Fingerprint(tok string) string
}

// CredentialHasher is the password boundary. password.Config satisfies it.
type CredentialHasher interface {
	Hash(password string) (string, error)
	Verify(encodedHash, password string) (bool, error)
}

// Pair is a freshly minted access + refresh token pair.
type Pair struct {
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// Result is the outcome of a successful register/login/rotate.
type Result struct {
	Account identity.Account
	Pair    Pair
}

// Service is the auth orchestrator. Each operation is a single logical
// transaction against one account; per-account atomicity of the refresh-slot
// read-modify-write is delegated to Store.RotateRefreshFingerprint.
type Service struct {
	store  identity.Store
	codec  TokenCodec
	hasher CredentialHasher

	// dummyHash keeps login timing stable when the account does not exist.
	dummyHash string
}

// NewService constructs a Service with the provided collaborators.
func NewService(store identity.Store, codec TokenCodec, hasher CredentialHasher) *Service {
	s := &Service{store: store, codec: codec, hasher: hasher}

	// Best-effort: a failed dummy hash only weakens timing resistance,
	// it never blocks startup.
	if h, err := hasher.Hash("dummy-password-for-timing-only"); err == nil {
		s.dummyHash = h
	}
	return s
}

// Register creates an account and issues its first token pair.
//
// The pre-flight email lookup exists only to fail fast with ErrEmailTaken;
// uniqueness is guaranteed by the store's atomic insert, and a conflict at
// insert time maps to the same error regardless of the earlier lookup.
func (s *Service) Register(ctx context.Context, now time.Time, email, password string) (Result, error) {
	email = identity.NormalizeEmail(email)

	if _, err := s.store.GetByEmail(ctx, email); err == nil {
		return Result{}, ErrEmailTaken
	} else if !identity.IsNotFound(err) {
		return Result{}, err
	}

	pwHash, err := s.hasher.Hash(password)
	if err != nil {
		return Result{}, err
	}

	acc, err := s.store.Create(ctx, identity.CreateAccountInput{
		Email:        email,
		PasswordHash: pwHash,
		Now:          now,
	})
	if err != nil {
		if identity.IsConflict(err) {
			return Result{}, ErrEmailTaken
		}
		return Result{}, err
	}

	return s.issue(ctx, now, acc)
}

// Login authenticates an account and issues a fresh pair, overwriting any
// previous refresh slot (logging in on a new device invalidates the old
// refresh token; single-slot by design).
func (s *Service) Login(ctx context.Context, now time.Time, email, password string) (Result, error) {
	acc, err := s.store.GetByEmail(ctx, identity.NormalizeEmail(email))
	if err != nil {
		if identity.IsNotFound(err) {
			// Timing resistance: burn a verify even when the account is missing.
			if s.dummyHash != "" {
				_, _ = s.hasher.Verify(s.dummyHash, password)
			}
			return Result{}, ErrInvalidCredentials
		}
		return Result{}, err
	}

	ok, err := s.hasher.Verify(acc.PasswordHash, password)
	if err != nil || !ok {
		return Result{}, ErrInvalidCredentials
	}

	return s.issue(ctx, now, acc)
}

// RotateRefresh exchanges a verified refresh token for a brand-new pair.
//
// The caller must already have verified the token's signature and expiry via
// the codec and extracted subject from its claims. The compare-and-swap on
// the stored fingerprint makes rotation single-use: presenting the same
// token twice succeeds at most once.
func (s *Service) RotateRefresh(ctx context.Context, now time.Time, subject, presentedRefresh string) (Result, error) {
	acc, err := s.store.GetByID(ctx, subject)
	if err != nil {
		if identity.IsNotFound(err) {
			return Result{}, ErrInvalidRefresh
		}
		return Result{}, err
	}

	access, accessExp, err := s.codec.SignAccess(now, acc.ID, acc.Email)
	if err != nil {
		return Result{}, err
	}
	refresh, refreshExp, err := s.codec.SignRefresh(now, acc.ID, acc.Email)
	if err != nil {
		return Result{}, err
	}

	// The swap either fully commits the new fingerprint or leaves the old
	// slot intact; a losing racer's freshly minted pair is simply discarded.
	err = s.store.RotateRefreshFingerprint(ctx, acc.ID,
		s.codec.Fingerprint(presentedRefresh),
		s.codec.Fingerprint(refresh),
	)
	if err != nil {
		if identity.IsNotActive(err) {
			return Result{}, ErrInvalidRefresh
		}
		return Result{}, err
	}

	return Result{
		Account: acc,
		Pair: Pair{
			AccessToken:  access,
			AccessExp:    accessExp,
			RefreshToken: refresh,
			RefreshExp:   refreshExp,
		},
	}, nil
}

// Logout clears the refresh slot. Idempotent: clearing an already-empty slot
// or an unknown identity is not an error.
func (s *Service) Logout(ctx context.Context, subject string) error {
	err := s.store.SetRefreshFingerprint(ctx, subject, "")
	if err != nil && !identity.IsNotFound(err) {
		return err
	}
	return nil
}

// issue mints a pair and overwrites the refresh slot unconditionally
// (register and login always start a new session).
func (s *Service) issue(ctx context.Context, now time.Time, acc identity.Account) (Result, error) {
	access, accessExp, err := s.codec.SignAccess(now, acc.ID, acc.Email)
	if err != nil {
		return Result{}, err
	}
	refresh, refreshExp, err := s.codec.SignRefresh(now, acc.ID, acc.Email)
	if err != nil {
		return Result{}, err
	}

	if err := s.store.SetRefreshFingerprint(ctx, acc.ID, s.codec.Fingerprint(refresh)); err != nil {
		return Result{}, err
	}

	return Result{
		Account: acc,
		Pair: Pair{
			AccessToken:  access,
			AccessExp:    accessExp,
			RefreshToken: refresh,
			RefreshExp:   refreshExp,
		},
	}, nil
}
