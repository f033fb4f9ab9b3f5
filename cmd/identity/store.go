package identity

import (
	"context"
	"time"
)

// Account is credo's canonical security principal.
//
// IMPORTANT: RefreshFingerprint is the hash of the single currently-valid
// refresh token ("" when no refresh token is valid). The plain refresh token
// is never stored server-side.
type Account struct {
	ID           string
	Email        string // normalized (lower-case, trimmed)
	PasswordHash string

	// RefreshFingerprint is the refresh slot: empty string means no active
	// refresh token. Login/register/rotate overwrite it; logout clears it.
	RefreshFingerprint string

	CreatedAt time.Time
}

// CreateAccountInput describes a registration request.
// Email must already be normalized; PasswordHash must be a PHC-encoded hash.
type CreateAccountInput struct {
	Email        string
	PasswordHash string
	Now          time.Time
}

// Store is the account directory persistence boundary.
//
// Uniqueness contract: Create enforces email uniqueness atomically at insert
// time (insert-if-absent). A pre-flight GetByEmail by the caller is only an
// optimization; racing Creates on the same email must yield exactly one
// success and ConflictError for the rest.
type Store interface {
	// Create inserts a new account with a freshly generated identity.
	// Returns ConflictError (field "email") when the email is taken.
	Create(ctx context.Context, in CreateAccountInput) (Account, error)

	// GetByEmail loads an account by normalized email. Returns ErrNotFound kind.
	GetByEmail(ctx context.Context, email string) (Account, error)

	// GetByID loads an account by identity. Returns ErrNotFound kind.
	GetByID(ctx context.Context, id string) (Account, error)

	// SetRefreshFingerprint unconditionally overwrites the refresh slot.
	// An empty fingerprint clears the slot (logout).
	SetRefreshFingerprint(ctx context.Context, id, fingerprint string) error

	// RotateRefreshFingerprint atomically replaces the refresh slot only when
	// the stored fingerprint equals expected (compare-and-swap).
	//
	// Security contract:
	//   - The compare and the write are one atomic unit per account.
	//   - Concurrent rotations presenting the same fingerprint yield exactly
	//     one success; the rest fail ErrNotActive.
	//   - Missing account, empty slot, and mismatch are indistinguishable
	//     (all ErrNotActive) to avoid probing.
	RotateRefreshFingerprint(ctx context.Context, id, expected, next string) error
}
