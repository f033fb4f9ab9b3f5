package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is the reference in-process account directory.
//
// Concurrency model:
//   - mu guards the two lookup maps (insert / find).
//   - Each account record carries its own mutex, so the refresh-slot
//     read-compare-write is serialized per account while operations on
//     different accounts never contend.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*memAccount
	byEmail map[string]*memAccount
}

type memAccount struct {
	mu  sync.Mutex
	acc Account
}

// NewMemoryStore constructs an empty in-memory Store implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*memAccount),
		byEmail: make(map[string]*memAccount),
	}
}

// Create inserts a new account. Email uniqueness is enforced under the write
// lock, making the insert-if-absent atomic with respect to racing Creates.
func (s *MemoryStore) Create(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.Create"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	email := NormalizeEmail(in.Email)
	if email == "" || strings.TrimSpace(in.PasswordHash) == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email and password hash are required"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewULID(now)
	if err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return Account{}, ConflictError{Op: op, Field: "email"}
	}

	rec := &memAccount{acc: Account{
		ID:           id,
		Email:        email,
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
	}}
	s.byID[id] = rec
	s.byEmail[email] = rec

	return rec.acc, nil
}

// GetByEmail loads an account snapshot by normalized email.
func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	const op = "identity.GetByEmail"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.RLock()
	rec := s.byEmail[NormalizeEmail(email)]
	s.mu.RUnlock()

	if rec == nil {
		return Account{}, OpError{Op: op, Kind: ErrNotFound}
	}
	return rec.snapshot(), nil
}

// GetByID loads an account snapshot by identity.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (Account, error) {
	const op = "identity.GetByID"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	rec := s.find(id)
	if rec == nil {
		return Account{}, OpError{Op: op, Kind: ErrNotFound}
	}
	return rec.snapshot(), nil
}

// SetRefreshFingerprint unconditionally overwrites the refresh slot.
func (s *MemoryStore) SetRefreshFingerprint(ctx context.Context, id, fingerprint string) error {
	const op = "identity.SetRefreshFingerprint"

	if err := ctx.Err(); err != nil {
		return err
	}

	rec := s.find(id)
	if rec == nil {
		return OpError{Op: op, Kind: ErrNotFound}
	}

	rec.mu.Lock()
	rec.acc.RefreshFingerprint = fingerprint
	rec.mu.Unlock()
	return nil
}

// RotateRefreshFingerprint performs the per-account compare-and-swap under the
// record mutex: exactly one of N racing rotations with the same expected
// fingerprint succeeds.
func (s *MemoryStore) RotateRefreshFingerprint(ctx context.Context, id, expected, next string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if expected == "" || next == "" {
		return notActiveSlot()
	}

	rec := s.find(id)
	if rec == nil {
		return notActiveSlot()
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !ctEqHex64(rec.acc.RefreshFingerprint, expected) {
		return notActiveSlot()
	}
	rec.acc.RefreshFingerprint = next
	return nil
}

func (s *MemoryStore) find(id string) *memAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

func (r *memAccount) snapshot() Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acc
}
