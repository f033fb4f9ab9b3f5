package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the account directory over PostgreSQL.
//
// Expected schema (managed externally):
//
//	CREATE TABLE credo.accounts (
//	    id                  text PRIMARY KEY,
//	    email               text NOT NULL,
//	    password_hash       text NOT NULL,
//	    refresh_fingerprint text NOT NULL DEFAULT '',
//	    created_at          timestamptz NOT NULL
//	);
//	CREATE UNIQUE INDEX uq_accounts_email ON credo.accounts (email);
//
// Design notes:
//   - The pgx pool is owned by the caller; this store must NOT close it.
//   - Email uniqueness is enforced by the unique index; a 23505 at insert
//     time maps to ConflictError regardless of any earlier lookup.
//   - RotateRefreshFingerprint is serialized via SELECT ... FOR UPDATE on the
//     account row, then a constant-time compare in Go before the write.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// Option configures a PostgresStore.
type Option func(*PostgresStore)

// WithSchema overrides the default "credo" schema.
func WithSchema(schema string) Option {
	return func(s *PostgresStore) {
		if v := strings.TrimSpace(schema); v != "" {
			s.schema = v
		}
	}
}

// NewPostgresStore constructs a PostgresStore using the "credo" schema.
func NewPostgresStore(pool *pgxpool.Pool, opts ...Option) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	s := &PostgresStore{pool: pool, schema: "credo"}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "accounts"}.Sanitize()
}

// Create inserts a new account, relying on the unique email index for
// atomic insert-if-absent semantics.
func (s *PostgresStore) Create(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.Create"

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

	_, err = s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, email, password_hash, refresh_fingerprint, created_at)
		VALUES ($1, $2, $3, '', $4)
	`, s.table()), id, email, in.PasswordHash, now)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return Account{}, ConflictError{Op: op, Field: "email"}
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return Account{ID: id, Email: email, PasswordHash: in.PasswordHash, CreatedAt: now}, nil
}

// GetByEmail loads an account by normalized email.
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	return s.getWhere(ctx, "identity.GetByEmail", "email", NormalizeEmail(email))
}

// GetByID loads an account by identity.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Account, error) {
	return s.getWhere(ctx, "identity.GetByID", "id", id)
}

func (s *PostgresStore) getWhere(ctx context.Context, op, col, val string) (Account, error) {
	var acc Account
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, email, password_hash, refresh_fingerprint, created_at
		FROM %s WHERE %s = $1
	`, s.table(), col), val).Scan(
		&acc.ID, &acc.Email, &acc.PasswordHash, &acc.RefreshFingerprint, &acc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, OpError{Op: op, Kind: ErrNotFound}
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}
	return acc, nil
}

// SetRefreshFingerprint unconditionally overwrites the refresh slot.
func (s *PostgresStore) SetRefreshFingerprint(ctx context.Context, id, fingerprint string) error {
	const op = "identity.SetRefreshFingerprint"

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET refresh_fingerprint = $2 WHERE id = $1
	`, s.table()), id, fingerprint)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return OpError{Op: op, Kind: ErrNotFound}
	}
	return nil
}

// RotateRefreshFingerprint locks the account row, compares the stored slot in
// constant time, and writes the replacement inside one transaction.
func (s *PostgresStore) RotateRefreshFingerprint(ctx context.Context, id, expected, next string) error {
	const op = "identity.RotateRefreshFingerprint"

	if expected == "" || next == "" {
		return notActiveSlot()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var stored string
	err = tx.QueryRow(ctx, fmt.Sprintf(`
		SELECT refresh_fingerprint FROM %s WHERE id = $1 FOR UPDATE
	`, s.table()), id).Scan(&stored)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notActiveSlot()
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if !ctEqHex64(stored, expected) {
		return notActiveSlot()
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET refresh_fingerprint = $2 WHERE id = $1
	`, s.table()), id, next); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ---- helpers ----

// ctEqHex64 compares two expected 64-char hex strings in constant time.
// Rejects if either length != 64 to keep timing stable (and avoid an oracle
// by length).
func ctEqHex64(a, b string) bool {
	if len(a) != 64 || len(b) != 64 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
