package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are opt-in and require CREDO_DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_Create_DuplicateEmailConflict(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyAccountsSchema(t, pool, schema)

	s := mustNewAccountStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := s.Create(ctx, CreateAccountInput{
		Email:        "User@Example.com",
		PasswordHash: testHash64('a'),
		Now:          time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create account 1: %v", err)
	}

	// Same email (case-insensitive) must hit the unique index.
	_, err = s.Create(ctx, CreateAccountInput{
		Email:        "user@example.COM",
		PasswordHash: testHash64('b'),
		Now:          time.Now().UTC(),
	})
	if err == nil {
		t.Fatalf("expected conflict, got nil")
	}
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
}

func TestPostgresStore_RotateRefreshFingerprint_CAS(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyAccountsSchema(t, pool, schema)

	s := mustNewAccountStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	acc, err := s.Create(ctx, CreateAccountInput{
		Email:        "rotate@example.com",
		PasswordHash: testHash64('a'),
		Now:          time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	first := testHash64('1')
	second := testHash64('2')
	third := testHash64('3')

	// Empty slot: nothing to rotate.
	if err := s.RotateRefreshFingerprint(ctx, acc.ID, first, second); !IsNotActive(err) {
		t.Fatalf("expected not-active on empty slot, got: %v", err)
	}

	if err := s.SetRefreshFingerprint(ctx, acc.ID, first); err != nil {
		t.Fatalf("set fingerprint: %v", err)
	}

	if err := s.RotateRefreshFingerprint(ctx, acc.ID, first, second); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	// The consumed fingerprint no longer matches.
	if err := s.RotateRefreshFingerprint(ctx, acc.ID, first, third); !IsNotActive(err) {
		t.Fatalf("expected not-active on stale expected, got: %v", err)
	}

	// Unknown account is indistinguishable from a mismatch.
	if err := s.RotateRefreshFingerprint(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ", second, third); !IsNotActive(err) {
		t.Fatalf("expected not-active on unknown account, got: %v", err)
	}

	got, err := s.GetByID(ctx, acc.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.RefreshFingerprint != second {
		t.Fatalf("slot = %q, want %q", got.RefreshFingerprint, second)
	}

	// Logout clears the slot.
	if err := s.SetRefreshFingerprint(ctx, acc.ID, ""); err != nil {
		t.Fatalf("clear fingerprint: %v", err)
	}
	if err := s.RotateRefreshFingerprint(ctx, acc.ID, second, third); !IsNotActive(err) {
		t.Fatalf("expected not-active after clear, got: %v", err)
	}
}

func TestPostgresStore_RotateRefreshFingerprint_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyAccountsSchema(t, pool, schema)

	s := mustNewAccountStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	acc, err := s.Create(ctx, CreateAccountInput{
		Email:        "race@example.com",
		PasswordHash: testHash64('a'),
		Now:          time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	current := testHash64('c')
	if err := s.SetRefreshFingerprint(ctx, acc.ID, current); err != nil {
		t.Fatalf("set fingerprint: %v", err)
	}

	// All workers present the same expected value; the row lock must admit
	// exactly one of them.
	const workers = 8
	nextFor := func(i int) string {
		return strings.Repeat(fmt.Sprintf("%x", i+1), 64)[:64]
	}

	start := make(chan struct{})
	results := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			<-start
			results <- s.RotateRefreshFingerprint(ctx, acc.ID, current, nextFor(i))
		}(i)
	}
	close(start)
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case IsNotActive(err):
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("winners = %d, want exactly 1", success)
	}
}

// ---- helpers ----

func testHash64(b byte) string {
	return strings.Repeat(string(b), 64)
}

func mustNewAccountStore(t *testing.T, pool *pgxpool.Pool, schema string) *PostgresStore {
	t.Helper()
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("CREDO_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: CREDO_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse CREDO_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	// Validate acquire quickly (fast fail).
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (CREDO_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	id, err := NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	schema := "credo_it_" + strings.ToLower(id)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgxIdent1(schema)); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgxIdent1(schema)+` CASCADE`)
}

func mustApplyAccountsSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	accounts := pgx.Identifier{schema, "accounts"}.Sanitize()

	schemaSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  refresh_fingerprint TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_accounts_email ON %s (email);
`, accounts, accounts)

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host") {
		return true
	}
	return false
}

func pgxIdent1(ident string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection in dynamic DDL.
	return pgx.Identifier{ident}.Sanitize()
}
