package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"credo/cmd/identity"
	"credo/cmd/internal/auth/token"
	"credo/cmd/security/password"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	cfg := token.DefaultConfig()
	cfg.AccessSecret = []byte("test-access-secret-0123456789abc")
	cfg.RefreshSecret = []byte("test-refresh-secret-0123456789ab")
	codec, err := token.NewCodec(cfg)
	require.NoError(t, err)

	hasher := password.DefaultConfig()
	hasher.Params.MemoryKiB = 16 * 1024
	hasher.Params.Iterations = 1

	return NewService(identity.NewMemoryStore(), codec, hasher)
}

func TestRegisterThenLogin(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	reg, err := svc.Register(ctx, now, " John.Doe@Example.COM ", "VeryStrongPass#2025")
	require.NoError(t, err)
	require.Equal(t, "john.doe@example.com", reg.Account.Email)
	require.NotEmpty(t, reg.Pair.AccessToken)
	require.NotEmpty(t, reg.Pair.RefreshToken)

	login, err := svc.Login(ctx, now, "john.doe@example.com", "VeryStrongPass#2025")
	require.NoError(t, err)
	require.Equal(t, reg.Account.ID, login.Account.ID)
	require.Equal(t, "john.doe@example.com", login.Account.Email)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := svc.Register(ctx, now, "dup@example.com", "VeryStrongPass#2025")
	require.NoError(t, err)

	_, err = svc.Register(ctx, now, "DUP@example.com", "CompletelyOtherPass1")
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := svc.Register(ctx, now, "alice@example.com", "VeryStrongPass#2025")
	require.NoError(t, err)

	_, missingErr := svc.Login(ctx, now, "nobody@example.com", "whatever-password")
	_, wrongErr := svc.Login(ctx, now, "alice@example.com", "wrong-password-123")

	require.ErrorIs(t, missingErr, ErrInvalidCredentials)
	require.ErrorIs(t, wrongErr, ErrInvalidCredentials)
	require.Equal(t, missingErr, wrongErr)
}

func TestRotationIsSingleUse(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	reg, err := svc.Register(ctx, now, "rotate@example.com", "VeryStrongPass#2025")
	require.NoError(t, err)

	first := reg.Pair.RefreshToken

	rotated, err := svc.RotateRefresh(ctx, now, reg.Account.ID, first)
	require.NoError(t, err)
	second := rotated.Pair.RefreshToken
	require.NotEqual(t, first, second)

	// Replaying the consumed token must fail.
	_, err = svc.RotateRefresh(ctx, now, reg.Account.ID, first)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	// The replacement still works.
	_, err = svc.RotateRefresh(ctx, now, reg.Account.ID, second)
	require.NoError(t, err)
}

func TestLoginInvalidatesPreviousRefresh(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	reg, err := svc.Register(ctx, now, "single-slot@example.com", "VeryStrongPass#2025")
	require.NoError(t, err)

	// A second login overwrites the slot: one session per account.
	login, err := svc.Login(ctx, now, "single-slot@example.com", "VeryStrongPass#2025")
	require.NoError(t, err)

	_, err = svc.RotateRefresh(ctx, now, reg.Account.ID, reg.Pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	_, err = svc.RotateRefresh(ctx, now, reg.Account.ID, login.Pair.RefreshToken)
	require.NoError(t, err)
}

func TestLogoutClearsSlot(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	reg, err := svc.Register(ctx, now, "logout@example.com", "VeryStrongPass#2025")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, reg.Account.ID))

	_, err = svc.RotateRefresh(ctx, now, reg.Account.ID, reg.Pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	// Idempotent, including for unknown identities.
	require.NoError(t, svc.Logout(ctx, reg.Account.ID))
	require.NoError(t, svc.Logout(ctx, "01AAAAAAAAAAAAAAAAAAAAAAAA"))
}

func TestConcurrentRotationSingleWinner(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	reg, err := svc.Register(ctx, now, "race@example.com", "VeryStrongPass#2025")
	require.NoError(t, err)

	const workers = 16
	start := make(chan struct{})
	results := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.RotateRefresh(ctx, now, reg.Account.ID, reg.Pair.RefreshToken)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		default:
			require.ErrorIs(t, err, ErrInvalidRefresh)
		}
	}
	require.Equal(t, 1, success)
}
