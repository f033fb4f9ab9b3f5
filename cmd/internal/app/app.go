// Package app wires the credo server runtime: config, logging, storage, and
// the HTTP surface.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"credo/cmd/identity"
	authapi "credo/cmd/internal/auth/api"
	"credo/cmd/internal/auth/session"
	"credo/cmd/internal/auth/token"
	"credo/cmd/security/password"
	sectoken "credo/cmd/security/token"
)

// App is the credo server runtime.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	auth *authapi.Handler
}

// New constructs a fully wired App from config. Without CREDO_DATABASE_URL
// the account store is in-memory, which is only suitable for development.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	accounts, dbPool, dbEnabled, err := newAccountStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(token.Config{
		Issuer:             cfg.Token.Issuer,
		AccessTTL:          cfg.Token.AccessTTL,
		RefreshTTL:         cfg.Token.RefreshTTL,
		ClockSkew:          cfg.Token.ClockSkew,
		AccessSecret:       []byte(cfg.Token.AccessSecret),
		RefreshSecret:      []byte(cfg.Token.RefreshSecret),
		FingerprintHMACKey: fingerprintKey(log),
	})
	if err != nil {
		closePool(dbPool)
		return nil, err
	}

	hasher, err := password.FromEnv()
	if err != nil {
		closePool(dbPool)
		return nil, err
	}

	sessions := session.NewService(accounts, codec, hasher)

	authCfg := authapi.DefaultConfig()
	authCfg.TrustProxy = cfg.Auth.TrustProxy
	authCfg.MaxBodyBytes = cfg.Auth.MaxBodyBytes
	authCfg.CookieDomain = cfg.Auth.CookieDomain
	authCfg.CookieSecure = cfg.Auth.CookieSecure
	authCfg.RateLimitMax = cfg.Auth.RateLimitMax
	authCfg.RateLimitWindow = cfg.Auth.RateLimitWindow

	auth, err := authapi.NewHandler(log, authCfg, accounts, sessions, codec, hasher)
	if err != nil {
		closePool(dbPool)
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		auth:      auth,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.auth)

	var handler http.Handler = mux
	handler = WithSecurityHeaders(handler)
	handler = WithCORS(handler, a.cfg, a.log)
	handler = WithRequestLogging(handler, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: a.cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.HTTP.ReadTimeout,
		WriteTimeout:      a.cfg.HTTP.WriteTimeout,
		IdleTimeout:       a.cfg.HTTP.IdleTimeout,
		MaxHeaderBytes:    a.cfg.HTTP.MaxHeaderBytes,
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	closePool(a.dbPool)

	a.log.Info("server.stopped")
	return nil
}

// newAccountStore decides between Postgres-backed persistence and the
// in-memory dev store.
func newAccountStore(ctx context.Context, cfg Config, log Logger) (identity.Store, *pgxpool.Pool, bool, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return identity.NewMemoryStore(), nil, false, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, err
	}

	store, err := identity.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, false, err
	}

	log.Info("db.enabled.postgres_store")
	return store, pool, true, nil
}

func fingerprintKey(log Logger) []byte {
	key, err := sectoken.HMACKeyFromEnv(32)
	if err != nil {
		// Validate already failed fast when the policy requires HMAC;
		// reaching here means SHA-256 fingerprints are acceptable.
		if !errors.Is(err, sectoken.ErrHMACKeyMissing) {
			log.Warn("fingerprint.hmac_key.unusable", "err", err)
		}
		return nil
	}
	return key
}

func closePool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}
