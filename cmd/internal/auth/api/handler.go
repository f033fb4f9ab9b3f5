package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"credo/cmd/identity"
	"credo/cmd/internal/auth/session"
	"credo/cmd/security/password"
)

// PasswordPolicy validates candidate passwords before hashing.
// password.Config satisfies it.
type PasswordPolicy interface {
	Validate(password string) error
}

// Handler wires the credential endpoints to the session service.
type Handler struct {
	log *slog.Logger
	cfg Config

	accounts identity.Store
	sessions *session.Service
	codec    session.TokenCodec
	policy   PasswordPolicy

	limiter *ipRateLimiter
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, accounts identity.Store, sessions *session.Service, codec session.TokenCodec, policy PasswordPolicy) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if accounts == nil || sessions == nil || codec == nil || policy == nil {
		return nil, errors.New("authapi: nil dependency")
	}
	cfg = cfg.withDefaults()

	return &Handler{
		log:      log,
		cfg:      cfg,
		accounts: accounts,
		sessions: sessions,
		codec:    codec,
		policy:   policy,
		limiter:  newIPRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
	}, nil
}

// Register wires auth routes onto the provided mux. The /auth/ group shares
// one per-IP rate limit; /me does not.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/register", h.limited(h.handleRegister))
	mux.HandleFunc("/auth/login", h.limited(h.handleLogin))
	mux.HandleFunc("/auth/refresh", h.limited(h.handleRefresh))
	mux.HandleFunc("/auth/logout", h.limited(h.handleLogout))
	mux.HandleFunc("/me", h.handleMe)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	if err := validateEmail(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	if err := h.policy.Validate(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	res, err := h.sessions.Register(r.Context(), time.Now().UTC(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrEmailTaken):
			countOutcome("register", "conflict")
			writeError(w, http.StatusConflict, codeEmailTaken, "email already registered")
		default:
			h.log.Error("auth.register.fail", "err", err)
			countOutcome("register", "error")
			writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		}
		return
	}

	countOutcome("register", "ok")
	h.setRefreshCookie(w, res.Pair.RefreshToken, res.Pair.RefreshExp)
	writeJSON(w, http.StatusCreated, toAuthResponse(res))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	if validateEmail(req.Email) != nil || !plausibleLoginPassword(req.Password) {
		// Inputs that cannot belong to any account fail without a lookup.
		countOutcome("login", "invalid")
		writeError(w, http.StatusUnauthorized, codeInvalidCredentials, "invalid credentials")
		return
	}

	res, err := h.sessions.Login(r.Context(), time.Now().UTC(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidCredentials):
			countOutcome("login", "invalid")
			writeError(w, http.StatusUnauthorized, codeInvalidCredentials, "invalid credentials")
		default:
			h.log.Error("auth.login.fail", "err", err)
			countOutcome("login", "error")
			writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		}
		return
	}

	countOutcome("login", "ok")
	h.setRefreshCookie(w, res.Pair.RefreshToken, res.Pair.RefreshExp)
	writeJSON(w, http.StatusOK, toAuthResponse(res))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	now := time.Now().UTC()

	presented, ok := h.refreshTokenFromCookie(r)
	if !ok {
		countOutcome("refresh", "invalid")
		writeError(w, http.StatusUnauthorized, codeInvalidRefresh, "invalid refresh token")
		return
	}

	claims, err := h.codec.VerifyRefresh(presented, now)
	if err != nil {
		countOutcome("refresh", "invalid")
		h.clearRefreshCookie(w)
		writeError(w, http.StatusUnauthorized, codeInvalidRefresh, "invalid refresh token")
		return
	}

	res, err := h.sessions.RotateRefresh(r.Context(), now, claims.Subject, presented)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidRefresh):
			countOutcome("refresh", "invalid")
			h.clearRefreshCookie(w)
			writeError(w, http.StatusUnauthorized, codeInvalidRefresh, "invalid refresh token")
		default:
			h.log.Error("auth.refresh.fail", "err", err)
			countOutcome("refresh", "error")
			writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		}
		return
	}

	countOutcome("refresh", "ok")
	h.setRefreshCookie(w, res.Pair.RefreshToken, res.Pair.RefreshExp)
	writeJSON(w, http.StatusOK, toAuthResponse(res))
}

// handleLogout is best-effort: a verifiable cookie clears the server-side
// slot, but the response is 204 and the cookie is expired either way.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if presented, ok := h.refreshTokenFromCookie(r); ok {
		if claims, err := h.codec.VerifyRefresh(presented, time.Now().UTC()); err == nil {
			if err := h.sessions.Logout(r.Context(), claims.Subject); err != nil {
				h.log.Error("auth.logout.fail", "err", err)
			}
		}
	}

	countOutcome("logout", "ok")
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tok := bearerToken(r)
	if tok == "" {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing bearer token")
		return
	}
	claims, err := h.codec.VerifyAccess(tok, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid token")
		return
	}

	acc, err := h.accounts.GetByID(r.Context(), claims.Subject)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "account not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toAccountResponse(acc)})
}

var _ PasswordPolicy = password.Config{}
