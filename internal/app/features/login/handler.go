// internal/app/features/login/handler.go
package login

import (
	"context"
	"errors"
	"net/http"

	"github.com/dalemusser/teamhub/internal/app/features/shared/respond"
	loginstore "github.com/dalemusser/teamhub/internal/app/store/logins"
	sessionstore "github.com/dalemusser/teamhub/internal/app/store/sessions"
	"github.com/dalemusser/teamhub/internal/app/system/auditlog"
	"github.com/dalemusser/teamhub/internal/app/system/auth"
	"github.com/dalemusser/teamhub/internal/app/system/identity"
	"github.com/dalemusser/teamhub/internal/app/system/normalize"
	"github.com/dalemusser/teamhub/internal/app/system/ratelimit"
	"github.com/dalemusser/teamhub/internal/app/system/timeouts"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"go.uber.org/zap"
)

// Authenticator verifies credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (models.Principal, error)
}

type Handler struct {
	Log        *zap.Logger
	Identity   Authenticator
	SessionMgr *auth.SessionManager
	Sessions   *sessionstore.Store // activity session tracking, may be nil
	Logins     *loginstore.Store   // sign-in history, may be nil
	AuditLog   *auditlog.Logger
	IPLimiter  *ratelimit.Limiter // per-client throttle, may be nil
}

func NewHandler(id Authenticator, sm *auth.SessionManager, sess *sessionstore.Store, logins *loginstore.Store,
	audit *auditlog.Logger, ipLimiter *ratelimit.Limiter, logger *zap.Logger) *Handler {
	return &Handler{
		Log:        logger,
		Identity:   id,
		SessionMgr: sm,
		Sessions:   sess,
		Logins:     logins,
		AuditLog:   audit,
		IPLimiter:  ipLimiter,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	UID        string `json:"uid"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
}

// ServeLogin handles POST /login.
//
// 200 with the principal on success, 401 on bad credentials, 429 when the
// client or the email is throttled.
func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	ip := ratelimit.ClientIP(r)
	if h.IPLimiter != nil && !h.IPLimiter.Allow(ip) {
		h.Log.Warn("login throttled by client", zap.String("ip", ip))
		h.AuditLog.LoginFailedRateLimit(r.Context(), r, "")
		respond.TooManyRequests(w, 60)
		return
	}

	var req loginRequest
	if err := respond.Decode(w, r, "login", &req); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	email := normalize.Email(req.Email)
	if email == "" || req.Password == "" {
		respond.JSON(w, http.StatusUnauthorized, respond.ErrorBody{Error: "invalid_credentials", Message: identity.ErrInvalidCredentials.Error()})
		return
	}

	p, err := h.Identity.Authenticate(r.Context(), email, req.Password)
	if err != nil {
		h.fail(w, r, email, err)
		return
	}

	if err := h.SessionMgr.SignIn(w, r, p.UID); err != nil {
		h.Log.Error("login: save session", zap.String("uid", p.UID), zap.Error(err))
		respond.Error(w, r, h.Log, err)
		return
	}

	// Bookkeeping must not fail the sign-in, and must finish even if the
	// client leaves.
	ctx, cancel := timeouts.Detached(r.Context(), timeouts.Short())
	defer cancel()
	if h.Sessions != nil {
		if _, err := h.Sessions.Create(ctx, p.UID, ip, r.UserAgent()); err != nil {
			h.Log.Warn("login: record session", zap.String("uid", p.UID), zap.Error(err))
		}
	}
	if h.Logins != nil {
		if err := h.Logins.CreateFrom(ctx, r, p.UID, "password"); err != nil {
			h.Log.Warn("login: record sign-in", zap.String("uid", p.UID), zap.Error(err))
		}
	}
	h.AuditLog.LoginSuccess(ctx, r, p.UID, p.Email)
	h.Log.Info("signed in", zap.String("uid", p.UID), zap.String("role", p.Role))

	respond.JSON(w, http.StatusOK, loginResponse{
		UID:        p.UID,
		Email:      p.Email,
		Name:       p.Name,
		Role:       p.Role,
		Department: p.Department,
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, email string, err error) {
	var ce *identity.CredentialsError
	switch {
	case errors.Is(err, identity.ErrThrottled):
		h.AuditLog.LoginFailedRateLimit(r.Context(), r, email)
		respond.TooManyRequests(w, 60)
	case errors.As(err, &ce):
		if ce.UnknownEmail {
			h.AuditLog.LoginFailedUserNotFound(r.Context(), r, email)
		} else {
			h.AuditLog.LoginFailedWrongPassword(r.Context(), r, ce.UID, email)
		}
		respond.JSON(w, http.StatusUnauthorized, respond.ErrorBody{Error: "invalid_credentials", Message: identity.ErrInvalidCredentials.Error()})
	default:
		respond.Error(w, r, h.Log, err)
	}
}
