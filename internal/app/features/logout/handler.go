// internal/app/features/logout/handler.go
package logout

import (
	"context"
	"net/http"

	"github.com/dalemusser/teamhub/internal/app/features/shared/respond"
	sessionstore "github.com/dalemusser/teamhub/internal/app/store/sessions"
	"github.com/dalemusser/teamhub/internal/app/system/auditlog"
	"github.com/dalemusser/teamhub/internal/app/system/auth"
	"github.com/dalemusser/teamhub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// SignOuter announces sign-out so live sessions of the user end.
type SignOuter interface {
	SignOut(ctx context.Context, uid string) error
}

type Handler struct {
	Log        *zap.Logger
	SessionMgr *auth.SessionManager
	Identity   SignOuter
	Sessions   *sessionstore.Store
	AuditLog   *auditlog.Logger
}

func NewHandler(sessionMgr *auth.SessionManager, id SignOuter, sess *sessionstore.Store, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Log:        logger,
		SessionMgr: sessionMgr,
		Identity:   id,
		Sessions:   sess,
		AuditLog:   audit,
	}
}

// ServeLogout handles POST /logout. The cookie is always cleared; 204.
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	uid := ""
	if u, ok := auth.CurrentUser(r); ok {
		uid = u.UID
	}

	if err := h.SessionMgr.SignOut(w, r); err != nil {
		h.Log.Error("logout: save session", zap.Error(err))
	}
	if uid == "" {
		respond.NoContent(w)
		return
	}

	ctx, cancel := timeouts.Detached(r.Context(), timeouts.Short())
	defer cancel()
	if h.Identity != nil {
		if err := h.Identity.SignOut(ctx, uid); err != nil {
			h.Log.Warn("logout: announce sign-out", zap.String("uid", uid), zap.Error(err))
		}
	}
	if h.Sessions != nil {
		if _, err := h.Sessions.CloseAllForUser(ctx, uid, sessionstore.EndLogout); err != nil {
			h.Log.Warn("logout: close sessions", zap.String("uid", uid), zap.Error(err))
		}
	}
	h.AuditLog.Logout(ctx, r, uid)
	h.Log.Info("signed out", zap.String("uid", uid))
	respond.NoContent(w)
}
