// internal/app/features/heartbeat/handler.go
package heartbeat

import (
	"context"
	"net/http"

	sessionstore "github.com/dalemusser/teamhub/internal/app/store/sessions"
	"github.com/dalemusser/teamhub/internal/app/system/authz"
	"github.com/dalemusser/teamhub/internal/app/system/ratelimit"
	"github.com/dalemusser/teamhub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// ActivityStore keeps a user's activity record alive.
type ActivityStore interface {
	Touch(ctx context.Context, uid string) (int64, error)
	Create(ctx context.Context, uid, ip, userAgent string) (sessionstore.Record, error)
}

// Handler handles heartbeat requests for activity tracking.
type Handler struct {
	Sessions ActivityStore
	Log      *zap.Logger
}

// NewHandler creates a new heartbeat handler.
func NewHandler(sessions ActivityStore, logger *zap.Logger) *Handler {
	return &Handler{
		Sessions: sessions,
		Log:      logger,
	}
}

// ServeHeartbeat handles POST /heartbeat.
// Updates LastActiveAt on the user's open activity record. When the
// cleanup worker already closed it for inactivity, a new one is opened.
// Store failures are logged and still answered with 204 so clients never
// retry a heartbeat.
func (h *Handler) ServeHeartbeat(w http.ResponseWriter, r *http.Request) {
	p := authz.PrincipalFrom(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	n, err := h.Sessions.Touch(ctx, p.UID)
	if err != nil {
		h.Log.Warn("failed to update session last_active_at", zap.Error(err), zap.String("uid", p.UID))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if n == 0 {
		rec, err := h.Sessions.Create(ctx, p.UID, ratelimit.ClientIP(r), r.UserAgent())
		if err != nil {
			h.Log.Warn("failed to reopen activity session", zap.Error(err), zap.String("uid", p.UID))
		} else {
			h.Log.Info("reopened activity session after inactivity",
				zap.String("uid", p.UID),
				zap.String("session_id", rec.ID.Hex()))
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
