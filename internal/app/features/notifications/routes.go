// internal/app/features/notifications/routes.go
package notifications

import (
	"github.com/dalemusser/teamhub/internal/app/system/auth"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts under /notifications.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.list)
	r.Get("/unread-count", h.unreadCount)
	r.Get("/stream", h.stream)
	r.Post("/read-all", h.markAllRead)
	r.With(sm.RequireRole(models.RoleSuperAdmin)).Post("/redeliver", h.redeliver)
	r.Get("/{id}", h.get)
	r.Post("/{id}/read", h.markRead)
	return r
}
