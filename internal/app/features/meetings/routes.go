// internal/app/features/meetings/routes.go
package meetings

import (
	"github.com/dalemusser/teamhub/internal/app/system/auth"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts under /meetings.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.list)
	r.Get("/upcoming", h.upcoming)
	r.Get("/stream", h.stream)
	r.Get("/{id}", h.get)
	r.Post("/{id}/attend", h.attend)

	r.Group(func(mr chi.Router) {
		mr.Use(sm.RequireRole(models.RoleAdmin, models.RoleSuperAdmin))
		mr.Post("/", h.create)
		mr.Patch("/{id}", h.update)
		mr.Delete("/{id}", h.remove)
	})
	r.With(sm.RequireRole(models.RoleSuperAdmin)).Get("/{id}/attendance", h.roster)
	return r
}
