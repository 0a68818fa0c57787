// internal/app/features/team/routes.go
package team

import (
	"github.com/dalemusser/teamhub/internal/app/system/auth"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts under /team.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.overview)
	r.With(sm.RequireRole(models.RoleAdmin, models.RoleSuperAdmin)).Post("/invite", h.invite)
	return r
}
