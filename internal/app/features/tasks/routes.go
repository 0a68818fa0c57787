// internal/app/features/tasks/routes.go
package tasks

import (
	"github.com/dalemusser/teamhub/internal/app/system/auth"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts under /tasks. Manager-only writes are rejected by role
// before the repository checks them again.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/status", h.changeStatus)
	r.Post("/{id}/notes", h.addNote)

	r.Group(func(mr chi.Router) {
		mr.Use(sm.RequireRole(models.RoleAdmin, models.RoleSuperAdmin))
		mr.Post("/", h.create)
		mr.Patch("/{id}", h.update)
		mr.Delete("/{id}", h.remove)
	})
	return r
}
