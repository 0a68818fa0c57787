// internal/app/features/auditlog/routes.go
package auditlog

import (
	"github.com/dalemusser/teamhub/internal/app/system/auth"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts under /audit. Superadmin only.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Use(sm.RequireRole(models.RoleSuperAdmin))

	r.Get("/", h.ServeList)
	return r
}
