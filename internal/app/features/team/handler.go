// internal/app/features/team/handler.go
package team

import (
	"context"
	"net/http"
	"time"

	"github.com/dalemusser/teamhub/internal/app/features/shared/respond"
	userrepo "github.com/dalemusser/teamhub/internal/app/repos/users"
	metricsstore "github.com/dalemusser/teamhub/internal/app/store/metrics"
	"github.com/dalemusser/teamhub/internal/app/system/authz"
	"github.com/dalemusser/teamhub/internal/app/system/timeouts"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// DefaultActiveWindow is how recent a session's activity must be to count as online.
const DefaultActiveWindow = 10 * time.Minute

// ActiveCounter counts sessions with recent activity.
type ActiveCounter interface {
	CountActive(ctx context.Context, threshold time.Duration) (int64, error)
}

// Handler serves the team overview and invitations.
type Handler struct {
	Users        *userrepo.Repo
	DB           *mongo.Database
	Activity     ActiveCounter
	ActiveWindow time.Duration
	Log          *zap.Logger
}

func NewHandler(users *userrepo.Repo, db *mongo.Database, activity ActiveCounter, logger *zap.Logger) *Handler {
	return &Handler{
		Users:        users,
		DB:           db,
		Activity:     activity,
		ActiveWindow: DefaultActiveWindow,
		Log:          logger,
	}
}

// Overview is the body of GET /team.
type Overview struct {
	Members        []models.User       `json:"members"`
	Counts         metricsstore.Counts `json:"counts"`
	ActiveSessions *int64              `json:"active_sessions,omitempty"`
}

// overview handles GET /team. Session counts are shown to managers only.
func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	members, err := h.Users.List(r.Context())
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()
	out := Overview{
		Members: members,
		Counts:  metricsstore.FetchDashboardCounts(ctx, h.DB, time.Now().UTC()),
	}

	if h.Activity != nil && authz.HasAnyRole(r, models.RoleAdmin, models.RoleSuperAdmin) {
		n, err := h.Activity.CountActive(ctx, h.ActiveWindow)
		if err != nil {
			h.Log.Warn("count active sessions", zap.Error(err))
		} else {
			out.ActiveSessions = &n
		}
	}
	respond.JSON(w, http.StatusOK, out)
}

// invite handles POST /team/invite.
func (h *Handler) invite(w http.ResponseWriter, r *http.Request) {
	var in userrepo.NewMember
	if err := respond.Decode(w, r, "users.invite", &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	u, err := h.Users.Invite(r.Context(), authz.PrincipalFrom(r), in)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, u)
}
