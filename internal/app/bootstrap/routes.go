// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	auditlogfeature "github.com/dalemusser/teamhub/internal/app/features/auditlog"
	healthfeature "github.com/dalemusser/teamhub/internal/app/features/health"
	heartbeatfeature "github.com/dalemusser/teamhub/internal/app/features/heartbeat"
	loginfeature "github.com/dalemusser/teamhub/internal/app/features/login"
	logoutfeature "github.com/dalemusser/teamhub/internal/app/features/logout"
	meetingsfeature "github.com/dalemusser/teamhub/internal/app/features/meetings"
	notificationsfeature "github.com/dalemusser/teamhub/internal/app/features/notifications"
	tasksfeature "github.com/dalemusser/teamhub/internal/app/features/tasks"
	teamfeature "github.com/dalemusser/teamhub/internal/app/features/team"
	userinfofeature "github.com/dalemusser/teamhub/internal/app/features/userinfo"
	"github.com/dalemusser/teamhub/internal/app/system/requestid"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed, so the shared services are ready.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	if app == nil {
		return nil, errors.New("bootstrap: Startup has not run")
	}
	return app.router(deps.MongoClient, deps.MongoDatabase), nil
}

func (s *services) router(client *mongo.Client, db *mongo.Database) chi.Router {
	r := chi.NewRouter()

	r.Use(requestid.Middleware)
	r.Use(s.metrics.Middleware)
	// Loads the current user into context when signed in.
	r.Use(s.sessionMgr.LoadSessionUser)

	// Health and metrics for load balancers and scrapers
	r.Mount("/health", healthfeature.Routes(healthfeature.NewHandler(client, s.log)))
	r.Handle("/metrics", s.metrics.Handler())

	// Authentication
	loginHandler := loginfeature.NewHandler(s.identity, s.sessionMgr, s.sessions, s.logins, s.audit, s.ipLimiter, s.log)
	r.Mount("/login", loginfeature.Routes(loginHandler))

	logoutHandler := logoutfeature.NewHandler(s.sessionMgr, s.identity, s.sessions, s.audit, s.log)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler, s.sessionMgr))

	userinfofeature.MountRoutes(r, userinfofeature.NewHandler(s.notifications, s.log))

	// Activity tracking
	r.Mount("/heartbeat", heartbeatfeature.Routes(heartbeatfeature.NewHandler(s.sessions, s.log), s.sessionMgr))

	// Team data
	r.Mount("/tasks", tasksfeature.Routes(tasksfeature.NewHandler(s.tasks, s.log), s.sessionMgr))
	r.Mount("/meetings", meetingsfeature.Routes(meetingsfeature.NewHandler(s.meetings, s.registry, s.log), s.sessionMgr))

	notificationsHandler := notificationsfeature.NewHandler(s.notifications, s.feed, s.registry, s.sessions, s.log)
	r.Mount("/notifications", notificationsfeature.Routes(notificationsHandler, s.sessionMgr))

	teamHandler := teamfeature.NewHandler(s.users, db, s.sessions, s.log)
	r.Mount("/team", teamfeature.Routes(teamHandler, s.sessionMgr))

	// Audit trail, superadmin only
	r.Mount("/audit", auditlogfeature.Routes(auditlogfeature.NewHandler(s.auditEvents, s.log), s.sessionMgr))

	return r
}
