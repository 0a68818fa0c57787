// internal/app/bootstrap/services.go
package bootstrap

import (
	"context"
	"time"

	meetingrepo "github.com/dalemusser/teamhub/internal/app/repos/meetings"
	notificationrepo "github.com/dalemusser/teamhub/internal/app/repos/notifications"
	taskrepo "github.com/dalemusser/teamhub/internal/app/repos/tasks"
	userrepo "github.com/dalemusser/teamhub/internal/app/repos/users"
	"github.com/dalemusser/teamhub/internal/app/store/audit"
	loginstore "github.com/dalemusser/teamhub/internal/app/store/logins"
	meetingstore "github.com/dalemusser/teamhub/internal/app/store/meetings"
	notificationstore "github.com/dalemusser/teamhub/internal/app/store/notifications"
	sessionstore "github.com/dalemusser/teamhub/internal/app/store/sessions"
	taskstore "github.com/dalemusser/teamhub/internal/app/store/tasks"
	userstore "github.com/dalemusser/teamhub/internal/app/store/users"
	"github.com/dalemusser/teamhub/internal/app/system/auditlog"
	"github.com/dalemusser/teamhub/internal/app/system/auth"
	"github.com/dalemusser/teamhub/internal/app/system/effects"
	"github.com/dalemusser/teamhub/internal/app/system/feed"
	"github.com/dalemusser/teamhub/internal/app/system/identity"
	"github.com/dalemusser/teamhub/internal/app/system/metrics"
	"github.com/dalemusser/teamhub/internal/app/system/ratelimit"
	"github.com/dalemusser/teamhub/internal/app/system/session"
	"github.com/dalemusser/teamhub/internal/app/system/workers"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// sessionCleanupInterval is how often idle activity records are swept.
const sessionCleanupInterval = time.Minute

// services is the object graph shared by the HTTP surface. Startup builds
// it; BuildHandler and Shutdown use it.
type services struct {
	log *zap.Logger

	sessionMgr *auth.SessionManager
	metrics    *metrics.Metrics
	audit      *auditlog.Logger
	identity   *identity.Provider
	registry   *session.Registry
	coord      *effects.Coordinator
	feed       *feed.Feed

	users         *userrepo.Repo
	tasks         *taskrepo.Repo
	meetings      *meetingrepo.Repo
	notifications *notificationrepo.Repo

	sessions    *sessionstore.Store
	logins      *loginstore.Store
	auditEvents *audit.Store

	emailLimiter *ratelimit.Limiter
	ipLimiter    *ratelimit.Limiter
	cleanup      *workers.SessionCleanup
	unsubscribe  func()
}

// app is set by Startup.
var app *services

func newServices(secure bool, appCfg AppConfig, db *mongo.Database, logger *zap.Logger) (*services, error) {
	sm, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		return nil, err
	}

	users := userstore.New(db)
	notes := notificationstore.New(db)
	m := metrics.New()
	events := audit.New(db)

	s := &services{
		log:        logger,
		sessionMgr: sm,
		metrics:    m,
		audit: auditlog.New(events, logger, auditlog.Config{
			Auth:  appCfg.AuditLogAuth,
			Admin: appCfg.AuditLogAdmin,
		}),
		registry:     session.NewRegistry(logger),
		sessions:     sessionstore.New(db),
		logins:       loginstore.New(db),
		auditEvents:  events,
		emailLimiter: ratelimit.New(appCfg.LoginRatePerMinute, time.Minute),
		ipLimiter:    ratelimit.New(appCfg.LoginIPRatePerMinute, time.Minute),
	}

	// LoadSessionUser refreshes the profile on every request so role
	// changes apply immediately.
	sm.SetFetcher(userstore.NewFetcher(users))

	s.identity = identity.NewProvider(users, s.emailLimiter, logger)
	s.unsubscribe = s.identity.Subscribe(s.registry.OnIdentityEvent)

	s.coord = effects.New(notes, users, m, logger, effects.Config{
		Concurrency: appCfg.FanoutConcurrency,
		Timeout:     appCfg.EffectTimeout,
	})

	s.users = userrepo.New(users, s.audit, logger)
	s.tasks = taskrepo.New(taskstore.New(db), s.users, s.coord, s.audit, logger)
	s.meetings = meetingrepo.New(meetingstore.New(db), s.coord, s.audit, logger)
	if appCfg.UpcomingLimit > 0 {
		s.meetings.UpcomingLimit = appCfg.UpcomingLimit
	}
	s.notifications = notificationrepo.New(notes, logger)
	s.notifications.Retrier = s.coord
	s.notifications.Users = users
	s.notifications.Audit = s.audit

	s.feed = feed.New(s.notifications, m, logger)
	if appCfg.FeedSize > 0 {
		s.feed.Size = appCfg.FeedSize
	}
	if appCfg.FeedPollInterval > 0 {
		s.feed.PollInterval = appCfg.FeedPollInterval
	}

	if appCfg.SessionIdle > 0 {
		s.cleanup = workers.NewSessionCleanup(s.sessions, logger, sessionCleanupInterval, appCfg.SessionIdle)
	}
	return s, nil
}

func (s *services) start() {
	if s.cleanup != nil {
		s.cleanup.Start()
	}
}

// close ends live sessions first so streams stop before their effects
// are drained.
func (s *services) close(ctx context.Context) error {
	s.unsubscribe()
	s.registry.EndAll()

	var err error
	drained := make(chan struct{})
	go func() {
		s.coord.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		err = multierr.Append(err, ctx.Err())
		s.log.Warn("shutdown before side effects drained", zap.Error(ctx.Err()))
	}

	if s.cleanup != nil {
		s.cleanup.Stop()
	}
	s.emailLimiter.Close()
	s.ipLimiter.Close()
	return err
}
