// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/teamhub/internal/app/system/normalize"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for TeamHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: TEAMHUB_MONGO_URI, TEAMHUB_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "teamhub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "teamhub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "24h", Desc: "Session cookie lifetime"},
	{Name: "session_idle_timeout", Default: "30m", Desc: "Close activity records idle longer than this"},

	// SuperAdmin bootstrap
	{Name: "superadmin_email", Default: "", Desc: "Email of the superadmin user (promotes/creates on startup)"},
	{Name: "superadmin_password", Default: "", Desc: "Initial password when the superadmin has to be created"},

	// Notifications and meetings
	{Name: "feed_size", Default: 20, Desc: "Notifications per feed snapshot"},
	{Name: "feed_poll_interval", Default: "5s", Desc: "Feed refresh interval without change streams"},
	{Name: "upcoming_limit", Default: 5, Desc: "Meetings returned by /meetings/upcoming"},
	{Name: "fanout_concurrency", Default: 8, Desc: "Parallel notification writes during fan-out"},
	{Name: "effect_timeout", Default: "30s", Desc: "Time budget for one side effect"},

	// Login throttling
	{Name: "login_rate_per_minute", Default: 5, Desc: "Login attempts per email per minute (0 disables)"},
	{Name: "login_ip_rate_per_minute", Default: 30, Desc: "Login attempts per client address per minute (0 disables)"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, TEAMHUB_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "TEAMHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionDomain: appValues.String("session_domain"),
		SessionMaxAge: appValues.Duration("session_max_age", 24*time.Hour),
		SessionIdle:   appValues.Duration("session_idle_timeout", 30*time.Minute),

		SuperAdminEmail:    normalize.Email(appValues.String("superadmin_email")),
		SuperAdminPassword: appValues.String("superadmin_password"),

		FeedSize:          int64(appValues.Int("feed_size")),
		FeedPollInterval:  appValues.Duration("feed_poll_interval", 5*time.Second),
		UpcomingLimit:     int64(appValues.Int("upcoming_limit")),
		FanoutConcurrency: appValues.Int("fanout_concurrency"),
		EffectTimeout:     appValues.Duration("effect_timeout", 30*time.Second),

		LoginRatePerMinute:   appValues.Int("login_rate_per_minute"),
		LoginIPRatePerMinute: appValues.Int("login_ip_rate_per_minute"),

		AuditLogAuth:  appValues.String("audit_log_auth"),
		AuditLogAdmin: appValues.String("audit_log_admin"),
	}

	return coreCfg, appCfg, nil
}

var auditModes = map[string]bool{"all": true, "db": true, "log": true, "off": true, "": true}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// The MongoDB URI is checked here to catch configuration errors before
// attempting to connect.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	return validateApp(coreCfg.Env, appCfg)
}

func validateApp(env string, appCfg AppConfig) error {
	if appCfg.MongoDatabase == "" {
		return errors.New("mongo_database must be set")
	}
	if len(appCfg.SessionKey) < 32 {
		return errors.New("session_key must be at least 32 characters")
	}
	if env == "prod" && appCfg.SessionKey == "dev-only-change-me-please-0123456789ABCDEF" {
		return errors.New("session_key must be changed in production")
	}
	if appCfg.FeedSize <= 0 {
		return errors.New("feed_size must be positive")
	}
	if appCfg.UpcomingLimit <= 0 {
		return errors.New("upcoming_limit must be positive")
	}
	if appCfg.FanoutConcurrency <= 0 {
		return errors.New("fanout_concurrency must be positive")
	}
	if !auditModes[appCfg.AuditLogAuth] || !auditModes[appCfg.AuditLogAdmin] {
		return errors.New("audit_log_auth and audit_log_admin must be one of all, db, log, off")
	}
	if appCfg.SuperAdminPassword != "" && appCfg.SuperAdminEmail == "" {
		return errors.New("superadmin_password requires superadmin_email")
	}
	return nil
}
