// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like:
//   - HTTP/HTTPS ports and TLS configuration
//   - Logging level and format
//   - CORS settings
//   - Request body size limits
//
// AppConfig carries what is specific to TeamHub: the database, session
// cookies, the bootstrap superadmin, and the knobs of the notification
// machinery.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session management configuration
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions (default: teamhub-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Cookie lifetime
	SessionIdle   time.Duration // activity records idle this long are closed

	// SuperAdmin bootstrap
	SuperAdminEmail    string
	SuperAdminPassword string // only used when the account has to be created

	// Notifications and meetings
	FeedSize          int64
	FeedPollInterval  time.Duration // used when change streams are unavailable
	UpcomingLimit     int64
	FanoutConcurrency int
	EffectTimeout     time.Duration

	// Login throttling
	LoginRatePerMinute   int // per email
	LoginIPRatePerMinute int // per client address

	// Audit logging
	AuditLogAuth  string // "all", "db", "log", or "off"
	AuditLogAdmin string
}
