package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/teamhub/internal/app/system/apperr"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Session constants                                                          |
*─────────────────────────────────────────────────────────────────────────────*/

const (
	DefaultSessionName = "teamhub-session"

	isAuthKey  = "is_authenticated"
	userUIDKey = "user_uid"
	signedInAt = "signed_in_at"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Current-User helper                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionUser is what we inject into r.Context() for a signed-in request.
// Only the uid lives in the cookie; everything else is read fresh from the
// users collection so role changes apply on the next request.
type SessionUser struct {
	UID        string
	Name       string
	Email      string
	Role       string
	Department string
}

// Principal converts the session user into the policy actor.
func (u *SessionUser) Principal() models.Principal {
	if u == nil {
		return models.Principal{}
	}
	return models.Principal{
		UID:        u.UID,
		Email:      u.Email,
		Name:       u.Name,
		Role:       strings.ToLower(u.Role),
		Department: u.Department,
	}
}

// UserFetcher loads the current profile for a uid.
// It returns an apperr NotFound error when the user no longer exists.
type UserFetcher interface {
	GetByUID(ctx context.Context, uid string) (models.User, error)
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user & "found?" flag.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok && u != nil
}

// WithTestUser injects u into the request context, as LoadSessionUser does.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

// GenerateKey returns a random session key suitable for NewSessionManager.
func GenerateKey() string {
	return hex.EncodeToString(securecookie.GenerateRandomKey(32))
}

/*─────────────────────────────────────────────────────────────────────────────*
| Session manager                                                            |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionManager owns the cookie store and the request middleware.
type SessionManager struct {
	store   *sessions.CookieStore
	name    string
	fetcher UserFetcher
	logger  *zap.Logger
}

// NewSessionManager builds a cookie-backed session manager.
//
// In production (secure=true), cookies are Secure + SameSite=None.
// In local dev over http://localhost, use secure=false so cookies are accepted.
func NewSessionManager(sessionKey, name, domain string, ttl time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("session key is empty; provide ≥32 random chars")
	}
	if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}
	if name == "" {
		name = DefaultSessionName
	}

	// The encryption key is derived from the session key so every instance
	// (and every restart) can read cookies issued by the others.
	blockKey := sha256.Sum256([]byte("teamhub/block/" + sessionKey))
	store := sessions.NewCookieStore([]byte(sessionKey), blockKey[:])

	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Secure:   secure,
		HttpOnly: true,
	}
	if secure {
		opts.SameSite = http.SameSiteNoneMode
	} else {
		opts.SameSite = http.SameSiteLaxMode
	}
	store.Options = opts
	store.MaxAge(opts.MaxAge)

	logger.Info("session store initialized",
		zap.String("name", name),
		zap.Bool("secure", secure),
		zap.String("domain", domain),
		zap.Duration("ttl", ttl))

	return &SessionManager{store: store, name: name, logger: logger}, nil
}

// SetFetcher wires the user lookup used by LoadSessionUser.
func (sm *SessionManager) SetFetcher(f UserFetcher) { sm.fetcher = f }

// SignIn records uid in the session cookie.
func (sm *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, uid string) error {
	sess, _ := sm.store.Get(r, sm.name)
	sess.Values[isAuthKey] = true
	sess.Values[userUIDKey] = uid
	sess.Values[signedInAt] = time.Now().UTC().Unix()
	return sess.Save(r, w)
}

// SignOut expires the session cookie.
func (sm *SessionManager) SignOut(w http.ResponseWriter, r *http.Request) error {
	sess, _ := sm.store.Get(r, sm.name)
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// SessionUID returns the uid stored in the request's session cookie.
func (sm *SessionManager) SessionUID(r *http.Request) (string, bool) {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil {
		return "", false
	}
	if isAuth, _ := sess.Values[isAuthKey].(bool); !isAuth {
		return "", false
	}
	uid, _ := sess.Values[userUIDKey].(string)
	return uid, uid != ""
}

// LoadSessionUser injects the user into context if they are signed in.
// A uid whose user has disappeared is treated as signed out.
func (sm *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, ok := sm.SessionUID(r)
		if !ok || sm.fetcher == nil {
			next.ServeHTTP(w, r)
			return
		}

		u, err := sm.fetcher.GetByUID(r.Context(), uid)
		switch {
		case err == nil:
			r = withUser(r, &SessionUser{
				UID:        u.UID,
				Name:       u.Name(),
				Email:      u.Email,
				Role:       u.Role,
				Department: u.Department,
			})
		case errors.Is(err, apperr.ErrNotFound):
			sm.logger.Info("session refers to missing user", zap.String("uid", uid))
		default:
			sm.logger.Error("load session user", zap.String("uid", uid), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, apperr.KindStoreUnavailable.String())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSignedIn ensures there is a user in context (set by LoadSessionUser).
func (sm *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusUnauthorized, "not signed in")
	})
}

// RequireRole ensures there is a user with one of the allowed roles in context.
func (sm *SessionManager) RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		set[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := CurrentUser(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "not signed in")
				return
			}
			if _, has := set[strings.ToLower(u.Role)]; !has {
				writeError(w, http.StatusForbidden, apperr.KindUnauthorized.String())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// helpers

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
