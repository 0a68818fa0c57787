// Package session binds a principal to a cancelable lifetime.
//
// A Session is started when a client opens something long-lived (a live
// notification stream, a meeting subscription). Resources acquired under
// it are released when it ends, whichever way it ends: the client leaves,
// the server shuts down, or the user signs out elsewhere.
package session

import (
	"context"
	"sync"

	"github.com/dalemusser/teamhub/internal/app/system/apperr"
	"github.com/dalemusser/teamhub/internal/app/system/identity"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is one principal's live context.
type Session struct {
	id        string
	principal models.Principal
	ctx       context.Context
	cancel    context.CancelFunc
	reg       *Registry

	mu       sync.Mutex
	releases []func()
	ended    bool
}

// ID is unique per session.
func (s *Session) ID() string { return s.id }

// Principal is the identity the session acts for.
func (s *Session) Principal() models.Principal { return s.principal }

// Context is canceled when the session ends.
func (s *Session) Context() context.Context { return s.ctx }

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Acquire registers release to run when the session ends. If the session
// has already ended, release runs immediately and Acquire returns false.
func (s *Session) Acquire(release func()) bool {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		release()
		return false
	}
	s.releases = append(s.releases, release)
	s.mu.Unlock()
	return true
}

// End cancels the session and releases its resources in reverse order of
// acquisition. Safe to call more than once.
func (s *Session) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	releases := s.releases
	s.releases = nil
	s.mu.Unlock()

	s.cancel()
	for i := len(releases) - 1; i >= 0; i-- {
		releases[i]()
	}
	s.reg.remove(s)
}

// Registry tracks live sessions by uid.
type Registry struct {
	log *zap.Logger

	mu    sync.Mutex
	byUID map[string]map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{log: logger, byUID: make(map[string]map[string]*Session)}
}

// Start opens a session for p under parent. Unauthenticated principals
// are refused.
func (r *Registry) Start(parent context.Context, p models.Principal) (*Session, error) {
	if !p.Authenticated() {
		return nil, apperr.Unauthorized("session.start", "not signed in")
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		id:        uuid.NewString(),
		principal: p,
		ctx:       ctx,
		cancel:    cancel,
		reg:       r,
	}

	r.mu.Lock()
	m, ok := r.byUID[p.UID]
	if !ok {
		m = make(map[string]*Session)
		r.byUID[p.UID] = m
	}
	m[s.id] = s
	r.mu.Unlock()

	// End with the parent too, so the registry never holds dead sessions.
	go func() {
		<-ctx.Done()
		s.End()
	}()
	return s, nil
}

func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byUID[s.principal.UID]; ok {
		delete(m, s.id)
		if len(m) == 0 {
			delete(r.byUID, s.principal.UID)
		}
	}
}

// EndUser ends every live session of uid and returns how many ended.
func (r *Registry) EndUser(uid string) int {
	r.mu.Lock()
	live := make([]*Session, 0, len(r.byUID[uid]))
	for _, s := range r.byUID[uid] {
		live = append(live, s)
	}
	r.mu.Unlock()

	for _, s := range live {
		s.End()
	}
	if len(live) > 0 {
		r.log.Info("ended sessions on sign-out", zap.String("uid", uid), zap.Int("count", len(live)))
	}
	return len(live)
}

// EndAll ends every live session (server shutdown).
func (r *Registry) EndAll() {
	r.mu.Lock()
	live := make([]*Session, 0)
	for _, m := range r.byUID {
		for _, s := range m {
			live = append(live, s)
		}
	}
	r.mu.Unlock()

	for _, s := range live {
		s.End()
	}
}

// Count returns the number of live sessions for uid.
func (r *Registry) Count(uid string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUID[uid])
}

// OnIdentityEvent ends a user's sessions when they sign out. Pass it to
// identity.Provider.Subscribe.
func (r *Registry) OnIdentityEvent(e identity.Event) {
	if e.Kind == identity.SignedOut {
		r.EndUser(e.UID)
	}
}
