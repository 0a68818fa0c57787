// Package identity authenticates credentials against the users collection
// and announces sign-in and sign-out to interested components.
package identity

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/teamhub/internal/app/system/apperr"
	"github.com/dalemusser/teamhub/internal/app/system/normalize"
	"github.com/dalemusser/teamhub/internal/app/system/ratelimit"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrThrottled is returned when an email has too many recent attempts.
	ErrThrottled = errors.New("too many sign-in attempts, try again later")
)

// CredentialsError carries audit detail for a failed sign-in.
// errors.Is(err, ErrInvalidCredentials) holds for it.
type CredentialsError struct {
	UID          string // set when the email matched a user
	UnknownEmail bool
}

func (e *CredentialsError) Error() string        { return ErrInvalidCredentials.Error() }
func (e *CredentialsError) Is(target error) bool { return target == ErrInvalidCredentials }

// EventKind distinguishes identity events.
type EventKind int

const (
	SignedIn EventKind = iota + 1
	SignedOut
)

func (k EventKind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers synchronously, in subscription order.
type Event struct {
	Kind EventKind
	UID  string
	At   time.Time
}

// UserLookup finds a user by normalized email. Returns mongo.ErrNoDocuments
// when there is none.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (models.User, error)
}

// Provider is the in-process identity provider.
type Provider struct {
	users   UserLookup
	limiter *ratelimit.Limiter // per-email; nil disables throttling
	log     *zap.Logger

	mu   sync.Mutex
	subs map[int]func(Event)
	next int
}

// NewProvider wires a provider. limiter may be nil.
func NewProvider(users UserLookup, limiter *ratelimit.Limiter, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		users:   users,
		limiter: limiter,
		log:     logger,
		subs:    make(map[int]func(Event)),
	}
}

// dummyHash keeps the unknown-email path as slow as a real comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("teamhub-timing-equalizer"), bcrypt.DefaultCost)

// Authenticate verifies email and password and resolves the principal.
func (p *Provider) Authenticate(ctx context.Context, email, password string) (models.Principal, error) {
	email = normalize.Email(email)
	key := ratelimit.EmailKey(email)
	if p.limiter != nil && !p.limiter.Allow(key) {
		p.log.Warn("sign-in throttled", zap.String("email", email))
		return models.Principal{}, ErrThrottled
	}

	u, err := p.users.GetByEmail(ctx, email)
	if errors.Is(err, mongo.ErrNoDocuments) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return models.Principal{}, &CredentialsError{UnknownEmail: true}
	}
	if err != nil {
		return models.Principal{}, apperr.FromStore("identity.authenticate", err)
	}

	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return models.Principal{}, &CredentialsError{UID: u.UID}
	}

	principal := models.PrincipalOf(u)
	if !principal.Authenticated() {
		p.log.Warn("user has no usable role", zap.String("uid", u.UID), zap.String("role", u.Role))
		return models.Principal{}, &CredentialsError{UID: u.UID}
	}

	if p.limiter != nil {
		p.limiter.Reset(key)
	}
	p.publish(Event{Kind: SignedIn, UID: u.UID, At: time.Now()})
	return principal, nil
}

// SignOut announces that uid signed out. Sessions bound to uid end.
func (p *Provider) SignOut(_ context.Context, uid string) error {
	if uid == "" {
		return nil
	}
	p.publish(Event{Kind: SignedOut, UID: uid, At: time.Now()})
	return nil
}

// Subscribe registers fn for identity events and returns its unsubscribe.
func (p *Provider) Subscribe(fn func(Event)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.next
	p.next++
	p.subs[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

func (p *Provider) publish(e Event) {
	p.mu.Lock()
	ids := make([]int, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	fns := make([]func(Event), 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, p.subs[id])
	}
	p.mu.Unlock()

	// Called outside the lock so subscribers may unsubscribe.
	for _, fn := range fns {
		fn(e)
	}
}

// HashPassword returns the bcrypt hash stored for a new credential.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
