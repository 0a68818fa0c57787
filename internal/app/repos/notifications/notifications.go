// Package notifications is the notification repository. Every read and
// write is scoped to the principal's own inbox. Notifications are only ever
// created by the effect coordinator, either as a side effect or through a
// superadmin's Redeliver.
package notifications

import (
	"context"
	"errors"

	notificationstore "github.com/dalemusser/teamhub/internal/app/store/notifications"
	"github.com/dalemusser/teamhub/internal/app/store/audit"
	"github.com/dalemusser/teamhub/internal/app/system/apperr"
	"github.com/dalemusser/teamhub/internal/app/system/auditlog"
	"github.com/dalemusser/teamhub/internal/app/system/authz"
	"github.com/dalemusser/teamhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/teamhub/internal/app/system/inputval"
	"github.com/dalemusser/teamhub/internal/app/system/livequery"
	"github.com/dalemusser/teamhub/internal/app/system/timeouts"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Retrier re-sends a notification an earlier effect failed to write.
type Retrier interface {
	Retry(ctx context.Context, n models.Notification) (models.Notification, error)
}

// UserLookup confirms a redelivery recipient exists.
type UserLookup interface {
	GetByUID(ctx context.Context, uid string) (models.User, error)
}

// Repo is the notification repository.
type Repo struct {
	store *notificationstore.Store
	log   *zap.Logger

	// Retrier and Users back Redeliver, which reports the store as
	// unavailable without them.
	Retrier Retrier
	Users   UserLookup
	Audit   *auditlog.Logger
}

// New wires a repository.
func New(store *notificationstore.Store, logger *zap.Logger) *Repo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{store: store, log: logger}
}

func signedIn(op string, p models.Principal) error {
	if !p.Authenticated() {
		return apperr.Unauthorized(op, authz.ReasonNotSignedIn)
	}
	return nil
}

func parseID(op, id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperr.NotFound(op)
	}
	return oid, nil
}

// List returns p's most recent notifications, newest first. A limit <= 0
// returns the whole inbox.
func (r *Repo) List(ctx context.Context, p models.Principal, limit int64) ([]models.Notification, error) {
	const op = "notifications.list"
	if err := signedIn(op, p); err != nil {
		return nil, err
	}
	var out []models.Notification
	err := apperr.RetryRead(ctx, func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, timeouts.Medium())
		defer cancel()
		var err error
		out, err = r.store.List(rctx, p.UID, limit)
		return err
	})
	if err != nil {
		return nil, apperr.FromStore(op, err)
	}
	return out, nil
}

// Get returns one of p's notifications. Someone else's is NotFound.
func (r *Repo) Get(ctx context.Context, p models.Principal, id string) (models.Notification, error) {
	const op = "notifications.get"
	if err := signedIn(op, p); err != nil {
		return models.Notification{}, err
	}
	oid, err := parseID(op, id)
	if err != nil {
		return models.Notification{}, err
	}
	var n models.Notification
	err = apperr.RetryRead(ctx, func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, timeouts.Short())
		defer cancel()
		var err error
		n, err = r.store.Get(rctx, oid, p.UID)
		return err
	})
	if err != nil {
		return models.Notification{}, apperr.FromStore(op, err)
	}
	return n, nil
}

// MarkAsRead marks one of p's notifications read. Marking an already read
// notification succeeds without change.
func (r *Repo) MarkAsRead(ctx context.Context, p models.Principal, id string) error {
	const op = "notifications.read"
	if err := signedIn(op, p); err != nil {
		return err
	}
	oid, err := parseID(op, id)
	if err != nil {
		return err
	}
	var recipient string
	err = apperr.RetryRead(ctx, func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, timeouts.Short())
		defer cancel()
		var err error
		recipient, err = r.store.Recipient(rctx, oid)
		return err
	})
	if err != nil {
		return apperr.FromStore(op, err)
	}
	// Someone else's notification is NotFound, as in Get.
	if !authz.Allowed(p, authz.ActionReadNotification, authz.Target{Recipient: recipient}) {
		return apperr.NotFound(op)
	}
	wctx, cancel := timeouts.Detached(ctx, timeouts.Short())
	defer cancel()
	if err := r.store.MarkRead(wctx, oid, p.UID); err != nil {
		return apperr.FromStore(op, err)
	}
	return nil
}

// MarkAllAsRead marks read exactly the notifications that were unread when
// it was called. Notifications arriving while it runs stay unread.
// It returns how many were changed.
func (r *Repo) MarkAllAsRead(ctx context.Context, p models.Principal) (int64, error) {
	const op = "notifications.read_all"
	if err := signedIn(op, p); err != nil {
		return 0, err
	}
	wctx, cancel := timeouts.Detached(ctx, timeouts.Medium())
	defer cancel()

	ids, err := r.store.UnreadIDs(wctx, p.UID)
	if err != nil {
		return 0, apperr.FromStore(op, err)
	}
	n, err := r.store.MarkManyRead(wctx, p.UID, ids)
	if err != nil {
		return 0, apperr.FromStore(op, err)
	}
	return n, nil
}

// CountUnread returns how many of p's notifications are unread.
func (r *Repo) CountUnread(ctx context.Context, p models.Principal) (int64, error) {
	const op = "notifications.count_unread"
	if err := signedIn(op, p); err != nil {
		return 0, err
	}
	var n int64
	err := apperr.RetryRead(ctx, func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, timeouts.Short())
		defer cancel()
		var err error
		n, err = r.store.CountUnread(rctx, p.UID)
		return err
	})
	if err != nil {
		return 0, apperr.FromStore(op, err)
	}
	return n, nil
}

// Subscribe streams p's newest limit notifications until ctx ends or the
// stream is closed. The caller owns the stream and must Close it.
func (r *Repo) Subscribe(ctx context.Context, p models.Principal, limit int64) (*livequery.Stream[models.Notification], error) {
	const op = "notifications.subscribe"
	if err := signedIn(op, p); err != nil {
		return nil, err
	}
	s, err := livequery.Watch[models.Notification](ctx, r.store.Collection(), livequery.Query{
		Filter: notificationstore.RecipientQuery(p.UID),
		Sort:   notificationstore.NewestFirst(),
		Limit:  limit,
	}, r.log.With(zap.String("uid", p.UID)))
	if errors.Is(err, livequery.ErrNotSupported) {
		return nil, err
	}
	if err != nil {
		return nil, apperr.FromStore(op, err)
	}
	return s, nil
}

// Redelivery is the input for Redeliver.
type Redelivery struct {
	UserID  string `json:"user_id" validate:"required"`
	Title   string `json:"title" validate:"required,max=200"`
	Message string `json:"message" validate:"max=2000"`
	Type    string `json:"type" validate:"required,oneof=task meeting user general"`
	RefID   string `json:"ref_id" validate:"max=64"`
}

// Redeliver writes a notification that an earlier side effect failed to
// deliver. Only superadmins may call it; the recipient must exist.
func (r *Repo) Redeliver(ctx context.Context, p models.Principal, in Redelivery) (models.Notification, error) {
	const op = "notifications.redeliver"
	if d := authz.CanPerform(p, authz.ActionRedeliverNotification, authz.Target{}); !d.Allowed {
		return models.Notification{}, apperr.Unauthorized(op, d.Reason)
	}
	if err := inputval.Struct(op, in); err != nil {
		return models.Notification{}, err
	}
	title := htmlsanitize.Text(in.Title)
	if title == "" {
		return models.Notification{}, apperr.Field(op, "title", "is required")
	}
	if r.Retrier == nil || r.Users == nil {
		return models.Notification{}, apperr.Unavailable(op, errors.New("redelivery is not configured"))
	}

	err := apperr.RetryRead(ctx, func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, timeouts.Short())
		defer cancel()
		_, err := r.Users.GetByUID(rctx, in.UserID)
		return err
	})
	if err != nil {
		if errors.Is(apperr.FromStore(op, err), apperr.ErrNotFound) {
			return models.Notification{}, apperr.Field(op, "user_id", "no such user")
		}
		return models.Notification{}, apperr.FromStore(op, err)
	}

	n, err := r.Retrier.Retry(ctx, models.Notification{
		UserID:  in.UserID,
		Title:   title,
		Message: htmlsanitize.Text(in.Message),
		Type:    in.Type,
		RefID:   in.RefID,
	})
	if err != nil {
		return models.Notification{}, apperr.FromStore(op, err)
	}
	r.Audit.Admin(ctx, audit.EventEffectRetried, p.UID, n.UserID, map[string]string{
		"notification_id": n.ID.Hex(),
		"type":            n.Type,
	})
	return n, nil
}
