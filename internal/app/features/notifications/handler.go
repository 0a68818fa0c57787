// internal/app/features/notifications/handler.go
package notifications

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dalemusser/teamhub/internal/app/features/shared/respond"
	notificationrepo "github.com/dalemusser/teamhub/internal/app/repos/notifications"
	"github.com/dalemusser/teamhub/internal/app/system/apperr"
	"github.com/dalemusser/teamhub/internal/app/system/authz"
	"github.com/dalemusser/teamhub/internal/app/system/feed"
	"github.com/dalemusser/teamhub/internal/app/system/session"
	"github.com/dalemusser/teamhub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// DefaultKeepAlive spaces SSE keepalive comments.
const DefaultKeepAlive = 25 * time.Second

// ActivityToucher marks a user's activity session as alive.
type ActivityToucher interface {
	Touch(ctx context.Context, uid string) (int64, error)
}

// Handler serves the notification endpoints.
type Handler struct {
	Notifications *notificationrepo.Repo
	Feed          *feed.Feed
	Sessions      *session.Registry
	Activity      ActivityToucher // may be nil
	Log           *zap.Logger
	KeepAlive     time.Duration
}

func NewHandler(repo *notificationrepo.Repo, f *feed.Feed, reg *session.Registry, activity ActivityToucher, logger *zap.Logger) *Handler {
	return &Handler{
		Notifications: repo,
		Feed:          f,
		Sessions:      reg,
		Activity:      activity,
		Log:           logger,
		KeepAlive:     DefaultKeepAlive,
	}
}

// list handles GET /notifications?limit=. Without a limit the feed size
// applies; limit=0 returns the whole inbox.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit := h.Feed.Size
	if raw := query.Get(r, "limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			respond.Error(w, r, h.Log, apperr.Field("notifications.list", "limit", "must be a non-negative integer"))
			return
		}
		limit = n
	}
	items, err := h.Notifications.List(r.Context(), authz.PrincipalFrom(r), limit)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, feed.Snapshot{Items: items, Unread: feed.UnreadCount(items)})
}

// unreadCount handles GET /notifications/unread-count.
func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.Notifications.CountUnread(r.Context(), authz.PrincipalFrom(r))
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]int64{"unread": n})
}

// get handles GET /notifications/{id}.
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	n, err := h.Notifications.Get(r.Context(), authz.PrincipalFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, n)
}

// markRead handles POST /notifications/{id}/read. Idempotent; 204.
func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Feed.MarkAsRead(r.Context(), authz.PrincipalFrom(r), chi.URLParam(r, "id")); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.NoContent(w)
}

// markAllRead handles POST /notifications/read-all.
func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Feed.MarkAllAsRead(r.Context(), authz.PrincipalFrom(r))
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]int64{"marked": n})
}

// redeliver handles POST /notifications/redeliver (superadmin). It re-sends
// one notification that a side effect failed to write; 201.
func (h *Handler) redeliver(w http.ResponseWriter, r *http.Request) {
	const op = "notifications.redeliver"
	var in notificationrepo.Redelivery
	if err := respond.Decode(w, r, op, &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	n, err := h.Notifications.Redeliver(r.Context(), authz.PrincipalFrom(r), in)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, n)
}

// stream handles GET /notifications/stream as Server-Sent Events. Every
// "snapshot" event carries the newest notifications and the unread count.
// The stream ends when the client leaves or the user signs out.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Sessions.Start(r.Context(), authz.PrincipalFrom(r))
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	defer sess.End()

	sub, err := h.Feed.Subscribe(sess)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	es, err := respond.NewEventStream(w)
	if err != nil {
		h.Log.Warn("notification stream: no flusher", zap.Error(err))
		return
	}
	uid := sess.Principal().UID
	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	tick := time.NewTicker(keepAlive)
	defer tick.Stop()

	for {
		select {
		case <-sess.Done():
			return
		case <-tick.C:
			if err := es.Comment("keepalive"); err != nil {
				return
			}
			h.touch(sess.Context(), uid)
		case snap, ok := <-sub.Updates():
			if !ok {
				return
			}
			if err := es.Send("snapshot", snap); err != nil {
				return
			}
		}
	}
}

// touch keeps the activity session open while the stream is.
func (h *Handler) touch(ctx context.Context, uid string) {
	if h.Activity == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()
	if _, err := h.Activity.Touch(ctx, uid); err != nil {
		h.Log.Debug("notification stream: touch activity", zap.String("uid", uid), zap.Error(err))
	}
}
