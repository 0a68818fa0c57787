// Package feed is the live notification feed: a per-principal push stream
// of the newest notifications, bound to a session, plus read-state changes.
//
// On deployments without change streams the feed polls instead, so clients
// see the same Snapshot sequence either way, only later.
package feed

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/teamhub/internal/app/system/apperr"
	"github.com/dalemusser/teamhub/internal/app/system/livequery"
	"github.com/dalemusser/teamhub/internal/app/system/metrics"
	"github.com/dalemusser/teamhub/internal/app/system/session"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"go.uber.org/zap"
)

// DefaultSize is how many notifications a snapshot holds.
const DefaultSize = 20

// DefaultPollInterval paces the fallback when change streams are missing.
const DefaultPollInterval = 5 * time.Second

// Source is the notification repository as the feed uses it.
type Source interface {
	List(ctx context.Context, p models.Principal, limit int64) ([]models.Notification, error)
	Subscribe(ctx context.Context, p models.Principal, limit int64) (*livequery.Stream[models.Notification], error)
	MarkAsRead(ctx context.Context, p models.Principal, id string) error
	MarkAllAsRead(ctx context.Context, p models.Principal) (int64, error)
}

// Snapshot is one delivery: the newest items and how many are unread.
type Snapshot struct {
	Items  []models.Notification `json:"items"`
	Unread int                   `json:"unread"`
}

// Feed hands out subscriptions.
type Feed struct {
	src     Source
	metrics *metrics.Metrics
	log     *zap.Logger

	Size         int64
	PollInterval time.Duration
}

// New builds a feed. m may be nil.
func New(src Source, m *metrics.Metrics, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{src: src, metrics: m, log: logger, Size: DefaultSize, PollInterval: DefaultPollInterval}
}

// UnreadCount counts the unread items.
func UnreadCount(items []models.Notification) int {
	n := 0
	for _, it := range items {
		if !it.Read {
			n++
		}
	}
	return n
}

func snapshotOf(items []models.Notification) Snapshot {
	if items == nil {
		items = []models.Notification{}
	}
	return Snapshot{Items: items, Unread: UnreadCount(items)}
}

// Subscription delivers snapshots until it is closed or its session ends.
type Subscription struct {
	updates chan Snapshot
	cancel  context.CancelFunc
	once    sync.Once
	wg      sync.WaitGroup
	live    bool
}

// Updates yields the latest snapshot. It is closed when the subscription ends.
func (s *Subscription) Updates() <-chan Snapshot { return s.updates }

// Live reports whether snapshots are pushed on change (true) or polled.
func (s *Subscription) Live() bool { return s.live }

// Close stops the subscription and waits for it. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	s.wg.Wait()
}

func (s *Subscription) deliver(snap Snapshot) {
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- snap:
	default:
	}
}

// ErrSessionEnded is returned when subscribing under a session that has ended.
var ErrSessionEnded = errors.New("feed: session has ended")

// Subscribe opens the feed for the session's principal. The subscription is
// released when the session ends; callers may also Close it earlier.
func (f *Feed) Subscribe(sess *session.Session) (*Subscription, error) {
	const op = "feed.subscribe"
	p := sess.Principal()
	if !p.Authenticated() {
		return nil, apperr.Unauthorized(op, "not signed in")
	}
	size := f.Size
	if size <= 0 {
		size = DefaultSize
	}

	ctx, cancel := context.WithCancel(sess.Context())
	sub := &Subscription{updates: make(chan Snapshot, 1), cancel: cancel}

	stream, err := f.src.Subscribe(ctx, p, size)
	switch {
	case err == nil:
		sub.live = true
		sub.wg.Add(1)
		go f.forward(ctx, sub, stream)
	case errors.Is(err, livequery.ErrNotSupported):
		items, err := f.src.List(ctx, p, size)
		if err != nil {
			cancel()
			return nil, err
		}
		sub.deliver(snapshotOf(items))
		sub.wg.Add(1)
		go f.poll(ctx, sub, p, size, signature(items))
	default:
		cancel()
		return nil, err
	}

	f.metrics.StreamOpened()
	if !sess.Acquire(sub.Close) {
		return nil, ErrSessionEnded
	}
	f.log.Debug("feed opened", zap.String("uid", p.UID), zap.String("session", sess.ID()), zap.Bool("live", sub.live))
	return sub, nil
}

func (f *Feed) forward(ctx context.Context, sub *Subscription, stream *livequery.Stream[models.Notification]) {
	defer sub.wg.Done()
	defer close(sub.updates)
	defer f.metrics.StreamClosed()
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case items, ok := <-stream.Updates():
			if !ok {
				if err := stream.Err(); err != nil {
					f.log.Warn("feed stream ended", zap.Error(err))
				}
				return
			}
			sub.deliver(snapshotOf(items))
		}
	}
}

func (f *Feed) poll(ctx context.Context, sub *Subscription, p models.Principal, size int64, last string) {
	defer sub.wg.Done()
	defer close(sub.updates)
	defer f.metrics.StreamClosed()

	interval := f.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			items, err := f.src.List(ctx, p, size)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				f.log.Warn("feed poll failed", zap.String("uid", p.UID), zap.Error(err))
				continue
			}
			if sig := signature(items); sig != last {
				last = sig
				sub.deliver(snapshotOf(items))
			}
		}
	}
}

// signature identifies a snapshot by ids and read flags.
func signature(items []models.Notification) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString(it.ID.Hex())
		b.WriteString(strconv.FormatBool(it.Read))
	}
	return b.String()
}

// MarkAsRead marks one notification read. Idempotent.
func (f *Feed) MarkAsRead(ctx context.Context, p models.Principal, id string) error {
	return f.src.MarkAsRead(ctx, p, id)
}

// MarkAllAsRead marks read the notifications unread at call time.
func (f *Feed) MarkAllAsRead(ctx context.Context, p models.Principal) (int64, error) {
	return f.src.MarkAllAsRead(ctx, p)
}
