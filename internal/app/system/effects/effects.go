// Package effects writes the notifications that follow a committed write.
//
// Every effect runs after the primary entity is durable and never reports
// back as a failure of that write. Failed notifications are logged with
// enough detail to replay them through Retry, and counted in metrics.
package effects

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/teamhub/internal/app/system/metrics"
	"github.com/dalemusser/teamhub/internal/app/system/timeouts"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NotificationWriter persists one notification.
type NotificationWriter interface {
	Insert(ctx context.Context, n models.Notification) (models.Notification, error)
}

// Recipients lists every user uid for fan-out.
type Recipients interface {
	UIDs(ctx context.Context) ([]string, error)
}

// Config tunes the coordinator. Zero values take defaults.
type Config struct {
	Concurrency int           // parallel writes during fan-out (default 8)
	Timeout     time.Duration // budget for one effect (default timeouts.Long())
}

// Report describes what an effect wrote.
type Report struct {
	Sent   []models.Notification
	Failed []models.Notification
	Err    error // every failure, combined
}

// Coordinator runs side effects.
type Coordinator struct {
	notes   NotificationWriter
	users   Recipients
	metrics *metrics.Metrics
	log     *zap.Logger
	cfg     Config

	wg sync.WaitGroup
}

// New builds a coordinator. m may be nil.
func New(notes NotificationWriter, users Recipients, m *metrics.Metrics, logger *zap.Logger, cfg Config) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Coordinator{notes: notes, users: users, metrics: m, log: logger, cfg: cfg}
}

// Go runs fn in the background. Callers use it so a fan-out never delays
// the response to the primary write. Wait blocks until every fn returned.
func (c *Coordinator) Go(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				c.log.Error("side effect panicked", zap.Any("panic", rec))
			}
		}()
		fn()
	}()
}

// Wait blocks until every effect started with Go has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// detach gives an effect its own deadline that survives the caller leaving.
func (c *Coordinator) detach(ctx context.Context, op string) (context.Context, context.CancelFunc) {
	d := c.cfg.Timeout
	if d <= 0 {
		d = timeouts.Long()
	}
	return timeouts.WithTimeout(context.WithoutCancel(ctx), d, c.log, op)
}

// TaskCreated notifies the assignee of a new task.
func (c *Coordinator) TaskCreated(ctx context.Context, t models.Task) Report {
	ctx, cancel := c.detach(ctx, "effects.task_created")
	defer cancel()

	return c.send(ctx, "task_created", []models.Notification{{
		UserID:  t.AssignedTo,
		Title:   "New task assigned",
		Message: fmt.Sprintf("%s assigned you %q", t.AssignedByName, t.Title),
		Type:    models.NotificationTypeTask,
		RefID:   t.ID.Hex(),
	}})
}

// MeetingCreated notifies every user of a new meeting. A failure for one
// recipient does not stop the others.
func (c *Coordinator) MeetingCreated(ctx context.Context, m models.Meeting) Report {
	ctx, cancel := c.detach(ctx, "effects.meeting_created")
	defer cancel()

	uids, err := c.users.UIDs(ctx)
	if err != nil {
		c.log.Error("meeting fan-out: listing recipients failed",
			zap.String("meeting_id", m.ID.Hex()), zap.Error(err))
		c.metrics.NotificationFailed(models.NotificationTypeMeeting)
		return Report{Err: err}
	}

	msg := fmt.Sprintf("%s scheduled %q for %s", m.CreatedByName, m.Title, m.Date.Format("Jan 2, 2006 at 15:04"))
	if m.Location != "" {
		msg += " at " + m.Location
	}
	batch := make([]models.Notification, 0, len(uids))
	for _, uid := range uids {
		batch = append(batch, models.Notification{
			UserID:  uid,
			Title:   "New meeting scheduled",
			Message: msg,
			Type:    models.NotificationTypeMeeting,
			RefID:   m.ID.Hex(),
		})
	}
	return c.send(ctx, "meeting_created", batch)
}

// NoteAdded notifies the task's assigner and assignee, skipping the note's
// author. When both are the same user one notification is sent.
func (c *Coordinator) NoteAdded(ctx context.Context, t models.Task, n models.Note) Report {
	ctx, cancel := c.detach(ctx, "effects.note_added")
	defer cancel()

	var batch []models.Notification
	seen := map[string]bool{n.Author: true}
	for _, uid := range []string{t.AssignedBy, t.AssignedTo} {
		if uid == "" || seen[uid] {
			continue
		}
		seen[uid] = true
		batch = append(batch, models.Notification{
			UserID:  uid,
			Title:   "New note on task",
			Message: fmt.Sprintf("%s added a note to %q", n.AuthorName, t.Title),
			Type:    models.NotificationTypeTask,
			RefID:   t.ID.Hex(),
		})
	}
	if len(batch) == 0 {
		return Report{}
	}
	return c.send(ctx, "note_added", batch)
}

// Retry writes a notification that an earlier effect failed to deliver.
// Operators replay entries from the failure log with it.
func (c *Coordinator) Retry(ctx context.Context, n models.Notification) (models.Notification, error) {
	ctx, cancel := c.detach(ctx, "effects.retry")
	defer cancel()

	out, err := c.notes.Insert(ctx, n)
	if err != nil {
		c.metrics.NotificationFailed(n.Type)
		c.log.Warn("notification retry failed", notificationFields(n, err)...)
		return models.Notification{}, err
	}
	c.metrics.NotificationSent(n.Type)
	return out, nil
}

// send writes batch with bounded concurrency. Workers never return an
// error to the group so one failure cannot cancel the rest.
func (c *Coordinator) send(ctx context.Context, effect string, batch []models.Notification) Report {
	var (
		mu  sync.Mutex
		rep Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for _, n := range batch {
		g.Go(func() error {
			saved, err := c.notes.Insert(gctx, n)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rep.Failed = append(rep.Failed, n)
				rep.Err = multierr.Append(rep.Err, fmt.Errorf("notify %s: %w", n.UserID, err))
				c.metrics.NotificationFailed(n.Type)
				c.log.Warn("notification write failed", notificationFields(n, err)...)
				return nil
			}
			rep.Sent = append(rep.Sent, saved)
			c.metrics.NotificationSent(n.Type)
			return nil
		})
	}
	_ = g.Wait()

	if rep.Err != nil {
		c.log.Error("side effect partially failed",
			zap.String("effect", effect),
			zap.Int("sent", len(rep.Sent)),
			zap.Int("failed", len(rep.Failed)),
			zap.Error(rep.Err))
	}
	return rep
}

func notificationFields(n models.Notification, err error) []zap.Field {
	return []zap.Field{
		zap.String("user_id", n.UserID),
		zap.String("type", n.Type),
		zap.String("ref_id", n.RefID),
		zap.String("title", n.Title),
		zap.String("message", n.Message),
		zap.Error(err),
	}
}
