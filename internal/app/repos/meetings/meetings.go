// Package meetings is the meeting repository, including attendance.
package meetings

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/teamhub/internal/app/store/audit"
	meetingstore "github.com/dalemusser/teamhub/internal/app/store/meetings"
	"github.com/dalemusser/teamhub/internal/app/system/apperr"
	"github.com/dalemusser/teamhub/internal/app/system/auditlog"
	"github.com/dalemusser/teamhub/internal/app/system/authz"
	"github.com/dalemusser/teamhub/internal/app/system/effects"
	"github.com/dalemusser/teamhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/teamhub/internal/app/system/inputval"
	"github.com/dalemusser/teamhub/internal/app/system/livequery"
	"github.com/dalemusser/teamhub/internal/app/system/normalize"
	"github.com/dalemusser/teamhub/internal/app/system/timeouts"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// DefaultUpcomingLimit caps Upcoming.
const DefaultUpcomingLimit = 5

// Effects receives committed meeting writes.
type Effects interface {
	MeetingCreated(ctx context.Context, m models.Meeting) effects.Report
	Go(fn func())
}

// Repo is the meeting repository.
type Repo struct {
	store   *meetingstore.Store
	effects Effects
	audit   *auditlog.Logger
	log     *zap.Logger

	Location      *time.Location   // interprets date and time inputs
	UpcomingLimit int64            // cap for Upcoming
	Now           func() time.Time // clock for upcoming and attendance checks
}

// New wires a repository. audit may be nil.
func New(store *meetingstore.Store, fx Effects, audit *auditlog.Logger, logger *zap.Logger) *Repo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{
		store:         store,
		effects:       fx,
		audit:         audit,
		log:           logger,
		Location:      time.Local,
		UpcomingLimit: DefaultUpcomingLimit,
		Now:           time.Now,
	}
}

// NewMeeting is the input for Create.
type NewMeeting struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Time        string `json:"time" validate:"omitempty,datetime=15:04"`
	Location    string `json:"location" validate:"max=200"`
}

// MeetingPatch is the input for Update. Nil fields are left unchanged.
type MeetingPatch struct {
	Title       *string `json:"title" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	Date        *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time        *string `json:"time" validate:"omitempty,datetime=15:04"`
	Location    *string `json:"location" validate:"omitempty,max=200"`
	Status      *string `json:"status" validate:"omitempty,oneof=scheduled completed cancelled"`
}

// MeetingFilter narrows List and Subscribe.
type MeetingFilter struct {
	CreatedBy string
	Status    string
	Limit     int64
}

func (f MeetingFilter) store() meetingstore.Filter {
	return meetingstore.Filter{
		CreatedBy: f.CreatedBy,
		Status:    normalize.Status(normalize.Filter(f.Status)),
		Limit:     f.Limit,
	}
}

func parseID(op, id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperr.NotFound(op)
	}
	return oid, nil
}

// Redact hides the attendance roster from principals who may not view it.
// They still see whether they themselves are attending.
func Redact(p models.Principal, m models.Meeting) models.Meeting {
	if authz.Allowed(p, authz.ActionViewAttendance, authz.Target{}) {
		return m
	}
	self := []string{}
	if m.HasAttendee(p.UID) {
		self = append(self, p.UID)
	}
	m.Attendees = self
	m.AttendeesData = nil
	return m
}

func redactAll(p models.Principal, ms []models.Meeting) []models.Meeting {
	for i := range ms {
		ms[i] = Redact(p, ms[i])
	}
	return ms
}

// Create schedules a meeting and notifies every user.
func (r *Repo) Create(ctx context.Context, p models.Principal, in NewMeeting) (models.Meeting, error) {
	const op = "meetings.create"
	if d := authz.CanPerform(p, authz.ActionCreateMeeting, authz.Target{}); !d.Allowed {
		return models.Meeting{}, apperr.Unauthorized(op, d.Reason)
	}
	if err := inputval.Struct(op, in); err != nil {
		return models.Meeting{}, err
	}
	title := htmlsanitize.Text(in.Title)
	if title == "" {
		return models.Meeting{}, apperr.Field(op, "title", "is required")
	}
	date, err := inputval.ComposeInstant(in.Date, in.Time, r.Location)
	if err != nil {
		return models.Meeting{}, apperr.Field(op, "date", "is not a valid date")
	}

	m := models.Meeting{
		Title:         title,
		Description:   htmlsanitize.Sanitize(in.Description),
		Date:          date.UTC(),
		Location:      htmlsanitize.Text(in.Location),
		Status:        models.MeetingStatusScheduled,
		CreatedBy:     p.UID,
		CreatedByName: p.Name,
	}

	wctx, cancel := timeouts.Detached(ctx, timeouts.Medium())
	defer cancel()
	m, err = r.store.Create(wctx, m)
	if err != nil {
		return models.Meeting{}, apperr.FromStore(op, err)
	}

	r.audit.Admin(wctx, audit.EventMeetingCreated, p.UID, "", map[string]string{
		"meeting_id": m.ID.Hex(),
		"title":      m.Title,
	})
	r.effects.Go(func() { r.effects.MeetingCreated(ctx, m) })
	return m, nil
}

func (r *Repo) get(ctx context.Context, oid primitive.ObjectID) (models.Meeting, error) {
	var m models.Meeting
	err := apperr.RetryRead(ctx, func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, timeouts.Short())
		defer cancel()
		var err error
		m, err = r.store.Get(rctx, oid)
		return err
	})
	return m, err
}

// Get returns one meeting, redacted for p.
func (r *Repo) Get(ctx context.Context, p models.Principal, id string) (models.Meeting, error) {
	const op = "meetings.get"
	if !p.Authenticated() {
		return models.Meeting{}, apperr.Unauthorized(op, authz.ReasonNotSignedIn)
	}
	oid, err := parseID(op, id)
	if err != nil {
		return models.Meeting{}, err
	}
	m, err := r.get(ctx, oid)
	if err != nil {
		return models.Meeting{}, apperr.FromStore(op, err)
	}
	return Redact(p, m), nil
}

// List returns meetings, latest date first.
func (r *Repo) List(ctx context.Context, p models.Principal, f MeetingFilter) ([]models.Meeting, error) {
	const op = "meetings.list"
	if !p.Authenticated() {
		return nil, apperr.Unauthorized(op, authz.ReasonNotSignedIn)
	}
	sf := f.store()
	if sf.Status != "" && !oneOf(sf.Status, models.MeetingStatuses) {
		return nil, apperr.Field(op, "status", "is not a meeting status")
	}
	return r.list(ctx, op, p, sf)
}

// Upcoming returns the next meetings after now, soonest first, capped.
func (r *Repo) Upcoming(ctx context.Context, p models.Principal) ([]models.Meeting, error) {
	const op = "meetings.upcoming"
	if !p.Authenticated() {
		return nil, apperr.Unauthorized(op, authz.ReasonNotSignedIn)
	}
	limit := r.UpcomingLimit
	if limit <= 0 {
		limit = DefaultUpcomingLimit
	}
	return r.list(ctx, op, p, meetingstore.Filter{After: r.Now(), Ascending: true, Limit: limit})
}

func (r *Repo) list(ctx context.Context, op string, p models.Principal, sf meetingstore.Filter) ([]models.Meeting, error) {
	var out []models.Meeting
	err := apperr.RetryRead(ctx, func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, timeouts.Medium())
		defer cancel()
		var err error
		out, err = r.store.List(rctx, sf)
		return err
	})
	if err != nil {
		return nil, apperr.FromStore(op, err)
	}
	return redactAll(p, out), nil
}

// Update edits a meeting. Admins may only edit meetings they created; the
// store write is also conditional on created_by for them, so a concurrent
// change of ownership cannot slip through.
func (r *Repo) Update(ctx context.Context, p models.Principal, id string, in MeetingPatch) (models.Meeting, error) {
	const op = "meetings.update"
	if !p.Authenticated() {
		return models.Meeting{}, apperr.Unauthorized(op, authz.ReasonNotSignedIn)
	}
	oid, err := parseID(op, id)
	if err != nil {
		return models.Meeting{}, err
	}
	cur, err := r.get(ctx, oid)
	if err != nil {
		return models.Meeting{}, apperr.FromStore(op, err)
	}
	if d := authz.CanPerform(p, authz.ActionEditMeeting, authz.MeetingTarget(cur, p.UID, r.Now())); !d.Allowed {
		return models.Meeting{}, apperr.Unauthorized(op, d.Reason)
	}
	createdBy := ""
	if p.Role != models.RoleSuperAdmin {
		createdBy = p.UID
	}
	if in.Status != nil {
		*in.Status = normalize.Status(*in.Status)
	}
	if err := inputval.Struct(op, in); err != nil {
		return models.Meeting{}, err
	}

	var patch meetingstore.Patch
	changed := false
	if in.Title != nil {
		title := htmlsanitize.Text(*in.Title)
		if title == "" {
			return models.Meeting{}, apperr.Field(op, "title", "is required")
		}
		patch.Title, changed = &title, true
	}
	if in.Description != nil {
		desc := htmlsanitize.Sanitize(*in.Description)
		patch.Description, changed = &desc, true
	}
	if in.Location != nil {
		loc := htmlsanitize.Text(*in.Location)
		patch.Location, changed = &loc, true
	}
	if in.Status != nil && *in.Status != "" {
		patch.Status, changed = in.Status, true
	}
	if in.Date != nil || in.Time != nil {
		// A lone half keeps the other half of the stored date.
		date, err := inputval.MergeInstant(cur.Date, in.Date, in.Time, r.Location)
		if err != nil {
			field := "date"
			if in.Date == nil {
				field = "time"
			}
			return models.Meeting{}, apperr.Field(op, field, "is not a valid date")
		}
		date = date.UTC()
		patch.Date, changed = &date, true
	}
	if !changed {
		return models.Meeting{}, apperr.Field(op, "patch", "nothing to update")
	}

	wctx, cancel := timeouts.Detached(ctx, timeouts.Short())
	defer cancel()
	m, err := r.store.Update(wctx, oid, createdBy, patch)
	if err != nil {
		return models.Meeting{}, apperr.FromStore(op, err)
	}
	r.audit.Admin(wctx, audit.EventMeetingUpdated, p.UID, "", map[string]string{"meeting_id": m.ID.Hex()})
	return Redact(p, m), nil
}

// Delete removes a meeting permanently.
func (r *Repo) Delete(ctx context.Context, p models.Principal, id string) error {
	const op = "meetings.delete"
	if d := authz.CanPerform(p, authz.ActionDeleteMeeting, authz.Target{}); !d.Allowed {
		return apperr.Unauthorized(op, d.Reason)
	}
	oid, err := parseID(op, id)
	if err != nil {
		return err
	}

	wctx, cancel := timeouts.Detached(ctx, timeouts.Short())
	defer cancel()
	n, err := r.store.Delete(wctx, oid)
	if err != nil {
		return apperr.FromStore(op, err)
	}
	if n == 0 {
		return apperr.NotFound(op)
	}
	r.audit.Admin(wctx, audit.EventMeetingDeleted, p.UID, "", map[string]string{"meeting_id": oid.Hex()})
	return nil
}

// MarkAttendance records p as attending. It succeeds once per user per
// meeting; later calls report AlreadyMarked. Past, completed, or cancelled
// meetings are ValidationFailed on "date" or "status".
func (r *Repo) MarkAttendance(ctx context.Context, p models.Principal, id string) (models.Meeting, error) {
	const op = "meetings.attend"
	if !p.Authenticated() {
		return models.Meeting{}, apperr.Unauthorized(op, authz.ReasonNotSignedIn)
	}
	oid, err := parseID(op, id)
	if err != nil {
		return models.Meeting{}, err
	}

	now := r.Now()
	cur, err := r.get(ctx, oid)
	if err != nil {
		return models.Meeting{}, apperr.FromStore(op, err)
	}
	if d := authz.CanPerform(p, authz.ActionMarkAttendance, authz.MeetingTarget(cur, p.UID, now)); !d.Allowed {
		return models.Meeting{}, attendanceError(op, d.Reason)
	}

	wctx, cancel := timeouts.Detached(ctx, timeouts.Short())
	defer cancel()
	m, err := r.store.MarkAttendance(wctx, oid, models.Attendance{
		UID:       p.UID,
		Name:      p.Name,
		Timestamp: now.UTC().Truncate(time.Millisecond),
	}, now)
	switch {
	case err == nil:
		return Redact(p, m), nil
	case errors.Is(err, meetingstore.ErrAlreadyMarked):
		return models.Meeting{}, attendanceError(op, authz.ReasonAlreadyMarked)
	case errors.Is(err, meetingstore.ErrNotScheduled):
		return models.Meeting{}, attendanceError(op, authz.ReasonNotScheduled)
	case errors.Is(err, meetingstore.ErrNotUpcoming):
		return models.Meeting{}, attendanceError(op, authz.ReasonMeetingPast)
	}
	return models.Meeting{}, apperr.FromStore(op, err)
}

func attendanceError(op, reason string) error {
	switch reason {
	case authz.ReasonAlreadyMarked:
		return apperr.AlreadyMarked(op)
	case authz.ReasonNotScheduled:
		return apperr.Field(op, "status", reason)
	case authz.ReasonMeetingPast:
		return apperr.Field(op, "date", reason)
	}
	return apperr.Unauthorized(op, reason)
}

// Attendance returns the roster. Only superadmins may view it.
func (r *Repo) Attendance(ctx context.Context, p models.Principal, id string) ([]models.Attendance, error) {
	const op = "meetings.roster"
	if d := authz.CanPerform(p, authz.ActionViewAttendance, authz.Target{}); !d.Allowed {
		return nil, apperr.Unauthorized(op, d.Reason)
	}
	oid, err := parseID(op, id)
	if err != nil {
		return nil, err
	}
	m, err := r.get(ctx, oid)
	if err != nil {
		return nil, apperr.FromStore(op, err)
	}
	if m.AttendeesData == nil {
		return []models.Attendance{}, nil
	}
	return m.AttendeesData, nil
}

// Subscribe streams the meetings matching f, redacted for p, until ctx ends
// or the stream is closed. The caller owns the stream and must Close it.
func (r *Repo) Subscribe(ctx context.Context, p models.Principal, f MeetingFilter) (*livequery.Stream[models.Meeting], error) {
	const op = "meetings.subscribe"
	if !p.Authenticated() {
		return nil, apperr.Unauthorized(op, authz.ReasonNotSignedIn)
	}
	sf := f.store()
	s, err := livequery.Watch(ctx, r.store.Collection(), livequery.Query{
		Filter: sf.Query(),
		Sort:   sf.Sort(),
		Limit:  sf.Limit,
	}, r.log, livequery.WithTransform(func(ms []models.Meeting) []models.Meeting {
		return redactAll(p, ms)
	}))
	if errors.Is(err, livequery.ErrNotSupported) {
		return nil, err
	}
	if err != nil {
		return nil, apperr.FromStore(op, err)
	}
	return s, nil
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
