// Package tasks is the task repository: every task operation a principal
// can perform, with the policy checked before the store is touched.
//
// Members only ever see tasks assigned to them. The restriction is encoded
// in the store filters (List, Get, ChangeStatus and AddNote all scope by
// assigned_to), not applied to results afterwards.
package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/teamhub/internal/app/store/audit"
	taskstore "github.com/dalemusser/teamhub/internal/app/store/tasks"
	"github.com/dalemusser/teamhub/internal/app/system/apperr"
	"github.com/dalemusser/teamhub/internal/app/system/auditlog"
	"github.com/dalemusser/teamhub/internal/app/system/authz"
	"github.com/dalemusser/teamhub/internal/app/system/effects"
	"github.com/dalemusser/teamhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/teamhub/internal/app/system/inputval"
	"github.com/dalemusser/teamhub/internal/app/system/normalize"
	"github.com/dalemusser/teamhub/internal/app/system/timeouts"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// UserLookup resolves assignees. Returns mongo.ErrNoDocuments for unknown uids.
type UserLookup interface {
	GetByUID(ctx context.Context, uid string) (models.User, error)
}

// Effects receives committed task writes.
type Effects interface {
	TaskCreated(ctx context.Context, t models.Task) effects.Report
	NoteAdded(ctx context.Context, t models.Task, n models.Note) effects.Report
	Go(fn func())
}

// Repo is the task repository.
type Repo struct {
	store   *taskstore.Store
	users   UserLookup
	effects Effects
	audit   *auditlog.Logger
	log     *zap.Logger

	// Location interprets due dates entered as separate date and time.
	Location *time.Location
}

// New wires a repository. audit may be nil.
func New(store *taskstore.Store, users UserLookup, fx Effects, audit *auditlog.Logger, logger *zap.Logger) *Repo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{store: store, users: users, effects: fx, audit: audit, log: logger, Location: time.Local}
}

// NewTask is the input for Create.
type NewTask struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	AssignedTo  string `json:"assigned_to" validate:"required"`
	Status      string `json:"status" validate:"omitempty,oneof=pending in-progress completed"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueDate     string `json:"due_date" validate:"required,datetime=2006-01-02"`
	DueTime     string `json:"due_time" validate:"omitempty,datetime=15:04"`
}

// TaskPatch is the input for Update. Nil fields are left unchanged.
type TaskPatch struct {
	Title       *string `json:"title" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	AssignedTo  *string `json:"assigned_to"`
	Status      *string `json:"status" validate:"omitempty,oneof=pending in-progress completed"`
	Priority    *string `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueDate     *string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	DueTime     *string `json:"due_time" validate:"omitempty,datetime=15:04"`
}

// NoteInput is the input for AddNote. ID lets a client retry safely: a note
// whose id is already on the task is not appended again.
type NoteInput struct {
	ID   string `json:"id"`
	Text string `json:"text" validate:"required,max=2000"`
}

// TaskFilter narrows List. AssignedTo is ignored for members, who always
// see only their own tasks.
type TaskFilter struct {
	AssignedTo string
	Status     string
	Priority   string
	Limit      int64
}

func (r *Repo) denied(op string, d authz.Decision) error {
	return apperr.Unauthorized(op, d.Reason)
}

// scope is the assigned_to restriction applied to p's store writes.
func scope(p models.Principal) string {
	if authz.Allowed(p, authz.ActionListAllTasks, authz.Target{}) {
		return ""
	}
	return p.UID
}

func parseID(op, id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperr.NotFound(op)
	}
	return oid, nil
}

// Create validates in, writes the task, and notifies the assignee.
func (r *Repo) Create(ctx context.Context, p models.Principal, in NewTask) (models.Task, error) {
	const op = "tasks.create"
	if d := authz.CanPerform(p, authz.ActionCreateTask, authz.Target{}); !d.Allowed {
		return models.Task{}, r.denied(op, d)
	}
	in.Status = normalize.Status(in.Status)
	in.Priority = normalize.Status(in.Priority)
	if err := inputval.Struct(op, in); err != nil {
		return models.Task{}, err
	}

	title := htmlsanitize.Text(in.Title)
	if title == "" {
		return models.Task{}, apperr.Field(op, "title", "is required")
	}
	due, err := inputval.ComposeInstant(in.DueDate, in.DueTime, r.Location)
	if err != nil {
		return models.Task{}, apperr.Field(op, "due_date", "is not a valid date")
	}
	assignee, err := r.assignee(ctx, op, in.AssignedTo)
	if err != nil {
		return models.Task{}, err
	}

	t := models.Task{
		Title:          title,
		Description:    htmlsanitize.Sanitize(in.Description),
		AssignedTo:     assignee.UID,
		AssignedToName: assignee.Name(),
		AssignedBy:     p.UID,
		AssignedByName: p.Name,
		Status:         firstNonEmpty(in.Status, models.TaskStatusPending),
		Priority:       firstNonEmpty(in.Priority, models.PriorityMedium),
		DueDate:        due.UTC(),
	}

	wctx, cancel := timeouts.Detached(ctx, timeouts.Medium())
	defer cancel()
	t, err = r.store.Create(wctx, t)
	if err != nil {
		return models.Task{}, apperr.FromStore(op, err)
	}

	r.audit.Admin(wctx, audit.EventTaskCreated, p.UID, t.AssignedTo, map[string]string{
		"task_id": t.ID.Hex(),
		"title":   t.Title,
	})
	r.effects.Go(func() { r.effects.TaskCreated(ctx, t) })
	return t, nil
}

func (r *Repo) assignee(ctx context.Context, op, uid string) (models.User, error) {
	var u models.User
	err := apperr.RetryRead(ctx, func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, timeouts.Short())
		defer cancel()
		var err error
		u, err = r.users.GetByUID(rctx, uid)
		return err
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, apperr.Field(op, "assigned_to", "no such user")
	}
	if err != nil {
		return models.User{}, apperr.FromStore(op, err)
	}
	return u, nil
}

// Get returns one task. A member asking for a task assigned to someone
// else gets NotFound.
func (r *Repo) Get(ctx context.Context, p models.Principal, id string) (models.Task, error) {
	const op = "tasks.get"
	if !p.Authenticated() {
		return models.Task{}, apperr.Unauthorized(op, authz.ReasonNotSignedIn)
	}
	oid, err := parseID(op, id)
	if err != nil {
		return models.Task{}, err
	}

	var t models.Task
	err = apperr.RetryRead(ctx, func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, timeouts.Short())
		defer cancel()
		var err error
		t, err = r.store.Get(rctx, oid, scope(p))
		return err
	})
	if err != nil {
		return models.Task{}, apperr.FromStore(op, err)
	}
	if !authz.Allowed(p, authz.ActionViewTask, authz.TaskTarget(t)) {
		return models.Task{}, apperr.NotFound(op)
	}
	return t, nil
}

func (r *Repo) load(ctx context.Context, oid primitive.ObjectID) (models.Task, error) {
	var t models.Task
	err := apperr.RetryRead(ctx, func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, timeouts.Short())
		defer cancel()
		var err error
		t, err = r.store.Get(rctx, oid, "")
		return err
	})
	return t, err
}

// authorize loads task id and checks a against it. A task p may not act on
// is NotFound, as in Get. Writes stay conditional on the assignment for
// members, so a reassignment between check and write still fails.
func (r *Repo) authorize(ctx context.Context, op string, p models.Principal, a authz.Action, id string) (primitive.ObjectID, error) {
	if !p.Authenticated() {
		return primitive.NilObjectID, apperr.Unauthorized(op, authz.ReasonNotSignedIn)
	}
	oid, err := parseID(op, id)
	if err != nil {
		return primitive.NilObjectID, err
	}
	t, err := r.load(ctx, oid)
	if err != nil {
		return primitive.NilObjectID, apperr.FromStore(op, err)
	}
	if !authz.Allowed(p, a, authz.TaskTarget(t)) {
		return primitive.NilObjectID, apperr.NotFound(op)
	}
	return oid, nil
}

// List returns tasks newest first.
func (r *Repo) List(ctx context.Context, p models.Principal, f TaskFilter) ([]models.Task, error) {
	const op = "tasks.list"
	if !p.Authenticated() {
		return nil, apperr.Unauthorized(op, authz.ReasonNotSignedIn)
	}
	sf := taskstore.Filter{
		AssignedTo: f.AssignedTo,
		Status:     normalize.Status(normalize.Filter(f.Status)),
		Priority:   normalize.Status(normalize.Filter(f.Priority)),
		Limit:      f.Limit,
	}
	if s := scope(p); s != "" {
		sf.AssignedTo = s
	}
	if sf.Status != "" && !oneOf(sf.Status, models.TaskStatuses) {
		return nil, apperr.Field(op, "status", "is not a task status")
	}
	if sf.Priority != "" && !oneOf(sf.Priority, models.TaskPriorities) {
		return nil, apperr.Field(op, "priority", "is not a task priority")
	}

	var out []models.Task
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
	return out, nil
}

// Update edits a task. Only the managing roles may edit.
func (r *Repo) Update(ctx context.Context, p models.Principal, id string, in TaskPatch) (models.Task, error) {
	const op = "tasks.update"
	if d := authz.CanPerform(p, authz.ActionEditTask, authz.Target{}); !d.Allowed {
		return models.Task{}, r.denied(op, d)
	}
	oid, err := parseID(op, id)
	if err != nil {
		return models.Task{}, err
	}
	if in.Status != nil {
		*in.Status = normalize.Status(*in.Status)
	}
	if in.Priority != nil {
		*in.Priority = normalize.Status(*in.Priority)
	}
	if err := inputval.Struct(op, in); err != nil {
		return models.Task{}, err
	}

	var patch taskstore.Patch
	changed := false
	if in.Title != nil {
		title := htmlsanitize.Text(*in.Title)
		if title == "" {
			return models.Task{}, apperr.Field(op, "title", "is required")
		}
		patch.Title, changed = &title, true
	}
	if in.Description != nil {
		desc := htmlsanitize.Sanitize(*in.Description)
		patch.Description, changed = &desc, true
	}
	if in.Status != nil && *in.Status != "" {
		patch.Status, changed = in.Status, true
	}
	if in.Priority != nil && *in.Priority != "" {
		patch.Priority, changed = in.Priority, true
	}
	if in.DueDate != nil || in.DueTime != nil {
		// A lone half keeps the other half of the stored due date.
		var cur time.Time
		if in.DueDate == nil || in.DueTime == nil {
			t, err := r.load(ctx, oid)
			if err != nil {
				return models.Task{}, apperr.FromStore(op, err)
			}
			cur = t.DueDate
		}
		due, err := inputval.MergeInstant(cur, in.DueDate, in.DueTime, r.Location)
		if err != nil {
			field := "due_date"
			if in.DueDate == nil {
				field = "due_time"
			}
			return models.Task{}, apperr.Field(op, field, "is not a valid date")
		}
		due = due.UTC()
		patch.DueDate, changed = &due, true
	}
	if in.AssignedTo != nil {
		u, err := r.assignee(ctx, op, *in.AssignedTo)
		if err != nil {
			return models.Task{}, err
		}
		name := u.Name()
		patch.AssignedTo, patch.AssignedToName, changed = &u.UID, &name, true
	}
	if !changed {
		return models.Task{}, apperr.Field(op, "patch", "nothing to update")
	}

	wctx, cancel := timeouts.Detached(ctx, timeouts.Short())
	defer cancel()
	t, err := r.store.Update(wctx, oid, patch)
	if err != nil {
		return models.Task{}, apperr.FromStore(op, err)
	}
	r.audit.Admin(wctx, audit.EventTaskUpdated, p.UID, t.AssignedTo, map[string]string{"task_id": t.ID.Hex()})
	return t, nil
}

// Delete removes a task permanently.
func (r *Repo) Delete(ctx context.Context, p models.Principal, id string) error {
	const op = "tasks.delete"
	if d := authz.CanPerform(p, authz.ActionDeleteTask, authz.Target{}); !d.Allowed {
		return r.denied(op, d)
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
	r.audit.Admin(wctx, audit.EventTaskDeleted, p.UID, "", map[string]string{"task_id": oid.Hex()})
	return nil
}

// ChangeStatus moves a task to status. Members may only move their own
// tasks; the store write is conditional on the assignment.
func (r *Repo) ChangeStatus(ctx context.Context, p models.Principal, id, status string) (models.Task, error) {
	const op = "tasks.status"
	oid, err := r.authorize(ctx, op, p, authz.ActionChangeTaskStatus, id)
	if err != nil {
		return models.Task{}, err
	}
	status = normalize.Status(status)
	if !oneOf(status, models.TaskStatuses) {
		return models.Task{}, apperr.Field(op, "status", "is not a task status")
	}

	wctx, cancel := timeouts.Detached(ctx, timeouts.Short())
	defer cancel()
	t, err := r.store.SetStatus(wctx, oid, scope(p), status)
	if err != nil {
		return models.Task{}, apperr.FromStore(op, err)
	}
	return t, nil
}

// AddNote appends a note and notifies the other party. Re-submitting a note
// id that is already present returns the task unchanged and sends nothing.
func (r *Repo) AddNote(ctx context.Context, p models.Principal, id string, in NoteInput) (models.Task, error) {
	const op = "tasks.note"
	oid, err := r.authorize(ctx, op, p, authz.ActionAddNote, id)
	if err != nil {
		return models.Task{}, err
	}
	if err := inputval.Struct(op, in); err != nil {
		return models.Task{}, err
	}
	text := htmlsanitize.Text(in.Text)
	if text == "" {
		return models.Task{}, apperr.Field(op, "text", "is required")
	}
	noteID := primitive.NewObjectID()
	if in.ID != "" {
		if noteID, err = primitive.ObjectIDFromHex(in.ID); err != nil {
			return models.Task{}, apperr.Field(op, "id", "is not a valid note id")
		}
	}

	n := models.Note{
		ID:         noteID,
		Text:       text,
		Author:     p.UID,
		AuthorName: p.Name,
		Timestamp:  time.Now().UTC().Truncate(time.Millisecond),
	}

	wctx, cancel := timeouts.Detached(ctx, timeouts.Short())
	defer cancel()
	t, appended, err := r.store.AppendNote(wctx, oid, scope(p), n)
	if err != nil {
		return models.Task{}, apperr.FromStore(op, err)
	}
	if appended {
		r.effects.Go(func() { r.effects.NoteAdded(ctx, t, n) })
	} else {
		r.log.Debug("note already present", zap.String("task_id", oid.Hex()), zap.String("note_id", noteID.Hex()))
	}
	return t, nil
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
