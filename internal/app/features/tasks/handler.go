// internal/app/features/tasks/handler.go
package tasks

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/teamhub/internal/app/features/shared/respond"
	taskrepo "github.com/dalemusser/teamhub/internal/app/repos/tasks"
	"github.com/dalemusser/teamhub/internal/app/system/apperr"
	"github.com/dalemusser/teamhub/internal/app/system/authz"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves the task endpoints.
type Handler struct {
	Tasks *taskrepo.Repo
	Log   *zap.Logger
}

func NewHandler(repo *taskrepo.Repo, logger *zap.Logger) *Handler {
	return &Handler{Tasks: repo, Log: logger}
}

// limitParam parses ?limit=; absent is 0 (no limit).
func limitParam(r *http.Request, op string) (int64, error) {
	raw := query.Get(r, "limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, apperr.Field(op, "limit", "must be a non-negative integer")
	}
	return n, nil
}

// list handles GET /tasks?assigned_to=&status=&priority=&limit=.
// Members always get their own tasks regardless of assigned_to.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, "tasks.list")
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	out, err := h.Tasks.List(r.Context(), authz.PrincipalFrom(r), taskrepo.TaskFilter{
		AssignedTo: query.Get(r, "assigned_to"),
		Status:     query.Get(r, "status"),
		Priority:   query.Get(r, "priority"),
		Limit:      limit,
	})
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}

// create handles POST /tasks.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in taskrepo.NewTask
	if err := respond.Decode(w, r, "tasks.create", &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	t, err := h.Tasks.Create(r.Context(), authz.PrincipalFrom(r), in)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, t)
}

// get handles GET /tasks/{id}.
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.Get(r.Context(), authz.PrincipalFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, t)
}

// update handles PATCH /tasks/{id}.
func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var in taskrepo.TaskPatch
	if err := respond.Decode(w, r, "tasks.update", &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	t, err := h.Tasks.Update(r.Context(), authz.PrincipalFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, t)
}

// remove handles DELETE /tasks/{id}.
func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.Tasks.Delete(r.Context(), authz.PrincipalFrom(r), chi.URLParam(r, "id")); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.NoContent(w)
}

type statusRequest struct {
	Status string `json:"status"`
}

// changeStatus handles POST /tasks/{id}/status.
func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	var in statusRequest
	if err := respond.Decode(w, r, "tasks.status", &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	t, err := h.Tasks.ChangeStatus(r.Context(), authz.PrincipalFrom(r), chi.URLParam(r, "id"), in.Status)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, t)
}

// addNote handles POST /tasks/{id}/notes.
func (h *Handler) addNote(w http.ResponseWriter, r *http.Request) {
	var in taskrepo.NoteInput
	if err := respond.Decode(w, r, "tasks.note", &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	t, err := h.Tasks.AddNote(r.Context(), authz.PrincipalFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, t)
}
