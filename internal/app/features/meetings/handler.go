// internal/app/features/meetings/handler.go
package meetings

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dalemusser/teamhub/internal/app/features/shared/respond"
	meetingrepo "github.com/dalemusser/teamhub/internal/app/repos/meetings"
	"github.com/dalemusser/teamhub/internal/app/system/apperr"
	"github.com/dalemusser/teamhub/internal/app/system/authz"
	"github.com/dalemusser/teamhub/internal/app/system/livequery"
	"github.com/dalemusser/teamhub/internal/app/system/session"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// DefaultKeepAlive spaces SSE keepalive comments.
const DefaultKeepAlive = 25 * time.Second

// Handler serves the meeting endpoints.
type Handler struct {
	Meetings  *meetingrepo.Repo
	Sessions  *session.Registry
	Log       *zap.Logger
	KeepAlive time.Duration
}

func NewHandler(repo *meetingrepo.Repo, reg *session.Registry, logger *zap.Logger) *Handler {
	return &Handler{Meetings: repo, Sessions: reg, Log: logger, KeepAlive: DefaultKeepAlive}
}

func (h *Handler) filter(r *http.Request) (meetingrepo.MeetingFilter, error) {
	f := meetingrepo.MeetingFilter{
		CreatedBy: query.Get(r, "created_by"),
		Status:    query.Get(r, "status"),
	}
	if raw := query.Get(r, "limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return f, apperr.Field("meetings.list", "limit", "must be a non-negative integer")
		}
		f.Limit = n
	}
	return f, nil
}

// list handles GET /meetings?status=&created_by=&limit=.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	f, err := h.filter(r)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	out, err := h.Meetings.List(r.Context(), authz.PrincipalFrom(r), f)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}

// upcoming handles GET /meetings/upcoming.
func (h *Handler) upcoming(w http.ResponseWriter, r *http.Request) {
	out, err := h.Meetings.Upcoming(r.Context(), authz.PrincipalFrom(r))
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}

// create handles POST /meetings.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in meetingrepo.NewMeeting
	if err := respond.Decode(w, r, "meetings.create", &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	m, err := h.Meetings.Create(r.Context(), authz.PrincipalFrom(r), in)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, m)
}

// get handles GET /meetings/{id}.
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	m, err := h.Meetings.Get(r.Context(), authz.PrincipalFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, m)
}

// update handles PATCH /meetings/{id}.
func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var in meetingrepo.MeetingPatch
	if err := respond.Decode(w, r, "meetings.update", &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	m, err := h.Meetings.Update(r.Context(), authz.PrincipalFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, m)
}

// remove handles DELETE /meetings/{id}.
func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.Meetings.Delete(r.Context(), authz.PrincipalFrom(r), chi.URLParam(r, "id")); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.NoContent(w)
}

// attend handles POST /meetings/{id}/attend. A repeat is 409.
func (h *Handler) attend(w http.ResponseWriter, r *http.Request) {
	m, err := h.Meetings.MarkAttendance(r.Context(), authz.PrincipalFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, m)
}

// roster handles GET /meetings/{id}/attendance (superadmin only).
func (h *Handler) roster(w http.ResponseWriter, r *http.Request) {
	out, err := h.Meetings.Attendance(r.Context(), authz.PrincipalFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}

// stream handles GET /meetings/stream as Server-Sent Events. Each event is
// a full "meetings" snapshot. 501 when the deployment has no change streams.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	f, err := h.filter(r)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	sess, err := h.Sessions.Start(r.Context(), authz.PrincipalFrom(r))
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	defer sess.End()

	s, err := h.Meetings.Subscribe(sess.Context(), sess.Principal(), f)
	if errors.Is(err, livequery.ErrNotSupported) {
		respond.JSON(w, http.StatusNotImplemented, respond.ErrorBody{Error: "not_supported", Message: "live updates are unavailable; poll GET /meetings"})
		return
	}
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	sess.Acquire(s.Close)

	es, err := respond.NewEventStream(w)
	if err != nil {
		h.Log.Warn("meetings stream: no flusher", zap.Error(err))
		return
	}
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
		case items, ok := <-s.Updates():
			if !ok {
				return
			}
			if err := es.Send("meetings", items); err != nil {
				return
			}
		}
	}
}
