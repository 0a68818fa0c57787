// internal/app/features/auditlog/handler.go
package auditlog

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/teamhub/internal/app/features/shared/respond"
	"github.com/dalemusser/teamhub/internal/app/store/audit"
	"github.com/dalemusser/teamhub/internal/app/system/apperr"
	"github.com/dalemusser/teamhub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"go.uber.org/zap"
)

const pageSize = 50

// Querier reads audit events.
type Querier interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
	CountByFilter(ctx context.Context, filter audit.QueryFilter) (int64, error)
}

type Handler struct {
	Events Querier
	Log    *zap.Logger
}

// NewHandler constructs an audit log handler over the audit store.
func NewHandler(events Querier, logger *zap.Logger) *Handler {
	return &Handler{
		Events: events,
		Log:    logger,
	}
}

// Page is the body of GET /audit.
type Page struct {
	Events     []audit.Event `json:"events"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	TotalPages int           `json:"total_pages"`
}

// parseFilter reads ?category=&event_type=&user=&start_date=&end_date=&page=.
// Dates are YYYY-MM-DD in UTC; end_date covers the whole day.
func parseFilter(r *http.Request) (audit.QueryFilter, int, error) {
	const op = "audit.list"
	filter := audit.QueryFilter{
		Category:  strings.TrimSpace(query.Get(r, "category")),
		EventType: strings.TrimSpace(query.Get(r, "event_type")),
		UserID:    strings.TrimSpace(query.Get(r, "user")),
		Limit:     pageSize,
	}

	page := 1
	if raw := query.Get(r, "page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 1 {
			return filter, 0, apperr.Field(op, "page", "must be a positive integer")
		}
		page = p
	}
	filter.Offset = int64((page - 1) * pageSize)

	if raw := query.Get(r, "start_date"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, 0, apperr.Field(op, "start_date", "must be YYYY-MM-DD")
		}
		filter.StartTime = &t
	}
	if raw := query.Get(r, "end_date"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, 0, apperr.Field(op, "end_date", "must be YYYY-MM-DD")
		}
		endOfDay := t.Add(24*time.Hour - time.Nanosecond)
		filter.EndTime = &endOfDay
	}
	return filter, page, nil
}

// ServeList handles GET /audit.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	filter, page, err := parseFilter(r)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "audit log list")
	defer cancel()

	events, err := h.Events.Query(ctx, filter)
	if err != nil {
		respond.Error(w, r, h.Log, apperr.FromStore("audit.list", err))
		return
	}
	total, err := h.Events.CountByFilter(ctx, filter)
	if err != nil {
		respond.Error(w, r, h.Log, apperr.FromStore("audit.list", err))
		return
	}

	totalPages := int((total + pageSize - 1) / pageSize)
	if totalPages < 1 {
		totalPages = 1
	}
	respond.JSON(w, http.StatusOK, Page{
		Events:     events,
		Total:      total,
		Page:       page,
		TotalPages: totalPages,
	})
}
