package respond_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/teamhub/internal/app/features/shared/respond"
	"github.com/dalemusser/teamhub/internal/app/system/apperr"
)

func TestError_StatusByKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		kind string
	}{
		{"unauthorized", apperr.Unauthorized("op", "role not permitted"), http.StatusForbidden, "unauthorized"},
		{"validation", apperr.Field("op", "title", "is required"), http.StatusUnprocessableEntity, "validation_failed"},
		{"not found", apperr.NotFound("op"), http.StatusNotFound, "not_found"},
		{"already marked", apperr.AlreadyMarked("op"), http.StatusConflict, "already_marked"},
		{"unavailable", apperr.Unavailable("op", errors.New("boom")), http.StatusServiceUnavailable, "store_unavailable"},
		{"unknown", errors.New("surprise"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respond.Error(rec, httptest.NewRequest("GET", "/x", nil), nil, tt.err)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			var body respond.ErrorBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Error != tt.kind {
				t.Errorf("error = %q, want %q", body.Error, tt.kind)
			}
		})
	}
}

func TestError_ExposesFieldsAndReason(t *testing.T) {
	rec := httptest.NewRecorder()
	respond.Error(rec, httptest.NewRequest("GET", "/", nil), nil, apperr.Field("op", "date", "meeting has already started"))
	var body respond.ErrorBody
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.Fields["date"] != "meeting has already started" {
		t.Errorf("fields = %v", body.Fields)
	}

	rec = httptest.NewRecorder()
	respond.Error(rec, httptest.NewRequest("GET", "/", nil), nil, apperr.Unauthorized("op", "role not permitted"))
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.Message != "role not permitted" {
		t.Errorf("message = %q", body.Message)
	}
}

func TestDecode(t *testing.T) {
	type in struct {
		Title string `json:"title"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"title":"x"}`, false},
		{"empty", ``, true},
		{"malformed", `{"title":`, true},
		{"unknown field", `{"nope":1}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v in
			r := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))
			err := respond.Decode(httptest.NewRecorder(), r, "op", &v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && apperr.FieldsOf(err)["body"] == "" {
				t.Errorf("fields = %v, want body", apperr.FieldsOf(err))
			}
		})
	}
}

func TestEventStream(t *testing.T) {
	rec := httptest.NewRecorder()
	es, err := respond.NewEventStream(rec)
	if err != nil {
		t.Fatal(err)
	}
	if err := es.Send("snapshot", map[string]int{"unread": 2}); err != nil {
		t.Fatal(err)
	}
	if err := es.Comment("keepalive"); err != nil {
		t.Fatal(err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	want := "event: snapshot\ndata: {\"unread\":2}\n\n: keepalive\n\n"
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
}
