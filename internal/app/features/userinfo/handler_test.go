package userinfo_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/teamhub/internal/app/features/userinfo"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"github.com/dalemusser/teamhub/internal/testutil"
	"go.uber.org/zap"
)

type fakeCounter struct {
	n   int64
	err error
}

func (f fakeCounter) CountUnread(context.Context, models.Principal) (int64, error) {
	return f.n, f.err
}

type meBody struct {
	IsAuthenticated bool   `json:"is_authenticated"`
	UID             string `json:"uid"`
	Role            string `json:"role"`
	Unread          *int64 `json:"unread"`
}

func serve(t *testing.T, h *userinfo.Handler, req *http.Request) meBody {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeMe(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var b meBody
	if err := json.NewDecoder(rec.Body).Decode(&b); err != nil {
		t.Fatal(err)
	}
	return b
}

func TestServeMe(t *testing.T) {
	user := testutil.AdminUser()

	tests := []struct {
		name       string
		counter    fakeCounter
		signedIn   bool
		wantUnread *int64
	}{
		{"anonymous", fakeCounter{}, false, nil},
		{"signed in", fakeCounter{n: 3}, true, ptr(3)},
		{"count unavailable", fakeCounter{err: errors.New("down")}, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.signedIn {
				req = testutil.WithUser(req, user)
			}
			got := serve(t, userinfo.NewHandler(tt.counter, zap.NewNop()), req)

			if got.IsAuthenticated != tt.signedIn {
				t.Errorf("is_authenticated = %v", got.IsAuthenticated)
			}
			if tt.signedIn && (got.UID != user.UID || got.Role != models.RoleAdmin) {
				t.Errorf("identity = %+v", got)
			}
			switch {
			case tt.wantUnread == nil && got.Unread != nil:
				t.Errorf("unread = %d, want omitted", *got.Unread)
			case tt.wantUnread != nil && (got.Unread == nil || *got.Unread != *tt.wantUnread):
				t.Errorf("unread = %v, want %d", got.Unread, *tt.wantUnread)
			}
		})
	}
}

func ptr(n int64) *int64 { return &n }
