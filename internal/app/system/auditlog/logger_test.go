package auditlog_test

import (
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/teamhub/internal/app/store/audit"
	"github.com/dalemusser/teamhub/internal/app/system/auditlog"
	"github.com/dalemusser/teamhub/internal/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_NilLogger(t *testing.T) {
	// nil logger should be a no-op (not panic)
	var logger *auditlog.Logger
	ctx, cancel := testutil.TestContext()
	defer cancel()
	req := httptest.NewRequest("GET", "/", nil)

	logger.Log(ctx, audit.Event{EventType: "test"})
	logger.LoginSuccess(ctx, req, "u-1", "a@example.com")
	logger.Logout(ctx, req, "u-1")
	logger.MemberInvited(ctx, "a-1", "u-1", "a@example.com", "member")
}

func TestLogger_LogOnly_WritesZapNotDB(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := auditlog.New(nil, zap.New(core), auditlog.Config{Auth: auditlog.Log, Admin: auditlog.Off})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	req := httptest.NewRequest("POST", "/login", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	logger.LoginFailedWrongPassword(ctx, req, "u-1", "a@example.com")
	logger.MemberInvited(ctx, "a-1", "u-2", "b@example.com", "member")

	entries := logs.FilterMessage("audit event").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit log line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["event_type"] != audit.EventLoginFailedWrongPassword {
		t.Errorf("unexpected event_type: %v", fields["event_type"])
	}
	if fields["ip"] != "203.0.113.9" {
		t.Errorf("expected first forwarded address, got %v", fields["ip"])
	}
	if entries[0].Level != zap.WarnLevel {
		t.Errorf("expected failures at warn level, got %v", entries[0].Level)
	}
}

func TestLogger_ConfigRoutesByCategory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	tests := []struct {
		name      string
		cfg       auditlog.Config
		wantAuth  int
		wantAdmin int
	}{
		{"all", auditlog.Config{Auth: auditlog.All, Admin: auditlog.All}, 1, 1},
		{"db", auditlog.Config{Auth: auditlog.DB, Admin: auditlog.DB}, 1, 1},
		{"auth off", auditlog.Config{Auth: auditlog.Off, Admin: auditlog.DB}, 0, 1},
		{"admin log only", auditlog.Config{Auth: auditlog.DB, Admin: auditlog.Log}, 1, 0},
	}

	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			uid := "user-" + string(rune('a'+i))
			logger := auditlog.New(store, zap.NewNop(), tc.cfg)
			req := httptest.NewRequest("POST", "/login", nil)

			logger.LoginSuccess(ctx, req, uid, "x@example.com")
			logger.Admin(ctx, audit.EventTaskCreated, "admin-1", uid, map[string]string{"task_id": "t"})

			auth, _ := store.Query(ctx, audit.QueryFilter{UserID: uid, Category: audit.CategoryAuth})
			admin, _ := store.Query(ctx, audit.QueryFilter{UserID: uid, Category: audit.CategoryAdmin})
			if len(auth) != tc.wantAuth {
				t.Errorf("auth events: got %d, want %d", len(auth), tc.wantAuth)
			}
			if len(admin) != tc.wantAdmin {
				t.Errorf("admin events: got %d, want %d", len(admin), tc.wantAdmin)
			}
		})
	}
}

func TestLogger_MemberInvited(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(store, zap.NewNop(), auditlog.Config{Auth: auditlog.DB, Admin: auditlog.DB})
	logger.MemberInvited(ctx, "admin-1", "new-1", "new@example.com", "member")

	events, err := store.GetByUser(ctx, "new-1", 10)
	if err != nil {
		t.Fatalf("GetByUser failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.EventType != audit.EventMemberInvited || e.ActorID != "admin-1" || e.Details["role"] != "member" {
		t.Errorf("unexpected event: %+v", e)
	}
}
