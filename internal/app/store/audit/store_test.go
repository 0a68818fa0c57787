package audit_test

import (
	"testing"
	"time"

	"github.com/dalemusser/teamhub/internal/app/store/audit"
	"github.com/dalemusser/teamhub/internal/testutil"
)

func TestStore_Log(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	event := audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		UserID:    "u-1",
		IP:        "192.168.1.1",
		UserAgent: "TestBrowser/1.0",
		Success:   true,
	}
	if err := store.Log(ctx, event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := store.GetByUser(ctx, "u-1", 10)
	if err != nil {
		t.Fatalf("GetByUser failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID.IsZero() {
		t.Error("expected ID to be generated")
	}
	if events[0].Timestamp.IsZero() {
		t.Error("expected Timestamp to be set")
	}
}

func TestStore_Log_AdminEventWithDetails(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	err := store.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventTaskCreated,
		UserID:    "member-1",
		ActorID:   "admin-1",
		Success:   true,
		Details:   map[string]string{"task_id": "abc", "title": "Write report"},
	})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := store.Query(ctx, audit.QueryFilter{Category: audit.CategoryAdmin})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ActorID != "admin-1" || events[0].Details["title"] != "Write report" {
		t.Errorf("unexpected event: %+v", events[0])
	}
}

func TestStore_Query_Filters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	base := time.Now().UTC().Add(-time.Hour)
	seed := []audit.Event{
		{Category: audit.CategoryAuth, EventType: audit.EventLoginSuccess, UserID: "u-1", Success: true, Timestamp: base},
		{Category: audit.CategoryAuth, EventType: audit.EventLogout, UserID: "u-1", Success: true, Timestamp: base.Add(time.Minute)},
		{Category: audit.CategoryAdmin, EventType: audit.EventMeetingCreated, UserID: "u-2", ActorID: "u-2", Success: true, Timestamp: base.Add(2 * time.Minute)},
	}
	for _, e := range seed {
		if err := store.Log(ctx, e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	start := base.Add(30 * time.Second)
	tests := []struct {
		name   string
		filter audit.QueryFilter
		want   int
	}{
		{"all", audit.QueryFilter{}, 3},
		{"by category", audit.QueryFilter{Category: audit.CategoryAuth}, 2},
		{"by type", audit.QueryFilter{EventType: audit.EventLogout}, 1},
		{"by user", audit.QueryFilter{UserID: "u-2"}, 1},
		{"by time", audit.QueryFilter{StartTime: &start}, 2},
		{"offset", audit.QueryFilter{Offset: 2}, 1},
		{"limit", audit.QueryFilter{Limit: 1}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			events, err := store.Query(ctx, tc.filter)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(events) != tc.want {
				t.Errorf("expected %d events, got %d", tc.want, len(events))
			}
		})
	}

	n, err := store.CountByFilter(ctx, audit.QueryFilter{Category: audit.CategoryAuth})
	if err != nil || n != 2 {
		t.Errorf("expected count 2, got %d (%v)", n, err)
	}

	recent, _ := store.Query(ctx, audit.QueryFilter{Limit: 1})
	if len(recent) == 1 && recent[0].EventType != audit.EventMeetingCreated {
		t.Errorf("expected newest first, got %q", recent[0].EventType)
	}
}

func TestStore_GetFailedLogins(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for _, typ := range audit.FailedLoginTypes {
		if err := store.Log(ctx, audit.Event{Category: audit.CategoryAuth, EventType: typ, Success: false}); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}
	_ = store.Log(ctx, audit.Event{Category: audit.CategoryAuth, EventType: audit.EventLoginSuccess, Success: true})

	events, err := store.GetFailedLogins(ctx, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("GetFailedLogins failed: %v", err)
	}
	if len(events) != len(audit.FailedLoginTypes) {
		t.Errorf("expected %d failed logins, got %d", len(audit.FailedLoginTypes), len(events))
	}

	none, _ := store.GetFailedLogins(ctx, time.Now().Add(time.Hour), 10)
	if len(none) != 0 {
		t.Errorf("expected no failed logins in the future, got %d", len(none))
	}
}
