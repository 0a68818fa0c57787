package validators_test

import (
	"testing"
	"time"

	"github.com/dalemusser/teamhub/internal/app/system/validators"
	"github.com/dalemusser/teamhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func setup(t *testing.T) (*mongo.Database, func()) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	if err := validators.EnsureAll(ctx, db); err != nil {
		cancel()
		t.Fatalf("EnsureAll failed: %v", err)
	}
	return db, cancel
}

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("First EnsureAll failed: %v", err)
	}
	// Second call should also succeed (idempotent)
	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("Second EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_CreatesCollections(t *testing.T) {
	db, cancel := setup(t)
	defer cancel()
	ctx, cancel2 := testutil.TestContext()
	defer cancel2()

	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		t.Fatalf("ListCollectionNames failed: %v", err)
	}
	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[n] = true
	}
	for _, want := range []string{"users", "tasks", "meetings", "notifications", "login_records", "audit_events"} {
		if !have[want] {
			t.Errorf("expected collection %q to exist", want)
		}
	}
}

func TestValidators_RejectAndAccept(t *testing.T) {
	db, cancel := setup(t)
	defer cancel()
	ctx, cancel2 := testutil.TestContext()
	defer cancel2()

	now := time.Now().UTC()
	validTask := func() bson.M {
		return bson.M{
			"title": "Ship it", "assigned_to": "u-1", "assigned_by": "u-2",
			"status": "pending", "priority": "high", "created_at": now,
			"notes": bson.A{},
		}
	}
	validMeeting := func() bson.M {
		return bson.M{
			"title": "Standup", "date": now, "status": "scheduled",
			"created_by": "u-2", "created_at": now,
			"attendees": bson.A{}, "attendees_data": bson.A{},
		}
	}

	tests := []struct {
		name       string
		collection string
		doc        bson.M
		wantErr    bool
	}{
		{"valid user", "users", bson.M{"uid": "u-1", "email": "a@example.com", "role": "member", "created_at": now}, false},
		{"user missing uid", "users", bson.M{"email": "a@example.com", "role": "member", "created_at": now}, true},
		{"user bad role", "users", bson.M{"uid": "u-1", "email": "a@example.com", "role": "owner", "created_at": now}, true},

		{"valid task", "tasks", validTask(), false},
		{"task bad status", "tasks", func() bson.M { d := validTask(); d["status"] = "done"; return d }(), true},
		{"task bad priority", "tasks", func() bson.M { d := validTask(); d["priority"] = "urgent"; return d }(), true},
		{"task blank title", "tasks", func() bson.M { d := validTask(); d["title"] = "   "; return d }(), true},
		{"task note without author", "tasks", func() bson.M {
			d := validTask()
			d["notes"] = bson.A{bson.M{"id": primitive.NewObjectID(), "text": "hi", "timestamp": now}}
			return d
		}(), true},

		{"valid meeting", "meetings", validMeeting(), false},
		{"meeting bad status", "meetings", func() bson.M { d := validMeeting(); d["status"] = "postponed"; return d }(), true},
		{"meeting duplicate attendee", "meetings", func() bson.M { d := validMeeting(); d["attendees"] = bson.A{"u-1", "u-1"}; return d }(), true},

		{"valid notification", "notifications", bson.M{"user_id": "u-1", "title": "Hi", "type": "task", "read": false, "created_at": now}, false},
		{"notification bad type", "notifications", bson.M{"user_id": "u-1", "title": "Hi", "type": "sms", "read": false, "created_at": now}, true},
		{"notification missing read", "notifications", bson.M{"user_id": "u-1", "title": "Hi", "type": "task", "created_at": now}, true},

		{"login record has no validator", "login_records", bson.M{"any_field": "any_value"}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := db.Collection(tc.collection).InsertOne(ctx, tc.doc)
			if tc.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("expected insert to succeed: %v", err)
			}
		})
	}
}
