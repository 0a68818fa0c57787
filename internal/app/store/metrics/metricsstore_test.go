package metricsstore_test

import (
	"testing"
	"time"

	metricsstore "github.com/dalemusser/teamhub/internal/app/store/metrics"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"github.com/dalemusser/teamhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
)

func TestFetchDashboardCounts_Empty(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	counts := metricsstore.FetchDashboardCounts(ctx, db, time.Now())

	if counts != (metricsstore.Counts{}) {
		t.Errorf("expected all zero counts, got %+v", counts)
	}
}

func TestFetchDashboardCounts_WithData(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	boss := fixtures.CreateSuperAdmin(ctx, "Boss", "boss@example.com")
	admin := fixtures.CreateAdmin(ctx, "Admin One", "admin1@example.com")
	m1 := fixtures.CreateMember(ctx, "Member One", "member1@example.com")
	m2 := fixtures.CreateMember(ctx, "Member Two", "member2@example.com")
	fixtures.CreateMember(ctx, "Member Three", "member3@example.com")

	fixtures.CreateTask(ctx, "Open one", m1, admin)
	fixtures.CreateTask(ctx, "Open two", m2, admin)
	done := fixtures.CreateTask(ctx, "Done", m1, boss)
	if _, err := db.Collection("tasks").UpdateOne(ctx,
		bson.M{"_id": done.ID},
		bson.M{"$set": bson.M{"status": models.TaskStatusCompleted}},
	); err != nil {
		t.Fatalf("complete task: %v", err)
	}

	now := time.Now()
	fixtures.CreateMeeting(ctx, "Future", now.Add(24*time.Hour), models.MeetingStatusScheduled, admin)
	fixtures.CreateMeeting(ctx, "Past", now.Add(-24*time.Hour), models.MeetingStatusScheduled, admin)
	fixtures.CreateMeeting(ctx, "Cancelled", now.Add(48*time.Hour), models.MeetingStatusCancelled, admin)

	counts := metricsstore.FetchDashboardCounts(ctx, db, now)

	want := metricsstore.Counts{
		SuperAdmins:      1,
		Admins:           1,
		Members:          3,
		OpenTasks:        2,
		CompletedTasks:   1,
		UpcomingMeetings: 1,
	}
	if counts != want {
		t.Errorf("counts = %+v, want %+v", counts, want)
	}
}
