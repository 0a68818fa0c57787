package metricsstore

import (
	"context"
	"time"

	"github.com/dalemusser/teamhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Counts is the set of totals shown on the team overview.
type Counts struct {
	SuperAdmins      int64 `json:"superadmins"`
	Admins           int64 `json:"admins"`
	Members          int64 `json:"members"`
	OpenTasks        int64 `json:"open_tasks"`
	CompletedTasks   int64 `json:"completed_tasks"`
	UpcomingMeetings int64 `json:"upcoming_meetings"`
}

// FetchDashboardCounts returns the high-level counts used by the team overview.
// Intentionally tolerant: on error it returns 0 for that counter.
func FetchDashboardCounts(ctx context.Context, db *mongo.Database, now time.Time) Counts {
	var out Counts

	users := db.Collection("users")
	if n, err := users.CountDocuments(ctx, bson.M{"role": models.RoleSuperAdmin}); err == nil {
		out.SuperAdmins = n
	}
	if n, err := users.CountDocuments(ctx, bson.M{"role": models.RoleAdmin}); err == nil {
		out.Admins = n
	}
	if n, err := users.CountDocuments(ctx, bson.M{"role": models.RoleMember}); err == nil {
		out.Members = n
	}

	tasks := db.Collection("tasks")
	if n, err := tasks.CountDocuments(ctx, bson.M{"status": bson.M{"$ne": models.TaskStatusCompleted}}); err == nil {
		out.OpenTasks = n
	}
	if n, err := tasks.CountDocuments(ctx, bson.M{"status": models.TaskStatusCompleted}); err == nil {
		out.CompletedTasks = n
	}

	upcoming := bson.M{"status": models.MeetingStatusScheduled, "date": bson.M{"$gt": now}}
	if n, err := db.Collection("meetings").CountDocuments(ctx, upcoming); err == nil {
		out.UpcomingMeetings = n
	}

	return out
}
