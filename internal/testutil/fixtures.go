package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/teamhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"
)

// TestPassword is the password set on every fixture user.
const TestPassword = "correct horse battery staple"

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser inserts a user with the given role. The password is TestPassword.
func (f *Fixtures) CreateUser(ctx context.Context, name, email, role string) models.User {
	f.t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		f.t.Fatalf("failed to hash test password: %v", err)
	}
	now := time.Now().UTC()
	u := models.User{
		ID:            primitive.NewObjectID(),
		UID:           uuid.NewString(),
		Email:         email,
		DisplayName:   name,
		DisplayNameCI: text.Fold(name),
		Role:          role,
		Department:    "Engineering",
		PasswordHash:  string(hash),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// CreateSuperAdmin creates a test superadmin.
func (f *Fixtures) CreateSuperAdmin(ctx context.Context, name, email string) models.User {
	f.t.Helper()
	return f.CreateUser(ctx, name, email, models.RoleSuperAdmin)
}

// CreateAdmin creates a test admin.
func (f *Fixtures) CreateAdmin(ctx context.Context, name, email string) models.User {
	f.t.Helper()
	return f.CreateUser(ctx, name, email, models.RoleAdmin)
}

// CreateMember creates a test member.
func (f *Fixtures) CreateMember(ctx context.Context, name, email string) models.User {
	f.t.Helper()
	return f.CreateUser(ctx, name, email, models.RoleMember)
}

// CreateTask inserts a pending, medium-priority task assigned by `by` to `to`.
func (f *Fixtures) CreateTask(ctx context.Context, title string, to, by models.User) models.Task {
	f.t.Helper()

	now := time.Now().UTC().Truncate(time.Millisecond)
	task := models.Task{
		ID:             primitive.NewObjectID(),
		Title:          title,
		Description:    "fixture task",
		AssignedTo:     to.UID,
		AssignedToName: to.Name(),
		AssignedBy:     by.UID,
		AssignedByName: by.Name(),
		Status:         models.TaskStatusPending,
		Priority:       models.PriorityMedium,
		DueDate:        now.Add(7 * 24 * time.Hour),
		Notes:          []models.Note{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := f.db.Collection("tasks").InsertOne(ctx, task); err != nil {
		f.t.Fatalf("failed to create test task: %v", err)
	}
	return task
}

// CreateMeeting inserts a meeting created by `by` at the given instant.
func (f *Fixtures) CreateMeeting(ctx context.Context, title string, date time.Time, status string, by models.User) models.Meeting {
	f.t.Helper()

	now := time.Now().UTC().Truncate(time.Millisecond)
	m := models.Meeting{
		ID:            primitive.NewObjectID(),
		Title:         title,
		Description:   "fixture meeting",
		Date:          date.UTC().Truncate(time.Millisecond),
		Location:      "Room 1",
		Attendees:     []string{},
		AttendeesData: []models.Attendance{},
		Status:        status,
		CreatedBy:     by.UID,
		CreatedByName: by.Name(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := f.db.Collection("meetings").InsertOne(ctx, m); err != nil {
		f.t.Fatalf("failed to create test meeting: %v", err)
	}
	return m
}

// CreateNotification inserts a notification for the given recipient.
func (f *Fixtures) CreateNotification(ctx context.Context, to models.User, title string, read bool) models.Notification {
	f.t.Helper()

	n := models.Notification{
		ID:        primitive.NewObjectID(),
		UserID:    to.UID,
		Title:     title,
		Message:   "fixture notification",
		Type:      models.NotificationTypeGeneral,
		Read:      read,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := f.db.Collection("notifications").InsertOne(ctx, n); err != nil {
		f.t.Fatalf("failed to create test notification: %v", err)
	}
	return n
}
