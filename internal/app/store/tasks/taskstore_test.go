package taskstore_test

import (
	"testing"
	"time"

	taskstore "github.com/dalemusser/teamhub/internal/app/store/tasks"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"github.com/dalemusser/teamhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestStore_Create_And_Get(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fixtures := testutil.NewFixtures(t, db)
	store := taskstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := fixtures.CreateAdmin(ctx, "Ada", "ada@example.com")
	member := fixtures.CreateMember(ctx, "Max", "max@example.com")

	created, err := store.Create(ctx, models.Task{
		Title:          "Write report",
		AssignedTo:     member.UID,
		AssignedToName: member.Name(),
		AssignedBy:     admin.UID,
		AssignedByName: admin.Name(),
		Status:         models.TaskStatusPending,
		Priority:       models.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID == primitive.NilObjectID || created.CreatedAt.IsZero() {
		t.Error("expected id and timestamps to be set")
	}
	if created.Notes == nil {
		t.Error("expected notes to default to an empty slice")
	}

	got, err := store.Get(ctx, created.ID, member.UID)
	if err != nil {
		t.Fatalf("Get scoped to assignee failed: %v", err)
	}
	if got.Title != "Write report" {
		t.Errorf("unexpected task: %+v", got)
	}

	if _, err := store.Get(ctx, created.ID, "someone-else"); err != mongo.ErrNoDocuments {
		t.Errorf("expected ErrNoDocuments for another assignee, got %v", err)
	}
}

func TestStore_List_FiltersAndOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fixtures := testutil.NewFixtures(t, db)
	store := taskstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := fixtures.CreateAdmin(ctx, "Ada", "ada@example.com")
	m1 := fixtures.CreateMember(ctx, "One", "one@example.com")
	m2 := fixtures.CreateMember(ctx, "Two", "two@example.com")

	fixtures.CreateTask(ctx, "first", m1, admin)
	time.Sleep(5 * time.Millisecond)
	fixtures.CreateTask(ctx, "second", m1, admin)
	time.Sleep(5 * time.Millisecond)
	fixtures.CreateTask(ctx, "other", m2, admin)

	own, err := store.List(ctx, taskstore.Filter{AssignedTo: m1.UID})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(own) != 2 {
		t.Fatalf("expected 2 tasks for m1, got %d", len(own))
	}
	if own[0].Title != "second" {
		t.Errorf("expected newest first, got %q", own[0].Title)
	}

	all, _ := store.List(ctx, taskstore.Filter{})
	if len(all) != 3 {
		t.Errorf("expected 3 tasks, got %d", len(all))
	}

	limited, _ := store.List(ctx, taskstore.Filter{Limit: 1})
	if len(limited) != 1 || limited[0].Title != "other" {
		t.Errorf("expected newest single task, got %+v", limited)
	}

	none, _ := store.List(ctx, taskstore.Filter{Status: models.TaskStatusCompleted})
	if len(none) != 0 {
		t.Errorf("expected no completed tasks, got %d", len(none))
	}
}

func TestStore_SetStatus_Scoped(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fixtures := testutil.NewFixtures(t, db)
	store := taskstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := fixtures.CreateAdmin(ctx, "Ada", "ada@example.com")
	member := fixtures.CreateMember(ctx, "Max", "max@example.com")
	task := fixtures.CreateTask(ctx, "t", member, admin)

	if _, err := store.SetStatus(ctx, task.ID, "intruder", models.TaskStatusCompleted); err != mongo.ErrNoDocuments {
		t.Errorf("expected ErrNoDocuments for non-assignee, got %v", err)
	}

	got, err := store.SetStatus(ctx, task.ID, member.UID, models.TaskStatusInProgress)
	if err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if got.Status != models.TaskStatusInProgress {
		t.Errorf("expected in-progress, got %q", got.Status)
	}

	// Any transition is allowed, including back to pending.
	got, err = store.SetStatus(ctx, task.ID, "", models.TaskStatusPending)
	if err != nil || got.Status != models.TaskStatusPending {
		t.Errorf("expected unscoped status change to pending, got %q (%v)", got.Status, err)
	}
}

func TestStore_AppendNote_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fixtures := testutil.NewFixtures(t, db)
	store := taskstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := fixtures.CreateAdmin(ctx, "Ada", "ada@example.com")
	member := fixtures.CreateMember(ctx, "Max", "max@example.com")
	task := fixtures.CreateTask(ctx, "t", member, admin)

	note := models.Note{
		ID:         primitive.NewObjectID(),
		Text:       "started",
		Author:     member.UID,
		AuthorName: member.Name(),
		Timestamp:  time.Now().UTC(),
	}

	got, appended, err := store.AppendNote(ctx, task.ID, member.UID, note)
	if err != nil || !appended {
		t.Fatalf("first AppendNote: appended=%v err=%v", appended, err)
	}
	if len(got.Notes) != 1 {
		t.Fatalf("expected 1 note, got %d", len(got.Notes))
	}

	got, appended, err = store.AppendNote(ctx, task.ID, member.UID, note)
	if err != nil {
		t.Fatalf("second AppendNote failed: %v", err)
	}
	if appended {
		t.Error("expected repeated note id not to be appended")
	}
	if len(got.Notes) != 1 {
		t.Errorf("expected still 1 note, got %d", len(got.Notes))
	}

	second := note
	second.ID = primitive.NewObjectID()
	second.Text = "done"
	got, _, _ = store.AppendNote(ctx, task.ID, "", second)
	if len(got.Notes) != 2 || got.Notes[1].Text != "done" {
		t.Errorf("expected notes in append order, got %+v", got.Notes)
	}

	if _, _, err := store.AppendNote(ctx, task.ID, "intruder", models.Note{ID: primitive.NewObjectID(), Text: "x", Author: "intruder"}); err != mongo.ErrNoDocuments {
		t.Errorf("expected ErrNoDocuments for non-assignee, got %v", err)
	}
}

func TestStore_Update_And_Delete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fixtures := testutil.NewFixtures(t, db)
	store := taskstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := fixtures.CreateAdmin(ctx, "Ada", "ada@example.com")
	member := fixtures.CreateMember(ctx, "Max", "max@example.com")
	task := fixtures.CreateTask(ctx, "old", member, admin)

	title := "new"
	prio := models.PriorityLow
	got, err := store.Update(ctx, task.ID, taskstore.Patch{Title: &title, Priority: &prio})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.Title != "new" || got.Priority != models.PriorityLow {
		t.Errorf("unexpected task after update: %+v", got)
	}
	if got.Description != task.Description {
		t.Error("expected unset fields to stay unchanged")
	}

	n, err := store.Delete(ctx, task.ID)
	if err != nil || n != 1 {
		t.Fatalf("Delete: n=%d err=%v", n, err)
	}
	n, _ = store.Delete(ctx, task.ID)
	if n != 0 {
		t.Errorf("expected second delete to remove nothing, got %d", n)
	}
	if _, err := store.Update(ctx, task.ID, taskstore.Patch{Title: &title}); err != mongo.ErrNoDocuments {
		t.Errorf("expected ErrNoDocuments updating deleted task, got %v", err)
	}
}
