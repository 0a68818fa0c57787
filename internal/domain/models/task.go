// internal/domain/models/task.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Canonical task status identifiers. Transitions between them are unordered.
const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in-progress"
	TaskStatusCompleted  = "completed"
)

// TaskStatuses is the full set of allowed task statuses.
var TaskStatuses = []string{TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted}

// Canonical task priority identifiers.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// TaskPriorities is the full set of allowed task priorities.
var TaskPriorities = []string{PriorityLow, PriorityMedium, PriorityHigh}

// Task is a unit of work assigned to one user by a manager.
//
// NOTE:
//   - AssignedToName and AssignedByName are snapshots taken when the task is
//     written. They are not refreshed when the referenced profile changes.
//   - Notes are append-only.
type Task struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title          string             `bson:"title" json:"title"`
	Description    string             `bson:"description" json:"description"`
	AssignedTo     string             `bson:"assigned_to" json:"assigned_to"`
	AssignedToName string             `bson:"assigned_to_name" json:"assigned_to_name"`
	AssignedBy     string             `bson:"assigned_by" json:"assigned_by"`
	AssignedByName string             `bson:"assigned_by_name" json:"assigned_by_name"`
	Status         string             `bson:"status" json:"status"`
	Priority       string             `bson:"priority" json:"priority"`
	DueDate        time.Time          `bson:"due_date" json:"due_date"`
	Notes          []Note             `bson:"notes" json:"notes"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Note is a comment appended to a task. It is immutable once appended.
type Note struct {
	ID         primitive.ObjectID `bson:"id" json:"id"`
	Text       string             `bson:"text" json:"text"`
	Author     string             `bson:"author" json:"author"`
	AuthorName string             `bson:"author_name" json:"author_name"`
	Timestamp  time.Time          `bson:"timestamp" json:"timestamp"`
}
