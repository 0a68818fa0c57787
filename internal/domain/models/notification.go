// internal/domain/models/notification.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Canonical notification type identifiers.
const (
	NotificationTypeTask    = "task"
	NotificationTypeMeeting = "meeting"
	NotificationTypeUser    = "user"
	NotificationTypeGeneral = "general"
)

// NotificationTypes is the full set of allowed notification types.
var NotificationTypes = []string{
	NotificationTypeTask,
	NotificationTypeMeeting,
	NotificationTypeUser,
	NotificationTypeGeneral,
}

// Notification is addressed to exactly one recipient. Only Read ever changes.
type Notification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"user_id" json:"user_id"`
	Title     string             `bson:"title" json:"title"`
	Message   string             `bson:"message" json:"message"`
	Type      string             `bson:"type" json:"type"`
	RefID     string             `bson:"ref_id,omitempty" json:"ref_id,omitempty"` // entity that caused it
	Read      bool               `bson:"read" json:"read"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
