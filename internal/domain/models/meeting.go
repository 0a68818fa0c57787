// internal/domain/models/meeting.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Canonical meeting status identifiers.
const (
	MeetingStatusScheduled = "scheduled"
	MeetingStatusCompleted = "completed"
	MeetingStatusCancelled = "cancelled"
)

// MeetingStatuses is the full set of allowed meeting statuses.
var MeetingStatuses = []string{MeetingStatusScheduled, MeetingStatusCompleted, MeetingStatusCancelled}

// Meeting is a scheduled gathering that users mark their attendance on.
//
// NOTE:
//   - Attendees is a set: a uid appears at most once.
//   - AttendeesData holds one entry per attendee, in marking order.
type Meeting struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title         string             `bson:"title" json:"title"`
	Description   string             `bson:"description" json:"description"`
	Date          time.Time          `bson:"date" json:"date"`
	Location      string             `bson:"location" json:"location"`
	Attendees     []string           `bson:"attendees" json:"attendees"`
	AttendeesData []Attendance       `bson:"attendees_data" json:"attendees_data"`
	Status        string             `bson:"status" json:"status"`
	CreatedBy     string             `bson:"created_by" json:"created_by"`
	CreatedByName string             `bson:"created_by_name" json:"created_by_name"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Attendance records one user marking themselves present.
type Attendance struct {
	UID       string    `bson:"uid" json:"uid"`
	Name      string    `bson:"name" json:"name"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// HasAttendee reports whether uid has already marked attendance.
func (m Meeting) HasAttendee(uid string) bool {
	for _, a := range m.Attendees {
		if a == uid {
			return true
		}
	}
	return false
}
