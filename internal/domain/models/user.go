// internal/domain/models/user.go
package models

// Terminology: User Identifiers
//   - ID / _id: the MongoDB ObjectID of the user document
//   - UID / uid: the stable identity issued at provisioning; every other
//     collection references users by uid, never by _id

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents superadmins, admins, and members.
//
// NOTE:
//   - UID never changes once the user is provisioned.
//   - PasswordHash is a bcrypt hash and is never serialized to JSON.
type User struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UID           string             `bson:"uid" json:"uid"`
	Email         string             `bson:"email" json:"email"`
	DisplayName   string             `bson:"display_name" json:"display_name"`
	DisplayNameCI string             `bson:"display_name_ci" json:"-"`
	Role          string             `bson:"role" json:"role"` // superadmin | admin | member
	Department    string             `bson:"department,omitempty" json:"department,omitempty"`
	PasswordHash  string             `bson:"password_hash,omitempty" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Name returns the display name, falling back to the email address.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}
