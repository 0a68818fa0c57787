// internal/app/store/sessions/store.go
package sessionstore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// End reasons.
const (
	EndLogout   = "logout"
	EndInactive = "inactive"
	EndReplaced = "replaced" // a newer sign-in superseded it
)

// Record tracks one signed-in stretch of a user for activity reporting.
type Record struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID string             `bson:"user_id" json:"user_id"`

	// Timing
	LoginAt      time.Time  `bson:"login_at" json:"login_at"`
	LogoutAt     *time.Time `bson:"logout_at,omitempty" json:"logout_at,omitempty"`
	LastActiveAt time.Time  `bson:"last_active_at" json:"last_active_at"`

	// How did it end? "" while open.
	EndReason string `bson:"end_reason,omitempty" json:"end_reason,omitempty"`

	// Context
	IP        string `bson:"ip" json:"ip"`
	UserAgent string `bson:"user_agent,omitempty" json:"user_agent,omitempty"`

	// Computed on close
	DurationSecs int64 `bson:"duration_secs,omitempty" json:"duration_secs,omitempty"`
}

// Store manages session activity records.
type Store struct {
	c *mongo.Collection
}

// New creates a new sessions Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("sessions")}
}

// Create opens a record for uid. Any record still open for uid is closed
// first with EndReplaced.
func (s *Store) Create(ctx context.Context, uid, ip, userAgent string) (Record, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)

	if _, err := s.closeWhere(ctx, bson.M{"user_id": uid, "logout_at": nil}, EndReplaced, now); err != nil {
		return Record{}, err
	}

	rec := Record{
		ID:           primitive.NewObjectID(),
		UserID:       uid,
		LoginAt:      now,
		LastActiveAt: now,
		IP:           ip,
		UserAgent:    userAgent,
	}
	if _, err := s.c.InsertOne(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// CloseAllForUser ends every open record of uid with reason.
func (s *Store) CloseAllForUser(ctx context.Context, uid, reason string) (int64, error) {
	return s.closeWhere(ctx, bson.M{"user_id": uid, "logout_at": nil}, reason, time.Now().UTC())
}

// CloseInactive ends open records with no activity for longer than threshold.
// This is typically called by a background job.
func (s *Store) CloseInactive(ctx context.Context, threshold time.Duration) (int64, error) {
	now := time.Now().UTC()
	return s.closeWhere(ctx, bson.M{
		"logout_at":      nil,
		"last_active_at": bson.M{"$lt": now.Add(-threshold)},
	}, EndInactive, now)
}

// closeWhere stamps logout_at, end_reason, and duration in one pipeline
// update so the duration is computed from each record's own login_at.
func (s *Store) closeWhere(ctx context.Context, filter bson.M, reason string, now time.Time) (int64, error) {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"logout_at":  now,
			"end_reason": reason,
			"duration_secs": bson.M{"$toLong": bson.M{"$divide": bson.A{
				bson.M{"$subtract": bson.A{now, "$login_at"}},
				1000,
			}}},
		}}},
	}
	res, err := s.c.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// Touch refreshes last_active_at on uid's open records and reports how
// many are open.
func (s *Store) Touch(ctx context.Context, uid string) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"user_id": uid, "logout_at": nil},
		bson.M{"$set": bson.M{"last_active_at": time.Now().UTC()}},
	)
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

// GetActiveByUser returns open records for uid.
func (s *Store) GetActiveByUser(ctx context.Context, uid string) ([]Record, error) {
	return s.find(ctx, bson.M{"user_id": uid, "logout_at": nil}, options.Find())
}

// GetByUser returns uid's session history, newest first.
func (s *Store) GetByUser(ctx context.Context, uid string, limit int64) ([]Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "login_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return s.find(ctx, bson.M{"user_id": uid}, opts)
}

// CountActive counts open records with activity within threshold.
func (s *Store) CountActive(ctx context.Context, threshold time.Duration) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{
		"logout_at":      nil,
		"last_active_at": bson.M{"$gte": time.Now().UTC().Add(-threshold)},
	})
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Record, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]Record, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
