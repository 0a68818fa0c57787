package notificationstore

import (
	"context"
	"time"

	"github.com/dalemusser/teamhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("notifications")}
}

// Collection exposes the underlying collection for live queries.
func (s *Store) Collection() *mongo.Collection { return s.c }

// RecipientQuery selects every notification addressed to uid.
func RecipientQuery(uid string) bson.M { return bson.M{"user_id": uid} }

// NewestFirst is the feed ordering.
func NewestFirst() bson.D {
	return bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
}

// Insert stores a notification. ID and CreatedAt are set when zero; Read is
// always false on insert.
func (s *Store) Insert(ctx context.Context, n models.Notification) (models.Notification, error) {
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	n.Read = false
	if _, err := s.c.InsertOne(ctx, n); err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

// List returns the most recent notifications for uid (limit <= 0 means all).
func (s *Store) List(ctx context.Context, uid string, limit int64) ([]models.Notification, error) {
	opts := options.Find().SetSort(NewestFirst())
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.c.Find(ctx, RecipientQuery(uid), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]models.Notification, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get loads one of uid's notifications. Returns mongo.ErrNoDocuments if it
// does not exist or belongs to someone else.
func (s *Store) Get(ctx context.Context, id primitive.ObjectID, uid string) (models.Notification, error) {
	var n models.Notification
	if err := s.c.FindOne(ctx, bson.M{"_id": id, "user_id": uid}).Decode(&n); err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

// Recipient returns the uid a notification is addressed to.
func (s *Store) Recipient(ctx context.Context, id primitive.ObjectID) (string, error) {
	var row struct {
		UserID string `bson:"user_id"`
	}
	opts := options.FindOne().SetProjection(bson.M{"user_id": 1})
	if err := s.c.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&row); err != nil {
		return "", err
	}
	return row.UserID, nil
}

// MarkRead sets read=true on one of uid's notifications. Marking an already
// read notification is a no-op that still succeeds.
func (s *Store) MarkRead(ctx context.Context, id primitive.ObjectID, uid string) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "user_id": uid},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// UnreadIDs returns the ids of uid's unread notifications.
func (s *Store) UnreadIDs(ctx context.Context, uid string) ([]primitive.ObjectID, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := s.c.Find(ctx, bson.M{"user_id": uid, "read": false}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []primitive.ObjectID
	for cur.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		ids = append(ids, row.ID)
	}
	return ids, cur.Err()
}

// MarkManyRead sets read=true on exactly the given ids, restricted to uid.
func (s *Store) MarkManyRead(ctx context.Context, uid string, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.c.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "user_id": uid},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// CountUnread returns how many of uid's notifications are unread.
func (s *Store) CountUnread(ctx context.Context, uid string) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"user_id": uid, "read": false})
}
