package meetingstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/teamhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Attendance outcomes when the conditional write matches nothing.
var (
	ErrAlreadyMarked = errors.New("attendance already marked")
	ErrNotScheduled  = errors.New("meeting is not scheduled")
	ErrNotUpcoming   = errors.New("meeting is not in the future")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("meetings")}
}

// Collection exposes the underlying collection for live queries.
func (s *Store) Collection() *mongo.Collection { return s.c }

// Filter narrows a meeting list. Empty fields are ignored.
type Filter struct {
	CreatedBy string
	Status    string
	After     time.Time // only meetings with date > After
	Ascending bool      // date ascending instead of descending
	Limit     int64
}

// Query returns the Mongo filter for f.
func (f Filter) Query() bson.M {
	q := bson.M{}
	if f.CreatedBy != "" {
		q["created_by"] = f.CreatedBy
	}
	if f.Status != "" {
		q["status"] = f.Status
	}
	if !f.After.IsZero() {
		q["date"] = bson.M{"$gt": f.After}
	}
	return q
}

// Sort returns the sort document for f.
func (f Filter) Sort() bson.D {
	dir := -1
	if f.Ascending {
		dir = 1
	}
	return bson.D{{Key: "date", Value: dir}, {Key: "_id", Value: dir}}
}

// Create inserts a meeting with empty attendance.
func (s *Store) Create(ctx context.Context, m models.Meeting) (models.Meeting, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	m.ID = primitive.NewObjectID()
	m.Attendees = []string{}
	m.AttendeesData = []models.Attendance{}
	m.CreatedAt = now
	m.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, m); err != nil {
		return models.Meeting{}, err
	}
	return m, nil
}

// Get loads a meeting by id. Returns mongo.ErrNoDocuments if not found.
func (s *Store) Get(ctx context.Context, id primitive.ObjectID) (models.Meeting, error) {
	var m models.Meeting
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return models.Meeting{}, err
	}
	return m, nil
}

// List returns meetings matching f, ordered by date.
func (s *Store) List(ctx context.Context, f Filter) ([]models.Meeting, error) {
	opts := options.Find().SetSort(f.Sort())
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	cur, err := s.c.Find(ctx, f.Query(), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]models.Meeting, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Patch holds the editable meeting fields. Nil fields are left unchanged.
type Patch struct {
	Title       *string
	Description *string
	Date        *time.Time
	Location    *string
	Status      *string
}

func (p Patch) set() bson.M {
	set := bson.M{}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.Date != nil {
		set["date"] = *p.Date
	}
	if p.Location != nil {
		set["location"] = *p.Location
	}
	if p.Status != nil {
		set["status"] = *p.Status
	}
	return set
}

// Update applies p and returns the updated meeting. When createdBy is
// non-empty the write only applies to a meeting created by that uid.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, createdBy string, p Patch) (models.Meeting, error) {
	filter := bson.M{"_id": id}
	if createdBy != "" {
		filter["created_by"] = createdBy
	}
	set := p.set()
	set["updated_at"] = time.Now().UTC()

	var m models.Meeting
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := s.c.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&m); err != nil {
		return models.Meeting{}, err
	}
	return m, nil
}

// Delete removes a meeting. Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// MarkAttendance adds a to the meeting's attendees in one conditional write:
// the meeting must be scheduled, dated after now, and not already list a.UID.
//
// When nothing matches, the meeting is re-read to report why:
// mongo.ErrNoDocuments, ErrAlreadyMarked, ErrNotScheduled or ErrNotUpcoming.
func (s *Store) MarkAttendance(ctx context.Context, id primitive.ObjectID, a models.Attendance, now time.Time) (models.Meeting, error) {
	filter := bson.M{
		"_id":       id,
		"status":    models.MeetingStatusScheduled,
		"date":      bson.M{"$gt": now},
		"attendees": bson.M{"$ne": a.UID},
	}
	update := bson.M{
		"$addToSet": bson.M{"attendees": a.UID},
		"$push":     bson.M{"attendees_data": a},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	// A second attempt covers a meeting edited between the write and the re-read.
	for attempt := 0; ; attempt++ {
		var m models.Meeting
		err := s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
		if err == nil {
			return m, nil
		}
		if err != mongo.ErrNoDocuments {
			return models.Meeting{}, err
		}

		cur, err := s.Get(ctx, id)
		if err != nil {
			return models.Meeting{}, err
		}
		switch {
		case cur.HasAttendee(a.UID):
			return cur, ErrAlreadyMarked
		case cur.Status != models.MeetingStatusScheduled:
			return cur, ErrNotScheduled
		case !cur.Date.After(now):
			return cur, ErrNotUpcoming
		}
		if attempt > 0 {
			return cur, ErrNotUpcoming
		}
	}
}
