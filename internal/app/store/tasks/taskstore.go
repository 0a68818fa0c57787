package taskstore

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
	return &Store{c: db.Collection("tasks")}
}

// Collection exposes the underlying collection for live queries.
func (s *Store) Collection() *mongo.Collection { return s.c }

// Filter narrows a task list. Empty fields are ignored.
type Filter struct {
	AssignedTo string
	Status     string
	Priority   string
	Limit      int64
}

// Query returns the Mongo filter for f.
func (f Filter) Query() bson.M {
	q := bson.M{}
	if f.AssignedTo != "" {
		q["assigned_to"] = f.AssignedTo
	}
	if f.Status != "" {
		q["status"] = f.Status
	}
	if f.Priority != "" {
		q["priority"] = f.Priority
	}
	return q
}

// scoped adds the assignee restriction to a filter when assignedTo is set.
func scoped(q bson.M, assignedTo string) bson.M {
	if assignedTo != "" {
		q["assigned_to"] = assignedTo
	}
	return q
}

// Create inserts a task. ID, timestamps and an empty notes array are set here.
func (s *Store) Create(ctx context.Context, t models.Task) (models.Task, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	t.ID = primitive.NewObjectID()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Notes == nil {
		t.Notes = []models.Note{}
	}
	if _, err := s.c.InsertOne(ctx, t); err != nil {
		return models.Task{}, err
	}
	return t, nil
}

// Get loads a task by id. When assignedTo is non-empty the task must be
// assigned to that uid. Returns mongo.ErrNoDocuments if nothing matches.
func (s *Store) Get(ctx context.Context, id primitive.ObjectID, assignedTo string) (models.Task, error) {
	var t models.Task
	if err := s.c.FindOne(ctx, scoped(bson.M{"_id": id}, assignedTo)).Decode(&t); err != nil {
		return models.Task{}, err
	}
	return t, nil
}

// List returns tasks matching f, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]models.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	cur, err := s.c.Find(ctx, f.Query(), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]models.Task, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Patch holds the editable task fields. Nil fields are left unchanged.
type Patch struct {
	Title          *string
	Description    *string
	AssignedTo     *string
	AssignedToName *string
	Status         *string
	Priority       *string
	DueDate        *time.Time
}

func (p Patch) set() bson.M {
	set := bson.M{}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.AssignedTo != nil {
		set["assigned_to"] = *p.AssignedTo
	}
	if p.AssignedToName != nil {
		set["assigned_to_name"] = *p.AssignedToName
	}
	if p.Status != nil {
		set["status"] = *p.Status
	}
	if p.Priority != nil {
		set["priority"] = *p.Priority
	}
	if p.DueDate != nil {
		set["due_date"] = *p.DueDate
	}
	return set
}

// Update applies p and returns the updated task.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, p Patch) (models.Task, error) {
	set := p.set()
	set["updated_at"] = time.Now().UTC()
	return s.findOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set})
}

// SetStatus changes a task's status. When assignedTo is non-empty the write
// only applies to a task assigned to that uid.
func (s *Store) SetStatus(ctx context.Context, id primitive.ObjectID, assignedTo, status string) (models.Task, error) {
	return s.findOneAndUpdate(ctx,
		scoped(bson.M{"_id": id}, assignedTo),
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now().UTC()}})
}

// AppendNote pushes n onto the task's notes unless a note with the same id
// is already present. appended is false when the note was already there.
// When assignedTo is non-empty the task must be assigned to that uid.
func (s *Store) AppendNote(ctx context.Context, id primitive.ObjectID, assignedTo string, n models.Note) (t models.Task, appended bool, err error) {
	filter := scoped(bson.M{"_id": id, "notes.id": bson.M{"$ne": n.ID}}, assignedTo)
	t, err = s.findOneAndUpdate(ctx, filter, bson.M{
		"$push": bson.M{"notes": n},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
	if err == nil {
		return t, true, nil
	}
	if err != mongo.ErrNoDocuments {
		return models.Task{}, false, err
	}

	// Either the task is gone/out of scope, or the note is already there.
	t, err = s.Get(ctx, id, assignedTo)
	if err != nil {
		return models.Task{}, false, err
	}
	return t, false, nil
}

// Delete removes a task. Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *Store) findOneAndUpdate(ctx context.Context, filter, update bson.M) (models.Task, error) {
	var t models.Task
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&t); err != nil {
		return models.Task{}, err
	}
	return t, nil
}
