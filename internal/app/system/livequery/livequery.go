// Package livequery turns a bounded MongoDB query into a push stream.
//
// Watch opens a change stream on the collection, then re-runs the query on
// every relevant change and hands the fresh result set to the consumer. A
// change is relevant when it inserts a matching document, touches a
// document in the current result set, or moves a document into the filter.
// Delivery is latest-wins: a slow consumer only ever sees the newest
// snapshot, never a backlog.
//
// Change streams need a replica set. On a standalone server Watch returns
// ErrNotSupported and callers fall back to polling or plain reads.
package livequery

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/dalemusser/teamhub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ErrNotSupported is returned when the server cannot open change streams.
var ErrNotSupported = errors.New("livequery: change streams are not supported by this deployment")

// Query is the bounded read re-run on every change.
type Query struct {
	Filter bson.M
	Sort   bson.D
	Limit  int64
}

// Option tunes a stream.
type Option[T any] func(*settings[T])

type settings[T any] struct {
	transform func([]T) []T
}

// WithTransform rewrites every snapshot before delivery, for example to
// redact fields the subscriber may not see.
func WithTransform[T any](fn func([]T) []T) Option[T] {
	return func(s *settings[T]) { s.transform = fn }
}

// Stream delivers successive snapshots of a query's result set.
type Stream[T any] struct {
	updates chan []T
	done    chan struct{}
	cancel  context.CancelFunc
	once    sync.Once
	wg      sync.WaitGroup

	mu  sync.Mutex
	err error
}

// Updates yields the latest snapshot. It is closed when the stream ends.
func (s *Stream[T]) Updates() <-chan []T { return s.updates }

// Done is closed once the stream has fully stopped.
func (s *Stream[T]) Done() <-chan struct{} { return s.done }

// Err reports why the stream ended, or nil after Close or context end.
func (s *Stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the stream and waits for its goroutine. Safe to call more
// than once and from any goroutine.
func (s *Stream[T]) Close() {
	s.once.Do(s.cancel)
	s.wg.Wait()
}

func (s *Stream[T]) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// deliver replaces any undelivered snapshot with items. Only the stream
// goroutine sends, so the drain-then-send pair cannot block.
func (s *Stream[T]) deliver(items []T) {
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- items:
	default:
	}
}

// Watch starts a live query. The stream ends when ctx ends, when Close is
// called, or when the change stream fails.
func Watch[T any](ctx context.Context, coll *mongo.Collection, q Query, logger *zap.Logger, opts ...Option[T]) (*Stream[T], error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var cfg settings[T]
	for _, o := range opts {
		o(&cfg)
	}
	shape := func(items []T) []T {
		if cfg.transform == nil {
			return items
		}
		return cfg.transform(items)
	}
	ctx, cancel := context.WithCancel(ctx)

	// Open the change stream before the first read so no change between
	// the read and the watch goes unseen.
	cs, err := coll.Watch(ctx, Pipeline(q.Filter))
	if err != nil {
		cancel()
		if IsNotSupported(err) {
			return nil, ErrNotSupported
		}
		return nil, err
	}

	first, ids, err := run[T](ctx, coll, q)
	if err != nil {
		_ = cs.Close(context.Background())
		cancel()
		return nil, err
	}

	s := &Stream[T]{
		updates: make(chan []T, 1),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	s.deliver(shape(first))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.done)
		defer close(s.updates)
		defer cs.Close(context.Background())
		defer cancel()

		log := logger.With(zap.String("collection", coll.Name()))
		for cs.Next(ctx) {
			ok, err := relevant(ctx, coll, q.Filter, cs.Current, ids)
			if err != nil && ctx.Err() == nil {
				log.Warn("live query change check failed", zap.Error(err))
				ok = true
			}
			if !ok {
				continue
			}
			items, fresh, err := run[T](ctx, coll, q)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn("live query refresh failed", zap.Error(err))
				continue
			}
			ids = fresh
			s.deliver(shape(items))
		}
		if err := cs.Err(); err != nil && ctx.Err() == nil {
			log.Warn("change stream ended", zap.Error(err))
			s.fail(err)
		}
	}()

	return s, nil
}

// Pipeline builds the change stream pipeline for filter: inserts whose
// document matches the filter, plus every update, replace, and delete. The
// post-image of an update cannot show that a document left the filter, so
// those events are sorted out client-side by relevant.
func Pipeline(filter bson.M) mongo.Pipeline {
	inserts := bson.M{"operationType": "insert"}
	for k, v := range filter {
		if strings.HasPrefix(k, "$") {
			// Top-level operators cannot be prefixed; take every insert.
			inserts = bson.M{"operationType": "insert"}
			break
		}
		inserts["fullDocument."+k] = v
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			inserts,
			bson.M{"operationType": bson.M{"$in": bson.A{"update", "replace", "delete"}}},
		}}}},
	}
}

// relevant reports whether event can change the result set whose document
// ids are ids. Updates outside the set cost one _id lookup to see whether
// the document now matches the filter.
func relevant(ctx context.Context, coll *mongo.Collection, filter bson.M, event bson.Raw, ids []bson.RawValue) (bool, error) {
	op, _ := event.Lookup("operationType").StringValueOK()
	if op == "insert" {
		return true, nil
	}
	key, err := event.LookupErr("documentKey", "_id")
	if err != nil {
		return true, nil
	}
	for _, id := range ids {
		if id.Equal(key) {
			return true, nil
		}
	}
	if op == "delete" {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()
	if filter == nil {
		filter = bson.M{}
	}
	n, err := coll.CountDocuments(ctx,
		bson.M{"$and": bson.A{filter, bson.M{"_id": key}}},
		options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// run executes q and returns the decoded result along with the _id of each
// document in order.
func run[T any](ctx context.Context, coll *mongo.Collection, q Query) ([]T, []bson.RawValue, error) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()

	opts := options.Find()
	if len(q.Sort) > 0 {
		opts.SetSort(q.Sort)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	filter := q.Filter
	if filter == nil {
		filter = bson.M{}
	}
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, nil, err
	}
	defer cur.Close(ctx)

	out := make([]T, 0)
	var ids []bson.RawValue
	for cur.Next(ctx) {
		var item T
		if err := cur.Decode(&item); err != nil {
			return nil, nil, err
		}
		out = append(out, item)
		// Current is reused by the next batch read.
		id := cur.Current.Lookup("_id")
		id.Value = append([]byte(nil), id.Value...)
		ids = append(ids, id)
	}
	if err := cur.Err(); err != nil {
		return nil, nil, err
	}
	return out, ids, nil
}

// IsNotSupported reports whether err means the deployment cannot serve
// change streams (standalone servers, some emulators).
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotSupported) {
		return true
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 40573, // $changeStream only supported on replica sets
			115, // CommandNotSupported
			20:  // IllegalOperation
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "changestream") && strings.Contains(msg, "replica set") ||
		strings.Contains(msg, "change stream") && strings.Contains(msg, "not supported")
}

// Supported asks the server whether it can serve change streams: replica
// set members and mongos routers can, standalone servers cannot.
func Supported(ctx context.Context, client *mongo.Client) (bool, error) {
	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		return false, err
	}
	return hello.SetName != "" || hello.Msg == "isdbgrid", nil
}
