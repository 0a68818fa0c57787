package apperr

import (
	"context"
	"errors"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/mongo"
)

// FromStore classifies a MongoDB error.
//
//   - mongo.ErrNoDocuments        → NotFound
//   - duplicate key               → Validation on "id"
//   - $jsonSchema rejection (121) → Validation on "document"
//   - network, timeout, selection → StoreUnavailable
//
// Anything else is wrapped as StoreUnavailable as well; the core never
// surfaces raw driver errors to callers. An *Error passes through unchanged.
func FromStore(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return NotFound(op)
	}
	if wafflemongo.IsDup(err) {
		return Field(op, "id", "already exists")
	}
	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorCode(documentValidationFailure) {
		return &Error{Kind: KindValidation, Op: op, Fields: map[string]string{"document": "rejected by the collection schema"}, Err: err}
	}
	return Unavailable(op, err)
}

// documentValidationFailure is the server code for a write that fails the
// collection's $jsonSchema validator.
const documentValidationFailure = 121

// IsTransient reports whether err looks like a transient backend failure
// worth retrying for a pure read.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorLabel("RetryableReadError") {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// readAttempts and readBackoff bound RetryRead.
const (
	readAttempts = 3
	readBackoff  = 100 * time.Millisecond
)

// RetryRead runs a pure read, retrying transient failures a bounded number of
// times. It must never wrap a write: retrying writes could duplicate side
// effects such as notification fan-out.
func RetryRead(ctx context.Context, read func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < readAttempts; attempt++ {
		if err = read(ctx); err == nil || !IsTransient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(readBackoff * time.Duration(attempt+1)):
		}
	}
	return err
}
