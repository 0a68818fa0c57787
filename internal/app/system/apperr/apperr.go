// Package apperr defines the tagged failures returned by repositories.
//
// Every repository operation returns either a value or an *Error whose Kind
// tells the caller what went wrong:
//   - KindUnauthorized: the policy denied the action
//   - KindValidation: input failed local checks; Fields names the offenders
//   - KindNotFound: the referenced entity does not exist (or is not visible)
//   - KindAlreadyMarked: an idempotent append was a no-op
//   - KindStoreUnavailable: a transient backend/network failure
//
// Callers match with errors.Is against the package sentinels:
//
//	if errors.Is(err, apperr.ErrNotFound) { ... }
package apperr

import (
	"errors"
	"sort"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthorized
	KindValidation
	KindNotFound
	KindAlreadyMarked
	KindStoreUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation_failed"
	case KindNotFound:
		return "not_found"
	case KindAlreadyMarked:
		return "already_marked"
	case KindStoreUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// Error is a tagged failure. Op names the operation ("tasks.create").
type Error struct {
	Kind   Kind
	Op     string
	Fields map[string]string // field -> message, only for KindValidation
	Err    error
}

// Sentinels for errors.Is. They carry only a Kind.
var (
	ErrUnauthorized     = &Error{Kind: KindUnauthorized}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrAlreadyMarked    = &Error{Kind: KindAlreadyMarked}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable}
)

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Unauthorized reports a policy denial.
func Unauthorized(op, reason string) *Error {
	var err error
	if reason != "" {
		err = errors.New(reason)
	}
	return &Error{Kind: KindUnauthorized, Op: op, Err: err}
}

// Validation reports field-level input failures.
func Validation(op string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Op: op, Fields: fields}
}

// Field is shorthand for a single-field validation failure.
func Field(op, field, msg string) *Error {
	return Validation(op, map[string]string{field: msg})
}

// NotFound reports a missing entity.
func NotFound(op string) *Error {
	return &Error{Kind: KindNotFound, Op: op}
}

// AlreadyMarked reports an idempotent no-op.
func AlreadyMarked(op string) *Error {
	return &Error{Kind: KindAlreadyMarked, Op: op}
}

// Unavailable wraps a transient backend failure.
func Unavailable(op string, err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Op: op, Err: err}
}

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// FieldsOf returns the validation fields of err, if any.
func FieldsOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

