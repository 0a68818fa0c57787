// Package inputval runs local input validation before any store call.
//
// Input structs declare their rules with go-playground/validator tags; a
// failure becomes an apperr.Validation whose Fields map is keyed by the
// json name of each offending field:
//
//	type NewTask struct {
//	    Title string `json:"title" validate:"required,max=200"`
//	}
package inputval

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/teamhub/internal/app/system/apperr"
	"github.com/go-playground/validator/v10"
)

var (
	once sync.Once
	v    *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		v = validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
	return v
}

// Struct validates s and returns an apperr.Validation naming every failing
// field, or nil.
func Struct(op string, s any) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return apperr.Field(op, "input", err.Error())
	}
	fields := make(map[string]string, len(ves))
	for _, fe := range ves {
		fields[fe.Field()] = message(fe)
	}
	return apperr.Validation(op, fields)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "datetime":
		return "must match " + fe.Param()
	default:
		return "is invalid"
	}
}

// IsValidEmail reports whether s is a syntactically valid email address.
func IsValidEmail(s string) bool {
	return instance().Var(s, "required,email") == nil
}

// Layouts for the separate date and time inputs that make up an instant.
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// ComposeInstant builds an instant from a date ("2006-01-02") and an optional
// wall-clock time ("15:04") in loc. A missing time means midnight. The result
// is timezone-naive in the sense that it is whatever wall clock loc shows.
func ComposeInstant(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if clock == "" {
		return time.ParseInLocation(DateLayout, date, loc)
	}
	return time.ParseInLocation(DateLayout+" "+ClockLayout, date+" "+clock, loc)
}

// MergeInstant replaces the date half, the clock half, or both of cur. A
// nil half keeps what cur shows in loc.
func MergeInstant(cur time.Time, date, clock *string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	local := cur.In(loc)
	d, c := local.Format(DateLayout), local.Format(ClockLayout)
	if date != nil {
		d = *date
	}
	if clock != nil {
		c = *clock
	}
	return ComposeInstant(d, c, loc)
}
