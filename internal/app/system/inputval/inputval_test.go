package inputval

import (
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/teamhub/internal/app/system/apperr"
)

type sample struct {
	Title    string `json:"title" validate:"required,max=10"`
	Priority string `json:"priority" validate:"omitempty,oneof=low medium high"`
	Email    string `json:"email" validate:"omitempty,email"`
}

func TestStruct_Valid(t *testing.T) {
	if err := Struct("op", sample{Title: "ok", Priority: "high"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStruct_FieldsUseJSONNames(t *testing.T) {
	err := Struct("tasks.create", sample{Priority: "urgent", Email: "nope"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := apperr.FieldsOf(err)
	for _, f := range []string{"title", "priority", "email"} {
		if _, ok := fields[f]; !ok {
			t.Errorf("expected field %q in %v", f, fields)
		}
	}
	if fields["title"] != "is required" {
		t.Errorf("title message = %q", fields["title"])
	}
}

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"user@example.com", true},
		{"user.name+tag@example.co.uk", true},
		{"", false},
		{"user", false},
		{"user@", false},
		{"@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			if got := IsValidEmail(tt.email); got != tt.want {
				t.Errorf("IsValidEmail(%q) = %v, want %v", tt.email, got, tt.want)
			}
		})
	}
}

func TestComposeInstant(t *testing.T) {
	loc := time.FixedZone("test", -5*3600)

	got, err := ComposeInstant("2025-06-01", "14:30", loc)
	if err != nil {
		t.Fatalf("ComposeInstant: %v", err)
	}
	want := time.Date(2025, 6, 1, 14, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	midnight, err := ComposeInstant("2025-06-01", "", loc)
	if err != nil {
		t.Fatalf("ComposeInstant without time: %v", err)
	}
	if !midnight.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, loc)) {
		t.Errorf("date-only should be midnight, got %v", midnight)
	}

	if _, err := ComposeInstant("06/01/2025", "", loc); err == nil {
		t.Error("expected error for wrong date layout")
	}
	if _, err := ComposeInstant("2025-06-01", "2pm", loc); err == nil {
		t.Error("expected error for wrong time layout")
	}
}

func TestMergeInstant(t *testing.T) {
	loc := time.FixedZone("test", -5*3600)
	cur := time.Date(2025, 6, 1, 14, 30, 0, 0, loc).UTC()
	str := func(s string) *string { return &s }

	tests := []struct {
		name        string
		date, clock *string
		want        time.Time
	}{
		{"date only keeps clock", str("2025-07-04"), nil, time.Date(2025, 7, 4, 14, 30, 0, 0, loc)},
		{"clock only keeps date", nil, str("09:15"), time.Date(2025, 6, 1, 9, 15, 0, 0, loc)},
		{"both", str("2025-07-04"), str("09:15"), time.Date(2025, 7, 4, 9, 15, 0, 0, loc)},
		{"neither", nil, nil, time.Date(2025, 6, 1, 14, 30, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MergeInstant(cur, tt.date, tt.clock, loc)
			if err != nil {
				t.Fatalf("MergeInstant: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := MergeInstant(cur, nil, str("25:00"), loc); err == nil {
		t.Error("expected error for invalid clock")
	}
}
