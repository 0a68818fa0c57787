package meetings_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/teamhub/internal/app/repos/meetings"
	meetingstore "github.com/dalemusser/teamhub/internal/app/store/meetings"
	notificationstore "github.com/dalemusser/teamhub/internal/app/store/notifications"
	userstore "github.com/dalemusser/teamhub/internal/app/store/users"
	"github.com/dalemusser/teamhub/internal/app/system/apperr"
	"github.com/dalemusser/teamhub/internal/app/system/effects"
	"github.com/dalemusser/teamhub/internal/app/system/livequery"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"github.com/dalemusser/teamhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type harness struct {
	repo  *meetings.Repo
	fx    *testutil.Fixtures
	coord *effects.Coordinator
	notes *notificationstore.Store

	boss, ada, alan, mia models.User
}

func setup(t *testing.T) *harness {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	users := userstore.New(db)
	notes := notificationstore.New(db)
	coord := effects.New(notes, users, nil, nil, effects.Config{Concurrency: 2})
	return &harness{
		repo:  meetings.New(meetingstore.New(db), coord, nil, nil),
		fx:    fx,
		coord: coord,
		notes: notes,
		boss:  fx.CreateSuperAdmin(ctx, "Boss", "boss@example.com"),
		ada:   fx.CreateAdmin(ctx, "Ada", "ada@example.com"),
		alan:  fx.CreateAdmin(ctx, "Alan", "alan@example.com"),
		mia:   fx.CreateMember(ctx, "Mia", "mia@example.com"),
	}
}

func pr(u models.User) models.Principal { return models.PrincipalOf(u) }

func TestCreate_FansOutToEveryUser(t *testing.T) {
	h := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	m, err := h.repo.Create(ctx, pr(h.ada), meetings.NewMeeting{
		Title:    "Planning",
		Date:     time.Now().Add(48 * time.Hour).Format("2006-01-02"),
		Time:     "10:00",
		Location: "Room <i>7</i>",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.Status != models.MeetingStatusScheduled || m.CreatedBy != h.ada.UID || m.Location != "Room 7" {
		t.Errorf("meeting = %+v", m)
	}

	h.coord.Wait()
	for _, u := range []models.User{h.boss, h.ada, h.alan, h.mia} {
		got, err := h.notes.List(ctx, u.UID, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].Type != models.NotificationTypeMeeting || got[0].RefID != m.ID.Hex() {
			t.Errorf("%s inbox = %+v", u.DisplayName, got)
		}
	}
}

func TestCreate_MemberDenied(t *testing.T) {
	h := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := h.repo.Create(ctx, pr(h.mia), meetings.NewMeeting{Title: "x", Date: "2030-01-01"})
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("err = %v, want Unauthorized", err)
	}
}

func TestUpdate_CreatorRule(t *testing.T) {
	h := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	m := h.fx.CreateMeeting(ctx, "Ada's", time.Now().Add(24*time.Hour), models.MeetingStatusScheduled, h.ada)
	title := "Renamed"

	tests := []struct {
		name  string
		actor models.User
		want  error
	}{
		{"other admin", h.alan, apperr.ErrUnauthorized},
		{"member", h.mia, apperr.ErrUnauthorized},
		{"creator", h.ada, nil},
		{"superadmin", h.boss, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.repo.Update(ctx, pr(tt.actor), m.ID.Hex(), meetings.MeetingPatch{Title: &title})
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Update: %v", err)
				}
				if got.Title != "Renamed" {
					t.Errorf("title = %q", got.Title)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := h.repo.Update(ctx, pr(h.ada), primitive.NewObjectID().Hex(), meetings.MeetingPatch{Title: &title}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing meeting: err = %v, want NotFound", err)
	}
}

func TestUpdate_PartialDateTime(t *testing.T) {
	h := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	loc := time.FixedZone("team", -5*3600)
	h.repo.Location = loc
	m := h.fx.CreateMeeting(ctx, "sync", time.Date(2031, 3, 10, 10, 0, 0, 0, loc), models.MeetingStatusScheduled, h.ada)

	clock := "15:00"
	got, err := h.repo.Update(ctx, pr(h.boss), m.ID.Hex(), meetings.MeetingPatch{Time: &clock})
	if err != nil {
		t.Fatalf("time-only patch: %v", err)
	}
	if want := time.Date(2031, 3, 10, 15, 0, 0, 0, loc); !got.Date.Equal(want) {
		t.Errorf("after time-only patch date = %v, want %v", got.Date.In(loc), want)
	}

	day := "2031-04-01"
	got, err = h.repo.Update(ctx, pr(h.boss), m.ID.Hex(), meetings.MeetingPatch{Date: &day})
	if err != nil {
		t.Fatalf("date-only patch: %v", err)
	}
	if want := time.Date(2031, 4, 1, 15, 0, 0, 0, loc); !got.Date.Equal(want) {
		t.Errorf("after date-only patch date = %v, want %v", got.Date.In(loc), want)
	}

	bad := "25:00"
	_, err = h.repo.Update(ctx, pr(h.boss), m.ID.Hex(), meetings.MeetingPatch{Time: &bad})
	if !errors.Is(err, apperr.ErrValidation) || apperr.FieldsOf(err)["time"] == "" {
		t.Errorf("bad time: err = %v, want validation on time", err)
	}
}

func TestMarkAttendance(t *testing.T) {
	h := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	future := h.fx.CreateMeeting(ctx, "future", time.Now().Add(time.Hour), models.MeetingStatusScheduled, h.ada)
	past := h.fx.CreateMeeting(ctx, "past", time.Now().Add(-time.Hour), models.MeetingStatusScheduled, h.ada)
	cancelled := h.fx.CreateMeeting(ctx, "cancelled", time.Now().Add(time.Hour), models.MeetingStatusCancelled, h.ada)

	m, err := h.repo.MarkAttendance(ctx, pr(h.mia), future.ID.Hex())
	if err != nil {
		t.Fatalf("MarkAttendance: %v", err)
	}
	if !m.HasAttendee(h.mia.UID) {
		t.Error("member should see themselves attending")
	}

	if _, err := h.repo.MarkAttendance(ctx, pr(h.mia), future.ID.Hex()); !errors.Is(err, apperr.ErrAlreadyMarked) {
		t.Errorf("second mark: err = %v, want AlreadyMarked", err)
	}

	_, err = h.repo.MarkAttendance(ctx, pr(h.mia), past.ID.Hex())
	if !errors.Is(err, apperr.ErrValidation) || apperr.FieldsOf(err)["date"] == "" {
		t.Errorf("past meeting: err = %v, want ValidationFailed(date)", err)
	}
	_, err = h.repo.MarkAttendance(ctx, pr(h.mia), cancelled.ID.Hex())
	if !errors.Is(err, apperr.ErrValidation) || apperr.FieldsOf(err)["status"] == "" {
		t.Errorf("cancelled meeting: err = %v, want ValidationFailed(status)", err)
	}
	if _, err := h.repo.MarkAttendance(ctx, pr(h.mia), primitive.NewObjectID().Hex()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing meeting: err = %v", err)
	}
}

func TestMarkAttendance_ConcurrentMarksRecordOnce(t *testing.T) {
	h := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	m := h.fx.CreateMeeting(ctx, "race", time.Now().Add(time.Hour), models.MeetingStatusScheduled, h.ada)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.repo.MarkAttendance(ctx, pr(h.mia), m.ID.Hex())
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			} else if !errors.Is(err, apperr.ErrAlreadyMarked) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Errorf("%d marks succeeded, want 1", success)
	}
	roster, err := h.repo.Attendance(ctx, pr(h.boss), m.ID.Hex())
	if err != nil {
		t.Fatal(err)
	}
	if len(roster) != 1 || roster[0].UID != h.mia.UID || roster[0].Name != "Mia" {
		t.Errorf("roster = %+v", roster)
	}
}

func TestRosterIsSuperAdminOnly(t *testing.T) {
	h := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	m := h.fx.CreateMeeting(ctx, "roster", time.Now().Add(time.Hour), models.MeetingStatusScheduled, h.ada)
	if _, err := h.repo.MarkAttendance(ctx, pr(h.mia), m.ID.Hex()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.repo.MarkAttendance(ctx, pr(h.alan), m.ID.Hex()); err != nil {
		t.Fatal(err)
	}

	// The creating admin still may not see the roster.
	if _, err := h.repo.Attendance(ctx, pr(h.ada), m.ID.Hex()); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("admin roster: err = %v, want Unauthorized", err)
	}

	got, err := h.repo.Get(ctx, pr(h.ada), m.ID.Hex())
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Attendees) != 0 || got.AttendeesData != nil {
		t.Errorf("admin view leaks roster: %+v / %+v", got.Attendees, got.AttendeesData)
	}
	got, _ = h.repo.Get(ctx, pr(h.mia), m.ID.Hex())
	if len(got.Attendees) != 1 || got.Attendees[0] != h.mia.UID {
		t.Errorf("member view = %v, want only self", got.Attendees)
	}
	got, _ = h.repo.Get(ctx, pr(h.boss), m.ID.Hex())
	if len(got.AttendeesData) != 2 {
		t.Errorf("superadmin view has %d roster entries, want 2", len(got.AttendeesData))
	}
}

func TestUpcoming_SoonestFirstCappedAtFive(t *testing.T) {
	h := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Now()
	h.fx.CreateMeeting(ctx, "yesterday", now.Add(-24*time.Hour), models.MeetingStatusScheduled, h.ada)
	for i := 7; i >= 1; i-- {
		h.fx.CreateMeeting(ctx, "in "+string(rune('0'+i))+"h", now.Add(time.Duration(i)*time.Hour), models.MeetingStatusScheduled, h.ada)
	}

	got, err := h.repo.Upcoming(ctx, pr(h.mia))
	if err != nil {
		t.Fatalf("Upcoming: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d meetings, want 5", len(got))
	}
	if got[0].Title != "in 1h" || got[4].Title != "in 5h" {
		t.Errorf("order = %q ... %q", got[0].Title, got[4].Title)
	}

	all, err := h.repo.List(ctx, pr(h.mia), meetings.MeetingFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 8 || all[0].Title != "in 7h" || all[7].Title != "yesterday" {
		t.Errorf("List should be date descending, got %d starting %q", len(all), all[0].Title)
	}
}

func TestDelete(t *testing.T) {
	h := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	m := h.fx.CreateMeeting(ctx, "gone", time.Now().Add(time.Hour), models.MeetingStatusScheduled, h.ada)

	if err := h.repo.Delete(ctx, pr(h.mia), m.ID.Hex()); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("member delete: err = %v", err)
	}
	if err := h.repo.Delete(ctx, pr(h.alan), m.ID.Hex()); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := h.repo.Get(ctx, pr(h.boss), m.ID.Hex()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("get after delete: err = %v", err)
	}
}

func TestSubscribe_RedactsRoster(t *testing.T) {
	h := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	m := h.fx.CreateMeeting(ctx, "live", time.Now().Add(time.Hour), models.MeetingStatusScheduled, h.ada)

	s, err := h.repo.Subscribe(ctx, pr(h.ada), meetings.MeetingFilter{})
	if errors.Is(err, livequery.ErrNotSupported) {
		t.Skip("change streams need a replica set")
	}
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer s.Close()

	<-s.Updates()
	if _, err := h.repo.MarkAttendance(ctx, pr(h.mia), m.ID.Hex()); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-s.Updates():
		if len(got) != 1 || len(got[0].Attendees) != 0 || got[0].AttendeesData != nil {
			t.Errorf("admin stream leaks roster: %+v", got)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no snapshot after attendance change")
	}
}

func TestSubscribe_CancelledMeetingLeavesScheduledStream(t *testing.T) {
	h := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	m := h.fx.CreateMeeting(ctx, "standup", time.Now().Add(time.Hour), models.MeetingStatusScheduled, h.ada)
	h.fx.CreateMeeting(ctx, "retro", time.Now().Add(2*time.Hour), models.MeetingStatusScheduled, h.ada)

	s, err := h.repo.Subscribe(ctx, pr(h.boss), meetings.MeetingFilter{Status: models.MeetingStatusScheduled})
	if errors.Is(err, livequery.ErrNotSupported) {
		t.Skip("change streams need a replica set")
	}
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer s.Close()

	if got := <-s.Updates(); len(got) != 2 {
		t.Fatalf("initial snapshot has %d meetings, want 2", len(got))
	}

	cancelled := models.MeetingStatusCancelled
	if _, err := h.repo.Update(ctx, pr(h.boss), m.ID.Hex(), meetings.MeetingPatch{Status: &cancelled}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	select {
	case got := <-s.Updates():
		if len(got) != 1 || got[0].Title != "retro" {
			t.Errorf("snapshot after cancel = %+v, want only retro", got)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("cancelled meeting never left the scheduled stream")
	}
}
