package notifications_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/teamhub/internal/app/features/notifications"
	notificationrepo "github.com/dalemusser/teamhub/internal/app/repos/notifications"
	notificationstore "github.com/dalemusser/teamhub/internal/app/store/notifications"
	userstore "github.com/dalemusser/teamhub/internal/app/store/users"
	"github.com/dalemusser/teamhub/internal/app/system/auth"
	"github.com/dalemusser/teamhub/internal/app/system/effects"
	"github.com/dalemusser/teamhub/internal/app/system/feed"
	"github.com/dalemusser/teamhub/internal/app/system/identity"
	"github.com/dalemusser/teamhub/internal/app/system/session"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"github.com/dalemusser/teamhub/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type countingToucher struct{ n atomic.Int64 }

func (c *countingToucher) Touch(context.Context, string) (int64, error) {
	c.n.Add(1)
	return 1, nil
}

type env struct {
	router  chi.Router
	fx      *testutil.Fixtures
	store   *notificationstore.Store
	reg     *session.Registry
	touches *countingToucher
}

func setup(t *testing.T) env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	sm, err := auth.NewSessionManager("test-session-key-must-be-32-chars-long", "test-session", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	store := notificationstore.New(db)
	users := userstore.New(db)
	repo := notificationrepo.New(store, nil)
	repo.Retrier = effects.New(store, users, nil, nil, effects.Config{})
	repo.Users = users
	f := feed.New(repo, nil, nil)
	f.PollInterval = 50 * time.Millisecond
	reg := session.NewRegistry(nil)
	touches := &countingToucher{}

	h := notifications.NewHandler(repo, f, reg, touches, zap.NewNop())
	h.KeepAlive = 20 * time.Millisecond
	return env{
		router:  notifications.Routes(h, sm),
		fx:      testutil.NewFixtures(t, db),
		store:   store,
		reg:     reg,
		touches: touches,
	}
}

func (e env) do(req *http.Request, as models.User) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, testutil.WithUser(req, testutil.AsTestUser(as)))
	return rec
}

func TestListAndRead(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	mia := e.fx.CreateMember(ctx, "Mia", "mia@example.com")
	bob := e.fx.CreateMember(ctx, "Bob", "bob@example.com")
	a := e.fx.CreateNotification(ctx, mia, "a", false)
	e.fx.CreateNotification(ctx, mia, "b", false)
	theirs := e.fx.CreateNotification(ctx, bob, "bob's", false)

	rec := e.do(testutil.NewRequest("GET", "/"), mia)
	var snap feed.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Items) != 2 || snap.Unread != 2 {
		t.Fatalf("list = %+v", snap)
	}

	for i := 0; i < 2; i++ {
		if rec := e.do(testutil.NewRequest("POST", "/"+a.ID.Hex()+"/read"), mia); rec.Code != http.StatusNoContent {
			t.Fatalf("read #%d: status = %d", i+1, rec.Code)
		}
	}
	if rec := e.do(testutil.NewRequest("POST", "/"+theirs.ID.Hex()+"/read"), mia); rec.Code != http.StatusNotFound {
		t.Errorf("foreign read: status = %d, want 404", rec.Code)
	}

	rec = e.do(testutil.NewRequest("GET", "/unread-count"), mia)
	var count map[string]int64
	_ = json.NewDecoder(rec.Body).Decode(&count)
	if count["unread"] != 1 {
		t.Errorf("unread = %v, want 1", count)
	}

	rec = e.do(testutil.NewRequest("POST", "/read-all"), mia)
	var marked map[string]int64
	_ = json.NewDecoder(rec.Body).Decode(&marked)
	if rec.Code != http.StatusOK || marked["marked"] != 1 {
		t.Errorf("read-all = %d %v", rec.Code, marked)
	}

	if rec := e.do(testutil.NewRequest("GET", "/?limit=-1"), mia); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad limit: status = %d", rec.Code)
	}
}

func TestRedeliver(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	root := e.fx.CreateSuperAdmin(ctx, "Root", "root@example.com")
	ada := e.fx.CreateAdmin(ctx, "Ada", "ada@example.com")
	mia := e.fx.CreateMember(ctx, "Mia", "mia@example.com")

	body := `{"user_id":"` + mia.UID + `","title":"New task: <b>Report</b>","type":"task","ref_id":"t-1"}`

	tests := []struct {
		name string
		as   models.User
		body string
		want int
	}{
		{"admin forbidden", ada, body, http.StatusForbidden},
		{"member forbidden", mia, body, http.StatusForbidden},
		{"unknown recipient", root, `{"user_id":"ghost","title":"x","type":"task"}`, http.StatusUnprocessableEntity},
		{"bad type", root, `{"user_id":"` + mia.UID + `","title":"x","type":"alert"}`, http.StatusUnprocessableEntity},
		{"superadmin redelivers", root, body, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(testutil.NewJSONRequest("POST", "/redeliver", tt.body), tt.as)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	inbox, err := e.store.List(ctx, mia.UID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(inbox) != 1 {
		t.Fatalf("recipient has %d notifications, want 1", len(inbox))
	}
	if inbox[0].Title != "New task: Report" || inbox[0].RefID != "t-1" || inbox[0].Read {
		t.Errorf("redelivered = %+v", inbox[0])
	}
}

func readSnapshot(t *testing.T, sc *bufio.Scanner) feed.Snapshot {
	t.Helper()
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var snap feed.Snapshot
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap); err != nil {
			t.Fatal(err)
		}
		return snap
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return feed.Snapshot{}
}

func TestStream_PushesAndEndsOnSignOut(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	mia := e.fx.CreateMember(ctx, "Mia", "mia@example.com")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.router.ServeHTTP(w, testutil.WithUser(r, testutil.AsTestUser(mia)))
	}))
	defer srv.Close()

	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	sc := bufio.NewScanner(resp.Body)

	if snap := readSnapshot(t, sc); len(snap.Items) != 0 {
		t.Fatalf("initial snapshot = %+v", snap)
	}
	if _, err := e.store.Insert(ctx, models.Notification{UserID: mia.UID, Title: "new", Type: models.NotificationTypeTask}); err != nil {
		t.Fatal(err)
	}
	if snap := readSnapshot(t, sc); len(snap.Items) != 1 || snap.Unread != 1 {
		t.Fatalf("snapshot after insert = %+v", snap)
	}

	deadline := time.Now().Add(2 * time.Second)
	for e.touches.n.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if e.touches.n.Load() == 0 {
		t.Error("keepalive never touched the activity session")
	}

	// Signing out ends the stream.
	e.reg.OnIdentityEvent(identity.Event{Kind: identity.SignedOut, UID: mia.UID})
	done := make(chan struct{})
	go func() {
		for sc.Scan() {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream still open after sign-out")
	}
}
