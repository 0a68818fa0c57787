package users_test

import (
	"errors"
	"testing"

	"github.com/dalemusser/teamhub/internal/app/repos/users"
	userstore "github.com/dalemusser/teamhub/internal/app/store/users"
	"github.com/dalemusser/teamhub/internal/app/system/apperr"
	"github.com/dalemusser/teamhub/internal/app/system/indexes"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"github.com/dalemusser/teamhub/internal/testutil"
	"golang.org/x/crypto/bcrypt"
)

func TestInvite(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}
	fx := testutil.NewFixtures(t, db)
	boss := models.PrincipalOf(fx.CreateSuperAdmin(ctx, "Boss", "boss@example.com"))
	ada := models.PrincipalOf(fx.CreateAdmin(ctx, "Ada", "ada@example.com"))
	mia := models.PrincipalOf(fx.CreateMember(ctx, "Mia", "mia@example.com"))
	repo := users.New(userstore.New(db), nil, nil)

	member := func(email, role string) users.NewMember {
		return users.NewMember{Email: email, DisplayName: "New Person", Role: role, Password: "longenough"}
	}

	tests := []struct {
		name      string
		actor     models.Principal
		in        users.NewMember
		wantErr   error
		wantField string
	}{
		{"admin invites member", ada, member("NEW@Example.com", "member"), nil, ""},
		{"admin invites admin", ada, member("second@example.com", "admin"), nil, ""},
		{"superadmin invites superadmin", boss, member("root2@example.com", "superadmin"), nil, ""},
		{"admin cannot escalate", ada, member("esc@example.com", "superadmin"), apperr.ErrUnauthorized, ""},
		{"member cannot invite", mia, member("x@example.com", "member"), apperr.ErrUnauthorized, ""},
		{"duplicate email", ada, member("mia@example.com", "member"), apperr.ErrValidation, "email"},
		{"bad email", ada, member("not-an-email", "member"), apperr.ErrValidation, "email"},
		{"short password", ada, users.NewMember{Email: "p@example.com", DisplayName: "P", Role: "member", Password: "short"}, apperr.ErrValidation, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := repo.Invite(ctx, tt.actor, tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if tt.wantField != "" && apperr.FieldsOf(err)[tt.wantField] == "" {
					t.Errorf("fields = %v, want %q", apperr.FieldsOf(err), tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("Invite: %v", err)
			}
			if u.UID == "" || u.Role != tt.in.Role {
				t.Errorf("user = %+v", u)
			}
			if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(tt.in.Password)) != nil {
				t.Error("stored hash does not match the password")
			}
		})
	}

	got, err := repo.Get(ctx, mustUID(t, repo, "new@example.com"))
	if err != nil || got.Email != "new@example.com" {
		t.Errorf("email should be stored lowercased: %+v, %v", got, err)
	}
}

func mustUID(t *testing.T, repo *users.Repo, email string) string {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	all, err := repo.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range all {
		if u.Email == email {
			return u.UID
		}
	}
	t.Fatalf("no user with email %s", email)
	return ""
}

func TestUIDs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	fx.CreateAdmin(ctx, "Ada", "ada@example.com")
	fx.CreateMember(ctx, "Mia", "mia@example.com")
	repo := users.New(userstore.New(db), nil, nil)

	uids, err := repo.UIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(uids) != 2 {
		t.Errorf("got %d uids, want 2", len(uids))
	}
}
