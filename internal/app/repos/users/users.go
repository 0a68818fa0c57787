// Package users is the user repository: profile reads for the team views
// and the provisioning flow that invites new members.
package users

import (
	"context"
	"errors"

	userstore "github.com/dalemusser/teamhub/internal/app/store/users"
	"github.com/dalemusser/teamhub/internal/app/system/apperr"
	"github.com/dalemusser/teamhub/internal/app/system/auditlog"
	"github.com/dalemusser/teamhub/internal/app/system/authz"
	"github.com/dalemusser/teamhub/internal/app/system/identity"
	"github.com/dalemusser/teamhub/internal/app/system/inputval"
	"github.com/dalemusser/teamhub/internal/app/system/normalize"
	"github.com/dalemusser/teamhub/internal/app/system/timeouts"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"go.uber.org/zap"
)

// Repo is the user repository.
type Repo struct {
	store *userstore.Store
	audit *auditlog.Logger
	log   *zap.Logger
}

// New wires a repository. audit may be nil.
func New(store *userstore.Store, audit *auditlog.Logger, logger *zap.Logger) *Repo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{store: store, audit: audit, log: logger}
}

// NewMember is the input for Invite.
type NewMember struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	DisplayName string `json:"display_name" validate:"required,max=120"`
	Role        string `json:"role" validate:"required,oneof=superadmin admin member"`
	Department  string `json:"department" validate:"max=120"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
}

// Get returns the user with uid.
func (r *Repo) Get(ctx context.Context, uid string) (models.User, error) {
	const op = "users.get"
	if uid == "" {
		return models.User{}, apperr.NotFound(op)
	}
	var u models.User
	err := apperr.RetryRead(ctx, func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, timeouts.Short())
		defer cancel()
		var err error
		u, err = r.store.GetByUID(rctx, uid)
		return err
	})
	if err != nil {
		return models.User{}, apperr.FromStore(op, err)
	}
	return u, nil
}

// GetByUID satisfies the lookups other repositories take.
func (r *Repo) GetByUID(ctx context.Context, uid string) (models.User, error) {
	return r.Get(ctx, uid)
}

// List returns every user ordered by display name.
func (r *Repo) List(ctx context.Context) ([]models.User, error) {
	const op = "users.list"
	var out []models.User
	err := apperr.RetryRead(ctx, func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, timeouts.Medium())
		defer cancel()
		var err error
		out, err = r.store.List(rctx)
		return err
	})
	if err != nil {
		return nil, apperr.FromStore(op, err)
	}
	return out, nil
}

// UIDs returns every user's uid, for fan-out.
func (r *Repo) UIDs(ctx context.Context) ([]string, error) {
	const op = "users.uids"
	var out []string
	err := apperr.RetryRead(ctx, func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, timeouts.Medium())
		defer cancel()
		var err error
		out, err = r.store.UIDs(rctx)
		return err
	})
	if err != nil {
		return nil, apperr.FromStore(op, err)
	}
	return out, nil
}

// Invite provisions a user with credentials and a profile. Managers may
// invite members and admins; only a superadmin may invite a superadmin.
func (r *Repo) Invite(ctx context.Context, p models.Principal, in NewMember) (models.User, error) {
	const op = "users.invite"
	in.Email = normalize.Email(in.Email)
	in.Role = normalize.Role(in.Role)
	in.DisplayName = normalize.Name(in.DisplayName)

	if d := authz.CanPerform(p, authz.ActionInviteMember, authz.Target{Role: in.Role}); !d.Allowed {
		return models.User{}, apperr.Unauthorized(op, d.Reason)
	}
	if err := inputval.Struct(op, in); err != nil {
		return models.User{}, err
	}
	hash, err := identity.HashPassword(in.Password)
	if err != nil {
		return models.User{}, apperr.Field(op, "password", "could not be stored")
	}

	wctx, cancel := timeouts.Detached(ctx, timeouts.Short())
	defer cancel()
	u, err := r.store.Create(wctx, models.User{
		Email:        in.Email,
		DisplayName:  in.DisplayName,
		Role:         in.Role,
		Department:   in.Department,
		PasswordHash: hash,
	})
	if errors.Is(err, userstore.ErrDuplicateEmail) {
		return models.User{}, apperr.Field(op, "email", "is already in use")
	}
	if err != nil {
		return models.User{}, apperr.FromStore(op, err)
	}

	r.log.Info("member invited",
		zap.String("by", p.UID), zap.String("uid", u.UID), zap.String("role", u.Role))
	r.audit.MemberInvited(wctx, p.UID, u.UID, u.Email, u.Role)
	return u, nil
}
