// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	userstore "github.com/dalemusser/teamhub/internal/app/store/users"
	"github.com/dalemusser/teamhub/internal/app/system/identity"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It makes
// sure the configured superadmin exists, builds the shared services, and
// starts background workers.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if err := ensureSuperAdmin(ctx, userstore.New(deps.MongoDatabase), appCfg.SuperAdminEmail, appCfg.SuperAdminPassword, logger); err != nil {
		return err
	}

	s, err := newServices(coreCfg.Env == "prod", appCfg, deps.MongoDatabase, logger)
	if err != nil {
		logger.Error("service init failed", zap.Error(err))
		return err
	}
	s.start()
	app = s
	return nil
}

// ensureSuperAdmin promotes the configured account to superadmin, creating
// it when absent. A blank email skips the step.
func ensureSuperAdmin(ctx context.Context, users *userstore.Store, email, password string, logger *zap.Logger) error {
	if email == "" {
		logger.Info("no superadmin_email configured; skipping superadmin bootstrap")
		return nil
	}

	u, err := users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if u.Role == models.RoleSuperAdmin {
			return nil
		}
		if err := users.SetRole(ctx, u.UID, models.RoleSuperAdmin); err != nil {
			return fmt.Errorf("promote superadmin: %w", err)
		}
		logger.Info("promoted user to superadmin", zap.String("email", email), zap.String("from", u.Role))
		return nil

	case errors.Is(err, mongo.ErrNoDocuments):
		if password == "" {
			return errors.New("superadmin_email has no account; set superadmin_password to create it")
		}
		hash, err := identity.HashPassword(password)
		if err != nil {
			return fmt.Errorf("hash superadmin password: %w", err)
		}
		created, err := users.Create(ctx, models.User{
			Email:        email,
			DisplayName:  "Superadmin",
			Role:         models.RoleSuperAdmin,
			PasswordHash: hash,
		})
		if err != nil {
			return fmt.Errorf("create superadmin: %w", err)
		}
		logger.Info("created superadmin", zap.String("email", email), zap.String("uid", created.UID))
		return nil

	default:
		return fmt.Errorf("look up superadmin: %w", err)
	}
}
