// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Shutdown stops live streams and workers, waits for in-flight side
// effects, then disconnects MongoDB.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	var err error
	if app != nil {
		err = multierr.Append(err, app.close(ctx))
	}
	if deps.MongoClient != nil {
		logger.Info("disconnecting TeamHub MongoDB client")
		if derr := deps.MongoClient.Disconnect(ctx); derr != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(derr))
			err = multierr.Append(err, derr)
		}
	}
	return err
}
