package migrate

import (
	"context"
	"fmt"

	"github.com/aardg/massabalans/pkg/config"
	"github.com/aardg/massabalans/pkg/db"
	"github.com/aardg/massabalans/pkg/logger"
)

// MaybeRunLocal applies the embedded migrations when the fact store is a local
// sqlite file or the app runs in dev mode. Production postgres is migrated
// with cmd/migrate.
func MaybeRunLocal(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if client == nil {
		return nil
	}
	if client.Driver() != config.DriverSQLite && !cfg.App.IsDev() {
		return nil
	}

	sqlDB, err := client.SQLDB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": client.Driver()})
	logg.Info(ctx, "running goose migrations (local auto-run)")

	if err := Run(ctx, sqlDB, client.Driver(), "", "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "goose migrations completed")
	return nil
}
