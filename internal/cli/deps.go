package cli

import (
	"context"
	"time"

	"github.com/aardg/massabalans/internal/factstore"
	"github.com/aardg/massabalans/internal/pipeline"
	"github.com/aardg/massabalans/internal/reconcile"
	"github.com/aardg/massabalans/internal/runlock"
	"github.com/aardg/massabalans/internal/source"
	pkgbigquery "github.com/aardg/massabalans/pkg/bigquery"
	"github.com/aardg/massabalans/pkg/db"
	"github.com/aardg/massabalans/pkg/enums"
	pkgerrors "github.com/aardg/massabalans/pkg/errors"
	"github.com/aardg/massabalans/pkg/migrate"
	"github.com/aardg/massabalans/pkg/monta"
	"github.com/aardg/massabalans/pkg/pubsub"
	"github.com/aardg/massabalans/pkg/redis"
	"github.com/aardg/massabalans/pkg/sheets"
)

const dayLayout = "2006-01-02"

func noop() {}

func openBigQuery(ctx context.Context, opts *RootOptions) (*pkgbigquery.Client, error) {
	cfg := opts.Config
	if err := cfg.RequireBigQuery(); err != nil {
		return nil, err
	}
	client, err := pkgbigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, opts.Logger)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "connect bigquery")
	}
	return client, nil
}

// openFactStore builds the store selected by the store driver.
func openFactStore(ctx context.Context, opts *RootOptions) (reconcile.Store, func(), error) {
	cfg := opts.Config
	driver, err := enums.ParseStoreDriver(cfg.Store.Driver)
	if err != nil {
		return nil, noop, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "store driver")
	}

	if !driver.IsSQL() {
		client, err := openBigQuery(ctx, opts)
		if err != nil {
			return nil, noop, err
		}
		store, err := factstore.NewBigQueryStore(client, cfg.BigQuery.FactTable, cfg.BigQuery.StagingTTL, opts.Logger)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return store, func() { _ = client.Close() }, nil
	}

	dbCfg := cfg.DB
	dbCfg.Driver = string(driver)
	if err := cfg.RequireDB(); err != nil {
		return nil, noop, err
	}
	client, err := db.New(ctx, dbCfg, opts.Logger)
	if err != nil {
		return nil, noop, err
	}
	closeDB := func() { _ = client.Close() }
	if err := migrate.MaybeRunLocal(ctx, cfg, opts.Logger, client); err != nil {
		closeDB()
		return nil, noop, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "migrate database")
	}
	store, err := factstore.NewSQLStore(client, cfg.Store.Table, opts.Logger)
	if err != nil {
		closeDB()
		return nil, noop, err
	}
	return store, closeDB, nil
}

// openRunLock returns a redis lock when redis is configured.
func openRunLock(ctx context.Context, opts *RootOptions, name string) (runlock.Lock, func(), error) {
	cfg := opts.Config.Redis
	if !cfg.Enabled() {
		return runlock.Noop{}, noop, nil
	}
	client, err := redis.New(ctx, cfg, opts.Logger)
	if err != nil {
		return nil, noop, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "connect redis")
	}
	lock, err := runlock.NewRedisLock(client, client.LockKey(name), cfg.LockTTL)
	if err != nil {
		_ = client.Close()
		return nil, noop, err
	}
	return lock, func() { _ = client.Close() }, nil
}

// openRunEvents returns a publisher when a run events topic is configured.
func openRunEvents(ctx context.Context, opts *RootOptions) (pipeline.EventPublisher, func(), error) {
	cfg := opts.Config
	if cfg.PubSub.RunEventsTopic == "" {
		return nil, noop, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.GCP, opts.Logger)
	if err != nil {
		return nil, noop, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "connect pubsub")
	}
	pub, err := pubsub.NewJSONPublisher(client, cfg.PubSub.RunEventsTopic)
	if err != nil {
		_ = client.Close()
		return nil, noop, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "run events publisher")
	}
	return pub, func() {
		pub.Stop()
		_ = client.Close()
	}, nil
}

func newMontaAPI(opts *RootOptions) (*source.API, *monta.Client, error) {
	cfg := opts.Config
	if err := cfg.RequireMonta(); err != nil {
		return nil, nil, err
	}
	client, err := monta.NewClient(cfg.Monta, monta.WithRetries(2, time.Second))
	if err != nil {
		return nil, nil, err
	}
	return source.NewAPI(client, opts.Logger), client, nil
}

func openSheets(ctx context.Context, opts *RootOptions) (*sheets.Client, error) {
	cfg := opts.Config
	if err := cfg.RequireSheets(); err != nil {
		return nil, err
	}
	return sheets.NewClient(ctx, cfg.GCP, cfg.Sheets.SpreadsheetID, opts.Logger)
}

// dayWindow parses --since/--until. A blank until means now.
func dayWindow(since, until string, now time.Time) (time.Time, time.Time, error) {
	if since == "" {
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "--since is required")
	}
	start, err := time.ParseInLocation(dayLayout, since, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse --since")
	}
	end := now.UTC()
	if until != "" {
		day, err := time.ParseInLocation(dayLayout, until, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse --until")
		}
		end = day.Add(24*time.Hour - time.Nanosecond)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "--until is before --since")
	}
	return start, end, nil
}
