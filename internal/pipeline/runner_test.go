package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aardg/massabalans/internal/factstore"
	"github.com/aardg/massabalans/internal/orderline"
	"github.com/aardg/massabalans/internal/reconcile"
	"github.com/aardg/massabalans/pkg/config"
	"github.com/aardg/massabalans/pkg/db"
	"github.com/aardg/massabalans/pkg/enums"
	pkgerrors "github.com/aardg/massabalans/pkg/errors"
	"github.com/aardg/massabalans/pkg/logger"
	"github.com/aardg/massabalans/pkg/metrics"
	"github.com/aardg/massabalans/pkg/migrate"
)

const reportCSV = `OrderNummer,BestelDatum,Verzenddatum,Sku,Omschrijving,Aantal,Batch,ThtDatum,OrderStatus
1001,45000,45001,KOM-01,Kombucha Original,2,B1,45300,shipped
1001,45000,45001,KOM-01,Kombucha Original,3,B1,45300,shipped
1002,45000,,HON-01,Honing,1,B7,,queued
1003,not-a-date,45001,HON-01,Honing,1,B7,,shipped
`

type recordingEvents struct {
	events []RunEvent
	attrs  []map[string]string
}

func (r *recordingEvents) Publish(_ context.Context, payload any, attrs map[string]string) (string, error) {
	r.events = append(r.events, payload.(RunEvent))
	r.attrs = append(r.attrs, attrs)
	return fmt.Sprintf("msg-%d", len(r.events)), nil
}

type heldLock struct{ released bool }

func (l *heldLock) Acquire(context.Context) error {
	return pkgerrors.New(pkgerrors.CodeLocked, "run lock is held")
}

func (l *heldLock) Release(context.Context) error {
	l.released = true
	return nil
}

type countingLock struct{ acquired, released int }

func (l *countingLock) Acquire(context.Context) error { l.acquired++; return nil }
func (l *countingLock) Release(context.Context) error { l.released++; return nil }

func newStore(t *testing.T) *factstore.SQLStore {
	t.Helper()
	ctx := context.Background()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	client, err := db.New(ctx, config.DBConfig{
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		Driver:       config.DriverSQLite,
		MaxOpenConns: 1,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{App: config.AppConfig{Env: config.AppEnvLocal}}
	require.NoError(t, migrate.MaybeRunLocal(ctx, cfg, logger.Nop(), client))

	store, err := factstore.NewSQLStore(client, "monta_orders", nil)
	require.NoError(t, err)
	return store
}

func writeReport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, os.WriteFile(path, []byte(reportCSV), 0o600))
	return path
}

func newRunner(t *testing.T, store reconcile.Store, deps Deps) *Runner {
	t.Helper()
	rec, err := reconcile.New(store, nil)
	require.NoError(t, err)
	deps.Reconciler = rec
	runner, err := New(deps)
	require.NoError(t, err)
	return runner
}

func TestRunReconcilesFileIdempotently(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	events := &recordingEvents{}
	lock := &countingLock{}
	runner := newRunner(t, store, Deps{Lock: lock, Events: events, Metrics: metrics.NewRunMetrics()})
	path := writeReport(t)

	report, err := runner.Run(ctx, FileLoader(path), enums.MergeIncremental)
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 4, report.Summary.RowsRead)
	assert.Equal(t, 1, report.Summary.RowsSkipped)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, 5, report.Skipped[0].Line)
	assert.Equal(t, 2, report.Summary.FactsProposed)

	first, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)

	_, err = runner.Run(ctx, FileLoader(path), enums.MergeIncremental)
	require.NoError(t, err)
	second, err := store.All(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, first, second)

	var total int64
	for _, line := range second {
		if line.OrderNumber == "1001" {
			total = line.Quantity
			assert.Equal(t, "2023-03-15", line.OrderDate)
			assert.Equal(t, "2024-01-09", line.BestBeforeDate)
		}
	}
	assert.Equal(t, int64(5), total)

	assert.Equal(t, 2, lock.acquired)
	assert.Equal(t, 2, lock.released)
	require.Len(t, events.events, 2)
	assert.Equal(t, "succeeded", events.events[0].Status)
	assert.Equal(t, "incremental", events.events[0].Mode)
	assert.Equal(t, "succeeded", events.attrs[1]["status"])
}

func TestRunStopsWhenLockHeld(t *testing.T) {
	store := newStore(t)
	events := &recordingEvents{}
	lock := &heldLock{}
	runner := newRunner(t, store, Deps{Lock: lock, Events: events})

	loaded := false
	load := func(context.Context) (Input, error) {
		loaded = true
		return Input{}, nil
	}

	_, err := runner.Run(context.Background(), load, enums.MergeIncremental)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLocked))
	assert.False(t, loaded)
	assert.False(t, lock.released)
	require.Len(t, events.events, 1)
	assert.Equal(t, "failed", events.events[0].Status)
	assert.Equal(t, string(pkgerrors.CodeLocked), events.events[0].ErrorCode)
}

type unreachableStore struct {
	reconcile.Store
}

func (unreachableStore) Stage(context.Context, []orderline.OrderLine) (reconcile.StagedTable, error) {
	return reconcile.StagedTable{}, errors.New("connection refused")
}

func TestRunFailureCarriesRowCounts(t *testing.T) {
	events := &recordingEvents{}
	runner := newRunner(t, unreachableStore{}, Deps{Events: events})

	report, err := runner.Run(context.Background(), FileLoader(writeReport(t)), enums.MergeIncremental)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMergeApply))
	assert.Equal(t, pkgerrors.CodeMergeApply, pkgerrors.CodeOf(err))

	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, report.RunID, details["run_id"])
	assert.Equal(t, 4, details["rows_read"])
	assert.Equal(t, 1, details["rows_skipped"])
	assert.EqualValues(t, 0, details["rows_committed"])

	require.Len(t, events.events, 1)
	assert.Equal(t, "failed", events.events[0].Status)
	assert.Equal(t, 1, events.events[0].RowsSkipped)
}

func TestRunSourceFailureLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	runner := newRunner(t, store, Deps{})

	_, err := runner.Run(ctx, FileLoader(writeReport(t)), enums.MergeIncremental)
	require.NoError(t, err)
	before, err := store.All(ctx)
	require.NoError(t, err)

	_, err = runner.Run(ctx, FileLoader(filepath.Join(t.TempDir(), "missing.csv")), enums.MergeFullReplace)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSourceUnavailable))

	after, err := store.All(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, before, after)
}

func TestRunRejectsIncompleteHeader(t *testing.T) {
	store := newStore(t)
	runner := newRunner(t, store, Deps{})
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("OrderNummer,Sku\n1,KOM-01\n"), 0o600))

	_, err := runner.Run(context.Background(), FileLoader(path), enums.MergeIncremental)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRunLoaderErrorIsReturned(t *testing.T) {
	runner := newRunner(t, newStore(t), Deps{})
	boom := errors.New("boom")
	_, err := runner.Run(context.Background(), func(context.Context) (Input, error) {
		return Input{}, boom
	}, enums.MergeIncremental)
	assert.ErrorIs(t, err, boom)
}

func TestNewRequiresReconciler(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConfiguration))
}
