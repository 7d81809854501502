// Package pipeline runs one reconciliation end to end: lock, load, normalize,
// reconcile and report.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aardg/massabalans/internal/normalize"
	"github.com/aardg/massabalans/internal/reconcile"
	"github.com/aardg/massabalans/internal/runlock"
	"github.com/aardg/massabalans/pkg/enums"
	pkgerrors "github.com/aardg/massabalans/pkg/errors"
	"github.com/aardg/massabalans/pkg/logger"
	"github.com/aardg/massabalans/pkg/metrics"
)

const (
	commandReconcile   = "reconcile"
	maxLoggedRowErrors = 50
	releaseTimeout     = 10 * time.Second
)

// EventPublisher announces finished runs.
type EventPublisher interface {
	Publish(ctx context.Context, payload any, attrs map[string]string) (string, error)
}

// RunEvent is published after every run, failed or not.
type RunEvent struct {
	RunID         string    `json:"run_id"`
	Command       string    `json:"command"`
	Status        string    `json:"status"`
	Mode          string    `json:"mode"`
	Origin        string    `json:"origin,omitempty"`
	ErrorCode     string    `json:"error_code,omitempty"`
	RowsRead      int       `json:"rows_read"`
	RowsSkipped   int       `json:"rows_skipped"`
	FactsProposed int       `json:"facts_proposed"`
	RowsCommitted int64     `json:"rows_committed"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Report is what a run hands back to the operator.
type Report struct {
	RunID    string
	Origin   string
	Summary  reconcile.Summary
	Skipped  []*normalize.RowError
	Input    Input
	Duration time.Duration
}

// Deps wires a Runner. Lock, Metrics and Events are optional.
type Deps struct {
	Reconciler     *reconcile.Reconciler
	Lock           runlock.Lock
	Metrics        *metrics.RunMetrics
	PushgatewayURL string
	MetricsJob     string
	Events         EventPublisher
	Logger         *logger.Logger
}

type Runner struct {
	reconciler *reconcile.Reconciler
	lock       runlock.Lock
	metrics    *metrics.RunMetrics
	pushURL    string
	job        string
	events     EventPublisher
	log        *logger.Logger
	now        func() time.Time
}

func New(deps Deps) (*Runner, error) {
	if deps.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "reconciler is required")
	}
	r := &Runner{
		reconciler: deps.Reconciler,
		lock:       deps.Lock,
		metrics:    deps.Metrics,
		pushURL:    deps.PushgatewayURL,
		job:        deps.MetricsJob,
		events:     deps.Events,
		log:        deps.Logger,
		now:        time.Now,
	}
	if r.lock == nil {
		r.lock = runlock.Noop{}
	}
	if r.log == nil {
		r.log = logger.Nop()
	}
	return r, nil
}

// Run executes one reconciliation. Source and header failures abort before
// any write; row conversion failures are skipped and reported.
func (r *Runner) Run(ctx context.Context, load Loader, mode enums.MergeMode) (report Report, err error) {
	report.RunID = uuid.NewString()
	started := r.now()
	ctx = r.log.WithRunID(ctx, report.RunID)
	ctx = r.log.WithCommand(ctx, commandReconcile)

	defer func() {
		report.Duration = r.now().Sub(started)
		if err != nil {
			err = withRunCounts(err, report)
		}
		r.finish(ctx, report, mode, started, err)
	}()

	if err = r.lock.Acquire(ctx); err != nil {
		return report, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if relErr := r.lock.Release(releaseCtx); relErr != nil {
			r.log.Warn(ctx, "pipeline.lock_release_failed: "+relErr.Error())
		}
	}()

	input, err := load(ctx)
	if err != nil {
		return report, err
	}
	report.Input = input
	report.Origin = input.Origin

	result, err := normalize.New(input.Options).Normalize(input.Table)
	if err != nil {
		return report, err
	}
	report.Skipped = result.Skipped
	r.logSkipped(ctx, result.Skipped)

	summary, err := r.reconciler.Run(ctx, result.Lines, mode)
	summary.RowsRead = result.Read
	summary.RowsSkipped = len(result.Skipped)
	report.Summary = summary
	if err != nil {
		return report, err
	}

	r.log.Info(r.log.WithFields(ctx, summary.Fields()), "pipeline.completed")
	return report, nil
}

func (r *Runner) logSkipped(ctx context.Context, skipped []*normalize.RowError) {
	for i, rowErr := range skipped {
		if i == maxLoggedRowErrors {
			r.log.Warn(r.log.WithField(ctx, "not_logged", len(skipped)-i), "pipeline.row_skipped_truncated")
			return
		}
		r.log.Warn(r.log.WithFields(ctx, map[string]any{
			"line":   rowErr.Line,
			"column": rowErr.Column,
			"value":  rowErr.Value,
		}), "pipeline.row_skipped: "+rowErr.Error())
	}
}

func (r *Runner) finish(ctx context.Context, report Report, mode enums.MergeMode, started time.Time, runErr error) {
	finished := r.now()
	s := report.Summary
	event := RunEvent{
		RunID:         report.RunID,
		Command:       commandReconcile,
		Status:        "succeeded",
		Mode:          string(mode),
		Origin:        report.Origin,
		RowsRead:      s.RowsRead,
		RowsSkipped:   s.RowsSkipped,
		FactsProposed: s.FactsProposed,
		RowsCommitted: s.RowsCommitted,
		StartedAt:     started.UTC(),
		FinishedAt:    finished.UTC(),
	}

	r.metrics.ObserveDuration(commandReconcile, finished.Sub(started))
	if runErr != nil {
		event.Status = "failed"
		event.ErrorCode = string(pkgerrors.CodeOf(runErr))
		r.metrics.RecordFailure(commandReconcile, event.ErrorCode)
		r.log.Error(r.log.WithFields(ctx, s.Fields()), "pipeline.failed", runErr)
	} else {
		r.metrics.RecordSuccess(commandReconcile, metrics.RunCounts{
			RowsRead:      int64(s.RowsRead),
			RowsSkipped:   int64(s.RowsSkipped),
			FactsProposed: int64(s.FactsProposed),
			RowsCommitted: s.RowsCommitted,
		}, finished)
	}

	notifyCtx := context.WithoutCancel(ctx)
	if err := r.metrics.Push(notifyCtx, r.pushURL, r.job); err != nil {
		r.log.Warn(ctx, "pipeline.metrics_push_failed: "+err.Error())
	}
	if r.events != nil {
		attrs := map[string]string{"command": commandReconcile, "status": event.Status}
		if _, err := r.events.Publish(notifyCtx, event, attrs); err != nil {
			r.log.Warn(ctx, "pipeline.event_publish_failed: "+err.Error())
		}
	}
}

// withRunCounts keeps the code of a failed run and records how far it got, so
// the operator sees rows skipped against rows committed.
func withRunCounts(err error, report Report) error {
	s := report.Summary
	return pkgerrors.Wrap(pkgerrors.CodeOf(err), err, "reconcile run").
		WithDetails(map[string]any{
			"run_id":         report.RunID,
			"rows_read":      s.RowsRead,
			"rows_skipped":   s.RowsSkipped,
			"facts_proposed": s.FactsProposed,
			"rows_committed": s.RowsCommitted,
		})
}
