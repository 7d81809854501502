package reconcile

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"github.com/aardg/massabalans/internal/orderline"
	"github.com/aardg/massabalans/pkg/enums"
	pkgerrors "github.com/aardg/massabalans/pkg/errors"
	"github.com/aardg/massabalans/pkg/logger"
)

const (
	maxMergeAttempts      = 2
	defaultCleanupTimeout = 2 * time.Minute
)

// Summary reports what one reconciliation run did.
type Summary struct {
	Mode            enums.MergeMode
	RowsRead        int
	RowsSkipped     int
	LinesIn         int
	FactsProposed   int
	DuplicateGroups int
	Superseded      int
	RowsCommitted   int64
	StagingTable    string
	StagingLeft     bool
	Attempts        int
}

// Fields renders the summary for structured logs.
func (s Summary) Fields() map[string]any {
	return map[string]any{
		"mode":             string(s.Mode),
		"rows_read":        s.RowsRead,
		"rows_skipped":     s.RowsSkipped,
		"lines_in":         s.LinesIn,
		"facts_proposed":   s.FactsProposed,
		"duplicate_groups": s.DuplicateGroups,
		"superseded":       s.Superseded,
		"rows_committed":   s.RowsCommitted,
		"staging_table":    s.StagingTable,
		"attempts":         s.Attempts,
	}
}

// Reconciler turns normalized lines into facts and writes them to a Store.
type Reconciler struct {
	store          Store
	logger         *logger.Logger
	cleanupTimeout time.Duration
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithCleanupTimeout bounds how long dropping the staging table may take
// after the run context is done.
func WithCleanupTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.cleanupTimeout = d
		}
	}
}

// New builds a Reconciler over store.
func New(store Store, log *logger.Logger, opts ...Option) (*Reconciler, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "fact store is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	r := &Reconciler{store: store, logger: log, cleanupTimeout: defaultCleanupTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run aggregates lines and commits them using mode.
func (r *Reconciler) Run(ctx context.Context, lines []orderline.OrderLine, mode enums.MergeMode) (Summary, error) {
	if !mode.IsValid() {
		return Summary{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown merge mode").
			WithDetails(map[string]any{"mode": string(mode)})
	}

	facts, duplicateGroups := aggregate(lines)
	summary := Summary{
		Mode:            mode,
		LinesIn:         len(lines),
		FactsProposed:   len(facts),
		DuplicateGroups: duplicateGroups,
	}

	ctx = r.logger.WithField(ctx, "mode", string(mode))
	r.logger.Info(r.logger.WithFields(ctx, map[string]any{
		"facts_proposed":   summary.FactsProposed,
		"duplicate_groups": summary.DuplicateGroups,
	}), "reconcile.aggregated")

	switch mode {
	case enums.MergeFullReplace:
		return r.replace(ctx, facts, summary)
	default:
		return r.merge(ctx, facts, summary)
	}
}

func (r *Reconciler) replace(ctx context.Context, facts []orderline.OrderLine, summary Summary) (Summary, error) {
	if len(facts) == 0 {
		return summary, pkgerrors.New(pkgerrors.CodeValidation, "refusing to replace fact table with an empty set")
	}
	summary.Attempts = 1
	if err := r.store.ReplaceAll(ctx, facts); err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeMergeApply, err, "replace fact table")
	}
	summary.RowsCommitted = int64(len(facts))
	r.logger.Info(r.logger.WithFields(ctx, summary.Fields()), "reconcile.replaced")
	return summary, nil
}

func (r *Reconciler) merge(ctx context.Context, facts []orderline.OrderLine, summary Summary) (result Summary, err error) {
	facts, summary.Superseded = collapse(facts)
	if summary.Superseded > 0 {
		r.logger.Warn(r.logger.WithField(ctx, "superseded", summary.Superseded), "reconcile.superseded_facts")
	}
	if len(facts) == 0 {
		r.logger.Info(ctx, "reconcile.nothing_to_merge")
		return summary, nil
	}

	staged, stageErr := r.store.Stage(ctx, facts)
	summary.StagingTable = staged.Name
	defer func() {
		if staged.Name == "" {
			return
		}
		dropErr := r.drop(ctx, staged)
		if dropErr == nil {
			return
		}
		result.StagingLeft = true
		if err != nil {
			err = multierr.Append(err, dropErr)
			return
		}
		r.logger.Warn(r.logger.WithTable(ctx, staged.Name), "reconcile.staging_drop_failed: "+dropErr.Error())
	}()
	if stageErr != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeMergeApply, stageErr, "stage facts")
	}

	stagedCtx := r.logger.WithTable(ctx, staged.Name)
	var lastErr error
	for attempt := 1; attempt <= maxMergeAttempts; attempt++ {
		summary.Attempts = attempt
		affected, mergeErr := r.store.Merge(stagedCtx, staged)
		if mergeErr == nil {
			summary.RowsCommitted = affected
			r.logger.Info(r.logger.WithFields(stagedCtx, summary.Fields()), "reconcile.merged")
			return summary, nil
		}
		lastErr = mergeErr
		if ctx.Err() != nil {
			break
		}
		if attempt < maxMergeAttempts {
			r.logger.Warn(r.logger.WithField(stagedCtx, "attempt", attempt), "reconcile.merge_retry: "+mergeErr.Error())
		}
	}

	return summary, pkgerrors.Wrap(pkgerrors.CodeMergeApply, lastErr, "merge staged facts").
		WithDetails(map[string]any{"staging_table": staged.Name, "attempts": summary.Attempts})
}

func (r *Reconciler) drop(ctx context.Context, staged StagedTable) error {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cleanupTimeout)
	defer cancel()
	if err := r.store.DropStaged(cleanupCtx, staged); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "drop staging table").
			WithDetails(map[string]any{"staging_table": staged.Name})
	}
	r.logger.Debug(r.logger.WithTable(ctx, staged.Name), "reconcile.staging_dropped")
	return nil
}
