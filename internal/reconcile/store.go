package reconcile

import (
	"context"

	"github.com/aardg/massabalans/internal/orderline"
)

// StagedTable names a temporary table holding one run's proposed facts.
type StagedTable struct {
	Name string
	Rows int64
}

// Store persists the fact table.
type Store interface {
	// ReplaceAll swaps the whole table for facts.
	ReplaceAll(ctx context.Context, facts []orderline.OrderLine) error
	// Stage writes facts to a fresh temporary table. When the table was
	// created before a failure the returned StagedTable still names it.
	Stage(ctx context.Context, facts []orderline.OrderLine) (StagedTable, error)
	// Merge applies the staged facts in one atomic statement: matching rows
	// are updated, unmatched rows inserted, nothing is deleted.
	Merge(ctx context.Context, staged StagedTable) (int64, error)
	// DropStaged deletes the temporary table.
	DropStaged(ctx context.Context, staged StagedTable) error
}
