package factstore

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/aardg/massabalans/internal/orderline"
	"github.com/aardg/massabalans/internal/reconcile"
	"github.com/aardg/massabalans/pkg/db"
	"github.com/aardg/massabalans/pkg/logger"
)

const insertBatchSize = 500

// factRow is the relational layout of a fact; see pkg/migrate/migrations.
type factRow struct {
	OrderNumber    string `gorm:"column:ordernummer"`
	OrderDate      string `gorm:"column:besteldatum"`
	ShipDate       string `gorm:"column:verzenddatum"`
	SKU            string `gorm:"column:sku"`
	Description    string `gorm:"column:omschrijving"`
	Quantity       int64  `gorm:"column:aantal"`
	Batch          string `gorm:"column:batch"`
	BestBeforeDate string `gorm:"column:tht_datum"`
	OrderStatus    string `gorm:"column:orderstatus"`
}

var sqlColumns = []string{"ordernummer", "besteldatum", "verzenddatum", "sku", "omschrijving", "aantal", "batch", "tht_datum", "orderstatus"}

var sqlMatchColumns = []string{"ordernummer", "besteldatum", "sku", "omschrijving", "batch", "tht_datum"}

func toFactRows(facts []orderline.OrderLine) []factRow {
	rows := make([]factRow, len(facts))
	for i, f := range facts {
		rows[i] = factRow{
			OrderNumber:    f.OrderNumber,
			OrderDate:      f.OrderDate,
			ShipDate:       f.ShipDate,
			SKU:            f.SKU,
			Description:    f.Description,
			Quantity:       f.Quantity,
			Batch:          f.Batch,
			BestBeforeDate: f.BestBeforeDate,
			OrderStatus:    f.OrderStatus,
		}
	}
	return rows
}

func (r factRow) line() orderline.OrderLine {
	return orderline.OrderLine{
		OrderNumber:    r.OrderNumber,
		OrderDate:      r.OrderDate,
		ShipDate:       r.ShipDate,
		SKU:            r.SKU,
		Description:    r.Description,
		Quantity:       r.Quantity,
		Batch:          r.Batch,
		BestBeforeDate: r.BestBeforeDate,
		OrderStatus:    r.OrderStatus,
	}
}

// SQLStore keeps the fact table in postgres or sqlite.
type SQLStore struct {
	client *db.Client
	table  string
	logg   *logger.Logger
}

var _ reconcile.Store = (*SQLStore)(nil)

// NewSQLStore builds a store over an existing, migrated table.
func NewSQLStore(client *db.Client, table string, logg *logger.Logger) (*SQLStore, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	table = strings.TrimSpace(table)
	if err := validateIdentifier(table); err != nil {
		return nil, err
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &SQLStore{client: client, table: table, logg: logg}, nil
}

// ReplaceAll deletes every row and inserts facts in one transaction.
func (s *SQLStore) ReplaceAll(ctx context.Context, facts []orderline.OrderLine) error {
	rows := toFactRows(facts)
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec(fmt.Sprintf("DELETE FROM %s", s.table)).Error; err != nil {
			return fmt.Errorf("clear %s: %w", s.table, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Table(s.table).CreateInBatches(&rows, insertBatchSize).Error; err != nil {
			return fmt.Errorf("insert into %s: %w", s.table, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"table": s.table, "rows": len(rows)}), "sql fact table replaced")
	return nil
}

// Stage copies the fact table layout into a new table and inserts facts.
func (s *SQLStore) Stage(ctx context.Context, facts []orderline.OrderLine) (reconcile.StagedTable, error) {
	name := stagingName(s.table)
	create := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s WHERE 1 = 0", name, s.table)
	if err := s.client.Exec(ctx, create).Error; err != nil {
		return reconcile.StagedTable{}, fmt.Errorf("create %s: %w", name, err)
	}
	staged := reconcile.StagedTable{Name: name}

	rows := toFactRows(facts)
	if len(rows) > 0 {
		if err := s.client.DB().WithContext(ctx).Table(name).CreateInBatches(&rows, insertBatchSize).Error; err != nil {
			return staged, fmt.Errorf("insert into %s: %w", name, err)
		}
	}
	staged.Rows = int64(len(rows))
	return staged, nil
}

// Merge updates matching rows and inserts the rest inside one transaction.
func (s *SQLStore) Merge(ctx context.Context, staged reconcile.StagedTable) (int64, error) {
	if err := validateIdentifier(staged.Name); err != nil {
		return 0, err
	}

	var affected int64
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		updated := tx.Exec(sqlUpdateFromStaging(s.table, staged.Name))
		if updated.Error != nil {
			return fmt.Errorf("update %s from %s: %w", s.table, staged.Name, updated.Error)
		}
		inserted := tx.Exec(sqlInsertMissing(s.table, staged.Name))
		if inserted.Error != nil {
			return fmt.Errorf("insert into %s from %s: %w", s.table, staged.Name, inserted.Error)
		}
		affected = updated.RowsAffected + inserted.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// DropStaged removes the staging table.
func (s *SQLStore) DropStaged(ctx context.Context, staged reconcile.StagedTable) error {
	if err := validateIdentifier(staged.Name); err != nil {
		return err
	}
	return s.client.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", staged.Name)).Error
}

// All returns every fact in the table ordered by key columns.
func (s *SQLStore) All(ctx context.Context) ([]orderline.OrderLine, error) {
	var rows []factRow
	err := s.client.DB().WithContext(ctx).Table(s.table).
		Order("ordernummer, besteldatum, sku, batch, tht_datum").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]orderline.OrderLine, len(rows))
	for i, r := range rows {
		out[i] = r.line()
	}
	return out, nil
}

func matchPredicate(target, source string) string {
	parts := make([]string, len(sqlMatchColumns))
	for i, col := range sqlMatchColumns {
		parts[i] = fmt.Sprintf("%s.%s = %s.%s", target, col, source, col)
	}
	return strings.Join(parts, " AND ")
}

func sqlUpdateFromStaging(table, staging string) string {
	return fmt.Sprintf(
		"UPDATE %s SET verzenddatum = s.verzenddatum, orderstatus = s.orderstatus, aantal = s.aantal FROM %s AS s WHERE %s",
		table, staging, matchPredicate(table, "s"),
	)
}

func sqlInsertMissing(table, staging string) string {
	cols := strings.Join(sqlColumns, ", ")
	sourceCols := make([]string, len(sqlColumns))
	for i, c := range sqlColumns {
		sourceCols[i] = "s." + c
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s AS s WHERE NOT EXISTS (SELECT 1 FROM %s AS t WHERE %s)",
		table, cols, strings.Join(sourceCols, ", "), staging, table, matchPredicate("t", "s"),
	)
}
