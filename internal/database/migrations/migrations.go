package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-verify/internal/models"
)

// Run creates the tickets and scan_history tables if they are missing. The
// store is a single SQLite-class database, so schema setup happens in
// process at startup.
func Run(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().
		Model((*models.Ticket)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create tickets table: %w", err)
	}

	if _, err := db.NewCreateTable().
		Model((*models.ScanEvent)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create scan_history table: %w", err)
	}

	if _, err := db.NewCreateIndex().
		Model((*models.ScanEvent)(nil)).
		Index("idx_scan_history_order_id").
		IfNotExists().
		Column("order_id").
		Exec(ctx); err != nil {
		return fmt.Errorf("create scan_history index: %w", err)
	}

	return nil
}
