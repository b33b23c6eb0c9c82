package db

import (
	"context"

	"github.com/uptrace/bun"

	"ms-verify/internal/models"
)

// CountScansToday counts today's audit rows with one of the given results,
// optionally narrowed to a club.
func (d *DB) CountScansToday(ctx context.Context, results []string, clubID int64) (int, error) {
	q := d.Bun.NewSelect().
		Model((*models.ScanEvent)(nil)).
		Where("date(scan_time) = date('now')").
		Where("scan_result IN (?)", bun.In(results))
	if clubID != 0 {
		q = q.Where("club_id = ?", clubID)
	}
	return q.Count(ctx)
}

// ListHistoryTickets returns tickets for the scan-history view: scanned ones
// first, newest scans on top, unscanned ones by creation time.
func (d *DB) ListHistoryTickets(ctx context.Context, eventDate string, limit int) ([]models.Ticket, error) {
	var tickets []models.Ticket
	q := d.Bun.NewSelect().Model(&tickets)
	if eventDate != "" {
		q = q.Where("event_date LIKE ?", "%"+eventDate+"%")
	}
	q = q.OrderExpr("(first_scan_at IS NOT NULL) DESC").
		OrderExpr("first_scan_at DESC").
		OrderExpr("created_at DESC").
		Limit(limit)
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return tickets, nil
}
