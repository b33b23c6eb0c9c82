package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-verify/internal/models"
)

// ErrTicketNotFound distinguishes an empty lookup from a storage failure.
var ErrTicketNotFound = errors.New("ticket not found")

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetTicketByToken(ctx context.Context, token string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("qr_token = ?", token).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetTicketByOrderID(ctx context.Context, orderID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("order_id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetTicketByID(ctx context.Context, id int64) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// ScanMutation is the row change produced by one admission decision. The
// update is conditional on ExpectedScanCount so that two concurrent scans of
// the same ticket can never both apply; the loser sees no rows affected and
// must re-read and re-decide.
type ScanMutation struct {
	TicketID          int64
	ExpectedScanCount int
	ScanCount         int
	Status            string     // empty means unchanged
	FirstScanAt       *time.Time // nil means unchanged
	LastScanAt        time.Time
	ScannedBy         string // empty means unchanged
}

// ApplyScan executes the conditional update and reports whether it won.
func (d *DB) ApplyScan(ctx context.Context, m ScanMutation) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("scan_count = ?", m.ScanCount).
		Set("last_scan_at = ?", m.LastScanAt).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", m.TicketID).
		Where("scan_count = ?", m.ExpectedScanCount)

	if m.Status != "" {
		q = q.Set("status = ?", m.Status)
	}
	if m.FirstScanAt != nil {
		q = q.Set("first_scan_at = ?", *m.FirstScanAt)
	}
	if m.ScannedBy != "" {
		q = q.Set("scanned_by = ?", m.ScannedBy)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (d *DB) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(ticket).Exec(ctx)
	return err
}

// CancelTicket is the administrative status override; it does not touch the
// scan counters.
func (d *DB) CancelTicket(ctx context.Context, orderID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.StatusCancelled).
		Set("updated_at = ?", time.Now()).
		Where("order_id = ?", orderID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTicketNotFound
	}
	return nil
}

// TicketFilter narrows list and count queries.
type TicketFilter struct {
	EventDate string
	Status    string
	ClubID    int64
	Limit     int
	Offset    int
}

func (f TicketFilter) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if f.EventDate != "" {
		q = q.Where("event_date LIKE ?", "%"+f.EventDate+"%")
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ClubID != 0 {
		q = q.Where("club_id = ?", f.ClubID)
	}
	return q
}

func (d *DB) ListTickets(ctx context.Context, f TicketFilter) ([]models.Ticket, error) {
	var tickets []models.Ticket
	q := f.apply(d.Bun.NewSelect().Model(&tickets)).
		Order("created_at DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) CountTickets(ctx context.Context, f TicketFilter) (int, error) {
	return f.apply(d.Bun.NewSelect().Model((*models.Ticket)(nil))).Count(ctx)
}
