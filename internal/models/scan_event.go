package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Scan results recorded in the audit trail. These are the values written to
// scan_history.scan_result; note that a "used" response to the scanner is
// logged as a duplicate attempt.
const (
	ScanResultValid     = "valid"
	ScanResultDuplicate = "duplicate"
	ScanResultExpired   = "expired"
	ScanResultInvalid   = "invalid"
	ScanResultForged    = "forged"
)

// ScanEvent is an append-only audit record. One row is written per
// verification attempt, whether or not it resolved to a ticket, and rows are
// never updated or deleted by the service.
type ScanEvent struct {
	bun.BaseModel `bun:"table:scan_history"`

	ID       int64  `bun:"id,pk,autoincrement" json:"id"`
	TicketID *int64 `bun:"ticket_id,nullzero" json:"ticket_id,omitempty"`
	OrderID  string `bun:"order_id,nullzero" json:"order_id,omitempty"`

	ClubID int64 `bun:"club_id,nullzero" json:"club_id,omitempty"`

	HiddenForManager bool `bun:"hidden_for_manager,default:false" json:"hidden_for_manager"`

	ScanTime   time.Time `bun:"scan_time,nullzero,notnull,default:current_timestamp" json:"scan_time"`
	ScanResult string    `bun:"scan_result" json:"scan_result"`
	ScannerID  string    `bun:"scanner_id,nullzero" json:"scanner_id,omitempty"`
	Notes      string    `bun:"notes,nullzero" json:"notes,omitempty"`
}
