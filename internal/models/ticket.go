package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Ticket statuses. A ticket starts out valid, becomes used once all of its
// entries are consumed, and may be cancelled by an administrative override.
const (
	StatusValid     = "valid"
	StatusUsed      = "used"
	StatusCancelled = "cancelled"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID            int64  `bun:"id,pk,autoincrement" json:"id"`
	OrderID       string `bun:"order_id,unique,notnull" json:"order_id"`
	TransactionID string `bun:"transaction_id,nullzero" json:"transaction_id,omitempty"`

	CustomerName  string `bun:"customer_name,notnull" json:"customer_name"`
	CustomerEmail string `bun:"customer_email,nullzero" json:"customer_email,omitempty"`
	CustomerPhone string `bun:"customer_phone,nullzero" json:"customer_phone,omitempty"`

	TicketType    string  `bun:"ticket_type,default:'Standard'" json:"ticket_type"`
	EventDate     string  `bun:"event_date,nullzero" json:"event_date,omitempty"`
	EventName     string  `bun:"event_name,nullzero" json:"event_name,omitempty"`
	Price         float64 `bun:"price,default:0" json:"price"`
	Subtotal      float64 `bun:"subtotal,default:0" json:"subtotal,omitempty"`
	Discount      float64 `bun:"discount,default:0" json:"discount,omitempty"`
	PaymentAmount float64 `bun:"payment_amount,default:0" json:"payment_amount,omitempty"`
	Promocode     string  `bun:"promocode,nullzero" json:"promocode,omitempty"`

	QRToken     string `bun:"qr_token,unique" json:"qr_token"`
	QRSignature string `bun:"qr_signature" json:"qr_signature"`

	CountryCode string `bun:"country_code,nullzero" json:"country_code,omitempty"`
	CityName    string `bun:"city_name,nullzero" json:"city_name,omitempty"`
	ClubID      int64  `bun:"club_id,nullzero" json:"club_id,omitempty"`

	// Soft-delete flag. A ticket hidden from managers is treated as removed
	// by the scanner as well.
	VisibleToManagers bool `bun:"visible_to_managers,default:true" json:"visible_to_managers"`

	// Number of admissions this ticket grants. 1 for a regular ticket.
	Quantity int `bun:"quantity,default:1" json:"quantity"`

	Status      string     `bun:"status,default:'valid'" json:"status"`
	ScanCount   int        `bun:"scan_count,default:0" json:"scan_count"`
	FirstScanAt *time.Time `bun:"first_scan_at,nullzero" json:"first_scan_at,omitempty"`
	LastScanAt  *time.Time `bun:"last_scan_at,nullzero" json:"last_scan_at,omitempty"`
	ScannedBy   string     `bun:"scanned_by,nullzero" json:"scanned_by,omitempty"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// EffectiveQuantity normalizes legacy rows where quantity was never set.
func (t *Ticket) EffectiveQuantity() int {
	if t.Quantity < 1 {
		return 1
	}
	return t.Quantity
}
