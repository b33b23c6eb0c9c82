// Package verify holds the scan state machine and the verification service
// that orchestrates codec, signature checks, ticket store and audit trail
// for every incoming scan.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-verify/internal/logger"
	"ms-verify/internal/models"
	"ms-verify/internal/qrcodec"
	"ms-verify/internal/signature"
	"ms-verify/internal/tickets/db"
)

// Response statuses returned to the scanning terminal.
const (
	OutcomeValid   = "valid"
	OutcomeUsed    = "used"
	OutcomeExpired = "expired"
	OutcomeInvalid = "invalid"
)

// How many times a lost compare-and-swap is retried before the scan is
// failed closed as a storage error.
const maxScanRetries = 5

// TicketStore is the ticket collaborator. Lookups report db.ErrTicketNotFound
// for empty results; ApplyScan is the conditional update of db.ScanMutation.
type TicketStore interface {
	GetTicketByToken(ctx context.Context, token string) (*models.Ticket, error)
	GetTicketByOrderID(ctx context.Context, orderID string) (*models.Ticket, error)
	GetTicketByID(ctx context.Context, id int64) (*models.Ticket, error)
	ApplyScan(ctx context.Context, m db.ScanMutation) (bool, error)
}

// AuditLog is the append-only scan-history collaborator.
type AuditLog interface {
	Record(ctx context.Context, event *models.ScanEvent) error
}

// EventPublisher streams audit events to interested consumers. Optional;
// publish failures never change a verification outcome.
type EventPublisher interface {
	PublishScanEvent(event models.ScanEvent) error
}

// Result is the structured response for one scan. Business rejections are
// carried here, never as errors.
type Result struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
	UsedAt  string                 `json:"used_at,omitempty"`
}

type Service struct {
	Store    TicketStore
	Audit    AuditLog
	Verifier *signature.Verifier
	Events   EventPublisher
	Logger   *logger.Logger

	// ExpiryWindow is how long a ticket stays admissible after its first
	// successful scan.
	ExpiryWindow time.Duration

	// Now is the clock; overridable in tests.
	Now func() time.Time
}

func NewService(store TicketStore, auditLog AuditLog, verifier *signature.Verifier, log *logger.Logger, expiryHours int) *Service {
	return &Service{
		Store:        store,
		Audit:        auditLog,
		Verifier:     verifier,
		Logger:       log,
		ExpiryWindow: time.Duration(expiryHours) * time.Hour,
		Now:          time.Now,
	}
}

// Verify runs one scan through the full pipeline. The returned error is
// reserved for storage failures; on error no admission has been granted.
func (s *Service) Verify(ctx context.Context, scannerID, rawPayload string) (*Result, error) {
	payload, err := qrcodec.Parse(rawPayload)
	if err != nil {
		if recErr := s.record(ctx, nil, "", models.ScanResultInvalid, scannerID, "Invalid QR format"); recErr != nil {
			return nil, fmt.Errorf("audit write failed: %w", recErr)
		}
		return &Result{Status: OutcomeInvalid, Message: "Invalid QR format"}, nil
	}

	ticket, err := s.resolveTicket(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("ticket lookup failed: %w", err)
	}

	// The stored-signature path needs the resolved row, so resolution runs
	// before the authenticity decision.
	ok, strategy := s.Verifier.Verify(payload, ticket)
	if !ok {
		if recErr := s.record(ctx, ticket, payload.OrderID(), models.ScanResultForged, scannerID, "Invalid signature"); recErr != nil {
			return nil, fmt.Errorf("audit write failed: %w", recErr)
		}
		return &Result{
			Status:  OutcomeInvalid,
			Message: "Forged ticket - invalid signature",
			Data:    payloadData(payload),
		}, nil
	}
	s.Logger.Debug("SCAN", fmt.Sprintf("signature accepted via %s path for %s", strategy, payload.OrderID()))

	if ticket == nil {
		if recErr := s.record(ctx, nil, payload.OrderID(), models.ScanResultInvalid, scannerID, "Not found in DB"); recErr != nil {
			return nil, fmt.Errorf("audit write failed: %w", recErr)
		}
		return &Result{
			Status:  OutcomeInvalid,
			Message: "Ticket not found in database",
			Data:    payloadData(payload),
		}, nil
	}

	if !ticket.VisibleToManagers {
		if recErr := s.record(ctx, ticket, ticket.OrderID, models.ScanResultInvalid, scannerID, "Hidden from managers"); recErr != nil {
			return nil, fmt.Errorf("audit write failed: %w", recErr)
		}
		// Customer-facing fields only; internal scan state stays hidden.
		return &Result{
			Status:  OutcomeInvalid,
			Message: "Ticket removed",
			Data: map[string]interface{}{
				"order_id":    ticket.OrderID,
				"name":        ticket.CustomerName,
				"ticket_type": ticket.TicketType,
				"email":       ticket.CustomerEmail,
				"phone":       ticket.CustomerPhone,
				"price":       ticket.Price,
			},
		}, nil
	}

	return s.runStateMachine(ctx, ticket, scannerID)
}

func (s *Service) resolveTicket(ctx context.Context, payload qrcodec.Payload) (*models.Ticket, error) {
	ticket, err := s.Store.GetTicketByToken(ctx, payload.Token())
	if err == nil {
		return ticket, nil
	}
	if !errors.Is(err, db.ErrTicketNotFound) {
		return nil, err
	}
	ticket, err = s.Store.GetTicketByOrderID(ctx, payload.OrderID())
	if errors.Is(err, db.ErrTicketNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// runStateMachine decides the outcome for a resolved, verified, visible
// ticket and applies the corresponding row mutation. Mutations are
// compare-and-swapped on the observed scan_count; a lost race re-reads the
// row and decides again, so two concurrent scans of a single-entry ticket
// resolve to exactly one admission.
func (s *Service) runStateMachine(ctx context.Context, ticket *models.Ticket, scannerID string) (*Result, error) {
	for attempt := 0; attempt < maxScanRetries; attempt++ {
		d := s.decide(ticket, scannerID)

		if d.mutation == nil {
			if err := s.record(ctx, ticket, ticket.OrderID, d.scanResult, scannerID, d.notes); err != nil {
				return nil, fmt.Errorf("audit write failed: %w", err)
			}
			return d.result, nil
		}

		won, err := s.Store.ApplyScan(ctx, *d.mutation)
		if err != nil {
			return nil, fmt.Errorf("scan update failed: %w", err)
		}
		if !won {
			fresh, err := s.Store.GetTicketByID(ctx, ticket.ID)
			if err != nil {
				return nil, fmt.Errorf("ticket re-read failed: %w", err)
			}
			ticket = fresh
			continue
		}

		// The admission is decided and durable. An audit failure past this
		// point is a recoverable inconsistency: surface it in the logs but
		// never flip the outcome, or a retried scan could be admitted twice.
		if err := s.record(ctx, ticket, ticket.OrderID, d.scanResult, scannerID, d.notes); err != nil {
			s.Logger.Error("AUDIT", fmt.Sprintf("scan event write failed for %s: %v", ticket.OrderID, err))
		}
		return d.result, nil
	}
	return nil, fmt.Errorf("scan update for %s: retries exhausted", ticket.OrderID)
}

type decision struct {
	scanResult string
	notes      string
	mutation   *db.ScanMutation
	result     *Result
}

// decide is the pure state machine: one ticket snapshot in, one outcome and
// optional mutation out. Order of checks: cancelled, already used, expired,
// remaining entries. Expiry is checked before remaining entries so an
// expired group ticket is rejected even with unused admissions left.
func (s *Service) decide(ticket *models.Ticket, scannerID string) decision {
	now := s.Now()
	quantity := ticket.EffectiveQuantity()

	if ticket.Status == models.StatusCancelled {
		return decision{
			scanResult: models.ScanResultInvalid,
			notes:      "Cancelled",
			result: &Result{
				Status:  OutcomeInvalid,
				Message: "Ticket has been cancelled",
				Data:    ticketData(ticket, quantity),
			},
		}
	}

	if ticket.Status == models.StatusUsed {
		return s.decideDuplicate(ticket, quantity, now)
	}

	if ticket.FirstScanAt != nil {
		hoursPassed := now.Sub(*ticket.FirstScanAt).Hours()
		if now.Sub(*ticket.FirstScanAt) > s.ExpiryWindow {
			return decision{
				scanResult: models.ScanResultExpired,
				notes:      fmt.Sprintf("Expired after %.1fh", hoursPassed),
				mutation: &db.ScanMutation{
					TicketID:          ticket.ID,
					ExpectedScanCount: ticket.ScanCount,
					ScanCount:         ticket.ScanCount + 1,
					LastScanAt:        now,
				},
				result: &Result{
					Status:  OutcomeExpired,
					Message: fmt.Sprintf("Ticket expired (%.1f h since first scan)", hoursPassed),
					Data:    ticketData(ticket, quantity),
					UsedAt:  usedAt(ticket),
				},
			}
		}
	}

	// Exhausted rows that never got their status flipped (legacy data) are
	// duplicates too, but only after the expiry check above.
	if ticket.ScanCount >= quantity {
		return s.decideDuplicate(ticket, quantity, now)
	}

	// Entries remain: admit.
	newCount := ticket.ScanCount + 1
	m := &db.ScanMutation{
		TicketID:          ticket.ID,
		ExpectedScanCount: ticket.ScanCount,
		ScanCount:         newCount,
		LastScanAt:        now,
		ScannedBy:         scannerID,
	}
	firstScan := ticket.FirstScanAt
	if newCount == 1 {
		m.FirstScanAt = &now
		firstScan = &now
	}
	if newCount >= quantity {
		m.Status = models.StatusUsed
	}

	message := "Access granted"
	if quantity > 1 {
		message = fmt.Sprintf("Entry %d of %d", newCount, quantity)
	}

	data := ticketData(ticket, quantity)
	data["scan_count"] = newCount
	data["remaining_entries"] = quantity - newCount
	if firstScan != nil {
		data["first_scan_at"] = firstScan.Format(time.RFC3339)
		hoursPassed := now.Sub(*firstScan).Hours()
		data["hours_until_expiry"] = maxFloat(0, s.ExpiryWindow.Hours()-hoursPassed)
	}

	return decision{
		scanResult: models.ScanResultValid,
		notes:      fmt.Sprintf("Entry %d/%d", newCount, quantity),
		mutation:   m,
		result: &Result{
			Status:  OutcomeValid,
			Message: message,
			Data:    data,
		},
	}
}

// decideDuplicate handles a fully consumed ticket: the attempt is still
// counted and logged, and the message reports the count before this attempt.
func (s *Service) decideDuplicate(ticket *models.Ticket, quantity int, now time.Time) decision {
	notes := fmt.Sprintf("All entries used (%d/%d)", ticket.ScanCount, quantity)
	return decision{
		scanResult: models.ScanResultDuplicate,
		notes:      notes,
		mutation: &db.ScanMutation{
			TicketID:          ticket.ID,
			ExpectedScanCount: ticket.ScanCount,
			ScanCount:         ticket.ScanCount + 1,
			LastScanAt:        now,
		},
		result: &Result{
			Status:  OutcomeUsed,
			Message: notes,
			Data:    ticketData(ticket, quantity),
			UsedAt:  usedAt(ticket),
		},
	}
}

func (s *Service) record(ctx context.Context, ticket *models.Ticket, orderID, result, scannerID, notes string) error {
	event := models.ScanEvent{
		OrderID:    orderID,
		ScanResult: result,
		ScannerID:  scannerID,
		Notes:      notes,
		ScanTime:   s.Now(),
	}
	if ticket != nil {
		event.TicketID = &ticket.ID
		event.OrderID = ticket.OrderID
		event.ClubID = ticket.ClubID
	}
	if err := s.Audit.Record(ctx, &event); err != nil {
		return err
	}
	s.Logger.LogScan(result, event.OrderID, notes)

	if s.Events != nil {
		if err := s.Events.PublishScanEvent(event); err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("scan event publish failed for %s: %v", event.OrderID, err))
		}
	}
	return nil
}

// ticketData mirrors the customer-visible ticket view sent with most
// responses.
func ticketData(ticket *models.Ticket, quantity int) map[string]interface{} {
	data := map[string]interface{}{
		"order_id":    ticket.OrderID,
		"name":        ticket.CustomerName,
		"email":       ticket.CustomerEmail,
		"phone":       ticket.CustomerPhone,
		"ticket_type": ticket.TicketType,
		"event_date":  ticket.EventDate,
		"price":       ticket.Price,
		"scan_count":  ticket.ScanCount,
		"quantity":    quantity,
	}
	if ticket.FirstScanAt != nil {
		data["first_scan_at"] = ticket.FirstScanAt.Format(time.RFC3339)
	}
	return data
}

func payloadData(payload qrcodec.Payload) map[string]interface{} {
	fields := payload.Fields()
	data := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		data[k] = v
	}
	return data
}

func usedAt(ticket *models.Ticket) string {
	if ticket.FirstScanAt == nil {
		return ""
	}
	return ticket.FirstScanAt.Format("15:04:05")
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
