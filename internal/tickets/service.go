// Package tickets exposes the read side of the ticket store to the admin
// panel and scanners: lookups, listing with counters, the cancel override
// and QR rendering for issued tickets. Issuance itself lives in the bot
// that mints orders; this service only re-renders credentials it stored.
package tickets

import (
	"context"
	"fmt"
	"strconv"

	qrcode "github.com/skip2/go-qrcode"

	"ms-verify/internal/models"
	"ms-verify/internal/qrcodec"
	"ms-verify/internal/signature"
	"ms-verify/internal/tickets/db"
)

type TicketDBLayer interface {
	GetTicketByOrderID(ctx context.Context, orderID string) (*models.Ticket, error)
	GetTicketByToken(ctx context.Context, token string) (*models.Ticket, error)
	ListTickets(ctx context.Context, f db.TicketFilter) ([]models.Ticket, error)
	CountTickets(ctx context.Context, f db.TicketFilter) (int, error)
	CancelTicket(ctx context.Context, orderID string) error
}

type TicketService struct {
	DB     TicketDBLayer
	Signer *signature.Signer
}

func NewTicketService(dbLayer TicketDBLayer, signer *signature.Signer) *TicketService {
	return &TicketService{DB: dbLayer, Signer: signer}
}

func (s *TicketService) GetTicket(ctx context.Context, orderID string) (*models.Ticket, error) {
	return s.DB.GetTicketByOrderID(ctx, orderID)
}

func (s *TicketService) GetTicketByToken(ctx context.Context, token string) (*models.Ticket, error) {
	return s.DB.GetTicketByToken(ctx, token)
}

// TicketList carries a page of tickets plus the counters the admin panel
// shows above the table.
type TicketList struct {
	Tickets []models.Ticket `json:"tickets"`
	Total   int             `json:"total"`
	Bought  int             `json:"bought"`
	Entered int             `json:"entered"`
	Pending int             `json:"pending"`
}

func (s *TicketService) ListTickets(ctx context.Context, f db.TicketFilter) (*TicketList, error) {
	tickets, err := s.DB.ListTickets(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}

	total, err := s.DB.CountTickets(ctx, f)
	if err != nil {
		return nil, err
	}
	countFilter := f
	countFilter.Status = models.StatusUsed
	entered, err := s.DB.CountTickets(ctx, countFilter)
	if err != nil {
		return nil, err
	}
	countFilter.Status = models.StatusValid
	pending, err := s.DB.CountTickets(ctx, countFilter)
	if err != nil {
		return nil, err
	}

	return &TicketList{
		Tickets: tickets,
		Total:   total,
		Bought:  total,
		Entered: entered,
		Pending: pending,
	}, nil
}

func (s *TicketService) CancelTicket(ctx context.Context, orderID string) error {
	return s.DB.CancelTicket(ctx, orderID)
}

// BuildPayload assembles the canonical v2 payload for a stored ticket. The
// stored signature is preferred; tickets imported without one get a fresh
// signature over the canonical field order.
func (s *TicketService) BuildPayload(ticket *models.Ticket) *qrcodec.V2Payload {
	paid := ""
	if ticket.PaymentAmount > 0 {
		paid = "paid"
	}
	payload := &qrcodec.V2Payload{
		V1Payload: qrcodec.V1Payload{
			LegacyPayload: qrcodec.LegacyPayload{
				VersionTag: "2",
				Order:      ticket.OrderID,
				TicketType: ticket.TicketType,
				EventDate:  ticket.EventDate,
				Name:       ticket.CustomerName,
				Email:      ticket.CustomerEmail,
				Phone:      ticket.CustomerPhone,
				Price:      strconv.FormatFloat(ticket.Price, 'f', -1, 64),
				Paid:       paid,
				QRToken:    ticket.QRToken,
			},
			City:    ticket.CityName,
			Country: ticket.CountryCode,
		},
		Qty: ticket.EffectiveQuantity(),
	}
	payload.Sig = ticket.QRSignature
	if payload.Sig == "" {
		payload.Sig = s.Signer.SignFields(payload.SigningFields())
	}
	return payload
}

// RenderQR returns the ticket's payload rendered as a QR PNG.
func (s *TicketService) RenderQR(ctx context.Context, orderID string) ([]byte, error) {
	ticket, err := s.DB.GetTicketByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	payload := s.BuildPayload(ticket)
	png, err := qrcode.Encode(payload.Encode(), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR: %w", err)
	}
	return png, nil
}
