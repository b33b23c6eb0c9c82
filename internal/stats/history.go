package stats

import (
	"context"
	"fmt"
	"time"

	"ms-verify/internal/models"
	"ms-verify/internal/tickets/db"
)

func historyFilter(eventDate string) db.TicketFilter {
	return db.TicketFilter{EventDate: eventDate}
}

type HistoryItem struct {
	ID           int64      `json:"id"`
	OrderID      string     `json:"order_id"`
	CustomerName string     `json:"customer_name"`
	TicketType   string     `json:"ticket_type"`
	EventDate    string     `json:"event_date,omitempty"`
	Status       string     `json:"status"`
	ScanTime     *time.Time `json:"scan_time,omitempty"`
	Price        float64    `json:"price"`
}

type History struct {
	Items []HistoryItem  `json:"items"`
	Stats map[string]int `json:"stats"`
}

// GetHistory returns the scan-history view: tickets with a derived display
// status, scanned ones first.
func (s *Service) GetHistory(ctx context.Context, eventDate string, limit int) (*History, error) {
	if limit <= 0 {
		limit = 100
	}
	tickets, err := s.DB.ListHistoryTickets(ctx, eventDate, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	items := make([]HistoryItem, 0, len(tickets))
	for _, t := range tickets {
		items = append(items, HistoryItem{
			ID:           t.ID,
			OrderID:      t.OrderID,
			CustomerName: t.CustomerName,
			TicketType:   t.TicketType,
			EventDate:    t.EventDate,
			Status:       displayStatus(&t),
			ScanTime:     t.FirstScanAt,
			Price:        t.Price,
		})
	}

	filter := historyFilter(eventDate)
	total, err := s.DB.CountTickets(ctx, filter)
	if err != nil {
		return nil, err
	}
	filter.Status = models.StatusUsed
	entered, err := s.DB.CountTickets(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &History{
		Items: items,
		Stats: map[string]int{
			"bought":  total,
			"entered": entered,
			"pending": total - entered,
		},
	}, nil
}

func displayStatus(t *models.Ticket) string {
	switch {
	case t.Status == models.StatusUsed && t.ScanCount == 1:
		return "entered"
	case t.Status == models.StatusUsed && t.ScanCount > 1:
		return "duplicate"
	case t.Status == models.StatusCancelled:
		return "cancelled"
	default:
		return "pending"
	}
}
