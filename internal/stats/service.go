// Package stats aggregates the admin-panel counters from the ticket table
// and today's scan history. Results are cached in Redis for a short TTL so
// dashboards polling every second do not hammer the store mid-event.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-verify/internal/logger"
	"ms-verify/internal/models"
	"ms-verify/internal/tickets/db"
)

type ReportsDBLayer interface {
	CountTickets(ctx context.Context, f db.TicketFilter) (int, error)
	CountScansToday(ctx context.Context, results []string, clubID int64) (int, error)
	ListHistoryTickets(ctx context.Context, eventDate string, limit int) ([]models.Ticket, error)
}

type Stats struct {
	TotalTickets      int `json:"total_tickets"`
	Entered           int `json:"entered"`
	Pending           int `json:"pending"`
	Cancelled         int `json:"cancelled"`
	DuplicateAttempts int `json:"duplicate_attempts"`
	InvalidAttempts   int `json:"invalid_attempts"`
}

type Service struct {
	DB     ReportsDBLayer
	Cache  *redis.Client // nil disables caching
	TTL    time.Duration
	Logger *logger.Logger
}

func NewService(dbLayer ReportsDBLayer, cache *redis.Client, ttl time.Duration, log *logger.Logger) *Service {
	return &Service{DB: dbLayer, Cache: cache, TTL: ttl, Logger: log}
}

func (s *Service) GetStats(ctx context.Context, eventDate string, clubID int64) (*Stats, error) {
	cacheKey := fmt.Sprintf("stats:%s:%d", eventDate, clubID)
	if s.Cache != nil {
		if cached, err := s.Cache.Get(ctx, cacheKey).Result(); err == nil {
			var stats Stats
			if err := json.Unmarshal([]byte(cached), &stats); err == nil {
				return &stats, nil
			}
		}
	}

	filter := db.TicketFilter{EventDate: eventDate, ClubID: clubID}

	total, err := s.DB.CountTickets(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count tickets: %w", err)
	}
	filter.Status = models.StatusUsed
	entered, err := s.DB.CountTickets(ctx, filter)
	if err != nil {
		return nil, err
	}
	filter.Status = models.StatusValid
	pending, err := s.DB.CountTickets(ctx, filter)
	if err != nil {
		return nil, err
	}
	filter.Status = models.StatusCancelled
	cancelled, err := s.DB.CountTickets(ctx, filter)
	if err != nil {
		return nil, err
	}

	duplicates, err := s.DB.CountScansToday(ctx, []string{models.ScanResultDuplicate}, clubID)
	if err != nil {
		return nil, err
	}
	invalid, err := s.DB.CountScansToday(ctx, []string{models.ScanResultInvalid, models.ScanResultForged}, clubID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalTickets:      total,
		Entered:           entered,
		Pending:           pending,
		Cancelled:         cancelled,
		DuplicateAttempts: duplicates,
		InvalidAttempts:   invalid,
	}

	if s.Cache != nil {
		if body, err := json.Marshal(stats); err == nil {
			if err := s.Cache.Set(ctx, cacheKey, body, s.TTL).Err(); err != nil {
				s.Logger.Warn("REDIS", fmt.Sprintf("stats cache write failed: %v", err))
			}
		}
	}
	return stats, nil
}
