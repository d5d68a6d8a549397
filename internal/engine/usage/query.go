package usage

import (
	"context"
	"sort"
	"time"

	"glucolog/internal/platform/models"
)

const DefaultQueryLimit = 1000

type Reader interface {
	ListByPrincipal(ctx context.Context, principalID string, since time.Time, limit int) ([]models.UsageRecord, error)
	SummarizeByEndpoint(ctx context.Context, principalID string, since time.Time) ([]models.EndpointUsage, error)
	SummarizeByDay(ctx context.Context, principalID string, since time.Time) ([]models.DailyUsage, error)
}

type Service struct {
	reader  Reader
	maxDays int
	limit   int
	now     func() time.Time
}

func NewService(reader Reader, maxDays int, now func() time.Time) *Service {
	if maxDays <= 0 {
		maxDays = 30
	}
	if now == nil {
		now = time.Now
	}
	return &Service{reader: reader, maxDays: maxDays, limit: DefaultQueryLimit, now: now}
}

// ClampDays bounds a requested look-back to 1..maxDays.
func (s *Service) ClampDays(days int) int {
	if days < 1 {
		return 1
	}
	if days > s.maxDays {
		return s.maxDays
	}
	return days
}

func (s *Service) since(days int) time.Time {
	return s.now().Add(-time.Duration(s.ClampDays(days)) * 24 * time.Hour)
}

func (s *Service) Query(ctx context.Context, principalID string, days int) ([]models.UsageRecord, error) {
	return s.reader.ListByPrincipal(ctx, principalID, s.since(days), s.limit)
}

type Report struct {
	Days        int                  `json:"days"`
	Total       int                  `json:"total"`
	SuccessRate float64              `json:"success_rate"`
	ByEndpoint  []EndpointStat       `json:"by_endpoint"`
	ByDay       []DayStat            `json:"by_day"`
	Recent      []models.UsageRecord `json:"recent"`
}

const recentInReport = 50

// Report aggregates over the whole window; only Recent is capped.
func (s *Service) Report(ctx context.Context, principalID string, days int) (*Report, error) {
	days = s.ClampDays(days)
	since := s.since(days)

	endpoints, err := s.reader.SummarizeByEndpoint(ctx, principalID, since)
	if err != nil {
		return nil, err
	}
	daily, err := s.reader.SummarizeByDay(ctx, principalID, since)
	if err != nil {
		return nil, err
	}
	recent, err := s.reader.ListByPrincipal(ctx, principalID, since, recentInReport)
	if err != nil {
		return nil, err
	}

	total, failed := 0, 0
	for _, e := range endpoints {
		total += e.Requests
		failed += e.Errors
	}
	return &Report{
		Days:        days,
		Total:       total,
		SuccessRate: SuccessRate(total, failed),
		ByEndpoint:  ByEndpoint(endpoints),
		ByDay:       ByDay(daily),
		Recent:      recent,
	}, nil
}

type EndpointStat struct {
	Endpoint     string  `json:"endpoint"`
	Requests     int     `json:"requests"`
	Errors       int     `json:"errors"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MaxLatencyMs int64   `json:"max_latency_ms"`
}

// ByEndpoint orders endpoint summaries busiest first.
func ByEndpoint(rows []models.EndpointUsage) []EndpointStat {
	stats := make([]EndpointStat, 0, len(rows))
	for _, r := range rows {
		stats = append(stats, EndpointStat(r))
	}
	sort.SliceStable(stats, func(a, b int) bool {
		if stats[a].Requests != stats[b].Requests {
			return stats[a].Requests > stats[b].Requests
		}
		return stats[a].Endpoint < stats[b].Endpoint
	})
	return stats
}

type DayStat struct {
	Date     string `json:"date"`
	Requests int    `json:"requests"`
	Errors   int    `json:"errors"`
}

// ByDay labels daily summaries with their UTC date, oldest first.
func ByDay(rows []models.DailyUsage) []DayStat {
	stats := make([]DayStat, 0, len(rows))
	for _, r := range rows {
		stats = append(stats, DayStat{
			Date:     time.Unix(r.Day*86400, 0).UTC().Format("2006-01-02"),
			Requests: r.Requests,
			Errors:   r.Errors,
		})
	}
	sort.Slice(stats, func(a, b int) bool { return stats[a].Date < stats[b].Date })
	return stats
}

// SuccessRate is (total-failed)/total, 0 for no records.
func SuccessRate(total, failed int) float64 {
	if total == 0 {
		return 0
	}
	return float64(total-failed) / float64(total)
}
