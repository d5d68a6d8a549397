package usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"glucolog/internal/platform/models"
)

type fakeReader struct {
	since time.Time
	limit int
	out   []models.UsageRecord
}

func (f *fakeReader) ListByPrincipal(_ context.Context, _ string, since time.Time, limit int) ([]models.UsageRecord, error) {
	f.since = since
	f.limit = limit
	if len(f.out) > limit {
		return f.out[:limit], nil
	}
	return f.out, nil
}

func (f *fakeReader) SummarizeByEndpoint(_ context.Context, _ string, since time.Time) ([]models.EndpointUsage, error) {
	f.since = since
	idx := map[string]int{}
	rows := []models.EndpointUsage{}
	totals := []int64{}
	for _, r := range f.out {
		i, ok := idx[r.Endpoint]
		if !ok {
			i = len(rows)
			idx[r.Endpoint] = i
			rows = append(rows, models.EndpointUsage{Endpoint: r.Endpoint})
			totals = append(totals, 0)
		}
		rows[i].Requests++
		if !r.Successful() {
			rows[i].Errors++
		}
		totals[i] += r.LatencyMs
		if r.LatencyMs > rows[i].MaxLatencyMs {
			rows[i].MaxLatencyMs = r.LatencyMs
		}
	}
	for i := range rows {
		rows[i].AvgLatencyMs = float64(totals[i]) / float64(rows[i].Requests)
	}
	return rows, nil
}

func (f *fakeReader) SummarizeByDay(_ context.Context, _ string, _ time.Time) ([]models.DailyUsage, error) {
	idx := map[int64]int{}
	rows := []models.DailyUsage{}
	for _, r := range f.out {
		day := r.CreatedAt / (24 * 60 * 60 * 1000)
		i, ok := idx[day]
		if !ok {
			i = len(rows)
			idx[day] = i
			rows = append(rows, models.DailyUsage{Day: day})
		}
		rows[i].Requests++
		if !r.Successful() {
			rows[i].Errors++
		}
	}
	return rows, nil
}

func TestService_ClampDays(t *testing.T) {
	s := NewService(&fakeReader{}, 30, nil)

	tests := []struct {
		in, want int
	}{
		{0, 1},
		{-4, 1},
		{7, 7},
		{30, 30},
		{90, 30},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.ClampDays(tt.in), "days=%d", tt.in)
	}
}

func TestService_QueryWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	reader := &fakeReader{}
	s := NewService(reader, 30, func() time.Time { return now })

	_, err := s.Query(context.Background(), "u1", 365)
	require.NoError(t, err)

	assert.Equal(t, now.Add(-30*24*time.Hour), reader.since)
	assert.Equal(t, DefaultQueryLimit, reader.limit)
}

func TestService_Report(t *testing.T) {
	day1 := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC).UnixMilli()
	day2 := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC).UnixMilli()
	reader := &fakeReader{out: []models.UsageRecord{
		{Endpoint: "/v1/readings", StatusCode: 200, LatencyMs: 10, CreatedAt: day2},
		{Endpoint: "/v1/readings", StatusCode: 500, LatencyMs: 30, CreatedAt: day2},
		{Endpoint: "/v1/foods", StatusCode: 201, LatencyMs: 5, CreatedAt: day1},
		{Endpoint: "/v1/readings", StatusCode: 404, LatencyMs: 20, CreatedAt: day1},
	}}
	s := NewService(reader, 30, nil)

	report, err := s.Report(context.Background(), "u1", 7)
	require.NoError(t, err)

	assert.Equal(t, 7, report.Days)
	assert.Equal(t, 4, report.Total)
	assert.InDelta(t, 0.5, report.SuccessRate, 1e-9)

	require.Len(t, report.ByEndpoint, 2)
	assert.Equal(t, EndpointStat{Endpoint: "/v1/readings", Requests: 3, Errors: 2, AvgLatencyMs: 20, MaxLatencyMs: 30}, report.ByEndpoint[0])
	assert.Equal(t, "/v1/foods", report.ByEndpoint[1].Endpoint)

	assert.Equal(t, []DayStat{
		{Date: "2026-03-09", Requests: 2, Errors: 1},
		{Date: "2026-03-10", Requests: 2, Errors: 1},
	}, report.ByDay)
}

func TestService_ReportBeyondQueryLimit(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	records := make([]models.UsageRecord, 0, 1500)
	for i := 0; i < 1000; i++ {
		records = append(records, models.UsageRecord{Endpoint: "/v1/readings", StatusCode: 200, CreatedAt: now.Add(-time.Duration(i) * time.Minute).UnixMilli()})
	}
	for i := 0; i < 500; i++ {
		records = append(records, models.UsageRecord{Endpoint: "/v1/readings", StatusCode: 500, CreatedAt: now.AddDate(0, 0, -2).UnixMilli()})
	}
	require.Greater(t, len(records), DefaultQueryLimit)

	reader := &fakeReader{out: records}
	s := NewService(reader, 30, func() time.Time { return now })

	report, err := s.Report(context.Background(), "u1", 30)
	require.NoError(t, err)

	assert.Equal(t, 1500, report.Total)
	assert.InDelta(t, 2.0/3.0, report.SuccessRate, 1e-9)
	require.Len(t, report.ByEndpoint, 1)
	assert.Equal(t, 1500, report.ByEndpoint[0].Requests)
	assert.Equal(t, 500, report.ByEndpoint[0].Errors)
	assert.Len(t, report.Recent, recentInReport)
	assert.Equal(t, recentInReport, reader.limit)
}

func TestSuccessRate(t *testing.T) {
	tests := []struct {
		total, failed int
		want          float64
	}{
		{0, 0, 0},
		{1, 0, 1},
		{2, 2, 0},
		{3, 1, 2.0 / 3.0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, SuccessRate(tt.total, tt.failed), 1e-9, "total=%d failed=%d", tt.total, tt.failed)
	}
}
