package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"glucolog/internal/platform/database"
	"glucolog/internal/platform/models"
)

type UsageRepository struct {
	db *database.DB
}

func NewUsageRepository(db *database.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// InsertBatch writes all records in one transaction.
func (r *UsageRepository) InsertBatch(ctx context.Context, records []models.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
		INSERT INTO usage_records (id, principal_id, credential_id, endpoint, method, status_code, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = "use_" + uuid.New().String()
		}
		var credentialID interface{}
		if rec.CredentialID != "" {
			credentialID = rec.CredentialID
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.PrincipalID, credentialID, rec.Endpoint, rec.Method,
			rec.StatusCode, rec.LatencyMs, rec.CreatedAt); err != nil {
			return fmt.Errorf("insert usage record: %w", err)
		}
	}

	return tx.Commit()
}

func (r *UsageRepository) ListByPrincipal(ctx context.Context, principalID string, since time.Time, limit int) ([]models.UsageRecord, error) {
	query := `
		SELECT id, principal_id, COALESCE(credential_id, ''), endpoint, method, status_code, latency_ms, created_at
		FROM usage_records
		WHERE principal_id = ? AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), principalID, since.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.UsageRecord{}
	for rows.Next() {
		var u models.UsageRecord
		if err := rows.Scan(&u.ID, &u.PrincipalID, &u.CredentialID, &u.Endpoint, &u.Method, &u.StatusCode, &u.LatencyMs, &u.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, u)
	}
	return records, rows.Err()
}

const msPerDay = 24 * 60 * 60 * 1000

// SummarizeByEndpoint aggregates every record since the cutoff, not just a page of rows.
func (r *UsageRepository) SummarizeByEndpoint(ctx context.Context, principalID string, since time.Time) ([]models.EndpointUsage, error) {
	query := `
		SELECT endpoint,
			COUNT(*),
			SUM(CASE WHEN status_code >= 400 THEN 1 ELSE 0 END),
			CAST(AVG(latency_ms) AS DOUBLE PRECISION),
			MAX(latency_ms)
		FROM usage_records
		WHERE principal_id = ? AND created_at >= ?
		GROUP BY endpoint
		ORDER BY COUNT(*) DESC, endpoint
	`
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), principalID, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []models.EndpointUsage{}
	for rows.Next() {
		var s models.EndpointUsage
		if err := rows.Scan(&s.Endpoint, &s.Requests, &s.Errors, &s.AvgLatencyMs, &s.MaxLatencyMs); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// SummarizeByDay buckets records since the cutoff by UTC day, oldest first.
func (r *UsageRepository) SummarizeByDay(ctx context.Context, principalID string, since time.Time) ([]models.DailyUsage, error) {
	query := fmt.Sprintf(`
		SELECT created_at / %d AS day,
			COUNT(*),
			SUM(CASE WHEN status_code >= 400 THEN 1 ELSE 0 END)
		FROM usage_records
		WHERE principal_id = ? AND created_at >= ?
		GROUP BY created_at / %d
		ORDER BY day
	`, msPerDay, msPerDay)
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), principalID, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []models.DailyUsage{}
	for rows.Next() {
		var s models.DailyUsage
		if err := rows.Scan(&s.Day, &s.Requests, &s.Errors); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (r *UsageRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM usage_records WHERE created_at < ?`), cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
