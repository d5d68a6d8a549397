package repositories

import (
	"context"
	"encoding/json"

	"glucolog/internal/platform/database"
	"glucolog/internal/platform/models"
)

type AuditRepository struct {
	db *database.DB
}

func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	metaJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_logs (id, principal_id, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query), entry.ID, entry.PrincipalID, entry.Action, entry.ResourceType,
		entry.ResourceID, string(metaJSON), entry.IPAddress, entry.UserAgent, entry.CreatedAt)
	return err
}

func (r *AuditRepository) ListByPrincipal(ctx context.Context, principalID string, limit int) ([]models.AuditLog, error) {
	query := `
		SELECT id, principal_id, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at
		FROM audit_logs WHERE principal_id = ? ORDER BY created_at DESC LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), principalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.AuditLog{}
	for rows.Next() {
		var l models.AuditLog
		var metaStr string
		if err := rows.Scan(&l.ID, &l.PrincipalID, &l.Action, &l.ResourceType, &l.ResourceID, &metaStr, &l.IPAddress, &l.UserAgent, &l.CreatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(metaStr), &l.Metadata)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
