package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"glucolog/internal/platform/database"
	"glucolog/internal/platform/models"
)

var ErrNotFound = errors.New("record not found")

const credentialColumns = `id, principal_id, name, tier, key_prefix, key_hash, created_at, expires_at, revoked_at, deleted_at, last_used_at`

type APIKeyRepository struct {
	db *database.DB
}

func NewAPIKeyRepository(db *database.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) Create(ctx context.Context, key *models.APICredential) error {
	if key.ID == "" {
		key.ID = "key_" + uuid.New().String()
	}
	if key.CreatedAt == 0 {
		key.CreatedAt = time.Now().Unix()
	}

	query := `
		INSERT INTO api_credentials (id, principal_id, name, tier, key_prefix, key_hash, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		key.ID, key.PrincipalID, key.Name, key.Tier, key.KeyPrefix, key.KeyHash, key.CreatedAt, nullInt(key.ExpiresAt))
	return err
}

// FindByPrefix returns every credential sharing the lookup prefix, revoked ones included.
func (r *APIKeyRepository) FindByPrefix(ctx context.Context, prefix string) ([]*models.APICredential, error) {
	query := `SELECT ` + credentialColumns + ` FROM api_credentials WHERE key_prefix = ?`
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCredentials(rows)
}

func (r *APIKeyRepository) ListByPrincipal(ctx context.Context, principalID string) ([]*models.APICredential, error) {
	query := `SELECT ` + credentialColumns + ` FROM api_credentials WHERE principal_id = ? AND deleted_at IS NULL ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCredentials(rows)
}

func (r *APIKeyRepository) CountLive(ctx context.Context, principalID string, now time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM api_credentials
		WHERE principal_id = ? AND revoked_at IS NULL AND deleted_at IS NULL
		AND (expires_at IS NULL OR expires_at > ?)
	`
	var n int
	err := r.db.QueryRowContext(ctx, r.db.Rebind(query), principalID, now.Unix()).Scan(&n)
	return n, err
}

func (r *APIKeyRepository) Rename(ctx context.Context, id, principalID, name string) error {
	query := `UPDATE api_credentials SET name = ? WHERE id = ? AND principal_id = ? AND deleted_at IS NULL`
	return r.execOne(ctx, query, name, id, principalID)
}

func (r *APIKeyRepository) Revoke(ctx context.Context, id, principalID string, at time.Time) error {
	query := `UPDATE api_credentials SET revoked_at = COALESCE(revoked_at, ?) WHERE id = ? AND principal_id = ? AND deleted_at IS NULL`
	return r.execOne(ctx, query, at.Unix(), id, principalID)
}

// SoftDelete hides the credential from listings; the row stays for usage history.
func (r *APIKeyRepository) SoftDelete(ctx context.Context, id, principalID string, at time.Time) error {
	query := `UPDATE api_credentials SET deleted_at = ?, revoked_at = COALESCE(revoked_at, ?) WHERE id = ? AND principal_id = ? AND deleted_at IS NULL`
	return r.execOne(ctx, query, at.Unix(), at.Unix(), id, principalID)
}

func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE api_credentials SET last_used_at = ? WHERE id = ?`), at.Unix(), id)
	return err
}

func (r *APIKeyRepository) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCredentials(rows *sql.Rows) ([]*models.APICredential, error) {
	var keys []*models.APICredential
	for rows.Next() {
		var k models.APICredential
		var expiresAt, revokedAt, deletedAt, lastUsedAt sql.NullInt64

		if err := rows.Scan(&k.ID, &k.PrincipalID, &k.Name, &k.Tier, &k.KeyPrefix, &k.KeyHash, &k.CreatedAt,
			&expiresAt, &revokedAt, &deletedAt, &lastUsedAt); err != nil {
			return nil, err
		}

		k.ExpiresAt = int64Ptr(expiresAt)
		k.RevokedAt = int64Ptr(revokedAt)
		k.DeletedAt = int64Ptr(deletedAt)
		k.LastUsedAt = int64Ptr(lastUsedAt)
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
