package models

import "time"

// APICredential is an issued API key. The raw secret is never stored.
type APICredential struct {
	ID          string `json:"id"`
	PrincipalID string `json:"principal_id"`
	Name        string `json:"name"`
	Tier        string `json:"tier"`
	KeyPrefix   string `json:"key_prefix"`
	KeyHash     string `json:"-"`
	CreatedAt   int64  `json:"created_at"`
	ExpiresAt   *int64 `json:"expires_at,omitempty"`
	RevokedAt   *int64 `json:"revoked_at,omitempty"`
	DeletedAt   *int64 `json:"-"`
	LastUsedAt  *int64 `json:"last_used_at,omitempty"`
}

func (c *APICredential) Revoked() bool {
	return c.RevokedAt != nil || c.DeletedAt != nil
}

func (c *APICredential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && *c.ExpiresAt <= now.Unix()
}

// Live reports whether the credential may still pass verification.
func (c *APICredential) Live(now time.Time) bool {
	return !c.Revoked() && !c.Expired(now)
}

func (c *APICredential) Status(now time.Time) string {
	switch {
	case c.Revoked():
		return "revoked"
	case c.Expired(now):
		return "expired"
	default:
		return "active"
	}
}
