package audit

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"glucolog/internal/platform/models"
)

type memoryWriter struct {
	entries []*models.AuditLog
	err     error
}

func (m *memoryWriter) Insert(_ context.Context, entry *models.AuditLog) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func TestLogger_Log(t *testing.T) {
	w := &memoryWriter{}
	l := NewLogger(w, 0)

	req := httptest.NewRequest("POST", "/api/v1/keys", nil)
	req.RemoteAddr = "192.0.2.10:51234"
	req.Header.Set("User-Agent", "glucolog-cli/1.0")

	l.Log(req, "usr_1", ActionKeyCreated, "api_key", "key_1", map[string]interface{}{"name": "ci"})

	require.Len(t, w.entries, 1)
	e := w.entries[0]
	assert.Equal(t, "usr_1", e.PrincipalID)
	assert.Equal(t, ActionKeyCreated, e.Action)
	assert.Equal(t, "192.0.2.10", e.IPAddress)
	assert.Equal(t, "glucolog-cli/1.0", e.UserAgent)
	assert.Contains(t, e.ID, "audit_")
}

func TestLogger_StoreErrorIsSwallowed(t *testing.T) {
	l := NewLogger(&memoryWriter{err: errors.New("disk full")}, 0)
	req := httptest.NewRequest("DELETE", "/api/v1/keys/key_1", nil)

	assert.NotPanics(t, func() {
		l.Log(req, "usr_1", ActionKeyDeleted, "api_key", "key_1", nil)
	})
}
