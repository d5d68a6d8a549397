package audit

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"glucolog/internal/platform/models"
)

const (
	ActionKeyCreated = "api_key.created"
	ActionKeyRenamed = "api_key.renamed"
	ActionKeyRevoked = "api_key.revoked"
	ActionKeyDeleted = "api_key.deleted"
)

type Writer interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
}

// Logger writes audit entries without failing the caller.
type Logger struct {
	store   Writer
	timeout time.Duration
	now     func() time.Time
}

func NewLogger(store Writer, timeout time.Duration) *Logger {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Logger{store: store, timeout: timeout, now: time.Now}
}

func (l *Logger) Log(r *http.Request, principalID, action, resourceType, resourceID string, metadata map[string]interface{}) {
	entry := &models.AuditLog{
		ID:           "audit_" + uuid.New().String(),
		PrincipalID:  principalID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
		IPAddress:    remoteIP(r),
		UserAgent:    r.UserAgent(),
		CreatedAt:    l.now().Unix(),
	}

	// detached from the request so a client hang-up does not lose the entry
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), l.timeout)
	defer cancel()

	if err := l.store.Insert(ctx, entry); err != nil {
		log.Warn().Err(err).Str("action", action).Str("resource_id", resourceID).Msg("failed to write audit log")
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
