package admission

import (
	"net/http"
	"strings"

	"glucolog/internal/engine/credentials"
)

const HeaderAPIKey = "X-API-Key"

// Kind tags where a presented credential came from and which verifier handles it.
type Kind int

const (
	None Kind = iota
	APIKey
	Session
	Malformed
)

func (k Kind) String() string {
	switch k {
	case APIKey:
		return "api_key"
	case Session:
		return "session"
	case Malformed:
		return "malformed"
	default:
		return "none"
	}
}

type Credential struct {
	Kind  Kind
	Value string
}

// Extract classifies the request's credential once. The dedicated header wins;
// a bearer value carrying the key marker is an API key, any other bearer value
// is a session token.
func Extract(h http.Header) Credential {
	if v := strings.TrimSpace(h.Get(HeaderAPIKey)); v != "" {
		return Credential{Kind: APIKey, Value: v}
	}

	authHeader := h.Get("Authorization")
	if authHeader == "" {
		return Credential{Kind: None}
	}

	scheme, value, ok := strings.Cut(authHeader, " ")
	value = strings.TrimSpace(value)
	if !ok || !strings.EqualFold(scheme, "Bearer") || value == "" {
		return Credential{Kind: Malformed}
	}
	if credentials.IsAPIKey(value) {
		return Credential{Kind: APIKey, Value: value}
	}
	return Credential{Kind: Session, Value: value}
}
