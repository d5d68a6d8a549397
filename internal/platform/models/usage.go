package models

// UsageRecord is one completed request. Append-only.
type UsageRecord struct {
	ID           string `json:"id"`
	PrincipalID  string `json:"principal_id"`
	CredentialID string `json:"credential_id,omitempty"`
	Endpoint     string `json:"endpoint"`
	Method       string `json:"method"`
	StatusCode   int    `json:"status_code"`
	LatencyMs    int64  `json:"latency_ms"`
	CreatedAt    int64  `json:"created_at"` // unix millis
}

func (r UsageRecord) Successful() bool {
	return r.StatusCode < 400
}

// EndpointUsage aggregates one endpoint's records over a look-back window.
type EndpointUsage struct {
	Endpoint     string
	Requests     int
	Errors       int
	AvgLatencyMs float64
	MaxLatencyMs int64
}

// DailyUsage aggregates one UTC day; Day is days since the unix epoch.
type DailyUsage struct {
	Day      int64
	Requests int
	Errors   int
}
