package admission

import (
	"net/http"
	"strconv"
	"time"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// WriteHeaders sets the rate limit bookkeeping headers for d. Reset is a unix
// timestamp in seconds; Retry-After is only set on 429.
func WriteHeaders(h http.Header, d Decision, now time.Time) {
	h.Set(HeaderLimit, strconv.Itoa(d.Limit.Ceiling))
	h.Set(HeaderRemaining, strconv.Itoa(d.Limit.Remaining()))
	h.Set(HeaderReset, strconv.FormatInt(d.Limit.ResetAt.Unix(), 10))

	if d.State == RejectedRateLimited {
		secs := int64(d.Limit.RetryAfter(now) / time.Second)
		if secs < 1 {
			secs = 1
		}
		h.Set(HeaderRetryAfter, strconv.FormatInt(secs, 10))
	}
}

// Info is the rate limit block of JSON bodies.
type Info struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

func (d Decision) Info() Info {
	return Info{
		Limit:     d.Limit.Ceiling,
		Remaining: d.Limit.Remaining(),
		ResetAt:   d.Limit.ResetAt.UTC(),
	}
}
