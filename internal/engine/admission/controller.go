// Package admission decides, per request, whether a caller may reach a domain
// handler: it verifies the presented credential, charges the caller's fixed
// window for the endpoint and records usage once the handler is done.
package admission

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"glucolog/internal/engine/credentials"
	"glucolog/internal/engine/ratelimit"
	"glucolog/internal/engine/tiers"
	"glucolog/internal/platform/models"
)

const (
	CodeUnauthorized      = "unauthorized"
	CodeInvalidCredential = "invalid_credential"
	CodeRateLimitExceeded = "rate_limit_exceeded"
)

type State int

const (
	Unauthenticated State = iota
	Authenticated
	Admitted
	Completed
	RejectedUnauthorized
	RejectedRateLimited
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Admitted:
		return "admitted"
	case Completed:
		return "completed"
	case RejectedUnauthorized:
		return "rejected_401"
	case RejectedRateLimited:
		return "rejected_429"
	default:
		return "unauthenticated"
	}
}

type KeyVerifier interface {
	Verify(ctx context.Context, presented string) (credentials.Identity, error)
}

type SessionVerifier interface {
	VerifySession(ctx context.Context, token string) (credentials.Identity, error)
}

type Recorder interface {
	Record(rec models.UsageRecord) bool
}

// Decision is the outcome of Admit. It is a value; handlers receive a copy.
type Decision struct {
	State        State
	Code         string
	Kind         Kind
	PrincipalID  string
	CredentialID string
	Tier         string
	Endpoint     string
	Limit        ratelimit.Result
	StartedAt    time.Time
}

func (d Decision) Admitted() bool {
	return d.State == Admitted || d.State == Completed
}

// Authenticated reports whether a credential resolved to a principal.
func (d Decision) Authenticated() bool {
	return d.PrincipalID != "" && (d.Kind == APIKey || d.Kind == Session)
}

// Status is the HTTP status a rejected decision maps to, 0 when admitted.
func (d Decision) Status() int {
	switch d.State {
	case RejectedUnauthorized:
		return 401
	case RejectedRateLimited:
		return 429
	default:
		return 0
	}
}

type Request struct {
	Credential Credential
	ClientAddr string
	Endpoint   string
	// RequireCredential rejects anonymous callers instead of charging the anonymous tier.
	RequireCredential bool
}

type Config struct {
	Keys     KeyVerifier
	Sessions SessionVerifier
	Counter  ratelimit.Counter
	Catalog  *tiers.Catalog
	Recorder Recorder
	// Window is the fixed-window length, used for reset hints when the counter is unavailable.
	Window time.Duration
	Now    func() time.Time
}

type Controller struct {
	keys     KeyVerifier
	sessions SessionVerifier
	counter  ratelimit.Counter
	catalog  *tiers.Catalog
	recorder Recorder
	window   time.Duration
	now      func() time.Time

	admitted     atomic.Int64
	unauthorized atomic.Int64
	limited      atomic.Int64
}

func NewController(cfg Config) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Catalog == nil {
		cfg.Catalog = tiers.Default()
	}
	if cfg.Window <= 0 {
		cfg.Window = ratelimit.DefaultWindow
	}
	return &Controller{
		keys:     cfg.Keys,
		sessions: cfg.Sessions,
		counter:  cfg.Counter,
		catalog:  cfg.Catalog,
		recorder: cfg.Recorder,
		window:   cfg.Window,
		now:      cfg.Now,
	}
}

func (c *Controller) Admit(ctx context.Context, req Request) Decision {
	d := Decision{
		State:     Unauthenticated,
		Kind:      req.Credential.Kind,
		Endpoint:  req.Endpoint,
		StartedAt: c.now(),
	}

	id, code := c.authenticate(ctx, req)
	if code != "" {
		return c.reject(ctx, d, req, code)
	}
	d.State = Authenticated
	d.PrincipalID = id.PrincipalID
	d.CredentialID = id.CredentialID
	d.Tier = id.Tier

	res, ok := c.charge(ctx, d.rateKey(req.ClientAddr), c.catalog.Ceiling(d.Tier, req.Endpoint))
	d.Limit = res
	if !ok {
		d.State = RejectedRateLimited
		d.Code = CodeRateLimitExceeded
		c.limited.Add(1)
		log.Debug().Str("principal_id", d.PrincipalID).Str("endpoint", d.Endpoint).Int("count", res.Count).
			Msg("request rate limited")
		return d
	}

	d.State = Admitted
	c.admitted.Add(1)
	return d
}

func (c *Controller) authenticate(ctx context.Context, req Request) (credentials.Identity, string) {
	cred := req.Credential
	switch cred.Kind {
	case None:
		if req.RequireCredential {
			return credentials.Identity{}, CodeUnauthorized
		}
		return credentials.Identity{PrincipalID: "ip:" + req.ClientAddr, Tier: tiers.Anonymous}, ""
	case APIKey:
		if c.keys == nil {
			return credentials.Identity{}, CodeInvalidCredential
		}
		id, err := c.keys.Verify(ctx, cred.Value)
		if err != nil {
			c.logVerifyFailure(err, cred.Kind)
			return credentials.Identity{}, CodeInvalidCredential
		}
		return id, ""
	case Session:
		if c.sessions == nil {
			return credentials.Identity{}, CodeInvalidCredential
		}
		id, err := c.sessions.VerifySession(ctx, cred.Value)
		if err != nil {
			c.logVerifyFailure(err, cred.Kind)
			return credentials.Identity{}, CodeInvalidCredential
		}
		return id, ""
	default:
		return credentials.Identity{}, CodeInvalidCredential
	}
}

func (c *Controller) logVerifyFailure(err error, kind Kind) {
	if errors.Is(err, credentials.ErrStoreUnavailable) {
		log.Error().Err(err).Str("kind", kind.String()).Msg("credential store unavailable, rejecting")
		return
	}
	log.Debug().Err(err).Str("kind", kind.String()).Msg("credential rejected")
}

// reject always answers 401. Failed attempts are counted under their own
// authfail key so they never spend the anonymous budget of the address; the
// result only feeds the rate limit headers.
func (c *Controller) reject(ctx context.Context, d Decision, req Request, code string) Decision {
	d.Tier = tiers.Anonymous
	d.Limit, _ = c.charge(ctx, ratelimit.Key{Principal: "authfail:" + req.ClientAddr, Endpoint: req.Endpoint},
		c.catalog.Ceiling(tiers.Anonymous, req.Endpoint))
	d.State = RejectedUnauthorized
	d.Code = code
	c.unauthorized.Add(1)
	return d
}

// charge returns the window state and whether the call fits in it. Without a
// working counter the call is admitted with a full budget that resets one
// window from now.
func (c *Controller) charge(ctx context.Context, key ratelimit.Key, ceiling int) (ratelimit.Result, bool) {
	if c.counter == nil {
		return c.unmetered(ceiling), true
	}
	res, err := c.counter.CheckAndIncrement(ctx, key, ceiling)
	if err != nil {
		log.Error().Err(err).Str("endpoint", key.Endpoint).Msg("rate limit counter failed, admitting")
		return c.unmetered(ceiling), true
	}
	return res, res.Allowed
}

func (c *Controller) unmetered(ceiling int) ratelimit.Result {
	return ratelimit.Result{Allowed: true, Ceiling: ceiling, ResetAt: c.now().Add(c.window)}
}

func (d Decision) rateKey(clientAddr string) ratelimit.Key {
	switch d.Kind {
	case APIKey:
		return ratelimit.Key{Principal: "key:" + d.CredentialID, Endpoint: d.Endpoint}
	case Session:
		return ratelimit.Key{Principal: "user:" + d.PrincipalID, Endpoint: d.Endpoint}
	default:
		return ratelimit.Key{Principal: "ip:" + clientAddr, Endpoint: d.Endpoint}
	}
}

// Complete hands the outcome of an authenticated request to the usage
// recorder. Anonymous traffic is not recorded.
func (c *Controller) Complete(d Decision, method string, status int) Decision {
	if d.State == Admitted {
		d.State = Completed
	}
	if c.recorder == nil || !d.Authenticated() {
		return d
	}
	c.recorder.Record(models.UsageRecord{
		PrincipalID:  d.PrincipalID,
		CredentialID: d.CredentialID,
		Endpoint:     d.Endpoint,
		Method:       method,
		StatusCode:   status,
		LatencyMs:    c.now().Sub(d.StartedAt).Milliseconds(),
		CreatedAt:    c.now().UnixMilli(),
	})
	return d
}

type Stats struct {
	Admitted     int64 `json:"admitted"`
	Unauthorized int64 `json:"unauthorized"`
	RateLimited  int64 `json:"rate_limited"`
}

func (c *Controller) Stats() Stats {
	return Stats{
		Admitted:     c.admitted.Load(),
		Unauthorized: c.unauthorized.Load(),
		RateLimited:  c.limited.Load(),
	}
}
