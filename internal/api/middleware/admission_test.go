package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apiContext "glucolog/internal/api/context"
	"glucolog/internal/engine/admission"
	"glucolog/internal/engine/credentials"
	"glucolog/internal/engine/ratelimit"
	"glucolog/internal/engine/tiers"
	"glucolog/internal/engine/usage"
	"glucolog/internal/pkg/errors"
	"glucolog/internal/platform/models"
)

const testKey = "glk_TESTtestTESTtestTESTtestTESTtestTESTtest"

type keyTable map[string]credentials.Identity

func (k keyTable) Verify(_ context.Context, presented string) (credentials.Identity, error) {
	id, ok := k[presented]
	if !ok {
		return credentials.Identity{}, credentials.ErrInvalidCredential
	}
	return id, nil
}

type recorded struct {
	mu   sync.Mutex
	recs []models.UsageRecord
}

func (r *recorded) Record(rec models.UsageRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return true
}

func (r *recorded) all() []models.UsageRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.UsageRecord(nil), r.recs...)
}

func newGuard(t *testing.T, catalog *tiers.Catalog) (*AdmissionMiddleware, *recorded) {
	t.Helper()
	rec := &recorded{}
	ctrl := admission.NewController(admission.Config{
		Keys:     keyTable{testKey: {PrincipalID: "usr_1", CredentialID: "key_1", Tier: tiers.Free}},
		Counter:  ratelimit.NewMemoryCounter(),
		Catalog:  catalog,
		Recorder: rec,
	})
	return NewAdmissionMiddleware(ctrl, false), rec
}

func ok(w http.ResponseWriter, r *http.Request) {
	errors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func TestGuard_AdmitsAndExposesDecision(t *testing.T) {
	m, rec := newGuard(t, nil)

	var seen admission.Decision
	h := m.Guard("/api/v1/readings")(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Context().Value(apiContext.Decision).(admission.Decision)
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/readings", nil)
	req.Header.Set(admission.HeaderAPIKey, testKey)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "100", w.Header().Get(admission.HeaderLimit))
	assert.Equal(t, "99", w.Header().Get(admission.HeaderRemaining))
	assert.NotEmpty(t, w.Header().Get(admission.HeaderReset))
	assert.Empty(t, w.Header().Get(admission.HeaderRetryAfter))

	assert.Equal(t, "usr_1", seen.PrincipalID)
	assert.Equal(t, tiers.Free, seen.Tier)

	recs := rec.all()
	require.Len(t, recs, 1)
	assert.Equal(t, http.StatusCreated, recs[0].StatusCode)
	assert.Equal(t, "key_1", recs[0].CredentialID)
	assert.Equal(t, http.MethodPost, recs[0].Method)
}

func TestGuard_InvalidCredential(t *testing.T) {
	m, rec := newGuard(t, nil)
	called := false
	h := m.Guard("/api/v1/readings")(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings", nil)
	req.Header.Set("Authorization", "Bearer glk_doesnotexist")
	w := httptest.NewRecorder()
	h(w, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body errors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, errors.ErrCodeInvalidCredential, body.Code)
	assert.Equal(t, "60", w.Header().Get(admission.HeaderLimit))
	assert.Empty(t, rec.all())
}

func TestAuthenticated_RejectsAnonymous(t *testing.T) {
	m, _ := newGuard(t, nil)
	h := m.Authenticated("/api/v1/quota")(ok)

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/api/v1/quota", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body errors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, errors.ErrCodeUnauthorized, body.Code)
}

func TestGuard_RateLimited(t *testing.T) {
	catalog, err := tiers.New([]tiers.Tier{
		{Name: tiers.Anonymous, RequestsPerHour: 5},
		{Name: tiers.Free, RequestsPerHour: 2, MaxCredentials: 2},
	})
	require.NoError(t, err)
	m, rec := newGuard(t, catalog)
	h := m.Guard("/api/v1/readings")(ok)

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/readings", nil)
		req.Header.Set(admission.HeaderAPIKey, testKey)
		w := httptest.NewRecorder()
		h(w, req)
		return w
	}

	require.Equal(t, http.StatusOK, do().Code)
	require.Equal(t, http.StatusOK, do().Code)
	w := do()

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get(admission.HeaderRemaining))
	assert.NotEmpty(t, w.Header().Get(admission.HeaderRetryAfter))

	var body errors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, errors.ErrCodeRateLimitExceeded, body.Code)
	details := body.Details.(map[string]interface{})
	assert.Equal(t, float64(2), details["limit"])

	recs := rec.all()
	require.Len(t, recs, 3)
	assert.Equal(t, http.StatusTooManyRequests, recs[2].StatusCode)
}

func TestGuard_ClientGoneRecordsAborted(t *testing.T) {
	m, rec := newGuard(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	h := m.Guard("/api/v1/exports")(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		<-r.Context().Done()
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exports", nil).WithContext(ctx)
	req.Header.Set(admission.HeaderAPIKey, testKey)
	h(httptest.NewRecorder(), req)

	recs := rec.all()
	require.Len(t, recs, 1)
	assert.Equal(t, usage.StatusAborted, recs[0].StatusCode)
}

func TestGuard_PanicRecordsServerError(t *testing.T) {
	m, rec := newGuard(t, nil)
	h := m.Guard("/api/v1/readings")(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings", nil)
	req.Header.Set(admission.HeaderAPIKey, testKey)
	assert.Panics(t, func() { h(httptest.NewRecorder(), req) })

	recs := rec.all()
	require.Len(t, recs, 1)
	assert.Equal(t, http.StatusInternalServerError, recs[0].StatusCode)
}

func TestGuard_ImplicitOK(t *testing.T) {
	m, rec := newGuard(t, nil)
	h := m.Guard("/api/v1/readings")(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings", nil)
	req.Header.Set(admission.HeaderAPIKey, testKey)
	h(httptest.NewRecorder(), req)

	require.Len(t, rec.all(), 1)
	assert.Equal(t, http.StatusOK, rec.all()[0].StatusCode)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:40000"
	req.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.1")

	assert.Equal(t, "10.0.0.5", ClientIP(req, false))
	assert.Equal(t, "198.51.100.9", ClientIP(req, true))

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "10.0.0.5", ClientIP(req, true))
}
