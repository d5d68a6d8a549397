package handlers

import (
	"net/http"

	apiContext "glucolog/internal/api/context"
	"glucolog/internal/engine/admission"
	"glucolog/internal/engine/tiers"
	"glucolog/internal/pkg/errors"
)

// QuotaHandler reports the caller's own admission decision.
type QuotaHandler struct {
	catalog *tiers.Catalog
}

func NewQuotaHandler(catalog *tiers.Catalog) *QuotaHandler {
	return &QuotaHandler{catalog: catalog}
}

func (h *QuotaHandler) Get(w http.ResponseWriter, r *http.Request) {
	d := r.Context().Value(apiContext.Decision).(admission.Decision)

	tier, _ := h.catalog.Get(d.Tier)
	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"principal_id":      d.PrincipalID,
		"credential_id":     d.CredentialID,
		"credential_kind":   d.Kind.String(),
		"tier":              d.Tier,
		"requests_per_hour": tier.RequestsPerHour,
		"max_credentials":   tier.MaxCredentials,
		"rate_limit":        d.Info(),
	})
}
