package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	apiContext "glucolog/internal/api/context"
	"glucolog/internal/engine/credentials"
	"glucolog/internal/engine/tiers"
	"glucolog/internal/pkg/errors"
	"glucolog/internal/platform/audit"
	"glucolog/internal/platform/auth"
	"glucolog/internal/platform/models"
)

const maxExpiresInDays = 365

type APIKeyHandler struct {
	service     *credentials.Service
	catalog     *tiers.Catalog
	audit       *audit.Logger
	defaultTier string
	now         func() time.Time
}

func NewAPIKeyHandler(service *credentials.Service, catalog *tiers.Catalog, auditLogger *audit.Logger, defaultTier string) *APIKeyHandler {
	return &APIKeyHandler{service: service, catalog: catalog, audit: auditLogger, defaultTier: defaultTier, now: time.Now}
}

type apiKeyResponse struct {
	*models.APICredential
	Status string `json:"status"`
}

func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	var req struct {
		Name          string `json:"name"`
		Tier          string `json:"tier"`
		ExpiresInDays int    `json:"expires_in_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	tier := h.tierOf(claims)
	if req.Tier != "" && req.Tier != tier {
		errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Keys are issued on the account's tier", nil)
		return
	}
	if req.ExpiresInDays < 0 || req.ExpiresInDays > maxExpiresInDays {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "expires_in_days must be between 0 and 365", nil)
		return
	}

	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		exp := h.now().Add(time.Duration(req.ExpiresInDays) * 24 * time.Hour)
		expiresAt = &exp
	}

	issued, err := h.service.Create(r.Context(), claims.UserID, req.Name, tier, expiresAt)
	if err != nil {
		if stderrors.Is(err, credentials.ErrLimitExceeded) {
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeCreationLimitExceeded,
				"Maximum number of active API keys reached for this tier",
				map[string]interface{}{"tier": tier, "limit": h.catalog.MaxCredentials(tier)})
			return
		}
		h.writeServiceError(w, err)
		return
	}

	h.audit.Log(r, claims.UserID, audit.ActionKeyCreated, "api_key", issued.Credential.ID,
		map[string]interface{}{"name": issued.Credential.Name, "tier": tier})

	// the raw key is returned here and never again
	response := struct {
		apiKeyResponse
		Key string `json:"key"`
	}{
		apiKeyResponse: apiKeyResponse{APICredential: issued.Credential, Status: issued.Credential.Status(h.now())},
		Key:            issued.Secret,
	}
	errors.WriteJSON(w, http.StatusCreated, response)
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	keys, err := h.service.List(r.Context(), claims.UserID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	now := h.now()
	out := make([]apiKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, apiKeyResponse{APICredential: k, Status: k.Status(now)})
	}
	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"keys":  out,
		"limit": h.catalog.MaxCredentials(h.tierOf(claims)),
	})
}

func (h *APIKeyHandler) Rename(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	keyID := r.Context().Value(apiContext.Params).(httprouter.Params).ByName("key_id")

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if err := h.service.Rename(r.Context(), keyID, claims.UserID, req.Name); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.audit.Log(r, claims.UserID, audit.ActionKeyRenamed, "api_key", keyID, map[string]interface{}{"name": req.Name})
	errors.WriteJSON(w, http.StatusOK, map[string]string{"id": keyID, "name": req.Name})
}

func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	keyID := r.Context().Value(apiContext.Params).(httprouter.Params).ByName("key_id")

	if err := h.service.Revoke(r.Context(), keyID, claims.UserID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.audit.Log(r, claims.UserID, audit.ActionKeyRevoked, "api_key", keyID, nil)
	errors.WriteJSON(w, http.StatusOK, map[string]string{"id": keyID, "status": "revoked"})
}

func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	keyID := r.Context().Value(apiContext.Params).(httprouter.Params).ByName("key_id")

	if err := h.service.Delete(r.Context(), keyID, claims.UserID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.audit.Log(r, claims.UserID, audit.ActionKeyDeleted, "api_key", keyID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIKeyHandler) tierOf(claims *auth.Claims) string {
	if claims.Tier == "" {
		return h.defaultTier
	}
	return claims.Tier
}

func (h *APIKeyHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, credentials.ErrNotFound):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "API key not found", nil)
	case stderrors.Is(err, credentials.ErrInvalidName),
		stderrors.Is(err, credentials.ErrInvalidTier),
		stderrors.Is(err, credentials.ErrInvalidExpiry):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
	default:
		log.Error().Err(err).Msg("api key operation failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Internal server error", nil)
	}
}
