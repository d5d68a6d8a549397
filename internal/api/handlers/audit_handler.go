package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"
	apiContext "glucolog/internal/api/context"
	"glucolog/internal/pkg/errors"
	"glucolog/internal/platform/auth"
	"glucolog/internal/platform/repositories"
)

type AuditHandler struct {
	repo *repositories.AuditRepository
}

func NewAuditHandler(repo *repositories.AuditRepository) *AuditHandler {
	return &AuditHandler{repo: repo}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	logs, err := h.repo.ListByPrincipal(r.Context(), claims.UserID, 100)
	if err != nil {
		log.Error().Err(err).Str("principal_id", claims.UserID).Msg("audit query failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Internal server error", nil)
		return
	}

	errors.WriteJSON(w, http.StatusOK, logs)
}
