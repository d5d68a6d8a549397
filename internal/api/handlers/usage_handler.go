package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	apiContext "glucolog/internal/api/context"
	"glucolog/internal/engine/usage"
	"glucolog/internal/pkg/errors"
	"glucolog/internal/platform/auth"
)

const defaultUsageDays = 7

type UsageHandler struct {
	service *usage.Service
}

func NewUsageHandler(service *usage.Service) *UsageHandler {
	return &UsageHandler{service: service}
}

func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	days := defaultUsageDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "days must be an integer", nil)
			return
		}
		days = n
	}

	report, err := h.service.Report(r.Context(), claims.UserID, days)
	if err != nil {
		log.Error().Err(err).Str("principal_id", claims.UserID).Msg("usage query failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Internal server error", nil)
		return
	}

	errors.WriteJSON(w, http.StatusOK, report)
}
