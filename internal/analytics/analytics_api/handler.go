package analytics_api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/analytics"
	"ms-booking/internal/auth"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

// RegisterRoutes mounts the admin dashboard.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(auth.RequireRole(models.RoleAdmin)).Get("/analytics", h.GetAnalytics)
}

func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	d, err := h.Service.Dashboard(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetAnalytics: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Analytics retrieved", d))
}
