package event_api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/auth"
	"ms-booking/internal/event"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

type Handler struct {
	EventService *event.Service
	Logger       *logger.Logger
}

// RegisterPublicRoutes mounts the catalog reads.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/events", h.ListEvents)
	r.Get("/events/{eventID}", h.GetEvent)
	r.Get("/events/{eventID}/capacity", h.GetCapacity)
}

// RegisterRoutes mounts organizer routes; callers must be authenticated.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(auth.RequireRole(models.RoleAdmin)).Post("/events", h.CreateEvent)
	r.With(auth.RequireRole(models.RoleAdmin)).Get("/events/organizer/my-events", h.MyEvents)
	r.Put("/events/{eventID}", h.UpdateEvent)
	r.Delete("/events/{eventID}", h.DeleteEvent)
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.PrincipalFrom(r.Context())

	var req event.CreateEventRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}

	e, err := h.EventService.CreateEvent(r.Context(), req, caller)
	if err != nil {
		if status := utils.WriteError(w, err); status >= http.StatusInternalServerError {
			h.Logger.Error("API", fmt.Sprintf("CreateEvent: %v", err))
		}
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Event created successfully", e))
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	page, err := h.EventService.ListEvents(r.Context(), f)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Events retrieved", page))
}

func (h *Handler) MyEvents(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.PrincipalFrom(r.Context())
	f, err := parseFilter(r)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	page, err := h.EventService.ListOrganizerEvents(r.Context(), caller, f)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Events retrieved", page))
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ParseID(chi.URLParam(r, "eventID"), "eventId")
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	e, err := h.EventService.GetEvent(r.Context(), id)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event retrieved", e))
}

func (h *Handler) GetCapacity(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ParseID(chi.URLParam(r, "eventID"), "eventId")
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	c, err := h.EventService.Capacity(r.Context(), id)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Capacity retrieved", c))
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ParseID(chi.URLParam(r, "eventID"), "eventId")
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	caller, _ := auth.PrincipalFrom(r.Context())

	var req event.UpdateEventRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}

	e, err := h.EventService.UpdateEvent(r.Context(), id, req, caller)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event updated successfully", e))
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ParseID(chi.URLParam(r, "eventID"), "eventId")
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	caller, _ := auth.PrincipalFrom(r.Context())

	if err := h.EventService.DeleteEvent(r.Context(), id, caller); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event deleted successfully", nil))
}

func parseFilter(r *http.Request) (models.EventFilter, error) {
	q := r.URL.Query()
	f := models.EventFilter{
		Search:   q.Get("search"),
		Location: q.Get("location"),
	}
	var err error
	if f.Page, err = positiveInt(q.Get("page"), "page"); err != nil {
		return f, err
	}
	if f.Limit, err = positiveInt(q.Get("limit"), "limit"); err != nil {
		return f, err
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	return f, nil
}

func positiveInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, models.Invalidf("%s must be a positive integer", name)
	}
	return n, nil
}
