package booking_api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

type TicketRenderer interface {
	Ticket(b *models.Booking) ([]byte, error)
}

type EventLookup interface {
	GetEvent(ctx context.Context, eventID int64) (*models.Event, error)
}

type Handler struct {
	BookingService *booking.Service
	Events         EventLookup
	Tickets        TicketRenderer
	Stream         *SSEHandler
	Logger         *logger.Logger
}

// RegisterRoutes mounts the booking routes; all of them need an
// authenticated caller.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/bookings", h.SubmitBooking)
	r.Get("/bookings/{bookingID}", h.GetBooking)
	r.Get("/bookings/{bookingID}/ticket", h.GetTicket)
	r.Get("/bookings/user/{userID}", h.ListUserBookings)
}

// RegisterStreamRoutes mounts the long-lived SSE route. It must not sit
// behind a request timeout.
func (h *Handler) RegisterStreamRoutes(r chi.Router) {
	if h.Stream != nil {
		r.Get("/events/{eventID}/bookings/stream", h.Stream.HandleEventBookings)
	}
}

func (h *Handler) SubmitBooking(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		utils.WriteError(w, fmt.Errorf("%w: missing credentials", models.ErrUnauthorized))
		return
	}

	var req models.BookingRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("SubmitBooking: invalid request from user %d: %v", caller.UserID, err))
		utils.WriteError(w, err)
		return
	}
	req.UserID = caller.UserID

	b, err := h.BookingService.SubmitBooking(r.Context(), req)
	if err != nil {
		if status := utils.WriteError(w, err); status >= http.StatusInternalServerError {
			h.Logger.Error("API", fmt.Sprintf("SubmitBooking: event=%d user=%d: %v", req.EventID, req.UserID, err))
		}
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Booking created successfully", b))
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadBooking(w, r)
	if !ok {
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking retrieved", b))
}

func (h *Handler) ListUserBookings(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.ParseID(chi.URLParam(r, "userID"), "userId")
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	caller, _ := auth.PrincipalFrom(r.Context())

	bookings, err := h.BookingService.ListUserBookings(r.Context(), userID, caller)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Bookings retrieved", bookings))
}

// GetTicket renders the booking's QR ticket as PNG.
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadBooking(w, r)
	if !ok {
		return
	}
	if h.Tickets == nil {
		utils.WriteError(w, fmt.Errorf("%w: tickets are not configured", models.ErrStoreUnavailable))
		return
	}

	png, err := h.Tickets.Ticket(b)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetTicket: booking %d: %v", b.ID, err))
		utils.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="ticket-%d.png"`, b.ID))
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *Handler) loadBooking(w http.ResponseWriter, r *http.Request) (*models.Booking, bool) {
	id, err := utils.ParseID(chi.URLParam(r, "bookingID"), "bookingId")
	if err != nil {
		utils.WriteError(w, err)
		return nil, false
	}
	caller, _ := auth.PrincipalFrom(r.Context())

	b, err := h.BookingService.GetBooking(r.Context(), id, caller)
	if err != nil {
		utils.WriteError(w, err)
		return nil, false
	}
	return b, true
}
