package booking_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/auth"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/sse"
	"ms-booking/internal/utils"
)

// SSEHandler streams admitted bookings of one event to its organizer.
type SSEHandler struct {
	Logger  *logger.Logger
	Emitter *sse.BookingEmitter
	Events  EventLookup
}

func NewSSEHandler(log *logger.Logger, emitter *sse.BookingEmitter, events EventLookup) *SSEHandler {
	return &SSEHandler{Logger: log, Emitter: emitter, Events: events}
}

func (h *SSEHandler) HandleEventBookings(w http.ResponseWriter, r *http.Request) {
	eventID, err := utils.ParseID(chi.URLParam(r, "eventID"), "eventId")
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	caller, _ := auth.PrincipalFrom(r.Context())

	event, err := h.Events.GetEvent(r.Context(), eventID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if !caller.CanAccess(event.OrganizerID) {
		h.Logger.LogSecurity("SSE_DENIED", fmt.Sprintf("user %d is not the organizer of event %d", caller.UserID, eventID))
		utils.WriteError(w, fmt.Errorf("%w: only the organizer can follow bookings of event %d", models.ErrForbidden, eventID))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteError(w, fmt.Errorf("streaming unsupported"))
		return
	}

	// the stream outlives the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	setupSSEHeaders(w)
	ctx := r.Context()
	updates := h.Emitter.Subscribe(ctx, eventID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"event_id\":%d,\"remaining_seats\":%d}\n\n",
		eventID, event.Remaining())
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Organizer %d following bookings of event %d", caller.UserID, eventID))

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(update)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize booking update: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: booking\ndata: %s\n\n", data)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client left booking stream of event %d", eventID))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
