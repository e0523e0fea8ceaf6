package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-booking/internal/models"
)

// BookingUpdate is what event dashboards receive for each admitted booking.
type BookingUpdate struct {
	BookingID      int64     `json:"booking_id"`
	EventID        int64     `json:"event_id"`
	Seats          int       `json:"seats"`
	RemainingSeats int       `json:"remaining_seats"`
	CreatedAt      time.Time `json:"created_at"`
}

// BookingEmitter fans booking updates out to SSE clients subscribed per event.
type BookingEmitter struct {
	mu      sync.RWMutex
	clients map[int64][]chan BookingUpdate
	buffer  int
}

func NewBookingEmitter() *BookingEmitter {
	return &BookingEmitter{
		clients: make(map[int64][]chan BookingUpdate),
		buffer:  16,
	}
}

// Subscribe registers a client for eventID until ctx is done; the channel is
// closed on unsubscribe.
func (e *BookingEmitter) Subscribe(ctx context.Context, eventID int64) <-chan BookingUpdate {
	ch := make(chan BookingUpdate, e.buffer)

	e.mu.Lock()
	e.clients[eventID] = append(e.clients[eventID], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(eventID, ch)
	}()
	return ch
}

// Emit delivers u without blocking; slow clients miss updates.
func (e *BookingEmitter) Emit(u BookingUpdate) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ch := range e.clients[u.EventID] {
		select {
		case ch <- u:
		default:
		}
	}
}

// EmitBooking adapts a committed booking for Emit.
func (e *BookingEmitter) EmitBooking(b models.Booking, capacity models.Capacity) {
	e.Emit(BookingUpdate{
		BookingID:      b.ID,
		EventID:        b.EventID,
		Seats:          b.Seats,
		RemainingSeats: capacity.RemainingSeats,
		CreatedAt:      b.CreatedAt,
	})
}

// HandleKafkaMessage emits booking.created messages published by any
// instance, so dashboards connected anywhere see every booking.
func (e *BookingEmitter) HandleKafkaMessage(_ context.Context, msg kafka.Message) error {
	var created models.BookingCreatedMessage
	if err := json.Unmarshal(msg.Value, &created); err != nil {
		return fmt.Errorf("decode booking message: %w", err)
	}
	e.Emit(BookingUpdate{
		BookingID:      created.BookingID,
		EventID:        created.EventID,
		Seats:          created.Seats,
		RemainingSeats: created.Remaining,
		CreatedAt:      created.CreatedAt,
	})
	return nil
}

func (e *BookingEmitter) ClientCount(eventID int64) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[eventID])
}

func (e *BookingEmitter) remove(eventID int64, ch chan BookingUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[eventID]
	for i, c := range clients {
		if c == ch {
			e.clients[eventID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[eventID]) == 0 {
		delete(e.clients, eventID)
	}
}
