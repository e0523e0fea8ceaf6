package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID          int64           `bun:"id,pk,autoincrement" json:"id"`
	OrganizerID int64           `bun:"organizer_id,notnull" json:"organizer_id"`
	Title       string          `bun:"title,notnull" json:"title"`
	Description string          `bun:"description" json:"description"`
	Date        time.Time       `bun:"date,notnull" json:"date"`
	Location    string          `bun:"location,notnull" json:"location"`
	ImageURL    string          `bun:"image_url" json:"image_url,omitempty"`
	Price       decimal.Decimal `bun:"price,type:numeric(12,2),notnull" json:"price"`
	TotalSeats  int             `bun:"total_seats,notnull" json:"total_seats"`
	// BookedSeats is maintained only by the admission transaction.
	BookedSeats int       `bun:"booked_seats,notnull" json:"booked_seats"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,notnull" json:"updated_at"`

	RemainingSeats int             `bun:"-" json:"remaining_seats"`
	Organizer      *User           `bun:"rel:belongs-to,join:organizer_id=id" json:"organizer,omitempty"`
	Sessions       []*EventSession `bun:"rel:has-many,join:id=event_id" json:"sessions,omitempty"`
}

// Remaining returns the seats still available for admission.
func (e *Event) Remaining() int {
	return e.TotalSeats - e.BookedSeats
}

// FillRemaining sets the derived remaining_seats field for responses.
func (e *Event) FillRemaining() {
	e.RemainingSeats = e.Remaining()
}

type EventSession struct {
	bun.BaseModel `bun:"table:event_sessions,alias:es"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	EventID   int64     `bun:"event_id,notnull" json:"event_id"`
	Title     string    `bun:"title,notnull" json:"title"`
	StartTime time.Time `bun:"start_time,notnull" json:"start_time"`
	EndTime   time.Time `bun:"end_time,notnull" json:"end_time"`
}

// Capacity is the read view of an event's seat accounting.
type Capacity struct {
	EventID        int64 `json:"event_id"`
	TotalSeats     int   `json:"total_seats"`
	BookedSeats    int   `json:"booked_seats"`
	RemainingSeats int   `json:"remaining_seats"`
}

type EventFilter struct {
	Search      string
	Location    string
	OrganizerID int64
	Page        int
	Limit       int
}

type EventPage struct {
	Events     []Event `json:"events"`
	Total      int     `json:"total"`
	Page       int     `json:"page"`
	Limit      int     `json:"limit"`
	TotalPages int     `json:"total_pages"`
}

// EventChangedMessage is published when the catalog changes.
type EventChangedMessage struct {
	MessageID   string    `json:"message_id"`
	Type        string    `json:"type"`
	EventID     int64     `json:"event_id"`
	OrganizerID int64     `json:"organizer_id"`
	Title       string    `json:"title,omitempty"`
	Date        time.Time `json:"date,omitempty"`
	TotalSeats  int       `json:"total_seats"`
	BookedSeats int       `json:"booked_seats"`
	OccurredAt  time.Time `json:"occurred_at"`
}
