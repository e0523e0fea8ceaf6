package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPending PaymentStatus = "pending"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentPaid || s == PaymentPending
}

type Booking struct {
	bun.BaseModel `bun:"table:bookings,alias:b"`

	ID            int64           `bun:"id,pk,autoincrement" json:"id"`
	EventID       int64           `bun:"event_id,notnull" json:"event_id"`
	UserID        int64           `bun:"user_id,notnull" json:"user_id"`
	Seats         int             `bun:"seats,notnull" json:"seats"`
	Amount        decimal.Decimal `bun:"amount,type:numeric(12,2),notnull" json:"amount"`
	PaymentStatus PaymentStatus   `bun:"payment_status,notnull" json:"payment_status"`
	CreatedAt     time.Time       `bun:"created_at,notnull" json:"created_at"`

	Event *Event `bun:"rel:belongs-to,join:event_id=id" json:"event,omitempty"`
	User  *User  `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
}

// BookingRequest is the validated admission input.
type BookingRequest struct {
	EventID int64 `json:"event_id" validate:"required,gt=0"`
	UserID  int64 `json:"-"`
	Seats   int   `json:"seats" validate:"required,gt=0"`
}

// BookingCreatedMessage is published after a booking commits.
type BookingCreatedMessage struct {
	MessageID     string          `json:"message_id"`
	BookingID     int64           `json:"booking_id"`
	EventID       int64           `json:"event_id"`
	UserID        int64           `json:"user_id"`
	Seats         int             `json:"seats"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Remaining     int             `json:"remaining_seats"`
	CreatedAt     time.Time       `json:"created_at"`
}

// MaxAmount is the largest value a numeric(12,2) money column holds.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// BookingAmount is the immutable charge for seats at the given unit price.
func BookingAmount(price decimal.Decimal, seats int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(seats)))
}
