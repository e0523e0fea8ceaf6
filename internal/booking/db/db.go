package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-booking/internal/database"
	"ms-booking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// Admission is one request to reserve seats inside the admission transaction.
type Admission struct {
	EventID int64
	UserID  int64
	Seats   int
	Status  models.PaymentStatus
}

// Admitted is the committed booking plus the capacity observed right after it.
type Admitted struct {
	Booking  *models.Booking
	Capacity models.Capacity
}

func (d *DB) GetEvent(ctx context.Context, eventID int64) (*models.Event, error) {
	event := new(models.Event)
	err := d.Bun.NewSelect().
		Model(event).
		Where("e.id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("event %d", eventID)
	}
	if err != nil {
		return nil, database.Classify(fmt.Errorf("get event %d: %w", eventID, err))
	}
	event.FillRemaining()
	return event, nil
}

// Capacity reads the seat counter of one event.
func (d *DB) Capacity(ctx context.Context, eventID int64) (*models.Capacity, error) {
	return capacity(ctx, d.Bun, eventID)
}

// SumSeatsForEvent sums the booking ledger for an event. It must always agree
// with the event's booked_seats counter.
func (d *DB) SumSeatsForEvent(ctx context.Context, eventID int64) (int, error) {
	var total sql.NullInt64
	err := d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		ColumnExpr("SUM(b.seats)").
		Where("b.event_id = ?", eventID).
		Scan(ctx, &total)
	if err != nil {
		return 0, database.Classify(fmt.Errorf("sum seats for event %d: %w", eventID, err))
	}
	return int(total.Int64), nil
}

// Admit reserves seats for one booking. The event row counter is advanced with
// a conditional update guarded by total_seats and the booking row is inserted
// in the same transaction, so concurrent admissions for one event can never
// commit more seats than the event holds. Nothing is written when an error is
// returned.
func (d *DB) Admit(ctx context.Context, a Admission) (*Admitted, error) {
	var out *Admitted

	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		event := new(models.Event)
		err := tx.NewSelect().
			Model(event).
			Column("id", "price", "total_seats", "booked_seats").
			Where("e.id = ?", a.EventID).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return models.NotFoundf("event %d", a.EventID)
		}
		if err != nil {
			return fmt.Errorf("read event: %w", err)
		}

		if remaining := event.Remaining(); a.Seats > remaining {
			return &models.CapacityError{EventID: a.EventID, Requested: a.Seats, Remaining: remaining}
		}
		amount := models.BookingAmount(event.Price, a.Seats)
		if amount.GreaterThan(models.MaxAmount) {
			return models.Invalidf("booking amount %s exceeds the maximum of %s", amount.StringFixed(2), models.MaxAmount.StringFixed(2))
		}

		res, err := tx.NewUpdate().
			Model((*models.Event)(nil)).
			Set("booked_seats = booked_seats + ?", a.Seats).
			Where("id = ?", a.EventID).
			Where("booked_seats + ? <= total_seats", a.Seats).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("reserve seats: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reserve seats: %w", err)
		}
		if n == 0 {
			// Another admission committed between the read and the update.
			current, err := capacity(ctx, tx, a.EventID)
			if err != nil {
				return err
			}
			return &models.CapacityError{EventID: a.EventID, Requested: a.Seats, Remaining: current.RemainingSeats}
		}

		booking := &models.Booking{
			EventID:       a.EventID,
			UserID:        a.UserID,
			Seats:         a.Seats,
			Amount:        amount,
			PaymentStatus: a.Status,
			CreatedAt:     time.Now().UTC(),
		}
		if _, err := tx.NewInsert().Model(booking).Exec(ctx); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}

		after, err := capacity(ctx, tx, a.EventID)
		if err != nil {
			return err
		}
		out = &Admitted{Booking: booking, Capacity: *after}
		return nil
	})
	if err != nil {
		return nil, database.Classify(err)
	}
	return out, nil
}

func (d *DB) GetBookingByID(ctx context.Context, id int64) (*models.Booking, error) {
	booking := new(models.Booking)
	err := d.Bun.NewSelect().
		Model(booking).
		Relation("Event").
		Where("b.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("booking %d", id)
	}
	if err != nil {
		return nil, database.Classify(fmt.Errorf("get booking %d: %w", id, err))
	}
	if booking.Event != nil {
		booking.Event.FillRemaining()
	}
	return booking, nil
}

// ListBookingsByUser returns a user's bookings, newest first.
func (d *DB) ListBookingsByUser(ctx context.Context, userID int64) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Relation("Event").
		Where("b.user_id = ?", userID).
		Order("b.created_at DESC", "b.id DESC").
		Scan(ctx)
	if err != nil {
		return nil, database.Classify(fmt.Errorf("list bookings for user %d: %w", userID, err))
	}
	for i := range bookings {
		if bookings[i].Event != nil {
			bookings[i].Event.FillRemaining()
		}
	}
	return bookings, nil
}

func capacity(ctx context.Context, q bun.IDB, eventID int64) (*models.Capacity, error) {
	event := new(models.Event)
	err := q.NewSelect().
		Model(event).
		Column("id", "total_seats", "booked_seats").
		Where("e.id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("event %d", eventID)
	}
	if err != nil {
		return nil, database.Classify(fmt.Errorf("read capacity of event %d: %w", eventID, err))
	}
	return &models.Capacity{
		EventID:        event.ID,
		TotalSeats:     event.TotalSeats,
		BookedSeats:    event.BookedSeats,
		RemainingSeats: event.Remaining(),
	}, nil
}
