package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-booking/internal/database"
	"ms-booking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// EventLedger is one event's counter next to the sums of its booking rows.
type EventLedger struct {
	ID          int64  `bun:"id"`
	Title       string `bun:"title"`
	TotalSeats  int    `bun:"total_seats"`
	BookedSeats int    `bun:"booked_seats"`
	Bookings    int    `bun:"bookings"`
	LedgerSeats int    `bun:"ledger_seats"`
}

type PaidBooking struct {
	Amount    decimal.Decimal `bun:"amount"`
	CreatedAt time.Time       `bun:"created_at"`
}

func (d *DB) Count(ctx context.Context, model interface{}) (int, error) {
	n, err := d.Bun.NewSelect().Model(model).Count(ctx)
	if err != nil {
		return 0, database.Classify(fmt.Errorf("count %T: %w", model, err))
	}
	return n, nil
}

// EventLedgers returns every event with its booking count and seat sum.
func (d *DB) EventLedgers(ctx context.Context) ([]EventLedger, error) {
	sums := d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		ColumnExpr("b.event_id").
		ColumnExpr("COUNT(*) AS bookings").
		ColumnExpr("SUM(b.seats) AS seats").
		Group("b.event_id")

	var out []EventLedger
	err := d.Bun.NewSelect().
		Model((*models.Event)(nil)).
		ColumnExpr("e.id, e.title, e.total_seats, e.booked_seats").
		ColumnExpr("COALESCE(s.bookings, 0) AS bookings").
		ColumnExpr("COALESCE(s.seats, 0) AS ledger_seats").
		Join("LEFT JOIN (?) AS s ON s.event_id = e.id", sums).
		Order("e.id ASC").
		Scan(ctx, &out)
	if err != nil {
		return nil, database.Classify(fmt.Errorf("event ledgers: %w", err))
	}
	return out, nil
}

// PaidBookings streams the amounts of paid bookings so they can be summed
// exactly regardless of how the driver returns numeric aggregates.
func (d *DB) PaidBookings(ctx context.Context) ([]PaidBooking, error) {
	var out []PaidBooking
	err := d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		ColumnExpr("b.amount, b.created_at").
		Where("b.payment_status = ?", models.PaymentPaid).
		Scan(ctx, &out)
	if err != nil {
		return nil, database.Classify(fmt.Errorf("paid bookings: %w", err))
	}
	return out, nil
}

func (d *DB) RecentBookings(ctx context.Context, limit int) ([]models.Booking, error) {
	var out []models.Booking
	err := d.Bun.NewSelect().
		Model(&out).
		Relation("Event", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Column("id", "title", "date")
		}).
		Relation("User", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Column("id", "name", "email")
		}).
		Order("b.created_at DESC", "b.id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, database.Classify(fmt.Errorf("recent bookings: %w", err))
	}
	return out, nil
}
