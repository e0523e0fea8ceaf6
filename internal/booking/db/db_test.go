package db_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-booking/internal/booking/db"
	"ms-booking/internal/database/dbtest"
	"ms-booking/internal/models"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	bunDB := dbtest.NewSQLite(t)
	return &db.DB{Bun: bunDB}, bunDB
}

func countBookings(t *testing.T, bunDB *bun.DB, eventID int64) int {
	n, err := bunDB.NewSelect().Model((*models.Booking)(nil)).Where("event_id = ?", eventID).Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestAdmitCommitsBookingAndCounter(t *testing.T) {
	store, bunDB := setupTestDB(t)
	ctx := context.Background()
	user := dbtest.SeedUser(t, bunDB, "asha@example.com", models.RoleAttendee)
	event := dbtest.SeedEvent(t, bunDB, user.ID, "1500.00", 10)

	admitted, err := store.Admit(ctx, db.Admission{EventID: event.ID, UserID: user.ID, Seats: 3, Status: models.PaymentPaid})
	require.NoError(t, err)

	assert.NotZero(t, admitted.Booking.ID)
	assert.True(t, admitted.Booking.Amount.Equal(decimal.RequireFromString("4500.00")))
	assert.Equal(t, models.PaymentPaid, admitted.Booking.PaymentStatus)
	assert.Equal(t, 7, admitted.Capacity.RemainingSeats)

	stored, err := store.GetBookingByID(ctx, admitted.Booking.ID)
	require.NoError(t, err)
	assert.True(t, stored.Amount.Equal(decimal.RequireFromString("4500")), "stored amount %s", stored.Amount)
	require.NotNil(t, stored.Event)
	assert.Equal(t, event.ID, stored.Event.ID)
}

func TestAdmitExactAccounting(t *testing.T) {
	store, bunDB := setupTestDB(t)
	ctx := context.Background()
	user := dbtest.SeedUser(t, bunDB, "ravi@example.com", models.RoleAttendee)
	event := dbtest.SeedEvent(t, bunDB, user.ID, "250.00", 10)

	_, err := store.Admit(ctx, db.Admission{EventID: event.ID, UserID: user.ID, Seats: 2, Status: models.PaymentPaid})
	require.NoError(t, err)

	capacity, err := store.Capacity(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, capacity.RemainingSeats)

	_, err = store.Admit(ctx, db.Admission{EventID: event.ID, UserID: user.ID, Seats: 9, Status: models.PaymentPaid})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrCapacityExceeded))
	remaining, ok := models.RemainingSeats(err)
	require.True(t, ok)
	assert.Equal(t, 8, remaining)

	assert.Equal(t, 1, countBookings(t, bunDB, event.ID))
}

func TestAdmitUnknownEvent(t *testing.T) {
	store, bunDB := setupTestDB(t)
	user := dbtest.SeedUser(t, bunDB, "nia@example.com", models.RoleAttendee)

	_, err := store.Admit(context.Background(), db.Admission{EventID: 999999, UserID: user.ID, Seats: 1, Status: models.PaymentPaid})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAdmitRejectsAmountBeyondMoneyColumn(t *testing.T) {
	store, bunDB := setupTestDB(t)
	ctx := context.Background()
	user := dbtest.SeedUser(t, bunDB, "whale@example.com", models.RoleAttendee)
	event := dbtest.SeedEvent(t, bunDB, user.ID, "9999999999.99", 10)

	_, err := store.Admit(ctx, db.Admission{EventID: event.ID, UserID: user.ID, Seats: 2, Status: models.PaymentPaid})
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
	assert.Equal(t, 0, countBookings(t, bunDB, event.ID))

	capacity, err := store.Capacity(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, capacity.RemainingSeats)

	_, err = store.Admit(ctx, db.Admission{EventID: event.ID, UserID: user.ID, Seats: 1, Status: models.PaymentPaid})
	require.NoError(t, err)
}

func TestAdmitFillsEventExactly(t *testing.T) {
	store, bunDB := setupTestDB(t)
	ctx := context.Background()
	user := dbtest.SeedUser(t, bunDB, "lee@example.com", models.RoleAttendee)
	event := dbtest.SeedEvent(t, bunDB, user.ID, "10.00", 5)

	admitted, err := store.Admit(ctx, db.Admission{EventID: event.ID, UserID: user.ID, Seats: 5, Status: models.PaymentPaid})
	require.NoError(t, err)
	assert.Equal(t, 0, admitted.Capacity.RemainingSeats)

	_, err = store.Admit(ctx, db.Admission{EventID: event.ID, UserID: user.ID, Seats: 1, Status: models.PaymentPaid})
	remaining, ok := models.RemainingSeats(err)
	require.True(t, ok)
	assert.Equal(t, 0, remaining)
}

func TestAdmitConcurrentNeverOversells(t *testing.T) {
	store, bunDB := setupTestDB(t)
	ctx := context.Background()
	user := dbtest.SeedUser(t, bunDB, "crowd@example.com", models.RoleAttendee)
	event := dbtest.SeedEvent(t, bunDB, user.ID, "99.99", 20)

	const workers = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
		rejected  int
		other     []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(seats int) {
			defer wg.Done()
			admitted, err := store.Admit(ctx, db.Admission{EventID: event.ID, UserID: user.ID, Seats: seats, Status: models.PaymentPaid})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				committed += admitted.Booking.Seats
			case errors.Is(err, models.ErrCapacityExceeded):
				rejected++
			default:
				other = append(other, err)
			}
		}(i%3 + 1)
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.LessOrEqual(t, committed, 20)
	assert.NotZero(t, rejected)

	ledger, err := store.SumSeatsForEvent(ctx, event.ID)
	require.NoError(t, err)
	capacity, err := store.Capacity(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, committed, ledger)
	assert.Equal(t, ledger, capacity.BookedSeats)
	assert.GreaterOrEqual(t, capacity.RemainingSeats, 0)
}

func TestAdmitRaceThreeAndFourOnFiveSeats(t *testing.T) {
	store, bunDB := setupTestDB(t)
	ctx := context.Background()
	user := dbtest.SeedUser(t, bunDB, "race@example.com", models.RoleAttendee)
	event := dbtest.SeedEvent(t, bunDB, user.ID, "20.00", 5)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, seats := range []int{3, 4} {
		wg.Add(1)
		go func(i, seats int) {
			defer wg.Done()
			_, results[i] = store.Admit(ctx, db.Admission{EventID: event.ID, UserID: user.ID, Seats: seats, Status: models.PaymentPaid})
		}(i, seats)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, models.ErrCapacityExceeded)
	}
	assert.Equal(t, 1, succeeded)

	ledger, err := store.SumSeatsForEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, ledger, 5)
}

func TestAdmitCancelledContextPersistsNothing(t *testing.T) {
	store, bunDB := setupTestDB(t)
	user := dbtest.SeedUser(t, bunDB, "late@example.com", models.RoleAttendee)
	event := dbtest.SeedEvent(t, bunDB, user.ID, "5.00", 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Admit(ctx, db.Admission{EventID: event.ID, UserID: user.ID, Seats: 1, Status: models.PaymentPaid})
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.Equal(t, 0, countBookings(t, bunDB, event.ID))
}

func TestListBookingsByUserNewestFirst(t *testing.T) {
	store, bunDB := setupTestDB(t)
	ctx := context.Background()
	user := dbtest.SeedUser(t, bunDB, "fan@example.com", models.RoleAttendee)
	other := dbtest.SeedUser(t, bunDB, "other@example.com", models.RoleAttendee)
	event := dbtest.SeedEvent(t, bunDB, user.ID, "12.50", 10)

	first, err := store.Admit(ctx, db.Admission{EventID: event.ID, UserID: user.ID, Seats: 1, Status: models.PaymentPaid})
	require.NoError(t, err)
	second, err := store.Admit(ctx, db.Admission{EventID: event.ID, UserID: user.ID, Seats: 2, Status: models.PaymentPending})
	require.NoError(t, err)
	_, err = store.Admit(ctx, db.Admission{EventID: event.ID, UserID: other.ID, Seats: 1, Status: models.PaymentPaid})
	require.NoError(t, err)

	bookings, err := store.ListBookingsByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, second.Booking.ID, bookings[0].ID)
	assert.Equal(t, first.Booking.ID, bookings[1].ID)
	assert.Equal(t, models.PaymentPending, bookings[0].PaymentStatus)
	require.NotNil(t, bookings[0].Event)
	assert.Equal(t, 6, bookings[0].Event.RemainingSeats)
}

func TestGetBookingByIDNotFound(t *testing.T) {
	store, _ := setupTestDB(t)
	_, err := store.GetBookingByID(context.Background(), 404)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
