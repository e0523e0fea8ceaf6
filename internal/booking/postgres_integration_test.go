//go:build integration

package booking_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-booking/internal/booking"
	bookingdb "ms-booking/internal/booking/db"
	bookingredis "ms-booking/internal/booking/redis"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	userdb "ms-booking/internal/user/db"
)

func startPostgres(t *testing.T) *bun.DB {
	sqldb := startPostgresDB(t)
	runner := migrations.NewRunner(sqldb, "../../migrations", logger.Discard())
	require.NoError(t, runner.Up())
	require.NoError(t, runner.Close())

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

func startPostgresDB(t *testing.T) *sql.DB {
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "booking",
				"POSTGRES_PASSWORD": "booking",
				"POSTGRES_DB":       "eventease",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://booking:booking@%s:%s/eventease?sslmode=disable", host, port.Port())
	sqldb, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(20)
	return sqldb
}

func startRedis(t *testing.T) *redis.Client {
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestMigrationsLeavePoolOpen(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}
	sqldb := startPostgresDB(t)
	t.Cleanup(func() { sqldb.Close() })

	runner := migrations.NewRunner(sqldb, "../../migrations", logger.Discard())
	require.NoError(t, runner.Up())
	require.NoError(t, runner.Close())

	var tables int
	require.NoError(t, sqldb.QueryRow(
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_name IN ('users', 'events', 'event_sessions', 'bookings')`,
	).Scan(&tables))
	assert.Equal(t, 4, tables)

	again := migrations.NewRunner(sqldb, "../../migrations", logger.Discard())
	require.NoError(t, again.Up())
	version, dirty, err := again.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
	require.NoError(t, again.Close())

	require.NoError(t, sqldb.Ping())
}

func seedPostgres(t *testing.T, db *bun.DB, seats int) (*models.User, *models.Event) {
	ctx := context.Background()
	u := &models.User{Name: "Fan", Email: fmt.Sprintf("fan-%d@example.com", time.Now().UnixNano()), PasswordHash: "x", Role: models.RoleAttendee, CreatedAt: time.Now().UTC()}
	_, err := db.NewInsert().Model(u).Exec(ctx)
	require.NoError(t, err)

	now := time.Now().UTC()
	e := &models.Event{
		OrganizerID: u.ID, Title: "Stadium Show", Date: now.Add(time.Hour), Location: "Pune",
		Price: decimal.RequireFromString("1500.00"), TotalSeats: seats, CreatedAt: now, UpdatedAt: now,
	}
	_, err = db.NewInsert().Model(e).Exec(ctx)
	require.NoError(t, err)
	return u, e
}

func TestPostgresConcurrentAdmission(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}
	db := startPostgres(t)
	client := startRedis(t)

	for _, withLock := range []bool{false, true} {
		t.Run(fmt.Sprintf("lock=%v", withLock), func(t *testing.T) {
			u, e := seedPostgres(t, db, 40)
			store := &bookingdb.DB{Bun: db}
			svc := booking.NewService(store, &userdb.DB{Bun: db}, logger.Discard(), booking.Config{MaxAttempts: 5, Timeout: 10 * time.Second})
			if withLock {
				svc.Lock = bookingredis.NewRedis(client, logger.Discard(), 5*time.Second, 10*time.Second)
			}

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				admitted int
			)
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func(seats int) {
					defer wg.Done()
					b, err := svc.SubmitBooking(context.Background(), models.BookingRequest{EventID: e.ID, UserID: u.ID, Seats: seats})
					if err != nil {
						assert.True(t, errors.Is(err, models.ErrCapacityExceeded), "unexpected error: %v", err)
						return
					}
					mu.Lock()
					admitted += b.Seats
					mu.Unlock()
				}(i%3 + 1)
			}
			wg.Wait()

			assert.LessOrEqual(t, admitted, 40)
			ledger, err := store.SumSeatsForEvent(context.Background(), e.ID)
			require.NoError(t, err)
			capacity, err := store.Capacity(context.Background(), e.ID)
			require.NoError(t, err)
			assert.Equal(t, admitted, ledger)
			assert.Equal(t, ledger, capacity.BookedSeats)
		})
	}
}
