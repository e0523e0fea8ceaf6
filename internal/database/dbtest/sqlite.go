// Package dbtest builds in-memory SQLite databases with the service schema
// for store and handler tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-booking/internal/models"
)

var dbSeq atomic.Int64

// Tables lists the models in creation order.
var Tables = []interface{}{
	(*models.User)(nil),
	(*models.Event)(nil),
	(*models.EventSession)(nil),
	(*models.Booking)(nil),
}

// NewSQLite opens a private in-memory database with every table created. The
// pool is capped at one connection so every goroutine sees the same database
// and transactions serialise the way row locks would on Postgres.
func NewSQLite(t testing.TB) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:booking_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	for _, m := range Tables {
		if _, err := bunDB.NewCreateTable().Model(m).IfNotExists().Exec(context.Background()); err != nil {
			t.Fatalf("Failed to create table for %T: %v", m, err)
		}
	}

	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

// SeedUser inserts a user with the given role.
func SeedUser(t testing.TB, db *bun.DB, email string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{
		Name:         email,
		Email:        email,
		PasswordHash: "x",
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := db.NewInsert().Model(u).Exec(context.Background()); err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}
	return u
}

// SeedEvent inserts an event owned by organizerID.
func SeedEvent(t testing.TB, db *bun.DB, organizerID int64, price string, totalSeats int) *models.Event {
	t.Helper()
	now := time.Now().UTC()
	e := &models.Event{
		OrganizerID: organizerID,
		Title:       "Launch Night",
		Description: "Product launch",
		Date:        now.Add(30 * 24 * time.Hour),
		Location:    "Pune",
		Price:       decimal.RequireFromString(price),
		TotalSeats:  totalSeats,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := db.NewInsert().Model(e).Exec(context.Background()); err != nil {
		t.Fatalf("Failed to seed event: %v", err)
	}
	return e
}
