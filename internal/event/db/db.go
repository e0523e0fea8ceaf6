package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-booking/internal/database"
	"ms-booking/internal/models"
)

const DefaultLimit = 12

type DB struct {
	Bun *bun.DB
}

// EventUpdate holds the columns to change; nil fields are left untouched.
// Sessions, when non-nil, replace the existing sessions.
type EventUpdate struct {
	Title       *string
	Description *string
	Date        *time.Time
	Location    *string
	ImageURL    *string
	Price       *decimal.Decimal
	TotalSeats  *int
	Sessions    []*models.EventSession
}

// CreateEvent inserts the event and its sessions in one transaction.
func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	now := time.Now().UTC()
	event.BookedSeats = 0
	event.CreatedAt = now
	event.UpdatedAt = now

	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(event).Exec(ctx); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		return insertSessions(ctx, tx, event.ID, event.Sessions)
	})
	if err != nil {
		return database.Classify(err)
	}
	event.FillRemaining()
	return nil
}

func (d *DB) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	event := new(models.Event)
	err := d.Bun.NewSelect().
		Model(event).
		Relation("Sessions", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("es.start_time ASC")
		}).
		Where("e.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("event %d", id)
	}
	if err != nil {
		return nil, database.Classify(fmt.Errorf("get event %d: %w", id, err))
	}
	event.FillRemaining()
	return event, nil
}

// ListEvents pages through the catalog, soonest first.
func (d *DB) ListEvents(ctx context.Context, f models.EventFilter) (*models.EventPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}

	filter := func(q *bun.SelectQuery) *bun.SelectQuery {
		if s := strings.TrimSpace(f.Search); s != "" {
			pattern := "%" + strings.ToLower(s) + "%"
			q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Where("LOWER(e.title) LIKE ?", pattern).
					WhereOr("LOWER(e.description) LIKE ?", pattern)
			})
		}
		if l := strings.TrimSpace(f.Location); l != "" {
			q = q.Where("LOWER(e.location) LIKE ?", "%"+strings.ToLower(l)+"%")
		}
		if f.OrganizerID > 0 {
			q = q.Where("e.organizer_id = ?", f.OrganizerID)
		}
		return q
	}

	total, err := d.Bun.NewSelect().Model((*models.Event)(nil)).Apply(filter).Count(ctx)
	if err != nil {
		return nil, database.Classify(fmt.Errorf("count events: %w", err))
	}

	events := make([]models.Event, 0, f.Limit)
	err = d.Bun.NewSelect().
		Model(&events).
		Apply(filter).
		Order("e.date ASC", "e.id ASC").
		Limit(f.Limit).
		Offset((f.Page - 1) * f.Limit).
		Scan(ctx)
	if err != nil {
		return nil, database.Classify(fmt.Errorf("list events: %w", err))
	}
	for i := range events {
		events[i].FillRemaining()
	}

	return &models.EventPage{
		Events:     events,
		Total:      total,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: (total + f.Limit - 1) / f.Limit,
	}, nil
}

// UpdateEvent applies the update under a guard on booked_seats, so a shrink of
// total_seats below the seats already sold is rejected even while admissions
// are running.
func (d *DB) UpdateEvent(ctx context.Context, id int64, u EventUpdate) (*models.Event, error) {
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().
			Model((*models.Event)(nil)).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", id)

		if u.Title != nil {
			q = q.Set("title = ?", *u.Title)
		}
		if u.Description != nil {
			q = q.Set("description = ?", *u.Description)
		}
		if u.Date != nil {
			q = q.Set("date = ?", *u.Date)
		}
		if u.Location != nil {
			q = q.Set("location = ?", *u.Location)
		}
		if u.ImageURL != nil {
			q = q.Set("image_url = ?", *u.ImageURL)
		}
		if u.Price != nil {
			q = q.Set("price = ?", *u.Price)
		}
		if u.TotalSeats != nil {
			q = q.Set("total_seats = ?", *u.TotalSeats).
				Where("booked_seats <= ?", *u.TotalSeats)
		}

		res, err := q.Exec(ctx)
		if err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		if n == 0 {
			current := new(models.Event)
			err := tx.NewSelect().Model(current).Column("id", "booked_seats").Where("e.id = ?", id).Limit(1).Scan(ctx)
			if errors.Is(err, sql.ErrNoRows) {
				return models.NotFoundf("event %d", id)
			}
			if err != nil {
				return fmt.Errorf("read event: %w", err)
			}
			return models.Invalidf("total_seats %d is below the %d seats already booked", *u.TotalSeats, current.BookedSeats)
		}

		if u.Sessions != nil {
			if _, err := tx.NewDelete().Model((*models.EventSession)(nil)).Where("event_id = ?", id).Exec(ctx); err != nil {
				return fmt.Errorf("replace sessions: %w", err)
			}
			if err := insertSessions(ctx, tx, id, u.Sessions); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, database.Classify(err)
	}
	return d.GetEvent(ctx, id)
}

// DeleteEvent removes the event with its bookings and sessions.
func (d *DB) DeleteEvent(ctx context.Context, id int64) error {
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*models.Booking)(nil)).Where("event_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete bookings: %w", err)
		}
		if _, err := tx.NewDelete().Model((*models.EventSession)(nil)).Where("event_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		res, err := tx.NewDelete().Model((*models.Event)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return models.NotFoundf("event %d", id)
		}
		return nil
	})
	return database.Classify(err)
}

func insertSessions(ctx context.Context, tx bun.Tx, eventID int64, sessions []*models.EventSession) error {
	if len(sessions) == 0 {
		return nil
	}
	for _, s := range sessions {
		s.ID = 0
		s.EventID = eventID
	}
	if _, err := tx.NewInsert().Model(&sessions).Exec(ctx); err != nil {
		return fmt.Errorf("insert sessions: %w", err)
	}
	return nil
}
