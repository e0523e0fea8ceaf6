package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"ms-booking/internal/database"
	"ms-booking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	_, err := d.Bun.NewInsert().Model(user).Exec(ctx)
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%w: user already exists", models.ErrConflict)
	}
	if err != nil {
		return database.Classify(fmt.Errorf("create user: %w", err))
	}
	return nil
}

func (d *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user := new(models.User)
	err := d.Bun.NewSelect().Model(user).Where("u.id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("user %d", id)
	}
	if err != nil {
		return nil, database.Classify(fmt.Errorf("get user %d: %w", id, err))
	}
	return user, nil
}

func (d *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := new(models.User)
	err := d.Bun.NewSelect().
		Model(user).
		Where("u.email = ?", strings.ToLower(strings.TrimSpace(email))).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("user %s", email)
	}
	if err != nil {
		return nil, database.Classify(fmt.Errorf("get user by email: %w", err))
	}
	return user, nil
}

func (d *DB) CountUsers(ctx context.Context) (int, error) {
	n, err := d.Bun.NewSelect().Model((*models.User)(nil)).Count(ctx)
	if err != nil {
		return 0, database.Classify(fmt.Errorf("count users: %w", err))
	}
	return n, nil
}
