package user

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ms-booking/internal/auth"
	"ms-booking/internal/database/dbtest"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	userdb "ms-booking/internal/user/db"
)

func newTestService(t *testing.T, allowAdmin bool) *Service {
	issuer, err := auth.NewIssuer("secret", time.Hour)
	require.NoError(t, err)
	svc := NewService(&userdb.DB{Bun: dbtest.NewSQLite(t)}, issuer, logger.Discard(), allowAdmin)
	svc.bcryptCost = bcrypt.MinCost
	return svc
}

func TestSignupAndLogin(t *testing.T) {
	svc := newTestService(t, false)
	ctx := context.Background()

	session, err := svc.Signup(ctx, SignupRequest{Name: "Asha", Email: "asha@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAttendee, session.User.Role)
	assert.NotEmpty(t, session.Token)
	assert.NotEqual(t, "secret1", session.User.PasswordHash)

	claims, err := svc.Issuer.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, claims.UserID)

	login, err := svc.Login(ctx, LoginRequest{Email: "asha@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, login.User.ID)

	_, err = svc.Login(ctx, LoginRequest{Email: "asha@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestSignupDuplicateEmail(t *testing.T) {
	svc := newTestService(t, false)
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupRequest{Name: "A", Email: "a@example.com", Password: "secret1"})
	require.NoError(t, err)
	_, err = svc.Signup(ctx, SignupRequest{Name: "B", Email: "a@example.com", Password: "secret2"})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestSignupAdminRole(t *testing.T) {
	ctx := context.Background()

	_, err := newTestService(t, false).Signup(ctx, SignupRequest{Name: "O", Email: "o@example.com", Password: "secret1", Role: models.RoleAdmin})
	assert.ErrorIs(t, err, models.ErrForbidden)

	session, err := newTestService(t, true).Signup(ctx, SignupRequest{Name: "O", Email: "o@example.com", Password: "secret1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.True(t, session.User.IsAdmin())
}

func TestMeAndLogout(t *testing.T) {
	svc := newTestService(t, false)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	svc.Revoked = auth.NewRedisRevocationList(client)
	ctx := context.Background()

	session, err := svc.Signup(ctx, SignupRequest{Name: "A", Email: "a@example.com", Password: "secret1"})
	require.NoError(t, err)

	me, err := svc.Me(ctx, models.Principal{UserID: session.User.ID})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", me.Email)

	_, err = svc.Me(ctx, models.Principal{UserID: 999})
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	claims, err := svc.Issuer.Parse(session.Token)
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, claims))

	revoked, err := svc.Revoked.IsRevoked(ctx, claims.ID)
	require.NoError(t, err)
	assert.True(t, revoked)
}
