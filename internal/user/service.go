package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ms-booking/internal/auth"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

type DBLayer interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type SignupRequest struct {
	Name     string      `json:"name" validate:"required,max=120"`
	Email    string      `json:"email" validate:"required,email"`
	Password string      `json:"password" validate:"required,min=6,max=72"`
	Role     models.Role `json:"role" validate:"omitempty,oneof=admin attendee"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

type Service struct {
	DB               DBLayer
	Issuer           *auth.Issuer
	Revoked          auth.RevocationList
	Logger           *logger.Logger
	AllowAdminSignup bool
	bcryptCost       int
}

func NewService(db DBLayer, issuer *auth.Issuer, log *logger.Logger, allowAdminSignup bool) *Service {
	return &Service{
		DB:               db,
		Issuer:           issuer,
		Logger:           log,
		AllowAdminSignup: allowAdminSignup,
		bcryptCost:       bcrypt.DefaultCost,
	}
}

func (s *Service) Signup(ctx context.Context, req SignupRequest) (*Session, error) {
	role := req.Role
	if role == "" {
		role = models.RoleAttendee
	}
	if role == models.RoleAdmin && !s.AllowAdminSignup {
		return nil, fmt.Errorf("%w: admin accounts cannot be self-registered", models.ErrForbidden)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.DB.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.Logger.Info("AUTH", fmt.Sprintf("User %d signed up as %s", u.ID, u.Role))
	return s.session(u)
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	u, err := s.DB.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, models.ErrNotFound) {
		s.Logger.LogSecurity("LOGIN_FAILED", "unknown email")
		return nil, fmt.Errorf("%w: invalid credentials", models.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		s.Logger.LogSecurity("LOGIN_FAILED", fmt.Sprintf("user %d: wrong password", u.ID))
		return nil, fmt.Errorf("%w: invalid credentials", models.ErrUnauthorized)
	}
	return s.session(u)
}

// Logout revokes the token with the given ID until it would have expired.
func (s *Service) Logout(ctx context.Context, claims *auth.Claims) error {
	if s.Revoked == nil || claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	return s.Revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

func (s *Service) Me(ctx context.Context, caller models.Principal) (*models.User, error) {
	u, err := s.DB.GetUserByID(ctx, caller.UserID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: account no longer exists", models.ErrUnauthorized)
	}
	return u, err
}

func (s *Service) session(u *models.User) (*Session, error) {
	token, exp, err := s.Issuer.Issue(u)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}
