package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"ms-booking/internal/booking/db"
	"ms-booking/internal/database"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

type Store interface {
	Admit(ctx context.Context, a db.Admission) (*db.Admitted, error)
	Capacity(ctx context.Context, eventID int64) (*models.Capacity, error)
	GetBookingByID(ctx context.Context, id int64) (*models.Booking, error)
	ListBookingsByUser(ctx context.Context, userID int64) ([]models.Booking, error)
}

type UserDirectory interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// AdmissionLock serialises admission per event across instances.
type AdmissionLock interface {
	Lock(ctx context.Context, eventID int64) (func(), error)
}

type KafkaPublisher interface {
	Publish(topic, key string, value []byte) error
}

type BookingNotifier interface {
	EmitBooking(booking models.Booking, capacity models.Capacity)
}

// PaymentPolicy decides the payment status a new booking is committed with.
// A gateway integration would return PaymentPending here and settle later;
// capacity is consumed either way.
type PaymentPolicy interface {
	InitialStatus() models.PaymentStatus
}

// InstantCapture marks every booking paid at admission.
type InstantCapture struct{}

func (InstantCapture) InitialStatus() models.PaymentStatus { return models.PaymentPaid }

type Config struct {
	MaxAttempts  int
	Timeout      time.Duration
	CreatedTopic string
}

type Service struct {
	Store    Store
	Users    UserDirectory
	Lock     AdmissionLock
	Kafka    KafkaPublisher
	Notifier BookingNotifier
	Payment  PaymentPolicy
	Logger   *logger.Logger
	Config   Config
}

func NewService(store Store, users UserDirectory, log *logger.Logger, cfg Config) *Service {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Service{
		Store:   store,
		Users:   users,
		Payment: InstantCapture{},
		Logger:  log,
		Config:  cfg,
	}
}

// SubmitBooking admits a booking for req.UserID or rejects it with one of the
// models error kinds. CapacityExceeded errors carry the remaining seat count.
func (s *Service) SubmitBooking(ctx context.Context, req models.BookingRequest) (*models.Booking, error) {
	if err := s.authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	if req.Seats <= 0 {
		return nil, models.Invalidf("seats must be a positive integer, got %d", req.Seats)
	}
	if req.EventID <= 0 {
		return nil, models.NotFoundf("event %d", req.EventID)
	}

	if s.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Config.Timeout)
		defer cancel()
	}

	if s.Lock != nil {
		release, err := s.Lock.Lock(ctx, req.EventID)
		switch {
		case err == nil:
			defer release()
		case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrStoreUnavailable):
			return nil, err
		default:
			// the conditional update still guards capacity without the lock
			s.Logger.Warn("BOOKING", fmt.Sprintf("Admission lock unavailable for event %d, continuing without it: %v", req.EventID, err))
		}
	}

	admitted, err := s.admit(ctx, db.Admission{
		EventID: req.EventID,
		UserID:  req.UserID,
		Seats:   req.Seats,
		Status:  s.Payment.InitialStatus(),
	})
	if err != nil {
		if remaining, ok := models.RemainingSeats(err); ok {
			s.Logger.Info("BOOKING", fmt.Sprintf("Rejected %d seats for event %d: %d remaining", req.Seats, req.EventID, remaining))
		}
		return nil, err
	}

	b := admitted.Booking
	s.Logger.LogBooking("CREATED", b.ID, fmt.Sprintf("event=%d user=%d seats=%d amount=%s remaining=%d",
		b.EventID, b.UserID, b.Seats, b.Amount.StringFixed(2), admitted.Capacity.RemainingSeats))

	s.announce(*b, admitted.Capacity)
	return b, nil
}

func (s *Service) authorize(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("%w: booking requires an authenticated user", models.ErrUnauthorized)
	}
	if s.Users == nil {
		return nil
	}
	if _, err := s.Users.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: unknown user %d", models.ErrUnauthorized, userID)
		}
		return err
	}
	return nil
}

// admit replays the admission transaction when it lost a serialization race,
// with bounded exponential backoff.
func (s *Service) admit(ctx context.Context, a db.Admission) (*db.Admitted, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond

	attempt := 0
	admitted, err := backoff.RetryWithData(func() (*db.Admitted, error) {
		attempt++
		out, err := s.Store.Admit(ctx, a)
		if err == nil {
			return out, nil
		}
		if database.IsRetryable(err) {
			s.Logger.Debug("BOOKING", fmt.Sprintf("Admission attempt %d for event %d lost a race: %v", attempt, a.EventID, err))
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.Config.MaxAttempts-1)), ctx))
	if err != nil {
		if database.IsRetryable(err) {
			return nil, fmt.Errorf("%w: admission for event %d gave up after %d attempts: %w", models.ErrConflict, a.EventID, attempt, err)
		}
		// backoff returns the bare ctx.Err() when the deadline fires between attempts
		return nil, database.Classify(err)
	}
	return admitted, nil
}

// announce publishes the committed booking. Failures are logged only; the
// booking is already durable.
func (s *Service) announce(b models.Booking, capacity models.Capacity) {
	if s.Notifier != nil {
		s.Notifier.EmitBooking(b, capacity)
	}
	if s.Kafka == nil || s.Config.CreatedTopic == "" {
		return
	}

	msg := models.BookingCreatedMessage{
		MessageID:     uuid.NewString(),
		BookingID:     b.ID,
		EventID:       b.EventID,
		UserID:        b.UserID,
		Seats:         b.Seats,
		Amount:        b.Amount,
		PaymentStatus: b.PaymentStatus,
		Remaining:     capacity.RemainingSeats,
		CreatedAt:     b.CreatedAt,
	}
	value, err := json.Marshal(msg)
	if err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to marshal booking %d: %v", b.ID, err))
		return
	}
	if err := s.Kafka.Publish(s.Config.CreatedTopic, strconv.FormatInt(b.EventID, 10), value); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish booking %d: %v", b.ID, err))
		return
	}
	s.Logger.LogKafka("PUBLISHED", s.Config.CreatedTopic, fmt.Sprintf("booking %d", b.ID))
}

// Capacity is the read view used right after admissions. It reads the
// committed counter, so a booking is visible as soon as SubmitBooking returns.
func (s *Service) Capacity(ctx context.Context, eventID int64) (*models.Capacity, error) {
	return s.Store.Capacity(ctx, eventID)
}

// GetBooking returns a booking to its owner or an admin.
func (s *Service) GetBooking(ctx context.Context, id int64, caller models.Principal) (*models.Booking, error) {
	b, err := s.Store.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(b.UserID) {
		return nil, fmt.Errorf("%w: booking %d belongs to another user", models.ErrForbidden, id)
	}
	return b, nil
}

// ListUserBookings returns userID's bookings to that user or an admin.
func (s *Service) ListUserBookings(ctx context.Context, userID int64, caller models.Principal) ([]models.Booking, error) {
	if !caller.CanAccess(userID) {
		return nil, fmt.Errorf("%w: cannot list bookings of user %d", models.ErrForbidden, userID)
	}
	return s.Store.ListBookingsByUser(ctx, userID)
}
