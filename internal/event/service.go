package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ms-booking/internal/event/db"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

type DBLayer interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	ListEvents(ctx context.Context, f models.EventFilter) (*models.EventPage, error)
	UpdateEvent(ctx context.Context, id int64, u db.EventUpdate) (*models.Event, error)
	DeleteEvent(ctx context.Context, id int64) error
}

type KafkaPublisher interface {
	Publish(topic, key string, value []byte) error
}

// Topics names where catalog changes are announced; empty topics are skipped.
type Topics struct {
	Created string
	Updated string
	Deleted string
}

type SessionRequest struct {
	Title     string    `json:"title" validate:"required,max=200"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
}

type CreateEventRequest struct {
	Title       string           `json:"title" validate:"required,max=200"`
	Description string           `json:"description" validate:"max=5000"`
	Date        time.Time        `json:"date" validate:"required"`
	Location    string           `json:"location" validate:"required,max=200"`
	ImageURL    string           `json:"image_url" validate:"omitempty,url"`
	Price       decimal.Decimal  `json:"price"`
	TotalSeats  int              `json:"total_seats" validate:"required,gt=0"`
	Sessions    []SessionRequest `json:"sessions" validate:"omitempty,dive"`
}

type UpdateEventRequest struct {
	Title       *string          `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string          `json:"description" validate:"omitempty,max=5000"`
	Date        *time.Time       `json:"date"`
	Location    *string          `json:"location" validate:"omitempty,min=1,max=200"`
	ImageURL    *string          `json:"image_url" validate:"omitempty,url"`
	Price       *decimal.Decimal `json:"price"`
	TotalSeats  *int             `json:"total_seats" validate:"omitempty,gt=0"`
	Sessions    []SessionRequest `json:"sessions" validate:"omitempty,dive"`
}

type Service struct {
	DB     DBLayer
	Kafka  KafkaPublisher
	Topics Topics
	Logger *logger.Logger
}

func NewService(store DBLayer, log *logger.Logger) *Service {
	return &Service{DB: store, Logger: log}
}

func (s *Service) CreateEvent(ctx context.Context, req CreateEventRequest, caller models.Principal) (*models.Event, error) {
	if req.Price.IsNegative() {
		return nil, models.Invalidf("price must not be negative")
	}
	sessions, err := toSessions(req.Sessions)
	if err != nil {
		return nil, err
	}

	event := &models.Event{
		OrganizerID: caller.UserID,
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date.UTC(),
		Location:    req.Location,
		ImageURL:    req.ImageURL,
		Price:       req.Price.Round(2),
		TotalSeats:  req.TotalSeats,
		Sessions:    sessions,
	}
	if err := s.DB.CreateEvent(ctx, event); err != nil {
		return nil, err
	}

	s.Logger.Info("EVENT", fmt.Sprintf("Event %d created by user %d with %d seats", event.ID, caller.UserID, event.TotalSeats))
	s.announce(s.Topics.Created, "event.created", event)
	return event, nil
}

func (s *Service) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	return s.DB.GetEvent(ctx, id)
}

func (s *Service) ListEvents(ctx context.Context, f models.EventFilter) (*models.EventPage, error) {
	return s.DB.ListEvents(ctx, f)
}

// ListOrganizerEvents lists the caller's own events.
func (s *Service) ListOrganizerEvents(ctx context.Context, caller models.Principal, f models.EventFilter) (*models.EventPage, error) {
	f.OrganizerID = caller.UserID
	return s.DB.ListEvents(ctx, f)
}

// Capacity reads the committed seat counter of an event.
func (s *Service) Capacity(ctx context.Context, id int64) (*models.Capacity, error) {
	event, err := s.DB.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.Capacity{
		EventID:        event.ID,
		TotalSeats:     event.TotalSeats,
		BookedSeats:    event.BookedSeats,
		RemainingSeats: event.Remaining(),
	}, nil
}

func (s *Service) UpdateEvent(ctx context.Context, id int64, req UpdateEventRequest, caller models.Principal) (*models.Event, error) {
	if _, err := s.owned(ctx, id, caller); err != nil {
		return nil, err
	}
	if req.Price != nil && req.Price.IsNegative() {
		return nil, models.Invalidf("price must not be negative")
	}

	update := db.EventUpdate{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		ImageURL:    req.ImageURL,
		TotalSeats:  req.TotalSeats,
	}
	if req.Date != nil {
		d := req.Date.UTC()
		update.Date = &d
	}
	if req.Price != nil {
		p := req.Price.Round(2)
		update.Price = &p
	}
	if req.Sessions != nil {
		sessions, err := toSessions(req.Sessions)
		if err != nil {
			return nil, err
		}
		update.Sessions = sessions
		if update.Sessions == nil {
			update.Sessions = []*models.EventSession{}
		}
	}

	event, err := s.DB.UpdateEvent(ctx, id, update)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("EVENT", fmt.Sprintf("Event %d updated by user %d", id, caller.UserID))
	s.announce(s.Topics.Updated, "event.updated", event)
	return event, nil
}

func (s *Service) DeleteEvent(ctx context.Context, id int64, caller models.Principal) error {
	event, err := s.owned(ctx, id, caller)
	if err != nil {
		return err
	}
	if err := s.DB.DeleteEvent(ctx, id); err != nil {
		return err
	}
	s.Logger.Info("EVENT", fmt.Sprintf("Event %d deleted by user %d with %d booked seats", id, caller.UserID, event.BookedSeats))
	s.announce(s.Topics.Deleted, "event.deleted", event)
	return nil
}

func (s *Service) owned(ctx context.Context, id int64, caller models.Principal) (*models.Event, error) {
	event, err := s.DB.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(event.OrganizerID) {
		s.Logger.LogSecurity("EVENT_DENIED", fmt.Sprintf("user %d tried to modify event %d", caller.UserID, id))
		return nil, fmt.Errorf("%w: event %d belongs to another organizer", models.ErrForbidden, id)
	}
	return event, nil
}

func (s *Service) announce(topic, kind string, event *models.Event) {
	if s.Kafka == nil || topic == "" {
		return
	}
	value, err := json.Marshal(models.EventChangedMessage{
		MessageID:   uuid.NewString(),
		Type:        kind,
		EventID:     event.ID,
		OrganizerID: event.OrganizerID,
		Title:       event.Title,
		Date:        event.Date,
		TotalSeats:  event.TotalSeats,
		BookedSeats: event.BookedSeats,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to marshal %s for event %d: %v", kind, event.ID, err))
		return
	}
	if err := s.Kafka.Publish(topic, strconv.FormatInt(event.ID, 10), value); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for event %d: %v", kind, event.ID, err))
		return
	}
	s.Logger.LogKafka("PUBLISHED", topic, fmt.Sprintf("%s %d", kind, event.ID))
}

func toSessions(reqs []SessionRequest) ([]*models.EventSession, error) {
	var sessions []*models.EventSession
	for i, r := range reqs {
		if !r.EndTime.After(r.StartTime) {
			return nil, models.Invalidf("session %d must end after it starts", i+1)
		}
		sessions = append(sessions, &models.EventSession{
			Title:     r.Title,
			StartTime: r.StartTime.UTC(),
			EndTime:   r.EndTime.UTC(),
		})
	}
	return sessions, nil
}
