package event_api_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-booking/internal/auth"
	"ms-booking/internal/database/dbtest"
	"ms-booking/internal/event"
	eventdb "ms-booking/internal/event/db"
	"ms-booking/internal/event/event_api"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

type recordingKafka struct {
	mu     sync.Mutex
	topics []string
	keys   []string
}

func (k *recordingKafka) Publish(topic, key string, value []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.topics = append(k.topics, topic)
	k.keys = append(k.keys, key)
	return nil
}

type env struct {
	router   http.Handler
	kafka    *recordingKafka
	admin    string
	admin2   string
	attendee string
}

func setup(t *testing.T) *env {
	bunDB := dbtest.NewSQLite(t)
	log := logger.Discard()
	issuer, err := auth.NewIssuer("event-secret", time.Hour)
	require.NoError(t, err)

	k := &recordingKafka{}
	svc := event.NewService(&eventdb.DB{Bun: bunDB}, log)
	svc.Kafka = k
	svc.Topics = event.Topics{Created: "event.created", Updated: "event.updated", Deleted: "event.deleted"}
	h := &event_api.Handler{EventService: svc, Logger: log}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		h.RegisterPublicRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(issuer, nil, log))
			h.RegisterRoutes(r)
		})
	})

	token := func(email string, role models.Role) string {
		tok, _, err := issuer.Issue(dbtest.SeedUser(t, bunDB, email, role))
		require.NoError(t, err)
		return tok
	}
	return &env{
		router:   r,
		kafka:    k,
		admin:    token("admin@example.com", models.RoleAdmin),
		admin2:   token("admin2@example.com", models.RoleAdmin),
		attendee: token("fan@example.com", models.RoleAttendee),
	}
}

func (e *env) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func data(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	var out struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	require.NoError(t, json.Unmarshal(out.Data, v))
}

const createBody = `{
	"title": "Jazz Night",
	"description": "Live quartet",
	"date": "2030-05-01T19:00:00Z",
	"location": "Mumbai",
	"price": "750.50",
	"total_seats": 40,
	"sessions": [{"title": "Set one", "start_time": "2030-05-01T19:00:00Z", "end_time": "2030-05-01T20:00:00Z"}]
}`

func (e *env) create(t *testing.T, token string) models.Event {
	rec := e.do(http.MethodPost, "/api/events", createBody, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ev models.Event
	data(t, rec, &ev)
	return ev
}

func TestCreateAndReadEvent(t *testing.T) {
	e := setup(t)
	ev := e.create(t, e.admin)
	assert.Equal(t, 40, ev.RemainingSeats)
	assert.Equal(t, "750.50", ev.Price.StringFixed(2))

	rec := e.do(http.MethodGet, fmt.Sprintf("/api/events/%d", ev.ID), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Event
	data(t, rec, &got)
	require.Len(t, got.Sessions, 1)
	assert.Equal(t, "Set one", got.Sessions[0].Title)

	rec = e.do(http.MethodGet, fmt.Sprintf("/api/events/%d/capacity", ev.ID), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var c models.Capacity
	data(t, rec, &c)
	assert.Equal(t, models.Capacity{EventID: ev.ID, TotalSeats: 40, BookedSeats: 0, RemainingSeats: 40}, c)

	assert.Equal(t, []string{"event.created"}, e.kafka.topics)
	assert.Equal(t, []string{fmt.Sprint(ev.ID)}, e.kafka.keys)
}

func TestCreateEventValidationAndRoles(t *testing.T) {
	e := setup(t)

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/api/events", createBody, "").Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/api/events", createBody, e.attendee).Code)

	bad := []string{
		`{"title":"x","date":"2030-05-01T19:00:00Z","location":"Pune","price":"10","total_seats":0}`,
		`{"title":"x","date":"2030-05-01T19:00:00Z","location":"Pune","price":"-1","total_seats":5}`,
		`{"date":"2030-05-01T19:00:00Z","location":"Pune","price":"10","total_seats":5}`,
		`{"title":"x","date":"2030-05-01T19:00:00Z","location":"Pune","price":"10","total_seats":5,
		  "sessions":[{"title":"s","start_time":"2030-05-01T20:00:00Z","end_time":"2030-05-01T19:00:00Z"}]}`,
	}
	for _, body := range bad {
		rec := e.do(http.MethodPost, "/api/events", body, e.admin)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestListAndMyEvents(t *testing.T) {
	e := setup(t)
	e.create(t, e.admin)
	e.create(t, e.admin)
	e.create(t, e.admin2)

	rec := e.do(http.MethodGet, "/api/events?search=jazz&location=mum", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page models.EventPage
	data(t, rec, &page)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 12, page.Limit)

	rec = e.do(http.MethodGet, "/api/events/organizer/my-events", "", e.admin2)
	require.Equal(t, http.StatusOK, rec.Code)
	data(t, rec, &page)
	assert.Equal(t, 1, page.Total)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/events?page=0", "", "").Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/api/events/organizer/my-events", "", e.attendee).Code)
}

func TestUpdateAndDeleteAreOwnerOnly(t *testing.T) {
	e := setup(t)
	ev := e.create(t, e.admin)
	path := fmt.Sprintf("/api/events/%d", ev.ID)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPut, path, `{"title":"Hijacked"}`, e.attendee).Code)

	rec := e.do(http.MethodPut, path, `{"title":"Jazz Night II","total_seats":50}`, e.admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated models.Event
	data(t, rec, &updated)
	assert.Equal(t, "Jazz Night II", updated.Title)
	assert.Equal(t, 50, updated.RemainingSeats)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPut, path, `{"total_seats":0}`, e.admin).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPut, "/api/events/9999", `{"title":"x"}`, e.admin).Code)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodDelete, path, "", e.attendee).Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodDelete, path, "", e.admin).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, path, "", "").Code)

	assert.Equal(t, []string{"event.created", "event.updated", "event.deleted"}, e.kafka.topics)
}
