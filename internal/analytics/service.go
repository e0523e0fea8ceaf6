package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

const (
	topEvents      = 10
	revenueMonths  = 12
	recentBookings = 10
)

type DBLayer interface {
	Count(ctx context.Context, model interface{}) (int, error)
	EventLedgers(ctx context.Context) ([]EventLedger, error)
	PaidBookings(ctx context.Context) ([]PaidBooking, error)
	RecentBookings(ctx context.Context, limit int) ([]models.Booking, error)
}

type Dashboard struct {
	TotalEvents      int              `json:"totalEvents"`
	TotalBookings    int              `json:"totalBookings"`
	TotalUsers       int              `json:"totalUsers"`
	TotalRevenue     decimal.Decimal  `json:"totalRevenue"`
	BookingsPerEvent []EventBookings  `json:"bookingsPerEvent"`
	MonthlyRevenue   []MonthRevenue   `json:"monthlyRevenue"`
	SeatOccupancy    []EventOccupancy `json:"seatOccupancy"`
	RecentBookings   []models.Booking `json:"recentBookings"`
	Reconciliation   []Mismatch       `json:"reconciliation"`
}

type EventBookings struct {
	EventID  int64  `json:"id"`
	Title    string `json:"title"`
	Bookings int    `json:"bookings"`
	Seats    int    `json:"seats"`
}

type MonthRevenue struct {
	Month   string          `json:"month"`
	Revenue decimal.Decimal `json:"revenue"`
}

type EventOccupancy struct {
	EventID        int64   `json:"event_id"`
	EventTitle     string  `json:"event_title"`
	TotalSeats     int     `json:"total_seats"`
	BookedSeats    int     `json:"booked_seats"`
	RemainingSeats int     `json:"remaining_seats"`
	OccupancyRate  float64 `json:"occupancy_rate"`
}

// Mismatch is an event whose booked_seats counter disagrees with the sum of
// its booking rows.
type Mismatch struct {
	EventID     int64 `json:"event_id"`
	BookedSeats int   `json:"booked_seats"`
	LedgerSeats int   `json:"ledger_seats"`
}

type Service struct {
	DB     DBLayer
	Logger *logger.Logger
}

func NewService(db DBLayer, log *logger.Logger) *Service {
	return &Service{DB: db, Logger: log}
}

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	var (
		d   Dashboard
		err error
	)
	if d.TotalEvents, err = s.DB.Count(ctx, (*models.Event)(nil)); err != nil {
		return nil, err
	}
	if d.TotalBookings, err = s.DB.Count(ctx, (*models.Booking)(nil)); err != nil {
		return nil, err
	}
	if d.TotalUsers, err = s.DB.Count(ctx, (*models.User)(nil)); err != nil {
		return nil, err
	}

	paid, err := s.DB.PaidBookings(ctx)
	if err != nil {
		return nil, err
	}
	d.TotalRevenue, d.MonthlyRevenue = revenue(paid)

	ledgers, err := s.DB.EventLedgers(ctx)
	if err != nil {
		return nil, err
	}
	d.BookingsPerEvent = perEvent(ledgers)
	d.SeatOccupancy = occupancy(ledgers)
	d.Reconciliation = reconcile(ledgers)
	for _, m := range d.Reconciliation {
		s.Logger.Error("ANALYTICS", fmt.Sprintf("Event %d counter %d disagrees with ledger %d", m.EventID, m.BookedSeats, m.LedgerSeats))
	}

	if d.RecentBookings, err = s.DB.RecentBookings(ctx, recentBookings); err != nil {
		return nil, err
	}
	return &d, nil
}

// revenue sums paid amounts overall and per YYYY-MM, keeping the latest
// months first.
func revenue(paid []PaidBooking) (decimal.Decimal, []MonthRevenue) {
	total := decimal.Zero
	byMonth := make(map[string]decimal.Decimal)
	for _, p := range paid {
		total = total.Add(p.Amount)
		month := p.CreatedAt.UTC().Format("2006-01")
		byMonth[month] = byMonth[month].Add(p.Amount)
	}

	months := make([]MonthRevenue, 0, len(byMonth))
	for m, r := range byMonth {
		months = append(months, MonthRevenue{Month: m, Revenue: r})
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Month > months[j].Month })
	if len(months) > revenueMonths {
		months = months[:revenueMonths]
	}
	return total, months
}

func perEvent(ledgers []EventLedger) []EventBookings {
	out := make([]EventBookings, 0, len(ledgers))
	for _, l := range ledgers {
		out = append(out, EventBookings{EventID: l.ID, Title: l.Title, Bookings: l.Bookings, Seats: l.LedgerSeats})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Bookings != out[j].Bookings {
			return out[i].Bookings > out[j].Bookings
		}
		return out[i].Seats > out[j].Seats
	})
	if len(out) > topEvents {
		out = out[:topEvents]
	}
	return out
}

func occupancy(ledgers []EventLedger) []EventOccupancy {
	out := make([]EventOccupancy, 0, len(ledgers))
	for _, l := range ledgers {
		rate := 0.0
		if l.TotalSeats > 0 {
			rate = math.Round(float64(l.BookedSeats)/float64(l.TotalSeats)*100*100) / 100
		}
		out = append(out, EventOccupancy{
			EventID:        l.ID,
			EventTitle:     l.Title,
			TotalSeats:     l.TotalSeats,
			BookedSeats:    l.BookedSeats,
			RemainingSeats: l.TotalSeats - l.BookedSeats,
			OccupancyRate:  rate,
		})
	}
	return out
}

func reconcile(ledgers []EventLedger) []Mismatch {
	out := []Mismatch{}
	for _, l := range ledgers {
		if l.BookedSeats != l.LedgerSeats {
			out = append(out, Mismatch{EventID: l.ID, BookedSeats: l.BookedSeats, LedgerSeats: l.LedgerSeats})
		}
	}
	return out
}
