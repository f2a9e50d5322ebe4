package booking

import (
	"context"
	"sort"
	"strings"
	"time"

	"harmonie/backend/internal/domain"
	"harmonie/backend/internal/loyalty"
	"harmonie/backend/internal/store"
)

type Filter string

const (
	FilterAll       Filter = "all"
	FilterUpcoming  Filter = "upcoming"
	FilterFuture    Filter = "future"
	FilterPast      Filter = "past"
	FilterCancelled Filter = "cancelled"
)

// ParseFilter accepts "upcoming" and "future" as the same filter.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FilterAll:
		return FilterAll, nil
	case FilterUpcoming, FilterFuture:
		return FilterUpcoming, nil
	case FilterPast, FilterCancelled:
		return f, nil
	default:
		return "", validationError("unknown filter")
	}
}

type ClientView struct {
	Bookings  []domain.Booking `json:"bookings"`
	Upcoming  int              `json:"upcoming"`
	Past      int              `json:"past"`
	Cancelled int              `json:"cancelled"`
}

type Stats struct {
	Total        int `json:"total"`
	Confirmed    int `json:"confirmed"`
	Cancelled    int `json:"cancelled"`
	Future       int `json:"future"`
	Past         int `json:"past"`
	EnabledSlots int `json:"enabledSlots"`
}

// Export is the downloadable backup document.
type Export struct {
	Slots      []domain.SlotTemplate `json:"slots"`
	Bookings   []domain.Booking      `json:"bookings"`
	ExportDate time.Time             `json:"exportDate"`
}

const (
	ResetConfirmation   = "RESET"
	defaultUpcomingSize = 5
)

func (s *Service) Get(ctx context.Context, id string) (domain.Booking, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Booking{}, validationError("booking_id is required")
	}
	bookings, err := s.bookings.LoadBookings(ctx)
	if err != nil {
		return domain.Booking{}, err
	}
	i, ok := store.FindBooking(bookings, id)
	if !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	return bookings[i], nil
}

// ClientBookings lists the bookings made with email, newest first, with the
// per-category counts over all of them.
func (s *Service) ClientBookings(ctx context.Context, email string, filter Filter) (ClientView, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ClientView{}, validationError("email is required")
	}
	bookings, err := s.bookings.LoadBookings(ctx)
	if err != nil {
		return ClientView{}, err
	}

	today := s.today()
	var mine []domain.Booking
	view := ClientView{}
	for _, b := range bookings {
		if strings.ToLower(strings.TrimSpace(b.Email)) != email {
			continue
		}
		mine = append(mine, b)
		switch category(b, today) {
		case FilterUpcoming:
			view.Upcoming++
		case FilterPast:
			view.Past++
		case FilterCancelled:
			view.Cancelled++
		}
	}
	view.Bookings = filterNewestFirst(mine, filter, today)
	return view, nil
}

func (s *Service) AdminBookings(ctx context.Context, filter Filter) ([]domain.Booking, error) {
	bookings, err := s.bookings.LoadBookings(ctx)
	if err != nil {
		return nil, err
	}
	return filterNewestFirst(bookings, filter, s.today()), nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	slots, bookings, err := s.loadSnapshot(ctx)
	if err != nil {
		return Stats{}, err
	}
	today := s.today()
	st := Stats{Total: len(bookings)}
	for _, b := range bookings {
		switch category(b, today) {
		case FilterUpcoming:
			st.Confirmed++
			st.Future++
		case FilterPast:
			st.Confirmed++
			st.Past++
		case FilterCancelled:
			st.Cancelled++
		}
	}
	for _, slot := range slots {
		if slot.Enabled {
			st.EnabledSlots++
		}
	}
	return st, nil
}

// Upcoming returns the next confirmed bookings from today on, soonest first.
func (s *Service) Upcoming(ctx context.Context, limit int) ([]domain.Booking, error) {
	if limit <= 0 {
		limit = defaultUpcomingSize
	}
	bookings, err := s.bookings.LoadBookings(ctx)
	if err != nil {
		return nil, err
	}
	today := s.today()
	out := make([]domain.Booking, 0, limit)
	for _, b := range bookings {
		if category(b, today) == FilterUpcoming {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return startsBefore(out[i], out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Service) Loyalty(ctx context.Context, email string) (loyalty.Summary, error) {
	if strings.TrimSpace(email) == "" {
		return loyalty.Summary{}, validationError("email is required")
	}
	bookings, err := s.bookings.LoadBookings(ctx)
	if err != nil {
		return loyalty.Summary{}, err
	}
	return loyalty.Compute(email, bookings, s.today()), nil
}

func (s *Service) Export(ctx context.Context) (Export, error) {
	slots, bookings, err := s.loadSnapshot(ctx)
	if err != nil {
		return Export{}, err
	}
	return Export{Slots: slots, Bookings: bookings, ExportDate: s.now().UTC()}, nil
}

// Reset restores the default template and removes every booking. It only runs
// when confirmation is exactly "RESET".
func (s *Service) Reset(ctx context.Context, confirmation string) error {
	if confirmation != ResetConfirmation {
		return validationError("confirmation must be RESET")
	}
	if err := s.slots.SaveSlots(ctx, domain.DefaultTemplate()); err != nil {
		return err
	}
	err := store.RunBookingTx(ctx, s.bookings, func(ctx context.Context, tx store.BookingStore) error {
		return tx.SaveBookings(ctx, []domain.Booking{})
	})
	if err != nil {
		return err
	}
	s.logger.Warn("all data reset to defaults")
	return nil
}

// category maps a booking to upcoming, past or cancelled relative to today.
func category(b domain.Booking, today string) Filter {
	switch {
	case !b.IsConfirmed():
		return FilterCancelled
	case b.Date >= today:
		return FilterUpcoming
	default:
		return FilterPast
	}
}

func filterNewestFirst(bookings []domain.Booking, filter Filter, today string) []domain.Booking {
	if filter == FilterFuture {
		filter = FilterUpcoming
	}
	out := make([]domain.Booking, 0, len(bookings))
	for _, b := range bookings {
		if filter == FilterAll || filter == "" || category(b, today) == filter {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return startsBefore(out[j], out[i]) })
	return out
}

func startsBefore(a, b domain.Booking) bool {
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	return a.StartTime < b.StartTime
}
