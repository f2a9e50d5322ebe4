package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"harmonie/backend/internal/availability"
	"harmonie/backend/internal/domain"
	"harmonie/backend/internal/loyalty"
	"harmonie/backend/internal/store"
	"harmonie/backend/internal/store/memory"
)

type fakeNotifier struct {
	mu        sync.Mutex
	confirmed []domain.Booking
	cancelled []domain.Booking
	err       error
}

func (f *fakeNotifier) BookingConfirmed(_ context.Context, b domain.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, b)
	return f.err
}

func (f *fakeNotifier) BookingCancelled(_ context.Context, b domain.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, b)
	return f.err
}

type fakeReminders struct {
	mu        sync.Mutex
	scheduled []string
	cancelled []string
}

func (f *fakeReminders) Schedule(_ context.Context, b domain.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, b.ID)
	return nil
}

func (f *fakeReminders) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}

type failingSlots struct{}

func (failingSlots) LoadSlots(context.Context) ([]domain.SlotTemplate, error) {
	return nil, store.Unavailable("load slots", errors.New("connection refused"))
}

func (failingSlots) SaveSlots(context.Context, []domain.SlotTemplate) error {
	return store.Unavailable("save slots", errors.New("connection refused"))
}

// Monday 2025-01-06 08:00 in Paris.
var fixedNow = time.Date(2025, 1, 6, 7, 0, 0, 0, time.UTC)

type harness struct {
	svc       *Service
	store     *memory.Store
	notifier  *fakeNotifier
	reminders *fakeReminders
}

func newHarness(t *testing.T) harness {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	st := memory.New()
	if err := st.SaveSlots(context.Background(), domain.DefaultTemplate()); err != nil {
		t.Fatalf("SaveSlots error: %v", err)
	}
	n := &fakeNotifier{}
	r := &fakeReminders{}
	svc := NewService(st, st, availability.NewEngine(),
		WithNotifier(n),
		WithReminders(r),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(loc, func() time.Time { return fixedNow }),
	)
	return harness{svc: svc, store: st, notifier: n, reminders: r}
}

func validInput() CommitInput {
	return CommitInput{
		GivenName:  "Claire",
		FamilyName: "Dupont",
		Email:      "claire@example.fr",
		Phone:      "06 12 34 56 78",
		Service:    domain.ServiceSwedishMassage,
		Date:       "2025-01-13",
		Time:       "10:00",
	}
}

func seedBookings(t *testing.T, st *memory.Store, bookings ...domain.Booking) {
	t.Helper()
	if err := st.SaveBookings(context.Background(), bookings); err != nil {
		t.Fatalf("SaveBookings error: %v", err)
	}
}

func TestCommit_ConfirmsAndNotifies(t *testing.T) {
	h := newHarness(t)

	b, err := h.svc.Commit(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if !strings.HasPrefix(b.ID, "BKG-") || b.Status != domain.BookingStatusConfirmed {
		t.Fatalf("booking = %+v", b)
	}
	if b.DurationMinutes != 60 {
		t.Fatalf("duration = %d, want service default 60", b.DurationMinutes)
	}
	if !b.CreatedAt.Equal(fixedNow) {
		t.Fatalf("CreatedAt = %v", b.CreatedAt)
	}

	stored, err := h.store.LoadBookings(context.Background())
	if err != nil || len(stored) != 1 || stored[0].ID != b.ID {
		t.Fatalf("stored = %+v, %v", stored, err)
	}
	if len(h.notifier.confirmed) != 1 || len(h.reminders.scheduled) != 1 {
		t.Fatalf("side effects: %d emails, %d reminders", len(h.notifier.confirmed), len(h.reminders.scheduled))
	}
}

func TestCommit_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CommitInput)
		want   string
	}{
		{name: "missing given name", mutate: func(in *CommitInput) { in.GivenName = " " }, want: "prenom is required"},
		{name: "missing family name", mutate: func(in *CommitInput) { in.FamilyName = "" }, want: "nom is required"},
		{name: "bad email", mutate: func(in *CommitInput) { in.Email = "claire@example" }, want: "invalid email"},
		{name: "short phone", mutate: func(in *CommitInput) { in.Phone = "0612" }, want: "invalid phone number"},
		{name: "letters in phone", mutate: func(in *CommitInput) { in.Phone = "06 12 34 56 7A" }, want: "invalid phone number"},
		{name: "unknown service", mutate: func(in *CommitInput) { in.Service = "shiatsu" }, want: "unknown service"},
		{name: "bad date", mutate: func(in *CommitInput) { in.Date = "13/01/2025" }, want: "date must be YYYY-MM-DD"},
		{name: "past date", mutate: func(in *CommitInput) { in.Date = "2025-01-03" }, want: "date is in the past"},
		{name: "bad time", mutate: func(in *CommitInput) { in.Time = "10h" }, want: "time must be HH:MM"},
		{name: "odd duration", mutate: func(in *CommitInput) { in.DurationMinutes = 45 }, want: "duration must be a positive multiple of 30 minutes"},
		{name: "long key", mutate: func(in *CommitInput) { in.IdempotencyKey = strings.Repeat("k", 257) }, want: "idempotency_key too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			in := validInput()
			tt.mutate(&in)

			_, err := h.svc.Commit(context.Background(), in)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error = %v (%T), want *ValidationError", err, err)
			}
			if vErr.Error() != tt.want {
				t.Fatalf("error = %q, want %q", vErr.Error(), tt.want)
			}
		})
	}
}

func TestCommit_SlotUnavailable(t *testing.T) {
	tests := []struct {
		name     string
		date     string
		time     string
		duration int
	}{
		{name: "sunday", date: "2025-01-12", time: "10:00"},
		{name: "lunch gap", date: "2025-01-13", time: "13:00"},
		{name: "spills past last entry", date: "2025-01-13", time: "18:30"},
		{name: "saturday before opening", date: "2025-01-11", time: "09:00"},
		{name: "saturday after closing", date: "2025-01-11", time: "17:00"},
		{name: "long booking crosses lunch", date: "2025-01-13", time: "12:00", duration: 120},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			in := validInput()
			in.Date, in.Time, in.DurationMinutes = tt.date, tt.time, tt.duration

			if _, err := h.svc.Commit(context.Background(), in); !errors.Is(err, ErrSlotUnavailable) {
				t.Fatalf("err = %v, want ErrSlotUnavailable", err)
			}
		})
	}
}

func TestCommit_RejectsOverlap(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.Commit(context.Background(), validInput()); err != nil {
		t.Fatalf("first Commit error: %v", err)
	}

	in := validInput()
	in.Email = "other@example.fr"
	in.Service = domain.ServiceReflexology
	in.Time = "10:30"
	if _, err := h.svc.Commit(context.Background(), in); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	in.Time = "11:00"
	if _, err := h.svc.Commit(context.Background(), in); err != nil {
		t.Fatalf("adjacent Commit error: %v", err)
	}
}

func TestCommit_ConcurrentSameSlotOneWins(t *testing.T) {
	h := newHarness(t)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Commit(context.Background(), validInput())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok, conflicts := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, store.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != writers-1 {
		t.Fatalf("ok=%d conflicts=%d", ok, conflicts)
	}
}

func TestCommit_IdempotencyKey(t *testing.T) {
	h := newHarness(t)
	in := validInput()
	in.IdempotencyKey = "form-123"

	first, err := h.svc.Commit(context.Background(), in)
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	again, err := h.svc.Commit(context.Background(), in)
	if err != nil {
		t.Fatalf("replay error: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("replay id = %s, want %s", again.ID, first.ID)
	}
	if len(h.notifier.confirmed) != 1 {
		t.Fatalf("emails = %d, want 1", len(h.notifier.confirmed))
	}

	in.Time = "15:00"
	if _, err := h.svc.Commit(context.Background(), in); !errors.Is(err, store.ErrIdempotencyConflict) {
		t.Fatalf("err = %v, want ErrIdempotencyConflict", err)
	}

	stored, _ := h.store.LoadBookings(context.Background())
	if len(stored) != 1 {
		t.Fatalf("stored = %d, want 1", len(stored))
	}
}

func TestCommit_ReplayAfterSlotDisabled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	in := validInput()
	in.IdempotencyKey = "form-456"

	first, err := h.svc.Commit(ctx, in)
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}

	slots, _ := h.store.LoadSlots(ctx)
	for i := range slots {
		if slots[i].ID == domain.TemplateID(domain.Monday, domain.NewTimeOfDay(10, 0)) {
			slots[i].Enabled = false
		}
	}
	if err := h.store.SaveSlots(ctx, slots); err != nil {
		t.Fatalf("SaveSlots error: %v", err)
	}

	again, err := h.svc.Commit(ctx, in)
	if err != nil {
		t.Fatalf("replay error: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("replay id = %s, want %s", again.ID, first.ID)
	}

	in.IdempotencyKey = "form-789"
	if _, err := h.svc.Commit(ctx, in); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("err = %v, want ErrSlotUnavailable", err)
	}
}

func TestCommit_NotifierFailureDoesNotFailCommit(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("sendgrid down")

	if _, err := h.svc.Commit(context.Background(), validInput()); err != nil {
		t.Fatalf("Commit error: %v", err)
	}
}

func TestCommit_StoreFailureSurfaces(t *testing.T) {
	svc := NewService(failingSlots{}, memory.New(), nil, WithClock(time.UTC, func() time.Time { return fixedNow }))
	if _, err := svc.Commit(context.Background(), validInput()); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	b, err := h.svc.Commit(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}

	cancelled, err := h.svc.Cancel(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if cancelled.Status != domain.BookingStatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("cancelled = %+v", cancelled)
	}

	again, err := h.svc.Cancel(context.Background(), b.ID)
	if err != nil || again.Status != domain.BookingStatusCancelled {
		t.Fatalf("second Cancel = %+v, %v", again, err)
	}
	if len(h.notifier.cancelled) != 1 || len(h.reminders.cancelled) != 1 {
		t.Fatalf("side effects: %d emails, %d reminder removals", len(h.notifier.cancelled), len(h.reminders.cancelled))
	}

	if _, err := h.svc.Cancel(context.Background(), "BKG-UNKNOWN"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCancel_FreesInterval(t *testing.T) {
	h := newHarness(t)
	b, err := h.svc.Commit(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}

	ok, err := h.svc.IsAvailable(context.Background(), "2025-01-13", "10:00", 60)
	if err != nil || ok {
		t.Fatalf("IsAvailable before cancel = %v, %v", ok, err)
	}
	if _, err := h.svc.Cancel(context.Background(), b.ID); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	ok, err = h.svc.IsAvailable(context.Background(), "2025-01-13", "10:00", 60)
	if err != nil || !ok {
		t.Fatalf("IsAvailable after cancel = %v, %v", ok, err)
	}
	if _, err := h.svc.Commit(context.Background(), validInput()); err != nil {
		t.Fatalf("rebooking error: %v", err)
	}
}

func TestWindowsForDate(t *testing.T) {
	h := newHarness(t)
	seedBookings(t, h.store, domain.Booking{
		ID: "b1", Date: "2025-01-13", StartTime: domain.NewTimeOfDay(10, 0), DurationMinutes: 60, Status: domain.BookingStatusConfirmed,
	})

	windows, err := h.svc.WindowsForDate(context.Background(), "2025-01-13")
	if err != nil {
		t.Fatalf("WindowsForDate error: %v", err)
	}
	if len(windows) != 16 {
		t.Fatalf("windows = %d, want 16", len(windows))
	}
	for _, w := range windows {
		if w.StartTime == domain.NewTimeOfDay(10, 0) || w.StartTime == domain.NewTimeOfDay(10, 30) {
			t.Fatalf("booked window %s offered", w.StartTime)
		}
	}

	dur, err := h.svc.WindowsForDateAndDuration(context.Background(), "2025-01-13", 60)
	if err != nil {
		t.Fatalf("WindowsForDateAndDuration error: %v", err)
	}
	for _, w := range dur {
		if w.StartTime == domain.NewTimeOfDay(9, 30) {
			t.Fatalf("09:30 overlaps the 10:00 booking")
		}
	}

	if _, err := h.svc.WindowsForDate(context.Background(), "lundi"); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := h.svc.WindowsForDateAndDuration(context.Background(), "2025-01-13", 0); err == nil {
		t.Fatalf("expected validation error for zero duration")
	}
}

func TestWindowsForDate_LoadFailureIsNotEmpty(t *testing.T) {
	svc := NewService(failingSlots{}, memory.New(), nil)
	windows, err := svc.WindowsForDate(context.Background(), "2025-01-13")
	if !errors.Is(err, store.ErrUnavailable) || windows != nil {
		t.Fatalf("got %v, %v; want ErrUnavailable", windows, err)
	}
}

func TestMonthAvailability(t *testing.T) {
	h := newHarness(t)

	days, err := h.svc.MonthAvailability(context.Background(), 2025, 1)
	if err != nil {
		t.Fatalf("MonthAvailability error: %v", err)
	}
	if len(days) != 27 {
		t.Fatalf("days = %d, want 27 (January minus 4 Sundays)", len(days))
	}
	for _, d := range days {
		if d.Weekday == domain.Sunday {
			t.Fatalf("sunday %s listed", d.Date)
		}
	}
	if days[0].Date != "2025-01-01" || days[0].Weekday != domain.Wednesday {
		t.Fatalf("first day = %+v", days[0])
	}

	if _, err := h.svc.MonthAvailability(context.Background(), 2025, 13); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestClientAndAdminQueries(t *testing.T) {
	h := newHarness(t)
	seedBookings(t, h.store,
		domain.Booking{ID: "past", Email: "Claire@Example.fr", Service: domain.ServiceHotStones, Date: "2024-12-20", StartTime: domain.NewTimeOfDay(10, 0), DurationMinutes: 90, Status: domain.BookingStatusConfirmed},
		domain.Booking{ID: "soon", Email: "claire@example.fr", Service: domain.ServiceReflexology, Date: "2025-01-06", StartTime: domain.NewTimeOfDay(9, 0), DurationMinutes: 30, Status: domain.BookingStatusConfirmed},
		domain.Booking{ID: "later", Email: "claire@example.fr", Service: domain.ServiceSwedishMassage, Date: "2025-02-01", StartTime: domain.NewTimeOfDay(11, 0), DurationMinutes: 60, Status: domain.BookingStatusConfirmed},
		domain.Booking{ID: "dropped", Email: "claire@example.fr", Service: domain.ServiceSwedishMassage, Date: "2025-01-20", StartTime: domain.NewTimeOfDay(11, 0), DurationMinutes: 60, Status: domain.BookingStatusCancelled},
		domain.Booking{ID: "other", Email: "paul@example.fr", Service: domain.ServiceSwedishMassage, Date: "2025-01-07", StartTime: domain.NewTimeOfDay(14, 0), DurationMinutes: 60, Status: domain.BookingStatusConfirmed},
	)
	ctx := context.Background()

	view, err := h.svc.ClientBookings(ctx, " CLAIRE@example.fr", FilterAll)
	if err != nil {
		t.Fatalf("ClientBookings error: %v", err)
	}
	if view.Upcoming != 2 || view.Past != 1 || view.Cancelled != 1 {
		t.Fatalf("counts = %+v", view)
	}
	if got := ids(view.Bookings); got != "later,dropped,soon,past" {
		t.Fatalf("order = %s", got)
	}

	view, _ = h.svc.ClientBookings(ctx, "claire@example.fr", FilterUpcoming)
	if got := ids(view.Bookings); got != "later,soon" {
		t.Fatalf("upcoming = %s", got)
	}

	admin, err := h.svc.AdminBookings(ctx, FilterFuture)
	if err != nil || ids(admin) != "later,other,soon" {
		t.Fatalf("admin future = %s, %v", ids(admin), err)
	}

	stats, err := h.svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	want := Stats{Total: 5, Confirmed: 4, Cancelled: 1, Future: 3, Past: 1, EnabledSlots: len(domain.DefaultTemplate())}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}

	next, err := h.svc.Upcoming(ctx, 2)
	if err != nil || ids(next) != "soon,other" {
		t.Fatalf("upcoming = %s, %v", ids(next), err)
	}

	summary, err := h.svc.Loyalty(ctx, "claire@example.fr")
	if err != nil || summary.Points != 110 || summary.Tier != loyalty.TierBronze {
		t.Fatalf("loyalty = %+v, %v", summary, err)
	}

	if _, err := h.svc.ClientBookings(ctx, "", FilterAll); err == nil {
		t.Fatalf("expected validation error for empty email")
	}
}

func TestParseFilter(t *testing.T) {
	for in, want := range map[string]Filter{"": FilterAll, "ALL": FilterAll, "future": FilterUpcoming, "upcoming": FilterUpcoming, "past": FilterPast, "cancelled": FilterCancelled} {
		got, err := ParseFilter(in)
		if err != nil || got != want {
			t.Fatalf("ParseFilter(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFilter("soon"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestExportAndReset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.svc.Commit(ctx, validInput()); err != nil {
		t.Fatalf("Commit error: %v", err)
	}

	doc, err := h.svc.Export(ctx)
	if err != nil || len(doc.Bookings) != 1 || len(doc.Slots) != len(domain.DefaultTemplate()) || !doc.ExportDate.Equal(fixedNow) {
		t.Fatalf("export = %+v, %v", doc, err)
	}

	if err := h.svc.Reset(ctx, "reset"); err == nil {
		t.Fatalf("expected validation error for wrong confirmation")
	}
	if err := h.store.SaveSlots(ctx, nil); err != nil {
		t.Fatalf("SaveSlots error: %v", err)
	}
	if err := h.svc.Reset(ctx, ResetConfirmation); err != nil {
		t.Fatalf("Reset error: %v", err)
	}
	bookings, _ := h.store.LoadBookings(ctx)
	slots, _ := h.store.LoadSlots(ctx)
	if len(bookings) != 0 || len(slots) != len(domain.DefaultTemplate()) {
		t.Fatalf("after reset: %d bookings, %d slots", len(bookings), len(slots))
	}
}

func TestAttachPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b, err := h.svc.Commit(ctx, validInput())
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}

	updated, err := h.svc.AttachPayment(ctx, b.ID, "pi_123")
	if err != nil || updated.PaymentReference != "pi_123" {
		t.Fatalf("AttachPayment = %+v, %v", updated, err)
	}
	got, err := h.svc.Get(ctx, b.ID)
	if err != nil || got.PaymentReference != "pi_123" {
		t.Fatalf("Get = %+v, %v", got, err)
	}

	if _, err := h.svc.Cancel(ctx, b.ID); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	var vErr *ValidationError
	if _, err := h.svc.AttachPayment(ctx, b.ID, "pi_456"); !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if _, err := h.svc.AttachPayment(ctx, "BKG-NOPE", "pi_1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func ids(bookings []domain.Booking) string {
	out := make([]string, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, b.ID)
	}
	return strings.Join(out, ",")
}
