package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"harmonie/backend/internal/domain"
	"harmonie/backend/internal/store"
	"harmonie/backend/migrations"
)

func openIntegrationStore(t *testing.T) (*Store, context.Context) {
	t.Helper()

	databaseURL := strings.TrimSpace(os.Getenv("HARMONIE_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("HARMONIE_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	admin, err := Open(ctx, databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = Close(admin) })

	schema := "harmonie_test_" + randomHex(t, 8)
	if _, err := admin.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = admin.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	scopedURL, err := withSearchPath(databaseURL, schema)
	if err != nil {
		t.Fatalf("search path: %v", err)
	}
	db, err := Open(ctx, scopedURL, PoolConfig{MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("Open scoped error: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })

	if err := CheckSchema(ctx, db); !errors.Is(err, ErrSchemaMissing) {
		t.Fatalf("CheckSchema before migrations = %v, want ErrSchemaMissing", err)
	}
	if err := migrations.Up(ctx, db.DB, schema); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	if err := CheckSchema(ctx, db); err != nil {
		t.Fatalf("CheckSchema after migrations: %v", err)
	}
	return NewStore(db), ctx
}

func TestPostgresIntegration_SlotsRoundTrip(t *testing.T) {
	s, ctx := openIntegrationStore(t)

	slots, err := s.LoadSlots(ctx)
	if err != nil || len(slots) != 0 {
		t.Fatalf("LoadSlots on empty schema = %v, %v", slots, err)
	}

	defaults := domain.DefaultTemplate()
	if err := s.SaveSlots(ctx, defaults); err != nil {
		t.Fatalf("SaveSlots error: %v", err)
	}

	trimmed := append([]domain.SlotTemplate{}, defaults[:3]...)
	trimmed[1].Enabled = false
	trimmed[2].DurationMinutes = 120
	if err := s.SaveSlots(ctx, trimmed); err != nil {
		t.Fatalf("SaveSlots error: %v", err)
	}

	got, err := s.LoadSlots(ctx)
	if err != nil {
		t.Fatalf("LoadSlots error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(slots) = %d, want 3", len(got))
	}
	if got[0].StartTime != domain.NewTimeOfDay(9, 0) || got[1].Enabled || got[2].DurationMinutes != 120 {
		t.Fatalf("slots = %+v", got)
	}
}

func TestPostgresIntegration_BookingsTransactionSerializes(t *testing.T) {
	s, ctx := openIntegrationStore(t)

	cancelledAt := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	seed := []domain.Booking{{
		ID:              "BKG-SEED",
		GivenName:       "Marie",
		FamilyName:      "Curie",
		Email:           "marie@example.com",
		Phone:           "0600000000",
		Service:         domain.ServiceSwedishMassage,
		Date:            "2026-03-02",
		StartTime:       domain.NewTimeOfDay(10, 0),
		DurationMinutes: 60,
		Status:          domain.BookingStatusCancelled,
		CreatedAt:       time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
		CancelledAt:     &cancelledAt,
	}}
	if err := s.SaveBookings(ctx, seed); err != nil {
		t.Fatalf("SaveBookings error: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.InBookingTransaction(ctx, func(ctx context.Context, tx store.BookingStore) error {
				bookings, err := tx.LoadBookings(ctx)
				if err != nil {
					return err
				}
				id, err := domain.NewBookingID()
				if err != nil {
					return err
				}
				b := seed[0]
				b.ID = id
				b.Status = domain.BookingStatusConfirmed
				b.CancelledAt = nil
				b.CreatedAt = time.Now().UTC()
				return tx.SaveBookings(ctx, append(bookings, b))
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("transaction error: %v", err)
		}
	}

	got, err := s.LoadBookings(ctx)
	if err != nil {
		t.Fatalf("LoadBookings error: %v", err)
	}
	if len(got) != 9 {
		t.Fatalf("len(bookings) = %d, want 9", len(got))
	}
	if got[0].ID != "BKG-SEED" || got[0].CancelledAt == nil || !got[0].CancelledAt.Equal(cancelledAt) {
		t.Fatalf("seed booking = %+v", got[0])
	}

	sentinel := errors.New("abort")
	err = s.InBookingTransaction(ctx, func(ctx context.Context, tx store.BookingStore) error {
		if err := tx.SaveBookings(ctx, nil); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
	got, _ = s.LoadBookings(ctx)
	if len(got) != 9 {
		t.Fatalf("rolled back transaction changed bookings: %d", len(got))
	}
}

func withSearchPath(databaseURL, schema string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func randomHex(t *testing.T, n int) string {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}
