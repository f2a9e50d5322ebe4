package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"harmonie/backend/internal/domain"
	"harmonie/backend/internal/store"
)

var _ store.Backend = (*Store)(nil)

func TestStore_EmptyLoadsAsEmpty(t *testing.T) {
	s := New()
	slots, err := s.LoadSlots(context.Background())
	if err != nil || len(slots) != 0 {
		t.Fatalf("LoadSlots = %v, %v", slots, err)
	}
	bookings, err := s.LoadBookings(context.Background())
	if err != nil || len(bookings) != 0 {
		t.Fatalf("LoadBookings = %v, %v", bookings, err)
	}
}

func TestStore_SaveCopiesCollections(t *testing.T) {
	ctx := context.Background()
	s := New()

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cancelledAt := at
	in := []domain.Booking{{ID: "BKG-1", Status: domain.BookingStatusCancelled, CancelledAt: &cancelledAt}}
	if err := s.SaveBookings(ctx, in); err != nil {
		t.Fatalf("SaveBookings error: %v", err)
	}
	in[0].ID = "mutated"
	*in[0].CancelledAt = at.Add(time.Hour)

	out, err := s.LoadBookings(ctx)
	if err != nil {
		t.Fatalf("LoadBookings error: %v", err)
	}
	if out[0].ID != "BKG-1" || !out[0].CancelledAt.Equal(at) {
		t.Fatalf("store shares memory with caller: %+v", out[0])
	}

	slots := domain.DefaultTemplate()
	if err := s.SaveSlots(ctx, slots); err != nil {
		t.Fatalf("SaveSlots error: %v", err)
	}
	slots[0].Enabled = false
	loaded, _ := s.LoadSlots(ctx)
	if !loaded[0].Enabled {
		t.Fatalf("slot store shares memory with caller")
	}
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().LoadBookings(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestStore_TransactionSerializesWriters(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.InBookingTransaction(ctx, func(ctx context.Context, tx store.BookingStore) error {
				bookings, err := tx.LoadBookings(ctx)
				if err != nil {
					return err
				}
				id, err := domain.NewBookingID()
				if err != nil {
					return err
				}
				return tx.SaveBookings(ctx, append(bookings, domain.Booking{ID: id}))
			})
		}()
	}
	wg.Wait()

	bookings, _ := s.LoadBookings(ctx)
	if len(bookings) != 20 {
		t.Fatalf("len(bookings) = %d, want 20", len(bookings))
	}
}
