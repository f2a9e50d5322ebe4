// Package memory keeps both collections in process memory. It is the default
// backend for local runs and the fixture backend for service tests.
package memory

import (
	"context"
	"sync"

	"harmonie/backend/internal/domain"
	"harmonie/backend/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	txMu     sync.Mutex
	slots    []domain.SlotTemplate
	bookings []domain.Booking
}

func New() *Store {
	return &Store{}
}

func (s *Store) LoadSlots(ctx context.Context) ([]domain.SlotTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.SlotTemplate{}, s.slots...), nil
}

func (s *Store) SaveSlots(ctx context.Context, slots []domain.SlotTemplate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = append([]domain.SlotTemplate{}, slots...)
	return nil
}

func (s *Store) LoadBookings(ctx context.Context) ([]domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneBookings(s.bookings), nil
}

func (s *Store) SaveBookings(ctx context.Context, bookings []domain.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings = cloneBookings(bookings)
	return nil
}

// InBookingTransaction serializes booking writers within this process.
func (s *Store) InBookingTransaction(ctx context.Context, fn func(ctx context.Context, tx store.BookingStore) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx, s)
}

func cloneBookings(in []domain.Booking) []domain.Booking {
	out := make([]domain.Booking, len(in))
	copy(out, in)
	for i := range out {
		if out[i].CancelledAt != nil {
			at := *out[i].CancelledAt
			out[i].CancelledAt = &at
		}
	}
	return out
}
