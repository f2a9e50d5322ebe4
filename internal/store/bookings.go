package store

import (
	"context"

	"harmonie/backend/internal/domain"
)

// SlotStore holds the weekly template. Load and Save act on the whole
// collection; an empty store loads as an empty slice.
type SlotStore interface {
	LoadSlots(ctx context.Context) ([]domain.SlotTemplate, error)
	SaveSlots(ctx context.Context, slots []domain.SlotTemplate) error
}

type BookingStore interface {
	LoadBookings(ctx context.Context) ([]domain.Booking, error)
	SaveBookings(ctx context.Context, bookings []domain.Booking) error
}

// BookingTransactor runs fn with exclusive access to the booking collection.
// fn sees a BookingStore whose loads and saves belong to the same unit of work.
type BookingTransactor interface {
	InBookingTransaction(ctx context.Context, fn func(ctx context.Context, tx BookingStore) error) error
}

// Backend is what a storage driver provides to the services.
type Backend interface {
	SlotStore
	BookingStore
	BookingTransactor
}

// RunBookingTx uses the store's transaction when it has one and otherwise runs
// fn directly against s. Without a transaction, two writers can both pass a
// check made inside fn before either saves.
func RunBookingTx(ctx context.Context, s BookingStore, fn func(ctx context.Context, tx BookingStore) error) error {
	if t, ok := s.(BookingTransactor); ok {
		return t.InBookingTransaction(ctx, fn)
	}
	return fn(ctx, s)
}

func FindBooking(bookings []domain.Booking, id string) (int, bool) {
	for i, b := range bookings {
		if b.ID == id {
			return i, true
		}
	}
	return -1, false
}
