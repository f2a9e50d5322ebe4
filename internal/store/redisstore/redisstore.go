// Package redisstore keeps each collection as one JSON value in Redis so that
// several server instances can share the same data.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"harmonie/backend/internal/domain"
	"harmonie/backend/internal/store"
)

const (
	DefaultKeyPrefix = "harmonie:"
	maxTxAttempts    = 3
)

type Store struct {
	client      redis.UniversalClient
	slotsKey    string
	bookingsKey string
}

func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{
		client:      client,
		slotsKey:    prefix + "slots",
		bookingsKey: prefix + "bookings",
	}
}

func (s *Store) LoadSlots(ctx context.Context) ([]domain.SlotTemplate, error) {
	slots := []domain.SlotTemplate{}
	if err := getJSON(ctx, s.client, s.slotsKey, &slots); err != nil {
		return nil, store.Unavailable("load slots", err)
	}
	if slots == nil {
		slots = []domain.SlotTemplate{}
	}
	return slots, nil
}

func (s *Store) SaveSlots(ctx context.Context, slots []domain.SlotTemplate) error {
	if slots == nil {
		slots = []domain.SlotTemplate{}
	}
	b, err := json.Marshal(slots)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.slotsKey, b, 0).Err(); err != nil {
		return store.Unavailable("save slots", err)
	}
	return nil
}

func (s *Store) LoadBookings(ctx context.Context) ([]domain.Booking, error) {
	return loadBookings(ctx, s.client, s.bookingsKey)
}

func (s *Store) SaveBookings(ctx context.Context, bookings []domain.Booking) error {
	b, err := marshalBookings(bookings)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.bookingsKey, b, 0).Err(); err != nil {
		return store.Unavailable("save bookings", err)
	}
	return nil
}

// InBookingTransaction runs fn under WATCH on the bookings key and applies the
// last SaveBookings made by fn in a MULTI block. When another writer changes
// the key first, fn runs again on fresh data; after a few lost races the
// call fails with store.ErrConflict.
func (s *Store) InBookingTransaction(ctx context.Context, fn func(ctx context.Context, tx store.BookingStore) error) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		var fnErr error
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			w := &watchedBookings{rtx: rtx, key: s.bookingsKey}
			if fnErr = fn(ctx, w); fnErr != nil {
				return fnErr
			}
			if w.pending == nil {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, s.bookingsKey, w.pending, 0)
				return nil
			})
			return err
		}, s.bookingsKey)

		switch {
		case err == nil:
			return nil
		case fnErr != nil:
			return fnErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return store.Unavailable("booking transaction", err)
		}
	}
	return fmt.Errorf("booking transaction: %w", store.ErrConflict)
}

type watchedBookings struct {
	rtx     *redis.Tx
	key     string
	pending []byte
}

func (w *watchedBookings) LoadBookings(ctx context.Context) ([]domain.Booking, error) {
	if w.pending != nil {
		var out []domain.Booking
		if err := json.Unmarshal(w.pending, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return loadBookings(ctx, w.rtx, w.key)
}

func (w *watchedBookings) SaveBookings(ctx context.Context, bookings []domain.Booking) error {
	b, err := marshalBookings(bookings)
	if err != nil {
		return err
	}
	w.pending = b
	return nil
}

func loadBookings(ctx context.Context, c redis.Cmdable, key string) ([]domain.Booking, error) {
	bookings := []domain.Booking{}
	if err := getJSON(ctx, c, key, &bookings); err != nil {
		return nil, store.Unavailable("load bookings", err)
	}
	if bookings == nil {
		bookings = []domain.Booking{}
	}
	return bookings, nil
}

func marshalBookings(bookings []domain.Booking) ([]byte, error) {
	if bookings == nil {
		bookings = []domain.Booking{}
	}
	return json.Marshal(bookings)
}

// getJSON leaves out untouched when key does not exist.
func getJSON(ctx context.Context, c redis.Cmdable, key string, out any) error {
	b, err := c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
