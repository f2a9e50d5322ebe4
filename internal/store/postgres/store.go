package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"harmonie/backend/internal/domain"
	"harmonie/backend/internal/store"
)

const (
	slotsLockKey    = "harmonie:slot_templates"
	bookingsLockKey = "harmonie:bookings"
)

type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

type bookingTx struct {
	tx bun.Tx
}

func (s *Store) LoadSlots(ctx context.Context) ([]domain.SlotTemplate, error) {
	rows, err := selectSlots(ctx, s.db)
	if err != nil {
		return nil, store.Unavailable("load slots", err)
	}
	return rows, nil
}

func (s *Store) SaveSlots(ctx context.Context, slots []domain.SlotTemplate) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := advisoryLock(ctx, tx, slotsLockKey); err != nil {
			return err
		}
		return replaceSlots(ctx, tx, slots)
	})
	if err != nil {
		return store.Unavailable("save slots", err)
	}
	return nil
}

func (s *Store) LoadBookings(ctx context.Context) ([]domain.Booking, error) {
	rows, err := selectBookings(ctx, s.db)
	if err != nil {
		return nil, store.Unavailable("load bookings", err)
	}
	return rows, nil
}

func (s *Store) SaveBookings(ctx context.Context, bookings []domain.Booking) error {
	return s.InBookingTransaction(ctx, func(ctx context.Context, tx store.BookingStore) error {
		return tx.SaveBookings(ctx, bookings)
	})
}

// InBookingTransaction holds a transaction-scoped advisory lock on the booking
// collection, so concurrent commits on any instance run one after another.
func (s *Store) InBookingTransaction(ctx context.Context, fn func(ctx context.Context, tx store.BookingStore) error) error {
	var fnErr error
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := advisoryLock(ctx, tx, bookingsLockKey); err != nil {
			return store.Unavailable("lock bookings", err)
		}
		fnErr = fn(ctx, bookingTx{tx: tx})
		return fnErr
	})
	if err != nil && fnErr == nil && !errors.Is(err, store.ErrUnavailable) {
		return store.Unavailable("booking transaction", err)
	}
	return err
}

func (t bookingTx) LoadBookings(ctx context.Context) ([]domain.Booking, error) {
	rows, err := selectBookings(ctx, t.tx)
	if err != nil {
		return nil, store.Unavailable("load bookings", err)
	}
	return rows, nil
}

func (t bookingTx) SaveBookings(ctx context.Context, bookings []domain.Booking) error {
	if err := replaceBookings(ctx, t.tx, bookings); err != nil {
		return store.Unavailable("save bookings", err)
	}
	return nil
}

func advisoryLock(ctx context.Context, tx bun.Tx, key string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", key).Exec(ctx)
	return err
}

func selectSlots(ctx context.Context, db bun.IDB) ([]domain.SlotTemplate, error) {
	var rows []domain.SlotTemplate
	err := db.NewSelect().
		Model(&rows).
		OrderExpr("start_minute ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	domain.SortTemplates(rows)
	if rows == nil {
		rows = []domain.SlotTemplate{}
	}
	return rows, nil
}

func selectBookings(ctx context.Context, db bun.IDB) ([]domain.Booking, error) {
	var rows []domain.Booking
	err := db.NewSelect().
		Model(&rows).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if rows == nil {
		rows = []domain.Booking{}
	}
	return rows, nil
}

// replaceSlots makes the table hold exactly slots: rows are upserted by id and
// rows whose id is absent are removed.
func replaceSlots(ctx context.Context, db bun.IDB, slots []domain.SlotTemplate) error {
	if len(slots) == 0 {
		_, err := db.NewDelete().Model((*domain.SlotTemplate)(nil)).Where("TRUE").Exec(ctx)
		return err
	}

	rows := append([]domain.SlotTemplate{}, slots...)
	if _, err := upsertSlotsQuery(db, &rows).Exec(ctx); err != nil {
		return err
	}

	_, err := db.NewDelete().
		Model((*domain.SlotTemplate)(nil)).
		Where("id NOT IN (?)", bun.In(slotIDs(slots))).
		Exec(ctx)
	return err
}

func replaceBookings(ctx context.Context, db bun.IDB, bookings []domain.Booking) error {
	if len(bookings) == 0 {
		_, err := db.NewDelete().Model((*domain.Booking)(nil)).Where("TRUE").Exec(ctx)
		return err
	}

	rows := append([]domain.Booking{}, bookings...)
	if _, err := upsertBookingsQuery(db, &rows).Exec(ctx); err != nil {
		return err
	}

	_, err := db.NewDelete().
		Model((*domain.Booking)(nil)).
		Where("id NOT IN (?)", bun.In(bookingIDs(bookings))).
		Exec(ctx)
	return err
}

func upsertSlotsQuery(db bun.IDB, rows *[]domain.SlotTemplate) *bun.InsertQuery {
	return db.NewInsert().
		Model(rows).
		On("CONFLICT (id) DO UPDATE").
		Set("weekday = EXCLUDED.weekday").
		Set("start_minute = EXCLUDED.start_minute").
		Set("enabled = EXCLUDED.enabled").
		Set("duration_minutes = EXCLUDED.duration_minutes")
}

// Created-at is never rewritten once a booking exists.
func upsertBookingsQuery(db bun.IDB, rows *[]domain.Booking) *bun.InsertQuery {
	return db.NewInsert().
		Model(rows).
		On("CONFLICT (id) DO UPDATE").
		Set("given_name = EXCLUDED.given_name").
		Set("family_name = EXCLUDED.family_name").
		Set("email = EXCLUDED.email").
		Set("phone = EXCLUDED.phone").
		Set("service = EXCLUDED.service").
		Set("booking_date = EXCLUDED.booking_date").
		Set("start_minute = EXCLUDED.start_minute").
		Set("duration_minutes = EXCLUDED.duration_minutes").
		Set("status = EXCLUDED.status").
		Set("message = EXCLUDED.message").
		Set("payment_reference = EXCLUDED.payment_reference").
		Set("cancelled_at = EXCLUDED.cancelled_at")
}

func slotIDs(slots []domain.SlotTemplate) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.ID)
	}
	return out
}

func bookingIDs(bookings []domain.Booking) []string {
	out := make([]string, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, b.ID)
	}
	return out
}
