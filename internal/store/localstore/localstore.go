// Package localstore persists the two collections the way a single browser
// profile would: one JSON document per key in a small SQLite file.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"harmonie/backend/internal/domain"
	"harmonie/backend/internal/store"
)

const (
	SlotsKey    = "harmonie-booking-slots"
	BookingsKey = "harmonie-bookings"
)

type entry struct {
	Key       string         `gorm:"column:storage_key;type:varchar(128);primaryKey"`
	Value     datatypes.JSON `gorm:"column:value;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null"`
}

func (entry) TableName() string { return "local_storage" }

type Store struct {
	db *gorm.DB
	mu sync.Mutex
}

// Open creates or reuses the SQLite file at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&entry{}); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) LoadSlots(ctx context.Context) ([]domain.SlotTemplate, error) {
	slots := []domain.SlotTemplate{}
	if err := load(ctx, s.db, SlotsKey, &slots); err != nil {
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
	if err := save(ctx, s.db, SlotsKey, slots); err != nil {
		return store.Unavailable("save slots", err)
	}
	return nil
}

func (s *Store) LoadBookings(ctx context.Context) ([]domain.Booking, error) {
	return loadBookings(ctx, s.db)
}

func (s *Store) SaveBookings(ctx context.Context, bookings []domain.Booking) error {
	return saveBookings(ctx, s.db, bookings)
}

// InBookingTransaction serializes writers of this process and runs fn inside
// one SQLite transaction. Other processes sharing the file are not
// coordinated beyond SQLite's own locking.
func (s *Store) InBookingTransaction(ctx context.Context, fn func(ctx context.Context, tx store.BookingStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, txStore{db: tx})
	})
}

type txStore struct {
	db *gorm.DB
}

func (t txStore) LoadBookings(ctx context.Context) ([]domain.Booking, error) {
	return loadBookings(ctx, t.db)
}

func (t txStore) SaveBookings(ctx context.Context, bookings []domain.Booking) error {
	return saveBookings(ctx, t.db, bookings)
}

func loadBookings(ctx context.Context, db *gorm.DB) ([]domain.Booking, error) {
	bookings := []domain.Booking{}
	if err := load(ctx, db, BookingsKey, &bookings); err != nil {
		return nil, store.Unavailable("load bookings", err)
	}
	if bookings == nil {
		bookings = []domain.Booking{}
	}
	return bookings, nil
}

func saveBookings(ctx context.Context, db *gorm.DB, bookings []domain.Booking) error {
	if bookings == nil {
		bookings = []domain.Booking{}
	}
	if err := save(ctx, db, BookingsKey, bookings); err != nil {
		return store.Unavailable("save bookings", err)
	}
	return nil
}

// load leaves out untouched when key has never been written.
func load(ctx context.Context, db *gorm.DB, key string, out any) error {
	var e entry
	err := db.WithContext(ctx).Where("storage_key = ?", key).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(e.Value, out)
}

func save(ctx context.Context, db *gorm.DB, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&entry{Key: key, Value: datatypes.JSON(b), UpdatedAt: time.Now().UTC()}).
		Error
}
