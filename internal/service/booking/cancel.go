package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"harmonie/backend/internal/domain"
	"harmonie/backend/internal/store"
)

// Cancel moves a confirmed booking to cancelled. Cancelling an already
// cancelled booking returns it unchanged and has no side effects.
func (s *Service) Cancel(ctx context.Context, id string) (domain.Booking, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Booking{}, validationError("booking_id is required")
	}

	var out domain.Booking
	changed := false
	err := store.RunBookingTx(ctx, s.bookings, func(ctx context.Context, tx store.BookingStore) error {
		bookings, err := tx.LoadBookings(ctx)
		if err != nil {
			return err
		}
		i, ok := store.FindBooking(bookings, id)
		if !ok {
			return store.ErrNotFound
		}
		if !bookings[i].IsConfirmed() {
			out = bookings[i]
			return nil
		}
		cancelledAt := s.now().UTC()
		bookings[i].Status = domain.BookingStatusCancelled
		bookings[i].CancelledAt = &cancelledAt
		out = bookings[i]
		changed = true
		return tx.SaveBookings(ctx, bookings)
	})
	if err != nil {
		s.metrics.ObserveCancel(cancelResult(err))
		return domain.Booking{}, err
	}
	if !changed {
		s.metrics.ObserveCancel("noop")
		return out, nil
	}

	s.metrics.ObserveCancel("cancelled")
	s.logger.Info("booking cancelled", slog.String("booking_id", out.ID), slog.String("date", out.Date))

	if s.notifier != nil {
		err := s.notifier.BookingCancelled(ctx, out)
		s.metrics.ObserveNotification("cancellation", err)
		if err != nil {
			s.logger.Warn("cancellation email failed", slog.Any("err", err), slog.String("booking_id", out.ID))
		}
	}
	err = s.reminders.Cancel(ctx, out.ID)
	s.metrics.ObserveReminder("cancel", err)
	if err != nil {
		s.logger.Warn("reminder removal failed", slog.Any("err", err), slog.String("booking_id", out.ID))
	}
	return out, nil
}

func cancelResult(err error) string {
	if errors.Is(err, store.ErrNotFound) {
		return "not_found"
	}
	return "error"
}

// AttachPayment records a payment reference on a confirmed booking.
func (s *Service) AttachPayment(ctx context.Context, id, reference string) (domain.Booking, error) {
	id = strings.TrimSpace(id)
	reference = strings.TrimSpace(reference)
	if id == "" {
		return domain.Booking{}, validationError("booking_id is required")
	}
	if reference == "" {
		return domain.Booking{}, validationError("payment reference is required")
	}

	var out domain.Booking
	err := store.RunBookingTx(ctx, s.bookings, func(ctx context.Context, tx store.BookingStore) error {
		bookings, err := tx.LoadBookings(ctx)
		if err != nil {
			return err
		}
		i, ok := store.FindBooking(bookings, id)
		if !ok {
			return store.ErrNotFound
		}
		if !bookings[i].IsConfirmed() {
			return validationError("booking is cancelled")
		}
		if bookings[i].PaymentReference == reference {
			out = bookings[i]
			return nil
		}
		bookings[i].PaymentReference = reference
		out = bookings[i]
		return tx.SaveBookings(ctx, bookings)
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return out, nil
}
