package rewards

import (
	"context"
	"errors"
	"fmt"

	"github.com/placebook/placebook/internal/models"
	log "github.com/sirupsen/logrus"
)

// BookingEvent is a booking lifecycle notification consumed by the rewards
// engine. It carries everything the ledger needs, keeping the engine decoupled
// from booking-table internals.
type BookingEvent struct {
	Type       string  `json:"type"`        // models.EventBookingCompleted or models.EventBookingCancelled.
	BookingID  uint64  `json:"booking_id"`  // Source booking.
	UserID     uint64  `json:"user_id"`     // Customer the booking belongs to.
	PlaceID    uint64  `json:"place_id"`    // Place the booking belongs to.
	TotalPrice float64 `json:"total_price"` // Booking total for volume-based accrual.
}

// BookingEventAdapter applies booking lifecycle events to the ledger.
//
// Delivery is at-least-once: the ledger's per-booking idempotency keys make
// reprocessing safe. Domain-level rejections (missing settings, out-of-order
// events) are logged and swallowed so a booking's own success never depends on
// the ledger; only errors worth retrying propagate to the caller.
type BookingEventAdapter struct {
	manager  *AccountManager
	settings *SettingsStore
}

// NewBookingEventAdapter constructs a BookingEventAdapter.
func NewBookingEventAdapter(manager *AccountManager, settings *SettingsStore) *BookingEventAdapter {
	return &BookingEventAdapter{manager: manager, settings: settings}
}

// Handle dispatches one booking event. A returned error means the event
// should be retried later; everything else has been applied or deliberately
// skipped.
func (a *BookingEventAdapter) Handle(ctx context.Context, evt BookingEvent) error {
	switch evt.Type {
	case models.EventBookingCompleted:
		return a.handleCompleted(ctx, evt)
	case models.EventBookingCancelled:
		return a.handleCancelled(ctx, evt)
	default:
		log.WithField("type", evt.Type).Warn("rewards: unknown booking event type, skipping")
		return nil
	}
}

func (a *BookingEventAdapter) handleCompleted(ctx context.Context, evt BookingEvent) error {
	settings, errSettings := a.settings.ActiveSettings(ctx, evt.PlaceID)
	if errSettings != nil {
		if errors.Is(errSettings, ErrSettingsUnavailable) {
			log.WithFields(log.Fields{
				"place_id":   evt.PlaceID,
				"booking_id": evt.BookingID,
			}).Warn("rewards: no active settings, granting no points")
			return nil
		}
		return fmt.Errorf("rewards: resolve settings: %w", errSettings)
	}

	points, errCompute := ComputePoints(settings, evt.TotalPrice)
	if errCompute != nil {
		log.WithError(errCompute).WithField("place_id", evt.PlaceID).
			Warn("rewards: accrual calculation unavailable, granting no points")
		return nil
	}

	account, entry, errAward := a.manager.Award(ctx, evt.UserID, evt.PlaceID, points, evt.BookingID,
		fmt.Sprintf("points for booking %d", evt.BookingID))
	if errAward != nil {
		if errors.Is(errAward, ErrInvalidTransition) {
			log.WithFields(log.Fields{
				"booking_id": evt.BookingID,
				"user_id":    evt.UserID,
			}).Warn("rewards: completion after reversal, skipping")
			return nil
		}
		return errAward
	}

	log.WithFields(log.Fields{
		"account_id": account.ID,
		"booking_id": evt.BookingID,
		"points":     entry.PointsChange,
		"balance":    account.PointsBalance,
		"tier":       account.Tier,
	}).Info("rewards: booking completion applied")
	return nil
}

func (a *BookingEventAdapter) handleCancelled(ctx context.Context, evt BookingEvent) error {
	account, entry, errReverse := a.manager.Reverse(ctx, evt.UserID, evt.PlaceID, evt.BookingID,
		fmt.Sprintf("reversal for cancelled booking %d", evt.BookingID))
	if errReverse != nil {
		return errReverse
	}
	if account == nil || entry == nil {
		// Nothing to undo; already logged by the manager.
		return nil
	}

	log.WithFields(log.Fields{
		"account_id": account.ID,
		"booking_id": evt.BookingID,
		"points":     entry.PointsChange,
		"balance":    account.PointsBalance,
	}).Info("rewards: booking cancellation applied")
	return nil
}
