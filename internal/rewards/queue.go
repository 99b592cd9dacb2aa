package rewards

import (
	"context"
	"time"

	"github.com/placebook/placebook/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// dispatchBatchSize bounds how many events one dispatcher pass claims.
	dispatchBatchSize = 50
	// retryBackoffBase is the first redelivery delay; it doubles per attempt.
	retryBackoffBase = 10 * time.Second
	// retryBackoffCap bounds the redelivery delay.
	retryBackoffCap = 10 * time.Minute
)

// Queue persists booking events for asynchronous ledger application. Intake
// commits independently of the ledger: the booking lifecycle never waits on
// point accrual.
type Queue struct {
	db *gorm.DB
}

// NewQueue constructs a Queue.
func NewQueue(db *gorm.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue stores one booking event for dispatch. Redelivered events collapse
// on the (booking, event type) unique index, so intake is idempotent.
func (q *Queue) Enqueue(ctx context.Context, evt BookingEvent) error {
	row := models.RewardEvent{
		EventType:  evt.Type,
		BookingID:  evt.BookingID,
		UserID:     evt.UserID,
		PlaceID:    evt.PlaceID,
		TotalPrice: evt.TotalPrice,
		Status:     models.EventStatusPending,
	}
	return q.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "booking_id"}, {Name: "event_type"}},
		DoNothing: true,
	}).Create(&row).Error
}

// Dispatcher drains the event queue in the background, applying events
// through the BookingEventAdapter with bounded retries.
type Dispatcher struct {
	db          *gorm.DB
	adapter     *BookingEventAdapter
	interval    time.Duration
	maxAttempts int
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(db *gorm.DB, adapter *BookingEventAdapter, interval time.Duration, maxAttempts int) *Dispatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Dispatcher{db: db, adapter: adapter, interval: interval, maxAttempts: maxAttempts}
}

// Start launches the dispatch loop in a background goroutine. It stops when
// the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			d.RunOnce(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// RunOnce processes one batch of due events and reports how many were
// applied.
func (d *Dispatcher) RunOnce(ctx context.Context) int {
	now := time.Now().UTC()

	var events []models.RewardEvent
	errFind := d.db.WithContext(ctx).
		Where("status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)", models.EventStatusPending, now).
		Order("id ASC").
		Limit(dispatchBatchSize).
		Find(&events).Error
	if errFind != nil {
		log.WithError(errFind).Warn("rewards: event queue poll failed")
		return 0
	}

	processed := 0
	for _, event := range events {
		if errHandle := d.adapter.Handle(ctx, BookingEvent{
			Type:       event.EventType,
			BookingID:  event.BookingID,
			UserID:     event.UserID,
			PlaceID:    event.PlaceID,
			TotalPrice: event.TotalPrice,
		}); errHandle != nil {
			d.reschedule(ctx, &event, errHandle)
			continue
		}

		if errUpdate := d.db.WithContext(ctx).
			Model(&models.RewardEvent{}).
			Where("id = ?", event.ID).
			Updates(map[string]any{
				"status":          models.EventStatusProcessed,
				"attempts":        event.Attempts + 1,
				"last_error":      "",
				"next_attempt_at": nil,
			}).Error; errUpdate != nil {
			log.WithError(errUpdate).WithField("event_id", event.ID).
				Warn("rewards: mark event processed failed")
			continue
		}
		processed++
	}
	return processed
}

// reschedule records a dispatch failure and either re-queues the event with
// exponential backoff or abandons it after the attempt budget.
func (d *Dispatcher) reschedule(ctx context.Context, event *models.RewardEvent, cause error) {
	attempts := event.Attempts + 1
	updates := map[string]any{
		"attempts":   attempts,
		"last_error": cause.Error(),
	}

	if attempts >= d.maxAttempts {
		updates["status"] = models.EventStatusFailed
		log.WithError(cause).WithFields(log.Fields{
			"event_id":   event.ID,
			"booking_id": event.BookingID,
			"attempts":   attempts,
		}).Error("rewards: event abandoned after retries")
	} else {
		backoff := retryBackoffBase << (attempts - 1)
		if backoff > retryBackoffCap {
			backoff = retryBackoffCap
		}
		next := time.Now().UTC().Add(backoff)
		updates["next_attempt_at"] = next
		log.WithError(cause).WithFields(log.Fields{
			"event_id":   event.ID,
			"booking_id": event.BookingID,
			"attempts":   attempts,
			"retry_at":   next,
		}).Warn("rewards: event dispatch failed, will retry")
	}

	if errUpdate := d.db.WithContext(ctx).
		Model(&models.RewardEvent{}).
		Where("id = ?", event.ID).
		Updates(updates).Error; errUpdate != nil {
		log.WithError(errUpdate).WithField("event_id", event.ID).
			Warn("rewards: reschedule event failed")
	}
}
