package models

import "time"

// Booking lifecycle event types consumed by the rewards engine.
const (
	// EventBookingCompleted signals a booking finished and may accrue points.
	EventBookingCompleted = "booking.completed"
	// EventBookingCancelled signals a completed booking was cancelled.
	EventBookingCancelled = "booking.cancelled"
)

// Reward event processing states.
const (
	// EventStatusPending marks an event waiting for dispatch.
	EventStatusPending = "pending"
	// EventStatusProcessed marks an event applied to the ledger.
	EventStatusProcessed = "processed"
	// EventStatusFailed marks an event abandoned after exhausting retries.
	EventStatusFailed = "failed"
)

// RewardEvent is a queued booking lifecycle event awaiting ledger application.
//
// Events are written at intake and processed by a background dispatcher, so a
// booking's own lifecycle never waits on, or fails because of, the ledger.
// The (BookingID, EventType) pair is unique: redelivered notifications collapse
// into the already-stored row.
type RewardEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	EventType string `gorm:"type:text;not null;uniqueIndex:uniq_reward_events_booking,priority:2"` // Lifecycle event type.
	BookingID uint64 `gorm:"not null;uniqueIndex:uniq_reward_events_booking,priority:1"`           // Source booking.

	UserID     uint64  `gorm:"not null;index"` // Customer the booking belongs to.
	PlaceID    uint64  `gorm:"not null;index"` // Place the booking belongs to.
	TotalPrice float64 `gorm:"not null"`       // Booking total, used for volume-based accrual.

	Status   string `gorm:"type:text;not null;default:'pending';index"` // Processing state.
	Attempts int    `gorm:"not null;default:0"`                         // Dispatch attempts so far.

	LastError     string     `gorm:"type:text"` // Most recent dispatch failure.
	NextAttemptAt *time.Time `gorm:"index"`     // Earliest time the dispatcher retries.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName maps RewardEvent to the reward_events table.
func (RewardEvent) TableName() string {
	return "reward_events"
}
