package models

import "time"

// Place represents a bookable business location.
type Place struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name        string  `gorm:"type:text;not null"` // Display name.
	OwnerUserID *uint64 `gorm:"index"`              // Administrating user, if any.

	Active bool `gorm:"not null;default:true"` // Whether the place accepts bookings.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
