package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Calculation methods for accruing points on completed bookings.
const (
	// CalculationFixedPerBooking grants a flat amount per completed booking.
	CalculationFixedPerBooking = "fixed_per_booking"
	// CalculationVolumeBased grants points proportional to the booking total.
	CalculationVolumeBased = "volume_based"
)

// RewardSettings configures point accrual and redemption for one place.
// A row with a NULL PlaceID is the platform-wide default, used for places
// without their own settings.
type RewardSettings struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	// One row per place plus one default row; enforced by an expression index
	// over COALESCE(place_id, 0) created in db.Migrate.
	PlaceID *uint64 `gorm:"index"` // Scoped place; NULL marks the platform default.

	CalculationMethod     string  `gorm:"type:text;not null;default:'fixed_per_booking'"` // Accrual strategy.
	PointsPerBooking      int64   `gorm:"not null;default:0"`                             // Flat grant for fixed_per_booking.
	PointsPerCurrencyUnit float64 `gorm:"type:decimal(20,10);not null;default:0"`         // Rate for volume_based.

	RedemptionRules datatypes.JSON `gorm:"type:jsonb"` // JSON-encoded RedemptionRules.

	IsActive bool `gorm:"not null;default:true"` // Whether accrual and redemption are enabled.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// RedemptionRules defines how points convert into a monetary discount.
type RedemptionRules struct {
	RatePerPoint  float64 `json:"rate_per_point"`  // Currency value of one point.
	MinimumPoints int64   `json:"minimum_points"`  // Smallest redeemable amount; zero means no floor.
}

// DecodeRedemptionRules parses the JSON redemption rules. It returns nil when
// no rules are configured.
func (s *RewardSettings) DecodeRedemptionRules() (*RedemptionRules, error) {
	if s == nil || len(s.RedemptionRules) == 0 {
		return nil, nil
	}
	var rules RedemptionRules
	if errUnmarshal := json.Unmarshal(s.RedemptionRules, &rules); errUnmarshal != nil {
		return nil, errUnmarshal
	}
	return &rules, nil
}
