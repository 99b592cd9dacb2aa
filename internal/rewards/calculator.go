package rewards

import (
	"math"

	"github.com/placebook/placebook/internal/models"
)

// ComputePoints maps a completed booking's total price to the points it earns
// under the given settings snapshot. It is a pure function: the caller resolves
// the settings beforehand and later changes never alter past results.
//
// Missing or inactive settings yield zero points and ErrSettingsUnavailable;
// the caller decides whether that is fatal. The result is never negative.
func ComputePoints(settings *models.RewardSettings, totalPrice float64) (int64, error) {
	if settings == nil || !settings.IsActive {
		return 0, ErrSettingsUnavailable
	}

	switch settings.CalculationMethod {
	case models.CalculationFixedPerBooking:
		if settings.PointsPerBooking <= 0 {
			return 0, nil
		}
		return settings.PointsPerBooking, nil
	case models.CalculationVolumeBased:
		if totalPrice <= 0 || settings.PointsPerCurrencyUnit <= 0 {
			return 0, nil
		}
		return int64(math.Floor(totalPrice * settings.PointsPerCurrencyUnit)), nil
	default:
		return 0, ErrSettingsUnavailable
	}
}
