package rewards

import (
	"context"
	"errors"
	"fmt"
)

// RedemptionResult reports the outcome of a successful redemption.
type RedemptionResult struct {
	PointsRedeemed int64   `json:"points_redeemed"` // Points debited from the balance.
	DiscountAmount float64 `json:"discount_amount"` // Monetary discount granted.
	NewBalance     int64   `json:"new_balance"`     // Balance after the debit.
}

// RedemptionEngine converts points into monetary discounts under the place's
// active redemption rules.
type RedemptionEngine struct {
	manager  *AccountManager
	settings *SettingsStore
}

// NewRedemptionEngine constructs a RedemptionEngine.
func NewRedemptionEngine(manager *AccountManager, settings *SettingsStore) *RedemptionEngine {
	return &RedemptionEngine{manager: manager, settings: settings}
}

// Redeem validates and executes a point-to-discount conversion. The rules are
// resolved from the place's active settings snapshot; the balance check and
// debit run inside the account's critical section, so a concurrent redemption
// cannot overdraw. bookingID optionally ties the discount to a booking.
func (e *RedemptionEngine) Redeem(ctx context.Context, userID, placeID uint64, points int64, bookingID *uint64, description string) (*RedemptionResult, error) {
	settings, errSettings := e.settings.ActiveSettings(ctx, placeID)
	if errSettings != nil {
		if errors.Is(errSettings, ErrSettingsUnavailable) {
			return nil, ErrRedemptionUnavailable
		}
		return nil, errSettings
	}

	rules, errDecode := settings.DecodeRedemptionRules()
	if errDecode != nil {
		return nil, fmt.Errorf("%w: malformed rules", ErrRedemptionUnavailable)
	}

	return e.manager.redeem(ctx, userID, placeID, points, rules, bookingID, description)
}
