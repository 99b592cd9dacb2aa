package models

import "time"

// Reward tier labels, ordered from lowest to highest.
const (
	// TierBronze is the default tier for new accounts.
	TierBronze = "bronze"
	// TierSilver is reached at 1,000 lifetime points.
	TierSilver = "silver"
	// TierGold is reached at 5,000 lifetime points.
	TierGold = "gold"
	// TierPlatinum is reached at 20,000 lifetime points.
	TierPlatinum = "platinum"
)

// RewardAccount holds the current points balance for one customer at one place.
//
// The balance is a projection over the account's ledger entries: at any moment
// PointsBalance equals the sum of PointsChange across all entries, and equals
// TotalPointsEarned minus TotalPointsRedeemed.
type RewardAccount struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID  uint64 `gorm:"not null;uniqueIndex:uniq_customer_rewards_user_place,priority:1"` // Owning customer.
	PlaceID uint64 `gorm:"not null;uniqueIndex:uniq_customer_rewards_user_place,priority:2"` // Scoping place.

	PointsBalance       int64 `gorm:"not null;default:0"` // Current spendable balance, never negative.
	TotalPointsEarned   int64 `gorm:"not null;default:0"` // Lifetime points credited.
	TotalPointsRedeemed int64 `gorm:"not null;default:0"` // Lifetime points debited.

	Tier string `gorm:"type:text;not null;default:'bronze'"` // Derived tier label, recomputable from TotalPointsEarned.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName maps RewardAccount to the customer_rewards table.
func (RewardAccount) TableName() string {
	return "customer_rewards"
}
