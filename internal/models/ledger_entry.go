package models

import "time"

// Ledger entry types.
const (
	// EntryTypeEarn credits points for a completed booking.
	EntryTypeEarn = "earn"
	// EntryTypeRedeem debits points exchanged for a discount.
	EntryTypeRedeem = "redeem"
	// EntryTypeAdjust records a manual signed correction.
	EntryTypeAdjust = "adjust"
	// EntryTypeReversal undoes an earn after its booking is cancelled.
	EntryTypeReversal = "reversal"
)

// LedgerEntry is one signed point movement on a reward account.
//
// Entries are append-only: they are never updated or deleted. Ordered by ID,
// the PointsChange values of an account's entries form a prefix-sum sequence
// whose last PointsBalanceAfter equals the account's current balance.
//
// Earn and reversal entries are unique per (account, booking, type); the
// partial index enforcing it lives in db.Migrate because the scoping cannot be
// expressed in a struct tag. Redeem and adjust entries carry the booking only
// as advisory metadata and may repeat.
type LedgerEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key, also the per-account ordering.

	AccountID uint64  `gorm:"column:customer_reward_id;not null;index"` // Owning reward account.
	BookingID *uint64 `gorm:"index"`                                    // Source booking, required for earn/reversal entries.

	Type string `gorm:"column:transaction_type;type:text;not null"` // Entry type.

	PointsChange       int64 `gorm:"not null"` // Signed point delta.
	PointsBalanceAfter int64 `gorm:"not null"` // Balance snapshot after applying the delta.

	Description string `gorm:"type:text"` // Human-readable reason.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName maps LedgerEntry to the reward_transactions table.
func (LedgerEntry) TableName() string {
	return "reward_transactions"
}
