package db

import (
	"fmt"

	"github.com/placebook/placebook/internal/models"
	"gorm.io/gorm"
)

// Migrate runs schema auto-migration for all persisted models, then creates
// the constraints AutoMigrate cannot express.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Admin{},
		&models.Place{},
		&models.RewardSettings{},
		&models.RewardAccount{},
		&models.LedgerEntry{},
		&models.RewardEvent{},
	); errMigrate != nil {
		return errMigrate
	}
	return createIndexes(conn)
}

// createIndexes adds the partial and expression indexes. The booking
// idempotency key covers earn and reversal entries only; redeem and adjust
// entries may reference the same booking repeatedly. The settings index makes
// the NULL place_id default row unique alongside the per-place rows, which a
// plain unique index cannot do since NULLs compare distinct.
func createIndexes(conn *gorm.DB) error {
	statements := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_reward_tx_event
			ON reward_transactions (customer_reward_id, booking_id, transaction_type)
			WHERE transaction_type IN ('earn', 'reversal')`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_reward_settings_place
			ON reward_settings ((COALESCE(place_id, 0)))`,
	}
	for _, statement := range statements {
		if errExec := conn.Exec(statement).Error; errExec != nil {
			return fmt.Errorf("db: create index: %w", errExec)
		}
	}
	return nil
}
