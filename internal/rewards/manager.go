package rewards

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	dbutil "github.com/placebook/placebook/internal/db"
	"github.com/placebook/placebook/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// mutationAttempts bounds retries of a mutating transaction on lock
	// contention before surfacing ErrTransient.
	mutationAttempts = 3
	// retryBaseDelay is the first backoff step; it doubles per attempt.
	retryBaseDelay = 50 * time.Millisecond
)

// AccountManager owns the current-balance projection of reward accounts and
// mediates every mutation through the append-only ledger.
//
// Each mutating operation runs in one transaction holding a row lock on the
// account, so two concurrent mutations of the same account never interleave
// their read-modify-write. Mutations of different accounts are independent.
type AccountManager struct {
	db *gorm.DB
}

// NewAccountManager constructs an AccountManager.
func NewAccountManager(db *gorm.DB) *AccountManager {
	return &AccountManager{db: db}
}

// GetOrCreate returns the reward account for the (user, place) pair, creating
// it with zero balances and the default tier on first touch. Concurrent first
// touches collapse on the unique index: the loser refetches the winner's row.
func (m *AccountManager) GetOrCreate(ctx context.Context, userID, placeID uint64) (*models.RewardAccount, error) {
	return m.withAccount(ctx, userID, placeID, true, nil)
}

// OptIn enrolls the customer at a place, returning the (possibly new) account.
func (m *AccountManager) OptIn(ctx context.Context, userID, placeID uint64) (*models.RewardAccount, error) {
	return m.GetOrCreate(ctx, userID, placeID)
}

// GetAccount returns the account for the (user, place) pair, or
// ErrAccountNotFound.
func (m *AccountManager) GetAccount(ctx context.Context, userID, placeID uint64) (*models.RewardAccount, error) {
	var account models.RewardAccount
	errFind := m.db.WithContext(ctx).
		Where("user_id = ? AND place_id = ?", userID, placeID).
		First(&account).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("rewards: load account: %w", errFind)
	}
	return &account, nil
}

// ListEntries returns a page of the account's ledger, newest first, along
// with the total entry count.
func (m *AccountManager) ListEntries(ctx context.Context, accountID uint64, page, pageSize int) ([]models.LedgerEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := m.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Where("customer_reward_id = ?", accountID)

	var total int64
	if errCount := query.Count(&total).Error; errCount != nil {
		return nil, 0, fmt.Errorf("rewards: count entries: %w", errCount)
	}

	var entries []models.LedgerEntry
	errFind := query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error
	if errFind != nil {
		return nil, 0, fmt.Errorf("rewards: list entries: %w", errFind)
	}
	return entries, total, nil
}

// Award appends an earn entry for a completed booking and credits the balance
// and lifetime earned total. A repeated award for the same booking is an
// idempotent no-op returning the existing entry; an award for an already
// reversed booking is rejected with ErrInvalidTransition.
func (m *AccountManager) Award(ctx context.Context, userID, placeID uint64, points int64, bookingID uint64, description string) (*models.RewardAccount, *models.LedgerEntry, error) {
	if points < 0 {
		return nil, nil, fmt.Errorf("%w: negative award", ErrInvalidAmount)
	}

	var entry *models.LedgerEntry
	account, errRun := m.withAccount(ctx, userID, placeID, true, func(tx *gorm.DB, account *models.RewardAccount) error {
		existing, errLookup := bookingEntry(tx, account.ID, bookingID, models.EntryTypeEarn)
		if errLookup != nil {
			return errLookup
		}
		if existing != nil {
			log.WithFields(log.Fields{
				"account_id": account.ID,
				"booking_id": bookingID,
			}).Debug("rewards: duplicate completion event, reusing earn entry")
			entry = existing
			return nil
		}

		reversed, errLookup := bookingEntry(tx, account.ID, bookingID, models.EntryTypeReversal)
		if errLookup != nil {
			return errLookup
		}
		if reversed != nil {
			return fmt.Errorf("%w: booking %d was already reversed", ErrInvalidTransition, bookingID)
		}

		account.PointsBalance += points
		account.TotalPointsEarned += points
		account.Tier = TierFor(account.TotalPointsEarned)

		id := bookingID
		entry = &models.LedgerEntry{
			AccountID:          account.ID,
			BookingID:          &id,
			Type:               models.EntryTypeEarn,
			PointsChange:       points,
			PointsBalanceAfter: account.PointsBalance,
			Description:        description,
		}
		return tx.Create(entry).Error
	})
	if errRun != nil {
		return nil, nil, errRun
	}
	return account, entry, nil
}

// Reverse undoes the earn entry of a cancelled booking. Without a matching
// earn entry, or with the reversal already recorded, it is a no-op. The
// reversal magnitude is capped at the current balance: points already redeemed
// cannot be clawed back, the shortfall is logged instead.
func (m *AccountManager) Reverse(ctx context.Context, userID, placeID, bookingID uint64, description string) (*models.RewardAccount, *models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	account, errRun := m.withAccount(ctx, userID, placeID, false, func(tx *gorm.DB, account *models.RewardAccount) error {
		earned, errLookup := bookingEntry(tx, account.ID, bookingID, models.EntryTypeEarn)
		if errLookup != nil {
			return errLookup
		}
		if earned == nil {
			log.WithFields(log.Fields{
				"account_id": account.ID,
				"booking_id": bookingID,
			}).Warn("rewards: cancellation without a matching earn entry, skipping")
			return nil
		}

		existing, errLookup := bookingEntry(tx, account.ID, bookingID, models.EntryTypeReversal)
		if errLookup != nil {
			return errLookup
		}
		if existing != nil {
			log.WithFields(log.Fields{
				"account_id": account.ID,
				"booking_id": bookingID,
			}).Debug("rewards: duplicate cancellation event, reusing reversal entry")
			entry = existing
			return nil
		}

		reversal := earned.PointsChange
		if reversal > account.PointsBalance {
			log.WithFields(log.Fields{
				"account_id": account.ID,
				"booking_id": bookingID,
				"earned":     earned.PointsChange,
				"balance":    account.PointsBalance,
				"shortfall":  reversal - account.PointsBalance,
			}).Warn("rewards: reversal capped by remaining balance")
			reversal = account.PointsBalance
		}

		account.PointsBalance -= reversal
		account.TotalPointsEarned -= reversal
		account.Tier = TierFor(account.TotalPointsEarned)

		id := bookingID
		entry = &models.LedgerEntry{
			AccountID:          account.ID,
			BookingID:          &id,
			Type:               models.EntryTypeReversal,
			PointsChange:       -reversal,
			PointsBalanceAfter: account.PointsBalance,
			Description:        description,
		}
		return tx.Create(entry).Error
	})
	if errRun != nil {
		if errors.Is(errRun, ErrAccountNotFound) {
			log.WithFields(log.Fields{
				"user_id":    userID,
				"place_id":   placeID,
				"booking_id": bookingID,
			}).Warn("rewards: cancellation for unknown account, skipping")
			return nil, nil, nil
		}
		return nil, nil, errRun
	}
	return account, entry, nil
}

// AdjustManually appends a signed adjust entry. Positive deltas count into
// the lifetime earned total, negative ones into the redeemed total. Rejected
// with ErrInsufficientBalance when the balance would go negative.
func (m *AccountManager) AdjustManually(ctx context.Context, userID, placeID uint64, delta int64, description string) (*models.RewardAccount, *models.LedgerEntry, error) {
	if delta == 0 {
		return nil, nil, fmt.Errorf("%w: zero adjustment", ErrInvalidAmount)
	}

	var entry *models.LedgerEntry
	account, errRun := m.withAccount(ctx, userID, placeID, true, func(tx *gorm.DB, account *models.RewardAccount) error {
		if account.PointsBalance+delta < 0 {
			return ErrInsufficientBalance
		}

		account.PointsBalance += delta
		if delta > 0 {
			account.TotalPointsEarned += delta
		} else {
			account.TotalPointsRedeemed += -delta
		}
		account.Tier = TierFor(account.TotalPointsEarned)

		entry = &models.LedgerEntry{
			AccountID:          account.ID,
			Type:               models.EntryTypeAdjust,
			PointsChange:       delta,
			PointsBalanceAfter: account.PointsBalance,
			Description:        description,
		}
		return tx.Create(entry).Error
	})
	if errRun != nil {
		return nil, nil, errRun
	}
	return account, entry, nil
}

// Delete removes the account. Rejected with ErrNonZeroBalance while points
// remain on the balance.
func (m *AccountManager) Delete(ctx context.Context, userID, placeID uint64) error {
	return m.OptOut(ctx, userID, placeID, false)
}

// OptOut removes the customer's account at a place. A non-zero balance is
// rejected unless forfeit is set, in which case a forfeiture adjust entry
// zeroes the balance first. Ledger entries are retained.
func (m *AccountManager) OptOut(ctx context.Context, userID, placeID uint64, forfeit bool) error {
	return m.runInTx(ctx, func(tx *gorm.DB) error {
		var account models.RewardAccount
		errFind := dbutil.LockForUpdate(tx).
			Where("user_id = ? AND place_id = ?", userID, placeID).
			First(&account).Error
		if errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return errFind
		}

		if account.PointsBalance > 0 {
			if !forfeit {
				return ErrNonZeroBalance
			}
			forfeited := account.PointsBalance
			entry := models.LedgerEntry{
				AccountID:          account.ID,
				Type:               models.EntryTypeAdjust,
				PointsChange:       -forfeited,
				PointsBalanceAfter: 0,
				Description:        "opt-out forfeiture",
			}
			if errCreate := tx.Create(&entry).Error; errCreate != nil {
				return errCreate
			}
			log.WithFields(log.Fields{
				"account_id": account.ID,
				"forfeited":  forfeited,
			}).Info("rewards: balance forfeited on opt-out")
		}

		return tx.Delete(&models.RewardAccount{}, account.ID).Error
	})
}

// redeem debits points against the balance and records a redeem entry. The
// balance check and the debit share the account's critical section, so
// concurrent redemptions cannot overdraw.
func (m *AccountManager) redeem(ctx context.Context, userID, placeID uint64, points int64, rules *models.RedemptionRules, bookingID *uint64, description string) (*RedemptionResult, error) {
	if points <= 0 {
		return nil, fmt.Errorf("%w: redemption must be positive", ErrInvalidAmount)
	}
	if rules == nil || rules.RatePerPoint <= 0 {
		return nil, ErrRedemptionUnavailable
	}
	if rules.MinimumPoints > 0 && points < rules.MinimumPoints {
		return nil, fmt.Errorf("%w: minimum is %d points", ErrBelowMinimumRedemption, rules.MinimumPoints)
	}

	var result *RedemptionResult
	_, errRun := m.withAccount(ctx, userID, placeID, false, func(tx *gorm.DB, account *models.RewardAccount) error {
		if points > account.PointsBalance {
			return ErrInsufficientBalance
		}

		account.PointsBalance -= points
		account.TotalPointsRedeemed += points
		account.Tier = TierFor(account.TotalPointsEarned)

		entry := models.LedgerEntry{
			AccountID:          account.ID,
			BookingID:          bookingID,
			Type:               models.EntryTypeRedeem,
			PointsChange:       -points,
			PointsBalanceAfter: account.PointsBalance,
			Description:        description,
		}
		if errCreate := tx.Create(&entry).Error; errCreate != nil {
			return errCreate
		}

		result = &RedemptionResult{
			PointsRedeemed: points,
			DiscountAmount: float64(points) * rules.RatePerPoint,
			NewBalance:     account.PointsBalance,
		}
		return nil
	})
	if errRun != nil {
		return nil, errRun
	}
	return result, nil
}

// withAccount runs fn inside a transaction holding a row lock on the account,
// then persists the projected balance columns. With create set, a missing
// account is inserted first; otherwise ErrAccountNotFound is returned.
func (m *AccountManager) withAccount(ctx context.Context, userID, placeID uint64, create bool, fn func(tx *gorm.DB, account *models.RewardAccount) error) (*models.RewardAccount, error) {
	var account models.RewardAccount
	errRun := m.runInTx(ctx, func(tx *gorm.DB) error {
		account = models.RewardAccount{}
		errFind := dbutil.LockForUpdate(tx).
			Where("user_id = ? AND place_id = ?", userID, placeID).
			First(&account).Error
		if errFind != nil {
			if !errors.Is(errFind, gorm.ErrRecordNotFound) {
				return errFind
			}
			if !create {
				return ErrAccountNotFound
			}
			fresh := models.RewardAccount{UserID: userID, PlaceID: placeID, Tier: TierFor(0)}
			if errCreate := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "place_id"}},
				DoNothing: true,
			}).Create(&fresh).Error; errCreate != nil {
				return errCreate
			}
			if errRefetch := dbutil.LockForUpdate(tx).
				Where("user_id = ? AND place_id = ?", userID, placeID).
				First(&account).Error; errRefetch != nil {
				return errRefetch
			}
		}

		if fn == nil {
			return nil
		}
		if errFn := fn(tx, &account); errFn != nil {
			return errFn
		}

		return tx.Model(&models.RewardAccount{}).
			Where("id = ?", account.ID).
			Updates(map[string]any{
				"points_balance":        account.PointsBalance,
				"total_points_earned":   account.TotalPointsEarned,
				"total_points_redeemed": account.TotalPointsRedeemed,
				"tier":                  account.Tier,
			}).Error
	})
	if errRun != nil {
		return nil, errRun
	}
	return &account, nil
}

// runInTx executes fn in a transaction, retrying transient failures with
// exponential backoff before surfacing ErrTransient.
func (m *AccountManager) runInTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var lastErr error
	for attempt := 0; attempt < mutationAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBaseDelay << (attempt - 1)):
			}
		}
		errTx := m.db.WithContext(ctx).Transaction(fn)
		if errTx == nil {
			return nil
		}
		if !isTransient(errTx) {
			return errTx
		}
		lastErr = errTx
	}
	return fmt.Errorf("%w: %v", ErrTransient, lastErr)
}

// bookingEntry looks up the ledger entry of the given type for a booking, or
// nil when none exists.
func bookingEntry(tx *gorm.DB, accountID, bookingID uint64, entryType string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	errFind := tx.
		Where("customer_reward_id = ? AND booking_id = ? AND transaction_type = ?", accountID, bookingID, entryType).
		First(&entry).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errFind
	}
	return &entry, nil
}

// isTransient reports whether an error looks like lock contention or a
// storage timeout worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"database is locked",
		"database table is locked",
		"deadlock",
		"could not serialize",
		"lock timeout",
		"busy",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
