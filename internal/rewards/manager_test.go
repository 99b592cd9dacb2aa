package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/placebook/placebook/internal/db"
	"github.com/placebook/placebook/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := db.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func seedSettings(t *testing.T, conn *gorm.DB, placeID *uint64, method string, perBooking int64, perUnit float64, rules *models.RedemptionRules) *models.RewardSettings {
	t.Helper()
	row := models.RewardSettings{
		PlaceID:               placeID,
		CalculationMethod:     method,
		PointsPerBooking:      perBooking,
		PointsPerCurrencyUnit: perUnit,
		IsActive:              true,
	}
	if rules != nil {
		data, errMarshal := json.Marshal(rules)
		if errMarshal != nil {
			t.Fatalf("marshal rules: %v", errMarshal)
		}
		row.RedemptionRules = datatypes.JSON(data)
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("seed settings: %v", errCreate)
	}
	return &row
}

func ledgerSum(t *testing.T, conn *gorm.DB, accountID uint64) int64 {
	t.Helper()
	var sum int64
	if errSum := conn.Model(&models.LedgerEntry{}).
		Where("customer_reward_id = ?", accountID).
		Select("COALESCE(SUM(points_change), 0)").
		Scan(&sum).Error; errSum != nil {
		t.Fatalf("sum ledger: %v", errSum)
	}
	return sum
}

func TestGetOrCreateInitialisesAccount(t *testing.T) {
	conn := newTestDB(t)
	manager := NewAccountManager(conn)
	ctx := context.Background()

	account, errGet := manager.GetOrCreate(ctx, 1, 2)
	if errGet != nil {
		t.Fatalf("get or create: %v", errGet)
	}
	if account.PointsBalance != 0 || account.TotalPointsEarned != 0 || account.TotalPointsRedeemed != 0 {
		t.Fatalf("expected zeroed balances, got %+v", account)
	}
	if account.Tier != models.TierBronze {
		t.Fatalf("expected bronze tier, got %s", account.Tier)
	}

	again, errAgain := manager.GetOrCreate(ctx, 1, 2)
	if errAgain != nil {
		t.Fatalf("get or create again: %v", errAgain)
	}
	if again.ID != account.ID {
		t.Fatalf("expected same account, got %d and %d", account.ID, again.ID)
	}
}

func TestAwardCreditsBalanceAndLedger(t *testing.T) {
	conn := newTestDB(t)
	manager := NewAccountManager(conn)
	ctx := context.Background()

	account, entry, errAward := manager.Award(ctx, 1, 2, 150, 77, "points for booking 77")
	if errAward != nil {
		t.Fatalf("award: %v", errAward)
	}
	if account.PointsBalance != 150 || account.TotalPointsEarned != 150 {
		t.Fatalf("unexpected balances: %+v", account)
	}
	if entry.Type != models.EntryTypeEarn || entry.PointsChange != 150 || entry.PointsBalanceAfter != 150 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if sum := ledgerSum(t, conn, account.ID); sum != account.PointsBalance {
		t.Fatalf("ledger sum %d != balance %d", sum, account.PointsBalance)
	}
}

func TestAwardIsIdempotentPerBooking(t *testing.T) {
	conn := newTestDB(t)
	manager := NewAccountManager(conn)
	ctx := context.Background()

	first, firstEntry, errFirst := manager.Award(ctx, 1, 2, 100, 10, "")
	if errFirst != nil {
		t.Fatalf("first award: %v", errFirst)
	}
	second, secondEntry, errSecond := manager.Award(ctx, 1, 2, 100, 10, "")
	if errSecond != nil {
		t.Fatalf("duplicate award: %v", errSecond)
	}
	if second.PointsBalance != first.PointsBalance {
		t.Fatalf("duplicate award changed balance: %d -> %d", first.PointsBalance, second.PointsBalance)
	}
	if secondEntry.ID != firstEntry.ID {
		t.Fatalf("expected existing entry to be reused")
	}

	var count int64
	conn.Model(&models.LedgerEntry{}).Where("customer_reward_id = ?", first.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", count)
	}
}

func TestAwardAfterReversalRejected(t *testing.T) {
	conn := newTestDB(t)
	manager := NewAccountManager(conn)
	ctx := context.Background()

	if _, _, errAward := manager.Award(ctx, 1, 2, 100, 10, ""); errAward != nil {
		t.Fatalf("award: %v", errAward)
	}
	if _, _, errReverse := manager.Reverse(ctx, 1, 2, 10, ""); errReverse != nil {
		t.Fatalf("reverse: %v", errReverse)
	}

	if _, _, errAgain := manager.Award(ctx, 1, 2, 100, 10, ""); !errors.Is(errAgain, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", errAgain)
	}
}

func TestReverseRoundTrip(t *testing.T) {
	conn := newTestDB(t)
	manager := NewAccountManager(conn)
	ctx := context.Background()

	if _, _, errAward := manager.Award(ctx, 1, 2, 120, 10, ""); errAward != nil {
		t.Fatalf("award: %v", errAward)
	}
	account, entry, errReverse := manager.Reverse(ctx, 1, 2, 10, "reversal for cancelled booking 10")
	if errReverse != nil {
		t.Fatalf("reverse: %v", errReverse)
	}
	if account.PointsBalance != 0 || account.TotalPointsEarned != 0 {
		t.Fatalf("expected zeroed balances, got %+v", account)
	}
	if entry.PointsChange != -120 || entry.Type != models.EntryTypeReversal {
		t.Fatalf("unexpected reversal entry: %+v", entry)
	}
	if sum := ledgerSum(t, conn, account.ID); sum != 0 {
		t.Fatalf("ledger sum %d != 0", sum)
	}
}

func TestReverseIsIdempotent(t *testing.T) {
	conn := newTestDB(t)
	manager := NewAccountManager(conn)
	ctx := context.Background()

	if _, _, errAward := manager.Award(ctx, 1, 2, 120, 10, ""); errAward != nil {
		t.Fatalf("award: %v", errAward)
	}
	first, firstEntry, errFirst := manager.Reverse(ctx, 1, 2, 10, "")
	if errFirst != nil {
		t.Fatalf("first reverse: %v", errFirst)
	}
	second, secondEntry, errSecond := manager.Reverse(ctx, 1, 2, 10, "")
	if errSecond != nil {
		t.Fatalf("duplicate reverse: %v", errSecond)
	}
	if second.PointsBalance != first.PointsBalance {
		t.Fatalf("duplicate reverse changed balance")
	}
	if secondEntry.ID != firstEntry.ID {
		t.Fatalf("expected existing reversal entry to be reused")
	}
}

func TestReverseCappedByRemainingBalance(t *testing.T) {
	conn := newTestDB(t)
	manager := NewAccountManager(conn)
	ctx := context.Background()

	if _, _, errAward := manager.Award(ctx, 1, 2, 100, 10, ""); errAward != nil {
		t.Fatalf("award: %v", errAward)
	}
	// Spend most of the earned points before the cancellation arrives.
	if _, errRedeem := manager.redeem(ctx, 1, 2, 80, &models.RedemptionRules{RatePerPoint: 0.01}, nil, ""); errRedeem != nil {
		t.Fatalf("redeem: %v", errRedeem)
	}

	account, entry, errReverse := manager.Reverse(ctx, 1, 2, 10, "")
	if errReverse != nil {
		t.Fatalf("reverse: %v", errReverse)
	}
	if entry.PointsChange != -20 {
		t.Fatalf("expected capped reversal of -20, got %d", entry.PointsChange)
	}
	if account.PointsBalance != 0 {
		t.Fatalf("expected zero balance, got %d", account.PointsBalance)
	}
	if account.PointsBalance != account.TotalPointsEarned-account.TotalPointsRedeemed {
		t.Fatalf("balance identity broken: %+v", account)
	}
	if sum := ledgerSum(t, conn, account.ID); sum != account.PointsBalance {
		t.Fatalf("ledger sum %d != balance %d", sum, account.PointsBalance)
	}
}

func TestReverseWithoutEarnIsNoOp(t *testing.T) {
	conn := newTestDB(t)
	manager := NewAccountManager(conn)
	ctx := context.Background()

	if _, errCreate := manager.GetOrCreate(ctx, 1, 2); errCreate != nil {
		t.Fatalf("get or create: %v", errCreate)
	}
	account, entry, errReverse := manager.Reverse(ctx, 1, 2, 999, "")
	if errReverse != nil {
		t.Fatalf("reverse: %v", errReverse)
	}
	if entry != nil {
		t.Fatalf("expected no reversal entry, got %+v", entry)
	}
	if account.PointsBalance != 0 {
		t.Fatalf("expected untouched balance, got %d", account.PointsBalance)
	}
}

func TestReverseUnknownAccountIsSwallowed(t *testing.T) {
	conn := newTestDB(t)
	manager := NewAccountManager(conn)

	account, entry, errReverse := manager.Reverse(context.Background(), 42, 42, 1, "")
	if errReverse != nil {
		t.Fatalf("expected nil error, got %v", errReverse)
	}
	if account != nil || entry != nil {
		t.Fatalf("expected nil account and entry")
	}
}

func TestRedeemInsufficientBalance(t *testing.T) {
	conn := newTestDB(t)
	manager := NewAccountManager(conn)
	ctx := context.Background()

	if _, _, errAward := manager.Award(ctx, 1, 2, 50, 10, ""); errAward != nil {
		t.Fatalf("award: %v", errAward)
	}
	_, errRedeem := manager.redeem(ctx, 1, 2, 51, &models.RedemptionRules{RatePerPoint: 0.01}, nil, "")
	if !errors.Is(errRedeem, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", errRedeem)
	}

	account, errGet := manager.GetAccount(ctx, 1, 2)
	if errGet != nil {
		t.Fatalf("get account: %v", errGet)
	}
	if account.PointsBalance != 50 || account.TotalPointsRedeemed != 0 {
		t.Fatalf("failed redemption mutated the account: %+v", account)
	}
}

func TestRedeemDebitsAndConverts(t *testing.T) {
	conn := newTestDB(t)
	manager := NewAccountManager(conn)
	ctx := context.Background()

	if _, _, errAward := manager.Award(ctx, 1, 2, 500, 10, ""); errAward != nil {
		t.Fatalf("award: %v", errAward)
	}
	result, errRedeem := manager.redeem(ctx, 1, 2, 200, &models.RedemptionRules{RatePerPoint: 0.05, MinimumPoints: 100}, nil, "discount")
	if errRedeem != nil {
		t.Fatalf("redeem: %v", errRedeem)
	}
	if result.PointsRedeemed != 200 || result.NewBalance != 300 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.DiscountAmount != 10 {
		t.Fatalf("expected discount 10, got %v", result.DiscountAmount)
	}

	account, _ := manager.GetAccount(ctx, 1, 2)
	if account.TotalPointsRedeemed != 200 || account.TotalPointsEarned != 500 {
		t.Fatalf("unexpected totals: %+v", account)
	}
	// Redemption never lowers the tier.
	if account.Tier != TierFor(account.TotalPointsEarned) {
		t.Fatalf("tier not derived from lifetime earned")
	}
}

func TestRedeemRepeatedlyAgainstSameBooking(t *testing.T) {
	conn := newTestDB(t)
	manager := NewAccountManager(conn)
	ctx := context.Background()

	if _, _, errAward := manager.Award(ctx, 1, 2, 100, 42, ""); errAward != nil {
		t.Fatalf("award: %v", errAward)
	}

	// The booking on a redeem entry is advisory metadata; only earn and
	// reversal entries are unique per booking.
	bookingID := uint64(42)
	rules := &models.RedemptionRules{RatePerPoint: 0.01}
	for i := 0; i < 2; i++ {
		if _, errRedeem := manager.redeem(ctx, 1, 2, 10, rules, &bookingID, ""); errRedeem != nil {
			t.Fatalf("redeem %d: %v", i, errRedeem)
		}
	}

	account, errGet := manager.GetAccount(ctx, 1, 2)
	if errGet != nil {
		t.Fatalf("get account: %v", errGet)
	}
	if account.PointsBalance != 80 || account.TotalPointsRedeemed != 20 {
		t.Fatalf("unexpected balances: %+v", account)
	}

	var count int64
	conn.Model(&models.LedgerEntry{}).
		Where("booking_id = ? AND transaction_type = ?", bookingID, models.EntryTypeRedeem).
		Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 redeem entries for the booking, got %d", count)
	}
}

func TestRedeemBelowMinimumRejected(t *testing.T) {
	conn := newTestDB(t)
	manager := NewAccountManager(conn)
	ctx := context.Background()

	if _, _, errAward := manager.Award(ctx, 1, 2, 500, 10, ""); errAward != nil {
		t.Fatalf("award: %v", errAward)
	}
	_, errRedeem := manager.redeem(ctx, 1, 2, 50, &models.RedemptionRules{RatePerPoint: 0.05, MinimumPoints: 100}, nil, "")
	if !errors.Is(errRedeem, ErrBelowMinimumRedemption) {
		t.Fatalf("expected ErrBelowMinimumRedemption, got %v", errRedeem)
	}
}

func TestAdjustManually(t *testing.T) {
	conn := newTestDB(t)
	manager := NewAccountManager(conn)
	ctx := context.Background()

	account, entry, errAdjust := manager.AdjustManually(ctx, 1, 2, 300, "goodwill credit")
	if errAdjust != nil {
		t.Fatalf("positive adjust: %v", errAdjust)
	}
	if account.PointsBalance != 300 || account.TotalPointsEarned != 300 {
		t.Fatalf("unexpected balances: %+v", account)
	}
	if entry.Type != models.EntryTypeAdjust {
		t.Fatalf("expected adjust entry, got %s", entry.Type)
	}

	account, _, errAdjust = manager.AdjustManually(ctx, 1, 2, -100, "correction")
	if errAdjust != nil {
		t.Fatalf("negative adjust: %v", errAdjust)
	}
	if account.PointsBalance != 200 || account.TotalPointsRedeemed != 100 {
		t.Fatalf("unexpected balances after debit: %+v", account)
	}

	if _, _, errAdjust = manager.AdjustManually(ctx, 1, 2, -201, ""); !errors.Is(errAdjust, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", errAdjust)
	}
	if _, _, errAdjust = manager.AdjustManually(ctx, 1, 2, 0, ""); !errors.Is(errAdjust, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero delta, got %v", errAdjust)
	}
}

func TestConcurrentAwardsSerialize(t *testing.T) {
	conn := newTestDB(t)
	manager := NewAccountManager(conn)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(bookingID uint64) {
			defer wg.Done()
			if _, _, errAward := manager.Award(ctx, 1, 2, 10, bookingID, ""); errAward != nil {
				errCh <- errAward
			}
		}(uint64(100 + i))
	}
	wg.Wait()
	close(errCh)
	for errAward := range errCh {
		t.Fatalf("concurrent award: %v", errAward)
	}

	account, errGet := manager.GetAccount(ctx, 1, 2)
	if errGet != nil {
		t.Fatalf("get account: %v", errGet)
	}
	if account.PointsBalance != workers*10 {
		t.Fatalf("expected balance %d, got %d", workers*10, account.PointsBalance)
	}
	if sum := ledgerSum(t, conn, account.ID); sum != account.PointsBalance {
		t.Fatalf("ledger sum %d != balance %d", sum, account.PointsBalance)
	}
}

func TestListEntriesNewestFirst(t *testing.T) {
	conn := newTestDB(t)
	manager := NewAccountManager(conn)
	ctx := context.Background()

	for i := uint64(1); i <= 5; i++ {
		if _, _, errAward := manager.Award(ctx, 1, 2, 10, i, ""); errAward != nil {
			t.Fatalf("award %d: %v", i, errAward)
		}
	}
	account, _ := manager.GetAccount(ctx, 1, 2)

	entries, total, errList := manager.ListEntries(ctx, account.ID, 1, 3)
	if errList != nil {
		t.Fatalf("list entries: %v", errList)
	}
	if total != 5 {
		t.Fatalf("expected total 5, got %d", total)
	}
	if len(entries) != 3 {
		t.Fatalf("expected page of 3, got %d", len(entries))
	}
	if entries[0].ID < entries[1].ID {
		t.Fatalf("expected newest first ordering")
	}
}

func TestOptOutRequiresZeroBalance(t *testing.T) {
	conn := newTestDB(t)
	manager := NewAccountManager(conn)
	ctx := context.Background()

	if _, _, errAward := manager.Award(ctx, 1, 2, 100, 10, ""); errAward != nil {
		t.Fatalf("award: %v", errAward)
	}

	if errOptOut := manager.OptOut(ctx, 1, 2, false); !errors.Is(errOptOut, ErrNonZeroBalance) {
		t.Fatalf("expected ErrNonZeroBalance, got %v", errOptOut)
	}

	if errOptOut := manager.OptOut(ctx, 1, 2, true); errOptOut != nil {
		t.Fatalf("forfeiting opt-out: %v", errOptOut)
	}
	if _, errGet := manager.GetAccount(ctx, 1, 2); !errors.Is(errGet, ErrAccountNotFound) {
		t.Fatalf("expected account gone, got %v", errGet)
	}

	// The ledger survives the account, forfeiture included.
	var count int64
	conn.Model(&models.LedgerEntry{}).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 surviving ledger entries, got %d", count)
	}
}

func TestTierPromotionOnAward(t *testing.T) {
	conn := newTestDB(t)
	manager := NewAccountManager(conn)
	ctx := context.Background()

	account, _, errAward := manager.Award(ctx, 1, 2, 999, 1, "")
	if errAward != nil {
		t.Fatalf("award: %v", errAward)
	}
	if account.Tier != models.TierBronze {
		t.Fatalf("expected bronze, got %s", account.Tier)
	}

	account, _, errAward = manager.Award(ctx, 1, 2, 1, 2, "")
	if errAward != nil {
		t.Fatalf("award: %v", errAward)
	}
	if account.Tier != models.TierSilver {
		t.Fatalf("expected silver at 1000 earned, got %s", account.Tier)
	}
}
