package rewards

import "errors"

// Sentinel errors surfaced by the rewards engine.
var (
	// ErrInsufficientBalance indicates a redemption or adjustment would drive
	// the balance negative. No mutation is performed.
	ErrInsufficientBalance = errors.New("rewards: insufficient points balance")

	// ErrSettingsUnavailable indicates no active reward settings exist for the
	// place or the platform. Non-fatal for accrual: the booking proceeds and
	// no points are granted.
	ErrSettingsUnavailable = errors.New("rewards: no active reward settings")

	// ErrRedemptionUnavailable indicates redemption rules are missing or
	// inactive. Fatal for the redemption attempt, no mutation is performed.
	ErrRedemptionUnavailable = errors.New("rewards: redemption rules unavailable")

	// ErrBelowMinimumRedemption indicates the requested amount is under the
	// configured minimum redemption.
	ErrBelowMinimumRedemption = errors.New("rewards: below minimum redemption")

	// ErrInvalidAmount indicates a non-positive or otherwise malformed point
	// amount was requested.
	ErrInvalidAmount = errors.New("rewards: invalid point amount")

	// ErrInvalidTransition indicates a booking event arrived out of order,
	// such as a completion for an already-reversed booking.
	ErrInvalidTransition = errors.New("rewards: invalid booking transition")

	// ErrNonZeroBalance indicates account deletion was attempted while points
	// remain on the balance.
	ErrNonZeroBalance = errors.New("rewards: account balance is not zero")

	// ErrAccountNotFound indicates no reward account exists for the
	// (user, place) pair.
	ErrAccountNotFound = errors.New("rewards: account not found")

	// ErrTransient indicates lock contention or a storage timeout persisted
	// through bounded retries; the caller may retry the whole operation.
	ErrTransient = errors.New("rewards: transient storage error")
)
