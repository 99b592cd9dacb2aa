package rewards

import (
	"context"
	"testing"

	"github.com/placebook/placebook/internal/models"
)

func newTestAdapter(t *testing.T) (*BookingEventAdapter, *AccountManager, *SettingsStore) {
	t.Helper()
	conn := newTestDB(t)
	manager := NewAccountManager(conn)
	store := NewSettingsStore(conn, nil)
	return NewBookingEventAdapter(manager, store), manager, store
}

func TestAdapterCompletionAccruesPoints(t *testing.T) {
	adapter, manager, store := newTestAdapter(t)
	ctx := context.Background()

	seedSettings(t, store.db, nil, models.CalculationVolumeBased, 0, 0.1, nil)

	errHandle := adapter.Handle(ctx, BookingEvent{
		Type:       models.EventBookingCompleted,
		BookingID:  11,
		UserID:     1,
		PlaceID:    2,
		TotalPrice: 259.99,
	})
	if errHandle != nil {
		t.Fatalf("handle completion: %v", errHandle)
	}

	account, errGet := manager.GetAccount(ctx, 1, 2)
	if errGet != nil {
		t.Fatalf("get account: %v", errGet)
	}
	if account.PointsBalance != 25 {
		t.Fatalf("expected 25 points, got %d", account.PointsBalance)
	}
}

func TestAdapterCompletionWithoutSettingsIsSwallowed(t *testing.T) {
	adapter, manager, _ := newTestAdapter(t)
	ctx := context.Background()

	errHandle := adapter.Handle(ctx, BookingEvent{
		Type:      models.EventBookingCompleted,
		BookingID: 11,
		UserID:    1,
		PlaceID:   2,
	})
	if errHandle != nil {
		t.Fatalf("expected swallowed error, got %v", errHandle)
	}
	if _, errGet := manager.GetAccount(ctx, 1, 2); errGet == nil {
		t.Fatalf("expected no account to be created")
	}
}

func TestAdapterCancellationReverses(t *testing.T) {
	adapter, manager, store := newTestAdapter(t)
	ctx := context.Background()

	seedSettings(t, store.db, nil, models.CalculationFixedPerBooking, 30, 0, nil)

	completed := BookingEvent{Type: models.EventBookingCompleted, BookingID: 11, UserID: 1, PlaceID: 2, TotalPrice: 100}
	if errHandle := adapter.Handle(ctx, completed); errHandle != nil {
		t.Fatalf("handle completion: %v", errHandle)
	}

	cancelled := completed
	cancelled.Type = models.EventBookingCancelled
	if errHandle := adapter.Handle(ctx, cancelled); errHandle != nil {
		t.Fatalf("handle cancellation: %v", errHandle)
	}

	account, errGet := manager.GetAccount(ctx, 1, 2)
	if errGet != nil {
		t.Fatalf("get account: %v", errGet)
	}
	if account.PointsBalance != 0 {
		t.Fatalf("expected zero balance after reversal, got %d", account.PointsBalance)
	}
}

func TestAdapterRedeliveredCompletionIsIdempotent(t *testing.T) {
	adapter, manager, store := newTestAdapter(t)
	ctx := context.Background()

	seedSettings(t, store.db, nil, models.CalculationFixedPerBooking, 30, 0, nil)

	evt := BookingEvent{Type: models.EventBookingCompleted, BookingID: 11, UserID: 1, PlaceID: 2}
	for i := 0; i < 3; i++ {
		if errHandle := adapter.Handle(ctx, evt); errHandle != nil {
			t.Fatalf("handle %d: %v", i, errHandle)
		}
	}

	account, _ := manager.GetAccount(ctx, 1, 2)
	if account.PointsBalance != 30 {
		t.Fatalf("expected a single accrual of 30, got %d", account.PointsBalance)
	}
}

func TestAdapterUnknownEventTypeIsSwallowed(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)

	if errHandle := adapter.Handle(context.Background(), BookingEvent{Type: "booking.updated", BookingID: 1}); errHandle != nil {
		t.Fatalf("expected swallowed error, got %v", errHandle)
	}
}

func TestAdapterCancellationBeforeCompletionIsSwallowed(t *testing.T) {
	adapter, _, store := newTestAdapter(t)

	seedSettings(t, store.db, nil, models.CalculationFixedPerBooking, 30, 0, nil)

	errHandle := adapter.Handle(context.Background(), BookingEvent{
		Type:      models.EventBookingCancelled,
		BookingID: 11,
		UserID:    1,
		PlaceID:   2,
	})
	if errHandle != nil {
		t.Fatalf("expected swallowed error, got %v", errHandle)
	}
}
