package rewards

import (
	"testing"

	"github.com/placebook/placebook/internal/models"
)

func TestTierForThresholds(t *testing.T) {
	for _, tc := range []struct {
		earned int64
		want   string
	}{
		{0, models.TierBronze},
		{999, models.TierBronze},
		{1000, models.TierSilver},
		{4999, models.TierSilver},
		{5000, models.TierGold},
		{19999, models.TierGold},
		{20000, models.TierPlatinum},
		{1000000, models.TierPlatinum},
	} {
		if got := TierFor(tc.earned); got != tc.want {
			t.Fatalf("earned=%d: expected %s, got %s", tc.earned, tc.want, got)
		}
	}
}

func TestTierForNegativeEarned(t *testing.T) {
	if got := TierFor(-10); got != models.TierBronze {
		t.Fatalf("expected bronze for negative earned, got %s", got)
	}
}
