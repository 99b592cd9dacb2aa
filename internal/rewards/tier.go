package rewards

import "github.com/placebook/placebook/internal/models"

// tierThreshold maps a minimum lifetime earned total to a tier label.
type tierThreshold struct {
	minEarned int64
	label     string
}

// tierThresholds is the static classification table, ascending. The tier of an
// account is the label of the highest threshold not exceeding its lifetime
// earned total.
var tierThresholds = []tierThreshold{
	{0, models.TierBronze},
	{1000, models.TierSilver},
	{5000, models.TierGold},
	{20000, models.TierPlatinum},
}

// TierFor classifies a lifetime earned total into a tier label. Pure and
// deterministic; the stored tier column is only a cache of this function.
func TierFor(totalEarned int64) string {
	tier := tierThresholds[0].label
	for _, threshold := range tierThresholds {
		if totalEarned < threshold.minEarned {
			break
		}
		tier = threshold.label
	}
	return tier
}
