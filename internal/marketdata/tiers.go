package marketdata

import (
	"fmt"
	"strings"
)

// Tier is a market data subscription level.
type Tier string

const (
	TierFree     Tier = "free"
	TierStarter  Tier = "starter"
	TierAdvanced Tier = "advanced"
	TierBusiness Tier = "business"
)

// Feature is a capability gated by subscription tier.
type Feature string

const (
	FeatureEndOfDayPrices    Feature = "endOfDayPrices"
	FeatureTickerSearch      Feature = "tickerSearch"
	FeatureDelayedQuotes     Feature = "delayedQuotes"
	FeatureRealtimeQuotes    Feature = "realtimeQuotes"
	FeatureOptionsChain      Feature = "optionsChain"
	FeatureGreeks            Feature = "greeks"
	FeatureIV                Feature = "iv"
	FeatureHistoricalOptions Feature = "historicalOptions"
)

var tierFeatures = map[Tier][]Feature{
	TierFree: {FeatureEndOfDayPrices, FeatureTickerSearch},
	TierStarter: {FeatureEndOfDayPrices, FeatureTickerSearch, FeatureDelayedQuotes,
		FeatureOptionsChain, FeatureGreeks, FeatureIV},
	TierAdvanced: {FeatureEndOfDayPrices, FeatureTickerSearch, FeatureRealtimeQuotes,
		FeatureOptionsChain, FeatureGreeks, FeatureIV},
	TierBusiness: {FeatureEndOfDayPrices, FeatureTickerSearch, FeatureRealtimeQuotes,
		FeatureOptionsChain, FeatureGreeks, FeatureIV, FeatureHistoricalOptions},
}

// ParseTier parses a tier name. An empty name is the free tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return TierFree, nil
	}
	if _, ok := tierFeatures[t]; !ok {
		return "", fmt.Errorf("unknown tier %q (must be free, starter, advanced or business)", s)
	}
	return t, nil
}

// Features lists the tier's features. Unknown tiers get the free set.
func (t Tier) Features() []Feature {
	if f, ok := tierFeatures[t]; ok {
		return f
	}
	return tierFeatures[TierFree]
}

// Has reports whether the tier includes f.
func (t Tier) Has(f Feature) bool {
	for _, have := range t.Features() {
		if have == f {
			return true
		}
	}
	return false
}
