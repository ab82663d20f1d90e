package models

import "fmt"

// Tier is the subscription level that controls the query quota.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// ParseTier accepts "free" or "premium" (case-sensitive, as stored).
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierFree, TierPremium:
		return Tier(s), nil
	default:
		return "", fmt.Errorf("unknown tier %q (want free or premium)", s)
	}
}

// QuotaState is the persisted query counter and the tier it applies to.
type QuotaState struct {
	Tier  Tier `json:"tier"`
	Count int  `json:"count"`
	Limit int  `json:"limit"`
}

// Remaining returns how many queries are left, never negative.
func (s QuotaState) Remaining() int {
	if s.Count >= s.Limit {
		return 0
	}
	return s.Limit - s.Count
}

// QuotaGrant is returned when a query was admitted and counted.
type QuotaGrant struct {
	Tier      Tier `json:"tier"`
	Limit     int  `json:"limit"`
	Count     int  `json:"count"`
	Remaining int  `json:"remaining"`
	LastQuery bool `json:"last_query"`
}

// Warning returns the informational notice shown when the grant used up the
// final query of the tier, or "" otherwise.
func (g QuotaGrant) Warning() string {
	if !g.LastQuery {
		return ""
	}
	return fmt.Sprintf("⚠️ This is your last query in your %s tier limit of %d queries.", g.Tier, g.Limit)
}
