// Package tiers holds the static tier table shown alongside staking:
// display name, color, minimum stake and feature list per tier id.
package tiers

import "github.com/jmakwana01/InsightTiers/pkg/units"

// ID is a tier rank as returned by the staking contract's getUserTier.
type ID int

const (
	Bronze ID = iota
	Silver
	Gold
)

// String returns the display name, or "None" for ids outside the table.
func (id ID) String() string {
	switch id {
	case Bronze:
		return "Bronze"
	case Silver:
		return "Silver"
	case Gold:
		return "Gold"
	default:
		return "None"
	}
}

// Known reports whether id has an entry in the table.
func (id ID) Known() bool {
	_, ok := Lookup(id)
	return ok
}

// Info is one row of the tier table.
type Info struct {
	ID       ID           `json:"id"`
	Name     string       `json:"name"`
	Color    string       `json:"color"`
	MinStake units.Amount `json:"min_stake"`
	Features []string     `json:"features"`
}

var all = []Info{
	{
		ID:       Bronze,
		Name:     "Bronze",
		Color:    "from-yellow-600 to-yellow-700",
		MinStake: units.FromTokens(100),
		Features: []string{"Access to premium blog posts"},
	},
	{
		ID:       Silver,
		Name:     "Silver",
		Color:    "from-gray-300 to-gray-400",
		MinStake: units.FromTokens(500),
		Features: []string{"Access to premium blog posts", "Exclusive webinar content"},
	},
	{
		ID:       Gold,
		Name:     "Gold",
		Color:    "from-yellow-300 to-yellow-400",
		MinStake: units.FromTokens(1000),
		Features: []string{"Access to premium blog posts", "Exclusive webinar content", "Priority support"},
	},
}

// All returns the tier table in ascending id order. The result is a copy.
func All() []Info {
	out := make([]Info, len(all))
	for i, t := range all {
		t.Features = append([]string(nil), t.Features...)
		out[i] = t
	}
	return out
}

// Lookup returns the table row for id.
func Lookup(id ID) (Info, bool) {
	for _, t := range All() {
		if t.ID == id {
			return t, true
		}
	}
	return Info{}, false
}

// ForStake returns the highest tier whose minimum stake is covered by staked,
// and false when staked is below the Bronze minimum. The staking contract
// remains the source of truth; this is only used for projections.
func ForStake(staked units.Amount) (ID, bool) {
	best, found := ID(0), false
	for _, t := range all {
		if staked.Cmp(t.MinStake) >= 0 {
			best, found = t.ID, true
		}
	}
	return best, found
}
