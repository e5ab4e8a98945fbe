package contentgate

import "github.com/jmakwana01/InsightTiers/pkg/tiers"

// Item is the premium content published for one tier.
type Item struct {
	Tier    tiers.ID `json:"tier"`
	Kind    string   `json:"kind"`
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Topics  []string `json:"topics,omitempty"`
}

var catalog = map[tiers.ID]Item{
	tiers.Bronze: {
		Tier:    tiers.Bronze,
		Kind:    "blog",
		Title:   "Getting Started with Blockchain",
		Summary: "A distributed ledger shared among network nodes, and what that means for digital ownership.",
		Topics:  []string{"Decentralization", "Transparency", "Immutability", "Security"},
	},
	tiers.Silver: {
		Tier:    tiers.Silver,
		Kind:    "webinar",
		Title:   "Advanced Smart Contract Development",
		Summary: "Recorded webinar on writing, testing and auditing production contracts.",
	},
	tiers.Gold: {
		Tier:    tiers.Gold,
		Kind:    "course",
		Title:   "Advanced DeFi Strategies",
		Summary: "Course on liquidity provision, yield strategies and protocol risk, with priority support.",
	},
}

// Lookup returns the content item for id.
func Lookup(id tiers.ID) (Item, bool) {
	it, ok := catalog[id]
	if ok {
		it.Topics = append([]string(nil), it.Topics...)
	}
	return it, ok
}
