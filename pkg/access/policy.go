// Package access decides which tiered content a user may view.
package access

import (
	"errors"
	"fmt"

	"github.com/jmakwana01/InsightTiers/pkg/chainstate"
	"github.com/jmakwana01/InsightTiers/pkg/tiers"
)

// ErrTierLocked is returned when selecting a tier above the user's own.
var ErrTierLocked = errors.New("tier locked")

// HasAccess reports whether content is viewable. Tier ids decoded from the
// contract are never negative, so in practice this is privileges.Premium.
func HasAccess(tier tiers.ID, p chainstate.Privileges) bool {
	return tier >= 0 && p.Premium
}

// AccessibleTiers returns every table tier at or below tier, ascending.
func AccessibleTiers(tier tiers.ID) []tiers.Info {
	var out []tiers.Info
	for _, t := range tiers.All() {
		if t.ID <= tier {
			out = append(out, t)
		}
	}
	return out
}

// Decision bundles what a content view needs to render.
type Decision struct {
	Tier       tiers.ID     `json:"tier"`
	TierName   string       `json:"tier_name"`
	HasAccess  bool         `json:"has_access"`
	Accessible []tiers.Info `json:"accessible_tiers"`
}

// Decide evaluates st.
func Decide(st chainstate.UserState) Decision {
	return Decision{
		Tier:       st.Tier,
		TierName:   st.Tier.String(),
		HasAccess:  HasAccess(st.Tier, st.Privileges),
		Accessible: AccessibleTiers(st.Tier),
	}
}

// CanView reports whether tier id's content is viewable under d.
func (d Decision) CanView(id tiers.ID) bool {
	if !d.HasAccess {
		return false
	}
	for _, t := range d.Accessible {
		if t.ID == id {
			return true
		}
	}
	return false
}

// Status labels a tier relative to the user's current tier.
type Status string

const (
	StatusCurrent  Status = "Current"
	StatusUnlocked Status = "Unlocked"
	StatusLocked   Status = "Locked"
)

// StatusFor labels tier id for a user whose tier is current.
func StatusFor(id, current tiers.ID) Status {
	switch {
	case id == current:
		return StatusCurrent
	case id < current:
		return StatusUnlocked
	default:
		return StatusLocked
	}
}

// Selector tracks which accessible tier's content is on display.
// It is not safe for concurrent use.
type Selector struct {
	userTier tiers.ID
	selected tiers.ID
}

// NewSelector starts on the user's own tier.
func NewSelector(userTier tiers.ID) *Selector {
	return &Selector{userTier: userTier, selected: userTier}
}

// Selected returns the tier on display.
func (s *Selector) Selected() tiers.ID { return s.selected }

// Select switches to id, which must be an accessible tier.
func (s *Selector) Select(id tiers.ID) error {
	for _, t := range AccessibleTiers(s.userTier) {
		if t.ID == id {
			s.selected = id
			return nil
		}
	}
	return fmt.Errorf("%w: %s is above %s", ErrTierLocked, id, s.userTier)
}

// Reset follows a new user tier, e.g. after a refresh.
func (s *Selector) Reset(userTier tiers.ID) {
	s.userTier = userTier
	s.selected = userTier
}
