package txflow

import (
	"sync"

	"github.com/jmakwana01/InsightTiers/pkg/chainstate"
	"github.com/jmakwana01/InsightTiers/pkg/tiers"
	"github.com/jmakwana01/InsightTiers/pkg/units"
)

// Projection previews the stake position after staking an extra amount.
type Projection struct {
	Staked    units.Amount `json:"staked"`
	Tier      tiers.ID     `json:"tier"`
	TierName  string       `json:"tier_name"`
	Qualifies bool         `json:"qualifies"`
}

// ProjectStake adds amount to the current stake and looks up the tier that
// total would reach in the static table. The contract decides the real tier.
func ProjectStake(st chainstate.UserState, amount units.Amount) Projection {
	total := st.StakedAmount.Add(amount)
	id, ok := tiers.ForStake(total)
	p := Projection{Staked: total, Tier: id, Qualifies: ok}
	if ok {
		p.TierName = id.String()
	} else {
		p.TierName = "None"
	}
	return p
}

// NoticeLog keeps the most recent notices in memory.
type NoticeLog struct {
	mu      sync.Mutex
	max     int
	notices []Notice
}

// NewNoticeLog keeps at most max notices.
func NewNoticeLog(max int) *NoticeLog {
	if max <= 0 {
		max = 20
	}
	return &NoticeLog{max: max}
}

func (l *NoticeLog) Notify(n Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = append(l.notices, n)
	if len(l.notices) > l.max {
		l.notices = l.notices[len(l.notices)-l.max:]
	}
}

// Recent returns the retained notices, newest last.
func (l *NoticeLog) Recent() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Notice(nil), l.notices...)
}
