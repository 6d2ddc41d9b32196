package risk

import (
	"sync"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// DailyRiskState is the process-wide daily drawdown state.
type DailyRiskState struct {
	StartBalance float64   `json:"daily_start_balance"`
	Day          time.Time `json:"last_trade_day"`
	Active       bool      `json:"kill_switch_active"`
	TrippedAt    time.Time `json:"tripped_at,omitempty"`
	Set          bool      `json:"set"`
}

// Verdict is the outcome of one observation.
type Verdict struct {
	// Rollover is true when the UTC day advanced since the last observation.
	Rollover bool
	// Locked is true when the switch was already active for the current day.
	Locked bool
	// Tripped is true when this observation activated the switch.
	Tripped  bool
	Drawdown float64
}

// KillSwitch trips when equity falls a fixed fraction below the balance
// observed at the start of the UTC day. Once tripped it stays active until
// the UTC date changes, whatever equity does in between.
type KillSwitch struct {
	mu        sync.Mutex
	threshold float64
	state     DailyRiskState
}

// NewKillSwitch returns an unset switch with the given drawdown threshold.
func NewKillSwitch(threshold float64) *KillSwitch {
	return &KillSwitch{threshold: threshold}
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Observe applies one account reading. The day-boundary reset is evaluated
// first so a locked switch releases on the first reading of a new day.
func (k *KillSwitch) Observe(now time.Time, acct domain.AccountSnapshot) Verdict {
	k.mu.Lock()
	defer k.mu.Unlock()

	var v Verdict
	day := utcDay(now)
	if !k.state.Set || !day.Equal(k.state.Day) {
		v.Rollover = k.state.Set
		k.state = DailyRiskState{StartBalance: acct.Balance, Day: day, Set: true}
	}

	if k.state.Active {
		v.Locked = true
		return v
	}

	if k.state.StartBalance > 0 {
		v.Drawdown = (k.state.StartBalance - acct.Equity) / k.state.StartBalance
	}
	if v.Drawdown >= k.threshold {
		k.state.Active = true
		k.state.TrippedAt = now.UTC()
		v.Tripped = true
	}
	return v
}

// Active reports whether new entries are halted.
func (k *KillSwitch) Active() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state.Active
}

// State returns a copy of the daily state.
func (k *KillSwitch) State() DailyRiskState {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

// Threshold is the configured drawdown fraction.
func (k *KillSwitch) Threshold() float64 { return k.threshold }
