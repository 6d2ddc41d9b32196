package engine

import (
	"context"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/risk"
)

// LogSource returns recent formatted log lines.
type LogSource interface {
	Lines() []string
}

// Status is the operator view of the engine.
type Status struct {
	Running     bool                    `json:"running"`
	Mode        string                  `json:"mode"`
	Symbols     []domain.Instrument     `json:"symbols"`
	Logs        []string                `json:"logs"`
	Account     *domain.AccountSnapshot `json:"account,omitempty"`
	Positions   []domain.Position       `json:"positions"`
	TotalProfit float64                 `json:"total_profit"`
	KillSwitch  risk.DailyRiskState     `json:"kill_switch"`
	Capacity    risk.CapacitySnapshot   `json:"capacity"`
	Pending     []string                `json:"pending"`
	LastCycle   Report                  `json:"last_cycle"`
}

// Status assembles the current view. Gateway failures leave the account and
// positions empty.
func (r *Runner) Status(ctx context.Context, mode string, logs LogSource) Status {
	c := r.ctrl
	st := Status{
		Running:    r.Running(),
		Mode:       mode,
		Symbols:    c.Instruments(),
		Positions:  []domain.Position{},
		KillSwitch: c.d.Kill.State(),
		Pending:    c.d.Executor.Reservations().Symbols(),
		LastCycle:  c.LastReport(),
	}
	if logs != nil {
		st.Logs = logs.Lines()
	}
	if acct, err := c.d.Gateway.GetAccount(ctx); err == nil {
		st.Account = &acct
	}
	if positions, err := c.d.Gateway.GetOpenPositions(ctx); err == nil {
		st.Positions = positions
		st.TotalProfit = domain.TotalProfit(positions)
	}
	st.Capacity = risk.ComputeCapacity(c.d.Capacity, st.Positions, st.Pending, c.classOf).Snapshot()
	return st
}
