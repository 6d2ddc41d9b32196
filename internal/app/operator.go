package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/engine"
	"github.com/alanyoungcy/fxbot/internal/executor"
	"github.com/alanyoungcy/fxbot/internal/notify"
)

// operator is the control surface shared by the HTTP API and the Telegram
// bot. In monitor mode it refuses to start the engine or trade.
type operator struct {
	eng  *Engine
	mode string
	logs engine.LogSource
}

func newOperator(eng *Engine, mode string, logs engine.LogSource) *operator {
	return &operator{eng: eng, mode: mode, logs: logs}
}

func (o *operator) tradingDisabled() error {
	if o.mode == "monitor" {
		return fmt.Errorf("%w: trading is disabled in monitor mode", domain.ErrUnavailable)
	}
	return nil
}

func (o *operator) Status(ctx context.Context) engine.Status {
	return o.eng.Runner.Status(ctx, o.mode, o.logs)
}

func (o *operator) Start(ctx context.Context) error {
	if err := o.tradingDisabled(); err != nil {
		return err
	}
	return o.eng.Runner.Start(ctx)
}

func (o *operator) Stop() { o.eng.Runner.Stop() }

func (o *operator) ManualTrade(ctx context.Context, order engine.ManualOrder) (executor.Outcome, error) {
	if err := o.tradingDisabled(); err != nil {
		return executor.Outcome{}, err
	}
	return o.eng.Control.ManualTrade(ctx, order)
}

// registerCommands binds the chat commands to the operator.
func (o *operator) registerCommands(bot *notify.TelegramBot) {
	bot.Handle("status", func(ctx context.Context, _ string) string {
		st := o.Status(ctx)
		state := "STOPPED"
		if st.Running {
			state = "RUNNING"
		}
		kill := "off"
		if st.KillSwitch.Active {
			kill = "ACTIVE"
		}
		return fmt.Sprintf("Engine: %s (%s)\nSymbols: %d\nOpen positions: %d\nFloating P/L: %.2f\nCapacity: %s %d/%d\nKill switch: %s",
			state, st.Mode, len(st.Symbols), len(st.Positions), st.TotalProfit,
			st.Capacity.Mode, st.Capacity.Occupied, st.Capacity.Limit, kill)
	})

	bot.Handle("balance", func(ctx context.Context, _ string) string {
		acct, err := o.eng.Gateway.GetAccount(ctx)
		if err != nil {
			return "Account unavailable: " + err.Error()
		}
		return fmt.Sprintf("Balance: %.2f\nEquity: %.2f\nFree margin: %.2f\nMargin level: %.1f%%",
			acct.Balance, acct.Equity, acct.FreeMargin, acct.MarginLevel)
	})

	bot.Handle("news", func(ctx context.Context, _ string) string {
		events := o.eng.News.UpcomingHighImpactEvents(ctx)
		if len(events) == 0 {
			return "No high-impact events scheduled."
		}
		var b strings.Builder
		b.WriteString("Upcoming high-impact events:")
		for _, ev := range events {
			fmt.Fprintf(&b, "\n%s %s %s", ev.Time.UTC().Format("Mon 15:04"), ev.Country, ev.Title)
		}
		return b.String()
	})

	bot.Handle("start", func(ctx context.Context, _ string) string {
		if err := o.Start(ctx); err != nil {
			return "Start failed: " + err.Error()
		}
		return "Engine started."
	})

	bot.Handle("stop", func(context.Context, string) string {
		o.Stop()
		return "Engine stopped. Open positions are left in place."
	})
}
