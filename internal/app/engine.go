package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/fxbot/internal/config"
	"github.com/alanyoungcy/fxbot/internal/crypto"
	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/engine"
	"github.com/alanyoungcy/fxbot/internal/executor"
	"github.com/alanyoungcy/fxbot/internal/guard"
	"github.com/alanyoungcy/fxbot/internal/news"
	"github.com/alanyoungcy/fxbot/internal/platform/bridge"
	"github.com/alanyoungcy/fxbot/internal/platform/forexfactory"
	"github.com/alanyoungcy/fxbot/internal/platform/paper"
	"github.com/alanyoungcy/fxbot/internal/risk"
	"github.com/alanyoungcy/fxbot/internal/snapshot"
	"github.com/alanyoungcy/fxbot/internal/strategy"
	"github.com/alanyoungcy/fxbot/internal/trailing"
)

// broker is what the engine needs from a gateway implementation. Both the
// bridge client and the paper gateway satisfy it.
type broker interface {
	domain.MarketGateway
	domain.SymbolResolver
	domain.HistoryProvider
}

// Engine is the assembled trading core.
type Engine struct {
	Gateway  broker
	Executor *executor.Executor
	Control  *engine.Controller
	Runner   *engine.Runner
	News     domain.NewsFeed
}

// buildGateway selects the gateway for the mode: the bridge for live and
// monitor, the paper simulator otherwise.
func buildGateway(cfg *config.Config, logger *slog.Logger) (broker, error) {
	newBridge := func() (*bridge.Client, error) {
		secret, err := crypto.LoadSecret(crypto.SecretConfig{
			Raw:           cfg.Bridge.APISecret,
			EncryptedPath: cfg.Bridge.EncryptedSecretPath,
			Password:      cfg.Bridge.SecretPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("bridge secret: %w", err)
		}
		return bridge.New(bridge.Config{
			BaseURL:   cfg.Bridge.BaseURL,
			APIKey:    cfg.Bridge.APIKey,
			Secret:    secret,
			Timeout:   cfg.Bridge.Timeout.Duration,
			Timeframe: cfg.Bridge.Timeframe,
			Magic:     cfg.Bridge.Magic,
		}, logger), nil
	}

	switch cfg.Mode {
	case "live", "monitor":
		b, err := newBridge()
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		var data paper.MarketData
		if cfg.Paper.BridgeData {
			b, err := newBridge()
			if err != nil {
				return nil, err
			}
			data = b
		} else {
			data = paper.NewSyntheticFeed(cfg.Paper.Seed, time.Now().UTC())
		}
		return paper.New(paper.Config{StartingBalance: cfg.Paper.StartingBalance}, data, logger), nil
	}
}

// buildNews returns the calendar feed, or an empty static feed when news is
// disabled.
func buildNews(cfg *config.Config, cache domain.NewsCache, logger *slog.Logger) (domain.NewsFeed, error) {
	if !cfg.News.Enabled {
		return news.Static(nil), nil
	}
	loc, err := time.LoadLocation(cfg.News.SourceTimezone)
	if err != nil {
		return nil, fmt.Errorf("news timezone: %w", err)
	}
	ff := forexfactory.New(forexfactory.Config{
		URL:      cfg.News.URL,
		Timeout:  cfg.News.Timeout.Duration,
		Location: loc,
		Impacts:  cfg.News.Impacts,
	}, logger)
	return news.NewFeed(ff, cache, news.Config{
		Refresh: cfg.News.RefreshInterval.Duration,
		Window:  cfg.News.BlackoutWindow.Duration,
	}, logger), nil
}

// BuildEngine assembles the gateway, risk policy, executor, trailing engine,
// controller and runner from cfg on top of deps.
func BuildEngine(cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*Engine, error) {
	instruments, err := cfg.Instruments()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	source, err := strategy.DefaultRegistry().Get(cfg.Engine.Strategy)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	policy, err := risk.NewThresholdPolicy(classMap(cfg.Thresholds.Normal.For), classMap(cfg.Thresholds.Sniper.For))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	gw, err := buildGateway(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	feed, err := buildNews(cfg, deps.NewsCache, logger)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	sizing := make(map[domain.AssetClass]risk.ClassSizing, len(domain.AssetClasses))
	distances := make(map[domain.AssetClass]executor.Distances, len(domain.AssetClasses))
	tiers := make(map[domain.AssetClass][]trailing.Tier, len(domain.AssetClasses))
	ceilings := make(map[domain.AssetClass]float64, len(domain.AssetClasses))
	for _, class := range domain.AssetClasses {
		p := cfg.Risk.Profile(class)
		sizing[class] = risk.ClassSizing{
			RiskFraction:       p.RiskFraction,
			StopDistance:       p.StopDistance,
			ContractMultiplier: p.ContractMultiplier,
			MinLot:             p.MinLot,
		}
		distances[class] = executor.Distances{StopLoss: p.StopDistance, TakeProfit: p.TakeProfitDistance}
		for _, t := range p.Tiers {
			tiers[class] = append(tiers[class], trailing.Tier{Threshold: t.Threshold, Lock: t.Lock})
		}
		if p.SpreadCeilingPoints > 0 {
			ceilings[class] = p.SpreadCeilingPoints
		}
	}

	exec := executor.New(gw, risk.NewSizer(sizing, cfg.Risk.LotPrecision), executor.NewReservationSet(), executor.Config{
		Distances:          distances,
		MinFreeMarginRatio: cfg.Risk.MinFreeMarginRatio,
		MaxAttempts:        cfg.Execution.MaxAttempts,
		RetryDelay:         cfg.Execution.RetryDelay.Duration,
		MaxConcurrent:      cfg.Execution.MaxConcurrent,
		Comment:            cfg.Execution.Comment,
	}, logger)
	exec.SetTradeStore(deps.Journal.Trades)
	exec.SetNotifier(deps.Notifier)
	exec.SetBus(deps.Bus)
	if cfg.Execution.Snapshots && deps.BlobWriter != nil {
		exec.SetSnapshots(snapshot.NewPublisher(gw, deps.BlobWriter, cfg.Engine.CandleCount, logger))
	}

	byName := make(map[string]domain.AssetClass, len(instruments))
	for _, inst := range instruments {
		byName[inst.Symbol] = inst.Class
	}
	var ctrl *engine.Controller
	classOf := func(symbol string) (domain.AssetClass, bool) {
		if ctrl != nil {
			if inst, ok := ctrl.Instrument(symbol); ok {
				return inst.Class, true
			}
		}
		c, ok := byName[symbol]
		return c, ok
	}
	trail := trailing.NewEngine(gw, trailing.NewTierTable(tiers), cfg.Risk.StopBufferPoints, classOf, cfg.Engine.TrailWorkers, logger)

	ctrl = engine.NewController(engine.Deps{
		Gateway:  gw,
		Source:   source,
		Trend:    strategy.NewStaticTrend(cfg.Engine.TrendHints),
		Executor: exec,
		Trailing: trail,
		Kill:     risk.NewKillSwitch(cfg.Risk.KillSwitchDrawdown),
		Policy:   policy,
		Capacity: capacityConfig(cfg.Capacity),
		Schedule: guard.DefaultSchedule(),
		News:     feed,
		Journal:  deps.Journal,
		Lock:     deps.Lock,
		Bus:      deps.Bus,
		Notifier: deps.Notifier,
	}, engine.Config{
		CandleCount:       cfg.Engine.CandleCount,
		MinCandles:        cfg.Engine.MinCandles,
		SpreadCeilings:    ceilings,
		NewsWindow:        cfg.News.BlackoutWindow.Duration,
		TrailWhenClosed:   cfg.Engine.TrailWhenClosed,
		HeartbeatInterval: cfg.Engine.HeartbeatInterval.Duration,
		CycleLockTTL:      cfg.Engine.CycleLockTTL.Duration,
		Invalidation:      cfg.Invalidation.Enabled,
		InvalidationConf:  cfg.Invalidation.MinConfidence,
	}, instruments, logger)

	return &Engine{
		Gateway:  gw,
		Executor: exec,
		Control:  ctrl,
		Runner:   engine.NewRunner(ctrl, gw, cfg.Engine.Interval.Duration, logger),
		News:     feed,
	}, nil
}

func classMap(f func(domain.AssetClass) float64) map[domain.AssetClass]float64 {
	out := make(map[domain.AssetClass]float64, len(domain.AssetClasses))
	for _, c := range domain.AssetClasses {
		out[c] = f(c)
	}
	return out
}

func capacityConfig(c config.CapacityConfig) risk.CapacityConfig {
	return risk.CapacityConfig{
		BaseSlots:       c.BaseSlots,
		SniperSlots:     c.SniperSlots,
		SymbolCapNormal: c.SymbolCapNormal,
		SymbolCapSniper: c.SymbolCapSniper,
		ClassCaps: map[domain.AssetClass]int{
			domain.AssetMetal:      c.MetalCap,
			domain.AssetYenCross:   c.YenCrossCap,
			domain.AssetOtherForex: c.ForexCap,
		},
	}
}
