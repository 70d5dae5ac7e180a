package main

import (
	"context"
	"flag"
	"log"
	"sync"
	"sync/atomic"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"tradecore/internal/bus"
	"tradecore/internal/engine"
	"tradecore/internal/feed"
	"tradecore/internal/journal"
	"tradecore/internal/obs"
	"tradecore/internal/om"
	"tradecore/internal/ops"
	"tradecore/internal/risk"
	"tradecore/internal/schema"
	"tradecore/internal/sim"
)

type runtimeConfig struct {
	v atomic.Value
}

func newRuntimeConfig(loaded ops.Loaded) *runtimeConfig {
	var rc runtimeConfig
	rc.v.Store(loaded)
	return &rc
}

func (r *runtimeConfig) Load() ops.Loaded {
	return r.v.Load().(ops.Loaded)
}

func (r *runtimeConfig) Update(loaded ops.Loaded) {
	r.v.Store(loaded)
}

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	configReload := flag.Duration("config-reload-interval", 2*time.Second, "Config reload interval (0=disable)")
	orderCount := flag.Int("order-count", 10, "Number of paper orders to submit")
	orderInterval := flag.Duration("order-interval", 100*time.Millisecond, "Delay between orders")
	ticksPerOrder := flag.Int("ticks-per-order", 5, "Synthetic ticks emitted before each order")
	basePrice := flag.String("base-price", "2500", "Base price for the synthetic feed")
	seed := flag.Int64("seed", 0, "Feed/venue random seed (0=time-based)")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (empty=disabled)")
	flag.Parse()

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "tradecore/engine",
			ServerAddress:   *pyroscopeAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	runtime := newRuntimeConfig(loaded)

	base, err := decimal.NewFromString(*basePrice)
	if err != nil || base.Sign() <= 0 {
		log.Fatalf("base-price must be a positive decimal")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := bus.NewQueue(loaded.QueueCapacity)
	metrics := obs.NewMetrics()
	core := engine.New(loaded.Rules, loaded.Validator, risk.NewManager(loaded.RiskLimits), queue, metrics)

	if *configReload > 0 {
		riskVersion := loaded.RiskLimits.Version
		go watchConfig(ctx, *configPath, *configReload, func(next ops.Loaded) {
			runtime.Update(next)
			if next.RiskLimits.Version != riskVersion {
				core.SetRiskLimits(next.RiskLimits)
				riskVersion = next.RiskLimits.Version
				logs.Infof("risk limits reloaded, version %d", riskVersion)
			}
		})
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		consumeEvents(ctx, queue, loaded.Journal)
	}()

	if err := run(core, runtime, base, *orderCount, *orderInterval, *ticksPerOrder, *seed); err != nil {
		log.Fatalf("run failed: %v", err)
	}

	queue.Close()
	wg.Wait()

	for _, p := range core.Positions() {
		logs.Infof("position %s qty=%d avg=%s realized=%s unrealized=%s",
			p.Symbol, p.Qty, p.AvgPrice, p.RealizedPnL, p.UnrealizedPnL)
	}
	rm := core.RiskMetrics()
	logs.Infof("risk exposure=%s leverage=%s headroom=%s status=%s",
		rm.TotalExposure, rm.Leverage, rm.MarginHeadroom, rm.Status)
	snapshot := metrics.Snapshot()
	logs.Infof("metrics transitions=%v rejects=%v report_errors=%d drops=%d validate=%+v risk_eval=%+v fill=%+v",
		snapshot.TransitionCounts, snapshot.RejectCounts, snapshot.ReportErrors, snapshot.QueueDrops,
		snapshot.ValidateLatency, snapshot.RiskEvalLatency, snapshot.FillLatency)
}

func run(core *engine.Engine, runtime *runtimeConfig, base decimal.Decimal, orderCount int, orderInterval time.Duration, ticksPerOrder int, seed int64) error {
	loaded := runtime.Load()
	ticker, err := feed.NewGenerator(loaded.Registry, base, 0.001, seed)
	if err != nil {
		return err
	}
	venue := sim.NewVenue(3, seed)

	side := schema.OrderSideBuy
	for i := 0; i < orderCount; i++ {
		select {
		case <-sys.Shutdown():
			logs.Warn("shutdown requested")
			return nil
		default:
		}

		now := time.Now()
		var last schema.Tick
		for t := 0; t < ticksPerOrder; t++ {
			last = ticker.Next(now)
			core.OnTick(last)
		}
		core.ReleaseAfterMarket(now)

		inst, _ := loaded.Registry.BySymbol(last.Symbol)
		req := schema.OrderRequest{
			Symbol:      last.Symbol,
			Exchange:    inst.Exchange,
			Side:        side,
			Kind:        schema.OrderKindLimit,
			Product:     schema.ProductIntraday,
			Validity:    schema.ValidityDay,
			Qty:         inst.LotSize,
			Price:       last.Price,
			AfterMarket: !loaded.Rules.Session.IsOpen(now),
		}
		if side == schema.OrderSideBuy {
			side = schema.OrderSideSell
		} else {
			side = schema.OrderSideBuy
		}

		o, err := core.SubmitOrder(req, now)
		if err != nil {
			return err
		}
		if o.Status == schema.OrderStatusRejected {
			logs.Warnf("order %d rejected: %s", o.ID, o.Reason)
			continue
		}
		if o.Status == schema.OrderStatusPending {
			fillOrder(core, venue, o, last.Price, inst.LotSize)
		}

		if orderInterval > 0 && i < orderCount-1 {
			time.Sleep(orderInterval)
		}
	}
	return nil
}

func fillOrder(core *engine.Engine, venue *sim.Venue, o om.Order, price decimal.Decimal, lot int64) {
	for _, rep := range venue.Reports(o, price, lot, time.Now()) {
		if _, err := core.OnExecutionReport(rep, time.Now()); err != nil {
			logs.Errorf("report for order %d refused: %+v", rep.OrderID, err)
			return
		}
	}
}

func consumeEvents(ctx context.Context, queue *bus.Queue, cfg ops.JournalConfig) {
	if !cfg.Enabled {
		queue.Run(ctx, func(e schema.OrderEvent) {
			logs.Infof("order %d %s -> %s reason=%s", e.OrderID, e.From, e.To, e.Reason)
		})
		return
	}

	j, err := journal.Open(journal.Option{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
		SSLMode:  cfg.SSLMode,
	})
	if err != nil {
		logs.Errorf("journal open failed, falling back to log output: %+v", err)
		queue.Run(ctx, func(e schema.OrderEvent) {
			logs.Infof("order %d %s -> %s reason=%s", e.OrderID, e.From, e.To, e.Reason)
		})
		return
	}
	defer func() {
		_ = j.Close()
	}()
	j.Run(ctx, queue)
}

func watchConfig(ctx context.Context, path string, interval time.Duration, apply func(ops.Loaded)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			next, err := ops.Load(path)
			if err != nil {
				logs.Warnf("config reload failed: %+v", err)
				continue
			}
			apply(next)
		}
	}
}
