// Paper session driver: replays a synthetic trading day through the engine
// with a virtual clock, exercising fills, cancels, and modifications, and
// prints the resulting ledger and risk view.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"tradecore/internal/bus"
	"tradecore/internal/engine"
	"tradecore/internal/feed"
	"tradecore/internal/obs"
	"tradecore/internal/ops"
	"tradecore/internal/risk"
	"tradecore/internal/schema"
	"tradecore/internal/sim"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	orderCount := flag.Int("orders", 50, "Number of orders to simulate")
	cancelEvery := flag.Int("cancel-every", 7, "Cancel every Nth order after its ack (0=disable)")
	modifyEvery := flag.Int("modify-every", 5, "Re-price every Nth order before filling (0=disable)")
	basePrice := flag.String("base-price", "2500", "Base price for the synthetic feed")
	seed := flag.Int64("seed", 1, "Random seed")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	base, err := decimal.NewFromString(*basePrice)
	if err != nil || base.Sign() <= 0 {
		log.Fatalf("base-price must be a positive decimal")
	}

	ticker, err := feed.NewGenerator(loaded.Registry, base, 0.002, *seed)
	if err != nil {
		log.Fatalf("feed init failed: %v", err)
	}
	venue := sim.NewVenue(4, *seed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := bus.NewQueue(loaded.QueueCapacity)
	metrics := obs.NewMetrics()
	core := engine.New(loaded.Rules, loaded.Validator, risk.NewManager(loaded.RiskLimits), queue, metrics)

	done := make(chan struct{})
	transitions := 0
	go func() {
		defer close(done)
		queue.Run(ctx, func(schema.OrderEvent) { transitions++ })
	}()

	clock := sessionStart(loaded, time.Now())
	side := schema.OrderSideBuy
	for i := 1; i <= *orderCount; i++ {
		clock = clock.Add(15 * time.Second)

		var last schema.Tick
		for t := 0; t < 3; t++ {
			last = ticker.Next(clock)
			core.OnTick(last)
		}

		inst, _ := loaded.Registry.BySymbol(last.Symbol)
		req := schema.OrderRequest{
			Symbol:   last.Symbol,
			Exchange: inst.Exchange,
			Side:     side,
			Kind:     schema.OrderKindLimit,
			Product:  schema.ProductIntraday,
			Validity: schema.ValidityDay,
			Qty:      inst.LotSize,
			Price:    last.Price,
		}
		if side == schema.OrderSideBuy {
			side = schema.OrderSideSell
		} else {
			side = schema.OrderSideBuy
		}

		o, err := core.SubmitOrder(req, clock)
		if err != nil {
			log.Fatalf("submit failed: %v", err)
		}
		if o.Status != schema.OrderStatusPending {
			logs.Warnf("order %d not pending: %s (%s)", o.ID, o.Status, o.Reason)
			continue
		}

		reports := venue.Reports(o, last.Price, inst.LotSize, clock)
		if _, err := core.OnExecutionReport(reports[0], clock); err != nil {
			logs.Errorf("ack refused: %+v", err)
			continue
		}

		if *cancelEvery > 0 && i%*cancelEvery == 0 {
			if _, err := core.CancelOrder(o.ID, clock); err != nil {
				logs.Errorf("cancel refused: %+v", err)
			}
			continue
		}

		if *modifyEvery > 0 && i%*modifyEvery == 0 {
			price := last.Price.Add(inst.TickSize)
			if _, err := core.ModifyOrder(o.ID, schema.ModifyRequest{Price: &price}, clock); err != nil {
				logs.Warnf("modify refused for order %d: %+v", o.ID, err)
			}
		}

		for _, rep := range reports[1:] {
			if _, err := core.OnExecutionReport(rep, clock); err != nil {
				logs.Errorf("report refused: %+v", err)
				break
			}
		}
	}

	cancel()
	<-done
	queue.Close()

	realized := decimal.Zero
	unrealized := decimal.Zero
	for _, p := range core.Positions() {
		realized = realized.Add(p.RealizedPnL)
		unrealized = unrealized.Add(p.UnrealizedPnL)
		logs.Infof("position %s qty=%d avg=%s last=%s realized=%s unrealized=%s",
			p.Symbol, p.Qty, p.AvgPrice, p.LastPrice, p.RealizedPnL, p.UnrealizedPnL)
	}
	rm := core.RiskMetrics()
	logs.Infof("session done: transitions=%d realized=%s unrealized=%s exposure=%s status=%s",
		transitions, realized, unrealized, rm.TotalExposure, rm.Status)
	snap := metrics.Snapshot()
	logs.Infof("metrics: rejects=%v report_errors=%d validate=%+v fill=%+v",
		snap.RejectCounts, snap.ReportErrors, snap.ValidateLatency, snap.FillLatency)
}

// sessionStart returns a virtual clock placed shortly after the next
// session open so the whole run happens inside the trading window.
func sessionStart(loaded ops.Loaded, from time.Time) time.Time {
	session := loaded.Rules.Session
	day := from.In(session.Location)
	start := time.Date(day.Year(), day.Month(), day.Day(),
		session.OpenMinute/60, session.OpenMinute%60, 0, 0, session.Location).
		Add(5 * time.Minute)
	for !session.IsOpen(start) {
		start = start.AddDate(0, 0, 1)
	}
	return start
}
