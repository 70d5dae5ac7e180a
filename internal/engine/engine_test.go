package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/bus"
	"tradecore/internal/market"
	"tradecore/internal/obs"
	"tradecore/internal/om"
	"tradecore/internal/risk"
	"tradecore/internal/schema"
	"tradecore/internal/validator"
	"tradecore/pkg/exception"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testEngine(t *testing.T, events *bus.Queue, metrics *obs.Metrics) *Engine {
	t.Helper()
	reg := schema.NewRegistry()
	_, err := reg.Add(schema.Instrument{
		Symbol:   "RELIANCE",
		Exchange: "NSE",
		Kind:     schema.InstrumentEquity,
		LotSize:  1,
		TickSize: d("0.05"),
	})
	require.NoError(t, err)
	_, err = reg.Add(schema.Instrument{
		Symbol:   "NIFTY26AUG22500CE",
		Exchange: "NSE",
		Kind:     schema.InstrumentOption,
		LotSize:  50,
		TickSize: d("0.05"),
	})
	require.NoError(t, err)

	rules := market.NewRules(reg, market.DefaultSession(), d("0.1"))
	limits := risk.Limits{
		Version:         1,
		PortfolioValue:  d("100000000"),
		MaxExposurePct:  d("0.5"),
		MaxPositionSize: 100000,
	}
	return New(rules, validator.Config{}, risk.NewManager(limits), events, metrics)
}

// 2026-08-24 is a Monday.
func clock(t *testing.T, hour, minute int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return time.Date(2026, time.August, 24, hour, minute, 0, 0, loc)
}

func buyLimit(qty int64, price string) schema.OrderRequest {
	return schema.OrderRequest{
		Symbol:   "RELIANCE",
		Exchange: "NSE",
		Side:     schema.OrderSideBuy,
		Kind:     schema.OrderKindLimit,
		Product:  schema.ProductIntraday,
		Validity: schema.ValidityDay,
		Qty:      qty,
		Price:    d(price),
	}
}

func TestSubmitThroughFill(t *testing.T) {
	metrics := obs.NewMetrics()
	e := testEngine(t, nil, metrics)
	now := clock(t, 10, 0)

	e.OnTick(schema.Tick{Symbol: "RELIANCE", Price: d("2500"), Ts: now})

	o, err := e.SubmitOrder(buyLimit(100, "2500"), now)
	require.NoError(t, err)
	require.Equal(t, schema.OrderStatusPending, o.Status)

	o, err = e.OnExecutionReport(schema.ExecutionReport{
		OrderID: o.ID, Status: schema.ReportStatusAcked, RemainingQty: 100, Ts: now,
	}, now)
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStatusOpen, o.Status)

	o, err = e.OnExecutionReport(schema.ExecutionReport{
		OrderID: o.ID, Status: schema.ReportStatusPartFilled,
		FilledQty: 60, RemainingQty: 40, AvgPrice: d("2500"), Ts: now,
	}, now)
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStatusPartiallyFilled, o.Status)

	p, ok := e.Position("RELIANCE")
	require.True(t, ok)
	assert.EqualValues(t, 60, p.Qty)

	o, err = e.OnExecutionReport(schema.ExecutionReport{
		OrderID: o.ID, Status: schema.ReportStatusFilled,
		FilledQty: 100, RemainingQty: 0, AvgPrice: d("2540"), Ts: now,
	}, now)
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStatusFilled, o.Status)

	p, ok = e.Position("RELIANCE")
	require.True(t, ok)
	assert.EqualValues(t, 100, p.Qty)
	assert.True(t, p.AvgPrice.Equal(d("2540")), "avg %s", p.AvgPrice)

	rm := e.RiskMetrics()
	assert.True(t, rm.TotalExposure.Equal(d("260000")), "exposure at last fill price, got %s", rm.TotalExposure)

	snap := metrics.Snapshot()
	assert.EqualValues(t, 0, snap.ReportErrors)
	assert.NotZero(t, snap.ValidateLatency.Count)
	assert.NotZero(t, snap.FillLatency.Count)
}

func TestSubmitRejectedLocally(t *testing.T) {
	metrics := obs.NewMetrics()
	e := testEngine(t, nil, metrics)
	now := clock(t, 10, 0)

	o, err := e.SubmitOrder(buyLimit(0, "2500"), now)
	require.NoError(t, err, "rejection is a terminal state, not an error")
	assert.Equal(t, schema.OrderStatusRejected, o.Status)
	assert.Equal(t, schema.ReasonQtyNotPositive, o.Reason)

	snap := metrics.Snapshot()
	assert.EqualValues(t, 1, snap.RejectCounts[schema.ReasonQtyNotPositive])
}

func TestCancelAfterFillSurfacesStateError(t *testing.T) {
	e := testEngine(t, nil, nil)
	now := clock(t, 10, 0)

	o, err := e.SubmitOrder(buyLimit(100, "2500"), now)
	require.NoError(t, err)
	_, err = e.OnExecutionReport(schema.ExecutionReport{
		OrderID: o.ID, Status: schema.ReportStatusFilled,
		FilledQty: 100, RemainingQty: 0, AvgPrice: d("2500"), Ts: now,
	}, now)
	require.NoError(t, err)

	_, err = e.CancelOrder(o.ID, now)
	assert.ErrorIs(t, err, exception.ErrState)

	got, ok := e.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, schema.OrderStatusFilled, got.Status)
}

func TestModifyRevalidates(t *testing.T) {
	e := testEngine(t, nil, nil)
	now := clock(t, 10, 0)

	e.OnTick(schema.Tick{Symbol: "RELIANCE", Price: d("2500"), Ts: now})

	o, err := e.SubmitOrder(buyLimit(100, "2500"), now)
	require.NoError(t, err)

	inside := d("2510")
	got, err := e.ModifyOrder(o.ID, schema.ModifyRequest{Price: &inside}, now)
	require.NoError(t, err)
	assert.True(t, got.Req.Price.Equal(inside))

	outside := d("3000")
	_, err = e.ModifyOrder(o.ID, schema.ModifyRequest{Price: &outside}, now)
	assert.ErrorIs(t, err, exception.ErrRange, "10%% band around 2500 excludes 3000")

	got, _ = e.Order(o.ID)
	assert.True(t, got.Req.Price.Equal(inside), "failed modify leaves the order unchanged")
}

func TestAfterMarketQueueAndRelease(t *testing.T) {
	e := testEngine(t, nil, nil)
	evening := clock(t, 18, 0)

	req := buyLimit(100, "2500")
	req.AfterMarket = true
	o, err := e.SubmitOrder(req, evening)
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStatusValidated, o.Status, "after-market orders wait for the open")

	assert.Zero(t, e.ReleaseAfterMarket(evening), "still closed")

	nextOpen := clock(t, 10, 0).AddDate(0, 0, 1)
	assert.Equal(t, 1, e.ReleaseAfterMarket(nextOpen))

	got, ok := e.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, schema.OrderStatusPending, got.Status)

	assert.Zero(t, e.ReleaseAfterMarket(nextOpen), "queue drains on release")
}

func TestRegularOrderRejectedWhileClosed(t *testing.T) {
	e := testEngine(t, nil, nil)
	o, err := e.SubmitOrder(buyLimit(100, "2500"), clock(t, 18, 0))
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStatusRejected, o.Status)
	assert.Equal(t, schema.ReasonSessionClosed, o.Reason)
}

func TestOnTickDrivesReferenceAndMarks(t *testing.T) {
	e := testEngine(t, nil, nil)
	now := clock(t, 10, 0)

	_, ok := e.ReferencePrice("RELIANCE")
	assert.False(t, ok)

	e.OnTick(schema.Tick{Symbol: "RELIANCE", Price: d("2500"), Ts: now})
	ref, ok := e.ReferencePrice("RELIANCE")
	require.True(t, ok)
	assert.True(t, ref.Equal(d("2500")))

	o, err := e.SubmitOrder(buyLimit(100, "2500"), now)
	require.NoError(t, err)
	_, err = e.OnExecutionReport(schema.ExecutionReport{
		OrderID: o.ID, Status: schema.ReportStatusFilled,
		FilledQty: 100, RemainingQty: 0, AvgPrice: d("2500"), Ts: now,
	}, now)
	require.NoError(t, err)

	e.OnTick(schema.Tick{Symbol: "RELIANCE", Price: d("2600"), Ts: now})
	p, ok := e.Position("RELIANCE")
	require.True(t, ok)
	assert.True(t, p.UnrealizedPnL.Equal(d("10000")), "unrealized %s", p.UnrealizedPnL)
	assert.True(t, e.RiskMetrics().TotalExposure.Equal(d("260000")))

	e.OnTick(schema.Tick{Symbol: "RELIANCE", Price: decimal.Zero, Ts: now})
	ref, _ = e.ReferencePrice("RELIANCE")
	assert.True(t, ref.Equal(d("2600")), "non-positive ticks are ignored")
}

func TestRiskGateRejectsThroughEngine(t *testing.T) {
	reg := schema.NewRegistry()
	_, err := reg.Add(schema.Instrument{
		Symbol:   "RELIANCE",
		Exchange: "NSE",
		Kind:     schema.InstrumentEquity,
		LotSize:  1,
		TickSize: d("0.05"),
	})
	require.NoError(t, err)
	rules := market.NewRules(reg, market.DefaultSession(), d("0.1"))
	limits := risk.Limits{
		Version:        1,
		PortfolioValue: d("100000"),
		MaxExposurePct: d("0.5"),
	}
	e := New(rules, validator.Config{}, risk.NewManager(limits), nil, nil)
	now := clock(t, 10, 0)

	// 100 * 2500 = 250k against a 50k exposure cap
	o, err := e.SubmitOrder(buyLimit(100, "2500"), now)
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStatusRejected, o.Status)
	assert.Equal(t, schema.ReasonRiskExposure, o.Reason)
}

func TestSetRiskLimitsRecomputes(t *testing.T) {
	e := testEngine(t, nil, nil)
	now := clock(t, 10, 0)

	o, err := e.SubmitOrder(buyLimit(100, "2500"), now)
	require.NoError(t, err)
	_, err = e.OnExecutionReport(schema.ExecutionReport{
		OrderID: o.ID, Status: schema.ReportStatusFilled,
		FilledQty: 100, RemainingQty: 0, AvgPrice: d("2500"), Ts: now,
	}, now)
	require.NoError(t, err)

	e.SetRiskLimits(risk.Limits{
		Version:        2,
		PortfolioValue: d("400000"),
		MaxExposurePct: d("0.5"),
		WarnRatio:      d("0.8"),
	})

	rm := e.RiskMetrics()
	assert.True(t, rm.TotalExposure.Equal(d("250000")))
	assert.Equal(t, schema.RiskStatusCritical, rm.Status, "250k breaches 50%% of 400k")
}

func TestEventsPublishedToQueue(t *testing.T) {
	queue := bus.NewQueue(64)
	e := testEngine(t, queue, nil)
	now := clock(t, 10, 0)

	var mu sync.Mutex
	var events []schema.OrderEvent
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		queue.Run(ctx, func(ev schema.OrderEvent) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		})
	}()

	o, err := e.SubmitOrder(buyLimit(100, "2500"), now)
	require.NoError(t, err)
	_, err = e.OnExecutionReport(schema.ExecutionReport{
		OrderID: o.ID, Status: schema.ReportStatusFilled,
		FilledQty: 100, RemainingQty: 0, AvgPrice: d("2500"), Ts: now,
	}, now)
	require.NoError(t, err)

	queue.Close()
	<-done

	mu.Lock()
	defer mu.Unlock()
	// created, validated, pending, filled
	require.Len(t, events, 4)
	assert.Equal(t, schema.OrderStatusCreated, events[0].To)
	assert.Equal(t, schema.OrderStatusFilled, events[3].To)
	for _, ev := range events {
		assert.Equal(t, o.ID, ev.OrderID)
		assert.Equal(t, "RELIANCE", ev.Symbol)
	}
}

func TestBracketChildInheritsProduct(t *testing.T) {
	e := testEngine(t, nil, nil)
	now := clock(t, 10, 0)

	parentReq := buyLimit(100, "2500")
	parent, err := e.SubmitOrder(parentReq, now)
	require.NoError(t, err)
	require.Equal(t, schema.OrderStatusPending, parent.Status)

	childReq := buyLimit(100, "2550")
	childReq.Side = schema.OrderSideSell
	childReq.Product = schema.ProductUnknown
	childReq.ParentID = parent.ID
	child, err := e.SubmitOrder(childReq, now)
	require.NoError(t, err)
	assert.Equal(t, schema.ProductIntraday, child.Req.Product)
	assert.Equal(t, schema.OrderStatusPending, child.Status)
}

func TestInvalidReportCountsError(t *testing.T) {
	metrics := obs.NewMetrics()
	e := testEngine(t, nil, metrics)
	now := clock(t, 10, 0)

	o, err := e.SubmitOrder(buyLimit(100, "2500"), now)
	require.NoError(t, err)

	_, err = e.OnExecutionReport(schema.ExecutionReport{
		OrderID: o.ID, Status: schema.ReportStatusPartFilled,
		FilledQty: 60, RemainingQty: 60, AvgPrice: d("2500"), Ts: now,
	}, now)
	assert.ErrorIs(t, err, exception.ErrInvalidReport)
	assert.EqualValues(t, 1, metrics.Snapshot().ReportErrors)

	_, ok := e.Position("RELIANCE")
	assert.False(t, ok, "refused reports never reach the ledger")
}

func TestConcurrentTicksAndOrders(t *testing.T) {
	e := testEngine(t, nil, obs.NewMetrics())
	now := clock(t, 10, 0)
	e.OnTick(schema.Tick{Symbol: "RELIANCE", Price: d("2500"), Ts: now})

	var wg sync.WaitGroup
	pending := make(chan om.Order, 32)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 8; j++ {
				o, err := e.SubmitOrder(buyLimit(1, "2500"), now)
				if err == nil && o.Status == schema.OrderStatusPending {
					pending <- o
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			e.OnTick(schema.Tick{Symbol: "RELIANCE", Price: d("2501"), Ts: now})
		}
	}()
	wg.Wait()
	close(pending)

	for o := range pending {
		_, err := e.OnExecutionReport(schema.ExecutionReport{
			OrderID: o.ID, Status: schema.ReportStatusFilled,
			FilledQty: 1, RemainingQty: 0, AvgPrice: d("2500"), Ts: now,
		}, now)
		require.NoError(t, err)
	}

	p, ok := e.Position("RELIANCE")
	require.True(t, ok)
	assert.EqualValues(t, 32, p.Qty)
}

// Fill deltas must reach the ledger in the order the state machine produced
// them. Every buy here fills at 100 and every sell at 110, and a worker only
// sells after its own buy has been applied, so the position can never dip
// below flat and each sell realizes exactly 10 per share. Out-of-order
// application would open a short leg and diverge the realized total.
func TestConcurrentReportsRealizeInOrder(t *testing.T) {
	e := testEngine(t, nil, nil)
	now := clock(t, 10, 0)
	e.OnTick(schema.Tick{Symbol: "RELIANCE", Price: d("100"), Ts: now})

	const workers, rounds = 4, 20
	fill := func(id schema.OrderID, price string) error {
		_, err := e.OnExecutionReport(schema.ExecutionReport{
			OrderID: id, Status: schema.ReportStatusFilled,
			FilledQty: 1, RemainingQty: 0, AvgPrice: d(price), Ts: now,
		}, now)
		return err
	}

	errs := make(chan error, workers*rounds*4)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				buy, err := e.SubmitOrder(buyLimit(1, "100"), now)
				if err != nil {
					errs <- err
					return
				}
				if err := fill(buy.ID, "100"); err != nil {
					errs <- err
					return
				}

				sellReq := buyLimit(1, "110")
				sellReq.Side = schema.OrderSideSell
				sell, err := e.SubmitOrder(sellReq, now)
				if err != nil {
					errs <- err
					return
				}
				if err := fill(sell.ID, "110"); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	p, ok := e.Position("RELIANCE")
	require.True(t, ok)
	assert.Zero(t, p.Qty)
	want := d("10").Mul(d("80")) // workers * rounds round trips
	assert.True(t, p.RealizedPnL.Equal(want), "realized %s", p.RealizedPnL)
}
