// Package engine wires the validator, order state machine, position ledger,
// and risk manager into the order lifecycle core. It is safe for concurrent
// use from the three inbound event sources: order requests, execution
// reports, and price ticks.
package engine

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/bus"
	"tradecore/internal/ledger"
	"tradecore/internal/market"
	"tradecore/internal/obs"
	"tradecore/internal/om"
	"tradecore/internal/risk"
	"tradecore/internal/schema"
	"tradecore/internal/validator"
)

// Engine is the order lifecycle and risk-gated execution core.
type Engine struct {
	rules   market.Rules
	check   *validator.Validator
	riskMgr *risk.Manager
	book    *ledger.Ledger

	metrics *obs.Metrics
	events  *bus.Queue

	// mu guards the state machine, the after-market queue, and the apply of
	// fill deltas to the ledger. All work under it is in-memory and
	// short-held; event publishing never blocks.
	mu       sync.Mutex
	sm       *om.StateMachine
	amoQueue []schema.OrderID

	priceMu   sync.RWMutex
	refPrices map[string]decimal.Decimal
}

// New creates an engine. events and metrics may be nil.
func New(rules market.Rules, cfg validator.Config, riskMgr *risk.Manager, events *bus.Queue, metrics *obs.Metrics) *Engine {
	e := &Engine{
		rules:     rules,
		riskMgr:   riskMgr,
		book:      ledger.NewLedger(),
		metrics:   metrics,
		events:    events,
		refPrices: make(map[string]decimal.Decimal),
	}
	e.check = validator.New(rules, cfg, meteredGate{mgr: riskMgr, metrics: metrics})
	e.sm = om.NewStateMachine(e.publish)
	return e
}

// meteredGate wraps the risk manager to time every pre-trade check.
type meteredGate struct {
	mgr     *risk.Manager
	metrics *obs.Metrics
}

func (g meteredGate) Check(req schema.OrderRequest, refPrice decimal.Decimal, currentQty int64) risk.Decision {
	start := time.Now()
	decision := g.mgr.Check(req, refPrice, currentQty)
	g.metrics.ObserveRiskEval(time.Since(start))
	return decision
}

// SubmitOrder validates and tracks a new order request. Validation failures
// are recovered locally: the order terminates at Rejected with the reason
// attached and a nil error is returned.
func (e *Engine) SubmitOrder(req schema.OrderRequest, now time.Time) (om.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// bracket/cover children inherit the parent's product type
	if req.ParentID != 0 {
		if parent, ok := e.sm.Order(req.ParentID); ok {
			req.Product = parent.Req.Product
		}
	}

	o := e.sm.Create(req, now)

	start := time.Now()
	decision := e.check.Validate(req, e.view(req.Symbol), now)
	e.metrics.ObserveValidate(time.Since(start))

	if !decision.Accepted {
		e.metrics.IncReject(decision.Reason)
		return e.mustReject(o.ID, decision.Reason, now), nil
	}

	accepted, err := e.sm.Accept(o.ID, now)
	if err != nil {
		return accepted, err
	}
	if req.AfterMarket || req.Kind == schema.OrderKindAfterMarket {
		// queued until the next session open
		e.amoQueue = append(e.amoQueue, o.ID)
		return accepted, nil
	}
	return e.sm.Submit(o.ID, now)
}

// CancelOrder requests cancellation. Illegal states surface a StateError
// without mutating the order.
func (e *Engine) CancelOrder(id schema.OrderID, now time.Time) (om.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sm.Cancel(id, now)
}

// ModifyOrder merges the sparse changes and re-validates the merged order.
// On failure the order is left unchanged and the validation error returned.
func (e *Engine) ModifyOrder(id schema.OrderID, changes schema.ModifyRequest, now time.Time) (om.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sm.Modify(id, changes, func(merged schema.OrderRequest) error {
		return e.check.ValidateModify(merged, e.view(merged.Symbol)).Err()
	}, now)
}

// OnExecutionReport advances the order and, for fill increments, applies the
// delta to the ledger and recomputes the risk metrics from a fresh snapshot.
// The lock is held through the ledger apply so concurrent same-symbol fills
// land in the order the state machine produced them.
func (e *Engine) OnExecutionReport(rep schema.ExecutionReport, now time.Time) (om.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, delta, err := e.sm.ApplyReport(rep, now)
	if err != nil {
		e.metrics.IncReportError()
		return o, err
	}
	if delta == nil {
		return o, nil
	}

	start := time.Now()
	if _, err := e.book.ApplyFill(delta.Symbol, delta.Qty, delta.Price, delta.Ts); err != nil {
		e.metrics.IncReportError()
		return o, err
	}
	e.riskMgr.UpdateExposure(e.book.Snapshot())
	e.metrics.ObserveFill(time.Since(start))
	return o, nil
}

// OnTick updates the validator's reference price, marks the position, and
// refreshes the aggregate metrics.
func (e *Engine) OnTick(tick schema.Tick) {
	if tick.Price.Sign() <= 0 {
		return
	}
	e.priceMu.Lock()
	e.refPrices[tick.Symbol] = tick.Price
	e.priceMu.Unlock()

	if _, ok := e.book.Mark(tick.Symbol, tick.Price, tick.Ts); ok {
		e.riskMgr.UpdateExposure(e.book.Snapshot())
	}
}

// ReleaseAfterMarket submits queued after-market orders once the session is
// open. Orders rejected or cancelled while queued are skipped.
func (e *Engine) ReleaseAfterMarket(now time.Time) int {
	if !e.rules.Session.IsOpen(now) {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	released := 0
	for _, id := range e.amoQueue {
		o, ok := e.sm.Order(id)
		if !ok || o.Status != schema.OrderStatusValidated {
			continue
		}
		if _, err := e.sm.Submit(id, now); err == nil {
			released++
		}
	}
	e.amoQueue = e.amoQueue[:0]
	return released
}

// Order returns the current state of an order.
func (e *Engine) Order(id schema.OrderID) (om.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sm.Order(id)
}

// Positions returns a consistent snapshot of all positions.
func (e *Engine) Positions() []ledger.Position {
	return e.book.Snapshot()
}

// Position returns the ledger record for one symbol.
func (e *Engine) Position(symbol string) (ledger.Position, bool) {
	return e.book.Position(symbol)
}

// RiskMetrics returns the last recomputed aggregate risk view.
func (e *Engine) RiskMetrics() risk.Metrics {
	return e.riskMgr.Metrics()
}

// SetRiskLimits atomically replaces the risk limits and rebuilds the metrics
// under the new limits. Checks already in flight keep their old snapshot.
func (e *Engine) SetRiskLimits(limits risk.Limits) {
	e.riskMgr.SetLimits(limits)
	e.riskMgr.UpdateExposure(e.book.Snapshot())
}

// ReferencePrice returns the latest observed price for a symbol.
func (e *Engine) ReferencePrice(symbol string) (decimal.Decimal, bool) {
	e.priceMu.RLock()
	defer e.priceMu.RUnlock()
	price, ok := e.refPrices[symbol]
	return price, ok
}

func (e *Engine) view(symbol string) validator.View {
	e.priceMu.RLock()
	ref := e.refPrices[symbol]
	e.priceMu.RUnlock()

	qty := int64(0)
	if p, ok := e.book.Position(symbol); ok {
		qty = p.Qty
	}
	return validator.View{ReferencePrice: ref, PositionQty: qty}
}

func (e *Engine) mustReject(id schema.OrderID, reason schema.RejectReason, now time.Time) om.Order {
	o, _ := e.sm.Reject(id, reason, now)
	return o
}

func (e *Engine) publish(event schema.OrderEvent) {
	e.metrics.ObserveTransition(event.To)
	if e.events == nil {
		return
	}
	if err := e.events.TryPublish(event); err != nil {
		e.metrics.IncQueueDrop()
	}
}
