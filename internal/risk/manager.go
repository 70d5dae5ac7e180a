// Package risk owns limit configuration and the aggregate account metrics
// derived from the position ledger. It gates new orders and recomputes
// metrics after every fill.
package risk

import (
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"tradecore/internal/ledger"
	"tradecore/internal/market"
	"tradecore/internal/schema"
)

// Limits is the replaceable risk configuration. MarginRates are simplified
// per-product placeholders supplied by configuration, not a real margin model.
type Limits struct {
	Version         uint16
	PortfolioValue  decimal.Decimal
	MaxExposurePct  decimal.Decimal
	MaxPositionSize int64
	MinMarginPct    decimal.Decimal
	MaxLeverage     decimal.Decimal
	MarginRates     map[schema.ProductType]decimal.Decimal
	WarnRatio       decimal.Decimal
}

// MarginRate returns the configured rate for a product, zero when unset.
func (l Limits) MarginRate(product schema.ProductType) decimal.Decimal {
	if l.MarginRates == nil {
		return decimal.Zero
	}
	return l.MarginRates[product]
}

// Metrics is the recomputed aggregate view. Never mutated incrementally;
// UpdateExposure always rebuilds it from a full ledger snapshot.
type Metrics struct {
	TotalExposure  decimal.Decimal
	UsedMargin     decimal.Decimal
	MarginHeadroom decimal.Decimal
	Leverage       decimal.Decimal
	Status         schema.RiskStatus
}

// Decision is the outcome of a pre-trade risk check.
type Decision struct {
	Allowed bool
	Reason  schema.RejectReason
}

var allow = Decision{Allowed: true, Reason: schema.ReasonNone}

func deny(reason schema.RejectReason) Decision {
	return Decision{Reason: reason}
}

// Manager evaluates pre-trade checks against the active limits and keeps the
// aggregate metrics current. Limits replacement is atomic: checks in flight
// keep the snapshot they captured.
type Manager struct {
	limits atomic.Pointer[Limits]

	mu      sync.RWMutex
	metrics Metrics
}

// NewManager creates a manager with the given initial limits.
func NewManager(limits Limits) *Manager {
	m := &Manager{}
	m.limits.Store(&limits)
	m.mu.Lock()
	m.metrics = computeMetrics(limits, nil)
	m.mu.Unlock()
	return m
}

// Limits returns the active limit set.
func (m *Manager) Limits() Limits {
	return *m.limits.Load()
}

// SetLimits atomically replaces the limit set. It takes effect for all checks
// initiated after the call returns.
func (m *Manager) SetLimits(limits Limits) {
	m.limits.Store(&limits)
}

// Check evaluates the hypothetical post-trade state for an order. First
// breach wins; the reason identifies the limit that failed. refPrice prices
// market-style orders; currentQty is the signed position for the symbol.
func (m *Manager) Check(req schema.OrderRequest, refPrice decimal.Decimal, currentQty int64) Decision {
	limits := *m.limits.Load()
	m.mu.RLock()
	metrics := m.metrics
	m.mu.RUnlock()

	price := req.Price
	if !req.Kind.RequiresPrice() || price.Sign() <= 0 {
		price = refPrice
	}
	if price.Sign() <= 0 {
		// no reference available: nothing to gate on
		return allow
	}

	qty := decimal.NewFromInt(req.Qty)
	notional := price.Mul(qty)
	signed := notional.Mul(decimal.NewFromInt(req.Side.Sign()))

	if limits.MaxExposurePct.Sign() > 0 && limits.PortfolioValue.Sign() > 0 {
		hypothetical := metrics.TotalExposure.Add(signed).Abs()
		if hypothetical.GreaterThan(limits.MaxExposurePct.Mul(limits.PortfolioValue)) {
			return deny(schema.ReasonRiskExposure)
		}
	}

	if limits.MaxPositionSize > 0 {
		next := currentQty + req.Side.Sign()*req.Qty
		if next < 0 {
			next = -next
		}
		if next > limits.MaxPositionSize {
			return deny(schema.ReasonRiskPositionSize)
		}
	}

	if limits.MinMarginPct.Sign() > 0 && limits.PortfolioValue.Sign() > 0 {
		required := limits.MarginRate(req.Product).Mul(notional)
		floor := limits.MinMarginPct.Mul(limits.PortfolioValue)
		if metrics.MarginHeadroom.Sub(required).LessThan(floor) {
			return deny(schema.ReasonRiskMargin)
		}
	}

	if limits.MaxLeverage.Sign() > 0 && limits.PortfolioValue.Sign() > 0 {
		leverage := metrics.TotalExposure.Add(notional).Div(limits.PortfolioValue)
		if leverage.GreaterThan(limits.MaxLeverage) {
			return deny(schema.ReasonRiskLeverage)
		}
	}

	return allow
}

// UpdateExposure rebuilds the metrics from a full ledger snapshot. Called
// after every fill; the recompute is total, never an incremental drift.
func (m *Manager) UpdateExposure(positions []ledger.Position) Metrics {
	limits := *m.limits.Load()
	metrics := computeMetrics(limits, positions)
	m.mu.Lock()
	m.metrics = metrics
	m.mu.Unlock()
	return metrics
}

// Metrics returns the last recomputed aggregate view.
func (m *Manager) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// computeMetrics derives the aggregate view. Held equities margin at the
// delivery rate, held derivatives at the normal-carry rate.
func computeMetrics(limits Limits, positions []ledger.Position) Metrics {
	exposure := decimal.Zero
	used := decimal.Zero
	for _, p := range positions {
		if p.Qty == 0 {
			continue
		}
		price := p.LastPrice
		if price.Sign() <= 0 {
			price = p.AvgPrice
		}
		value := price.Mul(decimal.NewFromInt(p.Qty)).Abs()
		exposure = exposure.Add(value)

		product := schema.ProductDelivery
		if market.InstrumentCategory(p.Symbol) != schema.InstrumentEquity {
			product = schema.ProductNormal
		}
		used = used.Add(value.Mul(limits.MarginRate(product)))
	}

	metrics := Metrics{
		TotalExposure: exposure,
		UsedMargin:    used,
	}
	if limits.PortfolioValue.Sign() > 0 {
		metrics.MarginHeadroom = limits.PortfolioValue.Sub(used)
		metrics.Leverage = exposure.Div(limits.PortfolioValue)
	}
	metrics.Status = deriveStatus(limits, metrics)
	return metrics
}

func deriveStatus(limits Limits, metrics Metrics) schema.RiskStatus {
	if limits.PortfolioValue.Sign() <= 0 {
		return schema.RiskStatusSafe
	}
	warn := limits.WarnRatio
	if warn.Sign() <= 0 {
		warn = decimal.NewFromFloat(0.8)
	}

	status := schema.RiskStatusSafe
	check := func(value, limit decimal.Decimal) {
		if limit.Sign() <= 0 {
			return
		}
		switch {
		case value.GreaterThan(limit):
			status = schema.RiskStatusCritical
		case status == schema.RiskStatusSafe && value.GreaterThanOrEqual(limit.Mul(warn)):
			status = schema.RiskStatusWarning
		}
	}

	check(metrics.TotalExposure, limits.MaxExposurePct.Mul(limits.PortfolioValue))
	check(metrics.Leverage, limits.MaxLeverage)
	if limits.MinMarginPct.Sign() > 0 {
		floor := limits.MinMarginPct.Mul(limits.PortfolioValue)
		if metrics.MarginHeadroom.LessThan(floor) {
			status = schema.RiskStatusCritical
		}
	}
	return status
}
