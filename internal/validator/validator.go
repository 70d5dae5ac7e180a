// Package validator checks proposed orders against the market rule set and
// the risk manager. Evaluation is short-circuit: the first failing check
// decides the reject reason, and identical inputs always produce identical
// decisions.
package validator

import (
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/market"
	"tradecore/internal/risk"
	"tradecore/internal/schema"
)

// Config holds the global quantity and notional bounds.
type Config struct {
	MinQty      int64
	MaxQty      int64
	MinNotional decimal.Decimal
	MaxNotional decimal.Decimal
}

// RiskGate is the risk manager hook consulted as the final check.
type RiskGate interface {
	Check(req schema.OrderRequest, refPrice decimal.Decimal, currentQty int64) risk.Decision
}

// View is the per-symbol snapshot the caller captured for this validation.
type View struct {
	ReferencePrice decimal.Decimal
	PositionQty    int64
}

// Decision is the validation outcome.
type Decision struct {
	Accepted bool
	Reason   schema.RejectReason
}

var accepted = Decision{Accepted: true, Reason: schema.ReasonNone}

func rejected(reason schema.RejectReason) Decision {
	return Decision{Reason: reason}
}

// Validator evaluates order requests.
type Validator struct {
	rules market.Rules
	cfg   Config
	gate  RiskGate
}

// New creates a validator over the given rule set and risk gate.
func New(rules market.Rules, cfg Config, gate RiskGate) *Validator {
	return &Validator{rules: rules, cfg: cfg, gate: gate}
}

// Validate runs the full check sequence for a new order.
func (v *Validator) Validate(req schema.OrderRequest, view View, now time.Time) Decision {
	if d := v.checkSession(req, now); !d.Accepted {
		return d
	}
	if d := v.checkStatic(req, view); !d.Accepted {
		return d
	}
	if v.gate != nil {
		if d := v.gate.Check(req, view.ReferencePrice, view.PositionQty); !d.Allowed {
			return rejected(d.Reason)
		}
	}
	return accepted
}

// ValidateModify re-runs the structural checks (symbol through kind rules)
// against a merged order. Session and risk gates are not re-applied.
func (v *Validator) ValidateModify(merged schema.OrderRequest, view View) Decision {
	return v.checkStatic(merged, view)
}

func (v *Validator) checkSession(req schema.OrderRequest, now time.Time) Decision {
	open := v.rules.Session.IsOpen(now)
	if afterMarket(req) {
		if open {
			return rejected(schema.ReasonSessionOpenForAMO)
		}
		return accepted
	}
	if !open {
		return rejected(schema.ReasonSessionClosed)
	}
	return accepted
}

// checkStatic covers symbol format, product compatibility, quantity, price,
// order value, and kind-specific structural rules, in that order.
func (v *Validator) checkStatic(req schema.OrderRequest, view View) Decision {
	inst, ok := v.rules.Registry.BySymbol(req.Symbol)
	if !ok || !market.ValidSymbol(req.Symbol, inst.Kind) {
		return rejected(schema.ReasonBadSymbol)
	}

	if !productAllowed(inst.Kind, req.Product) {
		return rejected(schema.ReasonBadProduct)
	}

	if req.Qty <= 0 {
		return rejected(schema.ReasonQtyNotPositive)
	}
	if req.Qty%inst.LotSize != 0 {
		return rejected(schema.ReasonQtyNotLotMultiple)
	}
	if (v.cfg.MinQty > 0 && req.Qty < v.cfg.MinQty) || (v.cfg.MaxQty > 0 && req.Qty > v.cfg.MaxQty) {
		return rejected(schema.ReasonQtyOutOfBounds)
	}

	if d := v.checkPrice(req, inst, view.ReferencePrice); !d.Accepted {
		return d
	}

	if d := v.checkNotional(req, view.ReferencePrice); !d.Accepted {
		return d
	}

	return v.checkKindRules(req, view.ReferencePrice)
}

func (v *Validator) checkPrice(req schema.OrderRequest, inst schema.Instrument, ref decimal.Decimal) Decision {
	if req.Kind.RequiresPrice() && req.Price.Sign() <= 0 {
		return rejected(schema.ReasonPriceNotPositive)
	}
	if req.Kind.RequiresTrigger() && req.TriggerPrice.Sign() <= 0 {
		return rejected(schema.ReasonTriggerNotPositive)
	}
	// any stated price sits inside the circuit band, cover entries included
	if req.Price.Sign() > 0 && ref.Sign() > 0 {
		lower, upper := v.rules.CircuitBand(inst, ref)
		if req.Price.LessThan(lower) || req.Price.GreaterThan(upper) {
			return rejected(schema.ReasonPriceOutsideBand)
		}
	}
	return accepted
}

func (v *Validator) checkNotional(req schema.OrderRequest, ref decimal.Decimal) Decision {
	price := req.Price
	if price.Sign() <= 0 {
		price = ref
	}
	if price.Sign() <= 0 {
		// no price known for a market-style order: bounds cannot apply
		return accepted
	}
	notional := price.Mul(decimal.NewFromInt(req.Qty))
	if v.cfg.MinNotional.Sign() > 0 && notional.LessThan(v.cfg.MinNotional) {
		return rejected(schema.ReasonNotionalOutOfBounds)
	}
	if v.cfg.MaxNotional.Sign() > 0 && notional.GreaterThan(v.cfg.MaxNotional) {
		return rejected(schema.ReasonNotionalOutOfBounds)
	}
	return accepted
}

func (v *Validator) checkKindRules(req schema.OrderRequest, ref decimal.Decimal) Decision {
	if req.Validity == schema.ValidityUnknown {
		return rejected(schema.ReasonBadValidity)
	}

	switch req.Kind {
	case schema.OrderKindBracket:
		if req.Product != schema.ProductIntraday {
			return rejected(schema.ReasonBracketNotIntraday)
		}
		entry := req.Price
		if entry.Sign() <= 0 {
			return rejected(schema.ReasonBracketNotLimit)
		}
		if req.StopLossPrice.Sign() <= 0 || req.TargetPrice.Sign() <= 0 {
			return rejected(schema.ReasonBracketPriceOrder)
		}
		switch req.Side {
		case schema.OrderSideBuy:
			if !(req.StopLossPrice.LessThan(entry) && entry.LessThan(req.TargetPrice)) {
				return rejected(schema.ReasonBracketPriceOrder)
			}
		case schema.OrderSideSell:
			if !(req.TargetPrice.LessThan(entry) && entry.LessThan(req.StopLossPrice)) {
				return rejected(schema.ReasonBracketPriceOrder)
			}
		}

	case schema.OrderKindCover:
		if req.Product != schema.ProductIntraday {
			return rejected(schema.ReasonCoverNotIntraday)
		}
		// cover entry is market or limit only, never trigger-based
		if req.TriggerPrice.Sign() > 0 {
			return rejected(schema.ReasonCoverBadEntryKind)
		}
		entry := req.Price
		if entry.Sign() <= 0 {
			entry = ref
		}
		if req.StopLossPrice.Sign() <= 0 {
			return rejected(schema.ReasonCoverStopSide)
		}
		if entry.Sign() > 0 {
			switch req.Side {
			case schema.OrderSideBuy:
				if !req.StopLossPrice.LessThan(entry) {
					return rejected(schema.ReasonCoverStopSide)
				}
			case schema.OrderSideSell:
				if !req.StopLossPrice.GreaterThan(entry) {
					return rejected(schema.ReasonCoverStopSide)
				}
			}
		}
	}

	return accepted
}

func productAllowed(kind schema.InstrumentKind, product schema.ProductType) bool {
	switch kind {
	case schema.InstrumentEquity:
		return product == schema.ProductDelivery || product == schema.ProductIntraday
	case schema.InstrumentFuture, schema.InstrumentOption:
		return product == schema.ProductNormal || product == schema.ProductIntraday
	default:
		return false
	}
}

func afterMarket(req schema.OrderRequest) bool {
	return req.AfterMarket || req.Kind == schema.OrderKindAfterMarket
}
