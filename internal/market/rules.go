package market

import (
	"github.com/shopspring/decimal"

	"tradecore/internal/schema"
)

// Rules bundles the exchange constraint set consulted during validation.
// All methods are pure; Rules itself carries only configuration.
type Rules struct {
	Registry          *schema.Registry
	Session           Session
	DefaultCircuitPct decimal.Decimal
}

// NewRules builds a rule set over a registry.
func NewRules(reg *schema.Registry, session Session, defaultCircuitPct decimal.Decimal) Rules {
	return Rules{
		Registry:          reg,
		Session:           session,
		DefaultCircuitPct: defaultCircuitPct,
	}
}

// CircuitBand returns the permitted price range around a reference price.
// The instrument's circuit percentage override applies when set, else the
// market default. The lower bound rounds up and the upper bound rounds down
// to the instrument's tick size, so both bounds stay inside the raw band.
func (r Rules) CircuitBand(inst schema.Instrument, reference decimal.Decimal) (lower, upper decimal.Decimal) {
	pct := inst.CircuitPct
	if pct.Sign() == 0 {
		pct = r.DefaultCircuitPct
	}
	delta := reference.Mul(pct)
	lower = roundUpToTick(reference.Sub(delta), inst.TickSize)
	upper = roundDownToTick(reference.Add(delta), inst.TickSize)
	return lower, upper
}

// LotSize returns the trading multiple for a symbol. Registered instruments
// use their configured lot size; anything else trades in units of one.
func (r Rules) LotSize(symbol string) int64 {
	if inst, ok := r.Registry.BySymbol(symbol); ok {
		return inst.LotSize
	}
	return 1
}

func roundDownToTick(v, tick decimal.Decimal) decimal.Decimal {
	return v.Div(tick).Floor().Mul(tick)
}

func roundUpToTick(v, tick decimal.Decimal) decimal.Decimal {
	return v.Div(tick).Ceil().Mul(tick)
}
