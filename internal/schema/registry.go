package schema

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InstrumentID is the numeric identifier for an instrument.
type InstrumentID uint32

// Instrument describes a tradable instrument and its exchange constraints.
// CircuitPct of zero means the market default applies.
type Instrument struct {
	ID         InstrumentID
	Symbol     string
	Exchange   string
	Kind       InstrumentKind
	LotSize    int64
	TickSize   decimal.Decimal
	CircuitPct decimal.Decimal
}

// Registry stores instrument definitions in a compact form.
type Registry struct {
	instruments []Instrument
	bySymbol    map[string]InstrumentID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{bySymbol: make(map[string]InstrumentID)}
}

// Add registers a new instrument and returns its ID.
func (r *Registry) Add(inst Instrument) (InstrumentID, error) {
	if inst.Symbol == "" {
		return 0, fmt.Errorf("instrument symbol is empty")
	}
	if inst.LotSize <= 0 {
		return 0, fmt.Errorf("lot size must be > 0 for %s", inst.Symbol)
	}
	if inst.TickSize.Sign() <= 0 {
		return 0, fmt.Errorf("tick size must be > 0 for %s", inst.Symbol)
	}
	if inst.CircuitPct.Sign() < 0 {
		return 0, fmt.Errorf("circuit percentage must be >= 0 for %s", inst.Symbol)
	}
	if id, ok := r.bySymbol[inst.Symbol]; ok {
		return id, fmt.Errorf("instrument already exists: %s", inst.Symbol)
	}
	inst.ID = InstrumentID(len(r.instruments) + 1)
	r.instruments = append(r.instruments, inst)
	r.bySymbol[inst.Symbol] = inst.ID
	return inst.ID, nil
}

// Instrument returns the instrument by ID.
func (r *Registry) Instrument(id InstrumentID) (Instrument, bool) {
	if id == 0 || int(id) > len(r.instruments) {
		return Instrument{}, false
	}
	return r.instruments[id-1], true
}

// BySymbol returns the instrument for a symbol.
func (r *Registry) BySymbol(symbol string) (Instrument, bool) {
	id, ok := r.bySymbol[symbol]
	if !ok {
		return Instrument{}, false
	}
	return r.Instrument(id)
}

// Count returns the number of registered instruments.
func (r *Registry) Count() int {
	return len(r.instruments)
}

// At returns the instrument by zero-based index.
func (r *Registry) At(index int) (Instrument, bool) {
	if index < 0 || index >= len(r.instruments) {
		return Instrument{}, false
	}
	return r.instruments[index], true
}
