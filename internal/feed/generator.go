package feed

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/schema"
)

// Generator creates synthetic ticks for every instrument in the registry,
// random-walking each price around its base. Used by the paper-trading tool.
type Generator struct {
	instruments []schema.Instrument
	prices      []decimal.Decimal
	rng         *rand.Rand
	stepPct     decimal.Decimal
	index       int
}

// NewGenerator seeds a generator with a base price per instrument.
func NewGenerator(reg *schema.Registry, basePrice decimal.Decimal, stepPct float64, seed int64) (*Generator, error) {
	if reg == nil || reg.Count() == 0 {
		return nil, fmt.Errorf("registry has no instruments")
	}
	if basePrice.Sign() <= 0 {
		return nil, fmt.Errorf("base price must be > 0")
	}
	if stepPct <= 0 {
		stepPct = 0.001
	}
	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}
	instruments := make([]schema.Instrument, 0, reg.Count())
	prices := make([]decimal.Decimal, 0, reg.Count())
	for i := 0; i < reg.Count(); i++ {
		inst, ok := reg.At(i)
		if !ok {
			continue
		}
		instruments = append(instruments, inst)
		prices = append(prices, basePrice)
	}
	return &Generator{
		instruments: instruments,
		prices:      prices,
		rng:         rand.New(rand.NewSource(seed)),
		stepPct:     decimal.NewFromFloat(stepPct),
	}, nil
}

// Next creates the next tick in round-robin symbol order.
func (g *Generator) Next(now time.Time) schema.Tick {
	i := g.index
	g.index = (g.index + 1) % len(g.instruments)

	inst := g.instruments[i]
	price := g.prices[i]
	step := price.Mul(g.stepPct)
	if g.rng.Intn(2) == 0 {
		price = price.Add(step)
	} else {
		price = price.Sub(step)
	}
	// keep the walk on the instrument's tick grid and above zero
	price = price.Div(inst.TickSize).Round(0).Mul(inst.TickSize)
	if price.Sign() <= 0 {
		price = inst.TickSize
	}
	g.prices[i] = price

	return schema.Tick{
		Symbol: inst.Symbol,
		Price:  price,
		Ts:     now,
	}
}
