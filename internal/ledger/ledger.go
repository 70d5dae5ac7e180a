// Package ledger owns one position record per traded symbol and keeps
// realized/unrealized P&L arithmetically consistent as fills and price
// marks arrive. All money arithmetic is decimal; zero-crossing checks are
// exact, never epsilon-based.
package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tradecore/pkg/exception"
)

// Position is the per-symbol ledger record. Qty is signed: positive long,
// negative short, zero flat. UnrealizedPnL is always recomputed from
// LastPrice and AvgPrice, never stored independently.
type Position struct {
	Symbol        string
	Qty           int64
	AvgPrice      decimal.Decimal
	LastPrice     decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	UpdatedAt     time.Time
}

// Ledger tracks positions for all symbols.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]*Position
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{positions: make(map[string]*Position)}
}

// ApplyFill applies an incremental fill of signed quantity qty at price.
// Opening and extending fills move the volume-weighted average price;
// reducing and reversing fills realize P&L on the overlapping quantity.
func (l *Ledger) ApplyFill(symbol string, qty int64, price decimal.Decimal, ts time.Time) (Position, error) {
	if qty == 0 {
		return Position{}, errors.Wrapf(exception.ErrInvalidReport, "zero fill quantity for %s", symbol)
	}
	if price.Sign() <= 0 {
		return Position{}, errors.Wrapf(exception.ErrInvalidReport, "non-positive fill price for %s", symbol)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[symbol]
	if !ok {
		p = &Position{Symbol: symbol}
		l.positions[symbol] = p
	}

	switch {
	case p.Qty == 0:
		p.Qty = qty
		p.AvgPrice = price

	case sameSign(p.Qty, qty):
		existing := decimal.NewFromInt(abs(p.Qty))
		incoming := decimal.NewFromInt(abs(qty))
		total := existing.Add(incoming)
		p.AvgPrice = p.AvgPrice.Mul(existing).Add(price.Mul(incoming)).Div(total)
		p.Qty += qty

	default:
		overlap := min64(abs(p.Qty), abs(qty))
		sign := decimal.NewFromInt(signOf(p.Qty))
		p.RealizedPnL = p.RealizedPnL.Add(
			price.Sub(p.AvgPrice).Mul(decimal.NewFromInt(overlap)).Mul(sign),
		)
		remainder := abs(qty) - overlap
		if remainder > 0 {
			// reversal: leftover quantity opens a fresh leg at the fill price
			p.Qty = signOf(qty) * remainder
			p.AvgPrice = price
		} else {
			p.Qty += qty
			if p.Qty == 0 {
				p.AvgPrice = decimal.Zero
			}
		}
	}

	p.LastPrice = price
	p.UpdatedAt = ts
	recompute(p)
	return *p, nil
}

// Mark updates the last observed price and recomputes unrealized P&L.
// It is a no-op for flat or unknown symbols.
func (l *Ledger) Mark(symbol string, price decimal.Decimal, ts time.Time) (Position, bool) {
	if price.Sign() <= 0 {
		return Position{}, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[symbol]
	if !ok || p.Qty == 0 {
		return Position{}, false
	}
	p.LastPrice = price
	p.UpdatedAt = ts
	recompute(p)
	return *p, true
}

// Close removes the record for a symbol. A non-flat position is force-closed
// by realizing P&L at the supplied price.
func (l *Ledger) Close(symbol string, price decimal.Decimal, ts time.Time) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[symbol]
	if !ok {
		return Position{}, errors.Wrapf(exception.ErrUnknownSymbol, "close %s", symbol)
	}
	if p.Qty != 0 {
		if price.Sign() <= 0 {
			return Position{}, errors.Wrapf(exception.ErrRange, "close price must be positive for open position %s", symbol)
		}
		p.RealizedPnL = p.RealizedPnL.Add(
			price.Sub(p.AvgPrice).Mul(decimal.NewFromInt(abs(p.Qty))).Mul(decimal.NewFromInt(signOf(p.Qty))),
		)
		p.LastPrice = price
		p.Qty = 0
		p.AvgPrice = decimal.Zero
	}
	p.UpdatedAt = ts
	recompute(p)
	final := *p
	delete(l.positions, symbol)
	return final, nil
}

// Position returns the current record for a symbol.
func (l *Ledger) Position(symbol string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Snapshot returns a consistent copy of all positions, sorted by symbol.
func (l *Ledger) Snapshot() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// recompute derives unrealized P&L. Caller holds the lock.
func recompute(p *Position) {
	if p.Qty == 0 || p.LastPrice.Sign() == 0 {
		p.UnrealizedPnL = decimal.Zero
		return
	}
	p.UnrealizedPnL = p.LastPrice.Sub(p.AvgPrice).Mul(decimal.NewFromInt(p.Qty))
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func signOf(v int64) int64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
