// Package sim is an in-memory stand-in for the execution venue, used by the
// paper-trading tools. It acknowledges pending orders and fills them in lot
// slices at the supplied price, producing the same execution reports a real
// venue adapter would.
package sim

import (
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/om"
	"tradecore/internal/schema"
)

// Venue simulates order execution.
type Venue struct {
	rng       *rand.Rand
	maxSlices int
}

// NewVenue creates a venue filling each order in up to maxSlices increments.
func NewVenue(maxSlices int, seed int64) *Venue {
	if maxSlices <= 0 {
		maxSlices = 1
	}
	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}
	return &Venue{rng: rand.New(rand.NewSource(seed)), maxSlices: maxSlices}
}

// Reports produces the acknowledgement and fill reports for a pending order.
// Fill quantities stay on the lot grid; the final report completes the order.
func (v *Venue) Reports(o om.Order, price decimal.Decimal, lot int64, now time.Time) []schema.ExecutionReport {
	reports := []schema.ExecutionReport{{
		OrderID: o.ID,
		Status:  schema.ReportStatusAcked,
		Ts:      now,
	}}
	if lot <= 0 {
		lot = 1
	}

	lots := o.Req.Qty / lot
	slices := int64(v.rng.Intn(v.maxSlices) + 1)
	if slices > lots {
		slices = lots
	}

	filled := int64(0)
	for i := int64(0); i < slices; i++ {
		chunk := (lots / slices) * lot
		if i == slices-1 {
			chunk = o.Req.Qty - filled
		}
		filled += chunk
		status := schema.ReportStatusPartFilled
		if filled == o.Req.Qty {
			status = schema.ReportStatusFilled
		}
		reports = append(reports, schema.ExecutionReport{
			OrderID:      o.ID,
			Status:       status,
			FilledQty:    filled,
			RemainingQty: o.Req.Qty - filled,
			AvgPrice:     price,
			Ts:           now,
		})
	}
	return reports
}
