package obs

import (
	"sync/atomic"
	"time"

	"tradecore/internal/schema"
)

const (
	maxOrderStatus  = int(schema.OrderStatusRejected)
	maxRejectReason = int(schema.ReasonRiskLeverage)
)

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	transitionCounts [maxOrderStatus + 1]uint64
	rejectCounts     [maxRejectReason + 1]uint64
	reportErrors     uint64
	queueDrops       uint64

	validateLatency LatencyStats
	riskEvalLatency LatencyStats
	fillLatency     LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	TransitionCounts map[schema.OrderStatus]uint64
	RejectCounts     map[schema.RejectReason]uint64
	ReportErrors     uint64
	QueueDrops       uint64
	ValidateLatency  LatencySnapshot
	RiskEvalLatency  LatencySnapshot
	FillLatency      LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveTransition counts an order entering a status.
func (m *Metrics) ObserveTransition(to schema.OrderStatus) {
	if m == nil {
		return
	}
	idx := int(to)
	if idx >= 0 && idx < len(m.transitionCounts) {
		atomic.AddUint64(&m.transitionCounts[idx], 1)
	}
}

// IncReject increments the counter for a reject reason.
func (m *Metrics) IncReject(reason schema.RejectReason) {
	if m == nil {
		return
	}
	idx := int(reason)
	if idx >= 0 && idx < len(m.rejectCounts) {
		atomic.AddUint64(&m.rejectCounts[idx], 1)
	}
}

// IncReportError records a refused execution report.
func (m *Metrics) IncReportError() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.reportErrors, 1)
}

// IncQueueDrop records a dropped outbound event.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// ObserveValidate measures order validation latency.
func (m *Metrics) ObserveValidate(d time.Duration) {
	if m == nil {
		return
	}
	m.validateLatency.Observe(d)
}

// ObserveRiskEval measures risk evaluation latency.
func (m *Metrics) ObserveRiskEval(d time.Duration) {
	if m == nil {
		return
	}
	m.riskEvalLatency.Observe(d)
}

// ObserveFill measures fill-to-ledger latency.
func (m *Metrics) ObserveFill(d time.Duration) {
	if m == nil {
		return
	}
	m.fillLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	transitions := make(map[schema.OrderStatus]uint64)
	for i := range m.transitionCounts {
		if v := atomic.LoadUint64(&m.transitionCounts[i]); v > 0 {
			transitions[schema.OrderStatus(i)] = v
		}
	}
	rejects := make(map[schema.RejectReason]uint64)
	for i := range m.rejectCounts {
		if v := atomic.LoadUint64(&m.rejectCounts[i]); v > 0 {
			rejects[schema.RejectReason(i)] = v
		}
	}
	return Snapshot{
		TransitionCounts: transitions,
		RejectCounts:     rejects,
		ReportErrors:     atomic.LoadUint64(&m.reportErrors),
		QueueDrops:       atomic.LoadUint64(&m.queueDrops),
		ValidateLatency:  m.validateLatency.Snapshot(),
		RiskEvalLatency:  m.riskEvalLatency.Snapshot(),
		FillLatency:      m.fillLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
