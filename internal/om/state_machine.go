// Package om owns the canonical order lifecycle. Orders enter through
// Create/Accept/Submit, advance on execution reports, and leave through the
// terminal Filled/Cancelled/Rejected states. Every transition is emitted to
// the publisher hook.
package om

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// Order is the state machine's view of a single order.
type Order struct {
	ID           schema.OrderID
	Req          schema.OrderRequest
	Status       schema.OrderStatus
	FilledQty    int64
	AvgFillPrice decimal.Decimal
	Reason       schema.RejectReason
	CreatedAt    time.Time
	UpdatedAt    time.Time

	children []schema.OrderID
}

// FillDelta is the incremental quantity a report added, priced at the
// per-increment fill price. Qty is signed by order side.
type FillDelta struct {
	Symbol string
	Qty    int64
	Price  decimal.Decimal
	Ts     time.Time
}

// StateMachine tracks all orders by ID. It is not internally synchronized;
// the caller serializes access.
type StateMachine struct {
	nextID uint64
	orders map[schema.OrderID]*Order
	emit   func(schema.OrderEvent)
}

// NewStateMachine creates an empty state machine. emit may be nil.
func NewStateMachine(emit func(schema.OrderEvent)) *StateMachine {
	if emit == nil {
		emit = func(schema.OrderEvent) {}
	}
	return &StateMachine{orders: make(map[schema.OrderID]*Order), emit: emit}
}

// Order returns a copy of the current order state.
func (m *StateMachine) Order(id schema.OrderID) (Order, bool) {
	o, ok := m.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Create assigns an identity and enters the Created state. Bracket/cover
// children are registered against their parent.
func (m *StateMachine) Create(req schema.OrderRequest, now time.Time) Order {
	m.nextID++
	o := &Order{
		ID:        schema.OrderID(m.nextID),
		Req:       req,
		Status:    schema.OrderStatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.orders[o.ID] = o
	if req.ParentID != 0 {
		if parent, ok := m.orders[req.ParentID]; ok {
			parent.children = append(parent.children, o.ID)
		}
	}
	m.publish(o, schema.OrderStatusUnknown, schema.ReasonNone, "", now)
	return *o
}

// Accept moves a freshly created order to Validated.
func (m *StateMachine) Accept(id schema.OrderID, now time.Time) (Order, error) {
	return m.advance(id, schema.OrderStatusCreated, schema.OrderStatusValidated, now)
}

// Submit moves a validated order to Pending, handing it to the execution
// collaborator. After-market orders stay Validated until released at open.
func (m *StateMachine) Submit(id schema.OrderID, now time.Time) (Order, error) {
	return m.advance(id, schema.OrderStatusValidated, schema.OrderStatusPending, now)
}

// Reject terminates an order with the validator's reason. Legal from the
// pre-open states only.
func (m *StateMachine) Reject(id schema.OrderID, reason schema.RejectReason, now time.Time) (Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return Order{}, errors.Wrapf(exception.ErrUnknownOrder, "reject order %d", id)
	}
	switch o.Status {
	case schema.OrderStatusCreated, schema.OrderStatusValidated, schema.OrderStatusPending:
	default:
		return *o, errors.Wrapf(exception.ErrState, "reject from %s", o.Status)
	}
	from := o.Status
	o.Status = schema.OrderStatusRejected
	o.Reason = reason
	o.UpdatedAt = now
	m.publish(o, from, reason, "", now)
	return *o, nil
}

// Cancel is legal only from Open or PartiallyFilled. Cancelling a parent
// before any fill cancels its registered children as a unit.
func (m *StateMachine) Cancel(id schema.OrderID, now time.Time) (Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return Order{}, errors.Wrapf(exception.ErrUnknownOrder, "cancel order %d", id)
	}
	switch o.Status {
	case schema.OrderStatusOpen, schema.OrderStatusPartiallyFilled:
	default:
		return *o, errors.Wrapf(exception.ErrState, "cancel from %s", o.Status)
	}
	unfilled := o.FilledQty == 0
	from := o.Status
	o.Status = schema.OrderStatusCancelled
	o.UpdatedAt = now
	m.publish(o, from, schema.ReasonNone, "", now)

	if unfilled {
		for _, childID := range o.children {
			child, ok := m.orders[childID]
			if !ok || child.Status.Terminal() {
				continue
			}
			childFrom := child.Status
			child.Status = schema.OrderStatusCancelled
			child.UpdatedAt = now
			m.publish(child, childFrom, schema.ReasonNone, "parent cancelled", now)
		}
	}
	return *o, nil
}

// Modify merges the sparse changes into the order and applies them only if
// check accepts the merged request. Legal from Validated, Pending, or Open.
// A failed modification leaves the order untouched.
func (m *StateMachine) Modify(id schema.OrderID, changes schema.ModifyRequest, check func(schema.OrderRequest) error, now time.Time) (Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return Order{}, errors.Wrapf(exception.ErrUnknownOrder, "modify order %d", id)
	}
	switch o.Status {
	case schema.OrderStatusValidated, schema.OrderStatusPending, schema.OrderStatusOpen:
	default:
		return *o, errors.Wrapf(exception.ErrState, "modify from %s", o.Status)
	}

	merged := o.Req
	if changes.Qty != nil {
		merged.Qty = *changes.Qty
	}
	if changes.Price != nil {
		merged.Price = *changes.Price
	}
	if changes.TriggerPrice != nil {
		merged.TriggerPrice = *changes.TriggerPrice
	}
	if changes.Validity != nil {
		merged.Validity = *changes.Validity
	}

	if check != nil {
		if err := check(merged); err != nil {
			return *o, err
		}
	}
	o.Req = merged
	o.UpdatedAt = now
	return *o, nil
}

// ApplyReport advances an order from an execution report. Only legal from
// Pending, Open, or PartiallyFilled. Inconsistent reports are refused without
// mutating the order. The returned FillDelta is non-nil when the report
// added filled quantity.
func (m *StateMachine) ApplyReport(rep schema.ExecutionReport, now time.Time) (Order, *FillDelta, error) {
	o, ok := m.orders[rep.OrderID]
	if !ok {
		return Order{}, nil, errors.Wrapf(exception.ErrUnknownOrder, "report for order %d", rep.OrderID)
	}
	switch o.Status {
	case schema.OrderStatusPending, schema.OrderStatusOpen, schema.OrderStatusPartiallyFilled:
	default:
		return *o, nil, errors.Wrapf(exception.ErrState, "report in %s", o.Status)
	}
	if err := checkReport(o, rep); err != nil {
		return *o, nil, err
	}

	var delta *FillDelta
	incremental := rep.FilledQty - o.FilledQty
	if incremental > 0 {
		price := incrementPrice(o, rep, incremental)
		delta = &FillDelta{
			Symbol: o.Req.Symbol,
			Qty:    o.Req.Side.Sign() * incremental,
			Price:  price,
			Ts:     rep.Ts,
		}
		o.FilledQty = rep.FilledQty
		o.AvgFillPrice = rep.AvgPrice
	}

	from := o.Status
	to := nextStatus(o, rep)
	if to != from {
		o.Status = to
	}
	o.UpdatedAt = now
	if to != from {
		m.publish(o, from, o.Reason, rep.Note, now)
	}
	return *o, delta, nil
}

// Orders returns a copy of every tracked order.
func (m *StateMachine) Orders() []Order {
	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out
}

func (m *StateMachine) advance(id schema.OrderID, from, to schema.OrderStatus, now time.Time) (Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return Order{}, errors.Wrapf(exception.ErrUnknownOrder, "order %d", id)
	}
	if o.Status != from {
		return *o, errors.Wrapf(exception.ErrState, "%s -> %s from %s", from, to, o.Status)
	}
	o.Status = to
	o.UpdatedAt = now
	m.publish(o, from, schema.ReasonNone, "", now)
	return *o, nil
}

// checkReport refuses reports that violate the fill arithmetic invariants.
func checkReport(o *Order, rep schema.ExecutionReport) error {
	if rep.FilledQty < 0 || rep.RemainingQty < 0 {
		return errors.Wrapf(exception.ErrInvalidReport, "negative quantity on order %d", o.ID)
	}
	if rep.FilledQty+rep.RemainingQty > o.Req.Qty {
		return errors.Wrapf(exception.ErrInvalidReport,
			"filled %d + remaining %d exceeds requested %d", rep.FilledQty, rep.RemainingQty, o.Req.Qty)
	}
	if rep.FilledQty < o.FilledQty {
		return errors.Wrapf(exception.ErrInvalidReport,
			"cumulative fill went backwards: %d -> %d", o.FilledQty, rep.FilledQty)
	}
	if rep.FilledQty > 0 && rep.AvgPrice.Sign() <= 0 {
		return errors.Wrapf(exception.ErrInvalidReport, "filled quantity without average price on order %d", o.ID)
	}
	if rep.FilledQty == 0 && rep.AvgPrice.Sign() != 0 {
		return errors.Wrapf(exception.ErrInvalidReport, "average price without filled quantity on order %d", o.ID)
	}
	return nil
}

// incrementPrice backs the per-increment fill price out of the cumulative
// averages so the ledger never double counts.
func incrementPrice(o *Order, rep schema.ExecutionReport, incremental int64) decimal.Decimal {
	cumulative := rep.AvgPrice.Mul(decimal.NewFromInt(rep.FilledQty))
	prior := o.AvgFillPrice.Mul(decimal.NewFromInt(o.FilledQty))
	return cumulative.Sub(prior).Div(decimal.NewFromInt(incremental))
}

func nextStatus(o *Order, rep schema.ExecutionReport) schema.OrderStatus {
	switch rep.Status {
	case schema.ReportStatusRejected:
		return schema.OrderStatusRejected
	case schema.ReportStatusCancelled:
		return schema.OrderStatusCancelled
	}
	switch {
	case o.FilledQty == o.Req.Qty:
		return schema.OrderStatusFilled
	case o.FilledQty > 0:
		return schema.OrderStatusPartiallyFilled
	case o.Status == schema.OrderStatusPending:
		// first acknowledgement
		return schema.OrderStatusOpen
	default:
		return o.Status
	}
}

func (m *StateMachine) publish(o *Order, from schema.OrderStatus, reason schema.RejectReason, note string, now time.Time) {
	m.emit(schema.OrderEvent{
		OrderID: o.ID,
		Symbol:  o.Req.Symbol,
		From:    from,
		To:      o.Status,
		Reason:  reason,
		Ts:      now,
		Note:    note,
	})
}
