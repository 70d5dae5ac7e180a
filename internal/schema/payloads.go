package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderID identifies an accepted order. Zero means not yet assigned.
type OrderID uint64

// OrderRequest is an inbound order before validation. Price and TriggerPrice
// are meaningful only for kinds that require them; TargetPrice and
// StopLossPrice only for bracket/cover orders.
type OrderRequest struct {
	Symbol        string
	Exchange      string
	Side          OrderSide
	Kind          OrderKind
	Product       ProductType
	Validity      Validity
	Qty           int64
	Price         decimal.Decimal
	TriggerPrice  decimal.Decimal
	TargetPrice   decimal.Decimal
	StopLossPrice decimal.Decimal
	ParentID      OrderID
	AfterMarket   bool
}

// ModifyRequest carries the sparse set of fields a modification may change.
// Nil fields are left untouched.
type ModifyRequest struct {
	Qty          *int64
	Price        *decimal.Decimal
	TriggerPrice *decimal.Decimal
	Validity     *Validity
}

// ReportStatus is the execution venue's view of an order, carried on reports.
type ReportStatus uint16

const (
	ReportStatusUnknown ReportStatus = iota
	ReportStatusAcked
	ReportStatusPartFilled
	ReportStatusFilled
	ReportStatusCancelled
	ReportStatusRejected
)

// ExecutionReport is an inbound fill/ack/reject event from the venue.
// FilledQty and RemainingQty are cumulative figures; AvgPrice must be
// positive whenever FilledQty > 0 and zero otherwise.
type ExecutionReport struct {
	OrderID      OrderID
	Status       ReportStatus
	FilledQty    int64
	RemainingQty int64
	AvgPrice     decimal.Decimal
	Ts           time.Time
	Note         string
}

// Tick is an inbound market price observation.
type Tick struct {
	Symbol string
	Price  decimal.Decimal
	Ts     time.Time
}

// OrderEvent is emitted on every order status transition.
type OrderEvent struct {
	OrderID OrderID
	Symbol  string
	From    OrderStatus
	To      OrderStatus
	Reason  RejectReason
	Ts      time.Time
	Note    string
}
