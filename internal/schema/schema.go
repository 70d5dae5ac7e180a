package schema

// OrderSide describes order direction.
type OrderSide uint16

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

// Sign returns +1 for buys, -1 for sells, 0 otherwise.
func (s OrderSide) Sign() int64 {
	switch s {
	case OrderSideBuy:
		return 1
	case OrderSideSell:
		return -1
	default:
		return 0
	}
}

// OrderKind describes the order flavor.
type OrderKind uint16

const (
	OrderKindUnknown OrderKind = iota
	OrderKindMarket
	OrderKindLimit
	OrderKindStop
	OrderKindStopLimit
	OrderKindBracket
	OrderKindCover
	OrderKindAfterMarket
)

// RequiresPrice reports whether the kind carries a limit price.
func (k OrderKind) RequiresPrice() bool {
	switch k {
	case OrderKindLimit, OrderKindStopLimit, OrderKindBracket:
		return true
	default:
		return false
	}
}

// RequiresTrigger reports whether the kind carries a trigger price.
func (k OrderKind) RequiresTrigger() bool {
	switch k {
	case OrderKindStop, OrderKindStopLimit:
		return true
	default:
		return false
	}
}

// ProductType describes margin/carry treatment of an order.
type ProductType uint16

const (
	ProductUnknown ProductType = iota
	ProductIntraday
	ProductDelivery
	ProductNormal
)

// Validity describes how long an order rests.
type Validity uint16

const (
	ValidityUnknown Validity = iota
	ValidityDay
	ValidityIOC
)

// InstrumentKind classifies a tradable instrument.
type InstrumentKind uint16

const (
	InstrumentUnknown InstrumentKind = iota
	InstrumentEquity
	InstrumentFuture
	InstrumentOption
)

// OptionRight distinguishes calls from puts.
type OptionRight uint16

const (
	OptionRightNone OptionRight = iota
	OptionRightCall
	OptionRightPut
)

// OrderStatus tracks the lifecycle of an order.
type OrderStatus uint16

const (
	OrderStatusUnknown OrderStatus = iota
	OrderStatusCreated
	OrderStatusValidated
	OrderStatusPending
	OrderStatusOpen
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCancelled
	OrderStatusRejected
)

// Terminal reports whether no further transitions are allowed.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusCreated:
		return "created"
	case OrderStatusValidated:
		return "validated"
	case OrderStatusPending:
		return "pending"
	case OrderStatusOpen:
		return "open"
	case OrderStatusPartiallyFilled:
		return "partially_filled"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusCancelled:
		return "cancelled"
	case OrderStatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// RiskStatus is the tri-state account risk level.
type RiskStatus uint16

const (
	RiskStatusSafe RiskStatus = iota
	RiskStatusWarning
	RiskStatusCritical
)

func (s RiskStatus) String() string {
	switch s {
	case RiskStatusSafe:
		return "safe"
	case RiskStatusWarning:
		return "warning"
	case RiskStatusCritical:
		return "critical"
	default:
		return "unknown"
	}
}
