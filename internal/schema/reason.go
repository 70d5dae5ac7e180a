package schema

// RejectReason identifies the first rule an order violated. Validation is
// short-circuit, so exactly one reason is ever attached to a rejection.
type RejectReason uint16

const (
	ReasonNone RejectReason = iota

	// session
	ReasonSessionClosed
	ReasonSessionOpenForAMO

	// format
	ReasonBadSymbol

	// range
	ReasonBadProduct
	ReasonQtyNotPositive
	ReasonQtyNotLotMultiple
	ReasonQtyOutOfBounds
	ReasonPriceNotPositive
	ReasonTriggerNotPositive
	ReasonPriceOutsideBand
	ReasonNotionalOutOfBounds

	// structural
	ReasonBracketNotLimit
	ReasonBracketNotIntraday
	ReasonBracketPriceOrder
	ReasonCoverBadEntryKind
	ReasonCoverNotIntraday
	ReasonCoverStopSide
	ReasonBadValidity

	// risk
	ReasonRiskExposure
	ReasonRiskPositionSize
	ReasonRiskMargin
	ReasonRiskLeverage
)

// ReasonClass groups reject reasons into the error taxonomy.
type ReasonClass uint16

const (
	ClassNone ReasonClass = iota
	ClassFormat
	ClassRange
	ClassSession
	ClassStructural
	ClassRisk
)

// Class maps a reason to its taxonomy class.
func (r RejectReason) Class() ReasonClass {
	switch r {
	case ReasonNone:
		return ClassNone
	case ReasonSessionClosed, ReasonSessionOpenForAMO:
		return ClassSession
	case ReasonBadSymbol:
		return ClassFormat
	case ReasonBadProduct, ReasonQtyNotPositive, ReasonQtyNotLotMultiple,
		ReasonQtyOutOfBounds, ReasonPriceNotPositive, ReasonTriggerNotPositive,
		ReasonPriceOutsideBand, ReasonNotionalOutOfBounds:
		return ClassRange
	case ReasonBracketNotLimit, ReasonBracketNotIntraday, ReasonBracketPriceOrder,
		ReasonCoverBadEntryKind, ReasonCoverNotIntraday, ReasonCoverStopSide,
		ReasonBadValidity:
		return ClassStructural
	case ReasonRiskExposure, ReasonRiskPositionSize, ReasonRiskMargin, ReasonRiskLeverage:
		return ClassRisk
	default:
		return ClassNone
	}
}

func (r RejectReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonSessionClosed:
		return "session_closed"
	case ReasonSessionOpenForAMO:
		return "session_open_for_amo"
	case ReasonBadSymbol:
		return "bad_symbol"
	case ReasonBadProduct:
		return "bad_product"
	case ReasonQtyNotPositive:
		return "qty_not_positive"
	case ReasonQtyNotLotMultiple:
		return "qty_not_lot_multiple"
	case ReasonQtyOutOfBounds:
		return "qty_out_of_bounds"
	case ReasonPriceNotPositive:
		return "price_not_positive"
	case ReasonTriggerNotPositive:
		return "trigger_not_positive"
	case ReasonPriceOutsideBand:
		return "price_outside_band"
	case ReasonNotionalOutOfBounds:
		return "notional_out_of_bounds"
	case ReasonBracketNotLimit:
		return "bracket_not_limit"
	case ReasonBracketNotIntraday:
		return "bracket_not_intraday"
	case ReasonBracketPriceOrder:
		return "bracket_price_order"
	case ReasonCoverBadEntryKind:
		return "cover_bad_entry_kind"
	case ReasonCoverNotIntraday:
		return "cover_not_intraday"
	case ReasonCoverStopSide:
		return "cover_stop_side"
	case ReasonBadValidity:
		return "bad_validity"
	case ReasonRiskExposure:
		return "risk_exposure"
	case ReasonRiskPositionSize:
		return "risk_position_size"
	case ReasonRiskMargin:
		return "risk_margin"
	case ReasonRiskLeverage:
		return "risk_leverage"
	default:
		return "unknown"
	}
}
