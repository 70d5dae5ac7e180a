package market

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// Derivative symbol grammar: UNDERLYING + YY + MMM + (FUT | STRIKE + CE/PE).
// Examples: NIFTY24AUGFUT, NIFTY24AUG22500CE, RELIANCE24SEP3000PE.
var (
	equityPattern = regexp.MustCompile(`^[A-Z][A-Z0-9&-]*$`)
	futurePattern = regexp.MustCompile(`^([A-Z][A-Z0-9&-]*?)(\d{2})(JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC)FUT$`)
	optionPattern = regexp.MustCompile(`^([A-Z][A-Z0-9&-]*?)(\d{2})(JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC)(\d+(?:\.\d+)?)(CE|PE)$`)
)

var monthByCode = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// DerivativeComponents is the decomposition of a derivative symbol.
// Strike and Right are set only for options.
type DerivativeComponents struct {
	Underlying  string
	ExpiryYear  int
	ExpiryMonth time.Month
	Strike      decimal.Decimal
	Right       schema.OptionRight
}

// ParseDerivativeSymbol decomposes a future or option symbol.
func ParseDerivativeSymbol(symbol string) (DerivativeComponents, error) {
	if m := optionPattern.FindStringSubmatch(symbol); m != nil {
		strike, err := decimal.NewFromString(m[4])
		if err != nil || strike.Sign() <= 0 {
			return DerivativeComponents{}, errors.Wrapf(exception.ErrFormat, "bad strike in symbol %s", symbol)
		}
		right := schema.OptionRightCall
		if m[5] == "PE" {
			right = schema.OptionRightPut
		}
		return DerivativeComponents{
			Underlying:  m[1],
			ExpiryYear:  2000 + atoi2(m[2]),
			ExpiryMonth: monthByCode[m[3]],
			Strike:      strike,
			Right:       right,
		}, nil
	}
	if m := futurePattern.FindStringSubmatch(symbol); m != nil {
		return DerivativeComponents{
			Underlying:  m[1],
			ExpiryYear:  2000 + atoi2(m[2]),
			ExpiryMonth: monthByCode[m[3]],
		}, nil
	}
	return DerivativeComponents{}, errors.Wrapf(exception.ErrFormat, "not a derivative symbol: %s", symbol)
}

// InstrumentCategory classifies a symbol by its grammar alone.
func InstrumentCategory(symbol string) schema.InstrumentKind {
	switch {
	case optionPattern.MatchString(symbol):
		return schema.InstrumentOption
	case futurePattern.MatchString(symbol):
		return schema.InstrumentFuture
	case equityPattern.MatchString(symbol):
		return schema.InstrumentEquity
	default:
		return schema.InstrumentUnknown
	}
}

// ValidSymbol reports whether the symbol parses for its declared kind.
func ValidSymbol(symbol string, kind schema.InstrumentKind) bool {
	if strings.TrimSpace(symbol) != symbol || symbol == "" {
		return false
	}
	return InstrumentCategory(symbol) == kind
}

func atoi2(s string) int {
	return int(s[0]-'0')*10 + int(s[1]-'0')
}
