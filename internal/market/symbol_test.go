package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

func TestParseFutureSymbol(t *testing.T) {
	c, err := ParseDerivativeSymbol("NIFTY26AUGFUT")
	require.NoError(t, err)
	assert.Equal(t, "NIFTY", c.Underlying)
	assert.Equal(t, 2026, c.ExpiryYear)
	assert.Equal(t, time.August, c.ExpiryMonth)
	assert.True(t, c.Strike.IsZero())
	assert.Equal(t, schema.OptionRightNone, c.Right)
}

func TestParseOptionSymbol(t *testing.T) {
	c, err := ParseDerivativeSymbol("NIFTY26AUG22500CE")
	require.NoError(t, err)
	assert.Equal(t, "NIFTY", c.Underlying)
	assert.Equal(t, 2026, c.ExpiryYear)
	assert.Equal(t, time.August, c.ExpiryMonth)
	assert.Equal(t, "22500", c.Strike.String())
	assert.Equal(t, schema.OptionRightCall, c.Right)

	c, err = ParseDerivativeSymbol("RELIANCE26SEP3000PE")
	require.NoError(t, err)
	assert.Equal(t, "RELIANCE", c.Underlying)
	assert.Equal(t, schema.OptionRightPut, c.Right)
}

func TestParseRejectsNonDerivatives(t *testing.T) {
	for _, symbol := range []string{"RELIANCE", "NIFTY26XXXFUT", "nifty26augfut", ""} {
		_, err := ParseDerivativeSymbol(symbol)
		assert.ErrorIs(t, err, exception.ErrFormat, "symbol %q", symbol)
	}
}

func TestInstrumentCategory(t *testing.T) {
	assert.Equal(t, schema.InstrumentOption, InstrumentCategory("NIFTY26AUG22500CE"))
	assert.Equal(t, schema.InstrumentFuture, InstrumentCategory("NIFTY26AUGFUT"))
	assert.Equal(t, schema.InstrumentEquity, InstrumentCategory("RELIANCE"))
	assert.Equal(t, schema.InstrumentEquity, InstrumentCategory("M&M"))
	assert.Equal(t, schema.InstrumentUnknown, InstrumentCategory("reliance"))
	assert.Equal(t, schema.InstrumentUnknown, InstrumentCategory("123ABC"))
}

func TestValidSymbol(t *testing.T) {
	assert.True(t, ValidSymbol("RELIANCE", schema.InstrumentEquity))
	assert.True(t, ValidSymbol("NIFTY26AUGFUT", schema.InstrumentFuture))
	assert.False(t, ValidSymbol("NIFTY26AUGFUT", schema.InstrumentEquity))
	assert.False(t, ValidSymbol(" RELIANCE", schema.InstrumentEquity))
	assert.False(t, ValidSymbol("", schema.InstrumentEquity))
}
