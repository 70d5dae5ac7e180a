package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/schema"
)

func baseConfig() FileConfig {
	return FileConfig{
		Instruments: []InstrumentConfig{
			{Symbol: "RELIANCE", Exchange: "NSE"},
			{Symbol: "NIFTY26AUGFUT", Exchange: "NSE", LotSize: 50, TickSize: decimal.NewFromFloat(0.05)},
		},
		Market: MarketConfig{DefaultCircuitPct: decimal.NewFromFloat(0.1)},
		Validator: ValidatorConfig{
			MaxQty:      100000,
			MaxNotional: decimal.NewFromInt(100000000),
		},
		Risk: RiskConfig{
			Version:        1,
			PortfolioValue: decimal.NewFromInt(1000000),
			MaxExposurePct: decimal.NewFromFloat(0.5),
			MarginRates: map[string]decimal.Decimal{
				"intraday": decimal.NewFromFloat(0.2),
				"delivery": decimal.NewFromInt(1),
				"normal":   decimal.NewFromFloat(0.15),
			},
		},
	}
}

func TestResolveDefaults(t *testing.T) {
	loaded, err := Resolve(baseConfig())
	require.NoError(t, err)

	assert.Equal(t, 2, loaded.Registry.Count())
	assert.Equal(t, 1024, loaded.QueueCapacity)

	// equity defaults: lot 1, tick 0.05, kind from grammar
	inst, ok := loaded.Registry.BySymbol("RELIANCE")
	require.True(t, ok)
	assert.Equal(t, schema.InstrumentEquity, inst.Kind)
	assert.EqualValues(t, 1, inst.LotSize)
	assert.True(t, inst.TickSize.Equal(decimal.NewFromFloat(0.05)))

	fut, ok := loaded.Registry.BySymbol("NIFTY26AUGFUT")
	require.True(t, ok)
	assert.Equal(t, schema.InstrumentFuture, fut.Kind)
	assert.EqualValues(t, 50, fut.LotSize)

	// default NSE session survives an empty session block
	assert.Equal(t, 9*60+15, loaded.Rules.Session.OpenMinute)
	assert.Equal(t, 15*60+30, loaded.Rules.Session.CloseMinute)

	assert.EqualValues(t, 1, loaded.RiskLimits.Version)
	rate, ok := loaded.RiskLimits.MarginRates[schema.ProductIntraday]
	require.True(t, ok)
	assert.True(t, rate.Equal(decimal.NewFromFloat(0.2)))
}

func TestResolveSessionOverride(t *testing.T) {
	cfg := baseConfig()
	cfg.Session = SessionConfig{Timezone: "UTC", PreOpen: "08:45", Open: "09:00", Close: "17:00"}

	loaded, err := Resolve(cfg)
	require.NoError(t, err)
	assert.Equal(t, 8*60+45, loaded.Rules.Session.PreOpenMinute)
	assert.Equal(t, 9*60, loaded.Rules.Session.OpenMinute)
	assert.Equal(t, 17*60, loaded.Rules.Session.CloseMinute)
	assert.Equal(t, "UTC", loaded.Rules.Session.Location.String())
}

func TestResolveRejectsBadInput(t *testing.T) {
	cfg := baseConfig()
	cfg.Instruments = nil
	_, err := Resolve(cfg)
	assert.Error(t, err, "empty instrument list")

	cfg = baseConfig()
	cfg.Instruments[0].Symbol = "bad symbol"
	_, err = Resolve(cfg)
	assert.Error(t, err, "symbol grammar")

	cfg = baseConfig()
	cfg.Session = SessionConfig{Open: "16:00", Close: "09:00"}
	_, err = Resolve(cfg)
	assert.Error(t, err, "session windows out of order")

	cfg = baseConfig()
	cfg.Session = SessionConfig{Open: "not-a-time"}
	_, err = Resolve(cfg)
	assert.Error(t, err, "unparseable session time")

	cfg = baseConfig()
	cfg.Risk.MarginRates = map[string]decimal.Decimal{"margin": decimal.NewFromFloat(0.5)}
	_, err = Resolve(cfg)
	assert.Error(t, err, "unknown product name")

	cfg = baseConfig()
	cfg.Risk.MarginRates = map[string]decimal.Decimal{"intraday": decimal.NewFromInt(2)}
	_, err = Resolve(cfg)
	assert.Error(t, err, "rate above 1")
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"instruments": [
			{"symbol": "RELIANCE", "exchange": "NSE", "tickSize": "0.05"},
			{"symbol": "NIFTY26AUG22500CE", "exchange": "NSE", "lotSize": 50, "tickSize": "0.05"}
		],
		"session": {"timezone": "Asia/Kolkata"},
		"market": {"defaultCircuitPct": "0.1"},
		"validator": {"maxQty": 100000, "maxNotional": "100000000"},
		"risk": {
			"version": 3,
			"portfolioValue": "1000000",
			"maxExposurePct": "0.5",
			"marginRates": {"intraday": "0.2"}
		},
		"events": {"queueCapacity": 256},
		"journal": {"enabled": false}
	}`), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 256, loaded.QueueCapacity)
	assert.EqualValues(t, 3, loaded.RiskLimits.Version)
	assert.False(t, loaded.Journal.Enabled)

	opt, ok := loaded.Registry.BySymbol("NIFTY26AUG22500CE")
	require.True(t, ok)
	assert.Equal(t, schema.InstrumentOption, opt.Kind)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
