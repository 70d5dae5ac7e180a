package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/market"
	"tradecore/internal/risk"
	"tradecore/internal/schema"
	"tradecore/internal/validator"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Instruments []InstrumentConfig `json:"instruments"`
	Session     SessionConfig      `json:"session"`
	Market      MarketConfig       `json:"market"`
	Validator   ValidatorConfig    `json:"validator"`
	Risk        RiskConfig         `json:"risk"`
	Events      EventsConfig       `json:"events"`
	Journal     JournalConfig      `json:"journal"`
}

// InstrumentConfig describes one tradable instrument. The instrument kind is
// derived from the symbol grammar.
type InstrumentConfig struct {
	Symbol     string          `json:"symbol"`
	Exchange   string          `json:"exchange"`
	LotSize    int64           `json:"lotSize"`
	TickSize   decimal.Decimal `json:"tickSize"`
	CircuitPct decimal.Decimal `json:"circuitPct"`
}

// SessionConfig describes the trading window as local wall-clock times.
type SessionConfig struct {
	Timezone string `json:"timezone"`
	PreOpen  string `json:"preOpen"`
	Open     string `json:"open"`
	Close    string `json:"close"`
}

// MarketConfig holds market-wide constants.
type MarketConfig struct {
	DefaultCircuitPct decimal.Decimal `json:"defaultCircuitPct"`
}

// ValidatorConfig holds the global order bounds.
type ValidatorConfig struct {
	MinQty      int64           `json:"minQty"`
	MaxQty      int64           `json:"maxQty"`
	MinNotional decimal.Decimal `json:"minNotional"`
	MaxNotional decimal.Decimal `json:"maxNotional"`
}

// RiskConfig holds the replaceable risk limits. Margin rates are simplified
// per-product placeholders, keyed by "intraday", "delivery", or "normal".
type RiskConfig struct {
	Version         uint16                     `json:"version"`
	PortfolioValue  decimal.Decimal            `json:"portfolioValue"`
	MaxExposurePct  decimal.Decimal            `json:"maxExposurePct"`
	MaxPositionSize int64                      `json:"maxPositionSize"`
	MinMarginPct    decimal.Decimal            `json:"minMarginPct"`
	MaxLeverage     decimal.Decimal            `json:"maxLeverage"`
	MarginRates     map[string]decimal.Decimal `json:"marginRates"`
	WarnRatio       decimal.Decimal            `json:"warnRatio"`
}

// EventsConfig controls the outbound event queue.
type EventsConfig struct {
	QueueCapacity int `json:"queueCapacity"`
}

// JournalConfig controls the optional postgres order journal.
type JournalConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Registry      *schema.Registry
	Rules         market.Rules
	Validator     validator.Config
	RiskLimits    risk.Limits
	QueueCapacity int
	Journal       JournalConfig
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Resolve validates a file config and builds the runtime objects.
func Resolve(cfg FileConfig) (Loaded, error) {
	registry, err := buildRegistry(cfg.Instruments)
	if err != nil {
		return Loaded{}, err
	}
	session, err := buildSession(cfg.Session)
	if err != nil {
		return Loaded{}, err
	}
	limits, err := buildLimits(cfg.Risk)
	if err != nil {
		return Loaded{}, err
	}

	defaultPct := cfg.Market.DefaultCircuitPct
	if defaultPct.Sign() < 0 {
		return Loaded{}, fmt.Errorf("defaultCircuitPct must be >= 0")
	}

	capacity := cfg.Events.QueueCapacity
	if capacity <= 0 {
		capacity = 1024
	}

	return Loaded{
		Registry: registry,
		Rules:    market.NewRules(registry, session, defaultPct),
		Validator: validator.Config{
			MinQty:      cfg.Validator.MinQty,
			MaxQty:      cfg.Validator.MaxQty,
			MinNotional: cfg.Validator.MinNotional,
			MaxNotional: cfg.Validator.MaxNotional,
		},
		RiskLimits:    limits,
		QueueCapacity: capacity,
		Journal:       cfg.Journal,
	}, nil
}

func buildRegistry(instruments []InstrumentConfig) (*schema.Registry, error) {
	if len(instruments) == 0 {
		return nil, fmt.Errorf("no instruments configured")
	}
	reg := schema.NewRegistry()
	for _, inst := range instruments {
		kind := market.InstrumentCategory(inst.Symbol)
		if kind == schema.InstrumentUnknown {
			return nil, fmt.Errorf("unrecognized symbol grammar: %s", inst.Symbol)
		}
		lot := inst.LotSize
		if lot == 0 && kind == schema.InstrumentEquity {
			lot = 1
		}
		tick := inst.TickSize
		if tick.Sign() == 0 {
			tick = decimal.NewFromFloat(0.05)
		}
		if _, err := reg.Add(schema.Instrument{
			Symbol:     inst.Symbol,
			Exchange:   inst.Exchange,
			Kind:       kind,
			LotSize:    lot,
			TickSize:   tick,
			CircuitPct: inst.CircuitPct,
		}); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildSession(cfg SessionConfig) (market.Session, error) {
	session := market.DefaultSession()
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return market.Session{}, fmt.Errorf("bad timezone %s: %w", cfg.Timezone, err)
		}
		session.Location = loc
	}
	var err error
	if session.PreOpenMinute, err = resolveMinute(cfg.PreOpen, session.PreOpenMinute); err != nil {
		return market.Session{}, err
	}
	if session.OpenMinute, err = resolveMinute(cfg.Open, session.OpenMinute); err != nil {
		return market.Session{}, err
	}
	if session.CloseMinute, err = resolveMinute(cfg.Close, session.CloseMinute); err != nil {
		return market.Session{}, err
	}
	if session.PreOpenMinute > session.OpenMinute || session.OpenMinute >= session.CloseMinute {
		return market.Session{}, fmt.Errorf("session windows out of order")
	}
	return session, nil
}

func resolveMinute(value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("bad session time %q: %w", value, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func buildLimits(cfg RiskConfig) (risk.Limits, error) {
	if cfg.PortfolioValue.Sign() < 0 || cfg.MaxPositionSize < 0 {
		return risk.Limits{}, fmt.Errorf("risk limits must be >= 0")
	}
	rates := make(map[schema.ProductType]decimal.Decimal, len(cfg.MarginRates))
	for name, rate := range cfg.MarginRates {
		product, err := parseProduct(name)
		if err != nil {
			return risk.Limits{}, err
		}
		if rate.Sign() < 0 || rate.GreaterThan(decimal.NewFromInt(1)) {
			return risk.Limits{}, fmt.Errorf("margin rate for %s must be in [0, 1]", name)
		}
		rates[product] = rate
	}
	return risk.Limits{
		Version:         cfg.Version,
		PortfolioValue:  cfg.PortfolioValue,
		MaxExposurePct:  cfg.MaxExposurePct,
		MaxPositionSize: cfg.MaxPositionSize,
		MinMarginPct:    cfg.MinMarginPct,
		MaxLeverage:     cfg.MaxLeverage,
		MarginRates:     rates,
		WarnRatio:       cfg.WarnRatio,
	}, nil
}

func parseProduct(name string) (schema.ProductType, error) {
	switch name {
	case "intraday":
		return schema.ProductIntraday, nil
	case "delivery":
		return schema.ProductDelivery, nil
	case "normal":
		return schema.ProductNormal, nil
	default:
		return schema.ProductUnknown, fmt.Errorf("unknown product type: %s", name)
	}
}
