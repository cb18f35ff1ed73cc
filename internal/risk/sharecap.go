// Package risk computes the per-ticker share cap handed to reconciliation.
// The cap starts from a dollar limit and shrinks as the ticker's realized
// volatility rises above its baseline.
package risk

import (
	"math"

	"github.com/Rajchodisetti/market-monitor/internal/indicator"
	"github.com/Rajchodisetti/market-monitor/internal/marketdata"
)

type Config struct {
	MaxPositionUSD float64 `yaml:"max_position_usd"`
	ATRPeriod      int     `yaml:"atr_period"`
	BaselineATRPct float64 `yaml:"baseline_atr_pct"` // ATR/price considered normal
	MultiplierMin  float64 `yaml:"multiplier_min"`   // cap never shrinks below this fraction
	MultiplierMax  float64 `yaml:"multiplier_max"`   // quiet tape never inflates past this
}

type Calculator struct {
	cfg Config
}

func NewCalculator(cfg Config) *Calculator {
	if cfg.MaxPositionUSD == 0 {
		cfg.MaxPositionUSD = 10_000
	}
	if cfg.ATRPeriod == 0 {
		cfg.ATRPeriod = 14
	}
	if cfg.BaselineATRPct == 0 {
		cfg.BaselineATRPct = 0.01
	}
	if cfg.MultiplierMin == 0 {
		cfg.MultiplierMin = 0.25
	}
	if cfg.MultiplierMax == 0 {
		cfg.MultiplierMax = 1.5
	}
	return &Calculator{cfg: cfg}
}

// MaxShares returns the volatility-adjusted share cap at the given price.
// With no usable series the dollar cap applies unadjusted; a non-positive
// price caps at zero.
func (c *Calculator) MaxShares(series *marketdata.BarSeries, price float64) int64 {
	if price <= 0 {
		return 0
	}

	multiplier := 1.0
	if series != nil {
		if atr := indicator.ATR(series, c.cfg.ATRPeriod); atr > 0 {
			atrPct := atr / price
			multiplier = c.cfg.BaselineATRPct / atrPct
			multiplier = math.Min(math.Max(multiplier, c.cfg.MultiplierMin), c.cfg.MultiplierMax)
		}
	}

	return int64(math.Floor(c.cfg.MaxPositionUSD * multiplier / price))
}
