package signals

import (
	"fmt"

	"btc-signal-sentry/pkg/types"
)

// EMABounceDetector EMA回踩检测器
type EMABounceDetector struct {
	period       int
	strongPeriod int
	trendPeriod  int
	tolerance    float64
}

// NewEMABounceDetector 创建EMA回踩检测器
func NewEMABounceDetector(period, strongPeriod, trendPeriod int, tolerance float64) *EMABounceDetector {
	return &EMABounceDetector{
		period:       period,
		strongPeriod: strongPeriod,
		trendPeriod:  trendPeriod,
		tolerance:    tolerance,
	}
}

func (d *EMABounceDetector) Strategy() types.StrategyType {
	return types.StrategyEMABounce
}

// within 价格是否落在均线容差带内
func (d *EMABounceDetector) within(price, ema float64) bool {
	return price <= ema*(1+d.tolerance) && price >= ema*(1-d.tolerance)
}

func (d *EMABounceDetector) Detect(ctx *Context) []*types.StrategyCandidate {
	i := ctx.Index
	ema, ok := ctx.Series.EMAAt(d.period, i)
	if !ok {
		return nil
	}
	trend, ok := ctx.Series.EMAAt(d.trendPeriod, i)
	if !ok {
		return nil
	}
	strong, hasStrong := ctx.Series.EMAAt(d.strongPeriod, i)

	k := ctx.Current()
	price := k.Close

	// 多头：最低价触及均线后收在其上方，趋势均线之上，阳线
	if d.within(k.Low, ema) && price > ema && price > trend && k.IsBullish() {
		confidence := types.ConfidenceMedium
		if hasStrong && (price > strong || d.within(k.Low, strong)) {
			confidence = types.ConfidenceHigh
		}
		return []*types.StrategyCandidate{{
			Strategy:   types.StrategyEMABounce,
			Direction:  types.DirectionLong,
			Confidence: confidence,
			Reason: fmt.Sprintf("Price bounced off EMA %d (%.0f) with bullish close. Trend support from EMA %d. Vol: %.1fx avg.",
				d.period, ema, d.trendPeriod, ctx.Volume.Ratio),
		}}
	}

	// 空头：最高价触及均线后收在其下方，趋势均线之下，阴线
	if d.within(k.High, ema) && price < ema && price < trend && k.IsBearish() {
		confidence := types.ConfidenceMedium
		if hasStrong && (price < strong || d.within(k.High, strong)) {
			confidence = types.ConfidenceHigh
		}
		return []*types.StrategyCandidate{{
			Strategy:   types.StrategyEMABounce,
			Direction:  types.DirectionShort,
			Confidence: confidence,
			Reason: fmt.Sprintf("Price rejected from EMA %d (%.0f) with bearish close. Downtrend from EMA %d. Vol: %.1fx avg.",
				d.period, ema, d.trendPeriod, ctx.Volume.Ratio),
		}}
	}

	return nil
}
