package signals

import (
	"fmt"

	"btc-signal-sentry/pkg/types"
)

// BollingerDetector 布林带均值回归检测器
// 收盘跌破下轨做多、升破上轨做空，目标为中轨
type BollingerDetector struct {
	trendPeriod int
}

// NewBollingerDetector 创建布林带检测器
func NewBollingerDetector(trendPeriod int) *BollingerDetector {
	return &BollingerDetector{trendPeriod: trendPeriod}
}

func (d *BollingerDetector) Strategy() types.StrategyType {
	return types.StrategyBollinger
}

func (d *BollingerDetector) Detect(ctx *Context) []*types.StrategyCandidate {
	i := ctx.Index
	bb := ctx.Series.BollingerAt(i)
	prevBB := ctx.Series.BollingerAt(i - 1)
	if bb == nil || prevBB == nil {
		return nil
	}

	price := ctx.Current().Close
	prevClose := ctx.Previous().Close
	trend, hasTrend := ctx.Series.EMAAt(d.trendPeriod, i)

	if price < bb.Lower && prevClose >= prevBB.Lower {
		confidence := types.ConfidenceLow
		if hasTrend && price > trend {
			confidence = types.ConfidenceMedium
		}
		return []*types.StrategyCandidate{{
			Strategy:   types.StrategyBollinger,
			Direction:  types.DirectionLong,
			Confidence: confidence,
			Reason: fmt.Sprintf("Price at lower Bollinger Band ($%.0f) - mean reversion expected. Target: middle band ($%.0f). Vol: %.1fx avg.",
				bb.Lower, bb.Middle, ctx.Volume.Ratio),
		}}
	}

	if price > bb.Upper && prevClose <= prevBB.Upper {
		confidence := types.ConfidenceLow
		if hasTrend && price < trend {
			confidence = types.ConfidenceMedium
		}
		return []*types.StrategyCandidate{{
			Strategy:   types.StrategyBollinger,
			Direction:  types.DirectionShort,
			Confidence: confidence,
			Reason: fmt.Sprintf("Price at upper Bollinger Band ($%.0f) - mean reversion expected. Target: middle band ($%.0f). Vol: %.1fx avg.",
				bb.Upper, bb.Middle, ctx.Volume.Ratio),
		}}
	}

	return nil
}
