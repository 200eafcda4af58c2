package signals

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"btc-signal-sentry/pkg/types"
)

// MACDCrossDetector MACD金叉/死叉检测器，带趋势均线过滤
type MACDCrossDetector struct {
	trendPeriod int
}

// NewMACDCrossDetector 创建MACD交叉检测器
func NewMACDCrossDetector(trendPeriod int) *MACDCrossDetector {
	return &MACDCrossDetector{trendPeriod: trendPeriod}
}

func (d *MACDCrossDetector) Strategy() types.StrategyType {
	return types.StrategyMACDCross
}

func (d *MACDCrossDetector) Detect(ctx *Context) []*types.StrategyCandidate {
	i := ctx.Index
	cur := ctx.Series.MACDAt(i)
	prev := ctx.Series.MACDAt(i - 1)
	if cur == nil || prev == nil {
		return nil
	}
	trend, ok := ctx.Series.EMAAt(d.trendPeriod, i)
	if !ok {
		return nil
	}

	price := ctx.Current().Close
	confidence := types.ConfidenceMedium
	if math.Abs(cur.Histogram) > math.Abs(prev.Histogram) {
		confidence = types.ConfidenceHigh
	}

	bullishCross := prev.MACD <= prev.Signal && cur.MACD > cur.Signal
	if bullishCross {
		if price > trend {
			return []*types.StrategyCandidate{{
				Strategy:   types.StrategyMACDCross,
				Direction:  types.DirectionLong,
				Confidence: confidence,
				Reason: fmt.Sprintf("MACD bullish cross confirmed by EMA %d uptrend. Histogram: %.2f. Vol: %.1fx avg.",
					d.trendPeriod, cur.Histogram, ctx.Volume.Ratio),
			}}
		}
		zap.L().Debug("🚫 MACD金叉逆势，已忽略", zap.Float64("price", price), zap.Float64("trend_ema", trend))
	}

	bearishCross := prev.MACD >= prev.Signal && cur.MACD < cur.Signal
	if bearishCross {
		if price < trend {
			return []*types.StrategyCandidate{{
				Strategy:   types.StrategyMACDCross,
				Direction:  types.DirectionShort,
				Confidence: confidence,
				Reason: fmt.Sprintf("MACD bearish cross confirmed by EMA %d downtrend. Histogram: %.2f. Vol: %.1fx avg.",
					d.trendPeriod, cur.Histogram, ctx.Volume.Ratio),
			}}
		}
		zap.L().Debug("🚫 MACD死叉逆势，已忽略", zap.Float64("price", price), zap.Float64("trend_ema", trend))
	}

	return nil
}
