package signals

import (
	"fmt"

	"btc-signal-sentry/pkg/types"
)

// rsiDeepBand 距阈值多少点以内视为高置信度
const rsiDeepBand = 5.0

// RSIReversalDetector RSI超买超卖反转检测器
type RSIReversalDetector struct {
	oversold   float64
	overbought float64
}

// NewRSIReversalDetector 创建RSI反转检测器
func NewRSIReversalDetector(oversold, overbought float64) *RSIReversalDetector {
	return &RSIReversalDetector{
		oversold:   oversold,
		overbought: overbought,
	}
}

func (d *RSIReversalDetector) Strategy() types.StrategyType {
	return types.StrategyRSIReversal
}

func (d *RSIReversalDetector) Detect(ctx *Context) []*types.StrategyCandidate {
	cur, ok := ctx.Series.RSI.At(ctx.Index)
	if !ok {
		return nil
	}
	prev, ok := ctx.Series.RSI.At(ctx.Index - 1)
	if !ok {
		return nil
	}

	// 由阈值及以下穿越到阈值之上
	if prev <= d.oversold && cur > d.oversold {
		confidence := types.ConfidenceMedium
		if cur < d.oversold+rsiDeepBand {
			confidence = types.ConfidenceHigh
		}
		return []*types.StrategyCandidate{{
			Strategy:   types.StrategyRSIReversal,
			Direction:  types.DirectionLong,
			Confidence: confidence,
			Reason: fmt.Sprintf("RSI exiting oversold (< %.0f). Current: %.1f, Previous: %.1f. Vol: %.1fx avg.",
				d.oversold, cur, prev, ctx.Volume.Ratio),
		}}
	}

	if prev >= d.overbought && cur < d.overbought {
		confidence := types.ConfidenceMedium
		if cur > d.overbought-rsiDeepBand {
			confidence = types.ConfidenceHigh
		}
		return []*types.StrategyCandidate{{
			Strategy:   types.StrategyRSIReversal,
			Direction:  types.DirectionShort,
			Confidence: confidence,
			Reason: fmt.Sprintf("RSI exiting overbought (> %.0f). Current: %.1f, Previous: %.1f. Vol: %.1fx avg.",
				d.overbought, cur, prev, ctx.Volume.Ratio),
		}}
	}

	return nil
}
