package indicators

import "btc-signal-sentry/pkg/types"

// MACD 快慢EMA差值、信号线与柱状图
// 信号线只在MACD已定义的部分上计算EMA并重新对齐下标，信号线预热完成前结果为nil
func MACD(prices []float64, fast, slow, signal int) []*types.MACDValue {
	out := make([]*types.MACDValue, len(prices))
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return out
	}

	fastEMA := EMA(prices, fast)
	slowEMA := EMA(prices, slow)

	// 收集已定义的MACD值及其原始下标
	line := make([]float64, 0, len(prices))
	index := make([]int, 0, len(prices))
	for i := range prices {
		f, okFast := fastEMA.At(i)
		s, okSlow := slowEMA.At(i)
		if !okFast || !okSlow {
			continue
		}
		line = append(line, f-s)
		index = append(index, i)
	}

	signalLine := EMA(line, signal)
	for j, i := range index {
		sig, ok := signalLine.At(j)
		if !ok {
			continue
		}
		out[i] = &types.MACDValue{
			MACD:      line[j],
			Signal:    sig,
			Histogram: line[j] - sig,
		}
	}

	return out
}
