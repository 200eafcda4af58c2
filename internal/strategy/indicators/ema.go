package indicators

import "btc-signal-sentry/pkg/types"

// EMA 指数移动平均
// 下标 period-1 处以前 period 个价格的简单平均作为种子，之后按 2/(period+1) 平滑
func EMA(prices []float64, period int) types.Series {
	out := types.NewSeries(len(prices))
	if period <= 0 || len(prices) < period {
		return out
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	out[period-1] = sum / float64(period)

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(prices); i++ {
		out[i] = (prices[i]-out[i-1])*multiplier + out[i-1]
	}

	return out
}

// SMA 简单移动平均，预热期内不可用
func SMA(prices []float64, period int) types.Series {
	out := types.NewSeries(len(prices))
	if period <= 0 || len(prices) < period {
		return out
	}

	sum := 0.0
	for i, p := range prices {
		sum += p
		if i >= period {
			sum -= prices[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}
