package indicators

import "btc-signal-sentry/pkg/types"

// RSI Wilder平滑的相对强弱指数
// 以前 period 个涨跌幅的均值为种子，首个值落在下标 period；
// 此后每根K线先并入自身涨跌幅再计算，avg = (avg*(period-1) + x) / period
func RSI(prices []float64, period int) types.Series {
	out := types.NewSeries(len(prices))
	if period <= 0 || len(prices) <= period {
		return out
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		gain, loss := change(prices[i-1], prices[i])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	p := float64(period)
	for i := period + 1; i < len(prices); i++ {
		gain, loss := change(prices[i-1], prices[i])
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out[i] = rsiValue(avgGain, avgLoss)
	}

	return out
}

// change 拆分涨跌幅
func change(prev, cur float64) (gain, loss float64) {
	delta := cur - prev
	if delta > 0 {
		return delta, 0
	}
	if delta < 0 {
		return 0, -delta
	}
	return 0, 0
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
