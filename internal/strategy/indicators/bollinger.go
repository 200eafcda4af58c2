package indicators

import (
	"math"

	"btc-signal-sentry/pkg/types"
)

// BollingerBands 布林带：中轨为SMA，带宽为总体标准差的 stdDev 倍
func BollingerBands(prices []float64, period int, stdDev float64) []*types.BollingerBand {
	out := make([]*types.BollingerBand, len(prices))
	if period <= 0 || len(prices) < period {
		return out
	}

	for i := period - 1; i < len(prices); i++ {
		window := prices[i-period+1 : i+1]

		mean := 0.0
		for _, p := range window {
			mean += p
		}
		mean /= float64(period)

		variance := 0.0
		for _, p := range window {
			variance += (p - mean) * (p - mean)
		}
		std := math.Sqrt(variance / float64(period))

		out[i] = &types.BollingerBand{
			Upper:  mean + stdDev*std,
			Middle: mean,
			Lower:  mean - stdDev*std,
		}
	}

	return out
}
