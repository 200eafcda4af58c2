package indicators

import "btc-signal-sentry/pkg/types"

// VolumeFilter 成交量确认过滤器
type VolumeFilter struct {
	period     int
	multiplier float64
}

// NewVolumeFilter 创建成交量过滤器
func NewVolumeFilter(period int, multiplier float64) *VolumeFilter {
	return &VolumeFilter{
		period:     period,
		multiplier: multiplier,
	}
}

// AverageVolume index之前（不含index）最近 period 根K线的平均成交量，序列开头处截断
func AverageVolume(klines []*types.KLine, index, period int) float64 {
	if index > len(klines) {
		index = len(klines)
	}
	start := index - period
	if start < 0 {
		start = 0
	}
	if index-start <= 0 {
		return 0
	}

	sum := 0.0
	for _, k := range klines[start:index] {
		sum += k.Volume
	}
	return sum / float64(index-start)
}

// Check 判断index处的成交量是否达到确认倍数
func (vf *VolumeFilter) Check(klines []*types.KLine, index int) types.VolumeCheck {
	if index < 0 || index >= len(klines) {
		return types.VolumeCheck{}
	}

	avg := AverageVolume(klines, index, vf.period)
	ratio := 0.0
	if avg > 0 {
		ratio = klines[index].Volume / avg
	}

	return types.VolumeCheck{
		Average:   avg,
		Ratio:     ratio,
		Confirmed: ratio >= vf.multiplier,
	}
}

// Multiplier 确认倍数
func (vf *VolumeFilter) Multiplier() float64 {
	return vf.multiplier
}
