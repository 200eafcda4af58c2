package types

import (
	"fmt"
	"math"
	"time"
)

// KLine K线数据结构（通用市场数据）
type KLine struct {
	Symbol    string    `json:"symbol"`
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Interval  string    `json:"interval"` // 1h
	Closed    bool      `json:"closed"`   // 实时推送时标记K线是否已收盘
}

// TimeMillis 开盘时间（毫秒）
func (k *KLine) TimeMillis() int64 {
	return k.OpenTime.UnixMilli()
}

// IsBullish 阳线
func (k *KLine) IsBullish() bool {
	return k.Close > k.Open
}

// IsBearish 阴线
func (k *KLine) IsBearish() bool {
	return k.Close < k.Open
}

// Validate 校验K线数值，拒绝非有限值和自相矛盾的高低价
func (k *KLine) Validate() error {
	values := map[string]float64{
		"open":   k.Open,
		"high":   k.High,
		"low":    k.Low,
		"close":  k.Close,
		"volume": k.Volume,
	}
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("K线字段 %s 非有限值: %v", name, v)
		}
	}
	if k.Volume < 0 {
		return fmt.Errorf("K线成交量为负: %v", k.Volume)
	}
	if k.High < k.Low {
		return fmt.Errorf("K线最高价 %v 低于最低价 %v", k.High, k.Low)
	}
	return nil
}

// ClosePrices 提取收盘价序列
func ClosePrices(klines []*KLine) []float64 {
	prices := make([]float64, len(klines))
	for i, k := range klines {
		prices[i] = k.Close
	}
	return prices
}

// IntervalDuration 解析K线周期字符串
func IntervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h", "1H":
		return time.Hour
	case "2h", "2H":
		return 2 * time.Hour
	case "4h", "4H":
		return 4 * time.Hour
	case "6h", "6H":
		return 6 * time.Hour
	case "12h", "12H":
		return 12 * time.Hour
	case "1d", "1D":
		return 24 * time.Hour
	default:
		return time.Hour
	}
}
