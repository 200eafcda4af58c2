package types

import "math"

// Series 与K线按下标对齐的指标序列，预热期内为NaN（表示不可用）
type Series []float64

// NewSeries 创建全部不可用的序列
func NewSeries(n int) Series {
	s := make(Series, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// At 返回下标i的值以及是否可用
func (s Series) At(i int) (float64, bool) {
	if i < 0 || i >= len(s) || math.IsNaN(s[i]) {
		return 0, false
	}
	return s[i], true
}

// Defined 已定义的值个数
func (s Series) Defined() int {
	n := 0
	for _, v := range s {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// MACDValue MACD指标数据
type MACDValue struct {
	MACD      float64 `json:"macd"`      // 快慢线差值
	Signal    float64 `json:"signal"`    // 信号线
	Histogram float64 `json:"histogram"` // 柱状图
}

// BollingerBand 布林带数据
type BollingerBand struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// IndicatorSeries 全量指标序列，MACD/Bollinger中nil表示该下标不可用
type IndicatorSeries struct {
	EMA       map[int]Series   `json:"ema"`
	RSI       Series           `json:"rsi"`
	MACD      []*MACDValue     `json:"macd"`
	Bollinger []*BollingerBand `json:"bollinger"`
}

// EMAAt 读取指定周期EMA在下标i的值
func (s *IndicatorSeries) EMAAt(period, i int) (float64, bool) {
	series, ok := s.EMA[period]
	if !ok {
		return 0, false
	}
	return series.At(i)
}

// MACDAt 读取下标i的MACD
func (s *IndicatorSeries) MACDAt(i int) *MACDValue {
	if i < 0 || i >= len(s.MACD) {
		return nil
	}
	return s.MACD[i]
}

// BollingerAt 读取下标i的布林带
func (s *IndicatorSeries) BollingerAt(i int) *BollingerBand {
	if i < 0 || i >= len(s.Bollinger) {
		return nil
	}
	return s.Bollinger[i]
}

// VolumeCheck 成交量确认结果
type VolumeCheck struct {
	Average   float64 `json:"average"`
	Ratio     float64 `json:"ratio"`
	Confirmed bool    `json:"confirmed"`
}

// IndicatorSnapshot 最新一根K线的指标快照
type IndicatorSnapshot struct {
	Symbol    string          `json:"symbol"`
	Interval  string          `json:"interval"`
	Time      int64           `json:"time"`
	Close     float64         `json:"close"`
	EMA       map[int]float64 `json:"ema"`
	RSI       *float64        `json:"rsi,omitempty"`
	MACD      *MACDValue      `json:"macd,omitempty"`
	Bollinger *BollingerBand  `json:"bollinger,omitempty"`
	Volume    *VolumeCheck    `json:"volume,omitempty"`
}
