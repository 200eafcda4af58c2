package indicators

import (
	"sort"

	"btc-signal-sentry/pkg/types"
)

// Engine 按配置批量计算指标序列
type Engine struct {
	config types.IndicatorConfig
}

// NewEngine 创建指标引擎
func NewEngine(config types.IndicatorConfig) *Engine {
	return &Engine{config: config}
}

// Periods 需要计算的EMA周期（去重后升序）
func (e *Engine) Periods(extra ...int) []int {
	seen := make(map[int]bool)
	periods := make([]int, 0, len(e.config.EMAPeriods)+len(extra))
	for _, p := range append(append([]int{}, e.config.EMAPeriods...), extra...) {
		if p > 0 && !seen[p] {
			seen[p] = true
			periods = append(periods, p)
		}
	}
	sort.Ints(periods)
	return periods
}

// Compute 计算全量指标序列，extraEMA 用于检测器额外需要的均线周期
func (e *Engine) Compute(klines []*types.KLine, extraEMA ...int) *types.IndicatorSeries {
	prices := types.ClosePrices(klines)

	series := &types.IndicatorSeries{
		EMA: make(map[int]types.Series),
	}
	for _, p := range e.Periods(extraEMA...) {
		series.EMA[p] = EMA(prices, p)
	}
	series.RSI = RSI(prices, e.config.RSI.Period)
	series.MACD = MACD(prices, e.config.MACD.Fast, e.config.MACD.Slow, e.config.MACD.Signal)
	series.Bollinger = BollingerBands(prices, e.config.Bollinger.Period, e.config.Bollinger.StdDev)

	return series
}

// Snapshot 最新一根K线的指标快照
func (e *Engine) Snapshot(klines []*types.KLine, volume *VolumeFilter) *types.IndicatorSnapshot {
	if len(klines) == 0 {
		return nil
	}

	series := e.Compute(klines)
	last := len(klines) - 1
	latest := klines[last]

	snapshot := &types.IndicatorSnapshot{
		Symbol:    latest.Symbol,
		Interval:  latest.Interval,
		Time:      latest.TimeMillis(),
		Close:     latest.Close,
		EMA:       make(map[int]float64),
		MACD:      series.MACDAt(last),
		Bollinger: series.BollingerAt(last),
	}
	for p := range series.EMA {
		if v, ok := series.EMAAt(p, last); ok {
			snapshot.EMA[p] = v
		}
	}
	if v, ok := series.RSI.At(last); ok {
		snapshot.RSI = &v
	}
	if volume != nil {
		check := volume.Check(klines, last)
		snapshot.Volume = &check
	}

	return snapshot
}
