package signals

import (
	"go.uber.org/zap"

	"btc-signal-sentry/internal/strategy/indicators"
	"btc-signal-sentry/pkg/types"
)

// Config 检测器参数
type Config struct {
	Enabled          types.StrategyToggles
	EMAPeriod        int     // 回踩均线，默认21
	StrongEMAPeriod  int     // 强支撑均线，默认50
	TrendEMA         int     // 趋势过滤均线，默认200
	Tolerance        float64 // 回踩容差
	RSIOversold      float64
	RSIOverbought    float64
	VolumePeriod     int
	VolumeMultiplier float64
}

// ConfigFrom 从策略配置构建检测器参数
func ConfigFrom(s types.StrategyConfig) Config {
	return Config{
		Enabled:          s.Enabled,
		EMAPeriod:        s.EMABounce.Period,
		StrongEMAPeriod:  50,
		TrendEMA:         s.Indicators.TrendEMA,
		Tolerance:        s.EMABounce.Tolerance,
		RSIOversold:      s.Indicators.RSI.Oversold,
		RSIOverbought:    s.Indicators.RSI.Overbought,
		VolumePeriod:     s.Volume.Period,
		VolumeMultiplier: s.Volume.Multiplier,
	}
}

// Context 单根K线的检测上下文
type Context struct {
	Index  int
	KLines []*types.KLine
	Series *types.IndicatorSeries
	Volume types.VolumeCheck
}

// Current 当前K线
func (c *Context) Current() *types.KLine {
	return c.KLines[c.Index]
}

// Previous 前一根K线
func (c *Context) Previous() *types.KLine {
	return c.KLines[c.Index-1]
}

// Detector 单策略检测器，纯函数、无状态
type Detector interface {
	Strategy() types.StrategyType
	// Detect 每个方向至多返回一个候选
	Detect(ctx *Context) []*types.StrategyCandidate
}

// Registry 按注册顺序执行检测器，成交量未确认时整体短路
type Registry struct {
	config    Config
	volume    *indicators.VolumeFilter
	detectors []Detector
}

// NewRegistry 按固定顺序注册已启用的检测器
func NewRegistry(config Config) *Registry {
	r := &Registry{
		config: config,
		volume: indicators.NewVolumeFilter(config.VolumePeriod, config.VolumeMultiplier),
	}

	all := []Detector{
		NewEMABounceDetector(config.EMAPeriod, config.StrongEMAPeriod, config.TrendEMA, config.Tolerance),
		NewMACDCrossDetector(config.TrendEMA),
		NewRSIReversalDetector(config.RSIOversold, config.RSIOverbought),
		NewBollingerDetector(config.TrendEMA),
	}
	for _, d := range all {
		if config.Enabled.Enabled(d.Strategy()) {
			r.detectors = append(r.detectors, d)
		}
	}

	return r
}

// Config 当前参数
func (r *Registry) Config() Config {
	return r.config
}

// EMAPeriods 检测器依赖的均线周期
func (r *Registry) EMAPeriods() []int {
	return []int{r.config.EMAPeriod, r.config.StrongEMAPeriod, r.config.TrendEMA}
}

// Detectors 已注册的检测器
func (r *Registry) Detectors() []Detector {
	return r.detectors
}

// Detect 检测index处的全部候选
func (r *Registry) Detect(klines []*types.KLine, series *types.IndicatorSeries, index int) []*types.StrategyCandidate {
	if index < 1 || index >= len(klines) || series == nil {
		return nil
	}

	volume := r.volume.Check(klines, index)
	if !volume.Confirmed {
		zap.L().Debug("📉 成交量未确认，跳过信号检测",
			zap.Int("index", index),
			zap.Float64("volume_ratio", volume.Ratio),
			zap.Float64("required", r.volume.Multiplier()))
		return nil
	}

	ctx := &Context{
		Index:  index,
		KLines: klines,
		Series: series,
		Volume: volume,
	}

	var candidates []*types.StrategyCandidate
	for _, d := range r.detectors {
		candidates = append(candidates, d.Detect(ctx)...)
	}

	if len(candidates) > 0 {
		zap.L().Debug("🎯 单策略候选",
			zap.Int("index", index),
			zap.Int("count", len(candidates)),
			zap.Float64("volume_ratio", volume.Ratio))
	}

	return candidates
}

// SingleStrategy 非汇聚模式：按注册顺序取首个候选，置信度沿用单策略档位
func SingleStrategy(candidates []*types.StrategyCandidate) *types.StrategyCandidate {
	if len(candidates) == 0 {
		return nil
	}
	return candidates[0]
}
