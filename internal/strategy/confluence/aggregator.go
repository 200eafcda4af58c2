package confluence

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"btc-signal-sentry/pkg/types"
)

// Config 汇聚参数
type Config struct {
	MinAgree          int     // 同向策略最少数量
	StopLossPercent   float64 // 止损百分比
	TakeProfitPercent float64 // 止盈百分比
	Symbol            string
	Timeframe         string
}

// ConfigFrom 从策略配置构建汇聚参数
func ConfigFrom(s types.StrategyConfig, market types.MarketConfig) Config {
	return Config{
		MinAgree:          s.Confluence.MinAgree,
		StopLossPercent:   s.Risk.StopLossPercent,
		TakeProfitPercent: s.Risk.TakeProfitPercent,
		Symbol:            market.Symbol,
		Timeframe:         market.Interval,
	}
}

// Aggregator 按方向汇聚单策略候选，达到阈值的方向各生成一个信号
type Aggregator struct {
	config Config
	total  int // 参与汇聚的策略总数
}

// NewAggregator 创建汇聚器，MinAgree 低于 3 时按 3 处理
func NewAggregator(config Config) *Aggregator {
	if config.MinAgree < types.MinConfluenceAgree {
		config.MinAgree = types.MinConfluenceAgree
	}
	return &Aggregator{
		config: config,
		total:  len(types.AllStrategies),
	}
}

// Aggregate 汇聚同一根K线上的候选，entry 为当前收盘价
func (a *Aggregator) Aggregate(candidates []*types.StrategyCandidate, entry float64, detectedAt time.Time) []*types.Signal {
	var signals []*types.Signal
	for _, direction := range []types.Direction{types.DirectionLong, types.DirectionShort} {
		aligned := alignedCandidates(candidates, direction)
		if len(aligned) < a.config.MinAgree {
			continue
		}
		signals = append(signals, a.buildSignal(aligned, direction, entry, detectedAt))
	}
	return signals
}

// alignedCandidates 取同一方向的候选，同一策略只计一次，保持注册顺序
func alignedCandidates(candidates []*types.StrategyCandidate, direction types.Direction) []*types.StrategyCandidate {
	seen := make(map[types.StrategyType]bool)
	var aligned []*types.StrategyCandidate
	for _, c := range candidates {
		if c == nil || c.Direction != direction || seen[c.Strategy] {
			continue
		}
		seen[c.Strategy] = true
		aligned = append(aligned, c)
	}
	return aligned
}

func (a *Aggregator) buildSignal(aligned []*types.StrategyCandidate, direction types.Direction, entry float64, detectedAt time.Time) *types.Signal {
	level := types.ConfluenceStrong
	confidence := types.ConfidenceStrongConfluence
	if len(aligned) >= a.total {
		level = types.ConfluenceFull
		confidence = types.ConfidenceFullConfluence
	}

	stopLoss, takeProfit := Levels(direction, entry, a.config.StopLossPercent, a.config.TakeProfitPercent)

	strategies := make([]types.StrategyType, len(aligned))
	for i, c := range aligned {
		strategies[i] = c.Strategy
	}

	return &types.Signal{
		ID:                uuid.NewString(),
		Symbol:            a.config.Symbol,
		Strategy:          aligned[0].Strategy,
		Direction:         direction,
		Confidence:        confidence,
		EntryPrice:        entry,
		StopLoss:          stopLoss,
		TakeProfit:        takeProfit,
		RiskReward:        a.config.TakeProfitPercent / a.config.StopLossPercent,
		Rationale:         a.rationale(aligned, level, direction),
		Timeframe:         a.config.Timeframe,
		Status:            types.SignalActive,
		ConfluenceLevel:   level,
		AlignedStrategies: strategies,
		DetectedAt:        detectedAt,
	}
}

// rationale 汇聚标记 + 各策略理由逐行拼接
func (a *Aggregator) rationale(aligned []*types.StrategyCandidate, level types.ConfluenceLevel, direction types.Direction) string {
	lines := make([]string, 0, len(aligned)+1)
	lines = append(lines, fmt.Sprintf("🔥 %s CONFLUENCE (%d/%d strategies aligned %s)",
		strings.ToUpper(string(level)), len(aligned), a.total, strings.ToUpper(string(direction))))
	for _, c := range aligned {
		lines = append(lines, fmt.Sprintf("• %s: %s", c.Strategy.Label(), c.Reason))
	}
	return strings.Join(lines, "\n")
}

// Levels 按百分比偏移计算方向正确的止损/止盈价
func Levels(direction types.Direction, entry, stopLossPercent, takeProfitPercent float64) (stopLoss, takeProfit float64) {
	if direction == types.DirectionLong {
		return entry * (1 - stopLossPercent/100), entry * (1 + takeProfitPercent/100)
	}
	return entry * (1 + stopLossPercent/100), entry * (1 - takeProfitPercent/100)
}
