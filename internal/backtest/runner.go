package backtest

import (
	"fmt"

	"go.uber.org/zap"

	"btc-signal-sentry/internal/strategy/confluence"
	"btc-signal-sentry/internal/strategy/indicators"
	"btc-signal-sentry/internal/strategy/position"
	"btc-signal-sentry/internal/strategy/signals"
	"btc-signal-sentry/pkg/types"
)

// Runner 历史回放：逐根检测，命中后向前模拟至止损/止盈/超时，持仓期间不再开仓
type Runner struct {
	config     types.BacktestConfig
	engine     *indicators.Engine
	registry   *signals.Registry
	aggregator *confluence.Aggregator
}

// NewRunner 创建回测器，指标与成交量参数沿用实盘策略配置，阈值与风控取回测配置
func NewRunner(strategy types.StrategyConfig, market types.MarketConfig, config types.BacktestConfig) *Runner {
	if config.WarmupBars <= 0 {
		config.WarmupBars = types.DefaultBacktestConfig().WarmupBars
	}

	detectors := signals.ConfigFrom(strategy)
	detectors.Enabled = config.EnabledStrategies
	detectors.RSIOversold = config.RSIOversold
	detectors.RSIOverbought = config.RSIOverbought

	aggregation := confluence.ConfigFrom(strategy, market)
	aggregation.StopLossPercent = config.StopLossPercent
	aggregation.TakeProfitPercent = config.TakeProfitPercent

	return &Runner{
		config:     config,
		engine:     indicators.NewEngine(strategy.Indicators),
		registry:   signals.NewRegistry(detectors),
		aggregator: confluence.NewAggregator(aggregation),
	}
}

// entry 回测入场决策
type entry struct {
	strategy  types.StrategyType
	direction types.Direction
}

// Run 对完整K线序列回测
func (r *Runner) Run(klines []*types.KLine) (*types.BacktestResult, error) {
	if r.config.MaxHoldingPeriod <= 0 {
		return nil, fmt.Errorf("最大持仓K线数必须大于0")
	}
	if r.config.StopLossPercent <= 0 || r.config.TakeProfitPercent <= 0 {
		return nil, fmt.Errorf("止损/止盈百分比必须大于0")
	}
	if len(klines) <= r.config.WarmupBars+r.config.MaxHoldingPeriod {
		return nil, fmt.Errorf("K线数量不足: %d，至少需要 %d", len(klines), r.config.WarmupBars+r.config.MaxHoldingPeriod+1)
	}

	series := r.engine.Compute(klines, r.registry.EMAPeriods()...)
	var trades []*types.BacktestTrade

	for idx := r.config.WarmupBars; idx < len(klines)-r.config.MaxHoldingPeriod; idx++ {
		decision := r.decide(klines, series, idx)
		if decision == nil {
			continue
		}

		trade := r.simulate(klines, idx, decision)
		if trade == nil {
			continue
		}
		trades = append(trades, trade)

		// 从平仓K线之后继续扫描，持仓不重叠
		if trade.ExitIndex > idx {
			idx = trade.ExitIndex
		}
	}

	result := Summarize(trades, r.config.InitialBalance)
	result.StartDate = klines[0].OpenTime
	result.EndDate = klines[len(klines)-1].OpenTime

	zap.L().Info("📊 回测完成",
		zap.Int("candles", len(klines)),
		zap.Int("trades", result.TotalTrades),
		zap.Float64("win_rate", result.WinRate),
		zap.Float64("total_pnl_percent", result.TotalPnLPercent),
		zap.Float64("max_drawdown", result.MaxDrawdown))

	return result, nil
}

// decide 汇聚模式取首个达标方向，否则取首个单策略候选
func (r *Runner) decide(klines []*types.KLine, series *types.IndicatorSeries, idx int) *entry {
	candidates := r.registry.Detect(klines, series, idx)
	if len(candidates) == 0 {
		return nil
	}

	if r.config.RequireConfluence {
		bar := klines[idx]
		emitted := r.aggregator.Aggregate(candidates, bar.Close, bar.CloseTime)
		if len(emitted) == 0 {
			return nil
		}
		return &entry{strategy: emitted[0].Strategy, direction: emitted[0].Direction}
	}

	c := signals.SingleStrategy(candidates)
	if c == nil {
		return nil
	}
	return &entry{strategy: c.Strategy, direction: c.Direction}
}

// simulate 以入场K线收盘价开仓，从下一根K线开始按 止损 → 止盈 → 超时 检查
func (r *Runner) simulate(klines []*types.KLine, idx int, e *entry) *types.BacktestTrade {
	entryBar := klines[idx]
	stopLoss, takeProfit := confluence.Levels(e.direction, entryBar.Close, r.config.StopLossPercent, r.config.TakeProfitPercent)
	levels := position.Levels{
		Direction:  e.direction,
		EntryPrice: entryBar.Close,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	}

	for j := idx + 1; j < len(klines); j++ {
		exit, ok := position.Check(levels, klines[j], j-idx, r.config.MaxHoldingPeriod)
		if !ok {
			continue
		}
		return &types.BacktestTrade{
			EntryIndex: idx,
			ExitIndex:  j,
			EntryTime:  entryBar.OpenTime,
			ExitTime:   klines[j].OpenTime,
			EntryPrice: entryBar.Close,
			ExitPrice:  exit.Price,
			Direction:  e.direction,
			Strategy:   e.strategy,
			PnLPercent: exit.PnLPercent,
			PnLAmount:  r.config.InitialBalance * exit.PnLPercent / 100,
			ExitReason: exit.Reason,
		}
	}
	return nil
}
