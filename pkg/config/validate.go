package config

import (
	"fmt"
	"strings"

	"btc-signal-sentry/pkg/types"
)

// Validate 加载时一次性校验配置，不合法的组合直接拒绝
func Validate(c *types.Config) error {
	var problems []string
	fail := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	s := c.Strategy
	ind := s.Indicators

	if len(ind.EMAPeriods) == 0 {
		fail("strategy.indicators.ema_periods 不能为空")
	}
	for _, p := range ind.EMAPeriods {
		if p <= 0 {
			fail("EMA周期必须为正: %d", p)
		}
	}
	if ind.TrendEMA <= 0 {
		fail("trend_ema 必须为正: %d", ind.TrendEMA)
	}
	if ind.RSI.Period <= 0 {
		fail("RSI周期必须为正: %d", ind.RSI.Period)
	}
	if !(ind.RSI.Oversold > 0 && ind.RSI.Oversold < ind.RSI.Overbought && ind.RSI.Overbought < 100) {
		fail("RSI阈值需满足 0 < oversold(%v) < overbought(%v) < 100", ind.RSI.Oversold, ind.RSI.Overbought)
	}
	if ind.MACD.Fast <= 0 || ind.MACD.Slow <= 0 || ind.MACD.Signal <= 0 {
		fail("MACD周期必须为正")
	}
	if ind.MACD.Fast >= ind.MACD.Slow {
		fail("MACD快线周期(%d)必须小于慢线周期(%d)", ind.MACD.Fast, ind.MACD.Slow)
	}
	if ind.Bollinger.Period <= 1 {
		fail("布林带周期必须大于1: %d", ind.Bollinger.Period)
	}
	if ind.Bollinger.StdDev <= 0 {
		fail("布林带标准差倍数必须为正: %v", ind.Bollinger.StdDev)
	}

	if err := validateRisk(s.Risk.StopLossPercent, s.Risk.TakeProfitPercent); err != "" {
		fail("strategy.risk: %s", err)
	} else if s.Risk.MinRiskReward > 0 && s.Risk.TakeProfitPercent/s.Risk.StopLossPercent < s.Risk.MinRiskReward {
		fail("风险收益比 %.2f 低于最小要求 %.2f",
			s.Risk.TakeProfitPercent/s.Risk.StopLossPercent, s.Risk.MinRiskReward)
	}

	if s.EMABounce.Period <= 0 {
		fail("ema_bounce.period 必须为正")
	}
	if s.EMABounce.Tolerance <= 0 || s.EMABounce.Tolerance >= 1 {
		fail("ema_bounce.tolerance 必须在 (0, 1) 之间: %v", s.EMABounce.Tolerance)
	}
	if s.Volume.Period <= 0 {
		fail("volume.period 必须为正")
	}
	if s.Volume.Multiplier <= 0 {
		fail("volume.multiplier 必须为正: %v", s.Volume.Multiplier)
	}
	if s.Confluence.MinAgree < types.MinConfluenceAgree || s.Confluence.MinAgree > len(types.AllStrategies) {
		fail("confluence.min_agree 必须在 [%d, %d] 之间: %d",
			types.MinConfluenceAgree, len(types.AllStrategies), s.Confluence.MinAgree)
	}
	if s.Duplicate.Window <= 0 {
		fail("duplicate.window 必须为正")
	}
	if s.Duplicate.CacheTTL <= 0 || s.Duplicate.CacheTTL > s.Duplicate.Window {
		fail("duplicate.cache_ttl(%v) 必须为正且不超过 duplicate.window(%v)", s.Duplicate.CacheTTL, s.Duplicate.Window)
	}
	if s.Duplicate.Tolerance <= 0 || s.Duplicate.Tolerance >= 1 {
		fail("duplicate.tolerance 必须在 (0, 1) 之间: %v", s.Duplicate.Tolerance)
	}
	if s.MaxHoldingCandles <= 0 {
		fail("max_holding_candles 必须为正")
	}

	problems = append(problems, backtestProblems(c.Backtest)...)

	if c.Market.Symbol == "" || c.Market.Interval == "" {
		fail("market.symbol 与 market.interval 不能为空")
	}
	if c.Market.Lookback <= 0 {
		fail("market.lookback 必须为正")
	}
	if len(c.Market.Endpoints) == 0 {
		fail("market.endpoints 不能为空")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ValidateBacktest 校验单次回测参数，API 覆盖配置后同样适用
func ValidateBacktest(b types.BacktestConfig) error {
	if problems := backtestProblems(b); len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func backtestProblems(b types.BacktestConfig) []string {
	var problems []string
	if b.InitialBalance <= 0 {
		problems = append(problems, "backtest.initial_balance 必须为正")
	}
	if err := validateRisk(b.StopLossPercent, b.TakeProfitPercent); err != "" {
		problems = append(problems, "backtest: "+err)
	}
	if !(b.RSIOversold > 0 && b.RSIOversold < b.RSIOverbought && b.RSIOverbought < 100) {
		problems = append(problems, fmt.Sprintf("backtest RSI阈值需满足 0 < oversold(%v) < overbought(%v) < 100",
			b.RSIOversold, b.RSIOverbought))
	}
	if b.MaxHoldingPeriod <= 0 {
		problems = append(problems, "backtest.max_holding_period 必须为正")
	}
	return problems
}

// validateRisk 止损止盈百分比校验，返回空串表示通过
func validateRisk(stopLoss, takeProfit float64) string {
	switch {
	case stopLoss <= 0 || takeProfit <= 0:
		return fmt.Sprintf("止损(%v%%)和止盈(%v%%)必须为正", stopLoss, takeProfit)
	case stopLoss >= 100:
		return fmt.Sprintf("止损百分比过大: %v%%", stopLoss)
	case stopLoss >= takeProfit:
		return fmt.Sprintf("止损(%v%%)必须小于止盈(%v%%)", stopLoss, takeProfit)
	}
	return ""
}
