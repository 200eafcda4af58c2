package backtest

import (
	"math"

	"btc-signal-sentry/pkg/types"
)

// Summarize 汇总交易明细：胜率、盈亏、最大回撤、盈亏比、夏普
func Summarize(trades []*types.BacktestTrade, initialBalance float64) *types.BacktestResult {
	result := &types.BacktestResult{
		Trades:         trades,
		TotalTrades:    len(trades),
		InitialBalance: initialBalance,
	}
	if result.Trades == nil {
		result.Trades = []*types.BacktestTrade{}
	}

	balance := initialBalance
	peak := balance
	var grossProfit, grossLoss float64
	returns := make([]float64, 0, len(trades))

	for _, t := range trades {
		balance += t.PnLAmount
		returns = append(returns, t.PnLPercent)
		result.TotalPnLPercent += t.PnLPercent

		if t.PnLPercent > 0 {
			result.WinningTrades++
			grossProfit += t.PnLPercent
		} else {
			result.LosingTrades++
			grossLoss += -t.PnLPercent
		}

		if balance > peak {
			peak = balance
		}
		if peak > 0 {
			if dd := (peak - balance) / peak * 100; dd > result.MaxDrawdown {
				result.MaxDrawdown = dd
			}
		}
	}

	result.FinalBalance = balance
	if n := len(trades); n > 0 {
		result.WinRate = float64(result.WinningTrades) / float64(n) * 100
		result.AveragePnLPercent = result.TotalPnLPercent / float64(n)
	}
	result.ProfitFactor = ProfitFactor(grossProfit, grossLoss)
	result.SharpeRatio = SharpeRatio(returns)

	return result
}

// ProfitFactor 毛利/毛损；无亏损且有盈利为 +Inf，两者皆为0时为0
func ProfitFactor(grossProfit, grossLoss float64) types.ProfitFactor {
	switch {
	case grossLoss > 0:
		return types.ProfitFactor(grossProfit / grossLoss)
	case grossProfit > 0:
		return types.ProfitFactor(math.Inf(1))
	default:
		return 0
	}
}

// SharpeRatio 平均收益 / 总体标准差，标准差为0时为0
func SharpeRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)))
	if std == 0 {
		return 0
	}
	return mean / std
}
