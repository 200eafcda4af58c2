package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"btc-signal-sentry/pkg/types"
)

// Formatter 通知文案生成器，输出 Telegram 风格 Markdown
type Formatter struct {
	Symbol     string
	Timeframe  string
	MaxHolding int
}

// money 价格保留两位小数
func money(v float64) string {
	return "$" + decimal.NewFromFloat(v).StringFixed(2)
}

// percent 带符号的百分比
func percent(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	if d.IsPositive() {
		return "+" + d.StringFixed(2) + "%"
	}
	return d.StringFixed(2) + "%"
}

func utc(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04") + " UTC"
}

func strategyLabels(list []types.StrategyType) string {
	labels := make([]string, 0, len(list))
	for _, s := range list {
		labels = append(labels, s.Label())
	}
	return strings.Join(labels, ", ")
}

// SignalTitle 信号通知标题
func (f Formatter) SignalTitle(s *types.Signal) string {
	return fmt.Sprintf("%s BTC交易信号 %s %s", s.Direction.Emoji(), strings.ToUpper(string(s.Direction)), s.Symbol)
}

// Signal 新信号通知
func (f Formatter) Signal(s *types.Signal) string {
	var b strings.Builder

	switch s.ConfluenceLevel {
	case types.ConfluenceFull:
		fmt.Fprintf(&b, "🔥🔥🔥🔥 *FULL CONFLUENCE (%d/4)*\n\n", len(s.AlignedStrategies))
	case types.ConfluenceStrong:
		fmt.Fprintf(&b, "🔥🔥🔥 *STRONG CONFLUENCE (%d/4)*\n\n", len(s.AlignedStrategies))
	}

	b.WriteString("*BTC Trade Signal*\n")
	fmt.Fprintf(&b, "%s *%s* %s %s\n", s.Direction.Emoji(), strings.ToUpper(string(s.Direction)), s.Symbol, s.Timeframe)
	if len(s.AlignedStrategies) > 0 {
		fmt.Fprintf(&b, "Strategies: %s\n", strategyLabels(s.AlignedStrategies))
	} else {
		fmt.Fprintf(&b, "Strategy: %s\n", s.Strategy.Label())
	}
	fmt.Fprintf(&b, "Confidence: %d%%\n\n", s.Confidence)

	fmt.Fprintf(&b, "💰 Entry: %s\n", money(s.EntryPrice))
	fmt.Fprintf(&b, "🛑 Stop Loss: %s\n", money(s.StopLoss))
	fmt.Fprintf(&b, "🎯 Take Profit: %s\n", money(s.TakeProfit))
	fmt.Fprintf(&b, "📈 R/R: 1:%s\n", decimal.NewFromFloat(s.RiskReward).StringFixed(2))
	if f.MaxHolding > 0 {
		fmt.Fprintf(&b, "⏱️ Max Hold: %d candles\n", f.MaxHolding)
	}

	if s.Rationale != "" {
		fmt.Fprintf(&b, "\n📝 *Analysis*\n%s\n", s.Rationale)
	}
	fmt.Fprintf(&b, "\n⏰ %s", utc(s.DetectedAt))
	return b.String()
}

// ResolutionTitle 平仓通知标题
func (f Formatter) ResolutionTitle(r *types.Resolution) string {
	switch r.Reason {
	case types.ExitTakeProfit:
		return "🎯 止盈触发 " + f.Symbol
	case types.ExitStopLoss:
		return "🛑 止损触发 " + f.Symbol
	default:
		return "⏰ 持仓到期 " + f.Symbol
	}
}

// Resolution 止盈/止损/到期通知
func (f Formatter) Resolution(r *types.Resolution) string {
	var b strings.Builder

	switch r.Reason {
	case types.ExitTakeProfit:
		b.WriteString("🎯 *TAKE PROFIT HIT*\nTrade WON ✅\n\n")
	case types.ExitStopLoss:
		b.WriteString("🛑 *STOP LOSS HIT*\nTrade LOST ❌\n\n")
	default:
		b.WriteString("⏰ *TRADE EXPIRED - EXIT NOW*\n")
		b.WriteString(expiredOutcome(r.PnLPercent) + "\n\n")
	}

	fmt.Fprintf(&b, "%s *%s* %s\n", r.Direction.Emoji(), strings.ToUpper(string(r.Direction)), f.Symbol)
	fmt.Fprintf(&b, "Strategy: %s\n", r.Strategy.Label())
	fmt.Fprintf(&b, "💰 Entry: %s\n", money(r.EntryPrice))
	fmt.Fprintf(&b, "🏁 Exit: %s\n", money(r.ExitPrice))
	fmt.Fprintf(&b, "📊 P&L: %s\n", percent(r.PnLPercent))
	fmt.Fprintf(&b, "⏱️ Held: %d candles\n", r.BarsHeld)
	fmt.Fprintf(&b, "\n⏰ %s", utc(r.ClosedAt))
	return b.String()
}

// expiredOutcome 到期平仓的盈亏结论，按两位小数判断持平
func expiredOutcome(pnl float64) string {
	d := decimal.NewFromFloat(pnl).Round(2)
	switch {
	case d.IsPositive():
		return "✅ PROFIT"
	case d.IsNegative():
		return "❌ LOSS"
	default:
		return "⚪ BREAKEVEN"
	}
}

// Test 测试消息
func (f Formatter) Test(at time.Time) string {
	return fmt.Sprintf("🧪 *Test Notification*\nBTC Signal Sentry is connected.\nWatching %s %s\n\n⏰ %s",
		f.Symbol, f.Timeframe, utc(at))
}

// Status 信号统计摘要
func (f Formatter) Status(stats *types.SignalStats, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Signal Status* %s %s\n\n", f.Symbol, f.Timeframe)
	fmt.Fprintf(&b, "Total: %d\n", stats.Total)
	fmt.Fprintf(&b, "Active: %d\n", stats.Active)
	fmt.Fprintf(&b, "Closed: %d (TP/SL %d, expired %d)\n", stats.Triggered+stats.Expired, stats.Triggered, stats.Expired)
	fmt.Fprintf(&b, "Wins/Losses: %d/%d\n", stats.Wins, stats.Losses)
	fmt.Fprintf(&b, "Win Rate: %s%%\n", decimal.NewFromFloat(stats.WinRate).StringFixed(1))
	fmt.Fprintf(&b, "Avg P&L: %s\n", percent(stats.AvgPnLPercent))
	fmt.Fprintf(&b, "🔥 Strong: %d | Full: %d | High confidence: %d\n", stats.StrongConfluence, stats.FullConfluence, stats.HighConfidence)
	fmt.Fprintf(&b, "\n⏰ %s", utc(at))
	return b.String()
}
