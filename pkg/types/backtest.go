package types

import (
	"encoding/json"
	"math"
	"time"
)

// BacktestConfig 回测参数，单次回测期间不可变
type BacktestConfig struct {
	InitialBalance    float64         `mapstructure:"initial_balance" json:"initial_balance"`
	StopLossPercent   float64         `mapstructure:"stop_loss_percent" json:"stop_loss_percent"`
	TakeProfitPercent float64         `mapstructure:"take_profit_percent" json:"take_profit_percent"`
	EnabledStrategies StrategyToggles `mapstructure:"enabled_strategies" json:"enabled_strategies"`
	RSIOversold       float64         `mapstructure:"rsi_oversold" json:"rsi_oversold"`
	RSIOverbought     float64         `mapstructure:"rsi_overbought" json:"rsi_overbought"`
	MaxHoldingPeriod  int             `mapstructure:"max_holding_period" json:"max_holding_period"` // K线数
	RequireConfluence bool            `mapstructure:"require_confluence" json:"require_confluence"`
	WarmupBars        int             `mapstructure:"warmup_bars" json:"warmup_bars"`
}

// DefaultBacktestConfig 默认回测参数
func DefaultBacktestConfig() BacktestConfig {
	return BacktestConfig{
		InitialBalance:    10000,
		StopLossPercent:   2,
		TakeProfitPercent: 4,
		EnabledStrategies: AllEnabled(),
		RSIOversold:       30,
		RSIOverbought:     70,
		MaxHoldingPeriod:  24,
		WarmupBars:        50,
	}
}

// BacktestTrade 回测中的单笔模拟交易
type BacktestTrade struct {
	EntryIndex int          `json:"entry_index"`
	ExitIndex  int          `json:"exit_index"`
	EntryTime  time.Time    `json:"entry_time"`
	ExitTime   time.Time    `json:"exit_time"`
	EntryPrice float64      `json:"entry_price"`
	ExitPrice  float64      `json:"exit_price"`
	Direction  Direction    `json:"direction"`
	Strategy   StrategyType `json:"strategy"`
	PnLPercent float64      `json:"pnl_percent"`
	PnLAmount  float64      `json:"pnl_amount"`
	ExitReason ExitReason   `json:"exit_reason"`
}

// ProfitFactor 盈亏比，+Inf 表示无亏损
type ProfitFactor float64

// IsInfinite 是否为无穷大哨兵值
func (p ProfitFactor) IsInfinite() bool {
	return math.IsInf(float64(p), 1)
}

// MarshalJSON 无穷大编码为字符串 "Infinity"
func (p ProfitFactor) MarshalJSON() ([]byte, error) {
	if p.IsInfinite() {
		return []byte(`"Infinity"`), nil
	}
	return json.Marshal(float64(p))
}

// BacktestResult 回测汇总
type BacktestResult struct {
	Trades            []*BacktestTrade `json:"trades"`
	TotalTrades       int              `json:"total_trades"`
	WinningTrades     int              `json:"winning_trades"`
	LosingTrades      int              `json:"losing_trades"`
	WinRate           float64          `json:"win_rate"`
	TotalPnLPercent   float64          `json:"total_pnl_percent"`
	AveragePnLPercent float64          `json:"average_pnl_percent"`
	MaxDrawdown       float64          `json:"max_drawdown"` // 百分比
	ProfitFactor      ProfitFactor     `json:"profit_factor"`
	SharpeRatio       float64          `json:"sharpe_ratio"`
	StartDate         time.Time        `json:"start_date"`
	EndDate           time.Time        `json:"end_date"`
	InitialBalance    float64          `json:"initial_balance"`
	FinalBalance      float64          `json:"final_balance"`
}
