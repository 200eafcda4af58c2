package types

import (
	"strings"
	"time"
)

// SignalStatus 信号生命周期状态
type SignalStatus string

const (
	SignalActive    SignalStatus = "active"
	SignalTriggered SignalStatus = "triggered"
	SignalExpired   SignalStatus = "expired"
	SignalCancelled SignalStatus = "cancelled"
)

// Closed 是否为终态
func (s SignalStatus) Closed() bool {
	return s == SignalTriggered || s == SignalExpired || s == SignalCancelled
}

// ConfluenceLevel 汇聚强度
type ConfluenceLevel string

const (
	ConfluenceNone   ConfluenceLevel = ""
	ConfluenceStrong ConfluenceLevel = "strong" // 3/4
	ConfluenceFull   ConfluenceLevel = "full"   // 4/4
)

// Signal 持久化的交易信号
type Signal struct {
	ID                string          `json:"id"`
	Symbol            string          `json:"symbol"`
	Strategy          StrategyType    `json:"strategy"` // 主策略（首个命中）
	Direction         Direction       `json:"direction"`
	Confidence        int             `json:"confidence"`
	EntryPrice        float64         `json:"entry_price"`
	StopLoss          float64         `json:"stop_loss"`
	TakeProfit        float64         `json:"take_profit"`
	RiskReward        float64         `json:"risk_reward"`
	Rationale         string          `json:"rationale"`
	Timeframe         string          `json:"timeframe"`
	Status            SignalStatus    `json:"status"`
	ConfluenceLevel   ConfluenceLevel `json:"confluence_level,omitempty"`
	AlignedStrategies []StrategyType  `json:"aligned_strategies,omitempty"`
	DetectedAt        time.Time       `json:"detected_at"`
	TriggeredAt       *time.Time      `json:"triggered_at,omitempty"`
	ClosedAt          *time.Time      `json:"closed_at,omitempty"`
	ClosePrice        *float64        `json:"close_price,omitempty"`
	PnLPercent        *float64        `json:"pnl_percent,omitempty"`
}

// ExitReason 平仓原因
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTimeout    ExitReason = "timeout"
)

// Status 平仓原因对应的信号终态
func (r ExitReason) Status() SignalStatus {
	if r == ExitTimeout {
		return SignalExpired
	}
	return SignalTriggered
}

// Resolution 持仓结算结果
type Resolution struct {
	SignalID   string       `json:"signal_id"`
	Strategy   StrategyType `json:"strategy"`
	Direction  Direction    `json:"direction"`
	Reason     ExitReason   `json:"reason"`
	EntryPrice float64      `json:"entry_price"`
	ExitPrice  float64      `json:"exit_price"`
	PnLPercent float64      `json:"pnl_percent"`
	BarsHeld   int          `json:"bars_held"`
	ClosedAt   time.Time    `json:"closed_at"`
}

// ScanType 扫描触发方式
type ScanType string

const (
	ScanCron   ScanType = "cron"
	ScanManual ScanType = "manual"
	ScanLive   ScanType = "live"
)

// ScanOutcome 扫描结论
type ScanOutcome string

const (
	OutcomeNoCandidates  ScanOutcome = "no_candidates"  // 未检测到信号
	OutcomeAllDuplicates ScanOutcome = "all_duplicates" // 检测到但全部重复
	OutcomeSaved         ScanOutcome = "saved"          // 保存了新信号
	OutcomeFailed        ScanOutcome = "failed"         // 检测到但保存全部失败
)

// ScanResult 单次扫描的结构化结果
type ScanResult struct {
	ScanType          ScanType      `json:"scan_type"`
	Symbol            string        `json:"symbol"`
	Timeframe         string        `json:"timeframe"`
	CandlesAnalyzed   int           `json:"candles_analyzed"`
	SignalsDetected   int           `json:"signals_detected"`
	Duplicates        int           `json:"duplicates"`
	SignalsSaved      int           `json:"signals_saved"`
	NotificationsSent int           `json:"notifications_sent"`
	PositionsClosed   int           `json:"positions_closed"`
	Outcome           ScanOutcome   `json:"outcome"`
	Signals           []*Signal     `json:"signals"`
	Resolutions       []*Resolution `json:"resolutions"`
	Errors            []string      `json:"errors,omitempty"`
	Duration          time.Duration `json:"duration"`
}

// SignalStats 信号统计
type SignalStats struct {
	Total            int     `json:"total"`
	Active           int     `json:"active"`
	Triggered        int     `json:"triggered"`
	Expired          int     `json:"expired"`
	Wins             int     `json:"wins"`
	Losses           int     `json:"losses"`
	WinRate          float64 `json:"win_rate"`
	AvgPnLPercent    float64 `json:"avg_pnl_percent"`
	StrongConfluence int     `json:"strong_confluence"`
	FullConfluence   int     `json:"full_confluence"`
	HighConfidence   int     `json:"high_confidence"`
}

// ScanHistory 扫描历史记录
type ScanHistory struct {
	ID                uint        `json:"id"`
	ScanType          ScanType    `json:"scan_type"`
	Symbol            string      `json:"symbol"`
	Timeframe         string      `json:"timeframe"`
	CandlesAnalyzed   int         `json:"candles_analyzed"`
	SignalsDetected   int         `json:"signals_detected"`
	Duplicates        int         `json:"duplicates"`
	SignalsSaved      int         `json:"signals_saved"`
	NotificationsSent int         `json:"notifications_sent"`
	PositionsClosed   int         `json:"positions_closed"`
	Outcome           ScanOutcome `json:"outcome"`
	Status            string      `json:"status"` // success | error
	ErrorMessage      string      `json:"error_message,omitempty"`
	DurationMs        int64       `json:"duration_ms"`
	CreatedAt         time.Time   `json:"created_at"`
}

// History 生成扫描历史记录
func (r *ScanResult) History(at time.Time) *ScanHistory {
	h := &ScanHistory{
		ScanType:          r.ScanType,
		Symbol:            r.Symbol,
		Timeframe:         r.Timeframe,
		CandlesAnalyzed:   r.CandlesAnalyzed,
		SignalsDetected:   r.SignalsDetected,
		Duplicates:        r.Duplicates,
		SignalsSaved:      r.SignalsSaved,
		NotificationsSent: r.NotificationsSent,
		PositionsClosed:   r.PositionsClosed,
		Outcome:           r.Outcome,
		Status:            "success",
		DurationMs:        r.Duration.Milliseconds(),
		CreatedAt:         at,
	}
	if len(r.Errors) > 0 {
		h.Status = "error"
		h.ErrorMessage = strings.Join(r.Errors, "; ")
	}
	return h
}
