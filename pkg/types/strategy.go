package types

// StrategyType 策略类型
type StrategyType string

const (
	StrategyEMABounce   StrategyType = "ema_bounce"
	StrategyMACDCross   StrategyType = "macd_cross"
	StrategyRSIReversal StrategyType = "rsi_reversal"
	// StrategyBollinger 布林带均值回归（沿用历史枚举值）
	StrategyBollinger StrategyType = "bollinger_breakout"
)

// AllStrategies 策略注册顺序，汇聚时首个命中的策略作为主策略
var AllStrategies = []StrategyType{
	StrategyEMABounce,
	StrategyMACDCross,
	StrategyRSIReversal,
	StrategyBollinger,
}

var strategyLabels = map[StrategyType]string{
	StrategyEMABounce:   "EMA Bounce",
	StrategyMACDCross:   "MACD Cross",
	StrategyRSIReversal: "RSI Reversal",
	StrategyBollinger:   "BB Mean Reversion",
}

// Label 策略展示名称
func (s StrategyType) Label() string {
	if label, ok := strategyLabels[s]; ok {
		return label
	}
	return string(s)
}

// Valid 是否为已知策略
func (s StrategyType) Valid() bool {
	_, ok := strategyLabels[s]
	return ok
}

// Direction 交易方向
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Emoji 方向标识
func (d Direction) Emoji() string {
	if d == DirectionLong {
		return "🟢"
	}
	return "🔴"
}

// Confidence 单策略置信度档位
const (
	ConfidenceHigh   = 90
	ConfidenceMedium = 70
	ConfidenceLow    = 50

	ConfidenceStrongConfluence = 85 // 3/4 策略一致
	ConfidenceFullConfluence   = 95 // 4/4 策略一致
)

// MinConfluenceAgree 生成汇聚信号所需的最少同向策略数
const MinConfluenceAgree = 3

// StrategyCandidate 单根K线上某个策略给出的方向候选
type StrategyCandidate struct {
	Strategy   StrategyType `json:"strategy"`
	Direction  Direction    `json:"direction"`
	Reason     string       `json:"reason"`
	Confidence int          `json:"confidence"` // 单策略档位，汇聚时不使用
}

// StrategyToggles 策略开关
type StrategyToggles struct {
	EMABounce   bool `mapstructure:"ema_bounce" json:"ema_bounce"`
	MACDCross   bool `mapstructure:"macd_cross" json:"macd_cross"`
	RSIReversal bool `mapstructure:"rsi_reversal" json:"rsi_reversal"`
	Bollinger   bool `mapstructure:"bollinger" json:"bollinger"`
}

// Enabled 查询某策略是否启用
func (t StrategyToggles) Enabled(s StrategyType) bool {
	switch s {
	case StrategyEMABounce:
		return t.EMABounce
	case StrategyMACDCross:
		return t.MACDCross
	case StrategyRSIReversal:
		return t.RSIReversal
	case StrategyBollinger:
		return t.Bollinger
	}
	return false
}

// AllEnabled 全部策略启用
func AllEnabled() StrategyToggles {
	return StrategyToggles{EMABounce: true, MACDCross: true, RSIReversal: true, Bollinger: true}
}
