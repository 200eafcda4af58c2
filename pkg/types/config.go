package types

import "time"

// Config 主配置结构
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Redis     RedisConfig     `mapstructure:"redis"`
	DingTalk  DingTalkConfig  `mapstructure:"dingtalk"`
	PushPlus  PushPlusConfig  `mapstructure:"pushplus"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Network   NetworkConfig   `mapstructure:"network"`
	Market    MarketConfig    `mapstructure:"market"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Backtest  BacktestConfig  `mapstructure:"backtest"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	API       APIConfig       `mapstructure:"api"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别
	FilePath   string `mapstructure:"file_path"`   // 日志输出路径名
	MaxSize    int    `mapstructure:"max_size"`    // 日志文件大小 单位：MB，超限后会自动切割
	MaxAge     int    `mapstructure:"max_age"`     // 日志文件存放时间 单位：天
	MaxBackups int    `mapstructure:"max_backups"` // 日志文件备份数量
	Compress   bool   `mapstructure:"compress"`    // 日志文件压缩
}

// RedisConfig Redis配置
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DingTalkConfig 钉钉配置
type DingTalkConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Secret     string `mapstructure:"secret"`
}

// PushPlusConfig PushPlus配置
type PushPlusConfig struct {
	UserToken string `mapstructure:"user_token"`
	To        string `mapstructure:"to"` // 好友令牌，多人用逗号分隔
}

// TelegramConfig Telegram机器人配置
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// NetworkConfig 网络配置
type NetworkConfig struct {
	Proxy   string        `mapstructure:"proxy"`   // HTTP代理地址，如 http://127.0.0.1:7890
	Timeout time.Duration `mapstructure:"timeout"` // 网络超时时间
}

// MarketConfig 行情数据配置
type MarketConfig struct {
	Symbol    string   `mapstructure:"symbol"`    // BTCUSDT
	Interval  string   `mapstructure:"interval"`  // 1h
	Lookback  int      `mapstructure:"lookback"`  // 每次扫描拉取的K线数量
	Endpoints []string `mapstructure:"endpoints"` // REST地址，按顺序故障切换
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	Endpoint             string        `mapstructure:"endpoint"`
	ReconnectInterval    time.Duration `mapstructure:"reconnect_interval"`     // 首次重连等待
	MaxReconnectInterval time.Duration `mapstructure:"max_reconnect_interval"` // 指数退避上限
	PingInterval         time.Duration `mapstructure:"ping_interval"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
}

// StrategyConfig 策略配置总入口
type StrategyConfig struct {
	Indicators        IndicatorConfig  `mapstructure:"indicators"`
	Risk              RiskConfig       `mapstructure:"risk"`
	Enabled           StrategyToggles  `mapstructure:"enabled"`
	EMABounce         EMABounceConfig  `mapstructure:"ema_bounce"`
	Volume            VolumeConfig     `mapstructure:"volume"`
	Confluence        ConfluenceConfig `mapstructure:"confluence"`
	Duplicate         DuplicateConfig  `mapstructure:"duplicate"`
	MaxHoldingCandles int              `mapstructure:"max_holding_candles"` // 最大持仓K线数
}

// IndicatorConfig 指标参数
type IndicatorConfig struct {
	EMAPeriods []int           `mapstructure:"ema_periods"`
	TrendEMA   int             `mapstructure:"trend_ema"` // 趋势过滤均线，默认200
	RSI        RSIConfig       `mapstructure:"rsi"`
	MACD       MACDConfig      `mapstructure:"macd"`
	Bollinger  BollingerConfig `mapstructure:"bollinger"`
}

// RSIConfig RSI参数
type RSIConfig struct {
	Period     int     `mapstructure:"period"`
	Oversold   float64 `mapstructure:"oversold"`
	Overbought float64 `mapstructure:"overbought"`
}

// MACDConfig MACD参数
type MACDConfig struct {
	Fast   int `mapstructure:"fast"`
	Slow   int `mapstructure:"slow"`
	Signal int `mapstructure:"signal"`
}

// BollingerConfig 布林带参数
type BollingerConfig struct {
	Period int     `mapstructure:"period"`
	StdDev float64 `mapstructure:"std_dev"`
}

// RiskConfig 风控参数（百分比）
type RiskConfig struct {
	StopLossPercent   float64 `mapstructure:"stop_loss_percent"`
	TakeProfitPercent float64 `mapstructure:"take_profit_percent"`
	MinRiskReward     float64 `mapstructure:"min_risk_reward"`
}

// EMABounceConfig EMA回踩参数
type EMABounceConfig struct {
	Period    int     `mapstructure:"period"`    // 支撑/阻力均线，默认21
	Tolerance float64 `mapstructure:"tolerance"` // 触碰容差，0.015 即 1.5%
}

// VolumeConfig 成交量确认参数
type VolumeConfig struct {
	Period     int     `mapstructure:"period"`
	Multiplier float64 `mapstructure:"multiplier"`
}

// ConfluenceConfig 汇聚参数
type ConfluenceConfig struct {
	MinAgree int `mapstructure:"min_agree"`
}

// DuplicateConfig 去重参数
type DuplicateConfig struct {
	Window    time.Duration `mapstructure:"window"`
	Tolerance float64       `mapstructure:"tolerance"` // 价格相对差，0.01 即 1%
	CacheTTL  time.Duration `mapstructure:"cache_ttl"` // 幂等缓存过期时间
}

// SchedulerConfig 定时扫描配置
type SchedulerConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Period  time.Duration `mapstructure:"period"` // 对齐到K线的扫描周期
	Delay   time.Duration `mapstructure:"delay"`  // K线收盘后延迟，等待交易所落盘
	Report  time.Duration `mapstructure:"report"` // 信号统计报告周期，0 表示不推送
}

// APIConfig HTTP接口配置
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Mode    string `mapstructure:"mode"` // gin 运行模式
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
}

// MySQLConfig MySQL配置
type MySQLConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}
