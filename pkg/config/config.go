package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"btc-signal-sentry/pkg/types"
)

// ErrInvalidConfig 配置校验失败
var ErrInvalidConfig = errors.New("配置无效")

// Load 加载配置
func Load() (*types.Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// 设置默认值
	setDefaults(v)

	// 读取环境变量，strategy.risk.stop_loss_percent -> STRATEGY_RISK_STOP_LOSS_PERCENT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 优先尝试读取本地配置文件
	v.SetConfigName("config.local")
	if err := v.ReadInConfig(); err != nil {
		// 如果本地配置文件不存在，尝试读取默认配置文件
		v.SetConfigName("config")
		if err := v.ReadInConfig(); err != nil {
			var configFileNotFoundError viper.ConfigFileNotFoundError
			if !errors.As(err, &configFileNotFoundError) {
				return nil, err
			}
		}
	}

	return decode(v)
}

// LoadFile 从指定文件加载配置
func LoadFile(path string) (*types.Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return decode(v)
}

// decode 严格解码，未知键直接报错
func decode(v *viper.Viper) (*types.Config, error) {
	var config types.Config
	if err := v.UnmarshalExact(&config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_path", "logs")
	v.SetDefault("log.max_size", 200)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.compress", false)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("dingtalk.webhook_url", "")
	v.SetDefault("dingtalk.secret", "")
	v.SetDefault("pushplus.user_token", "")
	v.SetDefault("pushplus.to", "")
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("network.proxy", "")
	v.SetDefault("network.timeout", 30*time.Second)

	v.SetDefault("market.symbol", "BTCUSDT")
	v.SetDefault("market.interval", "1h")
	v.SetDefault("market.lookback", 250)
	v.SetDefault("market.endpoints", []string{
		"https://api.binance.com",
		"https://api1.binance.com",
		"https://api2.binance.com",
		"https://api3.binance.com",
	})

	v.SetDefault("websocket.enabled", false)
	v.SetDefault("websocket.endpoint", "wss://stream.binance.com:9443/ws")
	v.SetDefault("websocket.reconnect_interval", time.Second)
	v.SetDefault("websocket.max_reconnect_interval", 30*time.Second)
	v.SetDefault("websocket.ping_interval", 20*time.Second)
	v.SetDefault("websocket.max_reconnect_attempts", 10)

	v.SetDefault("strategy.indicators.ema_periods", []int{8, 13, 21, 50, 200})
	v.SetDefault("strategy.indicators.trend_ema", 200)
	v.SetDefault("strategy.indicators.rsi.period", 14)
	v.SetDefault("strategy.indicators.rsi.oversold", 25.0)
	v.SetDefault("strategy.indicators.rsi.overbought", 75.0)
	v.SetDefault("strategy.indicators.macd.fast", 12)
	v.SetDefault("strategy.indicators.macd.slow", 26)
	v.SetDefault("strategy.indicators.macd.signal", 9)
	v.SetDefault("strategy.indicators.bollinger.period", 20)
	v.SetDefault("strategy.indicators.bollinger.std_dev", 2.0)
	v.SetDefault("strategy.risk.stop_loss_percent", 4.0)
	v.SetDefault("strategy.risk.take_profit_percent", 8.0)
	v.SetDefault("strategy.risk.min_risk_reward", 1.5)
	v.SetDefault("strategy.enabled.ema_bounce", true)
	v.SetDefault("strategy.enabled.macd_cross", true)
	v.SetDefault("strategy.enabled.rsi_reversal", true)
	v.SetDefault("strategy.enabled.bollinger", true)
	v.SetDefault("strategy.ema_bounce.period", 21)
	v.SetDefault("strategy.ema_bounce.tolerance", 0.015)
	v.SetDefault("strategy.volume.period", 20)
	v.SetDefault("strategy.volume.multiplier", 1.5)
	v.SetDefault("strategy.confluence.min_agree", 3)
	v.SetDefault("strategy.duplicate.window", time.Hour)
	v.SetDefault("strategy.duplicate.tolerance", 0.01)
	v.SetDefault("strategy.duplicate.cache_ttl", time.Hour)
	v.SetDefault("strategy.max_holding_candles", 36)

	v.SetDefault("backtest.initial_balance", 10000.0)
	v.SetDefault("backtest.stop_loss_percent", 2.0)
	v.SetDefault("backtest.take_profit_percent", 4.0)
	v.SetDefault("backtest.enabled_strategies.ema_bounce", true)
	v.SetDefault("backtest.enabled_strategies.macd_cross", true)
	v.SetDefault("backtest.enabled_strategies.rsi_reversal", true)
	v.SetDefault("backtest.enabled_strategies.bollinger", true)
	v.SetDefault("backtest.rsi_oversold", 30.0)
	v.SetDefault("backtest.rsi_overbought", 70.0)
	v.SetDefault("backtest.max_holding_period", 24)
	v.SetDefault("backtest.require_confluence", false)
	v.SetDefault("backtest.warmup_bars", 50)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.period", time.Hour)
	v.SetDefault("scheduler.delay", 5*time.Second)
	v.SetDefault("scheduler.report", 24*time.Hour)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("api.mode", "release")

	v.SetDefault("database.mysql.enabled", false)
	v.SetDefault("database.mysql.host", "127.0.0.1")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.username", "root")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.mysql.database", "btc_signal_sentry")
	v.SetDefault("database.mysql.max_idle_conns", 10)
	v.SetDefault("database.mysql.max_open_conns", 50)
}
