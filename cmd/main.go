package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"btc-signal-sentry/internal/backtest"
	"btc-signal-sentry/internal/strategy/fetcher"
	"btc-signal-sentry/pkg/config"
	"btc-signal-sentry/pkg/logger"
	"btc-signal-sentry/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径，默认按 ./configs 与 . 查找 config.local / config")
	runBacktest := flag.Bool("backtest", false, "运行一次回测后退出")
	candles := flag.Int("candles", 1000, "回测使用的K线数量")
	flag.Parse()

	// 加载配置
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal("加载配置失败:", err)
	}

	// 初始化日志
	appLogger, err := logger.Init(cfg.Log)
	if err != nil {
		log.Fatal("初始化日志失败:", err)
	}
	defer appLogger.Sync()

	if *runBacktest {
		if err := backtestOnce(cfg, *candles); err != nil {
			zap.L().Error("❌ 回测失败", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	app, err := NewApp(cfg)
	if err != nil {
		zap.L().Fatal("❌ 初始化失败", zap.Error(err))
	}
	app.Start()
	app.WaitForShutdown()
	app.Stop()
}

func loadConfig(path string) (*types.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// backtestOnce 拉取历史K线回测，结果以JSON输出到标准输出
func backtestOnce(cfg *types.Config, candles int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	history := fetcher.NewHistoryKlineFetcher(cfg.Market.Endpoints, cfg.Network.Proxy, cfg.Network.Timeout)
	klines, err := history.FetchHistory(ctx, cfg.Market.Symbol, cfg.Market.Interval, candles)
	if err != nil {
		return err
	}

	result, err := backtest.NewRunner(cfg.Strategy, cfg.Market, cfg.Backtest).Run(fetcher.ClosedOnly(klines))
	if err != nil {
		return err
	}

	out, err := sonic.ConfigStd.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化回测结果失败: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
