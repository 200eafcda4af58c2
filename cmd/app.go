package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"btc-signal-sentry/internal/analyzer"
	"btc-signal-sentry/internal/api"
	"btc-signal-sentry/internal/notifier"
	"btc-signal-sentry/internal/scheduler"
	"btc-signal-sentry/internal/storage"
	"btc-signal-sentry/internal/strategy/database"
	"btc-signal-sentry/internal/strategy/engine"
	"btc-signal-sentry/internal/strategy/fetcher"
	"btc-signal-sentry/internal/strategy/monitor"
	"btc-signal-sentry/internal/strategy/websocket"
	"btc-signal-sentry/pkg/types"
)

// App 应用程序管理器
type App struct {
	config *types.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	store    database.Store
	state    *storage.StateManager
	scanner  *analyzer.Scanner
	monitor  *monitor.PerformanceMonitor
	engine   *engine.LiveEngine
	server   *api.Server
	history  *fetcher.HistoryKlineFetcher
	notifier *notifier.Notifier
}

// NewApp 创建应用程序实例并装配各模块
func NewApp(config *types.Config) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}

	store, err := newStore(config.Database.MySQL)
	if err != nil {
		cancel()
		return nil, err
	}
	app.store = store

	app.state = storage.NewStateManager(config.Redis, config.Strategy.Duplicate.CacheTTL, config.Market.Lookback*2)
	app.history = fetcher.NewHistoryKlineFetcher(config.Market.Endpoints, config.Network.Proxy, config.Network.Timeout)
	app.notifier = notifier.FromConfig(config)
	app.scanner = analyzer.NewScanner(config, app.store, app.state, app.notifier, app.history)
	app.monitor = monitor.NewPerformanceMonitor(app.store, app.notifier, config.Market.Symbol, config.Scheduler.Report)

	if config.WebSocket.Enabled {
		stream := websocket.NewClient(config.WebSocket.Endpoint, config.Network.Proxy, config.WebSocket)
		app.engine = engine.NewLiveEngine(config.Market, stream, app.scanner, app.state, app.history)
	}

	if config.API.Enabled {
		deps := api.Dependencies{
			Scanner:  app.scanner,
			Store:    app.store,
			State:    app.state,
			Notifier: app.notifier,
			History:  app.history,
			Monitor:  app.monitor,
		}
		if app.engine != nil {
			deps.Engine = app.engine
		}
		app.server = api.NewServer(config, deps)
	}

	return app, nil
}

// newStore 启用MySQL时使用gorm存储，否则使用内存存储
func newStore(config types.MySQLConfig) (database.Store, error) {
	if !config.Enabled {
		zap.L().Info("🔧 未启用MySQL，使用内存存储")
		return database.NewMemoryStore(), nil
	}

	manager, err := database.NewManager(config)
	if err != nil {
		return nil, fmt.Errorf("初始化MySQL存储失败: %w", err)
	}
	return manager, nil
}

// Start 启动应用程序
func (app *App) Start() {
	zap.L().Info("🚀 BTC Signal Sentry 启动中...",
		zap.String("symbol", app.config.Market.Symbol),
		zap.String("interval", app.config.Market.Interval),
		zap.String("notifier", app.notifier.Name()))

	if app.config.Scheduler.Enabled {
		taskScheduler := scheduler.NewScheduler(app.scanner, app.state, app.config.Scheduler.Period, app.config.Scheduler.Delay)
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			taskScheduler.Start(app.ctx)
		}()
	}

	if app.engine != nil {
		if err := app.engine.Start(); err != nil {
			zap.L().Error("❌ 启动实时K线引擎失败", zap.Error(err))
			app.engine = nil
		}
	}

	app.monitor.Start()

	if app.server != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			if err := app.server.Start(); err != nil {
				zap.L().Error("❌ HTTP服务异常退出", zap.Error(err))
			}
		}()
	}

	zap.L().Info("✅ BTC Signal Sentry 已启动")
}

// Stop 停止应用程序
func (app *App) Stop() {
	zap.L().Info("🛑 收到停止信号，正在优雅关闭...")
	app.cancel()

	if app.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := app.server.Stop(ctx); err != nil {
			zap.L().Error("❌ 关闭HTTP服务失败", zap.Error(err))
		}
		cancel()
	}
	if app.engine != nil {
		app.engine.Stop()
	}
	app.monitor.Stop()

	// 等待所有goroutine结束，最多等待30秒
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		zap.L().Warn("⚠️ 强制关闭超时")
	}

	if err := app.state.Close(); err != nil {
		zap.L().Error("❌ 关闭Redis连接失败", zap.Error(err))
	}
	if err := app.store.Close(); err != nil {
		zap.L().Error("❌ 关闭数据库连接失败", zap.Error(err))
	}

	zap.L().Info("✅ BTC Signal Sentry 已安全关闭")
}

// WaitForShutdown 等待关闭信号
func (app *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
