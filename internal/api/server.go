package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"btc-signal-sentry/internal/notifier"
	"btc-signal-sentry/internal/storage"
	"btc-signal-sentry/internal/strategy/database"
	"btc-signal-sentry/internal/strategy/engine"
	"btc-signal-sentry/internal/strategy/monitor"
	"btc-signal-sentry/pkg/types"
)

// Scanner 手动扫描与指标快照
type Scanner interface {
	Run(ctx context.Context, scanType types.ScanType) (*types.ScanResult, error)
	Snapshot(klines []*types.KLine) *types.IndicatorSnapshot
}

// HistoryFetcher 回测用的分页历史K线
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, symbol, interval string, total int) ([]*types.KLine, error)
}

// EngineStats 实时引擎统计
type EngineStats interface {
	GetStats() engine.Stats
}

// Dependencies 服务依赖，Engine/Monitor/History 可为空
type Dependencies struct {
	Scanner  Scanner
	Store    database.Store
	State    *storage.StateManager
	Notifier notifier.Interface
	History  HistoryFetcher
	Monitor  *monitor.PerformanceMonitor
	Engine   EngineStats
}

// Server HTTP API
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     types.APIConfig
	market     types.MarketConfig
	strategy   types.StrategyConfig
	backtest   types.BacktestConfig
	deps       Dependencies
	startedAt  time.Time
}

// NewServer 创建HTTP服务并注册路由
func NewServer(config *types.Config, deps Dependencies) *Server {
	if config.API.Mode != "" {
		gin.SetMode(config.API.Mode)
	}

	router := gin.New()
	router.Use(requestLogger())
	router.Use(gin.Recovery())

	s := &Server{
		router:    router,
		config:    config.API,
		market:    config.Market,
		strategy:  config.Strategy,
		backtest:  config.Backtest,
		deps:      deps,
		startedAt: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.POST("/scan", s.handleScan)
		api.POST("/backtest", s.handleBacktest)
		api.GET("/scans", s.handleScanHistory)
		api.GET("/indicators", s.handleIndicators)
		api.GET("/stats", s.handleStats)
		api.GET("/performance", s.handlePerformance)
		api.GET("/engine", s.handleEngine)

		signals := api.Group("/signals")
		signals.GET("/active", s.handleActiveSignals)
		signals.GET("/recent", s.handleRecentSignals)

		notify := api.Group("/notify")
		notify.POST("/test", s.handleNotifyTest)
		notify.POST("/status", s.handleNotifyStatus)
	}
}

// Handler 路由处理器，测试中直接使用
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 阻塞监听，直到 Stop 被调用
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // 回测可能较慢
		IdleTimeout:  60 * time.Second,
	}

	zap.L().Info("🌐 HTTP服务启动", zap.String("addr", s.config.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP服务启动失败: %w", err)
	}
	return nil
}

// Stop 优雅关闭
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// requestLogger 用 zap 记录请求
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			zap.L().Error("❌ HTTP请求失败", fields...)
			return
		}
		zap.L().Debug("🌐 HTTP请求", fields...)
	}
}

// errorResponse 错误响应
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse 成功响应
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
