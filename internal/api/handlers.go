package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"btc-signal-sentry/internal/backtest"
	"btc-signal-sentry/internal/strategy/fetcher"
	"btc-signal-sentry/pkg/config"
	"btc-signal-sentry/pkg/types"
)

const (
	defaultBacktestCandles = 1000
	maxBacktestCandles     = 5000
)

// queryInt 读取整数查询参数并限制在 [1, max]
func queryInt(c *gin.Context, key string, def, max int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 || v > max {
		errorResponse(c, http.StatusBadRequest, key+" 必须在 1 到 "+strconv.Itoa(max)+" 之间")
		return 0, false
	}
	return v, true
}

// handleHealth GET /health
func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":  "healthy",
		"symbol":  s.market.Symbol,
		"uptime":  time.Since(s.startedAt).Truncate(time.Second).String(),
		"storage": "ok",
	}

	if err := s.deps.Store.Health(); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["storage"] = err.Error()
	}
	if s.deps.State != nil {
		body["cache"] = s.deps.State.GetRedisStats()
	}
	if s.deps.Engine != nil {
		body["ws_connected"] = s.deps.Engine.GetStats().Connected
	}

	c.JSON(status, body)
}

// handleScan POST /api/scan 手动触发一次扫描
func (s *Server) handleScan(c *gin.Context) {
	result, err := s.deps.Scanner.Run(c.Request.Context(), types.ScanManual)
	if err != nil {
		errorResponse(c, http.StatusBadGateway, "扫描失败: "+err.Error())
		return
	}
	successResponse(c, result)
}

// backtestRequest 回测请求，未给出的参数沿用配置
type backtestRequest struct {
	Candles int                  `json:"candles"`
	Config  types.BacktestConfig `json:"config"`
}

// handleBacktest POST /api/backtest
// Body: {"candles": 1000, "config": {"stop_loss_percent": 2, "take_profit_percent": 4}}
func (s *Server) handleBacktest(c *gin.Context) {
	if s.deps.History == nil {
		errorResponse(c, http.StatusServiceUnavailable, "未配置历史K线来源")
		return
	}

	req := backtestRequest{Candles: defaultBacktestCandles, Config: s.backtest}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorResponse(c, http.StatusBadRequest, "请求参数无效: "+err.Error())
			return
		}
	}
	if req.Candles < 1 || req.Candles > maxBacktestCandles {
		errorResponse(c, http.StatusBadRequest, "candles 必须在 1 到 "+strconv.Itoa(maxBacktestCandles)+" 之间")
		return
	}
	if err := config.ValidateBacktest(req.Config); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	klines, err := s.deps.History.FetchHistory(c.Request.Context(), s.market.Symbol, s.market.Interval, req.Candles)
	if err != nil {
		errorResponse(c, http.StatusBadGateway, "获取历史K线失败: "+err.Error())
		return
	}

	result, err := backtest.NewRunner(s.strategy, s.market, req.Config).Run(fetcher.ClosedOnly(klines))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	successResponse(c, result)
}

// handleActiveSignals GET /api/signals/active
func (s *Server) handleActiveSignals(c *gin.Context) {
	signals, err := s.deps.Store.ActiveSignals(c.Request.Context(), s.market.Symbol)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "查询活跃信号失败: "+err.Error())
		return
	}
	successResponse(c, signals)
}

// handleRecentSignals GET /api/signals/recent?limit=50
func (s *Server) handleRecentSignals(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50, 500)
	if !ok {
		return
	}
	signals, err := s.deps.Store.ListSignals(c.Request.Context(), s.market.Symbol, limit)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "查询信号失败: "+err.Error())
		return
	}
	successResponse(c, signals)
}

// handleStats GET /api/stats
func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.deps.Store.SignalStats(c.Request.Context(), s.market.Symbol)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "查询信号统计失败: "+err.Error())
		return
	}
	successResponse(c, stats)
}

// handleScanHistory GET /api/scans?limit=20
func (s *Server) handleScanHistory(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 20, 200)
	if !ok {
		return
	}
	history, err := s.deps.Store.ScanHistory(c.Request.Context(), limit)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "查询扫描历史失败: "+err.Error())
		return
	}
	successResponse(c, history)
}

// handleIndicators GET /api/indicators 最新已收盘K线的指标快照
func (s *Server) handleIndicators(c *gin.Context) {
	ctx := c.Request.Context()

	var klines []*types.KLine
	if s.deps.State != nil {
		klines = fetcher.ClosedOnly(s.deps.State.LatestKLines(ctx, s.market.Symbol, s.market.Interval, s.market.Lookback))
	}
	if len(klines) == 0 {
		stored, err := s.deps.Store.GetKLines(ctx, s.market.Symbol, s.market.Interval, s.market.Lookback)
		if err != nil {
			errorResponse(c, http.StatusInternalServerError, "查询K线失败: "+err.Error())
			return
		}
		klines = stored
	}
	if len(klines) == 0 {
		errorResponse(c, http.StatusServiceUnavailable, "暂无K线数据")
		return
	}

	successResponse(c, s.deps.Scanner.Snapshot(klines))
}

// handlePerformance GET /api/performance?days=7
func (s *Server) handlePerformance(c *gin.Context) {
	days, ok := queryInt(c, "days", 7, 365)
	if !ok {
		return
	}
	performance, err := s.deps.Store.GetStrategyPerformance(c.Request.Context(), s.market.Symbol, days)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "查询策略表现失败: "+err.Error())
		return
	}
	successResponse(c, performance)
}

// handleEngine GET /api/engine
func (s *Server) handleEngine(c *gin.Context) {
	if s.deps.Engine == nil {
		errorResponse(c, http.StatusNotFound, "实时引擎未启用")
		return
	}
	successResponse(c, s.deps.Engine.GetStats())
}

// handleNotifyTest POST /api/notify/test
func (s *Server) handleNotifyTest(c *gin.Context) {
	if err := s.deps.Notifier.SendTest(); err != nil {
		errorResponse(c, http.StatusBadGateway, "测试消息发送失败: "+err.Error())
		return
	}
	successResponse(c, gin.H{"sent": true})
}

// handleNotifyStatus POST /api/notify/status 立即推送一次统计报告
func (s *Server) handleNotifyStatus(c *gin.Context) {
	if s.deps.Monitor == nil {
		errorResponse(c, http.StatusNotFound, "统计报告未启用")
		return
	}
	report, err := s.deps.Monitor.Publish(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusBadGateway, err.Error())
		return
	}
	successResponse(c, report)
}
