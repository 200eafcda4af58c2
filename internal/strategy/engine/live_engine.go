package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"btc-signal-sentry/internal/storage"
	"btc-signal-sentry/pkg/types"
)

// Stream 实时K线推送
type Stream interface {
	Connect() error
	Subscribe(symbols []string, interval string) error
	StartReading()
	GetKlineChannel() <-chan *types.KLine
	IsConnected() bool
	Close() error
}

// Scanner 信号扫描
type Scanner interface {
	Scan(ctx context.Context, klines []*types.KLine, scanType types.ScanType) (*types.ScanResult, error)
	ResolvePositions(ctx context.Context, latest *types.KLine) ([]*types.Resolution, error)
}

// HistorySource 启动时预热K线窗口
type HistorySource interface {
	FetchHistoryKlines(ctx context.Context, symbol, interval string, limit int) ([]*types.KLine, error)
}

// LiveEngine 实时管道：推送K线写入窗口，收盘K线触发扫描，未收盘K线按间隔结算持仓
type LiveEngine struct {
	market  types.MarketConfig
	stream  Stream
	scanner Scanner
	state   *storage.StateManager
	history HistorySource

	// 未收盘K线结算持仓的最小间隔
	resolveInterval time.Duration
	lastResolve     time.Time
	lastScanned     time.Time // 最近一次扫描的收盘K线开盘时间

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// 统计
	processedKlines int64
	closedKlines    int64
	liveScans       int64
	savedSignals    int64
	closedPositions int64
	statsMutex      sync.RWMutex
}

// NewLiveEngine 创建实时引擎
func NewLiveEngine(market types.MarketConfig, stream Stream, scanner Scanner, state *storage.StateManager, history HistorySource) *LiveEngine {
	ctx, cancel := context.WithCancel(context.Background())

	return &LiveEngine{
		market:          market,
		stream:          stream,
		scanner:         scanner,
		state:           state,
		history:         history,
		resolveInterval: time.Minute,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start 预热窗口、连接推送并启动工作协程
func (e *LiveEngine) Start() error {
	zap.L().Info("🚀 启动实时K线引擎",
		zap.String("symbol", e.market.Symbol),
		zap.String("interval", e.market.Interval))

	if err := e.initializeHistoryData(); err != nil {
		// 预热失败时窗口随推送逐步填满
		zap.L().Warn("⚠️ 初始化历史数据失败", zap.Error(err))
	}

	if err := e.stream.Connect(); err != nil {
		return fmt.Errorf("连接K线推送失败: %w", err)
	}
	if err := e.stream.Subscribe([]string{e.market.Symbol}, e.market.Interval); err != nil {
		return fmt.Errorf("订阅K线失败: %w", err)
	}

	e.startWorkers()

	zap.L().Info("✅ 实时K线引擎启动成功")
	return nil
}

// startWorkers 启动工作协程
func (e *LiveEngine) startWorkers() {
	e.stream.StartReading()

	// K线需按顺序处理，只用一个处理协程
	e.wg.Add(1)
	go e.klineProcessor()

	e.wg.Add(1)
	go e.maintenance()
}

// klineProcessor K线处理器
func (e *LiveEngine) klineProcessor() {
	defer e.wg.Done()

	source := e.stream.GetKlineChannel()
	for {
		select {
		case <-e.ctx.Done():
			return
		case kline := <-source:
			if kline == nil {
				continue
			}
			e.processKline(kline)
		}
	}
}

// processKline 处理单根推送K线
func (e *LiveEngine) processKline(kline *types.KLine) {
	if kline.Symbol != e.market.Symbol || kline.Interval != e.market.Interval {
		return
	}

	e.state.StoreKLine(kline)
	e.incrementKlineCount(kline.Closed)

	if !kline.Closed {
		e.resolveForming(kline)
		return
	}

	// 同一根收盘K线可能重复推送
	if !kline.OpenTime.After(e.lastScanned) {
		return
	}
	e.lastScanned = kline.OpenTime

	klines := e.state.LatestKLines(e.ctx, e.market.Symbol, e.market.Interval, e.market.Lookback)
	result, err := e.scanner.Scan(e.ctx, klines, types.ScanLive)
	if err != nil {
		zap.L().Error("❌ 实时扫描失败", zap.Time("open_time", kline.OpenTime), zap.Error(err))
		return
	}
	e.lastResolve = time.Now()
	e.recordScan(result)
}

// resolveForming 用未收盘K线结算持仓，按间隔节流
func (e *LiveEngine) resolveForming(kline *types.KLine) {
	if time.Since(e.lastResolve) < e.resolveInterval {
		return
	}
	e.lastResolve = time.Now()

	resolutions, err := e.scanner.ResolvePositions(e.ctx, kline)
	if err != nil {
		zap.L().Error("❌ 实时持仓结算失败", zap.Error(err))
		return
	}
	if len(resolutions) > 0 {
		e.statsMutex.Lock()
		e.closedPositions += int64(len(resolutions))
		e.statsMutex.Unlock()
	}
}

// maintenance 定期清理过期幂等键并输出统计
func (e *LiveEngine) maintenance() {
	defer e.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			evicted := e.state.Evict()
			stats := e.GetStats()
			zap.L().Info("📈 实时引擎统计",
				zap.Int64("processed_klines", stats.ProcessedKlines),
				zap.Int64("closed_klines", stats.ClosedKlines),
				zap.Int64("live_scans", stats.LiveScans),
				zap.Int64("saved_signals", stats.SavedSignals),
				zap.Int64("closed_positions", stats.ClosedPositions),
				zap.Int("evicted_claims", evicted),
				zap.Bool("ws_connected", stats.Connected))
		}
	}
}

func (e *LiveEngine) incrementKlineCount(closed bool) {
	e.statsMutex.Lock()
	e.processedKlines++
	if closed {
		e.closedKlines++
	}
	e.statsMutex.Unlock()
}

func (e *LiveEngine) recordScan(result *types.ScanResult) {
	e.statsMutex.Lock()
	e.liveScans++
	e.savedSignals += int64(result.SignalsSaved)
	e.closedPositions += int64(result.PositionsClosed)
	e.statsMutex.Unlock()
}

// Stats 引擎统计
type Stats struct {
	ProcessedKlines int64  `json:"processed_klines"`
	ClosedKlines    int64  `json:"closed_klines"`
	LiveScans       int64  `json:"live_scans"`
	SavedSignals    int64  `json:"saved_signals"`
	ClosedPositions int64  `json:"closed_positions"`
	Connected       bool   `json:"ws_connected"`
	Symbol          string `json:"symbol"`
	Interval        string `json:"interval"`
}

// GetStats 获取统计信息
func (e *LiveEngine) GetStats() Stats {
	e.statsMutex.RLock()
	defer e.statsMutex.RUnlock()

	return Stats{
		ProcessedKlines: e.processedKlines,
		ClosedKlines:    e.closedKlines,
		LiveScans:       e.liveScans,
		SavedSignals:    e.savedSignals,
		ClosedPositions: e.closedPositions,
		Connected:       e.stream.IsConnected(),
		Symbol:          e.market.Symbol,
		Interval:        e.market.Interval,
	}
}

// Stop 停止引擎
func (e *LiveEngine) Stop() error {
	zap.L().Info("🛑 停止实时K线引擎")

	e.cancel()

	if err := e.stream.Close(); err != nil {
		zap.L().Error("关闭WebSocket连接失败", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("✅ 所有工作协程已停止")
	case <-time.After(30 * time.Second):
		zap.L().Warn("⚠️ 停止超时，强制退出")
	}
	return nil
}

// initializeHistoryData 用REST历史K线预热窗口
func (e *LiveEngine) initializeHistoryData() error {
	if e.history == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(e.ctx, 30*time.Second)
	defer cancel()

	klines, err := e.history.FetchHistoryKlines(ctx, e.market.Symbol, e.market.Interval, e.market.Lookback)
	if err != nil {
		return fmt.Errorf("获取历史数据失败: %w", err)
	}
	if len(klines) == 0 {
		zap.L().Warn("⚠️ 历史数据为空", zap.String("symbol", e.market.Symbol))
		return nil
	}

	e.state.StoreKLines(klines)
	// 预热数据中已收盘的K线视为已扫描
	for _, k := range klines {
		if k.Closed && k.OpenTime.After(e.lastScanned) {
			e.lastScanned = k.OpenTime
		}
	}

	zap.L().Info("✅ 历史数据初始化完成",
		zap.String("symbol", e.market.Symbol),
		zap.Int("klines_count", len(klines)),
		zap.Time("oldest", klines[0].OpenTime),
		zap.Time("newest", klines[len(klines)-1].OpenTime))
	return nil
}
