package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"btc-signal-sentry/internal/notifier"
	"btc-signal-sentry/internal/strategy/database"
	"btc-signal-sentry/pkg/types"
)

// PerformanceMonitor 策略表现监控：定期汇总信号统计，写日志并推送状态消息
type PerformanceMonitor struct {
	store    database.Store
	notifier notifier.Interface
	symbol   string
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mutex  sync.RWMutex
	report *Report
}

// Report 一次统计报告
type Report struct {
	GeneratedAt time.Time                      `json:"generated_at"`
	Stats       *types.SignalStats             `json:"stats"`
	Strategies  []database.StrategyPerformance `json:"strategies"`
}

// NewPerformanceMonitor 创建监控器，interval<=0 时只按需生成报告
func NewPerformanceMonitor(store database.Store, notifyService notifier.Interface, symbol string, interval time.Duration) *PerformanceMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &PerformanceMonitor{
		store:    store,
		notifier: notifyService,
		symbol:   symbol,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 启动定期报告
func (pm *PerformanceMonitor) Start() {
	if pm.interval <= 0 {
		zap.L().Info("🚫 信号统计报告未启用")
		return
	}

	zap.L().Info("📊 启动策略表现监控器", zap.Duration("interval", pm.interval))

	pm.wg.Add(1)
	go pm.reportLoop()
}

// reportLoop 报告循环
func (pm *PerformanceMonitor) reportLoop() {
	defer pm.wg.Done()

	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			if _, err := pm.Publish(pm.ctx); err != nil {
				zap.L().Error("❌ 信号统计报告失败", zap.Error(err))
			}
		}
	}
}

// Generate 汇总当前信号统计与近一日策略表现
func (pm *PerformanceMonitor) Generate(ctx context.Context) (*Report, error) {
	stats, err := pm.store.SignalStats(ctx, pm.symbol)
	if err != nil {
		return nil, fmt.Errorf("获取信号统计失败: %w", err)
	}

	strategies, err := pm.store.GetStrategyPerformance(ctx, pm.symbol, 1)
	if err != nil {
		// 策略表现只用于日志
		zap.L().Warn("⚠️ 获取策略表现失败", zap.Error(err))
	}

	report := &Report{
		GeneratedAt: time.Now(),
		Stats:       stats,
		Strategies:  strategies,
	}

	pm.mutex.Lock()
	pm.report = report
	pm.mutex.Unlock()

	return report, nil
}

// Publish 生成报告，写日志并推送状态消息
func (pm *PerformanceMonitor) Publish(ctx context.Context) (*Report, error) {
	report, err := pm.Generate(ctx)
	if err != nil {
		return nil, err
	}

	stats := report.Stats
	zap.L().Info("📈 信号统计报告",
		zap.String("symbol", pm.symbol),
		zap.Int("total", stats.Total),
		zap.Int("active", stats.Active),
		zap.Int("wins", stats.Wins),
		zap.Int("losses", stats.Losses),
		zap.Float64("win_rate", stats.WinRate),
		zap.Float64("avg_pnl_percent", stats.AvgPnLPercent),
		zap.Int("strong_confluence", stats.StrongConfluence),
		zap.Int("full_confluence", stats.FullConfluence))

	for _, perf := range report.Strategies {
		zap.L().Info("📊 策略表现",
			zap.String("strategy", perf.Strategy),
			zap.Int("total_signals", perf.TotalSignals),
			zap.Int("long_signals", perf.LongSignals),
			zap.Int("short_signals", perf.ShortSignals),
			zap.String("avg_confidence", perf.AvgConfidence.StringFixed(2)))
	}

	if err := pm.notifier.SendStatus(stats); err != nil {
		return report, fmt.Errorf("推送统计报告失败: %w", err)
	}
	return report, nil
}

// Latest 最近一次报告，尚未生成时为 nil
func (pm *PerformanceMonitor) Latest() *Report {
	pm.mutex.RLock()
	defer pm.mutex.RUnlock()
	return pm.report
}

// Summary 报告的单行摘要
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "信号 %d 个，活跃 %d，胜 %d 负 %d，胜率 %.1f%%",
		r.Stats.Total, r.Stats.Active, r.Stats.Wins, r.Stats.Losses, r.Stats.WinRate)
	for _, perf := range r.Strategies {
		fmt.Fprintf(&b, "；%s %d", perf.Strategy, perf.TotalSignals)
	}
	return b.String()
}

// Stop 停止监控
func (pm *PerformanceMonitor) Stop() {
	zap.L().Info("🛑 停止策略表现监控器")
	pm.cancel()
	pm.wg.Wait()
}
