package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"btc-signal-sentry/internal/storage"
	"btc-signal-sentry/pkg/types"
)

// ScanRunner 执行一次完整扫描
type ScanRunner interface {
	Run(ctx context.Context, scanType types.ScanType) (*types.ScanResult, error)
}

// Scheduler 对齐K线收盘时间的定时扫描
type Scheduler struct {
	scanner      ScanRunner
	stateManager *storage.StateManager
	period       time.Duration // 扫描周期，与K线周期一致
	delay        time.Duration // 收盘后延迟
	now          func() time.Time
}

func NewScheduler(scanner ScanRunner, stateManager *storage.StateManager, period, delay time.Duration) *Scheduler {
	if period <= 0 {
		period = time.Hour
	}
	if delay < 0 {
		delay = 0
	}
	return &Scheduler{
		scanner:      scanner,
		stateManager: stateManager,
		period:       period,
		delay:        delay,
		now:          time.Now,
	}
}

// Start 阻塞运行，直到 ctx 取消
func (s *Scheduler) Start(ctx context.Context) {
	zap.L().Info("🚀 调度器启动",
		zap.Duration("period", s.period),
		zap.Duration("delay", s.delay))

	for {
		next := NextRun(s.now(), s.period, s.delay)
		wait := next.Sub(s.now())

		zap.L().Info("⏰ 下次扫描时间",
			zap.Time("next", next),
			zap.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			zap.L().Info("📴 调度器已停止")
			return
		case <-timer.C:
		}

		s.runScan(ctx)
	}
}

// runScan 执行一次定时扫描
func (s *Scheduler) runScan(ctx context.Context) {
	zap.L().Info("--- 定时扫描任务 ---", zap.Time("at", s.now()))

	if s.stateManager != nil {
		evicted := s.stateManager.Evict()
		stats := s.stateManager.GetRedisStats()
		zap.L().Debug("📊 存储状态",
			zap.Any("stats", stats),
			zap.Int("evicted_claims", evicted))
	}

	result, err := s.scanner.Run(ctx, types.ScanCron)
	if err != nil {
		zap.L().Error("❌ 定时扫描失败", zap.Error(err))
		return
	}
	if len(result.Errors) > 0 {
		zap.L().Warn("⚠️ 定时扫描部分失败", zap.Strings("errors", result.Errors))
	}
}

// NextRun 计算 now 之后下一个 周期边界+延迟 的时间点，边界按UTC对齐
func NextRun(now time.Time, period, delay time.Duration) time.Time {
	next := now.Truncate(period).Add(delay)
	for !next.After(now) {
		next = next.Add(period)
	}
	return next
}
