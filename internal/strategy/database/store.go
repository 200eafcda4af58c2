package database

import (
	"context"
	"time"

	"btc-signal-sentry/internal/strategy/dedup"
	"btc-signal-sentry/pkg/types"
)

// Store 信号持久化契约，MySQL 与内存实现共用
type Store interface {
	// InsertIfNotDuplicate 在同一临界区内完成 查近期记录 → 判重 → 插入，重复时返回 dedup.ErrDuplicate
	InsertIfNotDuplicate(ctx context.Context, signal *types.Signal, guard *dedup.Guard) error
	ActiveSignals(ctx context.Context, symbol string) ([]*types.Signal, error)
	RecentSignals(ctx context.Context, symbol string, since time.Time) ([]*types.Signal, error)
	ListSignals(ctx context.Context, symbol string, limit int) ([]*types.Signal, error)
	// UpdateResolution 仅对 active 信号生效，返回是否实际更新
	UpdateResolution(ctx context.Context, res *types.Resolution) (bool, error)
	SignalStats(ctx context.Context, symbol string) (*types.SignalStats, error)
	UpdateStrategyPerformance(ctx context.Context, signal *types.Signal) error
	GetStrategyPerformance(ctx context.Context, symbol string, days int) ([]StrategyPerformance, error)
	SaveScanHistory(ctx context.Context, history *types.ScanHistory) error
	ScanHistory(ctx context.Context, limit int) ([]*types.ScanHistory, error)
	BatchSaveKlines(ctx context.Context, klines []*types.KLine) error
	GetKLines(ctx context.Context, symbol, interval string, limit int) ([]*types.KLine, error)
	Health() error
	Close() error
}

// ComputeStats 汇总信号统计
func ComputeStats(signals []*types.Signal) *types.SignalStats {
	stats := &types.SignalStats{}
	var pnlSum float64
	var pnlCount int

	for _, s := range signals {
		stats.Total++
		switch s.Status {
		case types.SignalActive:
			stats.Active++
		case types.SignalTriggered:
			stats.Triggered++
		case types.SignalExpired:
			stats.Expired++
		}

		switch s.ConfluenceLevel {
		case types.ConfluenceStrong:
			stats.StrongConfluence++
		case types.ConfluenceFull:
			stats.FullConfluence++
		}
		if s.Confidence >= types.ConfidenceStrongConfluence {
			stats.HighConfidence++
		}

		if s.PnLPercent != nil && s.Status.Closed() {
			pnlSum += *s.PnLPercent
			pnlCount++
			if *s.PnLPercent > 0 {
				stats.Wins++
			} else {
				stats.Losses++
			}
		}
	}

	if pnlCount > 0 {
		stats.WinRate = float64(stats.Wins) / float64(pnlCount) * 100
		stats.AvgPnLPercent = pnlSum / float64(pnlCount)
	}
	return stats
}
