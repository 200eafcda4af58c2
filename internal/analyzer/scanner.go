package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"btc-signal-sentry/internal/notifier"
	"btc-signal-sentry/internal/storage"
	"btc-signal-sentry/internal/strategy/confluence"
	"btc-signal-sentry/internal/strategy/database"
	"btc-signal-sentry/internal/strategy/dedup"
	"btc-signal-sentry/internal/strategy/fetcher"
	"btc-signal-sentry/internal/strategy/indicators"
	"btc-signal-sentry/internal/strategy/position"
	"btc-signal-sentry/internal/strategy/signals"
	"btc-signal-sentry/pkg/types"
)

// keyPlaces 幂等键入场价保留的小数位
const keyPlaces = 2

// KlineSource K线数据来源
type KlineSource interface {
	FetchHistoryKlines(ctx context.Context, symbol, interval string, limit int) ([]*types.KLine, error)
}

// Scanner 信号扫描器：指标 → 单策略检测 → 汇聚 → 去重入库 → 通知，并结算活跃持仓
type Scanner struct {
	market     types.MarketConfig
	indicators *indicators.Engine
	volume     *indicators.VolumeFilter
	registry   *signals.Registry
	aggregator *confluence.Aggregator
	guard      *dedup.Guard
	resolver   *position.Resolver
	store      database.Store
	state      *storage.StateManager
	notifier   notifier.Interface
	source     KlineSource
	mutex      sync.Mutex // 同一时间只允许一次扫描
	now        func() time.Time
}

// NewScanner 创建扫描器，source 为空时只能通过 Scan 传入K线
func NewScanner(config *types.Config, store database.Store, state *storage.StateManager, notifyService notifier.Interface, source KlineSource) *Scanner {
	strategy := config.Strategy
	return &Scanner{
		market:     config.Market,
		indicators: indicators.NewEngine(strategy.Indicators),
		volume:     indicators.NewVolumeFilter(strategy.Volume.Period, strategy.Volume.Multiplier),
		registry:   signals.NewRegistry(signals.ConfigFrom(strategy)),
		aggregator: confluence.NewAggregator(confluence.ConfigFrom(strategy, config.Market)),
		guard:      dedup.NewGuard(strategy.Duplicate.Window, strategy.Duplicate.Tolerance),
		resolver:   position.NewResolver(strategy.MaxHoldingCandles, types.IntervalDuration(config.Market.Interval)),
		store:      store,
		state:      state,
		notifier:   notifyService,
		source:     source,
		now:        time.Now,
	}
}

// Run 拉取最近的K线并扫描
func (s *Scanner) Run(ctx context.Context, scanType types.ScanType) (*types.ScanResult, error) {
	if s.source == nil {
		return nil, fmt.Errorf("未配置K线数据来源")
	}

	klines, err := s.source.FetchHistoryKlines(ctx, s.market.Symbol, s.market.Interval, s.market.Lookback)
	if err != nil {
		s.recordFailure(ctx, scanType, err)
		return nil, fmt.Errorf("获取K线失败: %w", err)
	}
	return s.Scan(ctx, klines, scanType)
}

// Scan 对给定K线执行一次完整扫描。检测只看最后一根已收盘K线，持仓结算使用最新一根K线
func (s *Scanner) Scan(ctx context.Context, klines []*types.KLine, scanType types.ScanType) (*types.ScanResult, error) {
	if len(klines) == 0 {
		return nil, fmt.Errorf("K线数据为空")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	start := s.now()
	result := &types.ScanResult{
		ScanType:  scanType,
		Symbol:    s.market.Symbol,
		Timeframe: s.market.Interval,
	}

	// 先结算已有持仓，本轮新信号不参与结算
	resolutions, err := s.resolvePositions(ctx, klines[len(klines)-1])
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	result.Resolutions = resolutions
	result.PositionsClosed = len(resolutions)

	closed := fetcher.ClosedOnly(klines)
	result.CandlesAnalyzed = len(closed)
	s.detect(ctx, closed, result)

	s.state.StoreKLines(klines)
	if err := s.store.BatchSaveKlines(ctx, closed); err != nil {
		zap.L().Error("❌ 保存K线失败", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("保存K线失败: %v", err))
	}

	result.Duration = s.now().Sub(start)
	if err := s.store.SaveScanHistory(ctx, result.History(s.now())); err != nil {
		zap.L().Error("❌ 保存扫描历史失败", zap.Error(err))
	}

	zap.L().Info("✅ 扫描完成",
		zap.String("scan_type", string(scanType)),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("candles", result.CandlesAnalyzed),
		zap.Int("detected", result.SignalsDetected),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("saved", result.SignalsSaved),
		zap.Int("notified", result.NotificationsSent),
		zap.Int("positions_closed", result.PositionsClosed),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// detect 检测最后一根已收盘K线并保存新信号
func (s *Scanner) detect(ctx context.Context, closed []*types.KLine, result *types.ScanResult) {
	result.Outcome = types.OutcomeNoCandidates
	if len(closed) < 2 {
		zap.L().Warn("⚠️ 已收盘K线不足，跳过信号检测", zap.Int("candles", len(closed)))
		return
	}

	series := s.indicators.Compute(closed, s.registry.EMAPeriods()...)
	index := len(closed) - 1
	bar := closed[index]

	candidates := s.registry.Detect(closed, series, index)
	detected := s.aggregator.Aggregate(candidates, bar.Close, bar.CloseTime)
	result.SignalsDetected = len(detected)
	if len(detected) == 0 {
		return
	}

	for _, signal := range detected {
		saved, err := s.save(ctx, signal)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if !saved {
			result.Duplicates++
			continue
		}

		result.SignalsSaved++
		result.Signals = append(result.Signals, signal)

		if err := s.notifier.SendSignal(signal); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("信号通知失败 id=%s: %v", signal.ID, err))
			continue
		}
		result.NotificationsSent++
	}

	switch {
	case result.SignalsSaved > 0:
		result.Outcome = types.OutcomeSaved
	case result.Duplicates == result.SignalsDetected:
		result.Outcome = types.OutcomeAllDuplicates
	default:
		result.Outcome = types.OutcomeFailed
	}
}

// save 先占用幂等键再原子判重插入，返回是否为新信号
func (s *Scanner) save(ctx context.Context, signal *types.Signal) (bool, error) {
	key := dedup.SignalKey(signal, keyPlaces)

	claimed, err := s.state.Claim(ctx, key, signal.DetectedAt)
	if err != nil {
		zap.L().Warn("⚠️ 幂等缓存不可用，仅依赖数据库判重", zap.Error(err))
	} else if !claimed {
		zap.L().Info("🔁 信号已提交过，跳过", zap.String("key", key))
		return false, nil
	}

	if err := s.store.InsertIfNotDuplicate(ctx, signal, s.guard); err != nil {
		if errors.Is(err, dedup.ErrDuplicate) {
			zap.L().Info("🔁 重复信号，跳过", zap.String("key", key))
			return false, nil
		}
		s.state.Release(ctx, key)
		zap.L().Error("❌ 保存信号失败", zap.String("key", key), zap.Error(err))
		return false, fmt.Errorf("保存信号失败 %s: %w", key, err)
	}

	if err := s.store.UpdateStrategyPerformance(ctx, signal); err != nil {
		zap.L().Warn("⚠️ 更新策略统计失败", zap.Error(err))
	}

	zap.L().Info("🎯 新信号已保存",
		zap.String("id", signal.ID),
		zap.String("strategy", string(signal.Strategy)),
		zap.String("direction", string(signal.Direction)),
		zap.Int("confidence", signal.Confidence),
		zap.Float64("entry", signal.EntryPrice))
	return true, nil
}

// ResolvePositions 用最新K线结算全部活跃信号
func (s *Scanner) ResolvePositions(ctx context.Context, latest *types.KLine) ([]*types.Resolution, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.resolvePositions(ctx, latest)
}

func (s *Scanner) resolvePositions(ctx context.Context, latest *types.KLine) ([]*types.Resolution, error) {
	active, err := s.store.ActiveSignals(ctx, s.market.Symbol)
	if err != nil {
		return nil, fmt.Errorf("查询活跃信号失败: %w", err)
	}

	var closed []*types.Resolution
	var failed []error
	for _, res := range s.resolver.ResolveAll(active, latest) {
		updated, err := s.store.UpdateResolution(ctx, res)
		if err != nil {
			failed = append(failed, err)
			continue
		}
		if !updated {
			continue // 已被其他扫描结算
		}
		closed = append(closed, res)

		zap.L().Info("🏁 持仓已结算",
			zap.String("id", res.SignalID),
			zap.String("reason", string(res.Reason)),
			zap.Float64("exit", res.ExitPrice),
			zap.Float64("pnl_percent", res.PnLPercent))

		if err := s.notifier.SendResolution(res); err != nil {
			zap.L().Warn("⚠️ 平仓通知失败", zap.String("id", res.SignalID), zap.Error(err))
		}
	}

	if len(failed) > 0 {
		return closed, fmt.Errorf("更新持仓状态失败 %d 条: %w", len(failed), failed[0])
	}
	return closed, nil
}

// Snapshot 最新一根K线的指标快照
func (s *Scanner) Snapshot(klines []*types.KLine) *types.IndicatorSnapshot {
	return s.indicators.Snapshot(klines, s.volume)
}

// recordFailure 拉取失败也写一条扫描历史
func (s *Scanner) recordFailure(ctx context.Context, scanType types.ScanType, cause error) {
	result := &types.ScanResult{
		ScanType:  scanType,
		Symbol:    s.market.Symbol,
		Timeframe: s.market.Interval,
		Outcome:   types.OutcomeFailed,
		Errors:    []string{cause.Error()},
	}
	if err := s.store.SaveScanHistory(ctx, result.History(s.now())); err != nil {
		zap.L().Error("❌ 保存扫描历史失败", zap.Error(err))
	}
}
