package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"btc-signal-sentry/internal/strategy/dedup"
	"btc-signal-sentry/pkg/types"
)

// MemoryStore 未启用MySQL时使用的内存存储，进程重启后数据丢失
type MemoryStore struct {
	mutex       sync.RWMutex
	signals     []*types.Signal
	scans       []*types.ScanHistory
	klines      map[string]map[int64]*types.KLine
	performance map[string]*StrategyPerformance
	nextScanID  uint
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		klines:      make(map[string]map[int64]*types.KLine),
		performance: make(map[string]*StrategyPerformance),
	}
}

func cloneSignal(s *types.Signal) *types.Signal {
	c := *s
	c.AlignedStrategies = append([]types.StrategyType(nil), s.AlignedStrategies...)
	return &c
}

// InsertIfNotDuplicate 持有写锁完成判重与插入
func (ms *MemoryStore) InsertIfNotDuplicate(_ context.Context, signal *types.Signal, guard *dedup.Guard) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if guard.IsDuplicate(signal, ms.signals) {
		return dedup.ErrDuplicate
	}
	ms.signals = append(ms.signals, cloneSignal(signal))
	return nil
}

func (ms *MemoryStore) filter(match func(*types.Signal) bool) []*types.Signal {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	var out []*types.Signal
	for _, s := range ms.signals {
		if match(s) {
			out = append(out, cloneSignal(s))
		}
	}
	return out
}

func (ms *MemoryStore) ActiveSignals(_ context.Context, symbol string) ([]*types.Signal, error) {
	return ms.filter(func(s *types.Signal) bool {
		return s.Symbol == symbol && s.Status == types.SignalActive
	}), nil
}

func (ms *MemoryStore) RecentSignals(_ context.Context, symbol string, since time.Time) ([]*types.Signal, error) {
	out := ms.filter(func(s *types.Signal) bool {
		return s.Symbol == symbol && s.DetectedAt.After(since)
	})
	sortNewestFirst(out)
	return out, nil
}

func (ms *MemoryStore) ListSignals(_ context.Context, symbol string, limit int) ([]*types.Signal, error) {
	out := ms.filter(func(s *types.Signal) bool { return s.Symbol == symbol })
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortNewestFirst(signals []*types.Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].DetectedAt.After(signals[j].DetectedAt)
	})
}

func (ms *MemoryStore) UpdateResolution(_ context.Context, res *types.Resolution) (bool, error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	for _, s := range ms.signals {
		if s.ID != res.SignalID || s.Status != types.SignalActive {
			continue
		}
		closedAt := res.ClosedAt
		price := res.ExitPrice
		pnl := res.PnLPercent
		s.Status = res.Reason.Status()
		s.ClosedAt = &closedAt
		s.ClosePrice = &price
		s.PnLPercent = &pnl
		if s.Status == types.SignalTriggered {
			s.TriggeredAt = &closedAt
		}
		return true, nil
	}
	return false, nil
}

func (ms *MemoryStore) SignalStats(_ context.Context, symbol string) (*types.SignalStats, error) {
	return ComputeStats(ms.filter(func(s *types.Signal) bool { return s.Symbol == symbol })), nil
}

func (ms *MemoryStore) UpdateStrategyPerformance(_ context.Context, signal *types.Signal) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	day := signal.DetectedAt.UTC().Truncate(24 * time.Hour)
	key := signal.Symbol + "|" + string(signal.Strategy) + "|" + day.Format("2006-01-02")
	confidence := decimal.NewFromInt(int64(signal.Confidence))

	p, ok := ms.performance[key]
	if !ok {
		p = &StrategyPerformance{
			Symbol:        signal.Symbol,
			Strategy:      string(signal.Strategy),
			Date:          day,
			AvgConfidence: decimal.Zero,
			CreatedAt:     time.Now(),
		}
		ms.performance[key] = p
	}

	total := decimal.NewFromInt(int64(p.TotalSignals))
	p.AvgConfidence = p.AvgConfidence.Mul(total).Add(confidence).Div(total.Add(decimal.NewFromInt(1))).Round(2)
	p.TotalSignals++
	if signal.Direction == types.DirectionLong {
		p.LongSignals++
	} else {
		p.ShortSignals++
	}
	p.UpdatedAt = time.Now()
	return nil
}

func (ms *MemoryStore) GetStrategyPerformance(_ context.Context, symbol string, days int) ([]StrategyPerformance, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	start := time.Now().UTC().AddDate(0, 0, -days).Truncate(24 * time.Hour)
	var out []StrategyPerformance
	for _, p := range ms.performance {
		if p.Symbol == symbol && !p.Date.Before(start) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].Strategy < out[j].Strategy
		}
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

func (ms *MemoryStore) SaveScanHistory(_ context.Context, h *types.ScanHistory) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.nextScanID++
	h.ID = ms.nextScanID
	c := *h
	ms.scans = append(ms.scans, &c)
	return nil
}

func (ms *MemoryStore) ScanHistory(_ context.Context, limit int) ([]*types.ScanHistory, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	out := make([]*types.ScanHistory, 0, len(ms.scans))
	for i := len(ms.scans) - 1; i >= 0; i-- {
		c := *ms.scans[i]
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (ms *MemoryStore) BatchSaveKlines(_ context.Context, klines []*types.KLine) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	for _, k := range klines {
		key := k.Symbol + "|" + k.Interval
		if ms.klines[key] == nil {
			ms.klines[key] = make(map[int64]*types.KLine)
		}
		c := *k
		ms.klines[key][k.TimeMillis()] = &c
	}
	return nil
}

func (ms *MemoryStore) GetKLines(_ context.Context, symbol, interval string, limit int) ([]*types.KLine, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	series := ms.klines[symbol+"|"+interval]
	out := make([]*types.KLine, 0, len(series))
	for _, k := range series {
		c := *k
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (ms *MemoryStore) Health() error {
	return nil
}

func (ms *MemoryStore) Close() error {
	return nil
}
