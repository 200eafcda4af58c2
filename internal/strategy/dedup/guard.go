package dedup

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"btc-signal-sentry/pkg/types"
)

// ErrDuplicate 信号与窗口内已有记录重复，属于抑制结果而非失败
var ErrDuplicate = errors.New("重复信号")

// Guard 时间窗口 + 价格容差的重复信号判定
type Guard struct {
	window    time.Duration
	tolerance float64
}

// NewGuard 创建去重器，tolerance 为相对价差（0.01 即 1%）
func NewGuard(window time.Duration, tolerance float64) *Guard {
	return &Guard{
		window:    window,
		tolerance: tolerance,
	}
}

// Window 去重时间窗口
func (g *Guard) Window() time.Duration {
	return g.window
}

// Since 查询近期记录的起始时间
func (g *Guard) Since(now time.Time) time.Time {
	return now.Add(-g.window)
}

// Matches 两个信号是否构成重复：同交易对同策略同方向，窗口内且价差小于容差
func (g *Guard) Matches(existing, candidate *types.Signal) bool {
	if existing.Symbol != candidate.Symbol {
		return false
	}
	if existing.Strategy != candidate.Strategy || existing.Direction != candidate.Direction {
		return false
	}
	if candidate.DetectedAt.Sub(existing.DetectedAt) >= g.window {
		return false
	}
	if candidate.EntryPrice == 0 {
		return existing.EntryPrice == 0
	}
	return math.Abs(existing.EntryPrice-candidate.EntryPrice)/candidate.EntryPrice < g.tolerance
}

// IsDuplicate 候选是否与任一近期记录重复
func (g *Guard) IsDuplicate(candidate *types.Signal, recent []*types.Signal) bool {
	for _, existing := range recent {
		if g.Matches(existing, candidate) {
			return true
		}
	}
	return false
}

// Filter 拆分为新信号与重复信号，同批次内先到者优先
func (g *Guard) Filter(candidates, recent []*types.Signal) (fresh, duplicates []*types.Signal) {
	seen := append([]*types.Signal{}, recent...)
	for _, c := range candidates {
		if g.IsDuplicate(c, seen) {
			duplicates = append(duplicates, c)
			continue
		}
		fresh = append(fresh, c)
		seen = append(seen, c)
	}
	return fresh, duplicates
}

// Key 幂等键：策略|方向|按 places 位小数四舍五入的入场价
func Key(strategy types.StrategyType, direction types.Direction, entry float64, places int32) string {
	price := decimal.NewFromFloat(entry).Round(places)
	return fmt.Sprintf("%s|%s|%s", strategy, direction, price.StringFixed(places))
}

// SignalKey 信号的幂等键
func SignalKey(s *types.Signal, places int32) string {
	return Key(s.Strategy, s.Direction, s.EntryPrice, places)
}
