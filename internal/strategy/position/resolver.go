package position

import (
	"time"

	"btc-signal-sentry/pkg/types"
)

// Levels 持仓的价格水平
type Levels struct {
	Direction  types.Direction
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
}

// Exit 单根K线上的平仓判定结果
type Exit struct {
	Reason     types.ExitReason
	Price      float64
	PnLPercent float64
}

// Check 按 止损 → 止盈 → 超时 的优先级判定是否平仓
// 同一根K线同时触及止损和止盈时无法区分先后，按止损处理
func Check(p Levels, bar *types.KLine, barsHeld, maxHolding int) (Exit, bool) {
	var exit Exit

	switch {
	case stopHit(p, bar):
		exit = Exit{Reason: types.ExitStopLoss, Price: p.StopLoss}
	case targetHit(p, bar):
		exit = Exit{Reason: types.ExitTakeProfit, Price: p.TakeProfit}
	case maxHolding > 0 && barsHeld >= maxHolding:
		exit = Exit{Reason: types.ExitTimeout, Price: bar.Close}
	default:
		return Exit{}, false
	}

	exit.PnLPercent = PnLPercent(p.Direction, p.EntryPrice, exit.Price)
	return exit, true
}

func stopHit(p Levels, bar *types.KLine) bool {
	if p.Direction == types.DirectionLong {
		return bar.Low <= p.StopLoss
	}
	return bar.High >= p.StopLoss
}

func targetHit(p Levels, bar *types.KLine) bool {
	if p.Direction == types.DirectionLong {
		return bar.High >= p.TakeProfit
	}
	return bar.Low <= p.TakeProfit
}

// PnLPercent 按方向计算的收益百分比
func PnLPercent(direction types.Direction, entry, exit float64) float64 {
	if entry == 0 {
		return 0
	}
	if direction == types.DirectionLong {
		return (exit - entry) * 100 / entry
	}
	return (entry - exit) * 100 / entry
}

// Resolver 实盘持仓结算器
type Resolver struct {
	maxHolding int
	interval   time.Duration
}

// NewResolver 创建结算器，interval 为K线周期
func NewResolver(maxHolding int, interval time.Duration) *Resolver {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Resolver{
		maxHolding: maxHolding,
		interval:   interval,
	}
}

// BarsHeld 信号产生后经过的完整K线数
func (r *Resolver) BarsHeld(signal *types.Signal, latest *types.KLine) int {
	elapsed := latest.OpenTime.Sub(signal.DetectedAt)
	if elapsed <= 0 {
		return 0
	}
	return int(elapsed / r.interval)
}

// Resolve 用最新K线结算单个活跃信号，未平仓返回nil
func (r *Resolver) Resolve(signal *types.Signal, latest *types.KLine) *types.Resolution {
	if signal == nil || latest == nil || signal.Status != types.SignalActive {
		return nil
	}
	// 信号所在K线及更早的K线不参与结算
	if latest.OpenTime.Before(signal.DetectedAt) {
		return nil
	}

	levels := Levels{
		Direction:  signal.Direction,
		EntryPrice: signal.EntryPrice,
		StopLoss:   signal.StopLoss,
		TakeProfit: signal.TakeProfit,
	}
	barsHeld := r.BarsHeld(signal, latest)
	exit, ok := Check(levels, latest, barsHeld, r.maxHolding)
	if !ok {
		return nil
	}

	closedAt := latest.CloseTime
	if closedAt.IsZero() {
		closedAt = latest.OpenTime.Add(r.interval)
	}

	return &types.Resolution{
		SignalID:   signal.ID,
		Strategy:   signal.Strategy,
		Direction:  signal.Direction,
		Reason:     exit.Reason,
		EntryPrice: signal.EntryPrice,
		ExitPrice:  exit.Price,
		PnLPercent: exit.PnLPercent,
		BarsHeld:   barsHeld,
		ClosedAt:   closedAt,
	}
}

// ResolveAll 批量结算
func (r *Resolver) ResolveAll(signals []*types.Signal, latest *types.KLine) []*types.Resolution {
	var resolutions []*types.Resolution
	for _, s := range signals {
		if res := r.Resolve(s, latest); res != nil {
			resolutions = append(resolutions, res)
		}
	}
	return resolutions
}

// Apply 把结算结果写回信号，已是终态的信号保持不变
func Apply(signal *types.Signal, res *types.Resolution) bool {
	if signal.Status != types.SignalActive || res.SignalID != signal.ID {
		return false
	}

	closedAt := res.ClosedAt
	price := res.ExitPrice
	pnl := res.PnLPercent

	signal.Status = res.Reason.Status()
	signal.ClosedAt = &closedAt
	signal.ClosePrice = &price
	signal.PnLPercent = &pnl
	if signal.Status == types.SignalTriggered {
		signal.TriggeredAt = &closedAt
	}
	return true
}
