package database

import (
	"context"
	"testing"
	"time"

	"btc-signal-sentry/internal/strategy/dedup"
	"btc-signal-sentry/pkg/types"
)

var (
	_ Store = (*Manager)(nil)
	_ Store = (*MemoryStore)(nil)
)

var t0 = time.Date(2024, 8, 1, 9, 0, 0, 0, time.UTC)

func newSignal(id string, entry float64, at time.Time) *types.Signal {
	return &types.Signal{
		ID:              id,
		Symbol:          "BTCUSDT",
		Strategy:        types.StrategyEMABounce,
		Direction:       types.DirectionLong,
		Confidence:      types.ConfidenceStrongConfluence,
		EntryPrice:      entry,
		StopLoss:        entry * 0.96,
		TakeProfit:      entry * 1.08,
		RiskReward:      2,
		Status:          types.SignalActive,
		ConfluenceLevel: types.ConfluenceStrong,
		DetectedAt:      at,
	}
}

func TestMemoryInsertIfNotDuplicate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	guard := dedup.NewGuard(time.Hour, 0.01)

	if err := store.InsertIfNotDuplicate(ctx, newSignal("a", 100, t0), guard); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := store.InsertIfNotDuplicate(ctx, newSignal("b", 100.5, t0.Add(10*time.Minute)), guard); err != dedup.ErrDuplicate {
		t.Fatalf("0.5%% apart: err = %v, want ErrDuplicate", err)
	}
	if err := store.InsertIfNotDuplicate(ctx, newSignal("c", 102, t0.Add(20*time.Minute)), guard); err != nil {
		t.Fatalf("2%% apart: %v", err)
	}
	if err := store.InsertIfNotDuplicate(ctx, newSignal("d", 100, t0.Add(2*time.Hour)), guard); err != nil {
		t.Fatalf("after window: %v", err)
	}

	all, _ := store.ListSignals(ctx, "BTCUSDT", 0)
	if len(all) != 3 || all[0].ID != "d" {
		t.Fatalf("signals = %d", len(all))
	}
	recent, _ := store.RecentSignals(ctx, "BTCUSDT", t0.Add(time.Hour))
	if len(recent) != 1 || recent[0].ID != "d" {
		t.Fatalf("recent = %d", len(recent))
	}
}

func TestMemoryInsertOtherSymbol(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	guard := dedup.NewGuard(time.Hour, 0.01)

	if err := store.InsertIfNotDuplicate(ctx, newSignal("btc", 100, t0), guard); err != nil {
		t.Fatalf("btc insert: %v", err)
	}
	eth := newSignal("eth", 100, t0.Add(5*time.Minute))
	eth.Symbol = "ETHUSDT"
	if err := store.InsertIfNotDuplicate(ctx, eth, guard); err != nil {
		t.Fatalf("eth insert at the same price: %v", err)
	}

	listed, _ := store.ListSignals(ctx, "ETHUSDT", 0)
	if len(listed) != 1 || listed[0].ID != "eth" {
		t.Fatalf("eth signals = %d", len(listed))
	}
}

func TestMemoryUpdateResolutionOnlyOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.InsertIfNotDuplicate(ctx, newSignal("a", 100, t0), dedup.NewGuard(time.Hour, 0.01))

	res := &types.Resolution{SignalID: "a", Reason: types.ExitTakeProfit, ExitPrice: 108, PnLPercent: 8, ClosedAt: t0.Add(5 * time.Hour)}
	updated, err := store.UpdateResolution(ctx, res)
	if err != nil || !updated {
		t.Fatalf("updated=%v err=%v", updated, err)
	}

	again := &types.Resolution{SignalID: "a", Reason: types.ExitStopLoss, ExitPrice: 96, PnLPercent: -4, ClosedAt: t0.Add(6 * time.Hour)}
	if updated, _ := store.UpdateResolution(ctx, again); updated {
		t.Fatal("closed signal was updated twice")
	}

	active, _ := store.ActiveSignals(ctx, "BTCUSDT")
	if len(active) != 0 {
		t.Fatalf("active = %d", len(active))
	}
	all, _ := store.ListSignals(ctx, "BTCUSDT", 1)
	s := all[0]
	if s.Status != types.SignalTriggered || *s.ClosePrice != 108 || s.TriggeredAt == nil {
		t.Fatalf("unexpected signal %+v", s)
	}
}

func TestComputeStats(t *testing.T) {
	win := newSignal("w", 100, t0)
	win.Status = types.SignalTriggered
	pnlWin := 8.0
	win.PnLPercent = &pnlWin

	loss := newSignal("l", 100, t0)
	loss.Status = types.SignalTriggered
	pnlLoss := -4.0
	loss.PnLPercent = &pnlLoss

	expired := newSignal("e", 100, t0)
	expired.Status = types.SignalExpired
	expired.Confidence = types.ConfidenceFullConfluence
	expired.ConfluenceLevel = types.ConfluenceFull
	pnlFlat := 0.0
	expired.PnLPercent = &pnlFlat

	active := newSignal("a", 100, t0)
	active.Confidence = types.ConfidenceHigh
	active.ConfluenceLevel = types.ConfluenceNone

	stats := ComputeStats([]*types.Signal{win, loss, expired, active})
	if stats.Total != 4 || stats.Active != 1 || stats.Triggered != 2 || stats.Expired != 1 {
		t.Fatalf("status counts %+v", stats)
	}
	if stats.Wins != 1 || stats.Losses != 2 {
		t.Fatalf("wins=%d losses=%d", stats.Wins, stats.Losses)
	}
	if stats.AvgPnLPercent != 4.0/3 {
		t.Fatalf("avg pnl = %v", stats.AvgPnLPercent)
	}
	if stats.StrongConfluence != 2 || stats.FullConfluence != 1 || stats.HighConfidence != 4 {
		t.Fatalf("confluence %+v", stats)
	}
}

func TestMemoryScanHistoryAndPerformance(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < 3; i++ {
		h := &types.ScanHistory{ScanType: types.ScanCron, SignalsDetected: i, Status: "success", CreatedAt: t0}
		if err := store.SaveScanHistory(ctx, h); err != nil {
			t.Fatal(err)
		}
		if h.ID != uint(i+1) {
			t.Fatalf("id = %d", h.ID)
		}
	}
	history, _ := store.ScanHistory(ctx, 2)
	if len(history) != 2 || history[0].SignalsDetected != 2 {
		t.Fatalf("history = %+v", history)
	}

	now := time.Now().UTC()
	long := newSignal("p1", 100, now)
	short := newSignal("p2", 100, now)
	short.Direction = types.DirectionShort
	short.Confidence = types.ConfidenceFullConfluence
	store.UpdateStrategyPerformance(ctx, long)
	store.UpdateStrategyPerformance(ctx, short)

	perf, _ := store.GetStrategyPerformance(ctx, "BTCUSDT", 1)
	if len(perf) != 1 {
		t.Fatalf("performance rows = %d", len(perf))
	}
	p := perf[0]
	if p.TotalSignals != 2 || p.LongSignals != 1 || p.ShortSignals != 1 || p.AvgConfidence.String() != "90" {
		t.Fatalf("performance %+v avg=%s", p, p.AvgConfidence)
	}
}

func TestMemoryKLines(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	var klines []*types.KLine
	for i := 0; i < 5; i++ {
		klines = append(klines, &types.KLine{Symbol: "BTCUSDT", Interval: "1h", OpenTime: t0.Add(time.Duration(i) * time.Hour), Close: float64(i)})
	}
	store.BatchSaveKlines(ctx, klines[2:])
	store.BatchSaveKlines(ctx, klines[:3])

	got, _ := store.GetKLines(ctx, "BTCUSDT", "1h", 3)
	if len(got) != 3 || got[0].Close != 2 || got[2].Close != 4 {
		t.Fatalf("klines = %d", len(got))
	}
}
