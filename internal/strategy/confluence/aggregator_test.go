package confluence

import (
	"math"
	"strings"
	"testing"
	"time"

	"btc-signal-sentry/pkg/types"
)

func candidate(s types.StrategyType, d types.Direction) *types.StrategyCandidate {
	return &types.StrategyCandidate{Strategy: s, Direction: d, Reason: "reason for " + string(s)}
}

func newTestAggregator() *Aggregator {
	return NewAggregator(Config{
		MinAgree:          3,
		StopLossPercent:   4,
		TakeProfitPercent: 8,
		Symbol:            "BTCUSDT",
		Timeframe:         "1h",
	})
}

var detectedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestAggregateThreshold(t *testing.T) {
	long := types.DirectionLong
	short := types.DirectionShort

	tests := []struct {
		name       string
		candidates []*types.StrategyCandidate
		want       int
		confidence int
	}{
		{"none", nil, 0, 0},
		{"two aligned", []*types.StrategyCandidate{
			candidate(types.StrategyEMABounce, long),
			candidate(types.StrategyRSIReversal, long),
		}, 0, 0},
		{"two long one short", []*types.StrategyCandidate{
			candidate(types.StrategyEMABounce, long),
			candidate(types.StrategyMACDCross, short),
			candidate(types.StrategyRSIReversal, long),
		}, 0, 0},
		{"three aligned", []*types.StrategyCandidate{
			candidate(types.StrategyEMABounce, long),
			candidate(types.StrategyMACDCross, long),
			candidate(types.StrategyRSIReversal, long),
		}, 1, types.ConfidenceStrongConfluence},
		{"four aligned", []*types.StrategyCandidate{
			candidate(types.StrategyEMABounce, long),
			candidate(types.StrategyMACDCross, long),
			candidate(types.StrategyRSIReversal, long),
			candidate(types.StrategyBollinger, long),
		}, 1, types.ConfidenceFullConfluence},
		{"repeated strategy counts once", []*types.StrategyCandidate{
			candidate(types.StrategyEMABounce, long),
			candidate(types.StrategyEMABounce, long),
			candidate(types.StrategyRSIReversal, long),
		}, 0, 0},
	}

	a := newTestAggregator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Aggregate(tt.candidates, 100, detectedAt)
			if len(got) != tt.want {
				t.Fatalf("signals = %d, want %d", len(got), tt.want)
			}
			if tt.want == 1 && got[0].Confidence != tt.confidence {
				t.Fatalf("confidence = %d, want %d", got[0].Confidence, tt.confidence)
			}
		})
	}
}

func TestAggregateSignalFields(t *testing.T) {
	a := newTestAggregator()
	candidates := []*types.StrategyCandidate{
		candidate(types.StrategyMACDCross, types.DirectionLong),
		candidate(types.StrategyRSIReversal, types.DirectionLong),
		candidate(types.StrategyBollinger, types.DirectionLong),
	}

	got := a.Aggregate(candidates, 100, detectedAt)
	if len(got) != 1 {
		t.Fatalf("signals = %d, want 1", len(got))
	}
	s := got[0]

	if s.Strategy != types.StrategyMACDCross {
		t.Errorf("primary strategy = %s, want macd_cross", s.Strategy)
	}
	if s.ID == "" || s.Status != types.SignalActive {
		t.Errorf("id=%q status=%s", s.ID, s.Status)
	}
	if math.Abs(s.StopLoss-96) > 1e-9 || math.Abs(s.TakeProfit-108) > 1e-9 {
		t.Errorf("sl/tp = %v/%v, want 96/108", s.StopLoss, s.TakeProfit)
	}
	if s.RiskReward != 2 {
		t.Errorf("risk reward = %v, want 2", s.RiskReward)
	}
	if s.ConfluenceLevel != types.ConfluenceStrong || len(s.AlignedStrategies) != 3 {
		t.Errorf("level=%s aligned=%v", s.ConfluenceLevel, s.AlignedStrategies)
	}
	if !s.DetectedAt.Equal(detectedAt) || s.Symbol != "BTCUSDT" || s.Timeframe != "1h" {
		t.Errorf("unexpected metadata %+v", s)
	}

	lines := strings.Split(s.Rationale, "\n")
	if len(lines) != 4 {
		t.Fatalf("rationale lines = %d, want 4: %q", len(lines), s.Rationale)
	}
	if lines[0] != "🔥 STRONG CONFLUENCE (3/4 strategies aligned LONG)" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "• MACD Cross: reason for macd_cross" {
		t.Errorf("first reason = %q", lines[1])
	}
}

func TestAggregateLowMinAgreeNeedsThree(t *testing.T) {
	a := NewAggregator(Config{MinAgree: 1, StopLossPercent: 4, TakeProfitPercent: 8})

	single := []*types.StrategyCandidate{candidate(types.StrategyEMABounce, types.DirectionShort)}
	if got := a.Aggregate(single, 200, detectedAt); len(got) != 0 {
		t.Fatalf("signals = %d, want 0 for a single candidate", len(got))
	}

	pair := []*types.StrategyCandidate{
		candidate(types.StrategyMACDCross, types.DirectionLong),
		candidate(types.StrategyRSIReversal, types.DirectionLong),
	}
	if got := a.Aggregate(pair, 200, detectedAt); len(got) != 0 {
		t.Fatalf("signals = %d, want 0 for two aligned candidates", len(got))
	}
}

func TestLevelsStraddleEntry(t *testing.T) {
	for _, entry := range []float64{0.5, 100, 42000.12} {
		sl, tp := Levels(types.DirectionLong, entry, 4, 8)
		if !(sl < entry && entry < tp) {
			t.Errorf("long entry %v: sl=%v tp=%v", entry, sl, tp)
		}
		sl, tp = Levels(types.DirectionShort, entry, 4, 8)
		if !(tp < entry && entry < sl) {
			t.Errorf("short entry %v: sl=%v tp=%v", entry, sl, tp)
		}
		rr := math.Abs(tp-entry) / math.Abs(entry-sl)
		if math.Abs(rr-2) > 1e-9 {
			t.Errorf("entry %v: risk reward = %v, want 2", entry, rr)
		}
	}
}
