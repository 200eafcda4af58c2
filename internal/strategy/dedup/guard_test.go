package dedup

import (
	"testing"
	"time"

	"btc-signal-sentry/pkg/types"
)

var now = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func signal(strategy types.StrategyType, direction types.Direction, entry float64, at time.Time) *types.Signal {
	return &types.Signal{Symbol: "BTCUSDT", Strategy: strategy, Direction: direction, EntryPrice: entry, DetectedAt: at}
}

func otherSymbol(s *types.Signal) *types.Signal {
	s.Symbol = "ETHUSDT"
	return s
}

func TestGuardTolerance(t *testing.T) {
	g := NewGuard(time.Hour, 0.01)
	existing := signal(types.StrategyEMABounce, types.DirectionLong, 100, now.Add(-10*time.Minute))

	tests := []struct {
		name      string
		candidate *types.Signal
		want      bool
	}{
		{"0.5% apart", signal(types.StrategyEMABounce, types.DirectionLong, 100.5, now), true},
		{"2% apart", signal(types.StrategyEMABounce, types.DirectionLong, 102, now), false},
		{"other direction", signal(types.StrategyEMABounce, types.DirectionShort, 100, now), false},
		{"other strategy", signal(types.StrategyMACDCross, types.DirectionLong, 100, now), false},
		{"outside window", signal(types.StrategyEMABounce, types.DirectionLong, 100, now.Add(time.Hour)), false},
		{"same price", signal(types.StrategyEMABounce, types.DirectionLong, 100, now), true},
		{"other symbol", otherSymbol(signal(types.StrategyEMABounce, types.DirectionLong, 100, now)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.IsDuplicate(tt.candidate, []*types.Signal{existing}); got != tt.want {
				t.Fatalf("IsDuplicate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGuardFilterWithinBatch(t *testing.T) {
	g := NewGuard(time.Hour, 0.01)
	recent := []*types.Signal{
		signal(types.StrategyRSIReversal, types.DirectionLong, 200, now.Add(-30*time.Minute)),
	}
	candidates := []*types.Signal{
		signal(types.StrategyRSIReversal, types.DirectionLong, 200.4, now),
		signal(types.StrategyEMABounce, types.DirectionLong, 200, now),
		signal(types.StrategyEMABounce, types.DirectionLong, 200.2, now),
	}

	fresh, dups := g.Filter(candidates, recent)
	if len(fresh) != 1 || fresh[0] != candidates[1] {
		t.Fatalf("fresh = %d", len(fresh))
	}
	if len(dups) != 2 {
		t.Fatalf("duplicates = %d, want 2", len(dups))
	}
}

func TestGuardSince(t *testing.T) {
	g := NewGuard(2*time.Hour, 0.01)
	if got := g.Since(now); !got.Equal(now.Add(-2 * time.Hour)) {
		t.Fatalf("since = %v", got)
	}
	if g.Window() != 2*time.Hour {
		t.Fatalf("window = %v", g.Window())
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		entry  float64
		places int32
		want   string
	}{
		{42123.456, 0, "ema_bounce|long|42123"},
		{42123.5, 0, "ema_bounce|long|42124"},
		{42123.456, 2, "ema_bounce|long|42123.46"},
	}
	for _, tt := range tests {
		if got := Key(types.StrategyEMABounce, types.DirectionLong, tt.entry, tt.places); got != tt.want {
			t.Errorf("Key(%v, %d) = %q, want %q", tt.entry, tt.places, got, tt.want)
		}
	}

	s := signal(types.StrategyMACDCross, types.DirectionShort, 100.2, now)
	if got := SignalKey(s, 0); got != "macd_cross|short|100" {
		t.Errorf("SignalKey = %q", got)
	}
}
