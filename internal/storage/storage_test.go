package storage

import (
	"context"
	"testing"
	"time"

	"btc-signal-sentry/pkg/types"
)

var base = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

func kline(hour int, close float64, closed bool) *types.KLine {
	return &types.KLine{
		Symbol:   "BTCUSDT",
		Interval: "1h",
		OpenTime: base.Add(time.Duration(hour) * time.Hour),
		Close:    close,
		Closed:   closed,
	}
}

func TestKLineWindowOrderingAndBound(t *testing.T) {
	w := NewKLineWindow(3)
	w.Add(kline(0, 1, true))
	w.Add(kline(2, 3, true))
	w.Add(kline(1, 2, true))
	w.Add(kline(2, 30, false))

	got := w.Latest(0)
	if len(got) != 3 {
		t.Fatalf("length = %d, want 3", len(got))
	}
	for i, want := range []float64{1, 2, 30} {
		if got[i].Close != want {
			t.Fatalf("close[%d] = %v, want %v", i, got[i].Close, want)
		}
	}
	if len(w.Closed()) != 2 {
		t.Fatalf("closed = %d, want 2", len(w.Closed()))
	}

	w.Add(kline(3, 4, true))
	got = w.Latest(2)
	if len(got) != 2 || got[0].Close != 30 || got[1].Close != 4 {
		t.Fatalf("latest(2) = %v, %v", got[0].Close, got[1].Close)
	}
	if w.Length() != 3 {
		t.Fatalf("length after overflow = %d", w.Length())
	}
}

func TestClaimMemoryMode(t *testing.T) {
	sm := NewStateManager(types.RedisConfig{}, time.Hour, 10)
	now := base
	sm.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := sm.Claim(ctx, "ema_bounce|long|100", now)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, _ = sm.Claim(ctx, "ema_bounce|long|100", now)
	if ok {
		t.Fatal("second claim should be rejected")
	}

	sm.Release(ctx, "ema_bounce|long|100")
	ok, _ = sm.Claim(ctx, "ema_bounce|long|100", now)
	if !ok {
		t.Fatal("claim after release should succeed")
	}

	now = now.Add(time.Hour)
	ok, _ = sm.Claim(ctx, "ema_bounce|long|100", now)
	if !ok {
		t.Fatal("claim after ttl should succeed")
	}
}

func TestClaimFollowsDetectionTime(t *testing.T) {
	sm := NewStateManager(types.RedisConfig{}, time.Hour, 10)
	sm.now = func() time.Time { return base }
	ctx := context.Background()
	key := "ema_bounce|long|1110.00"

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"first detection", base, true},
		{"inside window", base.Add(59 * time.Minute), false},
		{"ninety minutes later", base.Add(90 * time.Minute), true},
		{"inside window of the newer claim", base.Add(2 * time.Hour), false},
		{"exactly one window later", base.Add(150 * time.Minute), true},
	}
	for _, tc := range cases {
		ok, err := sm.Claim(ctx, key, tc.at)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if ok != tc.want {
			t.Fatalf("%s: claimed = %v, want %v", tc.name, ok, tc.want)
		}
	}
}

func TestEvict(t *testing.T) {
	sm := NewStateManager(types.RedisConfig{}, time.Minute, 10)
	now := base
	sm.now = func() time.Time { return now }
	ctx := context.Background()

	sm.Claim(ctx, "a", now)
	sm.Claim(ctx, "b", now)
	now = now.Add(2 * time.Minute)
	sm.Claim(ctx, "c", now)

	if got := sm.Evict(); got != 2 {
		t.Fatalf("evicted = %d, want 2", got)
	}
	if stats := sm.GetRedisStats(); stats["memory_claims"] != 1 {
		t.Fatalf("stats = %v", stats)
	}
}

func TestStoreAndLatestKLines(t *testing.T) {
	sm := NewStateManager(types.RedisConfig{}, time.Hour, 5)
	var klines []*types.KLine
	for i := 0; i < 8; i++ {
		klines = append(klines, kline(i, float64(i), true))
	}
	sm.StoreKLines(klines)

	got := sm.LatestKLines(context.Background(), "BTCUSDT", "1h", 0)
	if len(got) != 5 || got[0].Close != 3 || got[4].Close != 7 {
		t.Fatalf("unexpected window %d", len(got))
	}
	if other := sm.LatestKLines(context.Background(), "ETHUSDT", "1h", 0); len(other) != 0 {
		t.Fatalf("other symbol = %d", len(other))
	}
	if err := sm.Close(); err != nil {
		t.Fatal(err)
	}
}
