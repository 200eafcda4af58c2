package engine

import (
	"context"
	"testing"
	"time"

	"btc-signal-sentry/internal/storage"
	"btc-signal-sentry/pkg/types"
)

type fakeStream struct {
	ch         chan *types.KLine
	subscribed []string
	closed     bool
}

func (f *fakeStream) Connect() error { return nil }
func (f *fakeStream) Subscribe(symbols []string, interval string) error {
	for _, s := range symbols {
		f.subscribed = append(f.subscribed, s+"@"+interval)
	}
	return nil
}
func (f *fakeStream) StartReading() {}
func (f *fakeStream) GetKlineChannel() <-chan *types.KLine { return f.ch }
func (f *fakeStream) IsConnected() bool { return !f.closed }
func (f *fakeStream) Close() error { f.closed = true; return nil }

type scanCall struct {
	scanType types.ScanType
	count    int
	last     *types.KLine
}

type fakeScanner struct {
	scans    chan scanCall
	resolved chan *types.KLine
}

func (f *fakeScanner) Scan(_ context.Context, klines []*types.KLine, scanType types.ScanType) (*types.ScanResult, error) {
	f.scans <- scanCall{scanType: scanType, count: len(klines), last: klines[len(klines)-1]}
	return &types.ScanResult{SignalsSaved: 1, PositionsClosed: 2}, nil
}

func (f *fakeScanner) ResolvePositions(_ context.Context, latest *types.KLine) ([]*types.Resolution, error) {
	f.resolved <- latest
	return nil, nil
}

type fakeHistory struct {
	klines []*types.KLine
}

func (f *fakeHistory) FetchHistoryKlines(context.Context, string, string, int) ([]*types.KLine, error) {
	return f.klines, nil
}

var base = time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)

func kline(i int, closed bool) *types.KLine {
	open := base.Add(time.Duration(i) * time.Hour)
	return &types.KLine{
		Symbol: "BTCUSDT", Interval: "1h",
		OpenTime: open, CloseTime: open.Add(time.Hour),
		Open: 100, High: 101, Low: 99, Close: 100, Volume: 1,
		Closed: closed,
	}
}

func newTestEngine(t *testing.T) (*LiveEngine, *fakeStream, *fakeScanner) {
	t.Helper()
	history := &fakeHistory{}
	for i := 0; i < 10; i++ {
		history.klines = append(history.klines, kline(i, true))
	}

	stream := &fakeStream{ch: make(chan *types.KLine, 10)}
	scanner := &fakeScanner{scans: make(chan scanCall, 10), resolved: make(chan *types.KLine, 10)}
	state := storage.NewStateManager(types.RedisConfig{}, time.Hour, 500)
	market := types.MarketConfig{Symbol: "BTCUSDT", Interval: "1h", Lookback: 300}

	e := NewLiveEngine(market, stream, scanner, state, history)
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { e.Stop() })
	return e, stream, scanner
}

func TestClosedKlineTriggersScan(t *testing.T) {
	e, stream, scanner := newTestEngine(t)
	if len(stream.subscribed) != 1 || stream.subscribed[0] != "BTCUSDT@1h" {
		t.Fatalf("subscribed = %v", stream.subscribed)
	}

	// 预热数据里的最后一根收盘K线重复推送，不应触发扫描
	stream.ch <- kline(9, true)
	stream.ch <- kline(10, true)

	select {
	case call := <-scanner.scans:
		if call.scanType != types.ScanLive || call.count != 11 || !call.last.OpenTime.Equal(kline(10, true).OpenTime) {
			t.Fatalf("scan call = %+v", call)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scan not triggered")
	}

	select {
	case call := <-scanner.scans:
		t.Fatalf("unexpected second scan %+v", call)
	case <-time.After(100 * time.Millisecond):
	}

	stats := e.GetStats()
	if stats.ProcessedKlines != 2 || stats.ClosedKlines != 2 || stats.LiveScans != 1 || stats.SavedSignals != 1 || stats.ClosedPositions != 2 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestFormingKlineResolvesPositions(t *testing.T) {
	_, stream, scanner := newTestEngine(t)

	stream.ch <- kline(10, false)
	select {
	case latest := <-scanner.resolved:
		if latest.Closed || !latest.OpenTime.Equal(kline(10, false).OpenTime) {
			t.Fatalf("resolved with %+v", latest)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("positions not resolved")
	}

	// 间隔内的后续推送被节流
	stream.ch <- kline(10, false)
	select {
	case <-scanner.resolved:
		t.Fatal("resolution should be throttled")
	case <-scanner.scans:
		t.Fatal("forming kline must not trigger a scan")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestIgnoresOtherMarkets(t *testing.T) {
	e, stream, _ := newTestEngine(t)

	other := kline(10, true)
	other.Symbol = "ETHUSDT"
	stream.ch <- other

	time.Sleep(100 * time.Millisecond)
	if stats := e.GetStats(); stats.ProcessedKlines != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}
