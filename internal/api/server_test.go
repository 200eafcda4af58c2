package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"btc-signal-sentry/internal/strategy/database"
	"btc-signal-sentry/internal/strategy/dedup"
	"btc-signal-sentry/pkg/types"
)

type fakeScanner struct {
	runs     int
	snapshot []*types.KLine
	err      error
}

func (f *fakeScanner) Run(_ context.Context, scanType types.ScanType) (*types.ScanResult, error) {
	f.runs++
	if f.err != nil {
		return nil, f.err
	}
	return &types.ScanResult{ScanType: scanType, Outcome: types.OutcomeNoCandidates}, nil
}

func (f *fakeScanner) Snapshot(klines []*types.KLine) *types.IndicatorSnapshot {
	f.snapshot = klines
	last := klines[len(klines)-1]
	return &types.IndicatorSnapshot{Symbol: last.Symbol, Close: last.Close, EMA: map[int]float64{}}
}

type fakeHistory struct {
	requested int
}

func (f *fakeHistory) FetchHistory(_ context.Context, symbol, interval string, total int) ([]*types.KLine, error) {
	f.requested = total
	return series(total), nil
}

type fakeNotifier struct {
	tests int
	err   error
}

func (f *fakeNotifier) SendSignal(*types.Signal) error { return nil }
func (f *fakeNotifier) SendResolution(*types.Resolution) error { return nil }
func (f *fakeNotifier) SendStatus(*types.SignalStats) error { return nil }
func (f *fakeNotifier) SendTest() error {
	f.tests++
	return f.err
}

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func series(n int) []*types.KLine {
	out := make([]*types.KLine, n)
	for i := range out {
		c := 100 + 10*math.Sin(2*math.Pi*float64(i)/40)
		open := start.Add(time.Duration(i) * time.Hour)
		out[i] = &types.KLine{
			Symbol: "BTCUSDT", Interval: "1h",
			OpenTime: open, CloseTime: open.Add(time.Hour),
			Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 10,
			Closed: true,
		}
	}
	return out
}

func testConfig() *types.Config {
	return &types.Config{
		API:    types.APIConfig{Mode: "test"},
		Market: types.MarketConfig{Symbol: "BTCUSDT", Interval: "1h", Lookback: 250},
		Strategy: types.StrategyConfig{
			Indicators: types.IndicatorConfig{
				EMAPeriods: []int{8, 13, 21, 50, 200},
				TrendEMA:   200,
				RSI:        types.RSIConfig{Period: 14, Oversold: 25, Overbought: 75},
				MACD:       types.MACDConfig{Fast: 12, Slow: 26, Signal: 9},
				Bollinger:  types.BollingerConfig{Period: 20, StdDev: 2},
			},
			EMABounce:  types.EMABounceConfig{Period: 21, Tolerance: 0.015},
			Volume:     types.VolumeConfig{Period: 20, Multiplier: 1.5},
			Confluence: types.ConfluenceConfig{MinAgree: 3},
		},
		Backtest: types.DefaultBacktestConfig(),
	}
}

type fixture struct {
	server   *Server
	store    *database.MemoryStore
	scanner  *fakeScanner
	history  *fakeHistory
	notifier *fakeNotifier
}

func newFixture() *fixture {
	f := &fixture{
		store:    database.NewMemoryStore(),
		scanner:  &fakeScanner{},
		history:  &fakeHistory{},
		notifier: &fakeNotifier{},
	}
	f.server = NewServer(testConfig(), Dependencies{
		Scanner:  f.scanner,
		Store:    f.store,
		Notifier: f.notifier,
		History:  f.history,
	})
	return f
}

type envelope struct {
	Success bool            `json:"success"`
	Error   bool            `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (f *fixture) do(t *testing.T, method, path string, body []byte) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid json %q", method, path, w.Body.String())
	}
	return w.Code, env
}

func TestHealth(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body["status"] != "healthy" || body["symbol"] != "BTCUSDT" {
		t.Fatalf("body = %v", body)
	}
}

func TestScan(t *testing.T) {
	f := newFixture()
	code, env := f.do(t, http.MethodPost, "/api/scan", nil)
	if code != http.StatusOK || !env.Success || f.scanner.runs != 1 {
		t.Fatalf("code=%d env=%+v runs=%d", code, env, f.scanner.runs)
	}
	var result types.ScanResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.ScanType != types.ScanManual || result.Outcome != types.OutcomeNoCandidates {
		t.Fatalf("result = %+v", result)
	}

	f.scanner.err = errors.New("binance down")
	code, env = f.do(t, http.MethodPost, "/api/scan", nil)
	if code != http.StatusBadGateway || !env.Error {
		t.Fatalf("code=%d env=%+v", code, env)
	}
}

func TestSignalsAndStats(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	guard := dedup.NewGuard(time.Hour, 0.01)
	signal := &types.Signal{
		ID: "s1", Symbol: "BTCUSDT", Strategy: types.StrategyRSIReversal, Direction: types.DirectionLong,
		Confidence: 85, EntryPrice: 100, Status: types.SignalActive, DetectedAt: time.Now(),
	}
	if err := f.store.InsertIfNotDuplicate(ctx, signal, guard); err != nil {
		t.Fatalf("insert: %v", err)
	}

	code, env := f.do(t, http.MethodGet, "/api/signals/active", nil)
	var active []*types.Signal
	if code != http.StatusOK || json.Unmarshal(env.Data, &active) != nil || len(active) != 1 || active[0].ID != "s1" {
		t.Fatalf("active: code=%d data=%s", code, env.Data)
	}

	code, env = f.do(t, http.MethodGet, "/api/signals/recent?limit=10", nil)
	if code != http.StatusOK || !env.Success {
		t.Fatalf("recent: code=%d env=%+v", code, env)
	}

	code, env = f.do(t, http.MethodGet, "/api/signals/recent?limit=0", nil)
	if code != http.StatusBadRequest || !env.Error {
		t.Fatalf("invalid limit: code=%d", code)
	}

	code, env = f.do(t, http.MethodGet, "/api/stats", nil)
	var stats types.SignalStats
	if code != http.StatusOK || json.Unmarshal(env.Data, &stats) != nil || stats.Total != 1 || stats.Active != 1 {
		t.Fatalf("stats: code=%d data=%s", code, env.Data)
	}
}

func TestIndicators(t *testing.T) {
	f := newFixture()

	code, _ := f.do(t, http.MethodGet, "/api/indicators", nil)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("empty store code = %d", code)
	}

	if err := f.store.BatchSaveKlines(context.Background(), series(30)); err != nil {
		t.Fatalf("save klines: %v", err)
	}
	code, env := f.do(t, http.MethodGet, "/api/indicators", nil)
	if code != http.StatusOK || !env.Success || len(f.scanner.snapshot) != 30 {
		t.Fatalf("code=%d snapshot=%d", code, len(f.scanner.snapshot))
	}
}

func TestBacktest(t *testing.T) {
	f := newFixture()

	code, env := f.do(t, http.MethodPost, "/api/backtest", []byte(`{"candles": 300, "config": {"max_holding_period": 12}}`))
	if code != http.StatusOK || !env.Success {
		t.Fatalf("code=%d env=%+v", code, env)
	}
	if f.history.requested != 300 {
		t.Fatalf("requested = %d", f.history.requested)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := result["total_trades"]; !ok {
		t.Fatalf("result = %v", result)
	}
	if result["initial_balance"].(float64) != 10000 {
		t.Fatalf("initial balance = %v", result["initial_balance"])
	}

	tests := []struct {
		name string
		body string
	}{
		{"too many candles", `{"candles": 100000}`},
		{"stop above take", `{"config": {"stop_loss_percent": 5, "take_profit_percent": 4}}`},
		{"not enough candles", `{"candles": 50}`},
		{"bad json", `{"candles": "x"}`},
		{"non-positive balance", `{"config": {"initial_balance": -1}}`},
		{"stop loss at 100%", `{"config": {"stop_loss_percent": 100, "take_profit_percent": 120}}`},
		{"rsi thresholds inverted", `{"config": {"rsi_oversold": 70, "rsi_overbought": 30}}`},
		{"zero holding period", `{"config": {"max_holding_period": 0}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.history.requested
			code, env := f.do(t, http.MethodPost, "/api/backtest", []byte(tt.body))
			if code != http.StatusBadRequest || !env.Error {
				t.Fatalf("code=%d env=%+v", code, env)
			}
			if tt.name != "not enough candles" && f.history.requested != before {
				t.Fatalf("history fetched for rejected request")
			}
		})
	}
}

func TestNotifyEndpoints(t *testing.T) {
	f := newFixture()

	code, _ := f.do(t, http.MethodPost, "/api/notify/test", nil)
	if code != http.StatusOK || f.notifier.tests != 1 {
		t.Fatalf("code=%d tests=%d", code, f.notifier.tests)
	}

	f.notifier.err = errors.New("webhook down")
	if code, _ := f.do(t, http.MethodPost, "/api/notify/test", nil); code != http.StatusBadGateway {
		t.Fatalf("failing notifier code = %d", code)
	}

	if code, _ := f.do(t, http.MethodPost, "/api/notify/status", nil); code != http.StatusNotFound {
		t.Fatalf("status without monitor code = %d", code)
	}
	if code, _ := f.do(t, http.MethodGet, "/api/engine", nil); code != http.StatusNotFound {
		t.Fatalf("engine without live pipeline code = %d", code)
	}
}
