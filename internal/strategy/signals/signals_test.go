package signals

import (
	"strings"
	"testing"
	"time"

	"btc-signal-sentry/pkg/types"
)

// fixture 两根K线，指标序列逐项手工填写
type fixture struct {
	klines []*types.KLine
	series *types.IndicatorSeries
}

func newFixture() *fixture {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	klines := []*types.KLine{
		{OpenTime: base, Open: 100, High: 101, Low: 99, Close: 100, Volume: 10},
		{OpenTime: base.Add(time.Hour), Open: 100, High: 101, Low: 99, Close: 100, Volume: 30},
	}
	series := &types.IndicatorSeries{
		EMA: map[int]types.Series{
			21:  types.NewSeries(2),
			50:  types.NewSeries(2),
			200: types.NewSeries(2),
		},
		RSI:       types.NewSeries(2),
		MACD:      make([]*types.MACDValue, 2),
		Bollinger: make([]*types.BollingerBand, 2),
	}
	return &fixture{klines: klines, series: series}
}

func (f *fixture) context() *Context {
	return &Context{
		Index:  1,
		KLines: f.klines,
		Series: f.series,
		Volume: types.VolumeCheck{Average: 10, Ratio: 3, Confirmed: true},
	}
}

func (f *fixture) setBar(open, high, low, close float64) {
	k := f.klines[1]
	k.Open, k.High, k.Low, k.Close = open, high, low, close
}

func testConfig() Config {
	return Config{
		Enabled:          types.AllEnabled(),
		EMAPeriod:        21,
		StrongEMAPeriod:  50,
		TrendEMA:         200,
		Tolerance:        0.015,
		RSIOversold:      30,
		RSIOverbought:    70,
		VolumePeriod:     20,
		VolumeMultiplier: 1.5,
	}
}

func single(t *testing.T, got []*types.StrategyCandidate) *types.StrategyCandidate {
	t.Helper()
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1", len(got))
	}
	return got[0]
}

func TestEMABounce(t *testing.T) {
	d := NewEMABounceDetector(21, 50, 200, 0.015)

	tests := []struct {
		name       string
		bar        [4]float64 // open high low close
		ema21      float64
		ema50      float64
		trend      float64
		want       types.Direction
		confidence int
	}{
		{"long bounce above ema50", [4]float64{100, 104, 99.5, 103}, 100, 95, 90, types.DirectionLong, types.ConfidenceHigh},
		{"long bounce below ema50", [4]float64{100, 104, 99.5, 103}, 100, 110, 90, types.DirectionLong, types.ConfidenceMedium},
		{"short rejection", [4]float64{100, 100.5, 96, 97}, 100, 105, 110, types.DirectionShort, types.ConfidenceHigh},
		{"low outside tolerance", [4]float64{100, 104, 97, 103}, 100, 95, 90, "", 0},
		{"counter trend long", [4]float64{100, 104, 99.5, 103}, 100, 95, 120, "", 0},
		{"bearish close at support", [4]float64{103, 104, 99.5, 101}, 100, 95, 90, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.setBar(tt.bar[0], tt.bar[1], tt.bar[2], tt.bar[3])
			f.series.EMA[21][1] = tt.ema21
			f.series.EMA[50][1] = tt.ema50
			f.series.EMA[200][1] = tt.trend

			got := d.Detect(f.context())
			if tt.want == "" {
				if len(got) != 0 {
					t.Fatalf("expected no candidate, got %+v", got[0])
				}
				return
			}
			c := single(t, got)
			if c.Direction != tt.want || c.Strategy != types.StrategyEMABounce {
				t.Fatalf("got %s/%s, want %s", c.Strategy, c.Direction, tt.want)
			}
			if c.Confidence != tt.confidence {
				t.Fatalf("confidence = %d, want %d", c.Confidence, tt.confidence)
			}
		})
	}
}

func TestEMABounceNeedsTrend(t *testing.T) {
	f := newFixture()
	f.setBar(100, 104, 99.5, 103)
	f.series.EMA[21][1] = 100

	if got := NewEMABounceDetector(21, 50, 200, 0.015).Detect(f.context()); len(got) != 0 {
		t.Fatalf("expected no candidate without trend EMA, got %d", len(got))
	}
}

func TestMACDCross(t *testing.T) {
	d := NewMACDCrossDetector(200)

	tests := []struct {
		name  string
		prev  types.MACDValue
		cur   types.MACDValue
		close float64
		trend float64
		want  types.Direction
		conf  int
	}{
		{"bullish cross in uptrend", types.MACDValue{MACD: -1, Signal: 0, Histogram: -1}, types.MACDValue{MACD: 2, Signal: 0.5, Histogram: 1.5}, 110, 100, types.DirectionLong, types.ConfidenceHigh},
		{"bullish cross from equality", types.MACDValue{MACD: 1, Signal: 1, Histogram: 0}, types.MACDValue{MACD: 1.1, Signal: 1, Histogram: 0.1}, 110, 100, types.DirectionLong, types.ConfidenceHigh},
		{"bullish cross contracting", types.MACDValue{MACD: -1, Signal: 1, Histogram: -2}, types.MACDValue{MACD: 1.5, Signal: 1, Histogram: 0.5}, 110, 100, types.DirectionLong, types.ConfidenceMedium},
		{"bullish cross in downtrend", types.MACDValue{MACD: -1, Signal: 0, Histogram: -1}, types.MACDValue{MACD: 2, Signal: 0.5, Histogram: 1.5}, 90, 100, "", 0},
		{"bearish cross in downtrend", types.MACDValue{MACD: 1, Signal: 0, Histogram: 1}, types.MACDValue{MACD: -1, Signal: 0.5, Histogram: -1.5}, 90, 100, types.DirectionShort, types.ConfidenceHigh},
		{"no cross", types.MACDValue{MACD: 1, Signal: 0, Histogram: 1}, types.MACDValue{MACD: 2, Signal: 0.5, Histogram: 1.5}, 110, 100, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.setBar(tt.close, tt.close, tt.close, tt.close)
			prev, cur := tt.prev, tt.cur
			f.series.MACD[0] = &prev
			f.series.MACD[1] = &cur
			f.series.EMA[200][1] = tt.trend

			got := d.Detect(f.context())
			if tt.want == "" {
				if len(got) != 0 {
					t.Fatalf("expected no candidate, got %+v", got[0])
				}
				return
			}
			c := single(t, got)
			if c.Direction != tt.want || c.Confidence != tt.conf {
				t.Fatalf("got %s conf %d, want %s conf %d", c.Direction, c.Confidence, tt.want, tt.conf)
			}
		})
	}
}

func TestMACDCrossNeedsPreviousValue(t *testing.T) {
	f := newFixture()
	f.series.MACD[1] = &types.MACDValue{MACD: 2, Signal: 1, Histogram: 1}
	f.series.EMA[200][1] = 50

	if got := NewMACDCrossDetector(200).Detect(f.context()); len(got) != 0 {
		t.Fatalf("expected no candidate, got %d", len(got))
	}
}

func TestRSIReversal(t *testing.T) {
	d := NewRSIReversalDetector(30, 70)

	tests := []struct {
		name string
		prev float64
		cur  float64
		want types.Direction
		conf int
	}{
		{"exit oversold near threshold", 28, 32, types.DirectionLong, types.ConfidenceHigh},
		{"exit oversold from threshold", 30, 40, types.DirectionLong, types.ConfidenceMedium},
		{"still oversold", 25, 29, "", 0},
		{"touch threshold only", 25, 30, "", 0},
		{"exit overbought", 72, 68, types.DirectionShort, types.ConfidenceHigh},
		{"exit overbought deep", 80, 60, types.DirectionShort, types.ConfidenceMedium},
		{"neutral", 50, 55, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.series.RSI[0] = tt.prev
			f.series.RSI[1] = tt.cur

			got := d.Detect(f.context())
			if tt.want == "" {
				if len(got) != 0 {
					t.Fatalf("expected no candidate, got %+v", got[0])
				}
				return
			}
			c := single(t, got)
			if c.Direction != tt.want || c.Confidence != tt.conf {
				t.Fatalf("got %s conf %d, want %s conf %d", c.Direction, c.Confidence, tt.want, tt.conf)
			}
		})
	}
}

func TestBollingerMeanReversion(t *testing.T) {
	d := NewBollingerDetector(200)
	band := &types.BollingerBand{Upper: 110, Middle: 100, Lower: 90}

	tests := []struct {
		name      string
		prevClose float64
		close     float64
		trend     float64
		want      types.Direction
		conf      int
	}{
		{"break below lower in uptrend", 95, 89, 80, types.DirectionLong, types.ConfidenceMedium},
		{"break below lower against trend", 95, 89, 120, types.DirectionLong, types.ConfidenceLow},
		{"already below lower", 88, 87, 80, "", 0},
		{"break above upper in downtrend", 105, 111, 120, types.DirectionShort, types.ConfidenceMedium},
		{"inside bands", 100, 101, 80, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.klines[0].Close = tt.prevClose
			f.setBar(tt.close, tt.close, tt.close, tt.close)
			f.series.Bollinger[0] = band
			f.series.Bollinger[1] = band
			f.series.EMA[200][1] = tt.trend

			got := d.Detect(f.context())
			if tt.want == "" {
				if len(got) != 0 {
					t.Fatalf("expected no candidate, got %+v", got[0])
				}
				return
			}
			c := single(t, got)
			if c.Direction != tt.want || c.Confidence != tt.conf {
				t.Fatalf("got %s conf %d, want %s conf %d", c.Direction, c.Confidence, tt.want, tt.conf)
			}
			if !strings.Contains(c.Reason, "mean reversion") {
				t.Fatalf("unexpected reason %q", c.Reason)
			}
		})
	}
}

func TestRegistryVolumeGate(t *testing.T) {
	f := newFixture()
	f.series.RSI[0] = 28
	f.series.RSI[1] = 32

	r := NewRegistry(testConfig())
	if got := r.Detect(f.klines, f.series, 1); len(got) != 1 {
		t.Fatalf("with volume 3x: candidates = %d, want 1", len(got))
	}

	f.klines[1].Volume = 12
	if got := r.Detect(f.klines, f.series, 1); len(got) != 0 {
		t.Fatalf("with volume 1.2x: candidates = %d, want 0", len(got))
	}
}

func TestRegistryOrderAndToggles(t *testing.T) {
	f := newFixture()
	f.setBar(100, 104, 99.5, 103)
	f.series.EMA[21][1] = 100
	f.series.EMA[50][1] = 95
	f.series.EMA[200][1] = 90
	f.series.RSI[0] = 28
	f.series.RSI[1] = 32

	r := NewRegistry(testConfig())
	got := r.Detect(f.klines, f.series, 1)
	if len(got) != 2 {
		t.Fatalf("candidates = %d, want 2", len(got))
	}
	if got[0].Strategy != types.StrategyEMABounce || got[1].Strategy != types.StrategyRSIReversal {
		t.Fatalf("order = %s, %s", got[0].Strategy, got[1].Strategy)
	}
	if SingleStrategy(got).Strategy != types.StrategyEMABounce {
		t.Fatalf("first = %s", SingleStrategy(got).Strategy)
	}

	cfg := testConfig()
	cfg.Enabled.EMABounce = false
	r = NewRegistry(cfg)
	got = r.Detect(f.klines, f.series, 1)
	if len(got) != 1 || got[0].Strategy != types.StrategyRSIReversal {
		t.Fatalf("with ema_bounce disabled got %d candidates", len(got))
	}
	if len(r.Detectors()) != 3 {
		t.Fatalf("detectors = %d, want 3", len(r.Detectors()))
	}
}

func TestRegistryOutOfRange(t *testing.T) {
	f := newFixture()
	r := NewRegistry(testConfig())
	for _, idx := range []int{-1, 0, 2} {
		if got := r.Detect(f.klines, f.series, idx); got != nil {
			t.Fatalf("index %d: expected nil", idx)
		}
	}
	if SingleStrategy(nil) != nil {
		t.Fatal("SingleStrategy(nil) should be nil")
	}
}

func TestConfigFrom(t *testing.T) {
	s := types.StrategyConfig{
		Enabled:   types.AllEnabled(),
		EMABounce: types.EMABounceConfig{Period: 21, Tolerance: 0.015},
		Volume:    types.VolumeConfig{Period: 20, Multiplier: 1.5},
	}
	s.Indicators.TrendEMA = 200
	s.Indicators.RSI = types.RSIConfig{Period: 14, Oversold: 25, Overbought: 75}

	cfg := ConfigFrom(s)
	if cfg.EMAPeriod != 21 || cfg.TrendEMA != 200 || cfg.RSIOversold != 25 || cfg.VolumeMultiplier != 1.5 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	periods := NewRegistry(cfg).EMAPeriods()
	if len(periods) != 3 || periods[0] != 21 || periods[2] != 200 {
		t.Fatalf("periods = %v", periods)
	}
}
