package websocket

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"btc-signal-sentry/pkg/types"
)

// klineEvent Binance K线推送
type klineEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

// parseKlineEvent 解析K线推送，非K线消息返回 nil, nil
func parseKlineEvent(message []byte) (*types.KLine, error) {
	var event klineEvent
	if err := sonic.Unmarshal(message, &event); err != nil {
		return nil, fmt.Errorf("解析推送消息失败: %w", err)
	}
	if event.EventType != "kline" {
		return nil, nil
	}

	k := event.Kline
	values := make([]float64, 5)
	for i, raw := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := parseFloat(raw)
		if err != nil {
			return nil, fmt.Errorf("解析价格字段失败: %w", err)
		}
		values[i] = v
	}

	kline := &types.KLine{
		Symbol:    event.Symbol,
		Interval:  k.Interval,
		OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
		CloseTime: time.UnixMilli(k.CloseTime + 1).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		Closed:    k.Closed,
	}
	if err := kline.Validate(); err != nil {
		return nil, err
	}
	return kline, nil
}

// parseFloat 解析浮点数
func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// backoff 第 attempt 次重连前的等待时间：base * 2^(attempt-1)，不超过 max
func backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	return delay
}
