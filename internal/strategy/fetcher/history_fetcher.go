package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"btc-signal-sentry/pkg/types"
)

// maxLimit Binance 单次请求K线上限
const maxLimit = 1000

// HistoryKlineFetcher 历史K线数据获取器，按顺序在多个REST地址间故障切换
type HistoryKlineFetcher struct {
	endpoints  []string
	httpClient *http.Client
	now        func() time.Time
}

// binanceError Binance 错误响应
type binanceError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// NewHistoryKlineFetcher 创建历史K线获取器
func NewHistoryKlineFetcher(endpoints []string, proxy string, timeout time.Duration) *HistoryKlineFetcher {
	client := &http.Client{
		Timeout: timeout,
	}

	// 设置代理
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err == nil {
			client.Transport = &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			}
		} else {
			zap.L().Warn("⚠️ 代理地址无效，忽略", zap.String("proxy", proxy), zap.Error(err))
		}
	}

	trimmed := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		if e = strings.TrimRight(strings.TrimSpace(e), "/"); e != "" {
			trimmed = append(trimmed, e)
		}
	}

	return &HistoryKlineFetcher{
		endpoints:  trimmed,
		httpClient: client,
		now:        time.Now,
	}
}

// FetchHistoryKlines 获取最近 limit 根K线（按时间升序），依次尝试各个地址
func (h *HistoryKlineFetcher) FetchHistoryKlines(ctx context.Context, symbol, interval string, limit int) ([]*types.KLine, error) {
	return h.fetchWithFailover(ctx, symbol, interval, limit, 0)
}

// FetchHistory 分页获取 total 根K线，用于回测
func (h *HistoryKlineFetcher) FetchHistory(ctx context.Context, symbol, interval string, total int) ([]*types.KLine, error) {
	var all []*types.KLine
	var endTime int64

	for len(all) < total {
		batch := total - len(all)
		if batch > maxLimit {
			batch = maxLimit
		}

		klines, err := h.fetchWithFailover(ctx, symbol, interval, batch, endTime)
		if err != nil {
			return nil, err
		}
		if len(klines) == 0 {
			break
		}

		all = append(klines, all...)
		endTime = klines[0].TimeMillis() - 1

		if len(klines) < batch {
			break
		}
		// 限速
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	zap.L().Info("✅ 分页历史K线获取完成",
		zap.String("symbol", symbol),
		zap.Int("requested", total),
		zap.Int("received", len(all)))

	return all, nil
}

func (h *HistoryKlineFetcher) fetchWithFailover(ctx context.Context, symbol, interval string, limit int, endTime int64) ([]*types.KLine, error) {
	if len(h.endpoints) == 0 {
		return nil, fmt.Errorf("未配置行情REST地址")
	}

	var errs []string
	for _, endpoint := range h.endpoints {
		klines, err := h.fetch(ctx, endpoint, symbol, interval, limit, endTime)
		if err == nil {
			return klines, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		zap.L().Warn("⚠️ 行情地址请求失败，切换下一个",
			zap.String("endpoint", endpoint),
			zap.Error(err))
		errs = append(errs, fmt.Sprintf("%s: %v", endpoint, err))
	}

	return nil, fmt.Errorf("所有行情地址均失败: %s", strings.Join(errs, "; "))
}

func (h *HistoryKlineFetcher) fetch(ctx context.Context, endpoint, symbol, interval string, limit int, endTime int64) ([]*types.KLine, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("interval", interval)
	query.Set("limit", strconv.Itoa(limit))
	if endTime > 0 {
		query.Set("endTime", strconv.FormatInt(endTime, 10))
	}
	requestURL := fmt.Sprintf("%s/api/v3/klines?%s", endpoint, query.Encode())

	zap.L().Debug("📊 获取历史K线数据",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("limit", limit),
		zap.String("url", requestURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}

	req.Header.Set("User-Agent", "BTC-Signal-Sentry/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr binanceError
		if sonic.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			return nil, fmt.Errorf("HTTP响应错误: %d, code=%d, msg=%s", resp.StatusCode, apiErr.Code, apiErr.Msg)
		}
		return nil, fmt.Errorf("HTTP响应错误: %d", resp.StatusCode)
	}

	var rows [][]interface{}
	if err := sonic.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("解析JSON失败: %w", err)
	}

	now := h.now()
	klines := make([]*types.KLine, 0, len(rows))
	for _, row := range rows {
		kline, err := parseBinanceKline(symbol, interval, row)
		if err != nil {
			zap.L().Warn("解析历史K线数据失败", zap.Error(err))
			continue
		}
		if err := kline.Validate(); err != nil {
			zap.L().Warn("⚠️ 丢弃异常K线", zap.Time("open_time", kline.OpenTime), zap.Error(err))
			continue
		}
		kline.Closed = !kline.CloseTime.After(now)
		klines = append(klines, kline)
	}

	zap.L().Info("✅ 历史K线数据获取完成",
		zap.String("endpoint", endpoint),
		zap.String("symbol", symbol),
		zap.Int("requested", limit),
		zap.Int("received", len(klines)))

	return klines, nil
}

// parseBinanceKline 解析 Binance K线数组
// [openTime, open, high, low, close, volume, closeTime, ...]
func parseBinanceKline(symbol, interval string, row []interface{}) (*types.KLine, error) {
	if len(row) < 7 {
		return nil, fmt.Errorf("K线数据格式不正确: 字段数 %d", len(row))
	}

	openTime, err := toInt64(row[0])
	if err != nil {
		return nil, fmt.Errorf("解析开盘时间失败: %w", err)
	}
	closeTime, err := toInt64(row[6])
	if err != nil {
		return nil, fmt.Errorf("解析收盘时间失败: %w", err)
	}

	values := make([]float64, 5)
	names := []string{"开盘价", "最高价", "最低价", "收盘价", "成交量"}
	for i := range values {
		values[i], err = toFloat64(row[i+1])
		if err != nil {
			return nil, fmt.Errorf("解析%s失败: %w", names[i], err)
		}
	}

	return &types.KLine{
		Symbol:    symbol,
		Interval:  interval,
		OpenTime:  time.UnixMilli(openTime).UTC(),
		CloseTime: time.UnixMilli(closeTime + 1).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("不支持的类型 %T", v)
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case string:
		return strconv.ParseFloat(n, 64)
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("不支持的类型 %T", v)
	}
}

// ClosedOnly 去掉末尾尚未收盘的K线
func ClosedOnly(klines []*types.KLine) []*types.KLine {
	end := len(klines)
	for end > 0 && !klines[end-1].Closed {
		end--
	}
	return klines[:end]
}
