package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"btc-signal-sentry/pkg/types"
)

// Client Binance K线推送客户端
type Client struct {
	endpoint      string
	proxy         string
	conn          *websocket.Conn
	mu            sync.RWMutex
	writeMu       sync.Mutex
	isConnected   bool
	streams       []string // 已订阅的流，重连后自动恢复
	requestID     int64
	reconnectChan chan struct{}
	ctx           context.Context
	cancel        context.CancelFunc
	klineChan     chan *types.KLine
	config        types.WebSocketConfig
}

// subscribeRequest Binance 订阅请求
type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// NewClient 创建新的WebSocket客户端
func NewClient(endpoint, proxy string, config types.WebSocketConfig) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		endpoint:      endpoint,
		proxy:         proxy,
		reconnectChan: make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
		klineChan:     make(chan *types.KLine, 1000), // 缓冲1000个K线数据
		config:        config,
	}
}

// Connect 建立WebSocket连接
func (c *Client) Connect() error {
	dialer := *websocket.DefaultDialer
	if c.proxy != "" {
		proxyURL, err := url.Parse(c.proxy)
		if err != nil {
			return fmt.Errorf("解析代理URL失败: %w", err)
		}
		dialer.Proxy = http.ProxyURL(proxyURL)
	}

	conn, _, err := dialer.DialContext(c.ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("WebSocket连接失败: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.isConnected = true
	streams := append([]string(nil), c.streams...)
	c.mu.Unlock()

	zap.L().Info("✅ WebSocket连接建立成功",
		zap.String("endpoint", c.endpoint),
		zap.String("proxy", c.proxy))

	if len(streams) > 0 {
		if err := c.send(streams); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe 订阅K线数据
func (c *Client) Subscribe(symbols []string, interval string) error {
	streams := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		streams = append(streams, streamName(symbol, interval))
	}

	c.mu.Lock()
	c.streams = append(c.streams, streams...)
	c.mu.Unlock()

	if err := c.send(streams); err != nil {
		return err
	}

	zap.L().Info("📊 已订阅K线数据",
		zap.Strings("symbols", symbols),
		zap.String("interval", interval))

	return nil
}

func (c *Client) send(streams []string) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.isConnected
	c.requestID++
	req := subscribeRequest{Method: "SUBSCRIBE", Params: streams, ID: c.requestID}
	c.mu.Unlock()

	if !connected || conn == nil {
		return fmt.Errorf("WebSocket未连接")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("发送订阅消息失败: %w", err)
	}
	return nil
}

// StartReading 开始读取WebSocket数据
func (c *Client) StartReading() {
	go c.readLoop()
	go c.reconnectLoop()
	go c.pingLoop()
}

// readLoop 读取数据循环
func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("WebSocket读取panic", zap.Any("error", r))
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()

			if conn == nil {
				select {
				case <-c.ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			_, message, err := conn.ReadMessage()
			if err != nil {
				if c.ctx.Err() != nil {
					return
				}
				zap.L().Error("WebSocket读取消息失败", zap.Error(err))
				c.handleDisconnect(conn)
				continue
			}

			kline, err := parseKlineEvent(message)
			if err != nil {
				zap.L().Warn("解析K线数据失败", zap.Error(err))
				continue
			}
			if kline == nil {
				continue // 订阅回执等非K线消息
			}

			select {
			case c.klineChan <- kline:
			default:
				zap.L().Warn("K线数据通道满，丢弃数据", zap.String("symbol", kline.Symbol))
			}
		}
	}
}

// reconnectLoop 重连循环，等待时间按指数退避增长
func (c *Client) reconnectLoop() {
	attempts := 0

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.reconnectChan:
		}

		for {
			attempts++
			if c.config.MaxReconnectAttempts > 0 && attempts > c.config.MaxReconnectAttempts {
				zap.L().Error("达到最大重连次数，停止重连",
					zap.Int("max_attempts", c.config.MaxReconnectAttempts))
				return
			}

			delay := backoff(attempts, c.config.ReconnectInterval, c.config.MaxReconnectInterval)
			zap.L().Info("🔄 尝试重连WebSocket",
				zap.Int("attempt", attempts),
				zap.Duration("delay", delay))

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(delay):
			}

			if err := c.Connect(); err != nil {
				zap.L().Error("重连失败", zap.Error(err))
				continue
			}

			attempts = 0
			zap.L().Info("✅ WebSocket重连成功")
			break
		}
	}
}

// pingLoop 心跳循环
func (c *Client) pingLoop() {
	interval := c.config.PingInterval
	if interval <= 0 {
		interval = 3 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			isConnected := c.isConnected
			c.mu.RUnlock()

			if !isConnected || conn == nil {
				continue
			}

			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				zap.L().Error("发送心跳失败", zap.Error(err))
				c.handleDisconnect(conn)
			}
		}
	}
}

// handleDisconnect 处理断线，只处理当前连接，避免重复触发
func (c *Client) handleDisconnect(failed *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != failed {
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.isConnected = false

	select {
	case c.reconnectChan <- struct{}{}:
	default:
	}
}

// GetKlineChannel 获取K线数据通道
func (c *Client) GetKlineChannel() <-chan *types.KLine {
	return c.klineChan
}

// Close 关闭WebSocket连接
func (c *Client) Close() error {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		c.isConnected = false
		return err
	}

	return nil
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func streamName(symbol, interval string) string {
	return fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), interval)
}
