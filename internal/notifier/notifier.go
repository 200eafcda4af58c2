package notifier

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"btc-signal-sentry/pkg/types"
)

// Interface 通知接口
type Interface interface {
	SendSignal(signal *types.Signal) error
	SendResolution(res *types.Resolution) error
	SendStatus(stats *types.SignalStats) error
	SendTest() error
}

// Channel 通知渠道，负责投递已格式化的 Markdown 文本
type Channel interface {
	Name() string
	Send(title, text string) error
}

// Notifier 格式化消息并投递到渠道，渠道失败时降级为控制台输出
type Notifier struct {
	channel  Channel
	fallback Channel
	format   Formatter
	now      func() time.Time
}

// New 创建通知器
func New(channel Channel, format Formatter) *Notifier {
	n := &Notifier{
		channel: channel,
		format:  format,
		now:     time.Now,
	}
	if _, ok := channel.(*ConsoleNotifier); !ok {
		n.fallback = NewConsoleNotifier()
	}
	return n
}

// Name 当前渠道名称
func (n *Notifier) Name() string {
	return n.channel.Name()
}

// FromConfig 根据配置组装通知渠道，未配置任何渠道时使用控制台输出
func FromConfig(cfg *types.Config) *Notifier {
	format := Formatter{
		Symbol:     cfg.Market.Symbol,
		Timeframe:  cfg.Market.Interval,
		MaxHolding: cfg.Strategy.MaxHoldingCandles,
	}

	var channels []Channel
	if cfg.Telegram.BotToken != "" {
		tg, err := NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			zap.L().Error("❌ Telegram机器人初始化失败", zap.Error(err))
		} else {
			channels = append(channels, tg)
		}
	}
	if cfg.DingTalk.WebhookURL != "" {
		channels = append(channels, NewDingTalkNotifier(cfg.DingTalk.WebhookURL, cfg.DingTalk.Secret))
	}
	if cfg.PushPlus.UserToken != "" {
		channels = append(channels, NewPushPlusNotifier(cfg.PushPlus.UserToken, cfg.PushPlus.To))
	}

	switch len(channels) {
	case 0:
		zap.L().Info("🔧 未配置通知渠道，使用控制台输出模式")
		return New(NewConsoleNotifier(), format)
	case 1:
		return New(channels[0], format)
	default:
		return New(NewMulti(channels...), format)
	}
}

// SendSignal 发送新信号通知
func (n *Notifier) SendSignal(signal *types.Signal) error {
	return n.deliver(n.format.SignalTitle(signal), n.format.Signal(signal))
}

// SendResolution 发送平仓通知
func (n *Notifier) SendResolution(res *types.Resolution) error {
	return n.deliver(n.format.ResolutionTitle(res), n.format.Resolution(res))
}

// SendStatus 发送统计摘要
func (n *Notifier) SendStatus(stats *types.SignalStats) error {
	return n.deliver("📊 信号统计", n.format.Status(stats, n.now()))
}

// SendTest 发送测试消息
func (n *Notifier) SendTest() error {
	return n.deliver("🧪 测试通知", n.format.Test(n.now()))
}

func (n *Notifier) deliver(title, text string) error {
	err := n.channel.Send(title, text)
	if err == nil {
		zap.L().Info("✅ 通知已发送", zap.String("channel", n.channel.Name()), zap.String("title", title))
		return nil
	}

	zap.L().Error("❌ 通知发送失败", zap.String("channel", n.channel.Name()), zap.Error(err))
	if n.fallback != nil {
		zap.L().Warn("⚠️ 降级为控制台输出")
		_ = n.fallback.Send(title, text)
	}
	return errors.Wrapf(err, "%s发送失败", n.channel.Name())
}

// Multi 多渠道并发投递，任一渠道成功即视为送达
type Multi struct {
	channels []Channel
}

// NewMulti 创建多渠道通知
func NewMulti(channels ...Channel) *Multi {
	return &Multi{channels: channels}
}

// Name 渠道名称
func (m *Multi) Name() string {
	names := make([]string, 0, len(m.channels))
	for _, c := range m.channels {
		names = append(names, c.Name())
	}
	return strings.Join(names, "+")
}

// Send 投递到所有渠道
func (m *Multi) Send(title, text string) error {
	if len(m.channels) == 0 {
		return errors.New("未配置通知渠道")
	}

	errs := make([]error, len(m.channels))
	done := make(chan int, len(m.channels))
	for i, c := range m.channels {
		go func(i int, c Channel) {
			errs[i] = c.Send(title, text)
			done <- i
		}(i, c)
	}
	for range m.channels {
		<-done
	}

	var failed []string
	for i, err := range errs {
		if err != nil {
			zap.L().Warn("⚠️ 通知渠道发送失败", zap.String("channel", m.channels[i].Name()), zap.Error(err))
			failed = append(failed, m.channels[i].Name()+": "+err.Error())
		}
	}
	if len(failed) == len(m.channels) {
		return errors.Errorf("全部渠道失败: %s", strings.Join(failed, "; "))
	}
	return nil
}
