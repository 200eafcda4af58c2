package notifier

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DingTalkNotifier 钉钉机器人通知器
type DingTalkNotifier struct {
	webhookURL string
	secret     string
	httpClient *http.Client
	now        func() time.Time
}

// DingTalkMessage 钉钉消息结构
type DingTalkMessage struct {
	MsgType  string            `json:"msgtype"`
	Markdown *DingTalkMarkdown `json:"markdown,omitempty"`
	At       *DingTalkAt       `json:"at,omitempty"`
}

type DingTalkMarkdown struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type DingTalkAt struct {
	AtMobiles []string `json:"atMobiles,omitempty"`
	AtUserIds []string `json:"atUserIds,omitempty"`
	AtAll     bool     `json:"isAtAll"`
}

// DingTalkResponse 钉钉响应结构
type DingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// NewDingTalkNotifier 创建钉钉通知器
func NewDingTalkNotifier(webhookURL, secret string) *DingTalkNotifier {
	if secret != "" {
		zap.L().Info("✅ 已配置钉钉通知服务（加签模式）")
	} else {
		zap.L().Info("✅ 已配置钉钉通知服务")
	}

	return &DingTalkNotifier{
		webhookURL: webhookURL,
		secret:     secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

// Name 渠道名称
func (dtn *DingTalkNotifier) Name() string {
	return "dingtalk"
}

// Send 发送钉钉 Markdown 消息
func (dtn *DingTalkNotifier) Send(title, text string) error {
	signedURL, err := dtn.buildSignedURL()
	if err != nil {
		return errors.Wrap(err, "生成签名失败")
	}

	message := &DingTalkMessage{
		MsgType: "markdown",
		Markdown: &DingTalkMarkdown{
			Title: title,
			Text:  dingTalkMarkdown(text),
		},
		At: &DingTalkAt{
			AtAll: false, // 不@所有人，避免过度打扰
		},
	}

	jsonData, err := sonic.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "序列化消息失败")
	}

	resp, err := dtn.httpClient.Post(signedURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return errors.Wrap(err, "HTTP请求失败")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "读取响应失败")
	}

	var dingResp DingTalkResponse
	if err := sonic.Unmarshal(body, &dingResp); err != nil {
		return errors.Wrapf(err, "解析响应失败: HTTP %d", resp.StatusCode)
	}
	if dingResp.ErrCode != 0 {
		return errors.Errorf("钉钉API错误 [%d]: %s", dingResp.ErrCode, dingResp.ErrMsg)
	}

	return nil
}

// dingTalkMarkdown 转换为钉钉 Markdown：加粗用双星号，换行需要行尾两个空格
func dingTalkMarkdown(text string) string {
	text = strings.ReplaceAll(text, "*", "**")
	return strings.ReplaceAll(text, "\n", "  \n")
}

// generateSignature 生成钉钉加签
func (dtn *DingTalkNotifier) generateSignature(timestamp int64) string {
	// 按照文档要求: timestamp + "\n" + secret
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, dtn.secret)

	h := hmac.New(sha256.New, []byte(dtn.secret))
	h.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(h.Sum(nil))

	return url.QueryEscape(signature)
}

// buildSignedURL 构建带签名的URL
func (dtn *DingTalkNotifier) buildSignedURL() (string, error) {
	if dtn.webhookURL == "" {
		return "", errors.New("未配置钉钉Webhook地址")
	}
	if dtn.secret == "" {
		return dtn.webhookURL, nil
	}

	timestamp := dtn.now().UnixMilli()
	separator := "&"
	if !strings.Contains(dtn.webhookURL, "?") {
		separator = "?"
	}

	return fmt.Sprintf("%s%stimestamp=%d&sign=%s",
		dtn.webhookURL, separator, timestamp, dtn.generateSignature(timestamp)), nil
}
