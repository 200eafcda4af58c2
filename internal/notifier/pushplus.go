package notifier

import (
	"bytes"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const pushPlusEndpoint = "http://www.pushplus.plus/send"

// PushPlusNotifier PushPlus通知器
type PushPlusNotifier struct {
	userToken  string
	to         string // 好友令牌，多人用逗号分隔
	endpoint   string
	httpClient *http.Client
}

type PushPlusRequest struct {
	Token    string `json:"token"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Template string `json:"template"`
	To       string `json:"to,omitempty"` // 好友令牌，给朋友发送通知
}

type PushPlusResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data string `json:"data"`
}

// NewPushPlusNotifier 创建PushPlus通知器
func NewPushPlusNotifier(userToken, to string) *PushPlusNotifier {
	if to != "" {
		zap.L().Info("✅ 已配置PushPlus通知服务（包含好友推送）", zap.String("to", to))
	} else {
		zap.L().Info("✅ 已配置PushPlus通知服务")
	}

	return &PushPlusNotifier{
		userToken: userToken,
		to:        to,
		endpoint:  pushPlusEndpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name 渠道名称
func (ppn *PushPlusNotifier) Name() string {
	return "pushplus"
}

// Send 以 HTML 模板发送消息
func (ppn *PushPlusNotifier) Send(title, text string) error {
	reqData := PushPlusRequest{
		Token:    ppn.userToken,
		Title:    title,
		Content:  buildHTMLContent(text),
		Template: "html",
		To:       ppn.to,
	}

	jsonData, err := sonic.Marshal(reqData)
	if err != nil {
		return errors.Wrap(err, "序列化请求数据失败")
	}

	resp, err := ppn.httpClient.Post(ppn.endpoint, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return errors.Wrap(err, "HTTP请求失败")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "读取响应失败")
	}

	var pushResp PushPlusResponse
	if err := sonic.Unmarshal(body, &pushResp); err != nil {
		return errors.Wrapf(err, "解析响应失败: HTTP %d", resp.StatusCode)
	}
	if pushResp.Code != 200 {
		return errors.Errorf("PushPlus API错误: %s", pushResp.Msg)
	}

	return nil
}

// buildHTMLContent Markdown 文本转为简单 HTML
func buildHTMLContent(text string) string {
	lines := strings.Split(html.EscapeString(text), "\n")
	for i, line := range lines {
		lines[i] = boldToHTML(line)
	}
	return `<div style="padding: 10px; line-height: 1.6;">` + strings.Join(lines, "<br/>") + `</div>`
}

// boldToHTML 成对的 *粗体* 转为 <strong>，落单的星号原样保留
func boldToHTML(line string) string {
	marks := strings.Count(line, "*") / 2 * 2
	if marks == 0 {
		return line
	}

	var b strings.Builder
	seen := 0
	for _, r := range line {
		if r == '*' && seen < marks {
			if seen%2 == 0 {
				b.WriteString("<strong>")
			} else {
				b.WriteString("</strong>")
			}
			seen++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
