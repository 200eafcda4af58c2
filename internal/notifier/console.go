package notifier

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ConsoleNotifier 控制台通知器
type ConsoleNotifier struct{}

func NewConsoleNotifier() *ConsoleNotifier {
	return &ConsoleNotifier{}
}

// Name 渠道名称
func (cn *ConsoleNotifier) Name() string {
	return "console"
}

// Send 以边框形式打印消息
func (cn *ConsoleNotifier) Send(title, text string) error {
	fmt.Print(cn.render(title, text))
	return nil
}

func (cn *ConsoleNotifier) render(title, text string) string {
	const width = 60
	var b strings.Builder

	b.WriteString("\n╔" + strings.Repeat("═", width) + "╗\n")
	writeBoxLine(&b, title, width)
	b.WriteString("╟" + strings.Repeat("─", width) + "╢\n")
	for _, line := range strings.Split(strings.ReplaceAll(text, "*", ""), "\n") {
		writeBoxLine(&b, line, width)
	}
	b.WriteString("╚" + strings.Repeat("═", width) + "╝\n")
	return b.String()
}

func writeBoxLine(b *strings.Builder, content string, width int) {
	fmt.Fprintf(b, "║ %s%s ║\n", content, strings.Repeat(" ", safePadding(content, width)))
}

// safePadding 安全地计算填充空格数量，避免负数
func safePadding(content string, totalWidth int) int {
	// 使用utf8.RuneCountInString计算实际显示字符数，而不是字节数
	padding := totalWidth - utf8.RuneCountInString(content) - 2
	if padding < 0 {
		padding = 0
	}
	return padding
}
