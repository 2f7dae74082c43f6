package knowledge

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	pageMarkerPattern = regexp.MustCompile(`(?i)Page\s*\d+\s*(of\s*\d+)?`)
	bulletPattern     = regexp.MustCompile(`[•·●■□▪▶➤►]`)
	multiNewlines     = regexp.MustCompile(`\n{2,}`)
	multiSpaces       = regexp.MustCompile(` {2,}`)
)

// 领域缩写展开表（按物理治疗术语），仅整词、区分大小写
var abbreviationPatterns = []struct {
	pattern *regexp.Regexp
	full    string
}{
	{regexp.MustCompile(`\bROM\b`), "Range of Motion"},
	{regexp.MustCompile(`\bADL\b`), "Activities of Daily Living"},
	{regexp.MustCompile(`\bWNL\b`), "Within Normal Limits"},
	{regexp.MustCompile(`\bPT\b`), "Physiotherapy"},
	{regexp.MustCompile(`\bOT\b`), "Occupational Therapy"},
}

// NormalizeText 清洗提取出的文本，纯函数且幂等
// 步骤顺序不可调换：后续步骤假定前面的清理已经完成
func NormalizeText(text string) string {
	// 去除空字节
	text = strings.ReplaceAll(text, "\x00", "")

	// Unicode规范化（NFKC，兼容分解后重组）
	text = norm.NFKC.String(text)

	// 去除残留的页码、页眉页脚
	text = pageMarkerPattern.ReplaceAllString(text, "")

	// 特殊项目符号统一替换为连字符
	text = bulletPattern.ReplaceAllString(text, "-")

	// 展开领域缩写
	for _, abbr := range abbreviationPatterns {
		text = abbr.pattern.ReplaceAllString(text, abbr.full)
	}

	// 压缩连续空行和连续空格
	text = multiNewlines.ReplaceAllString(text, "\n\n")
	text = multiSpaces.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}
