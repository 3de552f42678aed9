package utils

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	upper   = cases.Upper(language.Und)
	printer = message.NewPrinter(language.English)
)

// 区域名转为报告标题：下划线换为空格并大写
func ZoneTitle(name string) string {
	return upper.String(strings.ReplaceAll(name, "_", " "))
}

// 千分位分组的整数
func GroupInt(n int64) string {
	return printer.Sprintf("%d", n)
}

// 千分位分组、保留prec位小数
func GroupFloat(v float64, prec int) string {
	switch prec {
	case 0:
		return printer.Sprintf("%.0f", v)
	case 1:
		return printer.Sprintf("%.1f", v)
	default:
		return printer.Sprintf("%.2f", v)
	}
}
