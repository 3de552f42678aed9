package utils

import "strings"

// 按逗号切分并去除空白项
func SplitList(s string) (ret []string) {
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			ret = append(ret, v)
		}
	}
	return
}
