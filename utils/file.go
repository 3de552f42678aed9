package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

func GetFilenameWithoutExt(path string) (name string) {
	name = filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(path))
	return
}

// 文件不存在时返回false，其他错误视为存在（交由后续打开时报错）
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

// 各文件的主文件名，重名的依次加后缀_2、_3…，保证互不相同
func UniqueStems(paths []string) (stems []string) {
	stems = make([]string, len(paths))
	used := make(map[string]bool, len(paths))
	for i, p := range paths {
		stem := GetFilenameWithoutExt(p)
		for k := 2; used[stem]; k++ {
			stem = fmt.Sprintf("%s_%d", GetFilenameWithoutExt(p), k)
		}
		used[stem] = true
		stems[i] = stem
	}
	return
}
