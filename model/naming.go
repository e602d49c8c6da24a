package model

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// NamingStrategy 属性名与列名、类型名与表名之间的转换
type NamingStrategy interface {
	K2DB(name string) string
	DB2K(name string) string
}

// LineHumpNamingStrategy 驼峰与下划线互转，createTime <-> create_time
type LineHumpNamingStrategy struct{}

func (LineHumpNamingStrategy) K2DB(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			// 连续大写视为一个单词，HTTPServer -> http_server
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (LineHumpNamingStrategy) DB2K(name string) string {
	var b strings.Builder
	upper := false
	for i, r := range name {
		if r == '_' {
			upper = i > 0
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NoneNamingStrategy 原样使用
type NoneNamingStrategy struct{}

func (NoneNamingStrategy) K2DB(name string) string { return name }
func (NoneNamingStrategy) DB2K(name string) string { return name }

// ParseNamingStrategy lineHump 或 none
func ParseNamingStrategy(name string) (NamingStrategy, error) {
	switch strings.ToLower(name) {
	case "", "linehump", "line_hump", "snake":
		return LineHumpNamingStrategy{}, nil
	case "none":
		return NoneNamingStrategy{}, nil
	}
	return nil, errors.Errorf("unknown naming strategy %q", name)
}
