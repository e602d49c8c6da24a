package model

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// 日期格式使用 yyyy-MM-dd HH:mm:ss 风格的模式串，转换为 Go 的 layout 后再格式化
var datePatternTokens = map[string]string{
	"yyyy": "2006",
	"yy":   "06",
	"MMMM": "January",
	"MMM":  "Jan",
	"MM":   "01",
	"M":    "1",
	"dd":   "02",
	"d":    "2",
	"HH":   "15",
	"H":    "15",
	"hh":   "03",
	"h":    "3",
	"mm":   "04",
	"m":    "4",
	"ss":   "05",
	"s":    "5",
	"SSS":  "000",
	"SS":   "00",
	"S":    "0",
	"a":    "PM",
	"EEEE": "Monday",
	"EEE":  "Mon",
	"E":    "Mon",
	"Z":    "-0700",
	"XXX":  "Z07:00",
	"X":    "Z07",
	"z":    "MST",
}

var fallbackLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"15:04:05",
}

// DateLayout 把 yyyy-MM-dd HH:mm:ss 风格的模式串转换为 Go 的 layout，单引号内为字面量
func DateLayout(pattern string) string {
	var b strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); {
		r := runes[i]
		if r == '\'' {
			j := i + 1
			for j < len(runes) && runes[j] != '\'' {
				j++
			}
			if j == i+1 && j < len(runes) {
				b.WriteRune('\'')
			} else {
				b.WriteString(string(runes[i+1 : min(j, len(runes))]))
			}
			i = j + 1
			continue
		}
		j := i
		for j < len(runes) && runes[j] == r {
			j++
		}
		run := string(runes[i:j])
		if layout, ok := datePatternTokens[run]; ok {
			b.WriteString(layout)
		} else {
			b.WriteString(run)
		}
		i = j
	}
	return b.String()
}

// FormatTime 按模式串格式化，pattern 为空时使用 DefaultDateFormat
func FormatTime(t time.Time, pattern string) string {
	if pattern == "" {
		pattern = DefaultDateFormat
	}
	return t.Format(DateLayout(pattern))
}

// ParseTime 先按模式串解析，失败后尝试常见格式
func ParseTime(s string, pattern string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if pattern != "" {
		if t, err := time.ParseInLocation(DateLayout(pattern), s, loc); err == nil {
			return t, nil
		}
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Wrapf(ErrConvertValue, "parse time %q with pattern %q", s, pattern)
}
