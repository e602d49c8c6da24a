package datasource

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/hatlonely/korm/model"
	"github.com/pkg/errors"
)

var ErrMissingParameter = errors.New("missing parameter")

// Placeholder 第 n 个参数（从 1 开始）的驱动占位符
func Placeholder(dbType model.DBType, n int) string {
	switch dbType {
	case model.Mssql:
		return fmt.Sprintf("@p%d", n)
	case model.Oracle:
		return fmt.Sprintf(":%d", n)
	}
	return "?"
}

// Compile 把 :name 形式的命名参数替换为驱动占位符
//
// 字符串常量和引号内的标识符不做替换，:: 不视为参数。
// 切片参数（[]byte 除外）展开为多个占位符，空切片输出 NULL。
func Compile(dbType model.DBType, sql string, params map[string]any) (string, []any, error) {
	var buf strings.Builder
	var args []any
	buf.Grow(len(sql))

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch c {
		case '\'', '"', '`':
			end := closing(sql, i, c)
			buf.WriteString(sql[i:end])
			i = end - 1
			continue
		case ':':
			if i+1 < len(sql) && sql[i+1] == ':' {
				buf.WriteString("::")
				i++
				continue
			}
			if i+1 >= len(sql) || !isNameStart(sql[i+1]) {
				break
			}
			j := i + 1
			for j < len(sql) && isNamePart(sql[j]) {
				j++
			}
			name := sql[i+1 : j]
			v, ok := params[name]
			if !ok {
				return "", nil, errors.Wrapf(ErrMissingParameter, "%q", name)
			}
			values, expand := expandSlice(v)
			if !expand {
				args = append(args, v)
				buf.WriteString(Placeholder(dbType, len(args)))
			} else if len(values) == 0 {
				buf.WriteString("NULL")
			} else {
				for k, item := range values {
					if k > 0 {
						buf.WriteString(", ")
					}
					args = append(args, item)
					buf.WriteString(Placeholder(dbType, len(args)))
				}
			}
			i = j - 1
			continue
		}
		buf.WriteByte(c)
	}
	return buf.String(), args, nil
}

// closing 返回引号结束位置之后的下标，两个连续的引号视为转义
func closing(sql string, start int, quote byte) int {
	for i := start + 1; i < len(sql); i++ {
		if sql[i] != quote {
			continue
		}
		if i+1 < len(sql) && sql[i+1] == quote {
			i++
			continue
		}
		return i + 1
	}
	return len(sql)
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// isNamePart 参数名冲突时追加 @n 后缀，@ 属于参数名
func isNamePart(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9') || c == '@'
}

func expandSlice(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	values := make([]any, rv.Len())
	for i := range values {
		values[i] = rv.Index(i).Interface()
	}
	return values, true
}
