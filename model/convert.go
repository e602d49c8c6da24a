package model

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var timeType = reflect.TypeOf(time.Time{})

// IsNil 判断 nil 以及值为 nil 的指针、切片、map
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// SafeValue 把驱动返回的原始值转换为列类型对应的 Go 值
//
//   - Bit -> bool
//   - 整数 -> int64，浮点和定点数 -> float64
//   - 日期时间 -> time.Time，字符串按 Field.DateFormat 解析
//   - 字符类型 -> string，time.Time 按 Field.DateFormat 格式化
//
// 没有匹配规则时原样返回，只有解析失败时返回 ErrConvertValue。
func SafeValue(f *Field, v any) (any, error) {
	if IsNil(v) {
		return nil, nil
	}
	rv := reflect.Indirect(reflect.ValueOf(v))
	v = rv.Interface()

	if b, ok := v.([]byte); ok && !f.Type.IsBinary() {
		v = string(b)
		rv = reflect.ValueOf(v)
	}

	switch {
	case f.Type == Bit:
		return toBool(rv)
	case f.Type.IsInteger():
		return toInt64(rv)
	case f.Type.IsNumeric():
		return toFloat64(rv)
	case f.Type.IsTemporal():
		return toTime(rv, f.DateFormat)
	case f.Type.IsText():
		if t, ok := v.(time.Time); ok {
			return FormatTime(t, f.DateFormat), nil
		}
		switch rv.Kind() {
		case reflect.String:
			return rv.String(), nil
		case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Float32, reflect.Float64:
			return fmt.Sprint(v), nil
		}
	}
	return v, nil
}

func toBool(rv reflect.Value) (any, error) {
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0, nil
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0, nil
	case reflect.String:
		b, err := strconv.ParseBool(strings.TrimSpace(rv.String()))
		if err != nil {
			return nil, errors.Wrapf(ErrConvertValue, "parse bool %q", rv.String())
		}
		return b, nil
	}
	return rv.Interface(), nil
}

func toInt64(rv reflect.Value) (any, error) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return int64(rv.Float()), nil
	case reflect.Bool:
		if rv.Bool() {
			return int64(1), nil
		}
		return int64(0), nil
	case reflect.String:
		s := strings.TrimSpace(rv.String())
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), nil
		}
		return nil, errors.Wrapf(ErrConvertValue, "parse int %q", s)
	}
	return rv.Interface(), nil
}

func toFloat64(rv reflect.Value) (any, error) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(rv.String()), 64)
		if err != nil {
			return nil, errors.Wrapf(ErrConvertValue, "parse float %q", rv.String())
		}
		return f, nil
	}
	return rv.Interface(), nil
}

func toTime(rv reflect.Value, pattern string) (any, error) {
	if rv.Type() == timeType {
		return rv.Interface(), nil
	}
	switch rv.Kind() {
	case reflect.String:
		return ParseTime(rv.String(), pattern, time.Local)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return time.Unix(rv.Int(), 0), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return time.Unix(int64(rv.Uint()), 0), nil
	case reflect.Float32, reflect.Float64:
		sec := rv.Float()
		return time.Unix(int64(sec), int64((sec-float64(int64(sec)))*1e9)), nil
	}
	return rv.Interface(), nil
}

// Assign 把值写入结构体字段，dst 必须可写
//
// 类型可赋值时直接赋值；数值之间可转换时转换；字符串与数值、布尔、时间之间按文本解析；
// 时间写入字符串字段时按 pattern 格式化。没有匹配的规则时保持 dst 不变。
func Assign(dst reflect.Value, v any, pattern string) error {
	if IsNil(v) {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if dst.Kind() == reflect.Ptr {
		elem := reflect.New(dst.Type().Elem())
		if err := Assign(elem.Elem(), v, pattern); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	src := reflect.Indirect(reflect.ValueOf(v))
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}
	if b, ok := src.Interface().([]byte); ok && dst.Kind() != reflect.Slice {
		src = reflect.ValueOf(string(b))
	}

	if dst.Type() == timeType {
		t, err := toTime(src, pattern)
		if err != nil {
			return err
		}
		if tv, ok := t.(time.Time); ok {
			dst.Set(reflect.ValueOf(tv))
		}
		return nil
	}

	switch dst.Kind() {
	case reflect.Bool:
		b, err := toBool(src)
		if err != nil {
			return err
		}
		if bv, ok := b.(bool); ok {
			dst.SetBool(bv)
		}
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := toInt64(src)
		if err != nil {
			return err
		}
		if iv, ok := i.(int64); ok {
			dst.SetInt(iv)
		}
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i, err := toInt64(src)
		if err != nil {
			return err
		}
		if iv, ok := i.(int64); ok {
			dst.SetUint(uint64(iv))
		}
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := toFloat64(src)
		if err != nil {
			return err
		}
		if fv, ok := f.(float64); ok {
			dst.SetFloat(fv)
		}
		return nil
	case reflect.String:
		if t, ok := src.Interface().(time.Time); ok {
			dst.SetString(FormatTime(t, pattern))
			return nil
		}
		switch src.Kind() {
		case reflect.String, reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Float32, reflect.Float64:
			dst.SetString(fmt.Sprint(src.Interface()))
		}
		return nil
	}

	if src.Type().ConvertibleTo(dst.Type()) {
		dst.Set(src.Convert(dst.Type()))
	}
	return nil
}
