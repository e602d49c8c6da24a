package cfg

import (
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// Storage 包装解码后的配置数据，按 cfg tag 转换为结构体
// 实现了 ref.Convertable，可直接作为 ref.TypeOptions.Options 使用
type Storage struct {
	data any
}

func NewStorage(data any) *Storage {
	return &Storage{data: data}
}

func (s *Storage) Data() any {
	return s.data
}

// Sub 返回点号分隔路径下的子配置，路径不存在时返回 nil 数据
func (s *Storage) Sub(path string) *Storage {
	cur := s.data
	for _, k := range strings.Split(path, ".") {
		if k == "" {
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return NewStorage(nil)
		}
		cur = m[k]
	}
	return NewStorage(cur)
}

// ConvertTo 将配置数据写入 object 指向的值
func (s *Storage) ConvertTo(object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("object must be a non-nil pointer")
	}
	if s.data == nil {
		return nil
	}
	return convert(s.data, rv.Elem())
}

func convert(src any, dst reflect.Value) error {
	if src == nil {
		return nil
	}

	if dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return convert(src, dst.Elem())
	}

	// any 类型的字段保留为 Storage，延迟到构造对象时再转换
	if dst.Kind() == reflect.Interface && dst.Type().NumMethod() == 0 {
		switch src.(type) {
		case map[string]any, []any:
			dst.Set(reflect.ValueOf(NewStorage(src)))
		default:
			dst.Set(reflect.ValueOf(src))
		}
		return nil
	}

	sv := reflect.ValueOf(src)
	if dst.Type() == durationType || dst.Type() == timeType {
		if str, ok := src.(string); ok {
			return parseInto(dst, str)
		}
	}
	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}

	switch dst.Kind() {
	case reflect.Struct:
		m, ok := src.(map[string]any)
		if !ok {
			return errors.Errorf("cannot convert %T to %v", src, dst.Type())
		}
		return convertStruct(m, dst)
	case reflect.Map:
		m, ok := src.(map[string]any)
		if !ok {
			return errors.Errorf("cannot convert %T to %v", src, dst.Type())
		}
		if dst.IsNil() {
			dst.Set(reflect.MakeMap(dst.Type()))
		}
		for k, v := range m {
			item := reflect.New(dst.Type().Elem()).Elem()
			if err := convert(v, item); err != nil {
				return errors.WithMessagef(err, "key %s", k)
			}
			dst.SetMapIndex(reflect.ValueOf(k).Convert(dst.Type().Key()), item)
		}
		return nil
	case reflect.Slice:
		items, ok := src.([]any)
		if !ok {
			if str, isStr := src.(string); isStr {
				return parseInto(dst, str)
			}
			return errors.Errorf("cannot convert %T to %v", src, dst.Type())
		}
		slice := reflect.MakeSlice(dst.Type(), len(items), len(items))
		for i, v := range items {
			if err := convert(v, slice.Index(i)); err != nil {
				return errors.WithMessagef(err, "index %d", i)
			}
		}
		dst.Set(slice)
		return nil
	}

	if str, ok := src.(string); ok && dst.Kind() != reflect.String {
		return parseInto(dst, str)
	}
	if sv.Type().ConvertibleTo(dst.Type()) {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return errors.Errorf("cannot convert %T to %v", src, dst.Type())
}

func convertStruct(m map[string]any, dst reflect.Value) error {
	rt := dst.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !dst.Field(i).CanSet() {
			continue
		}
		name := fieldKey(sf)
		if name == "-" {
			continue
		}
		v, ok := m[name]
		if !ok {
			continue
		}
		if err := convert(v, dst.Field(i)); err != nil {
			return errors.WithMessagef(err, "field %s", name)
		}
	}
	return nil
}

// fieldKey 配置键名取 cfg tag，缺省时使用首字母小写的字段名
func fieldKey(sf reflect.StructField) string {
	if tag := sf.Tag.Get("cfg"); tag != "" {
		return strings.Split(tag, ",")[0]
	}
	return strings.ToLower(sf.Name[:1]) + sf.Name[1:]
}
