package cfg

import (
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Load 读取配置文件，按扩展名解码后写入 object，然后填充默认值并校验
func Load(path string, object any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config file %s failed", path)
	}
	return LoadBytes(data, filepath.Ext(path), object)
}

// LoadBytes 与 Load 相同，但直接接收配置内容
func LoadBytes(data []byte, format string, object any) error {
	storage, err := Decode(data, format)
	if err != nil {
		return err
	}
	if err := storage.ConvertTo(object); err != nil {
		return errors.WithMessage(err, "convert config failed")
	}
	if err := SetDefaults(object); err != nil {
		return errors.WithMessage(err, "set defaults failed")
	}
	if err := ValidateStruct(object); err != nil {
		return errors.WithMessage(err, "validate config failed")
	}
	return nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidateStruct 使用 validate tag 校验结构体，非结构体和 nil 指针直接通过
func ValidateStruct(object any) error {
	rv := reflect.ValueOf(object)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() || rv.Kind() != reflect.Struct || rv.Type() == timeType {
		return nil
	}

	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate.Struct(rv.Interface())
}
