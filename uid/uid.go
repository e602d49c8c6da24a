package uid

import (
	"github.com/hatlonely/korm/ref"
	"github.com/pkg/errors"
)

func init() {
	ref.MustRegisterT[SnowflakeGenerator](NewSnowflakeGeneratorWithOptions)
	ref.MustRegisterT[UUIDGenerator](NewUUIDGeneratorWithOptions)
}

// IntGenerator 生成整数主键，用于 snowflake 主键
type IntGenerator interface {
	Generate() int64
}

// StrGenerator 生成字符串主键，用于 uuid 主键
type StrGenerator interface {
	Generate() string
}

// NewIntGeneratorWithOptions options 为 nil 时使用默认配置的 SnowflakeGenerator
func NewIntGeneratorWithOptions(options *ref.TypeOptions) (IntGenerator, error) {
	if options == nil {
		return NewSnowflakeGeneratorWithOptions(nil)
	}
	obj, err := ref.NewWithOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.NewWithOptions failed")
	}
	g, ok := obj.(IntGenerator)
	if !ok {
		return nil, errors.Errorf("%s:%s is not an IntGenerator", options.Namespace, options.Type)
	}
	return g, nil
}

// NewStrGeneratorWithOptions options 为 nil 时使用 v4 带连字符的 UUIDGenerator
func NewStrGeneratorWithOptions(options *ref.TypeOptions) (StrGenerator, error) {
	if options == nil {
		return NewUUIDGeneratorWithOptions(nil)
	}
	obj, err := ref.NewWithOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.NewWithOptions failed")
	}
	g, ok := obj.(StrGenerator)
	if !ok {
		return nil, errors.Errorf("%s:%s is not a StrGenerator", options.Namespace, options.Type)
	}
	return g, nil
}
