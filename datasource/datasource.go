package datasource

import (
	"github.com/hatlonely/korm/ref"
	"github.com/hatlonely/korm/task"
	"github.com/pkg/errors"
)

func init() {
	ref.MustRegisterT[SQLWrapper](NewSQLWrapperWithOptions)
	ref.MustRegisterT[GormWrapper](NewGormWrapperWithOptions)
}

// NewWrapperWithOptions 通过注册表创建数据访问对象
//
// 例如 {namespace: github.com/hatlonely/korm/datasource, type: SQLWrapper, options: {...}}
func NewWrapperWithOptions(options *ref.TypeOptions) (task.Wrapper, error) {
	obj, err := ref.NewWithOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.NewWithOptions failed")
	}
	w, ok := obj.(task.Wrapper)
	if !ok {
		return nil, errors.Errorf("%s:%s is not a task.Wrapper", options.Namespace, options.Type)
	}
	return w, nil
}
