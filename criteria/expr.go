package criteria

import (
	"reflect"

	"github.com/hatlonely/korm/model"
)

// Expr 条件值的表达式，Column、Literal、CustomSQL、ValueOf 四选一
type Expr interface {
	isExpr()
}

// Column 另一列，输出为带引号的列名
type Column struct {
	Field *model.Field
}

// Literal 绑定为参数的字面值
type Literal struct {
	Value any
}

// CustomSQL 原样输出
type CustomSQL struct {
	SQL string
}

// ValueOf 编译时从实体取值
type ValueOf struct {
	Field *model.Field
}

func (Column) isExpr()    {}
func (Literal) isExpr()   {}
func (CustomSQL) isExpr() {}
func (ValueOf) isExpr()   {}

func ColumnOf(f *model.Field) Column { return Column{Field: f} }

func ValueOfField(f *model.Field) ValueOf { return ValueOf{Field: f} }

func SQLOf(sql string) CustomSQL { return CustomSQL{SQL: sql} }

func toSlice(v any) ([]any, bool) {
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	s := make([]any, rv.Len())
	for i := range s {
		s[i] = rv.Index(i).Interface()
	}
	return s, true
}
