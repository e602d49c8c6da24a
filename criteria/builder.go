package criteria

import (
	"fmt"
	"strings"

	"github.com/hatlonely/korm/model"
	"github.com/pkg/errors"
)

// Dialect 条件编译依赖的方言能力
type Dialect interface {
	QuoteColumn(f *model.Field, table string) string
	BoolLiteral(b bool) string
	RegexpSQL(column string, param string, not bool) string
}

// Result 编译结果，SQL 为空表示没有可输出的条件
type Result struct {
	SQL    string
	Params map[string]any
}

// Builder 把条件树编译为 SQL 片段和参数
//
// 参数名以属性名为基础，同名参数再次出现时依次追加 @1、@2，计数在一次编译内按基础名独立累加。
// Builder 不是并发安全的，每次编译使用独立实例。
type Builder struct {
	dialect   Dialect
	operation model.OperationType
	// Values ValueOf 表达式的取值来源，以属性名为 key
	Values map[string]any
	// WithTableName 列名是否以表名限定
	WithTableName bool
	// NoValueStrategy 节点未指定时使用的策略
	NoValueStrategy NoValueStrategy

	params   map[string]any
	counters map[string]int
}

func NewBuilder(d Dialect, operation model.OperationType) *Builder {
	return &Builder{dialect: d, operation: operation, NoValueStrategy: Smart}
}

// Build 编译条件树，params 为已有参数，不会被修改
func (b *Builder) Build(c *Criteria, params map[string]any) (*Result, error) {
	b.params = make(map[string]any, len(params))
	for k, v := range params {
		b.params[k] = v
	}
	b.counters = map[string]int{}
	if c == nil {
		return &Result{Params: b.params}, nil
	}
	sql, err := b.render(c, false)
	if err != nil {
		return nil, err
	}
	return &Result{SQL: sql, Params: b.params}, nil
}

// ParamName 申请一个未被占用的参数名
func (b *Builder) ParamName(base string) string {
	if _, ok := b.params[base]; !ok {
		return base
	}
	n := b.counters[base]
	for {
		n++
		name := fmt.Sprintf("%s@%d", base, n)
		if _, ok := b.params[name]; !ok {
			b.counters[base] = n
			return name
		}
	}
}

func (b *Builder) bind(base string, v any) string {
	name := b.ParamName(base)
	b.params[name] = v
	return ":" + name
}

func (b *Builder) render(c *Criteria, nested bool) (string, error) {
	if err := c.validate(); err != nil {
		return "", err
	}
	if c.Type.IsComposite() {
		return b.renderComposite(c, nested)
	}
	return b.renderLeaf(c)
}

func (b *Builder) renderComposite(c *Criteria, nested bool) (string, error) {
	parts := make([]string, 0, len(c.Children))
	for _, child := range c.Children {
		s, err := b.render(child, true)
		if err != nil {
			return "", err
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	sep := " AND "
	if c.Type == Or {
		sep = " OR "
	}
	sql := strings.Join(parts, sep)
	if c.Not {
		return "NOT (" + sql + ")", nil
	}
	if len(parts) > 1 && nested {
		return "(" + sql + ")", nil
	}
	return sql, nil
}

func (b *Builder) column(c *Criteria) string {
	table := c.TableName
	if table == "" && b.WithTableName {
		table = c.Field.TableName
	}
	return b.dialect.QuoteColumn(c.Field, table)
}

func (b *Builder) renderLeaf(c *Criteria) (string, error) {
	if c.Type == SQL {
		return b.renderSQL(c), nil
	}
	if c.Type == IsNull {
		return b.isNull(c, c.Not), nil
	}

	value := c.Value
	explicitNil := value == nil
	if lit, ok := value.(Literal); ok {
		value = lit.Value
		explicitNil = value == nil
	}
	if v, ok := value.(ValueOf); ok {
		value = b.Values[v.Field.Name]
		explicitNil = false
	}

	col := b.column(c)
	switch v := value.(type) {
	case Column:
		other := v.Field.TableName
		if !b.WithTableName {
			other = ""
		}
		return fmt.Sprintf("%s %s %s", col, operator(c.Type, c.Not), b.dialect.QuoteColumn(v.Field, other)), nil
	case CustomSQL:
		return fmt.Sprintf("%s %s %s", col, operator(c.Type, c.Not), v.SQL), nil
	}

	if c.Type == Equal && explicitNil {
		return b.isNull(c, c.Not), nil
	}
	if isNoValue(c.Type, value) {
		return b.noValue(c), nil
	}

	name := c.Field.Name
	switch c.Type {
	case Equal, Like:
		return fmt.Sprintf("%s %s %s", col, operator(c.Type, c.Not), b.bind(name, value)), nil
	case Greater, GreaterOrEqual:
		return fmt.Sprintf("%s %s %s", col, operator(c.Type, c.Not), b.bind(name+"Min", value)), nil
	case Less, LessOrEqual:
		return fmt.Sprintf("%s %s %s", col, operator(c.Type, c.Not), b.bind(name+"Max", value)), nil
	case In:
		list, ok := toSlice(value)
		if !ok {
			list = []any{value}
		}
		return fmt.Sprintf("%s %s (%s)", col, operator(c.Type, c.Not), b.bind(name+"List", list)), nil
	case Between:
		r, err := toRange(c, value)
		if err != nil {
			return "", err
		}
		minParam := b.bind(name+"Min", r.Min)
		maxParam := b.bind(name+"Max", r.Max)
		return fmt.Sprintf("%s %s %s AND %s", col, operator(c.Type, c.Not), minParam, maxParam), nil
	case Regexp:
		return b.dialect.RegexpSQL(col, b.bind(name+"Pattern", value), c.Not), nil
	}
	return "", errors.Wrapf(ErrInvalidCriteria, "unsupported condition type %s", c.Type)
}

func (b *Builder) renderSQL(c *Criteria) string {
	switch v := c.Value.(type) {
	case bool:
		return b.dialect.BoolLiteral(v != c.Not)
	case CustomSQL:
		if c.Not {
			return "NOT (" + v.SQL + ")"
		}
		return v.SQL
	case string:
		if c.Not {
			return "NOT (" + v + ")"
		}
		return v
	}
	return ""
}

func (b *Builder) isNull(c *Criteria, not bool) string {
	if not {
		return b.column(c) + " IS NOT NULL"
	}
	return b.column(c) + " IS NULL"
}

func (b *Builder) noValue(c *Criteria) string {
	strategy := c.NoValueStrategy
	if strategy == NoValueDefault {
		strategy = b.NoValueStrategy
	}
	if strategy == Smart {
		if b.operation == model.OperationSelect {
			strategy = Ignore
		} else {
			strategy = False
		}
	}
	switch strategy {
	case False:
		return b.dialect.BoolLiteral(false)
	case True:
		return b.dialect.BoolLiteral(true)
	case JudgeNull:
		return b.isNull(c, c.Not)
	}
	return ""
}

func isNoValue(t ConditionType, v any) bool {
	if model.IsNil(v) {
		return true
	}
	switch t {
	case In:
		if s, ok := toSlice(v); ok {
			return len(s) == 0
		}
	case Between:
		switch r := v.(type) {
		case Range:
			return model.IsNil(r.Min) && model.IsNil(r.Max)
		case []any:
			return len(r) == 2 && model.IsNil(r[0]) && model.IsNil(r[1])
		}
	}
	return false
}

func toRange(c *Criteria, v any) (Range, error) {
	switch r := v.(type) {
	case Range:
		return r, nil
	case []any:
		if len(r) == 2 {
			return Range{Min: r[0], Max: r[1]}, nil
		}
	}
	if s, ok := toSlice(v); ok && len(s) == 2 {
		return Range{Min: s[0], Max: s[1]}, nil
	}
	return Range{}, errors.Wrapf(ErrInvalidCriteria, "BETWEEN on %q requires two bounds", c.Field.Name)
}

func operator(t ConditionType, not bool) string {
	switch t {
	case Equal:
		if not {
			return "!="
		}
		return "="
	case Greater:
		if not {
			return "<="
		}
		return ">"
	case GreaterOrEqual:
		if not {
			return "<"
		}
		return ">="
	case Less:
		if not {
			return ">="
		}
		return "<"
	case LessOrEqual:
		if not {
			return ">"
		}
		return "<="
	case Like:
		if not {
			return "NOT LIKE"
		}
		return "LIKE"
	case In:
		if not {
			return "NOT IN"
		}
		return "IN"
	case Between:
		if not {
			return "NOT BETWEEN"
		}
		return "BETWEEN"
	}
	return "="
}

// WithLogicDelete 在顶层以 AND 追加逻辑删除条件，表未启用逻辑删除时原样返回
//
// 顶层为 And 时直接追加，为 Or 时整体加括号后追加。
func WithLogicDelete(c *Criteria, table *model.Table, tableName string) *Criteria {
	if !table.LogicDelete.Valid() {
		return c
	}
	deleted := Eq(table.LogicDelete.Field, CustomSQL{SQL: fmt.Sprint(model.LogicNotDeleted)})
	deleted.TableName = tableName
	return AndOf(c, deleted)
}
