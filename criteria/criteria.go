package criteria

import (
	"github.com/hatlonely/korm/model"
	"github.com/pkg/errors"
)

var ErrInvalidCriteria = errors.New("invalid criteria")

// ConditionType 条件节点类型
type ConditionType int

const (
	Equal ConditionType = iota
	Like
	In
	Greater
	GreaterOrEqual
	Less
	LessOrEqual
	Between
	IsNull
	Regexp
	// SQL 原样输出的条件
	SQL
	And
	Or
)

func (t ConditionType) String() string {
	switch t {
	case Equal:
		return "EQUAL"
	case Like:
		return "LIKE"
	case In:
		return "IN"
	case Greater:
		return "GT"
	case GreaterOrEqual:
		return "GE"
	case Less:
		return "LT"
	case LessOrEqual:
		return "LE"
	case Between:
		return "BETWEEN"
	case IsNull:
		return "ISNULL"
	case Regexp:
		return "REGEXP"
	case SQL:
		return "SQL"
	case And:
		return "AND"
	case Or:
		return "OR"
	}
	return "UNKNOWN"
}

func (t ConditionType) IsComposite() bool {
	return t == And || t == Or
}

// NoValueStrategy 条件值为空时的处理方式
type NoValueStrategy int

const (
	// NoValueDefault 使用 Builder 的默认策略
	NoValueDefault NoValueStrategy = iota
	// Ignore 忽略该条件
	Ignore
	// False 输出恒假
	False
	// True 输出恒真
	True
	// JudgeNull 输出 IS NULL
	JudgeNull
	// Smart 查询时忽略，更新和删除时输出恒假
	Smart
)

// Criteria 条件树节点
//
// 叶子节点包含 Field、Value 和 Type，组合节点（And、Or）只包含 Children。
type Criteria struct {
	Type     ConditionType
	Field    *model.Field
	Value    any
	Children []*Criteria
	Not      bool
	// NoValueStrategy 值为空时的处理方式
	NoValueStrategy NoValueStrategy
	// TableName 非空时列名以该表名限定
	TableName string
}

// Range BETWEEN 的上下界
type Range struct {
	Min any
	Max any
}

func newLeaf(t ConditionType, f *model.Field, v any) *Criteria {
	return &Criteria{Type: t, Field: f, Value: v}
}

func Eq(f *model.Field, v any) *Criteria { return newLeaf(Equal, f, v) }

func Ne(f *model.Field, v any) *Criteria { return Eq(f, v).Negate() }

func Gt(f *model.Field, v any) *Criteria { return newLeaf(Greater, f, v) }

func Ge(f *model.Field, v any) *Criteria { return newLeaf(GreaterOrEqual, f, v) }

func Lt(f *model.Field, v any) *Criteria { return newLeaf(Less, f, v) }

func Le(f *model.Field, v any) *Criteria { return newLeaf(LessOrEqual, f, v) }

func BetweenOf(f *model.Field, min, max any) *Criteria {
	return newLeaf(Between, f, Range{Min: min, Max: max})
}

func NotBetween(f *model.Field, min, max any) *Criteria { return BetweenOf(f, min, max).Negate() }

func LikeOf(f *model.Field, pattern any) *Criteria { return newLeaf(Like, f, pattern) }

func NotLike(f *model.Field, pattern any) *Criteria { return LikeOf(f, pattern).Negate() }

func StartsWith(f *model.Field, prefix string) *Criteria { return LikeOf(f, prefix+"%") }

func EndsWith(f *model.Field, suffix string) *Criteria { return LikeOf(f, "%"+suffix) }

func Contains(f *model.Field, s string) *Criteria { return LikeOf(f, "%"+s+"%") }

// InOf values 可以是一个切片，也可以是多个值
func InOf(f *model.Field, values ...any) *Criteria {
	if len(values) == 1 {
		if _, ok := values[0].(ValueOf); ok {
			return newLeaf(In, f, values[0])
		}
		if s, ok := toSlice(values[0]); ok {
			return newLeaf(In, f, s)
		}
	}
	return newLeaf(In, f, values)
}

func NotIn(f *model.Field, values ...any) *Criteria { return InOf(f, values...).Negate() }

func Null(f *model.Field) *Criteria { return newLeaf(IsNull, f, nil) }

func NotNull(f *model.Field) *Criteria { return Null(f).Negate() }

func RegexpOf(f *model.Field, pattern any) *Criteria { return newLeaf(Regexp, f, pattern) }

func NotRegexp(f *model.Field, pattern any) *Criteria { return RegexpOf(f, pattern).Negate() }

// Raw 原样输出的条件，调用方负责防止注入
func Raw(sql string) *Criteria { return &Criteria{Type: SQL, Value: CustomSQL{SQL: sql}} }

// Bool 恒真或恒假
func Bool(b bool) *Criteria { return &Criteria{Type: SQL, Value: b} }

// AndOf 合并条件，nil 被跳过，未取反的 And 子节点被展开
func AndOf(children ...*Criteria) *Criteria { return compose(And, children) }

// OrOf 合并条件，nil 被跳过，未取反的 Or 子节点被展开
func OrOf(children ...*Criteria) *Criteria { return compose(Or, children) }

func compose(t ConditionType, children []*Criteria) *Criteria {
	c := &Criteria{Type: t}
	for _, child := range children {
		if child == nil {
			continue
		}
		if child.Type == t && !child.Not {
			c.Children = append(c.Children, child.Children...)
			continue
		}
		c.Children = append(c.Children, child)
	}
	return c
}

// Not 返回取反的副本
func Not(c *Criteria) *Criteria {
	if c == nil {
		return nil
	}
	return c.Clone().Negate()
}

// Negate 原地取反
func (c *Criteria) Negate() *Criteria {
	c.Not = !c.Not
	return c
}

func (c *Criteria) And(others ...*Criteria) *Criteria {
	return AndOf(append([]*Criteria{c}, others...)...)
}

func (c *Criteria) Or(others ...*Criteria) *Criteria {
	return OrOf(append([]*Criteria{c}, others...)...)
}

// WithNoValue 设置值为空时的处理方式
func (c *Criteria) WithNoValue(s NoValueStrategy) *Criteria {
	c.NoValueStrategy = s
	return c
}

// Of 以 table 限定列名，用于联表查询
func (c *Criteria) Of(table string) *Criteria {
	c.TableName = table
	return c
}

// Clone 深拷贝树结构，Field 和 Value 共享
func (c *Criteria) Clone() *Criteria {
	cc := *c
	if c.Children != nil {
		cc.Children = make([]*Criteria, len(c.Children))
		for i, child := range c.Children {
			cc.Children[i] = child.Clone()
		}
	}
	return &cc
}

// Walk 先序遍历，fn 返回 false 时不再进入子节点
func (c *Criteria) Walk(fn func(*Criteria) bool) {
	if c == nil || !fn(c) {
		return
	}
	for _, child := range c.Children {
		child.Walk(fn)
	}
}

// Fields 树中引用的所有字段，按出现顺序
func (c *Criteria) Fields() []*model.Field {
	var fields []*model.Field
	c.Walk(func(n *Criteria) bool {
		if n.Field != nil {
			fields = append(fields, n.Field)
		}
		return true
	})
	return fields
}

func (c *Criteria) validate() error {
	switch c.Type {
	case And, Or:
		if c.Field != nil {
			return errors.Wrapf(ErrInvalidCriteria, "%s node should not carry a field", c.Type)
		}
	case SQL:
	case Between:
		if c.Field == nil {
			return errors.Wrapf(ErrInvalidCriteria, "%s without field", c.Type)
		}
		switch v := c.Value.(type) {
		case Range, ValueOf, nil:
		case []any:
			if len(v) != 2 {
				return errors.Wrapf(ErrInvalidCriteria, "BETWEEN on %q requires two bounds, got %d", c.Field.Name, len(v))
			}
		default:
			if s, ok := toSlice(c.Value); !ok || len(s) != 2 {
				return errors.Wrapf(ErrInvalidCriteria, "BETWEEN on %q requires two bounds, got %T", c.Field.Name, c.Value)
			}
		}
	case Equal, Like, In, Greater, GreaterOrEqual, Less, LessOrEqual, IsNull, Regexp:
		if c.Field == nil {
			return errors.Wrapf(ErrInvalidCriteria, "%s without field", c.Type)
		}
	default:
		return errors.Wrapf(ErrInvalidCriteria, "unknown condition type %d", c.Type)
	}
	return nil
}
