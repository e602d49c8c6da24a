package model

// Pojo 实体实例，Values 以属性名为 key
//
// 关联属性的值为 *Pojo 或 []*Pojo。
type Pojo struct {
	Table  *Table
	Values map[string]any
}

func NewPojo(table *Table, values map[string]any) *Pojo {
	if values == nil {
		values = map[string]any{}
	}
	return &Pojo{Table: table, Values: values}
}

func (p *Pojo) Get(name string) any {
	return p.Values[name]
}

func (p *Pojo) Set(name string, value any) *Pojo {
	p.Values[name] = value
	return p
}

// Has 属性存在且值非 nil
func (p *Pojo) Has(name string) bool {
	v, ok := p.Values[name]
	return ok && !IsNil(v)
}

// DataMap 所有列属性的值，缺失的列为 nil
func (p *Pojo) DataMap() map[string]any {
	m := make(map[string]any, len(p.Values))
	for _, f := range p.Table.Columns() {
		m[f.Name] = p.Values[f.Name]
	}
	return m
}

// Children 关联属性的子实体，单个值也返回切片
func (p *Pojo) Children(name string) []*Pojo {
	switch v := p.Values[name].(type) {
	case *Pojo:
		if v == nil {
			return nil
		}
		return []*Pojo{v}
	case []*Pojo:
		return v
	}
	return nil
}

// Clone 复制 Values，子实体共享
func (p *Pojo) Clone() *Pojo {
	values := make(map[string]any, len(p.Values))
	for k, v := range p.Values {
		values[k] = v
	}
	return &Pojo{Table: p.Table, Values: values}
}

// PrimaryKeyValues 主键属性的值，按主键声明顺序
func (p *Pojo) PrimaryKeyValues() []any {
	var values []any
	for _, f := range p.Table.PrimaryKey() {
		values = append(values, p.Values[f.Name])
	}
	return values
}
