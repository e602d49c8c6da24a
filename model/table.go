package model

import "github.com/pkg/errors"

// Table 实体的表结构描述
type Table struct {
	Name    string
	Comment string
	// Fields 按声明顺序排列，包含列和关联属性
	Fields  []*Field
	Indexes []*Index

	LogicDelete *Strategy
	CreateTime  *Strategy
	UpdateTime  *Strategy
}

// NewTable 创建表描述并把 TableName 填入每个字段
func NewTable(name string, fields ...*Field) *Table {
	t := &Table{Name: name}
	for _, f := range fields {
		f.TableName = name
		t.Fields = append(t.Fields, f)
	}
	return t
}

// WithLogicDelete 以 name 属性作为逻辑删除字段
func (t *Table) WithLogicDelete(name string) *Table {
	t.LogicDelete = &Strategy{Enabled: true, Field: t.Field(name)}
	return t
}

func (t *Table) WithCreateTime(name string) *Table {
	t.CreateTime = &Strategy{Enabled: true, Field: t.Field(name)}
	return t
}

func (t *Table) WithUpdateTime(name string) *Table {
	t.UpdateTime = &Strategy{Enabled: true, Field: t.Field(name)}
	return t
}

func (t *Table) WithIndexes(indexes ...*Index) *Table {
	t.Indexes = append(t.Indexes, indexes...)
	return t
}

// Columns 数据库列，不包括关联属性
func (t *Table) Columns() []*Field {
	var columns []*Field
	for _, f := range t.Fields {
		if f.IsColumn() {
			columns = append(columns, f)
		}
	}
	return columns
}

// References 关联属性
func (t *Table) References() []*Field {
	var refs []*Field
	for _, f := range t.Fields {
		if f.IsReference() {
			refs = append(refs, f)
		}
	}
	return refs
}

// Field 按属性名查找
func (t *Table) Field(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Column 按列名查找
func (t *Table) Column(column string) *Field {
	for _, f := range t.Fields {
		if f.IsColumn() && f.ColumnName == column {
			return f
		}
	}
	return nil
}

func (t *Table) PrimaryKey() []*Field {
	var pks []*Field
	for _, f := range t.Fields {
		if f.IsColumn() && f.IsPrimaryKey() {
			pks = append(pks, f)
		}
	}
	return pks
}

// MustFields 按属性名批量查找，任一不存在时返回 ErrUnknownField
func (t *Table) MustFields(names ...string) ([]*Field, error) {
	fields := make([]*Field, 0, len(names))
	for _, name := range names {
		f := t.Field(name)
		if f == nil {
			return nil, errors.Wrapf(ErrUnknownField, "field %q of table %q", name, t.Name)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// Validate 检查属性名唯一、策略字段属于本表、关联声明合法
func (t *Table) Validate() error {
	if t.Name == "" {
		return errors.Wrap(ErrInvalidTable, "empty table name")
	}
	names := map[string]struct{}{}
	for _, f := range t.Fields {
		if f.Name == "" {
			return errors.Wrapf(ErrInvalidTable, "table %q has field without name", t.Name)
		}
		if _, ok := names[f.Name]; ok {
			return errors.Wrapf(ErrInvalidTable, "table %q has duplicate field %q", t.Name, f.Name)
		}
		names[f.Name] = struct{}{}
		if f.Reference != nil {
			if err := f.Reference.Validate(); err != nil {
				return errors.WithMessagef(err, "field %q of table %q", f.Name, t.Name)
			}
			for _, name := range f.Reference.Fields {
				if t.Field(name) == nil {
					return errors.Wrapf(ErrUnknownField, "reference field %q of table %q", name, t.Name)
				}
			}
		}
	}
	for _, s := range []*Strategy{t.LogicDelete, t.CreateTime, t.UpdateTime} {
		if s != nil && s.Enabled {
			if s.Field == nil || t.Field(s.Field.Name) == nil {
				return errors.Wrapf(ErrUnknownField, "strategy field of table %q", t.Name)
			}
		}
	}
	return nil
}
