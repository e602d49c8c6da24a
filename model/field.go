package model

// PrimaryKeyType 主键生成方式
type PrimaryKeyType int

const (
	NotPrimaryKey PrimaryKeyType = iota
	// PrimaryKeyDefault 由调用方赋值
	PrimaryKeyDefault
	// PrimaryKeyIdentity 数据库自增
	PrimaryKeyIdentity
	PrimaryKeyUUID
	PrimaryKeySnowflake
)

// Field 列或关联属性的元数据
//
// 列的身份由 (ColumnName, TableName) 决定，Equal 忽略类型、注释等描述性属性。
// Reference 或 RefTable 非空的 Field 是关联属性，不对应数据库列。
type Field struct {
	ColumnName string
	// Name 属性名，参数名以它为基础
	Name      string
	TableName string
	Type      ColumnType
	Length    int
	Scale     int
	Nullable  bool
	PrimaryKey PrimaryKeyType
	// Identity 自增列，主键类型为 PrimaryKeyIdentity 时总是为 true
	Identity bool
	// DefaultValue 列默认值的 SQL 文本，空串表示没有默认值
	DefaultValue string
	DateFormat   string
	Comment      string
	// Serializable 值在写入前序列化为文本，读取后反序列化
	Serializable bool

	// Reference 本实体持有外键的关联声明
	Reference *Reference
	// RefTable 关联的目标表名
	RefTable string
	// IsArray 关联属性是否为一对多
	IsArray bool
}

// RawField 原样输出的查询项，例如 "COUNT(1) AS `count`"
func RawField(sql string) *Field {
	return &Field{ColumnName: sql, Name: sql, Type: CustomCriteriaSQL}
}

func (f *Field) IsColumn() bool {
	return f.Reference == nil && f.RefTable == "" && f.Type != CustomCriteriaSQL
}

func (f *Field) IsReference() bool {
	return f.RefTable != ""
}

func (f *Field) IsRaw() bool {
	return f.Type == CustomCriteriaSQL
}

func (f *Field) IsPrimaryKey() bool {
	return f.PrimaryKey != NotPrimaryKey
}

func (f *Field) IsIdentity() bool {
	return f.Identity || f.PrimaryKey == PrimaryKeyIdentity
}

// Equal 按 (ColumnName, TableName) 判断是否为同一列
func (f *Field) Equal(o *Field) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.ColumnName == o.ColumnName && f.TableName == o.TableName
}

// SameDefinition 判断列定义是否一致，用于表结构比对
func (f *Field) SameDefinition(o *Field) bool {
	return f.Equal(o) &&
		f.Type == o.Type &&
		f.Length == o.Length &&
		f.Nullable == o.Nullable &&
		f.IsPrimaryKey() == o.IsPrimaryKey()
}

// Clone 返回浅拷贝
func (f *Field) Clone() *Field {
	c := *f
	return &c
}

// As 返回以 alias 作为属性名的副本，查询时输出为 `column` AS `alias`
func (f *Field) As(alias string) *Field {
	c := f.Clone()
	c.Name = alias
	return c
}

// Qualified 以 表名.属性名 作为 key，用于多表场景
func (f *Field) Qualified() string {
	if f.TableName == "" {
		return f.Name
	}
	return f.TableName + "." + f.Name
}

func (f *Field) String() string {
	return f.Name
}
