package dialect

import (
	"context"
	"sync"

	"github.com/hatlonely/korm/model"
	"github.com/hatlonely/korm/task"
	"github.com/pkg/errors"
)

var ErrUnsupportedDBType = errors.New("unsupported db type")

// Support 单个数据库的 SQL 方言
//
// 所有 SQL 片段中的参数统一使用 :name 形式，由 datasource 编译为驱动占位符。
type Support interface {
	DBType() model.DBType

	// Quote 标识符加引号
	Quote(name string) string
	// QuoteColumn table 非空时以表名限定
	QuoteColumn(f *model.Field, table string) string
	// QuoteTable database 非空时加库名前缀
	QuoteTable(table string, database string) string
	BoolLiteral(b bool) string
	RegexpSQL(column string, param string, not bool) string

	ColumnType(t model.ColumnType, length int, scale int) string
	ColumnDefSQL(f *model.Field) string
	IndexDefSQL(table string, index *model.Index) string
	TableCreateSQL(table *model.Table) []string
	TableDropSQL(table string) []string
	// TableExistsSQL 参数为 tableName 和 dbName，返回单行单列的计数
	TableExistsSQL() string
	TableTruncateSQL(table string, restartIdentity bool) []string
	TableSyncSQL(table *model.Table, columns *TableColumnDiff, indexes *TableIndexDiff) []string
	TableColumns(ctx context.Context, w task.Wrapper, table string) ([]*model.Field, error)
	TableIndexes(ctx context.Context, w task.Wrapper, table string) ([]*model.Index, error)

	SelectSQL(info *SelectClauseInfo) string
	JoinSQL(info *JoinClauseInfo) string
	InsertSQL(table string, fields []*model.Field) string
	UpdateSQL(info *UpdateClauseInfo) string
	DeleteSQL(table string, where string) string
	OnConflictSQL(resolver *ConflictResolver) string

	DBNameFromURL(url string) string
}

// Lock 悲观锁
type Lock int

const (
	NoLock Lock = iota
	// LockX 排他锁
	LockX
	// LockS 共享锁
	LockS
)

// SelectClauseInfo 单表查询的各个片段
//
// Where、GroupBy、Having、OrderBy 不带关键字，空串表示没有该子句。
type SelectClauseInfo struct {
	DatabaseName string
	TableName    string
	// Fields 原样输出的查询项使用 model.RawField，Name 与 ColumnName 不同时输出别名
	Fields     []*model.Field
	Distinct   bool
	Pagination bool
	PageIndex  int
	PageSize   int
	// Limit 大于 0 时生效，分页优先
	Limit   int
	Lock    Lock
	Where   string
	GroupBy string
	Having  string
	OrderBy string
}

// JoinField 联表查询的输出项
type JoinField struct {
	Field *model.Field
	// Alias 输出列名，冲突时已由调用方追加后缀
	Alias string
}

// JoinTable 被连接的表
type JoinTable struct {
	// Type LEFT JOIN、RIGHT JOIN、FULL JOIN、INNER JOIN、CROSS JOIN
	Type         string
	TableName    string
	DatabaseName string
	On           string
}

type JoinClauseInfo struct {
	DatabaseName string
	TableName    string
	Fields       []*JoinField
	Joins        []*JoinTable
	Distinct     bool
	Pagination   bool
	PageIndex    int
	PageSize     int
	Limit        int
	Lock         Lock
	Where        string
	GroupBy      string
	Having       string
	OrderBy      string
}

// Assign 自增自减赋值，输出为 `col` = `col` + :param
type Assign struct {
	Field *model.Field
	Param string
}

// UpdateClauseInfo SET 参数名为 属性名+New
type UpdateClauseInfo struct {
	TableName    string
	Fields       []*model.Field
	PlusAssigns  []*Assign
	MinusAssigns []*Assign
	Where        string
}

// ConflictResolver 插入冲突时改为更新
//
// 参数名为属性名，OnFields 同时作为冲突判断条件。
type ConflictResolver struct {
	TableName      string
	OnFields       []*model.Field
	ToUpdateFields []*model.Field
	ToInsertFields []*model.Field
}

// NewConflictResolver 更新列为插入列去掉冲突列
func NewConflictResolver(table string, on []*model.Field, insert []*model.Field) *ConflictResolver {
	var update []*model.Field
	for _, f := range insert {
		if !containsField(on, f) {
			update = append(update, f)
		}
	}
	return &ConflictResolver{TableName: table, OnFields: on, ToUpdateFields: update, ToInsertFields: insert}
}

func containsField(fields []*model.Field, f *model.Field) bool {
	for _, o := range fields {
		if o.ColumnName == f.ColumnName {
			return true
		}
	}
	return false
}

var supports sync.Map

func init() {
	Register(NewMySQL())
	Register(NewMSSQL())
	Register(NewSQLite())
	Register(NewOracle())
}

// Register 注册方言，同一数据库类型保留先注册的实现
func Register(s Support) Support {
	actual, _ := supports.LoadOrStore(s.DBType(), s)
	return actual.(Support)
}

// Of 按数据库类型获取方言
func Of(dbType model.DBType) (Support, error) {
	v, ok := supports.Load(dbType)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedDBType, "%s", dbType)
	}
	return v.(Support), nil
}

func MustOf(dbType model.DBType) Support {
	s, err := Of(dbType)
	if err != nil {
		panic(err)
	}
	return s
}
