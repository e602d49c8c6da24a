package dialect

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hatlonely/korm/model"
	"github.com/hatlonely/korm/task"
	"github.com/pkg/errors"
)

// base 各方言共用的 DML 渲染，差异由字段配置
type base struct {
	dbType model.DBType
	open   string
	close  string
	// upper 标识符转为大写
	upper bool
	// schema 非空时表名带该 schema 前缀
	schema string

	trueLiteral  string
	falseLiteral string

	// locks 锁的渲染文本，lockAfterTable 为 true 时紧跟在表名之后
	locks          map[Lock]string
	lockAfterTable bool
	// aliasAll 所有查询列都输出别名
	aliasAll bool
	// requireOrder 分页时必须有 ORDER BY
	requireOrder bool

	page  func(offset int, size int) string
	limit func(n int) string
}

func (b *base) DBType() model.DBType {
	return b.dbType
}

func (b *base) Quote(name string) string {
	if b.upper {
		name = strings.ToUpper(name)
	}
	return b.open + name + b.close
}

// quoteAlias 别名保留大小写，结果集的 key 由它决定
func (b *base) quoteAlias(name string) string {
	return b.open + name + b.close
}

func (b *base) QuoteColumn(f *model.Field, table string) string {
	if table != "" {
		return b.Quote(table) + "." + b.Quote(f.ColumnName)
	}
	return b.Quote(f.ColumnName)
}

func (b *base) QuoteTable(table string, database string) string {
	var buf strings.Builder
	if database != "" {
		buf.WriteString(b.Quote(database))
		buf.WriteString(".")
	}
	if b.schema != "" {
		buf.WriteString(b.Quote(b.schema))
		buf.WriteString(".")
	}
	buf.WriteString(b.Quote(table))
	return buf.String()
}

func (b *base) BoolLiteral(v bool) string {
	if v {
		return b.trueLiteral
	}
	return b.falseLiteral
}

func (b *base) selectField(f *model.Field) string {
	if f.IsRaw() {
		return f.ColumnName
	}
	if f.Name != "" && (b.aliasAll || f.Name != f.ColumnName) {
		return b.Quote(f.ColumnName) + " AS " + b.quoteAlias(f.Name)
	}
	return b.Quote(f.ColumnName)
}

func (b *base) fieldList(fields []*model.Field, fn func(*model.Field) string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fn(f))
	}
	return strings.Join(parts, ", ")
}

func (b *base) columnList(fields []*model.Field) string {
	return b.fieldList(fields, func(f *model.Field) string { return b.Quote(f.ColumnName) })
}

func (b *base) paramList(fields []*model.Field) string {
	return b.fieldList(fields, func(f *model.Field) string { return ":" + f.Name })
}

func (b *base) SelectSQL(info *SelectClauseInfo) string {
	var buf strings.Builder
	buf.WriteString("SELECT ")
	if info.Distinct {
		buf.WriteString("DISTINCT ")
	}
	buf.WriteString(b.fieldList(info.Fields, b.selectField))
	buf.WriteString(" FROM ")
	buf.WriteString(b.QuoteTable(info.TableName, info.DatabaseName))
	b.writeLockAfterTable(&buf, info.Lock)
	b.writeTail(&buf, info.Where, info.GroupBy, info.Having, info.OrderBy, info.Pagination, info.PageIndex, info.PageSize, info.Limit, info.Lock)
	return buf.String()
}

func (b *base) JoinSQL(info *JoinClauseInfo) string {
	var buf strings.Builder
	buf.WriteString("SELECT ")
	if info.Distinct {
		buf.WriteString("DISTINCT ")
	}
	parts := make([]string, 0, len(info.Fields))
	for _, jf := range info.Fields {
		if jf.Field.IsRaw() {
			parts = append(parts, jf.Field.ColumnName)
			continue
		}
		parts = append(parts, b.QuoteColumn(jf.Field, jf.Field.TableName)+" AS "+b.quoteAlias(jf.Alias))
	}
	buf.WriteString(strings.Join(parts, ", "))
	buf.WriteString(" FROM ")
	buf.WriteString(b.QuoteTable(info.TableName, info.DatabaseName))
	b.writeLockAfterTable(&buf, info.Lock)
	for _, j := range info.Joins {
		buf.WriteString(" ")
		buf.WriteString(j.Type)
		buf.WriteString(" ")
		buf.WriteString(b.QuoteTable(j.TableName, j.DatabaseName))
		if j.On != "" {
			buf.WriteString(" ON ")
			buf.WriteString(j.On)
		}
	}
	b.writeTail(&buf, info.Where, info.GroupBy, info.Having, info.OrderBy, info.Pagination, info.PageIndex, info.PageSize, info.Limit, info.Lock)
	return buf.String()
}

func (b *base) writeLockAfterTable(buf *strings.Builder, lock Lock) {
	if b.lockAfterTable && lock != NoLock {
		buf.WriteString(b.locks[lock])
	}
}

func (b *base) writeTail(buf *strings.Builder, where, groupBy, having, orderBy string, pagination bool, pi, ps, limit int, lock Lock) {
	if where != "" {
		buf.WriteString(" WHERE ")
		buf.WriteString(where)
	}
	if groupBy != "" {
		buf.WriteString(" GROUP BY ")
		buf.WriteString(groupBy)
	}
	if having != "" {
		buf.WriteString(" HAVING ")
		buf.WriteString(having)
	}
	paged := pagination && ps > 0
	if orderBy != "" {
		buf.WriteString(" ORDER BY ")
		buf.WriteString(orderBy)
	} else if b.requireOrder && (paged || limit > 0) {
		buf.WriteString(" ORDER BY (SELECT NULL)")
	}
	if paged {
		if pi < 1 {
			pi = 1
		}
		buf.WriteString(b.page(ps*(pi-1), ps))
	} else if limit > 0 {
		buf.WriteString(b.limit(limit))
	}
	if !b.lockAfterTable && lock != NoLock {
		buf.WriteString(b.locks[lock])
	}
}

func (b *base) InsertSQL(table string, fields []*model.Field) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", b.QuoteTable(table, ""), b.columnList(fields), b.paramList(fields))
}

func (b *base) UpdateSQL(info *UpdateClauseInfo) string {
	sets := make([]string, 0, len(info.Fields)+len(info.PlusAssigns)+len(info.MinusAssigns))
	for _, f := range info.Fields {
		sets = append(sets, fmt.Sprintf("%s = :%sNew", b.Quote(f.ColumnName), f.Name))
	}
	for _, a := range info.PlusAssigns {
		col := b.Quote(a.Field.ColumnName)
		sets = append(sets, fmt.Sprintf("%s = %s + :%s", col, col, a.Param))
	}
	for _, a := range info.MinusAssigns {
		col := b.Quote(a.Field.ColumnName)
		sets = append(sets, fmt.Sprintf("%s = %s - :%s", col, col, a.Param))
	}
	sql := fmt.Sprintf("UPDATE %s SET %s", b.QuoteTable(info.TableName, ""), strings.Join(sets, ", "))
	if info.Where != "" {
		sql += " WHERE " + info.Where
	}
	return sql
}

func (b *base) DeleteSQL(table string, where string) string {
	sql := "DELETE FROM " + b.QuoteTable(table, "")
	if where != "" {
		sql += " WHERE " + where
	}
	return sql
}

// equations 输出 `a` = :a, `b` = :b
func (b *base) equations(fields []*model.Field, sep string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, b.Quote(f.ColumnName)+" = :"+f.Name)
	}
	return strings.Join(parts, sep)
}

// columnsDef 建表语句的列定义，复合主键单独输出为表约束
func (b *base) columnsDef(table *model.Table, def func(f *model.Field, inlinePK bool) string) string {
	columns := table.Columns()
	pks := table.PrimaryKey()
	inline := len(pks) <= 1
	parts := make([]string, 0, len(columns)+1)
	for _, f := range columns {
		parts = append(parts, def(f, inline))
	}
	if !inline {
		parts = append(parts, "PRIMARY KEY ("+b.columnList(pks)+")")
	}
	return strings.Join(parts, ", ")
}

func (b *base) indexColumns(index *model.Index, sep string) string {
	parts := make([]string, 0, len(index.Columns))
	for _, c := range index.Columns {
		parts = append(parts, b.Quote(c))
	}
	return strings.Join(parts, sep)
}

func (b *base) query(ctx context.Context, w task.Wrapper, sql string, params map[string]any) ([]map[string]any, error) {
	rows, err := task.NewAtomicTask(sql, params, model.OperationSelect).Query(ctx, w)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s catalog", b.dbType)
	}
	return rows, nil
}

// groupIndexes 把按 (name, column) 展开的行合并为索引
func groupIndexes(rows []map[string]any, build func(row map[string]any) *model.Index) []*model.Index {
	var indexes []*model.Index
	byName := map[string]*model.Index{}
	for _, row := range rows {
		idx := build(row)
		if idx == nil || idx.Name == "" {
			continue
		}
		if exists, ok := byName[idx.Name]; ok {
			exists.Columns = append(exists.Columns, idx.Columns...)
			continue
		}
		byName[idx.Name] = idx
		indexes = append(indexes, idx)
	}
	return indexes
}

// get 大小写不敏感地读取一列
func get(row map[string]any, key string) any {
	if v, ok := row[key]; ok {
		return v
	}
	for k, v := range row {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

func str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}

func num(v any) int {
	switch x := v.(type) {
	case nil:
		return 0
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint64:
		return int(x)
	case float64:
		return int(x)
	case bool:
		if x {
			return 1
		}
		return 0
	}
	n, _ := strconv.Atoi(strings.TrimSpace(str(v)))
	return n
}

func yes(v any) bool {
	switch strings.ToUpper(strings.TrimSpace(str(v))) {
	case "YES", "Y", "1", "TRUE":
		return true
	}
	return false
}

var lengthPattern = regexp.MustCompile(`\((\d+)\)`)

// lengthOf 从 VARCHAR(36) 之类的类型文本中提取长度
func lengthOf(typ string) int {
	m := lengthPattern.FindStringSubmatch(typ)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// sizeOr 长度为 0 时使用默认值
func sizeOr(length int, def int) int {
	if length > 0 {
		return length
	}
	return def
}

func escapeString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
