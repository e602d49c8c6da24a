package dialect

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/hatlonely/korm/model"
	"github.com/hatlonely/korm/task"
)

type SQLite struct {
	*base
}

func NewSQLite() *SQLite {
	return &SQLite{base: &base{
		dbType:       model.Sqlite,
		open:         `"`,
		close:        `"`,
		trueLiteral:  "true",
		falseLiteral: "false",
		page: func(offset int, size int) string {
			return fmt.Sprintf(" LIMIT %d OFFSET %d", size, offset)
		},
		limit: func(n int) string {
			return fmt.Sprintf(" LIMIT %d", n)
		},
	}}
}

// RegexpSQL 需要连接上注册了 regexp 函数
func (s *SQLite) RegexpSQL(column string, param string, not bool) string {
	if not {
		return column + " NOT REGEXP " + param
	}
	return column + " REGEXP " + param
}

func (s *SQLite) ColumnType(t model.ColumnType, length int, scale int) string {
	switch t {
	case model.Bit:
		return "TINYINT(1)"
	case model.Tinyint, model.Smallint, model.Int, model.Mediumint, model.Bigint,
		model.Real, model.Float, model.Double, model.Serial, model.Year,
		model.Date, model.Time, model.Datetime, model.Timestamp,
		model.Mediumtext, model.Longtext, model.Blob, model.Mediumblob, model.JSON:
		return t.String()
	case model.Decimal, model.Numeric:
		if length > 0 {
			return fmt.Sprintf("%s(%d,%d)", t, length, scale)
		}
		return t.String()
	case model.Char, model.Nchar:
		return fmt.Sprintf("CHAR(%d)", sizeOr(length, 255))
	case model.Varchar, model.Nvarchar:
		return fmt.Sprintf("VARCHAR(%d)", sizeOr(length, 255))
	case model.Binary, model.Varbinary:
		return fmt.Sprintf("%s(%d)", t, sizeOr(length, 255))
	case model.Text, model.XML, model.Clob, model.Nclob:
		return "TEXT"
	case model.Longvarbinary, model.Longblob:
		return "LONGBLOB"
	case model.UUID:
		return "CHAR(36)"
	}
	return "VARCHAR(255)"
}

func (s *SQLite) ColumnDefSQL(f *model.Field) string {
	return s.columnDef(f, true)
}

// columnDef 自增主键必须声明为 INTEGER PRIMARY KEY AUTOINCREMENT
func (s *SQLite) columnDef(f *model.Field, inlinePK bool) string {
	var buf strings.Builder
	buf.WriteString(s.Quote(f.ColumnName))
	buf.WriteString(" ")
	autoIncrement := inlinePK && f.IsPrimaryKey() && f.IsIdentity()
	if autoIncrement {
		buf.WriteString("INTEGER")
	} else {
		buf.WriteString(s.ColumnType(f.Type, f.Length, f.Scale))
	}
	if !f.Nullable || f.IsPrimaryKey() {
		buf.WriteString(" NOT NULL")
	}
	if inlinePK && f.IsPrimaryKey() {
		buf.WriteString(" PRIMARY KEY")
	}
	if autoIncrement {
		buf.WriteString(" AUTOINCREMENT")
	}
	if f.DefaultValue != "" {
		buf.WriteString(" DEFAULT ")
		buf.WriteString(f.DefaultValue)
	}
	return buf.String()
}

// IndexDefSQL Type 为 UNIQUE 时创建唯一索引，否则作为列的排序规则
func (s *SQLite) IndexDefSQL(table string, index *model.Index) string {
	unique := index.IsUnique() || strings.EqualFold(index.Method, "UNIQUE")
	columns := make([]string, 0, len(index.Columns))
	for _, c := range index.Columns {
		col := s.Quote(c)
		if index.Type != "" && !index.IsUnique() {
			col += " COLLATE " + index.Type
		}
		columns = append(columns, col)
	}
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)", kind, s.Quote(index.Name), s.Quote(table), strings.Join(columns, ", "))
}

func (s *SQLite) TableCreateSQL(table *model.Table) []string {
	sqls := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.Quote(table.Name), s.columnsDef(table, s.columnDef))}
	for _, idx := range table.Indexes {
		sqls = append(sqls, s.IndexDefSQL(table.Name, idx))
	}
	return sqls
}

func (s *SQLite) TableDropSQL(table string) []string {
	return []string{"DROP TABLE IF EXISTS " + s.Quote(table)}
}

func (s *SQLite) TableExistsSQL() string {
	return "SELECT COUNT(1) AS CNT FROM sqlite_master WHERE type = 'table' AND name = :tableName"
}

// TableTruncateSQL SQLite 没有 TRUNCATE，restartIdentity 时同时重置自增序列
func (s *SQLite) TableTruncateSQL(table string, restartIdentity bool) []string {
	sqls := []string{"DELETE FROM " + s.Quote(table)}
	if restartIdentity {
		sqls = append(sqls, fmt.Sprintf("DELETE FROM sqlite_sequence WHERE name = '%s'", escapeString(table)))
	}
	return sqls
}

// TableSyncSQL 有列需要修改时重建表，否则逐条 ALTER
func (s *SQLite) TableSyncSQL(table *model.Table, columns *TableColumnDiff, indexes *TableIndexDiff) []string {
	tb := s.Quote(table.Name)
	var sqls []string
	if indexes != nil {
		for _, idx := range indexes.ToDelete {
			sqls = append(sqls, "DROP INDEX IF EXISTS "+s.Quote(idx.Name))
		}
	}
	if columns != nil && len(columns.ToModified) > 0 {
		return append(sqls, s.rebuild(table, columns)...)
	}
	if columns != nil {
		for _, f := range columns.ToDelete {
			sqls = append(sqls, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", tb, s.Quote(f.ColumnName)))
		}
		for _, f := range columns.ToAdd {
			sqls = append(sqls, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", tb, s.columnDef(f, false)))
		}
	}
	if indexes != nil {
		for _, idx := range indexes.ToAdd {
			sqls = append(sqls, s.IndexDefSQL(table.Name, idx))
		}
	}
	return sqls
}

func (s *SQLite) rebuild(table *model.Table, columns *TableColumnDiff) []string {
	tb := s.Quote(table.Name)
	tmp := s.Quote("_korm_" + table.Name)
	added := map[string]struct{}{}
	for _, f := range columns.ToAdd {
		added[strings.ToLower(f.ColumnName)] = struct{}{}
	}
	var kept []*model.Field
	for _, f := range table.Columns() {
		if _, ok := added[strings.ToLower(f.ColumnName)]; !ok {
			kept = append(kept, f)
		}
	}
	sqls := []string{
		fmt.Sprintf("CREATE TABLE %s (%s)", tmp, s.columnsDef(table, s.columnDef)),
	}
	if len(kept) > 0 {
		list := s.columnList(kept)
		sqls = append(sqls, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", tmp, list, list, tb))
	}
	sqls = append(sqls,
		"DROP TABLE "+tb,
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tmp, tb),
	)
	for _, idx := range table.Indexes {
		sqls = append(sqls, s.IndexDefSQL(table.Name, idx))
	}
	return sqls
}

var (
	decimalPattern     = regexp.MustCompile(`\((\d+)\s*,\s*(\d+)\)`)
	indexColumnPattern = regexp.MustCompile(`\(([^()]*)\)\s*$`)
)

func (s *SQLite) TableColumns(ctx context.Context, w task.Wrapper, table string) ([]*model.Field, error) {
	rows, err := s.query(ctx, w, fmt.Sprintf("PRAGMA table_info(%s)", s.Quote(table)), nil)
	if err != nil {
		return nil, err
	}
	autoIncrement := false
	if master, err := s.query(ctx, w, "SELECT sql FROM sqlite_master WHERE type = 'table' AND name = :tableName", map[string]any{"tableName": table}); err == nil && len(master) > 0 {
		autoIncrement = strings.Contains(strings.ToUpper(str(get(master[0], "sql"))), "AUTOINCREMENT")
	}

	fields := make([]*model.Field, 0, len(rows))
	for _, row := range rows {
		declared := strings.ToUpper(strings.TrimSpace(str(get(row, "type"))))
		f := &model.Field{
			ColumnName:   str(get(row, "name")),
			TableName:    table,
			Type:         model.ParseColumnType(declared),
			Length:       lengthOf(declared),
			Nullable:     num(get(row, "notnull")) == 0,
			DefaultValue: str(get(row, "dflt_value")),
		}
		f.Name = f.ColumnName
		if declared == "TINYINT(1)" {
			f.Type = model.Bit
			f.Length = 0
		}
		if m := decimalPattern.FindStringSubmatch(declared); m != nil {
			f.Length, _ = strconv.Atoi(m[1])
			f.Scale, _ = strconv.Atoi(m[2])
		}
		if num(get(row, "pk")) > 0 {
			f.PrimaryKey = model.PrimaryKeyDefault
			if autoIncrement && declared == "INTEGER" {
				f.PrimaryKey = model.PrimaryKeyIdentity
				f.Identity = true
			}
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func (s *SQLite) TableIndexes(ctx context.Context, w task.Wrapper, table string) ([]*model.Index, error) {
	rows, err := s.query(ctx, w, "SELECT name, sql FROM sqlite_master WHERE type = 'index' AND tbl_name = :tableName AND sql IS NOT NULL", map[string]any{"tableName": table})
	if err != nil {
		return nil, err
	}
	return groupIndexes(rows, func(row map[string]any) *model.Index {
		sql := str(get(row, "sql"))
		idx := &model.Index{Name: str(get(row, "name"))}
		if strings.HasPrefix(strings.ToUpper(sql), "CREATE UNIQUE") {
			idx.Type = "UNIQUE"
		}
		if m := indexColumnPattern.FindStringSubmatch(sql); m != nil {
			for _, c := range strings.Split(m[1], ",") {
				c = strings.TrimSpace(c)
				if i := strings.IndexByte(c, ' '); i > 0 {
					c = c[:i]
				}
				idx.Columns = append(idx.Columns, strings.Trim(c, "\"`[]"))
			}
		}
		return idx
	}), nil
}

func (s *SQLite) OnConflictSQL(r *ConflictResolver) string {
	sql := s.InsertSQL(r.TableName, r.ToInsertFields) + " ON CONFLICT (" + s.columnList(r.OnFields) + ")"
	if len(r.ToUpdateFields) == 0 {
		return sql + " DO NOTHING"
	}
	return sql + " DO UPDATE SET " + s.equations(r.ToUpdateFields, ", ")
}

// DBNameFromURL 数据库文件名去掉扩展名，内存库为 main
func (s *SQLite) DBNameFromURL(u string) string {
	u = strings.TrimPrefix(u, "file:")
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	if u == "" || u == ":memory:" {
		return "main"
	}
	base := filepath.Base(u)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
