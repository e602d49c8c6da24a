package dialect

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/hatlonely/korm/model"
	"github.com/hatlonely/korm/task"
)

type MySQL struct {
	*base
}

func NewMySQL() *MySQL {
	return &MySQL{base: &base{
		dbType:       model.Mysql,
		open:         "`",
		close:        "`",
		trueLiteral:  "true",
		falseLiteral: "false",
		locks: map[Lock]string{
			LockX: " FOR UPDATE",
			LockS: " LOCK IN SHARE MODE",
		},
		page: func(offset int, size int) string {
			return fmt.Sprintf(" LIMIT %d OFFSET %d", size, offset)
		},
		limit: func(n int) string {
			return fmt.Sprintf(" LIMIT %d", n)
		},
	}}
}

func (s *MySQL) RegexpSQL(column string, param string, not bool) string {
	if not {
		return column + " NOT REGEXP " + param
	}
	return column + " REGEXP " + param
}

func (s *MySQL) ColumnType(t model.ColumnType, length int, scale int) string {
	switch t {
	case model.Bit:
		return "TINYINT(1)"
	case model.Tinyint, model.Smallint, model.Int, model.Mediumint, model.Bigint,
		model.Real, model.Float, model.Double, model.Serial, model.Year,
		model.Date, model.Time, model.Datetime, model.Timestamp,
		model.Mediumtext, model.Longtext, model.Blob, model.Mediumblob, model.JSON,
		model.Geometry, model.Point, model.Linestring:
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

func (s *MySQL) ColumnDefSQL(f *model.Field) string {
	return s.columnDef(f, true)
}

func (s *MySQL) columnDef(f *model.Field, inlinePK bool) string {
	var buf strings.Builder
	buf.WriteString(s.Quote(f.ColumnName))
	buf.WriteString(" ")
	buf.WriteString(s.ColumnType(f.Type, f.Length, f.Scale))
	if !f.Nullable || f.IsPrimaryKey() {
		buf.WriteString(" NOT NULL")
	}
	if inlinePK && f.IsPrimaryKey() {
		buf.WriteString(" PRIMARY KEY")
	}
	if f.IsIdentity() {
		buf.WriteString(" AUTO_INCREMENT")
	}
	if f.DefaultValue != "" {
		buf.WriteString(" DEFAULT ")
		buf.WriteString(f.DefaultValue)
	}
	if f.Comment != "" {
		buf.WriteString(" COMMENT '")
		buf.WriteString(escapeString(f.Comment))
		buf.WriteString("'")
	}
	return buf.String()
}

func (s *MySQL) indexBody(index *model.Index) string {
	sql := fmt.Sprintf("INDEX %s", s.Quote(index.Name))
	if index.Type != "" {
		sql = strings.ToUpper(index.Type) + " " + sql
	}
	return sql
}

func (s *MySQL) indexMethod(index *model.Index) string {
	if index.Method == "" {
		return ""
	}
	return " USING " + strings.ToUpper(index.Method)
}

func (s *MySQL) IndexDefSQL(table string, index *model.Index) string {
	return fmt.Sprintf("CREATE %s ON %s (%s)%s", s.indexBody(index), s.Quote(table), s.indexColumns(index, ", "), s.indexMethod(index))
}

func (s *MySQL) TableCreateSQL(table *model.Table) []string {
	sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.Quote(table.Name), s.columnsDef(table, s.columnDef))
	if table.Comment != "" {
		sql += " COMMENT = '" + escapeString(table.Comment) + "'"
	}
	sqls := []string{sql}
	for _, idx := range table.Indexes {
		sqls = append(sqls, s.IndexDefSQL(table.Name, idx))
	}
	return sqls
}

func (s *MySQL) TableDropSQL(table string) []string {
	return []string{"DROP TABLE IF EXISTS " + s.Quote(table)}
}

func (s *MySQL) TableExistsSQL() string {
	return "SELECT COUNT(1) FROM information_schema.tables WHERE table_name = :tableName AND table_schema = :dbName"
}

func (s *MySQL) TableTruncateSQL(table string, restartIdentity bool) []string {
	return []string{"TRUNCATE TABLE " + s.Quote(table)}
}

func (s *MySQL) TableSyncSQL(table *model.Table, columns *TableColumnDiff, indexes *TableIndexDiff) []string {
	tb := s.Quote(table.Name)
	var sqls []string
	if indexes != nil {
		for _, idx := range indexes.ToDelete {
			sqls = append(sqls, fmt.Sprintf("ALTER TABLE %s DROP INDEX %s", tb, s.Quote(idx.Name)))
		}
	}
	if columns != nil {
		for _, f := range columns.ToDelete {
			sqls = append(sqls, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", tb, s.Quote(f.ColumnName)))
		}
		for _, f := range columns.ToAdd {
			sqls = append(sqls, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", tb, s.columnDef(f, false)))
		}
		for _, f := range columns.ToModified {
			sqls = append(sqls, fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", tb, s.columnDef(f, false)))
		}
	}
	if indexes != nil {
		for _, idx := range indexes.ToAdd {
			sqls = append(sqls, fmt.Sprintf("ALTER TABLE %s ADD %s (%s)%s", tb, s.indexBody(idx), s.indexColumns(idx, ", "), s.indexMethod(idx)))
		}
	}
	return sqls
}

const mysqlColumnsSQL = "SELECT c.COLUMN_NAME, c.DATA_TYPE, c.COLUMN_TYPE, " +
	"COALESCE(c.CHARACTER_MAXIMUM_LENGTH, c.NUMERIC_PRECISION) AS LENGTH, c.NUMERIC_SCALE AS SCALE, " +
	"c.IS_NULLABLE, c.COLUMN_DEFAULT, c.COLUMN_COMMENT, " +
	"(CASE WHEN c.EXTRA = 'auto_increment' THEN 'YES' ELSE 'NO' END) AS IDENTITY, " +
	"(CASE WHEN c.COLUMN_KEY = 'PRI' THEN 'YES' ELSE 'NO' END) AS PRIMARY_KEY " +
	"FROM INFORMATION_SCHEMA.COLUMNS c " +
	"WHERE c.TABLE_SCHEMA = DATABASE() AND c.TABLE_NAME = :tableName ORDER BY c.ORDINAL_POSITION"

const mysqlIndexesSQL = "SELECT INDEX_NAME, COLUMN_NAME, NON_UNIQUE, INDEX_TYPE " +
	"FROM INFORMATION_SCHEMA.STATISTICS " +
	"WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = :tableName AND INDEX_NAME != 'PRIMARY' " +
	"ORDER BY INDEX_NAME, SEQ_IN_INDEX"

func (s *MySQL) TableColumns(ctx context.Context, w task.Wrapper, table string) ([]*model.Field, error) {
	rows, err := s.query(ctx, w, mysqlColumnsSQL, map[string]any{"tableName": table})
	if err != nil {
		return nil, err
	}
	fields := make([]*model.Field, 0, len(rows))
	for _, row := range rows {
		typ := model.ParseColumnType(str(get(row, "DATA_TYPE")))
		if strings.EqualFold(str(get(row, "COLUMN_TYPE")), "tinyint(1)") {
			typ = model.Bit
		}
		f := &model.Field{
			ColumnName:   str(get(row, "COLUMN_NAME")),
			TableName:    table,
			Type:         typ,
			Length:       num(get(row, "LENGTH")),
			Scale:        num(get(row, "SCALE")),
			Nullable:     yes(get(row, "IS_NULLABLE")),
			Identity:     yes(get(row, "IDENTITY")),
			DefaultValue: str(get(row, "COLUMN_DEFAULT")),
			Comment:      str(get(row, "COLUMN_COMMENT")),
		}
		f.Name = f.ColumnName
		if yes(get(row, "PRIMARY_KEY")) {
			f.PrimaryKey = model.PrimaryKeyDefault
			if f.Identity {
				f.PrimaryKey = model.PrimaryKeyIdentity
			}
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func (s *MySQL) TableIndexes(ctx context.Context, w task.Wrapper, table string) ([]*model.Index, error) {
	rows, err := s.query(ctx, w, mysqlIndexesSQL, map[string]any{"tableName": table})
	if err != nil {
		return nil, err
	}
	return groupIndexes(rows, func(row map[string]any) *model.Index {
		idx := &model.Index{
			Name:    str(get(row, "INDEX_NAME")),
			Columns: []string{str(get(row, "COLUMN_NAME"))},
			Method:  str(get(row, "INDEX_TYPE")),
		}
		if num(get(row, "NON_UNIQUE")) == 0 {
			idx.Type = "UNIQUE"
		}
		return idx
	}), nil
}

func (s *MySQL) OnConflictSQL(r *ConflictResolver) string {
	update := s.equations(r.ToUpdateFields, ", ")
	if update == "" && len(r.OnFields) > 0 {
		col := s.Quote(r.OnFields[0].ColumnName)
		update = col + " = " + col
	}
	return s.InsertSQL(r.TableName, r.ToInsertFields) + " ON DUPLICATE KEY UPDATE " + update
}

// DBNameFromURL 支持驱动 DSN 和 mysql:// 形式
func (s *MySQL) DBNameFromURL(u string) string {
	if cfg, err := mysql.ParseDSN(u); err == nil && cfg.DBName != "" {
		return cfg.DBName
	}
	if parsed, err := url.Parse(u); err == nil {
		return strings.Trim(parsed.Path, "/")
	}
	return ""
}
