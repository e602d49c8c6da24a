package dialect

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hatlonely/korm/model"
	"github.com/hatlonely/korm/task"
)

type MSSQL struct {
	*base
}

func NewMSSQL() *MSSQL {
	return &MSSQL{base: &base{
		dbType:       model.Mssql,
		open:         "[",
		close:        "]",
		schema:       "dbo",
		trueLiteral:  "1 = 1",
		falseLiteral: "1 = 0",
		locks: map[Lock]string{
			LockX: " WITH (UPDLOCK, ROWLOCK)",
			LockS: " WITH (HOLDLOCK, ROWLOCK)",
		},
		lockAfterTable: true,
		requireOrder:   true,
		page: func(offset int, size int) string {
			return fmt.Sprintf(" OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, size)
		},
		limit: func(n int) string {
			return fmt.Sprintf(" OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", n)
		},
	}}
}

// RegexpSQL SQL Server 没有正则，退化为 LIKE
func (s *MSSQL) RegexpSQL(column string, param string, not bool) string {
	if not {
		return column + " NOT LIKE " + param
	}
	return column + " LIKE " + param
}

func (s *MSSQL) ColumnType(t model.ColumnType, length int, scale int) string {
	switch t {
	case model.Bit, model.Tinyint, model.Smallint, model.Int, model.Bigint, model.Real, model.Date, model.Time, model.XML:
		return t.String()
	case model.Mediumint:
		return "INT"
	case model.Serial:
		return "BIGINT"
	case model.Year:
		return "SMALLINT"
	case model.Float, model.Double:
		return "FLOAT"
	case model.Decimal, model.Numeric:
		if length > 0 {
			return fmt.Sprintf("%s(%d,%d)", t, length, scale)
		}
		return t.String()
	case model.Char, model.Varchar, model.Nchar, model.Nvarchar, model.Binary, model.Varbinary:
		return fmt.Sprintf("%s(%d)", t, sizeOr(length, 255))
	case model.Text, model.Mediumtext, model.Longtext, model.Clob, model.JSON:
		return "TEXT"
	case model.Nclob:
		return "NTEXT"
	case model.Datetime, model.Timestamp:
		return "DATETIME2"
	case model.Longvarbinary, model.Blob, model.Mediumblob, model.Longblob:
		return "IMAGE"
	case model.UUID:
		return "CHAR(36)"
	case model.Geometry, model.Point, model.Linestring:
		return "GEOMETRY"
	}
	return "NVARCHAR(255)"
}

func (s *MSSQL) ColumnDefSQL(f *model.Field) string {
	return s.columnDef(f, true)
}

func (s *MSSQL) columnDef(f *model.Field, inlinePK bool) string {
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
		buf.WriteString(" IDENTITY")
	}
	if f.DefaultValue != "" {
		buf.WriteString(" DEFAULT ")
		buf.WriteString(f.DefaultValue)
	}
	return buf.String()
}

func (s *MSSQL) IndexDefSQL(table string, index *model.Index) string {
	var buf strings.Builder
	buf.WriteString("CREATE ")
	if index.Type != "" {
		buf.WriteString(strings.ToUpper(index.Type))
		buf.WriteString(" ")
	}
	if index.Method != "" {
		buf.WriteString(strings.ToUpper(index.Method))
		buf.WriteString(" ")
	}
	fmt.Fprintf(&buf, "INDEX %s ON %s (%s)", s.Quote(index.Name), s.QuoteTable(table, ""), s.indexColumns(index, ", "))
	return buf.String()
}

func (s *MSSQL) objectExists(table string) string {
	return fmt.Sprintf("SELECT * FROM sys.objects WHERE object_id = OBJECT_ID(N'%s') AND type in (N'U')", s.QuoteTable(table, ""))
}

func (s *MSSQL) commentSQL(table string, column string, comment string) string {
	sql := fmt.Sprintf("EXEC sp_addextendedproperty 'MS_Description', N'%s', 'SCHEMA', N'%s', 'TABLE', N'%s'", escapeString(comment), s.schema, table)
	if column != "" {
		sql += fmt.Sprintf(", 'COLUMN', N'%s'", column)
	}
	return sql
}

func (s *MSSQL) TableCreateSQL(table *model.Table) []string {
	sqls := []string{fmt.Sprintf(
		"IF NOT EXISTS (%s) BEGIN CREATE TABLE %s (%s); END;",
		s.objectExists(table.Name), s.QuoteTable(table.Name, ""), s.columnsDef(table, s.columnDef),
	)}
	for _, idx := range table.Indexes {
		sqls = append(sqls, s.IndexDefSQL(table.Name, idx))
	}
	if table.Comment != "" {
		sqls = append(sqls, s.commentSQL(table.Name, "", table.Comment))
	}
	for _, f := range table.Columns() {
		if f.Comment != "" {
			sqls = append(sqls, s.commentSQL(table.Name, f.ColumnName, f.Comment))
		}
	}
	return sqls
}

func (s *MSSQL) TableDropSQL(table string) []string {
	return []string{fmt.Sprintf("IF EXISTS (%s) BEGIN DROP TABLE %s END", s.objectExists(table), s.QuoteTable(table, ""))}
}

func (s *MSSQL) TableExistsSQL() string {
	return "SELECT COUNT(1) FROM sys.objects WHERE name = :tableName AND type = 'U'"
}

func (s *MSSQL) TableTruncateSQL(table string, restartIdentity bool) []string {
	return []string{"TRUNCATE TABLE " + s.QuoteTable(table, "")}
}

// dropDefaultConstraint 删除或修改列之前需要先删除列上的默认值约束，约束名只能在运行时查询
func (s *MSSQL) dropDefaultConstraint(table string, column string, n int) string {
	tb := s.QuoteTable(table, "")
	v := fmt.Sprintf("@ConstraintName%d", n)
	return fmt.Sprintf(
		"DECLARE %s NVARCHAR(200); "+
			"SELECT %s = dc.name FROM sys.default_constraints dc "+
			"JOIN sys.columns c ON dc.parent_object_id = c.object_id AND dc.parent_column_id = c.column_id "+
			"WHERE dc.parent_object_id = OBJECT_ID(N'%s') AND c.name = N'%s'; "+
			"IF %s IS NOT NULL EXEC('ALTER TABLE %s DROP CONSTRAINT [' + %s + ']');",
		v, v, tb, column, v, tb, v,
	)
}

func (s *MSSQL) TableSyncSQL(table *model.Table, columns *TableColumnDiff, indexes *TableIndexDiff) []string {
	tb := s.QuoteTable(table.Name, "")
	var sqls []string
	if indexes != nil {
		for _, idx := range indexes.ToDelete {
			sqls = append(sqls, fmt.Sprintf("DROP INDEX %s ON %s", s.Quote(idx.Name), tb))
		}
	}
	if columns != nil {
		n := 0
		for _, fields := range [][]*model.Field{columns.ToDelete, columns.ToModified} {
			for _, f := range fields {
				n++
				sqls = append(sqls, s.dropDefaultConstraint(table.Name, f.ColumnName, n))
			}
		}
		for _, f := range columns.ToDelete {
			sqls = append(sqls, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", tb, s.Quote(f.ColumnName)))
		}
		for _, f := range columns.ToAdd {
			sqls = append(sqls, fmt.Sprintf("ALTER TABLE %s ADD %s", tb, s.columnDef(f, false)))
		}
		for _, f := range columns.ToModified {
			sql := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s", tb, s.Quote(f.ColumnName), s.ColumnType(f.Type, f.Length, f.Scale))
			if !f.Nullable || f.IsPrimaryKey() {
				sql += " NOT NULL"
			}
			sqls = append(sqls, sql)
			if f.DefaultValue != "" {
				sqls = append(sqls, fmt.Sprintf("ALTER TABLE %s ADD DEFAULT %s FOR %s", tb, f.DefaultValue, s.Quote(f.ColumnName)))
			}
		}
	}
	if indexes != nil {
		for _, idx := range indexes.ToAdd {
			sqls = append(sqls, s.IndexDefSQL(table.Name, idx))
		}
	}
	return sqls
}

const mssqlColumnsSQL = "SELECT c.COLUMN_NAME, c.DATA_TYPE, c.CHARACTER_MAXIMUM_LENGTH AS LENGTH, c.NUMERIC_SCALE AS SCALE, " +
	"c.IS_NULLABLE, c.COLUMN_DEFAULT, CAST(ep.value AS NVARCHAR(4000)) AS COLUMN_COMMENT, " +
	"(CASE WHEN COLUMNPROPERTY(OBJECT_ID(c.TABLE_SCHEMA + '.' + c.TABLE_NAME), c.COLUMN_NAME, 'IsIdentity') = 1 THEN 'YES' ELSE 'NO' END) AS [IDENTITY], " +
	"(CASE WHEN EXISTS (SELECT 1 FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc " +
	"JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME " +
	"WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY' AND kcu.TABLE_NAME = c.TABLE_NAME AND kcu.COLUMN_NAME = c.COLUMN_NAME) " +
	"THEN 'YES' ELSE 'NO' END) AS PRIMARY_KEY " +
	"FROM INFORMATION_SCHEMA.COLUMNS c " +
	"LEFT JOIN sys.extended_properties ep ON ep.major_id = OBJECT_ID(c.TABLE_SCHEMA + '.' + c.TABLE_NAME) " +
	"AND ep.minor_id = COLUMNPROPERTY(OBJECT_ID(c.TABLE_SCHEMA + '.' + c.TABLE_NAME), c.COLUMN_NAME, 'ColumnId') " +
	"AND ep.name = 'MS_Description' " +
	"WHERE c.TABLE_NAME = :tableName ORDER BY c.ORDINAL_POSITION"

const mssqlIndexesSQL = "SELECT i.name AS INDEX_NAME, c.name AS COLUMN_NAME, i.is_unique AS IS_UNIQUE, i.type_desc AS INDEX_TYPE " +
	"FROM sys.indexes i " +
	"JOIN sys.index_columns ic ON i.object_id = ic.object_id AND i.index_id = ic.index_id " +
	"JOIN sys.columns c ON ic.object_id = c.object_id AND ic.column_id = c.column_id " +
	"WHERE i.object_id = OBJECT_ID(:tableName) AND i.is_primary_key = 0 AND i.name IS NOT NULL " +
	"ORDER BY i.name, ic.key_ordinal"

func (s *MSSQL) TableColumns(ctx context.Context, w task.Wrapper, table string) ([]*model.Field, error) {
	rows, err := s.query(ctx, w, mssqlColumnsSQL, map[string]any{"tableName": table})
	if err != nil {
		return nil, err
	}
	fields := make([]*model.Field, 0, len(rows))
	for _, row := range rows {
		f := &model.Field{
			ColumnName:   str(get(row, "COLUMN_NAME")),
			TableName:    table,
			Type:         model.ParseColumnType(str(get(row, "DATA_TYPE"))),
			Length:       num(get(row, "LENGTH")),
			Scale:        num(get(row, "SCALE")),
			Nullable:     yes(get(row, "IS_NULLABLE")),
			Identity:     yes(get(row, "IDENTITY")),
			DefaultValue: str(get(row, "COLUMN_DEFAULT")),
			Comment:      str(get(row, "COLUMN_COMMENT")),
		}
		f.Name = f.ColumnName
		if f.Length < 0 {
			f.Length = 0
		}
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

func (s *MSSQL) TableIndexes(ctx context.Context, w task.Wrapper, table string) ([]*model.Index, error) {
	rows, err := s.query(ctx, w, mssqlIndexesSQL, map[string]any{"tableName": table})
	if err != nil {
		return nil, err
	}
	return groupIndexes(rows, func(row map[string]any) *model.Index {
		idx := &model.Index{
			Name:    str(get(row, "INDEX_NAME")),
			Columns: []string{str(get(row, "COLUMN_NAME"))},
			Method:  str(get(row, "INDEX_TYPE")),
		}
		if num(get(row, "IS_UNIQUE")) == 1 {
			idx.Type = "UNIQUE"
		}
		return idx
	}), nil
}

func (s *MSSQL) OnConflictSQL(r *ConflictResolver) string {
	tb := s.QuoteTable(r.TableName, "")
	on := s.equations(r.OnFields, " AND ")
	insert := s.InsertSQL(r.TableName, r.ToInsertFields)
	if len(r.ToUpdateFields) == 0 {
		return fmt.Sprintf("IF NOT EXISTS (SELECT 1 FROM %s WHERE %s) BEGIN %s END", tb, on, insert)
	}
	return fmt.Sprintf(
		"IF EXISTS (SELECT 1 FROM %s WHERE %s) BEGIN UPDATE %s SET %s WHERE %s END ELSE BEGIN %s END",
		tb, on, tb, s.equations(r.ToUpdateFields, ", "), on, insert,
	)
}

// DBNameFromURL 支持 sqlserver://host?database=db 和 server=host;database=db 两种形式
func (s *MSSQL) DBNameFromURL(u string) string {
	if strings.Contains(u, "://") {
		parsed, err := url.Parse(u)
		if err != nil {
			return ""
		}
		return parsed.Query().Get("database")
	}
	for _, kv := range strings.Split(u, ";") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "database", "initial catalog":
			return strings.TrimSpace(v)
		}
	}
	return ""
}
