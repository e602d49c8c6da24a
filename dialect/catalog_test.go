package dialect

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hatlonely/korm/datasource"
	"github.com/hatlonely/korm/model"
	"github.com/hatlonely/korm/task"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/require"
	"vitess.io/vitess/go/vt/sqlparser"
)

func newMockWrapper(t *testing.T, dbType model.DBType) (task.Wrapper, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return datasource.NewSQLWrapper(db, dbType, "mock"), mock
}

func TestMySQLCatalog(t *testing.T) {
	ctx := context.Background()

	Convey("测试 mysql 表结构读取", t, func() {
		w, mock := newMockWrapper(t, model.Mysql)
		mock.ExpectQuery(strings.Replace(mysqlColumnsSQL, ":tableName", "?", 1)).
			WithArgs("tb_user").
			WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "COLUMN_TYPE", "LENGTH", "SCALE", "IS_NULLABLE", "COLUMN_DEFAULT", "COLUMN_COMMENT", "IDENTITY", "PRIMARY_KEY"}).
				AddRow("id", "int", "int(11)", int64(10), int64(0), "NO", nil, "主键", "YES", "YES").
				AddRow("username", "varchar", "varchar(36)", int64(36), nil, "YES", nil, "", "NO", "NO").
				AddRow("deleted", "tinyint", "tinyint(1)", int64(3), int64(0), "NO", "0", "", "NO", "NO"))
		mock.ExpectQuery(strings.Replace(mysqlIndexesSQL, ":tableName", "?", 1)).
			WithArgs("tb_user").
			WillReturnRows(sqlmock.NewRows([]string{"INDEX_NAME", "COLUMN_NAME", "NON_UNIQUE", "INDEX_TYPE"}).
				AddRow("uk_name", "username", int64(0), "BTREE").
				AddRow("uk_name", "deleted", int64(0), "BTREE").
				AddRow("idx_deleted", "deleted", int64(1), "BTREE"))

		s := MustOf(model.Mysql)
		fields, err := s.TableColumns(ctx, w, "tb_user")
		So(err, ShouldBeNil)
		So(fields, ShouldHaveLength, 3)
		So(fields[0].PrimaryKey, ShouldEqual, model.PrimaryKeyIdentity)
		So(fields[0].Comment, ShouldEqual, "主键")
		So(fields[0].Nullable, ShouldBeFalse)
		So(fields[1].Type, ShouldEqual, model.Varchar)
		So(fields[1].Length, ShouldEqual, 36)
		So(fields[1].Nullable, ShouldBeTrue)
		So(fields[2].Type, ShouldEqual, model.Bit)
		So(fields[2].DefaultValue, ShouldEqual, "0")

		indexes, err := s.TableIndexes(ctx, w, "tb_user")
		So(err, ShouldBeNil)
		So(indexes, ShouldResemble, []*model.Index{
			{Name: "uk_name", Columns: []string{"username", "deleted"}, Type: "UNIQUE", Method: "BTREE"},
			{Name: "idx_deleted", Columns: []string{"deleted"}, Method: "BTREE"},
		})
		So(mock.ExpectationsWereMet(), ShouldBeNil)
	})

	Convey("测试查询失败", t, func() {
		w, mock := newMockWrapper(t, model.Mysql)
		mock.ExpectQuery(strings.Replace(mysqlColumnsSQL, ":tableName", "?", 1)).WillReturnError(sql.ErrConnDone)
		_, err := MustOf(model.Mysql).TableColumns(ctx, w, "tb_user")
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "Mysql catalog")
	})
}

func TestMSSQLCatalog(t *testing.T) {
	Convey("测试 sqlserver 表结构读取", t, func() {
		w, mock := newMockWrapper(t, model.Mssql)
		mock.ExpectQuery(strings.Replace(mssqlColumnsSQL, ":tableName", "@p1", 1)).
			WithArgs("tb_user").
			WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "LENGTH", "SCALE", "IS_NULLABLE", "COLUMN_DEFAULT", "COLUMN_COMMENT", "IDENTITY", "PRIMARY_KEY"}).
				AddRow("id", "bigint", nil, int64(0), "NO", nil, nil, "YES", "YES").
				AddRow("content", "nvarchar", int64(-1), nil, "YES", nil, "正文", "NO", "NO").
				AddRow("created", "datetime2", nil, nil, "YES", "(getdate())", nil, "NO", "NO"))

		fields, err := MustOf(model.Mssql).TableColumns(context.Background(), w, "tb_user")
		So(err, ShouldBeNil)
		So(fields, ShouldHaveLength, 3)
		So(fields[0].Type, ShouldEqual, model.Bigint)
		So(fields[0].PrimaryKey, ShouldEqual, model.PrimaryKeyIdentity)
		So(fields[1].Type, ShouldEqual, model.Nvarchar)
		So(fields[1].Length, ShouldEqual, 0)
		So(fields[1].Comment, ShouldEqual, "正文")
		So(fields[2].Type, ShouldEqual, model.Datetime)
		So(fields[2].DefaultValue, ShouldEqual, "(getdate())")
		So(mock.ExpectationsWereMet(), ShouldBeNil)
	})
}

func TestOracleCatalog(t *testing.T) {
	Convey("测试 oracle 表结构读取", t, func() {
		w, mock := newMockWrapper(t, model.Oracle)
		mock.ExpectQuery(strings.Replace(oracleColumnsSQL, ":tableName", ":1", 1)).
			WithArgs("tb_user").
			WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "CHAR_LENGTH", "DATA_PRECISION", "DATA_SCALE", "NULLABLE", "DATA_DEFAULT", "IDENTITY_COLUMN", "COMMENTS", "PRIMARY_KEY"}).
				AddRow("ID", "NUMBER", int64(0), int64(19), int64(0), "N", nil, "YES", nil, "YES").
				AddRow("USERNAME", "VARCHAR2", int64(64), nil, nil, "Y", nil, "NO", nil, "NO").
				AddRow("AMOUNT", "NUMBER", int64(0), int64(12), int64(2), "Y", "0 ", "NO", "金额", "NO").
				AddRow("FLAG", "NUMBER", int64(0), int64(1), int64(0), "N", "0", "NO", nil, "NO"))
		mock.ExpectQuery(strings.Replace(oracleIndexesSQL, ":tableName", ":1", 1)).
			WithArgs("tb_user").
			WillReturnRows(sqlmock.NewRows([]string{"INDEX_NAME", "COLUMN_NAME", "UNIQUENESS", "INDEX_TYPE"}).
				AddRow("UK_USERNAME", "USERNAME", "UNIQUE", "NORMAL"))

		s := MustOf(model.Oracle)
		fields, err := s.TableColumns(context.Background(), w, "tb_user")
		So(err, ShouldBeNil)
		So(fields, ShouldHaveLength, 4)
		So(fields[0].ColumnName, ShouldEqual, "id")
		So(fields[0].Type, ShouldEqual, model.Bigint)
		So(fields[0].IsIdentity(), ShouldBeTrue)
		So(fields[1].Type, ShouldEqual, model.Varchar)
		So(fields[1].Length, ShouldEqual, 64)
		So(fields[2].Type, ShouldEqual, model.Numeric)
		So(fields[2].Length, ShouldEqual, 12)
		So(fields[2].Scale, ShouldEqual, 2)
		So(fields[2].DefaultValue, ShouldEqual, "0")
		So(fields[3].Type, ShouldEqual, model.Bit)

		indexes, err := s.TableIndexes(context.Background(), w, "tb_user")
		So(err, ShouldBeNil)
		So(indexes, ShouldResemble, []*model.Index{{Name: "uk_username", Columns: []string{"username"}, Type: "UNIQUE"}})
		So(mock.ExpectationsWereMet(), ShouldBeNil)
	})
}

func newSQLiteWrapper(t *testing.T) task.Wrapper {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return datasource.NewSQLWrapper(db, model.Sqlite, ":memory:")
}

func execAll(ctx context.Context, w task.Wrapper, sqls []string) error {
	for _, s := range sqls {
		if _, err := w.Update(ctx, task.NewAtomicTask(s, nil, model.OperationAlter)); err != nil {
			return err
		}
	}
	return nil
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := MustOf(model.Sqlite)

	newTable := func() *model.Table {
		return model.NewTable("tb_user",
			&model.Field{ColumnName: "id", Name: "id", Type: model.Int, PrimaryKey: model.PrimaryKeyIdentity, Identity: true},
			&model.Field{ColumnName: "username", Name: "username", Type: model.Varchar, Length: 36, Nullable: true},
			&model.Field{ColumnName: "amount", Name: "amount", Type: model.Decimal, Length: 10, Scale: 2, Nullable: true},
			&model.Field{ColumnName: "deleted", Name: "deleted", Type: model.Bit, DefaultValue: "0"},
		).WithIndexes(&model.Index{Name: "idx_username", Columns: []string{"username"}})
	}

	Convey("测试 sqlite 建表后读取表结构", t, func() {
		w := newSQLiteWrapper(t)
		table := newTable()
		So(execAll(ctx, w, s.TableCreateSQL(table)), ShouldBeNil)

		rows, err := w.ForList(ctx, task.NewAtomicTask(s.TableExistsSQL(), map[string]any{"tableName": "tb_user", "dbName": "main"}, model.OperationSelect))
		So(err, ShouldBeNil)
		So(rows[0]["CNT"], ShouldEqual, int64(1))

		fields, err := s.TableColumns(ctx, w, "tb_user")
		So(err, ShouldBeNil)
		So(fields, ShouldHaveLength, 4)
		for i, f := range table.Columns() {
			So(fields[i].SameDefinition(f), ShouldBeTrue)
		}
		So(fields[0].IsIdentity(), ShouldBeTrue)
		So(fields[1].Length, ShouldEqual, 36)
		So(fields[2].Length, ShouldEqual, 10)
		So(fields[2].Scale, ShouldEqual, 2)
		So(fields[3].Type, ShouldEqual, model.Bit)
		So(fields[3].DefaultValue, ShouldEqual, "0")
		So(DiffColumns(s, table.Columns(), fields).Empty(), ShouldBeTrue)

		indexes, err := s.TableIndexes(ctx, w, "tb_user")
		So(err, ShouldBeNil)
		So(indexes, ShouldResemble, []*model.Index{{Name: "idx_username", Columns: []string{"username"}}})
		So(DiffIndexes(table.Indexes, indexes).Empty(), ShouldBeTrue)

		Convey("同步新增列和修改列", func() {
			_, err := w.Insert(ctx, task.NewAtomicTask(`INSERT INTO "tb_user" ("username", "amount") VALUES (:username, :amount)`, map[string]any{"username": "a", "amount": 1.5}, model.OperationInsert))
			So(err, ShouldBeNil)

			expected := newTable()
			expected.Field("username").Length = 64
			expected.Fields = append(expected.Fields, &model.Field{ColumnName: "nickname", Name: "nickname", TableName: "tb_user", Type: model.Varchar, Length: 20, Nullable: true})

			columns := DiffColumns(s, expected.Columns(), fields)
			So(columns.ToAdd, ShouldHaveLength, 1)
			So(columns.ToModified, ShouldHaveLength, 1)
			So(execAll(ctx, w, s.TableSyncSQL(expected, columns, DiffIndexes(expected.Indexes, indexes))), ShouldBeNil)

			fields, err := s.TableColumns(ctx, w, "tb_user")
			So(err, ShouldBeNil)
			So(fields, ShouldHaveLength, 5)
			So(fields[1].Length, ShouldEqual, 64)
			So(fields[4].ColumnName, ShouldEqual, "nickname")
			So(fields[0].IsIdentity(), ShouldBeTrue)

			rows, err := w.ForList(ctx, task.NewAtomicTask(`SELECT "id", "username" FROM "tb_user"`, nil, model.OperationSelect))
			So(err, ShouldBeNil)
			So(rows, ShouldResemble, []map[string]any{{"id": int64(1), "username": "a"}})

			indexes, err := s.TableIndexes(ctx, w, "tb_user")
			So(err, ShouldBeNil)
			So(indexes, ShouldHaveLength, 1)
		})

		Convey("清表后自增重新计数", func() {
			insert := task.NewAtomicTask(`INSERT INTO "tb_user" ("username") VALUES (:username)`, map[string]any{"username": "a"}, model.OperationInsert)
			_, err := w.Insert(ctx, insert)
			So(err, ShouldBeNil)
			So(execAll(ctx, w, s.TableTruncateSQL("tb_user", true)), ShouldBeNil)
			res, err := w.Insert(ctx, insert)
			So(err, ShouldBeNil)
			So(res.LastInsertID, ShouldEqual, 1)
		})

		Convey("删表", func() {
			So(execAll(ctx, w, s.TableDropSQL("tb_user")), ShouldBeNil)
			rows, err := w.ForList(ctx, task.NewAtomicTask(s.TableExistsSQL(), map[string]any{"tableName": "tb_user"}, model.OperationSelect))
			So(err, ShouldBeNil)
			So(rows[0]["CNT"], ShouldEqual, int64(0))
		})
	})
}

func TestMySQLStatementsParse(t *testing.T) {
	parser := sqlparser.NewTestParser()
	s := MustOf(model.Mysql)
	id, username, createTime, score := userFields()
	table := userTable()

	sqls := []string{
		s.SelectSQL(&SelectClauseInfo{TableName: "tb_user", Fields: []*model.Field{id, createTime}, Where: "`id` = :id", Pagination: true, PageIndex: 2, PageSize: 10, Lock: LockS}),
		s.JoinSQL(&JoinClauseInfo{
			TableName: "tb_user",
			Fields:    []*JoinField{{Field: id, Alias: "id"}, {Field: &model.Field{ColumnName: "city", Name: "city", TableName: "tb_address"}, Alias: "city"}},
			Joins:     []*JoinTable{{Type: "LEFT JOIN", TableName: "tb_address", On: "`tb_user`.`id` = `tb_address`.`user_id`"}},
			OrderBy:   "`tb_user`.`id` DESC",
			Limit:     3,
		}),
		s.InsertSQL("tb_user", []*model.Field{username, createTime}),
		s.UpdateSQL(&UpdateClauseInfo{TableName: "tb_user", Fields: []*model.Field{username}, PlusAssigns: []*Assign{{Field: score, Param: "score"}}, Where: "`id` = :id"}),
		s.DeleteSQL("tb_user", "`id` IN (:idList)"),
		s.OnConflictSQL(NewConflictResolver("tb_user", []*model.Field{id}, []*model.Field{id, username})),
		s.TableDropSQL("tb_user")[0],
		s.TableTruncateSQL("tb_user", false)[0],
	}
	sqls = append(sqls, s.TableCreateSQL(table)...)

	for _, stmt := range sqls {
		_, err := parser.Parse(stmt)
		require.NoError(t, err, stmt)
	}
}
