package dialect

import (
	"testing"

	"github.com/hatlonely/korm/model"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userFields() (id, username, createTime, score *model.Field) {
	id = &model.Field{ColumnName: "id", Name: "id", TableName: "tb_user", Type: model.Int, PrimaryKey: model.PrimaryKeyIdentity, Identity: true}
	username = &model.Field{ColumnName: "username", Name: "username", TableName: "tb_user", Type: model.Varchar, Length: 36, Nullable: true}
	createTime = &model.Field{ColumnName: "create_time", Name: "createTime", TableName: "tb_user", Type: model.Datetime, Nullable: true}
	score = &model.Field{ColumnName: "score", Name: "score", TableName: "tb_user", Type: model.Int, Nullable: true}
	return
}

func TestOf(t *testing.T) {
	Convey("测试方言注册表", t, func() {
		for _, dbType := range []model.DBType{model.Mysql, model.Mssql, model.Sqlite, model.Oracle} {
			s, err := Of(dbType)
			So(err, ShouldBeNil)
			So(s.DBType(), ShouldEqual, dbType)
		}

		_, err := Of("Postgres")
		So(errors.Is(err, ErrUnsupportedDBType), ShouldBeTrue)
		So(func() { MustOf("Postgres") }, ShouldPanic)

		Convey("重复注册保留先注册的实现", func() {
			So(Register(NewMySQL()), ShouldEqual, MustOf(model.Mysql))
		})
	})
}

func TestSelectSQL(t *testing.T) {
	id, username, createTime, _ := userFields()

	tests := []struct {
		name   string
		dbType model.DBType
		info   *SelectClauseInfo
		want   string
	}{
		{
			name:   "mysql 分页",
			dbType: model.Mysql,
			info:   &SelectClauseInfo{TableName: "tb_user", Fields: []*model.Field{id}, Where: "`id` = :id", Pagination: true, PageIndex: 1, PageSize: 10},
			want:   "SELECT `id` FROM `tb_user` WHERE `id` = :id LIMIT 10 OFFSET 0",
		},
		{
			name:   "sqlserver 分页补充排序",
			dbType: model.Mssql,
			info:   &SelectClauseInfo{TableName: "tb_user", Fields: []*model.Field{id}, Where: "[id] = :id", Pagination: true, PageIndex: 1, PageSize: 10},
			want:   "SELECT [id] FROM [dbo].[tb_user] WHERE [id] = :id ORDER BY (SELECT NULL) OFFSET 0 ROWS FETCH NEXT 10 ROWS ONLY",
		},
		{
			name:   "sqlite 分页",
			dbType: model.Sqlite,
			info:   &SelectClauseInfo{TableName: "tb_user", Fields: []*model.Field{id}, Where: `"id" = :id`, Pagination: true, PageIndex: 1, PageSize: 10},
			want:   `SELECT "id" FROM "tb_user" WHERE "id" = :id LIMIT 10 OFFSET 0`,
		},
		{
			name:   "oracle 分页和别名",
			dbType: model.Oracle,
			info:   &SelectClauseInfo{TableName: "tb_user", Fields: []*model.Field{id}, Where: `"ID" = :id`, Pagination: true, PageIndex: 1, PageSize: 10},
			want:   `SELECT "ID" AS "id" FROM "TB_USER" WHERE "ID" = :id OFFSET 0 ROWS FETCH NEXT 10 ROWS ONLY`,
		},
		{
			name:   "mysql 第三页",
			dbType: model.Mysql,
			info:   &SelectClauseInfo{TableName: "tb_user", Fields: []*model.Field{id, username}, Pagination: true, PageIndex: 3, PageSize: 20, OrderBy: "`id` ASC"},
			want:   "SELECT `id`, `username` FROM `tb_user` ORDER BY `id` ASC LIMIT 20 OFFSET 40",
		},
		{
			name:   "mysql 别名",
			dbType: model.Mysql,
			info:   &SelectClauseInfo{TableName: "tb_user", Fields: []*model.Field{id, createTime}},
			want:   "SELECT `id`, `create_time` AS `createTime` FROM `tb_user`",
		},
		{
			name:   "mysql 去重分组",
			dbType: model.Mysql,
			info: &SelectClauseInfo{
				TableName: "tb_user",
				Fields:    []*model.Field{username, model.RawField("COUNT(1) AS `cnt`")},
				Distinct:  true,
				GroupBy:   "`username`",
				Having:    "COUNT(1) > :cnt",
				OrderBy:   "`username` DESC",
				Limit:     5,
			},
			want: "SELECT DISTINCT `username`, COUNT(1) AS `cnt` FROM `tb_user` GROUP BY `username` HAVING COUNT(1) > :cnt ORDER BY `username` DESC LIMIT 5",
		},
		{
			name:   "oracle 限制条数",
			dbType: model.Oracle,
			info:   &SelectClauseInfo{TableName: "tb_user", Fields: []*model.Field{username}, Limit: 1},
			want:   `SELECT "USERNAME" AS "username" FROM "TB_USER" FETCH FIRST 1 ROWS ONLY`,
		},
		{
			name:   "sqlserver 限制条数",
			dbType: model.Mssql,
			info:   &SelectClauseInfo{TableName: "tb_user", Fields: []*model.Field{username}, Limit: 1, OrderBy: "[id] DESC"},
			want:   "SELECT [username] FROM [dbo].[tb_user] ORDER BY [id] DESC OFFSET 0 ROWS FETCH NEXT 1 ROWS ONLY",
		},
		{
			name:   "mysql 排他锁",
			dbType: model.Mysql,
			info:   &SelectClauseInfo{TableName: "tb_user", Fields: []*model.Field{id}, Where: "`id` = :id", Lock: LockX},
			want:   "SELECT `id` FROM `tb_user` WHERE `id` = :id FOR UPDATE",
		},
		{
			name:   "mysql 共享锁",
			dbType: model.Mysql,
			info:   &SelectClauseInfo{TableName: "tb_user", Fields: []*model.Field{id}, Lock: LockS},
			want:   "SELECT `id` FROM `tb_user` LOCK IN SHARE MODE",
		},
		{
			name:   "sqlserver 行锁",
			dbType: model.Mssql,
			info:   &SelectClauseInfo{TableName: "tb_user", Fields: []*model.Field{id}, Where: "[id] = :id", Lock: LockX},
			want:   "SELECT [id] FROM [dbo].[tb_user] WITH (UPDLOCK, ROWLOCK) WHERE [id] = :id",
		},
		{
			name:   "oracle 共享锁退化为排他锁",
			dbType: model.Oracle,
			info:   &SelectClauseInfo{TableName: "tb_user", Fields: []*model.Field{id}, Lock: LockS},
			want:   `SELECT "ID" AS "id" FROM "TB_USER" FOR UPDATE`,
		},
		{
			name:   "sqlite 忽略锁",
			dbType: model.Sqlite,
			info:   &SelectClauseInfo{TableName: "tb_user", Fields: []*model.Field{id}, Lock: LockX},
			want:   `SELECT "id" FROM "tb_user"`,
		},
		{
			name:   "mysql 库名前缀",
			dbType: model.Mysql,
			info:   &SelectClauseInfo{DatabaseName: "korm", TableName: "tb_user", Fields: []*model.Field{id}},
			want:   "SELECT `id` FROM `korm`.`tb_user`",
		},
		{
			name:   "sqlserver 库名前缀",
			dbType: model.Mssql,
			info:   &SelectClauseInfo{DatabaseName: "korm", TableName: "tb_user", Fields: []*model.Field{id}},
			want:   "SELECT [id] FROM [korm].[dbo].[tb_user]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MustOf(tt.dbType).SelectSQL(tt.info))
		})
	}
}

func TestJoinSQL(t *testing.T) {
	id, username, _, _ := userFields()
	addressID := &model.Field{ColumnName: "id", Name: "id", TableName: "tb_address", Type: model.Int}

	info := &JoinClauseInfo{
		TableName: "tb_user",
		Fields: []*JoinField{
			{Field: id, Alias: "id"},
			{Field: username, Alias: "username"},
			{Field: addressID, Alias: "id@1"},
		},
		Joins:      []*JoinTable{{Type: "LEFT JOIN", TableName: "tb_address"}},
		Pagination: true,
		PageIndex:  2,
		PageSize:   10,
	}

	info.Joins[0].On = "`tb_user`.`id` = `tb_address`.`user_id`"
	info.Where = "`tb_user`.`id` > :idMin"
	assert.Equal(t,
		"SELECT `tb_user`.`id` AS `id`, `tb_user`.`username` AS `username`, `tb_address`.`id` AS `id@1` FROM `tb_user` "+
			"LEFT JOIN `tb_address` ON `tb_user`.`id` = `tb_address`.`user_id` WHERE `tb_user`.`id` > :idMin LIMIT 10 OFFSET 10",
		MustOf(model.Mysql).JoinSQL(info),
	)

	info.Joins[0].On = "[tb_user].[id] = [tb_address].[user_id]"
	info.Where = ""
	info.Lock = LockS
	assert.Equal(t,
		"SELECT [tb_user].[id] AS [id], [tb_user].[username] AS [username], [tb_address].[id] AS [id@1] FROM [dbo].[tb_user] WITH (HOLDLOCK, ROWLOCK) "+
			"LEFT JOIN [dbo].[tb_address] ON [tb_user].[id] = [tb_address].[user_id] ORDER BY (SELECT NULL) OFFSET 10 ROWS FETCH NEXT 10 ROWS ONLY",
		MustOf(model.Mssql).JoinSQL(info),
	)
}

func TestDMLSQL(t *testing.T) {
	id, username, createTime, score := userFields()

	Convey("测试插入", t, func() {
		fields := []*model.Field{username, createTime}
		So(MustOf(model.Mysql).InsertSQL("tb_user", fields), ShouldEqual, "INSERT INTO `tb_user` (`username`, `create_time`) VALUES (:username, :createTime)")
		So(MustOf(model.Mssql).InsertSQL("tb_user", fields), ShouldEqual, "INSERT INTO [dbo].[tb_user] ([username], [create_time]) VALUES (:username, :createTime)")
		So(MustOf(model.Sqlite).InsertSQL("tb_user", fields), ShouldEqual, `INSERT INTO "tb_user" ("username", "create_time") VALUES (:username, :createTime)`)
		So(MustOf(model.Oracle).InsertSQL("tb_user", fields), ShouldEqual, `INSERT INTO "TB_USER" ("USERNAME", "CREATE_TIME") VALUES (:username, :createTime)`)
	})

	Convey("测试更新", t, func() {
		info := &UpdateClauseInfo{
			TableName:    "tb_user",
			Fields:       []*model.Field{username},
			PlusAssigns:  []*Assign{{Field: score, Param: "score"}},
			MinusAssigns: []*Assign{{Field: score, Param: "score@1"}},
			Where:        "`id` = :id",
		}
		So(MustOf(model.Mysql).UpdateSQL(info), ShouldEqual, "UPDATE `tb_user` SET `username` = :usernameNew, `score` = `score` + :score, `score` = `score` - :score@1 WHERE `id` = :id")

		info = &UpdateClauseInfo{TableName: "tb_user", Fields: []*model.Field{username, createTime}}
		So(MustOf(model.Mssql).UpdateSQL(info), ShouldEqual, "UPDATE [dbo].[tb_user] SET [username] = :usernameNew, [create_time] = :createTimeNew")
		So(MustOf(model.Oracle).UpdateSQL(info), ShouldEqual, `UPDATE "TB_USER" SET "USERNAME" = :usernameNew, "CREATE_TIME" = :createTimeNew`)
	})

	Convey("测试删除", t, func() {
		So(MustOf(model.Mysql).DeleteSQL("tb_user", "`id` = :id"), ShouldEqual, "DELETE FROM `tb_user` WHERE `id` = :id")
		So(MustOf(model.Mssql).DeleteSQL("tb_user", ""), ShouldEqual, "DELETE FROM [dbo].[tb_user]")
		So(MustOf(model.Sqlite).DeleteSQL("tb_user", `"id" = :id`), ShouldEqual, `DELETE FROM "tb_user" WHERE "id" = :id`)
	})

	Convey("测试冲突更新", t, func() {
		r := NewConflictResolver("tb_user", []*model.Field{id}, []*model.Field{id, username})
		So(r.ToUpdateFields, ShouldResemble, []*model.Field{username})

		So(MustOf(model.Mysql).OnConflictSQL(r), ShouldEqual,
			"INSERT INTO `tb_user` (`id`, `username`) VALUES (:id, :username) ON DUPLICATE KEY UPDATE `username` = :username")
		So(MustOf(model.Sqlite).OnConflictSQL(r), ShouldEqual,
			`INSERT INTO "tb_user" ("id", "username") VALUES (:id, :username) ON CONFLICT ("id") DO UPDATE SET "username" = :username`)
		So(MustOf(model.Mssql).OnConflictSQL(r), ShouldEqual,
			"IF EXISTS (SELECT 1 FROM [dbo].[tb_user] WHERE [id] = :id) BEGIN UPDATE [dbo].[tb_user] SET [username] = :username WHERE [id] = :id END "+
				"ELSE BEGIN INSERT INTO [dbo].[tb_user] ([id], [username]) VALUES (:id, :username) END")
		So(MustOf(model.Oracle).OnConflictSQL(r), ShouldEqual,
			`MERGE INTO "TB_USER" t USING DUAL ON (t."ID" = :id) WHEN MATCHED THEN UPDATE SET t."USERNAME" = :username `+
				`WHEN NOT MATCHED THEN INSERT ("ID", "USERNAME") VALUES (:id, :username)`)

		Convey("没有需要更新的列", func() {
			r := NewConflictResolver("tb_user", []*model.Field{id}, []*model.Field{id})
			So(MustOf(model.Mysql).OnConflictSQL(r), ShouldEqual, "INSERT INTO `tb_user` (`id`) VALUES (:id) ON DUPLICATE KEY UPDATE `id` = `id`")
			So(MustOf(model.Sqlite).OnConflictSQL(r), ShouldEqual, `INSERT INTO "tb_user" ("id") VALUES (:id) ON CONFLICT ("id") DO NOTHING`)
			So(MustOf(model.Mssql).OnConflictSQL(r), ShouldEqual, "IF NOT EXISTS (SELECT 1 FROM [dbo].[tb_user] WHERE [id] = :id) BEGIN INSERT INTO [dbo].[tb_user] ([id]) VALUES (:id) END")
			So(MustOf(model.Oracle).OnConflictSQL(r), ShouldEqual, `MERGE INTO "TB_USER" t USING DUAL ON (t."ID" = :id) WHEN NOT MATCHED THEN INSERT ("ID") VALUES (:id)`)
		})
	})

	Convey("测试条件相关的方言能力", t, func() {
		So(MustOf(model.Mysql).BoolLiteral(true), ShouldEqual, "true")
		So(MustOf(model.Mssql).BoolLiteral(false), ShouldEqual, "1 = 0")
		So(MustOf(model.Oracle).BoolLiteral(true), ShouldEqual, "1 = 1")

		So(MustOf(model.Mysql).RegexpSQL("`username`", ":usernamePattern", false), ShouldEqual, "`username` REGEXP :usernamePattern")
		So(MustOf(model.Sqlite).RegexpSQL(`"username"`, ":usernamePattern", true), ShouldEqual, `"username" NOT REGEXP :usernamePattern`)
		So(MustOf(model.Oracle).RegexpSQL(`"USERNAME"`, ":usernamePattern", true), ShouldEqual, `NOT REGEXP_LIKE("USERNAME", :usernamePattern)`)
		So(MustOf(model.Mssql).RegexpSQL("[username]", ":usernamePattern", false), ShouldEqual, "[username] LIKE :usernamePattern")

		So(MustOf(model.Oracle).QuoteColumn(username, "tb_user"), ShouldEqual, `"TB_USER"."USERNAME"`)
		So(MustOf(model.Mysql).QuoteColumn(username, ""), ShouldEqual, "`username`")
	})
}

func TestColumnType(t *testing.T) {
	tests := []struct {
		dbType model.DBType
		typ    model.ColumnType
		length int
		scale  int
		want   string
	}{
		{model.Mysql, model.Bit, 0, 0, "TINYINT(1)"},
		{model.Mysql, model.Varchar, 0, 0, "VARCHAR(255)"},
		{model.Mysql, model.Varchar, 36, 0, "VARCHAR(36)"},
		{model.Mysql, model.Decimal, 10, 2, "DECIMAL(10,2)"},
		{model.Mysql, model.UUID, 0, 0, "CHAR(36)"},
		{model.Mysql, model.Undefined, 0, 0, "VARCHAR(255)"},
		{model.Mssql, model.Datetime, 0, 0, "DATETIME2"},
		{model.Mssql, model.Double, 0, 0, "FLOAT"},
		{model.Mssql, model.Nvarchar, 64, 0, "NVARCHAR(64)"},
		{model.Mssql, model.Longblob, 0, 0, "IMAGE"},
		{model.Mssql, model.Undefined, 0, 0, "NVARCHAR(255)"},
		{model.Sqlite, model.Varchar, 36, 0, "VARCHAR(36)"},
		{model.Sqlite, model.Text, 0, 0, "TEXT"},
		{model.Sqlite, model.Undefined, 0, 0, "VARCHAR(255)"},
		{model.Oracle, model.Varchar, 0, 0, "VARCHAR2(255)"},
		{model.Oracle, model.Bigint, 0, 0, "NUMBER(19)"},
		{model.Oracle, model.Bit, 0, 0, "NUMBER(1)"},
		{model.Oracle, model.Text, 0, 0, "CLOB"},
		{model.Oracle, model.Decimal, 8, 3, "NUMBER(8,3)"},
		{model.Oracle, model.Undefined, 0, 0, "VARCHAR2(255)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MustOf(tt.dbType).ColumnType(tt.typ, tt.length, tt.scale), "%s %s(%d,%d)", tt.dbType, tt.typ, tt.length, tt.scale)
	}
}

func TestColumnDefSQL(t *testing.T) {
	id, username, _, _ := userFields()
	status := &model.Field{ColumnName: "status", Name: "status", Type: model.Tinyint, DefaultValue: "0", Comment: "用户's 状态"}

	tests := []struct {
		dbType model.DBType
		field  *model.Field
		want   string
	}{
		{model.Mysql, id, "`id` INT NOT NULL PRIMARY KEY AUTO_INCREMENT"},
		{model.Mysql, username, "`username` VARCHAR(36)"},
		{model.Mysql, status, "`status` TINYINT NOT NULL DEFAULT 0 COMMENT '用户''s 状态'"},
		{model.Mssql, id, "[id] INT NOT NULL PRIMARY KEY IDENTITY"},
		{model.Mssql, status, "[status] TINYINT NOT NULL DEFAULT 0"},
		{model.Sqlite, id, `"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT`},
		{model.Sqlite, username, `"username" VARCHAR(36)`},
		{model.Oracle, id, `"ID" NUMBER(10) GENERATED ALWAYS AS IDENTITY NOT NULL PRIMARY KEY`},
		{model.Oracle, status, `"STATUS" NUMBER(3) DEFAULT 0 NOT NULL`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MustOf(tt.dbType).ColumnDefSQL(tt.field), "%s %s", tt.dbType, tt.field.Name)
	}
}

func userTable() *model.Table {
	id, username, createTime, _ := userFields()
	table := model.NewTable("tb_user", id, username, createTime)
	table.Comment = "用户"
	return table.WithIndexes(&model.Index{Name: "idx_username", Columns: []string{"username"}})
}

func TestDDLSQL(t *testing.T) {
	Convey("测试索引", t, func() {
		So(MustOf(model.Mysql).IndexDefSQL("tb_user", &model.Index{Name: "uk_username", Columns: []string{"username"}, Type: "unique", Method: "btree"}),
			ShouldEqual, "CREATE UNIQUE INDEX `uk_username` ON `tb_user` (`username`) USING BTREE")
		So(MustOf(model.Mssql).IndexDefSQL("tb_user", &model.Index{Name: "idx_name", Columns: []string{"a", "b"}, Method: "clustered"}),
			ShouldEqual, "CREATE CLUSTERED INDEX [idx_name] ON [dbo].[tb_user] ([a], [b])")
		So(MustOf(model.Sqlite).IndexDefSQL("tb_user", &model.Index{Name: "idx_username", Columns: []string{"username"}, Type: "NOCASE"}),
			ShouldEqual, `CREATE INDEX IF NOT EXISTS "idx_username" ON "tb_user" ("username" COLLATE NOCASE)`)
		So(MustOf(model.Sqlite).IndexDefSQL("tb_user", &model.Index{Name: "uk_username", Columns: []string{"username"}, Type: "UNIQUE"}),
			ShouldEqual, `CREATE UNIQUE INDEX IF NOT EXISTS "uk_username" ON "tb_user" ("username")`)
		So(MustOf(model.Oracle).IndexDefSQL("tb_user", &model.Index{Name: "idx_username", Columns: []string{"username"}}),
			ShouldEqual, `CREATE INDEX "IDX_USERNAME" ON "TB_USER" ("USERNAME")`)
	})

	Convey("测试建表", t, func() {
		table := userTable()
		So(MustOf(model.Mysql).TableCreateSQL(table), ShouldResemble, []string{
			"CREATE TABLE IF NOT EXISTS `tb_user` (`id` INT NOT NULL PRIMARY KEY AUTO_INCREMENT, `username` VARCHAR(36), `create_time` DATETIME) COMMENT = '用户'",
			"CREATE INDEX `idx_username` ON `tb_user` (`username`)",
		})
		So(MustOf(model.Sqlite).TableCreateSQL(table), ShouldResemble, []string{
			`CREATE TABLE IF NOT EXISTS "tb_user" ("id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT, "username" VARCHAR(36), "create_time" DATETIME)`,
			`CREATE INDEX IF NOT EXISTS "idx_username" ON "tb_user" ("username")`,
		})
		So(MustOf(model.Oracle).TableCreateSQL(table), ShouldResemble, []string{
			`CREATE TABLE "TB_USER" ("ID" NUMBER(10) GENERATED ALWAYS AS IDENTITY NOT NULL PRIMARY KEY, "USERNAME" VARCHAR2(36), "CREATE_TIME" TIMESTAMP)`,
			`CREATE INDEX "IDX_USERNAME" ON "TB_USER" ("USERNAME")`,
			`COMMENT ON TABLE "TB_USER" IS '用户'`,
		})
		So(MustOf(model.Mssql).TableCreateSQL(table), ShouldResemble, []string{
			"IF NOT EXISTS (SELECT * FROM sys.objects WHERE object_id = OBJECT_ID(N'[dbo].[tb_user]') AND type in (N'U')) " +
				"BEGIN CREATE TABLE [dbo].[tb_user] ([id] INT NOT NULL PRIMARY KEY IDENTITY, [username] VARCHAR(36), [create_time] DATETIME2); END;",
			"CREATE INDEX [idx_username] ON [dbo].[tb_user] ([username])",
			"EXEC sp_addextendedproperty 'MS_Description', N'用户', 'SCHEMA', N'dbo', 'TABLE', N'tb_user'",
		})

		Convey("联合主键作为表约束", func() {
			table := model.NewTable("tb_pair",
				&model.Field{ColumnName: "a", Name: "a", Type: model.Int, PrimaryKey: model.PrimaryKeyDefault},
				&model.Field{ColumnName: "b", Name: "b", Type: model.Varchar, Length: 10, PrimaryKey: model.PrimaryKeyDefault},
			)
			So(MustOf(model.Mysql).TableCreateSQL(table), ShouldResemble, []string{
				"CREATE TABLE IF NOT EXISTS `tb_pair` (`a` INT NOT NULL, `b` VARCHAR(10) NOT NULL, PRIMARY KEY (`a`, `b`))",
			})
		})
	})

	Convey("测试删表清表", t, func() {
		So(MustOf(model.Mysql).TableDropSQL("tb_user"), ShouldResemble, []string{"DROP TABLE IF EXISTS `tb_user`"})
		So(MustOf(model.Sqlite).TableDropSQL("tb_user"), ShouldResemble, []string{`DROP TABLE IF EXISTS "tb_user"`})
		So(MustOf(model.Mssql).TableDropSQL("tb_user")[0], ShouldStartWith, "IF EXISTS (SELECT * FROM sys.objects")
		So(MustOf(model.Oracle).TableDropSQL("tb_user")[0], ShouldContainSubstring, `EXECUTE IMMEDIATE 'DROP TABLE "TB_USER"'`)

		So(MustOf(model.Mysql).TableTruncateSQL("tb_user", true), ShouldResemble, []string{"TRUNCATE TABLE `tb_user`"})
		So(MustOf(model.Mssql).TableTruncateSQL("tb_user", true), ShouldResemble, []string{"TRUNCATE TABLE [dbo].[tb_user]"})
		So(MustOf(model.Sqlite).TableTruncateSQL("tb_user", false), ShouldResemble, []string{`DELETE FROM "tb_user"`})
		So(MustOf(model.Sqlite).TableTruncateSQL("tb_user", true), ShouldResemble, []string{
			`DELETE FROM "tb_user"`,
			"DELETE FROM sqlite_sequence WHERE name = 'tb_user'",
		})
	})

	Convey("测试表是否存在", t, func() {
		for _, dbType := range []model.DBType{model.Mysql, model.Mssql, model.Sqlite, model.Oracle} {
			So(MustOf(dbType).TableExistsSQL(), ShouldContainSubstring, ":tableName")
		}
	})
}

func TestTableSyncSQL(t *testing.T) {
	id, username, createTime, _ := userFields()
	old := &model.Field{ColumnName: "old", Name: "old", TableName: "tb_user", Type: model.Int, Nullable: true}
	columns := &TableColumnDiff{ToAdd: []*model.Field{createTime}, ToModified: []*model.Field{username}, ToDelete: []*model.Field{old}}
	indexes := &TableIndexDiff{
		ToAdd:    []*model.Index{{Name: "idx_username", Columns: []string{"username"}}},
		ToDelete: []*model.Index{{Name: "idx_old", Columns: []string{"old"}}},
	}
	table := model.NewTable("tb_user", id, username, createTime).WithIndexes(indexes.ToAdd...)

	Convey("mysql 同步顺序", t, func() {
		So(MustOf(model.Mysql).TableSyncSQL(table, columns, indexes), ShouldResemble, []string{
			"ALTER TABLE `tb_user` DROP INDEX `idx_old`",
			"ALTER TABLE `tb_user` DROP COLUMN `old`",
			"ALTER TABLE `tb_user` ADD COLUMN `create_time` DATETIME",
			"ALTER TABLE `tb_user` MODIFY COLUMN `username` VARCHAR(36)",
			"ALTER TABLE `tb_user` ADD INDEX `idx_username` (`username`)",
		})
	})

	Convey("sqlserver 先删除默认值约束", t, func() {
		sqls := MustOf(model.Mssql).TableSyncSQL(table, columns, indexes)
		So(sqls, ShouldHaveLength, 7)
		So(sqls[0], ShouldEqual, "DROP INDEX [idx_old] ON [dbo].[tb_user]")
		So(sqls[1], ShouldStartWith, "DECLARE @ConstraintName1 NVARCHAR(200);")
		So(sqls[1], ShouldContainSubstring, "c.name = N'old'")
		So(sqls[2], ShouldStartWith, "DECLARE @ConstraintName2 NVARCHAR(200);")
		So(sqls[2], ShouldContainSubstring, "c.name = N'username'")
		So(sqls[3:], ShouldResemble, []string{
			"ALTER TABLE [dbo].[tb_user] DROP COLUMN [old]",
			"ALTER TABLE [dbo].[tb_user] ADD [create_time] DATETIME2",
			"ALTER TABLE [dbo].[tb_user] ALTER COLUMN [username] VARCHAR(36)",
			"CREATE INDEX [idx_username] ON [dbo].[tb_user] ([username])",
		})
	})

	Convey("oracle 修改可空性", t, func() {
		sqls := MustOf(model.Oracle).TableSyncSQL(table, columns, indexes)
		So(sqls, ShouldResemble, []string{
			`DROP INDEX "IDX_OLD"`,
			`ALTER TABLE "TB_USER" DROP COLUMN "OLD"`,
			`ALTER TABLE "TB_USER" ADD "CREATE_TIME" TIMESTAMP`,
			`ALTER TABLE "TB_USER" MODIFY "USERNAME" VARCHAR2(36) NULL`,
			`CREATE INDEX "IDX_USERNAME" ON "TB_USER" ("USERNAME")`,
		})
	})

	Convey("sqlite 修改列时重建表", t, func() {
		So(MustOf(model.Sqlite).TableSyncSQL(table, columns, indexes), ShouldResemble, []string{
			`DROP INDEX IF EXISTS "idx_old"`,
			`CREATE TABLE "_korm_tb_user" ("id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT, "username" VARCHAR(36), "create_time" DATETIME)`,
			`INSERT INTO "_korm_tb_user" ("id", "username") SELECT "id", "username" FROM "tb_user"`,
			`DROP TABLE "tb_user"`,
			`ALTER TABLE "_korm_tb_user" RENAME TO "tb_user"`,
			`CREATE INDEX IF NOT EXISTS "idx_username" ON "tb_user" ("username")`,
		})

		Convey("只增删列时逐条修改", func() {
			columns := &TableColumnDiff{ToAdd: []*model.Field{createTime}, ToDelete: []*model.Field{old}}
			So(MustOf(model.Sqlite).TableSyncSQL(table, columns, nil), ShouldResemble, []string{
				`ALTER TABLE "tb_user" DROP COLUMN "old"`,
				`ALTER TABLE "tb_user" ADD COLUMN "create_time" DATETIME`,
			})
		})
	})
}

func TestDiff(t *testing.T) {
	Convey("测试列差异", t, func() {
		s := MustOf(model.Mysql)
		id, username, createTime, _ := userFields()
		actual := []*model.Field{
			{ColumnName: "ID", Type: model.Int, PrimaryKey: model.PrimaryKeyIdentity, Nullable: true},
			{ColumnName: "username", Type: model.Varchar, Length: 64, Nullable: true},
			{ColumnName: "old", Type: model.Int, Nullable: true},
		}
		diff := DiffColumns(s, []*model.Field{id, username, createTime, model.RawField("COUNT(1)")}, actual)
		So(diff.ToAdd, ShouldResemble, []*model.Field{createTime})
		So(diff.ToModified, ShouldResemble, []*model.Field{username})
		So(diff.ToDelete, ShouldResemble, []*model.Field{actual[2]})
		So(diff.Empty(), ShouldBeFalse)

		Convey("方言渲染相同的类型视为一致", func() {
			expected := []*model.Field{{ColumnName: "a", Type: model.Float, Nullable: true}}
			actual := []*model.Field{{ColumnName: "a", Type: model.Double, Nullable: true}}
			So(DiffColumns(MustOf(model.Mssql), expected, actual).Empty(), ShouldBeTrue)
			So(DiffColumns(MustOf(model.Mysql), expected, actual).Empty(), ShouldBeFalse)
		})

		So((*TableColumnDiff)(nil).Empty(), ShouldBeTrue)
	})

	Convey("测试索引差异", t, func() {
		expected := []*model.Index{
			{Name: "idx_a", Columns: []string{"a"}},
			{Name: "idx_b", Columns: []string{"b", "c"}},
			{Name: "idx_new", Columns: []string{"d"}},
		}
		actual := []*model.Index{
			{Name: "IDX_A", Columns: []string{"A"}},
			{Name: "idx_b", Columns: []string{"b"}},
			{Name: "idx_old", Columns: []string{"e"}},
		}
		diff := DiffIndexes(expected, actual)
		So(diff.ToAdd, ShouldResemble, []*model.Index{expected[1], expected[2]})
		So(diff.ToDelete, ShouldResemble, []*model.Index{actual[1], actual[2]})
		So((*TableIndexDiff)(nil).Empty(), ShouldBeTrue)
	})
}

func TestDBNameFromURL(t *testing.T) {
	tests := []struct {
		dbType model.DBType
		url    string
		want   string
	}{
		{model.Mysql, "root:pw@tcp(127.0.0.1:3306)/korm?parseTime=true", "korm"},
		{model.Mysql, "mysql://root:pw@127.0.0.1:3306/korm", "korm"},
		{model.Mssql, "sqlserver://sa:pw@127.0.0.1:1433?database=korm", "korm"},
		{model.Mssql, "server=127.0.0.1;user id=sa;Initial Catalog=korm", "korm"},
		{model.Mssql, "sqlserver://sa:pw@127.0.0.1:1433/instance", ""},
		{model.Sqlite, "/tmp/data/korm.db", "korm"},
		{model.Sqlite, "file:korm.sqlite?cache=shared", "korm"},
		{model.Sqlite, ":memory:", "main"},
		{model.Oracle, "oracle://u:p@127.0.0.1:1521/ORCL", "ORCL"},
		{model.Oracle, "127.0.0.1:1521/ORCL", "ORCL"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, MustOf(tt.dbType).DBNameFromURL(tt.url), tt.url)
	}
}
