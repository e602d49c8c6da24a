package orm

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hatlonely/korm/datasource"
	"github.com/hatlonely/korm/log/logger"
	"github.com/hatlonely/korm/model"
	"github.com/stretchr/testify/require"
)

func newUserTable() *model.Table {
	return model.NewTable("tb_user",
		&model.Field{ColumnName: "id", Name: "id", Type: model.Int, PrimaryKey: model.PrimaryKeyIdentity, Identity: true},
		&model.Field{ColumnName: "username", Name: "username", Type: model.Varchar, Length: 255, Nullable: true},
		&model.Field{ColumnName: "gender", Name: "gender", Type: model.Char, Length: 1, Nullable: true, DefaultValue: "0"},
		&model.Field{ColumnName: "create_time", Name: "createTime", Type: model.Varchar, Length: 32, DateFormat: "yyyy@MM@dd HH:mm:ss"},
		&model.Field{ColumnName: "update_time", Name: "updateTime", Type: model.Datetime},
		&model.Field{ColumnName: "deleted", Name: "deleted", Type: model.Bit},
	)
}

func newRelationTable() *model.Table {
	return model.NewTable("user_relation",
		&model.Field{ColumnName: "id", Name: "id", Type: model.Int, PrimaryKey: model.PrimaryKeyDefault},
		&model.Field{ColumnName: "username", Name: "username", Type: model.Varchar, Nullable: true},
		&model.Field{ColumnName: "id2", Name: "id2", Type: model.Int, Nullable: true},
		&model.Field{ColumnName: "gender", Name: "gender", Type: model.Int, Nullable: true},
	)
}

func newMovieTable() *model.Table {
	return model.NewTable("movie",
		&model.Field{ColumnName: "id", Name: "id", Type: model.Int, PrimaryKey: model.PrimaryKeyDefault},
		&model.Field{ColumnName: "year", Name: "year", Type: model.Int, Nullable: true},
		&model.Field{ColumnName: "deleted", Name: "deleted", Type: model.Bit},
	)
}

func newProductLogTable() *model.Table {
	return model.NewTable("product_log",
		&model.Field{ColumnName: "id", Name: "id", Type: model.Int, PrimaryKey: model.PrimaryKeyDefault},
		&model.Field{ColumnName: "price", Name: "price", Type: model.Decimal, Length: 10, Scale: 2, Nullable: true},
	)
}

// 一个分组对应多个用户，删除分组时用户按 OnDelete 处理
func newGroupTables(action model.CascadeAction) (*model.Table, *model.Table) {
	group := model.NewTable("tb_group",
		&model.Field{ColumnName: "id", Name: "id", Type: model.Int, PrimaryKey: model.PrimaryKeyDefault},
		&model.Field{ColumnName: "name", Name: "name", Type: model.Varchar, Nullable: true},
		&model.Field{Name: "members", RefTable: "tb_member", IsArray: true},
	)
	member := model.NewTable("tb_member",
		&model.Field{ColumnName: "id", Name: "id", Type: model.Int, PrimaryKey: model.PrimaryKeyDefault},
		&model.Field{ColumnName: "group_id", Name: "groupId", Type: model.Int, Nullable: true},
		&model.Field{Name: "group", RefTable: "tb_group", Reference: &model.Reference{
			Fields:        []string{"groupId"},
			TargetFields:  []string{"id"},
			OnDelete:      action,
			DefaultValues: []string{"0"},
		}},
	)
	return group, member
}

func newKronos(t *testing.T, dbType string, tables ...*model.Table) *Kronos {
	k, err := NewKronosWithOptions(&Options{DBType: dbType, TimeZone: "UTC"})
	require.NoError(t, err)
	k.WithLogger(logger.Nop{})
	for _, table := range tables {
		_, err := k.Register(table)
		require.NoError(t, err)
	}
	return k
}

func newMockKronos(t *testing.T, tables ...*model.Table) (*Kronos, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	k := newKronos(t, "mysql", tables...)
	k.WithWrapper(datasource.NewSQLWrapper(db, model.Mysql, "root:@tcp(localhost:3306)/test").WithLogger(logger.Nop{}))
	return k, mock
}

// pojo 以注册过的表描述创建实体，策略在注册时启用
func pojo(t *testing.T, k *Kronos, table string, values map[string]any) *model.Pojo {
	tb, err := k.Registry().Get(table)
	require.NoError(t, err)
	return model.NewPojo(tb, values)
}
