package dialect

import (
	"strings"

	"github.com/hatlonely/korm/model"
)

// TableColumnDiff 期望表结构与数据库表结构的列差异
type TableColumnDiff struct {
	ToAdd      []*model.Field
	ToModified []*model.Field
	ToDelete   []*model.Field
}

func (d *TableColumnDiff) Empty() bool {
	return d == nil || len(d.ToAdd)+len(d.ToModified)+len(d.ToDelete) == 0
}

type TableIndexDiff struct {
	ToAdd    []*model.Index
	ToDelete []*model.Index
}

func (d *TableIndexDiff) Empty() bool {
	return d == nil || len(d.ToAdd)+len(d.ToDelete) == 0
}

// DiffColumns 按列名比较，类型以方言渲染结果为准
//
// 主键列总是视为 NOT NULL。ToModified 中是期望的定义。
func DiffColumns(s Support, expected []*model.Field, actual []*model.Field) *TableColumnDiff {
	diff := &TableColumnDiff{}
	actualByName := map[string]*model.Field{}
	for _, f := range actual {
		actualByName[strings.ToLower(f.ColumnName)] = f
	}
	expectedNames := map[string]struct{}{}
	for _, e := range expected {
		if !e.IsColumn() {
			continue
		}
		name := strings.ToLower(e.ColumnName)
		expectedNames[name] = struct{}{}
		a, ok := actualByName[name]
		if !ok {
			diff.ToAdd = append(diff.ToAdd, e)
			continue
		}
		if !sameColumn(s, e, a) {
			diff.ToModified = append(diff.ToModified, e)
		}
	}
	for _, a := range actual {
		if _, ok := expectedNames[strings.ToLower(a.ColumnName)]; !ok {
			diff.ToDelete = append(diff.ToDelete, a)
		}
	}
	return diff
}

// sameColumn 两边都是自增列时不比较类型，部分数据库自增列只能声明为固定类型
func sameColumn(s Support, e *model.Field, a *model.Field) bool {
	if !(e.IsIdentity() && a.IsIdentity()) && !strings.EqualFold(s.ColumnType(e.Type, e.Length, e.Scale), s.ColumnType(a.Type, a.Length, a.Scale)) {
		return false
	}
	if e.IsPrimaryKey() != a.IsPrimaryKey() {
		return false
	}
	return (e.Nullable && !e.IsPrimaryKey()) == (a.Nullable && !a.IsPrimaryKey())
}

// DiffIndexes 按名称比较，两边都有列信息且列不同时先删后建
func DiffIndexes(expected []*model.Index, actual []*model.Index) *TableIndexDiff {
	diff := &TableIndexDiff{}
	actualByName := map[string]*model.Index{}
	for _, idx := range actual {
		actualByName[strings.ToLower(idx.Name)] = idx
	}
	expectedNames := map[string]struct{}{}
	for _, e := range expected {
		name := strings.ToLower(e.Name)
		expectedNames[name] = struct{}{}
		a, ok := actualByName[name]
		if !ok {
			diff.ToAdd = append(diff.ToAdd, e)
			continue
		}
		if len(a.Columns) > 0 && !e.Equal(a) {
			diff.ToDelete = append(diff.ToDelete, a)
			diff.ToAdd = append(diff.ToAdd, e)
		}
	}
	for _, a := range actual {
		if _, ok := expectedNames[strings.ToLower(a.Name)]; !ok {
			diff.ToDelete = append(diff.ToDelete, a)
		}
	}
	return diff
}
