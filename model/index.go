package model

import "strings"

// Index 索引定义
type Index struct {
	Name    string
	Columns []string
	// Type UNIQUE、FULLTEXT、SPATIAL，SQLite 下为排序规则
	Type string
	// Method BTREE、HASH、CLUSTERED、NONCLUSTERED 等
	Method string
}

func (i *Index) IsUnique() bool {
	return strings.EqualFold(i.Type, "UNIQUE")
}

// Equal 按名称和列判断，大小写不敏感
func (i *Index) Equal(o *Index) bool {
	if !strings.EqualFold(i.Name, o.Name) || len(i.Columns) != len(o.Columns) {
		return false
	}
	for k := range i.Columns {
		if !strings.EqualFold(i.Columns[k], o.Columns[k]) {
			return false
		}
	}
	return true
}
