package orm

import (
	"context"
	"fmt"
	"strings"

	"github.com/hatlonely/korm/criteria"
	"github.com/hatlonely/korm/dialect"
	"github.com/hatlonely/korm/model"
	"github.com/hatlonely/korm/task"
	"github.com/pkg/errors"
)

const (
	LeftJoin  = "LEFT JOIN"
	RightJoin = "RIGHT JOIN"
	FullJoin  = "FULL JOIN"
	InnerJoin = "INNER JOIN"
)

type joinItem struct {
	pojo *model.Pojo
	typ  string
	on   *criteria.Criteria
}

// JoinClause 多表连接查询，列名总是以表名限定
type JoinClause struct {
	k    *Kronos
	main *model.Pojo
	err  error

	joins    []*joinItem
	shared   *criteria.Criteria
	fields   []any
	where    *criteria.Criteria
	logic    bool
	distinct bool
	groupBy  []any
	having   *criteria.Criteria
	orderBy  []Order
	pi       int
	ps       int
	paged    bool
	limit    int
	lock     dialect.Lock
	db       string
	patch    map[string]any
}

// Join 以 main 为主表的连接查询，默认条件为主表实体所有非空属性的等值
func (k *Kronos) Join(main any) *JoinClause {
	j := &JoinClause{k: k, logic: true}
	j.main, j.err = k.Pojo(main)
	return j
}

func (j *JoinClause) join(typ string, entity any, on *criteria.Criteria) *JoinClause {
	if j.err != nil {
		return j
	}
	p, err := j.k.Pojo(entity)
	if err != nil {
		j.err = err
		return j
	}
	j.joins = append(j.joins, &joinItem{pojo: p, typ: typ, on: on})
	return j
}

func (j *JoinClause) LeftJoin(entity any, on *criteria.Criteria) *JoinClause {
	return j.join(LeftJoin, entity, on)
}

func (j *JoinClause) RightJoin(entity any, on *criteria.Criteria) *JoinClause {
	return j.join(RightJoin, entity, on)
}

func (j *JoinClause) FullJoin(entity any, on *criteria.Criteria) *JoinClause {
	return j.join(FullJoin, entity, on)
}

func (j *JoinClause) InnerJoin(entity any, on *criteria.Criteria) *JoinClause {
	return j.join(InnerJoin, entity, on)
}

// With 加入连接表，连接条件由 On 统一给出，默认为 LEFT JOIN
func (j *JoinClause) With(entities ...any) *JoinClause {
	for _, e := range entities {
		j.join(LeftJoin, e, nil)
	}
	return j
}

// On 所有连接表共用的条件，按 AND 拆分后分配给引用到的最后一个连接表
func (j *JoinClause) On(c *criteria.Criteria) *JoinClause {
	j.shared = c
	return j
}

// Fields 查询项为 *model.Field 或原样输出的 SQL，同名属性的别名依次追加 @1、@2
func (j *JoinClause) Fields(items ...any) *JoinClause {
	j.fields = append(j.fields, items...)
	return j
}

func (j *JoinClause) Where(c *criteria.Criteria) *JoinClause {
	if c == nil {
		return j
	}
	if j.where == nil {
		j.where = c
	} else {
		j.where = criteria.AndOf(j.where, c)
	}
	return j
}

func (j *JoinClause) Logic(enabled bool) *JoinClause {
	j.logic = enabled
	return j
}

func (j *JoinClause) Distinct() *JoinClause {
	j.distinct = true
	return j
}

func (j *JoinClause) GroupBy(items ...any) *JoinClause {
	j.groupBy = append(j.groupBy, items...)
	return j
}

func (j *JoinClause) Having(c *criteria.Criteria) *JoinClause {
	j.having = c
	return j
}

func (j *JoinClause) OrderBy(orders ...Order) *JoinClause {
	j.orderBy = append(j.orderBy, orders...)
	return j
}

func (j *JoinClause) Page(pi int, ps int) *JoinClause {
	j.paged = true
	j.pi, j.ps = pi, ps
	return j
}

func (j *JoinClause) Limit(n int) *JoinClause {
	j.limit = n
	return j
}

func (j *JoinClause) Single() *JoinClause {
	return j.Limit(1)
}

func (j *JoinClause) Lock(lock dialect.Lock) *JoinClause {
	j.lock = lock
	return j
}

func (j *JoinClause) DB(name string) *JoinClause {
	j.db = name
	return j
}

func (j *JoinClause) Patch(params map[string]any) *JoinClause {
	j.patch = mergeParams(j.patch, params)
	return j
}

// tableIndex 主表为 0，连接表从 1 开始，未加入的表为 -1
func (j *JoinClause) tableIndex(name string) int {
	if name == j.main.Table.Name {
		return 0
	}
	for i, item := range j.joins {
		if item.pojo.Table.Name == name {
			return i + 1
		}
	}
	return -1
}

// splitShared 共用条件的每个 AND 子条件分配给它引用到的下标最大的连接表
func (j *JoinClause) splitShared() ([]*criteria.Criteria, error) {
	ons := make([]*criteria.Criteria, len(j.joins))
	for i, item := range j.joins {
		ons[i] = item.on
	}
	if j.shared == nil {
		return ons, nil
	}
	parts := []*criteria.Criteria{j.shared}
	if j.shared.Type == criteria.And && !j.shared.Not {
		parts = j.shared.Children
	}
	for _, part := range parts {
		target := 0
		for _, name := range referencedTables(part) {
			idx := j.tableIndex(name)
			if idx < 0 {
				return nil, errors.Errorf("table %s is not joined", name)
			}
			if idx > target {
				target = idx
			}
		}
		if target == 0 {
			target = 1
		}
		ons[target-1] = criteria.AndOf(ons[target-1], part)
	}
	return ons, nil
}

// referencedTables 条件中字段和列表达式所属的表
func referencedTables(c *criteria.Criteria) []string {
	var names []string
	c.Walk(func(n *criteria.Criteria) bool {
		if n.Field != nil && n.Field.TableName != "" {
			names = append(names, n.Field.TableName)
		}
		if col, ok := n.Value.(criteria.Column); ok && col.Field != nil && col.Field.TableName != "" {
			names = append(names, col.Field.TableName)
		}
		return true
	})
	return names
}

func (j *JoinClause) joinFields() ([]*dialect.JoinField, error) {
	var fields []*model.Field
	if len(j.fields) == 0 {
		fields = append(fields, j.main.Table.Columns()...)
		for _, item := range j.joins {
			fields = append(fields, item.pojo.Table.Columns()...)
		}
	}
	for _, item := range j.fields {
		switch v := item.(type) {
		case *model.Field:
			if v.TableName != "" && j.tableIndex(v.TableName) < 0 {
				return nil, errors.Errorf("table %s is not joined", v.TableName)
			}
			fields = append(fields, v)
		case string:
			fields = append(fields, model.RawField(v))
		default:
			return nil, errors.Errorf("unsupported join select item %T", item)
		}
	}

	used := map[string]int{}
	result := make([]*dialect.JoinField, 0, len(fields))
	for _, f := range fields {
		alias := f.Name
		if !f.IsRaw() {
			if n, ok := used[f.Name]; ok {
				alias = fmt.Sprintf("%s@%d", f.Name, n+1)
				used[f.Name] = n + 1
			} else {
				used[f.Name] = 0
			}
		}
		result = append(result, &dialect.JoinField{Field: f, Alias: alias})
	}
	return result, nil
}

func (j *JoinClause) column(item any) (string, error) {
	switch v := item.(type) {
	case *model.Field:
		if v.IsRaw() {
			return v.ColumnName, nil
		}
		return j.k.dialect.QuoteColumn(v, v.TableName), nil
	case string:
		return v, nil
	}
	return "", errors.Errorf("unsupported join item %T", item)
}

func (j *JoinClause) columns(items []any) (string, error) {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		col, err := j.column(item)
		if err != nil {
			return "", err
		}
		parts = append(parts, col)
	}
	return strings.Join(parts, ", "), nil
}

func (j *JoinClause) orders() (string, error) {
	parts := make([]string, 0, len(j.orderBy))
	for _, o := range j.orderBy {
		col, err := j.column(o.Item)
		if err != nil {
			return "", err
		}
		if o.Desc {
			parts = append(parts, col+" DESC")
		} else {
			parts = append(parts, col+" ASC")
		}
	}
	return strings.Join(parts, ", "), nil
}

func (j *JoinClause) info() (*dialect.JoinClauseInfo, map[string]any, error) {
	if j.err != nil {
		return nil, nil, j.err
	}
	if len(j.joins) == 0 {
		return nil, nil, errors.New("join without joined table")
	}
	fields, err := j.joinFields()
	if err != nil {
		return nil, nil, err
	}
	ons, err := j.splitShared()
	if err != nil {
		return nil, nil, err
	}

	b := j.k.criteriaBuilder(model.OperationSelect, j.main.Values)
	b.WithTableName = true
	params := mergeParams(nil, j.patch)
	joins := make([]*dialect.JoinTable, 0, len(j.joins))
	for i, item := range j.joins {
		on := ons[i]
		if j.logic {
			on = criteria.WithLogicDelete(on, item.pojo.Table, item.pojo.Table.Name)
		}
		res, err := b.Build(on, params)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "build on of %s", item.pojo.Table.Name)
		}
		params = res.Params
		joins = append(joins, &dialect.JoinTable{Type: item.typ, TableName: item.pojo.Table.Name, DatabaseName: j.db, On: res.SQL})
	}

	where := j.where
	if where == nil {
		where = equalities(j.main)
	}
	if j.logic {
		where = criteria.WithLogicDelete(where, j.main.Table, j.main.Table.Name)
	}
	whereRes, err := b.Build(where, params)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "build where")
	}
	havingRes, err := b.Build(j.having, whereRes.Params)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "build having")
	}
	groupBy, err := j.columns(j.groupBy)
	if err != nil {
		return nil, nil, err
	}
	orderBy, err := j.orders()
	if err != nil {
		return nil, nil, err
	}
	return &dialect.JoinClauseInfo{
		DatabaseName: j.db,
		TableName:    j.main.Table.Name,
		Fields:       fields,
		Joins:        joins,
		Distinct:     j.distinct,
		Pagination:   j.paged,
		PageIndex:    j.pi,
		PageSize:     j.ps,
		Limit:        j.limit,
		Lock:         j.lock,
		Where:        whereRes.SQL,
		GroupBy:      groupBy,
		Having:       havingRes.SQL,
		OrderBy:      orderBy,
	}, havingRes.Params, nil
}

func (j *JoinClause) Build() (*task.AtomicTask, error) {
	info, params, err := j.info()
	if err != nil {
		return nil, err
	}
	t := task.NewAtomicTask(j.k.dialect.JoinSQL(info), params, model.OperationSelect)
	j.k.debug(t)
	return t, nil
}

// BuildWithTotal 总数查询不带分页、排序和锁
func (j *JoinClause) BuildWithTotal() (*task.AtomicTask, *task.AtomicTask, error) {
	info, params, err := j.info()
	if err != nil {
		return nil, nil, err
	}
	t := task.NewAtomicTask(j.k.dialect.JoinSQL(info), params, model.OperationSelect)
	j.k.debug(t)

	countInfo := *info
	countInfo.Pagination = false
	countInfo.Limit = 0
	countInfo.Lock = dialect.NoLock
	countInfo.OrderBy = ""
	if !info.Distinct {
		countInfo.Fields = []*dialect.JoinField{{Field: model.RawField("1")}}
	}
	total := task.NewAtomicTask("SELECT COUNT(1) FROM ("+j.k.dialect.JoinSQL(&countInfo)+") AS t", mergeParams(nil, params), model.OperationSelect)
	j.k.debug(total)
	return t, total, nil
}

// QueryMaps 结果的 key 为查询项的别名
func (j *JoinClause) QueryMaps(ctx context.Context) ([]map[string]any, error) {
	w, err := j.k.mustWrapper()
	if err != nil {
		return nil, err
	}
	t, err := j.Build()
	if err != nil {
		return nil, err
	}
	return t.Query(ctx, w)
}

func (j *JoinClause) QueryOne(ctx context.Context) (map[string]any, error) {
	if j.limit == 0 && !j.paged {
		j.Single()
	}
	rows, err := j.QueryMaps(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(ErrRecordNotFound, "join %s", j.main.Table.Name)
	}
	return rows[0], nil
}

// Into 按别名把结果写入结构体切片指针或结构体指针
func (j *JoinClause) Into(ctx context.Context, dst any) error {
	rows, err := j.QueryMaps(ctx)
	if err != nil {
		return err
	}
	records := make([]*model.Pojo, 0, len(rows))
	for _, row := range rows {
		records = append(records, &model.Pojo{Values: row})
	}
	return j.k.scan(records, dst)
}
