package orm

import (
	"context"
	"strings"

	"github.com/hatlonely/korm/cascade"
	"github.com/hatlonely/korm/criteria"
	"github.com/hatlonely/korm/dialect"
	"github.com/hatlonely/korm/model"
	"github.com/hatlonely/korm/task"
	"github.com/pkg/errors"
)

// Order 排序项，Item 可以是属性名、*model.Field 或原样输出的 SQL
type Order struct {
	Item any
	Desc bool
}

func Asc(item any) Order { return Order{Item: item} }

func Desc(item any) Order { return Order{Item: item, Desc: true} }

// SelectClause 单表查询
type SelectClause struct {
	k     *Kronos
	pojo  *model.Pojo
	table *model.Table
	err   error

	fields   []any
	except   []any
	where    *criteria.Criteria
	by       []any
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
	total    bool
	cascade  bool
	depth    int
	patch    map[string]any
}

// Select 以实体为条件来源的查询，默认查询所有列，条件为所有非空属性的等值
func (k *Kronos) Select(entity any) *SelectClause {
	s := &SelectClause{k: k, logic: true, depth: k.options.CascadeDepth}
	s.pojo, s.err = k.Pojo(entity)
	if s.err == nil {
		s.table = s.pojo.Table
	}
	return s
}

// Fields 只查询指定的项，字符串不是属性名时原样输出，例如 "COUNT(1) AS `count`"
func (s *SelectClause) Fields(items ...any) *SelectClause {
	s.fields = append(s.fields, items...)
	return s
}

// Except 查询除指定属性外的所有列
func (s *SelectClause) Except(items ...any) *SelectClause {
	s.except = append(s.except, items...)
	return s
}

// Where 替换默认条件，可以多次调用，条件之间为 AND
func (s *SelectClause) Where(c *criteria.Criteria) *SelectClause {
	if c == nil {
		return s
	}
	if s.where == nil {
		s.where = c
	} else {
		s.where = criteria.AndOf(s.where, c)
	}
	return s
}

// By 以指定属性的等值作为条件
func (s *SelectClause) By(items ...any) *SelectClause {
	s.by = append(s.by, items...)
	return s
}

// Logic 是否追加逻辑删除条件，默认追加
func (s *SelectClause) Logic(enabled bool) *SelectClause {
	s.logic = enabled
	return s
}

func (s *SelectClause) Distinct() *SelectClause {
	s.distinct = true
	return s
}

func (s *SelectClause) GroupBy(items ...any) *SelectClause {
	s.groupBy = append(s.groupBy, items...)
	return s
}

func (s *SelectClause) Having(c *criteria.Criteria) *SelectClause {
	s.having = c
	return s
}

func (s *SelectClause) OrderBy(orders ...Order) *SelectClause {
	s.orderBy = append(s.orderBy, orders...)
	return s
}

// Page 分页，pi 从 1 开始
func (s *SelectClause) Page(pi int, ps int) *SelectClause {
	s.paged = true
	s.pi, s.ps = pi, ps
	return s
}

func (s *SelectClause) Limit(n int) *SelectClause {
	s.limit = n
	return s
}

// Single 只取一条，等价于 Limit(1)
func (s *SelectClause) Single() *SelectClause {
	return s.Limit(1)
}

func (s *SelectClause) Lock(lock dialect.Lock) *SelectClause {
	s.lock = lock
	return s
}

// DB 表名带数据库名前缀
func (s *SelectClause) DB(name string) *SelectClause {
	s.db = name
	return s
}

// WithTotal 同时生成总数查询，总数查询不带分页和锁
func (s *SelectClause) WithTotal() *SelectClause {
	s.total = true
	return s
}

// Cascade 查询后加载关联属性，depth 为 -1 时不限制深度
func (s *SelectClause) Cascade(enabled bool, depth ...int) *SelectClause {
	s.cascade = enabled
	if len(depth) > 0 {
		s.depth = depth[0]
	}
	return s
}

// Patch 追加额外的参数，用于 Raw 条件中的 :name
func (s *SelectClause) Patch(params map[string]any) *SelectClause {
	s.patch = mergeParams(s.patch, params)
	return s
}

// selectItems 解析查询项，字符串不是属性名时作为原样输出的查询项
func selectItems(table *model.Table, items []any) ([]*model.Field, error) {
	fields := make([]*model.Field, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if f := table.Field(v); f != nil && f.IsColumn() {
				fields = append(fields, f)
			} else {
				fields = append(fields, model.RawField(v))
			}
		case *model.Field:
			fields = append(fields, v)
		default:
			return nil, errors.Errorf("unsupported select item %T", item)
		}
	}
	return fields, nil
}

func (s *SelectClause) selectFields() ([]*model.Field, error) {
	if len(s.fields) > 0 {
		return selectItems(s.table, s.fields)
	}
	except, err := resolveFields(s.table, s.except)
	if err != nil {
		return nil, err
	}
	var fields []*model.Field
	for _, f := range s.table.Columns() {
		if !containsField(except, f) {
			fields = append(fields, f)
		}
	}
	return fields, nil
}

// condition 条件优先级为 Where、By、实体的非空属性
func (s *SelectClause) condition() (*criteria.Criteria, error) {
	var c *criteria.Criteria
	switch {
	case s.where != nil:
		c = s.where
	case len(s.by) > 0:
		by, err := resolveFields(s.table, s.by)
		if err != nil {
			return nil, err
		}
		var children []*criteria.Criteria
		for _, f := range by {
			children = append(children, criteria.Eq(f, s.pojo.Get(f.Name)))
		}
		c = criteria.AndOf(children...)
	default:
		c = equalities(s.pojo)
	}
	if s.logic {
		c = criteria.WithLogicDelete(c, s.table, "")
	}
	return c, nil
}

func (s *SelectClause) columns(items []any) (string, error) {
	fields, err := selectItems(s.table, items)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.IsRaw() {
			parts = append(parts, f.ColumnName)
		} else {
			parts = append(parts, s.k.dialect.QuoteColumn(f, ""))
		}
	}
	return strings.Join(parts, ", "), nil
}

func (s *SelectClause) orders() (string, error) {
	parts := make([]string, 0, len(s.orderBy))
	for _, o := range s.orderBy {
		col, err := s.columns([]any{o.Item})
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

func (s *SelectClause) info() (*dialect.SelectClauseInfo, map[string]any, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	fields, err := s.selectFields()
	if err != nil {
		return nil, nil, err
	}
	c, err := s.condition()
	if err != nil {
		return nil, nil, err
	}
	b := s.k.criteriaBuilder(model.OperationSelect, s.pojo.Values)
	where, err := b.Build(c, s.patch)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "build where")
	}
	having, err := b.Build(s.having, where.Params)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "build having")
	}
	groupBy, err := s.columns(s.groupBy)
	if err != nil {
		return nil, nil, err
	}
	orderBy, err := s.orders()
	if err != nil {
		return nil, nil, err
	}
	info := &dialect.SelectClauseInfo{
		DatabaseName: s.db,
		TableName:    s.table.Name,
		Fields:       fields,
		Distinct:     s.distinct,
		Pagination:   s.paged,
		PageIndex:    s.pi,
		PageSize:     s.ps,
		Limit:        s.limit,
		Lock:         s.lock,
		Where:        where.SQL,
		GroupBy:      groupBy,
		Having:       having.SQL,
		OrderBy:      orderBy,
	}
	return info, having.Params, nil
}

// Build 生成查询任务
func (s *SelectClause) Build() (*task.AtomicTask, error) {
	info, params, err := s.info()
	if err != nil {
		return nil, err
	}
	t := task.NewAtomicTask(s.k.dialect.SelectSQL(info), params, model.OperationSelect)
	s.k.debug(t)
	return t, nil
}

// BuildWithTotal 生成查询任务和总数查询任务
func (s *SelectClause) BuildWithTotal() (*task.AtomicTask, *task.AtomicTask, error) {
	info, params, err := s.info()
	if err != nil {
		return nil, nil, err
	}
	t := task.NewAtomicTask(s.k.dialect.SelectSQL(info), params, model.OperationSelect)
	s.k.debug(t)

	countInfo := *info
	countInfo.Fields = []*model.Field{model.RawField("1")}
	countInfo.Distinct = false
	countInfo.Pagination = false
	countInfo.Limit = 0
	countInfo.Lock = dialect.NoLock
	countInfo.OrderBy = ""
	if info.Distinct {
		countInfo.Fields = info.Fields
		countInfo.Distinct = true
	}
	sub := s.k.dialect.SelectSQL(&countInfo)
	total := task.NewAtomicTask("SELECT COUNT(1) FROM ("+sub+") AS t", mergeParams(nil, params), model.OperationSelect)
	s.k.debug(total)
	return t, total, nil
}

// QueryMaps 查询结果的原始行
func (s *SelectClause) QueryMaps(ctx context.Context) ([]map[string]any, error) {
	w, err := s.k.mustWrapper()
	if err != nil {
		return nil, err
	}
	t, err := s.Build()
	if err != nil {
		return nil, err
	}
	return t.Query(ctx, w)
}

// QueryList 查询结果转换为 Pojo，启用级联时加载关联属性
func (s *SelectClause) QueryList(ctx context.Context) ([]*model.Pojo, error) {
	rows, err := s.QueryMaps(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]*model.Pojo, 0, len(rows))
	for _, row := range rows {
		p, err := s.k.ToPojo(s.table, row)
		if err != nil {
			return nil, err
		}
		records = append(records, p)
	}
	if s.cascade && len(records) > 0 {
		s.k.logger.Info("cascade select", "table", s.table.Name, "records", len(records), "depth", s.depth)
		if err := cascade.Load(ctx, s.k.wrapper, s.k.registry, cascadeFactory{k: s.k}, records, model.OperationSelect, s.depth); err != nil {
			return nil, errors.WithMessage(err, "cascade.Load failed")
		}
	}
	return records, nil
}

// QueryOne 查询一条记录，没有记录时返回 ErrRecordNotFound
func (s *SelectClause) QueryOne(ctx context.Context) (*model.Pojo, error) {
	if s.limit == 0 && !s.paged {
		s.Single()
	}
	records, err := s.QueryList(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.Wrapf(ErrRecordNotFound, "table %s", s.table.Name)
	}
	return records[0], nil
}

// QueryPage 查询一页记录和满足条件的总数
func (s *SelectClause) QueryPage(ctx context.Context) ([]*model.Pojo, int64, error) {
	w, err := s.k.mustWrapper()
	if err != nil {
		return nil, 0, err
	}
	_, total, err := s.BuildWithTotal()
	if err != nil {
		return nil, 0, err
	}
	rows, err := total.Query(ctx, w)
	if err != nil {
		return nil, 0, err
	}
	records, err := s.QueryList(ctx)
	if err != nil {
		return nil, 0, err
	}
	return records, countOf(rows), nil
}

// Into 把查询结果写入结构体切片指针或结构体指针
func (s *SelectClause) Into(ctx context.Context, dst any) error {
	records, err := s.QueryList(ctx)
	if err != nil {
		return err
	}
	return s.k.scan(records, dst)
}
