package orm

import (
	"context"
	"slices"

	"github.com/hatlonely/korm/cascade"
	"github.com/hatlonely/korm/criteria"
	"github.com/hatlonely/korm/dialect"
	"github.com/hatlonely/korm/model"
	"github.com/hatlonely/korm/task"
	"github.com/pkg/errors"
)

type assign struct {
	name  string
	value any
}

// UpdateClause 单表更新
type UpdateClause struct {
	k     *Kronos
	pojo  *model.Pojo
	table *model.Table
	err   error

	sets     []assign
	plus     []assign
	minus    []assign
	fields   []any
	except   []any
	where    *criteria.Criteria
	by       []any
	byCalled bool
	logic    bool
	cascade  bool
	depth    int
	patch    map[string]any
}

// Update 以实体为值和条件来源的更新
//
// 没有 Set、Plus、Minus 和 Fields 时更新实体中值非空的列，主键、创建时间和逻辑删除标记除外。
func (k *Kronos) Update(entity any) *UpdateClause {
	u := &UpdateClause{k: k, logic: true, depth: k.options.CascadeDepth}
	u.pojo, u.err = k.Pojo(entity)
	if u.err == nil {
		u.table = u.pojo.Table
	}
	return u
}

// Set 把属性更新为 value，参数名为属性名加 New 后缀
func (u *UpdateClause) Set(name string, value any) *UpdateClause {
	for i := range u.sets {
		if u.sets[i].name == name {
			u.sets[i].value = value
			return u
		}
	}
	u.sets = append(u.sets, assign{name: name, value: value})
	return u
}

// Plus 输出为 `col` = `col` + :namePlus
func (u *UpdateClause) Plus(name string, value any) *UpdateClause {
	u.plus = append(u.plus, assign{name: name, value: value})
	return u
}

func (u *UpdateClause) Minus(name string, value any) *UpdateClause {
	u.minus = append(u.minus, assign{name: name, value: value})
	return u
}

// Fields 只更新指定属性，值取自实体
func (u *UpdateClause) Fields(items ...any) *UpdateClause {
	u.fields = append(u.fields, items...)
	return u
}

// Except 更新除指定属性外的所有列
func (u *UpdateClause) Except(items ...any) *UpdateClause {
	u.except = append(u.except, items...)
	return u
}

// By 以指定属性的等值作为条件，没有指定任何属性时构建失败
func (u *UpdateClause) By(items ...any) *UpdateClause {
	u.byCalled = true
	u.by = append(u.by, items...)
	return u
}

func (u *UpdateClause) Where(c *criteria.Criteria) *UpdateClause {
	if c == nil {
		return u
	}
	if u.where == nil {
		u.where = c
	} else {
		u.where = criteria.AndOf(u.where, c)
	}
	return u
}

func (u *UpdateClause) Logic(enabled bool) *UpdateClause {
	u.logic = enabled
	return u
}

// Cascade 同步更新引用了被更新属性的子记录
func (u *UpdateClause) Cascade(enabled bool, depth ...int) *UpdateClause {
	u.cascade = enabled
	if len(depth) > 0 {
		u.depth = depth[0]
	}
	return u
}

func (u *UpdateClause) Patch(params map[string]any) *UpdateClause {
	u.patch = mergeParams(u.patch, params)
	return u
}

func (u *UpdateClause) field(name string) (*model.Field, error) {
	f := u.table.Field(name)
	if f == nil || !f.IsColumn() {
		return nil, errors.Wrapf(model.ErrUnknownField, "field %q of table %q", name, u.table.Name)
	}
	return f, nil
}

// values 要更新的列和新值，按声明顺序
func (u *UpdateClause) values() ([]*model.Field, map[string]any, error) {
	var fields []*model.Field
	values := map[string]any{}
	add := func(f *model.Field, v any) error {
		cv, err := u.k.columnValue(f, v)
		if err != nil {
			return err
		}
		if _, ok := values[f.Name]; !ok {
			fields = append(fields, f)
		}
		values[f.Name] = cv
		return nil
	}

	switch {
	case len(u.sets) > 0:
		for _, s := range u.sets {
			f, err := u.field(s.name)
			if err != nil {
				return nil, nil, err
			}
			if err := add(f, s.value); err != nil {
				return nil, nil, err
			}
		}
	case len(u.fields) > 0:
		selected, err := resolveFields(u.table, u.fields)
		if err != nil {
			return nil, nil, err
		}
		for _, f := range selected {
			if err := add(f, u.pojo.Get(f.Name)); err != nil {
				return nil, nil, err
			}
		}
	case len(u.plus)+len(u.minus) == 0:
		except, err := resolveFields(u.table, u.except)
		if err != nil {
			return nil, nil, err
		}
		for _, f := range u.table.Columns() {
			if f.IsPrimaryKey() || !u.pojo.Has(f.Name) || containsField(except, f) || isStrategyField(u.table.CreateTime, f) || isStrategyField(u.table.LogicDelete, f) {
				continue
			}
			if err := add(f, u.pojo.Get(f.Name)); err != nil {
				return nil, nil, err
			}
		}
	}

	if s := u.table.UpdateTime; s.Valid() && !u.explicit(s.Field.Name) {
		if err := add(s.Field, u.k.timeValue(s)); err != nil {
			return nil, nil, err
		}
	}
	return fields, values, nil
}

// explicit 属性是否通过 Set 显式赋值
func (u *UpdateClause) explicit(name string) bool {
	return slices.ContainsFunc(u.sets, func(a assign) bool { return a.name == name })
}

func isStrategyField(s *model.Strategy, f *model.Field) bool {
	return s.Valid() && s.Field.Name == f.Name
}

func (u *UpdateClause) condition() (*criteria.Criteria, error) {
	var c *criteria.Criteria
	switch {
	case u.where != nil:
		c = u.where
	case u.byCalled:
		by, err := resolveFields(u.table, u.by)
		if err != nil {
			return nil, err
		}
		if len(by) == 0 {
			return nil, errors.Wrapf(ErrNeedUpdateCondition, "table %s", u.table.Name)
		}
		var children []*criteria.Criteria
		for _, f := range by {
			children = append(children, criteria.Eq(f, u.pojo.Get(f.Name)))
		}
		c = criteria.AndOf(children...)
	default:
		c = equalities(u.pojo)
	}
	if u.logic {
		c = criteria.WithLogicDelete(c, u.table, "")
	}
	return c, nil
}

// assigns params 与 b 内部的参数表是同一个 map，参数名冲突时追加后缀
func (u *UpdateClause) assigns(list []assign, suffix string, params map[string]any, b *criteria.Builder) ([]*dialect.Assign, error) {
	assigns := make([]*dialect.Assign, 0, len(list))
	for _, a := range list {
		f, err := u.field(a.name)
		if err != nil {
			return nil, err
		}
		name := b.ParamName(a.name + suffix)
		params[name] = a.value
		assigns = append(assigns, &dialect.Assign{Field: f, Param: name})
	}
	return assigns, nil
}

// build 生成更新语句，同时返回 WHERE 片段和新值，供级联预查询使用
func (u *UpdateClause) build() (*task.AtomicTask, *criteria.Result, map[string]any, error) {
	if u.err != nil {
		return nil, nil, nil, u.err
	}
	fields, values, err := u.values()
	if err != nil {
		return nil, nil, nil, err
	}
	if len(fields)+len(u.plus)+len(u.minus) == 0 {
		return nil, nil, nil, errors.Wrapf(ErrNoUpdateField, "table %s", u.table.Name)
	}
	c, err := u.condition()
	if err != nil {
		return nil, nil, nil, err
	}

	params := mergeParams(nil, u.patch)
	for _, f := range fields {
		params[f.Name+"New"] = values[f.Name]
	}
	b := u.k.criteriaBuilder(model.OperationUpdate, u.pojo.Values)
	where, err := b.Build(c, params)
	if err != nil {
		return nil, nil, nil, errors.WithMessage(err, "build where")
	}
	params = where.Params
	plus, err := u.assigns(u.plus, "Plus", params, b)
	if err != nil {
		return nil, nil, nil, err
	}
	minus, err := u.assigns(u.minus, "Minus", params, b)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(fields)+len(plus)+len(minus) == 0 {
		return nil, nil, nil, errors.Errorf("nothing to update in table %s", u.table.Name)
	}

	sql := u.k.dialect.UpdateSQL(&dialect.UpdateClauseInfo{
		TableName:    u.table.Name,
		Fields:       fields,
		PlusAssigns:  plus,
		MinusAssigns: minus,
		Where:        where.SQL,
	})
	t := task.NewAtomicTask(sql, params, model.OperationUpdate)
	u.k.debug(t)
	return t, where, values, nil
}

func (u *UpdateClause) buildAtomic() (*task.AtomicTask, error) {
	t, _, _, err := u.build()
	return t, err
}

// Build 生成更新任务，启用级联时在执行前查询受影响的记录并生成子记录的更新
func (u *UpdateClause) Build() (*task.ActionTask, error) {
	t, where, values, err := u.build()
	if err != nil {
		return nil, err
	}
	a := task.NewActionTask(t)
	if !u.cascade {
		return a, nil
	}
	refs, err := cascade.FindValidRefs(u.k.registry, u.table, model.OperationUpdate)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return a, nil
	}
	a.OnBefore(func(ctx context.Context, w task.Wrapper) error {
		records, err := u.k.prefetch(ctx, w, u.table, where, model.OperationUpdate, u.depth)
		if err != nil {
			return err
		}
		children, err := cascade.Update(u.k.registry, cascadeFactory{k: u.k}, records, values, u.depth)
		if err != nil {
			return errors.WithMessage(err, "cascade.Update failed")
		}
		u.k.logger.Info("cascade update", "table", u.table.Name, "records", len(records), "tasks", len(children))
		tasks := make([]task.Task, 0, len(children)+1)
		for _, c := range children {
			tasks = append(tasks, c)
		}
		a.Tasks = append(tasks, t)
		return nil
	})
	return a, nil
}

func (u *UpdateClause) Execute(ctx context.Context) (*task.Result, error) {
	return u.k.execute(ctx, u.Build)
}

// prefetch 按已经编译好的条件查询记录并加载关联，用于级联更新和删除
func (k *Kronos) prefetch(ctx context.Context, w task.Wrapper, table *model.Table, where *criteria.Result, op model.OperationType, depth int) ([]*model.Pojo, error) {
	sql := k.dialect.SelectSQL(&dialect.SelectClauseInfo{
		TableName: table.Name,
		Fields:    table.Columns(),
		Where:     where.SQL,
	})
	rows, err := task.NewAtomicTask(sql, where.Params, model.OperationSelect).Query(ctx, w)
	if err != nil {
		return nil, err
	}
	records := make([]*model.Pojo, 0, len(rows))
	for _, row := range rows {
		p, err := k.ToPojo(table, row)
		if err != nil {
			return nil, err
		}
		records = append(records, p)
	}
	if err := cascade.Load(ctx, w, k.registry, cascadeFactory{k: k}, records, op, depth); err != nil {
		return nil, errors.WithMessage(err, "cascade.Load failed")
	}
	return records, nil
}
