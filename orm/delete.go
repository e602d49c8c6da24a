package orm

import (
	"context"

	"github.com/hatlonely/korm/cascade"
	"github.com/hatlonely/korm/criteria"
	"github.com/hatlonely/korm/dialect"
	"github.com/hatlonely/korm/model"
	"github.com/hatlonely/korm/task"
	"github.com/pkg/errors"
)

// DeleteClause 单表删除
//
// 实体启用逻辑删除时生成把删除标记置为 1 的 UPDATE，Logic(false) 时物理删除。
type DeleteClause struct {
	k     *Kronos
	pojo  *model.Pojo
	table *model.Table
	err   error

	where    *criteria.Criteria
	by       []any
	byCalled bool
	logic    bool
	cascade  bool
	depth    int
	patch    map[string]any
}

func (k *Kronos) Delete(entity any) *DeleteClause {
	d := &DeleteClause{k: k, logic: true, depth: k.options.CascadeDepth}
	d.pojo, d.err = k.Pojo(entity)
	if d.err == nil {
		d.table = d.pojo.Table
	}
	return d
}

func (d *DeleteClause) By(items ...any) *DeleteClause {
	d.byCalled = true
	d.by = append(d.by, items...)
	return d
}

func (d *DeleteClause) Where(c *criteria.Criteria) *DeleteClause {
	if c == nil {
		return d
	}
	if d.where == nil {
		d.where = c
	} else {
		d.where = criteria.AndOf(d.where, c)
	}
	return d
}

func (d *DeleteClause) Logic(enabled bool) *DeleteClause {
	d.logic = enabled
	return d
}

// Cascade 按关联声明的 OnDelete 处理子记录
func (d *DeleteClause) Cascade(enabled bool, depth ...int) *DeleteClause {
	d.cascade = enabled
	if len(depth) > 0 {
		d.depth = depth[0]
	}
	return d
}

func (d *DeleteClause) Patch(params map[string]any) *DeleteClause {
	d.patch = mergeParams(d.patch, params)
	return d
}

func (d *DeleteClause) logical() bool {
	return d.logic && d.table.LogicDelete.Valid()
}

func (d *DeleteClause) condition() (*criteria.Criteria, error) {
	var c *criteria.Criteria
	switch {
	case d.where != nil:
		c = d.where
	case d.byCalled:
		by, err := resolveFields(d.table, d.by)
		if err != nil {
			return nil, err
		}
		if len(by) == 0 {
			return nil, errors.Wrapf(ErrNeedUpdateCondition, "table %s", d.table.Name)
		}
		var children []*criteria.Criteria
		for _, f := range by {
			children = append(children, criteria.Eq(f, d.pojo.Get(f.Name)))
		}
		c = criteria.AndOf(children...)
	default:
		c = equalities(d.pojo)
	}
	if d.logical() {
		c = criteria.WithLogicDelete(c, d.table, "")
	}
	return c, nil
}

func (d *DeleteClause) build() (*task.AtomicTask, *criteria.Result, error) {
	if d.err != nil {
		return nil, nil, d.err
	}
	c, err := d.condition()
	if err != nil {
		return nil, nil, err
	}

	if !d.logical() {
		where, err := d.k.criteriaBuilder(model.OperationDelete, d.pojo.Values).Build(c, d.patch)
		if err != nil {
			return nil, nil, errors.WithMessage(err, "build where")
		}
		t := task.NewAtomicTask(d.k.dialect.DeleteSQL(d.table.Name, where.SQL), where.Params, model.OperationDelete)
		d.k.debug(t)
		return t, where, nil
	}

	deleted := d.table.LogicDelete.Field
	fields := []*model.Field{deleted}
	params := mergeParams(nil, d.patch)
	params[deleted.Name+"New"] = model.LogicDeleted
	if s := d.table.UpdateTime; s.Valid() {
		fields = append(fields, s.Field)
		params[s.Field.Name+"New"] = d.k.timeValue(s)
	}
	where, err := d.k.criteriaBuilder(model.OperationDelete, d.pojo.Values).Build(c, params)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "build where")
	}
	sql := d.k.dialect.UpdateSQL(&dialect.UpdateClauseInfo{TableName: d.table.Name, Fields: fields, Where: where.SQL})
	t := task.NewAtomicTask(sql, where.Params, model.OperationUpdate)
	d.k.debug(t)
	return t, where, nil
}

func (d *DeleteClause) buildAtomic() (*task.AtomicTask, error) {
	t, _, err := d.build()
	return t, err
}

// Build 启用级联时在执行前查询受影响的记录，任务替换为子记录先于父记录的级联任务
func (d *DeleteClause) Build() (*task.ActionTask, error) {
	t, where, err := d.build()
	if err != nil {
		return nil, err
	}
	a := task.NewActionTask(t)
	if !d.cascade {
		return a, nil
	}
	refs, err := cascade.FindValidRefs(d.k.registry, d.table, model.OperationDelete)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return a, nil
	}
	a.OnBefore(func(ctx context.Context, w task.Wrapper) error {
		records, err := d.k.prefetch(ctx, w, d.table, where, model.OperationDelete, d.depth)
		if err != nil {
			return err
		}
		tasks, err := cascade.Delete(d.k.registry, cascadeFactory{k: d.k}, records, d.depth)
		if err != nil {
			return errors.WithMessage(err, "cascade.Delete failed")
		}
		d.k.logger.Info("cascade delete", "table", d.table.Name, "records", len(records), "tasks", len(tasks))
		a.Tasks = a.Tasks[:0]
		for _, t := range tasks {
			a.Tasks = append(a.Tasks, t)
		}
		return nil
	})
	return a, nil
}

func (d *DeleteClause) Execute(ctx context.Context) (*task.Result, error) {
	return d.k.execute(ctx, d.Build)
}
