package orm

import (
	"context"

	"github.com/hatlonely/korm/cascade"
	"github.com/hatlonely/korm/model"
	"github.com/hatlonely/korm/task"
	"github.com/pkg/errors"
)

// InsertClause 插入一个或多个同表实体
type InsertClause struct {
	k       *Kronos
	pojos   []*model.Pojo
	table   *model.Table
	err     error
	cascade bool
	depth   int
}

// Insert 多个实体时生成批量任务，插入的列为所有实体非空列的并集
func (k *Kronos) Insert(entities ...any) *InsertClause {
	c := &InsertClause{k: k, depth: k.options.CascadeDepth}
	if len(entities) == 0 {
		c.err = errors.New("nothing to insert")
		return c
	}
	for _, e := range entities {
		p, err := k.Pojo(e)
		if err != nil {
			c.err = err
			return c
		}
		if c.table == nil {
			c.table = p.Table
		} else if c.table != p.Table {
			c.err = errors.Errorf("batch insert expects one table, got %s and %s", c.table.Name, p.Table.Name)
			return c
		}
		c.pojos = append(c.pojos, p)
	}
	return c
}

// Cascade 同时插入关联属性中的子实体，子实体的外键取自父实体
func (c *InsertClause) Cascade(enabled bool, depth ...int) *InsertClause {
	c.cascade = enabled
	if len(depth) > 0 {
		c.depth = depth[0]
	}
	return c
}

// generateKey 为缺失的 UUID 和 snowflake 主键生成值
func (k *Kronos) generateKey(p *model.Pojo) {
	for _, f := range p.Table.PrimaryKey() {
		if p.Has(f.Name) {
			continue
		}
		switch f.PrimaryKey {
		case model.PrimaryKeyUUID:
			p.Set(f.Name, k.strGen.Generate())
		case model.PrimaryKeySnowflake:
			p.Set(f.Name, k.intGen.Generate())
		}
	}
}

// generateKeys 递归为实体树生成主键，子实体的外键在建树时取自父实体
func (k *Kronos) generateKeys(p *model.Pojo, visited map[*model.Pojo]struct{}) {
	if _, ok := visited[p]; ok {
		return
	}
	visited[p] = struct{}{}
	k.generateKey(p)
	for _, f := range p.Table.References() {
		for _, child := range p.Children(f.Name) {
			k.generateKeys(child, visited)
		}
	}
}

// prepare 生成主键、填充时间和逻辑删除字段，返回插入的值
func (k *Kronos) prepare(p *model.Pojo) (map[string]any, error) {
	t := p.Table
	k.generateKey(p)
	for _, s := range []*model.Strategy{t.CreateTime, t.UpdateTime} {
		if s.Valid() && !p.Has(s.Field.Name) {
			p.Set(s.Field.Name, k.timeValue(s))
		}
	}
	if s := t.LogicDelete; s.Valid() && !p.Has(s.Field.Name) {
		p.Set(s.Field.Name, model.LogicNotDeleted)
	}

	values := map[string]any{}
	for _, f := range t.Columns() {
		if !p.Has(f.Name) {
			continue
		}
		v, err := k.columnValue(f, p.Get(f.Name))
		if err != nil {
			return nil, err
		}
		values[f.Name] = v
	}
	return values, nil
}

func (k *Kronos) insertTask(p *model.Pojo) (*task.AtomicTask, error) {
	values, err := k.prepare(p)
	if err != nil {
		return nil, err
	}
	var fields []*model.Field
	for _, f := range p.Table.Columns() {
		if _, ok := values[f.Name]; ok {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return nil, errors.Errorf("nothing to insert into table %s", p.Table.Name)
	}
	t := task.NewAtomicTask(k.dialect.InsertSQL(p.Table.Name, fields), values, model.OperationInsert)
	k.debug(t)
	return t, nil
}

func (c *InsertClause) batch() (*task.BatchTask, error) {
	var paramsArr []map[string]any
	used := map[string]struct{}{}
	for _, p := range c.pojos {
		values, err := c.k.prepare(p)
		if err != nil {
			return nil, err
		}
		for name := range values {
			used[name] = struct{}{}
		}
		paramsArr = append(paramsArr, values)
	}
	var fields []*model.Field
	for _, f := range c.table.Columns() {
		if _, ok := used[f.Name]; ok {
			fields = append(fields, f)
		}
	}
	for _, params := range paramsArr {
		for _, f := range fields {
			if _, ok := params[f.Name]; !ok {
				params[f.Name] = nil
			}
		}
	}
	t := &task.BatchTask{SQL: c.k.dialect.InsertSQL(c.table.Name, fields), ParamsArr: paramsArr, Operation: model.OperationInsert}
	c.k.logger.Debug("build batch task", "sql", t.SQL, "size", len(paramsArr))
	return t, nil
}

// cascadeTasks 父实体先于子实体插入
func (c *InsertClause) cascadeTasks(p *model.Pojo) ([]task.Task, error) {
	c.k.generateKeys(p, map[*model.Pojo]struct{}{})
	root, err := cascade.BuildTree(c.k.registry, p, &cascade.Options{
		Operation:            model.OperationInsert,
		LimitDepth:           c.depth,
		UpdateReferenceValue: true,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "cascade.BuildTree failed")
	}
	nodes := preorder(root, nil)
	if len(nodes) > 1 {
		for _, n := range nodes {
			if len(n.Children) == 0 {
				continue
			}
			for _, f := range n.Pojo.Table.PrimaryKey() {
				if f.IsIdentity() && !n.Pojo.Has(f.Name) {
					return nil, errors.Wrapf(ErrUnsupportedOperation, "cascade insert needs %s.%s before insert", n.Pojo.Table.Name, f.Name)
				}
			}
		}
	}
	tasks := make([]task.Task, 0, len(nodes))
	for _, n := range nodes {
		t, err := c.k.insertTask(n.Pojo)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// preorder 父节点在前，兄弟节点保持声明顺序
func preorder(n *cascade.Node, nodes []*cascade.Node) []*cascade.Node {
	if n == nil {
		return nodes
	}
	nodes = append(nodes, n)
	for _, c := range n.Children {
		nodes = preorder(c, nodes)
	}
	return nodes
}

// Build 单个实体生成原子任务，多个实体生成批量任务
func (c *InsertClause) Build() (*task.ActionTask, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.cascade {
		a := task.NewActionTask()
		for _, p := range c.pojos {
			tasks, err := c.cascadeTasks(p)
			if err != nil {
				return nil, err
			}
			a.Append(tasks...)
		}
		return a, nil
	}
	if len(c.pojos) == 1 {
		t, err := c.k.insertTask(c.pojos[0])
		if err != nil {
			return nil, err
		}
		return task.NewActionTask(t), nil
	}
	t, err := c.batch()
	if err != nil {
		return nil, err
	}
	return task.NewActionTask(t), nil
}

// Execute 单个实体插入时把自增主键写回实体
func (c *InsertClause) Execute(ctx context.Context) (*task.Result, error) {
	res, err := c.k.execute(ctx, c.Build)
	if err != nil {
		return nil, err
	}
	if len(c.pojos) == 1 && res.LastInsertID != 0 {
		for _, f := range c.table.PrimaryKey() {
			if f.IsIdentity() && !c.pojos[0].Has(f.Name) {
				c.pojos[0].Set(f.Name, res.LastInsertID)
			}
		}
	}
	return res, nil
}

// Pojos 插入的实体，Build 后包含生成的主键和时间
func (c *InsertClause) Pojos() []*model.Pojo {
	return c.pojos
}
