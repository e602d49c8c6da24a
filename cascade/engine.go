package cascade

import (
	"context"

	"github.com/hatlonely/korm/model"
	"github.com/hatlonely/korm/task"
	"github.com/pkg/errors"
)

// Load 为记录加载关联属性，每条记录的每个关联发起一次查询，递归到 depth 层
//
// depth 为 -1 时不限制深度，已经加载过的记录 (按表名和主键判断) 不会再次展开。
func Load(ctx context.Context, w task.Wrapper, r Resolver, f Factory, records []*model.Pojo, op model.OperationType, depth int) error {
	visited := map[string]struct{}{}
	for _, p := range records {
		if key := identity(p); key != "" {
			visited[key] = struct{}{}
		}
	}
	return load(ctx, w, r, f, records, op, depth, visited)
}

func load(ctx context.Context, w task.Wrapper, r Resolver, f Factory, records []*model.Pojo, op model.OperationType, depth int, visited map[string]struct{}) error {
	if depth == 0 {
		return nil
	}
	for _, p := range records {
		refs, err := FindValidRefs(r, p.Table, op)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			where, err := ref.Where(p)
			if err != nil {
				return err
			}
			if where == nil {
				continue
			}
			t, err := f.SelectTask(ref.Target, where)
			if err != nil {
				return errors.WithMessagef(err, "select %s.%s", p.Table.Name, ref.Field.Name)
			}
			rows, err := t.Query(ctx, w)
			if err != nil {
				return err
			}

			var children, expand []*model.Pojo
			for _, row := range rows {
				child, err := f.ToPojo(ref.Target, row)
				if err != nil {
					return err
				}
				children = append(children, child)
				key := identity(child)
				if key == "" {
					expand = append(expand, child)
					continue
				}
				if _, ok := visited[key]; !ok {
					visited[key] = struct{}{}
					expand = append(expand, child)
				}
			}

			if ref.Field.IsArray {
				p.Set(ref.Field.Name, children)
			} else if len(children) > 0 {
				p.Set(ref.Field.Name, children[0])
			}

			if err := load(ctx, w, r, f, expand, op, depth-1, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

// Update 为已加载关联的记录生成子记录的级联更新任务，不包括根记录本身
//
// set 以属性名为 key，是根记录要更新的值。每棵树内子节点的任务先于父节点，
// 子节点只更新由父节点新值推导出的外键。根记录的更新由调用方在这些任务之后执行。
func Update(r Resolver, f Factory, records []*model.Pojo, set map[string]any, depth int) ([]*task.AtomicTask, error) {
	if len(records) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(set))
	var names []string
	for _, field := range records[0].Table.Columns() {
		if v, ok := set[field.Name]; ok {
			names = append(names, field.Name)
			params[field.Name+"New"] = v
		}
	}

	var roots []*Node
	for _, p := range records {
		root, err := BuildTree(r, p, &Options{Operation: model.OperationUpdate, LimitDepth: depth, UpdateFields: names})
		if err != nil {
			return nil, err
		}
		roots = append(roots, root)
	}

	var tasks []*task.AtomicTask
	for _, n := range Flatten(roots...) {
		if n.Ref == nil {
			continue
		}
		values := n.Values(params)
		if len(values) == 0 {
			continue
		}
		t, err := f.UpdateTask(n.Pojo, values)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Delete 为已加载关联的记录生成级联删除任务
//
// 子记录按父节点关联声明的 OnDelete 处理：CASCADE 删除并继续向下级联，SET NULL 和
// SET DEFAULT 改写外键，RESTRICT 存在子记录时返回 ErrRestrictViolation，NO ACTION 不处理。
func Delete(r Resolver, f Factory, records []*model.Pojo, depth int) ([]*task.AtomicTask, error) {
	var roots []*Node
	for _, p := range records {
		root, err := BuildTree(r, p, &Options{Operation: model.OperationDelete, LimitDepth: depth})
		if err != nil {
			return nil, err
		}
		roots = append(roots, root)
	}

	var tasks []*task.AtomicTask
	for _, n := range Flatten(roots...) {
		t, err := deleteTask(f, n)
		if err != nil {
			return nil, err
		}
		if t != nil {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

func deleteTask(f Factory, n *Node) (*task.AtomicTask, error) {
	if n.Ref == nil {
		return f.DeleteTask(n.Pojo)
	}
	ref := n.Ref.Reference
	switch ref.OnDelete {
	case model.Cascade:
		return f.DeleteTask(n.Pojo)
	case model.Restrict:
		parent := n.Info.Parent.Pojo
		return nil, errors.Wrapf(ErrRestrictViolation, "%s%v is referenced by %s%v", parent.Table.Name, parent.PrimaryKeyValues(), n.Pojo.Table.Name, n.Pojo.PrimaryKeyValues())
	case model.SetNull:
		values := map[string]any{}
		for _, fk := range ref.Fields {
			values[fk] = nil
		}
		return f.UpdateTask(n.Pojo, values)
	case model.SetDefault:
		values := map[string]any{}
		for i, fk := range ref.Fields {
			values[fk] = ref.DefaultValues[i]
		}
		return f.UpdateTask(n.Pojo, values)
	}
	return nil, nil
}
