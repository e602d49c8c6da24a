package orm

import (
	"context"

	"github.com/hatlonely/korm/dialect"
	"github.com/hatlonely/korm/model"
	"github.com/hatlonely/korm/task"
	"github.com/pkg/errors"
)

// UpsertClause 记录存在时更新，不存在时插入，存在与否由 On 指定的属性判断
type UpsertClause struct {
	k     *Kronos
	pojo  *model.Pojo
	table *model.Table
	err   error

	on         []any
	fields     []any
	onConflict bool
}

func (k *Kronos) Upsert(entity any) *UpsertClause {
	u := &UpsertClause{k: k}
	u.pojo, u.err = k.Pojo(entity)
	if u.err == nil {
		u.table = u.pojo.Table
	}
	return u
}

// On 判断记录是否存在的属性，默认为主键
func (u *UpsertClause) On(items ...any) *UpsertClause {
	u.on = append(u.on, items...)
	return u
}

// Fields 存在时只更新这些属性，默认更新所有插入的列
func (u *UpsertClause) Fields(items ...any) *UpsertClause {
	u.fields = append(u.fields, items...)
	return u
}

// OnConflict 使用数据库的冲突处理语句，On 的属性上需要有唯一约束
func (u *UpsertClause) OnConflict() *UpsertClause {
	u.onConflict = true
	return u
}

func (u *UpsertClause) onFields() ([]*model.Field, error) {
	if len(u.on) > 0 {
		return resolveFields(u.table, u.on)
	}
	if pks := u.table.PrimaryKey(); len(pks) > 0 {
		return pks, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedOperation, "upsert table %s without primary key or on fields", u.table.Name)
}

// updateFields 插入的列去掉判断属性和创建时间
func (u *UpsertClause) updateFields(insert []*model.Field, on []*model.Field) ([]*model.Field, error) {
	if len(u.fields) > 0 {
		return resolveFields(u.table, u.fields)
	}
	var fields []*model.Field
	for _, f := range insert {
		if containsField(on, f) || isStrategyField(u.table.CreateTime, f) {
			continue
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func (u *UpsertClause) conflictTask(on []*model.Field) (*task.AtomicTask, error) {
	values, err := u.k.prepare(u.pojo)
	if err != nil {
		return nil, err
	}
	var insert []*model.Field
	for _, f := range u.table.Columns() {
		if _, ok := values[f.Name]; ok {
			insert = append(insert, f)
		}
	}
	update, err := u.updateFields(insert, on)
	if err != nil {
		return nil, err
	}
	r := dialect.NewConflictResolver(u.table.Name, on, insert)
	r.ToUpdateFields = update
	for _, f := range on {
		if _, ok := values[f.Name]; !ok {
			values[f.Name] = u.pojo.Get(f.Name)
		}
	}
	for _, f := range update {
		if _, ok := values[f.Name]; !ok {
			values[f.Name] = nil
		}
	}
	t := task.NewAtomicTask(u.k.dialect.OnConflictSQL(r), values, model.OperationUpsert)
	u.k.debug(t)
	return t, nil
}

// Build OnConflict 时生成一条语句，否则在执行前查询记录是否存在，再选择更新或插入
//
// 判断属性缺少值时直接插入。
func (u *UpsertClause) Build() (*task.ActionTask, error) {
	if u.err != nil {
		return nil, u.err
	}
	on, err := u.onFields()
	if err != nil {
		return nil, err
	}
	if u.onConflict {
		t, err := u.conflictTask(on)
		if err != nil {
			return nil, err
		}
		return task.NewActionTask(t), nil
	}

	u.k.generateKey(u.pojo)
	insert, err := u.k.insertTask(u.pojo.Clone())
	if err != nil {
		return nil, err
	}
	by := make([]any, 0, len(on))
	for _, f := range on {
		if !u.pojo.Has(f.Name) {
			return task.NewActionTask(insert), nil
		}
		by = append(by, f)
	}
	count, err := u.k.Select(u.pojo).Fields("COUNT(1)").By(by...).Build()
	if err != nil {
		return nil, err
	}
	var insertFields []*model.Field
	for _, f := range u.table.Columns() {
		if _, ok := insert.Params[f.Name]; ok {
			insertFields = append(insertFields, f)
		}
	}
	update, err := u.updateFields(insertFields, on)
	if err != nil {
		return nil, err
	}
	updateClause := u.k.Update(model.NewPojo(u.table, insert.Params)).By(by...)
	for _, f := range update {
		updateClause.Fields(f)
	}
	// 记录已存在且没有可更新的列时不做任何操作
	var updateTasks []task.Task
	updateTask, err := updateClause.buildAtomic()
	switch {
	case err == nil:
		updateTasks = []task.Task{updateTask}
	case !errors.Is(err, ErrNoUpdateField):
		return nil, err
	}

	a := task.NewActionTask()
	a.OnBefore(func(ctx context.Context, w task.Wrapper) error {
		rows, err := count.Query(ctx, w)
		if err != nil {
			return err
		}
		if countOf(rows) > 0 {
			a.Tasks = updateTasks
		} else {
			a.Tasks = []task.Task{insert}
		}
		return nil
	})
	return a, nil
}

func (u *UpsertClause) Execute(ctx context.Context) (*task.Result, error) {
	return u.k.execute(ctx, u.Build)
}
