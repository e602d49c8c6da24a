package orm

import (
	"context"

	"github.com/hatlonely/korm/dialect"
	"github.com/hatlonely/korm/model"
	"github.com/hatlonely/korm/task"
	"github.com/pkg/errors"
)

// TableOperation 表结构操作
type TableOperation struct {
	k     *Kronos
	table *model.Table
	err   error
}

// Table entity 可以是 *model.Table、*model.Pojo 或结构体
func (k *Kronos) Table(entity any) *TableOperation {
	op := &TableOperation{k: k}
	if t, ok := entity.(*model.Table); ok {
		op.table = t
		return op
	}
	p, err := k.Pojo(entity)
	if err != nil {
		op.err = err
		return op
	}
	op.table = p.Table
	return op
}

func statements(sqls []string, op model.OperationType) *task.ActionTask {
	a := task.NewActionTask()
	for _, sql := range sqls {
		a.Append(task.NewAtomicTask(sql, nil, op))
	}
	return a
}

func (o *TableOperation) BuildCreate() (*task.ActionTask, error) {
	if o.err != nil {
		return nil, o.err
	}
	if err := o.table.Validate(); err != nil {
		return nil, err
	}
	return statements(o.k.dialect.TableCreateSQL(o.table), model.OperationCreate), nil
}

func (o *TableOperation) BuildDrop() (*task.ActionTask, error) {
	if o.err != nil {
		return nil, o.err
	}
	return statements(o.k.dialect.TableDropSQL(o.table.Name), model.OperationDrop), nil
}

// BuildTruncate 表中有自增列时重置自增值
func (o *TableOperation) BuildTruncate() (*task.ActionTask, error) {
	if o.err != nil {
		return nil, o.err
	}
	restart := false
	for _, f := range o.table.Columns() {
		if f.IsIdentity() {
			restart = true
		}
	}
	return statements(o.k.dialect.TableTruncateSQL(o.table.Name, restart), model.OperationTruncate), nil
}

// Exists 数据库名取自配置，未配置时从数据源 URL 中解析
func (o *TableOperation) Exists(ctx context.Context) (bool, error) {
	if o.err != nil {
		return false, o.err
	}
	w, err := o.k.mustWrapper()
	if err != nil {
		return false, err
	}
	t := task.NewAtomicTask(o.k.dialect.TableExistsSQL(), map[string]any{
		"tableName": o.table.Name,
		"dbName":    o.k.databaseName(),
	}, model.OperationSelect)
	rows, err := t.Query(ctx, w)
	if err != nil {
		return false, err
	}
	return countOf(rows) > 0, nil
}

func (o *TableOperation) run(ctx context.Context, build func() (*task.ActionTask, error)) error {
	_, err := o.k.execute(ctx, build)
	return err
}

func (o *TableOperation) Create(ctx context.Context) error {
	return o.run(ctx, o.BuildCreate)
}

func (o *TableOperation) Drop(ctx context.Context) error {
	return o.run(ctx, o.BuildDrop)
}

func (o *TableOperation) Truncate(ctx context.Context) error {
	return o.run(ctx, o.BuildTruncate)
}

// Sync 表不存在时创建，存在时比较列和索引并变更，返回是否执行了变更
func (o *TableOperation) Sync(ctx context.Context) (bool, error) {
	exists, err := o.Exists(ctx)
	if err != nil {
		return false, err
	}
	if !exists {
		o.k.logger.Info("sync create table", "table", o.table.Name)
		return true, o.Create(ctx)
	}

	w := o.k.wrapper
	columns, err := o.k.dialect.TableColumns(ctx, w, o.table.Name)
	if err != nil {
		return false, errors.WithMessage(err, "dialect.TableColumns failed")
	}
	indexes, err := o.k.dialect.TableIndexes(ctx, w, o.table.Name)
	if err != nil {
		return false, errors.WithMessage(err, "dialect.TableIndexes failed")
	}
	columnDiff := dialect.DiffColumns(o.k.dialect, o.table.Columns(), columns)
	indexDiff := dialect.DiffIndexes(o.table.Indexes, indexes)
	if columnDiff.Empty() && indexDiff.Empty() {
		return false, nil
	}
	o.k.logger.Info("sync alter table", "table", o.table.Name,
		"addColumns", len(columnDiff.ToAdd), "modifyColumns", len(columnDiff.ToModified), "dropColumns", len(columnDiff.ToDelete),
		"addIndexes", len(indexDiff.ToAdd), "dropIndexes", len(indexDiff.ToDelete))

	a := statements(o.k.dialect.TableSyncSQL(o.table, columnDiff, indexDiff), model.OperationAlter)
	if _, err := a.Execute(ctx, w); err != nil {
		return false, err
	}
	return true, nil
}
