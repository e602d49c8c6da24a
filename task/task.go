package task

import (
	"context"

	"github.com/hatlonely/korm/model"
	"github.com/pkg/errors"
)

// Wrapper 数据访问接口，由 datasource 实现
type Wrapper interface {
	DBType() model.DBType
	URL() string
	ForList(ctx context.Context, task *AtomicTask) ([]map[string]any, error)
	Update(ctx context.Context, task *AtomicTask) (int64, error)
	Insert(ctx context.Context, task *AtomicTask) (*Result, error)
	BatchUpdate(ctx context.Context, task *BatchTask) (int64, error)
}

// Result 写操作的结果
type Result struct {
	AffectedRows int64
	// LastInsertID 自增主键，数据库不返回时为 0
	LastInsertID int64
}

// Task 可执行的任务
type Task interface {
	Execute(ctx context.Context, w Wrapper) (*Result, error)
}

// AtomicTask 一条 SQL 语句及其参数
type AtomicTask struct {
	SQL       string
	Params    map[string]any
	Operation model.OperationType
}

func NewAtomicTask(sql string, params map[string]any, op model.OperationType) *AtomicTask {
	if params == nil {
		params = map[string]any{}
	}
	return &AtomicTask{SQL: sql, Params: params, Operation: op}
}

// Execute 插入走 Insert，查询不允许执行，其他走 Update
func (t *AtomicTask) Execute(ctx context.Context, w Wrapper) (*Result, error) {
	switch t.Operation {
	case model.OperationSelect:
		return nil, errors.Errorf("select task should be queried, not executed: %s", t.SQL)
	case model.OperationInsert:
		res, err := w.Insert(ctx, t)
		if err != nil {
			return nil, errors.WithMessage(err, "insert")
		}
		return res, nil
	}
	n, err := w.Update(ctx, t)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s", t.Operation)
	}
	return &Result{AffectedRows: n}, nil
}

// Query 执行查询任务
func (t *AtomicTask) Query(ctx context.Context, w Wrapper) ([]map[string]any, error) {
	rows, err := w.ForList(ctx, t)
	if err != nil {
		return nil, errors.WithMessage(err, "query")
	}
	return rows, nil
}

// BatchTask 一条 SQL 语句和多组参数
type BatchTask struct {
	SQL       string
	ParamsArr []map[string]any
	Operation model.OperationType
}

func (t *BatchTask) Execute(ctx context.Context, w Wrapper) (*Result, error) {
	if len(t.ParamsArr) == 0 {
		return &Result{}, nil
	}
	n, err := w.BatchUpdate(ctx, t)
	if err != nil {
		return nil, errors.WithMessagef(err, "batch %s", t.Operation)
	}
	return &Result{AffectedRows: n}, nil
}

// Atomic 按参数组拆分为原子任务
func (t *BatchTask) Atomic() []*AtomicTask {
	tasks := make([]*AtomicTask, 0, len(t.ParamsArr))
	for _, params := range t.ParamsArr {
		tasks = append(tasks, NewAtomicTask(t.SQL, params, t.Operation))
	}
	return tasks
}

// Hook 任务执行前后的回调
type Hook func(ctx context.Context, w Wrapper) error

// ActionTask 顺序执行的一组任务，构成一个逻辑操作
type ActionTask struct {
	Tasks  []Task
	Before []Hook
	After  []Hook
}

func NewActionTask(tasks ...Task) *ActionTask {
	return &ActionTask{Tasks: tasks}
}

func (a *ActionTask) Append(tasks ...Task) *ActionTask {
	a.Tasks = append(a.Tasks, tasks...)
	return a
}

// Merge 追加另一个 ActionTask 的任务和回调
func (a *ActionTask) Merge(other *ActionTask) *ActionTask {
	if other == nil {
		return a
	}
	a.Tasks = append(a.Tasks, other.Tasks...)
	a.Before = append(a.Before, other.Before...)
	a.After = append(a.After, other.After...)
	return a
}

func (a *ActionTask) OnBefore(h Hook) *ActionTask {
	a.Before = append(a.Before, h)
	return a
}

func (a *ActionTask) OnAfter(h Hook) *ActionTask {
	a.After = append(a.After, h)
	return a
}

// AtomicTasks 展开所有原子任务，批量任务按参数组拆分
func (a *ActionTask) AtomicTasks() []*AtomicTask {
	var tasks []*AtomicTask
	for _, t := range a.Tasks {
		switch v := t.(type) {
		case *AtomicTask:
			tasks = append(tasks, v)
		case *BatchTask:
			tasks = append(tasks, v.Atomic()...)
		case *ActionTask:
			tasks = append(tasks, v.AtomicTasks()...)
		}
	}
	return tasks
}

// Execute 依次执行 Before、任务、After，任一步失败立即返回
//
// 返回的 AffectedRows 为所有任务之和，LastInsertID 取最后一个非零值。
func (a *ActionTask) Execute(ctx context.Context, w Wrapper) (*Result, error) {
	for _, h := range a.Before {
		if err := h(ctx, w); err != nil {
			return nil, errors.WithMessage(err, "before hook")
		}
	}
	total := &Result{}
	for i, t := range a.Tasks {
		res, err := t.Execute(ctx, w)
		if err != nil {
			return nil, errors.WithMessagef(err, "task %d", i)
		}
		total.AffectedRows += res.AffectedRows
		if res.LastInsertID != 0 {
			total.LastInsertID = res.LastInsertID
		}
	}
	for _, h := range a.After {
		if err := h(ctx, w); err != nil {
			return nil, errors.WithMessage(err, "after hook")
		}
	}
	return total, nil
}
