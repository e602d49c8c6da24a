package task

import (
	"context"
	"testing"

	"github.com/hatlonely/korm/model"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

type recordWrapper struct {
	executed []string
	failOn   string
}

func (w *recordWrapper) DBType() model.DBType { return model.Mysql }
func (w *recordWrapper) URL() string          { return "" }

func (w *recordWrapper) ForList(ctx context.Context, t *AtomicTask) ([]map[string]any, error) {
	w.executed = append(w.executed, t.SQL)
	return []map[string]any{{"id": 1}}, nil
}

func (w *recordWrapper) Update(ctx context.Context, t *AtomicTask) (int64, error) {
	w.executed = append(w.executed, t.SQL)
	if t.SQL == w.failOn {
		return 0, errors.New("boom")
	}
	return 1, nil
}

func (w *recordWrapper) Insert(ctx context.Context, t *AtomicTask) (*Result, error) {
	w.executed = append(w.executed, t.SQL)
	return &Result{AffectedRows: 1, LastInsertID: 42}, nil
}

func (w *recordWrapper) BatchUpdate(ctx context.Context, t *BatchTask) (int64, error) {
	w.executed = append(w.executed, t.SQL)
	return int64(len(t.ParamsArr)), nil
}

func TestAtomicTask(t *testing.T) {
	Convey("测试原子任务", t, func() {
		w := &recordWrapper{}
		ctx := context.Background()

		res, err := NewAtomicTask("INSERT", nil, model.OperationInsert).Execute(ctx, w)
		So(err, ShouldBeNil)
		So(res.LastInsertID, ShouldEqual, 42)

		res, err = NewAtomicTask("UPDATE", nil, model.OperationUpdate).Execute(ctx, w)
		So(err, ShouldBeNil)
		So(res.AffectedRows, ShouldEqual, 1)

		_, err = NewAtomicTask("SELECT", nil, model.OperationSelect).Execute(ctx, w)
		So(err, ShouldNotBeNil)

		rows, err := NewAtomicTask("SELECT", nil, model.OperationSelect).Query(ctx, w)
		So(err, ShouldBeNil)
		So(rows, ShouldHaveLength, 1)

		So(w.executed, ShouldResemble, []string{"INSERT", "UPDATE", "SELECT"})
	})

	Convey("测试批量任务", t, func() {
		w := &recordWrapper{}
		b := &BatchTask{SQL: "INSERT", ParamsArr: []map[string]any{{"id": 1}, {"id": 2}}, Operation: model.OperationInsert}
		res, err := b.Execute(context.Background(), w)
		So(err, ShouldBeNil)
		So(res.AffectedRows, ShouldEqual, 2)
		So(b.Atomic(), ShouldHaveLength, 2)

		res, err = (&BatchTask{SQL: "X"}).Execute(context.Background(), w)
		So(err, ShouldBeNil)
		So(res.AffectedRows, ShouldEqual, 0)
		So(w.executed, ShouldResemble, []string{"INSERT"})
	})
}

func TestActionTask(t *testing.T) {
	Convey("测试组合任务", t, func() {
		w := &recordWrapper{}
		ctx := context.Background()
		var order []string

		a := NewActionTask(
			NewAtomicTask("UPDATE child", nil, model.OperationUpdate),
			NewAtomicTask("INSERT parent", nil, model.OperationInsert),
		).OnBefore(func(ctx context.Context, w Wrapper) error {
			order = append(order, "before")
			return nil
		}).OnAfter(func(ctx context.Context, w Wrapper) error {
			order = append(order, "after")
			return nil
		})
		a.Merge(NewActionTask(&BatchTask{SQL: "BATCH", ParamsArr: []map[string]any{{}, {}, {}}}))

		res, err := a.Execute(ctx, w)
		So(err, ShouldBeNil)
		So(res.AffectedRows, ShouldEqual, 5)
		So(res.LastInsertID, ShouldEqual, 42)
		So(order, ShouldResemble, []string{"before", "after"})
		So(w.executed, ShouldResemble, []string{"UPDATE child", "INSERT parent", "BATCH"})
		So(a.AtomicTasks(), ShouldHaveLength, 5)

		Convey("任务失败时停止执行", func() {
			w := &recordWrapper{failOn: "A"}
			_, err := NewActionTask(
				NewAtomicTask("A", nil, model.OperationDelete),
				NewAtomicTask("B", nil, model.OperationDelete),
			).Execute(ctx, w)
			So(err, ShouldNotBeNil)
			So(errors.Cause(err).Error(), ShouldEqual, "boom")
			So(w.executed, ShouldResemble, []string{"A"})
		})

		Convey("回调失败", func() {
			_, err := NewActionTask().OnBefore(func(ctx context.Context, w Wrapper) error {
				return errors.New("stop")
			}).Execute(ctx, &recordWrapper{})
			So(err, ShouldNotBeNil)
		})
	})
}
