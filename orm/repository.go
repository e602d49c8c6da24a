package orm

import (
	"context"
	"reflect"

	"github.com/hatlonely/korm/criteria"
	"github.com/hatlonely/korm/model"
	"github.com/hatlonely/korm/task"
	"github.com/pkg/errors"
)

// CreateOptions 创建记录时的选项
type CreateOptions struct {
	// UpdateOnConflict 主键冲突时更新
	UpdateOnConflict bool
	// Cascade 同时创建关联属性中的子记录
	Cascade bool
}

type CreateOption func(*CreateOptions)

func WithUpdateOnConflict() CreateOption {
	return func(o *CreateOptions) { o.UpdateOnConflict = true }
}

func WithCascade() CreateOption {
	return func(o *CreateOptions) { o.Cascade = true }
}

// QueryOptions 查询选项
type QueryOptions struct {
	PageIndex int
	PageSize  int
	OrderBy   string
	OrderDesc bool
	Cascade   bool
}

type QueryOption func(*QueryOptions)

func WithPage(pi int, ps int) QueryOption {
	return func(o *QueryOptions) { o.PageIndex, o.PageSize = pi, ps }
}

func WithOrder(name string, desc bool) QueryOption {
	return func(o *QueryOptions) { o.OrderBy, o.OrderDesc = name, desc }
}

func WithCascadeSelect() QueryOption {
	return func(o *QueryOptions) { o.Cascade = true }
}

// Repository 结构体到表的直接映射，T 为带 korm 标签的结构体
type Repository[T any] interface {
	// Migrate 表不存在时创建，存在时同步表结构
	Migrate(ctx context.Context) error

	Create(ctx context.Context, record *T, opts ...CreateOption) error
	// Get 根据主键获取记录，复合主键按声明顺序传入
	Get(ctx context.Context, ids ...any) (*T, error)
	// Update 根据主键更新所有列
	Update(ctx context.Context, record *T) error
	Delete(ctx context.Context, ids ...any) error

	Find(ctx context.Context, where *criteria.Criteria, opts ...QueryOption) ([]*T, error)
	FindOne(ctx context.Context, where *criteria.Criteria) (*T, error)
	Count(ctx context.Context, where *criteria.Criteria) (int64, error)
	Exists(ctx context.Context, where *criteria.Criteria) (bool, error)

	// BatchCreate 一条语句多组参数，数据源在事务中执行
	BatchCreate(ctx context.Context, records []*T, opts ...CreateOption) error
	BatchUpdate(ctx context.Context, records []*T) error
	BatchDelete(ctx context.Context, ids []any) error

	// Table 实体的表描述，用于构造条件
	Table() *model.Table
}

type repositoryImpl[T any] struct {
	k     *Kronos
	table *model.Table
	pks   []*model.Field
}

func NewRepository[T any](k *Kronos) (Repository[T], error) {
	if _, err := k.mustWrapper(); err != nil {
		return nil, err
	}
	table, err := k.mapper.TableOf(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, errors.WithMessage(err, "mapper.TableOf failed")
	}
	pks := table.PrimaryKey()
	if len(pks) == 0 {
		return nil, errors.Errorf("table %s has no primary key", table.Name)
	}
	return &repositoryImpl[T]{k: k, table: table, pks: pks}, nil
}

func (r *repositoryImpl[T]) Table() *model.Table {
	return r.table
}

func (r *repositoryImpl[T]) Migrate(ctx context.Context) error {
	_, err := r.k.Table(r.table).Sync(ctx)
	return err
}

func (r *repositoryImpl[T]) keyPojo(ids []any) (*model.Pojo, error) {
	if len(ids) != len(r.pks) {
		return nil, errors.Errorf("table %s expects %d primary key values, got %d", r.table.Name, len(r.pks), len(ids))
	}
	p := model.NewPojo(r.table, nil)
	for i, f := range r.pks {
		p.Set(f.Name, ids[i])
	}
	return p, nil
}

func (r *repositoryImpl[T]) byKeys() []any {
	by := make([]any, 0, len(r.pks))
	for _, f := range r.pks {
		by = append(by, f)
	}
	return by
}

func (r *repositoryImpl[T]) Create(ctx context.Context, record *T, opts ...CreateOption) error {
	options := &CreateOptions{}
	for _, opt := range opts {
		opt(options)
	}
	p, err := r.k.Pojo(record)
	if err != nil {
		return err
	}
	if options.UpdateOnConflict {
		_, err = r.k.Upsert(p).OnConflict().Execute(ctx)
	} else {
		_, err = r.k.Insert(p).Cascade(options.Cascade).Execute(ctx)
	}
	if err != nil {
		return err
	}
	return r.k.mapper.FromMap(p.Values, record)
}

func (r *repositoryImpl[T]) Get(ctx context.Context, ids ...any) (*T, error) {
	p, err := r.keyPojo(ids)
	if err != nil {
		return nil, err
	}
	record, err := r.k.Select(p).QueryOne(ctx)
	if err != nil {
		return nil, err
	}
	var v T
	if err := r.k.mapper.FromMap(record.Values, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repositoryImpl[T]) updateTask(record *T) (*task.ActionTask, error) {
	p, err := r.k.Pojo(record)
	if err != nil {
		return nil, err
	}
	return r.k.Update(p).By(r.byKeys()...).Build()
}

func (r *repositoryImpl[T]) Update(ctx context.Context, record *T) error {
	return r.k.run(ctx, func() (*task.ActionTask, error) { return r.updateTask(record) })
}

func (r *repositoryImpl[T]) Delete(ctx context.Context, ids ...any) error {
	p, err := r.keyPojo(ids)
	if err != nil {
		return err
	}
	_, err = r.k.Delete(p).By(r.byKeys()...).Execute(ctx)
	return err
}

func (r *repositoryImpl[T]) query(where *criteria.Criteria) *SelectClause {
	s := r.k.Select(model.NewPojo(r.table, nil))
	if where != nil {
		s.Where(where)
	}
	return s
}

func (r *repositoryImpl[T]) Find(ctx context.Context, where *criteria.Criteria, opts ...QueryOption) ([]*T, error) {
	options := &QueryOptions{}
	for _, opt := range opts {
		opt(options)
	}
	s := r.query(where).Cascade(options.Cascade)
	if options.PageSize > 0 {
		s.Page(options.PageIndex, options.PageSize)
	}
	if options.OrderBy != "" {
		s.OrderBy(Order{Item: options.OrderBy, Desc: options.OrderDesc})
	}
	var result []*T
	if err := s.Into(ctx, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *repositoryImpl[T]) FindOne(ctx context.Context, where *criteria.Criteria) (*T, error) {
	record, err := r.query(where).QueryOne(ctx)
	if err != nil {
		return nil, err
	}
	var v T
	if err := r.k.mapper.FromMap(record.Values, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repositoryImpl[T]) Count(ctx context.Context, where *criteria.Criteria) (int64, error) {
	rows, err := r.query(where).Fields("COUNT(1)").QueryMaps(ctx)
	if err != nil {
		return 0, err
	}
	return countOf(rows), nil
}

func (r *repositoryImpl[T]) Exists(ctx context.Context, where *criteria.Criteria) (bool, error) {
	n, err := r.Count(ctx, where)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *repositoryImpl[T]) BatchCreate(ctx context.Context, records []*T, opts ...CreateOption) error {
	if len(records) == 0 {
		return nil
	}
	options := &CreateOptions{}
	for _, opt := range opts {
		opt(options)
	}
	entities := make([]any, 0, len(records))
	pojos := make([]*model.Pojo, 0, len(records))
	for _, record := range records {
		p, err := r.k.Pojo(record)
		if err != nil {
			return err
		}
		entities = append(entities, p)
		pojos = append(pojos, p)
	}
	if options.UpdateOnConflict {
		for _, p := range pojos {
			if _, err := r.k.Upsert(p).OnConflict().Execute(ctx); err != nil {
				return err
			}
		}
	} else if _, err := r.k.Insert(entities...).Execute(ctx); err != nil {
		return err
	}
	for i, p := range pojos {
		if err := r.k.mapper.FromMap(p.Values, records[i]); err != nil {
			return err
		}
	}
	return nil
}

// BatchUpdate 逐条生成更新语句，合并为一个任务顺序执行
func (r *repositoryImpl[T]) BatchUpdate(ctx context.Context, records []*T) error {
	return r.k.run(ctx, func() (*task.ActionTask, error) {
		a := task.NewActionTask()
		for _, record := range records {
			t, err := r.updateTask(record)
			if err != nil {
				return nil, err
			}
			a.Merge(t)
		}
		return a, nil
	})
}

// BatchDelete 只支持单列主键
func (r *repositoryImpl[T]) BatchDelete(ctx context.Context, ids []any) error {
	if len(ids) == 0 {
		return nil
	}
	if len(r.pks) != 1 {
		return errors.Wrapf(ErrUnsupportedOperation, "batch delete table %s with composite primary key", r.table.Name)
	}
	_, err := r.k.Delete(model.NewPojo(r.table, nil)).Where(criteria.InOf(r.pks[0], ids)).Execute(ctx)
	return err
}
