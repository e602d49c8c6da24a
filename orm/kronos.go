package orm

import (
	"context"
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/hatlonely/korm/cascade"
	"github.com/hatlonely/korm/cfg"
	"github.com/hatlonely/korm/criteria"
	"github.com/hatlonely/korm/datasource"
	"github.com/hatlonely/korm/dialect"
	"github.com/hatlonely/korm/log"
	"github.com/hatlonely/korm/log/logger"
	"github.com/hatlonely/korm/model"
	"github.com/hatlonely/korm/ref"
	"github.com/hatlonely/korm/serializer"
	"github.com/hatlonely/korm/task"
	"github.com/hatlonely/korm/uid"
	"github.com/pkg/errors"
)

var (
	ErrNeedUpdateCondition  = errors.New("need update condition")
	ErrNoUpdateField        = errors.New("no update field")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrRecordNotFound       = errors.New("record not found")
	ErrWrapperNotSet        = errors.New("wrapper not set")
)

// Options 全局配置，策略字段名设置为 - 时关闭对应策略
type Options struct {
	DBType              string `cfg:"dbType" def:"Mysql"`
	DatabaseName        string `cfg:"databaseName"`
	TableNamingStrategy string `cfg:"tableNamingStrategy" def:"lineHump" validate:"oneof=lineHump none"`
	FieldNamingStrategy string `cfg:"fieldNamingStrategy" def:"lineHump" validate:"oneof=lineHump none"`
	DefaultDateFormat   string `cfg:"defaultDateFormat" def:"yyyy-MM-dd HH:mm:ss"`
	TimeZone            string `cfg:"timeZone" def:"Local"`

	LogicDeleteField string `cfg:"logicDeleteField" def:"deleted"`
	CreateTimeField  string `cfg:"createTimeField" def:"createTime"`
	UpdateTimeField  string `cfg:"updateTimeField" def:"updateTime"`

	// CascadeDepth 级联的最大深度，-1 表示不限制
	CascadeDepth int `cfg:"cascadeDepth" def:"-1" validate:"gte=-1"`

	Wrapper    *ref.TypeOptions      `cfg:"wrapper"`
	Logger     *ref.TypeOptions      `cfg:"logger"`
	Serializer *ref.TypeOptions      `cfg:"serializer"`
	Snowflake  *uid.SnowflakeOptions `cfg:"snowflake"`
	UUID       *uid.UUIDOptions      `cfg:"uuid"`
}

// Kronos 持有方言、数据源和元数据，是所有语句构造器的入口
//
// Kronos 可以被多个 goroutine 共享，构造器只能使用一次，不能共享。
type Kronos struct {
	options    *Options
	dialect    dialect.Support
	wrapper    task.Wrapper
	registry   *model.Registry
	mapper     *model.Mapper
	logger     logger.Logger
	serializer serializer.Serializer
	intGen     uid.IntGenerator
	strGen     uid.StrGenerator
	location   *time.Location
}

func NewKronosWithOptions(options *Options) (*Kronos, error) {
	if options == nil {
		options = &Options{}
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.SetDefaults failed")
	}
	if err := cfg.ValidateStruct(options); err != nil {
		return nil, errors.Wrap(err, "cfg.ValidateStruct failed")
	}

	k := &Kronos{options: options, registry: model.NewRegistry(), location: time.Local}

	var err error
	if options.Wrapper != nil {
		if k.wrapper, err = datasource.NewWrapperWithOptions(options.Wrapper); err != nil {
			return nil, errors.WithMessage(err, "datasource.NewWrapperWithOptions failed")
		}
		if k.dialect, err = dialect.Of(k.wrapper.DBType()); err != nil {
			return nil, err
		}
	} else {
		dbType := model.Mysql
		if options.DBType != "" {
			if dbType, err = model.ParseDBType(options.DBType); err != nil {
				return nil, err
			}
		}
		if k.dialect, err = dialect.Of(dbType); err != nil {
			return nil, err
		}
	}

	if options.Logger != nil {
		if k.logger, err = log.NewLoggerWithOptions(options.Logger); err != nil {
			return nil, errors.WithMessage(err, "log.NewLoggerWithOptions failed")
		}
	} else {
		k.logger = log.Default()
	}
	if k.serializer, err = serializer.NewSerializerWithOptions(options.Serializer); err != nil {
		return nil, errors.WithMessage(err, "serializer.NewSerializerWithOptions failed")
	}
	if k.intGen, err = uid.NewSnowflakeGeneratorWithOptions(options.Snowflake); err != nil {
		return nil, errors.WithMessage(err, "uid.NewSnowflakeGeneratorWithOptions failed")
	}
	if k.strGen, err = uid.NewUUIDGeneratorWithOptions(options.UUID); err != nil {
		return nil, errors.WithMessage(err, "uid.NewUUIDGeneratorWithOptions failed")
	}
	if options.TimeZone != "" {
		if k.location, err = time.LoadLocation(options.TimeZone); err != nil {
			return nil, errors.Wrapf(err, "load time zone %q failed", options.TimeZone)
		}
	}

	tableNaming, err := model.ParseNamingStrategy(options.TableNamingStrategy)
	if err != nil {
		return nil, err
	}
	fieldNaming, err := model.ParseNamingStrategy(options.FieldNamingStrategy)
	if err != nil {
		return nil, err
	}
	k.mapper = model.NewMapper(k.registry, model.MapperOptions{
		TableNaming:      tableNaming,
		FieldNaming:      fieldNaming,
		LogicDeleteField: strategyField(options.LogicDeleteField),
		CreateTimeField:  strategyField(options.CreateTimeField),
		UpdateTimeField:  strategyField(options.UpdateTimeField),
		DateFormat:       options.DefaultDateFormat,
		Codec:            k.serializer,
	})
	return k, nil
}

func strategyField(name string) string {
	if name == "-" {
		return ""
	}
	return name
}

// WithWrapper 设置数据源，方言随数据源的数据库类型切换
func (k *Kronos) WithWrapper(w task.Wrapper) *Kronos {
	k.wrapper = w
	s, err := dialect.Of(w.DBType())
	if err != nil {
		k.logger.Warn("keep previous dialect", "dbType", w.DBType(), "error", err)
		return k
	}
	k.dialect = s
	return k
}

func (k *Kronos) WithLogger(l logger.Logger) *Kronos {
	k.logger = l
	return k
}

// WithIntGenerator 替换 snowflake 主键生成器
func (k *Kronos) WithIntGenerator(g uid.IntGenerator) *Kronos {
	k.intGen = g
	return k
}

func (k *Kronos) WithStrGenerator(g uid.StrGenerator) *Kronos {
	k.strGen = g
	return k
}

func (k *Kronos) Dialect() dialect.Support {
	return k.dialect
}

func (k *Kronos) Wrapper() task.Wrapper {
	return k.wrapper
}

func (k *Kronos) Registry() *model.Registry {
	return k.registry
}

func (k *Kronos) Mapper() *model.Mapper {
	return k.mapper
}

// Register 注册手工构造的表描述，未设置策略时按配置的默认字段名启用
func (k *Kronos) Register(t *model.Table) (*model.Table, error) {
	apply := func(s **model.Strategy, name string) {
		if *s != nil || name == "" {
			return
		}
		if f := t.Field(name); f != nil && f.IsColumn() {
			*s = &model.Strategy{Enabled: true, Field: f}
		}
	}
	apply(&t.LogicDelete, strategyField(k.options.LogicDeleteField))
	apply(&t.CreateTime, strategyField(k.options.CreateTimeField))
	apply(&t.UpdateTime, strategyField(k.options.UpdateTimeField))
	return k.registry.Register(t)
}

// Pojo 把实体转换为 Pojo，entity 可以是 *model.Pojo 或带 korm 标签的结构体指针
func (k *Kronos) Pojo(entity any) (*model.Pojo, error) {
	switch v := entity.(type) {
	case *model.Pojo:
		if v == nil || v.Table == nil {
			return nil, errors.Wrap(model.ErrInvalidTable, "nil pojo")
		}
		return v, nil
	case nil:
		return nil, errors.Wrap(model.ErrInvalidTable, "nil entity")
	}
	p, err := k.mapper.ToPojo(entity)
	if err != nil {
		return nil, errors.WithMessage(err, "mapper.ToPojo failed")
	}
	if p == nil {
		return nil, errors.Wrap(model.ErrInvalidTable, "nil entity")
	}
	return p, nil
}

// ToPojo 把查询结果转换为 Pojo，key 可以是属性名或列名，值按列类型转换
func (k *Kronos) ToPojo(table *model.Table, row map[string]any) (*model.Pojo, error) {
	p := model.NewPojo(table, nil)
	for _, f := range table.Columns() {
		v, ok := row[f.Name]
		if !ok {
			if v, ok = row[f.ColumnName]; !ok {
				continue
			}
		}
		if f.Serializable {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			p.Values[f.Name] = v
			continue
		}
		sv, err := model.SafeValue(f, v)
		if err != nil {
			return nil, errors.WithMessagef(err, "field %s.%s", table.Name, f.Name)
		}
		p.Values[f.Name] = sv
	}
	return p, nil
}

func (k *Kronos) now() time.Time {
	return time.Now().In(k.location)
}

// timeValue 时间策略字段的值，按策略的日期格式输出
func (k *Kronos) timeValue(s *model.Strategy) string {
	return model.FormatTime(k.now(), s.DateFormat(k.options.DefaultDateFormat))
}

// columnValue 写入数据库前的值，可序列化字段序列化为文本
func (k *Kronos) columnValue(f *model.Field, v any) (any, error) {
	if model.IsNil(v) {
		return nil, nil
	}
	if !f.Serializable {
		return v, nil
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	data, err := k.serializer.Marshal(v)
	if err != nil {
		return nil, errors.WithMessagef(err, "serialize field %s.%s", f.TableName, f.Name)
	}
	return string(data), nil
}

func (k *Kronos) criteriaBuilder(op model.OperationType, values map[string]any) *criteria.Builder {
	b := criteria.NewBuilder(k.dialect, op)
	b.Values = values
	return b
}

func (k *Kronos) mustWrapper() (task.Wrapper, error) {
	if k.wrapper == nil {
		return nil, ErrWrapperNotSet
	}
	return k.wrapper, nil
}

func (k *Kronos) databaseName() string {
	if k.options.DatabaseName != "" {
		return k.options.DatabaseName
	}
	if k.wrapper != nil {
		return k.dialect.DBNameFromURL(k.wrapper.URL())
	}
	return ""
}

func (k *Kronos) debug(t *task.AtomicTask) {
	k.logger.Debug("build task", "operation", t.Operation.String(), "sql", t.SQL, "params", t.Params)
}

func (k *Kronos) execute(ctx context.Context, build func() (*task.ActionTask, error)) (*task.Result, error) {
	w, err := k.mustWrapper()
	if err != nil {
		return nil, err
	}
	a, err := build()
	if err != nil {
		return nil, err
	}
	return a.Execute(ctx, w)
}

// equalities 所有非空列的等值条件，用作默认的 WHERE
func equalities(p *model.Pojo) *criteria.Criteria {
	var children []*criteria.Criteria
	for _, f := range p.Table.Columns() {
		if p.Has(f.Name) {
			children = append(children, criteria.Eq(f, p.Get(f.Name)))
		}
	}
	if len(children) == 0 {
		return nil
	}
	return criteria.AndOf(children...)
}

// resolveFields 把属性名或 *model.Field 解析为字段
func resolveFields(table *model.Table, items []any) ([]*model.Field, error) {
	fields := make([]*model.Field, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			f := table.Field(v)
			if f == nil || !f.IsColumn() {
				return nil, errors.Wrapf(model.ErrUnknownField, "field %q of table %q", v, table.Name)
			}
			fields = append(fields, f)
		case *model.Field:
			fields = append(fields, v)
		default:
			return nil, errors.Errorf("unsupported field item %T", item)
		}
	}
	return fields, nil
}

func containsField(fields []*model.Field, f *model.Field) bool {
	for _, o := range fields {
		if o.Equal(f) && o.Name == f.Name {
			return true
		}
	}
	return false
}

func mergeParams(dst map[string]any, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// cascadeFactory 为级联节点生成语句，级联子记录不再继续级联
type cascadeFactory struct {
	k *Kronos
}

var _ cascade.Factory = cascadeFactory{}

func (f cascadeFactory) SelectTask(table *model.Table, where *criteria.Criteria) (*task.AtomicTask, error) {
	return f.k.Select(model.NewPojo(table, nil)).Where(where).Build()
}

func (f cascadeFactory) UpdateTask(p *model.Pojo, values map[string]any) (*task.AtomicTask, error) {
	u := f.k.Update(p)
	for _, name := range slices.Sorted(maps.Keys(values)) {
		u.Set(name, values[name])
	}
	pks := p.Table.PrimaryKey()
	if len(pks) > 0 {
		var names []any
		for _, pk := range pks {
			names = append(names, pk.Name)
		}
		u.By(names...)
	}
	return u.buildAtomic()
}

func (f cascadeFactory) DeleteTask(p *model.Pojo) (*task.AtomicTask, error) {
	d := f.k.Delete(p)
	if pks := p.Table.PrimaryKey(); len(pks) > 0 {
		var names []any
		for _, pk := range pks {
			names = append(names, pk.Name)
		}
		d.By(names...)
	}
	return d.buildAtomic()
}

func (f cascadeFactory) ToPojo(table *model.Table, row map[string]any) (*model.Pojo, error) {
	return f.k.ToPojo(table, row)
}

func countOf(rows []map[string]any) int64 {
	if len(rows) == 0 {
		return 0
	}
	for _, v := range rows[0] {
		n, err := model.SafeValue(&model.Field{Type: model.Bigint}, v)
		if err != nil {
			continue
		}
		if i, ok := n.(int64); ok {
			return i
		}
	}
	return 0
}

func (k *Kronos) run(ctx context.Context, build func() (*task.ActionTask, error)) error {
	_, err := k.execute(ctx, build)
	return err
}

// scan 把 Pojo 写入结构体切片指针或结构体指针
func (k *Kronos) scan(records []*model.Pojo, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.Errorf("expected non-nil pointer, got %T", dst)
	}
	ev := rv.Elem()
	if ev.Kind() != reflect.Slice {
		if len(records) == 0 {
			return ErrRecordNotFound
		}
		return k.mapper.FromMap(records[0].Values, dst)
	}
	elem := ev.Type().Elem()
	isPtr := elem.Kind() == reflect.Ptr
	if isPtr {
		elem = elem.Elem()
	}
	slice := reflect.MakeSlice(ev.Type(), 0, len(records))
	for _, p := range records {
		item := reflect.New(elem)
		if err := k.mapper.FromMap(p.Values, item.Interface()); err != nil {
			return err
		}
		if isPtr {
			slice = reflect.Append(slice, item)
		} else {
			slice = reflect.Append(slice, item.Elem())
		}
	}
	ev.Set(slice)
	return nil
}
