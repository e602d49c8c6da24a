package model

import (
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/pkg/errors"
)

// Codec 可序列化字段的编解码器
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// MapperOptions 结构体映射配置
type MapperOptions struct {
	TableNaming NamingStrategy
	FieldNaming NamingStrategy
	// 以下属性名存在时自动启用对应策略，标签中的 logicDelete/createTime/updateTime 优先
	LogicDeleteField string
	CreateTimeField  string
	UpdateTimeField  string
	DateFormat       string
	Codec            Codec
}

// Mapper 从结构体标签构建表描述，并在结构体与 Pojo 之间转换
//
// 支持的标签格式：
//   - `korm:"column_name,type=varchar,length=36,scale=2,primary=identity,notnull,default=0"`
//   - `korm:",format=yyyy-MM-dd,comment=创建时间,createTime,updateTime,logicDelete,serialize"`
//   - `korm:",index=idx_name,unique=uk_name"` 同名索引合并为联合索引
//   - `korm:"ref=schoolId:id,onDelete=CASCADE,defaults=0,usage=update|delete"` 关联属性，多列用 | 分隔
//   - `korm:"-"` 忽略字段
//
// 结构体实现 TableName() string 时使用其返回值作为表名，否则由类型名转换得到。
// 解析结果按类型缓存，并注册到 Registry。
type Mapper struct {
	options  MapperOptions
	registry *Registry
	cache    sync.Map
}

type structInfo struct {
	table *Table
	index map[string][]int
}

func NewMapper(registry *Registry, options MapperOptions) *Mapper {
	if options.TableNaming == nil {
		options.TableNaming = LineHumpNamingStrategy{}
	}
	if options.FieldNaming == nil {
		options.FieldNaming = LineHumpNamingStrategy{}
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Mapper{options: options, registry: registry}
}

func (m *Mapper) Registry() *Registry {
	return m.registry
}

// TableOf 返回结构体类型的表描述，v 可以是结构体、结构体指针或 reflect.Type
func (m *Mapper) TableOf(v any) (*Table, error) {
	info, err := m.structInfoOf(structType(v), map[reflect.Type]bool{})
	if err != nil {
		return nil, err
	}
	return info.table, nil
}

func structType(v any) reflect.Type {
	rt, ok := v.(reflect.Type)
	if !ok {
		rt = reflect.TypeOf(v)
	}
	for rt != nil && (rt.Kind() == reflect.Ptr || rt.Kind() == reflect.Slice) {
		rt = rt.Elem()
	}
	return rt
}

type tableNamer interface {
	TableName() string
}

type tableCommenter interface {
	TableComment() string
}

func (m *Mapper) tableName(rt reflect.Type) string {
	if n, ok := reflect.New(rt).Interface().(tableNamer); ok {
		return n.TableName()
	}
	return m.options.TableNaming.K2DB(lowerFirst(rt.Name()))
}

func (m *Mapper) structInfoOf(rt reflect.Type, building map[reflect.Type]bool) (*structInfo, error) {
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil, errors.Errorf("expected struct, got %v", rt)
	}
	if v, ok := m.cache.Load(rt); ok {
		return v.(*structInfo), nil
	}
	building[rt] = true

	info, refTypes, err := m.parseStruct(rt)
	if err != nil {
		return nil, errors.WithMessagef(err, "parse struct %v", rt)
	}
	table, err := m.registry.Register(info.table)
	if err != nil {
		return nil, err
	}
	info.table = table
	actual, _ := m.cache.LoadOrStore(rt, info)

	for _, refType := range refTypes {
		if building[refType] {
			continue
		}
		if _, err := m.structInfoOf(refType, building); err != nil {
			return nil, err
		}
	}
	return actual.(*structInfo), nil
}

func (m *Mapper) parseStruct(rt reflect.Type) (*structInfo, []reflect.Type, error) {
	name := m.tableName(rt)
	table := &Table{Name: name}
	if c, ok := reflect.New(rt).Interface().(tableCommenter); ok {
		table.Comment = c.TableComment()
	}
	info := &structInfo{table: table, index: map[string][]int{}}
	indexes := map[string]*Index{}
	var indexOrder []string
	var refTypes []reflect.Type

	for _, sf := range reflect.VisibleFields(rt) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		tag := sf.Tag.Get("korm")
		if tag == "-" {
			continue
		}

		f := &Field{Name: lowerFirst(sf.Name), TableName: name, Nullable: true}
		parts := strings.Split(tag, ",")
		if len(parts) > 0 && !strings.Contains(parts[0], "=") && !isFlag(parts[0]) {
			f.ColumnName = strings.TrimSpace(parts[0])
			parts = parts[1:]
		}

		if elem, isArray, ok := referenceType(sf.Type); ok && !hasOption(parts, "serialize") {
			f.RefTable = m.tableName(elem)
			f.IsArray = isArray
			refTypes = append(refTypes, elem)
		} else {
			f.Type, f.Length = inferColumnType(sf.Type)
			if f.ColumnName == "" {
				f.ColumnName = m.options.FieldNaming.K2DB(f.Name)
			}
		}

		var ref *Reference
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			key, value, _ := strings.Cut(part, "=")
			switch key {
			case "type":
				f.Type = ParseColumnType(value)
			case "length", "size":
				n, err := strconv.Atoi(value)
				if err != nil {
					return nil, nil, errors.Wrapf(err, "field %s length", sf.Name)
				}
				f.Length = n
			case "scale":
				n, err := strconv.Atoi(value)
				if err != nil {
					return nil, nil, errors.Wrapf(err, "field %s scale", sf.Name)
				}
				f.Scale = n
			case "primary", "pk":
				f.PrimaryKey = parsePrimaryKeyType(value)
				f.Identity = f.PrimaryKey == PrimaryKeyIdentity
				f.Nullable = false
			case "identity":
				f.PrimaryKey = PrimaryKeyIdentity
				f.Identity = true
				f.Nullable = false
			case "notnull", "not_null", "required":
				f.Nullable = false
			case "default":
				f.DefaultValue = value
			case "format":
				f.DateFormat = value
			case "comment":
				f.Comment = value
			case "serialize":
				f.Serializable = true
				if f.Type == JSON || f.Type == Undefined {
					f.Type = Text
				}
			case "logicDelete":
				table.LogicDelete = &Strategy{Enabled: true, Field: f}
			case "createTime":
				table.CreateTime = &Strategy{Enabled: true, Field: f}
			case "updateTime":
				table.UpdateTime = &Strategy{Enabled: true, Field: f}
			case "index", "unique":
				idxName := value
				if idxName == "" {
					prefix := "idx_"
					if key == "unique" {
						prefix = "uk_"
					}
					idxName = prefix + f.ColumnName
				}
				idx, ok := indexes[idxName]
				if !ok {
					idx = &Index{Name: idxName}
					if key == "unique" {
						idx.Type = "UNIQUE"
					}
					indexes[idxName] = idx
					indexOrder = append(indexOrder, idxName)
				}
				idx.Columns = append(idx.Columns, f.ColumnName)
			case "ref":
				if ref == nil {
					ref = &Reference{OnDelete: NoAction}
				}
				src, dst, ok := strings.Cut(value, ":")
				if !ok {
					return nil, nil, errors.Errorf("field %s: ref should be like source:target, got %q", sf.Name, value)
				}
				ref.Fields = strings.Split(src, "|")
				ref.TargetFields = strings.Split(dst, "|")
			case "onDelete":
				if ref == nil {
					ref = &Reference{}
				}
				action, err := ParseCascadeAction(value)
				if err != nil {
					return nil, nil, errors.WithMessagef(err, "field %s", sf.Name)
				}
				ref.OnDelete = action
			case "defaults":
				if ref == nil {
					ref = &Reference{}
				}
				ref.DefaultValues = strings.Split(value, "|")
			case "usage":
				if ref == nil {
					ref = &Reference{}
				}
				for _, u := range strings.Split(value, "|") {
					op, err := parseUsage(u)
					if err != nil {
						return nil, nil, errors.WithMessagef(err, "field %s", sf.Name)
					}
					ref.Usage = append(ref.Usage, op)
				}
			default:
				return nil, nil, errors.Errorf("field %s: unknown tag option %q", sf.Name, key)
			}
		}
		if ref != nil {
			if !f.IsReference() {
				return nil, nil, errors.Errorf("field %s: ref declared on non struct field", sf.Name)
			}
			if ref.OnDelete == "" {
				ref.OnDelete = NoAction
			}
			f.Reference = ref
		}

		table.Fields = append(table.Fields, f)
		info.index[f.Name] = sf.Index
	}

	for _, name := range indexOrder {
		table.Indexes = append(table.Indexes, indexes[name])
	}
	m.applyDefaultStrategies(table)
	return info, refTypes, nil
}

func (m *Mapper) applyDefaultStrategies(table *Table) {
	apply := func(s **Strategy, name string) {
		if *s != nil || name == "" {
			return
		}
		if f := table.Field(name); f != nil && f.IsColumn() {
			*s = &Strategy{Enabled: true, Field: f}
		}
	}
	apply(&table.LogicDelete, m.options.LogicDeleteField)
	apply(&table.CreateTime, m.options.CreateTimeField)
	apply(&table.UpdateTime, m.options.UpdateTimeField)
	for _, s := range []*Strategy{table.CreateTime, table.UpdateTime} {
		if s != nil && s.Field.DateFormat == "" {
			s.Field.DateFormat = m.options.DateFormat
		}
	}
}

// ToPojo 把结构体实例转换为 Pojo，关联属性递归转换
func (m *Mapper) ToPojo(v any) (*Pojo, error) {
	return m.toPojo(reflect.ValueOf(v), map[uintptr]*Pojo{})
}

func (m *Mapper) toPojo(rv reflect.Value, visited map[uintptr]*Pojo) (*Pojo, error) {
	var addr uintptr
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, nil
		}
		addr = rv.Pointer()
		if p, ok := visited[addr]; ok {
			return p, nil
		}
		rv = rv.Elem()
	}
	info, err := m.structInfoOf(rv.Type(), map[reflect.Type]bool{})
	if err != nil {
		return nil, err
	}
	p := NewPojo(info.table, nil)
	if addr != 0 {
		visited[addr] = p
	}

	for _, f := range info.table.Fields {
		fv := rv.FieldByIndex(info.index[f.Name])
		if !f.IsReference() {
			if IsNil(fv.Interface()) {
				p.Values[f.Name] = nil
			} else {
				p.Values[f.Name] = reflect.Indirect(fv).Interface()
			}
			continue
		}
		if fv.Kind() == reflect.Slice {
			if fv.IsNil() {
				continue
			}
			children := make([]*Pojo, 0, fv.Len())
			for i := 0; i < fv.Len(); i++ {
				item := fv.Index(i)
				if item.Kind() != reflect.Ptr && item.CanAddr() {
					item = item.Addr()
				}
				child, err := m.toPojo(item, visited)
				if err != nil {
					return nil, err
				}
				if child != nil {
					children = append(children, child)
				}
			}
			p.Values[f.Name] = children
			continue
		}
		if fv.Kind() != reflect.Ptr && fv.CanAddr() {
			fv = fv.Addr()
		}
		child, err := m.toPojo(fv, visited)
		if err != nil {
			return nil, err
		}
		if child != nil {
			p.Values[f.Name] = child
		}
	}
	return p, nil
}

// FromMap 把查询结果写入结构体，dst 必须是结构体指针，key 可以是属性名或列名
func (m *Mapper) FromMap(values map[string]any, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return errors.Errorf("expected non-nil struct pointer, got %T", dst)
	}
	rv = rv.Elem()
	info, err := m.structInfoOf(rv.Type(), map[reflect.Type]bool{})
	if err != nil {
		return err
	}
	for _, f := range info.table.Fields {
		v, ok := values[f.Name]
		if !ok && f.IsColumn() {
			v, ok = values[f.ColumnName]
		}
		if !ok {
			continue
		}
		fv := rv.FieldByIndex(info.index[f.Name])
		if err := m.assignField(f, fv, v); err != nil {
			return errors.WithMessagef(err, "field %s", f.Name)
		}
	}
	return nil
}

func (m *Mapper) assignField(f *Field, fv reflect.Value, v any) error {
	if f.IsReference() {
		return m.assignReference(fv, v)
	}
	if f.Serializable && m.options.Codec != nil {
		var data []byte
		switch s := v.(type) {
		case string:
			data = []byte(s)
		case []byte:
			data = s
		}
		if data != nil && fv.Kind() != reflect.String {
			ptr := reflect.New(fv.Type())
			if err := m.options.Codec.Unmarshal(data, ptr.Interface()); err != nil {
				return errors.Wrap(err, "unmarshal serializable field")
			}
			fv.Set(ptr.Elem())
			return nil
		}
	}
	return Assign(fv, v, f.DateFormat)
}

func (m *Mapper) assignReference(fv reflect.Value, v any) error {
	var children []map[string]any
	switch c := v.(type) {
	case *Pojo:
		if c != nil {
			children = append(children, c.Values)
		}
	case []*Pojo:
		for _, p := range c {
			children = append(children, p.Values)
		}
	case map[string]any:
		children = append(children, c)
	case []map[string]any:
		children = c
	default:
		return nil
	}

	if fv.Kind() == reflect.Slice {
		slice := reflect.MakeSlice(fv.Type(), 0, len(children))
		for _, child := range children {
			item := reflect.New(structType(fv.Type()))
			if err := m.FromMap(child, item.Interface()); err != nil {
				return err
			}
			if fv.Type().Elem().Kind() == reflect.Ptr {
				slice = reflect.Append(slice, item)
			} else {
				slice = reflect.Append(slice, item.Elem())
			}
		}
		fv.Set(slice)
		return nil
	}
	if len(children) == 0 {
		return nil
	}
	item := reflect.New(structType(fv.Type()))
	if err := m.FromMap(children[0], item.Interface()); err != nil {
		return err
	}
	if fv.Kind() == reflect.Ptr {
		fv.Set(item)
	} else {
		fv.Set(item.Elem())
	}
	return nil
}

// referenceType 结构体、结构体指针及其切片视为关联属性，time.Time 除外
func referenceType(t reflect.Type) (reflect.Type, bool, bool) {
	isArray := false
	if t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8 {
		isArray = true
		t = t.Elem()
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || t == timeType {
		return nil, false, false
	}
	return t, isArray, true
}

// inferColumnType 从 Go 类型推断列类型
func inferColumnType(t reflect.Type) (ColumnType, int) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == timeType {
		return Datetime, 0
	}
	switch t.Kind() {
	case reflect.String:
		return Varchar, 255
	case reflect.Bool:
		return Bit, 0
	case reflect.Int8, reflect.Uint8:
		return Tinyint, 0
	case reflect.Int16, reflect.Uint16:
		return Smallint, 0
	case reflect.Int, reflect.Int32, reflect.Uint32:
		return Int, 0
	case reflect.Int64, reflect.Uint, reflect.Uint64:
		return Bigint, 0
	case reflect.Float32:
		return Float, 0
	case reflect.Float64:
		return Double, 0
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return Blob, 0
		}
	}
	return Text, 0
}

func parsePrimaryKeyType(s string) PrimaryKeyType {
	switch strings.ToLower(s) {
	case "identity", "auto", "auto_increment":
		return PrimaryKeyIdentity
	case "uuid":
		return PrimaryKeyUUID
	case "snowflake":
		return PrimaryKeySnowflake
	}
	return PrimaryKeyDefault
}

func parseUsage(s string) (OperationType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "select":
		return OperationSelect, nil
	case "insert":
		return OperationInsert, nil
	case "update":
		return OperationUpdate, nil
	case "delete":
		return OperationDelete, nil
	case "upsert":
		return OperationUpsert, nil
	}
	return 0, errors.Errorf("unknown usage %q", s)
}

var tagFlags = map[string]struct{}{
	"primary": {}, "pk": {}, "identity": {}, "notnull": {}, "not_null": {}, "required": {},
	"serialize": {}, "logicDelete": {}, "createTime": {}, "updateTime": {}, "index": {}, "unique": {},
}

func hasOption(parts []string, name string) bool {
	for _, part := range parts {
		if key, _, _ := strings.Cut(strings.TrimSpace(part), "="); key == name {
			return true
		}
	}
	return false
}

func isFlag(s string) bool {
	_, ok := tagFlags[strings.TrimSpace(s)]
	return ok
}

// lowerFirst ID -> id，UserID -> userID，HTTPServer -> httpServer
func lowerFirst(s string) string {
	runes := []rune(s)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	if n == 0 {
		return s
	}
	if n > 1 && n < len(runes) {
		n--
	}
	for i := 0; i < n; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}
