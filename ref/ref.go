package ref

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

// TypeOptions 描述一个可通过注册表构造的对象
type TypeOptions struct {
	Namespace string `cfg:"namespace"`
	Type      string `cfg:"type" validate:"required"`
	Options   any    `cfg:"options"`
}

// Convertable 可以把自身转换为构造函数所需参数类型的配置数据
type Convertable interface {
	ConvertTo(object any) error
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type constructor struct {
	fn         reflect.Value
	pointer    uintptr
	hasOptions bool
	hasError   bool
}

func newConstructor(fn any) (*constructor, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil, errors.Errorf("constructor must be a function, got %T", fn)
	}
	t := v.Type()
	if t.NumIn() > 1 {
		return nil, errors.Errorf("constructor accepts at most one options parameter, got %d", t.NumIn())
	}
	if t.NumOut() < 1 || t.NumOut() > 2 {
		return nil, errors.Errorf("constructor must return (T) or (T, error), got %d values", t.NumOut())
	}
	if t.NumOut() == 2 && !t.Out(1).Implements(errorType) {
		return nil, errors.New("second return value of constructor must be error")
	}
	return &constructor{
		fn:         v,
		pointer:    v.Pointer(),
		hasOptions: t.NumIn() == 1,
		hasError:   t.NumOut() == 2,
	}, nil
}

func (c *constructor) call(options any) (any, error) {
	var args []reflect.Value
	if c.hasOptions {
		arg, err := c.argument(options)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	out := c.fn.Call(args)
	if c.hasError && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	return out[0].Interface(), nil
}

// argument 把 options 调整为构造函数参数类型，支持 Convertable 和 nil
func (c *constructor) argument(options any) (reflect.Value, error) {
	paramType := c.fn.Type().In(0)

	if options == nil {
		return reflect.Zero(paramType), nil
	}

	if convertable, ok := options.(Convertable); ok {
		target := paramType
		if target.Kind() == reflect.Ptr {
			target = target.Elem()
		}
		ptr := reflect.New(target)
		if err := convertable.ConvertTo(ptr.Interface()); err != nil {
			return reflect.Value{}, errors.Wrapf(err, "convert options to %v failed", paramType)
		}
		if paramType.Kind() == reflect.Ptr {
			return ptr, nil
		}
		return ptr.Elem(), nil
	}

	v := reflect.ValueOf(options)
	if v.Type().AssignableTo(paramType) {
		return v, nil
	}
	// 允许传值给指针参数
	if paramType.Kind() == reflect.Ptr && v.Type().AssignableTo(paramType.Elem()) {
		ptr := reflect.New(paramType.Elem())
		ptr.Elem().Set(v)
		return ptr, nil
	}
	return reflect.Value{}, errors.Errorf("options type %T does not match constructor parameter %v", options, paramType)
}

var constructors sync.Map

func key(namespace, typ string) string {
	return namespace + ":" + typ
}

// Register 注册构造函数，同一个 key 重复注册相同函数是幂等的
func Register(namespace string, typ string, fn any) error {
	c, err := newConstructor(fn)
	if err != nil {
		return errors.WithMessagef(err, "register %s:%s failed", namespace, typ)
	}
	actual, loaded := constructors.LoadOrStore(key(namespace, typ), c)
	if loaded && actual.(*constructor).pointer != c.pointer {
		return errors.Errorf("constructor for %s:%s already registered with different function", namespace, typ)
	}
	return nil
}

func MustRegister(namespace string, typ string, fn any) {
	if err := Register(namespace, typ, fn); err != nil {
		panic(err)
	}
}

// RegisterT 以类型 T 的包路径和类型名作为 namespace 和 type 注册
func RegisterT[T any](fn any) error {
	namespace, typ, err := typeKey[T]()
	if err != nil {
		return err
	}
	return Register(namespace, typ, fn)
}

func MustRegisterT[T any](fn any) {
	if err := RegisterT[T](fn); err != nil {
		panic(err)
	}
}

// New 通过注册的构造函数创建对象
func New(namespace string, typ string, options any) (any, error) {
	v, ok := constructors.Load(key(namespace, typ))
	if !ok {
		return nil, errors.Errorf("constructor not found for %s:%s", namespace, typ)
	}
	return v.(*constructor).call(options)
}

// NewWithOptions 通过 TypeOptions 创建对象
func NewWithOptions(options *TypeOptions) (any, error) {
	if options == nil {
		return nil, errors.New("type options is nil")
	}
	return New(options.Namespace, options.Type, options.Options)
}

func NewT[T any](options any) (T, error) {
	var zero T
	namespace, typ, err := typeKey[T]()
	if err != nil {
		return zero, err
	}
	obj, err := New(namespace, typ, options)
	if err != nil {
		return zero, err
	}
	t, ok := obj.(T)
	if !ok {
		return zero, errors.Errorf("constructor for %s:%s returned %T", namespace, typ, obj)
	}
	return t, nil
}

func typeKey[T any]() (string, string, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return "", "", errors.Errorf("cannot determine package path or type name for %v", t)
	}
	return t.PkgPath(), t.Name(), nil
}
