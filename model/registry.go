package model

import (
	"sync"

	"github.com/pkg/errors"
)

// Registry 表描述注册表，以表名为 key
//
// 并发注册同名表时先写入者生效，后来者拿到已存在的描述，不返回错误。
type Registry struct {
	tables sync.Map
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register 校验并注册，返回实际生效的表描述
func (r *Registry) Register(t *Table) (*Table, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	actual, _ := r.tables.LoadOrStore(t.Name, t)
	return actual.(*Table), nil
}

func (r *Registry) MustRegister(t *Table) *Table {
	actual, err := r.Register(t)
	if err != nil {
		panic(err)
	}
	return actual
}

func (r *Registry) Lookup(name string) (*Table, bool) {
	v, ok := r.tables.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*Table), true
}

// Get 查找表描述，不存在时返回 ErrInvalidTable
func (r *Registry) Get(name string) (*Table, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidTable, "table %q not registered", name)
	}
	return t, nil
}
