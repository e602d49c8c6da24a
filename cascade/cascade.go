package cascade

import (
	"fmt"
	"strings"

	"github.com/hatlonely/korm/criteria"
	"github.com/hatlonely/korm/model"
	"github.com/hatlonely/korm/task"
	"github.com/pkg/errors"
)

var (
	ErrReferenceNotFound = errors.New("reference not found")
	ErrRestrictViolation = errors.New("restrict violation")
)

// Resolver 按表名查找表描述，model.Registry 实现了该接口
type Resolver interface {
	Get(name string) (*model.Table, error)
}

// Factory 为级联节点生成语句，由 orm 实现
type Factory interface {
	SelectTask(table *model.Table, where *criteria.Criteria) (*task.AtomicTask, error)
	// UpdateTask values 以属性名为 key，按主键定位记录
	UpdateTask(p *model.Pojo, values map[string]any) (*task.AtomicTask, error)
	DeleteTask(p *model.Pojo) (*task.AtomicTask, error)
	ToPojo(table *model.Table, row map[string]any) (*model.Pojo, error)
}

// ValidRef 实体上可以级联的关联属性
type ValidRef struct {
	Field     *model.Field
	Reference *model.Reference
	Target    *model.Table
	// Mapped 外键由 Target 持有，本实体是被引用的一方
	Mapped bool
}

// LocalFields 本实体一侧参与关联的属性
func (r *ValidRef) LocalFields() []string {
	if r.Mapped {
		return r.Reference.TargetFields
	}
	return r.Reference.Fields
}

// RemoteFields Target 一侧参与关联的属性，与 LocalFields 一一对应
func (r *ValidRef) RemoteFields() []string {
	if r.Mapped {
		return r.Reference.Fields
	}
	return r.Reference.TargetFields
}

// FindValidRefs 查找 table 上允许 op 级联的关联
//
// 更新和删除只沿被引用的一方向下级联，查询两个方向都可以。
func FindValidRefs(r Resolver, table *model.Table, op model.OperationType) ([]*ValidRef, error) {
	var refs []*ValidRef
	for _, f := range table.References() {
		target, err := r.Get(f.RefTable)
		if err != nil {
			return nil, errors.Wrapf(ErrReferenceNotFound, "field %s.%s: %v", table.Name, f.Name, err)
		}
		if f.Reference != nil {
			if op == model.OperationSelect && f.Reference.Allows(op) {
				refs = append(refs, &ValidRef{Field: f, Reference: f.Reference, Target: target})
			}
			continue
		}
		ref := mappedReference(target, table.Name)
		if ref == nil {
			return nil, errors.Wrapf(ErrReferenceNotFound, "field %s.%s: no reference to %s declared in %s", table.Name, f.Name, table.Name, target.Name)
		}
		if ref.Allows(op) {
			refs = append(refs, &ValidRef{Field: f, Reference: ref, Target: target, Mapped: true})
		}
	}
	return refs, nil
}

func mappedReference(target *model.Table, name string) *model.Reference {
	for _, f := range target.Fields {
		if f.Reference != nil && f.RefTable == name {
			return f.Reference
		}
	}
	return nil
}

// Where 查询 Target 中与 p 关联的记录的条件，本侧任一关联值为空时返回 nil
func (r *ValidRef) Where(p *model.Pojo) (*criteria.Criteria, error) {
	local, remote := r.LocalFields(), r.RemoteFields()
	var children []*criteria.Criteria
	for i, name := range local {
		v := p.Get(name)
		if model.IsNil(v) {
			return nil, nil
		}
		f := r.Target.Field(remote[i])
		if f == nil {
			return nil, errors.Wrapf(ErrReferenceNotFound, "field %s.%s", r.Target.Name, remote[i])
		}
		children = append(children, criteria.Eq(f, v))
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return criteria.AndOf(children...), nil
}

// identity 以表名和主键值标识一条记录，主键缺失时返回空串
func identity(p *model.Pojo) string {
	values := p.PrimaryKeyValues()
	if len(values) == 0 {
		return ""
	}
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if model.IsNil(v) {
			return ""
		}
		parts = append(parts, fmt.Sprint(v))
	}
	return p.Table.Name + ":" + strings.Join(parts, ",")
}
