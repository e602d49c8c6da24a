package cascade

import (
	"github.com/hatlonely/korm/model"
	"github.com/pkg/errors"
)

// CascadeInfo 节点上一个需要更新的属性
type CascadeInfo struct {
	FieldName string
	// ParentFieldName 父节点上与之关联的属性
	ParentFieldName string
	// SourceFieldName 根节点上提供新值的属性，为空时取节点自身的值
	SourceFieldName string
}

// Info 节点在树中的位置
type Info struct {
	// UpdateReferenceValue 把父节点的关联值写入子节点的外键，并无条件展开子节点
	UpdateReferenceValue bool
	Parent               *Node
	FieldOfParent        *model.Field
	Depth                int
}

// Node 级联树的节点，Parent 只是回指，不持有父节点
type Node struct {
	Pojo       *model.Pojo
	Info       Info
	LimitDepth int
	Operation  model.OperationType
	// UpdateFields 本节点需要更新的属性
	UpdateFields []CascadeInfo
	// Ref 父节点指向本节点的关联，根节点为 nil
	Ref      *ValidRef
	Children []*Node
}

// Options 建树参数
type Options struct {
	Operation model.OperationType
	// LimitDepth 最大展开深度，-1 表示不限制
	LimitDepth           int
	UpdateReferenceValue bool
	// UpdateFields 根节点更新的属性
	UpdateFields []string
}

type treeBuilder struct {
	resolver Resolver
	options  *Options
	visited  map[string]struct{}
}

// BuildTree 从 p 开始展开级联树
//
// 达到深度限制或者遇到已经在树中的记录 (按表名和主键判断) 时停止展开。
func BuildTree(r Resolver, p *model.Pojo, options *Options) (*Node, error) {
	if options == nil {
		options = &Options{LimitDepth: -1}
	}
	b := &treeBuilder{resolver: r, options: options, visited: map[string]struct{}{}}

	var infos []CascadeInfo
	for _, name := range options.UpdateFields {
		infos = append(infos, CascadeInfo{FieldName: name, SourceFieldName: name})
	}
	return b.newNode(p, Info{UpdateReferenceValue: options.UpdateReferenceValue}, infos, nil)
}

func (b *treeBuilder) newNode(p *model.Pojo, info Info, incoming []CascadeInfo, ref *ValidRef) (*Node, error) {
	if key := identity(p); key != "" {
		if _, ok := b.visited[key]; ok {
			return nil, nil
		}
		b.visited[key] = struct{}{}
	}

	node := &Node{
		Pojo:       p,
		Info:       info,
		LimitDepth: b.options.LimitDepth,
		Operation:  b.options.Operation,
		Ref:        ref,
	}
	if err := node.patchFromParent(); err != nil {
		return nil, err
	}
	node.cascadeFromParent(incoming)

	if node.LimitDepth >= 0 && info.Depth >= node.LimitDepth {
		return node, nil
	}
	if node.Operation == model.OperationDelete && ref != nil && ref.Reference.OnDelete != model.Cascade {
		return node, nil
	}

	refs, err := FindValidRefs(b.resolver, p.Table, node.Operation)
	if err != nil {
		return nil, err
	}
	for _, r := range refs {
		if !node.expands(r) {
			continue
		}
		for _, c := range p.Children(r.Field.Name) {
			child, err := b.newNode(c, Info{
				UpdateReferenceValue: info.UpdateReferenceValue,
				Parent:               node,
				FieldOfParent:        r.Field,
				Depth:                info.Depth + 1,
			}, node.UpdateFields, r)
			if err != nil {
				return nil, err
			}
			if child != nil {
				node.Children = append(node.Children, child)
			}
		}
	}
	return node, nil
}

// patchFromParent 把父节点被引用的值写入本节点的外键
func (n *Node) patchFromParent() error {
	if !n.Info.UpdateReferenceValue || n.Info.Parent == nil || n.Ref == nil || !n.Ref.Mapped {
		return nil
	}
	parent := n.Info.Parent.Pojo
	for i, target := range n.Ref.Reference.TargetFields {
		v := parent.Get(target)
		if model.IsNil(v) {
			continue
		}
		fk := n.Ref.Reference.Fields[i]
		if n.Pojo.Table.Field(fk) == nil {
			return errors.Wrapf(ErrReferenceNotFound, "field %s.%s", n.Pojo.Table.Name, fk)
		}
		n.Pojo.Set(fk, v)
		n.UpdateFields = append(n.UpdateFields, CascadeInfo{FieldName: fk, ParentFieldName: target})
	}
	return nil
}

// cascadeFromParent 父节点更新的被引用属性映射为本节点的外键
func (n *Node) cascadeFromParent(incoming []CascadeInfo) {
	if n.Info.Parent == nil {
		n.UpdateFields = append(n.UpdateFields, incoming...)
		return
	}
	if n.Ref == nil || !n.Ref.Mapped {
		return
	}
	targets := n.Ref.Reference.TargetFields
	for _, in := range incoming {
		for i, target := range targets {
			if target == in.FieldName {
				n.UpdateFields = append(n.UpdateFields, CascadeInfo{
					FieldName:       n.Ref.Reference.Fields[i],
					ParentFieldName: in.FieldName,
					SourceFieldName: in.SourceFieldName,
				})
			}
		}
	}
}

func (n *Node) expands(r *ValidRef) bool {
	if n.Info.UpdateReferenceValue || n.Operation != model.OperationUpdate {
		return true
	}
	for _, target := range r.Reference.TargetFields {
		for _, info := range n.UpdateFields {
			if info.FieldName == target {
				return true
			}
		}
	}
	return false
}

// Values 本节点需要更新的属性及其新值，params 为根节点的更新参数 (属性名+New)
func (n *Node) Values(params map[string]any) map[string]any {
	values := make(map[string]any, len(n.UpdateFields))
	for _, info := range n.UpdateFields {
		if info.SourceFieldName == "" {
			values[info.FieldName] = n.Pojo.Get(info.FieldName)
			continue
		}
		values[info.FieldName] = params[info.SourceFieldName+"New"]
	}
	return values
}

// Flatten 用两个栈做深度优先遍历，每棵树内子节点先于父节点，树之间保持输入顺序
func Flatten(roots ...*Node) []*Node {
	var nodes []*Node
	for _, root := range roots {
		if root == nil {
			continue
		}
		stack := []*Node{root}
		var all []*Node
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			all = append(all, n)
			stack = append(stack, n.Children...)
		}
		for i := len(all) - 1; i >= 0; i-- {
			nodes = append(nodes, all[i])
		}
	}
	return nodes
}
