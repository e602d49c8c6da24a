package model

import (
	"strings"

	"github.com/pkg/errors"
)

// CascadeAction 删除父记录时对子记录的处理方式
type CascadeAction string

const (
	Cascade    CascadeAction = "CASCADE"
	Restrict   CascadeAction = "RESTRICT"
	SetNull    CascadeAction = "SET NULL"
	NoAction   CascadeAction = "NO ACTION"
	SetDefault CascadeAction = "SET DEFAULT"
)

// ParseCascadeAction 解析级联动作，空串视为 NO ACTION
func ParseCascadeAction(s string) (CascadeAction, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "_", " ")
	switch CascadeAction(name) {
	case "":
		return NoAction, nil
	case Cascade, Restrict, SetNull, NoAction, SetDefault:
		return CascadeAction(name), nil
	}
	return "", errors.Wrapf(ErrInvalidCascadeAction, "action %q", s)
}

// Reference 关联声明，由持有外键的一方声明
//
// Fields 是本实体上的外键属性，TargetFields 是目标实体上被引用的属性，两者一一对应。
type Reference struct {
	Fields       []string
	TargetFields []string
	OnDelete     CascadeAction
	// DefaultValues SET DEFAULT 时写入外键的值，与 Fields 一一对应
	DefaultValues []string
	// Usage 允许级联的操作，为空表示全部允许
	Usage []OperationType
}

func (r *Reference) Allows(op OperationType) bool {
	if len(r.Usage) == 0 {
		return true
	}
	for _, u := range r.Usage {
		if u == op {
			return true
		}
	}
	return false
}

func (r *Reference) Validate() error {
	if len(r.Fields) == 0 || len(r.Fields) != len(r.TargetFields) {
		return errors.Errorf("reference fields %v and target fields %v mismatch", r.Fields, r.TargetFields)
	}
	if r.OnDelete == SetDefault && len(r.DefaultValues) != len(r.Fields) {
		return errors.Errorf("SET DEFAULT requires %d default values, got %d", len(r.Fields), len(r.DefaultValues))
	}
	if _, err := ParseCascadeAction(string(r.OnDelete)); err != nil {
		return err
	}
	return nil
}
