package model

const (
	// LogicDeleted 逻辑删除后的标记值
	LogicDeleted = 1
	// LogicNotDeleted 未删除的标记值
	LogicNotDeleted = 0

	DefaultDateFormat = "yyyy-MM-dd HH:mm:ss"
)

// Strategy 逻辑删除、创建时间、更新时间策略
type Strategy struct {
	Enabled bool
	Field   *Field
	// Format 时间策略的日期格式，空串时使用 Field.DateFormat 或全局默认格式
	Format string
}

// Valid 策略启用且绑定了字段
func (s *Strategy) Valid() bool {
	return s != nil && s.Enabled && s.Field != nil
}

// DateFormat 返回生效的日期格式
func (s *Strategy) DateFormat(fallback string) string {
	if s.Format != "" {
		return s.Format
	}
	if s.Field != nil && s.Field.DateFormat != "" {
		return s.Field.DateFormat
	}
	if fallback != "" {
		return fallback
	}
	return DefaultDateFormat
}
