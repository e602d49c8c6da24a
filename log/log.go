package log

import (
	"github.com/hatlonely/korm/log/logger"
	"github.com/hatlonely/korm/ref"
	"github.com/pkg/errors"
)

func init() {
	ref.MustRegisterT[logger.SLog](logger.NewSLogWithOptions)
	ref.MustRegisterT[logger.Nop](func() logger.Logger { return logger.Nop{} })
}

var defaultLogger logger.Logger

func init() {
	l, err := logger.NewSLogWithOptions(&logger.SLogOptions{Level: "info", Format: "text"})
	if err != nil {
		panic("init default logger failed: " + err.Error())
	}
	defaultLogger = l
}

// Default 返回输出到 stdout 的 info 级别日志器
func Default() logger.Logger {
	return defaultLogger
}

// NewLoggerWithOptions 通过注册表创建日志器，options 为 nil 时返回默认日志器
func NewLoggerWithOptions(options *ref.TypeOptions) (logger.Logger, error) {
	if options == nil {
		return Default(), nil
	}
	obj, err := ref.NewWithOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}
	l, ok := obj.(logger.Logger)
	if !ok {
		return nil, errors.Errorf("%s:%s is not a logger", options.Namespace, options.Type)
	}
	return l, nil
}
