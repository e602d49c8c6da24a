package datasource

import (
	"context"
	"database/sql"

	"github.com/hatlonely/korm/model"
	"github.com/hatlonely/korm/task"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type GormWrapperOptions struct {
	// Driver mysql、sqlite
	Driver string `cfg:"driver" def:"mysql" validate:"oneof=mysql sqlite"`
	DSN    string `cfg:"dsn" validate:"required"`
	// LogLevel gorm 日志级别 silent、error、warn、info
	LogLevel string `cfg:"logLevel" def:"silent" validate:"oneof=silent error warn info"`
}

// GormWrapper 复用 gorm 连接执行任务，语句经过 gorm 的日志和回调
type GormWrapper struct {
	db     *gorm.DB
	dbType model.DBType
	url    string
}

var _ task.Wrapper = (*GormWrapper)(nil)

func NewGormWrapperWithOptions(options *GormWrapperOptions) (*GormWrapper, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	var dialector gorm.Dialector
	switch options.Driver {
	case "mysql":
		dialector = mysql.Open(options.DSN)
	case "sqlite":
		dialector = sqlite.Open(options.DSN)
	default:
		return nil, errors.Errorf("unsupported driver: %s", options.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormLogLevel(options.LogLevel))})
	if err != nil {
		return nil, errors.Wrap(err, "gorm.Open failed")
	}
	return NewGormWrapper(db, options.DSN)
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "error":
		return gormlogger.Error
	case "warn":
		return gormlogger.Warn
	case "info":
		return gormlogger.Info
	}
	return gormlogger.Silent
}

// NewGormWrapper 数据库类型由 gorm 的 Dialector 名称决定
func NewGormWrapper(db *gorm.DB, url string) (*GormWrapper, error) {
	dbType, err := model.ParseDBType(db.Dialector.Name())
	if err != nil {
		return nil, err
	}
	return &GormWrapper{db: db, dbType: dbType, url: url}, nil
}

func (w *GormWrapper) DBType() model.DBType {
	return w.dbType
}

func (w *GormWrapper) URL() string {
	return w.url
}

func (w *GormWrapper) ForList(ctx context.Context, t *task.AtomicTask) ([]map[string]any, error) {
	query, args, err := Compile(w.dbType, t.SQL, t.Params)
	if err != nil {
		return nil, err
	}
	rows, err := w.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, errors.Wrap(err, "query failed")
	}
	defer rows.Close()
	var result []map[string]any
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, errors.Wrap(rows.Err(), "iterate rows failed")
}

func (w *GormWrapper) Update(ctx context.Context, t *task.AtomicTask) (int64, error) {
	query, args, err := Compile(w.dbType, t.SQL, t.Params)
	if err != nil {
		return 0, err
	}
	tx := w.db.WithContext(ctx).Exec(query, args...)
	if tx.Error != nil {
		return 0, errors.Wrap(tx.Error, "exec failed")
	}
	return tx.RowsAffected, nil
}

// Insert gorm 的 Exec 不返回自增主键，直接使用底层连接执行
func (w *GormWrapper) Insert(ctx context.Context, t *task.AtomicTask) (*task.Result, error) {
	query, args, err := Compile(w.dbType, t.SQL, t.Params)
	if err != nil {
		return nil, err
	}
	var res sql.Result
	err = w.db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		var err error
		res, err = tx.Statement.ConnPool.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "exec failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "rows affected")
	}
	id, _ := res.LastInsertId()
	return &task.Result{AffectedRows: n, LastInsertID: id}, nil
}

func (w *GormWrapper) BatchUpdate(ctx context.Context, t *task.BatchTask) (int64, error) {
	var total int64
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, params := range t.ParamsArr {
			query, args, err := Compile(w.dbType, t.SQL, params)
			if err != nil {
				return errors.WithMessagef(err, "params %d", i)
			}
			res := tx.Exec(query, args...)
			if res.Error != nil {
				return errors.Wrapf(res.Error, "exec params %d failed", i)
			}
			total += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
