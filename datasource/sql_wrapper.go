package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	"github.com/hatlonely/korm/log"
	"github.com/hatlonely/korm/log/logger"
	"github.com/hatlonely/korm/model"
	"github.com/hatlonely/korm/ref"
	"github.com/hatlonely/korm/task"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	go_ora "github.com/sijms/go-ora/v2"
	"go.opentelemetry.io/otel"
)

type SQLWrapperOptions struct {
	// Driver mysql、sqlite3、sqlserver、oracle
	Driver   string `cfg:"driver" def:"mysql" validate:"oneof=mysql sqlite3 sqlserver oracle"`
	DSN      string `cfg:"dsn"`
	Host     string `cfg:"host" def:"localhost"`
	Port     int    `cfg:"port"`
	Database string `cfg:"database"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	Charset  string `cfg:"charset" def:"utf8mb4"`
	MaxConns int    `cfg:"maxConns" def:"10"`
	MaxIdle  int    `cfg:"maxIdle" def:"5"`

	Logger        *ref.TypeOptions `cfg:"logger"`
	EnableLogging bool             `cfg:"enableLogging" def:"true"`
	EnableMetrics bool             `cfg:"enableMetrics" def:"false"`
	EnableTracing bool             `cfg:"enableTracing" def:"false"`
	// Name 指标名前缀和 span 名前缀
	Name string `cfg:"name" def:"korm"`
}

// SQLWrapper 基于 database/sql 的 task.Wrapper
type SQLWrapper struct {
	db     *sql.DB
	dbType model.DBType
	url    string
	obs    *observer
}

var _ task.Wrapper = (*SQLWrapper)(nil)

func NewSQLWrapperWithOptions(options *SQLWrapperOptions) (*SQLWrapper, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	dbType, err := model.ParseDBType(options.Driver)
	if err != nil {
		return nil, err
	}
	dsn := options.DSN
	if dsn == "" {
		if dsn, err = buildDSN(options); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(options.Driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "sql.Open %s failed", options.Driver)
	}
	db.SetMaxOpenConns(options.MaxConns)
	db.SetMaxIdleConns(options.MaxIdle)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping failed")
	}

	w := NewSQLWrapper(db, dbType, dsn)
	w.obs.name = options.Name
	if options.EnableLogging {
		l, err := log.NewLoggerWithOptions(options.Logger)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create logger")
		}
		w.obs.logger = l.WithGroup("sqlWrapper")
	}
	if options.EnableMetrics {
		if w.obs.metrics, err = NewMetrics(options.Name, nil); err != nil {
			return nil, err
		}
	}
	if options.EnableTracing {
		w.obs.tracer = otel.Tracer(fmt.Sprintf("datasource.%s", options.Name))
	}
	return w, nil
}

// NewSQLWrapper 包装已有连接，不输出日志和指标
func NewSQLWrapper(db *sql.DB, dbType model.DBType, url string) *SQLWrapper {
	return &SQLWrapper{
		db:     db,
		dbType: dbType,
		url:    url,
		obs:    &observer{name: "korm", db: string(dbType)},
	}
}

// WithLogger 以 debug 级别记录每条语句
func (w *SQLWrapper) WithLogger(l logger.Logger) *SQLWrapper {
	w.obs.logger = l
	return w
}

func (w *SQLWrapper) WithMetrics(m *Metrics) *SQLWrapper {
	w.obs.metrics = m
	return w
}

func buildDSN(options *SQLWrapperOptions) (string, error) {
	switch options.Driver {
	case "mysql":
		cfg := mysql.NewConfig()
		cfg.User = options.Username
		cfg.Passwd = options.Password
		cfg.Net = "tcp"
		cfg.Addr = fmt.Sprintf("%s:%d", options.Host, portOr(options.Port, 3306))
		cfg.DBName = options.Database
		cfg.ParseTime = true
		cfg.Params = map[string]string{"charset": options.Charset}
		return cfg.FormatDSN(), nil
	case "sqlite3":
		return options.Database, nil
	case "sqlserver":
		u := &url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(options.Username, options.Password),
			Host:     fmt.Sprintf("%s:%d", options.Host, portOr(options.Port, 1433)),
			RawQuery: url.Values{"database": []string{options.Database}}.Encode(),
		}
		return u.String(), nil
	case "oracle":
		return go_ora.BuildUrl(options.Host, portOr(options.Port, 1521), options.Database, options.Username, options.Password, nil), nil
	}
	return "", errors.Errorf("unsupported driver: %s", options.Driver)
}

func portOr(port int, def int) int {
	if port > 0 {
		return port
	}
	return def
}

func (w *SQLWrapper) DBType() model.DBType {
	return w.dbType
}

func (w *SQLWrapper) URL() string {
	return w.url
}

func (w *SQLWrapper) DB() *sql.DB {
	return w.db
}

func (w *SQLWrapper) Close() error {
	return w.db.Close()
}

func (w *SQLWrapper) ForList(ctx context.Context, t *task.AtomicTask) ([]map[string]any, error) {
	query, args, err := Compile(w.dbType, t.SQL, t.Params)
	if err != nil {
		return nil, err
	}
	var result []map[string]any
	err = w.obs.observe(ctx, t.Operation.String(), query, 0, func(ctx context.Context) error {
		rows, err := w.db.QueryContext(ctx, query, args...)
		if err != nil {
			return errors.Wrap(err, "query failed")
		}
		defer rows.Close()
		for rows.Next() {
			row, err := scanRow(rows)
			if err != nil {
				return err
			}
			result = append(result, row)
		}
		return errors.Wrap(rows.Err(), "iterate rows failed")
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (w *SQLWrapper) Update(ctx context.Context, t *task.AtomicTask) (int64, error) {
	res, err := w.exec(ctx, t)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return n, nil
}

// Insert 驱动不支持 LastInsertId 时返回 0
func (w *SQLWrapper) Insert(ctx context.Context, t *task.AtomicTask) (*task.Result, error) {
	res, err := w.exec(ctx, t)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "rows affected")
	}
	id, err := res.LastInsertId()
	if err != nil {
		id = 0
	}
	return &task.Result{AffectedRows: n, LastInsertID: id}, nil
}

func (w *SQLWrapper) exec(ctx context.Context, t *task.AtomicTask) (sql.Result, error) {
	query, args, err := Compile(w.dbType, t.SQL, t.Params)
	if err != nil {
		return nil, err
	}
	var res sql.Result
	err = w.obs.observe(ctx, t.Operation.String(), query, 0, func(ctx context.Context) error {
		var err error
		res, err = w.db.ExecContext(ctx, query, args...)
		return errors.Wrap(err, "exec failed")
	})
	return res, err
}

// BatchUpdate 在同一个事务中依次执行每组参数，任一失败时回滚
func (w *SQLWrapper) BatchUpdate(ctx context.Context, t *task.BatchTask) (int64, error) {
	var total int64
	err := w.obs.observe(ctx, t.Operation.String(), t.SQL, len(t.ParamsArr), func(ctx context.Context) error {
		tx, err := w.db.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrap(err, "begin failed")
		}
		for i, params := range t.ParamsArr {
			query, args, err := Compile(w.dbType, t.SQL, params)
			if err != nil {
				_ = tx.Rollback()
				return errors.WithMessagef(err, "params %d", i)
			}
			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				_ = tx.Rollback()
				return errors.Wrapf(err, "exec params %d failed", i)
			}
			n, err := res.RowsAffected()
			if err != nil {
				_ = tx.Rollback()
				return errors.Wrap(err, "rows affected")
			}
			total += n
		}
		return errors.Wrap(tx.Commit(), "commit failed")
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func scanRow(rows *sql.Rows) (map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "columns")
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, errors.Wrap(err, "scan failed")
	}

	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = values[i]
	}
	return row, nil
}
