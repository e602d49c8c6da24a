package model

import "github.com/pkg/errors"

var (
	ErrUnknownField         = errors.New("unknown field")
	ErrInvalidCascadeAction = errors.New("invalid cascade action")
	ErrInvalidTable         = errors.New("invalid table")
	ErrConvertValue         = errors.New("convert value failed")
)

// DBType 数据库类型
type DBType string

const (
	Mysql  DBType = "Mysql"
	Mssql  DBType = "Mssql"
	Sqlite DBType = "Sqlite"
	Oracle DBType = "Oracle"
)

// ParseDBType 解析数据库类型，兼容驱动名
func ParseDBType(s string) (DBType, error) {
	switch s {
	case "mysql", "Mysql", "MySQL", "MYSQL":
		return Mysql, nil
	case "mssql", "Mssql", "sqlserver", "SQLServer", "MSSQL":
		return Mssql, nil
	case "sqlite", "sqlite3", "Sqlite", "SQLite", "SQLITE":
		return Sqlite, nil
	case "oracle", "Oracle", "ORACLE":
		return Oracle, nil
	}
	return "", errors.Errorf("unsupported db type %q", s)
}

// OperationType 语句的操作类型
type OperationType int

const (
	OperationSelect OperationType = iota
	OperationInsert
	OperationUpdate
	OperationDelete
	OperationUpsert
	OperationTruncate
	OperationCreate
	OperationDrop
	OperationAlter
)

func (o OperationType) String() string {
	switch o {
	case OperationSelect:
		return "SELECT"
	case OperationInsert:
		return "INSERT"
	case OperationUpdate:
		return "UPDATE"
	case OperationDelete:
		return "DELETE"
	case OperationUpsert:
		return "UPSERT"
	case OperationTruncate:
		return "TRUNCATE"
	case OperationCreate:
		return "CREATE"
	case OperationDrop:
		return "DROP"
	case OperationAlter:
		return "ALTER"
	}
	return "UNKNOWN"
}
