package model

import "strings"

// ColumnType 与数据库无关的列类型
type ColumnType int

const (
	Undefined ColumnType = iota
	Bit
	Tinyint
	Smallint
	Int
	Mediumint
	Bigint
	Real
	Float
	Double
	Decimal
	Numeric
	Char
	Varchar
	Text
	Mediumtext
	Longtext
	Date
	Time
	Datetime
	Timestamp
	Binary
	Varbinary
	Longvarbinary
	Blob
	Mediumblob
	Longblob
	Clob
	JSON
	Enum
	Nvarchar
	Nchar
	Nclob
	UUID
	Serial
	Year
	Set
	Geometry
	Point
	Linestring
	XML
	// CustomCriteriaSQL 原样输出的查询项，ColumnName 保存 SQL 文本
	CustomCriteriaSQL
)

var columnTypeNames = map[ColumnType]string{
	Undefined:         "UNDEFINED",
	Bit:               "BIT",
	Tinyint:           "TINYINT",
	Smallint:          "SMALLINT",
	Int:               "INT",
	Mediumint:         "MEDIUMINT",
	Bigint:            "BIGINT",
	Real:              "REAL",
	Float:             "FLOAT",
	Double:            "DOUBLE",
	Decimal:           "DECIMAL",
	Numeric:           "NUMERIC",
	Char:              "CHAR",
	Varchar:           "VARCHAR",
	Text:              "TEXT",
	Mediumtext:        "MEDIUMTEXT",
	Longtext:          "LONGTEXT",
	Date:              "DATE",
	Time:              "TIME",
	Datetime:          "DATETIME",
	Timestamp:         "TIMESTAMP",
	Binary:            "BINARY",
	Varbinary:         "VARBINARY",
	Longvarbinary:     "LONGVARBINARY",
	Blob:              "BLOB",
	Mediumblob:        "MEDIUMBLOB",
	Longblob:          "LONGBLOB",
	Clob:              "CLOB",
	JSON:              "JSON",
	Enum:              "ENUM",
	Nvarchar:          "NVARCHAR",
	Nchar:             "NCHAR",
	Nclob:             "NCLOB",
	UUID:              "UUID",
	Serial:            "SERIAL",
	Year:              "YEAR",
	Set:               "SET",
	Geometry:          "GEOMETRY",
	Point:             "POINT",
	Linestring:        "LINESTRING",
	XML:               "XML",
	CustomCriteriaSQL: "CUSTOM_CRITERIA_SQL",
}

// 各数据库的类型别名
var columnTypeAliases = map[string]ColumnType{
	"BOOL":              Bit,
	"BOOLEAN":           Bit,
	"INTEGER":           Int,
	"INT2":              Smallint,
	"INT4":              Int,
	"INT8":              Bigint,
	"NUMBER":            Numeric,
	"MONEY":             Decimal,
	"SMALLMONEY":        Decimal,
	"DOUBLE PRECISION":  Double,
	"BINARY_FLOAT":      Float,
	"BINARY_DOUBLE":     Double,
	"VARCHAR2":          Varchar,
	"NVARCHAR2":         Nvarchar,
	"CHARACTER":         Char,
	"CHARACTER VARYING": Varchar,
	"STRING":            Varchar,
	"TINYTEXT":          Text,
	"NTEXT":             Nclob,
	"NTTEXT":            Nclob,
	"DATETIME2":         Datetime,
	"SMALLDATETIME":     Datetime,
	"DATETIMEOFFSET":    Timestamp,
	"IMAGE":             Longblob,
	"RAW":               Varbinary,
	"LONG RAW":          Longvarbinary,
	"TINYBLOB":          Blob,
	"UNIQUEIDENTIFIER":  UUID,
}

func (t ColumnType) String() string {
	if name, ok := columnTypeNames[t]; ok {
		return name
	}
	return "UNDEFINED"
}

// ParseColumnType 按名称解析列类型，忽略大小写和长度部分，未知类型返回 Undefined
func ParseColumnType(s string) ColumnType {
	name := strings.ToUpper(strings.TrimSpace(s))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	name = strings.TrimSuffix(name, " UNSIGNED")
	if strings.HasPrefix(name, "TIMESTAMP") {
		return Timestamp
	}
	for t, n := range columnTypeNames {
		if n == name {
			return t
		}
	}
	if t, ok := columnTypeAliases[name]; ok {
		return t
	}
	return Undefined
}

// IsNumeric 整数和浮点类型
func (t ColumnType) IsNumeric() bool {
	switch t {
	case Bit, Tinyint, Smallint, Int, Mediumint, Bigint, Serial, Year, Real, Float, Double, Decimal, Numeric:
		return true
	}
	return false
}

// IsInteger 整数类型，不包括 Bit
func (t ColumnType) IsInteger() bool {
	switch t {
	case Tinyint, Smallint, Int, Mediumint, Bigint, Serial, Year:
		return true
	}
	return false
}

// IsTemporal 日期时间类型
func (t ColumnType) IsTemporal() bool {
	switch t {
	case Date, Time, Datetime, Timestamp:
		return true
	}
	return false
}

// IsText 字符类型
func (t ColumnType) IsText() bool {
	switch t {
	case Char, Varchar, Text, Mediumtext, Longtext, Clob, Nvarchar, Nchar, Nclob, UUID, Enum, Set, XML, JSON:
		return true
	}
	return false
}

// IsBinary 二进制类型
func (t ColumnType) IsBinary() bool {
	switch t {
	case Binary, Varbinary, Longvarbinary, Blob, Mediumblob, Longblob:
		return true
	}
	return false
}
