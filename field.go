package myclient

import (
	"github.com/sqlwire/myclient/protocol"
)

// FieldType classifies a result column for the caller. It deliberately
// collapses the wire-level zoo: every integer narrower than BIGINT is
// Int, both float widths are Float, and all four blob codes are Blob.
type FieldType int

const (
	TypeUnknown FieldType = iota
	TypeInt
	TypeInt64
	TypeFloat
	TypeString
	TypeDecimal
	TypeDate
	TypeTime
	TypeDatetime
	TypeTimestamp
	TypeYear
	TypeEnum
	TypeSet
	TypeBlob
)

var fieldTypeNames = map[FieldType]string{
	TypeUnknown:   "unknown",
	TypeInt:       "int",
	TypeInt64:     "int64",
	TypeFloat:     "float",
	TypeString:    "string",
	TypeDecimal:   "decimal",
	TypeDate:      "date",
	TypeTime:      "time",
	TypeDatetime:  "datetime",
	TypeTimestamp: "timestamp",
	TypeYear:      "year",
	TypeEnum:      "enum",
	TypeSet:       "set",
	TypeBlob:      "blob",
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MapType maps a wire column type byte to a FieldType. Total: unmapped
// codes come back as TypeUnknown, never an error.
func MapType(wire uint8) FieldType {
	switch wire {
	case protocol.MYSQL_TYPE_DECIMAL:
		return TypeDecimal
	case protocol.MYSQL_TYPE_TINY, protocol.MYSQL_TYPE_SHORT, protocol.MYSQL_TYPE_LONG, protocol.MYSQL_TYPE_INT24:
		return TypeInt
	case protocol.MYSQL_TYPE_FLOAT, protocol.MYSQL_TYPE_DOUBLE:
		return TypeFloat
	case protocol.MYSQL_TYPE_NULL:
		return TypeString
	case protocol.MYSQL_TYPE_TIMESTAMP:
		return TypeTimestamp
	case protocol.MYSQL_TYPE_LONGLONG:
		return TypeInt64
	case protocol.MYSQL_TYPE_DATE:
		return TypeDate
	case protocol.MYSQL_TYPE_TIME:
		return TypeTime
	case protocol.MYSQL_TYPE_DATETIME:
		return TypeDatetime
	case protocol.MYSQL_TYPE_YEAR:
		return TypeYear
	case protocol.MYSQL_TYPE_ENUM:
		return TypeEnum
	case protocol.MYSQL_TYPE_SET:
		return TypeSet
	case protocol.MYSQL_TYPE_TINY_BLOB, protocol.MYSQL_TYPE_MEDIUM_BLOB, protocol.MYSQL_TYPE_LONG_BLOB, protocol.MYSQL_TYPE_BLOB:
		return TypeBlob
	case protocol.MYSQL_TYPE_VAR_STRING, protocol.MYSQL_TYPE_STRING:
		return TypeString
	default:
		// MYSQL_TYPE_NEWDATE and anything not in the table
		return TypeUnknown
	}
}

// Field describes one column of a result set.
type Field struct {
	Name      string
	Table     string
	OrgName   string
	Default   *string
	Type      FieldType
	WireType  uint8
	MaxLength uint32
	Flags     uint16
	Decimals  uint8
	Charset   uint16
}

func fieldFromMeta(meta *protocol.FieldMeta) Field {
	return Field{
		Name:      meta.Name,
		Table:     meta.Table,
		OrgName:   meta.OrgName,
		Default:   meta.DefaultValue,
		Type:      MapType(meta.Type),
		WireType:  meta.Type,
		MaxLength: meta.ColumnLength,
		Flags:     meta.Flags,
		Decimals:  meta.Decimals,
		Charset:   meta.CharacterSet,
	}
}
