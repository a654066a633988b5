package myclient

// Value is one cell of a result row or one statement parameter. SQL NULL
// is represented by the Null flag, not by an empty or nil Data slice: a
// zero-length non-NULL value stays distinct from NULL.
type Value struct {
	Null bool
	Data []byte
}

// NullValue returns the SQL NULL value.
func NullValue() Value {
	return Value{Null: true}
}

// StringValue wraps a string as a non-NULL value.
func StringValue(s string) Value {
	return Value{Data: []byte(s)}
}

// BytesValue wraps raw bytes as a non-NULL value.
func BytesValue(b []byte) Value {
	return Value{Data: b}
}

// String renders the value's bytes; NULL renders empty.
func (v Value) String() string {
	return string(v.Data)
}
