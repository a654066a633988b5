package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanAndRender(t *testing.T, types []uint8, flags []uint16, values [][]byte) [][]byte {
	t.Helper()
	payload, err := MarshalBinaryRow(types, flags, values)
	require.NoError(t, err)

	spans, err := ScanBinaryRow(payload, types)
	require.NoError(t, err)
	require.Len(t, spans, len(types))

	out := make([][]byte, len(types))
	for i, span := range spans {
		if span.Null {
			continue
		}
		text, err := RenderBinaryValue(types[i], flags[i], payload[span.Offset:span.Offset+span.Length])
		require.NoError(t, err)
		out[i] = text
	}
	return out
}

func TestBinaryRowIntegers(t *testing.T) {
	types := []uint8{MYSQL_TYPE_TINY, MYSQL_TYPE_SHORT, MYSQL_TYPE_LONG, MYSQL_TYPE_LONGLONG}
	flags := make([]uint16, 4)
	in := [][]byte{[]byte("-5"), []byte("-1000"), []byte("-70000"), []byte("-9000000000")}

	assert.Equal(t, in, scanAndRender(t, types, flags, in))
}

func TestBinaryRowUnsigned(t *testing.T) {
	types := []uint8{MYSQL_TYPE_TINY, MYSQL_TYPE_LONGLONG}
	flags := []uint16{UNSIGNED_FLAG, UNSIGNED_FLAG}
	in := [][]byte{[]byte("200"), []byte("18446744073709551615")}

	assert.Equal(t, in, scanAndRender(t, types, flags, in))
}

func TestBinaryRowFloats(t *testing.T) {
	types := []uint8{MYSQL_TYPE_FLOAT, MYSQL_TYPE_DOUBLE}
	flags := make([]uint16, 2)
	in := [][]byte{[]byte("1.5"), []byte("-2.25")}

	assert.Equal(t, in, scanAndRender(t, types, flags, in))
}

func TestBinaryRowStringsAndNull(t *testing.T) {
	types := []uint8{MYSQL_TYPE_VAR_STRING, MYSQL_TYPE_BLOB, MYSQL_TYPE_VAR_STRING}
	flags := make([]uint16, 3)
	in := [][]byte{[]byte("hello"), nil, {}}

	payload, err := MarshalBinaryRow(types, flags, in)
	require.NoError(t, err)

	spans, err := ScanBinaryRow(payload, types)
	require.NoError(t, err)

	assert.False(t, spans[0].Null)
	assert.True(t, spans[1].Null)

	// zero-length value is present, not NULL
	assert.False(t, spans[2].Null)
	assert.Equal(t, 0, spans[2].Length)
}

func TestBinaryRowTemporal(t *testing.T) {
	types := []uint8{MYSQL_TYPE_DATE, MYSQL_TYPE_DATETIME, MYSQL_TYPE_TIMESTAMP, MYSQL_TYPE_TIME}
	flags := make([]uint16, 4)
	in := [][]byte{
		[]byte("2024-02-29"),
		[]byte("2024-02-29 13:45:09"),
		[]byte("1999-12-31 23:59:59.500000"),
		[]byte("-34:05:06"),
	}

	assert.Equal(t, in, scanAndRender(t, types, flags, in))
}

func TestBinaryRowDecimalAsString(t *testing.T) {
	// DECIMAL travels as text in the binary protocol
	types := []uint8{MYSQL_TYPE_NEWDECIMAL}
	in := [][]byte{[]byte("123.45")}

	assert.Equal(t, in, scanAndRender(t, types, []uint16{0}, in))
}

func TestScanBinaryRowBadHeader(t *testing.T) {
	_, err := ScanBinaryRow([]byte{0x01, 0x00}, []uint8{MYSQL_TYPE_TINY})
	assert.Error(t, err)
}

func TestScanBinaryRowTruncated(t *testing.T) {
	// header + bitmap but only 2 of 4 value bytes
	_, err := ScanBinaryRow([]byte{0x00, 0x00, 0x01, 0x02}, []uint8{MYSQL_TYPE_LONG})
	assert.Error(t, err)
}

func TestScanBinaryRowOversizedLength(t *testing.T) {
	// a string value whose lenenc length claims far more than the packet
	// holds must be rejected at scan time, never turned into a span
	row := []byte{0x00, 0x00, 0xfe, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x80}
	_, err := ScanBinaryRow(row, []uint8{MYSQL_TYPE_VAR_STRING})
	assert.Error(t, err)

	// same for a merely-too-large claim that still fits in an int
	row = []byte{0x00, 0x00, 0x10, 0x61, 0x62}
	spans, err := ScanBinaryRow(row, []uint8{MYSQL_TYPE_VAR_STRING})
	assert.Error(t, err)
	assert.Nil(t, spans)
}
