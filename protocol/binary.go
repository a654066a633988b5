package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Binary resultset rows (COM_STMT_EXECUTE responses). A row packet starts
// with a 0x00 header, then a NULL bitmap with a 2-bit offset, then one
// encoded value per non-NULL column in definition order.
// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_binary_resultset.html

// ValueSpan locates one column's encoded bytes inside a retained row
// payload. Null values have no span; Length is the exact size a fetch
// buffer must have to hold the value.
type ValueSpan struct {
	Null   bool
	Offset int
	Length int
}

func binaryNullBit(bitmap []byte, column int) bool {
	pos := column + 2
	return bitmap[pos/8]&(1<<(uint(pos)%8)) != 0
}

func setBinaryNullBit(bitmap []byte, column int) {
	pos := column + 2
	bitmap[pos/8] |= 1 << (uint(pos) % 8)
}

// ScanBinaryRow walks a binary row payload and records where each column's
// value lives, without copying any value bytes.
func ScanBinaryRow(payload []byte, types []uint8) ([]ValueSpan, error) {
	if len(payload) < 1 || payload[0] != OK_MARKER {
		return nil, fmt.Errorf("malformed binary row header")
	}
	bitmapLen := (len(types) + 2 + 7) / 8
	if len(payload) < 1+bitmapLen {
		return nil, io.ErrUnexpectedEOF
	}
	bitmap := payload[1 : 1+bitmapLen]
	pos := 1 + bitmapLen

	spans := make([]ValueSpan, len(types))
	for i, typ := range types {
		if binaryNullBit(bitmap, i) {
			spans[i] = ValueSpan{Null: true}
			continue
		}
		size, prefix, err := binaryValueSize(payload[pos:], typ)
		if err != nil {
			return nil, fmt.Errorf("binary row column %d: %w", i, err)
		}
		if pos+prefix+size > len(payload) {
			return nil, fmt.Errorf("binary row column %d: %w", i, io.ErrUnexpectedEOF)
		}
		spans[i] = ValueSpan{Offset: pos + prefix, Length: size}
		pos += prefix + size
	}
	return spans, nil
}

// binaryValueSize returns the value's data size and the size of any length
// prefix preceding it.
func binaryValueSize(rest []byte, typ uint8) (size, prefix int, err error) {
	switch typ {
	case MYSQL_TYPE_NULL:
		return 0, 0, nil
	case MYSQL_TYPE_TINY:
		return 1, 0, nil
	case MYSQL_TYPE_SHORT, MYSQL_TYPE_YEAR:
		return 2, 0, nil
	case MYSQL_TYPE_LONG, MYSQL_TYPE_INT24, MYSQL_TYPE_FLOAT:
		return 4, 0, nil
	case MYSQL_TYPE_LONGLONG, MYSQL_TYPE_DOUBLE:
		return 8, 0, nil
	case MYSQL_TYPE_DATE, MYSQL_TYPE_DATETIME, MYSQL_TYPE_TIMESTAMP, MYSQL_TYPE_TIME, MYSQL_TYPE_NEWDATE:
		if len(rest) < 1 {
			return 0, 0, io.ErrUnexpectedEOF
		}
		return int(rest[0]), 1, nil
	default:
		// string-shaped: lenenc length prefix. The length is attacker
		// controlled; reject anything the payload cannot actually hold
		// before it becomes an int.
		nb := bytes.NewBuffer(rest)
		before := nb.Len()
		length, err := ReadLenencNumber[uint64](nb)
		if err != nil {
			return 0, 0, err
		}
		if length > uint64(nb.Len()) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		return int(length), before - nb.Len(), nil
	}
}

// RenderBinaryValue converts one encoded binary value into its text form,
// matching what the text protocol would have produced for the same cell.
func RenderBinaryValue(typ uint8, flags uint16, data []byte) ([]byte, error) {
	unsigned := flags&UNSIGNED_FLAG != 0

	switch typ {
	case MYSQL_TYPE_NULL:
		return nil, nil

	case MYSQL_TYPE_TINY:
		if len(data) < 1 {
			return nil, io.ErrUnexpectedEOF
		}
		if unsigned {
			return strconv.AppendUint(nil, uint64(data[0]), 10), nil
		}
		return strconv.AppendInt(nil, int64(int8(data[0])), 10), nil

	case MYSQL_TYPE_SHORT, MYSQL_TYPE_YEAR:
		if len(data) < 2 {
			return nil, io.ErrUnexpectedEOF
		}
		v := binary.LittleEndian.Uint16(data)
		if unsigned || typ == MYSQL_TYPE_YEAR {
			return strconv.AppendUint(nil, uint64(v), 10), nil
		}
		return strconv.AppendInt(nil, int64(int16(v)), 10), nil

	case MYSQL_TYPE_LONG, MYSQL_TYPE_INT24:
		if len(data) < 4 {
			return nil, io.ErrUnexpectedEOF
		}
		v := binary.LittleEndian.Uint32(data)
		if unsigned {
			return strconv.AppendUint(nil, uint64(v), 10), nil
		}
		return strconv.AppendInt(nil, int64(int32(v)), 10), nil

	case MYSQL_TYPE_LONGLONG:
		if len(data) < 8 {
			return nil, io.ErrUnexpectedEOF
		}
		v := binary.LittleEndian.Uint64(data)
		if unsigned {
			return strconv.AppendUint(nil, v, 10), nil
		}
		return strconv.AppendInt(nil, int64(v), 10), nil

	case MYSQL_TYPE_FLOAT:
		if len(data) < 4 {
			return nil, io.ErrUnexpectedEOF
		}
		f := math.Float32frombits(binary.LittleEndian.Uint32(data))
		return strconv.AppendFloat(nil, float64(f), 'g', -1, 32), nil

	case MYSQL_TYPE_DOUBLE:
		if len(data) < 8 {
			return nil, io.ErrUnexpectedEOF
		}
		f := math.Float64frombits(binary.LittleEndian.Uint64(data))
		return strconv.AppendFloat(nil, f, 'g', -1, 64), nil

	case MYSQL_TYPE_DATE, MYSQL_TYPE_NEWDATE:
		return renderBinaryDate(data, false)

	case MYSQL_TYPE_DATETIME, MYSQL_TYPE_TIMESTAMP:
		return renderBinaryDate(data, true)

	case MYSQL_TYPE_TIME:
		return renderBinaryTime(data)

	default:
		// string-shaped types carry their bytes verbatim
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
}

func renderBinaryDate(data []byte, withTime bool) ([]byte, error) {
	var year uint16
	var month, day, hour, min, sec uint8
	var micro uint32

	switch len(data) {
	case 0:
	case 4:
		year = binary.LittleEndian.Uint16(data)
		month, day = data[2], data[3]
	case 7:
		year = binary.LittleEndian.Uint16(data)
		month, day = data[2], data[3]
		hour, min, sec = data[4], data[5], data[6]
	case 11:
		year = binary.LittleEndian.Uint16(data)
		month, day = data[2], data[3]
		hour, min, sec = data[4], data[5], data[6]
		micro = binary.LittleEndian.Uint32(data[7:])
	default:
		return nil, fmt.Errorf("bad temporal value length %d", len(data))
	}

	if !withTime {
		return []byte(fmt.Sprintf("%04d-%02d-%02d", year, month, day)), nil
	}
	if micro > 0 {
		return []byte(fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d.%06d", year, month, day, hour, min, sec, micro)), nil
	}
	return []byte(fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", year, month, day, hour, min, sec)), nil
}

func renderBinaryTime(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte("00:00:00"), nil
	}
	if len(data) != 8 && len(data) != 12 {
		return nil, fmt.Errorf("bad time value length %d", len(data))
	}

	sign := ""
	if data[0] == 1 {
		sign = "-"
	}
	days := binary.LittleEndian.Uint32(data[1:])
	hour := uint64(days)*24 + uint64(data[5])
	min, sec := data[6], data[7]

	if len(data) == 12 {
		micro := binary.LittleEndian.Uint32(data[8:])
		return []byte(fmt.Sprintf("%s%02d:%02d:%02d.%06d", sign, hour, min, sec, micro)), nil
	}
	return []byte(fmt.Sprintf("%s%02d:%02d:%02d", sign, hour, min, sec)), nil
}

// MarshalBinaryRow builds a binary row payload from text-form values,
// encoding each per its declared column type. Used by the server side of
// the codec.
func MarshalBinaryRow(types []uint8, flags []uint16, values [][]byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.WriteByte(OK_MARKER)

	bitmap := make([]byte, (len(types)+2+7)/8)
	for i, v := range values {
		if v == nil {
			setBinaryNullBit(bitmap, i)
		}
	}
	buf.Write(bitmap)

	for i, v := range values {
		if v == nil {
			continue
		}
		if err := encodeBinaryValue(buf, types[i], flags[i], v); err != nil {
			return nil, fmt.Errorf("binary row column %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func encodeBinaryValue(buf *bytes.Buffer, typ uint8, flags uint16, text []byte) error {
	unsigned := flags&UNSIGNED_FLAG != 0

	parseInt := func(bits int) (uint64, error) {
		if unsigned {
			return strconv.ParseUint(string(text), 10, bits)
		}
		v, err := strconv.ParseInt(string(text), 10, bits)
		return uint64(v), err
	}

	switch typ {
	case MYSQL_TYPE_TINY:
		v, err := parseInt(8)
		if err != nil {
			return err
		}
		buf.WriteByte(byte(v))

	case MYSQL_TYPE_SHORT, MYSQL_TYPE_YEAR:
		v, err := parseInt(16)
		if err != nil {
			return err
		}
		WriteNumber(buf, uint16(v), 2)

	case MYSQL_TYPE_LONG, MYSQL_TYPE_INT24:
		v, err := parseInt(32)
		if err != nil {
			return err
		}
		WriteNumber(buf, uint32(v), 4)

	case MYSQL_TYPE_LONGLONG:
		v, err := parseInt(64)
		if err != nil {
			return err
		}
		WriteNumber(buf, v, 8)

	case MYSQL_TYPE_FLOAT:
		f, err := strconv.ParseFloat(string(text), 32)
		if err != nil {
			return err
		}
		WriteNumber(buf, uint64(math.Float32bits(float32(f))), 4)

	case MYSQL_TYPE_DOUBLE:
		f, err := strconv.ParseFloat(string(text), 64)
		if err != nil {
			return err
		}
		WriteNumber(buf, math.Float64bits(f), 8)

	case MYSQL_TYPE_DATE, MYSQL_TYPE_DATETIME, MYSQL_TYPE_TIMESTAMP:
		return encodeBinaryDate(buf, string(text))

	case MYSQL_TYPE_TIME:
		return encodeBinaryTime(buf, string(text))

	default:
		WriteBytesByLenenc(buf, text)
	}
	return nil
}

func encodeBinaryDate(buf *bytes.Buffer, s string) error {
	var year, month, day, hour, min, sec, micro int
	datePart, timePart, hasTime := strings.Cut(s, " ")

	if _, err := fmt.Sscanf(datePart, "%d-%d-%d", &year, &month, &day); err != nil {
		return fmt.Errorf("bad date %q", s)
	}
	if hasTime {
		clock, frac, hasFrac := strings.Cut(timePart, ".")
		if _, err := fmt.Sscanf(clock, "%d:%d:%d", &hour, &min, &sec); err != nil {
			return fmt.Errorf("bad datetime %q", s)
		}
		if hasFrac {
			for len(frac) < 6 {
				frac += "0"
			}
			micro, _ = strconv.Atoi(frac[:6])
		}
	}

	switch {
	case micro > 0:
		buf.WriteByte(11)
		WriteNumber(buf, uint16(year), 2)
		buf.WriteByte(byte(month))
		buf.WriteByte(byte(day))
		buf.WriteByte(byte(hour))
		buf.WriteByte(byte(min))
		buf.WriteByte(byte(sec))
		WriteNumber(buf, uint32(micro), 4)
	case hasTime:
		buf.WriteByte(7)
		WriteNumber(buf, uint16(year), 2)
		buf.WriteByte(byte(month))
		buf.WriteByte(byte(day))
		buf.WriteByte(byte(hour))
		buf.WriteByte(byte(min))
		buf.WriteByte(byte(sec))
	default:
		buf.WriteByte(4)
		WriteNumber(buf, uint16(year), 2)
		buf.WriteByte(byte(month))
		buf.WriteByte(byte(day))
	}
	return nil
}

func encodeBinaryTime(buf *bytes.Buffer, s string) error {
	neg := byte(0)
	if strings.HasPrefix(s, "-") {
		neg = 1
		s = s[1:]
	}
	clock, frac, hasFrac := strings.Cut(s, ".")

	var hour, min, sec int
	if _, err := fmt.Sscanf(clock, "%d:%d:%d", &hour, &min, &sec); err != nil {
		return fmt.Errorf("bad time %q", s)
	}
	days := hour / 24
	hour %= 24

	micro := 0
	if hasFrac {
		for len(frac) < 6 {
			frac += "0"
		}
		micro, _ = strconv.Atoi(frac[:6])
	}

	if micro > 0 {
		buf.WriteByte(12)
	} else {
		buf.WriteByte(8)
	}
	buf.WriteByte(neg)
	WriteNumber(buf, uint32(days), 4)
	buf.WriteByte(byte(hour))
	buf.WriteByte(byte(min))
	buf.WriteByte(byte(sec))
	if micro > 0 {
		WriteNumber(buf, uint32(micro), 4)
	}
	return nil
}
