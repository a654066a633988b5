package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Basic wire scalar and string encodings. Payloads are always parsed from
// memory (a *bytes.Buffer over one packet payload), never straight off the
// socket, so a short buffer means a malformed packet rather than a pending
// read.

func ReadStringByNullEnd(r *bytes.Buffer) (string, error) {
	s, err := r.ReadString(0)
	if err != nil {
		return "", err
	}
	return s[:len(s)-1], nil
}

func ReadStringByLenenc(r *bytes.Buffer) (string, error) {
	length, err := ReadLenencNumber[uint64](r)
	if err != nil {
		return "", err
	}
	if uint64(r.Len()) < length {
		return "", io.ErrUnexpectedEOF
	}
	return string(r.Next(int(length))), nil
}

func ReadBytesByLenenc(r *bytes.Buffer) ([]byte, error) {
	length, err := ReadLenencNumber[uint64](r)
	if err != nil {
		return nil, err
	}
	if uint64(r.Len()) < length {
		return nil, io.ErrUnexpectedEOF
	}
	out := make([]byte, length)
	copy(out, r.Next(int(length)))
	return out, nil
}

func ReadNumber[T uint8 | uint16 | uint32 | uint64](r *bytes.Buffer, readLength int) (T, error) {
	if r.Len() < readLength {
		return 0, io.ErrUnexpectedEOF
	}
	buf := r.Next(readLength)

	var v uint64
	switch readLength {
	case 1:
		v = uint64(buf[0])
	case 2:
		v = uint64(binary.LittleEndian.Uint16(buf))
	case 3:
		v = uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16
	case 4:
		v = uint64(binary.LittleEndian.Uint32(buf))
	case 8:
		v = binary.LittleEndian.Uint64(buf)
	default:
		return 0, fmt.Errorf("unsupported read length: %d", readLength)
	}
	return T(v), nil
}

func ReadLenencNumber[T uint8 | uint16 | uint32 | uint64](r *bytes.Buffer) (T, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, err
	}

	switch {
	case first < 0xfb:
		return T(first), nil

	case first == 0xfc:
		v, err := ReadNumber[uint64](r, 2)
		return T(v), err

	case first == 0xfd:
		v, err := ReadNumber[uint64](r, 3)
		return T(v), err

	case first == 0xfe:
		v, err := ReadNumber[uint64](r, 8)
		return T(v), err

	case first == 0xfb:
		return 0, errors.New("invalid lenenc number: 0xfb is reserved for NULL")

	default:
		return 0, fmt.Errorf("invalid lenenc number prefix: 0x%x", first)
	}
}

func WriteStringByNullEnd(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}

func WriteStringByLenenc(buf *bytes.Buffer, s string) {
	WriteLenencNumber(buf, uint64(len(s)))
	buf.WriteString(s)
}

func WriteBytesByLenenc(buf *bytes.Buffer, b []byte) {
	WriteLenencNumber(buf, uint64(len(b)))
	buf.Write(b)
}

func WriteNumber[T uint8 | uint16 | uint32 | uint64 | int | int64](buf *bytes.Buffer, value T, writeLength int) {
	v := uint64(value)
	switch writeLength {
	case 1:
		buf.WriteByte(byte(v))
	case 2:
		binary.Write(buf, binary.LittleEndian, uint16(v))
	case 3:
		buf.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16)})
	case 4:
		binary.Write(buf, binary.LittleEndian, uint32(v))
	case 8:
		binary.Write(buf, binary.LittleEndian, v)
	default:
		panic(fmt.Sprintf("unsupported write length: %d", writeLength))
	}
}

func WriteLenencNumber[T uint8 | uint16 | uint32 | uint64 | int | int64](buf *bytes.Buffer, value T) {
	v := uint64(value)
	switch {
	case v < 0xfb:
		buf.WriteByte(byte(v))
	case v < 0x10000:
		buf.WriteByte(0xfc)
		WriteNumber(buf, v, 2)
	case v < 0x1000000:
		buf.WriteByte(0xfd)
		WriteNumber(buf, v, 3)
	default:
		buf.WriteByte(0xfe)
		WriteNumber(buf, v, 8)
	}
}
