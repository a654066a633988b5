package protocol

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadNumberWidths(t *testing.T) {
	nb := bytes.NewBuffer([]byte{
		0x12,
		0x34, 0x12,
		0x56, 0x34, 0x12,
		0x78, 0x56, 0x34, 0x12,
		0xf0, 0xde, 0xbc, 0x9a, 0x78, 0x56, 0x34, 0x12,
	})

	v1, err := ReadNumber[uint8](nb, 1)
	assert.NoError(t, err)
	assert.Equal(t, uint8(0x12), v1)

	v2, err := ReadNumber[uint16](nb, 2)
	assert.NoError(t, err)
	assert.Equal(t, uint16(0x1234), v2)

	v3, err := ReadNumber[uint32](nb, 3)
	assert.NoError(t, err)
	assert.Equal(t, uint32(0x123456), v3)

	v4, err := ReadNumber[uint32](nb, 4)
	assert.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), v4)

	v8, err := ReadNumber[uint64](nb, 8)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0x123456789abcdef0), v8)
}

func TestReadNumberShortBuffer(t *testing.T) {
	nb := bytes.NewBuffer([]byte{0x01})
	_, err := ReadNumber[uint32](nb, 4)
	assert.Error(t, err)
}

func TestLenencNumberRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 250, 251, 0xffff, 0x10000, 0xffffff, 0x1000000, 1 << 40} {
		buf := new(bytes.Buffer)
		WriteLenencNumber(buf, v)

		got, err := ReadLenencNumber[uint64](buf)
		assert.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Zero(t, buf.Len())
	}
}

func TestLenencNumberEncoding(t *testing.T) {
	cases := []struct {
		value uint64
		hex   string
	}{
		{0xfa, "fa"},
		{0xfb, "fcfb00"},
		{0xffff, "fcffff"},
		{0x10000, "fd000001"},
		{0x1000000, "fe0000000100000000"},
	}
	for _, c := range cases {
		buf := new(bytes.Buffer)
		WriteLenencNumber(buf, c.value)
		assert.Equal(t, c.hex, hex.EncodeToString(buf.Bytes()))
	}
}

func TestLenencNumberNullMarker(t *testing.T) {
	nb := bytes.NewBuffer([]byte{0xfb})
	_, err := ReadLenencNumber[uint64](nb)
	assert.Error(t, err)
}

func TestLenencString(t *testing.T) {
	buf := new(bytes.Buffer)
	WriteStringByLenenc(buf, "hello")
	assert.Equal(t, "0568656c6c6f", hex.EncodeToString(buf.Bytes()))

	s, err := ReadStringByLenenc(buf)
	assert.NoError(t, err)
	assert.Equal(t, "hello", s)
}

func TestLenencStringTruncated(t *testing.T) {
	nb := bytes.NewBuffer([]byte{0x05, 'h', 'i'})
	_, err := ReadStringByLenenc(nb)
	assert.Error(t, err)
}

func TestNullTerminatedString(t *testing.T) {
	buf := new(bytes.Buffer)
	WriteStringByNullEnd(buf, "root")
	assert.Equal(t, []byte{'r', 'o', 'o', 't', 0}, buf.Bytes())

	s, err := ReadStringByNullEnd(buf)
	assert.NoError(t, err)
	assert.Equal(t, "root", s)
}
