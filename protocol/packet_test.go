package protocol

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestPacketFraming(t *testing.T) {
	// 1-byte COM_PING payload, sequence 0
	raw := mustHex(t, "010000000e")

	pkt, err := ReadPacket(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), pkt.PayloadLength)
	assert.Equal(t, uint8(0), pkt.SequenceID)
	assert.Equal(t, []byte{COM_PING}, pkt.Payload)
	assert.Equal(t, raw, pkt.RawBytes())
}

func TestWritePacket(t *testing.T) {
	buf := new(bytes.Buffer)
	err := WritePacket(buf, 3, []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, "02000003"+"0102", hex.EncodeToString(buf.Bytes()))
}

func TestPacketShortRead(t *testing.T) {
	_, err := ReadPacket(bytes.NewReader(mustHex(t, "0500000001")))
	assert.Error(t, err)
}

func TestPayloadSmallRoundTrip(t *testing.T) {
	buf := new(bytes.Buffer)
	next, err := WritePayload(buf, 0, []byte{COM_PING})
	require.NoError(t, err)
	assert.Equal(t, uint8(1), next)
	assert.Equal(t, "010000000e", hex.EncodeToString(buf.Bytes()))

	payload, seq, err := ReadPayload(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []byte{COM_PING}, payload)
	assert.Equal(t, uint8(1), seq)
}

func TestPayloadSplitRoundTrip(t *testing.T) {
	// MaxPayloadSize + 5 bytes splits into one full packet and a 5-byte
	// continuation
	big := make([]byte, MaxPayloadSize+5)
	big[0] = 0xaa
	big[MaxPayloadSize-1] = 0xbb
	big[len(big)-1] = 0xcc

	buf := new(bytes.Buffer)
	next, err := WritePayload(buf, 0, big)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), next)
	assert.Equal(t, 8+len(big), buf.Len())

	payload, seq, err := ReadPayload(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, uint8(2), seq)
	require.Len(t, payload, len(big))
	assert.Equal(t, byte(0xaa), payload[0])
	assert.Equal(t, byte(0xbb), payload[MaxPayloadSize-1])
	assert.Equal(t, byte(0xcc), payload[len(payload)-1])
}

func TestPayloadExactBoundaryGetsEmptyTrailer(t *testing.T) {
	// a payload filling a packet exactly needs an empty continuation so
	// the reader knows the message ended
	big := make([]byte, MaxPayloadSize)

	buf := new(bytes.Buffer)
	next, err := WritePayload(buf, 0, big)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), next)
	assert.Equal(t, 8+MaxPayloadSize, buf.Len())

	payload, _, err := ReadPayload(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Len(t, payload, MaxPayloadSize)
}

func TestOkPacket(t *testing.T) {
	// affected 1, insert id 0, autocommit, no warnings
	payload := mustHex(t, "00010002000000")

	var ok OkPacket
	require.NoError(t, ok.UnmarshalPayload(payload))
	assert.Equal(t, uint64(1), ok.AffectedRows)
	assert.Equal(t, uint64(0), ok.LastInsertId)
	assert.Equal(t, uint16(SERVER_STATUS_AUTOCOMMIT), ok.StatusFlags)
	assert.Equal(t, uint16(0), ok.Warnings)

	assert.True(t, IsOK(payload))
	assert.False(t, IsErr(payload))
	assert.Equal(t, payload, ok.MarshalPayload())
}

func TestOkPacketMoreResults(t *testing.T) {
	ok := OkPacket{Header: OK_MARKER, StatusFlags: SERVER_MORE_RESULTS_EXISTS}
	assert.True(t, ok.HasMoreResults())

	var parsed OkPacket
	require.NoError(t, parsed.UnmarshalPayload(ok.MarshalPayload()))
	assert.True(t, parsed.HasMoreResults())
}

func TestErrPacket(t *testing.T) {
	// errno 1096 "No tables used", sqlstate HY000
	payload := mustHex(t, "ff48042348593030304e6f207461626c65732075736564")

	var ep ErrPacket
	require.NoError(t, ep.UnmarshalPayload(payload))
	assert.Equal(t, uint16(1096), ep.ErrorCode)
	assert.Equal(t, "HY000", ep.SqlState)
	assert.Equal(t, "No tables used", ep.ErrorMessage)

	assert.True(t, IsErr(payload))
	rebuilt := ErrPacket{
		Header:       ERR_MARKER,
		ErrorCode:    1096,
		SqlState:     "HY000",
		ErrorMessage: "No tables used",
	}
	assert.Equal(t, payload, rebuilt.MarshalPayload())
}

func TestEofPacket(t *testing.T) {
	payload := mustHex(t, "fe00000200")

	var eof EofPacket
	require.NoError(t, eof.UnmarshalPayload(payload))
	assert.Equal(t, uint16(0), eof.Warnings)
	assert.Equal(t, uint16(SERVER_STATUS_AUTOCOMMIT), eof.StatusFlags)

	assert.True(t, IsEOF(payload))
	// a row whose first lenenc length byte is 0xfe is not an EOF
	assert.False(t, IsEOF(mustHex(t, "fe000000010000000000")))
}

func TestHandshakeRoundTrip(t *testing.T) {
	hs := HandshakeV10Packet{
		ProtocolVersion:     10,
		ServerVersion:       "8.0.0-test",
		ThreadID:            42,
		AuthPluginDataPart:  []byte("abcdefgh"),
		CapabilityFlags1:    uint16(CLIENT_PROTOCOL_41 | CLIENT_SECURE_CONNECTION),
		CharacterSet:        45,
		StatusFlags:         SERVER_STATUS_AUTOCOMMIT,
		CapabilityFlags2:    uint16((CLIENT_PLUGIN_AUTH) >> 16),
		AuthPluginDataPart2: []byte("ijklmnopqrst"),
		AuthPluginName:      "mysql_native_password",
	}

	var parsed HandshakeV10Packet
	require.NoError(t, parsed.UnmarshalPayload(hs.MarshalPayload()))

	assert.Equal(t, uint8(10), parsed.ProtocolVersion)
	assert.Equal(t, "8.0.0-test", parsed.ServerVersion)
	assert.Equal(t, uint32(42), parsed.ThreadID)
	assert.Equal(t, "mysql_native_password", parsed.AuthPluginName)
	assert.Equal(t, []byte("abcdefghijklmnopqrst"), parsed.AuthSeed())
	assert.Equal(t, uint32(CLIENT_PROTOCOL_41|CLIENT_SECURE_CONNECTION|CLIENT_PLUGIN_AUTH), parsed.Capabilities())
}

func TestHandshakeResponseRoundTrip(t *testing.T) {
	resp := HandshakeResponse{
		ClientCapabilities: CLIENT_PROTOCOL_41 | CLIENT_SECURE_CONNECTION |
			CLIENT_PLUGIN_AUTH | CLIENT_CONNECT_WITH_DB | CLIENT_CONNECT_ATTRS |
			CLIENT_PLUGIN_AUTH_LENENC_CLIENT_DATA,
		MaxPacketSize:  1 << 24,
		CharacterSet:   45,
		User:           "root",
		AuthResponse:   bytes.Repeat([]byte{0xaa}, 20),
		Database:       "test",
		AuthPluginName: "mysql_native_password",
		Attributes: []ConnectionAttribute{
			{Name: "_client_name", Value: "myclient"},
		},
	}

	var parsed HandshakeResponse
	require.NoError(t, parsed.UnmarshalPayload(resp.MarshalPayload()))

	assert.Equal(t, resp.ClientCapabilities, parsed.ClientCapabilities)
	assert.Equal(t, "root", parsed.User)
	assert.Equal(t, resp.AuthResponse, parsed.AuthResponse)
	assert.Equal(t, "test", parsed.Database)
	assert.Equal(t, "mysql_native_password", parsed.AuthPluginName)
	assert.Equal(t, resp.Attributes, parsed.Attributes)
}

func TestFieldMetaRoundTrip(t *testing.T) {
	def := "0"
	meta := FieldMeta{
		Catalog:      "def",
		Schema:       "test",
		Table:        "users",
		OrgTable:     "users",
		Name:         "id",
		OrgName:      "id",
		CharacterSet: 63,
		ColumnLength: 11,
		Type:         MYSQL_TYPE_LONG,
		Flags:        NOT_NULL_FLAG | PRI_KEY_FLAG,
		Decimals:     0,
		DefaultValue: &def,
	}

	var parsed FieldMeta
	require.NoError(t, parsed.UnmarshalPayload(meta.MarshalPayload()))
	assert.Equal(t, meta, parsed)
}

func TestStmtPrepareOKRoundTrip(t *testing.T) {
	ok := StmtPrepareOK{
		StatementID:  7,
		ColumnCount:  2,
		ParamCount:   1,
		WarningCount: 3,
	}

	var parsed StmtPrepareOK
	require.NoError(t, parsed.UnmarshalPayload(ok.MarshalPayload()))
	assert.Equal(t, uint32(7), parsed.StatementID)
	assert.Equal(t, uint16(2), parsed.ColumnCount)
	assert.Equal(t, uint16(1), parsed.ParamCount)
	assert.Equal(t, uint16(3), parsed.WarningCount)
}

func TestTextRow(t *testing.T) {
	// "foo", NULL, "" over three columns
	payload := mustHex(t, "03666f6ffb00")

	row, err := ParseTextRow(payload, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("foo"), row[0])
	assert.Nil(t, row[1])
	assert.Equal(t, []byte{}, row[2])

	assert.Equal(t, payload, MarshalTextRow(row))
}

func TestTextRowTruncated(t *testing.T) {
	_, err := ParseTextRow(mustHex(t, "03666f"), 1)
	assert.Error(t, err)

	_, err = ParseTextRow(mustHex(t, "03666f6f"), 2)
	assert.Error(t, err)
}

func TestColumnCount(t *testing.T) {
	n, err := ParseColumnCount(ColumnCountPayload(300))
	require.NoError(t, err)
	assert.Equal(t, uint64(300), n)
}
