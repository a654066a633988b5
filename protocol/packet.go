package protocol

import (
	"bytes"
	"fmt"
	"io"
)

// Packet is the 4-byte framed unit every MySQL message travels in:
// 3-byte little-endian payload length plus a sequence id.
type Packet struct {
	PayloadLength uint32
	SequenceID    uint8
	Payload       []byte
}

func (p *Packet) Unmarshal(r io.Reader) error {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return err
	}
	p.PayloadLength = uint32(header[0]) | uint32(header[1])<<8 | uint32(header[2])<<16
	p.SequenceID = header[3]

	p.Payload = nil
	if p.PayloadLength > 0 {
		p.Payload = make([]byte, p.PayloadLength)
		if _, err := io.ReadFull(r, p.Payload); err != nil {
			return err
		}
	}
	return nil
}

// RawBytes returns the complete framed packet including the header.
func (p *Packet) RawBytes() []byte {
	buf := new(bytes.Buffer)
	buf.Write([]byte{
		byte(p.PayloadLength),
		byte(p.PayloadLength >> 8),
		byte(p.PayloadLength >> 16),
		p.SequenceID,
	})
	buf.Write(p.Payload)
	return buf.Bytes()
}

// ReadPacket reads one framed packet off the stream.
func ReadPacket(r io.Reader) (*Packet, error) {
	p := &Packet{}
	if err := p.Unmarshal(r); err != nil {
		return nil, err
	}
	return p, nil
}

// WritePacket frames payload with the given sequence id and writes it out.
func WritePacket(w io.Writer, sequenceID uint8, payload []byte) error {
	p := &Packet{
		PayloadLength: uint32(len(payload)),
		SequenceID:    sequenceID,
		Payload:       payload,
	}
	_, err := w.Write(p.RawBytes())
	return err
}

// MaxPayloadSize is the largest payload one framed packet can carry;
// anything bigger travels as continuation packets.
const MaxPayloadSize = 0xffffff

// WritePayload frames and writes a payload of any size, splitting it at
// MaxPayloadSize. A payload that fills the last chunk exactly gets a
// trailing empty packet so the peer can tell the message ended. Returns
// the sequence id for the next packet in the conversation.
func WritePayload(w io.Writer, sequenceID uint8, payload []byte) (uint8, error) {
	for {
		chunk := payload
		if len(chunk) > MaxPayloadSize {
			chunk = payload[:MaxPayloadSize]
		}
		if err := WritePacket(w, sequenceID, chunk); err != nil {
			return sequenceID, err
		}
		sequenceID++
		payload = payload[len(chunk):]
		if len(chunk) < MaxPayloadSize {
			return sequenceID, nil
		}
	}
}

// ReadPayload reads one logical payload, joining continuation packets.
// It returns the sequence id for the next packet in the conversation.
func ReadPayload(r io.Reader) ([]byte, uint8, error) {
	pkt, err := ReadPacket(r)
	if err != nil {
		return nil, 0, err
	}
	payload := pkt.Payload
	for pkt.PayloadLength == MaxPayloadSize {
		if pkt, err = ReadPacket(r); err != nil {
			return nil, 0, err
		}
		payload = append(payload, pkt.Payload...)
	}
	return payload, pkt.SequenceID + 1, nil
}

// Response classification on the first payload byte.

func IsOK(payload []byte) bool {
	return len(payload) > 0 && payload[0] == OK_MARKER
}

func IsErr(payload []byte) bool {
	return len(payload) > 0 && payload[0] == ERR_MARKER
}

// IsEOF reports an EOF packet. The 9-byte bound distinguishes it from a row
// whose first column happens to start with the 0xfe lenenc prefix.
func IsEOF(payload []byte) bool {
	return len(payload) > 0 && payload[0] == EOF_MARKER && len(payload) < 9
}

// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_connection_phase_packets_protocol_handshake_v10.html
type HandshakeV10Packet struct {
	ProtocolVersion     uint8
	ServerVersion       string
	ThreadID            uint32
	AuthPluginDataPart  []byte // first 8 scramble bytes
	CapabilityFlags1    uint16
	CharacterSet        uint8
	StatusFlags         uint16
	CapabilityFlags2    uint16
	AuthPluginDataLen   uint8
	AuthPluginDataPart2 []byte // remaining scramble bytes, NUL padded
	AuthPluginName      string
}

func (p *HandshakeV10Packet) UnmarshalPayload(payload []byte) error {
	nb := bytes.NewBuffer(payload)

	var err error
	if p.ProtocolVersion, err = nb.ReadByte(); err != nil {
		return err
	}
	if p.ServerVersion, err = ReadStringByNullEnd(nb); err != nil {
		return err
	}
	if p.ThreadID, err = ReadNumber[uint32](nb, 4); err != nil {
		return err
	}
	p.AuthPluginDataPart = make([]byte, 8)
	if _, err = io.ReadFull(nb, p.AuthPluginDataPart); err != nil {
		return err
	}
	if _, err = nb.ReadByte(); err != nil { // filler
		return err
	}
	if p.CapabilityFlags1, err = ReadNumber[uint16](nb, 2); err != nil {
		return err
	}
	if p.CharacterSet, err = ReadNumber[uint8](nb, 1); err != nil {
		return err
	}
	if p.StatusFlags, err = ReadNumber[uint16](nb, 2); err != nil {
		return err
	}
	if p.CapabilityFlags2, err = ReadNumber[uint16](nb, 2); err != nil {
		return err
	}
	if p.AuthPluginDataLen, err = ReadNumber[uint8](nb, 1); err != nil {
		return err
	}
	if nb.Len() < 10 {
		return io.ErrUnexpectedEOF
	}
	nb.Next(10) // reserved

	if p.AuthPluginDataLen > 8 {
		part2 := make([]byte, p.AuthPluginDataLen-8)
		if _, err = io.ReadFull(nb, part2); err != nil {
			return err
		}
		p.AuthPluginDataPart2 = part2
	}
	if nb.Len() > 0 {
		p.AuthPluginName, _ = ReadStringByNullEnd(nb)
	}
	return nil
}

func (p *HandshakeV10Packet) MarshalPayload() []byte {
	buf := new(bytes.Buffer)

	if len(p.AuthPluginDataPart2) > 0 {
		p.AuthPluginDataLen = uint8(8 + len(p.AuthPluginDataPart2) + 1)
	}

	WriteNumber(buf, p.ProtocolVersion, 1)
	WriteStringByNullEnd(buf, p.ServerVersion)
	WriteNumber(buf, p.ThreadID, 4)
	buf.Write(p.AuthPluginDataPart)
	buf.WriteByte(0) // filler
	WriteNumber(buf, p.CapabilityFlags1, 2)
	WriteNumber(buf, p.CharacterSet, 1)
	WriteNumber(buf, p.StatusFlags, 2)
	WriteNumber(buf, p.CapabilityFlags2, 2)
	WriteNumber(buf, p.AuthPluginDataLen, 1)
	buf.Write(make([]byte, 10)) // reserved
	if len(p.AuthPluginDataPart2) > 0 {
		buf.Write(p.AuthPluginDataPart2)
		buf.WriteByte(0)
	}
	if p.AuthPluginName != "" {
		WriteStringByNullEnd(buf, p.AuthPluginName)
	}
	return buf.Bytes()
}

// Capabilities joins the two 16-bit halves into the full flag word.
func (p *HandshakeV10Packet) Capabilities() uint32 {
	return uint32(p.CapabilityFlags2)<<16 | uint32(p.CapabilityFlags1)
}

// AuthSeed returns the full scramble the server salted this session with.
func (p *HandshakeV10Packet) AuthSeed() []byte {
	seed := make([]byte, 0, 20)
	seed = append(seed, p.AuthPluginDataPart...)
	part2 := p.AuthPluginDataPart2
	// part2 carries a trailing NUL on the wire
	if n := len(part2); n > 0 && part2[n-1] == 0 {
		part2 = part2[:n-1]
	}
	return append(seed, part2...)
}

// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_connection_phase_packets_protocol_handshake_response.html
type HandshakeResponse struct {
	ClientCapabilities uint32
	MaxPacketSize      uint32
	CharacterSet       uint8
	User               string
	AuthResponse       []byte
	Database           string
	AuthPluginName     string
	Attributes         []ConnectionAttribute
}

type ConnectionAttribute struct {
	Name  string
	Value string
}

func (p *HandshakeResponse) MarshalPayload() []byte {
	buf := new(bytes.Buffer)

	WriteNumber(buf, p.ClientCapabilities, 4)
	WriteNumber(buf, p.MaxPacketSize, 4)
	WriteNumber(buf, p.CharacterSet, 1)
	buf.Write(make([]byte, 23)) // filler
	WriteStringByNullEnd(buf, p.User)

	if p.ClientCapabilities&CLIENT_PLUGIN_AUTH_LENENC_CLIENT_DATA != 0 {
		WriteBytesByLenenc(buf, p.AuthResponse)
	} else {
		WriteNumber(buf, uint8(len(p.AuthResponse)), 1)
		buf.Write(p.AuthResponse)
	}
	if p.ClientCapabilities&CLIENT_CONNECT_WITH_DB != 0 {
		WriteStringByNullEnd(buf, p.Database)
	}
	if p.ClientCapabilities&CLIENT_PLUGIN_AUTH != 0 {
		WriteStringByNullEnd(buf, p.AuthPluginName)
	}
	if p.ClientCapabilities&CLIENT_CONNECT_ATTRS != 0 {
		attrBuf := new(bytes.Buffer)
		for _, attr := range p.Attributes {
			WriteStringByLenenc(attrBuf, attr.Name)
			WriteStringByLenenc(attrBuf, attr.Value)
		}
		WriteLenencNumber(buf, uint64(attrBuf.Len()))
		buf.Write(attrBuf.Bytes())
	}
	return buf.Bytes()
}

func (p *HandshakeResponse) UnmarshalPayload(payload []byte) error {
	nb := bytes.NewBuffer(payload)

	var err error
	if p.ClientCapabilities, err = ReadNumber[uint32](nb, 4); err != nil {
		return err
	}
	if p.MaxPacketSize, err = ReadNumber[uint32](nb, 4); err != nil {
		return err
	}
	if p.CharacterSet, err = ReadNumber[uint8](nb, 1); err != nil {
		return err
	}
	if nb.Len() < 23 {
		return io.ErrUnexpectedEOF
	}
	nb.Next(23)
	if p.User, err = ReadStringByNullEnd(nb); err != nil {
		return err
	}

	switch {
	case p.ClientCapabilities&CLIENT_PLUGIN_AUTH_LENENC_CLIENT_DATA != 0:
		if p.AuthResponse, err = ReadBytesByLenenc(nb); err != nil {
			return err
		}
	default:
		authLen, err := ReadNumber[uint8](nb, 1)
		if err != nil {
			return err
		}
		p.AuthResponse = make([]byte, authLen)
		if _, err := io.ReadFull(nb, p.AuthResponse); err != nil {
			return err
		}
	}

	if p.ClientCapabilities&CLIENT_CONNECT_WITH_DB != 0 {
		if p.Database, err = ReadStringByNullEnd(nb); err != nil {
			return err
		}
	}
	if p.ClientCapabilities&CLIENT_PLUGIN_AUTH != 0 {
		if p.AuthPluginName, err = ReadStringByNullEnd(nb); err != nil {
			return err
		}
	}
	if p.ClientCapabilities&CLIENT_CONNECT_ATTRS != 0 && nb.Len() > 0 {
		attrLen, err := ReadLenencNumber[uint64](nb)
		if err != nil {
			return err
		}
		if uint64(nb.Len()) < attrLen {
			return io.ErrUnexpectedEOF
		}
		attrs := bytes.NewBuffer(nb.Next(int(attrLen)))
		for attrs.Len() > 0 {
			var attr ConnectionAttribute
			if attr.Name, err = ReadStringByLenenc(attrs); err != nil {
				return err
			}
			if attr.Value, err = ReadStringByLenenc(attrs); err != nil {
				return err
			}
			p.Attributes = append(p.Attributes, attr)
		}
	}
	return nil
}

// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_basic_ok_packet.html
type OkPacket struct {
	Header       uint8
	AffectedRows uint64
	LastInsertId uint64
	StatusFlags  uint16
	Warnings     uint16
	Info         string
}

func (p *OkPacket) HasMoreResults() bool {
	return p.StatusFlags&SERVER_MORE_RESULTS_EXISTS != 0
}

func (p *OkPacket) UnmarshalPayload(payload []byte) error {
	nb := bytes.NewBuffer(payload)

	var err error
	if p.Header, err = nb.ReadByte(); err != nil {
		return err
	}
	if p.AffectedRows, err = ReadLenencNumber[uint64](nb); err != nil {
		return err
	}
	if p.LastInsertId, err = ReadLenencNumber[uint64](nb); err != nil {
		return err
	}
	if p.StatusFlags, err = ReadNumber[uint16](nb, 2); err != nil {
		return err
	}
	if p.Warnings, err = ReadNumber[uint16](nb, 2); err != nil {
		return err
	}
	if nb.Len() > 0 {
		p.Info, _ = ReadStringByLenenc(nb)
	}
	return nil
}

func (p *OkPacket) MarshalPayload() []byte {
	buf := new(bytes.Buffer)
	WriteNumber(buf, p.Header, 1)
	WriteLenencNumber(buf, p.AffectedRows)
	WriteLenencNumber(buf, p.LastInsertId)
	WriteNumber(buf, p.StatusFlags, 2)
	WriteNumber(buf, p.Warnings, 2)
	if p.Info != "" {
		WriteStringByLenenc(buf, p.Info)
	}
	return buf.Bytes()
}

// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_basic_err_packet.html
type ErrPacket struct {
	Header         uint8
	ErrorCode      uint16
	SqlStateMarker string
	SqlState       string
	ErrorMessage   string
}

func (p *ErrPacket) UnmarshalPayload(payload []byte) error {
	nb := bytes.NewBuffer(payload)

	var err error
	if p.Header, err = nb.ReadByte(); err != nil {
		return err
	}
	if p.ErrorCode, err = ReadNumber[uint16](nb, 2); err != nil {
		return err
	}
	if nb.Len() > 0 && nb.Bytes()[0] == '#' {
		p.SqlStateMarker = string(nb.Next(1))
		p.SqlState = string(nb.Next(5))
	}
	p.ErrorMessage = string(nb.Next(nb.Len()))
	return nil
}

func (p *ErrPacket) MarshalPayload() []byte {
	buf := new(bytes.Buffer)
	WriteNumber(buf, uint8(ERR_MARKER), 1)
	WriteNumber(buf, p.ErrorCode, 2)
	if p.SqlState != "" {
		buf.WriteByte('#')
		buf.WriteString(p.SqlState)
	}
	buf.WriteString(p.ErrorMessage)
	return buf.Bytes()
}

// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_basic_eof_packet.html
type EofPacket struct {
	Header      uint8
	Warnings    uint16
	StatusFlags uint16
}

func (p *EofPacket) UnmarshalPayload(payload []byte) error {
	nb := bytes.NewBuffer(payload)

	var err error
	if p.Header, err = nb.ReadByte(); err != nil {
		return err
	}
	if nb.Len() >= 4 {
		if p.Warnings, err = ReadNumber[uint16](nb, 2); err != nil {
			return err
		}
		if p.StatusFlags, err = ReadNumber[uint16](nb, 2); err != nil {
			return err
		}
	}
	return nil
}

func (p *EofPacket) MarshalPayload() []byte {
	buf := new(bytes.Buffer)
	WriteNumber(buf, uint8(EOF_MARKER), 1)
	WriteNumber(buf, p.Warnings, 2)
	WriteNumber(buf, p.StatusFlags, 2)
	return buf.Bytes()
}

// FieldMeta is a column definition as sent inside resultset metadata.
// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_com_query_response_text_resultset_column_definition.html
type FieldMeta struct {
	Catalog      string
	Schema       string
	Table        string
	OrgTable     string
	Name         string
	OrgName      string
	CharacterSet uint16
	ColumnLength uint32
	Type         uint8
	Flags        uint16
	Decimals     uint8
	DefaultValue *string // only present in COM_FIELD_LIST responses
}

func (p *FieldMeta) UnmarshalPayload(payload []byte) error {
	nb := bytes.NewBuffer(payload)

	var err error
	if p.Catalog, err = ReadStringByLenenc(nb); err != nil {
		return err
	}
	if p.Schema, err = ReadStringByLenenc(nb); err != nil {
		return err
	}
	if p.Table, err = ReadStringByLenenc(nb); err != nil {
		return err
	}
	if p.OrgTable, err = ReadStringByLenenc(nb); err != nil {
		return err
	}
	if p.Name, err = ReadStringByLenenc(nb); err != nil {
		return err
	}
	if p.OrgName, err = ReadStringByLenenc(nb); err != nil {
		return err
	}
	if _, err = ReadLenencNumber[uint32](nb); err != nil { // fixed-length fields marker, always 0x0c
		return err
	}
	if p.CharacterSet, err = ReadNumber[uint16](nb, 2); err != nil {
		return err
	}
	if p.ColumnLength, err = ReadNumber[uint32](nb, 4); err != nil {
		return err
	}
	if p.Type, err = ReadNumber[uint8](nb, 1); err != nil {
		return err
	}
	if p.Flags, err = ReadNumber[uint16](nb, 2); err != nil {
		return err
	}
	if p.Decimals, err = ReadNumber[uint8](nb, 1); err != nil {
		return err
	}
	if nb.Len() < 2 {
		return io.ErrUnexpectedEOF
	}
	nb.Next(2) // reserved

	if nb.Len() > 0 {
		def, err := ReadStringByLenenc(nb)
		if err == nil {
			p.DefaultValue = &def
		}
	}
	return nil
}

func (p *FieldMeta) MarshalPayload() []byte {
	buf := new(bytes.Buffer)
	WriteStringByLenenc(buf, p.Catalog)
	WriteStringByLenenc(buf, p.Schema)
	WriteStringByLenenc(buf, p.Table)
	WriteStringByLenenc(buf, p.OrgTable)
	WriteStringByLenenc(buf, p.Name)
	WriteStringByLenenc(buf, p.OrgName)
	WriteLenencNumber(buf, uint64(0x0c))
	WriteNumber(buf, p.CharacterSet, 2)
	WriteNumber(buf, p.ColumnLength, 4)
	WriteNumber(buf, p.Type, 1)
	WriteNumber(buf, p.Flags, 2)
	WriteNumber(buf, p.Decimals, 1)
	buf.Write([]byte{0x00, 0x00})
	if p.DefaultValue != nil {
		WriteStringByLenenc(buf, *p.DefaultValue)
	}
	return buf.Bytes()
}

// ColumnCountPayload starts a resultset: a single lenenc column count.
func ColumnCountPayload(count uint64) []byte {
	buf := new(bytes.Buffer)
	WriteLenencNumber(buf, count)
	return buf.Bytes()
}

func ParseColumnCount(payload []byte) (uint64, error) {
	nb := bytes.NewBuffer(payload)
	return ReadLenencNumber[uint64](nb)
}

// StmtPrepareOK is the leading packet of a COM_STMT_PREPARE response; the
// param and column definitions follow as separate packets.
// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_com_stmt_prepare.html
type StmtPrepareOK struct {
	Status       uint8
	StatementID  uint32
	ColumnCount  uint16
	ParamCount   uint16
	WarningCount uint16
}

func (p *StmtPrepareOK) UnmarshalPayload(payload []byte) error {
	nb := bytes.NewBuffer(payload)

	var err error
	if p.Status, err = nb.ReadByte(); err != nil {
		return err
	}
	if p.StatementID, err = ReadNumber[uint32](nb, 4); err != nil {
		return err
	}
	if p.ColumnCount, err = ReadNumber[uint16](nb, 2); err != nil {
		return err
	}
	if p.ParamCount, err = ReadNumber[uint16](nb, 2); err != nil {
		return err
	}
	if _, err = nb.ReadByte(); err != nil { // reserved
		return err
	}
	if nb.Len() >= 2 {
		p.WarningCount, _ = ReadNumber[uint16](nb, 2)
	}
	return nil
}

func (p *StmtPrepareOK) MarshalPayload() []byte {
	buf := new(bytes.Buffer)
	WriteNumber(buf, uint8(OK_MARKER), 1)
	WriteNumber(buf, p.StatementID, 4)
	WriteNumber(buf, p.ColumnCount, 2)
	WriteNumber(buf, p.ParamCount, 2)
	buf.WriteByte(0)
	WriteNumber(buf, p.WarningCount, 2)
	return buf.Bytes()
}

// Text resultset rows: every value a lenenc string, NULL as 0xfb.
// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_com_query_response_text_resultset_row.html

func ParseTextRow(payload []byte, columnCount int) ([][]byte, error) {
	nb := bytes.NewBuffer(payload)
	row := make([][]byte, columnCount)
	for i := 0; i < columnCount; i++ {
		if nb.Len() == 0 {
			return nil, io.ErrUnexpectedEOF
		}
		if nb.Bytes()[0] == NULL_MARKER {
			nb.ReadByte()
			row[i] = nil
			continue
		}
		value, err := ReadBytesByLenenc(nb)
		if err != nil {
			return nil, fmt.Errorf("text row column %d: %w", i, err)
		}
		row[i] = value
	}
	return row, nil
}

func MarshalTextRow(values [][]byte) []byte {
	buf := new(bytes.Buffer)
	for _, v := range values {
		if v == nil {
			buf.WriteByte(NULL_MARKER)
			continue
		}
		WriteBytesByLenenc(buf, v)
	}
	return buf.Bytes()
}
