package protocol

import (
	"bytes"
	"io"
)

// Command packet payloads. The driver marshals these; the test server parses
// them back with the matching Unmarshal.

type ComQuitPacket struct{}

func (p *ComQuitPacket) MarshalPayload() []byte {
	return []byte{COM_QUIT}
}

type ComPingPacket struct{}

func (p *ComPingPacket) MarshalPayload() []byte {
	return []byte{COM_PING}
}

type ComStatisticsPacket struct{}

func (p *ComStatisticsPacket) MarshalPayload() []byte {
	return []byte{COM_STATISTICS}
}

type ComInitDBPacket struct {
	Database string
}

func (p *ComInitDBPacket) MarshalPayload() []byte {
	return append([]byte{COM_INIT_DB}, p.Database...)
}

func (p *ComInitDBPacket) UnmarshalPayload(payload []byte) error {
	if len(payload) < 1 {
		return io.ErrUnexpectedEOF
	}
	p.Database = string(payload[1:])
	return nil
}

type ComQueryPacket struct {
	Query string
}

func (p *ComQueryPacket) MarshalPayload() []byte {
	return append([]byte{COM_QUERY}, p.Query...)
}

func (p *ComQueryPacket) UnmarshalPayload(payload []byte) error {
	if len(payload) < 1 {
		return io.ErrUnexpectedEOF
	}
	p.Query = string(payload[1:])
	return nil
}

// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_com_change_user.html
type ComChangeUserPacket struct {
	User           string
	AuthResponse   []byte
	Database       string
	CharacterSet   uint16
	AuthPluginName string
}

func (p *ComChangeUserPacket) MarshalPayload() []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(COM_CHANGE_USER)
	WriteStringByNullEnd(buf, p.User)
	WriteNumber(buf, uint8(len(p.AuthResponse)), 1)
	buf.Write(p.AuthResponse)
	WriteStringByNullEnd(buf, p.Database)
	WriteNumber(buf, p.CharacterSet, 2)
	WriteStringByNullEnd(buf, p.AuthPluginName)
	return buf.Bytes()
}

func (p *ComChangeUserPacket) UnmarshalPayload(payload []byte) error {
	if len(payload) < 1 {
		return io.ErrUnexpectedEOF
	}
	nb := bytes.NewBuffer(payload[1:])

	var err error
	if p.User, err = ReadStringByNullEnd(nb); err != nil {
		return err
	}
	authLen, err := ReadNumber[uint8](nb, 1)
	if err != nil {
		return err
	}
	p.AuthResponse = make([]byte, authLen)
	if _, err := io.ReadFull(nb, p.AuthResponse); err != nil {
		return err
	}
	if p.Database, err = ReadStringByNullEnd(nb); err != nil {
		return err
	}
	if nb.Len() >= 2 {
		p.CharacterSet, _ = ReadNumber[uint16](nb, 2)
	}
	if nb.Len() > 0 {
		p.AuthPluginName, _ = ReadStringByNullEnd(nb)
	}
	return nil
}

type ComStmtPreparePacket struct {
	Query string
}

func (p *ComStmtPreparePacket) MarshalPayload() []byte {
	return append([]byte{COM_STMT_PREPARE}, p.Query...)
}

func (p *ComStmtPreparePacket) UnmarshalPayload(payload []byte) error {
	if len(payload) < 1 {
		return io.ErrUnexpectedEOF
	}
	p.Query = string(payload[1:])
	return nil
}

// ComStmtExecutePacket binds parameters and runs a prepared statement.
// Every parameter travels as MYSQL_TYPE_STRING (or MYSQL_TYPE_NULL, flagged
// in the NULL bitmap), mirroring a string-typed MYSQL_BIND array.
// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_com_stmt_execute.html
type ComStmtExecutePacket struct {
	StatementID    uint32
	Flags          uint8
	IterationCount uint32
	// Params[i] == nil means SQL NULL.
	Params [][]byte
}

func (p *ComStmtExecutePacket) MarshalPayload() []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(COM_STMT_EXECUTE)
	WriteNumber(buf, p.StatementID, 4)
	WriteNumber(buf, p.Flags, 1)
	WriteNumber(buf, p.IterationCount, 4)

	if len(p.Params) == 0 {
		return buf.Bytes()
	}

	bitmap := make([]byte, (len(p.Params)+7)/8)
	for i, param := range p.Params {
		if param == nil {
			bitmap[i/8] |= 1 << (uint(i) % 8)
		}
	}
	buf.Write(bitmap)
	buf.WriteByte(1) // new_params_bind_flag

	for _, param := range p.Params {
		if param == nil {
			WriteNumber(buf, uint16(MYSQL_TYPE_NULL), 2)
		} else {
			WriteNumber(buf, uint16(MYSQL_TYPE_STRING), 2)
		}
	}
	for _, param := range p.Params {
		if param != nil {
			WriteBytesByLenenc(buf, param)
		}
	}
	return buf.Bytes()
}

// UnmarshalPayload needs the server-known parameter count; the packet itself
// does not carry it.
func (p *ComStmtExecutePacket) UnmarshalPayload(payload []byte, paramCount int) error {
	if len(payload) < 10 {
		return io.ErrUnexpectedEOF
	}
	nb := bytes.NewBuffer(payload[1:])

	var err error
	if p.StatementID, err = ReadNumber[uint32](nb, 4); err != nil {
		return err
	}
	if p.Flags, err = ReadNumber[uint8](nb, 1); err != nil {
		return err
	}
	if p.IterationCount, err = ReadNumber[uint32](nb, 4); err != nil {
		return err
	}

	if paramCount == 0 {
		p.Params = nil
		return nil
	}

	bitmapLen := (paramCount + 7) / 8
	if nb.Len() < bitmapLen+1 {
		return io.ErrUnexpectedEOF
	}
	bitmap := make([]byte, bitmapLen)
	copy(bitmap, nb.Next(bitmapLen))

	newParamsBound, err := nb.ReadByte()
	if err != nil {
		return err
	}

	types := make([]uint16, paramCount)
	if newParamsBound == 1 {
		for i := 0; i < paramCount; i++ {
			if types[i], err = ReadNumber[uint16](nb, 2); err != nil {
				return err
			}
		}
	}

	p.Params = make([][]byte, paramCount)
	for i := 0; i < paramCount; i++ {
		if bitmap[i/8]&(1<<(uint(i)%8)) != 0 {
			p.Params[i] = nil
			continue
		}
		if p.Params[i], err = ReadBytesByLenenc(nb); err != nil {
			return err
		}
	}
	return nil
}

type ComStmtClosePacket struct {
	StatementID uint32
}

func (p *ComStmtClosePacket) MarshalPayload() []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(COM_STMT_CLOSE)
	WriteNumber(buf, p.StatementID, 4)
	return buf.Bytes()
}

func (p *ComStmtClosePacket) UnmarshalPayload(payload []byte) error {
	if len(payload) < 5 {
		return io.ErrUnexpectedEOF
	}
	nb := bytes.NewBuffer(payload[1:])
	var err error
	p.StatementID, err = ReadNumber[uint32](nb, 4)
	return err
}

type ComStmtResetPacket struct {
	StatementID uint32
}

func (p *ComStmtResetPacket) MarshalPayload() []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(COM_STMT_RESET)
	WriteNumber(buf, p.StatementID, 4)
	return buf.Bytes()
}

func (p *ComStmtResetPacket) UnmarshalPayload(payload []byte) error {
	if len(payload) < 5 {
		return io.ErrUnexpectedEOF
	}
	nb := bytes.NewBuffer(payload[1:])
	var err error
	p.StatementID, err = ReadNumber[uint32](nb, 4)
	return err
}
