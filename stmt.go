package myclient

import (
	"github.com/sqlwire/myclient/charset"
	"github.com/sqlwire/myclient/protocol"
)

// Stmt is a server-side prepared statement. It belongs to the Conn that
// prepared it and holds at most one live result at a time: executing
// again invalidates the previous Rows.
type Stmt struct {
	conn *Conn

	id          uint32
	paramCount  int
	columnCount int
	warnings    uint16
	fields      []Field

	closed bool
	rows   *Rows
}

// Prepare compiles a statement on the server (COM_STMT_PREPARE) and
// returns a handle carrying the server's parameter and column counts.
func (c *Conn) Prepare(sql string) (*Stmt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil, ErrClosedConn
	}
	c.clearError()

	prep := protocol.ComStmtPreparePacket{Query: sql}
	if err := c.sendCommand(prep.MarshalPayload()); err != nil {
		return nil, &PrepareError{Message: err.Error(), cause: err}
	}

	payload, err := c.readPayload()
	if err != nil {
		return nil, &PrepareError{Message: err.Error(), cause: err}
	}
	if protocol.IsErr(payload) {
		var ep protocol.ErrPacket
		if err := ep.UnmarshalPayload(payload); err != nil {
			return nil, &PrepareError{Message: err.Error(), cause: err}
		}
		c.recordError(ep.ErrorCode, ep.ErrorMessage)
		return nil, &PrepareError{Code: ep.ErrorCode, Message: ep.ErrorMessage}
	}

	var ok protocol.StmtPrepareOK
	if err := ok.UnmarshalPayload(payload); err != nil {
		return nil, &PrepareError{Message: err.Error(), cause: err}
	}

	stmt := &Stmt{
		conn:        c,
		id:          ok.StatementID,
		paramCount:  int(ok.ParamCount),
		columnCount: int(ok.ColumnCount),
		warnings:    ok.WarningCount,
	}

	// parameter definitions: placeholders carry no useful metadata, but
	// the packets still have to come off the wire
	if stmt.paramCount > 0 {
		if _, err := c.readFieldBlock(stmt.paramCount); err != nil {
			return nil, &PrepareError{Message: err.Error(), cause: err}
		}
	}
	if stmt.columnCount > 0 {
		fields, err := c.readFieldBlock(stmt.columnCount)
		if err != nil {
			return nil, &PrepareError{Message: err.Error(), cause: err}
		}
		stmt.fields = fields
	}
	return stmt, nil
}

// Execute runs the statement with the given parameters. The parameter
// slice length must equal the statement's placeholder count; a mismatch
// fails before any byte reaches the server. A successful Execute
// invalidates the Rows of any previous Execute on this statement.
func (s *Stmt) Execute(params []Value) (*Rows, error) {
	if len(params) != s.paramCount {
		return nil, &ParamCountError{Expected: s.paramCount, Got: len(params)}
	}

	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil, ErrClosedConn
	}
	if s.closed {
		return nil, &ExecError{Message: "statement is closed"}
	}
	c.clearError()

	// one-shot param bind: every value goes as a string, NULLs via the
	// bitmap, discarded after the write
	bound := make([][]byte, len(params))
	for i, p := range params {
		if p.Null {
			continue
		}
		if p.Data == nil {
			bound[i] = []byte{}
		} else {
			bound[i] = p.Data
		}
	}

	exec := protocol.ComStmtExecutePacket{
		StatementID:    s.id,
		IterationCount: 1,
		Params:         bound,
	}
	if err := c.sendCommand(exec.MarshalPayload()); err != nil {
		return nil, &BindError{Message: err.Error(), cause: err}
	}

	payload, err := c.readPayload()
	if err != nil {
		return nil, &ExecError{Message: err.Error(), cause: err}
	}
	if protocol.IsErr(payload) {
		var ep protocol.ErrPacket
		if err := ep.UnmarshalPayload(payload); err != nil {
			return nil, &ExecError{Message: err.Error(), cause: err}
		}
		c.recordError(ep.ErrorCode, ep.ErrorMessage)
		return nil, &ExecError{Code: ep.ErrorCode, Message: ep.ErrorMessage}
	}

	s.invalidateRows()

	if protocol.IsOK(payload) {
		var ok protocol.OkPacket
		if err := ok.UnmarshalPayload(payload); err != nil {
			return nil, &ExecError{Message: err.Error(), cause: err}
		}
		c.noteOK(&ok)
		s.rows = &Rows{stmt: s}
		return s.rows, nil
	}

	columnCount, err := protocol.ParseColumnCount(payload)
	if err != nil {
		return nil, &ExecError{Message: err.Error(), cause: err}
	}
	fields, err := c.readFieldBlock(int(columnCount))
	if err != nil {
		return nil, &ExecError{Message: err.Error(), cause: err}
	}

	// stage the raw row packets; decoding happens per Fetch
	var packets [][]byte
	for {
		payload, err := c.readPayload()
		if err != nil {
			return nil, &ExecError{Message: err.Error(), cause: err}
		}
		if protocol.IsEOF(payload) {
			var eof protocol.EofPacket
			if err := eof.UnmarshalPayload(payload); err != nil {
				return nil, &ExecError{Message: err.Error(), cause: err}
			}
			c.warnings = eof.Warnings
			break
		}
		if protocol.IsErr(payload) {
			var ep protocol.ErrPacket
			if err := ep.UnmarshalPayload(payload); err != nil {
				return nil, &ExecError{Message: err.Error(), cause: err}
			}
			c.recordError(ep.ErrorCode, ep.ErrorMessage)
			return nil, &ExecError{Code: ep.ErrorCode, Message: ep.ErrorMessage}
		}
		packets = append(packets, payload)
	}

	s.rows = &Rows{stmt: s, fields: fields, packets: packets}
	return s.rows, nil
}

func (s *Stmt) invalidateRows() {
	if s.rows != nil {
		s.rows.stale = true
		s.rows = nil
	}
}

// Reset clears the statement's server-side state (COM_STMT_RESET),
// dropping any accumulated data without re-preparing.
func (s *Stmt) Reset() error {
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrClosedConn
	}
	if s.closed {
		return &ExecError{Message: "statement is closed"}
	}
	reset := protocol.ComStmtResetPacket{StatementID: s.id}
	return c.simpleCommand(reset.MarshalPayload())
}

// Close releases the statement on the server (COM_STMT_CLOSE). The
// command has no response. Safe to call more than once.
func (s *Stmt) Close() error {
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.invalidateRows()
	if !c.open {
		return nil
	}
	cl := protocol.ComStmtClosePacket{StatementID: s.id}
	if err := c.sendCommand(cl.MarshalPayload()); err != nil {
		return &CloseError{Message: err.Error(), cause: err}
	}
	return nil
}

// ParamCount returns the number of placeholders the server found.
func (s *Stmt) ParamCount() int { return s.paramCount }

// ColumnCount returns the number of result columns the statement
// produces, 0 for row-less statements.
func (s *Stmt) ColumnCount() int { return s.columnCount }

// WarningCount returns the warning count from the prepare response.
func (s *Stmt) WarningCount() uint16 { return s.warnings }

// Rows is the result of one Execute. Row packets are staged raw; each
// Fetch sizes the row's values first and only then allocates exact
// buffers and decodes, so oversized values never need a guessed buffer.
type Rows struct {
	stmt    *Stmt
	fields  []Field
	packets [][]byte
	pos     int
	stale   bool
}

// Fetch decodes and returns the next row, or nil at the end. Fetching
// from a result that a later Execute invalidated fails.
func (r *Rows) Fetch() ([]Value, error) {
	if r.stale {
		return nil, &ExecError{Message: "result invalidated by a later execute"}
	}
	if len(r.fields) == 0 {
		return nil, ErrNoResult
	}
	if r.pos >= len(r.packets) {
		return nil, nil
	}
	payload := r.packets[r.pos]
	r.pos++

	types := make([]uint8, len(r.fields))
	for i, f := range r.fields {
		types[i] = f.WireType
	}

	// pass 1: locate and size every value in the staged packet
	spans, err := protocol.ScanBinaryRow(payload, types)
	if err != nil {
		return nil, &BindError{Message: err.Error(), cause: err}
	}

	// pass 2: exact-size copy and decode per column
	row := make([]Value, len(r.fields))
	for i, span := range spans {
		if span.Null {
			row[i] = NullValue()
			continue
		}
		data := make([]byte, span.Length)
		copy(data, payload[span.Offset:span.Offset+span.Length])

		text, err := protocol.RenderBinaryValue(r.fields[i].WireType, r.fields[i].Flags, data)
		if err != nil {
			return nil, &BindError{Message: err.Error(), cause: err}
		}
		decoded, err := charset.Decode(r.fields[i].Charset, text)
		if err != nil {
			return nil, &BindError{Message: err.Error(), cause: err}
		}
		row[i] = BytesValue(decoded)
	}
	return row, nil
}

// Fields returns the result's column descriptors.
func (r *Rows) Fields() []Field { return r.fields }

// RowCount returns the number of staged rows.
func (r *Rows) RowCount() int64 { return int64(len(r.packets)) }
