package myclient

import (
	"github.com/sqlwire/myclient/charset"
	"github.com/sqlwire/myclient/protocol"
)

// Result is a fully buffered result set: every row is read off the wire
// before Query returns, so Fetch and Seek never touch the network.
type Result struct {
	fields []Field
	rows   [][]Value

	rowPos   int64
	fieldPos int
}

// Query runs one SQL statement and buffers its result. Statements that
// return no rows (DDL, DML) yield a Result with zero columns.
func (c *Conn) Query(sql string) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil, ErrClosedConn
	}
	c.clearError()

	q := protocol.ComQueryPacket{Query: sql}
	if err := c.sendCommand(q.MarshalPayload()); err != nil {
		return nil, &QueryError{Message: err.Error(), cause: err}
	}

	payload, err := c.readPayload()
	if err != nil {
		return nil, &QueryError{Message: err.Error(), cause: err}
	}
	if protocol.IsErr(payload) {
		var ep protocol.ErrPacket
		if err := ep.UnmarshalPayload(payload); err != nil {
			return nil, &QueryError{Message: err.Error(), cause: err}
		}
		c.recordError(ep.ErrorCode, ep.ErrorMessage)
		return nil, &QueryError{Code: ep.ErrorCode, Message: ep.ErrorMessage}
	}
	if protocol.IsOK(payload) {
		var ok protocol.OkPacket
		if err := ok.UnmarshalPayload(payload); err != nil {
			return nil, &QueryError{Message: err.Error(), cause: err}
		}
		c.noteOK(&ok)
		return &Result{}, nil
	}

	columnCount, err := protocol.ParseColumnCount(payload)
	if err != nil {
		return nil, &QueryError{Message: err.Error(), cause: err}
	}

	fields, err := c.readFieldBlock(int(columnCount))
	if err != nil {
		return nil, &QueryError{Message: err.Error(), cause: err}
	}

	var rows [][]Value
	for {
		payload, err := c.readPayload()
		if err != nil {
			return nil, &QueryError{Message: err.Error(), cause: err}
		}
		if protocol.IsEOF(payload) {
			var eof protocol.EofPacket
			if err := eof.UnmarshalPayload(payload); err != nil {
				return nil, &QueryError{Message: err.Error(), cause: err}
			}
			c.warnings = eof.Warnings
			break
		}
		if protocol.IsErr(payload) {
			var ep protocol.ErrPacket
			if err := ep.UnmarshalPayload(payload); err != nil {
				return nil, &QueryError{Message: err.Error(), cause: err}
			}
			c.recordError(ep.ErrorCode, ep.ErrorMessage)
			return nil, &QueryError{Code: ep.ErrorCode, Message: ep.ErrorMessage}
		}

		raw, err := protocol.ParseTextRow(payload, int(columnCount))
		if err != nil {
			return nil, &QueryError{Message: err.Error(), cause: err}
		}
		row, err := decodeRow(raw, fields)
		if err != nil {
			return nil, &QueryError{Message: err.Error(), cause: err}
		}
		rows = append(rows, row)
	}

	c.affectedRows = uint64(len(rows))
	return &Result{fields: fields, rows: rows}, nil
}

// Exec runs a statement for its side effects. It is Query under another
// name, kept so DDL and DML call sites read naturally; AffectedRows and
// InsertID on the Conn report the outcome.
func (c *Conn) Exec(sql string) (*Result, error) {
	return c.Query(sql)
}

// readFieldBlock reads count column definitions and the EOF that ends
// them. Callers hold c.mu.
func (c *Conn) readFieldBlock(count int) ([]Field, error) {
	fields := make([]Field, 0, count)
	for i := 0; i < count; i++ {
		payload, err := c.readPayload()
		if err != nil {
			return nil, err
		}
		var meta protocol.FieldMeta
		if err := meta.UnmarshalPayload(payload); err != nil {
			return nil, err
		}
		fields = append(fields, fieldFromMeta(&meta))
	}
	payload, err := c.readPayload()
	if err != nil {
		return nil, err
	}
	if !protocol.IsEOF(payload) {
		return nil, &QueryError{Message: "missing field list terminator"}
	}
	return fields, nil
}

// decodeRow converts raw wire cells to Values, converting any non-UTF-8
// column charset.
func decodeRow(raw [][]byte, fields []Field) ([]Value, error) {
	row := make([]Value, len(raw))
	for i, cell := range raw {
		if cell == nil {
			row[i] = NullValue()
			continue
		}
		decoded, err := charset.Decode(fields[i].Charset, cell)
		if err != nil {
			return nil, err
		}
		row[i] = BytesValue(decoded)
	}
	return row, nil
}

// Fetch returns the next row, or nil at the end of the result.
// Results with no columns return ErrNoResult.
func (r *Result) Fetch() ([]Value, error) {
	if len(r.fields) == 0 {
		return nil, ErrNoResult
	}
	if r.rowPos >= int64(len(r.rows)) {
		return nil, nil
	}
	row := r.rows[r.rowPos]
	r.rowPos++
	return row, nil
}

// Seek moves the row cursor to an absolute offset. Offsets outside
// [0, RowCount) return ErrRange.
func (r *Result) Seek(offset int64) error {
	if offset < 0 || offset >= int64(len(r.rows)) {
		return ErrRange
	}
	r.rowPos = offset
	return nil
}

// RowCount returns the number of buffered rows.
func (r *Result) RowCount() int64 {
	return int64(len(r.rows))
}

// ColumnCount returns the number of columns, 0 for row-less statements.
func (r *Result) ColumnCount() int {
	return len(r.fields)
}

// Fields returns all column descriptors in definition order.
func (r *Result) Fields() []Field {
	return r.fields
}

// NextField returns the next column descriptor, advancing an internal
// cursor. The second return is false past the last column.
func (r *Result) NextField() (Field, bool) {
	if r.fieldPos >= len(r.fields) {
		return Field{}, false
	}
	f := r.fields[r.fieldPos]
	r.fieldPos++
	return f, true
}

// FieldAt returns the descriptor of column i without moving the field
// cursor.
func (r *Result) FieldAt(i int) (Field, bool) {
	if i < 0 || i >= len(r.fields) {
		return Field{}, false
	}
	return r.fields[i], true
}
