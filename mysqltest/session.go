package mysqltest

import (
	"net"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/sqlwire/myclient/auth"
	"github.com/sqlwire/myclient/protocol"
)

var (
	showDatabasesRE = regexp.MustCompile(`(?i)^\s*SHOW\s+DATABASES(?:\s+LIKE\s+'(.*)')?\s*$`)
	selectAllRE     = regexp.MustCompile(`(?i)^\s*SELECT\s+\*\s+FROM\s+(\w+)(?:\s+WHERE\s+(\w+)\s*=\s*\?)?\s*$`)
	insertRE        = regexp.MustCompile(`(?i)^\s*INSERT\s+INTO\s+(\w+)\s+VALUES\s*\((.*)\)\s*$`)
	dmlPrefixRE     = regexp.MustCompile(`(?i)^\s*(INSERT|UPDATE|DELETE|CREATE|DROP|ALTER|SET|BEGIN|COMMIT|ROLLBACK)\b`)
)

type stmtKind int

const (
	stmtSelect stmtKind = iota
	stmtInsert
	stmtOther
)

type preparedStmt struct {
	kind       stmtKind
	table      string
	whereCol   string
	paramCount int
}

type session struct {
	srv      *Server
	conn     *countingConn
	seq      uint8
	threadID uint32
	stmts    map[uint32]*preparedStmt
}

func newSession(s *Server, conn net.Conn) *session {
	return &session{
		srv:      s,
		conn:     &countingConn{Conn: conn, in: &s.bytesIn, out: &s.bytesOut},
		threadID: atomic.AddUint32(&s.threadSeq, 1),
		stmts:    map[uint32]*preparedStmt{},
	}
}

func (s *session) write(payload []byte) error {
	err := protocol.WritePacket(s.conn, s.seq, payload)
	s.seq++
	return err
}

func (s *session) writeOK(affected, insertID uint64) error {
	ok := protocol.OkPacket{
		Header:       protocol.OK_MARKER,
		AffectedRows: affected,
		LastInsertId: insertID,
		StatusFlags:  protocol.SERVER_STATUS_AUTOCOMMIT,
	}
	return s.write(ok.MarshalPayload())
}

func (s *session) writeErr(code uint16, msg string) error {
	ep := protocol.ErrPacket{
		Header:         protocol.ERR_MARKER,
		ErrorCode:      code,
		SqlStateMarker: "#",
		SqlState:       "HY000",
		ErrorMessage:   msg,
	}
	return s.write(ep.MarshalPayload())
}

func (s *session) writeEOF() error {
	eof := protocol.EofPacket{Header: protocol.EOF_MARKER, StatusFlags: protocol.SERVER_STATUS_AUTOCOMMIT}
	return s.write(eof.MarshalPayload())
}

func (s *session) serve() {
	defer s.conn.Close()

	if !s.handshake() {
		return
	}

	for {
		pkt, err := protocol.ReadPacket(s.conn)
		if err != nil {
			return
		}
		s.seq = pkt.SequenceID + 1
		if len(pkt.Payload) == 0 {
			return
		}
		if !s.dispatch(pkt.Payload) {
			return
		}
	}
}

func (s *session) handshake() bool {
	srv := s.srv
	hs := protocol.HandshakeV10Packet{
		ProtocolVersion:     10,
		ServerVersion:       srv.ServerVersion,
		ThreadID:            s.threadID,
		AuthPluginDataPart:  srv.salt[:8],
		CapabilityFlags1:    uint16(serverCapabilities & 0xffff),
		CharacterSet:        45, // utf8mb4_general_ci
		StatusFlags:         protocol.SERVER_STATUS_AUTOCOMMIT,
		CapabilityFlags2:    uint16(serverCapabilities >> 16),
		AuthPluginDataPart2: srv.salt[8:],
		AuthPluginName:      auth.NativePassword,
	}
	s.seq = 0
	if s.write(hs.MarshalPayload()) != nil {
		return false
	}

	pkt, err := protocol.ReadPacket(s.conn)
	if err != nil {
		return false
	}
	s.seq = pkt.SequenceID + 1

	var resp protocol.HandshakeResponse
	if err := resp.UnmarshalPayload(pkt.Payload); err != nil {
		s.writeErr(1043, "malformed handshake response")
		return false
	}
	if resp.User != srv.User || !auth.Verify(srv.storedHash(), resp.AuthResponse, srv.salt) {
		s.writeErr(1045, "Access denied for user '"+resp.User+"'")
		return false
	}
	if resp.Database != "" && !s.srv.hasDatabase(resp.Database) {
		s.writeErr(1049, "Unknown database '"+resp.Database+"'")
		return false
	}
	return s.writeOK(0, 0) == nil
}

const serverCapabilities = protocol.CLIENT_LONG_PASSWORD |
	protocol.CLIENT_PROTOCOL_41 |
	protocol.CLIENT_TRANSACTIONS |
	protocol.CLIENT_SECURE_CONNECTION |
	protocol.CLIENT_PLUGIN_AUTH |
	protocol.CLIENT_CONNECT_WITH_DB |
	protocol.CLIENT_CONNECT_ATTRS |
	protocol.CLIENT_PLUGIN_AUTH_LENENC_CLIENT_DATA

func (s *Server) hasDatabase(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, db := range s.databases {
		if db == name {
			return true
		}
	}
	return false
}

// dispatch handles one command. Returning false ends the session.
func (s *session) dispatch(payload []byte) bool {
	switch payload[0] {
	case protocol.COM_QUIT:
		return false

	case protocol.COM_PING:
		s.writeOK(0, 0)

	case protocol.COM_STATISTICS:
		s.write([]byte(s.srv.Stats))

	case protocol.COM_INIT_DB:
		var p protocol.ComInitDBPacket
		if p.UnmarshalPayload(payload) != nil {
			s.writeErr(1064, "malformed COM_INIT_DB")
			return true
		}
		if !s.srv.hasDatabase(p.Database) {
			s.writeErr(1049, "Unknown database '"+p.Database+"'")
			return true
		}
		s.writeOK(0, 0)

	case protocol.COM_CHANGE_USER:
		var p protocol.ComChangeUserPacket
		if p.UnmarshalPayload(payload) != nil {
			s.writeErr(1064, "malformed COM_CHANGE_USER")
			return true
		}
		if p.User != s.srv.User || !auth.Verify(s.srv.storedHash(), p.AuthResponse, s.srv.salt) {
			s.writeErr(1045, "Access denied for user '"+p.User+"'")
			return true
		}
		s.stmts = map[uint32]*preparedStmt{}
		s.writeOK(0, 0)

	case protocol.COM_QUERY:
		var p protocol.ComQueryPacket
		if p.UnmarshalPayload(payload) != nil {
			s.writeErr(1064, "malformed COM_QUERY")
			return true
		}
		s.handleQuery(p.Query)

	case protocol.COM_STMT_PREPARE:
		var p protocol.ComStmtPreparePacket
		if p.UnmarshalPayload(payload) != nil {
			s.writeErr(1064, "malformed COM_STMT_PREPARE")
			return true
		}
		s.handlePrepare(p.Query)

	case protocol.COM_STMT_EXECUTE:
		s.handleExecute(payload)

	case protocol.COM_STMT_RESET:
		var p protocol.ComStmtResetPacket
		if p.UnmarshalPayload(payload) != nil {
			s.writeErr(1064, "malformed COM_STMT_RESET")
			return true
		}
		if _, ok := s.stmts[p.StatementID]; !ok {
			s.writeErr(1243, "Unknown prepared statement handler")
			return true
		}
		s.writeOK(0, 0)

	case protocol.COM_STMT_CLOSE:
		var p protocol.ComStmtClosePacket
		if p.UnmarshalPayload(payload) == nil {
			delete(s.stmts, p.StatementID)
		}
		// no response by protocol

	default:
		s.writeErr(1047, "Unknown command "+protocol.CommandName(payload[0]))
	}
	return true
}

func (s *session) handleQuery(query string) {
	srv := s.srv

	if m := showDatabasesRE.FindStringSubmatch(query); m != nil {
		srv.mu.Lock()
		var names []string
		for _, db := range srv.databases {
			if m[1] == "" || likeMatch(m[1], db) {
				names = append(names, db)
			}
		}
		srv.mu.Unlock()

		result := Table{
			Columns: []Column{{Name: "Database", Type: protocol.MYSQL_TYPE_VAR_STRING}},
		}
		for _, name := range names {
			result.Rows = append(result.Rows, []Cell{C(name)})
		}
		s.writeTextResult(&result)
		return
	}

	srv.mu.Lock()
	canned, isCanned := srv.canned[query]
	srv.mu.Unlock()
	if isCanned {
		s.writeTextResult(canned)
		return
	}

	if m := selectAllRE.FindStringSubmatch(query); m != nil && m[2] == "" {
		srv.mu.Lock()
		table, ok := srv.tables[m[1]]
		srv.mu.Unlock()
		if !ok {
			s.writeErr(1146, "Table '"+m[1]+"' doesn't exist")
			return
		}
		s.writeTextResult(table)
		return
	}

	if dmlPrefixRE.MatchString(query) {
		s.writeOK(1, 0)
		return
	}

	s.writeErr(1064, "You have an error in your SQL syntax near '"+query+"'")
}

func (s *session) handlePrepare(query string) {
	paramCount := strings.Count(query, "?")

	stmt := &preparedStmt{kind: stmtOther, paramCount: paramCount}
	var columns []Column

	if m := selectAllRE.FindStringSubmatch(query); m != nil {
		s.srv.mu.Lock()
		table, ok := s.srv.tables[m[1]]
		s.srv.mu.Unlock()
		if !ok {
			s.writeErr(1146, "Table '"+m[1]+"' doesn't exist")
			return
		}
		stmt.kind = stmtSelect
		stmt.table = m[1]
		stmt.whereCol = m[2]
		columns = table.Columns
	} else if m := insertRE.FindStringSubmatch(query); m != nil {
		s.srv.mu.Lock()
		_, ok := s.srv.tables[m[1]]
		s.srv.mu.Unlock()
		if !ok {
			s.writeErr(1146, "Table '"+m[1]+"' doesn't exist")
			return
		}
		stmt.kind = stmtInsert
		stmt.table = m[1]
	}

	s.srv.mu.Lock()
	s.srv.nextStmt++
	id := s.srv.nextStmt
	s.srv.mu.Unlock()
	s.stmts[id] = stmt

	ok := protocol.StmtPrepareOK{
		StatementID: id,
		ColumnCount: uint16(len(columns)),
		ParamCount:  uint16(stmt.paramCount),
	}
	if s.write(ok.MarshalPayload()) != nil {
		return
	}
	if stmt.paramCount > 0 {
		for i := 0; i < stmt.paramCount; i++ {
			meta := protocol.FieldMeta{
				Catalog: "def",
				Name:    "?",
				Type:    protocol.MYSQL_TYPE_VAR_STRING,
			}
			if s.write(meta.MarshalPayload()) != nil {
				return
			}
		}
		if s.writeEOF() != nil {
			return
		}
	}
	if len(columns) > 0 {
		s.writeColumns(stmt.table, columns)
	}
}

func (s *session) handleExecute(payload []byte) {
	// the execute payload cannot be parsed without the statement's param
	// count, so peel the statement id first
	var probe protocol.ComStmtExecutePacket
	if err := probe.UnmarshalPayload(payload, 0); err != nil {
		s.writeErr(1064, "malformed COM_STMT_EXECUTE")
		return
	}
	stmt, ok := s.stmts[probe.StatementID]
	if !ok {
		s.writeErr(1243, "Unknown prepared statement handler")
		return
	}

	var exec protocol.ComStmtExecutePacket
	if err := exec.UnmarshalPayload(payload, stmt.paramCount); err != nil {
		s.writeErr(1064, "malformed COM_STMT_EXECUTE parameters")
		return
	}

	switch stmt.kind {
	case stmtSelect:
		s.srv.mu.Lock()
		table := s.srv.tables[stmt.table]
		s.srv.mu.Unlock()
		if table == nil {
			s.writeErr(1146, "Table '"+stmt.table+"' doesn't exist")
			return
		}
		rows := table.Rows
		if stmt.whereCol != "" {
			rows = filterRows(table, stmt.whereCol, exec.Params[0])
		}
		s.writeBinaryResult(table, rows)

	case stmtInsert:
		s.srv.mu.Lock()
		table := s.srv.tables[stmt.table]
		if table != nil {
			row := make([]Cell, len(exec.Params))
			for i, p := range exec.Params {
				if p == nil {
					row[i] = Null()
				} else {
					row[i] = C(string(p))
				}
			}
			table.Rows = append(table.Rows, row)
		}
		s.srv.mu.Unlock()
		s.writeOK(1, 0)

	default:
		s.writeOK(0, 0)
	}
}

func filterRows(table *Table, col string, want []byte) [][]Cell {
	idx := -1
	for i, c := range table.Columns {
		if c.Name == col {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	var out [][]Cell
	for _, row := range table.Rows {
		cell := row[idx]
		if want == nil {
			if cell.Null {
				out = append(out, row)
			}
		} else if !cell.Null && cell.Text == string(want) {
			out = append(out, row)
		}
	}
	return out
}

func (s *session) columnMeta(table string, col Column) protocol.FieldMeta {
	cs := col.Charset
	if cs == 0 {
		cs = 45 // utf8mb4_general_ci
	}
	return protocol.FieldMeta{
		Catalog:      "def",
		Schema:       "test",
		Table:        table,
		OrgTable:     table,
		Name:         col.Name,
		OrgName:      col.Name,
		CharacterSet: cs,
		ColumnLength: 255,
		Type:         col.Type,
		Flags:        col.Flags,
	}
}

func (s *session) writeColumns(table string, columns []Column) error {
	for _, col := range columns {
		meta := s.columnMeta(table, col)
		if err := s.write(meta.MarshalPayload()); err != nil {
			return err
		}
	}
	return s.writeEOF()
}

func (s *session) writeTextResult(table *Table) {
	if s.write(protocol.ColumnCountPayload(uint64(len(table.Columns)))) != nil {
		return
	}
	if s.writeColumns(table.Name, table.Columns) != nil {
		return
	}
	for _, row := range table.Rows {
		values := make([][]byte, len(row))
		for i, cell := range row {
			if !cell.Null {
				values[i] = []byte(cell.Text)
			}
		}
		if s.write(protocol.MarshalTextRow(values)) != nil {
			return
		}
	}
	s.writeEOF()
}

func (s *session) writeBinaryResult(table *Table, rows [][]Cell) {
	if s.write(protocol.ColumnCountPayload(uint64(len(table.Columns)))) != nil {
		return
	}
	if s.writeColumns(table.Name, table.Columns) != nil {
		return
	}

	types := make([]uint8, len(table.Columns))
	flags := make([]uint16, len(table.Columns))
	for i, col := range table.Columns {
		types[i] = col.Type
		flags[i] = col.Flags
	}

	for _, row := range rows {
		values := make([][]byte, len(row))
		for i, cell := range row {
			if !cell.Null {
				values[i] = []byte(cell.Text)
			}
		}
		payload, err := protocol.MarshalBinaryRow(types, flags, values)
		if err != nil {
			s.writeErr(1105, "cannot encode row: "+err.Error())
			return
		}
		if s.write(payload) != nil {
			return
		}
	}
	s.writeEOF()
}

// likeMatch implements SQL LIKE with % and _ wildcards.
func likeMatch(pattern, name string) bool {
	var re strings.Builder
	re.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '%':
			re.WriteString(".*")
		case '_':
			re.WriteString(".")
		default:
			re.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	re.WriteString("$")
	matched, err := regexp.MatchString(re.String(), name)
	return err == nil && matched
}
