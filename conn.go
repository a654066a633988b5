// Package myclient is a client driver for MySQL-protocol servers. It
// speaks protocol 4.1 over TCP, buffers query results in memory, and
// exposes prepared statements over the binary protocol.
package myclient

import (
	"fmt"
	"net"
	"os/user"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sqlwire/myclient/auth"
	"github.com/sqlwire/myclient/charset"
	"github.com/sqlwire/myclient/protocol"
)

// ClientVersion identifies this library in connection attributes.
const ClientVersion = "myclient/1.0"

const (
	defaultHost      = "127.0.0.1"
	defaultPort      = 3306
	maxPacketSize    = 16 * 1024 * 1024
	clientCapability = protocol.CLIENT_LONG_PASSWORD |
		protocol.CLIENT_PROTOCOL_41 |
		protocol.CLIENT_TRANSACTIONS |
		protocol.CLIENT_SECURE_CONNECTION |
		protocol.CLIENT_PLUGIN_AUTH |
		protocol.CLIENT_CONNECT_ATTRS |
		protocol.CLIENT_PLUGIN_AUTH_LENENC_CLIENT_DATA
)

// Logger receives protocol-level trace lines. The zero configuration is
// silent.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Options configures Connect. Zero values take defaults: 127.0.0.1:3306
// and the operating system user name.
type Options struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	DialTimeout time.Duration
	Logger      Logger
	Attributes  map[string]string
}

// Conn is one client session. A Conn serializes commands internally; it
// is safe for concurrent use, with operations queuing on the session.
type Conn struct {
	mu   sync.Mutex
	sock net.Conn
	open bool
	log  Logger

	seq uint8

	serverVersion string
	protoVersion  uint8
	threadID      uint32
	serverCaps    uint32
	hostInfo      string
	authSeed      []byte
	password      string

	affectedRows uint64
	insertID     uint64
	warnings     uint16

	lastErrno uint16
	lastError string
	hasError  bool
}

// Connect dials the server, performs the handshake and authenticates.
// The call blocks until the session is usable or failed.
func Connect(opts Options) (*Conn, error) {
	if opts.Host == "" {
		opts.Host = defaultHost
	}
	if opts.Port == 0 {
		opts.Port = defaultPort
	}
	if opts.User == "" {
		if u, err := user.Current(); err == nil {
			opts.User = u.Username
		}
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}

	addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	sock, err := net.DialTimeout("tcp", addr, opts.DialTimeout)
	if err != nil {
		return nil, &ConnError{Message: "dial " + addr + ": " + err.Error(), cause: err}
	}

	c := &Conn{
		sock:     sock,
		open:     true,
		log:      opts.Logger,
		password: opts.Password,
		hostInfo: opts.Host + " via TCP/IP",
	}
	if err := c.handshake(opts); err != nil {
		sock.Close()
		return nil, err
	}
	c.log.Printf("connected to %s (server %s, thread %d)", addr, c.serverVersion, c.threadID)
	return c, nil
}

func (c *Conn) handshake(opts Options) error {
	pkt, err := protocol.ReadPacket(c.sock)
	if err != nil {
		return &ConnError{Message: "reading handshake: " + err.Error(), cause: err}
	}
	if protocol.IsErr(pkt.Payload) {
		var ep protocol.ErrPacket
		if err := ep.UnmarshalPayload(pkt.Payload); err != nil {
			return &ConnError{Message: "malformed handshake refusal", cause: err}
		}
		return &ConnError{Code: ep.ErrorCode, Message: ep.ErrorMessage}
	}

	var hs protocol.HandshakeV10Packet
	if err := hs.UnmarshalPayload(pkt.Payload); err != nil {
		return &ConnError{Message: "malformed handshake: " + err.Error(), cause: err}
	}
	c.serverVersion = hs.ServerVersion
	c.protoVersion = hs.ProtocolVersion
	c.threadID = hs.ThreadID
	c.serverCaps = hs.Capabilities()
	c.authSeed = hs.AuthSeed()

	caps := uint32(clientCapability) & c.serverCaps
	if opts.Database != "" {
		caps |= protocol.CLIENT_CONNECT_WITH_DB
	}

	attrs := []protocol.ConnectionAttribute{
		{Name: "_client_name", Value: "myclient"},
		{Name: "_client_version", Value: ClientVersion},
		{Name: "_client_id", Value: uuid.NewString()},
	}
	for name, value := range opts.Attributes {
		attrs = append(attrs, protocol.ConnectionAttribute{Name: name, Value: value})
	}

	resp := protocol.HandshakeResponse{
		ClientCapabilities: caps,
		MaxPacketSize:      maxPacketSize,
		CharacterSet:       charset.Default,
		User:               opts.User,
		AuthResponse:       auth.Scramble(opts.Password, c.authSeed),
		Database:           opts.Database,
		AuthPluginName:     auth.NativePassword,
	}
	if caps&protocol.CLIENT_CONNECT_ATTRS != 0 {
		resp.Attributes = attrs
	}
	if err := protocol.WritePacket(c.sock, pkt.SequenceID+1, resp.MarshalPayload()); err != nil {
		return &ConnError{Message: "writing handshake response: " + err.Error(), cause: err}
	}

	reply, err := protocol.ReadPacket(c.sock)
	if err != nil {
		return &ConnError{Message: "reading auth result: " + err.Error(), cause: err}
	}
	if protocol.IsErr(reply.Payload) {
		var ep protocol.ErrPacket
		if err := ep.UnmarshalPayload(reply.Payload); err != nil {
			return &ConnError{Message: "malformed auth refusal", cause: err}
		}
		return &ConnError{Code: ep.ErrorCode, Message: ep.ErrorMessage}
	}
	if !protocol.IsOK(reply.Payload) {
		return &ConnError{Message: "unexpected auth reply"}
	}
	return nil
}

// sendCommand writes one command payload, resetting the packet sequence
// as every command does. Oversized payloads are split into continuation
// packets. Callers hold c.mu.
func (c *Conn) sendCommand(payload []byte) error {
	c.log.Printf("-> %s (%d bytes)", protocol.CommandName(payload[0]), len(payload))
	seq, err := protocol.WritePayload(c.sock, 0, payload)
	if err != nil {
		c.teardown()
		return err
	}
	c.seq = seq
	return nil
}

// readPayload reads one logical response, joining continuation packets
// and tracking sequence. Callers hold c.mu.
func (c *Conn) readPayload() ([]byte, error) {
	payload, seq, err := protocol.ReadPayload(c.sock)
	if err != nil {
		c.teardown()
		return nil, err
	}
	c.seq = seq
	return payload, nil
}

// teardown closes the socket after an I/O failure. The session cannot be
// resynchronized once framing is lost. Callers hold c.mu.
func (c *Conn) teardown() {
	if c.open {
		c.sock.Close()
		c.open = false
	}
}

func (c *Conn) recordError(code uint16, msg string) {
	c.lastErrno = code
	c.lastError = msg
	c.hasError = true
}

func (c *Conn) clearError() {
	c.lastErrno = 0
	c.lastError = ""
	c.hasError = false
}

func (c *Conn) noteOK(ok *protocol.OkPacket) {
	c.affectedRows = ok.AffectedRows
	c.insertID = ok.LastInsertId
	c.warnings = ok.Warnings
}

// simpleCommand sends a command whose response is a single OK or ERR.
// Callers hold c.mu.
func (c *Conn) simpleCommand(payload []byte) error {
	c.clearError()
	if err := c.sendCommand(payload); err != nil {
		return err
	}
	payload, err := c.readPayload()
	if err != nil {
		return err
	}
	if protocol.IsErr(payload) {
		var ep protocol.ErrPacket
		if err := ep.UnmarshalPayload(payload); err != nil {
			return err
		}
		c.recordError(ep.ErrorCode, ep.ErrorMessage)
		return &QueryError{Code: ep.ErrorCode, Message: ep.ErrorMessage}
	}
	var ok protocol.OkPacket
	if err := ok.UnmarshalPayload(payload); err != nil {
		return err
	}
	c.noteOK(&ok)
	return nil
}

// Ping checks the session with COM_PING.
func (c *Conn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrClosedConn
	}
	ping := protocol.ComPingPacket{}
	return c.simpleCommand(ping.MarshalPayload())
}

// SelectDB switches the session's default database with COM_INIT_DB.
func (c *Conn) SelectDB(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrClosedConn
	}
	initDB := protocol.ComInitDBPacket{Database: name}
	return c.simpleCommand(initDB.MarshalPayload())
}

// ChangeUser reauthenticates the session as a different user, optionally
// switching databases. The server resets session state on success.
func (c *Conn) ChangeUser(username, password, database string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrClosedConn
	}
	cu := protocol.ComChangeUserPacket{
		User:           username,
		AuthResponse:   auth.Scramble(password, c.authSeed),
		Database:       database,
		CharacterSet:   charset.Default,
		AuthPluginName: auth.NativePassword,
	}
	if err := c.simpleCommand(cu.MarshalPayload()); err != nil {
		return err
	}
	c.password = password
	return nil
}

// Statistics returns the server's one-line statistics string
// (COM_STATISTICS). Unlike other commands the response is bare text.
func (c *Conn) Statistics() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return "", ErrClosedConn
	}
	c.clearError()
	stats := protocol.ComStatisticsPacket{}
	if err := c.sendCommand(stats.MarshalPayload()); err != nil {
		return "", err
	}
	payload, err := c.readPayload()
	if err != nil {
		return "", err
	}
	if protocol.IsErr(payload) {
		var ep protocol.ErrPacket
		if err := ep.UnmarshalPayload(payload); err != nil {
			return "", err
		}
		c.recordError(ep.ErrorCode, ep.ErrorMessage)
		return "", &QueryError{Code: ep.ErrorCode, Message: ep.ErrorMessage}
	}
	return string(payload), nil
}

// Close sends COM_QUIT and releases the socket. Safe to call more than
// once; later calls are no-ops.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil
	}
	// best effort: the server may already have hung up
	quit := protocol.ComQuitPacket{}
	c.seq = 0
	protocol.WritePacket(c.sock, c.seq, quit.MarshalPayload())
	err := c.sock.Close()
	c.open = false
	return err
}

// ListDBs lists database names, optionally filtered by a LIKE pattern.
// Returns nil when nothing matches.
func (c *Conn) ListDBs(pattern string) ([]string, error) {
	sql := "SHOW DATABASES"
	if pattern != "" {
		sql += " LIKE '" + EscapeString(pattern) + "'"
	}
	res, err := c.Query(sql)
	if err != nil {
		return nil, err
	}
	var names []string
	for {
		row, err := res.Fetch()
		if err != nil {
			return nil, err
		}
		if row == nil {
			break
		}
		if len(row) > 0 && !row[0].Null {
			names = append(names, row[0].String())
		}
	}
	return names, nil
}

// LastError returns the last server error text on this session and
// whether one is pending. Any successful command clears it.
func (c *Conn) LastError() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError, c.hasError
}

// Status returns the errno of the last server error, or 0.
func (c *Conn) Status() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErrno
}

// AffectedRows returns the row count reported by the last OK response.
func (c *Conn) AffectedRows() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.affectedRows
}

// InsertID returns the auto-increment id from the last OK response.
func (c *Conn) InsertID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertID
}

// WarningCount returns the warning count from the last OK response.
func (c *Conn) WarningCount() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.warnings
}

// ServerVersion returns the version string from the handshake.
func (c *Conn) ServerVersion() string { return c.serverVersion }

// ProtocolVersion returns the wire protocol version, 10 for every
// modern server.
func (c *Conn) ProtocolVersion() uint8 { return c.protoVersion }

// HostInfo describes the transport, mirroring mysql_get_host_info.
func (c *Conn) HostInfo() string { return c.hostInfo }

// ThreadID returns the server-side session id from the handshake.
func (c *Conn) ThreadID() uint32 { return c.threadID }
