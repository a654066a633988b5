// Package mysqltest runs an in-process MySQL-protocol server for driver
// tests: real TCP, real handshake and auth, seedable in-memory tables,
// and traffic counters for asserting that an operation stayed local.
package mysqltest

import (
	"crypto/rand"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sqlwire/myclient/auth"
)

// Cell is one seeded table cell.
type Cell struct {
	Null bool
	Text string
}

// C makes a non-NULL cell.
func C(text string) Cell {
	return Cell{Text: text}
}

// Null makes a NULL cell.
func Null() Cell {
	return Cell{Null: true}
}

// Column describes a seeded column. Type is a MYSQL_TYPE_* byte; zero
// Charset means utf8mb4.
type Column struct {
	Name    string
	Type    uint8
	Flags   uint16
	Charset uint16
}

// Table is a seedable in-memory table.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]Cell
}

// Server is the test server. Configure it, call Start, point the driver
// at Addr(), and Stop when done.
type Server struct {
	// credentials clients must present; empty password means none
	User     string
	Password string

	// ServerVersion reported in the handshake
	ServerVersion string

	// Stats returned for COM_STATISTICS
	Stats string

	listener net.Listener
	salt     []byte
	quit     chan struct{}
	wg       sync.WaitGroup

	mu        sync.Mutex
	started   bool
	tables    map[string]*Table
	databases []string
	canned    map[string]*Table
	nextStmt  uint32
	threadSeq uint32

	bytesIn  atomic.Int64
	bytesOut atomic.Int64
}

// NewServer returns an unstarted server with root/no-password auth and
// a "test" database.
func NewServer() *Server {
	return &Server{
		User:          "root",
		ServerVersion: "8.0.0-mysqltest",
		Stats:         "Uptime: 1  Threads: 1  Questions: 0  Slow queries: 0",
		tables:        map[string]*Table{},
		canned:        map[string]*Table{},
		databases:     []string{"information_schema", "test"},
		quit:          make(chan struct{}),
	}
}

// Start listens on an ephemeral localhost port and begins accepting.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("mysqltest: server already started")
	}

	salt := make([]byte, 20)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	// the scramble travels as a NUL-terminated string; keep NUL out
	for i := range salt {
		if salt[i] == 0 {
			salt[i] = 1
		}
	}
	s.salt = salt

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	s.listener = listener
	s.started = true

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and waits for live sessions to finish.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.quit)
	s.listener.Close()
	s.mu.Unlock()
	s.wg.Wait()
}

// Addr returns the listen address, valid after Start.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Port returns the listen port, valid after Start.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Seed installs or replaces a table.
func (s *Server) Seed(t Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := t
	s.tables[t.Name] = &copied
}

// AddDatabase adds a name to the SHOW DATABASES listing.
func (s *Server) AddDatabase(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.databases = append(s.databases, name)
}

// Canned registers a fixed result for an exact query string, covering
// SELECTs the tiny built-in dialect cannot serve.
func (s *Server) Canned(query string, result Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := result
	s.canned[query] = &copied
}

// TableRows returns a snapshot of a seeded table's rows, for asserting
// on prepared INSERTs.
func (s *Server) TableRows(name string) [][]Cell {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		return nil
	}
	rows := make([][]Cell, len(t.Rows))
	copy(rows, t.Rows)
	return rows
}

// BytesRead returns the total bytes clients have sent the server. A
// driver operation that must not touch the network leaves it unchanged.
func (s *Server) BytesRead() int64 {
	return s.bytesIn.Load()
}

// BytesWritten returns the total bytes the server has sent clients.
func (s *Server) BytesWritten() int64 {
	return s.bytesOut.Load()
}

func (s *Server) storedHash() string {
	return auth.HashPassword(s.Password)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				continue
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess := newSession(s, conn)
			sess.serve()
		}()
	}
}

// countingConn tallies traffic so tests can prove an operation never
// reached the server.
type countingConn struct {
	net.Conn
	in  *atomic.Int64
	out *atomic.Int64
}

func (c *countingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.in.Add(int64(n))
	return n, err
}

func (c *countingConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	c.out.Add(int64(n))
	return n, err
}
