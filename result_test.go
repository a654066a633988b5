package myclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlwire/myclient/mysqltest"
	"github.com/sqlwire/myclient/protocol"
)

func fetchAll(t *testing.T, res *Result) [][]Value {
	t.Helper()
	var rows [][]Value
	for {
		row, err := res.Fetch()
		require.NoError(t, err)
		if row == nil {
			return rows
		}
		rows = append(rows, row)
	}
}

func TestQueryBufferedResult(t *testing.T) {
	srv := startServer(t)
	seedUsers(srv)
	conn := connectTo(t, srv)

	res, err := conn.Query("SELECT * FROM users")
	require.NoError(t, err)

	assert.Equal(t, int64(3), res.RowCount())
	assert.Equal(t, 3, res.ColumnCount())
	assert.Equal(t, uint64(3), conn.AffectedRows())

	rows := fetchAll(t, res)
	require.Len(t, rows, 3)
	assert.Equal(t, "1", rows[0][0].String())
	assert.Equal(t, "ada", rows[0][1].String())
	assert.Equal(t, "first", rows[0][2].String())

	// NULL is flagged, empty string is not
	assert.True(t, rows[1][2].Null)
	assert.False(t, rows[2][2].Null)
	assert.Empty(t, rows[2][2].Data)

	// past the end every Fetch keeps returning nil
	row, err := res.Fetch()
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestResultSeek(t *testing.T) {
	srv := startServer(t)
	seedUsers(srv)
	conn := connectTo(t, srv)

	res, err := conn.Query("SELECT * FROM users")
	require.NoError(t, err)

	require.NoError(t, res.Seek(2))
	row, err := res.Fetch()
	require.NoError(t, err)
	assert.Equal(t, "3", row[0].String())

	require.NoError(t, res.Seek(0))
	row, err = res.Fetch()
	require.NoError(t, err)
	assert.Equal(t, "1", row[0].String())

	assert.ErrorIs(t, res.Seek(-1), ErrRange)
	assert.ErrorIs(t, res.Seek(3), ErrRange)
}

func TestResultFields(t *testing.T) {
	srv := startServer(t)
	seedUsers(srv)
	conn := connectTo(t, srv)

	res, err := conn.Query("SELECT * FROM users")
	require.NoError(t, err)

	fields := res.Fields()
	require.Len(t, fields, 3)
	assert.Equal(t, "id", fields[0].Name)
	assert.Equal(t, TypeInt, fields[0].Type)
	assert.Equal(t, "users", fields[0].Table)
	assert.NotZero(t, fields[0].Flags&protocol.NOT_NULL_FLAG)
	assert.Equal(t, TypeString, fields[1].Type)

	f, ok := res.NextField()
	require.True(t, ok)
	assert.Equal(t, "id", f.Name)
	f, ok = res.NextField()
	require.True(t, ok)
	assert.Equal(t, "name", f.Name)

	// FieldAt does not disturb the cursor
	byIdx, ok := res.FieldAt(0)
	require.True(t, ok)
	assert.Equal(t, "id", byIdx.Name)
	_, ok = res.FieldAt(7)
	assert.False(t, ok)

	f, ok = res.NextField()
	require.True(t, ok)
	assert.Equal(t, "note", f.Name)
	_, ok = res.NextField()
	assert.False(t, ok)
}

func TestExecRowlessStatement(t *testing.T) {
	srv := startServer(t)
	conn := connectTo(t, srv)

	res, err := conn.Exec("CREATE TABLE t (id INT)")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ColumnCount())
	assert.Equal(t, int64(0), res.RowCount())
	assert.Equal(t, uint64(1), conn.AffectedRows())

	_, err = res.Fetch()
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestQueryServerError(t *testing.T) {
	srv := startServer(t)
	conn := connectTo(t, srv)

	_, err := conn.Query("SELECT * FROM missing")
	var qe *QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, uint16(1146), qe.Code)

	msg, pending := conn.LastError()
	assert.True(t, pending)
	assert.Contains(t, msg, "missing")
}

func TestQueryCharsetDecoding(t *testing.T) {
	srv := startServer(t)
	srv.Seed(mysqltest.Table{
		Name: "menu",
		Columns: []mysqltest.Column{
			// latin1_swedish_ci
			{Name: "item", Type: protocol.MYSQL_TYPE_VAR_STRING, Charset: 8},
		},
		Rows: [][]mysqltest.Cell{
			{mysqltest.C("caf\xe9")},
		},
	})
	conn := connectTo(t, srv)

	res, err := conn.Query("SELECT * FROM menu")
	require.NoError(t, err)

	rows := fetchAll(t, res)
	require.Len(t, rows, 1)
	assert.Equal(t, "café", rows[0][0].String())
}

func TestQueryCannedResult(t *testing.T) {
	srv := startServer(t)
	srv.Canned("SELECT VERSION()", mysqltest.Table{
		Columns: []mysqltest.Column{{Name: "VERSION()", Type: protocol.MYSQL_TYPE_VAR_STRING}},
		Rows:    [][]mysqltest.Cell{{mysqltest.C("8.0.0-mysqltest")}},
	})
	conn := connectTo(t, srv)

	res, err := conn.Query("SELECT VERSION()")
	require.NoError(t, err)
	rows := fetchAll(t, res)
	require.Len(t, rows, 1)
	assert.Equal(t, "8.0.0-mysqltest", rows[0][0].String())
}
