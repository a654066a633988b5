package myclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlwire/myclient/mysqltest"
	"github.com/sqlwire/myclient/protocol"
)

func TestPrepareMetadata(t *testing.T) {
	srv := startServer(t)
	seedUsers(srv)
	conn := connectTo(t, srv)

	stmt, err := conn.Prepare("SELECT * FROM users WHERE id = ?")
	require.NoError(t, err)
	defer stmt.Close()

	assert.Equal(t, 1, stmt.ParamCount())
	assert.Equal(t, 3, stmt.ColumnCount())
}

func TestPrepareUnknownTable(t *testing.T) {
	srv := startServer(t)
	conn := connectTo(t, srv)

	_, err := conn.Prepare("SELECT * FROM missing WHERE id = ?")
	var pe *PrepareError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, uint16(1146), pe.Code)
}

func TestExecuteParamCountMismatch(t *testing.T) {
	srv := startServer(t)
	seedUsers(srv)
	conn := connectTo(t, srv)

	stmt, err := conn.Prepare("SELECT * FROM users WHERE id = ?")
	require.NoError(t, err)
	defer stmt.Close()

	before := srv.BytesRead()

	_, err = stmt.Execute(nil)
	var pce *ParamCountError
	require.ErrorAs(t, err, &pce)
	assert.Equal(t, 1, pce.Expected)
	assert.Equal(t, 0, pce.Got)

	_, err = stmt.Execute([]Value{StringValue("1"), StringValue("2")})
	require.ErrorAs(t, err, &pce)
	assert.Equal(t, 2, pce.Got)

	// the mismatch is caught before any byte goes out
	assert.Equal(t, before, srv.BytesRead())
}

func TestExecuteSelect(t *testing.T) {
	srv := startServer(t)
	seedUsers(srv)
	conn := connectTo(t, srv)

	stmt, err := conn.Prepare("SELECT * FROM users WHERE id = ?")
	require.NoError(t, err)
	defer stmt.Close()

	rows, err := stmt.Execute([]Value{StringValue("2")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows.RowCount())

	row, err := rows.Fetch()
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "2", row[0].String())
	assert.Equal(t, "brian", row[1].String())
	assert.True(t, row[2].Null)

	row, err = rows.Fetch()
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestExecuteNullVersusEmpty(t *testing.T) {
	srv := startServer(t)
	seedUsers(srv)
	conn := connectTo(t, srv)

	stmt, err := conn.Prepare("SELECT * FROM users")
	require.NoError(t, err)
	defer stmt.Close()

	rows, err := stmt.Execute(nil)
	require.NoError(t, err)

	var fetched [][]Value
	for {
		row, err := rows.Fetch()
		require.NoError(t, err)
		if row == nil {
			break
		}
		fetched = append(fetched, row)
	}
	require.Len(t, fetched, 3)

	// NULL comes from the row bitmap; a zero-length value stays non-NULL
	assert.True(t, fetched[1][2].Null)
	assert.False(t, fetched[2][2].Null)
	assert.Empty(t, fetched[2][2].Data)
}

func TestExecuteNullParameter(t *testing.T) {
	srv := startServer(t)
	seedUsers(srv)
	conn := connectTo(t, srv)

	stmt, err := conn.Prepare("SELECT * FROM users WHERE note = ?")
	require.NoError(t, err)
	defer stmt.Close()

	rows, err := stmt.Execute([]Value{NullValue()})
	require.NoError(t, err)

	row, err := rows.Fetch()
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "brian", row[1].String())
}

func TestReExecuteInvalidatesRows(t *testing.T) {
	srv := startServer(t)
	seedUsers(srv)
	conn := connectTo(t, srv)

	stmt, err := conn.Prepare("SELECT * FROM users WHERE id = ?")
	require.NoError(t, err)
	defer stmt.Close()

	first, err := stmt.Execute([]Value{StringValue("1")})
	require.NoError(t, err)

	second, err := stmt.Execute([]Value{StringValue("2")})
	require.NoError(t, err)

	_, err = first.Fetch()
	var ee *ExecError
	assert.ErrorAs(t, err, &ee)

	row, err := second.Fetch()
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "2", row[0].String())
}

func TestExecuteInsert(t *testing.T) {
	srv := startServer(t)
	seedUsers(srv)
	conn := connectTo(t, srv)

	stmt, err := conn.Prepare("INSERT INTO users VALUES (?, ?, ?)")
	require.NoError(t, err)
	defer stmt.Close()

	assert.Equal(t, 3, stmt.ParamCount())
	assert.Equal(t, 0, stmt.ColumnCount())

	rows, err := stmt.Execute([]Value{StringValue("4"), StringValue("dana"), NullValue()})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), conn.AffectedRows())

	_, err = rows.Fetch()
	assert.ErrorIs(t, err, ErrNoResult)

	stored := srv.TableRows("users")
	require.Len(t, stored, 4)
	assert.Equal(t, "dana", stored[3][1].Text)
	assert.True(t, stored[3][2].Null)
}

func TestInsertThenSelectRoundTrip(t *testing.T) {
	srv := startServer(t)
	seedUsers(srv)
	conn := connectTo(t, srv)

	ins, err := conn.Prepare("INSERT INTO users VALUES (?, ?, ?)")
	require.NoError(t, err)
	defer ins.Close()

	_, err = ins.Execute([]Value{StringValue("9"), StringValue("erin"), NullValue()})
	require.NoError(t, err)
	_, err = ins.Execute([]Value{StringValue("10"), StringValue("füŕy"), StringValue("")})
	require.NoError(t, err)

	// everything inserted must come back through a fresh statement
	// byte-for-byte, NULLs included
	sel, err := conn.Prepare("SELECT * FROM users WHERE id = ?")
	require.NoError(t, err)
	defer sel.Close()

	rows, err := sel.Execute([]Value{StringValue("9")})
	require.NoError(t, err)
	row, err := rows.Fetch()
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, []byte("9"), row[0].Data)
	assert.Equal(t, []byte("erin"), row[1].Data)
	assert.True(t, row[2].Null)

	rows, err = sel.Execute([]Value{StringValue("10")})
	require.NoError(t, err)
	row, err = rows.Fetch()
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, []byte("füŕy"), row[1].Data)
	assert.False(t, row[2].Null)
	assert.Empty(t, row[2].Data)
}

func TestStmtReset(t *testing.T) {
	srv := startServer(t)
	seedUsers(srv)
	conn := connectTo(t, srv)

	stmt, err := conn.Prepare("SELECT * FROM users WHERE id = ?")
	require.NoError(t, err)
	defer stmt.Close()

	require.NoError(t, stmt.Reset())
}

func TestStmtCloseIsIdempotent(t *testing.T) {
	srv := startServer(t)
	seedUsers(srv)
	conn := connectTo(t, srv)

	stmt, err := conn.Prepare("SELECT * FROM users WHERE id = ?")
	require.NoError(t, err)

	assert.NoError(t, stmt.Close())
	assert.NoError(t, stmt.Close())

	_, err = stmt.Execute([]Value{StringValue("1")})
	var ee *ExecError
	assert.ErrorAs(t, err, &ee)

	var ee2 *ExecError
	assert.ErrorAs(t, stmt.Reset(), &ee2)
}

func TestExecuteBinaryTypes(t *testing.T) {
	srv := startServer(t)
	srv.Seed(mysqltest.Table{
		Name: "metrics",
		Columns: []mysqltest.Column{
			{Name: "small", Type: protocol.MYSQL_TYPE_TINY},
			{Name: "big", Type: protocol.MYSQL_TYPE_LONGLONG, Flags: protocol.UNSIGNED_FLAG},
			{Name: "ratio", Type: protocol.MYSQL_TYPE_DOUBLE},
			{Name: "seen", Type: protocol.MYSQL_TYPE_DATETIME},
		},
		Rows: [][]mysqltest.Cell{
			{mysqltest.C("-3"), mysqltest.C("18446744073709551615"), mysqltest.C("0.5"), mysqltest.C("2024-02-29 13:45:09")},
		},
	})
	conn := connectTo(t, srv)

	stmt, err := conn.Prepare("SELECT * FROM metrics")
	require.NoError(t, err)
	defer stmt.Close()

	rows, err := stmt.Execute(nil)
	require.NoError(t, err)

	row, err := rows.Fetch()
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "-3", row[0].String())
	assert.Equal(t, "18446744073709551615", row[1].String())
	assert.Equal(t, "0.5", row[2].String())
	assert.Equal(t, "2024-02-29 13:45:09", row[3].String())

	fields := rows.Fields()
	require.Len(t, fields, 4)
	assert.Equal(t, TypeInt, fields[0].Type)
	assert.Equal(t, TypeInt64, fields[1].Type)
	assert.Equal(t, TypeFloat, fields[2].Type)
	assert.Equal(t, TypeDatetime, fields[3].Type)
}
