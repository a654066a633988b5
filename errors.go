package myclient

import (
	"errors"
	"fmt"
)

var (
	// ErrClosedConn is returned by any operation on a closed connection.
	ErrClosedConn = errors.New("myclient: connection is closed")

	// ErrNoResult is returned when rows are fetched from a statement that
	// produced no result set.
	ErrNoResult = errors.New("myclient: statement returned no result set")

	// ErrRange is returned by Seek for offsets outside the result.
	ErrRange = errors.New("myclient: row offset out of range")
)

// ConnError reports a failure to establish or maintain a connection.
// Code is the server errno when the server refused us, 0 otherwise.
type ConnError struct {
	Code    uint16
	Message string
	cause   error
}

func (e *ConnError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("myclient: connect: %s (errno %d)", e.Message, e.Code)
	}
	return "myclient: connect: " + e.Message
}

func (e *ConnError) Unwrap() error { return e.cause }

// QueryError reports a failed query or command.
type QueryError struct {
	Code    uint16
	Message string
	cause   error
}

func (e *QueryError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("myclient: query: %s (errno %d)", e.Message, e.Code)
	}
	return "myclient: query: " + e.Message
}

func (e *QueryError) Unwrap() error { return e.cause }

// PrepareError reports a failed COM_STMT_PREPARE.
type PrepareError struct {
	Code    uint16
	Message string
	cause   error
}

func (e *PrepareError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("myclient: prepare: %s (errno %d)", e.Message, e.Code)
	}
	return "myclient: prepare: " + e.Message
}

func (e *PrepareError) Unwrap() error { return e.cause }

// ParamCountError reports an Execute call whose parameter slice does not
// match the statement's placeholder count. It is raised before anything
// is written to the server.
type ParamCountError struct {
	Expected int
	Got      int
}

func (e *ParamCountError) Error() string {
	return fmt.Sprintf("myclient: statement expects %d parameters, got %d", e.Expected, e.Got)
}

// BindError reports a failure while encoding parameters or decoding a
// result row of a prepared statement.
type BindError struct {
	Message string
	cause   error
}

func (e *BindError) Error() string { return "myclient: bind: " + e.Message }

func (e *BindError) Unwrap() error { return e.cause }

// ExecError reports a failed COM_STMT_EXECUTE, or a fetch from a result
// that a later Execute invalidated.
type ExecError struct {
	Code    uint16
	Message string
	cause   error
}

func (e *ExecError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("myclient: execute: %s (errno %d)", e.Message, e.Code)
	}
	return "myclient: execute: " + e.Message
}

func (e *ExecError) Unwrap() error { return e.cause }

// CloseError reports a failure to release a statement on the server.
type CloseError struct {
	Message string
	cause   error
}

func (e *CloseError) Error() string { return "myclient: close statement: " + e.Message }

func (e *CloseError) Unwrap() error { return e.cause }
