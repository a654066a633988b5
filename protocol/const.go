package protocol

import "fmt"

// Client/server capability flags.
// https://dev.mysql.com/doc/dev/mysql-server/latest/group__group__cs__capabilities__flags.html
const (
	CLIENT_LONG_PASSWORD                  = 1 << iota // Use the improved version of Old Password Authentication.
	CLIENT_FOUND_ROWS                                 // Send found rows instead of affected rows in EOF_Packet.
	CLIENT_LONG_FLAG                                  // Get all column flags.
	CLIENT_CONNECT_WITH_DB                            // Database (schema) name can be specified on connect in Handshake Response Packet.
	CLIENT_NO_SCHEMA                                  // DEPRECATED: Don't allow database.table.column.
	CLIENT_COMPRESS                                   // Compression protocol supported.
	CLIENT_ODBC                                       // Special handling of ODBC behavior.
	CLIENT_LOCAL_FILES                                // Can use LOAD DATA LOCAL.
	CLIENT_IGNORE_SPACE                               // Ignore spaces before '('.
	CLIENT_PROTOCOL_41                                // New 4.1 protocol.
	CLIENT_INTERACTIVE                                // This is an interactive client.
	CLIENT_SSL                                        // Use SSL encryption for the session.
	CLIENT_IGNORE_SIGPIPE                             // Client only flag.
	CLIENT_TRANSACTIONS                               // Client knows about transactions.
	CLIENT_RESERVED                                   // DEPRECATED: Old flag for 4.1 protocol.
	CLIENT_SECURE_CONNECTION                          // DEPRECATED: Old flag for 4.1 authentication.
	CLIENT_MULTI_STATEMENTS                           // Enable/disable multi-stmt support.
	CLIENT_MULTI_RESULTS                              // Enable/disable multi-results.
	CLIENT_PS_MULTI_RESULTS                           // Multi-results and OUT parameters in PS-protocol.
	CLIENT_PLUGIN_AUTH                                // Client supports plugin authentication.
	CLIENT_CONNECT_ATTRS                              // Client supports connection attributes.
	CLIENT_PLUGIN_AUTH_LENENC_CLIENT_DATA             // Auth response packet can be larger than 255 bytes.
	CLIENT_CAN_HANDLE_EXPIRED_PASSWORDS               // Don't close the connection for a user account with expired password.
	CLIENT_SESSION_TRACK                              // Capable of handling server state change information.
	CLIENT_DEPRECATE_EOF                              // Client no longer needs EOF_Packet and will use OK_Packet instead.
)

// Server status flags carried in OK/EOF packets.
const (
	SERVER_STATUS_IN_TRANS             = 1 << iota // 1
	SERVER_STATUS_AUTOCOMMIT                       // 2
	_                                              // 4 unused
	SERVER_MORE_RESULTS_EXISTS                     // 8
	SERVER_QUERY_NO_GOOD_INDEX_USED                // 16
	SERVER_QUERY_NO_INDEX_USED                     // 32
	SERVER_STATUS_CURSOR_EXISTS                    // 64
	SERVER_STATUS_LAST_ROW_SENT                    // 128
	SERVER_STATUS_DB_DROPPED                       // 256
	SERVER_STATUS_NO_BACKSLASH_ESCAPES             // 512
	SERVER_STATUS_METADATA_CHANGED                 // 1024
	SERVER_QUERY_WAS_SLOW                          // 2048
	SERVER_PS_OUT_PARAMS                           // 4096
	SERVER_STATUS_IN_TRANS_READONLY                // 8192
	SERVER_SESSION_STATE_CHANGED       = 1 << 14   // 16384
)

// Command bytes for the first payload byte of a command packet.
// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_command_packets.html
const (
	COM_SLEEP               = 0x00
	COM_QUIT                = 0x01
	COM_INIT_DB             = 0x02
	COM_QUERY               = 0x03
	COM_FIELD_LIST          = 0x04
	COM_CREATE_DB           = 0x05
	COM_DROP_DB             = 0x06
	COM_REFRESH             = 0x07
	COM_SHUTDOWN            = 0x08
	COM_STATISTICS          = 0x09
	COM_PROCESS_INFO        = 0x0a
	COM_CONNECT             = 0x0b
	COM_PROCESS_KILL        = 0x0c
	COM_DEBUG               = 0x0d
	COM_PING                = 0x0e
	COM_TIME                = 0x0f
	COM_DELAYED_INSERT      = 0x10
	COM_CHANGE_USER         = 0x11
	COM_STMT_PREPARE        = 0x16
	COM_STMT_EXECUTE        = 0x17
	COM_STMT_SEND_LONG_DATA = 0x18
	COM_STMT_CLOSE          = 0x19
	COM_STMT_RESET          = 0x1a
	COM_SET_OPTION          = 0x1b
	COM_STMT_FETCH          = 0x1c
)

// Column (wire) type codes sent in column definitions and binary rows.
// https://dev.mysql.com/doc/dev/mysql-server/latest/field__types_8h.html
const (
	MYSQL_TYPE_DECIMAL     = 0x00
	MYSQL_TYPE_TINY        = 0x01
	MYSQL_TYPE_SHORT       = 0x02
	MYSQL_TYPE_LONG        = 0x03
	MYSQL_TYPE_FLOAT       = 0x04
	MYSQL_TYPE_DOUBLE      = 0x05
	MYSQL_TYPE_NULL        = 0x06
	MYSQL_TYPE_TIMESTAMP   = 0x07
	MYSQL_TYPE_LONGLONG    = 0x08
	MYSQL_TYPE_INT24       = 0x09
	MYSQL_TYPE_DATE        = 0x0a
	MYSQL_TYPE_TIME        = 0x0b
	MYSQL_TYPE_DATETIME    = 0x0c
	MYSQL_TYPE_YEAR        = 0x0d
	MYSQL_TYPE_NEWDATE     = 0x0e
	MYSQL_TYPE_VARCHAR     = 0x0f
	MYSQL_TYPE_BIT         = 0x10
	MYSQL_TYPE_NEWDECIMAL  = 0xf6
	MYSQL_TYPE_ENUM        = 0xf7
	MYSQL_TYPE_SET         = 0xf8
	MYSQL_TYPE_TINY_BLOB   = 0xf9
	MYSQL_TYPE_MEDIUM_BLOB = 0xfa
	MYSQL_TYPE_LONG_BLOB   = 0xfb
	MYSQL_TYPE_BLOB        = 0xfc
	MYSQL_TYPE_VAR_STRING  = 0xfd
	MYSQL_TYPE_STRING      = 0xfe
	MYSQL_TYPE_GEOMETRY    = 0xff
)

// Column definition flags.
const (
	NOT_NULL_FLAG       = 1 << 0
	PRI_KEY_FLAG        = 1 << 1
	UNIQUE_KEY_FLAG     = 1 << 2
	MULTIPLE_KEY_FLAG   = 1 << 3
	BLOB_FLAG           = 1 << 4
	UNSIGNED_FLAG       = 1 << 5
	ZEROFILL_FLAG       = 1 << 6
	BINARY_FLAG         = 1 << 7
	ENUM_FLAG           = 1 << 8
	AUTO_INCREMENT_FLAG = 1 << 9
	TIMESTAMP_FLAG      = 1 << 10
	SET_FLAG            = 1 << 11
)

// Packet header bytes distinguishing generic responses.
const (
	OK_MARKER  = 0x00
	EOF_MARKER = 0xfe
	ERR_MARKER = 0xff
	// NULL column marker inside a text resultset row.
	NULL_MARKER = 0xfb
)

var commandNames = map[uint8]string{
	COM_SLEEP:               "COM_SLEEP",
	COM_QUIT:                "COM_QUIT",
	COM_INIT_DB:             "COM_INIT_DB",
	COM_QUERY:               "COM_QUERY",
	COM_FIELD_LIST:          "COM_FIELD_LIST",
	COM_CREATE_DB:           "COM_CREATE_DB",
	COM_DROP_DB:             "COM_DROP_DB",
	COM_REFRESH:             "COM_REFRESH",
	COM_SHUTDOWN:            "COM_SHUTDOWN",
	COM_STATISTICS:          "COM_STATISTICS",
	COM_PROCESS_INFO:        "COM_PROCESS_INFO",
	COM_CONNECT:             "COM_CONNECT",
	COM_PROCESS_KILL:        "COM_PROCESS_KILL",
	COM_DEBUG:               "COM_DEBUG",
	COM_PING:                "COM_PING",
	COM_CHANGE_USER:         "COM_CHANGE_USER",
	COM_STMT_PREPARE:        "COM_STMT_PREPARE",
	COM_STMT_EXECUTE:        "COM_STMT_EXECUTE",
	COM_STMT_SEND_LONG_DATA: "COM_STMT_SEND_LONG_DATA",
	COM_STMT_CLOSE:          "COM_STMT_CLOSE",
	COM_STMT_RESET:          "COM_STMT_RESET",
	COM_SET_OPTION:          "COM_SET_OPTION",
	COM_STMT_FETCH:          "COM_STMT_FETCH",
}

// CommandName returns a printable name for a command byte, for logging.
func CommandName(command uint8) string {
	if name, ok := commandNames[command]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_COMMAND_%d", command)
}
