package wire

import "fmt"

// OpCode identifies the type of operation carried by a wire message:
// http://docs.mongodb.org/meta-driver/latest/legacy/mongodb-wire-protocol/#request-opcodes
type OpCode int32

// The set of opcodes the core sends or receives.
const (
	OpReply       = OpCode(1)
	OpUpdate      = OpCode(2001)
	OpInsert      = OpCode(2002)
	OpReserved    = OpCode(2003)
	OpQuery       = OpCode(2004)
	OpGetMore     = OpCode(2005)
	OpDelete      = OpCode(2006)
	OpKillCursors = OpCode(2007)
)

// String returns a human readable representation of the OpCode.
func (c OpCode) String() string {
	switch c {
	case OpReply:
		return "reply"
	case OpUpdate:
		return "update"
	case OpInsert:
		return "insert"
	case OpReserved:
		return "reserved"
	case OpQuery:
		return "query"
	case OpGetMore:
		return "get_more"
	case OpDelete:
		return "delete"
	case OpKillCursors:
		return "kill_cursors"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(c))
	}
}
