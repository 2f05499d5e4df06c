// Package wire implements the framing layer of the binary protocol:
// message headers, opcodes, reply parsing, and message body layout.
package wire

import (
	"fmt"
	"io"
)

// MsgHeaderLen is the message header length in bytes.
const MsgHeaderLen = 16

// ReplyHeaderLen is the length of the reply header that follows the
// standard header on OP_REPLY messages.
const ReplyHeaderLen = 20

// MaxMessageSize is the maximum message size accepted off the wire.
const MaxMessageSize = 48 * 1000 * 1000

// MsgHeader is the standard header carried by every wire message.
// All fields are little-endian on the wire.
type MsgHeader struct {
	// MessageLength is the total message size, including this header
	MessageLength int32
	// RequestID is the identifier for this message
	RequestID int32
	// ResponseTo is the RequestID of the message being responded to;
	// set on server replies, zero on requests
	ResponseTo int32
	// OpCode is the request type, see the OpCode constants.
	OpCode OpCode
}

// ReadHeader creates a new MsgHeader given a reader at the beginning of a
// message.
func ReadHeader(r io.Reader) (*MsgHeader, error) {
	var d [MsgHeaderLen]byte
	b := d[:]
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	h := MsgHeader{}
	h.FromWire(b)
	return &h, nil
}

// ToWire converts the MsgHeader to the wire protocol.
func (m MsgHeader) ToWire() []byte {
	var d [MsgHeaderLen]byte
	b := d[:]
	setInt32(b, 0, m.MessageLength)
	setInt32(b, 4, m.RequestID)
	setInt32(b, 8, m.ResponseTo)
	setInt32(b, 12, int32(m.OpCode))
	return b
}

// FromWire reads the wirebytes into this object.
func (m *MsgHeader) FromWire(b []byte) {
	m.MessageLength = getInt32(b, 0)
	m.RequestID = getInt32(b, 4)
	m.ResponseTo = getInt32(b, 8)
	m.OpCode = OpCode(getInt32(b, 12))
}

// WriteTo writes the MsgHeader into a writer.
func (m *MsgHeader) WriteTo(w io.Writer) (int64, error) {
	b := m.ToWire()
	c, err := w.Write(b)
	n := int64(c)
	if err != nil {
		return n, err
	}
	if c != len(b) {
		return n, fmt.Errorf("attempted to write %d but wrote %d", len(b), n)
	}
	return n, nil
}

// String returns a string representation of the message header.
// Useful for debugging.
func (m *MsgHeader) String() string {
	return fmt.Sprintf(
		"opCode:%s (%d) msgLen:%d reqID:%d respID:%d",
		m.OpCode,
		m.OpCode,
		m.MessageLength,
		m.RequestID,
		m.ResponseTo,
	)
}

// NewMessage frames body with a standard header carrying op and requestID.
// ResponseTo is zero on requests.
func NewMessage(op OpCode, requestID int32, body []byte) []byte {
	h := MsgHeader{
		MessageLength: int32(MsgHeaderLen + len(body)),
		RequestID:     requestID,
		OpCode:        op,
	}
	msg := make([]byte, 0, MsgHeaderLen+len(body))
	msg = append(msg, h.ToWire()...)
	return append(msg, body...)
}
