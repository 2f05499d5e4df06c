package wire

import (
	"errors"
	"fmt"
	"io"
)

const maxBSONSize = 16 * 1024 * 1024 // maximum BSON document size

// ErrInvalidSize means the size of a BSON document read off the wire is
// invalid.
var ErrInvalidSize = errors.New("got invalid document size")

// Reply is a parsed OP_REPLY message: the standard header, the reply
// header, and the raw returned documents in order.
type Reply struct {
	Header         MsgHeader
	Flags          int32
	CursorID       int64
	StartingFrom   int32
	NumberReturned int32
	Docs           [][]byte
}

// ReadReply reads one complete OP_REPLY off r: exactly 16 header bytes,
// then the 20-byte reply header, then NumberReturned length-prefixed
// documents. A stream that ends early surfaces as io.EOF when it stops at
// a field boundary and as io.ErrUnexpectedEOF when it stops mid-field.
func ReadReply(r io.Reader) (*Reply, error) {
	header, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	if header.OpCode != OpReply {
		return nil, fmt.Errorf("expected %v op in response, got %v", OpReply, header.OpCode)
	}
	if header.MessageLength < MsgHeaderLen+ReplyHeaderLen ||
		header.MessageLength > MaxMessageSize {
		return nil, fmt.Errorf("invalid reply message size %v", header.MessageLength)
	}

	var rh [ReplyHeaderLen]byte
	if _, err := io.ReadFull(r, rh[:]); err != nil {
		return nil, err
	}
	reply := &Reply{
		Header:         *header,
		Flags:          getInt32(rh[:], 0),
		CursorID:       getInt64(rh[:], 4),
		StartingFrom:   getInt32(rh[:], 12),
		NumberReturned: getInt32(rh[:], 16),
	}
	if reply.NumberReturned < 0 {
		return nil, fmt.Errorf("invalid returned document count %v", reply.NumberReturned)
	}

	reply.Docs = make([][]byte, 0, reply.NumberReturned)
	for i := int32(0); i < reply.NumberReturned; i++ {
		doc, err := ReadDocument(r)
		if err != nil {
			return nil, err
		}
		reply.Docs = append(reply.Docs, doc)
	}
	return reply, nil
}

// ReadDocument reads an entire length-prefixed BSON document. The returned
// bytes can be used with bson.Unmarshal.
func ReadDocument(r io.Reader) ([]byte, error) {
	sizeRaw := make([]byte, 4)
	if _, err := io.ReadFull(r, sizeRaw); err != nil {
		return nil, err
	}

	size := getInt32(sizeRaw, 0)
	if size < 5 || size > maxBSONSize {
		return nil, ErrInvalidSize
	}
	doc := make([]byte, size)
	copy(doc, sizeRaw)

	if _, err := io.ReadFull(r, doc[4:]); err != nil {
		return nil, err
	}
	return doc, nil
}
