package conn

import (
	"bytes"
	"fmt"

	"github.com/merizodb/merizo-driver/common/bsonutil"
	"github.com/merizodb/merizo-driver/common/wire"
	"github.com/pkg/errors"
	"gopkg.in/mgo.v2/bson"
)

// Reply is a decoded server response: the returned documents in order,
// their count, and the server-assigned cursor id (surfaced, not iterated).
type Reply struct {
	Docs           []bson.M
	NumberReturned int32
	CursorID       int64
}

// Send transmits a message and returns without reading a reply.
func (c *Connection) Send(op wire.OpCode, body []byte, logMsg string) error {
	c.logMessage(logMsg, body)
	msg := wire.NewMessage(op, c.nextRequestID(), body)

	s, err := c.checkout()
	if err != nil {
		return err
	}
	defer c.checkin(s)
	return c.sendOnSocket(s, msg)
}

// SendWithSafeCheck transmits a write together with a getLastError query
// appended to the same socket write, then reads the acknowledgement. The
// send and the receive run under the wire lock so concurrent callers
// cannot interleave replies. A reply document carrying err or errmsg
// surfaces as an OperationError; the socket stays pooled.
func (c *Connection) SendWithSafeCheck(op wire.OpCode, body []byte, dbName string, safe bson.M, logMsg string) (*Reply, error) {
	lastErrBody, err := getLastErrorBody(dbName, safe)
	if err != nil {
		return nil, err
	}
	c.logMessage(logMsg, body)
	msg := wire.NewMessage(op, c.nextRequestID(), body)
	msg = append(msg, wire.NewMessage(wire.OpQuery, c.nextRequestID(), lastErrBody)...)

	s, err := c.checkout()
	if err != nil {
		return nil, err
	}
	defer c.checkin(s)

	c.wireLock.Lock()
	defer c.wireLock.Unlock()
	if err := c.sendOnSocket(s, msg); err != nil {
		return nil, err
	}
	reply, err := c.readReply(s)
	if err != nil {
		return nil, err
	}
	if err := checkReplyError(reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// Receive transmits a query or command and reads its reply, serialized by
// the same wire lock as SendWithSafeCheck.
func (c *Connection) Receive(op wire.OpCode, body []byte, logMsg string) (*Reply, error) {
	c.logMessage(logMsg, body)
	msg := wire.NewMessage(op, c.nextRequestID(), body)

	s, err := c.checkout()
	if err != nil {
		return nil, err
	}
	defer c.checkin(s)

	c.wireLock.Lock()
	defer c.wireLock.Unlock()
	if err := c.sendOnSocket(s, msg); err != nil {
		return nil, err
	}
	reply, err := c.readReply(s)
	if err != nil {
		return nil, err
	}
	if err := checkReplyError(reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// sendOnSocket performs a length-complete send; any failure tears the
// whole connection down.
func (c *Connection) sendOnSocket(s *socket, msg []byte) error {
	if err := s.sendAll(msg); err != nil {
		c.Close()
		return &ConnectionError{Message: fmt.Sprintf("send failed: %v", err)}
	}
	return nil
}

// readRawReply performs the length-complete receive of one message and
// hands it to the framer: exactly one header, then however many bytes the
// header announces.
func readRawReply(s *socket) (*wire.Reply, error) {
	headerBytes, err := s.recvExact(wire.MsgHeaderLen)
	if err != nil {
		return nil, err
	}
	header := wire.MsgHeader{}
	header.FromWire(headerBytes)
	if header.MessageLength < wire.MsgHeaderLen+wire.ReplyHeaderLen ||
		header.MessageLength > wire.MaxMessageSize {
		return nil, fmt.Errorf("invalid reply message size %v", header.MessageLength)
	}
	bodyBytes, err := s.recvExact(int(header.MessageLength) - wire.MsgHeaderLen)
	if err != nil {
		return nil, err
	}
	return wire.ReadReply(bytes.NewReader(append(headerBytes, bodyBytes...)))
}

// readReply reads and decodes one reply off the socket; any failure tears
// the whole connection down.
func (c *Connection) readReply(s *socket) (*Reply, error) {
	raw, err := readRawReply(s)
	if err != nil {
		c.Close()
		return nil, &ConnectionError{Message: fmt.Sprintf("receive failed: %v", err)}
	}
	reply := &Reply{
		NumberReturned: raw.NumberReturned,
		CursorID:       raw.CursorID,
	}
	for _, d := range raw.Docs {
		doc := bson.M{}
		if err := bson.Unmarshal(d, &doc); err != nil {
			return nil, errors.Wrap(err, "decoding reply document")
		}
		reply.Docs = append(reply.Docs, doc)
	}
	return reply, nil
}

// checkReplyError surfaces a server-reported failure from the first
// returned document.
func checkReplyError(reply *Reply) error {
	if len(reply.Docs) == 0 {
		return nil
	}
	if msg := bsonutil.ErrorMessage(reply.Docs[0]); msg != "" {
		return &OperationError{Message: msg, Code: bsonutil.ErrorCode(reply.Docs[0])}
	}
	return nil
}
