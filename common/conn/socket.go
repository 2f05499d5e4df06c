package conn

import (
	"errors"
	"io"
	"net"
)

// errClosed classifies a zero-length read: the peer hung up.
var errClosed = errors.New("connection closed")

// socket is an owned TCP stream with TCP_NODELAY set. A socket is either
// idle in the pool, checked out, or discarded.
type socket struct {
	conn *net.TCPConn
}

func dialSocket(addr Addr) (*socket, error) {
	c, err := net.Dial("tcp", addr.String())
	if err != nil {
		return nil, err
	}
	tcp := c.(*net.TCPConn)
	tcp.SetNoDelay(true)
	return &socket{conn: tcp}, nil
}

// sendAll writes the whole buffer or fails.
func (s *socket) sendAll(b []byte) error {
	for len(b) > 0 {
		n, err := s.conn.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// recvExact reads exactly n bytes, failing with errClosed if the stream
// ends first.
func (s *socket) recvExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.conn, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errClosed
		}
		return nil, err
	}
	return buf, nil
}

func (s *socket) close() {
	s.conn.Close()
}
