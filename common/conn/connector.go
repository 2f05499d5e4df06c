package conn

import (
	"errors"

	"github.com/merizodb/merizo-driver/common/bsonutil"
	"github.com/merizodb/merizo-driver/common/log"
	"github.com/merizodb/merizo-driver/common/wire"
	"gopkg.in/mgo.v2/bson"
)

var errEmptyProbeReply = errors.New("empty reply to ismaster probe")

// Connect probes the configured nodes in order and selects a master (or,
// for a single node with SlaveOK, a slave), then replays the saved
// authentications against it. Endpoints with socket-level failures are
// skipped; if no endpoint is accepted the connect fails.
func (c *Connection) Connect() error {
	c.connectLock.Lock()
	defer c.connectLock.Unlock()

	if c.connected() {
		return nil
	}
	// clear any partial state from an earlier failure
	c.Close()

	for _, node := range c.nodes {
		res, err := c.probeNode(node)
		if err != nil {
			// per-endpoint socket errors are tolerated; try the next one
			if c.logger != nil {
				c.logger.Logf(log.DebugLow, "probe of %v failed: %v", node, err)
			}
			continue
		}
		if !bsonutil.IsTruthy(res["ok"]) {
			continue
		}
		if bsonutil.IsTruthy(res["ismaster"]) {
			c.setMaster(node)
			break
		}
		if len(c.nodes) == 1 {
			if !c.slaveOK {
				return &ConfigurationError{
					Message: "trying to connect directly to a slave; " +
						"if this is what you want, set SlaveOK",
				}
			}
			// explicit consent to read from a slave
			c.setMaster(node)
			break
		}
		// a pair member that is not master; its peer should be
	}

	if !c.connected() {
		return &ConnectionError{Message: "failed to connect to any given host:port"}
	}

	for _, a := range c.savedAuths() {
		if err := c.authenticate(a.DB, a.Username, a.Password); err != nil {
			return err
		}
	}
	return nil
}

// probeNode dials the node and issues an ismaster admin command directly
// on the new socket, bypassing the pool. The reply document is returned
// raw, with response checking disabled. The probe socket is always
// discarded; the pool dials its own sockets to whichever node wins.
func (c *Connection) probeNode(node Addr) (bson.M, error) {
	s, err := dialSocket(node)
	if err != nil {
		return nil, err
	}
	defer s.close()

	doc, err := bson.Marshal(bson.D{{Name: "ismaster", Value: 1}})
	if err != nil {
		return nil, err
	}
	body := wire.QueryBody(0, "admin.$cmd", 0, -1, doc)
	msg := wire.NewMessage(wire.OpQuery, c.nextRequestID(), body)
	if err := s.sendAll(msg); err != nil {
		return nil, err
	}

	reply, err := readRawReply(s)
	if err != nil {
		return nil, err
	}
	if len(reply.Docs) == 0 {
		return nil, errEmptyProbeReply
	}
	res := bson.M{}
	if err := bson.Unmarshal(reply.Docs[0], &res); err != nil {
		return nil, err
	}
	return res, nil
}
