// Package conn implements the client connection core: a bounded socket
// pool over the binary wire protocol, master discovery among paired
// endpoints, and synchronous request/response routing for concurrent
// callers.
package conn

import (
	"fmt"
	"sync"
	"time"

	"github.com/merizodb/merizo-driver/common/connstring"
	"github.com/merizodb/merizo-driver/common/log"
)

const (
	DefaultPoolSize = 1
	DefaultTimeout  = 5 * time.Second
)

// Options configure a Connection at construction time.
type Options struct {
	// PoolSize bounds the number of live sockets; minimum and default 1.
	PoolSize int
	// Timeout bounds how long a checkout waits for a free socket.
	Timeout time.Duration
	// SlaveOK permits a single-node connection to accept a non-master.
	// Ignored (forced off) on paired connections.
	SlaveOK bool
	// Logger, when set, receives a debug line for every message sent by
	// Send, SendWithSafeCheck, and Receive. Connector probes are not logged.
	Logger *log.ToolLogger
	// NoConnect skips the initial connect; the first operation dials.
	NoConnect bool
}

func (o *Options) normalized() Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.PoolSize < 1 {
		out.PoolSize = DefaultPoolSize
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	return out
}

// Connection multiplexes application requests over a bounded pool of
// sockets to the current master node. All methods are safe for use by
// concurrent goroutines.
type Connection struct {
	nodes   []Addr
	slaveOK bool

	logger *log.ToolLogger

	poolSize int
	timeout  time.Duration

	// connectLock serializes master (re)connection attempts so that two
	// callers racing on a dead connection do not both rebuild it.
	connectLock sync.Mutex

	// poolLock guards host, port, sockets, and checkedOut. poolWait is
	// signaled on every checkin and broadcast on teardown.
	poolLock   sync.Mutex
	poolWait   *sync.Cond
	host       string
	port       int
	sockets    map[*socket]bool
	checkedOut map[*socket]bool

	// idLock guards the request id counter and nothing else.
	idLock        sync.Mutex
	lastRequestID int32

	// wireLock serializes the send+receive pair of safe-check and receive
	// operations so replies cannot be misattributed across callers.
	wireLock sync.Mutex

	// authLock guards the saved-auth list.
	authLock sync.Mutex
	auths    []Auth
}

func newConnection(nodes []Addr, opts Options) *Connection {
	c := &Connection{
		nodes:      nodes,
		slaveOK:    opts.SlaveOK,
		logger:     opts.Logger,
		poolSize:   opts.PoolSize,
		timeout:    opts.Timeout,
		sockets:    make(map[*socket]bool),
		checkedOut: make(map[*socket]bool),
	}
	c.poolWait = sync.NewCond(&c.poolLock)
	return c
}

// New opens a connection to a single node. Empty host and zero port fall
// back to localhost:27017.
func New(host string, port int, opts *Options) (*Connection, error) {
	if port < 0 || port > 65535 {
		return nil, &ArgumentError{Message: "port number out of range"}
	}
	o := opts.normalized()
	addr := Addr{Host: host, Port: port}.withDefaults()
	c := newConnection([]Addr{addr}, o)
	if !o.NoConnect {
		if err := c.Connect(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NewPaired opens a connection to a two-node pair, electing whichever
// member is currently master. SlaveOK is meaningless against a pair and is
// silently forced off.
func NewPaired(nodes []Addr, opts *Options) (*Connection, error) {
	if len(nodes) != 2 {
		return nil, &ArgumentError{Message: "a paired connection requires exactly two nodes"}
	}
	o := opts.normalized()
	o.SlaveOK = false
	resolved := make([]Addr, len(nodes))
	for i, n := range nodes {
		if n.Port < 0 || n.Port > 65535 {
			return nil, &ArgumentError{Message: "port number out of range"}
		}
		resolved[i] = n.withDefaults()
	}
	c := newConnection(resolved, o)
	if !o.NoConnect {
		if err := c.Connect(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NewFromURI opens a connection described by a mongodb:// URI, saving one
// auth entry when the URI carries credentials and a database.
func NewFromURI(uri string, opts *Options) (*Connection, error) {
	cs, err := connstring.Parse(uri)
	if err != nil {
		return nil, &ArgumentError{Message: err.Error()}
	}
	nodes := make([]Addr, len(cs.Nodes))
	for i, n := range cs.Nodes {
		nodes[i] = Addr{Host: n.Host, Port: n.Port}
	}
	o := opts.normalized()
	var c *Connection
	switch len(nodes) {
	case 1:
		c = newConnection(nodes, o)
	case 2:
		o.SlaveOK = false
		c = newConnection(nodes, o)
	default:
		return nil, &ArgumentError{Message: "a connection URI must name one node or a pair"}
	}
	for _, a := range cs.Auths {
		c.AddAuth(a.DB, a.Username, a.Password)
	}
	if !o.NoConnect {
		if err := c.Connect(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Host returns the host of the currently selected master, empty when
// disconnected.
func (c *Connection) Host() string {
	c.poolLock.Lock()
	defer c.poolLock.Unlock()
	return c.host
}

// Port returns the port of the currently selected master, zero when
// disconnected.
func (c *Connection) Port() int {
	c.poolLock.Lock()
	defer c.poolLock.Unlock()
	return c.port
}

// SlaveOK reports whether this connection permits a non-master node. It is
// always false on a paired connection.
func (c *Connection) SlaveOK() bool {
	return c.slaveOK
}

// Nodes returns the configured endpoint set.
func (c *Connection) Nodes() []Addr {
	out := make([]Addr, len(c.nodes))
	copy(out, c.nodes)
	return out
}

func (c *Connection) connected() bool {
	c.poolLock.Lock()
	defer c.poolLock.Unlock()
	return c.host != ""
}

func (c *Connection) setMaster(addr Addr) {
	c.poolLock.Lock()
	defer c.poolLock.Unlock()
	c.host = addr.Host
	c.port = addr.Port
}

// Close tears the connection down: every pooled socket is closed, the
// socket sets are emptied, and the master is forgotten, all atomically
// with respect to the pool lock. Blocked checkouts are woken so they can
// reconnect or time out. The next operation re-enters the connector.
func (c *Connection) Close() {
	c.poolLock.Lock()
	defer c.poolLock.Unlock()
	for s := range c.sockets {
		s.close()
	}
	c.sockets = make(map[*socket]bool)
	c.checkedOut = make(map[*socket]bool)
	c.host = ""
	c.port = 0
	c.poolWait.Broadcast()
}

// nextRequestID returns a fresh id for an outgoing message. Ids are
// monotonically increasing per connection; the counter has its own lock so
// framing never contends with the pool.
func (c *Connection) nextRequestID() int32 {
	c.idLock.Lock()
	defer c.idLock.Unlock()
	c.lastRequestID++
	return c.lastRequestID
}

func (c *Connection) logMessage(logMsg string, body []byte) {
	if c.logger == nil {
		return
	}
	if logMsg == "" {
		logMsg = fmt.Sprintf("%d body bytes", len(body))
	}
	c.logger.Logf(log.DebugHigh, "  MONGODB %v", logMsg)
}
