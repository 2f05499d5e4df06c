package conn

import (
	"fmt"
	"time"
)

// checkout returns a live socket for the caller's exclusive use. An idle
// socket is reused when one exists; below the pool bound a new socket is
// dialed to the current master; otherwise the caller blocks until a
// checkin or the timeout.
func (c *Connection) checkout() (*socket, error) {
	start := time.Now()
	deadline := start.Add(c.timeout)

	for {
		if !c.connected() {
			if err := c.Connect(); err != nil {
				return nil, err
			}
		}

		c.poolLock.Lock()
		if c.host == "" {
			// torn down between the check and the lock; reconnect
			c.poolLock.Unlock()
			continue
		}

		for {
			if len(c.sockets) > len(c.checkedOut) {
				s := c.idleSocket()
				c.checkedOut[s] = true
				c.poolLock.Unlock()
				return s, nil
			}

			if len(c.sockets) < c.poolSize {
				addr := Addr{Host: c.host, Port: c.port}
				s, err := dialSocket(addr)
				if err != nil {
					c.poolLock.Unlock()
					c.Close()
					return nil, &ConnectionError{
						Message: fmt.Sprintf("failed to connect to %v: %v", addr, err),
					}
				}
				c.sockets[s] = true
				c.checkedOut[s] = true
				c.poolLock.Unlock()
				return s, nil
			}

			if time.Now().After(deadline) {
				c.poolLock.Unlock()
				return nil, &TimeoutError{Wait: c.timeout.String()}
			}

			// Pool is saturated: wait for a checkin. The timer bounds the
			// wait so a silent pool cannot oversleep the deadline; it takes
			// the pool lock so its broadcast cannot land before Wait starts.
			wake := time.AfterFunc(time.Until(deadline), func() {
				c.poolLock.Lock()
				c.poolWait.Broadcast()
				c.poolLock.Unlock()
			})
			c.poolWait.Wait()
			wake.Stop()

			if c.host == "" {
				// teardown while waiting; start over with a fresh connect
				c.poolLock.Unlock()
				break
			}
		}
	}
}

// idleSocket picks any pooled socket that is not checked out. Callers must
// hold the pool lock.
func (c *Connection) idleSocket() *socket {
	for s := range c.sockets {
		if !c.checkedOut[s] {
			return s
		}
	}
	return nil
}

// checkin releases a checked-out socket back to the pool and wakes one
// waiter. It runs on every exit path from a checked-out scope; after a
// teardown the socket is no longer pooled and this is a no-op.
func (c *Connection) checkin(s *socket) {
	c.poolLock.Lock()
	delete(c.checkedOut, s)
	c.poolLock.Unlock()
	c.poolWait.Signal()
}

// PoolStats reports the pool's current occupancy.
func (c *Connection) PoolStats() (total, checkedOut int) {
	c.poolLock.Lock()
	defer c.poolLock.Unlock()
	return len(c.sockets), len(c.checkedOut)
}
