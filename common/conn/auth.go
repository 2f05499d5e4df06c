package conn

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/merizodb/merizo-driver/common/bsonutil"
	"github.com/merizodb/merizo-driver/common/wire"
	"gopkg.in/mgo.v2/bson"
)

// Authenticate runs the nonce handshake against dbName and, on success,
// saves the credentials for replay after reconnects.
func (c *Connection) Authenticate(dbName, username, password string) error {
	if err := c.authenticate(dbName, username, password); err != nil {
		return err
	}
	c.AddAuth(dbName, username, password)
	return nil
}

// authenticate performs the handshake without touching the saved-auth
// list; the connector uses it for replay.
func (c *Connection) authenticate(dbName, username, password string) error {
	res, err := c.runCommand(dbName, bson.D{{Name: "getnonce", Value: 1}})
	if err != nil {
		return c.authFailed(dbName, err)
	}
	nonce, ok := res["nonce"].(string)
	if !ok || nonce == "" {
		return &AuthenticationError{DB: dbName, Message: "server returned no nonce"}
	}

	cmd := bson.D{
		{Name: "authenticate", Value: 1},
		{Name: "user", Value: username},
		{Name: "nonce", Value: nonce},
		{Name: "key", Value: authKey(nonce, username, password)},
	}
	if _, err := c.runCommand(dbName, cmd); err != nil {
		return c.authFailed(dbName, err)
	}
	return nil
}

// authFailed maps server-side rejections to AuthenticationError while
// letting socket-level failures keep their teardown semantics.
func (c *Connection) authFailed(dbName string, err error) error {
	if opErr, ok := err.(*OperationError); ok {
		return &AuthenticationError{DB: dbName, Message: opErr.Message}
	}
	return err
}

// authKey computes the digest the authenticate command expects: the hash
// of the nonce, the username, and the hashed password credential.
func authKey(nonce, username, password string) string {
	credential := md5.Sum([]byte(username + ":mongo:" + password))
	key := md5.Sum([]byte(nonce + username + hex.EncodeToString(credential[:])))
	return hex.EncodeToString(key[:])
}

// runCommand issues a single-document command against dbName's $cmd
// collection and decodes the reply.
func (c *Connection) runCommand(dbName string, cmd bson.D) (bson.M, error) {
	doc, err := bson.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	body := wire.QueryBody(0, dbName+".$cmd", 0, -1, doc)
	var name string
	if len(cmd) > 0 {
		name = cmd[0].Name
	}
	reply, err := c.Receive(wire.OpQuery, body, fmt.Sprintf("db.$cmd %v", name))
	if err != nil {
		return nil, err
	}
	if len(reply.Docs) == 0 {
		return nil, &OperationError{Message: fmt.Sprintf("command %v returned no documents", name)}
	}
	res := reply.Docs[0]
	if !bsonutil.IsTruthy(res["ok"]) {
		msg := bsonutil.ErrorMessage(res)
		if msg == "" {
			msg = fmt.Sprintf("command %v failed", name)
		}
		return res, &OperationError{Message: msg, Code: bsonutil.ErrorCode(res)}
	}
	return res, nil
}

// AddAuth saves a credential triple for dbName, replacing any existing
// entry for the same database. Saved auths are replayed in insertion
// order on every successful master (re)connection.
func (c *Connection) AddAuth(dbName, username, password string) {
	c.authLock.Lock()
	defer c.authLock.Unlock()
	for i, a := range c.auths {
		if a.DB == dbName {
			c.auths[i] = Auth{DB: dbName, Username: username, Password: password}
			return
		}
	}
	c.auths = append(c.auths, Auth{DB: dbName, Username: username, Password: password})
}

// RemoveAuth drops the saved credential for dbName, reporting whether one
// existed.
func (c *Connection) RemoveAuth(dbName string) bool {
	c.authLock.Lock()
	defer c.authLock.Unlock()
	for i, a := range c.auths {
		if a.DB == dbName {
			c.auths = append(c.auths[:i], c.auths[i+1:]...)
			return true
		}
	}
	return false
}

// ClearAuths empties the saved-auth list.
func (c *Connection) ClearAuths() {
	c.authLock.Lock()
	defer c.authLock.Unlock()
	c.auths = nil
}

func (c *Connection) savedAuths() []Auth {
	c.authLock.Lock()
	defer c.authLock.Unlock()
	out := make([]Auth, len(c.auths))
	copy(out, c.auths)
	return out
}
