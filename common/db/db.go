// Package db implements the database and collection façade over the
// connection core: queries, writes, commands, and index bookkeeping.
package db

import (
	"fmt"
	"time"

	"github.com/merizodb/merizo-driver/common/bsonutil"
	"github.com/merizodb/merizo-driver/common/conn"
	"github.com/merizodb/merizo-driver/common/gridfs"
	cache "github.com/patrickmn/go-cache"
	"gopkg.in/mgo.v2/bson"
)

// how long an ensured index is remembered before the next EnsureIndex
// round-trips to the server again
const (
	indexCacheExpiration = 5 * time.Minute
	indexCacheSweep      = 30 * time.Second
)

// Database is a named database reachable through a connection.
type Database struct {
	Conn *conn.Connection
	Name string

	// ensured index names, so repeated EnsureIndex calls stay local
	indexCache *cache.Cache
}

// New returns a handle on the named database.
func New(c *conn.Connection, name string) *Database {
	return &Database{
		Conn:       c,
		Name:       name,
		indexCache: cache.New(indexCacheExpiration, indexCacheSweep),
	}
}

// C returns a handle on a collection within the database.
func (d *Database) C(name string) *Collection {
	return &Collection{DB: d, Name: name}
}

// Run executes a command against the database and decodes the single
// reply document into result, which may be nil. A string command name is
// shorthand for {name: 1}. Commands the server rejects surface as
// OperationError.
func (d *Database) Run(cmd interface{}, result interface{}) error {
	if name, ok := cmd.(string); ok {
		cmd = bson.D{{Name: name, Value: 1}}
	}
	res, err := d.runCommand(cmd)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	raw, err := bson.Marshal(res)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, result)
}

func (d *Database) runCommand(cmd interface{}) (bson.M, error) {
	reply, err := d.C("$cmd").query(cmd, 0, -1)
	if err != nil {
		return nil, err
	}
	if len(reply.Docs) == 0 {
		return nil, &conn.OperationError{Message: "command returned no documents"}
	}
	res := reply.Docs[0]
	if !bsonutil.IsTruthy(res["ok"]) {
		msg := bsonutil.ErrorMessage(res)
		if msg == "" {
			msg = fmt.Sprintf("command failed: %v", res)
		}
		return res, &conn.OperationError{Message: msg, Code: bsonutil.ErrorCode(res)}
	}
	return res, nil
}

// Authenticate validates credentials against this database and saves them
// on the connection for replay after reconnects.
func (d *Database) Authenticate(username, password string) error {
	return d.Conn.Authenticate(d.Name, username, password)
}

// Logout ends this database's authenticated session and drops the saved
// credential.
func (d *Database) Logout() error {
	if err := d.Run(bson.D{{Name: "logout", Value: 1}}, nil); err != nil {
		return err
	}
	d.Conn.RemoveAuth(d.Name)
	return nil
}

// GridFS returns a chunked-file layer over this database's prefix.files
// and prefix.chunks collections. Bucket writes are acknowledged so the
// server-side digest on close always sees every chunk.
func (d *Database) GridFS(prefix string) *gridfs.GridFS {
	files := d.C(prefix + ".files")
	files.Safe = bson.M{"w": 1}
	chunks := d.C(prefix + ".chunks")
	chunks.Safe = bson.M{"w": 1}
	return gridfs.New(d, files, chunks, prefix)
}
