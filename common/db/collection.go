package db

import (
	"strings"

	"github.com/merizodb/merizo-driver/common/conn"
	"github.com/merizodb/merizo-driver/common/wire"
	cache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"gopkg.in/mgo.v2/bson"
)

// Collection is a named collection within a database. Writes are
// fire-and-forget unless Safe is set, in which case every write round
// trips through a getLastError check with those options.
type Collection struct {
	DB   *Database
	Name string
	Safe bson.M
}

// FullName returns the database-qualified collection namespace.
func (c *Collection) FullName() string {
	return c.DB.Name + "." + c.Name
}

func (c *Collection) query(selector interface{}, skip, nReturn int32) (*conn.Reply, error) {
	if selector == nil {
		selector = bson.M{}
	}
	doc, err := bson.Marshal(selector)
	if err != nil {
		return nil, errors.Wrap(err, "encoding query selector")
	}
	var flags int32
	if c.DB.Conn.SlaveOK() {
		flags |= wire.QuerySlaveOK
	}
	body := wire.QueryBody(flags, c.FullName(), skip, nReturn, doc)
	return c.DB.Conn.Receive(wire.OpQuery, body, c.FullName()+" query")
}

// Find returns the first batch of documents matching selector. A nil
// selector matches everything. Zero limit means server default.
func (c *Collection) Find(selector interface{}, limit, skip int32) ([]bson.M, error) {
	reply, err := c.query(selector, skip, limit)
	if err != nil {
		return nil, err
	}
	return reply.Docs, nil
}

// FindOne decodes the first document matching selector into result,
// reporting whether one was found.
func (c *Collection) FindOne(selector interface{}, result interface{}) (bool, error) {
	reply, err := c.query(selector, 0, -1)
	if err != nil {
		return false, err
	}
	if len(reply.Docs) == 0 {
		return false, nil
	}
	if result != nil {
		raw, err := bson.Marshal(reply.Docs[0])
		if err != nil {
			return true, err
		}
		if err := bson.Unmarshal(raw, result); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Insert stores one or more documents.
func (c *Collection) Insert(docs ...interface{}) error {
	raws := make([][]byte, 0, len(docs))
	for _, d := range docs {
		raw, err := bson.Marshal(d)
		if err != nil {
			return errors.Wrap(err, "encoding document for insert")
		}
		raws = append(raws, raw)
	}
	body := wire.InsertBody(c.FullName(), raws...)
	return c.write(wire.OpInsert, body, c.FullName()+" insert")
}

// Update rewrites documents matching selector with the given modifier.
func (c *Collection) Update(selector, change interface{}, upsert, multi bool) error {
	sel, err := bson.Marshal(selector)
	if err != nil {
		return errors.Wrap(err, "encoding update selector")
	}
	mod, err := bson.Marshal(change)
	if err != nil {
		return errors.Wrap(err, "encoding update modifier")
	}
	var flags int32
	if upsert {
		flags |= wire.UpdateUpsert
	}
	if multi {
		flags |= wire.UpdateMulti
	}
	body := wire.UpdateBody(c.FullName(), flags, sel, mod)
	return c.write(wire.OpUpdate, body, c.FullName()+" update")
}

// Remove deletes every document matching selector.
func (c *Collection) Remove(selector interface{}) error {
	if selector == nil {
		selector = bson.M{}
	}
	sel, err := bson.Marshal(selector)
	if err != nil {
		return errors.Wrap(err, "encoding remove selector")
	}
	body := wire.DeleteBody(c.FullName(), 0, sel)
	return c.write(wire.OpDelete, body, c.FullName()+" remove")
}

// write routes a write through the safe check when the collection has
// safe mode set.
func (c *Collection) write(op wire.OpCode, body []byte, logMsg string) error {
	if c.Safe != nil {
		_, err := c.DB.Conn.SendWithSafeCheck(op, body, c.DB.Name, c.Safe, logMsg)
		return err
	}
	return c.DB.Conn.Send(op, body, logMsg)
}

// Count returns the number of documents matching selector.
func (c *Collection) Count(selector interface{}) (int64, error) {
	cmd := bson.D{{Name: "count", Value: c.Name}}
	if selector != nil {
		cmd = append(cmd, bson.DocElem{Name: "query", Value: selector})
	}
	res, err := c.DB.runCommand(cmd)
	if err != nil {
		return 0, err
	}
	switch n := res["n"].(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	}
	return 0, &conn.OperationError{Message: "count reply carried no n"}
}

// EnsureIndex creates an ascending compound index over keys unless the
// same index was ensured recently. Index creation on this wire is an
// insert into the database's system.indexes collection.
func (c *Collection) EnsureIndex(keys ...string) error {
	if len(keys) == 0 {
		return &conn.ArgumentError{Message: "EnsureIndex requires at least one key"}
	}

	name := indexName(keys)
	cacheKey := c.FullName() + "." + name
	if _, ok := c.DB.indexCache.Get(cacheKey); ok {
		return nil
	}

	keyDoc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		keyDoc = append(keyDoc, bson.DocElem{Name: k, Value: 1})
	}
	index := bson.D{
		{Name: "name", Value: name},
		{Name: "ns", Value: c.FullName()},
		{Name: "key", Value: keyDoc},
	}

	sysIndexes := &Collection{DB: c.DB, Name: "system.indexes", Safe: c.Safe}
	if err := sysIndexes.Insert(index); err != nil {
		return err
	}
	c.DB.indexCache.Set(cacheKey, true, cache.DefaultExpiration)
	return nil
}

// DropIndexCache forgets every ensured index so the next EnsureIndex
// round-trips again.
func (d *Database) DropIndexCache() {
	d.indexCache.Flush()
}

func indexName(keys []string) string {
	return strings.Join(keys, "_1_") + "_1"
}
