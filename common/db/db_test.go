package db

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/merizodb/merizo-driver/common/conn"
	"github.com/merizodb/merizo-driver/common/testutil"
	"github.com/merizodb/merizo-driver/common/wire"
	. "github.com/smartystreets/goconvey/convey"
	"gopkg.in/mgo.v2/bson"
)

// fakeMongod speaks enough of the wire protocol to serve the façade:
// queries are answered through the handler, inserts are recorded.
type fakeMongod struct {
	ln net.Listener

	mu      sync.Mutex
	handler func(ns string, query bson.M) []interface{}
	inserts map[string]int
}

func newFakeMongod(t *testing.T, handler func(ns string, query bson.M) []interface{}) *fakeMongod {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeMongod{ln: ln, handler: handler, inserts: map[string]int{}}
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go f.serve(nc)
		}
	}()
	return f
}

func (f *fakeMongod) serve(nc net.Conn) {
	defer nc.Close()
	for {
		header, err := wire.ReadHeader(nc)
		if err != nil {
			return
		}
		body := make([]byte, header.MessageLength-wire.MsgHeaderLen)
		if _, err := io.ReadFull(nc, body); err != nil {
			return
		}

		switch header.OpCode {
		case wire.OpInsert:
			nsEnd := bytes.IndexByte(body[4:], 0)
			ns := string(body[4 : 4+nsEnd])
			f.mu.Lock()
			f.inserts[ns]++
			f.mu.Unlock()

		case wire.OpQuery:
			nsEnd := bytes.IndexByte(body[4:], 0)
			ns := string(body[4 : 4+nsEnd])
			query := bson.M{}
			if err := bson.Unmarshal(body[4+nsEnd+1+8:], &query); err != nil {
				return
			}
			f.mu.Lock()
			handler := f.handler
			f.mu.Unlock()

			docs := handler(ns, query)
			body := wire.AppendInt32(nil, 0)
			body = wire.AppendInt64(body, 0)
			body = wire.AppendInt32(body, 0)
			body = wire.AppendInt32(body, int32(len(docs)))
			for _, d := range docs {
				raw, err := bson.Marshal(d)
				if err != nil {
					panic(err)
				}
				body = append(body, raw...)
			}
			h := wire.MsgHeader{
				MessageLength: int32(wire.MsgHeaderLen + len(body)),
				RequestID:     1,
				ResponseTo:    header.RequestID,
				OpCode:        wire.OpReply,
			}
			if _, err := nc.Write(append(h.ToWire(), body...)); err != nil {
				return
			}
		}
	}
}

func (f *fakeMongod) insertCount(ns string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts[ns]
}

func (f *fakeMongod) close() {
	f.ln.Close()
}

// connectTo opens a connection against the fake server.
func connectTo(t *testing.T, f *fakeMongod) *conn.Connection {
	addr := f.ln.Addr().(*net.TCPAddr)
	c, err := conn.New("127.0.0.1", addr.Port, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return c
}

func baseHandler(override func(ns string, query bson.M) []interface{}) func(ns string, query bson.M) []interface{} {
	return func(ns string, query bson.M) []interface{} {
		if _, ok := query["ismaster"]; ok {
			return []interface{}{bson.M{"ok": 1, "ismaster": true}}
		}
		if override != nil {
			if docs := override(ns, query); docs != nil {
				return docs
			}
		}
		return []interface{}{bson.M{"ok": 1}}
	}
}

func TestCollectionQueries(t *testing.T) {

	testutil.VerifyTestType(t, "unit")

	Convey("With a database over a fake server", t, func() {

		server := newFakeMongod(t, baseHandler(func(ns string, query bson.M) []interface{} {
			if ns == "app.widgets" {
				if query["sku"] == "missing" {
					return []interface{}{}
				}
				return []interface{}{
					bson.M{"sku": "a1", "qty": 7},
					bson.M{"sku": "a2", "qty": 9},
				}
			}
			return nil
		}))
		defer server.close()

		c := connectTo(t, server)
		defer c.Close()
		d := New(c, "app")
		widgets := d.C("widgets")

		Convey("the collection should know its namespace", func() {
			So(widgets.FullName(), ShouldEqual, "app.widgets")
		})

		Convey("Find should return the batch", func() {
			docs, err := widgets.Find(bson.M{"qty": bson.M{"$gt": 5}}, 0, 0)
			So(err, ShouldBeNil)
			So(len(docs), ShouldEqual, 2)
			So(docs[0]["sku"], ShouldEqual, "a1")
		})

		Convey("FindOne should decode into a struct", func() {
			var result struct {
				Sku string `bson:"sku"`
				Qty int    `bson:"qty"`
			}
			found, err := widgets.FindOne(bson.M{"sku": "a1"}, &result)
			So(err, ShouldBeNil)
			So(found, ShouldBeTrue)
			So(result.Sku, ShouldEqual, "a1")
			So(result.Qty, ShouldEqual, 7)
		})

		Convey("FindOne should report a miss without error", func() {
			found, err := widgets.FindOne(bson.M{"sku": "missing"}, nil)
			So(err, ShouldBeNil)
			So(found, ShouldBeFalse)
		})
	})
}

func TestSafeWrites(t *testing.T) {

	testutil.VerifyTestType(t, "unit")

	Convey("With a collection in safe mode", t, func() {

		server := newFakeMongod(t, baseHandler(nil))
		defer server.close()

		c := connectTo(t, server)
		defer c.Close()
		widgets := New(c, "app").C("widgets")
		widgets.Safe = bson.M{"w": 1}

		Convey("a safe insert should land on the server before returning", func() {
			So(widgets.Insert(bson.M{"sku": "a3"}), ShouldBeNil)
			So(server.insertCount("app.widgets"), ShouldEqual, 1)
		})

		Convey("a server-reported write error should surface", func() {
			server.mu.Lock()
			server.handler = baseHandler(func(ns string, query bson.M) []interface{} {
				if _, ok := query["getlasterror"]; ok {
					return []interface{}{bson.M{"ok": 1, "err": "duplicate key"}}
				}
				return nil
			})
			server.mu.Unlock()

			err := widgets.Insert(bson.M{"sku": "a3"})
			So(err, ShouldNotBeNil)
			opErr, ok := err.(*conn.OperationError)
			So(ok, ShouldBeTrue)
			So(opErr.Message, ShouldEqual, "duplicate key")
		})
	})
}

func TestRunCommand(t *testing.T) {

	testutil.VerifyTestType(t, "unit")

	Convey("With a database over a fake server", t, func() {

		server := newFakeMongod(t, baseHandler(func(ns string, query bson.M) []interface{} {
			if _, ok := query["count"]; ok {
				return []interface{}{bson.M{"ok": 1, "n": 3}}
			}
			if _, ok := query["broken"]; ok {
				return []interface{}{bson.M{"ok": 0, "errmsg": "no such command"}}
			}
			return nil
		}))
		defer server.close()

		c := connectTo(t, server)
		defer c.Close()
		d := New(c, "app")

		Convey("a string command should run as {name: 1}", func() {
			So(d.Run("ping", nil), ShouldBeNil)
		})

		Convey("Count should read n out of the reply", func() {
			n, err := d.C("widgets").Count(nil)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, int64(3))
		})

		Convey("a rejected command should surface as an operation error", func() {
			err := d.Run("broken", nil)
			So(err, ShouldNotBeNil)
			opErr, ok := err.(*conn.OperationError)
			So(ok, ShouldBeTrue)
			So(opErr.Message, ShouldEqual, "no such command")
		})
	})
}

func TestEnsureIndexCache(t *testing.T) {

	testutil.VerifyTestType(t, "unit")

	Convey("With a collection in safe mode", t, func() {

		server := newFakeMongod(t, baseHandler(nil))
		defer server.close()

		c := connectTo(t, server)
		defer c.Close()
		d := New(c, "app")
		chunks := d.C("fs.chunks")
		chunks.Safe = bson.M{"w": 1}

		Convey("repeated EnsureIndex calls should hit the server once", func() {
			So(chunks.EnsureIndex("files_id", "n"), ShouldBeNil)
			So(chunks.EnsureIndex("files_id", "n"), ShouldBeNil)
			So(server.insertCount("app.system.indexes"), ShouldEqual, 1)

			Convey("until the cache is dropped", func() {
				d.DropIndexCache()
				So(chunks.EnsureIndex("files_id", "n"), ShouldBeNil)
				So(server.insertCount("app.system.indexes"), ShouldEqual, 2)
			})
		})

		Convey("EnsureIndex with no keys should be rejected", func() {
			err := chunks.EnsureIndex()
			So(err, ShouldNotBeNil)
			_, ok := err.(*conn.ArgumentError)
			So(ok, ShouldBeTrue)
		})
	})
}

func TestGridFSHandle(t *testing.T) {

	testutil.VerifyTestType(t, "unit")

	Convey("Database.GridFS should wire the bucket collections", t, func() {

		server := newFakeMongod(t, baseHandler(nil))
		defer server.close()

		c := connectTo(t, server)
		defer c.Close()
		g := New(c, "app").GridFS("fs")

		files, ok := g.Files.(*Collection)
		So(ok, ShouldBeTrue)
		So(files.FullName(), ShouldEqual, "app.fs.files")
		chunks, ok := g.Chunks.(*Collection)
		So(ok, ShouldBeTrue)
		So(chunks.FullName(), ShouldEqual, "app.fs.chunks")
		So(g.Prefix, ShouldEqual, "fs")
	})
}
