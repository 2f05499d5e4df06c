package gridfs

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"reflect"
	"sort"
	"testing"

	"github.com/merizodb/merizo-driver/common/testutil"
	. "github.com/smartystreets/goconvey/convey"
	"gopkg.in/mgo.v2/bson"
)

// memCollection is an in-memory Collection for exercising the grid layer
// without a server. Documents are normalized through the BSON codec so
// they look exactly like decoded wire documents.
type memCollection struct {
	docs    []bson.M
	indexes [][]string
}

func normalize(doc interface{}) bson.M {
	raw, err := bson.Marshal(doc)
	if err != nil {
		panic(err)
	}
	out := bson.M{}
	if err := bson.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}

func matches(doc bson.M, selector bson.M) bool {
	for k, v := range selector {
		if !reflect.DeepEqual(doc[k], normalizeValue(v)) {
			return false
		}
	}
	return true
}

func normalizeValue(v interface{}) interface{} {
	wrapped := normalize(bson.M{"v": v})
	return wrapped["v"]
}

func (m *memCollection) FindOne(selector interface{}, result interface{}) (bool, error) {
	sel := normalize(selector)
	for _, doc := range m.docs {
		if matches(doc, sel) {
			if result != nil {
				raw, err := bson.Marshal(doc)
				if err != nil {
					return true, err
				}
				if err := bson.Unmarshal(raw, result); err != nil {
					return true, err
				}
			}
			return true, nil
		}
	}
	return false, nil
}

func (m *memCollection) Find(selector interface{}, limit, skip int32) ([]bson.M, error) {
	sel := normalize(selector)
	var out []bson.M
	for _, doc := range m.docs {
		if matches(doc, sel) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (m *memCollection) Insert(docs ...interface{}) error {
	for _, doc := range docs {
		m.docs = append(m.docs, normalize(doc))
	}
	return nil
}

func (m *memCollection) Remove(selector interface{}) error {
	sel := normalize(selector)
	kept := m.docs[:0]
	for _, doc := range m.docs {
		if !matches(doc, sel) {
			kept = append(kept, doc)
		}
	}
	m.docs = kept
	return nil
}

func (m *memCollection) EnsureIndex(keys ...string) error {
	m.indexes = append(m.indexes, keys)
	return nil
}

// memDB answers the filemd5 command from the chunk store, the way the
// server would.
type memDB struct {
	chunks *memCollection
}

func (d *memDB) Run(cmd interface{}, result interface{}) error {
	doc := normalize(cmd)
	id, ok := doc["filemd5"]
	if !ok {
		return nil
	}
	var chunks []bson.M
	for _, c := range d.chunks.docs {
		if reflect.DeepEqual(c["files_id"], id) {
			chunks = append(chunks, c)
		}
	}
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i]["n"].(int) < chunks[j]["n"].(int)
	})
	h := md5.New()
	for _, c := range chunks {
		h.Write(c["data"].([]byte))
	}
	raw, err := bson.Marshal(bson.M{"ok": 1, "md5": hex.EncodeToString(h.Sum(nil))})
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, result)
}

func newTestGrid() *GridFS {
	files := &memCollection{}
	chunks := &memCollection{}
	return New(&memDB{chunks: chunks}, files, chunks, "fs")
}

func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*7 + 3)
	}
	return data
}

func TestParseMode(t *testing.T) {

	testutil.VerifyTestType(t, "unit")

	Convey("Mode strings should map onto the closed set", t, func() {
		m, err := ParseMode("r")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, ModeRead)

		m, err = ParseMode("w")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, ModeWrite)

		m, err = ParseMode("w+")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, ModeAppend)

		_, err = ParseMode("a")
		So(err, ShouldNotBeNil)
		_, ok := err.(*GridError)
		So(ok, ShouldBeTrue)
	})
}

func TestChunkedRoundTrip(t *testing.T) {

	testutil.VerifyTestType(t, "unit")

	Convey("Writing 600 KiB with 256 KiB chunks", t, func() {

		g := newTestGrid()
		data := pattern(614016)

		f, err := g.Open("big.bin", ModeWrite, &Options{ChunkSize: 262144})
		So(err, ShouldBeNil)

		// write in uneven slices to cross chunk boundaries mid-call
		n, err := f.Write(data[:100000])
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 100000)
		n, err = f.Write(data[100000:])
		So(err, ShouldBeNil)
		So(n, ShouldEqual, len(data)-100000)
		So(f.Close(), ShouldBeNil)

		chunks := g.Chunks.(*memCollection)
		files := g.Files.(*memCollection)

		Convey("three chunks should exist with the right sizes", func() {
			So(len(chunks.docs), ShouldEqual, 3)
			sizes := map[int]int{}
			for _, c := range chunks.docs {
				sizes[c["n"].(int)] = len(c["data"].([]byte))
			}
			So(sizes, ShouldResemble, map[int]int{0: 262144, 1: 262144, 2: 89728})
		})

		Convey("(files_id, n) should be unique across chunks", func() {
			seen := map[string]bool{}
			for _, c := range chunks.docs {
				key := fmt.Sprintf("%v:%v", c["files_id"], c["n"])
				So(seen[key], ShouldBeFalse)
				seen[key] = true
			}
		})

		Convey("the files document should carry the finalized metadata", func() {
			So(len(files.docs), ShouldEqual, 1)
			doc := files.docs[0]
			So(doc["length"], ShouldEqual, 614016)
			So(doc["chunkSize"], ShouldEqual, 262144)
			sum := md5.Sum(data)
			So(doc["md5"], ShouldEqual, hex.EncodeToString(sum[:]))
		})

		Convey("reading the file back should match byte for byte", func() {
			r, err := g.Open("big.bin", ModeRead, nil)
			So(err, ShouldBeNil)
			got, err := r.ReadAll()
			So(err, ShouldBeNil)
			So(got, ShouldResemble, data)
			So(r.Tell(), ShouldEqual, int64(len(data)))
			So(r.Close(), ShouldBeNil)
		})
	})
}

func TestStreamingRead(t *testing.T) {

	testutil.VerifyTestType(t, "unit")

	Convey("With a three-chunk file of chunk size 10", t, func() {

		g := newTestGrid()
		data := pattern(25)

		f, err := g.Open("stream.bin", ModeWrite, &Options{ChunkSize: 10})
		So(err, ShouldBeNil)
		_, err = f.Write(data)
		So(err, ShouldBeNil)
		So(f.Close(), ShouldBeNil)

		r, err := g.Open("stream.bin", ModeRead, nil)
		So(err, ShouldBeNil)

		Convey("partial reads should advance across chunk boundaries", func() {
			buf := make([]byte, 7)
			for off := 0; off < 21; off += 7 {
				n, err := r.Read(buf)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 7)
				So(buf[:n], ShouldResemble, data[off:off+7])
				So(r.Tell(), ShouldEqual, int64(off+7))
			}

			Convey("the final short read should return what is left", func() {
				n, err := r.Read(buf)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 4)
				So(buf[:n], ShouldResemble, data[21:])

				n, err = r.Read(buf)
				So(err, ShouldEqual, io.EOF)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("a zero-length read should return immediately", func() {
			n, err := r.Read(nil)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})

		Convey("ReadAll mid-file should return the remainder", func() {
			buf := make([]byte, 12)
			_, err := io.ReadFull(r, buf)
			So(err, ShouldBeNil)
			rest, err := r.ReadAll()
			So(err, ShouldBeNil)
			So(rest, ShouldResemble, data[12:])
		})
	})
}

func TestSeek(t *testing.T) {

	testutil.VerifyTestType(t, "unit")

	Convey("With a 25-byte file in 10-byte chunks", t, func() {

		g := newTestGrid()
		data := pattern(25)

		f, err := g.Open("seek.bin", ModeWrite, &Options{ChunkSize: 10})
		So(err, ShouldBeNil)
		_, err = f.Write(data)
		So(err, ShouldBeNil)
		So(f.Close(), ShouldBeNil)

		r, err := g.Open("seek.bin", ModeRead, nil)
		So(err, ShouldBeNil)

		Convey("seeking from the start should land in the right chunk", func() {
			pos, err := r.Seek(13, io.SeekStart)
			So(err, ShouldBeNil)
			So(pos, ShouldEqual, int64(13))
			buf := make([]byte, 5)
			n, err := r.Read(buf)
			So(err, ShouldBeNil)
			So(buf[:n], ShouldResemble, data[13:18])
		})

		Convey("seeking from the current position should compose", func() {
			_, err := r.Seek(10, io.SeekStart)
			So(err, ShouldBeNil)
			pos, err := r.Seek(5, io.SeekCurrent)
			So(err, ShouldBeNil)
			So(pos, ShouldEqual, int64(15))
		})

		Convey("seeking from the end should go backwards", func() {
			pos, err := r.Seek(-5, io.SeekEnd)
			So(err, ShouldBeNil)
			So(pos, ShouldEqual, int64(20))
			got, err := r.ReadAll()
			So(err, ShouldBeNil)
			So(got, ShouldResemble, data[20:])
		})

		Convey("seeking before the start should fail", func() {
			_, err := r.Seek(-1, io.SeekStart)
			So(err, ShouldNotBeNil)
		})

		Convey("seeking a write handle should fail", func() {
			w, err := g.Open("other.bin", ModeWrite, &Options{ChunkSize: 10})
			So(err, ShouldBeNil)
			_, err = w.Seek(0, io.SeekStart)
			So(err, ShouldNotBeNil)
			_, ok := err.(*GridError)
			So(ok, ShouldBeTrue)
		})
	})
}

func TestModeEnforcement(t *testing.T) {

	testutil.VerifyTestType(t, "unit")

	Convey("With a stored file", t, func() {

		g := newTestGrid()
		f, err := g.Open("f.txt", ModeWrite, &Options{ChunkSize: 10})
		So(err, ShouldBeNil)
		_, err = f.Write([]byte("hello"))
		So(err, ShouldBeNil)
		So(f.Close(), ShouldBeNil)

		Convey("writing on a read handle should fail", func() {
			r, err := g.Open("f.txt", ModeRead, nil)
			So(err, ShouldBeNil)
			_, err = r.Write([]byte("nope"))
			So(err, ShouldNotBeNil)
			_, ok := err.(*GridError)
			So(ok, ShouldBeTrue)
		})

		Convey("reading on a write handle should fail", func() {
			w, err := g.Open("f.txt", ModeWrite, nil)
			So(err, ShouldBeNil)
			_, err = w.Read(make([]byte, 4))
			So(err, ShouldNotBeNil)
		})

		Convey("opening a missing file for read should fail", func() {
			_, err := g.Open("missing.txt", ModeRead, nil)
			So(err, ShouldNotBeNil)
			_, ok := err.(*GridError)
			So(ok, ShouldBeTrue)
		})
	})
}

func TestTruncateAndAppend(t *testing.T) {

	testutil.VerifyTestType(t, "unit")

	Convey("With a file written once", t, func() {

		g := newTestGrid()
		chunks := g.Chunks.(*memCollection)
		files := g.Files.(*memCollection)

		f, err := g.Open("f.txt", ModeWrite, &Options{ChunkSize: 10})
		So(err, ShouldBeNil)
		_, err = f.Write(pattern(25))
		So(err, ShouldBeNil)
		So(f.Close(), ShouldBeNil)
		firstUpload := files.docs[0]["uploadDate"]

		Convey("reopening in w mode should truncate the old chunks", func() {
			w, err := g.Open("f.txt", ModeWrite, nil)
			So(err, ShouldBeNil)
			_, err = w.Write([]byte("tiny"))
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)

			So(len(chunks.docs), ShouldEqual, 1)
			So(len(files.docs), ShouldEqual, 1)
			So(files.docs[0]["length"], ShouldEqual, 4)

			Convey("and the original upload date should be preserved", func() {
				So(files.docs[0]["uploadDate"], ShouldResemble, firstUpload)
			})

			Convey("and the compound chunk index should have been ensured", func() {
				ensured := false
				for _, keys := range chunks.indexes {
					if reflect.DeepEqual(keys, []string{"files_id", "n"}) {
						ensured = true
					}
				}
				So(ensured, ShouldBeTrue)
			})
		})

		Convey("reopening in w+ mode should append at the end", func() {
			w, err := g.Open("f.txt", ModeAppend, nil)
			So(err, ShouldBeNil)
			So(w.Tell(), ShouldEqual, int64(25))
			_, err = w.Write([]byte("xyz"))
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)

			r, err := g.Open("f.txt", ModeRead, nil)
			So(err, ShouldBeNil)
			got, err := r.ReadAll()
			So(err, ShouldBeNil)
			So(got, ShouldResemble, append(pattern(25), []byte("xyz")...))
			So(files.docs[0]["length"], ShouldEqual, 28)
		})

		Convey("appending to a fresh name should start at zero", func() {
			w, err := g.Open("new.txt", ModeAppend, &Options{ChunkSize: 10})
			So(err, ShouldBeNil)
			So(w.Tell(), ShouldEqual, int64(0))
			_, err = w.Write([]byte("ab"))
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)
			So(files.docs[1]["length"], ShouldEqual, 2)
		})
	})
}

func TestOpenCriteria(t *testing.T) {

	testutil.VerifyTestType(t, "unit")

	Convey("With two files sharing a name but not metadata", t, func() {

		g := newTestGrid()

		f, err := g.Open("shared.txt", ModeWrite,
			&Options{ChunkSize: 10, Metadata: bson.M{"owner": "ann"}})
		So(err, ShouldBeNil)
		_, err = f.Write([]byte("ann's"))
		So(err, ShouldBeNil)
		So(f.Close(), ShouldBeNil)

		Convey("criteria should narrow the files lookup", func() {
			_, err := g.Open("shared.txt", ModeRead,
				&Options{Criteria: bson.M{"metadata": bson.M{"owner": "bob"}}})
			So(err, ShouldNotBeNil)

			r, err := g.Open("shared.txt", ModeRead,
				&Options{Criteria: bson.M{"metadata": bson.M{"owner": "ann"}}})
			So(err, ShouldBeNil)
			got, err := r.ReadAll()
			So(err, ShouldBeNil)
			So(string(got), ShouldEqual, "ann's")
		})
	})
}

func TestRemove(t *testing.T) {

	testutil.VerifyTestType(t, "unit")

	Convey("Removing a filename should delete files and chunks", t, func() {

		g := newTestGrid()
		chunks := g.Chunks.(*memCollection)
		files := g.Files.(*memCollection)

		f, err := g.Open("gone.txt", ModeWrite, &Options{ChunkSize: 10})
		So(err, ShouldBeNil)
		_, err = f.Write(pattern(25))
		So(err, ShouldBeNil)
		So(f.Close(), ShouldBeNil)

		So(g.Remove("gone.txt"), ShouldBeNil)
		So(len(files.docs), ShouldEqual, 0)
		So(len(chunks.docs), ShouldEqual, 0)

		found, err := g.Exists("gone.txt", nil)
		So(err, ShouldBeNil)
		So(found, ShouldBeFalse)
	})
}
