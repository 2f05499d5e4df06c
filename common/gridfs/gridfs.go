// Package gridfs implements the chunked-file layer: logical files stored
// as an ordered sequence of fixed-size chunk documents in a files/chunks
// collection pair.
package gridfs

import (
	"fmt"

	"gopkg.in/mgo.v2/bson"
)

const (
	// DefaultChunkSize is the data payload size of a full chunk document.
	DefaultChunkSize = 262144

	DefaultContentType = "text/plain"
)

// GridError reports misuse of a grid file: unknown open modes, writes on
// read handles, seeks on write handles, or opening a missing file for
// reading.
type GridError struct {
	Message string
}

func (e *GridError) Error() string {
	return e.Message
}

// FileMode is the closed set of open modes for a grid file.
type FileMode int

const (
	// ModeRead opens an existing file for streaming reads and seeks.
	ModeRead FileMode = iota
	// ModeWrite truncates (or creates) the file and appends from offset 0.
	ModeWrite
	// ModeAppend appends to the end of an existing or new file.
	ModeAppend
)

func (m FileMode) String() string {
	switch m {
	case ModeRead:
		return "r"
	case ModeWrite:
		return "w"
	case ModeAppend:
		return "w+"
	default:
		return fmt.Sprintf("FileMode(%d)", int(m))
	}
}

// ParseMode maps the conventional open-mode strings onto the closed set.
func ParseMode(s string) (FileMode, error) {
	switch s {
	case "r":
		return ModeRead, nil
	case "w":
		return ModeWrite, nil
	case "w+":
		return ModeAppend, nil
	}
	return 0, &GridError{Message: fmt.Sprintf("illegal mode %q", s)}
}

func (m FileMode) writable() bool {
	return m == ModeWrite || m == ModeAppend
}

// Collection is the slice of the collection façade the grid layer needs.
type Collection interface {
	FindOne(selector interface{}, result interface{}) (bool, error)
	Find(selector interface{}, limit, skip int32) ([]bson.M, error)
	Insert(docs ...interface{}) error
	Remove(selector interface{}) error
	EnsureIndex(keys ...string) error
}

// CommandRunner runs a database command; the grid layer uses it for the
// server-side digest on close.
type CommandRunner interface {
	Run(cmd interface{}, result interface{}) error
}

// GridFS is a handle on one file bucket: a files collection holding one
// document per logical file and a chunks collection keyed by
// (files_id, n).
type GridFS struct {
	DB     CommandRunner
	Files  Collection
	Chunks Collection
	Prefix string
}

// New returns a grid layer over the given collection pair. Prefix names
// the bucket for server-side commands.
func New(db CommandRunner, files, chunks Collection, prefix string) *GridFS {
	return &GridFS{DB: db, Files: files, Chunks: chunks, Prefix: prefix}
}

// Options tune an Open call. The zero value takes every default.
type Options struct {
	// ChunkSize overrides DefaultChunkSize for new files.
	ChunkSize int
	// ContentType overrides DefaultContentType for new files.
	ContentType string
	// FilesID forces the _id of a new file instead of a fresh ObjectId.
	FilesID interface{}
	// Metadata is stored verbatim in the files document.
	Metadata bson.M
	// Aliases is stored verbatim in the files document.
	Aliases []string
	// Criteria narrows the files lookup beyond the filename.
	Criteria bson.M
}

// Exists reports whether a file document matching filename (and criteria)
// is present.
func (g *GridFS) Exists(filename string, criteria bson.M) (bool, error) {
	selector := fileSelector(filename, criteria)
	return g.Files.FindOne(selector, nil)
}

// Remove deletes every file named filename along with its chunks.
func (g *GridFS) Remove(filename string) error {
	docs, err := g.Files.Find(bson.M{"filename": filename}, 0, 0)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		id := doc["_id"]
		if err := g.Chunks.Remove(bson.M{"files_id": id}); err != nil {
			return err
		}
		if err := g.Files.Remove(bson.M{"_id": id}); err != nil {
			return err
		}
	}
	return nil
}

func fileSelector(filename string, criteria bson.M) bson.M {
	selector := bson.M{"filename": filename}
	for k, v := range criteria {
		selector[k] = v
	}
	return selector
}
