package gridfs

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/mgo.v2/bson"
)

// fileDoc is the persisted shape of one logical file.
type fileDoc struct {
	ID          interface{} `bson:"_id"`
	Filename    string      `bson:"filename"`
	ContentType string      `bson:"contentType"`
	Length      int64       `bson:"length"`
	ChunkSize   int         `bson:"chunkSize"`
	UploadDate  time.Time   `bson:"uploadDate"`
	Aliases     []string    `bson:"aliases,omitempty"`
	Metadata    bson.M      `bson:"metadata,omitempty"`
	MD5         string      `bson:"md5"`
}

// chunkDoc is the persisted shape of one chunk. Data is the raw payload.
type chunkDoc struct {
	ID      bson.ObjectId `bson:"_id"`
	FilesID interface{}   `bson:"files_id"`
	N       int           `bson:"n"`
	Data    []byte        `bson:"data"`
}

// GridFile is a seekable, position-tracked handle on one logical file.
// The current chunk is the one containing the file position, and the chunk
// position is the offset within its data, with one exception: when the
// position reaches the end of a chunk, the cursor stays on that chunk with
// the chunk position equal to its length until the next read or write
// moves on.
type GridFile struct {
	gfs  *GridFS
	mode FileMode

	filesID     interface{}
	filename    string
	contentType string
	chunkSize   int
	length      int64
	uploadDate  time.Time
	aliases     []string
	metadata    bson.M
	md5         string

	position int64     // absolute offset in the file
	chunk    *chunkDoc // last-fetched or under-construction chunk
	chunkPos int       // offset within chunk.Data
}

// Open opens filename in the given mode. Read mode requires the file to
// exist; the write modes create it on close if needed.
func (g *GridFS) Open(filename string, mode FileMode, opts *Options) (*GridFile, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ContentType == "" {
		o.ContentType = DefaultContentType
	}

	f := &GridFile{gfs: g, mode: mode, filename: filename}

	var doc fileDoc
	found, err := g.Files.FindOne(fileSelector(filename, o.Criteria), &doc)
	if err != nil {
		return nil, err
	}
	if found {
		f.filesID = doc.ID
		f.contentType = doc.ContentType
		f.length = doc.Length
		f.chunkSize = doc.ChunkSize
		f.uploadDate = doc.UploadDate
		f.aliases = doc.Aliases
		f.metadata = doc.Metadata
		f.md5 = doc.MD5
	} else {
		f.filesID = o.FilesID
		if f.filesID == nil {
			f.filesID = bson.NewObjectId()
		}
		f.contentType = o.ContentType
		f.chunkSize = o.ChunkSize
		f.aliases = o.Aliases
		f.metadata = o.Metadata
	}

	switch mode {
	case ModeRead:
		if !found {
			return nil, &GridError{Message: fmt.Sprintf("file %q does not exist", filename)}
		}
		f.chunk, err = f.getChunk(0)
		if err != nil {
			return nil, err
		}
		f.position = 0
		f.chunkPos = 0

	case ModeWrite:
		if err := g.Chunks.Remove(bson.M{"files_id": f.filesID}); err != nil {
			return nil, err
		}
		if err := g.Chunks.EnsureIndex("files_id", "n"); err != nil {
			return nil, err
		}
		f.chunk = f.newChunk(0)
		f.position = 0
		f.chunkPos = 0

	case ModeAppend:
		if err := g.Chunks.EnsureIndex("files_id", "n"); err != nil {
			return nil, err
		}
		last := f.lastChunkNumber()
		c, err := f.getChunk(last)
		if err != nil {
			return nil, err
		}
		if c == nil {
			c = f.newChunk(last)
		}
		f.chunk = c
		f.chunkPos = len(c.Data)
		f.position = f.length

	default:
		return nil, &GridError{Message: fmt.Sprintf("illegal mode %v", mode)}
	}

	return f, nil
}

// FilesID returns the _id of the underlying files document.
func (f *GridFile) FilesID() interface{} { return f.filesID }

// Name returns the filename the handle was opened with.
func (f *GridFile) Name() string { return f.filename }

// Length returns the file length recorded at open (read mode) or
// finalized at close (write modes).
func (f *GridFile) Length() int64 { return f.length }

// ContentType returns the file's MIME type.
func (f *GridFile) ContentType() string { return f.contentType }

// SetContentType overrides the MIME type stored at close.
func (f *GridFile) SetContentType(ctype string) { f.contentType = ctype }

// MD5 returns the server-computed digest, available after close for write
// handles.
func (f *GridFile) MD5() string { return f.md5 }

// UploadDate returns the stored upload timestamp.
func (f *GridFile) UploadDate() time.Time { return f.uploadDate }

// lastChunkNumber is the index of the chunk holding file offset length:
// the chunk containing the final byte, or the next (not yet stored) chunk
// when the length is zero or an exact multiple of the chunk size.
func (f *GridFile) lastChunkNumber() int {
	return int(f.length / int64(f.chunkSize))
}

func (f *GridFile) getChunk(n int) (*chunkDoc, error) {
	var c chunkDoc
	found, err := f.gfs.Chunks.FindOne(bson.M{"files_id": f.filesID, "n": n}, &c)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &c, nil
}

func (f *GridFile) newChunk(n int) *chunkDoc {
	return &chunkDoc{
		ID:      bson.NewObjectId(),
		FilesID: f.filesID,
		N:       n,
		Data:    []byte{},
	}
}

// saveChunk persists a chunk, replacing any previous version of the same
// document: a delete on _id followed by an insert.
func (f *GridFile) saveChunk(c *chunkDoc) error {
	if err := f.gfs.Chunks.Remove(bson.M{"_id": c.ID}); err != nil {
		return err
	}
	return f.gfs.Chunks.Insert(c)
}

// Read fills p from the current position, crossing chunk boundaries as
// needed and advancing the cursor by the bytes consumed. Reads past the
// final chunk return what is available; a read at end of file returns
// io.EOF.
func (f *GridFile) Read(p []byte) (int, error) {
	if f.mode != ModeRead {
		return 0, &GridError{Message: "file is not opened for reading"}
	}
	if len(p) == 0 {
		return 0, nil
	}

	read := 0
	for read < len(p) {
		if f.chunk == nil {
			break
		}
		if f.chunkPos >= len(f.chunk.Data) {
			next, err := f.getChunk(f.chunk.N + 1)
			if err != nil {
				return read, err
			}
			if next == nil {
				break
			}
			f.chunk = next
			f.chunkPos = 0
			continue
		}
		n := copy(p[read:], f.chunk.Data[f.chunkPos:])
		read += n
		f.chunkPos += n
		f.position += int64(n)
	}

	if read == 0 {
		return 0, io.EOF
	}
	return read, nil
}

// ReadAll returns everything from the current position to the end of the
// file. At position zero this is the whole-file path, concatenating the
// chunks in order.
func (f *GridFile) ReadAll() ([]byte, error) {
	if f.mode != ModeRead {
		return nil, &GridError{Message: "file is not opened for reading"}
	}

	size := f.length - f.position
	if size < 0 {
		size = 0
	}
	buf := make([]byte, 0, size)
	for f.chunk != nil {
		buf = append(buf, f.chunk.Data[f.chunkPos:]...)
		f.position += int64(len(f.chunk.Data) - f.chunkPos)
		f.chunkPos = len(f.chunk.Data)

		next, err := f.getChunk(f.chunk.N + 1)
		if err != nil {
			return nil, err
		}
		if next == nil {
			break
		}
		f.chunk = next
		f.chunkPos = 0
	}
	return buf, nil
}

// Write appends p at the current position, persisting each touched chunk
// write-through. A chunk that fills up is persisted and succeeded by the
// next index.
func (f *GridFile) Write(p []byte) (int, error) {
	if !f.mode.writable() {
		return 0, &GridError{Message: "file is not opened for writing"}
	}

	written := 0
	for written < len(p) {
		if f.chunkPos == f.chunkSize {
			if err := f.saveChunk(f.chunk); err != nil {
				return written, err
			}
			f.chunk = f.newChunk(f.chunk.N + 1)
			f.chunkPos = 0
		}

		n := len(p) - written
		if space := f.chunkSize - f.chunkPos; n > space {
			n = space
		}
		f.chunk.Data = append(f.chunk.Data, p[written:written+n]...)
		f.chunkPos += n
		f.position += int64(n)
		written += n

		if err := f.saveChunk(f.chunk); err != nil {
			return written, err
		}
	}
	return written, nil
}

// Seek repositions the read cursor and returns the new absolute position.
// Only read handles may seek.
func (f *GridFile) Seek(offset int64, whence int) (int64, error) {
	if f.mode != ModeRead {
		return 0, &GridError{Message: "seek is only allowed in read mode"}
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = f.position + offset
	case io.SeekEnd:
		target = f.length + offset
	default:
		return 0, &GridError{Message: fmt.Sprintf("unknown seek whence %v", whence)}
	}
	if target < 0 {
		return 0, &GridError{Message: "cannot seek before the start of the file"}
	}

	targetChunk := int(target / int64(f.chunkSize))
	if f.chunk == nil || targetChunk != f.chunk.N {
		c, err := f.getChunk(targetChunk)
		if err != nil {
			return 0, err
		}
		// nil when seeking past the last chunk; reads there hit EOF
		f.chunk = c
	}
	f.position = target
	f.chunkPos = int(target % int64(f.chunkSize))
	return f.position, nil
}

// Tell returns the current absolute position.
func (f *GridFile) Tell() int64 {
	return f.position
}

// Close finalizes the file. Write handles persist the trailing chunk,
// recompute the length from the chunk layout, obtain the server-side
// digest, and rewrite the files document (preserving the upload date
// after the first close). Read handles close without effect.
func (f *GridFile) Close() error {
	if f.mode == ModeRead {
		return nil
	}

	if err := f.saveChunk(f.chunk); err != nil {
		return err
	}
	f.length = int64(f.chunk.N)*int64(f.chunkSize) + int64(f.chunkPos)
	if f.uploadDate.IsZero() {
		f.uploadDate = time.Now()
	}

	var res struct {
		MD5 string `bson:"md5"`
	}
	cmd := bson.D{
		{Name: "filemd5", Value: f.filesID},
		{Name: "root", Value: f.gfs.Prefix},
	}
	if err := f.gfs.DB.Run(cmd, &res); err != nil {
		return errors.Wrap(err, "computing file digest")
	}
	f.md5 = res.MD5

	if err := f.gfs.Files.Remove(bson.M{"_id": f.filesID}); err != nil {
		return err
	}
	return f.gfs.Files.Insert(&fileDoc{
		ID:          f.filesID,
		Filename:    f.filename,
		ContentType: f.contentType,
		Length:      f.length,
		ChunkSize:   f.chunkSize,
		UploadDate:  f.uploadDate,
		Aliases:     f.aliases,
		Metadata:    f.metadata,
		MD5:         f.md5,
	})
}
