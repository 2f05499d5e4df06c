// Package merizofiles implements the file bucket tool: listing, storing,
// retrieving, and deleting chunked files over the driver stack.
package merizofiles

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/merizodb/merizo-driver/common/conn"
	"github.com/merizodb/merizo-driver/common/db"
	"github.com/merizodb/merizo-driver/common/gridfs"
	"github.com/merizodb/merizo-driver/common/log"
	commonOpts "github.com/merizodb/merizo-driver/common/options"
	"github.com/merizodb/merizo-driver/common/progress"
	"github.com/merizodb/merizo-driver/common/text"
	"github.com/merizodb/merizo-driver/common/util"
	"github.com/merizodb/merizo-driver/merizofiles/options"
	"gopkg.in/mgo.v2/bson"
)

const (
	// list of possible commands for merizofiles
	List   = "list"
	Search = "search"
	Put    = "put"
	Get    = "get"
	Delete = "delete"
)

// how many bytes move per copy iteration when streaming files
const copyBufferSize = 32 * 1024

type MerizoFiles struct {
	// generic tool options
	ToolOptions *commonOpts.ToolOptions

	// merizofiles-specific storage options
	StorageOptions *options.StorageOptions

	// command to run
	Command string
	// filename in the bucket
	FileName string

	// the open connection, established by Connect
	conn *conn.Connection
}

func ValidateCommand(args []string) (string, error) {
	// make sure a command is specified and that we don't have
	// too many arguments
	if len(args) == 0 {
		return "", fmt.Errorf("you must specify a command")
	} else if len(args) > 2 {
		return "", fmt.Errorf("too many positional arguments")
	}

	var fileName string
	switch args[0] {
	case List:
		if len(args) == 1 {
			fileName = ""
		} else {
			fileName = args[1]
		}
	case Search, Put, Get, Delete:
		// also make sure the supporting argument isn't literally an
		// empty string, for example, merizofiles get ""
		if len(args) == 1 || args[1] == "" {
			return "", fmt.Errorf("'%v' requires a non-empty supporting argument", args[0])
		}
		fileName = args[1]
	default:
		return "", fmt.Errorf("'%v' is not a valid command", args[0])
	}

	return fileName, nil
}

// Connect dials the configured nodes and applies any credentials. It must
// run before Run.
func (mf *MerizoFiles) Connect() error {
	connOpts := &conn.Options{
		PoolSize: mf.ToolOptions.PoolSize,
		Timeout:  time.Duration(mf.ToolOptions.Timeout * float64(time.Second)),
		SlaveOK:  mf.ToolOptions.SlaveOK,
		Logger:   log.NewToolLogger(mf.ToolOptions.Verbosity),
	}

	var c *conn.Connection
	var err error
	switch {
	case mf.ToolOptions.URI != "":
		c, err = conn.NewFromURI(mf.ToolOptions.URI, connOpts)
	default:
		port := util.DefaultPort
		if mf.ToolOptions.Port != "" {
			port, err = strconv.Atoi(mf.ToolOptions.Port)
			if err != nil {
				return fmt.Errorf("invalid port %q", mf.ToolOptions.Port)
			}
		}
		hosts := util.ParseHost(mf.ToolOptions.Host)
		switch len(hosts) {
		case 1:
			c, err = conn.New(hosts[0], port, connOpts)
		case 2:
			nodes := []conn.Addr{
				{Host: hosts[0], Port: port},
				{Host: hosts[1], Port: port},
			}
			c, err = conn.NewPaired(nodes, connOpts)
		default:
			return fmt.Errorf("--host takes one node or a two-node pair")
		}
	}
	if err != nil {
		return err
	}

	if mf.ToolOptions.Username != "" {
		authDB := mf.ToolOptions.GetAuthenticationDatabase()
		if authDB == "" {
			authDB = "test"
		}
		if err := c.Authenticate(authDB, mf.ToolOptions.Username, mf.ToolOptions.Password); err != nil {
			c.Close()
			return err
		}
	}

	mf.conn = c
	return nil
}

// Close releases the connection.
func (mf *MerizoFiles) Close() {
	if mf.conn != nil {
		mf.conn.Close()
	}
}

// Return local file (set by --local optional flag) name, or default to
// mf.FileName.
func (mf *MerizoFiles) getLocalFileName() string {
	localFileName := mf.StorageOptions.LocalFileName
	if localFileName == "" {
		localFileName = mf.FileName
	}
	return localFileName
}

// listQuery builds the files selector for the list command: an optional
// prefix the filenames must begin with.
func listQuery(prefix string) bson.M {
	if prefix == "" {
		return bson.M{}
	}
	return bson.M{"filename": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
}

// searchQuery builds the files selector for the search command: a
// substring the filenames must contain.
func searchQuery(needle string) bson.M {
	return bson.M{"filename": bson.M{"$regex": regexp.QuoteMeta(needle)}}
}

// query the bucket for files and display the results
func (mf *MerizoFiles) findAndDisplay(gfs *gridfs.GridFS, query bson.M) (string, error) {
	display := ""

	docs, err := gfs.Files.Find(query, 0, 0)
	if err != nil {
		return "", fmt.Errorf("error retrieving list of files: %v", err)
	}

	for _, doc := range docs {
		var length int64
		switch v := doc["length"].(type) {
		case int:
			length = int64(v)
		case int64:
			length = v
		}
		display += fmt.Sprintf("%s\t%s\n", doc["filename"], text.FormatByteAmount(length))
	}

	return display, nil
}

// handle logic for 'get' command
func (mf *MerizoFiles) handleGet(gfs *gridfs.GridFS) (string, error) {
	gFile, err := gfs.Open(mf.FileName, gridfs.ModeRead, nil)
	if err != nil {
		return "", fmt.Errorf("error opening file '%s': %v", mf.FileName, err)
	}
	defer gFile.Close()

	localFileName := mf.getLocalFileName()
	localFile, err := os.Create(localFileName)
	if err != nil {
		return "", fmt.Errorf("error while opening local file '%v': %v", localFileName, err)
	}
	defer localFile.Close()
	log.Logf(log.DebugLow, "created local file '%v'", localFileName)

	bar := &progress.Bar{
		Name:      mf.FileName,
		Max:       gFile.Length(),
		BarLength: 24,
		Writer:    log.Writer(log.Info),
	}
	bar.Start()
	defer bar.Stop()

	if err := copyWithProgress(localFile, gFile, bar); err != nil {
		return "", fmt.Errorf("error while writing data into local file '%v': %v", localFileName, err)
	}

	return fmt.Sprintf("Finished writing to: %s\n", localFileName), nil
}

// handle logic for 'put' command
func (mf *MerizoFiles) handlePut(gfs *gridfs.GridFS) (string, error) {
	localFileName := mf.getLocalFileName()

	var output string

	// check if --replace flag turned on
	if mf.StorageOptions.Replace {
		if err := gfs.Remove(mf.FileName); err != nil {
			return "", err
		}
		output = fmt.Sprintf("removed all instances of '%v' from the bucket\n", mf.FileName)
	}

	localFile, err := os.Open(localFileName)
	if err != nil {
		return "", fmt.Errorf("error while opening local file '%v' : %v", localFileName, err)
	}
	defer localFile.Close()
	stat, err := localFile.Stat()
	if err != nil {
		return "", err
	}
	log.Logf(log.DebugLow, "creating bucket file '%v' from local file '%v'", mf.FileName, localFileName)

	gridOpts := &gridfs.Options{ChunkSize: mf.StorageOptions.ChunkSize}
	if mf.StorageOptions.ContentType != "" {
		gridOpts.ContentType = mf.StorageOptions.ContentType
	}
	gFile, err := gfs.Open(mf.FileName, gridfs.ModeWrite, gridOpts)
	if err != nil {
		return "", fmt.Errorf("error while creating '%v' in the bucket: %v", mf.FileName, err)
	}

	bar := &progress.Bar{
		Name:      mf.FileName,
		Max:       stat.Size(),
		BarLength: 24,
		Writer:    log.Writer(log.Info),
	}
	bar.Start()
	defer bar.Stop()

	if err := copyWithProgress(gFile, localFile, bar); err != nil {
		gFile.Close()
		return "", fmt.Errorf("error while storing '%v' into the bucket: %v", localFileName, err)
	}
	if err := gFile.Close(); err != nil {
		return "", err
	}

	output += fmt.Sprintf("added file: %v\n", gFile.Name())
	return output, nil
}

func copyWithProgress(dst io.Writer, src io.Reader, bar *progress.Bar) error {
	buf := make([]byte, copyBufferSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			bar.Add(int64(n))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Run the merizofiles utility
func (mf *MerizoFiles) Run(displayConnUrl bool) (string, error) {
	if mf.conn == nil {
		return "", fmt.Errorf("not connected; call Connect first")
	}

	if displayConnUrl {
		fmt.Printf("connected to: %v:%v\n", mf.conn.Host(), mf.conn.Port())
	}

	dbName := mf.ToolOptions.DB
	if dbName == "" {
		dbName = "test"
	}

	// validate the namespaces we'll be using: <db>.<prefix>.files and
	// <db>.<prefix>.chunks; it's enough to check the longer one
	err := util.ValidateFullNamespace(fmt.Sprintf("%s.%s.chunks", dbName,
		mf.StorageOptions.GridPrefix))
	if err != nil {
		return "", err
	}

	// get a handle on the file bucket
	gfs := db.New(mf.conn, dbName).GridFS(mf.StorageOptions.GridPrefix)

	var output string

	log.Logf(log.Info, "handling merizofiles '%v' command...", mf.Command)

	switch mf.Command {

	case List:

		output, err = mf.findAndDisplay(gfs, listQuery(mf.FileName))
		if err != nil {
			return "", err
		}

	case Search:

		output, err = mf.findAndDisplay(gfs, searchQuery(mf.FileName))
		if err != nil {
			return "", err
		}

	case Get:

		output, err = mf.handleGet(gfs)
		if err != nil {
			return "", err
		}

	case Put:

		output, err = mf.handlePut(gfs)
		if err != nil {
			return "", err
		}

	case Delete:

		err = gfs.Remove(mf.FileName)
		if err != nil {
			return "", fmt.Errorf("error while removing '%v' from the bucket: %v", mf.FileName, err)
		}
		output = fmt.Sprintf("successfully deleted all instances of '%v' from the bucket\n", mf.FileName)

	}

	return output, nil
}
