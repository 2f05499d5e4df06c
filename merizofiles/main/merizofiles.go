package main

import (
	"fmt"
	"os"

	"github.com/howeyc/gopass"
	"github.com/merizodb/merizo-driver/common/log"
	commonOpts "github.com/merizodb/merizo-driver/common/options"
	"github.com/merizodb/merizo-driver/common/signals"
	"github.com/merizodb/merizo-driver/common/util"
	"github.com/merizodb/merizo-driver/merizofiles"
	"github.com/merizodb/merizo-driver/merizofiles/options"
)

const (
	Usage = `[options] command [grid filename]
        command:
          one of (list|search|put|get|delete)
          list - list all files.  'grid filename' is an optional prefix
                 which listed filenames must begin with.
          search - search all files. 'grid filename' is a substring
                   which listed filenames must contain.
          put - add a file with filename 'grid filename'
          get - get a file with filename 'grid filename'
          delete - delete all files with filename 'grid filename'
        `
)

func main() {

	go signals.Handle()

	// initialize command-line opts
	opts := commonOpts.New("merizofiles", Usage, commonOpts.EnabledOptions{
		Auth: true, Connection: true, Namespace: true,
	})

	storageOpts := &options.StorageOptions{}
	opts.AddOptions(storageOpts)

	args, err := opts.Parse()
	if err != nil {
		log.Logf(log.Always, "error parsing command line options: %v", err)
		opts.PrintHelp(true)
		os.Exit(util.ExitError)
	}

	// print help, if specified
	if opts.PrintHelp(false) {
		return
	}

	// print version, if specified
	if opts.PrintVersion() {
		return
	}

	log.SetVerbosity(opts.Verbosity)

	fileName, err := merizofiles.ValidateCommand(args)
	if err != nil {
		log.Logf(log.Always, "error: %v", err)
		opts.PrintHelp(true)
		os.Exit(util.ExitError)
	}

	// a username without a password means an interactive prompt
	if opts.Username != "" && opts.Password == "" {
		pass, err := gopass.GetPasswdPrompt("Enter password: ", true, os.Stdin, os.Stderr)
		if err != nil {
			log.Logf(log.Always, "error reading password: %v", err)
			os.Exit(util.ExitError)
		}
		opts.Password = string(pass)
	}

	mf := merizofiles.MerizoFiles{
		ToolOptions:    opts,
		StorageOptions: storageOpts,
		Command:        args[0],
		FileName:       fileName,
	}

	if err := mf.Connect(); err != nil {
		log.Logf(log.Always, "error connecting: %v", err)
		os.Exit(util.ExitError)
	}
	defer mf.Close()

	output, err := mf.Run(true)
	if err != nil {
		log.Logf(log.Always, "%v", err)
		os.Exit(util.ExitError)
	}
	fmt.Printf("%s", output)
}
