//go:build !windows

package signals

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/merizodb/merizo-driver/common/util"
)

func Handle() {
	// make the chan buffered to avoid a race where the signal comes in
	// after we start notifying but before we start listening
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan
	os.Exit(util.ExitKill)
}
