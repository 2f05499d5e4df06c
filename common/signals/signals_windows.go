//go:build windows

package signals

import (
	"os"
	"os/signal"

	"github.com/merizodb/merizo-driver/common/util"
)

func Handle() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	<-sigChan
	os.Exit(util.ExitKill)
}
