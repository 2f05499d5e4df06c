// Package progress renders a simple linear ASCII visualization of a byte
// transfer that is underway.
package progress

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/merizodb/merizo-driver/common/text"
)

const (
	DefaultWaitTime = 3 * time.Second

	BarFilling = "#"
	BarEmpty   = "."
	BarLeft    = "["
	BarRight   = "]"
)

// Bar concurrently monitors the progress of a byte transfer.
type Bar struct {
	// Name is an identifier printed along with the bar
	Name string
	// Max is the total number of bytes the transfer is expected to move
	Max int64
	// BarLength is the number of characters used to print the bar
	BarLength int
	// Writer is where the Bar is written out to
	Writer io.Writer
	// WaitTime is the time to wait between writing the bar
	WaitTime time.Duration

	current  int64
	stopChan chan struct{}
}

// Add records moved bytes. Safe to call from the transfer goroutine while
// the bar renders.
func (b *Bar) Add(n int64) {
	atomic.AddInt64(&b.current, n)
}

// Current returns the number of bytes recorded so far.
func (b *Bar) Current() int64 {
	return atomic.LoadInt64(&b.current)
}

// Start starts the rendering goroutine. Once Start is called, a bar will
// be written to the given Writer at regular intervals until Stop. The bar
// must be fully set up before calling this; panics if started twice.
func (b *Bar) Start() {
	b.validate()
	b.stopChan = make(chan struct{})

	go b.run()
}

// validate does a set of sanity checks against the progress bar, and
// panics if the bar is unfit for use.
func (b *Bar) validate() {
	if b.Writer == nil {
		panic("cannot use a progress bar with an unset Writer")
	}
	if b.stopChan != nil {
		panic("cannot start a progress bar more than once")
	}
}

// Stop kills the rendering goroutine. Generally called as
//
//	bar.Start()
//	defer bar.Stop()
//
// to stop leakage.
func (b *Bar) Stop() {
	close(b.stopChan)
}

func (b *Bar) run() {
	if b.WaitTime <= 0 {
		b.WaitTime = DefaultWaitTime
	}
	ticker := time.NewTicker(b.WaitTime)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.renderToWriter()
		}
	}
}

// renderToWriter computes all necessary values and renders to the bar's
// Writer.
func (b *Bar) renderToWriter() {
	current := b.Current()
	percent := float64(current) / float64(b.Max)
	fmt.Fprintf(b.Writer, "%v %v\t%v/%v (%2.1f%%)\n",
		drawBar(b.BarLength, percent),
		b.Name,
		text.FormatByteAmount(current),
		text.FormatByteAmount(b.Max),
		percent*100,
	)
}

// drawBar returns a drawn progress bar of a given width and percentage
// as a string. Examples:
//
//	[........................]
//	[###########.............]
//	[########################]
func drawBar(spaces int, percent float64) string {
	if spaces <= 0 {
		return ""
	}
	var strBuffer bytes.Buffer
	strBuffer.WriteString(BarLeft)

	// the number of "#" to draw
	fullSpaces := int(percent * float64(spaces))

	// some bounds for ensuring a constant width, even with weird inputs
	if fullSpaces > spaces {
		fullSpaces = spaces
	}
	if fullSpaces < 0 {
		fullSpaces = 0
	}

	// write the "#"s for the current percentage
	for i := 0; i < fullSpaces; i++ {
		strBuffer.WriteString(BarFilling)
	}
	// fill out the remainder of the bar
	for i := 0; i < spaces-fullSpaces; i++ {
		strBuffer.WriteString(BarEmpty)
	}
	strBuffer.WriteString(BarRight)
	return strBuffer.String()
}
