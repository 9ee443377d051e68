package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"yaftp/internal/catalog"
	"yaftp/internal/transport"
	"yaftp/pkg/utils"
)

// ConsoleUI draws a progress bar per transfer and prints a summary when the
// transfer ends. It observes one transfer at a time; events for a different
// file replace the current bar.
type ConsoleUI struct {
	out io.Writer

	mu        sync.Mutex
	bar       *progressbar.ProgressBar
	operation string // "Sending" or "Receiving"
	filename  string
	startTime time.Time
}

// NewConsoleUI creates a console UI writing to out (stderr when nil)
func NewConsoleUI(out io.Writer) *ConsoleUI {
	if out == nil {
		out = os.Stderr
	}
	return &ConsoleUI{out: out}
}

// ShowMessage displays a message to the user
func (c *ConsoleUI) ShowMessage(message string) {
	fmt.Fprintln(c.out, message)
}

// ShowListing prints the catalog offered by the server
func (c *ConsoleUI) ShowListing(listing *catalog.Catalog) {
	if listing.Len() == 0 {
		fmt.Fprintln(c.out, "No files available.")
		return
	}
	fmt.Fprintln(c.out, "Available files:")
	for _, e := range listing.Entries() {
		fmt.Fprintf(c.out, "  %-40s %10s\n", e.Name, utils.FormatFileSize(int64(e.Size)))
	}
}

// OnEvent implements transport.Observer
func (c *ConsoleUI) OnEvent(e transport.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.sized(e) {
		return
	}
	if c.bar == nil || c.filename != e.Name {
		c.startProgress(operation(e.Direction), e.Name, e.Size)
	}
	_ = c.bar.Set64(int64(e.Bytes))

	if !e.Done() {
		return
	}
	if e.Failed() {
		_ = c.bar.Exit()
		fmt.Fprintf(c.out, "\n%s %s failed after %s: %v\n",
			c.operation, c.filename, utils.FormatFileSize(int64(e.Bytes)), e.Err)
	} else {
		_ = c.bar.Finish()
		c.showTransferSummary(e.Bytes, time.Since(c.startTime))
	}
	c.bar = nil
	c.filename = ""
}

// ByteProgress returns a bar for a download that reports raw bytes instead
// of transfer events. The bar is safe for concurrent writers.
func (c *ConsoleUI) ByteProgress(name string, size int64) io.Writer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startProgress("Receiving", name, uint64(size))

	// not tracked as the current transfer; no events arrive for it
	bar := c.bar
	c.bar, c.filename = nil, ""
	return bar
}

// sized reports whether the transfer size is known yet. A receiver waiting
// for the size reply has nothing to draw unless it already failed.
func (c *ConsoleUI) sized(e transport.Event) bool {
	if e.Direction == transport.Download && e.ReceiverState == transport.ReceiverAwaitingSize {
		return false
	}
	if e.Direction == transport.Download && e.Failed() && c.filename != e.Name {
		fmt.Fprintf(c.out, "Receiving %s failed: %v\n", e.Name, e.Err)
		return false
	}
	return true
}

// startProgress initializes the progress bar for a file transfer
func (c *ConsoleUI) startProgress(op, filename string, totalBytes uint64) {
	c.operation = op
	c.filename = filename
	c.startTime = time.Now()

	limit := int64(totalBytes)
	if limit == 0 {
		limit = -1 // spinner; an empty file has no meaningful percentage
	}
	c.bar = progressbar.NewOptions64(limit,
		progressbar.OptionSetDescription(fmt.Sprintf("%s %s", op, filename)),
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(false),
	)
}

// showTransferSummary displays a summary of the completed transfer
func (c *ConsoleUI) showTransferSummary(bytes uint64, elapsed time.Duration) {
	throughput := 0.0
	if elapsed > 0 {
		throughput = float64(bytes) / elapsed.Seconds() / (1024 * 1024)
	}

	fmt.Fprintf(c.out, "\n=============================================\n")
	fmt.Fprintf(c.out, "%s %s completed successfully!\n", c.operation, c.filename)
	fmt.Fprintf(c.out, "+ Total bytes: %s\n", utils.FormatFileSize(int64(bytes)))
	fmt.Fprintf(c.out, "+ Transfer time: %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(c.out, "+ Average throughput: %.2f MB/s\n", throughput)
	fmt.Fprintf(c.out, "=============================================\n")
}

func operation(d transport.Direction) string {
	if d == transport.Upload {
		return "Sending"
	}
	return "Receiving"
}
