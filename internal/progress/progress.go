// Package progress provides a concurrency-safe progress counter with an
// optional text bar for interactive terminals.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

const barWidth = 40

// Counter is a monotonic counter of completed units out of a total.
// Add may be called from any number of goroutines.
type Counter struct {
	total atomic.Int64
	done  atomic.Int64

	mu   sync.Mutex // serializes writes to out
	out  io.Writer
	unit string
}

// New returns a Counter. When out is non-nil a bar is redrawn on out after
// every change; pass nil when out is not a terminal.
func New(out io.Writer, unit string) *Counter {
	if unit == "" {
		unit = "items"
	}
	return &Counter{out: out, unit: unit}
}

// SetTotal sets the number of units expected.
func (c *Counter) SetTotal(total int64) {
	c.total.Store(total)
	c.render()
}

// Add records n completed units. Negative n is ignored.
func (c *Counter) Add(n int) {
	if n <= 0 {
		return
	}
	c.done.Add(int64(n))
	c.render()
}

// Done returns the number of completed units.
func (c *Counter) Done() int64 { return c.done.Load() }

// Total returns the expected number of units.
func (c *Counter) Total() int64 { return c.total.Load() }

// Finish terminates the bar line.
func (c *Counter) Finish() {
	if c.out == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out)
}

// String renders the bar, e.g. "[#########...] 42% 42/100 files".
func (c *Counter) String() string {
	done, total := c.done.Load(), c.total.Load()
	pct := 100
	if total > 0 {
		pct = int(done * 100 / total)
		if pct > 100 {
			pct = 100
		}
	}
	filled := pct * barWidth / 100
	return fmt.Sprintf("[%s%s] %3d%% %d/%d %s",
		strings.Repeat("#", filled), strings.Repeat(".", barWidth-filled),
		pct, done, total, c.unit)
}

func (c *Counter) render() {
	if c.out == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "\r%s", c.String())
}
