package progress

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/cheggaaa/pb/v3"
)

const barTemplate = `{{ string . "prefix" }} {{ counters . }} {{ bar . }} {{ percent . }} {{ rtime . "ETA %s" }}`

// Counter counts finished candidates. It is safe for concurrent use.
type Counter struct {
	total int64
	done  atomic.Int64
	bar   *pb.ProgressBar
}

// NewCounter returns a Counter for total candidates without a bar.
func NewCounter(total int) *Counter {
	return &Counter{total: int64(total)}
}

// NewBarCounter returns a Counter that also renders a progress bar to w.
func NewBarCounter(total int, w io.Writer) *Counter {
	bar := pb.New(total)
	bar.SetTemplateString(barTemplate)
	bar.Set("prefix", "Probing")
	bar.SetMaxWidth(100)
	bar.SetRefreshRate(time.Second)
	if w != nil {
		bar.SetWriter(w)
	}
	bar.Start()
	return &Counter{total: int64(total), bar: bar}
}

// Tick records one finished candidate and returns the new count.
func (c *Counter) Tick() int64 {
	n := c.done.Add(1)
	if c.bar != nil {
		c.bar.Increment()
	}
	return n
}

// Done returns the number of finished candidates.
func (c *Counter) Done() int64 {
	return c.done.Load()
}

// Total returns the expected number of candidates.
func (c *Counter) Total() int64 {
	return c.total
}

// Finish stops the bar, if any.
func (c *Counter) Finish() {
	if c.bar != nil {
		c.bar.Finish()
	}
}
