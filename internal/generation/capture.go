package generation

import (
	"bytes"
	"fmt"
	"strings"
)

// maxLineBytes bounds a single forwarded progress line.
const maxLineBytes = 64 << 10

// outputCapture accumulates one process stream, keeping only the last limit
// bytes, and forwards every complete line to onLine as it arrives.
type outputCapture struct {
	limit   int
	buf     []byte
	dropped int64

	onLine  func(string)
	partial []byte
}

func newOutputCapture(limit int, onLine func(string)) *outputCapture {
	if limit <= 0 {
		limit = 1 << 20
	}
	return &outputCapture{limit: limit, onLine: onLine}
}

func (c *outputCapture) Write(p []byte) (int, error) {
	c.keepTail(p)
	if c.onLine != nil {
		c.splitLines(p)
	}
	return len(p), nil
}

func (c *outputCapture) keepTail(p []byte) {
	if len(p) >= c.limit {
		c.dropped += int64(len(c.buf) + len(p) - c.limit)
		c.buf = append(c.buf[:0], p[len(p)-c.limit:]...)
		return
	}
	if over := len(c.buf) + len(p) - c.limit; over > 0 {
		c.dropped += int64(over)
		c.buf = append(c.buf[:0], c.buf[over:]...)
	}
	c.buf = append(c.buf, p...)
}

func (c *outputCapture) splitLines(p []byte) {
	c.partial = append(c.partial, p...)
	for {
		i := bytes.IndexByte(c.partial, '\n')
		if i < 0 {
			break
		}
		c.onLine(strings.TrimRight(string(c.partial[:i]), "\r"))
		c.partial = c.partial[i+1:]
	}
	if len(c.partial) > maxLineBytes {
		c.onLine(string(c.partial))
		c.partial = nil
		return
	}
	c.partial = append([]byte(nil), c.partial...)
}

// Flush forwards a trailing line that had no newline.
func (c *outputCapture) Flush() {
	if c.onLine != nil && len(c.partial) > 0 {
		c.onLine(strings.TrimRight(string(c.partial), "\r"))
	}
	c.partial = nil
}

func (c *outputCapture) Truncated() bool { return c.dropped > 0 }

func (c *outputCapture) String() string {
	if c.dropped > 0 {
		return fmt.Sprintf("...[truncated %d bytes]\n", c.dropped) + string(c.buf)
	}
	return string(c.buf)
}
