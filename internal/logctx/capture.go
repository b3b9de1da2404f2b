package logctx

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

// Capture is a log sink that keeps the message text of every record at or
// above its level, one message per line. Once closed it drops new records.
type Capture struct {
	level slog.Leveler

	mu     sync.Mutex
	buf    strings.Builder
	closed bool
}

// NewCapture creates a Capture recording records at level or above.
func NewCapture(level slog.Leveler) *Capture {
	return &Capture{level: level}
}

// String returns everything captured so far.
func (c *Capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.buf.String()
}

// Close detaches the sink. Safe to call more than once.
func (c *Capture) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Capture) write(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.buf.WriteString(msg)
	c.buf.WriteByte('\n')
}

// captureHandler formats records as their bare message; attributes and groups are ignored.
type captureHandler struct {
	c *Capture
}

func (h captureHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.c.level.Level()
}

func (h captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.c.write(r.Message)

	return nil
}

func (h captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h captureHandler) WithGroup(string) slog.Handler { return h }

func fanout(primary slog.Handler, c *Capture) slog.Handler {
	return slogmulti.Fanout(primary, captureHandler{c: c})
}
