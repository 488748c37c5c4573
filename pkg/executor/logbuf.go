package executor

import (
	"fmt"
	"sync"
	"time"
)

// DefaultMaxLogSize caps one execution's log buffer.
const DefaultMaxLogSize = 1 << 20

const truncationMarker = "...[log head truncated]...\n"

// logBuffer collects the execution log. When the cap is exceeded the oldest
// bytes are dropped, so the tail of a noisy execution stays readable.
type logBuffer struct {
	mu        sync.Mutex
	buf       []byte
	max       int
	truncated bool
	sink      func(line string)
}

func newLogBuffer(max int, sink func(line string)) *logBuffer {
	if max <= 0 {
		max = DefaultMaxLogSize
	}
	return &logBuffer{max: max, sink: sink}
}

// appendLine timestamps and stores one log line.
func (b *logBuffer) appendLine(format string, args ...any) {
	line := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format("15:04:05.000"), fmt.Sprintf(format, args...))

	b.mu.Lock()
	b.buf = append(b.buf, line...)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
		b.truncated = true
	}
	sink := b.sink
	b.mu.Unlock()

	if sink != nil {
		sink(line)
	}
}

// String returns the captured log, prefixed with a marker when the head was
// dropped.
func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return truncationMarker + string(b.buf)
	}
	return string(b.buf)
}
