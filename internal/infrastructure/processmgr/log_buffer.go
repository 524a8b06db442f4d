package processmgr

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultLogLines is the retained line count when no capacity is given.
const DefaultLogLines = 100

// LogBuffer is a thread-safe circular buffer for stream log lines with O(1) append.
// Every entry is stamped "[RFC3339] message". When a mirror is set, each stamped
// line is also written to it (append-only file in production).
type LogBuffer struct {
	mu      sync.RWMutex // protects all fields below
	entries []string     // fixed-size ring
	head    int          // next write position
	size    int          // current number of entries
	mirror  io.Writer

	now func() time.Time
}

// NewLogBuffer returns a ring retaining up to capacity lines (DefaultLogLines when <= 0).
// mirror may be nil.
func NewLogBuffer(capacity int, mirror io.Writer) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultLogLines
	}
	return &LogBuffer{
		entries: make([]string, capacity),
		mirror:  mirror,
		now:     time.Now,
	}
}

// Append stamps msg and adds it, overwriting the oldest entry when full.
func (b *LogBuffer) Append(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	line := "[" + b.now().UTC().Format(time.RFC3339) + "] " + msg

	capN := len(b.entries)
	b.entries[b.head] = line
	b.head = (b.head + 1) % capN
	if b.size < capN {
		b.size++
	}

	if b.mirror != nil {
		// Mirror failures must not affect the in-memory log.
		_, _ = io.WriteString(b.mirror, line+"\n")
	}
}

// Appendf is Append with fmt.Sprintf formatting.
func (b *LogBuffer) Appendf(format string, args ...any) {
	b.Append(fmt.Sprintf(format, args...))
}

// Tail returns up to the last n entries ordered oldest → newest.
// n <= 0 returns everything retained. The returned slice is owned by the caller.
func (b *LogBuffer) Tail(n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []string{}
	}
	if n <= 0 || n > b.size {
		n = b.size
	}

	capN := len(b.entries)
	// oldest retained entry sits at head when full, at 0 otherwise
	start := (b.head - b.size + capN) % capN
	skip := b.size - n

	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = b.entries[(start+skip+i)%capN]
	}
	return out
}

// OpenMirror opens path for append-only writes, creating parent directories.
func OpenMirror(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("log mirror dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log mirror: %w", err)
	}
	return f, nil
}
