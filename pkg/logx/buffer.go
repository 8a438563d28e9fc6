package logx

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Line is one rendered log line held by the ring buffer.
type Line struct {
	Time    time.Time
	Level   string
	Message string
}

// RingBuffer keeps the most recent log lines for display.
// It is safe for concurrent use and never blocks writers.
type RingBuffer struct {
	mu    sync.Mutex
	lines []Line
	head  int
	count int
}

const defaultBufferLines = 5

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = defaultBufferLines
	}
	return &RingBuffer{lines: make([]Line, capacity)}
}

func (b *RingBuffer) Add(l Line) {
	b.mu.Lock()
	b.lines[b.head] = l
	b.head = (b.head + 1) % len(b.lines)
	if b.count < len(b.lines) {
		b.count++
	}
	b.mu.Unlock()
}

// Last returns up to n lines, oldest first.
func (b *RingBuffer) Last(n int) []Line {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > b.count {
		n = b.count
	}
	out := make([]Line, 0, n)
	start := b.head - n
	if start < 0 {
		start += len(b.lines)
	}
	for i := 0; i < n; i++ {
		out = append(out, b.lines[(start+i)%len(b.lines)])
	}
	return out
}

// Resize grows or shrinks the buffer, keeping the newest lines.
func (b *RingBuffer) Resize(capacity int) {
	if capacity <= 0 {
		capacity = defaultBufferLines
	}
	b.mu.Lock()
	if capacity == len(b.lines) {
		b.mu.Unlock()
		return
	}
	keep := b.count
	if keep > capacity {
		keep = capacity
	}
	old := b.snapshotLocked()
	if len(old) > keep {
		old = old[len(old)-keep:]
	}
	b.lines = make([]Line, capacity)
	b.head = 0
	b.count = 0
	b.mu.Unlock()
	for _, l := range old {
		b.Add(l)
	}
}

func (b *RingBuffer) snapshotLocked() []Line {
	out := make([]Line, 0, b.count)
	start := b.head - b.count
	if start < 0 {
		start += len(b.lines)
	}
	for i := 0; i < b.count; i++ {
		out = append(out, b.lines[(start+i)%len(b.lines)])
	}
	return out
}

// ---- ring buffer writer (zerolog sink) ----

type bufferWriter struct{ buf *RingBuffer }

func (w *bufferWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *bufferWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if w.buf == nil {
		return len(p), nil
	}
	// Display sink stays at info and above; debug spam would churn the window.
	if level < zerolog.InfoLevel {
		return len(p), nil
	}

	line := Line{Time: time.Now(), Level: level.String()}

	// Best-effort decode of the zerolog JSON line.
	var m map[string]any
	if err := json.Unmarshal(p, &m); err == nil {
		msg, _ := m["message"].(string)
		var extras []string
		for k, v := range m {
			switch k {
			case "time", "level", "message", "caller":
				continue
			}
			extras = append(extras, k+"="+strings.TrimSpace(jsonScalar(v)))
		}
		if len(extras) > 0 {
			msg += " " + strings.Join(extras, " ")
		}
		line.Message = msg
	} else {
		line.Message = strings.TrimSpace(string(p))
	}

	w.buf.Add(line)
	return len(p), nil
}

func jsonScalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
