// Package logbuf keeps the daemon's most recent log lines in memory so
// they can be served over the API without reading the log file.
package logbuf

import (
	"bytes"
	"sync"
)

// maxLine bounds a single stored line; longer lines are cut.
const maxLine = 4096

// Ring holds the last N complete lines written to it. It implements
// io.Writer so it can sit behind a slog handler.
type Ring struct {
	mu      sync.Mutex
	lines   []string
	next    int
	count   int
	partial []byte
}

// New creates a ring holding at most n lines.
func New(n int) *Ring {
	if n < 1 {
		n = 1
	}
	return &Ring{lines: make([]string, n)}
}

// Write stores each complete line in p. A trailing fragment is kept until
// its newline arrives.
func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf := append(r.partial, p...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		r.push(buf[:i])
		buf = buf[i+1:]
	}
	if len(buf) > maxLine {
		buf = buf[:maxLine]
	}
	r.partial = append(r.partial[:0], buf...)
	return len(p), nil
}

func (r *Ring) push(line []byte) {
	if len(line) > maxLine {
		line = line[:maxLine]
	}
	r.lines[r.next] = string(line)
	r.next = (r.next + 1) % len(r.lines)
	if r.count < len(r.lines) {
		r.count++
	}
}

// Tail returns up to n of the most recent lines, oldest first. n <= 0
// returns everything held.
func (r *Ring) Tail(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]string, n)
	start := (r.next - n + len(r.lines)) % len(r.lines)
	for i := range out {
		out[i] = r.lines[(start+i)%len(r.lines)]
	}
	return out
}

// Len returns the number of lines held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
