package runner

import "sync"

// defaultOutputTailBytes is how much of a step's output is kept for reports
const defaultOutputTailBytes = 8 * 1024

// outputTail is a fixed-size ring that remembers the last bytes written to it.
// stdout and stderr of one process may write to it concurrently.
type outputTail struct {
	mu      sync.Mutex
	ring    []byte
	next    int // position of the next write
	written int64
}

func newOutputTail(size int) *outputTail {
	if size <= 0 {
		size = defaultOutputTailBytes
	}
	return &outputTail{ring: make([]byte, size)}
}

func (t *outputTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p)
	t.written += int64(n)
	if n >= len(t.ring) {
		copy(t.ring, p[n-len(t.ring):])
		t.next = 0
		return n, nil
	}
	c := copy(t.ring[t.next:], p)
	copy(t.ring, p[c:])
	t.next = (t.next + n) % len(t.ring)
	return n, nil
}

// Bytes returns the retained output in write order
func (t *outputTail) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.written < int64(len(t.ring)) {
		return append([]byte(nil), t.ring[:t.next]...)
	}
	out := make([]byte, 0, len(t.ring))
	out = append(out, t.ring[t.next:]...)
	return append(out, t.ring[:t.next]...)
}

// Written returns the number of bytes written, including discarded ones
func (t *outputTail) Written() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written
}
