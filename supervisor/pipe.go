package supervisor

import (
	"sync"

	"go.uber.org/zap"
)

const (
	defaultPipeCapacity  = 1 << 20
	DefaultPipeReadLimit = 4096
)

// pipeBuffer holds the combined stdout and stderr of a process until it is read.
// Writes never block: when the buffer is full the oldest bytes are dropped, so a process that nobody reads from still exits normally.
type pipeBuffer struct {
	log      *zap.SugaredLogger
	capacity int

	m       sync.Mutex
	buf     []byte
	dropped int64
	closed  bool
}

func newPipeBuffer(log *zap.SugaredLogger, capacity int) *pipeBuffer {
	return &pipeBuffer{log: log, capacity: capacity}
}

func (p *pipeBuffer) Write(b []byte) (int, error) {
	p.m.Lock()
	defer p.m.Unlock()

	n := len(b)
	if n >= p.capacity {
		p.dropped += int64(len(p.buf) + n - p.capacity)
		p.buf = append(p.buf[:0], b[n-p.capacity:]...)
		p.log.Warnw("pipe buffer overflow, dropped output", "TotalDropped", p.dropped)
		return n, nil
	}
	if overflow := len(p.buf) + n - p.capacity; overflow > 0 {
		p.buf = append(p.buf[:0], p.buf[overflow:]...)
		p.dropped += int64(overflow)
		p.log.Warnw("pipe buffer overflow, dropped output", "TotalDropped", p.dropped)
	}
	p.buf = append(p.buf, b...)
	return n, nil
}

// closeWrite marks the end of the output streams. Buffered bytes stay readable.
func (p *pipeBuffer) closeWrite() {
	p.m.Lock()
	p.closed = true
	p.m.Unlock()
}

// read returns up to limit buffered bytes.
// It returns (nil, false) once the streams are closed and drained, and an empty non-nil slice when nothing is buffered yet.
func (p *pipeBuffer) read(limit int) ([]byte, bool) {
	if limit <= 0 {
		limit = DefaultPipeReadLimit
	}
	p.m.Lock()
	defer p.m.Unlock()

	if len(p.buf) == 0 {
		if p.closed {
			return nil, false
		}
		return []byte{}, true
	}
	n := limit
	if n > len(p.buf) {
		n = len(p.buf)
	}
	out := make([]byte, n)
	copy(out, p.buf[:n])
	p.buf = append(p.buf[:0], p.buf[n:]...)
	return out, true
}
