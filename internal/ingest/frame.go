package ingest

import "bytes"

type frameState int

const (
	framePending frameState = iota
	frameComplete
	frameOverflow
)

// frameBuffer accumulates one brace-delimited JSON object. An empty buffer
// means the classifier is in text mode.
type frameBuffer struct {
	buf   []byte
	limit int
}

func newFrameBuffer(limit int) frameBuffer {
	return frameBuffer{buf: make([]byte, 0, limit), limit: limit}
}

func (f *frameBuffer) active() bool {
	return len(f.buf) > 0
}

// start begins a new frame, dropping whatever was buffered before.
func (f *frameBuffer) start() {
	f.buf = append(f.buf[:0], '{')
}

func (f *frameBuffer) reset() {
	f.buf = f.buf[:0]
}

// push appends b to the active frame. A byte that would grow the frame past
// its limit drops the whole frame, b included.
func (f *frameBuffer) push(b byte) frameState {
	if len(f.buf) >= f.limit {
		f.reset()
		return frameOverflow
	}
	f.buf = append(f.buf, b)
	if b == '}' && braceBalance(f.buf) == 0 {
		return frameComplete
	}
	return framePending
}

// take returns the buffered frame and leaves JSON mode.
func (f *frameBuffer) take() string {
	out := string(f.buf)
	f.reset()
	return out
}

// braceBalance counts opening minus closing braces over the whole frame.
// Braces inside JSON strings are counted too.
func braceBalance(b []byte) int {
	return bytes.Count(b, []byte{'{'}) - bytes.Count(b, []byte{'}'})
}
