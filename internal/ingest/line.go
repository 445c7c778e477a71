package ingest

type lineState int

const (
	linePending lineState = iota
	lineReady
	lineOverflow
)

// lineBuffer accumulates one text line up to limit bytes. After an overflow
// the rest of that line is skipped up to the next terminator so no tail of an
// oversized line is ever parsed.
type lineBuffer struct {
	buf      []byte
	limit    int
	skipping bool
}

func newLineBuffer(limit int) lineBuffer {
	return lineBuffer{buf: make([]byte, 0, limit), limit: limit}
}

func isTerminator(b byte) bool {
	return b == '\n' || b == '\r'
}

// push feeds one byte. On lineReady the completed line is available through
// take. Consecutive terminators (CRLF) yield nothing for the empty line.
func (l *lineBuffer) push(b byte) lineState {
	if isTerminator(b) {
		l.skipping = false
		if len(l.buf) == 0 {
			return linePending
		}
		return lineReady
	}
	if l.skipping {
		return linePending
	}
	if len(l.buf) >= l.limit {
		l.reset()
		l.skipping = true
		return lineOverflow
	}
	l.buf = append(l.buf, b)
	return linePending
}

// take returns a copy of the buffered line and clears the buffer.
func (l *lineBuffer) take() []byte {
	out := make([]byte, len(l.buf))
	copy(out, l.buf)
	l.buf = l.buf[:0]
	return out
}

func (l *lineBuffer) len() int {
	return len(l.buf)
}

// reset clears the buffer and any pending skip.
func (l *lineBuffer) reset() {
	l.buf = l.buf[:0]
	l.skipping = false
}
