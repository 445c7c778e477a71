package source

import (
	"errors"
	"io"
	"sync"

	"github.com/danmuck/vitalsgw/internal/ingest"
)

var ErrEmpty = errors.New("source: no byte available")

// Source is a ByteSource with a lifecycle.
type Source interface {
	ingest.ByteSource
	// Err reports the terminal read error once the underlying reader stops.
	Err() error
	// Dropped counts bytes lost because the consumer fell behind.
	Dropped() uint64
	Close() error
}

// Pump reads an io.ReadCloser on its own goroutine and exposes the bytes
// through the non-blocking ByteSource methods. At most limit bytes are held;
// older bytes are dropped first.
type Pump struct {
	rc    io.ReadCloser
	limit int

	mu      sync.Mutex
	buf     []byte
	head    int
	dropped uint64
	err     error

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

var _ Source = (*Pump)(nil)

const defaultPumpLimit = 64 * 1024

func NewPump(rc io.ReadCloser, limit int) *Pump {
	if limit <= 0 {
		limit = defaultPumpLimit
	}
	p := &Pump{
		rc:    rc,
		limit: limit,
		buf:   make([]byte, 0, 1024),
		done:  make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *Pump) loop() {
	defer close(p.done)
	chunk := make([]byte, 512)
	for {
		n, err := p.rc.Read(chunk)
		if n > 0 {
			p.push(chunk[:n])
		}
		if err != nil {
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
			return
		}
	}
}

func (p *Pump) push(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.head > 0 {
		n := copy(p.buf, p.buf[p.head:])
		p.buf = p.buf[:n]
		p.head = 0
	}
	p.buf = append(p.buf, b...)
	if excess := len(p.buf) - p.limit; excess > 0 {
		copy(p.buf, p.buf[excess:])
		p.buf = p.buf[:p.limit]
		p.dropped += uint64(excess)
	}
}

func (p *Pump) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf) - p.head
}

func (p *Pump) ReadByte() (byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.head == len(p.buf) {
		if p.err != nil {
			return 0, p.err
		}
		return 0, ErrEmpty
	}
	b := p.buf[p.head]
	p.head++
	if p.head == len(p.buf) {
		p.buf = p.buf[:0]
		p.head = 0
	}
	return b, nil
}

// Dropped is the number of bytes discarded because the consumer fell behind.
func (p *Pump) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

func (p *Pump) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done is closed once the reader goroutine exits.
func (p *Pump) Done() <-chan struct{} {
	return p.done
}

// Close closes the reader and waits for the read goroutine to exit.
func (p *Pump) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.rc.Close()
		<-p.done
	})
	return p.closeErr
}
