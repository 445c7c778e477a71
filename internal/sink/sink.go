package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/danmuck/vitalsgw/internal/ingest"
	"github.com/danmuck/vitalsgw/internal/observability"
	"github.com/rs/zerolog"
)

var (
	ErrClosed    = errors.New("sink: closed")
	ErrQueueFull = errors.New("sink: queue full")
)

// Publisher delivers one encoded envelope. Publishers may block; Async keeps
// them off the ingest goroutine.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, msg []byte) error
	Close() error
}

// Envelopes turns ingest emissions into encoded envelopes and hands them to
// a downstream ingest.Sink-style consumer.
type Envelopes struct {
	dev  Device
	next func(msg []byte)
	now  func() time.Time
	log  zerolog.Logger
}

var _ ingest.Sink = (*Envelopes)(nil)

func NewEnvelopes(dev Device, next func(msg []byte), logger zerolog.Logger) *Envelopes {
	return &Envelopes{dev: dev, next: next, now: time.Now, log: logger}
}

func (e *Envelopes) Emit(payload string) {
	msg, err := Wrap(e.dev, payload, e.now()).Encode()
	if err != nil {
		e.log.Warn().Err(err).Msg("sink.Envelopes.Emit encode failed")
		return
	}
	e.log.Info().Str("record", payload).Msg("sink.Envelopes.Emit record")
	e.next(msg)
}

// EmitStatus sends a device_status heartbeat through the same path.
func (e *Envelopes) EmitStatus() {
	msg, err := Status(e.dev, e.now()).Encode()
	if err != nil {
		e.log.Warn().Err(err).Msg("sink.Envelopes.EmitStatus encode failed")
		return
	}
	e.next(msg)
}

// Chan forwards emissions to a channel without blocking; a full channel
// drops the payload.
type Chan struct {
	ch chan<- string
}

func NewChan(ch chan<- string) Chan {
	return Chan{ch: ch}
}

func (c Chan) Emit(payload string) {
	select {
	case c.ch <- payload:
	default:
		observability.RecordSinkDelivery("chan", "dropped")
	}
}

// Fanout hands each message to every publisher queue.
type Fanout struct {
	mu    sync.RWMutex
	sinks []*Async
}

func NewFanout(sinks ...*Async) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Add(a *Async) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, a)
}

func (f *Fanout) Send(msg []byte) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.sinks {
		_ = s.Enqueue(msg)
	}
}

// Depths reports queued messages per publisher.
func (f *Fanout) Depths() map[string]int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]int, len(f.sinks))
	for _, s := range f.sinks {
		out[s.Name()] = s.Depth()
	}
	return out
}

// Close drains and closes every publisher, waiting at most until ctx ends.
func (f *Fanout) Close(ctx context.Context) error {
	f.mu.Lock()
	sinks := f.sinks
	f.sinks = nil
	f.mu.Unlock()
	var errs []error
	for _, s := range sinks {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
