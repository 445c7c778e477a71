package sink

import (
	"context"
	"sync"
	"time"

	"github.com/danmuck/vitalsgw/internal/observability"
	"github.com/rs/zerolog"
)

// Async queues messages for one Publisher and delivers them on a single
// worker goroutine. Enqueue never blocks; a full queue drops the message.
type Async struct {
	pub     Publisher
	timeout time.Duration
	log     zerolog.Logger

	mu     sync.RWMutex
	queue  chan []byte
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewAsync(pub Publisher, size int, timeout time.Duration, logger zerolog.Logger) *Async {
	if size <= 0 {
		size = 64
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Async{
		pub:     pub,
		timeout: timeout,
		log:     logger.With().Str("sink", pub.Name()).Logger(),
		queue:   make(chan []byte, size),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Name() string {
	return a.pub.Name()
}

func (a *Async) Depth() int {
	return len(a.queue)
}

func (a *Async) Enqueue(msg []byte) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- msg:
		observability.SetSinkQueueDepth(a.pub.Name(), len(a.queue))
		return nil
	default:
		observability.RecordSinkDelivery(a.pub.Name(), "dropped")
		a.log.Warn().Int("queue", cap(a.queue)).Msg("sink.Async.Enqueue queue full, message dropped")
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer close(a.done)
	for msg := range a.queue {
		observability.SetSinkQueueDepth(a.pub.Name(), len(a.queue))
		ctx, cancel := context.WithTimeout(a.ctx, a.timeout)
		err := a.pub.Publish(ctx, msg)
		cancel()
		if err != nil {
			observability.RecordSinkDelivery(a.pub.Name(), "error")
			a.log.Warn().Err(err).Msg("sink.Async.run publish failed")
			continue
		}
		observability.RecordSinkDelivery(a.pub.Name(), "ok")
	}
}

// Close stops accepting messages and drains the queue. When ctx ends first,
// in-flight and remaining publishes are cancelled.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	select {
	case <-a.done:
	case <-ctx.Done():
		a.cancel()
		<-a.done
	}
	a.cancel()
	return a.pub.Close()
}
