package gateway

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/vitalsgw/internal/identity"
	"github.com/danmuck/vitalsgw/internal/ingest"
	"github.com/danmuck/vitalsgw/internal/logging"
	"github.com/danmuck/vitalsgw/internal/observability"
	"github.com/danmuck/vitalsgw/internal/sink"
	"github.com/danmuck/vitalsgw/internal/source"
	"github.com/rs/zerolog"
)

// Opener opens the byte source. Tests swap in pipes.
type Opener func(ctx context.Context) (source.Source, error)

// Status is the read-only view served over HTTP.
type Status struct {
	Device       sink.Device    `json:"device"`
	Port         string         `json:"port"`
	Connected    bool           `json:"connected"`
	OpenFailures int            `json:"open_failures"`
	DroppedBytes uint64         `json:"dropped_bytes"`
	StartedAt    time.Time      `json:"started_at"`
	Stats        ingest.Stats   `json:"stats"`
	Pending      ingest.Record  `json:"pending"`
	Queues       map[string]int `json:"queues"`
}

type Option func(*Service)

func WithOpener(open Opener) Option {
	return func(s *Service) {
		if open != nil {
			s.open = open
		}
	}
}

// WithRecordChannel copies every raw ingest emission (record or passthrough
// frame, before enveloping) to ch. A full channel drops the copy.
func WithRecordChannel(ch chan<- string) Option {
	return func(s *Service) {
		if ch != nil {
			s.taps = append(s.taps, sink.NewChan(ch))
		}
	}
}

// WithPublisher adds a publisher next to the configured ones.
func WithPublisher(pub sink.Publisher) Option {
	return func(s *Service) {
		if pub != nil {
			s.extra = append(s.extra, pub)
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.log = logger
	}
}

// Service owns one instrument link.
type Service struct {
	cfg   Config
	log   zerolog.Logger
	open  Opener
	extra []sink.Publisher
	taps  []ingest.Sink

	fanout   *sink.Fanout
	env      *sink.Envelopes
	ingestor *ingest.Ingestor

	// Owned by the serve goroutine.
	srcDropped   uint64
	droppedTotal uint64

	mu     sync.RWMutex
	status Status
	ready  atomic.Bool
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		cfg: cfg,
		log: logging.Component("gateway"),
	}
	s.open = func(context.Context) (source.Source, error) {
		pump, err := source.OpenSerial(s.cfg.Serial)
		if err != nil {
			return nil, err
		}
		return pump, nil
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Serve bootstraps sinks and the ingest core, then drives the link until ctx
// ends. Sinks are drained on return.
func (s *Service) Serve(ctx context.Context) error {
	if err := s.bootstrap(); err != nil {
		return err
	}
	defer s.shutdown()
	return s.serve(ctx)
}

func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.status
	out.Queues = make(map[string]int, len(s.status.Queues))
	for k, v := range s.status.Queues {
		out.Queues[k] = v
	}
	return out
}

// Ready reports whether the source is open and sinks are running.
func (s *Service) Ready() bool {
	return s.ready.Load()
}

func (s *Service) bootstrap() error {
	id, err := identity.Load(s.cfg.IdentityPath)
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.cfg.IdentityPath).Msg("gateway.Service.bootstrap identity unreadable, using default")
		id = identity.Identity{DeviceName: identity.DefaultName}
	}
	dev := resolveDevice(s.cfg, id)

	fanout, err := s.buildSinks()
	if err != nil {
		return err
	}
	env := sink.NewEnvelopes(dev, fanout.Send, logging.Component("sink"))
	var out ingest.Sink = env
	if len(s.taps) > 0 {
		taps := s.taps
		out = ingest.SinkFunc(func(payload string) {
			env.Emit(payload)
			for _, tap := range taps {
				tap.Emit(payload)
			}
		})
	}
	ing, err := ingest.New(
		s.cfg.Ingest,
		out,
		ingest.WithObserver(observability.NewIngestObserver(dev.ID)),
	)
	if err != nil {
		_ = fanout.Close(context.Background())
		return err
	}
	s.fanout = fanout
	s.env = env
	s.ingestor = ing

	s.mu.Lock()
	s.status = Status{
		Device:    dev,
		Port:      s.cfg.Serial.Port,
		StartedAt: time.Now().UTC(),
		Queues:    fanout.Depths(),
	}
	s.mu.Unlock()

	s.log.Info().
		Str("device_id", dev.ID).
		Str("device_name", dev.Name).
		Str("mac", dev.MACAddress).
		Str("port", s.cfg.Serial.Port).
		Int("sinks", len(fanout.Depths())).
		Msg("gateway.Service.bootstrap ready")
	return nil
}

func (s *Service) buildSinks() (*sink.Fanout, error) {
	var pubs []sink.Publisher
	if s.cfg.LogRecords {
		pubs = append(pubs, sink.NewLog(logging.Component("sink.log")))
	}
	if s.cfg.MQTTEnabled {
		m, err := sink.NewMQTT(s.cfg.MQTT, logging.Component("sink.mqtt"))
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, m)
	}
	if s.cfg.HTTPEnabled {
		h, err := sink.NewHTTP(s.cfg.HTTP)
		if err != nil {
			for _, p := range pubs {
				_ = p.Close()
			}
			return nil, err
		}
		pubs = append(pubs, h)
	}
	pubs = append(pubs, s.extra...)

	fanout := sink.NewFanout()
	for _, p := range pubs {
		fanout.Add(sink.NewAsync(p, s.cfg.QueueSize, s.cfg.PublishTimeout, logging.Component("sink."+p.Name())))
	}
	return fanout, nil
}

func (s *Service) serve(ctx context.Context) error {
	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	reopen := time.NewTimer(0)
	defer reopen.Stop()

	backoff := source.NewBackoff(s.cfg.Backoff, rand.New(rand.NewSource(time.Now().UnixNano())))
	var src source.Source
	defer func() {
		if src != nil {
			_ = src.Close()
		}
	}()

	drop := func(err error) {
		s.log.Warn().Err(err).Str("port", s.cfg.Serial.Port).Msg("gateway.Service.serve source lost")
		s.recordDropped(src)
		_ = src.Close()
		src = nil
		s.setConnected(false, backoff.Attempt())
		reopen.Reset(backoff.Next())
	}

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("gateway.Service.serve shutdown")
			return nil
		case <-reopen.C:
			if src != nil {
				continue
			}
			next, err := s.open(ctx)
			observability.RecordSourceOpen(s.cfg.Serial.Port, err == nil)
			if err != nil {
				delay := backoff.Next()
				s.log.Warn().
					Err(err).
					Str("port", s.cfg.Serial.Port).
					Int("attempt", backoff.Attempt()).
					Dur("retry_in", delay).
					Msg("gateway.Service.serve open failed")
				s.setConnected(false, backoff.Attempt())
				reopen.Reset(delay)
				continue
			}
			backoff.Reset()
			src = next
			s.srcDropped = 0
			s.setConnected(true, 0)
			s.log.Info().Str("port", s.cfg.Serial.Port).Msg("gateway.Service.serve source open")
		case <-poll.C:
			if src == nil {
				// Timeouts still fire while the link is down.
				s.ingestor.Tick()
				s.publishStats()
				continue
			}
			_, err := s.ingestor.Poll(src)
			s.recordDropped(src)
			if err != nil && !errors.Is(err, source.ErrEmpty) {
				drop(err)
			} else if src.Available() == 0 && src.Err() != nil {
				drop(src.Err())
			}
			s.publishStats()
		case <-heartbeat.C:
			s.env.EmitStatus()
			st := s.Status()
			_, collecting := st.Pending.Collecting()
			s.log.Info().
				Str("device_id", st.Device.ID).
				Bool("connected", st.Connected).
				Uint64("bytes_read", st.Stats.BytesRead).
				Uint64("records_emitted", st.Stats.RecordsEmitted).
				Uint64("frames_emitted", st.Stats.FramesEmitted).
				Bool("collecting", collecting).
				Msg("gateway.Service.heartbeat")
		}
	}
}

func (s *Service) setConnected(connected bool, failures int) {
	s.ready.Store(connected)
	s.mu.Lock()
	s.status.Connected = connected
	s.status.OpenFailures = failures
	s.mu.Unlock()
}

// recordDropped folds the current source's drop count into the running total.
func (s *Service) recordDropped(src source.Source) {
	n := src.Dropped()
	if n <= s.srcDropped {
		return
	}
	observability.RecordSourceDropped(s.cfg.Serial.Port, n-s.srcDropped)
	s.droppedTotal += n - s.srcDropped
	s.srcDropped = n
}

func (s *Service) publishStats() {
	depths := s.fanout.Depths()
	for name, depth := range depths {
		observability.SetSinkQueueDepth(name, depth)
	}
	s.mu.Lock()
	s.status.Stats = s.ingestor.Stats()
	s.status.Pending = s.ingestor.Snapshot()
	s.status.Queues = depths
	s.status.DroppedBytes = s.droppedTotal
	s.mu.Unlock()
}

func (s *Service) shutdown() {
	s.ready.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PublishTimeout)
	defer cancel()
	if err := s.fanout.Close(ctx); err != nil {
		s.log.Warn().Err(err).Msg("gateway.Service.shutdown sinks did not drain")
	}
}
