package ingest

import (
	"encoding/json"
	"time"
)

// Stats are cumulative counters for one Ingestor.
type Stats struct {
	BytesRead       uint64    `json:"bytes_read"`
	LastDataAt      time.Time `json:"last_data_at"`
	LinesParsed     uint64    `json:"lines_parsed"`
	FramesEmitted   uint64    `json:"frames_emitted"`
	RecordsEmitted  uint64    `json:"records_emitted"`
	FramesDiscarded uint64    `json:"frames_discarded"`
	LinesDiscarded  uint64    `json:"lines_discarded"`
}

// Ingestor reassembles records from one instrument byte stream.
type Ingestor struct {
	cfg   Config
	sink  Sink
	obs   Observer
	now   func() time.Time
	frame frameBuffer
	line  lineBuffer
	rec   Record
	stats Stats
}

type Option func(*Ingestor)

// WithObserver installs an observability hook.
func WithObserver(obs Observer) Option {
	return func(in *Ingestor) {
		if obs != nil {
			in.obs = obs
		}
	}
}

// WithClock replaces time.Now for timer bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(in *Ingestor) {
		if now != nil {
			in.now = now
		}
	}
}

// New builds an Ingestor. Zero config fields take DefaultConfig values.
func New(cfg Config, sink Sink, opts ...Option) (*Ingestor, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = SinkFunc(func(string) {})
	}
	in := &Ingestor{
		cfg:   cfg,
		sink:  sink,
		obs:   nopObserver{},
		now:   time.Now,
		frame: newFrameBuffer(cfg.MaxFrameBytes),
		line:  newLineBuffer(cfg.MaxLineBytes),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in, nil
}

func (in *Ingestor) Config() Config {
	return in.cfg
}

// Poll drains every byte src reports as available, then runs one timeout
// check. It returns the number of bytes consumed and the first read error.
// The timeout check runs even when the read fails.
func (in *Ingestor) Poll(src ByteSource) (int, error) {
	now := in.now()
	n := 0
	var readErr error
	for src.Available() > 0 {
		b, err := src.ReadByte()
		if err != nil {
			readErr = err
			break
		}
		in.feed(b, now)
		n++
	}
	if n > 0 {
		in.obs.BytesRead(n)
	}
	in.tick(in.now())
	return n, readErr
}

// Write feeds p into the classifier. It never fails and does not run the
// timeout check.
func (in *Ingestor) Write(p []byte) (int, error) {
	now := in.now()
	for _, b := range p {
		in.feed(b, now)
	}
	if len(p) > 0 {
		in.obs.BytesRead(len(p))
	}
	return len(p), nil
}

// WriteByte feeds a single byte.
func (in *Ingestor) WriteByte(b byte) error {
	in.feed(b, in.now())
	in.obs.BytesRead(1)
	return nil
}

// Tick runs the timeout branch of the completion policy.
func (in *Ingestor) Tick() {
	in.tick(in.now())
}

// Reset clears every field and the completion timer. Frame and line buffers
// are left alone. Calling Reset repeatedly is the same as calling it once.
func (in *Ingestor) Reset() {
	in.rec.reset()
}

// Snapshot returns a copy of the in-progress record.
func (in *Ingestor) Snapshot() Record {
	return in.rec
}

func (in *Ingestor) Stats() Stats {
	return in.stats
}

func (in *Ingestor) feed(b byte, now time.Time) {
	in.stats.BytesRead++
	in.stats.LastDataAt = now

	if b == '{' {
		if in.frame.active() {
			in.discardFrame(DiscardFrameResync)
		}
		if in.line.len() > 0 {
			in.discardLine(DiscardLineResync)
		}
		in.line.reset()
		in.frame.start()
		return
	}

	if in.frame.active() {
		switch in.frame.push(b) {
		case frameComplete:
			in.stats.FramesEmitted++
			in.sink.Emit(in.frame.take())
			in.obs.Emitted(EmitPassthrough)
		case frameOverflow:
			in.discardFrame(DiscardFrameOverflow)
		}
		return
	}

	switch in.line.push(b) {
	case lineReady:
		in.processLine(in.line.take(), now)
	case lineOverflow:
		in.discardLine(DiscardLineOverflow)
	}
}

func (in *Ingestor) discardFrame(reason DiscardReason) {
	in.stats.FramesDiscarded++
	in.obs.Discarded(reason)
}

func (in *Ingestor) discardLine(reason DiscardReason) {
	in.stats.LinesDiscarded++
	in.obs.Discarded(reason)
}

func (in *Ingestor) processLine(line []byte, now time.Time) {
	f := ExtractLine(line)
	if f.Empty() {
		return
	}
	in.stats.LinesParsed++

	if in.applyDecimal(FieldWeight, f.Weight, &in.rec.Weight) {
		in.rec.startTimer(now)
	}
	if in.applyDecimal(FieldHeight, f.Height, &in.rec.Height) {
		in.rec.startTimer(now)
	}
	if in.applyDecimal(FieldSystolic, f.BP, &in.rec.Systolic) {
		in.rec.startTimer(now)
	}
	in.applyDecimal(FieldDiastolic, f.BPDiastolic, &in.rec.Diastolic)
	in.applyDecimal(FieldDiastolic, f.BP2, &in.rec.Diastolic)
	switch f.Pulse.Status {
	case Decoded:
		in.rec.Pulse.set(f.Pulse.Value)
		in.rec.startTimer(now)
		in.obs.FieldDecoded(FieldPulse)
	case Malformed:
		in.obs.FieldMalformed(FieldPulse)
	}

	switch f.Temperature.Status {
	case Decoded:
		in.obs.FieldDecoded(FieldTemperature)
		out, reason, next := applyTemperature(in.rec, f.Temperature.Value)
		in.rec = next
		in.emit(out, reason)
	case Malformed:
		in.obs.FieldMalformed(FieldTemperature)
	}
}

func (in *Ingestor) applyDecimal(name string, d Decode[float64], dst *Measurement[float64]) bool {
	switch d.Status {
	case Decoded:
		dst.set(d.Value)
		in.obs.FieldDecoded(name)
		return true
	case Malformed:
		in.obs.FieldMalformed(name)
	}
	return false
}

func (in *Ingestor) tick(now time.Time) {
	if !timeoutDue(in.rec, now, in.cfg.WaitComplete) {
		return
	}
	out := in.rec
	in.rec.reset()
	in.emit(out, EmitTimeout)
}

func (in *Ingestor) emit(r Record, reason EmitReason) {
	if r.Empty() {
		return
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return
	}
	in.stats.RecordsEmitted++
	in.sink.Emit(string(payload))
	in.obs.Emitted(reason)
}
