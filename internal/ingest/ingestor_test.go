package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/vitalsgw/internal/testutil/testlog"
)

type captureSink struct {
	payloads []string
}

func (s *captureSink) Emit(payload string) {
	s.payloads = append(s.payloads, payload)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// sliceSource hands out its bytes as immediately available.
type sliceSource struct {
	data []byte
	err  error
}

func (s *sliceSource) Available() int {
	if s.err != nil && len(s.data) == 0 {
		return 1
	}
	return len(s.data)
}

func (s *sliceSource) ReadByte() (byte, error) {
	if len(s.data) == 0 {
		return 0, s.err
	}
	b := s.data[0]
	s.data = s.data[1:]
	return b, nil
}

type countingObserver struct {
	nopObserver
	discards  map[DiscardReason]int
	emits     map[EmitReason]int
	malformed map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{
		discards:  make(map[DiscardReason]int),
		emits:     make(map[EmitReason]int),
		malformed: make(map[string]int),
	}
}

func (o *countingObserver) Discarded(r DiscardReason) { o.discards[r]++ }
func (o *countingObserver) Emitted(r EmitReason)      { o.emits[r]++ }
func (o *countingObserver) FieldMalformed(f string)   { o.malformed[f]++ }

func newTestIngestor(t *testing.T, cfg Config) (*Ingestor, *captureSink, *fakeClock, *countingObserver) {
	t.Helper()
	sink := &captureSink{}
	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	obs := newCountingObserver()
	in, err := New(cfg, sink, WithClock(clock.Now), WithObserver(obs))
	if err != nil {
		t.Fatalf("new ingestor: %v", err)
	}
	return in, sink, clock, obs
}

func feed(t *testing.T, in *Ingestor, s string) {
	t.Helper()
	if _, err := in.Write([]byte(s)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestWeightHeightHeldUntilCompletion(t *testing.T) {
	testlog.Start(t)
	in, sink, _, _ := newTestIngestor(t, DefaultConfig())

	feed(t, in, "W:70.3 H:173.5\n")
	in.Tick()

	if len(sink.payloads) != 0 {
		t.Fatalf("unexpected emission: %v", sink.payloads)
	}
	rec := in.Snapshot()
	if !rec.Weight.Present || rec.Weight.Value != 70.3 {
		t.Fatalf("unexpected weight: %+v", rec.Weight)
	}
	if !rec.Height.Present || rec.Height.Value != 173.5 {
		t.Fatalf("unexpected height: %+v", rec.Height)
	}
	if _, ok := rec.Collecting(); !ok {
		t.Fatalf("expected completion timer running")
	}
}

func TestTemperatureAloneEmitsImmediately(t *testing.T) {
	testlog.Start(t)
	in, sink, _, obs := newTestIngestor(t, DefaultConfig())

	feed(t, in, "T365$\n")

	if len(sink.payloads) != 1 || sink.payloads[0] != `{"temp":36.5}` {
		t.Fatalf("unexpected payloads: %v", sink.payloads)
	}
	if in.Snapshot().Temperature.Present {
		t.Fatalf("temperature must not linger after standalone emission")
	}
	if !in.Snapshot().Empty() {
		t.Fatalf("expected empty accumulator: %+v", in.Snapshot())
	}
	if obs.emits[EmitTemperature] != 1 {
		t.Fatalf("unexpected emit reasons: %v", obs.emits)
	}
}

func TestTemperatureCompletesCollectedRecord(t *testing.T) {
	testlog.Start(t)
	in, sink, clock, obs := newTestIngestor(t, DefaultConfig())

	feed(t, in, "W:70.3\r\n")
	clock.Advance(2 * time.Second)
	in.Tick()
	feed(t, in, "T365$\r\n")

	if len(sink.payloads) != 1 || sink.payloads[0] != `{"weight":70.3,"temp":36.5}` {
		t.Fatalf("unexpected payloads: %v", sink.payloads)
	}
	rec := in.Snapshot()
	if !rec.Empty() {
		t.Fatalf("expected reset accumulator: %+v", rec)
	}
	if _, ok := rec.Collecting(); ok {
		t.Fatalf("expected timer cleared")
	}
	if obs.emits[EmitComplete] != 1 {
		t.Fatalf("unexpected emit reasons: %v", obs.emits)
	}
}

func TestSameLineFieldsMergeWithTemperature(t *testing.T) {
	testlog.Start(t)
	in, sink, _, _ := newTestIngestor(t, DefaultConfig())

	feed(t, in, "T371$ W:65\n")

	if len(sink.payloads) != 1 || sink.payloads[0] != `{"weight":65,"temp":37.1}` {
		t.Fatalf("unexpected payloads: %v", sink.payloads)
	}
}

func TestTimeoutEmitsCollectedFields(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.WaitComplete = 3 * time.Second
	in, sink, clock, obs := newTestIngestor(t, cfg)

	if _, err := in.Poll(&sliceSource{data: []byte("BP:120/80\n")}); err != nil {
		t.Fatalf("poll: %v", err)
	}
	clock.Advance(time.Second)
	if _, err := in.Poll(&sliceSource{data: []byte("P:75\n")}); err != nil {
		t.Fatalf("poll: %v", err)
	}
	clock.Advance(1999 * time.Millisecond)
	in.Poll(&sliceSource{})
	if len(sink.payloads) != 0 {
		t.Fatalf("emitted before threshold: %v", sink.payloads)
	}

	clock.Advance(time.Millisecond)
	in.Poll(&sliceSource{})
	if len(sink.payloads) != 1 || sink.payloads[0] != `{"bp":120,"bp2":80,"pulse":75}` {
		t.Fatalf("unexpected payloads: %v", sink.payloads)
	}
	if obs.emits[EmitTimeout] != 1 {
		t.Fatalf("unexpected emit reasons: %v", obs.emits)
	}

	clock.Advance(time.Hour)
	in.Tick()
	if len(sink.payloads) != 1 {
		t.Fatalf("timer must be cleared after timeout emission: %v", sink.payloads)
	}
}

func TestTimerStartsOnFirstFieldOnly(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.WaitComplete = 5 * time.Second
	in, sink, clock, _ := newTestIngestor(t, cfg)

	feed(t, in, "W:70\n")
	clock.Advance(4 * time.Second)
	feed(t, in, "H:170\n")
	clock.Advance(time.Second)
	in.Tick()

	if len(sink.payloads) != 1 || sink.payloads[0] != `{"weight":70,"height":170}` {
		t.Fatalf("later fields must not extend the wait: %v", sink.payloads)
	}
}

func TestBP2OverridesSlashDiastolic(t *testing.T) {
	testlog.Start(t)
	in, sink, _, _ := newTestIngestor(t, DefaultConfig())

	feed(t, in, "BP:120/80\nBP2:85\nT366$\n")

	if len(sink.payloads) != 1 || sink.payloads[0] != `{"temp":36.6,"bp":120,"bp2":85}` {
		t.Fatalf("unexpected payloads: %v", sink.payloads)
	}
}

func TestBareDiastolicDoesNotMergeWithTemperature(t *testing.T) {
	testlog.Start(t)
	in, sink, _, obs := newTestIngestor(t, DefaultConfig())

	feed(t, in, "BP2:80\nT365$\n")

	if len(sink.payloads) != 1 || sink.payloads[0] != `{"temp":36.5}` {
		t.Fatalf("unexpected payloads: %v", sink.payloads)
	}
	if obs.emits[EmitTemperature] != 1 || obs.emits[EmitComplete] != 0 {
		t.Fatalf("unexpected emit reasons: %v", obs.emits)
	}
	rec := in.Snapshot()
	if !rec.Diastolic.Present || rec.Diastolic.Value != 80 {
		t.Fatalf("expected diastolic still pending: %+v", rec.Diastolic)
	}
	if rec.Temperature.Present {
		t.Fatalf("temperature must not linger after standalone emission")
	}
	if _, ok := rec.Collecting(); ok {
		t.Fatalf("bare diastolic must not start the completion timer")
	}
}

func TestJSONFramePassthroughMidStream(t *testing.T) {
	testlog.Start(t)
	in, sink, _, _ := newTestIngestor(t, DefaultConfig())

	frame := `{"weight": 70.3, "height": 173.5}`
	feed(t, in, "W:60\nH:17")
	feed(t, in, frame)

	if len(sink.payloads) != 1 || sink.payloads[0] != frame {
		t.Fatalf("unexpected payloads: %v", sink.payloads)
	}
	rec := in.Snapshot()
	if !rec.Weight.Present || rec.Weight.Value != 60 {
		t.Fatalf("text accumulation must survive a passthrough frame: %+v", rec)
	}
	if rec.Height.Present {
		t.Fatalf("partial line must be discarded by frame start: %+v", rec)
	}

	feed(t, in, "H:171\n")
	if got := in.Snapshot().Height; !got.Present || got.Value != 171 {
		t.Fatalf("line parsing after frame broken: %+v", got)
	}
}

func TestNestedBraceResyncsFrame(t *testing.T) {
	testlog.Start(t)
	in, sink, _, obs := newTestIngestor(t, DefaultConfig())

	feed(t, in, `{"a":{"b":1}}`)

	if len(sink.payloads) != 1 || sink.payloads[0] != `{"b":1}` {
		t.Fatalf("unexpected payloads: %v", sink.payloads)
	}
	if obs.discards[DiscardFrameResync] != 1 {
		t.Fatalf("expected one resync discard: %v", obs.discards)
	}
}

func TestIncompleteFrameNeverEmitted(t *testing.T) {
	testlog.Start(t)
	in, sink, _, _ := newTestIngestor(t, DefaultConfig())

	feed(t, in, `{"weight": 70.3`)
	in.Tick()
	if len(sink.payloads) != 0 {
		t.Fatalf("unexpected payloads: %v", sink.payloads)
	}
	if !in.frame.active() {
		t.Fatalf("incomplete frame should stay buffered")
	}
}

func TestOversizedFrameIsDiscarded(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.MaxFrameBytes = 16
	in, sink, _, obs := newTestIngestor(t, cfg)

	feed(t, in, `{"k":"`+strings.Repeat("x", 32)+`"}`)
	// The frame tail lands in text mode as one junk line.
	feed(t, in, "\nW:50\n")

	if len(sink.payloads) != 0 {
		t.Fatalf("unexpected payloads: %v", sink.payloads)
	}
	if obs.discards[DiscardFrameOverflow] != 1 {
		t.Fatalf("expected overflow discard: %v", obs.discards)
	}
	if in.frame.active() {
		t.Fatalf("overflow must leave JSON mode")
	}
	if got := in.Snapshot().Weight; !got.Present || got.Value != 50 {
		t.Fatalf("text mode should resume after overflow: %+v", got)
	}
}

func TestFrameAtExactLimitEmits(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.MaxFrameBytes = 8
	in, sink, _, _ := newTestIngestor(t, cfg)

	feed(t, in, `{"a":12}`)
	if len(sink.payloads) != 1 || sink.payloads[0] != `{"a":12}` {
		t.Fatalf("unexpected payloads: %v", sink.payloads)
	}
}

func TestOversizedLineIsDropped(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.MaxLineBytes = 32
	in, sink, _, obs := newTestIngestor(t, cfg)

	feed(t, in, strings.Repeat("x", 40)+" W:70 T365$\n")
	feed(t, in, "H:170\n")

	if len(sink.payloads) != 0 {
		t.Fatalf("oversized line produced output: %v", sink.payloads)
	}
	rec := in.Snapshot()
	if rec.Weight.Present {
		t.Fatalf("tail of oversized line was parsed: %+v", rec)
	}
	if !rec.Height.Present || rec.Height.Value != 170 {
		t.Fatalf("next line not parsed: %+v", rec)
	}
	if obs.discards[DiscardLineOverflow] != 1 {
		t.Fatalf("expected one line overflow: %v", obs.discards)
	}
}

func TestUnrecognizedLineHasNoEffect(t *testing.T) {
	testlog.Start(t)
	in, sink, _, _ := newTestIngestor(t, DefaultConfig())

	feed(t, in, "hello scale v1.2\n\n\r\n   \n")
	if len(sink.payloads) != 0 || !in.Snapshot().Empty() {
		t.Fatalf("unexpected state: %v %+v", sink.payloads, in.Snapshot())
	}
	if in.Stats().LinesParsed != 0 {
		t.Fatalf("unexpected parsed lines: %d", in.Stats().LinesParsed)
	}
}

func TestMalformedFieldKeepsPriorValue(t *testing.T) {
	testlog.Start(t)
	in, _, _, obs := newTestIngestor(t, DefaultConfig())

	feed(t, in, "W:70\nW:7a H:160\n")
	rec := in.Snapshot()
	if rec.Weight.Value != 70 || !rec.Height.Present {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if obs.malformed[FieldWeight] != 1 {
		t.Fatalf("expected malformed weight: %v", obs.malformed)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	testlog.Start(t)
	in, sink, clock, _ := newTestIngestor(t, DefaultConfig())

	feed(t, in, "W:70 H:170 BP:120/80 P:60\n")
	in.Reset()
	once := in.Snapshot()
	in.Reset()
	twice := in.Snapshot()

	if once != twice || !twice.Empty() {
		t.Fatalf("reset not idempotent: %+v vs %+v", once, twice)
	}
	if _, ok := twice.Collecting(); ok {
		t.Fatalf("timer must be unset after reset")
	}
	clock.Advance(time.Hour)
	in.Tick()
	if len(sink.payloads) != 0 {
		t.Fatalf("reset record must not emit: %v", sink.payloads)
	}
}

func TestPollReportsReadErrorAndStillTicks(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.WaitComplete = time.Second
	in, sink, clock, _ := newTestIngestor(t, cfg)

	feed(t, in, "W:70\n")
	clock.Advance(time.Second)
	boom := errors.New("boom")
	n, err := in.Poll(&sliceSource{data: []byte("H:"), err: boom})
	if n != 2 || !errors.Is(err, boom) {
		t.Fatalf("unexpected poll result n=%d err=%v", n, err)
	}
	if len(sink.payloads) != 1 {
		t.Fatalf("timeout check must run after read error: %v", sink.payloads)
	}
}

func TestStatsTrackBytesAndLastData(t *testing.T) {
	testlog.Start(t)
	in, _, clock, _ := newTestIngestor(t, DefaultConfig())

	feed(t, in, "W:1\n")
	clock.Advance(time.Minute)
	feed(t, in, `{}`)

	st := in.Stats()
	if st.BytesRead != 6 {
		t.Fatalf("unexpected byte count: %d", st.BytesRead)
	}
	if !st.LastDataAt.Equal(clock.Now()) {
		t.Fatalf("unexpected last data time: %v", st.LastDataAt)
	}
	if st.FramesEmitted != 1 || st.LinesParsed != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{WaitComplete: -time.Second}, nil)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
