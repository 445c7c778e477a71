package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// streamByte favours bytes that drive state changes so short inputs still
// exercise framing, overflow, and field paths.
func streamByte() *rapid.Generator[byte] {
	return rapid.OneOf(
		rapid.SampledFrom([]byte("{}\r\n $/.:TWHBPULSE0123456789")),
		rapid.Byte(),
	)
}

func TestPropertyBuffersStayWithinLimits(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := Config{
			WaitComplete:  time.Second,
			MaxFrameBytes: rapid.IntRange(2, 64).Draw(rt, "maxFrame"),
			MaxLineBytes:  rapid.IntRange(1, 64).Draw(rt, "maxLine"),
		}
		in, err := New(cfg, SinkFunc(func(string) {}))
		if err != nil {
			rt.Fatalf("new: %v", err)
		}
		input := rapid.SliceOfN(streamByte(), 0, 512).Draw(rt, "input")
		for _, b := range input {
			_ = in.WriteByte(b)
			if len(in.frame.buf) > cfg.MaxFrameBytes {
				rt.Fatalf("frame buffer %d exceeds limit %d", len(in.frame.buf), cfg.MaxFrameBytes)
			}
			if len(in.line.buf) > cfg.MaxLineBytes {
				rt.Fatalf("line buffer %d exceeds limit %d", len(in.line.buf), cfg.MaxLineBytes)
			}
			if in.frame.active() && in.line.len() > 0 {
				rt.Fatalf("frame and line buffers active together")
			}
		}
	})
}

func TestPropertyTextEmissionsAreValidJSON(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		clock := &fakeClock{t: time.Unix(0, 0)}
		var out []string
		in, err := New(Config{WaitComplete: time.Second}, SinkFunc(func(p string) {
			out = append(out, p)
		}), WithClock(clock.Now))
		if err != nil {
			rt.Fatalf("new: %v", err)
		}
		// No braces: every emission comes from the record encoder.
		lines := rapid.SliceOfN(rapid.StringMatching(`(W:[0-9.]{0,5}|H:[0-9]{0,4}|BP:[0-9/]{0,7}|P:[0-9]{0,3}|T[0-9]{0,4}\$| )+`), 1, 20).Draw(rt, "lines")
		for _, line := range lines {
			feed := []byte(line + "\n")
			_, _ = in.Write(feed)
			clock.Advance(time.Duration(rapid.IntRange(0, 1500).Draw(rt, "gapMs")) * time.Millisecond)
			in.Tick()
		}
		for _, p := range out {
			var m map[string]any
			if err := json.Unmarshal([]byte(p), &m); err != nil {
				rt.Fatalf("invalid json %q: %v", p, err)
			}
			if len(m) == 0 {
				rt.Fatalf("empty object emitted")
			}
		}
	})
}
