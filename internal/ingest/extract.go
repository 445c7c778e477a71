package ingest

import (
	"bytes"
	"strconv"
)

// Field names double as the emitted JSON keys.
const (
	FieldWeight      = "weight"
	FieldHeight      = "height"
	FieldTemperature = "temp"
	FieldSystolic    = "bp"
	FieldDiastolic   = "bp2"
	FieldPulse       = "pulse"
)

const (
	prefixWeight    = "W:"
	prefixHeight    = "H:"
	prefixBP        = "BP:"
	prefixBP2       = "BP2:"
	prefixPulseLong = "PULSE:"
	prefixPulse     = "P:"
)

// DecodeStatus reports what a prefix scan found on one line.
type DecodeStatus int

const (
	Absent DecodeStatus = iota
	Decoded
	Malformed
)

func (s DecodeStatus) String() string {
	switch s {
	case Decoded:
		return "decoded"
	case Malformed:
		return "malformed"
	default:
		return "absent"
	}
}

// Decode is the typed result of one prefix scan.
type Decode[T float64 | int] struct {
	Status DecodeStatus
	Value  T
}

func decoded[T float64 | int](v T) Decode[T] {
	return Decode[T]{Status: Decoded, Value: v}
}

// LineFields holds every field decoded from one text line. BP carries the
// systolic value and, when written as sys/dia, the diastolic value in
// BPDiastolic. BP2 is the standalone diastolic and wins over BPDiastolic.
type LineFields struct {
	Weight      Decode[float64]
	Height      Decode[float64]
	BP          Decode[float64]
	BPDiastolic Decode[float64]
	BP2         Decode[float64]
	Pulse       Decode[int]
	Temperature Decode[float64]
}

// Empty reports whether nothing on the line matched a recognized prefix.
func (f LineFields) Empty() bool {
	return f.Weight.Status == Absent &&
		f.Height.Status == Absent &&
		f.BP.Status == Absent &&
		f.BP2.Status == Absent &&
		f.Pulse.Status == Absent &&
		f.Temperature.Status == Absent
}

// ExtractLine decodes every recognized field on one line. The input is not
// modified. Prefix order on the line does not matter.
func ExtractLine(line []byte) LineFields {
	line = bytes.TrimSpace(line)
	var out LineFields
	if len(line) == 0 {
		return out
	}

	if w, ok := tokenValue(line, prefixWeight); ok {
		out.Weight = decodeDecimal(w)
	}
	if h, ok := tokenValue(line, prefixHeight); ok {
		out.Height = decodeDecimal(h)
	}
	if bp, ok := tokenValue(line, prefixBP); ok {
		out.BP, out.BPDiastolic = decodePressure(bp)
	}
	if bp2, ok := tokenValue(line, prefixBP2); ok {
		out.BP2 = decodeDecimal(bp2)
	}
	p, ok := tokenValue(line, prefixPulseLong)
	if !ok {
		p, ok = tokenValue(line, prefixPulse)
	}
	if ok {
		out.Pulse = decodeInteger(p)
	}
	out.Temperature = scanTemperature(line)
	return out
}

func isBlank(b byte) bool {
	return b == ' ' || b == '\t'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// tokenValue finds the first whitespace-delimited token that starts with
// prefix and returns the bytes after the prefix up to the next blank.
func tokenValue(line []byte, prefix string) ([]byte, bool) {
	p := []byte(prefix)
	for i := 0; i+len(p) <= len(line); i++ {
		if i > 0 && !isBlank(line[i-1]) {
			continue
		}
		if !bytes.HasPrefix(line[i:], p) {
			continue
		}
		rest := line[i+len(p):]
		end := bytes.IndexAny(rest, " \t")
		if end < 0 {
			end = len(rest)
		}
		return rest[:end], true
	}
	return nil, false
}

func onlyBytes(b []byte, allowed func(byte) bool) bool {
	for _, c := range b {
		if !allowed(c) {
			return false
		}
	}
	return true
}

func decimalByte(c byte) bool {
	return isDigit(c) || c == '.'
}

func decodeDecimal(window []byte) Decode[float64] {
	if len(window) == 0 {
		return Decode[float64]{}
	}
	if !onlyBytes(window, decimalByte) {
		return Decode[float64]{Status: Malformed}
	}
	v, err := strconv.ParseFloat(string(window), 64)
	if err != nil {
		return Decode[float64]{Status: Malformed}
	}
	return decoded(v)
}

func decodeInteger(window []byte) Decode[int] {
	if len(window) == 0 {
		return Decode[int]{}
	}
	if !onlyBytes(window, isDigit) {
		return Decode[int]{Status: Malformed}
	}
	v, err := strconv.Atoi(string(window))
	if err != nil {
		return Decode[int]{Status: Malformed}
	}
	return decoded(v)
}

// decodePressure splits "sys/dia" or returns a bare systolic value. Both
// halves must decode when a slash is present.
func decodePressure(window []byte) (sys, dia Decode[float64]) {
	if len(window) == 0 {
		return sys, dia
	}
	if !onlyBytes(window, func(c byte) bool { return decimalByte(c) || c == '/' }) {
		return Decode[float64]{Status: Malformed}, dia
	}
	left, right, split := bytes.Cut(window, []byte{'/'})
	if !split {
		return decodeDecimal(window), dia
	}
	sys = decodeDecimal(left)
	dia = decodeDecimal(right)
	if sys.Status != Decoded || dia.Status != Decoded {
		return Decode[float64]{Status: Malformed}, Decode[float64]{}
	}
	return sys, dia
}

// scanTemperature looks for T<digits>$ starting at every T on the line and
// returns the first run of at least two digits, scaled by 1/10. T may sit
// inside another token; such matches are accepted.
func scanTemperature(line []byte) Decode[float64] {
	for i := bytes.IndexByte(line, 'T'); i >= 0; {
		rest := line[i+1:]
		if end := bytes.IndexByte(rest, '$'); end >= 2 && onlyBytes(rest[:end], isDigit) {
			if v, err := strconv.ParseFloat(string(rest[:end]), 64); err == nil {
				return decoded(v / 10)
			}
		}
		next := bytes.IndexByte(rest, 'T')
		if next < 0 {
			break
		}
		i += 1 + next
	}
	return Decode[float64]{}
}
