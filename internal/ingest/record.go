package ingest

import (
	"encoding/json"
	"time"
)

// Measurement pairs a value with its presence flag. A present zero is a real
// reading; an absent field is never emitted.
type Measurement[T float64 | int] struct {
	Value   T
	Present bool
}

func (m *Measurement[T]) set(v T) {
	m.Value = v
	m.Present = true
}

// Record is the in-progress set of decoded fields.
type Record struct {
	Weight      Measurement[float64]
	Height      Measurement[float64]
	Temperature Measurement[float64]
	Systolic    Measurement[float64]
	Diastolic   Measurement[float64]
	Pulse       Measurement[int]

	// firstFieldAt is set by the first weight, height, systolic, or pulse
	// field and cleared only by reset.
	firstFieldAt time.Time
}

// Empty reports whether no field is present.
func (r Record) Empty() bool {
	return !r.Temperature.Present && !r.hasNonTemperature()
}

func (r Record) hasNonTemperature() bool {
	return r.Weight.Present ||
		r.Height.Present ||
		r.Systolic.Present ||
		r.Diastolic.Present ||
		r.Pulse.Present
}

// hasTimerField reports whether a field that starts the completion timer is
// present. A lone diastolic value does not count.
func (r Record) hasTimerField() bool {
	return r.Weight.Present ||
		r.Height.Present ||
		r.Systolic.Present ||
		r.Pulse.Present
}

// Collecting reports whether the completion timer is running and since when.
func (r Record) Collecting() (time.Time, bool) {
	return r.firstFieldAt, !r.firstFieldAt.IsZero()
}

func (r *Record) startTimer(now time.Time) {
	if r.firstFieldAt.IsZero() {
		r.firstFieldAt = now
	}
}

func (r *Record) reset() {
	*r = Record{}
}

// recordJSON fixes key order and omits absent fields.
type recordJSON struct {
	Weight      *float64 `json:"weight,omitempty"`
	Height      *float64 `json:"height,omitempty"`
	Temperature *float64 `json:"temp,omitempty"`
	Systolic    *float64 `json:"bp,omitempty"`
	Diastolic   *float64 `json:"bp2,omitempty"`
	Pulse       *int     `json:"pulse,omitempty"`
}

func present[T float64 | int](m Measurement[T]) *T {
	if !m.Present {
		return nil
	}
	v := m.Value
	return &v
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Weight:      present(r.Weight),
		Height:      present(r.Height),
		Temperature: present(r.Temperature),
		Systolic:    present(r.Systolic),
		Diastolic:   present(r.Diastolic),
		Pulse:       present(r.Pulse),
	})
}
