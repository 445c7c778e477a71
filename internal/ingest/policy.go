package ingest

import "time"

// applyTemperature is the immediate-emit branch. With a weight, height,
// systolic, or pulse value collected the whole record goes out together.
// Otherwise the temperature goes out by itself, is not kept for a later
// batch, and anything else pending (a bare diastolic) stays put.
func applyTemperature(acc Record, temp float64) (out Record, reason EmitReason, next Record) {
	if acc.hasTimerField() {
		acc.Temperature.set(temp)
		return acc, EmitComplete, Record{}
	}
	out.Temperature.set(temp)
	next = acc
	next.Temperature = Measurement[float64]{}
	return out, EmitTemperature, next
}

// timeoutDue reports whether the collecting record has waited long enough.
func timeoutDue(acc Record, now time.Time, wait time.Duration) bool {
	started, ok := acc.Collecting()
	if !ok {
		return false
	}
	return now.Sub(started) >= wait
}
