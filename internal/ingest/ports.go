package ingest

// ByteSource yields raw bytes as they arrive. Available must not block.
type ByteSource interface {
	Available() int
	ReadByte() (byte, error)
}

// Sink receives one finished JSON document per call. Delivery is
// fire-and-forget: the Ingestor neither retries nor buffers on failure.
type Sink interface {
	Emit(payload string)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(payload string)

func (f SinkFunc) Emit(payload string) { f(payload) }

// EmitReason names the completion branch that produced an emission.
type EmitReason string

const (
	EmitPassthrough EmitReason = "passthrough"
	EmitTemperature EmitReason = "temperature"
	EmitComplete    EmitReason = "complete"
	EmitTimeout     EmitReason = "timeout"
)

// DiscardReason names why buffered input was dropped without emission.
type DiscardReason string

const (
	DiscardFrameOverflow DiscardReason = "frame_overflow"
	DiscardFrameResync   DiscardReason = "frame_resync"
	DiscardLineOverflow  DiscardReason = "line_overflow"
	DiscardLineResync    DiscardReason = "line_resync"
)

// Observer receives ingest events. Implementations must be cheap; they run
// inline on the ingest goroutine.
type Observer interface {
	BytesRead(n int)
	Discarded(reason DiscardReason)
	FieldDecoded(field string)
	FieldMalformed(field string)
	Emitted(reason EmitReason)
}

type nopObserver struct{}

func (nopObserver) BytesRead(int)           {}
func (nopObserver) Discarded(DiscardReason) {}
func (nopObserver) FieldDecoded(string)     {}
func (nopObserver) FieldMalformed(string)   {}
func (nopObserver) Emitted(EmitReason)      {}
