package core

// StreamingMode selects how model output reaches the caller.
type StreamingMode string

const (
	// StreamingModeNone delivers each model turn as a single final event.
	StreamingModeNone StreamingMode = "NONE"

	// StreamingModeSSE forwards partial model chunks as they arrive, marked
	// with Partial=true, followed by the aggregated final event.
	StreamingModeSSE StreamingMode = "SSE"
)

// DefaultMaxModelCalls bounds the number of model calls a single run may make
// when RunConfig does not specify its own ceiling. The bound exists to stop
// runaway reason→act loops.
const DefaultMaxModelCalls = 500

// RunConfig carries per-run behavioral knobs. The zero value means
// non-streaming delivery with the default model-call ceiling.
type RunConfig struct {
	// StreamingMode controls partial event delivery.
	StreamingMode StreamingMode

	// MaxModelCalls limits model invocations for the run. 0 applies
	// DefaultMaxModelCalls; a negative value disables the limit.
	MaxModelCalls int
}

// EffectiveMaxModelCalls resolves the configured ceiling, applying the
// default for the zero value. Negative means unlimited and returns 0.
func (c RunConfig) EffectiveMaxModelCalls() int {
	switch {
	case c.MaxModelCalls == 0:
		return DefaultMaxModelCalls
	case c.MaxModelCalls < 0:
		return 0
	default:
		return c.MaxModelCalls
	}
}
