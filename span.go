package eventz

import "time"

// SpanState is the engine's per-span storage: the correlation identifier
// pair, the field table, and the callsite metadata captured at creation.
//
// A SpanState is exclusively owned by one span. It is NOT thread-safe - the
// front-end must serialize OnRecord/OnEnter/OnExit for the same span, which
// host tracing frameworks already guarantee for their own span storage. The
// identifier pair and the declared field set are immutable after creation;
// only field values and the start timestamp mutate.
type SpanState struct {
	name     string
	provider *Provider
	fields   *FieldTable
	start    time.Time
	activity ActivityID
	related  ActivityID
	keyword  uint64
	tag      uint32
	level    Level
}

// Name returns the span name events are emitted under.
func (s *SpanState) Name() string { return s.name }

// Activity returns the span's activity identifier, generated once at
// creation and attached to every event for the span's lifetime.
func (s *SpanState) Activity() ActivityID { return s.activity }

// Related returns the related (parent) activity identifier; its presence
// byte is zero for root spans.
func (s *SpanState) Related() ActivityID { return s.related }

// Fields returns the span's field table.
func (s *SpanState) Fields() *FieldTable { return s.fields }
