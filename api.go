// Package eventz encodes structured trace records into the binary wire
// formats consumed by OS-native tracing subsystems.
//
// eventz sits below an instrumentation front-end (the layer that creates
// spans, records fields, and dispatches events) and converts those records
// into manifest-free TraceLogging events on Windows (ETW) or EventHeader
// tracepoint events on Linux (user_events). An optional Common Schema 4.0
// envelope can be layered on either transport for specialized consumers.
//
// Core Components:.
//   - Emitter: The object a front-end drives through the span/event lifecycle.
//   - Value: Closed tagged union of the supported field value kinds.
//   - FieldTable: Per-span ordered field storage with name lookup.
//   - Provider: A registered named event source, cached process-wide.
//   - ActivityID: 128-bit correlation identifier derived from span IDs.
//
// Basic Usage:.
//
//	emitter := eventz.New("MyCompany.MyComponent")
//
//	// Span lifecycle, driven by the host tracing framework.
//	span := emitter.OnNewSpan(eventz.EventMetadata{Name: "query", Level: eventz.LevelInfo},
//		spanID, parentID, []string{"db.name", "rows"}, nil)
//	emitter.OnEnter(span, time.Now())
//	emitter.OnRecord(span, []eventz.Field{{Name: "rows", Value: eventz.Uint64Value(42)}})
//	emitter.OnExit(span, time.Now())
//
// Thread Safety:.
//
// Emitter is safe for concurrent use by multiple goroutines. The provider
// cache serializes first-time provider registration; all later lookups are
// concurrent reads.
//
// A SpanState is NOT thread-safe - the front-end must serialize OnRecord,
// OnEnter, and OnExit calls for the same span, exactly as it must already
// serialize mutation of its own per-span storage. This keeps the encoding
// hot path lock-free.
//
// Error Handling:.
//
// Telemetry must never become a source of application failure. Native write
// failures are swallowed and counted (see Emitter.DroppedEvents); unknown
// field updates and unsupported value kinds are silently ignored. Only setup
// mistakes (a zero provider group GUID, a malformed group name) panic, since
// they indicate a programming error rather than a runtime condition.
//
// Resource Lifetime:.
//
// Providers are registered at most once per name and are deliberately never
// unregistered: the native registration APIs cannot be torn down safely
// while events may still be in flight, so providers live for the process.
package eventz

// Level is the event severity used for enablement filtering.
//
// The values follow the TraceLogging/EventHeader convention: lower is more
// severe, zero means "log always" and is reserved for controllers.
type Level uint8

// Severity levels in the native numbering shared by both wire formats.
// A host framework's ERROR..TRACE levels map onto LevelError..LevelTrace.
const (
	LevelCritical Level = 1
	LevelError    Level = 2
	LevelWarn     Level = 3
	LevelInfo     Level = 4
	LevelDebug    Level = 5
	LevelTrace    Level = 6
)

// Interest classifies how a callsite should treat future Enabled checks.
type Interest uint8

const (
	// InterestNever means events at this level and keyword are disabled and
	// the classification is authoritative until the next enablement change.
	InterestNever Interest = iota
	// InterestSometimes means enablement cannot be determined ahead of time
	// and Enabled must be consulted at each call site.
	InterestSometimes
	// InterestAlways means events at this level and keyword are enabled and
	// the per-call Enabled check may be skipped.
	InterestAlways
)

// Field pairs a field name with its value for event payloads.
type Field struct {
	Name  string
	Value Value
}

// EventMetadata describes a standalone event callsite.
//
// Target optionally addresses a provider other than the Emitter's own; an
// empty Target uses the Emitter's provider. This is how a single front-end
// fans events out to multiple distinct providers.
type EventMetadata struct {
	Name    string
	Target  string
	Keyword uint64
	Tag     uint32
	Level   Level
}
