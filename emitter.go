package eventz

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
)

// Emitter is the entry point the instrumentation front-end drives. It owns
// the backend selection, the default provider identity, and the span and
// event lifecycle operations that encode records onto the native trace
// transport.
//
// Configure an Emitter with the With* builder methods before the first
// lifecycle call; configuration is frozen the first time a provider is
// resolved. The configured Emitter is safe for concurrent use.
type Emitter struct {
	clock          clockz.Clock
	onInvalidate   func()
	newETW         func() etwPort
	newUE          func() uePort
	providerName   string
	providerID     uuid.UUID
	group          ProviderGroup
	defaultKeyword uint64
	installOnce    sync.Once
	dropped        atomic.Uint64
	backend        BackendKind
	emitCS         bool
	csOnly         bool
}

// New returns an Emitter for the named provider. The provider identifier
// defaults to the hash of the name (see WithProviderID), the default
// keyword to 1, and the backend to the platform default.
func New(name string) *Emitter {
	return &Emitter{
		providerName:   name,
		providerID:     providerIDFromName(name),
		defaultKeyword: 1,
		clock:          clockz.RealClock,
		backend:        BackendAuto,
		newETW:         newETWPort,
		newUE:          newUEPort,
	}
}

// WithProviderID overrides the provider identifier derived from the name.
// Only the default provider uses it; providers created for per-event
// targets always derive their identifier from the target name.
func (e *Emitter) WithProviderID(id uuid.UUID) *Emitter {
	e.providerID = id
	return e
}

// WithProviderGroup places the default provider in a provider group.
// Panics if the group fails validation, as a misconfigured group is a
// programming error that would otherwise silence all telemetry.
func (e *Emitter) WithProviderGroup(group ProviderGroup) *Emitter {
	group.validate()
	e.group = group
	return e
}

// WithCommonSchemaEvents additionally emits Common Schema 4.0 shaped
// events alongside the plain encoding of every record.
func (e *Emitter) WithCommonSchemaEvents() *Emitter {
	e.emitCS = true
	return e
}

// WithoutRealtimeEvents suppresses the plain encoding, leaving the Common
// Schema events as the only output. Implies WithCommonSchemaEvents.
func (e *Emitter) WithoutRealtimeEvents() *Emitter {
	e.emitCS = true
	e.csOnly = true
	return e
}

// WithDefaultKeyword sets the keyword applied to records whose callsite
// metadata carries keyword zero, and the keyword the user_events backend
// pre-registers tracepoints for.
func (e *Emitter) WithDefaultKeyword(keyword uint64) *Emitter {
	e.defaultKeyword = keyword
	return e
}

// WithBackend forces a backend instead of the platform default. Useful to
// select BackendNoop for benchmarks and dry runs.
func (e *Emitter) WithBackend(kind BackendKind) *Emitter {
	e.backend = kind
	return e
}

// WithClock sets the time source used when a lifecycle call passes a zero
// timestamp. Tests inject a fake clock here.
func (e *Emitter) WithClock(clock clockz.Clock) *Emitter {
	e.clock = clock
	return e
}

// WithInterestInvalidator registers a callback invoked whenever a backend
// reports an enablement change. Front-ends that cache Interest results
// flush their cache from it. Only push-capable backends (ETW) invoke it.
func (e *Emitter) WithInterestInvalidator(fn func()) *Emitter {
	e.onInvalidate = fn
	return e
}

// ProviderID returns the identifier the default provider registers under.
func (e *Emitter) ProviderID() uuid.UUID { return e.providerID }

// DroppedEvents returns the number of records this Emitter attempted to
// write and the backend rejected.
func (e *Emitter) DroppedEvents() uint64 { return e.dropped.Load() }

func (e *Emitter) install() {
	if e.providerName == "" {
		panic("eventz: provider name must not be empty")
	}
	e.group.validate()
}

// providerFor resolves the provider a record is emitted through. An empty
// target, or a target equal to the provider name, selects the default
// provider; any other target selects a provider named after it, with an
// identifier hashed from the target and no group membership.
func (e *Emitter) providerFor(target string) *Provider {
	e.installOnce.Do(e.install)
	name, id, group := e.providerName, e.providerID, e.group
	if target != "" && target != e.providerName {
		name, id, group = target, providerIDFromName(target), ProviderGroup{}
	}
	return getOrCreateProvider(name, id, group, e.makeEncoder)
}

func (e *Emitter) makeEncoder(name string, id uuid.UUID, group ProviderGroup) (encoder, error) {
	switch e.backend.resolve() {
	case BackendETW:
		return newETWEncoder(name, id, group, e.newETW(), e.onInvalidate)
	case BackendUserEvents:
		return newUserEventsEncoder(name, group, e.defaultKeyword, e.newUE())
	default:
		return noopEncoder{}, nil
	}
}

func (e *Emitter) keywordOf(md EventMetadata) uint64 {
	if md.Keyword == 0 {
		return e.defaultKeyword
	}
	return md.Keyword
}

func (e *Emitter) orNow(ts time.Time) time.Time {
	if ts.IsZero() {
		return e.clock.Now()
	}
	return ts
}

func (e *Emitter) countDrop(p *Provider) {
	e.dropped.Add(1)
	p.dropped.Add(1)
}

// Enabled reports whether at least one consumer listens for records with
// the given metadata. Front-ends call it before paying any encoding cost.
func (e *Emitter) Enabled(md EventMetadata) bool {
	return e.providerFor(md.Target).Enabled(md.Level, e.keywordOf(md))
}

// Interest reports how durable an Enabled answer for the given metadata
// is. Push-capable backends answer InterestAlways or InterestNever, valid
// until the interest invalidator fires. Polling backends answer
// InterestSometimes, so the front-end must call Enabled per record.
func (e *Emitter) Interest(md EventMetadata) Interest {
	p := e.providerFor(md.Target)
	if p.enc == nil {
		return InterestNever
	}
	if !p.enc.SupportsPushEnablement() {
		return InterestSometimes
	}
	if p.Enabled(md.Level, e.keywordOf(md)) {
		return InterestAlways
	}
	return InterestNever
}

// OnNewSpan creates the engine-side state for a span. The declared field
// names fix the span's field set for its lifetime; initial carries values
// known at creation. spanID must be the front-end's nonzero span
// identifier, parentID is zero for root spans.
func (e *Emitter) OnNewSpan(md EventMetadata, spanID, parentID uint64, fieldNames []string, initial []Field) *SpanState {
	activity, related := GenerateActivities(spanID, parentID)
	s := &SpanState{
		name:     md.Name,
		provider: e.providerFor(md.Target),
		fields:   NewFieldTable(fieldNames),
		activity: activity,
		related:  related,
		keyword:  e.keywordOf(md),
		tag:      md.Tag,
		level:    md.Level,
	}
	for _, f := range initial {
		s.fields.Update(f.Name, f.Value)
	}
	return s
}

// OnRecord updates span field values by name. Names outside the span's
// declared set are ignored.
func (e *Emitter) OnRecord(s *SpanState, fields []Field) {
	if s == nil {
		return
	}
	for _, f := range fields {
		s.fields.Update(f.Name, f.Value)
	}
}

// OnEnter marks the span active and emits its start event. A zero ts takes
// the current time. The start time is remembered for the stop event.
func (e *Emitter) OnEnter(s *SpanState, ts time.Time) {
	if s == nil {
		return
	}
	ts = e.orNow(ts)
	s.start = ts
	if !s.provider.Enabled(s.level, s.keyword) {
		return
	}
	if e.csOnly {
		return
	}
	if err := s.provider.enc.SpanStart(s.name, ts, s.activity, s.related, s.fields, s.level, s.keyword, s.tag); err != nil {
		e.countDrop(s.provider)
	}
}

// OnExit marks the span closed and emits its stop event, plus the Common
// Schema span event when configured. A zero ts takes the current time.
func (e *Emitter) OnExit(s *SpanState, ts time.Time) {
	if s == nil {
		return
	}
	ts = e.orNow(ts)
	if !s.provider.Enabled(s.level, s.keyword) {
		return
	}
	if !e.csOnly {
		if err := s.provider.enc.SpanStop(s.name, s.start, ts, s.activity, s.related, s.fields, s.level, s.keyword, s.tag); err != nil {
			e.countDrop(s.provider)
		}
	}
	if e.emitCS {
		if err := csSpanStop(s.provider.enc, s.name, s.start, ts, s.activity, s.related, s.fields, s.level, s.keyword, s.tag); err != nil {
			e.countDrop(s.provider)
		}
	}
}

// OnEvent emits a point-in-time event. spanID carries the enclosing span's
// identifier or zero outside any span; parentID is that span's parent. A
// zero ts takes the current time.
func (e *Emitter) OnEvent(md EventMetadata, ts time.Time, spanID, parentID uint64, fields []Field) {
	p := e.providerFor(md.Target)
	keyword := e.keywordOf(md)
	if !p.Enabled(md.Level, keyword) {
		return
	}
	ts = e.orNow(ts)
	if !e.csOnly {
		activity, related := GenerateActivities(spanID, parentID)
		if err := p.enc.WriteEvent(md.Name, ts, activity, related, fields, md.Level, keyword, md.Tag); err != nil {
			e.countDrop(p)
		}
	}
	if e.emitCS {
		if err := csWriteEvent(p.enc, md.Name, ts, spanID, fields, md.Level, keyword, md.Tag); err != nil {
			e.countDrop(p)
		}
	}
}
