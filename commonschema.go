package eventz

import (
	"errors"
	"fmt"
	"time"
)

// Common Schema 4.0 envelope, layered over either wire backend's
// field-writing primitive. The envelope is strictly additive: it travels in
// its own events and never replaces the plain encoder's output unless the
// emitter is configured without realtime events.
//
// Span envelopes are emitted only at span stop (carrying both boundaries);
// there is no Common Schema start event.

var errCSUnavailable = errors.New("common schema event unavailable")

// csVersion is the __csver__ marker for Common Schema 4.1 envelopes.
const csVersion = 0x0401

// csFieldName remaps the reserved field name "message" to the envelope's
// Body slot. The rename applies only to string values; whether non-string
// message fields can reach this point is a front-end contract, and they are
// deliberately passed through unrenamed rather than rejected at runtime.
func csFieldName(f Field) string {
	if f.Name == "message" && f.Value.Kind() == KindString {
		return "Body"
	}
	return f.Name
}

// csHexID renders a span identifier as the fixed-width (16-character,
// space-padded) lowercase hex string the envelope's consumers expect. This
// is distinct from the binary activity ID carried by the plain events.
func csHexID(id uint64) string { return fmt.Sprintf("%16x", id) }

// csTime renders an envelope timestamp, keeping sub-second precision.
func csTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

// csSpanStop emits the Common Schema envelope for a completed span.
func csSpanStop(enc encoder, name string, start, stop time.Time, activity, related ActivityID, fields *FieldTable, level Level, keyword uint64, tag uint32) error {
	ev, ok := enc.newCSEvent(name, level, keyword, tag)
	if !ok {
		return errCSUnavailable
	}

	ev.addCSVersion()

	ev.addStruct("PartA", 2)
	ev.addString("time", csTime(stop))
	ev.addStruct("ext_dt", 2)
	// traceId intentionally left unpopulated: this engine correlates via
	// activity IDs and does not carry a W3C trace ID.
	ev.addString("traceId", "")
	ev.addString("spanId", csHexID(activity.SpanID()))

	partB := uint8(3)
	if related.Present() {
		partB++
	}
	ev.addStruct("PartB", partB)
	ev.addString("_typeName", "Span")
	if related.Present() {
		ev.addString("parentId", csHexID(related.SpanID()))
	}
	ev.addString("name", name)
	ev.addString("startTime", csTime(start))

	ev.addStruct("PartC", uint8(fields.Len()))
	fields.each(func(n string, v Value) {
		ev.addField(Field{Name: csFieldName(Field{Name: n, Value: v}), Value: v})
	})

	return ev.write()
}

// csWriteEvent emits the Common Schema envelope for a standalone event.
func csWriteEvent(enc encoder, name string, ts time.Time, spanID uint64, fields []Field, level Level, keyword uint64, tag uint32) error {
	fields = capFields(fields)
	ev, ok := enc.newCSEvent(name, level, keyword, tag)
	if !ok {
		return errCSUnavailable
	}

	ev.addCSVersion()

	partA := uint8(1)
	if spanID != 0 {
		partA++
	}
	ev.addStruct("PartA", partA)
	ev.addString("time", csTime(ts))
	if spanID != 0 {
		ev.addStruct("ext_dt", 2)
		ev.addString("traceId", "")
		ev.addString("spanId", csHexID(spanID))
	}

	ev.addStruct("PartB", 3)
	ev.addString("_typeName", "Log")
	ev.addString("name", name)
	ev.addString("eventTime", csTime(ts))

	ev.addStruct("PartC", uint8(len(fields)))
	for _, f := range fields {
		ev.addField(Field{Name: csFieldName(f), Value: f.Value})
	}

	return ev.write()
}
