package eventz

import (
	"runtime"
	"time"
)

// Event opcodes shared by both wire formats.
const (
	opcodeInfo  uint8 = 0
	opcodeStart uint8 = 1
	opcodeStop  uint8 = 2
)

// maxCountedBytes bounds counted string payloads; both wire formats carry
// a uint16 length prefix, so longer data would desynchronize the payload
// from its declared length. Longer strings are truncated.
const maxCountedBytes = 65535

// encoder is the closed interface over the interchangeable wire backends.
// The backend is chosen once at provider construction, not per call.
//
// Encoders assume the enablement check already passed; they still tolerate a
// disabled consumer (the native write simply fails and is swallowed by the
// caller via the returned error).
type encoder interface {
	// SpanStart emits a start-opcode event carrying the span's fields and a
	// wall-clock "start time" payload field.
	SpanStart(name string, ts time.Time, activity, related ActivityID, fields *FieldTable, level Level, keyword uint64, tag uint32) error

	// SpanStop emits a stop-opcode event. Both boundaries travel with the
	// call so the stop event can report the full extent of the span.
	SpanStop(name string, start, stop time.Time, activity, related ActivityID, fields *FieldTable, level Level, keyword uint64, tag uint32) error

	// WriteEvent emits an info-opcode event for a standalone record.
	WriteEvent(name string, ts time.Time, activity, related ActivityID, fields []Field, level Level, keyword uint64, tag uint32) error

	// Enabled reports live consumer interest at the given level and keyword.
	Enabled(level Level, keyword uint64) bool

	// SupportsPushEnablement reports whether the OS pushes enablement
	// changes to the provider. When true, Enabled answers are authoritative
	// and callsites may cache an Always/Never interest; when false the
	// answer can change at any write and interest is always Sometimes.
	SupportsPushEnablement() bool

	// newCSEvent starts a Common Schema envelope event on this backend's
	// wire format. ok is false when the backend cannot emit (unusable
	// handle or noop backend).
	newCSEvent(name string, level Level, keyword uint64, tag uint32) (csEvent, bool)
}

// csEvent is the field-writing primitive the Common Schema overlay drives.
// Both wire builders implement it, which keeps the envelope logic written
// once for the two transports.
type csEvent interface {
	// addCSVersion writes the __csver__ marker field.
	addCSVersion()
	// addStruct opens a nested struct with the given member count.
	addStruct(name string, fieldCount uint8)
	// addString writes a UTF-8 string field.
	addString(name, value string)
	// addField writes an ordinary typed field (None values are skipped).
	addField(f Field)
	// write submits the event. Common Schema events carry no activity IDs.
	write() error
}

// BackendKind selects the wire encoder at Emitter construction time.
type BackendKind uint8

const (
	// BackendAuto picks the native backend for the build target: ETW on
	// Windows, user_events on Linux, noop elsewhere.
	BackendAuto BackendKind = iota
	// BackendETW emits Windows TraceLogging events.
	BackendETW
	// BackendUserEvents emits Linux EventHeader tracepoint events.
	BackendUserEvents
	// BackendNoop registers nothing and reports everything disabled.
	BackendNoop
)

func (k BackendKind) resolve() BackendKind {
	if k != BackendAuto {
		return k
	}
	switch runtime.GOOS {
	case "windows":
		return BackendETW
	case "linux":
		return BackendUserEvents
	default:
		return BackendNoop
	}
}

// etwEventDescriptor mirrors EVENT_DESCRIPTOR for the write call.
// TraceLogging events use ID/Version 0 and channel 11.
type etwEventDescriptor struct {
	ID      uint16
	Version uint8
	Channel uint8
	Level   uint8
	Opcode  uint8
	Task    uint16
	Keyword uint64
}

// etwEnableCallback receives enablement pushes from the OS controller.
type etwEnableCallback func(enabled bool, level Level, matchAnyKeyword uint64)

// etwPort is the native ETW seam: the real implementation registers with
// advapi32 on Windows; tests substitute a capture implementation.
type etwPort interface {
	// register performs the native provider registration and hooks the
	// enablement callback. traits is the provider metadata blob (name and
	// optional group trait).
	register(id uuid16, traits []byte, cb etwEnableCallback) error
	// write submits one event as provider-traits, event-metadata, and
	// payload blobs. act and rel are nil when absent.
	write(desc *etwEventDescriptor, act, rel *ActivityID, traits, meta, data []byte) error
}

// uuid16 is the raw 16-byte GUID form, keeping the port signatures free of
// the uuid dependency in build-tagged files.
type uuid16 = [16]byte

// eventSet is a registered (level, keyword) combination on the user_events
// backend with its own kernel-maintained enablement state. Distinct from the
// provider because kernel-side enablement granularity is per combination.
type eventSet struct {
	tracepoint string // e.g. MyProvider_L4K1
	// enableWord is written by the kernel through the address registered
	// with the tracepoint; a nonzero value means at least one consumer is
	// attached. Read atomically, never written from Go after registration.
	enableWord uint32
	writeIndex uint32
}

// uePort is the native user_events seam: the real implementation drives
// /sys/kernel/tracing/user_events_data on Linux; tests substitute a capture
// implementation.
type uePort interface {
	// registerSet registers the tracepoint and fills in writeIndex, wiring
	// enableWord up for kernel updates.
	registerSet(set *eventSet) error
	// write submits the assembled header+extensions+payload bytes for the
	// set; the port prepends the write index.
	write(set *eventSet, payload []byte) error
}
