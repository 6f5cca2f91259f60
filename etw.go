package eventz

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// TraceLogging field input types (TlgIn).
const (
	inTypeInt64             uint8 = 9
	inTypeUint64            uint8 = 10
	inTypeDouble            uint8 = 12
	inTypeBool32            uint8 = 13
	inTypeUint8             uint8 = 4
	inTypeUint16            uint8 = 6
	inTypeSystemTime        uint8 = 18
	inTypeCountedAnsiString uint8 = 23
	inTypeStruct            uint8 = 24

	// inTypeVCountFlag marks a variable-length array; the payload begins
	// with a uint16 element count.
	inTypeVCountFlag uint8 = 0x40
	// inTypeChainFlag marks that an output type byte follows.
	inTypeChainFlag uint8 = 0x80
)

// TraceLogging field output types (TlgOut).
const (
	outTypeDefault     uint8 = 0
	outTypeString      uint8 = 2
	outTypeBoolean     uint8 = 3
	outTypeHex         uint8 = 4
	outTypeSigned      uint8 = 17
	outTypeUtf8        uint8 = 35
	outTypeDateTimeUtc uint8 = 38
)

// traceLoggingChannel is the channel reserved for manifest-free events.
const traceLoggingChannel uint8 = 11

// etwProviderTraitTypeGroup identifies the provider-group trait in the
// provider metadata blob.
const etwProviderTraitTypeGroup uint8 = 1

// tlgBuilder assembles one TraceLogging event: a self-describing metadata
// blob (event name plus field declarations) and a payload blob. Builders are
// pooled and reused across events to avoid per-event allocation; reset wipes
// any previous event's partial state.
type tlgBuilder struct {
	meta    []byte
	data    []byte
	keyword uint64
	level   Level
	opcode  uint8
}

var tlgPool = sync.Pool{
	New: func() interface{} {
		return &tlgBuilder{
			meta: make([]byte, 0, 256),
			data: make([]byte, 0, 256),
		}
	},
}

func getTLGBuilder(name string, level Level, keyword uint64, tag uint32) *tlgBuilder {
	b := tlgPool.Get().(*tlgBuilder)
	b.reset(name, level, keyword, tag)
	return b
}

func putTLGBuilder(b *tlgBuilder) { tlgPool.Put(b) }

// reset starts a new event. The metadata blob begins with a self-inclusive
// uint16 size (patched at finish), the event tag, and the event name.
func (b *tlgBuilder) reset(name string, level Level, keyword uint64, tag uint32) {
	b.meta = append(b.meta[:0], 0, 0)
	b.meta = appendMetaTag(b.meta, tag)
	b.meta = append(b.meta, name...)
	b.meta = append(b.meta, 0)
	b.data = b.data[:0]
	b.level = level
	b.keyword = keyword
	b.opcode = opcodeInfo
}

// appendMetaTag encodes a 28-bit tag as 1-4 bytes, 7 bits per byte starting
// from the most significant, with the high bit marking continuation.
func appendMetaTag(meta []byte, tag uint32) []byte {
	tag = (tag & 0x0fffffff) << 4
	for {
		chunk := byte(tag >> 25)
		tag <<= 7
		if tag != 0 {
			meta = append(meta, chunk|0x80)
			continue
		}
		return append(meta, chunk)
	}
}

// finish patches the metadata size prefix and returns the two blobs.
func (b *tlgBuilder) finish() (meta, data []byte) {
	binary.LittleEndian.PutUint16(b.meta[:2], uint16(len(b.meta)))
	return b.meta, b.data
}

func (b *tlgBuilder) descriptor() *etwEventDescriptor {
	return &etwEventDescriptor{
		Channel: traceLoggingChannel,
		Level:   uint8(b.level),
		Opcode:  b.opcode,
		Keyword: b.keyword,
	}
}

func (b *tlgBuilder) addFieldMeta(name string, inType, outType uint8) {
	if outType != outTypeDefault {
		inType |= inTypeChainFlag
	}
	b.meta = append(b.meta, name...)
	b.meta = append(b.meta, 0, inType)
	if outType != outTypeDefault {
		b.meta = append(b.meta, outType)
	}
}

func (b *tlgBuilder) addUint64(name string, v uint64) {
	b.addFieldMeta(name, inTypeUint64, outTypeDefault)
	b.data = binary.LittleEndian.AppendUint64(b.data, v)
}

func (b *tlgBuilder) addInt64(name string, v int64) {
	b.addFieldMeta(name, inTypeInt64, outTypeDefault)
	b.data = binary.LittleEndian.AppendUint64(b.data, uint64(v))
}

// addUint64Pair writes a 128-bit integer as a two-element uint64 sequence
// tagged as hex: the value's little-endian bytes reinterpreted as two words.
// The format has no native 128-bit field type, so this width-limited
// rendering is deliberate.
func (b *tlgBuilder) addUint64Pair(name string, hi, lo uint64) {
	b.addFieldMeta(name, inTypeUint64|inTypeVCountFlag, outTypeHex)
	b.data = binary.LittleEndian.AppendUint16(b.data, 2)
	b.data = binary.LittleEndian.AppendUint64(b.data, lo)
	b.data = binary.LittleEndian.AppendUint64(b.data, hi)
}

func (b *tlgBuilder) addFloat64(name string, v float64) {
	b.addFieldMeta(name, inTypeDouble, outTypeDefault)
	b.data = binary.LittleEndian.AppendUint64(b.data, Float64Value(v).num)
}

func (b *tlgBuilder) addBool32(name string, v bool) {
	b.addFieldMeta(name, inTypeBool32, outTypeBoolean)
	var n uint32
	if v {
		n = 1
	}
	b.data = binary.LittleEndian.AppendUint32(b.data, n)
}

func (b *tlgBuilder) addString(name, s string) {
	if len(s) > maxCountedBytes {
		s = s[:maxCountedBytes]
	}
	b.addFieldMeta(name, inTypeCountedAnsiString, outTypeUtf8)
	b.data = binary.LittleEndian.AppendUint16(b.data, uint16(len(s)))
	b.data = append(b.data, s...)
}

func (b *tlgBuilder) addChar(name string, c rune) {
	b.addFieldMeta(name, inTypeUint8, outTypeString)
	b.data = append(b.data, byte(c))
}

func (b *tlgBuilder) addUint16Field(name string, v uint16, outType uint8) {
	b.addFieldMeta(name, inTypeUint16, outType)
	b.data = binary.LittleEndian.AppendUint16(b.data, v)
}

// addSystemTime writes a Win32 SYSTEMTIME payload: eight uint16 words in the
// order year, month, day-of-week, day, hour, minute, second, millisecond.
// The day-of-week slot is always written as zero; decoders expect the slot
// to be present even though it is redundant with the date.
func (b *tlgBuilder) addSystemTime(name string, t time.Time) {
	b.addFieldMeta(name, inTypeSystemTime, outTypeDateTimeUtc)
	t = t.UTC()
	words := [8]uint16{
		uint16(t.Year()),
		uint16(t.Month()),
		0,
		uint16(t.Day()),
		uint16(t.Hour()),
		uint16(t.Minute()),
		uint16(t.Second()),
		uint16(t.Nanosecond() / 1e6),
	}
	for _, w := range words {
		b.data = binary.LittleEndian.AppendUint16(b.data, w)
	}
}

// addStruct declares a nested struct of fieldCount members. The member
// fields that follow belong to the struct.
func (b *tlgBuilder) addStruct(name string, fieldCount uint8) {
	b.meta = append(b.meta, name...)
	b.meta = append(b.meta, 0, inTypeStruct|inTypeChainFlag, fieldCount&0x7f)
}

// addValue maps a Value variant onto its typed wire primitive. None values
// are skipped: the field is simply absent from this event.
func (b *tlgBuilder) addValue(name string, v Value) {
	switch v.Kind() {
	case KindNone:
	case KindUint64:
		b.addUint64(name, v.Uint())
	case KindInt64:
		b.addInt64(name, v.Int())
	case KindUint128, KindInt128:
		hi, lo := v.Words()
		b.addUint64Pair(name, hi, lo)
	case KindFloat64:
		b.addFloat64(name, v.Float())
	case KindBool:
		b.addBool32(name, v.Bool())
	case KindString:
		b.addString(name, v.Str())
	case KindChar:
		b.addChar(name, v.Char())
	}
}

// etwEncoder emits TraceLogging events through a registered ETW provider
// handle. Enablement is pushed by the OS controller via the registration
// callback, so Enabled answers are authoritative between pushes.
type etwEncoder struct {
	port   etwPort
	traits []byte
	// onEnableChange lets the host front-end invalidate its callsite
	// interest cache when the controller flips enablement.
	onEnableChange func()

	enableOn      atomic.Bool
	enableLevel   atomic.Uint32
	enableKeyword atomic.Uint64
}

// buildProviderTraits assembles the provider metadata blob: a self-inclusive
// uint16 size, the provider name, and the optional group trait.
func buildProviderTraits(name string, group ProviderGroup) []byte {
	traits := []byte{0, 0}
	traits = append(traits, name...)
	traits = append(traits, 0)
	if group.kind == groupGUID {
		// Group trait: uint16 size, trait type, 16-byte GUID.
		traits = binary.LittleEndian.AppendUint16(traits, 2+1+16)
		traits = append(traits, etwProviderTraitTypeGroup)
		le := guidBytesLE(group.id)
		traits = append(traits, le[:]...)
	}
	binary.LittleEndian.PutUint16(traits[:2], uint16(len(traits)))
	return traits
}

func newETWEncoder(name string, id uuid.UUID, group ProviderGroup, port etwPort, onEnableChange func()) (*etwEncoder, error) {
	e := &etwEncoder{
		port:           port,
		traits:         buildProviderTraits(name, group),
		onEnableChange: onEnableChange,
	}
	err := port.register(guidBytesLE(id), e.traits, e.enablementChanged)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// enablementChanged records the controller's pushed enablement state and
// invalidates the front-end's interest cache.
func (e *etwEncoder) enablementChanged(enabled bool, level Level, matchAnyKeyword uint64) {
	e.enableLevel.Store(uint32(level))
	e.enableKeyword.Store(matchAnyKeyword)
	e.enableOn.Store(enabled)
	if e.onEnableChange != nil {
		e.onEnableChange()
	}
}

func (e *etwEncoder) Enabled(level Level, keyword uint64) bool {
	if !e.enableOn.Load() {
		return false
	}
	if lvl := e.enableLevel.Load(); lvl != 0 && uint32(level) > lvl {
		return false
	}
	if any := e.enableKeyword.Load(); keyword != 0 && any != 0 && keyword&any == 0 {
		return false
	}
	return true
}

func (e *etwEncoder) SupportsPushEnablement() bool { return true }

func (e *etwEncoder) submit(b *tlgBuilder, activity, related ActivityID) error {
	var act, rel *ActivityID
	if activity.Present() {
		act = &activity
	}
	if related.Present() {
		rel = &related
	}
	meta, data := b.finish()
	return e.port.write(b.descriptor(), act, rel, e.traits, meta, data)
}

func (e *etwEncoder) SpanStart(name string, ts time.Time, activity, related ActivityID, fields *FieldTable, level Level, keyword uint64, tag uint32) error {
	b := getTLGBuilder(name, level, keyword, tag)
	defer putTLGBuilder(b)
	b.opcode = opcodeStart
	b.addSystemTime("start time", ts)
	fields.each(b.addValue)
	return e.submit(b, activity, related)
}

func (e *etwEncoder) SpanStop(name string, _, stop time.Time, activity, related ActivityID, fields *FieldTable, level Level, keyword uint64, tag uint32) error {
	b := getTLGBuilder(name, level, keyword, tag)
	defer putTLGBuilder(b)
	b.opcode = opcodeStop
	b.addSystemTime("stop time", stop)
	fields.each(b.addValue)
	return e.submit(b, activity, related)
}

func (e *etwEncoder) WriteEvent(name string, ts time.Time, activity, related ActivityID, fields []Field, level Level, keyword uint64, tag uint32) error {
	fields = capFields(fields)
	b := getTLGBuilder(name, level, keyword, tag)
	defer putTLGBuilder(b)
	b.opcode = opcodeInfo
	b.addSystemTime("time", ts)
	for _, f := range fields {
		b.addValue(f.Name, f.Value)
	}
	return e.submit(b, activity, related)
}

// etwCSEvent adapts the TraceLogging builder to the Common Schema overlay.
type etwCSEvent struct {
	enc *etwEncoder
	b   *tlgBuilder
}

func (e *etwEncoder) newCSEvent(name string, level Level, keyword uint64, tag uint32) (csEvent, bool) {
	return &etwCSEvent{enc: e, b: getTLGBuilder(name, level, keyword, tag)}, true
}

func (c *etwCSEvent) addCSVersion() { c.b.addUint16Field("__csver__", csVersion, outTypeSigned) }

func (c *etwCSEvent) addStruct(name string, n uint8) { c.b.addStruct(name, n) }

func (c *etwCSEvent) addString(name, value string) { c.b.addString(name, value) }

func (c *etwCSEvent) addField(f Field) { c.b.addValue(f.Name, f.Value) }

func (c *etwCSEvent) write() error {
	defer putTLGBuilder(c.b)
	c.b.opcode = opcodeInfo
	meta, data := c.b.finish()
	return c.enc.port.write(c.b.descriptor(), nil, nil, c.enc.traits, meta, data)
}
