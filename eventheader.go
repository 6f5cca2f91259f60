package eventz

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// EventHeader header flags.
const (
	ehFlagPointer64    uint8 = 0x01
	ehFlagLittleEndian uint8 = 0x02
	ehFlagExtension    uint8 = 0x04
)

// EventHeader extension kinds. The chain bit marks that another extension
// follows; the last extension has it clear.
const (
	ehExtMetadata   uint16 = 1
	ehExtActivityID uint16 = 2
	ehExtChainFlag  uint16 = 0x8000
)

// EventHeader field encodings.
const (
	encStruct              uint8 = 1
	encValue8              uint8 = 2
	encValue32             uint8 = 4
	encValue64             uint8 = 5
	encStringLength16Char8 uint8 = 10

	// encChainFlag marks that a format byte follows the encoding.
	encChainFlag uint8 = 0x80
)

// EventHeader field formats.
const (
	fmtDefault   uint8 = 0
	fmtSignedInt uint8 = 2
	fmtTime      uint8 = 6
	fmtBoolean   uint8 = 7
	fmtFloat     uint8 = 8
	fmtHexBytes  uint8 = 9
	fmtString8   uint8 = 10
)

// ehBuilder assembles one EventHeader event: the field metadata (event name
// plus field declarations) and the payload. Builders are pooled; reset wipes
// the previous event's partial state.
type ehBuilder struct {
	meta   []byte
	data   []byte
	tag    uint16
	level  Level
	opcode uint8
}

var ehPool = sync.Pool{
	New: func() interface{} {
		return &ehBuilder{
			meta: make([]byte, 0, 256),
			data: make([]byte, 0, 256),
		}
	},
}

func getEHBuilder(name string, level Level, tag uint32) *ehBuilder {
	b := ehPool.Get().(*ehBuilder)
	// The EventHeader tag field is 16 bits; wider tags are truncated.
	b.reset(name, level, uint16(tag))
	return b
}

func putEHBuilder(b *ehBuilder) { ehPool.Put(b) }

func (b *ehBuilder) reset(name string, level Level, tag uint16) {
	b.meta = append(b.meta[:0], name...)
	b.meta = append(b.meta, 0)
	b.data = b.data[:0]
	b.tag = tag
	b.level = level
	b.opcode = opcodeInfo
}

func (b *ehBuilder) addFieldMeta(name string, encoding, format uint8) {
	if format != fmtDefault {
		encoding |= encChainFlag
	}
	b.meta = append(b.meta, name...)
	b.meta = append(b.meta, 0, encoding)
	if format != fmtDefault {
		b.meta = append(b.meta, format)
	}
}

func (b *ehBuilder) addValue64(name string, v uint64, format uint8) {
	b.addFieldMeta(name, encValue64, format)
	b.data = binary.LittleEndian.AppendUint64(b.data, v)
}

func (b *ehBuilder) addValue32(name string, v uint32, format uint8) {
	b.addFieldMeta(name, encValue32, format)
	b.data = binary.LittleEndian.AppendUint32(b.data, v)
}

func (b *ehBuilder) addString(name, s string) {
	if len(s) > maxCountedBytes {
		s = s[:maxCountedBytes]
	}
	b.addFieldMeta(name, encStringLength16Char8, fmtDefault)
	b.data = binary.LittleEndian.AppendUint16(b.data, uint16(len(s)))
	b.data = append(b.data, s...)
}

func (b *ehBuilder) addBytes(name string, p []byte, format uint8) {
	b.addFieldMeta(name, encStringLength16Char8, format)
	b.data = binary.LittleEndian.AppendUint16(b.data, uint16(len(p)))
	b.data = append(b.data, p...)
}

// addUnixTime writes a Unix-epoch seconds timestamp field. The kernel
// tracepoint format has no structured date-time type.
func (b *ehBuilder) addUnixTime(name string, t time.Time) {
	b.addValue64(name, uint64(t.Unix()), fmtTime)
}

// addStruct declares a nested struct; the member count travels in the
// format byte.
func (b *ehBuilder) addStruct(name string, fieldCount uint8) {
	b.meta = append(b.meta, name...)
	b.meta = append(b.meta, 0, encStruct|encChainFlag, fieldCount&0x7f)
}

// addValue maps a Value variant onto its typed wire primitive. 128-bit
// integers are written as a raw little-endian byte blob rendered as hex;
// None values are skipped.
func (b *ehBuilder) addValue(name string, v Value) {
	switch v.Kind() {
	case KindNone:
	case KindUint64:
		b.addValue64(name, v.Uint(), fmtDefault)
	case KindInt64:
		b.addValue64(name, uint64(v.Int()), fmtSignedInt)
	case KindUint128, KindInt128:
		raw := v.bytes128()
		b.addBytes(name, raw[:], fmtHexBytes)
	case KindFloat64:
		b.addValue64(name, v.num, fmtFloat)
	case KindBool:
		var n uint32
		if v.Bool() {
			n = 1
		}
		b.addValue32(name, n, fmtBoolean)
	case KindString:
		b.addString(name, v.Str())
	case KindChar:
		b.addFieldMeta(name, encValue8, fmtString8)
		b.data = append(b.data, byte(v.Char()))
	}
}

// assemble lays out the event bytes handed to the kernel: the 8-byte
// eventheader, the activity extension (activity IDs travel as raw 16-byte
// blocks, gated on their presence byte), the metadata extension, and the
// payload. The write index prefix is the port's business.
func (b *ehBuilder) assemble(activity, related *ActivityID) []byte {
	out := make([]byte, 0, 8+4+36+4+len(b.meta)+len(b.data))

	out = append(out, ehFlagPointer64|ehFlagLittleEndian|ehFlagExtension, 0)
	out = binary.LittleEndian.AppendUint16(out, 0) // id: tracepoint-identified
	out = binary.LittleEndian.AppendUint16(out, b.tag)
	out = append(out, b.opcode, uint8(b.level))

	if activity != nil {
		size := 16
		if related != nil {
			size = 32
		}
		out = binary.LittleEndian.AppendUint16(out, uint16(size))
		out = binary.LittleEndian.AppendUint16(out, ehExtActivityID|ehExtChainFlag)
		out = append(out, activity[:]...)
		if related != nil {
			out = append(out, related[:]...)
		}
	}

	out = binary.LittleEndian.AppendUint16(out, uint16(len(b.meta)))
	out = binary.LittleEndian.AppendUint16(out, ehExtMetadata)
	out = append(out, b.meta...)

	return append(out, b.data...)
}

var errNoEventSet = errors.New("event set unavailable")

type eventSetKey struct {
	keyword uint64
	level   Level
}

// userEventsEncoder emits EventHeader events against per-(level, keyword)
// event sets. There is no enablement push on this backend: Enabled consults
// the kernel-maintained word on each call and interest is always Sometimes.
type userEventsEncoder struct {
	port        uePort
	name        string
	groupSuffix string

	mu   sync.RWMutex
	sets map[eventSetKey]*eventSet
}

// defaultLevels are pre-registered at provider construction so a perf
// session can attach to the standard severities before the first write.
var defaultLevels = [...]Level{LevelError, LevelWarn, LevelInfo, LevelDebug, LevelTrace}

func newUserEventsEncoder(name string, group ProviderGroup, defaultKeyword uint64, port uePort) (*userEventsEncoder, error) {
	e := &userEventsEncoder{
		port: port,
		name: name,
		sets: make(map[eventSetKey]*eventSet),
	}
	if group.kind == groupName {
		e.groupSuffix = "G" + group.name
	}

	registered := 0
	for _, level := range defaultLevels {
		if e.findOrRegisterSet(level, defaultKeyword) != nil {
			registered++
		}
	}
	if registered == 0 {
		return nil, errNoEventSet
	}
	return e, nil
}

// tracepointName renders the kernel tracepoint name for a (level, keyword)
// combination, e.g. MyProvider_L4K1 or MyProvider_L4K1Gmygroup.
func (e *userEventsEncoder) tracepointName(level Level, keyword uint64) string {
	return fmt.Sprintf("%s_L%xK%x%s", e.name, uint8(level), keyword, e.groupSuffix)
}

func (e *userEventsEncoder) findSet(level Level, keyword uint64) *eventSet {
	e.mu.RLock()
	set := e.sets[eventSetKey{keyword: keyword, level: level}]
	e.mu.RUnlock()
	return set
}

// findOrRegisterSet returns the registered set for the combination, lazily
// registering it on first use. Returns nil when registration fails; the
// failure is not cached, so a later call retries.
func (e *userEventsEncoder) findOrRegisterSet(level Level, keyword uint64) *eventSet {
	if set := e.findSet(level, keyword); set != nil {
		return set
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	key := eventSetKey{keyword: keyword, level: level}
	if set := e.sets[key]; set != nil {
		return set
	}
	set := &eventSet{tracepoint: e.tracepointName(level, keyword)}
	if err := e.port.registerSet(set); err != nil {
		return nil
	}
	e.sets[key] = set
	return set
}

// Enabled polls the kernel-maintained enable word. The combination's
// tracepoint is registered on first sight: enablement gating runs before
// any write, so registering here is what lets a consumer attach to a
// callsite that has never been enabled.
func (e *userEventsEncoder) Enabled(level Level, keyword uint64) bool {
	set := e.findOrRegisterSet(level, keyword)
	if set == nil {
		return false
	}
	return atomic.LoadUint32(&set.enableWord) != 0
}

func (e *userEventsEncoder) SupportsPushEnablement() bool { return false }

func gateActivities(activity, related ActivityID) (act, rel *ActivityID) {
	if activity.Present() {
		act = &activity
	}
	if related.Present() {
		rel = &related
	}
	// The kernel format carries the related ID inside the activity
	// extension; without an activity there is nowhere to put it.
	if act == nil {
		rel = nil
	}
	return act, rel
}

func (e *userEventsEncoder) SpanStart(name string, ts time.Time, activity, related ActivityID, fields *FieldTable, level Level, keyword uint64, tag uint32) error {
	set := e.findOrRegisterSet(level, keyword)
	if set == nil {
		return errNoEventSet
	}
	b := getEHBuilder(name, level, tag)
	defer putEHBuilder(b)
	b.opcode = opcodeStart
	b.addUnixTime("start time", ts)
	fields.each(b.addValue)
	act, rel := gateActivities(activity, related)
	return e.port.write(set, b.assemble(act, rel))
}

func (e *userEventsEncoder) SpanStop(name string, _, stop time.Time, activity, related ActivityID, fields *FieldTable, level Level, keyword uint64, tag uint32) error {
	set := e.findOrRegisterSet(level, keyword)
	if set == nil {
		return errNoEventSet
	}
	b := getEHBuilder(name, level, tag)
	defer putEHBuilder(b)
	b.opcode = opcodeStop
	b.addUnixTime("stop time", stop)
	fields.each(b.addValue)
	act, rel := gateActivities(activity, related)
	return e.port.write(set, b.assemble(act, rel))
}

func (e *userEventsEncoder) WriteEvent(name string, ts time.Time, activity, related ActivityID, fields []Field, level Level, keyword uint64, tag uint32) error {
	fields = capFields(fields)
	set := e.findOrRegisterSet(level, keyword)
	if set == nil {
		return errNoEventSet
	}
	b := getEHBuilder(name, level, tag)
	defer putEHBuilder(b)
	b.opcode = opcodeInfo
	b.addUnixTime("time", ts)
	for _, f := range fields {
		b.addValue(f.Name, f.Value)
	}
	act, rel := gateActivities(activity, related)
	return e.port.write(set, b.assemble(act, rel))
}

// ehCSEvent adapts the EventHeader builder to the Common Schema overlay.
type ehCSEvent struct {
	enc *userEventsEncoder
	set *eventSet
	b   *ehBuilder
}

func (e *userEventsEncoder) newCSEvent(name string, level Level, keyword uint64, tag uint32) (csEvent, bool) {
	set := e.findOrRegisterSet(level, keyword)
	if set == nil {
		return nil, false
	}
	return &ehCSEvent{enc: e, set: set, b: getEHBuilder(name, level, tag)}, true
}

func (c *ehCSEvent) addCSVersion() { c.b.addValue32("__csver__", csVersion, fmtSignedInt) }

func (c *ehCSEvent) addStruct(name string, n uint8) { c.b.addStruct(name, n) }

func (c *ehCSEvent) addString(name, value string) { c.b.addString(name, value) }

func (c *ehCSEvent) addField(f Field) { c.b.addValue(f.Name, f.Value) }

func (c *ehCSEvent) write() error {
	defer putEHBuilder(c.b)
	c.b.opcode = opcodeInfo
	return c.enc.port.write(c.set, c.b.assemble(nil, nil))
}
