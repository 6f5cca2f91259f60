package eventz

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// csOp records one overlay call against the fake event below.
type csOp struct {
	op    string
	name  string
	str   string
	count uint8
	field Field
}

type recCSEvent struct {
	ops     []csOp
	written bool
}

func (r *recCSEvent) addCSVersion() { r.ops = append(r.ops, csOp{op: "csver"}) }

func (r *recCSEvent) addStruct(name string, n uint8) {
	r.ops = append(r.ops, csOp{op: "struct", name: name, count: n})
}

func (r *recCSEvent) addString(name, value string) {
	r.ops = append(r.ops, csOp{op: "string", name: name, str: value})
}

func (r *recCSEvent) addField(f Field) {
	r.ops = append(r.ops, csOp{op: "field", name: f.Name, field: f})
}

func (r *recCSEvent) write() error {
	r.written = true
	return nil
}

// recCSEncoder only answers newCSEvent; the rest is the noop backend.
type recCSEncoder struct {
	noopEncoder
	ev *recCSEvent
	ok bool
}

func (e *recCSEncoder) newCSEvent(string, Level, uint64, uint32) (csEvent, bool) {
	return e.ev, e.ok
}

func TestCSSpanStopEnvelope(t *testing.T) {
	enc := &recCSEncoder{ev: &recCSEvent{}, ok: true}

	fields := NewFieldTable([]string{"message", "rows"})
	fields.Update("message", StringValue("done"))
	fields.Update("rows", Uint64Value(3))

	act, rel := GenerateActivities(0xabc, 0xdef)
	start := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	stop := start.Add(2 * time.Second)

	require.NoError(t, csSpanStop(enc, "query", start, stop, act, rel, fields, LevelInfo, 1, 0))
	require.True(t, enc.ev.written)

	want := []csOp{
		{op: "csver"},
		{op: "struct", name: "PartA", count: 2},
		{op: "string", name: "time", str: "2024-05-06T07:08:11Z"},
		{op: "struct", name: "ext_dt", count: 2},
		{op: "string", name: "traceId", str: ""},
		{op: "string", name: "spanId", str: "             abc"},
		{op: "struct", name: "PartB", count: 4},
		{op: "string", name: "_typeName", str: "Span"},
		{op: "string", name: "parentId", str: "             def"},
		{op: "string", name: "name", str: "query"},
		{op: "string", name: "startTime", str: "2024-05-06T07:08:09Z"},
		{op: "struct", name: "PartC", count: 2},
		{op: "field", name: "Body", field: Field{Name: "Body", Value: StringValue("done")}},
		{op: "field", name: "rows", field: Field{Name: "rows", Value: Uint64Value(3)}},
	}
	assert.Equal(t, want, enc.ev.ops)
}

func TestCSSpanStopRootSpan(t *testing.T) {
	enc := &recCSEncoder{ev: &recCSEvent{}, ok: true}

	act, rel := GenerateActivities(0x1, 0)
	fields := NewFieldTable(nil)
	require.NoError(t, csSpanStop(enc, "root", time.Now(), time.Now(), act, rel, fields, LevelInfo, 1, 0))

	// No parentId member without a related activity.
	for _, op := range enc.ev.ops {
		assert.NotEqual(t, "parentId", op.name)
		if op.op == "struct" && op.name == "PartB" {
			assert.Equal(t, uint8(3), op.count)
		}
	}
}

func TestCSWriteEventEnvelope(t *testing.T) {
	enc := &recCSEncoder{ev: &recCSEvent{}, ok: true}

	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	fields := []Field{{Name: "message", Value: StringValue("hi")}}
	require.NoError(t, csWriteEvent(enc, "login", ts, 0xabc, fields, LevelInfo, 1, 0))

	want := []csOp{
		{op: "csver"},
		{op: "struct", name: "PartA", count: 2},
		{op: "string", name: "time", str: "2024-05-06T07:08:09Z"},
		{op: "struct", name: "ext_dt", count: 2},
		{op: "string", name: "traceId", str: ""},
		{op: "string", name: "spanId", str: "             abc"},
		{op: "struct", name: "PartB", count: 3},
		{op: "string", name: "_typeName", str: "Log"},
		{op: "string", name: "name", str: "login"},
		{op: "string", name: "eventTime", str: "2024-05-06T07:08:09Z"},
		{op: "struct", name: "PartC", count: 1},
		{op: "field", name: "Body", field: Field{Name: "Body", Value: StringValue("hi")}},
	}
	assert.Equal(t, want, enc.ev.ops)
}

func TestCSWriteEventOutsideSpan(t *testing.T) {
	enc := &recCSEncoder{ev: &recCSEvent{}, ok: true}
	require.NoError(t, csWriteEvent(enc, "loose", time.Now(), 0, nil, LevelInfo, 1, 0))

	require.NotEmpty(t, enc.ev.ops)
	assert.Equal(t, csOp{op: "struct", name: "PartA", count: 1}, enc.ev.ops[1])
	for _, op := range enc.ev.ops {
		assert.NotEqual(t, "ext_dt", op.name)
	}
}

func TestCSWriteEventFieldCountCapped(t *testing.T) {
	enc := &recCSEncoder{ev: &recCSEvent{}, ok: true}

	fields := make([]Field, maxFields+3)
	for i := range fields {
		fields[i] = Field{Name: fmt.Sprintf("f%d", i), Value: Uint64Value(uint64(i))}
	}
	require.NoError(t, csWriteEvent(enc, "big", time.Now(), 0, fields, LevelInfo, 1, 0))

	// The declared member count is 7 bits on the wire; surplus fields are
	// dropped rather than wrapping the count.
	emitted := 0
	for _, op := range enc.ev.ops {
		if op.op == "struct" && op.name == "PartC" {
			assert.Equal(t, uint8(maxFields), op.count)
		}
		if op.op == "field" {
			emitted++
		}
	}
	assert.Equal(t, maxFields, emitted)
}

func TestCSTimeKeepsSubsecondPrecision(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC)
	assert.Equal(t, "2024-05-06T07:08:09.123456789Z", csTime(ts))
}

func TestCSRenameOnlyAppliesToStrings(t *testing.T) {
	assert.Equal(t, "Body", csFieldName(Field{Name: "message", Value: StringValue("x")}))
	assert.Equal(t, "message", csFieldName(Field{Name: "message", Value: Uint64Value(1)}))
	assert.Equal(t, "other", csFieldName(Field{Name: "other", Value: StringValue("x")}))
}

func TestCSUnavailableBackend(t *testing.T) {
	enc := &recCSEncoder{ok: false}
	err := csWriteEvent(enc, "ev", time.Now(), 0, nil, LevelInfo, 1, 0)
	assert.ErrorIs(t, err, errCSUnavailable)

	err = csSpanStop(enc, "ev", time.Now(), time.Now(), ActivityID{}, ActivityID{}, NewFieldTable(nil), LevelInfo, 1, 0)
	assert.ErrorIs(t, err, errCSUnavailable)
}
