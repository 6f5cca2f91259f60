package eventz

import "sort"

// maxFields caps the number of declared fields per span or event. The sort
// index is a single byte and struct field counts on the wire are 7 bits, so
// 127 is the largest count both formats can carry.
const maxFields = 127

type fieldSlot struct {
	name  string
	value Value
}

// FieldTable is per-span ordered storage of (name, value) pairs.
//
// Slots stay in declaration order for the life of the span - wire formats
// reproduce declaration order - while a secondary sorted index permits
// binary-search lookup by name without relocating slots. The slot count and
// the set of names are fixed at allocation; only values mutate.
//
// A FieldTable is exclusively owned by one span and performs no locking;
// the front-end serializes access (see package documentation).
type FieldTable struct {
	slots   []fieldSlot
	sortIdx []uint8
}

// NewFieldTable allocates a table with one None-valued slot per declared
// name, in declaration order. Names beyond the supported maximum are
// ignored. Duplicate names are not a supported scenario; lookup behavior
// among duplicates is unspecified.
func NewFieldTable(names []string) *FieldTable {
	if len(names) > maxFields {
		names = names[:maxFields]
	}
	t := &FieldTable{
		slots:   make([]fieldSlot, len(names)),
		sortIdx: make([]uint8, len(names)),
	}
	for i, name := range names {
		t.slots[i].name = name
		t.sortIdx[i] = uint8(i)
	}
	sort.Slice(t.sortIdx, func(a, b int) bool {
		return t.slots[t.sortIdx[a]].name < t.slots[t.sortIdx[b]].name
	})
	return t
}

// capFields bounds a caller-supplied field list to what the wire formats
// can declare; struct member counts are 7 bits, so an oversized list would
// wrap the declared count while all payload bytes still follow. Surplus
// fields are dropped.
func capFields(fields []Field) []Field {
	if len(fields) > maxFields {
		return fields[:maxFields]
	}
	return fields
}

// Update overwrites the value of the named slot. Updates for names that were
// not declared at allocation are silently discarded: a record's field set is
// fixed at creation, and late-arriving names have nowhere to go on the wire.
func (t *FieldTable) Update(name string, value Value) {
	n := len(t.sortIdx)
	i := sort.Search(n, func(i int) bool {
		return t.slots[t.sortIdx[i]].name >= name
	})
	if i < n && t.slots[t.sortIdx[i]].name == name {
		t.slots[t.sortIdx[i]].value = value
	}
}

// Len returns the number of declared slots.
func (t *FieldTable) Len() int { return len(t.slots) }

// Field returns the slot at declaration-order position i.
func (t *FieldTable) Field(i int) Field {
	return Field{Name: t.slots[i].name, Value: t.slots[i].value}
}

// each visits slots in declaration order.
func (t *FieldTable) each(fn func(name string, value Value)) {
	for i := range t.slots {
		fn(t.slots[i].name, t.slots[i].value)
	}
}
