package eventz

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldTablePreservesDeclarationOrder(t *testing.T) {
	names := []string{"zebra", "apple", "mango", "banana"}
	ft := NewFieldTable(names)
	require.Equal(t, len(names), ft.Len())
	for i, name := range names {
		assert.Equal(t, name, ft.Field(i).Name)
		assert.Equal(t, KindNone, ft.Field(i).Value.Kind())
	}
}

func TestFieldTableUpdate(t *testing.T) {
	ft := NewFieldTable([]string{"count", "message", "elapsed"})

	ft.Update("count", Uint64Value(3))
	ft.Update("message", StringValue("done"))

	assert.Equal(t, uint64(3), ft.Field(0).Value.Uint())
	assert.Equal(t, "done", ft.Field(1).Value.Str())
	assert.Equal(t, KindNone, ft.Field(2).Value.Kind())

	ft.Update("count", Uint64Value(4))
	assert.Equal(t, uint64(4), ft.Field(0).Value.Uint())
}

func TestFieldTableIgnoresUnknownNames(t *testing.T) {
	ft := NewFieldTable([]string{"known"})
	ft.Update("unknown", Uint64Value(1))
	ft.Update("", Uint64Value(1))
	assert.Equal(t, KindNone, ft.Field(0).Value.Kind())
}

func TestFieldTableLookupAcrossManyNames(t *testing.T) {
	var names []string
	for i := 0; i < 100; i++ {
		// Reverse order so declaration order and sorted order differ.
		names = append(names, fmt.Sprintf("field%03d", 99-i))
	}
	ft := NewFieldTable(names)
	for i := 0; i < 100; i++ {
		ft.Update(fmt.Sprintf("field%03d", i), Uint64Value(uint64(i)))
	}
	for i, name := range names {
		f := ft.Field(i)
		require.Equal(t, name, f.Name)
		assert.Equal(t, fmt.Sprintf("field%03d", f.Value.Uint()), f.Name)
	}
}

func TestFieldTableTruncatesAtMax(t *testing.T) {
	names := make([]string, maxFields+10)
	for i := range names {
		names[i] = fmt.Sprintf("f%d", i)
	}
	ft := NewFieldTable(names)
	assert.Equal(t, maxFields, ft.Len())
}

func TestFieldTableEmpty(t *testing.T) {
	ft := NewFieldTable(nil)
	assert.Equal(t, 0, ft.Len())
	ft.Update("anything", Uint64Value(1))

	visited := 0
	ft.each(func(string, Value) { visited++ })
	assert.Zero(t, visited)
}
