package eventz

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderIDFromNameDeterministic(t *testing.T) {
	a := providerIDFromName("MyCompany.MyComponent")
	b := providerIDFromName("MyCompany.MyComponent")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, providerIDFromName("MyCompany.Other"))
}

func TestProviderIDFromNameCaseInsensitive(t *testing.T) {
	assert.Equal(t, providerIDFromName("myprovider"), providerIDFromName("MyProvider"))
}

func TestProviderIDFromNameVersionNibble(t *testing.T) {
	id := providerIDFromName("anything")
	assert.Equal(t, byte(0x50), id[6]&0xf0)
}

func TestGUIDBytesLE(t *testing.T) {
	id := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	got := guidBytesLE(id)
	want := [16]byte{
		0x33, 0x22, 0x11, 0x00,
		0x55, 0x44,
		0x77, 0x66,
		0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff,
	}
	assert.Equal(t, want, got)
}

func TestGetOrCreateProviderRegistersOnce(t *testing.T) {
	name := "eventz.test.provider.once"
	var calls atomic.Int32
	mk := func(string, uuid.UUID, ProviderGroup) (encoder, error) {
		calls.Add(1)
		return noopEncoder{}, nil
	}

	const n = 16
	providers := make([]*Provider, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			providers[i] = getOrCreateProvider(name, providerIDFromName(name), ProviderGroup{}, mk)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 1; i < n; i++ {
		assert.Same(t, providers[0], providers[i])
	}
	assert.Equal(t, name, providers[0].Name())
}

func TestGetOrCreateProviderRegistrationFailure(t *testing.T) {
	name := "eventz.test.provider.failed"
	var calls atomic.Int32
	mk := func(string, uuid.UUID, ProviderGroup) (encoder, error) {
		calls.Add(1)
		return nil, errors.New("registration refused")
	}

	p := getOrCreateProvider(name, providerIDFromName(name), ProviderGroup{}, mk)
	require.NotNil(t, p)
	assert.False(t, p.Enabled(LevelError, 1))

	// The failure is cached; registration is not retried.
	again := getOrCreateProvider(name, providerIDFromName(name), ProviderGroup{}, mk)
	assert.Same(t, p, again)
	assert.Equal(t, int32(1), calls.Load())
}

func TestProviderGroupValidation(t *testing.T) {
	assert.NotPanics(t, func() { ProviderGroup{}.validate() })
	assert.NotPanics(t, func() { GroupByName("group01").validate() })
	assert.NotPanics(t, func() { GroupByID(uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")).validate() })

	assert.Panics(t, func() { GroupByID(uuid.Nil).validate() })
	assert.Panics(t, func() { GroupByName("").validate() })
	assert.Panics(t, func() { GroupByName("Upper").validate() })
	assert.Panics(t, func() { GroupByName("with-dash").validate() })
	assert.Panics(t, func() { GroupByName("with space").validate() })
}
