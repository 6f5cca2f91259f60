package eventz

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
)

// ActivityID is a 16-byte correlation identifier linking a span to its own
// events (activity) and to its parent span (related activity).
//
// Layout: byte 0 is a presence flag (0 = absent/root, 1 = present), bytes
// 8-15 hold the little-endian 64-bit span identifier, and bytes 1-7 come
// from a process-wide random seed so identifiers do not collide across
// process restarts when span IDs are reused as small integers.
type ActivityID [16]byte

// Present reports whether the identifier carries a span reference.
func (a ActivityID) Present() bool { return a[0] != 0 }

// SpanID decodes the 64-bit span identifier carried in bytes 8-15.
func (a ActivityID) SpanID() uint64 { return binary.LittleEndian.Uint64(a[8:]) }

var (
	activitySeed     [16]byte
	activitySeedOnce sync.Once
)

// processSeed returns the process-wide activity seed, generating it on first
// use. Byte 0 of the seed is forced to zero so an absent identifier derived
// from it keeps a clear presence flag.
func processSeed() [16]byte {
	activitySeedOnce.Do(func() {
		// crypto/rand never fails on supported platforms; on the improbable
		// short read the remaining bytes stay zero, which only weakens
		// cross-restart uniqueness, not correctness.
		_, _ = rand.Read(activitySeed[:])
		activitySeed[0] = 0
	})
	return activitySeed
}

// GenerateActivities derives the (activity, related activity) identifier pair
// for a span. It is a pure function of its inputs and the process seed:
// identical inputs yield identical byte sequences for the process lifetime.
//
// spanID 0 yields an absent activity (root record); parentID 0 yields an
// absent related activity (no parent).
func GenerateActivities(spanID, parentID uint64) (activity, related ActivityID) {
	return activityIDFor(spanID), activityIDFor(parentID)
}

func activityIDFor(id uint64) ActivityID {
	if id == 0 {
		return ActivityID{}
	}
	a := ActivityID(processSeed())
	a[0] = 1
	binary.LittleEndian.PutUint64(a[8:], id)
	return a
}
