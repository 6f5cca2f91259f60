package eventz

import (
	"crypto/sha1" //nolint:gosec // ETW's provider name hashing is defined over SHA-1.
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf16"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type groupKind uint8

const (
	groupUnset groupKind = iota
	groupGUID            // Windows-style provider group, identified by GUID.
	groupName            // Linux-style provider group, identified by name.
)

// ProviderGroup optionally joins a provider to a platform provider group.
// The zero value leaves the provider ungrouped.
type ProviderGroup struct {
	name string
	id   uuid.UUID
	kind groupKind
}

// GroupByID returns a Windows-style provider group join. The GUID must not
// be the all-zero value; that is validated at setup time.
func GroupByID(id uuid.UUID) ProviderGroup { return ProviderGroup{kind: groupGUID, id: id} }

// GroupByName returns a Linux-style provider group join. Group names must be
// lowercase ASCII letters or digits; that is validated at setup time.
func GroupByName(name string) ProviderGroup { return ProviderGroup{kind: groupName, name: name} }

// validate panics on configuration errors, which indicate a programming
// error rather than a runtime condition.
func (g ProviderGroup) validate() {
	switch g.kind {
	case groupUnset:
	case groupGUID:
		if g.id == uuid.Nil {
			panic("eventz: provider group GUID must not be zeroes")
		}
	case groupName:
		if !validGroupName(g.name) {
			panic("eventz: provider group names must be lowercase ASCII or numeric digits")
		}
	}
}

func validGroupName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// Provider is a registered named event source. Providers are created at most
// once per distinct name and retained for the process lifetime; the native
// registration cannot be torn down safely while events may be in flight, so
// there is intentionally no unregister path.
type Provider struct {
	name string
	id   uuid.UUID
	// enc is nil when native registration failed; the provider then reports
	// disabled and every event addressed to it is dropped.
	enc     encoder
	dropped atomic.Uint64
}

// Name returns the provider name used for registration.
func (p *Provider) Name() string { return p.name }

// ID returns the provider's stable identifier: either the explicitly
// assigned GUID or the deterministic hash of the name.
func (p *Provider) ID() uuid.UUID { return p.id }

// Enabled reports whether any consumer is listening at the given level and
// keyword. An unusable provider (failed registration) always reports false.
func (p *Provider) Enabled(level Level, keyword uint64) bool {
	if p.enc == nil {
		return false
	}
	return p.enc.Enabled(level, keyword)
}

// DroppedEvents returns the number of events addressed to this provider that
// were discarded because of native write failures or an unusable handle.
func (p *Provider) DroppedEvents() uint64 { return p.dropped.Load() }

// Providers go in, but never come out. The cache is process-wide so that two
// emitters (or two callsites with the same target) share one native
// registration per name.
var (
	providerMu    sync.RWMutex
	providerCache = map[string]*Provider{}
)

// getOrCreateProvider returns the cached provider for name, creating and
// registering it on first use. mkEncoder performs the native registration -
// the only side-effecting step - and runs at most once per name for the
// process lifetime, even under a creation race.
func getOrCreateProvider(name string, id uuid.UUID, group ProviderGroup, mkEncoder func(name string, id uuid.UUID, group ProviderGroup) (encoder, error)) *Provider {
	providerMu.RLock()
	p := providerCache[name]
	providerMu.RUnlock()
	if p != nil {
		return p
	}

	providerMu.Lock()
	defer providerMu.Unlock()

	// A racing writer may have inserted between the read miss and the write
	// lock acquisition.
	if p = providerCache[name]; p != nil {
		return p
	}

	p = &Provider{name: name, id: id}
	enc, err := mkEncoder(name, id, group)
	if err != nil {
		// Non-fatal: the provider is left unusable and events addressed to
		// it are dropped. Registration is not retried.
		log.WithError(err).WithField("provider", name).Warn("native provider registration failed; events will be dropped")
	} else {
		p.enc = enc
	}
	providerCache[name] = p
	return p
}

// etwNamespace is the fixed GUID namespace for the standard ETW provider
// name hashing algorithm ({482C2DB2-C390-47C8-87F8-1A15BFC130FB}).
var etwNamespace = [16]byte{
	0x48, 0x2c, 0x2d, 0xb2, 0xc3, 0x90, 0x47, 0xc8,
	0x87, 0xf8, 0x1a, 0x15, 0xbf, 0xc1, 0x30, 0xfb,
}

// providerIDFromName derives a provider GUID from its name using the
// standard ETW algorithm: SHA-1 over the namespace GUID followed by the
// uppercased name in UTF-16BE, with the version nibble forced to 5. Tools
// that know the algorithm can resolve the GUID from the name alone.
func providerIDFromName(name string) uuid.UUID {
	h := sha1.New() //nolint:gosec // Not used for security.
	h.Write(etwNamespace[:])
	for _, u := range utf16.Encode([]rune(strings.ToUpper(name))) {
		h.Write([]byte{byte(u >> 8), byte(u)})
	}
	sum := h.Sum(nil)

	var id uuid.UUID
	copy(id[:], sum[:16])
	id[6] = (id[6] & 0x0f) | 0x50
	return id
}

// guidBytesLE converts a GUID to its little-endian in-memory layout (the
// form the native APIs and wire formats consume).
func guidBytesLE(id uuid.UUID) [16]byte {
	var b [16]byte
	b[0], b[1], b[2], b[3] = id[3], id[2], id[1], id[0]
	b[4], b[5] = id[5], id[4]
	b[6], b[7] = id[7], id[6]
	copy(b[8:], id[8:])
	return b
}
