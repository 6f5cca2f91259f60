package eventz

import (
	"sync"
	"sync/atomic"
)

// captureETWPort records registrations and writes in place of the native
// ETW session, and lets tests push enablement changes through the
// registered callback the way a controller would.
type captureETWPort struct {
	mu          sync.Mutex
	registerErr error
	writeErr    error
	id          uuid16
	traits      []byte
	cb          etwEnableCallback
	writes      []etwWrite
}

type etwWrite struct {
	desc   etwEventDescriptor
	act    *ActivityID
	rel    *ActivityID
	traits []byte
	meta   []byte
	data   []byte
}

func cloneBytes(b []byte) []byte { return append([]byte(nil), b...) }

func (p *captureETWPort) register(id uuid16, traits []byte, cb etwEnableCallback) error {
	if p.registerErr != nil {
		return p.registerErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = id
	p.traits = cloneBytes(traits)
	p.cb = cb
	return nil
}

func (p *captureETWPort) write(desc *etwEventDescriptor, act, rel *ActivityID, traits, meta, data []byte) error {
	if p.writeErr != nil {
		return p.writeErr
	}
	w := etwWrite{
		desc:   *desc,
		traits: cloneBytes(traits),
		meta:   cloneBytes(meta),
		data:   cloneBytes(data),
	}
	if act != nil {
		a := *act
		w.act = &a
	}
	if rel != nil {
		r := *rel
		w.rel = &r
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, w)
	return nil
}

func (p *captureETWPort) enable(level Level, matchAnyKeyword uint64) {
	p.cb(true, level, matchAnyKeyword)
}

func (p *captureETWPort) disable() { p.cb(false, 0, 0) }

func (p *captureETWPort) captured() []etwWrite {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]etwWrite(nil), p.writes...)
}

// captureUEPort records tracepoint registrations and writes in place of the
// user_events file, and lets tests flip the kernel enable word per
// tracepoint.
type captureUEPort struct {
	mu          sync.Mutex
	registerErr error
	writeErr    error
	nextIndex   uint32
	sets        map[string]*eventSet
	writes      []ueWrite
}

type ueWrite struct {
	tracepoint string
	payload    []byte
}

func (p *captureUEPort) registerSet(set *eventSet) error {
	if p.registerErr != nil {
		return p.registerErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextIndex++
	set.writeIndex = p.nextIndex
	if p.sets == nil {
		p.sets = make(map[string]*eventSet)
	}
	p.sets[set.tracepoint] = set
	return nil
}

func (p *captureUEPort) write(set *eventSet, payload []byte) error {
	if p.writeErr != nil {
		return p.writeErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, ueWrite{tracepoint: set.tracepoint, payload: cloneBytes(payload)})
	return nil
}

func (p *captureUEPort) enable(tracepoint string) {
	p.mu.Lock()
	set := p.sets[tracepoint]
	p.mu.Unlock()
	if set != nil {
		atomic.StoreUint32(&set.enableWord, 1)
	}
}

func (p *captureUEPort) registered() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.sets))
	for name := range p.sets {
		names = append(names, name)
	}
	return names
}

func (p *captureUEPort) captured() []ueWrite {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ueWrite(nil), p.writes...)
}
