package eventz

import "time"

// noopEncoder is the backend for platforms without a native tracing
// subsystem (and for hard-disabling an emitter at setup). Everything
// reports disabled and writes discard.
type noopEncoder struct{}

func (noopEncoder) SpanStart(string, time.Time, ActivityID, ActivityID, *FieldTable, Level, uint64, uint32) error {
	return nil
}

func (noopEncoder) SpanStop(string, time.Time, time.Time, ActivityID, ActivityID, *FieldTable, Level, uint64, uint32) error {
	return nil
}

func (noopEncoder) WriteEvent(string, time.Time, ActivityID, ActivityID, []Field, Level, uint64, uint32) error {
	return nil
}

func (noopEncoder) Enabled(Level, uint64) bool { return false }

// Always disabled is an authoritative answer, so interest resolves to
// never instead of forcing per-call checks.
func (noopEncoder) SupportsPushEnablement() bool { return true }

func (noopEncoder) newCSEvent(string, Level, uint64, uint32) (csEvent, bool) { return nil, false }
