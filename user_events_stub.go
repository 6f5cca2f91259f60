//go:build !linux

package eventz

import "errors"

var errUserEventsUnsupported = errors.New("user_events tracepoints require Linux")

// stubUEPort fails registration so the provider is left unusable and all
// events addressed to it are dropped, per the non-fatal registration policy.
type stubUEPort struct{}

func newUEPort() uePort { return stubUEPort{} }

func (stubUEPort) registerSet(*eventSet) error { return errUserEventsUnsupported }

func (stubUEPort) write(*eventSet, []byte) error { return errUserEventsUnsupported }
