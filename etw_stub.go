//go:build !windows

package eventz

import "errors"

var errETWUnsupported = errors.New("ETW providers require Windows")

// stubETWPort fails registration so the provider is left unusable and all
// events addressed to it are dropped, per the non-fatal registration policy.
type stubETWPort struct{}

func newETWPort() etwPort { return stubETWPort{} }

func (stubETWPort) register(uuid16, []byte, etwEnableCallback) error {
	return errETWUnsupported
}

func (stubETWPort) write(*etwEventDescriptor, *ActivityID, *ActivityID, []byte, []byte, []byte) error {
	return errETWUnsupported
}
