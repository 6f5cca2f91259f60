//go:build windows

package eventz

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modAdvapi32             = windows.NewLazySystemDLL("advapi32.dll")
	procEventRegister       = modAdvapi32.NewProc("EventRegister")
	procEventWriteTransfer  = modAdvapi32.NewProc("EventWriteTransfer")
	procEventSetInformation = modAdvapi32.NewProc("EventSetInformation")
)

// eventProviderSetTraits is the EVENT_INFO_CLASS that attaches the provider
// traits blob (name, group) to a registration.
const eventProviderSetTraits uintptr = 2

// Enablement callback control codes.
const (
	eventControlCodeDisable = 0
	eventControlCodeEnable  = 1
)

type eventDataDescriptorType uint8

const (
	dataDescriptorUserData eventDataDescriptorType = iota
	dataDescriptorEventMetadata
	dataDescriptorProviderMetadata
)

type eventDataDescriptor struct {
	ptr       uint64
	size      uint32
	dataType  eventDataDescriptorType
	reserved1 uint8
	reserved2 uint16
}

func newEventDataDescriptor(dataType eventDataDescriptorType, buffer []byte) eventDataDescriptor {
	return eventDataDescriptor{
		ptr:      uint64(uintptr(unsafe.Pointer(&buffer[0]))),
		size:     uint32(len(buffer)),
		dataType: dataType,
	}
}

// windowsETWPort drives the advapi32 provider APIs. One port per provider;
// the handle lives for the process (providers are never unregistered).
type windowsETWPort struct {
	handle   uint64
	cb       etwEnableCallback
	callback uintptr // Keeps the NewCallback trampoline reachable.
}

func newETWPort() etwPort { return &windowsETWPort{} }

func (p *windowsETWPort) register(id uuid16, traits []byte, cb etwEnableCallback) error {
	p.cb = cb
	p.callback = windows.NewCallback(func(sourceID, controlCode, level, matchAny, matchAll, filterData, context uintptr) uintptr {
		switch controlCode {
		case eventControlCodeEnable:
			p.cb(true, Level(level), uint64(matchAny))
		case eventControlCodeDisable:
			p.cb(false, 0, 0)
		}
		return 0
	})

	ret, _, _ := procEventRegister.Call(
		uintptr(unsafe.Pointer(&id[0])),
		p.callback,
		0,
		uintptr(unsafe.Pointer(&p.handle)),
	)
	if ret != 0 {
		return windows.Errno(ret)
	}

	ret, _, _ = procEventSetInformation.Call(
		uintptr(p.handle),
		eventProviderSetTraits,
		uintptr(unsafe.Pointer(&traits[0])),
		uintptr(len(traits)),
	)
	if ret != 0 {
		return windows.Errno(ret)
	}
	return nil
}

func (p *windowsETWPort) write(desc *etwEventDescriptor, act, rel *ActivityID, traits, meta, data []byte) error {
	dd := [3]eventDataDescriptor{
		newEventDataDescriptor(dataDescriptorProviderMetadata, traits),
		newEventDataDescriptor(dataDescriptorEventMetadata, meta),
	}
	count := uint32(2)
	if len(data) > 0 {
		dd[2] = newEventDataDescriptor(dataDescriptorUserData, data)
		count = 3
	}

	var actPtr, relPtr uintptr
	if act != nil {
		actPtr = uintptr(unsafe.Pointer(&act[0]))
	}
	if rel != nil {
		relPtr = uintptr(unsafe.Pointer(&rel[0]))
	}

	ret, _, _ := procEventWriteTransfer.Call(
		uintptr(p.handle),
		uintptr(unsafe.Pointer(desc)),
		actPtr,
		relPtr,
		uintptr(count),
		uintptr(unsafe.Pointer(&dd[0])),
	)
	if ret != 0 {
		return windows.Errno(ret)
	}
	return nil
}
