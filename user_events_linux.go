//go:build linux

package eventz

import (
	"encoding/binary"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// user_events registration interface, from the kernel uapi
// (include/uapi/linux/user_events.h).
const (
	userEventsDataPath     = "/sys/kernel/tracing/user_events_data"
	userEventsDataPathDbg  = "/sys/kernel/debug/tracing/user_events_data"
	diagIoctlReg           = 0xc01c2a00 // DIAG_IOCSREG: _IOWR('*', 0, struct user_reg)
	userRegEnableSizeBytes = 4
	// userRegSize is sizeof(struct user_reg), which is packed; Go pads the
	// mirror struct to 32 bytes so Sizeof cannot be used here.
	userRegSize = 28
)

// eventHeaderCmdTypes is the tracepoint argument layout every EventHeader
// event shares; the self-describing field metadata travels inside the
// payload rather than in the tracepoint format.
const eventHeaderCmdTypes = "u8 eventheader_flags;u8 version;u16 id;u16 tag;u8 opcode;u8 level;__rel_loc u8[] payload"

// userReg mirrors struct user_reg.
type userReg struct {
	size       uint32
	enableBit  uint8
	enableSize uint8
	flags      uint16
	enableAddr uint64
	nameArgs   uint64
	writeIndex uint32
}

// linuxUEPort drives /sys/kernel/tracing/user_events_data. All providers
// share one data file; each registered set gets its own write index and a
// kernel-updated enablement word.
type linuxUEPort struct {
	once sync.Once
	file *os.File
	err  error
}

func newUEPort() uePort { return &linuxUEPort{} }

func (p *linuxUEPort) open() error {
	p.once.Do(func() {
		p.file, p.err = os.OpenFile(userEventsDataPath, os.O_RDWR, 0)
		if p.err != nil {
			p.file, p.err = os.OpenFile(userEventsDataPathDbg, os.O_RDWR, 0)
		}
	})
	return p.err
}

func (p *linuxUEPort) registerSet(set *eventSet) error {
	if err := p.open(); err != nil {
		return err
	}

	cmd := set.tracepoint + " " + eventHeaderCmdTypes
	cmdBytes, err := unix.BytePtrFromString(cmd)
	if err != nil {
		return err
	}

	reg := userReg{
		size:       userRegSize,
		enableSize: userRegEnableSizeBytes,
		enableAddr: uint64(uintptr(unsafe.Pointer(&set.enableWord))),
		nameArgs:   uint64(uintptr(unsafe.Pointer(cmdBytes))),
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, p.file.Fd(), diagIoctlReg, uintptr(unsafe.Pointer(&reg)))
	runtime.KeepAlive(cmdBytes)
	if errno != 0 {
		return errno
	}
	set.writeIndex = reg.writeIndex
	return nil
}

func (p *linuxUEPort) write(set *eventSet, payload []byte) error {
	if err := p.open(); err != nil {
		return err
	}
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], set.writeIndex)
	_, err := unix.Writev(int(p.file.Fd()), [][]byte{idx[:], payload})
	return err
}
