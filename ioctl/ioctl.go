// Package ioctl builds Linux ioctl request numbers and issues ioctl calls
// through a replaceable Caller.
//
// Request numbers follow the convention of asm-generic/ioctl.h: a 2-bit
// direction, a 14-bit argument size, an 8-bit type (the driver's magic)
// and an 8-bit command number.
package ioctl

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Direction bits, from the point of view of user space.
const (
	DirNone  = 0
	DirWrite = 1
	DirRead  = 2
)

const (
	nrBits   = 8
	typeBits = 8
	sizeBits = 14
	dirBits  = 2

	nrShift   = 0
	typeShift = nrShift + nrBits
	sizeShift = typeShift + typeBits
	dirShift  = sizeShift + sizeBits

	// MaxSize is the largest argument size a request number can carry.
	MaxSize = 1<<sizeBits - 1
)

// IOC is the equivalent of the kernel's _IOC macro.
func IOC(dir, typ, nr, size uintptr) uintptr {
	return dir<<dirShift |
		typ<<typeShift |
		nr<<nrShift |
		size<<sizeShift
}

// IO builds a request that passes no argument.
func IO(typ, nr uintptr) uintptr {
	return IOC(DirNone, typ, nr, 0)
}

// IOR builds a request whose argument is filled in by the kernel.
func IOR(typ, nr, size uintptr) uintptr {
	return IOC(DirRead, typ, nr, size)
}

// IOW builds a request whose argument is consumed by the kernel.
func IOW(typ, nr, size uintptr) uintptr {
	return IOC(DirWrite, typ, nr, size)
}

// IOWR builds a request whose argument is both read and written by the kernel.
func IOWR(typ, nr, size uintptr) uintptr {
	return IOC(DirRead|DirWrite, typ, nr, size)
}

// Dir returns the direction bits of req.
func Dir(req uintptr) uintptr { return (req >> dirShift) & (1<<dirBits - 1) }

// Type returns the driver magic of req.
func Type(req uintptr) uintptr { return (req >> typeShift) & (1<<typeBits - 1) }

// Nr returns the command number of req.
func Nr(req uintptr) uintptr { return (req >> nrShift) & (1<<nrBits - 1) }

// Size returns the argument size encoded in req.
func Size(req uintptr) uintptr { return (req >> sizeShift) & (1<<sizeBits - 1) }

// Caller issues a single ioctl. A non-nil error is the errno reported by
// the kernel (or by a fake standing in for it).
type Caller interface {
	Ioctl(fd, req uintptr, arg unsafe.Pointer) error
}

// Syscall is the Caller backed by the real ioctl system call.
type Syscall struct{}

func (Syscall) Ioctl(fd, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Read issues req and returns the value the kernel stored in the argument.
func Read[T any](c Caller, fd, req uintptr) (T, error) {
	var v T
	err := c.Ioctl(fd, req, unsafe.Pointer(&v))
	return v, err
}

// Write issues req with v as a read-only argument.
func Write[T any](c Caller, fd, req uintptr, v *T) error {
	return c.Ioctl(fd, req, unsafe.Pointer(v))
}

// ReadWrite issues req with v as an argument the kernel may update in place.
func ReadWrite[T any](c Caller, fd, req uintptr, v *T) error {
	return c.Ioctl(fd, req, unsafe.Pointer(v))
}

// Execute issues a request that takes no argument.
func Execute(c Caller, fd, req uintptr) error {
	return c.Ioctl(fd, req, nil)
}
