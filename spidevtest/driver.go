// Package spidevtest provides an in-memory stand-in for the spidev kernel
// driver, for testing code built on package spidev without hardware.
package spidevtest

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"unsafe"

	"github.com/gammazero/deque"
	"golang.org/x/sys/unix"
	"lautenbacher.net/gospidev/spidev"
)

// DefaultHistory is the number of messages a Driver remembers.
const DefaultHistory = 500

// Message is one SPI_IOC_MESSAGE call as seen by the driver.
type Message struct {
	Records []spidev.IocTransfer
	// Tx holds a copy of each record's transmit data, nil for rx-only
	// records.
	Tx [][]byte
}

// Responder produces the bytes clocked in for one record. rx is nil for a
// transmit-only record and tx is nil for a receive-only one.
type Responder func(rec spidev.IocTransfer, tx, rx []byte)

// Echo is the loopback Responder: rx receives tx, or zeros when nothing is
// transmitted.
func Echo(_ spidev.IocTransfer, tx, rx []byte) {
	if rx == nil {
		return
	}
	if tx == nil {
		clear(rx)
		return
	}
	copy(rx, tx)
}

// Driver implements ioctl.Caller for the spidev request set. The mode word
// holds the LSB-first bit, like the kernel does, so the two views stay in
// sync.
type Driver struct {
	mu sync.Mutex

	mode        uint32
	maxSpeedHz  uint32
	bitsPerWord uint8

	// MaxSupportedHz, when non-zero, makes speed writes above it fail
	// with EINVAL.
	MaxSupportedHz uint32
	// Respond fills receive buffers; Echo when nil.
	Respond Responder
	// HistoryLimit bounds the recorded messages; DefaultHistory when 0.
	HistoryLimit int

	calls    int
	failures map[uintptr]error
	history  deque.Deque[Message]
}

// NewDriver returns a driver in the state of a freshly probed spidev:
// mode 0, 8 bits per word, 500 kHz.
func NewDriver() *Driver {
	return &Driver{
		bitsPerWord: 8,
		maxSpeedHz:  500000,
		failures:    make(map[uintptr]error),
	}
}

// Fail makes every later request req fail with err. A nil err clears it.
func (d *Driver) Fail(req uintptr, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, req)
		return
	}
	if d.failures == nil {
		d.failures = make(map[uintptr]error)
	}
	d.failures[req] = err
}

// Calls returns the number of ioctl requests received, failed ones included.
func (d *Driver) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Messages returns the recorded messages, oldest first.
func (d *Driver) Messages() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	ret := make([]Message, d.history.Len())
	for i := range ret {
		ret[i] = d.history.At(i)
	}
	return ret
}

// LastMessage returns the most recent message and false if there is none.
func (d *Driver) LastMessage() (Message, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.history.Len() == 0 {
		return Message{}, false
	}
	return d.history.Back(), true
}

func (d *Driver) Ioctl(_, req uintptr, arg unsafe.Pointer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if err, found := d.failures[req]; found {
		return err
	}
	if arg == nil {
		return unix.EFAULT
	}
	switch req {
	case spidev.IocRdMode:
		*(*uint8)(arg) = uint8(d.mode)
	case spidev.IocWrMode:
		d.mode = d.mode&^0xff | uint32(*(*uint8)(arg))
	case spidev.IocRdMode32:
		*(*uint32)(arg) = d.mode
	case spidev.IocWrMode32:
		d.mode = *(*uint32)(arg)
	case spidev.IocRdLSBFirst:
		*(*uint8)(arg) = 0
		if spidev.Mode(d.mode).Has(spidev.LSBFirst) {
			*(*uint8)(arg) = 1
		}
	case spidev.IocWrLSBFirst:
		if *(*uint8)(arg) != 0 {
			d.mode |= uint32(spidev.LSBFirst)
		} else {
			d.mode &^= uint32(spidev.LSBFirst)
		}
	case spidev.IocRdBitsPerWord:
		*(*uint8)(arg) = d.bitsPerWord
	case spidev.IocWrBitsPerWord:
		bpw := *(*uint8)(arg)
		if bpw > 32 {
			return unix.EINVAL
		}
		if bpw == 0 {
			bpw = 8
		}
		d.bitsPerWord = bpw
	case spidev.IocRdMaxSpeedHz:
		*(*uint32)(arg) = d.maxSpeedHz
	case spidev.IocWrMaxSpeedHz:
		hz := *(*uint32)(arg)
		if d.MaxSupportedHz != 0 && hz > d.MaxSupportedHz {
			return unix.EINVAL
		}
		d.maxSpeedHz = hz
	default:
		n, ok := spidev.MessageCount(req)
		if !ok {
			return unix.ENOTTY
		}
		return d.message(unsafe.Slice((*spidev.IocTransfer)(arg), n))
	}
	return nil
}

func (d *Driver) message(recs []spidev.IocTransfer) error {
	for _, rec := range recs {
		if rec.Pad != 0 {
			return unix.EINVAL
		}
	}
	respond := d.Respond
	if respond == nil {
		respond = Echo
	}
	msg := Message{
		Records: append([]spidev.IocTransfer(nil), recs...),
		Tx:      make([][]byte, len(recs)),
	}
	for i, rec := range recs {
		tx := userBuffer(rec.TxBuf, rec.Len)
		rx := userBuffer(rec.RxBuf, rec.Len)
		if tx != nil {
			msg.Tx[i] = append([]byte(nil), tx...)
		}
		respond(rec, tx, rx)
	}

	limit := d.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistory
	}
	d.history.PushBack(msg)
	for d.history.Len() > limit {
		d.history.PopFront()
	}
	return nil
}

// userBuffer views the memory a transfer record points at. The address
// was taken by spidev from a buffer it keeps pinned until the ioctl
// returns, so it is reinterpreted as a pointer without arithmetic.
func userBuffer(addr uint64, n uint32) []byte {
	if addr == 0 {
		return nil
	}
	a := uintptr(addr)
	p := *(*unsafe.Pointer)(unsafe.Pointer(&a))
	return unsafe.Slice((*byte)(p), n)
}

// Open returns a spidev.Device backed by a fresh Driver. The device file is
// a regular file in a temporary directory, so Read and Write operate on its
// contents. The device is closed when the test ends.
func Open(t testing.TB) (*spidev.Device, *Driver) {
	t.Helper()
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "spidev0.0"), os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		t.Fatalf("Failed to create fake device file: %v", err)
	}
	drv := NewDriver()
	dev := spidev.NewDevice(f, drv)
	t.Cleanup(func() { dev.Close() })
	return dev, drv
}
