// Package spidev gives access to Linux SPI devices through the spidev
// character device (/dev/spidevB.D).
//
// Read and Write on a Device are plain half-duplex transfers handled by the
// driver's default path. Full-duplex exchanges and multi-segment messages
// go through Transfer, TransferMultiple and TransferSeq, which encode their
// arguments into a single SPI_IOC_MESSAGE ioctl each.
//
// A Device is not safe for concurrent use. Every call blocks until the
// kernel returns and nothing is cached between calls.
package spidev

import (
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"runtime"

	"lautenbacher.net/gospidev/ioctl"
)

// Device is an open spidev character device.
type Device struct {
	path string
	f    *os.File
	ioc  ioctl.Caller
}

var _ io.ReadWriteCloser = (*Device)(nil)

// Open opens a spidev device like /dev/spidev0.0 for reading and writing.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return NewDevice(f, ioctl.Syscall{}), nil
}

// NewDevice wraps an already opened file. Control requests go through c,
// which is normally ioctl.Syscall.
func NewDevice(f *os.File, c ioctl.Caller) *Device {
	return &Device{path: f.Name(), f: f, ioc: c}
}

// Path returns the name the device was opened with.
func (d *Device) Path() string { return d.path }

func (d *Device) String() string { return "spidev(" + d.path + ")" }

// File returns the underlying file.
func (d *Device) File() *os.File { return d.f }

// Fd returns the raw descriptor, for requests this package does not cover.
func (d *Device) Fd() uintptr { return d.f.Fd() }

// Read performs a half-duplex read of len(p) bytes.
func (d *Device) Read(p []byte) (int, error) { return d.f.Read(p) }

// Write performs a half-duplex write of p.
func (d *Device) Write(p []byte) (int, error) { return d.f.Write(p) }

func (d *Device) Close() error { return d.f.Close() }

// ctl wraps the result of a control request issued on d.
func (d *Device) ctl(op string, err error) error {
	runtime.KeepAlive(d.f)
	if err != nil {
		return fmt.Errorf("spidev: %s %s: %w", op, d.path, err)
	}
	return nil
}

// Configure writes every field set in o to the driver, in the order mode,
// max speed, bits per word, LSB first. It stops at the first field the
// driver rejects and returns that error; earlier fields stay applied.
func (d *Device) Configure(o Options) error {
	if bpw, ok := o.BitsPerWord(); ok && bpw > 32 {
		return fmt.Errorf("spidev: %w: %d", ErrBitsPerWord, bpw)
	}
	slog.Debug("spidev configure", "device", d.path, "options", o)
	fd := d.f.Fd()
	if m, ok := o.Mode(); ok {
		v := m.Value()
		if err := d.ctl("write mode", ioctl.Write(d.ioc, fd, IocWrMode32, &v)); err != nil {
			return err
		}
	}
	if hz, ok := o.MaxSpeedHz(); ok {
		if err := d.ctl("write max speed", ioctl.Write(d.ioc, fd, IocWrMaxSpeedHz, &hz)); err != nil {
			return err
		}
	}
	if bpw, ok := o.BitsPerWord(); ok {
		if err := d.ctl("write bits per word", ioctl.Write(d.ioc, fd, IocWrBitsPerWord, &bpw)); err != nil {
			return err
		}
	}
	if lsb, ok := o.LSBFirst(); ok {
		var v uint8
		if lsb {
			v = 1
		}
		if err := d.ctl("write lsb first", ioctl.Write(d.ioc, fd, IocWrLSBFirst, &v)); err != nil {
			return err
		}
	}
	return nil
}

// Query reads the configuration currently active in the driver. Every
// field of the result is set. The bit order reported by SPI_IOC_RD_LSB_FIRST
// takes precedence over the LSBFirst bit of the mode word.
func (d *Device) Query() (Options, error) {
	fd := d.f.Fd()
	mode, err := ioctl.Read[uint32](d.ioc, fd, IocRdMode32)
	if err := d.ctl("read mode", err); err != nil {
		return Options{}, err
	}
	hz, err := ioctl.Read[uint32](d.ioc, fd, IocRdMaxSpeedHz)
	if err := d.ctl("read max speed", err); err != nil {
		return Options{}, err
	}
	bpw, err := ioctl.Read[uint8](d.ioc, fd, IocRdBitsPerWord)
	if err := d.ctl("read bits per word", err); err != nil {
		return Options{}, err
	}
	lsb, err := ioctl.Read[uint8](d.ioc, fd, IocRdLSBFirst)
	if err := d.ctl("read lsb first", err); err != nil {
		return Options{}, err
	}
	o := NewOptions().
		WithMode(Mode(mode)).
		WithMaxSpeedHz(hz).
		WithBitsPerWord(bpw).
		WithLSBFirst(lsb != 0)
	return o, nil
}

// Transfer executes a single transfer.
func (d *Device) Transfer(t *Transfer) error {
	b := newBatch(1)
	defer b.release()
	if err := b.add(t); err != nil {
		return err
	}
	return d.submit(b)
}

// TransferMultiple executes ts as one message: chip select stays asserted
// from the first transfer to the last unless a transfer sets CSChange.
// Exactly one ioctl is issued; an empty ts issues none.
func (d *Device) TransferMultiple(ts []Transfer) error {
	if len(ts) > MaxTransfers {
		return fmt.Errorf("spidev: %w: %d", ErrTooManyTransfers, len(ts))
	}
	b := newBatch(len(ts))
	defer b.release()
	for i := range ts {
		if err := b.add(&ts[i]); err != nil {
			return err
		}
	}
	return d.submit(b)
}

// TransferSeq is TransferMultiple for transfers produced by an iterator.
func (d *Device) TransferSeq(seq iter.Seq[Transfer]) error {
	b := newBatch(0)
	defer b.release()
	for t := range seq {
		if err := b.add(&t); err != nil {
			return err
		}
	}
	return d.submit(b)
}

func (d *Device) submit(b *batch) error {
	n := len(b.recs)
	if n == 0 {
		return nil
	}
	req, err := IocMessage(n)
	if err != nil {
		return fmt.Errorf("spidev: %w", err)
	}
	slog.Debug("spidev transfer", "device", d.path, "transfers", n)
	return d.ctl("transfer", ioctl.Write(d.ioc, d.f.Fd(), req, b.records()))
}
