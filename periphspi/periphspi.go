// Package periphspi exposes a spidev.Device through the periph.io SPI
// interfaces, so drivers written against periph.io/x/conn/v3/spi can run on
// top of package spidev.
package periphspi

import (
	"errors"
	"fmt"
	"math"

	"lautenbacher.net/gospidev/spidev"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Port is a spi.PortCloser backed by a spidev device.
type Port struct {
	dev   *spidev.Device
	limit physic.Frequency
}

var _ spi.PortCloser = (*Port)(nil)

// NewPort wraps dev. Closing the port closes dev.
func NewPort(dev *spidev.Device) *Port {
	return &Port{dev: dev}
}

// Open opens the spidev device at path as a port.
func Open(path string) (*Port, error) {
	dev, err := spidev.Open(path)
	if err != nil {
		return nil, err
	}
	return NewPort(dev), nil
}

func (p *Port) String() string { return p.dev.String() }

func (p *Port) Close() error { return p.dev.Close() }

// LimitSpeed caps the clock rate used by later Connect calls.
func (p *Port) LimitSpeed(f physic.Frequency) error {
	if f <= 0 {
		return fmt.Errorf("periphspi: invalid speed limit %s", f)
	}
	p.limit = f
	return nil
}

// Connect configures the device and returns a connection to it. A zero f
// uses the speed limit, or leaves the driver's speed alone when there is
// none. bits 0 selects the driver default of 8.
func (p *Port) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	if f < 0 {
		return nil, fmt.Errorf("periphspi: invalid speed %s", f)
	}
	if bits < 0 || bits > 32 {
		return nil, fmt.Errorf("periphspi: invalid bits per word %d", bits)
	}
	if p.limit != 0 && (f == 0 || f > p.limit) {
		f = p.limit
	}
	m := ToMode(mode)
	opts := spidev.NewOptions().
		WithMode(m).
		WithBitsPerWord(uint8(bits))
	if f != 0 {
		hz := f / physic.Hertz
		if hz < 1 {
			return nil, fmt.Errorf("periphspi: speed %s is below 1Hz", f)
		}
		if hz > math.MaxUint32 {
			return nil, fmt.Errorf("periphspi: speed %s does not fit the driver's 32-bit Hz field", f)
		}
		opts = opts.WithMaxSpeedHz(uint32(hz))
	}
	if err := p.dev.Configure(opts); err != nil {
		return nil, err
	}
	return &Conn{dev: p.dev, half: mode&spi.HalfDuplex != 0}, nil
}

// ToMode converts a periph mode to the spidev mode word. HalfDuplex maps to
// a 3-wire bus.
func ToMode(mode spi.Mode) spidev.Mode {
	m := spidev.Mode(mode & spi.Mode3)
	if mode&spi.HalfDuplex != 0 {
		m |= spidev.ThreeWire
	}
	if mode&spi.NoCS != 0 {
		m |= spidev.NoCS
	}
	if mode&spi.LSBFirst != 0 {
		m |= spidev.LSBFirst
	}
	return m
}

// Conn is the spi.Conn returned by Port.Connect.
type Conn struct {
	dev  *spidev.Device
	half bool
}

var _ spi.Conn = (*Conn)(nil)

func (c *Conn) String() string { return c.dev.String() }

// Halt is a no-op; every message completes before Tx returns.
func (c *Conn) Halt() error { return nil }

func (c *Conn) Duplex() conn.Duplex {
	if c.half {
		return conn.Half
	}
	return conn.Full
}

// Tx exchanges w and r in one message. On a full-duplex connection both
// buffers must have the same length when both are given; on a half-duplex
// one w is written first and r is read afterwards.
func (c *Conn) Tx(w, r []byte) error {
	if len(w) == 0 && len(r) == 0 {
		return nil
	}
	return c.TxPackets([]spi.Packet{{W: w, R: r}})
}

// TxPackets sends all packets as a single message. Chip select is released
// between packets unless KeepCS is set; KeepCS on the last packet keeps it
// asserted after the message.
func (c *Conn) TxPackets(pkts []spi.Packet) error {
	ts := make([]spidev.Transfer, 0, len(pkts))
	for i, p := range pkts {
		if len(p.W) == 0 && len(p.R) == 0 {
			return errors.New("periphspi: empty packet")
		}
		last := i == len(pkts)-1
		csChange := !p.KeepCS
		if last {
			csChange = p.KeepCS
		}
		if c.half && len(p.W) > 0 && len(p.R) > 0 {
			ts = append(ts,
				spidev.Transfer{Tx: p.W, BitsPerWord: p.BitsPerWord},
				spidev.Transfer{Rx: p.R, BitsPerWord: p.BitsPerWord, CSChange: csChange})
			continue
		}
		ts = append(ts, spidev.Transfer{Tx: p.W, Rx: p.R, BitsPerWord: p.BitsPerWord, CSChange: csChange})
	}
	return c.dev.TransferMultiple(ts)
}
