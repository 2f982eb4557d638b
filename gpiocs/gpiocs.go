// Package gpiocs drives chip select from a GPIO line instead of the SPI
// controller. The spidev device should be configured with spidev.NoCS so
// the controller leaves its own line alone.
package gpiocs

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"
	"lautenbacher.net/gospidev/spidev"
)

// Pin is an output line. rpio.Pin satisfies it.
type Pin interface {
	High()
	Low()
}

// Conn wraps a device so every message is framed by the chip select pin.
type Conn struct {
	dev        *spidev.Device
	pin        Pin
	activeHigh bool
	closeRPIO  bool
}

// New returns a Conn asserting pin around each message. The pin is left
// deasserted.
func New(dev *spidev.Device, pin Pin, activeHigh bool) *Conn {
	c := &Conn{dev: dev, pin: pin, activeHigh: activeHigh}
	c.deassert()
	return c
}

// NewRPi uses the Raspberry Pi GPIO with BCM number gpio as chip select.
func NewRPi(dev *spidev.Device, gpio int, activeHigh bool) (*Conn, error) {
	if gpio < 0 || gpio > 53 {
		return nil, fmt.Errorf("gpiocs: invalid GPIO %d", gpio)
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("gpiocs: failed to open rpio: %w", err)
	}
	pin := rpio.Pin(gpio)
	pin.Output()
	c := New(dev, pin, activeHigh)
	c.closeRPIO = true
	return c, nil
}

func (c *Conn) assert() {
	if c.activeHigh {
		c.pin.High()
	} else {
		c.pin.Low()
	}
}

func (c *Conn) deassert() {
	if c.activeHigh {
		c.pin.Low()
	} else {
		c.pin.High()
	}
}

// Transfer runs one transfer with chip select asserted.
func (c *Conn) Transfer(t *spidev.Transfer) error {
	c.assert()
	defer c.deassert()
	return c.dev.Transfer(t)
}

// TransferMultiple runs ts as one message with chip select asserted for
// the whole message. CSChange in ts has no effect on the GPIO line.
func (c *Conn) TransferMultiple(ts []spidev.Transfer) error {
	c.assert()
	defer c.deassert()
	return c.dev.TransferMultiple(ts)
}

// Close releases the GPIO memory mapping if NewRPi opened it. The device is
// not closed.
func (c *Conn) Close() error {
	if !c.closeRPIO {
		return nil
	}
	c.closeRPIO = false
	return rpio.Close()
}
