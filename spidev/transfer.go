package spidev

import (
	"fmt"
	"math"
)

// Transfer is one segment of a SPI message. Tx, Rx or both may be set;
// when both are set they must have the same length and are exchanged
// position for position. The buffers are borrowed for the duration of the
// call that executes the transfer only.
//
// The remaining fields override the device configuration for this segment.
// A zero value means "use the device setting".
type Transfer struct {
	Tx []byte
	Rx []byte

	SpeedHz     uint32
	BitsPerWord uint8
	// DelayUsecs is how long to wait after this segment before the next
	// one starts or chip select changes.
	DelayUsecs uint16
	// CSChange deasserts chip select after this segment. On the last
	// segment of a batch it instead keeps chip select asserted.
	CSChange bool

	// TxNBits and RxNBits select single (1), dual (2) or quad (4) data
	// lines; 0 means single.
	TxNBits uint8
	RxNBits uint8
	// WordDelayUsecs is a pause inserted between words.
	WordDelayUsecs uint8
}

// Read returns a receive-only transfer filling rx.
func Read(rx []byte) Transfer {
	return Transfer{Rx: rx}
}

// Write returns a transmit-only transfer sending tx.
func Write(tx []byte) Transfer {
	return Transfer{Tx: tx}
}

// ReadWrite returns a full-duplex transfer sending tx while filling rx.
// Mismatched lengths are reported when the transfer is executed, before
// the driver is called.
func ReadWrite(tx, rx []byte) Transfer {
	return Transfer{Tx: tx, Rx: rx}
}

// Len is the number of bytes clocked by the transfer.
func (t *Transfer) Len() int {
	if len(t.Tx) > 0 {
		return len(t.Tx)
	}
	return len(t.Rx)
}

// Validate checks the buffer preconditions of the transfer.
func (t *Transfer) Validate() error {
	switch {
	case len(t.Tx) == 0 && len(t.Rx) == 0:
		return ErrNoBuffer
	case len(t.Tx) > 0 && len(t.Rx) > 0 && len(t.Tx) != len(t.Rx):
		return fmt.Errorf("%w: tx %d, rx %d", ErrLengthMismatch, len(t.Tx), len(t.Rx))
	case uint64(t.Len()) > math.MaxUint32:
		return fmt.Errorf("%w: %d bytes", ErrTooLong, t.Len())
	}
	return nil
}
