package spidev

import "errors"

// Caller-side errors, detected before any system call is made. Failures
// reported by the kernel are returned wrapped but otherwise unchanged, so
// errors.Is(err, unix.EINVAL) and friends keep working.
var (
	// ErrLengthMismatch is returned for a full-duplex transfer whose tx
	// and rx buffers differ in length.
	ErrLengthMismatch = errors.New("tx and rx lengths differ")

	// ErrNoBuffer is returned for a transfer with neither tx nor rx data.
	ErrNoBuffer = errors.New("transfer has no buffer")

	// ErrTooLong is returned when a buffer does not fit the 32-bit length
	// field of a transfer record.
	ErrTooLong = errors.New("transfer too long")

	// ErrTooManyTransfers is returned when a batch cannot be encoded into
	// a single SPI_IOC_MESSAGE request.
	ErrTooManyTransfers = errors.New("too many transfers in one batch")

	// ErrBitsPerWord is returned by Configure for a word size above 32.
	ErrBitsPerWord = errors.New("bits per word out of range")
)
