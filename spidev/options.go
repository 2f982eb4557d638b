package spidev

import (
	"strconv"
	"strings"
)

// field bits recording which Options values were supplied.
const (
	setBitsPerWord = 1 << iota
	setMaxSpeedHz
	setMode
	setLSBFirst
)

// Options describes a device configuration. The zero value has every field
// unset; an unset field is not written by Configure, so the driver keeps
// whatever it currently uses. Options is a plain value: the With methods
// return a modified copy and two Options are equal when == says so.
type Options struct {
	set         uint8
	bitsPerWord uint8
	maxSpeedHz  uint32
	mode        Mode
	lsbFirst    bool
}

// NewOptions returns Options with every field unset.
func NewOptions() Options {
	return Options{}
}

// WithBitsPerWord sets the word size, 0 meaning the driver default (8).
func (o Options) WithBitsPerWord(n uint8) Options {
	o.bitsPerWord = n
	o.set |= setBitsPerWord
	return o
}

// WithMaxSpeedHz sets the default clock rate.
func (o Options) WithMaxSpeedHz(hz uint32) Options {
	o.maxSpeedHz = hz
	o.set |= setMaxSpeedHz
	return o
}

// WithMode sets the whole mode word: clock mode, flags and unknown bits
// alike.
func (o Options) WithMode(m Mode) Options {
	o.mode = m
	o.set |= setMode
	o.syncLSBFirst()
	return o
}

// WithFlags replaces every non-clock bit of the mode word with the
// corresponding bits of f, unknown ones included.
func (o Options) WithFlags(f Mode) Options {
	o.mode = o.mode.Base() | f.Flags()
	o.set |= setMode
	o.syncLSBFirst()
	return o
}

// WithLSBFirst selects the bit order. It is written through its own ioctl
// and mirrored into the LSBFirst bit of the mode word.
func (o Options) WithLSBFirst(v bool) Options {
	o.lsbFirst = v
	o.set |= setLSBFirst
	o.syncLSBFirst()
	return o
}

func (o *Options) syncLSBFirst() {
	if o.set&setLSBFirst == 0 || o.set&setMode == 0 {
		return
	}
	if o.lsbFirst {
		o.mode |= LSBFirst
	} else {
		o.mode &^= LSBFirst
	}
}

// BitsPerWord returns the word size and whether it was set.
func (o Options) BitsPerWord() (uint8, bool) {
	return o.bitsPerWord, o.set&setBitsPerWord != 0
}

// MaxSpeedHz returns the clock rate and whether it was set.
func (o Options) MaxSpeedHz() (uint32, bool) {
	return o.maxSpeedHz, o.set&setMaxSpeedHz != 0
}

// Mode returns the full mode word and whether it was set.
func (o Options) Mode() (Mode, bool) {
	return o.mode, o.set&setMode != 0
}

// LSBFirst returns the bit order and whether it was set.
func (o Options) LSBFirst() (bool, bool) {
	return o.lsbFirst, o.set&setLSBFirst != 0
}

// IsZero reports whether no field is set.
func (o Options) IsZero() bool {
	return o.set == 0
}

func (o Options) String() string {
	var parts []string
	if m, ok := o.Mode(); ok {
		parts = append(parts, "mode="+m.String())
	}
	if hz, ok := o.MaxSpeedHz(); ok {
		parts = append(parts, "max_speed_hz="+strconv.FormatUint(uint64(hz), 10))
	}
	if bpw, ok := o.BitsPerWord(); ok {
		parts = append(parts, "bits_per_word="+strconv.Itoa(int(bpw)))
	}
	if lsb, ok := o.LSBFirst(); ok {
		parts = append(parts, "lsb_first="+strconv.FormatBool(lsb))
	}
	return "{" + strings.Join(parts, " ") + "}"
}
