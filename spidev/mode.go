package spidev

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
)

// Mode is the SPI mode word exchanged with the driver through
// SPI_IOC_{RD,WR}_MODE32. The low two bits select one of the four clock
// modes; every other bit is an independent flag. Bits without a name here
// are carried through unchanged.
type Mode uint32

const (
	CPHA Mode = 1 << iota
	CPOL
	CSHigh
	LSBFirst
	ThreeWire
	Loop
	NoCS
	Ready
	TxDual
	TxQuad
	RxDual
	RxQuad
	CSWord
	TxOctal
	RxOctal
	ThreeWireHiZ
)

const (
	// NoRx marks a transmit-only controller.
	NoRx Mode = 1 << 30
	// NoTx marks a receive-only controller.
	NoTx Mode = 1 << 31
)

const (
	Mode0 Mode = 0
	Mode1 Mode = CPHA
	Mode2 Mode = CPOL
	Mode3 Mode = CPOL | CPHA

	baseMask = CPOL | CPHA
)

var flagNames = map[Mode]string{
	CSHigh:       "CS_HIGH",
	LSBFirst:     "LSB_FIRST",
	ThreeWire:    "3WIRE",
	Loop:         "LOOP",
	NoCS:         "NO_CS",
	Ready:        "READY",
	TxDual:       "TX_DUAL",
	TxQuad:       "TX_QUAD",
	RxDual:       "RX_DUAL",
	RxQuad:       "RX_QUAD",
	CSWord:       "CS_WORD",
	TxOctal:      "TX_OCTAL",
	RxOctal:      "RX_OCTAL",
	ThreeWireHiZ: "3WIRE_HIZ",
	NoRx:         "NO_RX",
	NoTx:         "NO_TX",
}

// Value returns the raw bits handed to the kernel.
func (m Mode) Value() uint32 { return uint32(m) }

// Base returns the clock polarity/phase field (Mode0..Mode3).
func (m Mode) Base() Mode { return m & baseMask }

// Flags returns every bit outside the clock field.
func (m Mode) Flags() Mode { return m &^ baseMask }

// Has reports whether all bits of f are set in m.
func (m Mode) Has(f Mode) bool { return m&f == f }

// String renders m as "ModeN" followed by the names of the set flags and
// a hex remainder for bits without a name, e.g. "Mode3|CS_HIGH|0x100000".
func (m Mode) String() string {
	parts := []string{"Mode" + strconv.Itoa(int(m.Base()))}
	rest := m.Flags()
	for _, f := range sortedFlags() {
		if rest&f != 0 {
			parts = append(parts, flagNames[f])
			rest &^= f
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("%#x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseMode parses the output of Mode.String. Each "|" separated element is
// either MODE0..MODE3, a flag name or a numeric literal; case is ignored.
func ParseMode(s string) (Mode, error) {
	var m Mode
	for _, part := range strings.Split(s, "|") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		v, err := parseModePart(part)
		if err != nil {
			return 0, err
		}
		m |= v
	}
	return m, nil
}

func parseModePart(part string) (Mode, error) {
	if strings.HasPrefix(part, "MODE") {
		n, err := strconv.Atoi(strings.TrimPrefix(part, "MODE"))
		if err != nil || n < 0 || n > 3 {
			return 0, fmt.Errorf("spidev: invalid clock mode %q", part)
		}
		return Mode(n), nil
	}
	for f, name := range flagNames {
		if name == part {
			return f, nil
		}
	}
	if v, err := strconv.ParseUint(part, 0, 32); err == nil {
		return Mode(v), nil
	}
	return 0, fmt.Errorf("spidev: unknown mode flag %q (known: %s)", part, strings.Join(FlagNames(), ", "))
}

// FlagNames returns the names accepted by ParseMode besides MODE0..MODE3,
// ordered by bit position.
func FlagNames() []string {
	names := make([]string, 0, len(flagNames))
	for _, f := range sortedFlags() {
		names = append(names, flagNames[f])
	}
	return names
}

func sortedFlags() []Mode {
	keys := maps.Keys(flagNames)
	slices.Sort(keys)
	return keys
}
