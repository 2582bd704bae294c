package model

import "fmt"

// Numerology is the NR subcarrier-spacing index mu (0 => 15 kHz, 1 => 30 kHz, ...).
type Numerology uint8

const (
	// NofSFNs is the number of system frame numbers before the frame counter wraps.
	NofSFNs = 1024
	// NofSubframesPerFrame is the number of 1 ms subframes in a radio frame.
	NofSubframesPerFrame = 10
)

// Slot identifies one transmission opportunity (a transmission time interval)
// on the air interface of a cell. It combines the numerology with a slot
// counter that wraps every NofSFNs frames. The zero value is invalid; this is
// used to represent "no slot" (e.g. a cleared last-allocation marker).
type Slot struct {
	// numerologyPlus1 is mu+1 so that the zero value of Slot is invalid.
	numerologyPlus1 uint8
	count           uint32
}

// NewSlot builds a slot from a system frame number and a slot index within
// that frame.
func NewSlot(mu Numerology, sfn, index uint) Slot {
	s := Slot{numerologyPlus1: uint8(mu) + 1}
	s.count = uint32((sfn*s.slotsPerFrame() + index) % s.wrapPeriod())
	return s
}

// NewSlotFromCount builds a slot directly from an absolute slot count.
func NewSlotFromCount(mu Numerology, count uint) Slot {
	s := Slot{numerologyPlus1: uint8(mu) + 1}
	s.count = uint32(count % s.wrapPeriod())
	return s
}

// Valid reports whether the slot carries a value. The zero Slot is invalid.
func (s Slot) Valid() bool { return s.numerologyPlus1 > 0 }

// Numerology returns the subcarrier-spacing index mu.
func (s Slot) Numerology() Numerology { return Numerology(s.numerologyPlus1 - 1) }

func (s Slot) slotsPerFrame() uint {
	return NofSubframesPerFrame * (1 << (s.numerologyPlus1 - 1))
}

func (s Slot) wrapPeriod() uint { return NofSFNs * s.slotsPerFrame() }

// SlotsPerFrame returns the number of slots per 10 ms radio frame for the
// slot's numerology.
func (s Slot) SlotsPerFrame() uint { return s.slotsPerFrame() }

// Count returns the absolute slot count within the wrap period.
func (s Slot) Count() uint { return uint(s.count) }

// SFN returns the system frame number in [0, NofSFNs).
func (s Slot) SFN() uint { return uint(s.count) / s.slotsPerFrame() }

// Index returns the slot index within the frame.
func (s Slot) Index() uint { return uint(s.count) % s.slotsPerFrame() }

// Add returns the slot n slots after s (n may be negative). Arithmetic wraps
// around the slot count period.
func (s Slot) Add(n int) Slot {
	if !s.Valid() {
		return s
	}
	period := int(s.wrapPeriod())
	c := (int(s.count) + n) % period
	if c < 0 {
		c += period
	}
	return Slot{numerologyPlus1: s.numerologyPlus1, count: uint32(c)}
}

// Sub returns the signed slot distance s - other, normalized into
// [-period/2, period/2) so that differences remain correct across the counter
// wraparound, as long as the real distance is below half the wrap period.
func (s Slot) Sub(other Slot) int {
	period := int(s.wrapPeriod())
	d := (int(s.count) - int(other.count)) % period
	if d >= period/2 {
		d -= period
	}
	if d < -period/2 {
		d += period
	}
	return d
}

// Equal reports whether two slots denote the same transmission opportunity.
func (s Slot) Equal(other Slot) bool {
	return s.numerologyPlus1 == other.numerologyPlus1 && s.count == other.count
}

func (s Slot) String() string {
	if !s.Valid() {
		return "slot{invalid}"
	}
	return fmt.Sprintf("%d.%d", s.SFN(), s.Index())
}
