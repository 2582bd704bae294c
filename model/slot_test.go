package model

import "testing"

func TestSlotFrameAccessors(t *testing.T) {
	s := NewSlot(1, 289, 5)
	if got := s.SFN(); got != 289 {
		t.Fatalf("expected SFN 289, got %d", got)
	}
	if got := s.Index(); got != 5 {
		t.Fatalf("expected slot index 5, got %d", got)
	}
	if got := s.SlotsPerFrame(); got != 20 {
		t.Fatalf("expected 20 slots per frame at mu=1, got %d", got)
	}
}

func TestSlotZeroValueInvalid(t *testing.T) {
	var s Slot
	if s.Valid() {
		t.Fatalf("zero Slot must be invalid")
	}
	if NewSlot(0, 0, 0).Valid() != true {
		t.Fatalf("constructed slot must be valid")
	}
}

func TestSlotAddWrapsAround(t *testing.T) {
	// Last slot of the wrap period at mu=0: SFN 1023, index 9.
	s := NewSlot(0, 1023, 9)
	next := s.Add(1)
	if next.SFN() != 0 || next.Index() != 0 {
		t.Fatalf("expected wrap to 0.0, got %s", next)
	}

	prev := NewSlot(0, 0, 0).Add(-1)
	if prev.SFN() != 1023 || prev.Index() != 9 {
		t.Fatalf("expected wrap to 1023.9, got %s", prev)
	}
}

func TestSlotSubAcrossWraparound(t *testing.T) {
	a := NewSlot(0, 0, 2)
	b := NewSlot(0, 1023, 8)
	if d := a.Sub(b); d != 4 {
		t.Fatalf("expected forward distance 4 across wrap, got %d", d)
	}
	if d := b.Sub(a); d != -4 {
		t.Fatalf("expected backward distance -4 across wrap, got %d", d)
	}
}

func TestSlotSubSameFrame(t *testing.T) {
	a := NewSlot(1, 10, 3)
	b := NewSlot(1, 10, 0)
	if d := a.Sub(b); d != 3 {
		t.Fatalf("expected distance 3, got %d", d)
	}
}
