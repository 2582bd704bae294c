package timectrl

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/ran-scheduler/model"
)

// SlotClock is an interface for reading the current slot. Components that
// only need to know "what slot is it" depend on this rather than on the
// concrete controller, which keeps them testable with a fake clock.
type SlotClock interface {
	// CurrentSlot returns the most recently indicated slot.
	CurrentSlot() model.Slot
}

// Mode describes how the SlotController advances slots.
type Mode int

const (
	// RealTime paces slot indications by the numerology's slot duration.
	RealTime Mode = iota
	// Accelerated indicates slots as fast as the listeners can consume them.
	Accelerated
)

// SlotDuration returns the wall-clock length of one slot at the given
// numerology: 1ms / 2^mu.
func SlotDuration(mu model.Numerology) time.Duration {
	return time.Millisecond / time.Duration(uint(1)<<mu)
}

// SlotController drives the slot indications of one cell and notifies the
// registered listeners in order. It implements SlotClock.
type SlotController struct {
	mu   sync.RWMutex
	mode Mode

	current model.Slot

	listeners []func(model.Slot)
}

// NewSlotController constructs a controller starting at the given slot. The
// first listener invocation carries start itself.
func NewSlotController(start model.Slot, mode Mode) *SlotController {
	return &SlotController{mode: mode, current: start}
}

// CurrentSlot returns the most recently indicated slot. Implements SlotClock.
func (sc *SlotController) CurrentSlot() model.Slot {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.current
}

// AddListener registers a callback invoked on every slot indication, in
// registration order. Must be called before Run.
func (sc *SlotController) AddListener(fn func(model.Slot)) {
	sc.listeners = append(sc.listeners, fn)
}

// Run indicates nofSlots consecutive slots, starting at the controller's
// current slot, in a separate goroutine. nofSlots <= 0 runs until the context
// is cancelled. The returned channel is closed when the controller finishes.
func (sc *SlotController) Run(ctx context.Context, nofSlots int) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		var ticker *time.Ticker
		if sc.mode == RealTime {
			ticker = time.NewTicker(SlotDuration(sc.current.Numerology()))
			defer ticker.Stop()
		}

		for i := 0; nofSlots <= 0 || i < nofSlots; i++ {
			if ticker != nil {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			} else if ctx.Err() != nil {
				return
			}

			sc.mu.RLock()
			s := sc.current
			sc.mu.RUnlock()

			for _, fn := range sc.listeners {
				fn(s)
			}

			sc.mu.Lock()
			sc.current = sc.current.Add(1)
			sc.mu.Unlock()
		}
	}()
	return done
}
