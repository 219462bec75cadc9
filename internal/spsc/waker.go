package spsc

import "sync/atomic"

// Waker is an opaque wake token: a handle obtained from the caller's own
// task runtime while it is polling, invoked later to reschedule that task.
// The core never calls anything on a Waker other than Wake, and never
// inspects it otherwise.
type Waker interface {
	Wake()
}

// WakerFunc adapts a plain function to a Waker.
type WakerFunc func()

// Wake implements Waker.
func (f WakerFunc) Wake() { f() }

// wakerBox exists so a nil Waker stored in the slot is distinguishable from
// an empty slot: atomic.Pointer[Waker] can't store a nil interface value
// directly as a non-nil *Waker without boxing it first.
type wakerBox struct {
	w Waker
}

// WakerSlot holds at most one registered wake token. The invariant that a
// slot may be written only while the matching lock bit is held is enforced
// by convention at the call sites in core.go, not by this type — WakerSlot
// itself uses atomic.Pointer so that the occasional deliberate
// cross-endpoint take (the disposal path reaching into a slot the other
// endpoint is not currently touching) is race-detector clean without an
// unsafe cell.
type WakerSlot struct {
	p atomic.Pointer[wakerBox]
}

// store installs w as the registered waker, replacing (and discarding)
// whatever was previously registered.
func (s *WakerSlot) store(w Waker) {
	s.p.Store(&wakerBox{w: w})
}

// take removes and returns the registered waker, or nil if none was
// registered. It does not invoke it.
func (s *WakerSlot) take() Waker {
	b := s.p.Swap(nil)
	if b == nil {
		return nil
	}
	return b.w
}

// takeAndWake removes the registered waker, if any, and invokes it.
func (s *WakerSlot) takeAndWake() {
	if w := s.take(); w != nil {
		w.Wake()
	}
}
