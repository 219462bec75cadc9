// Package pulse implements the coalesced unit/counter channel variant: the
// sender signals that "something happened k times," coalescing concurrent
// sends into one saturating counter, and may terminate the stream early
// with an error payload of type E. It is built on the shared lock-free
// core in internal/spsc.
package pulse

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/joeycumines/go-spscchan"
	"github.com/joeycumines/go-spscchan/internal/spsc"
)

// ClosedError wraps the terminal error payload sent via SendErr, so it can
// be returned through PollNext/TryNext's plain `error` result while still
// giving the caller their original value back via errors.As.
type ClosedError[E any] struct {
	Value E
}

func (e *ClosedError[E]) Error() string {
	return fmt.Sprintf("spscchan/pulse: closed: %v", e.Value)
}

// errPresent is the flag bit marking that the error cell holds a terminal
// payload awaiting delivery. It is distinct from spsc.Complete: the
// receiver must first drain any remaining count, then observe the error,
// and only then is the channel fully Complete.
const errPresent spsc.Word = 1 << spsc.PayloadShift

// countBits is the pulse counter's width. Overflow saturates (rather than
// erroring) at a fixed, generous width, with a debug log emitted on every
// saturating add; see DESIGN.md.
const (
	countShift = spsc.PayloadShift + 1
	countBits  = 24
	countMax   = spsc.Word(1)<<countBits - 1
	countMask  = countMax << countShift
)

func countOf(w spsc.Word) spsc.Word { return (w & countMask) >> countShift }

func withCount(w spsc.Word, count spsc.Word) spsc.Word {
	return (w &^ countMask) | (count << countShift)
}

type core[T any] struct {
	state  spsc.State
	rxTask spsc.WakerSlot
	txTask spsc.WakerSlot

	err atomic.Pointer[T]
}

// Sender is the unique handle for pulsing the channel. It is not safe for
// concurrent use by multiple goroutines.
type Sender[E any] struct {
	c      *core[E]
	closed bool
}

// Receiver is the unique handle for draining pulses. It is not safe for
// concurrent use by multiple goroutines.
type Receiver[E any] struct {
	c    *core[E]
	done bool
}

// New constructs a paired Sender/Receiver sharing one pulse core. E is the
// type of the optional terminal error payload.
func New[E any]() (*Sender[E], *Receiver[E]) {
	c := &core[E]{}
	s := &Sender[E]{c: c}
	r := &Receiver[E]{c: c}
	runtime.SetFinalizer(s, (*Sender[E]).finalize)
	runtime.SetFinalizer(r, (*Receiver[E]).finalize)
	return s, r
}

func (s *Sender[E]) finalize() {
	if s.closed {
		return
	}
	spsc.DropTx(&s.c.state, &s.c.rxTask)
	spscchan.LogWarn("pulse", "sender garbage-collected without Close", nil, nil)
}

func (r *Receiver[E]) finalize() {
	if r.done {
		return
	}
	spsc.DropRx(&r.c.state, &r.c.rxTask, &r.c.txTask)
	spscchan.LogWarn("pulse", "receiver garbage-collected without Close", nil, nil)
}

// Send coalesces k additional pulses into the channel's counter, saturating
// (silently dropping excess pulses) rather than erroring on overflow. It
// returns Canceled if the channel has already reached a terminal state or
// already has a terminal error queued.
func (s *Sender[E]) Send(k uint32) error {
	if s.closed {
		return spscchan.Canceled
	}
	_, ok := spsc.Transition(&s.c.state, func(old spsc.Word) (spsc.Word, struct{}, bool) {
		if old&spsc.Complete != 0 || old&errPresent != 0 {
			return old, struct{}{}, false
		}
		sum := countOf(old) + spsc.Word(k)
		if sum > countMax {
			sum = countMax
			spscchan.LogDebug("pulse", "pulse count saturated", map[string]any{"max": countMax})
		}
		return withCount(old, sum), struct{}{}, true
	})
	if !ok {
		return spscchan.Canceled
	}
	spsc.WakePeerIfIdle(&s.c.state, &s.c.rxTask, spsc.RxLock)
	return nil
}

// SendErr queues e as the channel's terminal error payload: the receiver
// will observe any pulses already pending first, then e, then Done. It
// consumes the Sender — a second call to Send or SendErr always fails.
func (s *Sender[E]) SendErr(e E) error {
	if s.closed {
		return spscchan.Canceled
	}
	s.closed = true
	runtime.SetFinalizer(s, nil)

	s.c.err.Store(&e)
	_, ok := spsc.Transition(&s.c.state, func(old spsc.Word) (spsc.Word, struct{}, bool) {
		if old&spsc.Complete != 0 {
			return old, struct{}{}, false
		}
		return old | errPresent, struct{}{}, true
	})
	if !ok {
		s.c.err.Store(nil)
		return spscchan.Canceled
	}
	spsc.WakePeerIfIdle(&s.c.state, &s.c.rxTask, spsc.RxLock)
	return nil
}

// PollCancel registers w as the cancellation observer and reports whether
// the Receiver has already been dropped or closed.
func (s *Sender[E]) PollCancel(w spscchan.Waker) bool {
	return spsc.PollCancel(&s.c.state, &s.c.txTask, w)
}

// IsCanceled reports whether the Receiver has gone away, without
// registering a wake token.
func (s *Sender[E]) IsCanceled() bool {
	return s.c.state.Load()&spsc.Complete != 0
}

// Close runs the sender-disposal transition: any pulses (and a queued
// error) already published remain drainable until the Receiver is dropped.
func (s *Sender[E]) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	runtime.SetFinalizer(s, nil)
	spsc.DropTx(&s.c.state, &s.c.rxTask)
	return nil
}

// PollNext drains the pending pulse count if non-zero, then the queued
// terminal error if present, then reports Done. It registers w and
// suspends if neither is available yet and the channel is still open.
func (r *Receiver[E]) PollNext(w spscchan.Waker) (spscchan.Status, uint32, error) {
	if r.done {
		return spscchan.Done, 0, nil
	}

	for {
		old := r.c.state.Load()
		if status, count, err, handled := r.drain(old); handled {
			return status, count, err
		}
		if old&spsc.Complete != 0 {
			r.done = true
			runtime.SetFinalizer(r, nil)
			return spscchan.Done, 0, nil
		}
		// a pulse or terminal error landing while we hold RxLock revokes
		// the registration.
		if spsc.RegisterWaker(&r.c.state, &r.c.rxTask, spsc.RxLock, errPresent|countMask, w) == spsc.Registered {
			return spscchan.Pending, 0, nil
		}
	}
}

// TryNext is the non-blocking form of PollNext: it never suspends,
// returning Empty in place of Pending.
func (r *Receiver[E]) TryNext() (uint32, error) {
	if r.done {
		return 0, spscchan.Canceled
	}

	old := r.c.state.Load()
	if _, count, err, handled := r.drain(old); handled {
		return count, err
	}
	if old&spsc.Complete != 0 {
		r.done = true
		runtime.SetFinalizer(r, nil)
		return 0, spscchan.Canceled
	}
	return 0, spscchan.Empty
}

// drain attempts to take a pending count or the terminal error from old,
// reporting handled=false if there is nothing to take right now (the
// caller must then check Complete / register a waker).
func (r *Receiver[E]) drain(old spsc.Word) (status spscchan.Status, count uint32, err error, handled bool) {
	if countOf(old) > 0 {
		taken, ok := spsc.Transition(&r.c.state, func(cur spsc.Word) (spsc.Word, spsc.Word, bool) {
			return withCount(cur, 0), countOf(cur), true
		})
		if ok && taken > 0 {
			return spscchan.Ready, uint32(taken), nil, true
		}
	}
	if old&errPresent != 0 {
		e := r.c.err.Swap(nil)
		// only the receiver ever reaches this branch. errPresent is never
		// cleared, so later calls reach it again with an empty cell, set
		// Complete again (a no-op) and fall through.
		spsc.Transition(&r.c.state, func(cur spsc.Word) (spsc.Word, struct{}, bool) {
			return cur | spsc.Complete, struct{}{}, true
		})
		if e != nil {
			return spscchan.Ready, 0, &ClosedError[E]{Value: *e}, true
		}
	}
	return spscchan.Pending, 0, nil, false
}

// Close runs the receiver-disposal transition, waking the sender's
// registered cancellation observer, if any.
func (r *Receiver[E]) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	runtime.SetFinalizer(r, nil)
	spsc.DropRx(&r.c.state, &r.c.rxTask, &r.c.txTask)
	return nil
}

// IsTerminated reports whether PollNext or TryNext has already delivered
// Done.
func (r *Receiver[E]) IsTerminated() bool {
	return r.done
}
