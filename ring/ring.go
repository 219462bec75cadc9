// Package ring implements the bounded-ring channel variant: a sender may
// publish up to the ring's fixed capacity before observing backpressure,
// and a receiver drains published values in strict FIFO order. It is
// built on the shared lock-free core in internal/spsc.
//
// The state word's payload bits (above internal/spsc.PayloadShift) hold the
// current length — the count of slots currently occupied — mirroring
// catrate/ring.go's choice of a power-of-two capacity and mask arithmetic
// for head/tail indexing, generalized here to an arbitrary caller-chosen
// capacity padded up to the next power of two.
package ring

import (
	"runtime"

	"github.com/joeycumines/go-spscchan"
	"github.com/joeycumines/go-spscchan/internal/spsc"
)

// lengthMask covers every bit below spsc.PayloadShift (the lock/complete
// bits); length itself occupies everything above it, so clearing the
// complement of lengthMask clears exactly the length field.
const lengthMask = spsc.Word(1)<<spsc.PayloadShift - 1

func lengthOf(w spsc.Word) spsc.Word { return w >> spsc.PayloadShift }

func withLength(w spsc.Word, length spsc.Word) spsc.Word {
	return (w & lengthMask) | length<<spsc.PayloadShift
}

type core[T any] struct {
	state  spsc.State
	rxTask spsc.WakerSlot
	txTask spsc.WakerSlot

	capacity spsc.Word
	mask     spsc.Word // slotCount-1, since slots is sized to the next power of two
	slots    []T
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Sender is the unique handle for publishing into the ring. It is not safe
// for concurrent use by multiple goroutines.
type Sender[T any] struct {
	c      *core[T]
	closed bool

	// tail counts successful pushes; only the sender touches it. The slot a
	// push fills is tail&mask, and since head+length is invariant under
	// pops, this local counter always agrees with the head+length the
	// receiver derives.
	tail uint64
}

// Receiver is the unique handle for draining the ring. It is not safe for
// concurrent use by multiple goroutines.
type Receiver[T any] struct {
	c    *core[T]
	done bool

	// head counts pops; only the receiver (and its finalizer, after the
	// receiver is unreachable) touches it.
	head uint64
}

// FullError is returned by Send when the ring is at capacity; Value is
// handed back so the caller retains ownership.
type FullError[T any] struct {
	Value T
}

func (e *FullError[T]) Error() string { return "spscchan/ring: full" }

// Unwrap returns spscchan.Full, so errors.Is(err, spscchan.Full) holds.
func (e *FullError[T]) Unwrap() error { return spscchan.Full }

// ClosedError is returned by Send once the channel has reached its
// terminal state.
type ClosedError[T any] struct {
	Value T
}

func (e *ClosedError[T]) Error() string { return "spscchan/ring: closed" }

// New constructs a paired Sender/Receiver sharing a ring of the given
// capacity (rounded up internally to the next power of two for mask-based
// indexing; callers observe only the requested capacity via Cap()).
// capacity must be at least 1.
func New[T any](capacity int) (*Sender[T], *Receiver[T]) {
	if capacity < 1 {
		capacity = 1
	}
	slotCount := nextPowerOfTwo(capacity)
	c := &core[T]{
		capacity: spsc.Word(capacity),
		mask:     spsc.Word(slotCount - 1),
		slots:    make([]T, slotCount),
	}
	s := &Sender[T]{c: c}
	r := &Receiver[T]{c: c}
	runtime.SetFinalizer(s, (*Sender[T]).finalize)
	runtime.SetFinalizer(r, (*Receiver[T]).finalize)
	return s, r
}

func (s *Sender[T]) finalize() {
	if s.closed {
		return
	}
	spsc.DropTx(&s.c.state, &s.c.rxTask)
	spscchan.LogWarn("ring", "sender garbage-collected without Close", nil, nil)
}

func (r *Receiver[T]) finalize() {
	if r.done {
		return
	}
	r.strandRemainder()
	spsc.DropRx(&r.c.state, &r.c.rxTask, &r.c.txTask)
	spscchan.LogWarn("ring", "receiver garbage-collected without Close", nil, nil)
}

// Cap returns the ring's capacity, as given to New.
func (s *Sender[T]) Cap() int { return int(s.c.capacity) }

// Cap returns the ring's capacity, as given to New.
func (r *Receiver[T]) Cap() int { return int(r.c.capacity) }

// Send pushes v onto the ring's tail. It returns FullError if the ring is
// at capacity, or ClosedError if the Receiver has gone away; in both cases
// v is handed back via the error's Value field.
func (s *Sender[T]) Send(v T) error {
	if s.closed {
		return &ClosedError[T]{Value: v}
	}

	// The capacity check is a snapshot, but a stale one can only be
	// pessimistic: we are the only pusher, so length never grows between
	// the load and the CAS below.
	old := s.c.state.Load()
	if old&spsc.Complete != 0 {
		return &ClosedError[T]{Value: v}
	}
	if lengthOf(old) >= s.c.capacity {
		return &FullError[T]{Value: v}
	}

	// The slot is written before the length increment publishes it: the
	// receiver never reads past length, so the write is invisible until
	// the CAS lands, and the CAS itself is the release edge that makes it
	// visible.
	idx := s.tail & s.c.mask
	s.c.slots[idx] = v
	_, ok := spsc.Transition(&s.c.state, func(old spsc.Word) (spsc.Word, struct{}, bool) {
		if old&spsc.Complete != 0 {
			return old, struct{}{}, false
		}
		return withLength(old, lengthOf(old)+1), struct{}{}, true
	})
	if !ok {
		var zero T
		s.c.slots[idx] = zero
		return &ClosedError[T]{Value: v}
	}
	s.tail++

	spsc.WakePeerIfIdle(&s.c.state, &s.c.rxTask, spsc.RxLock)
	return nil
}

// PollCancel registers w as the cancellation observer and reports whether
// the Receiver has already been dropped or closed.
func (s *Sender[T]) PollCancel(w spscchan.Waker) bool {
	return spsc.PollCancel(&s.c.state, &s.c.txTask, w)
}

// IsCanceled reports whether the Receiver has gone away, without
// registering a wake token.
func (s *Sender[T]) IsCanceled() bool {
	return s.c.state.Load()&spsc.Complete != 0
}

// Close runs the sender-disposal transition: the receiver may still drain
// whatever remains buffered before observing Done.
func (s *Sender[T]) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	runtime.SetFinalizer(s, nil)
	spsc.DropTx(&s.c.state, &s.c.rxTask)
	return nil
}

// Poll drains the oldest buffered value if one is present, registers w and
// suspends if the ring is empty but still open, or returns Done once the
// ring is empty and the Sender has gone away.
func (r *Receiver[T]) Poll(w spscchan.Waker) (spscchan.Status, T, error) {
	var zero T
	if r.done {
		return spscchan.Done, zero, nil
	}

	for {
		old := r.c.state.Load()
		if lengthOf(old) > 0 {
			return spscchan.Ready, r.pop(), nil
		}
		if old&spsc.Complete != 0 {
			r.done = true
			runtime.SetFinalizer(r, nil)
			return spscchan.Done, zero, nil
		}
		// ^lengthMask covers exactly the length bits: any concurrent push
		// landing while we hold RxLock revokes the registration.
		if spsc.RegisterWaker(&r.c.state, &r.c.rxTask, spsc.RxLock, ^lengthMask, w) == spsc.Registered {
			return spscchan.Pending, zero, nil
		}
	}
}

// TryRecv is the non-blocking form of Poll: it never suspends, returning
// Empty in place of Pending.
func (r *Receiver[T]) TryRecv() (T, error) {
	var zero T
	if r.done {
		return zero, spscchan.Canceled
	}

	old := r.c.state.Load()
	if lengthOf(old) > 0 {
		return r.pop(), nil
	}
	if old&spsc.Complete != 0 {
		r.done = true
		runtime.SetFinalizer(r, nil)
		return zero, spscchan.Canceled
	}
	return zero, spscchan.Empty
}

// pop removes and returns the oldest buffered value. Caller must have
// already observed length>0.
func (r *Receiver[T]) pop() T {
	var zero T
	idx := r.head & r.c.mask
	v := r.c.slots[idx]
	r.c.slots[idx] = zero
	r.head++
	// the decrement is the release edge letting the sender reuse the slot.
	spsc.Transition(&r.c.state, func(old spsc.Word) (spsc.Word, struct{}, bool) {
		return withLength(old, lengthOf(old)-1), struct{}{}, true
	})
	return v
}

// strandRemainder drops whatever values remain buffered when the receiver
// is disposed without draining them; a close can strand at most Cap()
// values, all dropped here.
func (r *Receiver[T]) strandRemainder() {
	n := lengthOf(r.c.state.Load())
	if n == 0 {
		return
	}
	var zero T
	for i := spsc.Word(0); i < n; i++ {
		idx := (r.head + i) & r.c.mask
		r.c.slots[idx] = zero
	}
	spscchan.LogDebug("ring", "stranding undrained values on close", map[string]any{"count": n})
}

// Close runs the receiver-disposal transition, dropping any values still
// buffered and waking the sender's cancellation observer.
func (r *Receiver[T]) Close() error {
	if r.done {
		return nil
	}
	r.strandRemainder()
	r.done = true
	runtime.SetFinalizer(r, nil)
	spsc.DropRx(&r.c.state, &r.c.rxTask, &r.c.txTask)
	return nil
}

// IsTerminated reports whether Poll or TryRecv has already delivered Done.
func (r *Receiver[T]) IsTerminated() bool {
	return r.done
}
