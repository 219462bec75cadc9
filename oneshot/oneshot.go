// Package oneshot implements the one-shot channel variant: a Sender may
// publish at most one value before it is consumed (or dropped), and a
// Receiver observes either that value or cancellation, then end-of-stream.
//
// It is built on the shared lock-free core in internal/spsc.
package oneshot

import (
	"runtime"

	"github.com/joeycumines/go-spscchan"
	"github.com/joeycumines/go-spscchan/internal/spsc"
)

// published is set, alongside spsc.Complete, when Send actually installed a
// value — distinguishing "Ready(value)" from the Canceled case where the
// Sender was dropped without ever sending.
const published spsc.Word = 1 << spsc.PayloadShift

type core[T any] struct {
	state  spsc.State
	rxTask spsc.WakerSlot
	txTask spsc.WakerSlot
	value  T
}

// Sender is the unique handle for publishing the single value. It is not
// safe for concurrent use by multiple goroutines.
type Sender[T any] struct {
	c    *core[T]
	sent bool
}

// Receiver is the unique handle for consuming the single value. It is not
// safe for concurrent use by multiple goroutines.
type Receiver[T any] struct {
	c    *core[T]
	done bool
}

// SendError is returned by Send when the channel had already reached a
// terminal state (the value is handed back, uninstalled).
type SendError[T any] struct {
	Value T
}

func (e *SendError[T]) Error() string { return "spscchan/oneshot: send on a closed channel" }

// New constructs a paired Sender/Receiver sharing one core.
func New[T any]() (*Sender[T], *Receiver[T]) {
	c := &core[T]{}
	s := &Sender[T]{c: c}
	r := &Receiver[T]{c: c}
	runtime.SetFinalizer(s, (*Sender[T]).finalize)
	runtime.SetFinalizer(r, (*Receiver[T]).finalize)
	return s, r
}

func (s *Sender[T]) finalize() {
	if s.sent {
		return
	}
	spsc.DropTx(&s.c.state, &s.c.rxTask)
	spscchan.LogWarn("oneshot", "sender garbage-collected without Close or Send", nil, nil)
}

func (r *Receiver[T]) finalize() {
	if r.done {
		return
	}
	spsc.DropRx(&r.c.state, &r.c.rxTask, &r.c.txTask)
	spscchan.LogWarn("oneshot", "receiver garbage-collected without Close", nil, nil)
}

// Send installs value as the channel's one payload. It consumes the Sender:
// a second call always fails with SendError, the value handed back unused.
func (s *Sender[T]) Send(value T) error {
	if s.sent {
		return &SendError[T]{Value: value}
	}
	s.sent = true
	runtime.SetFinalizer(s, nil)

	s.c.value = value
	_, ok := spsc.Transition(&s.c.state, func(old spsc.Word) (spsc.Word, struct{}, bool) {
		if old&spsc.Complete != 0 {
			return old, struct{}{}, false
		}
		return old | spsc.Complete | published, struct{}{}, true
	})
	if !ok {
		var zero T
		s.c.value = zero
		return &SendError[T]{Value: value}
	}

	spsc.WakePeerIfIdle(&s.c.state, &s.c.rxTask, spsc.RxLock)
	return nil
}

// PollCancel registers w as the cancellation observer and reports whether
// the Receiver has already been dropped or closed.
func (s *Sender[T]) PollCancel(w spscchan.Waker) bool {
	return spsc.PollCancel(&s.c.state, &s.c.txTask, w)
}

// IsCanceled reports whether the channel has already reached its terminal
// state, without registering a wake token.
func (s *Sender[T]) IsCanceled() bool {
	return s.c.state.Load()&spsc.Complete != 0
}

// Close runs the sender-disposal transition early, waking the receiver's
// registered poll, if any. Close is idempotent; a Send after Close fails
// with SendError.
func (s *Sender[T]) Close() error {
	if s.sent {
		return nil
	}
	s.sent = true
	runtime.SetFinalizer(s, nil)
	spsc.DropTx(&s.c.state, &s.c.rxTask)
	return nil
}

// Poll consumes the single value if it has arrived, registers w and
// suspends if it has not, or reports Canceled if the Sender was dropped
// without ever sending. It returns Done on every call after the first
// terminal observation.
func (r *Receiver[T]) Poll(w spscchan.Waker) (spscchan.Status, T, error) {
	var zero T
	if r.done {
		return spscchan.Done, zero, nil
	}

	for {
		old := r.c.state.Load()
		if old&spsc.Complete != 0 {
			r.done = true
			runtime.SetFinalizer(r, nil)
			if old&published != 0 {
				v := r.c.value
				r.c.value = zero
				return spscchan.Ready, v, nil
			}
			return spscchan.Ready, zero, spscchan.Canceled
		}
		if spsc.RegisterWaker(&r.c.state, &r.c.rxTask, spsc.RxLock, 0, w) == spsc.Registered {
			return spscchan.Pending, zero, nil
		}
		// Ready (Complete landed mid-registration) or Busy (the sender is
		// inside its brief wake/dispose critical section): re-examine.
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
	if old&spsc.Complete == 0 {
		return zero, spscchan.Empty
	}

	r.done = true
	runtime.SetFinalizer(r, nil)
	if old&published != 0 {
		v := r.c.value
		r.c.value = zero
		return v, nil
	}
	return zero, spscchan.Canceled
}

// Close runs the receiver-disposal transition, waking the sender's
// registered cancellation observer, if any.
func (r *Receiver[T]) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	runtime.SetFinalizer(r, nil)
	spsc.DropRx(&r.c.state, &r.c.rxTask, &r.c.txTask)
	return nil
}

// IsTerminated reports whether Poll or TryRecv has already delivered the
// channel's terminal outcome.
func (r *Receiver[T]) IsTerminated() bool {
	return r.done
}
