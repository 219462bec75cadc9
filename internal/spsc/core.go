package spsc

// RegisterResult distinguishes why RegisterWaker did not end up with a
// stored, live registration.
type RegisterResult int

const (
	// Registered means w is now stored in the slot and will be woken by the
	// other endpoint's disposal path (or by a future payload publish).
	Registered RegisterResult = iota

	// Ready means there is something for the caller to observe — the
	// Complete bit, or one of the ready bits it passed — either already at
	// registration time or having landed while we held the lock. The
	// registration was revoked (or never made); the caller must re-examine
	// state directly rather than wait for a wake that will never come.
	Ready

	// Busy means the matching lock bit was held by someone else at the
	// moment we tried to take it. This only happens when the other endpoint
	// is inside the brief critical section of WakePeerIfIdle, CloseHalf or
	// DropRx; it is not terminal, and the caller should simply retry.
	Busy
)

// RegisterWaker stores w into slot, guarded by lock, unless the channel is
// already Complete (or has one of the caller's ready bits set) or lock is
// currently held by someone else.
//
// ready is the set of payload bits whose being non-zero means "do not
// sleep" — a ring's length field, a pulse's count and error-present bits.
// The peer's publish CAS does not check lock bits, so a publish can land
// while we hold lock; the peer's subsequent WakePeerIfIdle then sees the
// lock held and deliberately does nothing, relying on us to notice the
// payload ourselves. We notice it in the release CAS's witnessed word: any
// publish that landed before our release is visible there (same word, same
// CAS), and any publish after it finds the lock free and wakes us through
// the slot. If the witnessed word has a ready or Complete bit set, the
// registration is revoked (so it is not left behind in the slot) and Ready
// is returned instead of Registered. A publisher that reaches the slot
// between our release and the revocation may still wake w once.
func RegisterWaker(s *State, slot *WakerSlot, lock, ready Word, w Waker) RegisterResult {
	reason, ok := Transition(s, func(old Word) (Word, RegisterResult, bool) {
		switch {
		case old&(Complete|ready) != 0:
			return old, Ready, false
		case old&lock != 0:
			return old, Busy, false
		default:
			return old | lock, Registered, true
		}
	})
	if !ok {
		return reason
	}

	slot.store(w)

	final, _ := Transition(s, func(old Word) (Word, Word, bool) {
		return old &^ lock, old, true
	})
	if final&(Complete|ready) != 0 {
		slot.take()
		return Ready
	}
	return Registered
}

// PollCancel implements the sender-side cancellation poll: it
// registers w as the token to invoke if the receiver disposes of its end,
// and reports whether the channel is already (or just became) Complete.
//
// A Busy result here can only mean drop_rx is concurrently forcing TxLock
// open, and drop_rx always sets Complete in that same transition — so Busy
// is safe to treat identically to Ready, unlike the RxLock case used by
// the receiver-side pollers (see ring/pulse/oneshot, which must retry on
// Busy instead).
func PollCancel(s *State, txTask *WakerSlot, w Waker) (ready bool) {
	return RegisterWaker(s, txTask, TxLock, 0, w) != Registered
}

// WakePeerIfIdle takes lock if it is currently free, takes-and-wakes
// whatever waker is stored in slot, and releases lock. It is the "under
// RX_LOCK, take-and-invoke the receiver's wake token if present" step common
// to every variant's send path; the lock bit is a parameter, but every
// caller passes RxLock.
//
// If lock is already held, it does nothing: the owner is mid-registration
// and will observe the payload (or Complete) itself on its own next poll.
func WakePeerIfIdle(s *State, slot *WakerSlot, lock Word) {
	_, ok := Transition(s, func(old Word) (Word, struct{}, bool) {
		if old&lock != 0 {
			return old, struct{}{}, false
		}
		return old | lock, struct{}{}, true
	})
	if !ok {
		return
	}
	slot.takeAndWake()
	Transition(s, func(old Word) (Word, struct{}, bool) {
		return old &^ lock, struct{}{}, true
	})
}

// CloseHalf is the disposal transition run when one endpoint exits its
// active role: it captures theirLock if free (meaning the
// peer is not presently inside its own critical section) and sets Complete,
// or — if theirLock is held — sets Complete alone and lets the peer notice
// it on its own next lock release. Exactly one of those two things happens,
// or neither does (the channel was already Complete and theirLock is held,
// i.e. the peer will notice Complete itself). A free theirLock is captured
// even when Complete is already set.
func CloseHalf(s *State, theirSlot *WakerSlot, theirLock Word) {
	captured, ok := Transition(s, func(old Word) (Word, bool, bool) {
		switch {
		case old&theirLock == 0:
			return old | theirLock | Complete, true, true
		case old&Complete == 0:
			return old | Complete, false, true
		default:
			return old, false, false
		}
	})
	if !ok {
		return
	}
	if !captured {
		return
	}
	theirSlot.takeAndWake()
	Transition(s, func(old Word) (Word, struct{}, bool) {
		return old &^ theirLock, struct{}{}, true
	})
}

// CloseRx runs the receiver's polite-close transition: it wakes the
// sender's cancellation observer early without otherwise disturbing payload
// that is still drainable.
func CloseRx(s *State, txTask *WakerSlot) {
	CloseHalf(s, txTask, TxLock)
}

// DropTx runs the sender's disposal transition: symmetric to CloseRx, using
// RxLock instead of TxLock.
func DropTx(s *State, rxTask *WakerSlot) {
	CloseHalf(s, rxTask, RxLock)
}

// DropRx runs the receiver's disposal transition. Unlike
// CloseHalf, it may need to capture both lock bits at once: RxLock to
// invalidate its own slot, and TxLock to wake the sender's cancellation
// observer. It recomputes which locks are currently free on every attempt
// and captures whichever are free even if Complete is already set: a
// receiver whose earlier close could not capture TxLock (the sender held
// it) must still get a chance to wake the sender here. See DESIGN.md.
func DropRx(s *State, rxTask, txTask *WakerSlot) {
	mask, ok := Transition(s, func(old Word) (Word, Word, bool) {
		var mask Word
		if old&TxLock == 0 {
			mask |= TxLock
		}
		if old&RxLock == 0 {
			mask |= RxLock
		}
		if mask != 0 {
			return old | mask | Complete, mask, true
		}
		if old&Complete == 0 {
			return old | Complete, 0, true
		}
		return old, 0, false
	})
	if !ok {
		return
	}
	if mask&RxLock != 0 {
		rxTask.take()
	}
	if mask&TxLock != 0 {
		txTask.takeAndWake()
	}
	if mask != 0 {
		Transition(s, func(old Word) (Word, struct{}, bool) {
			return old &^ mask, struct{}{}, true
		})
	}
}
