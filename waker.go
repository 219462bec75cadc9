package spscchan

import "github.com/joeycumines/go-spscchan/internal/spsc"

// Waker is the opaque wake token obtained from the caller's own task runtime
// while it is polling, invoked later to reschedule that task. It is the
// same type every variant package's Poll/PollNext/PollCancel methods accept.
type Waker = spsc.Waker

// WakerFunc adapts a plain function to a Waker.
type WakerFunc = spsc.WakerFunc
