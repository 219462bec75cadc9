package spscchan

import "errors"

// Canceled is returned (often wrapped) when the operation could not
// complete because the other endpoint was dropped or closed.
var Canceled = errors.New("spscchan: canceled")

// Full is returned by a ring sender when the ring is at capacity. The value
// the caller tried to send is always handed back alongside it.
var Full = errors.New("spscchan: full")

// Empty is returned by a try-variant call when no value is currently
// available and the channel is not yet terminated; it is never returned
// from a blocking-capable poll.
var Empty = errors.New("spscchan: empty")
