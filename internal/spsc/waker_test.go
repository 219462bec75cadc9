package spsc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWakerSlot_StoreTakeRoundTrip(t *testing.T) {
	var slot WakerSlot
	assert.Nil(t, slot.take(), "empty slot yields nil")

	w := WakerFunc(func() {})
	slot.store(w)
	got := slot.take()
	assert.NotNil(t, got)
	assert.Nil(t, slot.take(), "take empties the slot")
}

func TestWakerSlot_TakeAndWake_InvokesStoredWaker(t *testing.T) {
	var slot WakerSlot
	var invoked bool
	slot.store(WakerFunc(func() { invoked = true }))

	slot.takeAndWake()
	assert.True(t, invoked)
	assert.Nil(t, slot.take())
}

func TestWakerSlot_TakeAndWake_NoOpWhenEmpty(t *testing.T) {
	var slot WakerSlot
	assert.NotPanics(t, func() { slot.takeAndWake() })
}

func TestWakerFunc_ImplementsWaker(t *testing.T) {
	var w Waker = WakerFunc(func() {})
	assert.NotNil(t, w)
}
