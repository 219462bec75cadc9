package oneshot

import (
	"sync"
	"testing"

	"github.com/joeycumines/go-spscchan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualWaker struct {
	mu    sync.Mutex
	count int
}

func (w *manualWaker) Wake() {
	w.mu.Lock()
	w.count++
	w.mu.Unlock()
}

func (w *manualWaker) count_() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func TestSendThenPoll_YieldsValueThenDone(t *testing.T) {
	s, r := New[int]()
	require.NoError(t, s.Send(42))

	status, v, err := r.Poll(&manualWaker{})
	require.Equal(t, spscchan.Ready, status)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, r.IsTerminated())

	status, v, err = r.Poll(&manualWaker{})
	assert.Equal(t, spscchan.Done, status)
	assert.NoError(t, err)
	assert.Zero(t, v)
}

func TestSecondSend_ReturnsValueViaSendError(t *testing.T) {
	s, _ := New[string]()
	require.NoError(t, s.Send("a"))

	err := s.Send("b")
	var sendErr *SendError[string]
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, "b", sendErr.Value)
}

func TestPollBeforeSend_RegistersWakerThenWakesOnSend(t *testing.T) {
	s, r := New[int]()
	w := &manualWaker{}

	status, _, _ := r.Poll(w)
	assert.Equal(t, spscchan.Pending, status)
	assert.Zero(t, w.count_())

	require.NoError(t, s.Send(7))
	assert.Equal(t, 1, w.count_())

	status, v, err := r.Poll(&manualWaker{})
	require.Equal(t, spscchan.Ready, status)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestSenderDroppedWithoutSend_YieldsCanceled(t *testing.T) {
	s, r := New[int]()
	require.NoError(t, s.Close())

	status, v, err := r.Poll(&manualWaker{})
	assert.Equal(t, spscchan.Ready, status)
	assert.ErrorIs(t, err, spscchan.Canceled)
	assert.Zero(t, v)

	status, _, _ = r.Poll(&manualWaker{})
	assert.Equal(t, spscchan.Done, status)
}

func TestTryRecv_EmptyThenCanceled(t *testing.T) {
	s, r := New[int]()

	_, err := r.TryRecv()
	assert.ErrorIs(t, err, spscchan.Empty)

	require.NoError(t, s.Close())
	_, err = r.TryRecv()
	assert.ErrorIs(t, err, spscchan.Canceled)
}

func TestCancellationRace_PollCancelEventuallyReadyThenStaysReady(t *testing.T) {
	s, r := New[int]()
	w := &manualWaker{}

	ready := s.PollCancel(w)
	assert.False(t, ready)

	require.NoError(t, r.Close())

	assert.True(t, s.PollCancel(w), "poll_cancel must observe Ready once the receiver is closed")
	assert.True(t, s.PollCancel(w), "second poll after Ready is still Ready")
	assert.True(t, s.IsCanceled())
}

func TestConcurrentDropOfBothEndpoints_NoPanicFinalState(t *testing.T) {
	for i := 0; i < 100; i++ {
		s, r := New[int]()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Close()
		}()
		go func() {
			defer wg.Done()
			_ = r.Close()
		}()
		wg.Wait()

		assert.True(t, s.IsCanceled())
	}
}

func TestSendThenPoll_DeliversValueWithoutClose(t *testing.T) {
	s, r := New[int]()
	require.NoError(t, s.Send(1))

	status, v, err := r.Poll(&manualWaker{})
	require.Equal(t, spscchan.Ready, status)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}
