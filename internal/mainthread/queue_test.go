package mainthread

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"game-bridge/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestCallRunsOnLoop(t *testing.T) {
	q := NewQueue()
	startLoop(t, q)

	v, err := q.Call(context.Background(), "sum", func() (any, error) { return 1 + 2, nil })
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestCallPropagatesError(t *testing.T) {
	q := NewQueue()
	startLoop(t, q)

	boom := errors.New("boom")
	_, err := q.Call(context.Background(), "fail", func() (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
}

func TestCallRecoversPanic(t *testing.T) {
	q := NewQueue()
	startLoop(t, q)

	_, err := q.Call(context.Background(), "panic", func() (any, error) { panic("bad state") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad state")

	// The loop survives.
	v, err := q.Call(context.Background(), "after", func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestCallTimesOutWithoutLoop(t *testing.T) {
	q := NewQueue(WithTimeout(20 * time.Millisecond))

	start := time.Now()
	_, err := q.Call(context.Background(), "stuck", func() (any, error) { return nil, nil })
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, protocol.CodeTimeout, protocol.CodeOf(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestSubmitBusyWhenFull(t *testing.T) {
	q := NewQueue(WithSize(1))
	require.NoError(t, q.Submit("one", func() {}))
	err := q.Submit("two", func() {})
	require.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, protocol.CodeHostUnavailable, protocol.CodeOf(err))
}

func TestSubmitPreservesOrder(t *testing.T) {
	q := NewQueue()
	var mu sync.Mutex
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, q.Submit("n", func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	assert.Equal(t, 5, q.Drain(0))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestDrainLimit(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Submit("n", func() {}))
	}
	assert.Equal(t, 2, q.Drain(2))
	assert.Equal(t, 1, q.Drain(0))
	assert.Equal(t, 0, q.Drain(0))
}

func TestStopFailsPendingAndRejects(t *testing.T) {
	q := NewQueue()

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Call(context.Background(), "pending", func() (any, error) { return nil, nil })
		errCh <- err
	}()
	require.Eventually(t, func() bool { return len(q.inbox) == 1 }, time.Second, time.Millisecond)

	q.Stop()
	require.ErrorIs(t, <-errCh, ErrStopped)
	require.ErrorIs(t, q.Submit("late", func() {}), ErrStopped)
	assert.True(t, q.Stopped())
}

func TestCallsRacingStopNeverHang(t *testing.T) {
	for round := 0; round < 20; round++ {
		q := NewQueue(WithSize(4), WithTimeout(10*time.Second))

		var wg sync.WaitGroup
		start := time.Now()
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := q.Call(context.Background(), "racer", func() (any, error) { return nil, nil })
				assert.True(t, errors.Is(err, ErrStopped) || errors.Is(err, ErrBusy), "%v", err)
			}()
		}
		q.Stop()
		wg.Wait()
		assert.Less(t, time.Since(start), 2*time.Second, "round %d", round)
	}
}

func TestSubmitWaitWaitsForRoom(t *testing.T) {
	q := NewQueue(WithSize(1))
	require.NoError(t, q.Submit("first", func() {}))
	require.ErrorIs(t, q.Submit("second", func() {}), ErrBusy)

	ran := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- q.SubmitWait(context.Background(), "quit", func() { close(ran) })
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, q.Drain(1))
	require.NoError(t, <-errCh)
	assert.Equal(t, 1, q.Drain(0))
	select {
	case <-ran:
	default:
		t.Fatal("waited task did not run")
	}
}

func TestSubmitWaitGivesUp(t *testing.T) {
	q := NewQueue(WithSize(1))
	require.NoError(t, q.Submit("first", func() {}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, q.SubmitWait(ctx, "late", func() {}), context.DeadlineExceeded)

	errCh := make(chan error, 1)
	go func() { errCh <- q.SubmitWait(context.Background(), "late", func() {}) }()
	time.Sleep(20 * time.Millisecond)
	q.Stop()
	require.ErrorIs(t, <-errCh, ErrStopped)
}
