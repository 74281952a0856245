package backlog

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errDown = errors.New("sink down")

// fakeSink records delivered items and can be switched off or told to reject
// individual items.
type fakeSink struct {
	mu        sync.Mutex
	down      bool
	failOnce  map[int]bool
	delivered []int
	attempts  int
}

func (f *fakeSink) write(v int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.down {
		return errDown
	}
	if f.failOnce[v] {
		delete(f.failOnce, v)
		return errDown
	}
	f.delivered = append(f.delivered, v)
	return nil
}

func (f *fakeSink) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeSink) got() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.delivered...)
}

func newQueue(capacity int, sink *fakeSink) *Queue[int] {
	return New[int]("test", capacity, sink.write, zap.NewNop().Sugar())
}

func seq(from, to int) []int {
	var s []int
	for i := from; i <= to; i++ {
		s = append(s, i)
	}
	return s
}

func TestSubmitWritesImmediatelyWhenEmpty(t *testing.T) {
	sink := &fakeSink{}
	q := newQueue(10, sink)

	require.NoError(t, q.Submit(1))
	require.NoError(t, q.Submit(2))

	assert.Equal(t, []int{1, 2}, sink.got())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 2, sink.attempts)
}

func TestNoLossUnderTransientOutage(t *testing.T) {
	sink := &fakeSink{}
	q := newQueue(DefaultCapacity, sink)

	for i := 1; i <= 50; i++ {
		switch i {
		case 10:
			sink.setDown(true)
		case 30:
			sink.setDown(false)
		}
		err := q.Submit(i)
		if i >= 10 && i < 30 {
			assert.ErrorIs(t, err, ErrDeferred, "item %d", i)
		} else {
			assert.NoError(t, err, "item %d", i)
		}
	}

	assert.Equal(t, seq(1, 50), sink.got())
	assert.Equal(t, 0, q.Len())

	st := q.Stats()
	assert.Equal(t, uint64(50), st.Delivered)
	assert.Equal(t, uint64(0), st.Dropped)
}

func TestBoundedLossUnderOverflow(t *testing.T) {
	sink := &fakeSink{down: true}
	q := newQueue(5, sink)

	for i := 1; i <= 8; i++ {
		err := q.Submit(i)
		if i <= 5 {
			assert.ErrorIs(t, err, ErrDeferred, "item %d", i)
		} else {
			assert.ErrorIs(t, err, ErrQueueFull, "item %d", i)
		}
		assert.LessOrEqual(t, q.Len(), 5)
	}

	assert.Equal(t, uint64(3), q.Stats().Dropped)

	sink.setDown(false)
	require.NoError(t, q.Drain())
	assert.Equal(t, seq(1, 5), sink.got())
}

func TestFullQueueRetriesItemAfterDrain(t *testing.T) {
	sink := &fakeSink{down: true}
	q := newQueue(2, sink)

	assert.ErrorIs(t, q.Submit(1), ErrDeferred)
	assert.ErrorIs(t, q.Submit(2), ErrDeferred)

	sink.setDown(false)

	// Queue is full so 3 cannot be appended, but the drain empties it and 3 is
	// written afterwards.
	require.NoError(t, q.Submit(3))
	assert.Equal(t, []int{1, 2, 3}, sink.got())
	assert.Equal(t, 0, q.Len())
}

func TestFullQueueRetryFailureRequeues(t *testing.T) {
	sink := &fakeSink{down: true}
	q := newQueue(2, sink)

	assert.ErrorIs(t, q.Submit(1), ErrDeferred)
	assert.ErrorIs(t, q.Submit(2), ErrDeferred)

	sink.setDown(false)
	sink.failOnce = map[int]bool{3: true}

	assert.ErrorIs(t, q.Submit(3), ErrDeferred)
	assert.Equal(t, []int{1, 2}, sink.got())
	assert.Equal(t, 1, q.Len())

	require.NoError(t, q.Drain())
	assert.Equal(t, []int{1, 2, 3}, sink.got())
}

func TestDrainStopsAtFirstFailure(t *testing.T) {
	sink := &fakeSink{down: true}
	q := newQueue(10, sink)

	for i := 1; i <= 4; i++ {
		assert.ErrorIs(t, q.Submit(i), ErrDeferred)
	}

	sink.setDown(false)
	sink.failOnce = map[int]bool{3: true}

	// 1 and 2 go out, 3 fails and blocks 4 and 5 behind it.
	err := q.Submit(5)
	assert.ErrorIs(t, err, ErrDeferred)
	assert.Equal(t, []int{1, 2}, sink.got())
	assert.Equal(t, 3, q.Len())

	require.NoError(t, q.Submit(6))
	assert.Equal(t, seq(1, 6), sink.got())
}

func TestImmediateFailureDoesNotRetryTwice(t *testing.T) {
	sink := &fakeSink{down: true}
	q := newQueue(10, sink)

	assert.ErrorIs(t, q.Submit(1), ErrDeferred)
	assert.Equal(t, 1, sink.attempts)

	// With a backlog, each submit makes a single drain attempt at the head.
	assert.ErrorIs(t, q.Submit(2), ErrDeferred)
	assert.Equal(t, 2, sink.attempts)
}

func TestImmediateFailureWaitsForNextDrain(t *testing.T) {
	sink := &fakeSink{failOnce: map[int]bool{1: true}}
	q := newQueue(10, sink)

	// The sink is back right away, but the item stays queued until something drains.
	assert.ErrorIs(t, q.Submit(1), ErrDeferred)
	assert.Equal(t, 1, q.Len())
	assert.Empty(t, sink.got())

	require.NoError(t, q.Drain())
	assert.Equal(t, []int{1}, sink.got())
	assert.Zero(t, q.Len())
}

func TestConcurrentSubmitKeepsOrder(t *testing.T) {
	sink := &fakeSink{}
	q := newQueue(DefaultCapacity, sink)

	const producers = 8
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if i%17 == 0 {
					sink.setDown(p%2 == 0)
				}
				err := q.Submit(p*perProducer + i)
				if err != nil {
					assert.ErrorIs(t, err, ErrDeferred)
				}
			}
		}(p)
	}
	wg.Wait()

	sink.setDown(false)
	require.NoError(t, q.Drain())

	got := sink.got()
	require.Len(t, got, producers*perProducer)

	seen := make(map[int]bool, len(got))
	last := make(map[int]int, producers)
	for _, v := range got {
		require.False(t, seen[v], fmt.Sprintf("item %d delivered twice", v))
		seen[v] = true

		p := v / perProducer
		if prev, ok := last[p]; ok {
			assert.Greater(t, v, prev, "producer %d delivered out of order", p)
		}
		last[p] = v
	}
}
