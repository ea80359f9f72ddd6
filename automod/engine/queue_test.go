package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func waitIdle(t *testing.T, q *GuildQueue) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Wait(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestGuildQueueOrdering(t *testing.T) {
	assert := assert.New(t)
	q := NewGuildQueue(4, 100, nil)
	defer q.Shutdown()

	var lk sync.Mutex
	seen := make(map[string][]int)
	running := make(map[string]int)
	var overlap atomic.Bool

	for i := 0; i < 20; i++ {
		for _, g := range []string{"a", "b", "c"} {
			g, i := g, i
			assert.NoError(q.Enqueue(g, func(ctx context.Context) error {
				lk.Lock()
				running[g]++
				if running[g] > 1 {
					overlap.Store(true)
				}
				lk.Unlock()

				time.Sleep(time.Millisecond)

				lk.Lock()
				running[g]--
				seen[g] = append(seen[g], i)
				lk.Unlock()
				return nil
			}))
		}
	}
	waitIdle(t, q)

	assert.False(overlap.Load(), "two tasks for one guild ran at the same time")
	for _, g := range []string{"a", "b", "c"} {
		assert.Equal(20, len(seen[g]))
		for i, v := range seen[g] {
			assert.Equal(i, v, "guild %s out of order", g)
		}
		assert.Equal(0, q.Depth(g))
	}
}

func TestGuildQueueGuildsRunConcurrently(t *testing.T) {
	assert := assert.New(t)
	q := NewGuildQueue(2, 10, nil)
	defer q.Shutdown()

	// each task blocks until the other guild's task has started
	started := map[string]chan struct{}{"a": make(chan struct{}), "b": make(chan struct{})}
	other := map[string]string{"a": "b", "b": "a"}
	var ok atomic.Int32
	for _, g := range []string{"a", "b"} {
		g := g
		assert.NoError(q.Enqueue(g, func(ctx context.Context) error {
			close(started[g])
			select {
			case <-started[other[g]]:
				ok.Add(1)
			case <-time.After(2 * time.Second):
			}
			return nil
		}))
	}
	waitIdle(t, q)
	assert.Equal(int32(2), ok.Load())
}

func TestGuildQueueBackPressure(t *testing.T) {
	assert := assert.New(t)
	q := NewGuildQueue(1, 3, nil)
	defer q.Shutdown()

	release := make(chan struct{})
	block := func(ctx context.Context) error {
		<-release
		return nil
	}
	for i := 0; i < 3; i++ {
		assert.NoError(q.Enqueue("g", block))
	}
	assert.Equal(3, q.Depth("g"))
	err := q.Enqueue("g", block)
	assert.True(errors.Is(err, ErrQueueFull))

	// other guilds have their own budget
	assert.NoError(q.Enqueue("h", func(ctx context.Context) error { return nil }))

	close(release)
	waitIdle(t, q)
	assert.Equal(0, q.Depth("g"))
	assert.NoError(q.Enqueue("g", block))
	waitIdle(t, q)
}

func TestGuildQueueWaitCancelled(t *testing.T) {
	assert := assert.New(t)
	q := NewGuildQueue(1, 10, nil)
	defer q.Shutdown()

	release := make(chan struct{})
	assert.NoError(q.Enqueue("g", func(ctx context.Context) error {
		<-release
		return nil
	}))

	// returns (and stops waiting) while the task is still blocked
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.True(errors.Is(q.Wait(ctx), context.DeadlineExceeded))
	assert.Equal(1, q.Depth("g"))

	close(release)
	waitIdle(t, q)
	assert.Equal(0, q.Depth("g"))
}

func TestGuildQueueEnqueueWhileWaiting(t *testing.T) {
	assert := assert.New(t)
	q := NewGuildQueue(2, 10, nil)
	defer q.Shutdown()

	release := make(chan struct{})
	assert.NoError(q.Enqueue("a", func(ctx context.Context) error {
		<-release
		return nil
	}))
	waitErr := make(chan error, 1)
	go func() {
		waitErr <- q.Wait(context.Background())
	}()
	time.Sleep(10 * time.Millisecond)

	// a pending Wait must not hold up scheduling on the idle worker
	ran := make(chan struct{})
	assert.NoError(q.Enqueue("b", func(ctx context.Context) error {
		close(ran)
		return nil
	}))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task for an idle guild was not scheduled")
	}

	close(release)
	assert.NoError(<-waitErr)
}

func TestGuildQueueRecoversFailures(t *testing.T) {
	assert := assert.New(t)
	q := NewGuildQueue(1, 10, nil)
	defer q.Shutdown()

	var ran atomic.Int32
	assert.NoError(q.Enqueue("g", func(ctx context.Context) error { panic("boom") }))
	assert.NoError(q.Enqueue("g", func(ctx context.Context) error { return fmt.Errorf("failed") }))
	assert.NoError(q.Enqueue("g", func(ctx context.Context) error {
		ran.Add(1)
		return nil
	}))
	waitIdle(t, q)
	assert.Equal(int32(1), ran.Load())
}

func TestGuildQueueEnqueueFromTask(t *testing.T) {
	assert := assert.New(t)
	// a single worker: enqueueing from inside a task must not wait for a free worker
	q := NewGuildQueue(1, 10, nil)

	var order []string
	var lk sync.Mutex
	note := func(s string) {
		lk.Lock()
		order = append(order, s)
		lk.Unlock()
	}
	assert.NoError(q.Enqueue("g", func(ctx context.Context) error {
		note("first")
		if err := q.Enqueue("g", func(ctx context.Context) error {
			note("chained")
			return nil
		}); err != nil {
			return err
		}
		return q.Enqueue("other", func(ctx context.Context) error {
			note("other")
			return nil
		})
	}))

	// shutdown drains everything, including tasks enqueued by running tasks
	q.Shutdown()
	assert.ElementsMatch([]string{"first", "chained", "other"}, order)
	assert.Equal("first", order[0])
	assert.True(errors.Is(q.Enqueue("g", func(ctx context.Context) error { return nil }), ErrQueueClosed))
}
