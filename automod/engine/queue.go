package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const DefaultMaxQueueDepth = 500

// A unit of work for one guild.
type Task func(ctx context.Context) error

type queueTask struct {
	guild string
	do    Task
}

// Runs tasks on a fixed number of workers, with FIFO ordering per guild: at most one task for a given guild runs at any time, while tasks for different guilds run concurrently.
//
// Enqueueing never blocks (including from inside a running task); instead, each guild has a bounded number of pending tasks, past which Enqueue returns ErrQueueFull.
type GuildQueue struct {
	maxConcurrency int
	maxDepth       int

	lk sync.Mutex
	// signalled when work is ready for a worker
	cond *sync.Cond
	// signalled when a guild runs out of work, for Wait callers
	idle *sync.Cond
	// pending tasks per guild. presence of a key means a task for the guild is either scheduled in 'ready' or running
	active map[string][]*queueTask
	// next task to run for each guild which has one, in order of arrival
	ready []*queueTask
	// queued plus running, per guild
	depth    map[string]int
	inflight int
	draining bool
	closed   bool

	wg  sync.WaitGroup
	log *slog.Logger
}

func NewGuildQueue(workers, maxDepth int, logger *slog.Logger) *GuildQueue {
	if workers <= 0 {
		workers = 1
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxQueueDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &GuildQueue{
		maxConcurrency: workers,
		maxDepth:       maxDepth,
		active:         make(map[string][]*queueTask),
		depth:          make(map[string]int),
		log:            logger.With("system", "guild-queue"),
	}
	q.cond = sync.NewCond(&q.lk)
	q.idle = sync.NewCond(&q.lk)

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	queueWorkersActive.Set(float64(workers))
	return q
}

func (q *GuildQueue) Enqueue(guildID string, do Task) error {
	q.lk.Lock()
	defer q.lk.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.depth[guildID] >= q.maxDepth {
		queueTasksRejected.Inc()
		return fmt.Errorf("%w: guild=%s depth=%d", ErrQueueFull, guildID, q.depth[guildID])
	}
	queueTasksAdded.Inc()
	q.depth[guildID]++

	t := &queueTask{guild: guildID, do: do}
	if a, ok := q.active[guildID]; ok {
		q.active[guildID] = append(a, t)
		return nil
	}
	q.active[guildID] = []*queueTask{}
	q.ready = append(q.ready, t)
	q.cond.Signal()
	return nil
}

// Number of pending tasks for the guild, including any currently running task.
func (q *GuildQueue) Depth(guildID string) int {
	q.lk.Lock()
	defer q.lk.Unlock()
	return q.depth[guildID]
}

// Blocks until there is no queued or running work, or the context is done.
func (q *GuildQueue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.lk.Lock()
		defer q.lk.Unlock()
		for (len(q.ready) > 0 || q.inflight > 0) && ctx.Err() == nil {
			q.idle.Wait()
		}
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}
	// broadcast under the lock, so the waiter can't miss it between its check and idle.Wait
	q.lk.Lock()
	q.idle.Broadcast()
	q.lk.Unlock()
	<-done
	return ctx.Err()
}

// Stops accepting new work from outside once all queued tasks (and any tasks they enqueue) have run, then waits for workers to exit.
func (q *GuildQueue) Shutdown() {
	q.log.Info("shutting down guild queue")
	q.lk.Lock()
	q.draining = true
	q.cond.Broadcast()
	q.lk.Unlock()

	q.wg.Wait()
	queueWorkersActive.Set(0)
	q.log.Info("guild queue shutdown complete")
}

func (q *GuildQueue) next() *queueTask {
	q.lk.Lock()
	defer q.lk.Unlock()
	for len(q.ready) == 0 {
		if q.draining && q.inflight == 0 {
			q.closed = true
			return nil
		}
		q.cond.Wait()
	}
	t := q.ready[0]
	q.ready[0] = nil
	q.ready = q.ready[1:]
	q.inflight++
	return t
}

func (q *GuildQueue) worker() {
	defer q.wg.Done()
	for {
		work := q.next()
		if work == nil {
			return
		}
		for work != nil {
			q.run(work)

			q.lk.Lock()
			q.depth[work.guild]--
			if q.depth[work.guild] <= 0 {
				delete(q.depth, work.guild)
			}
			rem, ok := q.active[work.guild]
			if !ok {
				q.log.Error("should always have an 'active' entry if a worker is processing a task", "guild", work.guild)
			}
			if len(rem) == 0 {
				delete(q.active, work.guild)
				work = nil
				q.inflight--
				// wakes idle workers during shutdown
				q.cond.Broadcast()
				q.idle.Broadcast()
			} else {
				work = rem[0]
				q.active[work.guild] = rem[1:]
			}
			q.lk.Unlock()
		}
	}
}

// similar to an HTTP server, we want to recover any panics from rule execution
func (q *GuildQueue) run(t *queueTask) {
	defer func() {
		if r := recover(); r != nil {
			queueTaskFailures.WithLabelValues("panic").Inc()
			q.log.Error("automod task panic", "guild", t.guild, "err", r)
		}
	}()
	if err := t.do(context.Background()); err != nil {
		queueTaskFailures.WithLabelValues("error").Inc()
		q.log.Error("automod task failed", "guild", t.guild, "err", err)
	}
	queueTasksProcessed.Inc()
}
