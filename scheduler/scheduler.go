// scheduler/scheduler.go
package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

type task struct {
	id       int64
	runAt    time.Time
	interval time.Duration
	fn       func()
	index    int
}

type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	return q[i].runAt.Before(q[j].runAt)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x interface{}) {
	n := len(*q)
	t := x.(*task)
	t.index = n
	*q = append(*q, t)
}

func (q *taskQueue) Pop() interface{} {
	old := *q
	n := len(old)
	t := old[n-1]
	t.index = -1
	*q = old[0 : n-1]
	return t
}

// Scheduler runs one-shot and repeating tasks off a single min-heap.
// Callbacks run on their own goroutines, so a slow callback never delays
// the queue.
type Scheduler struct {
	mu        sync.Mutex
	queue     taskQueue
	nextID    int64
	cancelled map[int64]bool
	stop      chan struct{}
	stopOnce  sync.Once
}

func New() *Scheduler {
	s := &Scheduler{
		queue:     make(taskQueue, 0),
		nextID:    1,
		cancelled: make(map[int64]bool),
		stop:      make(chan struct{}),
	}
	heap.Init(&s.queue)
	go s.process()
	return s
}

// Schedule registers fn to run after delay. A positive interval makes the
// task repeat with that period after the first run. The returned id can
// be passed to Cancel.
func (s *Scheduler) Schedule(delay, interval time.Duration, fn func()) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &task{
		id:       s.nextID,
		runAt:    time.Now().Add(delay),
		interval: interval,
		fn:       fn,
	}
	s.nextID++

	heap.Push(&s.queue, t)
	return t.id
}

// Cancel stops a pending or repeating task. Cancelling an unknown or
// already-cancelled id is a no-op.
func (s *Scheduler) Cancel(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Mark first so an in-flight repeating task is dropped instead of
	// re-queued.
	s.cancelled[id] = true

	for i, t := range s.queue {
		if t.id == id {
			heap.Remove(&s.queue, i)
			break
		}
	}
}

// Stop shuts the dispatch loop down. Pending tasks never fire.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func (s *Scheduler) process() {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.runDue()
		}
	}
}

func (s *Scheduler) runDue() {
	s.mu.Lock()
	now := time.Now()

	var due []*task
	for s.queue.Len() > 0 {
		t := s.queue[0]
		if t.runAt.After(now) {
			break
		}
		heap.Pop(&s.queue)

		if s.cancelled[t.id] {
			delete(s.cancelled, t.id)
			continue
		}
		due = append(due, t)

		if t.interval > 0 {
			t.runAt = now.Add(t.interval)
			heap.Push(&s.queue, t)
		} else {
			delete(s.cancelled, t.id)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		go t.fn()
	}
}
