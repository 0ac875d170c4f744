// Package frontier is the work queue of one site crawl. Every path is
// admitted at most once; the frontier drains when nothing is queued and no
// admitted task is still being processed.
package frontier

import (
	"context"
	"sync"
)

type State int

const (
	StatePending State = iota
	StateFetching
	StateExtracted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateFetching:
		return "FETCHING"
	case StateExtracted:
		return "EXTRACTED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Task is one page to crawl. Path is the normalized path used for dedup.
type Task struct {
	URL   string
	Path  string
	Depth int
}

type Frontier struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	states map[string]State
	// pending counts tasks that are queued or being processed.
	pending int
	limit   int
}

// New creates a frontier admitting at most limit tasks, unlimited when
// limit is 0.
func New(limit int) *Frontier {
	f := &Frontier{
		states: make(map[string]State),
		limit:  limit,
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Add queues t unless its path was already admitted or the limit is
// reached. The check and the insert are one atomic step.
func (f *Frontier) Add(t Task) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, seen := f.states[t.Path]; seen {
		return false
	}
	if f.limit > 0 && len(f.states) >= f.limit {
		return false
	}

	f.states[t.Path] = StatePending
	f.queue = append(f.queue, t)
	f.pending++
	f.cond.Signal()
	return true
}

// Next blocks until a task is available and marks it FETCHING. It returns
// false once the frontier has drained or ctx is cancelled.
func (f *Frontier) Next(ctx context.Context) (Task, bool) {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()

	for len(f.queue) == 0 && f.pending > 0 && ctx.Err() == nil {
		f.cond.Wait()
	}
	if ctx.Err() != nil || len(f.queue) == 0 {
		return Task{}, false
	}

	t := f.queue[0]
	f.queue[0] = Task{}
	f.queue = f.queue[1:]
	f.states[t.Path] = StateFetching
	return t, true
}

// Finish records the final state of a task returned by Next. Children must
// be added before their parent finishes.
func (f *Frontier) Finish(t Task, state State) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.states[t.Path] = state
	f.pending--
	if f.pending == 0 {
		f.cond.Broadcast()
	}
}

// State returns the state of an admitted path.
func (f *Frontier) State(path string) (State, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[path]
	return s, ok
}

// Seen reports whether path was admitted.
func (f *Frontier) Seen(path string) bool {
	_, ok := f.State(path)
	return ok
}

// Size returns the number of admitted paths.
func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states)
}

// Pending returns the number of queued or in-flight tasks.
func (f *Frontier) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}
