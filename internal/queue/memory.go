package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// jobHeap orders jobs by NotBefore, earliest first.
type jobHeap []*Job

func (h jobHeap) Len() int           { return len(h) }
func (h jobHeap) Less(i, j int) bool { return h[i].NotBefore.Before(h[j].NotBefore) }
func (h jobHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*Job)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return job
}

// MemoryQueue is an in-process delayed queue for development and tests. It
// implements Enqueuer, Dequeuer and DeadLetterQueue. Jobs are lost when the
// process exits.
type MemoryQueue struct {
	mu      sync.Mutex
	jobs    jobHeap
	dead    []memoryDeadLetter
	wake    chan struct{}
	handler Handler
	retry   *RetryStrategy
	config  Config
	log     zerolog.Logger
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

type memoryDeadLetter struct {
	ID    string
	Entry DLQEntry
}

// NewMemoryQueue creates an empty MemoryQueue. handler may be nil when the
// queue is only used for enqueuing.
func NewMemoryQueue(handler Handler, retry *RetryStrategy, cfg Config, log zerolog.Logger) *MemoryQueue {
	q := &MemoryQueue{
		wake:    make(chan struct{}, 1),
		handler: handler,
		retry:   retry,
		config:  cfg.withDefaults(),
		log:     log,
	}
	heap.Init(&q.jobs)
	return q
}

// Enqueue stores the job until its NotBefore time.
func (q *MemoryQueue) Enqueue(_ context.Context, job *Job) (string, error) {
	q.mu.Lock()
	heap.Push(&q.jobs, job)
	DelayedJobs.WithLabelValues(q.config.Name).Set(float64(q.jobs.Len()))
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	JobsEnqueuedTotal.WithLabelValues("memory").Inc()
	return job.ID, nil
}

// Start launches the scheduler goroutine and the worker pool.
func (q *MemoryQueue) Start(ctx context.Context) error {
	if q.handler == nil {
		return fmt.Errorf("memory queue %s has no handler", q.config.Name)
	}

	ctx, q.cancel = context.WithCancel(ctx)
	ready := make(chan *Job)

	q.wg.Add(1)
	go q.schedule(ctx, ready)

	for range q.config.WorkerCount {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-ready:
					process(ctx, job, q.handler, q, q, q.retry, q.config.ProcessTimeout, q.log)
				}
			}
		}()
	}

	q.log.Info().
		Int("worker_count", q.config.WorkerCount).
		Str("queue", q.config.Name).
		Msg("memory queue started")
	return nil
}

// schedule hands each job to a worker once it is due.
func (q *MemoryQueue) schedule(ctx context.Context, ready chan<- *Job) {
	defer q.wg.Done()

	for {
		job, wait := q.popDue(time.Now())
		if job != nil {
			select {
			case ready <- job:
				continue
			case <-ctx.Done():
				q.mu.Lock()
				heap.Push(&q.jobs, job)
				q.mu.Unlock()
				return
			}
		}

		var timer *time.Timer
		var timerC <-chan time.Time
		if wait > 0 {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
		case <-q.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// popDue removes and returns the earliest job if it is due at now. Otherwise
// it returns how long until the earliest job is due, or 0 when empty.
func (q *MemoryQueue) popDue(now time.Time) (*Job, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.jobs.Len() == 0 {
		return nil, 0
	}
	if next := q.jobs[0]; !next.Due(now) {
		return nil, next.Delay(now)
	}
	job := heap.Pop(&q.jobs).(*Job)
	DelayedJobs.WithLabelValues(q.config.Name).Set(float64(q.jobs.Len()))
	return job, 0
}

// Stop cancels the workers and waits for them to return.
func (q *MemoryQueue) Stop(ctx context.Context) error {
	if q.cancel == nil {
		return nil
	}
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns a snapshot of queued jobs ordered by NotBefore.
func (q *MemoryQueue) Pending() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Job, 0, q.jobs.Len())
	for _, j := range q.jobs {
		out = append(out, *j)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].NotBefore.Before(out[j].NotBefore) })
	return out
}

// MoveToDLQ records a failed job.
func (q *MemoryQueue) MoveToDLQ(_ context.Context, job *Job, reason string) error {
	q.mu.Lock()
	q.dead = append(q.dead, memoryDeadLetter{
		ID:    uuid.New().String(),
		Entry: DLQEntry{Job: job, FinalError: reason, MovedAt: time.Now()},
	})
	q.mu.Unlock()

	DLQJobsTotal.WithLabelValues("max_retries").Inc()
	JobsProcessedTotal.WithLabelValues("dlq").Inc()
	return nil
}

// DeadLetters returns the IDs of recorded dead letters in arrival order.
func (q *MemoryQueue) DeadLetters() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]string, 0, len(q.dead))
	for _, d := range q.dead {
		ids = append(ids, d.ID)
	}
	return ids
}

// Reprocess re-enqueues the named dead letters as due now.
func (q *MemoryQueue) Reprocess(ctx context.Context, entryIDs []string) (int, error) {
	want := make(map[string]bool, len(entryIDs))
	for _, id := range entryIDs {
		want[id] = true
	}

	q.mu.Lock()
	var revived []*Job
	kept := q.dead[:0]
	for _, d := range q.dead {
		if want[d.ID] {
			revived = append(revived, d.Entry.Job)
			continue
		}
		kept = append(kept, d)
	}
	q.dead = kept
	q.mu.Unlock()

	for _, job := range revived {
		job.RetryCount = 0
		job.NotBefore = time.Now()
		if _, err := q.Enqueue(ctx, job); err != nil {
			return 0, err
		}
	}
	return len(revived), nil
}
