package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingHandler records the time each job was handled.
type recordingHandler struct {
	mu      sync.Mutex
	handled map[int64]time.Time
	err     error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{handled: make(map[int64]time.Time)}
}

func (h *recordingHandler) HandleJob(_ context.Context, job *Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled[job.MessageID] = time.Now()
	return h.err
}

func (h *recordingHandler) get(id int64) (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	at, ok := h.handled[id]
	return at, ok
}

func TestMemoryQueue_PendingOrderedByNotBefore(t *testing.T) {
	q := NewMemoryQueue(nil, NewRetryStrategy(1), Config{}, testLogger())
	base := time.Now().Add(time.Hour)
	ctx := context.Background()

	for i, offset := range []time.Duration{3 * time.Second, time.Second, 2 * time.Second} {
		if _, err := q.Enqueue(ctx, NewJob(int64(i+1), 1, 1, base.Add(offset))); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	pending := q.Pending()
	if len(pending) != 3 {
		t.Fatalf("Pending() len = %d, want 3", len(pending))
	}
	wantOrder := []int64{2, 3, 1}
	for i, want := range wantOrder {
		if pending[i].MessageID != want {
			t.Errorf("Pending()[%d].MessageID = %d, want %d", i, pending[i].MessageID, want)
		}
	}
}

func TestMemoryQueue_StartRequiresHandler(t *testing.T) {
	q := NewMemoryQueue(nil, NewRetryStrategy(1), Config{}, testLogger())
	if err := q.Start(context.Background()); err == nil {
		t.Error("expected Start() without handler to fail")
	}
}

func TestMemoryQueue_NeverRunsJobBeforeNotBefore(t *testing.T) {
	handler := newRecordingHandler()
	q := NewMemoryQueue(handler, NewRetryStrategy(1), Config{WorkerCount: 2}, testLogger())
	ctx := context.Background()

	if err := q.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer q.Stop(ctx) //nolint:errcheck

	now := time.Now()
	immediate := NewJob(1, 1, 1, now)
	delayed := NewJob(2, 1, 1, now.Add(300*time.Millisecond))

	// Enqueue the later job first to make sure ordering is by time.
	if _, err := q.Enqueue(ctx, delayed); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := q.Enqueue(ctx, immediate); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	waitFor(t, "both jobs handled", func() bool {
		_, a := handler.get(1)
		_, b := handler.get(2)
		return a && b
	})

	at, _ := handler.get(2)
	if at.Before(delayed.NotBefore) {
		t.Errorf("delayed job handled at %v, before not-before %v", at, delayed.NotBefore)
	}
}

func TestMemoryQueue_ExhaustedRetriesGoToDLQAndReprocess(t *testing.T) {
	handler := newRecordingHandler()
	handler.err = errors.New("transport down")
	// One allowed attempt: the first failure goes straight to the DLQ.
	q := NewMemoryQueue(handler, NewRetryStrategy(1), Config{WorkerCount: 1}, testLogger())
	ctx := context.Background()

	if err := q.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, err := q.Enqueue(ctx, NewJob(7, 1, 1, time.Now())); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	waitFor(t, "dead letter", func() bool { return len(q.DeadLetters()) == 1 })

	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	ids := q.DeadLetters()
	n, err := q.Reprocess(ctx, append(ids, "unknown"))
	if err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Reprocess() = %d, want 1", n)
	}
	if len(q.DeadLetters()) != 0 {
		t.Error("expected DLQ to be empty after reprocess")
	}

	pending := q.Pending()
	if len(pending) != 1 || pending[0].RetryCount != 0 {
		t.Errorf("Pending() = %+v, want one job with retry count reset", pending)
	}
}
