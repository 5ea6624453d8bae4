package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/relay/internal/models"
)

// queuedItem wraps a work item with the monotonic sequence number
// assigned at admission. The sequence breaks priority ties so that
// equal-priority items leave in FIFO order.
type queuedItem struct {
	work *models.WorkItem
	seq  uint64
}

// workHeap is a min-heap ordered by (priority, seq).
type workHeap []*queuedItem

func (h workHeap) Len() int { return len(h) }

func (h workHeap) Less(i, j int) bool {
	if h[i].work.Priority != h[j].work.Priority {
		return h[i].work.Priority < h[j].work.Priority
	}
	return h[i].seq < h[j].seq
}

func (h workHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *workHeap) Push(x interface{}) {
	*h = append(*h, x.(*queuedItem))
}

func (h *workHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// PriorityQueue is a bounded, concurrency-safe container ordering
// pending work items by priority (1 is most urgent, 10 least).
// Many producers may enqueue concurrently; a single scheduler is the
// intended consumer, though concurrent dequeues do not corrupt state.
type PriorityQueue struct {
	mu      sync.Mutex
	items   workHeap
	maxSize int
	seq     uint64

	// signal carries one token per successful enqueue so Dequeue can
	// block without polling. Sized to maxSize so sends never block.
	signal chan struct{}

	totalQueued    int64
	totalProcessed int64
	totalFailed    int64
	queueFullCount int64

	logger arbor.ILogger
}

// New creates a bounded priority queue.
func New(maxSize int, logger arbor.ILogger) *PriorityQueue {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &PriorityQueue{
		items:   make(workHeap, 0, maxSize),
		maxSize: maxSize,
		signal:  make(chan struct{}, maxSize),
		logger:  logger,
	}
}

// Enqueue admits a work item. Returns false immediately when the queue
// is at capacity - it never blocks on I/O. Safe for concurrent callers.
func (q *PriorityQueue) Enqueue(item *models.WorkItem) bool {
	q.mu.Lock()

	if len(q.items) >= q.maxSize {
		q.queueFullCount++
		q.mu.Unlock()
		q.logger.Warn().
			Str("item_id", item.ID).
			Str("category", item.Category.String()).
			Int("max_size", q.maxSize).
			Msg("Work item rejected, queue full")
		return false
	}

	q.seq++
	heap.Push(&q.items, &queuedItem{work: item, seq: q.seq})
	q.totalQueued++
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
		// Token buffer can only be exhausted after a Clear drained items
		// but not tokens; the consumer re-checks on timeout regardless.
	}

	return true
}

// Dequeue removes the most urgent item, blocking up to timeout for one
// to arrive. Returns nil on timeout or context cancellation.
func (q *PriorityQueue) Dequeue(ctx context.Context, timeout time.Duration) *models.WorkItem {
	if item := q.pop(); item != nil {
		return item
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			// Last chance: an item may have landed between the heap
			// check and the timer firing.
			return q.pop()
		case <-q.signal:
			if item := q.pop(); item != nil {
				return item
			}
			// Stale token (cleared queue or a competing consumer).
		}
	}
}

func (q *PriorityQueue) pop() *models.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	return heap.Pop(&q.items).(*queuedItem).work
}

// Size returns the number of pending items.
func (q *PriorityQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsFull reports whether admission would currently reject.
func (q *PriorityQueue) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) >= q.maxSize
}

// IsEmpty reports whether the queue has no pending items.
func (q *PriorityQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// Clear discards all pending items and returns how many were dropped.
// Dropped items produce no outcomes - callers that need at-least-once
// accounting must use the returned count.
func (q *PriorityQueue) Clear() int {
	q.mu.Lock()
	dropped := len(q.items)
	for i := range q.items {
		q.items[i] = nil
	}
	q.items = q.items[:0]
	q.mu.Unlock()

	// Drain stale wake-up tokens so the consumer doesn't spin.
	for {
		select {
		case <-q.signal:
		default:
			if dropped > 0 {
				q.logger.Warn().
					Int("dropped", dropped).
					Msg("Queue cleared, pending work discarded without outcomes")
			}
			return dropped
		}
	}
}

// RecordProcessed increments the processed counter. Called by the
// scheduler after a completed outcome.
func (q *PriorityQueue) RecordProcessed() {
	q.mu.Lock()
	q.totalProcessed++
	q.mu.Unlock()
}

// RecordFailed increments the failed counter. Called by the scheduler
// after a failed outcome.
func (q *PriorityQueue) RecordFailed() {
	q.mu.Lock()
	q.totalFailed++
	q.mu.Unlock()
}

// Stats returns a snapshot of the queue counters.
func (q *PriorityQueue) Stats() models.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return models.QueueStats{
		TotalQueued:    q.totalQueued,
		TotalProcessed: q.totalProcessed,
		TotalFailed:    q.totalFailed,
		QueueFullCount: q.queueFullCount,
		CurrentSize:    len(q.items),
		MaxSize:        q.maxSize,
	}
}
