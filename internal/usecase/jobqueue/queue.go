package jobqueue

import (
	"container/heap"
	"sync"
)

// jobHeap orders jobs by priority, then creation time, then arrival.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.seq < b.seq
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	job := x.(*Job)
	job.index = len(*h)
	*h = append(*h, job)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	job.index = -1
	*h = old[:n-1]
	return job
}

// Queue is a priority queue holding at most one job per feed across the
// queued and processing states.
type Queue struct {
	mu      sync.Mutex
	jobs    jobHeap
	members map[int64]State
	seq     uint64
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{members: make(map[int64]State)}
}

// Push adds job unless its feed is already queued or processing.
func (q *Queue) Push(job *Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.members[job.FeedID]; ok {
		return false
	}
	q.seq++
	job.seq = q.seq
	heap.Push(&q.jobs, job)
	q.members[job.FeedID] = StateQueued
	return true
}

// PopBatch removes up to n jobs in priority order and marks them processing.
func (q *Queue) PopBatch(n int) []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	var batch []*Job
	for len(batch) < n && q.jobs.Len() > 0 {
		job := heap.Pop(&q.jobs).(*Job)
		q.members[job.FeedID] = StateProcessing
		batch = append(batch, job)
	}
	return batch
}

// Complete releases a processing job's feed.
func (q *Queue) Complete(feedID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.members, feedID)
}

// Requeue records a failed attempt of a processing job. It returns false
// and releases the feed when the job has used maxRetries retries already;
// otherwise the job goes back into the queue with its retry count bumped
// and its priority downgraded as needed.
func (q *Queue) Requeue(job *Job, maxRetries int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job.RetryCount >= maxRetries {
		delete(q.members, job.FeedID)
		return false
	}

	job.RetryCount++
	job.Priority = Downgrade(job.Priority, job.RetryCount)
	q.seq++
	job.seq = q.seq
	heap.Push(&q.jobs, job)
	q.members[job.FeedID] = StateQueued
	return true
}

// State returns the state of feedID's job, if any.
func (q *Queue) State(feedID int64) (State, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.members[feedID]
	return s, ok
}

// Len returns the number of queued (not processing) jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs.Len()
}

// InFlight returns the number of processing jobs.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.members) - q.jobs.Len()
}

// DepthByPriority counts queued jobs per priority band.
func (q *Queue) DepthByPriority() map[Priority]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	depth := map[Priority]int{PriorityHigh: 0, PriorityMedium: 0, PriorityLow: 0}
	for _, job := range q.jobs {
		depth[job.Priority]++
	}
	return depth
}

// Snapshot returns copies of the queued jobs in dequeue order.
func (q *Queue) Snapshot() []Job {
	q.mu.Lock()
	cp := make(jobHeap, len(q.jobs))
	for i, j := range q.jobs {
		c := *j
		cp[i] = &c
	}
	q.mu.Unlock()

	out := make([]Job, 0, len(cp))
	for cp.Len() > 0 {
		out = append(out, *heap.Pop(&cp).(*Job))
	}
	return out
}
