package swarm

import "container/heap"

// taskHeap orders pending tasks by descending priority, ties broken by
// ascending creation sequence (FIFO), per spec.md §4.6.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// taskQueue is spec.md §9's "two-tier queue": a front-urgent deque (used
// only by failure-recovery requeues, which must jump ahead of everything
// else) layered over a priority heap for ordinary submissions. Not
// concurrency-safe on its own; the coordinator serializes access with its
// own mutex.
type taskQueue struct {
	urgent []*Task
	heap   taskHeap
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	heap.Init(&q.heap)
	return q
}

// PushBack enqueues a normally-submitted task into the priority heap.
func (q *taskQueue) PushBack(t *Task) {
	heap.Push(&q.heap, t)
}

// PushFront enqueues a failure-recovered task at the absolute head of the
// queue, ahead of the heap and ahead of any previously front-pushed task,
// per spec.md §4.6's agent-failure requeue rule.
func (q *taskQueue) PushFront(t *Task) {
	q.urgent = append([]*Task{t}, q.urgent...)
}

// Pop drains the urgent deque before the priority heap.
func (q *taskQueue) Pop() (*Task, bool) {
	if len(q.urgent) > 0 {
		t := q.urgent[0]
		q.urgent = q.urgent[1:]
		return t, true
	}
	if q.heap.Len() > 0 {
		return heap.Pop(&q.heap).(*Task), true
	}
	return nil, false
}

func (q *taskQueue) Len() int { return len(q.urgent) + q.heap.Len() }

// Clear empties the queue, per spec.md §4.6's shutdown behavior.
func (q *taskQueue) Clear() {
	q.urgent = nil
	q.heap = taskHeap{}
}
